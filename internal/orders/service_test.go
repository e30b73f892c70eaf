package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rakhadian/go-shop-orders/internal/domain"
	"github.com/rakhadian/go-shop-orders/internal/inventory"
	"github.com/rakhadian/go-shop-orders/internal/orders"
	"github.com/rakhadian/go-shop-orders/internal/repository"
)

type fixture struct {
	store *repository.MemoryStore
	svc   *orders.Service
	user  domain.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	inv := inventory.NewService(store.Products(), store, nil)
	svc := orders.NewService(store.Orders(), store.Products(), store.Users(), inv, store)
	user := store.PutUser(domain.User{Email: "jane@example.com", Name: "Jane"})
	return &fixture{store: store, svc: svc, user: user}
}

func (f *fixture) product(t *testing.T, price string, stock int) domain.Product {
	t.Helper()
	return f.store.PutProduct(domain.Product{
		Name:          "product",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	})
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestCreateOrderComputesTotalAndDecrementsStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "19.99", 10)

	o, err := f.svc.CreateOrder(ctx, f.user.ID, "12 Main St", []domain.ItemRequest{
		{ProductID: p.ID, Quantity: 3},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, o.Status)
	require.True(t, decimal.RequireFromString("59.97").Equal(o.TotalAmount),
		"total = %s", o.TotalAmount)
	require.Len(t, o.Items, 1)
	require.True(t, decimal.RequireFromString("19.99").Equal(o.Items[0].Price))
	require.Equal(t, 7, f.stock(t, p.ID))
	require.NotEmpty(t, o.ID)
	require.False(t, o.CreatedAt.IsZero())
}

func TestCreateOrderPriceSnapshotIsFixed(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "5.00", 10)

	o, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)

	// a later price change must not leak into the stored order
	p.Price = decimal.RequireFromString("7.50")
	f.store.PutProduct(p)

	got, err := f.svc.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("5.00").Equal(got.Items[0].Price))
	require.True(t, decimal.RequireFromString("10.00").Equal(got.TotalAmount))
}

func TestCreateOrderInsufficientStockLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "2.00", 10)
	b := f.product(t, "3.00", 1)

	_, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 5},
	})

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, b.ID, insufficient.ProductID)
	require.Equal(t, 10, f.stock(t, a.ID))
	require.Equal(t, 1, f.stock(t, b.ID))

	count, err := f.svc.GetOrderCountByUser(ctx, f.user.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCreateOrderDuplicateProductEntries(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "4.00", 5)

	// duplicates stay independent line items with cumulative decrement
	o, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: p.ID, Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	require.True(t, decimal.RequireFromString("12.00").Equal(o.TotalAmount))
	require.Equal(t, 2, f.stock(t, p.ID))
}

func TestCreateOrderDuplicateEntriesOverCumulativeStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "4.00", 2)

	_, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: p.ID, Quantity: 2},
	})

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, p.ID, insufficient.ProductID)
	require.Equal(t, 2, f.stock(t, p.ID))
}

func TestCreateOrderUnknownUser(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "1.00", 5)

	_, err := f.svc.CreateOrder(ctx, "ghost", "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 1}})

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "user", nf.Kind)
	require.Equal(t, 5, f.stock(t, p.ID))
}

func TestCreateOrderConstraintViolations(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "1.00", 5)

	long := make([]byte, domain.MaxShippingAddressLen+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name    string
		userID  string
		address string
		items   []domain.ItemRequest
	}{
		{"empty items", f.user.ID, "", nil},
		{"zero quantity", f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 0}}},
		{"negative quantity", f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: -2}}},
		{"missing user id", "", "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 1}}},
		{"oversized address", f.user.ID, string(long), []domain.ItemRequest{{ProductID: p.ID, Quantity: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tc.userID, tc.address, tc.items)
			var cv *domain.ConstraintError
			require.ErrorAs(t, err, &cv)
		})
	}
	require.Equal(t, 5, f.stock(t, p.ID))
}

func TestCancelOrderRestoresStockOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "19.99", 10)

	o, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	require.Equal(t, 7, f.stock(t, p.ID))

	cancelled, err := f.svc.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.Equal(t, 10, f.stock(t, p.ID))

	// total survives cancellation untouched
	require.True(t, decimal.RequireFromString("59.97").Equal(cancelled.TotalAmount))

	// second cancel fails and must not re-credit stock
	_, err = f.svc.CancelOrder(ctx, o.ID)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, domain.StatusCancelled, invalid.From)
	require.Equal(t, 10, f.stock(t, p.ID))
}

func TestCancelConfirmedOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "2.50", 4)

	o, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 4}})
	require.NoError(t, err)

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, domain.StatusConfirmed)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.Equal(t, 4, f.stock(t, p.ID))
}

func TestCancelShippedOrderFails(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "2.50", 4)

	o, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, domain.StatusShipped)
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, o.ID)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 3, f.stock(t, p.ID))
}

func TestCancelOrderReleasesEvenDeletedProductPeers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	kept := f.product(t, "1.00", 5)
	gone := f.product(t, "1.00", 5)

	o, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{
		{ProductID: kept.ID, Quantity: 2},
		{ProductID: gone.ID, Quantity: 2},
	})
	require.NoError(t, err)

	f.store.RemoveProduct(gone.ID)

	cancelled, err := f.svc.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.Equal(t, 5, f.stock(t, kept.ID))
}

func TestUpdateOrderStatusIsPermissive(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "1.00", 5)

	o, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	// arbitrary overwrites are allowed, with no stock effects
	for _, s := range []domain.Status{domain.StatusDelivered, domain.StatusPending, domain.StatusConfirmed} {
		got, err := f.svc.UpdateOrderStatus(ctx, o.ID, s)
		require.NoError(t, err)
		require.Equal(t, s, got.Status)
		require.Equal(t, 4, f.stock(t, p.ID))
	}

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, domain.Status("NONSENSE"))
	var cv *domain.ConstraintError
	require.ErrorAs(t, err, &cv)

	_, err = f.svc.UpdateOrderStatus(ctx, "missing", domain.StatusConfirmed)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCreateCancelCreateRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "3.00", 6)
	items := []domain.ItemRequest{{ProductID: p.ID, Quantity: 6}}

	first, err := f.svc.CreateOrder(ctx, f.user.ID, "", items)
	require.NoError(t, err)
	require.Equal(t, 0, f.stock(t, p.ID))

	_, err = f.svc.CancelOrder(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, 6, f.stock(t, p.ID))

	second, err := f.svc.CreateOrder(ctx, f.user.ID, "", items)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 0, f.stock(t, p.ID))
}

func TestConcurrentCreateOrderLastUnit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "10.00", 1)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 1}})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			var insufficient *domain.InsufficientStockError
			require.ErrorAs(t, err, &insufficient)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 0, f.stock(t, p.ID))
}

func TestOrderReadProjections(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "1.00", 100)
	other := f.store.PutUser(domain.User{Email: "bob@example.com", Name: "Bob"})

	var created []*domain.Order
	for i := 0; i < 3; i++ {
		o, err := f.svc.CreateOrder(ctx, f.user.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 1}})
		require.NoError(t, err)
		created = append(created, o)
	}
	oOther, err := f.svc.CreateOrder(ctx, other.ID, "", []domain.ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	byUser, err := f.svc.GetOrdersByUser(ctx, f.user.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, byUser, 3)
	// newest first
	require.Equal(t, created[2].ID, byUser[0].ID)
	require.Equal(t, created[0].ID, byUser[2].ID)

	paged, err := f.svc.GetOrdersByUser(ctx, f.user.ID, repository.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, paged, 1)

	pending, err := f.svc.GetOrdersByStatus(ctx, domain.StatusPending, repository.Page{})
	require.NoError(t, err)
	require.Len(t, pending, 4)

	_, err = f.svc.GetOrdersByStatus(ctx, domain.Status("bogus"), repository.Page{})
	var cv *domain.ConstraintError
	require.ErrorAs(t, err, &cv)

	count, err := f.svc.GetOrderCountByUser(ctx, other.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	now := time.Now().UTC()
	window, err := f.svc.GetOrdersBetweenDates(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 4)

	empty, err := f.svc.GetOrdersBetweenDates(ctx, now.Add(-2*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = f.svc.GetOrdersBetweenDates(ctx, now, now.Add(-time.Minute))
	require.ErrorAs(t, err, &cv)

	_, err = f.svc.GetOrderByID(ctx, oOther.ID)
	require.NoError(t, err)
	_, err = f.svc.GetOrderByID(ctx, "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}
