package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rakhadian/go-shop-orders/internal/domain"
)

// MemoryStore is a transactional in-memory store backing the tests and
// the "memory" store driver. The repository interfaces are exposed
// through the Products/Orders/Users accessors below.
//
// Entries are treated as immutable once stored: every mutation replaces
// the map value, so a transaction snapshot is a plain map copy.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	users    map[string]domain.User
	orderSeq map[string]int64 // insertion order, breaks created_at ties
	seq      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		users:    make(map[string]domain.User),
		orderSeq: make(map[string]int64),
	}
}

func (m *MemoryStore) Products() ProductRepository { return &memoryProducts{m} }
func (m *MemoryStore) Orders() OrderRepository     { return &memoryOrders{m} }
func (m *MemoryStore) Users() UserRepository       { return &memoryUsers{m} }

var _ TxManager = (*MemoryStore)(nil)

type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (m *MemoryStore) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryStore) rlock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

// WithTransaction holds the write lock for the whole callback and
// restores the pre-transaction state when fn fails. Transactions are
// therefore fully serialized, which is what the reservation engine
// relies on for its check-then-decrement.
func (m *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx) // nested call joins the outer transaction
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	products := copyMap(m.products)
	orders := copyMap(m.orders)
	users := copyMap(m.users)
	orderSeq := copyMap(m.orderSeq)
	seq := m.seq

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.products = products
		m.orders = orders
		m.users = users
		m.orderSeq = orderSeq
		m.seq = seq
		return err
	}
	return nil
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// PutProduct inserts or replaces a product, assigning an id and
// timestamps when missing. Seeding helper.
func (m *MemoryStore) PutProduct(p domain.Product) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.products[p.ID] = p
	return p
}

// RemoveProduct hard-deletes a product row. Seeding helper; exists so
// release-after-delete behavior can be exercised.
func (m *MemoryStore) RemoveProduct(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

// PutUser inserts or replaces a user, assigning an id when missing.
func (m *MemoryStore) PutUser(u domain.User) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return u
}

type memoryProducts struct{ s *MemoryStore }

func (r *memoryProducts) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	defer r.s.rlock(ctx)()
	p, ok := r.s.products[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "product", ID: id}
	}
	return &p, nil
}

func (r *memoryProducts) ListActive(ctx context.Context, page Page) ([]domain.Product, error) {
	defer r.s.rlock(ctx)()
	page = page.Normalize()
	out := make([]domain.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, page), nil
}

func (r *memoryProducts) ListBelowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	defer r.s.rlock(ctx)()
	var out []domain.Product
	for _, p := range r.s.products {
		if p.StockQuantity < threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockQuantity < out[j].StockQuantity })
	return out, nil
}

func (r *memoryProducts) DecrementStock(ctx context.Context, id string, qty int) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.products[id]
	if !ok {
		return &domain.NotFoundError{Kind: "product", ID: id}
	}
	if p.StockQuantity < qty {
		return &domain.InsufficientStockError{ProductID: id, Requested: qty, Available: p.StockQuantity}
	}
	p.StockQuantity -= qty
	p.UpdatedAt = time.Now().UTC()
	r.s.products[id] = p
	return nil
}

func (r *memoryProducts) IncrementStock(ctx context.Context, id string, qty int) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.products[id]
	if !ok {
		return &domain.NotFoundError{Kind: "product", ID: id}
	}
	p.StockQuantity += qty
	p.UpdatedAt = time.Now().UTC()
	r.s.products[id] = p
	return nil
}

type memoryOrders struct{ s *MemoryStore }

func (r *memoryOrders) Create(ctx context.Context, o *domain.Order) error {
	defer r.s.lock(ctx)()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].OrderID = o.ID
	}
	o.Items = items
	r.s.seq++
	r.s.orderSeq[o.ID] = r.s.seq
	r.s.orders[o.ID] = *o
	return nil
}

func (r *memoryOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	defer r.s.rlock(ctx)()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "order", ID: id}
	}
	return &o, nil
}

func (r *memoryOrders) UpdateStatus(ctx context.Context, id string, s domain.Status) error {
	defer r.s.lock(ctx)()
	o, ok := r.s.orders[id]
	if !ok {
		return &domain.NotFoundError{Kind: "order", ID: id}
	}
	o.Status = s
	o.UpdatedAt = time.Now().UTC()
	r.s.orders[id] = o
	return nil
}

func (r *memoryOrders) ListByUser(ctx context.Context, userID string, page Page) ([]domain.Order, error) {
	defer r.s.rlock(ctx)()
	return paginate(r.sorted(func(o domain.Order) bool { return o.UserID == userID }), page.Normalize()), nil
}

func (r *memoryOrders) ListByStatus(ctx context.Context, s domain.Status, page Page) ([]domain.Order, error) {
	defer r.s.rlock(ctx)()
	return paginate(r.sorted(func(o domain.Order) bool { return o.Status == s }), page.Normalize()), nil
}

func (r *memoryOrders) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	defer r.s.rlock(ctx)()
	return r.sorted(func(o domain.Order) bool {
		return !o.CreatedAt.Before(from) && !o.CreatedAt.After(to)
	}), nil
}

func (r *memoryOrders) CountByUser(ctx context.Context, userID string) (int64, error) {
	defer r.s.rlock(ctx)()
	var n int64
	for _, o := range r.s.orders {
		if o.UserID == userID {
			n++
		}
	}
	return n, nil
}

// newest first
func (r *memoryOrders) sorted(keep func(domain.Order) bool) []domain.Order {
	var out []domain.Order
	for _, o := range r.s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.orderSeq[out[i].ID] > r.s.orderSeq[out[j].ID]
	})
	return out
}

type memoryUsers struct{ s *MemoryStore }

func (r *memoryUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	defer r.s.rlock(ctx)()
	u, ok := r.s.users[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "user", ID: id}
	}
	return &u, nil
}

func paginate[T any](in []T, page Page) []T {
	if page.Offset >= len(in) {
		return nil
	}
	in = in[page.Offset:]
	if len(in) > page.Limit {
		in = in[:page.Limit]
	}
	return in
}
