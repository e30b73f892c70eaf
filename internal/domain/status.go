package domain

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var allStatuses = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusShipped:   true,
	StatusDelivered: true,
	StatusCancelled: true,
}

func (s Status) Valid() bool { return allStatuses[s] }

// Cancellable reports whether an order in this status may still be
// cancelled. Generic status updates are deliberately unrestricted;
// only cancellation checks its precondition.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}
