package lifecycle

import "fmt"

// Status is the canonical lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusPickedUp  Status = "picked_up"
	StatusDelivered Status = "delivered"
	StatusServed    Status = "served"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Category is the fulfillment channel of an order. It determines which
// transition graph applies and is immutable after the order is created.
type Category string

const (
	CategoryDelivery Category = "delivery"
	CategoryPickup   Category = "pickup"
	CategoryDineIn   Category = "dine_in"
)

// Payment status values stored on an order.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// legacyAliases maps status tokens still emitted by older backend rows to
// their canonical value. Each alias has exactly one image.
var legacyAliases = map[string]Status{
	"open":             StatusPending,
	"in_progress":      StatusPreparing,
	"out_for_delivery": StatusPickedUp,
}

var canonical = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusPreparing: true,
	StatusReady:     true,
	StatusPickedUp:  true,
	StatusDelivered: true,
	StatusServed:    true,
	StatusPaid:      true,
	StatusCancelled: true,
}

// UnknownStatusError reports a status token that maps to no canonical value.
// It indicates a malformed backend payload and is fatal to the caller.
type UnknownStatusError struct {
	Raw string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown order status %q", e.Raw)
}

// Normalize maps a raw status token (canonical or legacy) to its canonical
// value. It is pure and idempotent: canonical input maps to itself.
func Normalize(raw string) (Status, error) {
	if canonical[Status(raw)] {
		return Status(raw), nil
	}
	if s, ok := legacyAliases[raw]; ok {
		return s, nil
	}
	return "", &UnknownStatusError{Raw: raw}
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusPaid || s == StatusCancelled
}

// TerminalFor returns the category-specific completion status: the last
// forward state an order of that category is expected to reach.
func TerminalFor(cat Category) Status {
	switch cat {
	case CategoryDelivery:
		return StatusDelivered
	case CategoryPickup:
		return StatusPickedUp
	default:
		return StatusServed
	}
}
