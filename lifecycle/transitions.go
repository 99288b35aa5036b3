package lifecycle

// deliveryPickupTransitions is the forward graph for delivery and pickup
// orders. The key is the current status, the value the statuses it may move
// to. Terminal states have empty entries. Cancellation is handled separately
// in CanTransition, not in the graphs.
var deliveryPickupTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed},
	StatusConfirmed: {StatusPreparing},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusPickedUp},
	StatusPickedUp:  {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

// dineInTransitions is the forward graph for dine-in orders.
var dineInTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed},
	StatusConfirmed: {StatusPreparing},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusServed},
	StatusServed:    {StatusPaid},
	StatusPaid:      {},
	StatusCancelled: {},
}

// cancellableFrom lists the states an order may be cancelled from. An order
// that is picked up or already in a terminal state can no longer be
// cancelled.
var cancellableFrom = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusPreparing: true,
	StatusReady:     true,
	StatusServed:    true,
}

// CanTransition reports whether an order of the given category may move from
// one canonical status to another. Cross-cutting rules are checked before the
// per-category graph: cancellation is allowed from any cancellable state,
// delivered is reachable only by delivery orders out of picked_up, and
// picked_up is never reachable for dine-in orders.
func CanTransition(from, to Status, cat Category) bool {
	if to == StatusCancelled {
		return cancellableFrom[from]
	}
	if to == StatusDelivered && (cat != CategoryDelivery || from != StatusPickedUp) {
		return false
	}
	if to == StatusPickedUp && cat == CategoryDineIn {
		return false
	}

	graph := deliveryPickupTransitions
	if cat == CategoryDineIn {
		graph = dineInTransitions
	}
	for _, next := range graph[from] {
		if next == to {
			return true
		}
	}
	return false
}
