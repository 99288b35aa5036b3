package manager

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tavolo/tavolo-api/lifecycle"
	"github.com/tavolo/tavolo-api/models"
	"github.com/tavolo/tavolo-api/store"
)

// Tab identifies one of the dashboard's order tabs.
type Tab string

const (
	TabAll       Tab = "all"
	TabUrgent    Tab = "urgent" // orders still waiting for confirmation
	TabPreparing Tab = "preparing"
	TabReady     Tab = "ready"
	TabDelivery  Tab = "delivery"
	TabPickup    Tab = "pickup"
	TabDineIn    Tab = "dine_in"
	TabCompleted Tab = "completed"
)

// Tabs lists every dashboard tab in display order.
var Tabs = []Tab{TabAll, TabUrgent, TabPreparing, TabReady, TabDelivery, TabPickup, TabDineIn, TabCompleted}

// SortKey selects the projection's sort order.
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortOldest    SortKey = "oldest"
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
)

// FilterState is the ephemeral, UI-facing view selection. It is not
// persisted; every render passes the current selection in.
type FilterState struct {
	Tab    Tab     `json:"tab"`
	Status string  `json:"status"` // explicit status filter, honored when Tab is all
	Search string  `json:"search"`
	Sort   SortKey `json:"sort"`
}

// isUnfiltered reports whether every order is visible under this state
// (sort aside). Only a filtered view can go stale.
func (f FilterState) isUnfiltered() bool {
	return (f.Tab == "" || f.Tab == TabAll) && f.Status == "" && f.Search == ""
}

// Projection is the filtered, sorted view of the cache plus the per-tab
// badge counts computed from the unfiltered collection.
type Projection struct {
	Orders []models.Order `json:"orders"`
	Counts map[Tab]int    `json:"counts"`
}

// IsFullyCompleted reports whether the order reached its category-specific
// completion status (delivered for delivery, picked_up for pickup, served
// for dine-in) and has been paid.
func IsFullyCompleted(o models.Order) bool {
	s, err := lifecycle.Normalize(o.Status)
	if err != nil {
		return false
	}
	return s == lifecycle.TerminalFor(o.Category()) && o.PaymentStatus == lifecycle.PaymentPaid
}

// IsAlmostDoneUnpaid reports whether the order reached its completion status
// but payment is still pending. Used for a dashboard warning only; it plays
// no part in transition validation. Mutually exclusive with IsFullyCompleted.
func IsAlmostDoneUnpaid(o models.Order) bool {
	s, err := lifecycle.Normalize(o.Status)
	if err != nil {
		return false
	}
	return s == lifecycle.TerminalFor(o.Category()) && o.PaymentStatus == lifecycle.PaymentPending
}

// Project computes the dashboard view: tab selection, then the explicit
// status filter (all-tab only), then the free-text search, then sort. Counts
// cover every tab regardless of the active one. An order whose status token
// cannot be normalized fails the whole projection; that is a malformed
// backend payload, not something to hide silently.
func Project(orders []models.Order, f FilterState) (Projection, error) {
	type entry struct {
		order  models.Order
		status lifecycle.Status
	}

	entries := make([]entry, 0, len(orders))
	for _, o := range orders {
		s, err := lifecycle.Normalize(o.Status)
		if err != nil {
			return Projection{}, err
		}
		entries = append(entries, entry{order: o, status: s})
	}

	counts := make(map[Tab]int, len(Tabs))
	for _, tab := range Tabs {
		for _, e := range entries {
			if matchesTab(tab, e.order, e.status) {
				counts[tab]++
			}
		}
	}

	tab := f.Tab
	if tab == "" {
		tab = TabAll
	}

	var statusFilter lifecycle.Status
	if tab == TabAll && f.Status != "" {
		s, err := lifecycle.Normalize(f.Status)
		if err != nil {
			return Projection{}, err
		}
		statusFilter = s
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))

	selected := make([]models.Order, 0, len(entries))
	for _, e := range entries {
		if !matchesTab(tab, e.order, e.status) {
			continue
		}
		if statusFilter != "" && e.status != statusFilter {
			continue
		}
		if search != "" && !matchesSearch(e.order, search) {
			continue
		}
		selected = append(selected, e.order)
	}

	sortOrders(selected, f.Sort)
	return Projection{Orders: selected, Counts: counts}, nil
}

// ProjectAfterMutation recomputes the view after a successful mutation and
// repairs filter staleness: if the just-mutated order dropped out of a
// filtered view, the filter resets to all (sort preserved) so the manager
// does not lose sight of the order they just acted on.
func ProjectAfterMutation(cache *store.Cache, f FilterState, mutatedID uint) (Projection, FilterState, error) {
	orders := cache.Snapshot()
	proj, err := Project(orders, f)
	if err != nil {
		return Projection{}, f, err
	}
	if f.isUnfiltered() || containsOrder(proj.Orders, mutatedID) {
		return proj, f, nil
	}

	reset := FilterState{Tab: TabAll, Sort: f.Sort}
	proj, err = Project(orders, reset)
	if err != nil {
		return Projection{}, f, err
	}
	return proj, reset, nil
}

func containsOrder(orders []models.Order, id uint) bool {
	for _, o := range orders {
		if o.ID == id {
			return true
		}
	}
	return false
}

func matchesTab(tab Tab, o models.Order, s lifecycle.Status) bool {
	switch tab {
	case TabAll, "":
		return true
	case TabUrgent:
		return s == lifecycle.StatusPending
	case TabPreparing:
		return s == lifecycle.StatusPreparing
	case TabReady:
		return s == lifecycle.StatusReady
	case TabDelivery:
		return o.Category() == lifecycle.CategoryDelivery
	case TabPickup:
		return o.Category() == lifecycle.CategoryPickup
	case TabDineIn:
		return o.Category() == lifecycle.CategoryDineIn
	case TabCompleted:
		return IsFullyCompleted(o)
	default:
		return false
	}
}

func matchesSearch(o models.Order, search string) bool {
	if strings.Contains(strings.ToLower(o.CustomerName), search) {
		return true
	}
	if strings.Contains(strings.ToLower(o.CustomerEmail), search) {
		return true
	}
	return strings.Contains(strconv.FormatUint(uint64(o.ID), 10), search)
}

func sortOrders(orders []models.Order, key SortKey) {
	switch key {
	case SortOldest:
		sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	case SortPriceAsc:
		sort.SliceStable(orders, func(i, j int) bool { return orders[i].TotalPrice < orders[j].TotalPrice })
	case SortPriceDesc:
		sort.SliceStable(orders, func(i, j int) bool { return orders[i].TotalPrice > orders[j].TotalPrice })
	default: // newest first
		sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	}
}
