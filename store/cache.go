// Package store holds the manager view's in-memory order cache. The cache
// is owned by whoever constructs it and injected into the components that
// read or patch it; all mutation goes through Patch or Reload so that the
// merge invariant (a partial update never clobbers unrelated fields) holds
// everywhere.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/tavolo/tavolo-api/models"
)

// ErrNotFound is returned when a patch or lookup targets an order id that is
// not in the cache. It usually means the cache is stale relative to the
// backend and a full reload is the right recovery.
var ErrNotFound = errors.New("order not found in cache")

// OrderPatch is a partial view of an order, typically the slice of fields a
// mutation endpoint returns. Nil fields are left untouched by Patch.
type OrderPatch struct {
	ID            uint       `json:"id"`
	Status        *string    `json:"status,omitempty"`
	PaymentStatus *string    `json:"payment_status,omitempty"`
	TotalPrice    *float64   `json:"total_price,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Cache is a keyed, in-memory collection of orders. Insertion order is
// preserved so that a cache loaded newest-first displays newest-first by
// default. Orders are never deleted locally; cancellation is a status value,
// not a removal.
type Cache struct {
	mu     sync.RWMutex
	orders map[uint]models.Order
	ids    []uint
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{orders: make(map[uint]models.Order)}
}

// Get returns a copy of the cached order.
func (c *Cache) Get(id uint) (models.Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	order, ok := c.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	return order, nil
}

// Snapshot returns copies of every cached order in insertion order.
func (c *Cache) Snapshot() []models.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Order, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.orders[id])
	}
	return out
}

// Len returns the number of cached orders.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Patch merges the non-nil fields of the partial into the stored record and
// returns the updated copy. Fields absent from the partial, items and
// customer data in particular, are left exactly as they were. The backend's
// mutation responses are partial views of the order; replacing the whole
// record with one would silently drop everything the response omits.
func (c *Cache) Patch(id uint, partial OrderPatch) (models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	if partial.Status != nil {
		order.Status = *partial.Status
	}
	if partial.PaymentStatus != nil {
		order.PaymentStatus = *partial.PaymentStatus
	}
	if partial.TotalPrice != nil {
		order.TotalPrice = *partial.TotalPrice
	}
	if partial.Notes != nil {
		order.Notes = partial.Notes
	}
	if partial.UpdatedAt != nil {
		order.UpdatedAt = *partial.UpdatedAt
	}
	c.orders[id] = order
	return order, nil
}

// Reload replaces the cache contents with a fresh bulk-load result. Orders
// for which skip returns true keep their current local record: they have a
// mutation in flight and the poll snapshot must not overwrite the pending
// local state. A skipped order absent from the snapshot is also retained.
// skip may be nil.
func (c *Cache) Reload(orders []models.Order, skip func(id uint) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := make(map[uint]models.Order, len(orders))
	ids := make([]uint, 0, len(orders))
	for _, o := range orders {
		if skip != nil && skip(o.ID) {
			if existing, ok := c.orders[o.ID]; ok {
				o = existing
			}
		}
		fresh[o.ID] = o
		ids = append(ids, o.ID)
	}

	// Keep skipped orders that the snapshot no longer contains; dropping
	// them mid-mutation would turn the reconciler's patch into a NotFound.
	for _, id := range c.ids {
		if _, ok := fresh[id]; ok {
			continue
		}
		if skip != nil && skip(id) {
			fresh[id] = c.orders[id]
			ids = append(ids, id)
		}
	}

	c.orders = fresh
	c.ids = ids
}
