// Package manager implements the order-management view's core: the
// reconciliation controller that drives remote status mutations into the
// local cache, the projection engine behind the dashboard's tabs and
// filters, and the background poller that keeps the cache fresh.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tavolo/tavolo-api/lifecycle"
	"github.com/tavolo/tavolo-api/models"
	"github.com/tavolo/tavolo-api/services"
	"github.com/tavolo/tavolo-api/store"
)

// ErrAlreadyInProgress is returned when a mutation is requested for an order
// that already has one in flight. The first mutation is unaffected.
var ErrAlreadyInProgress = errors.New("an update for this order is already in progress")

// InvalidTransitionError is a local validation rejection. No network call was
// made and the order is unchanged.
type InvalidTransitionError struct {
	From     lifecycle.Status
	To       lifecycle.Status
	Category lifecycle.Category
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move a %s order from %s to %s", e.Category, e.From, e.To)
}

// PaymentCaptureError reports a failed dependent payment mutation. The
// primary status transition stands; only the payment capture failed and the
// cached payment status has been rolled back.
type PaymentCaptureError struct {
	OrderID uint
	Err     error
}

func (e *PaymentCaptureError) Error() string {
	return fmt.Sprintf("payment capture for order %d failed: %v", e.OrderID, e.Err)
}

func (e *PaymentCaptureError) Unwrap() error { return e.Err }

// Reconciler orchestrates remote order mutations against the backend and
// merges the results into the cache. At most one mutation per order is
// outstanding at any time; unrelated orders may mutate concurrently.
type Reconciler struct {
	api   services.OrderAPI
	cache *store.Cache
	log   *zap.Logger

	mu       sync.Mutex
	inFlight map[uint]struct{}
}

// NewReconciler wires a reconciler to the backend client and the cache it
// patches. The cache stays owned by the caller; the reconciler only mutates
// it through Patch on mutation completions.
func NewReconciler(api services.OrderAPI, cache *store.Cache, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		api:      api,
		cache:    cache,
		log:      log,
		inFlight: make(map[uint]struct{}),
	}
}

// Busy reports whether the order has a mutation in flight. The dashboard
// uses it to disable controls, the poller to skip-merge the order.
func (r *Reconciler) Busy(orderID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[orderID]
	return ok
}

// BusyIDs returns the ids of all orders with an outstanding mutation.
func (r *Reconciler) BusyIDs() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(r.inFlight))
	for id := range r.inFlight {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Reconciler) acquire(orderID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inFlight[orderID]; ok {
		return false
	}
	r.inFlight[orderID] = struct{}{}
	return true
}

func (r *Reconciler) release(orderID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, orderID)
}

// RequestTransition moves an order to the target status. The transition is
// validated locally before any network call; the backend's partial response,
// not the requested target, is what lands in the cache. Serving a dine-in
// order with payment still pending triggers an automatic payment capture;
// if that secondary call fails the payment status is rolled back and the
// error is reported without undoing the primary transition.
func (r *Reconciler) RequestTransition(ctx context.Context, orderID uint, target lifecycle.Status) (models.Order, error) {
	order, err := r.cache.Get(orderID)
	if err != nil {
		return models.Order{}, err
	}
	current, err := lifecycle.Normalize(order.Status)
	if err != nil {
		return models.Order{}, err
	}
	category := order.Category()
	if !lifecycle.CanTransition(current, target, category) {
		return models.Order{}, &InvalidTransitionError{From: current, To: target, Category: category}
	}

	if !r.acquire(orderID) {
		return models.Order{}, ErrAlreadyInProgress
	}
	defer r.release(orderID)

	result, err := r.api.UpdateOrderStatus(ctx, orderID, string(target))
	if err != nil {
		r.log.Warn("order status update failed",
			zap.Uint("order_id", orderID),
			zap.String("target", string(target)),
			zap.Error(err))
		return models.Order{}, fmt.Errorf("failed to update order %d: %w", orderID, err)
	}

	updated, err := r.cache.Patch(orderID, result.Order)
	if err != nil {
		return models.Order{}, err
	}
	r.log.Info("order transition applied",
		zap.Uint("order_id", orderID),
		zap.String("from", string(current)),
		zap.String("to", updated.Status))

	applied, err := lifecycle.Normalize(updated.Status)
	if err != nil {
		return models.Order{}, err
	}
	if applied == lifecycle.StatusServed &&
		category == lifecycle.CategoryDineIn &&
		updated.PaymentStatus == lifecycle.PaymentPending {
		return r.capturePayment(ctx, updated)
	}
	return updated, nil
}

// capturePayment is the dependent mutation for served dine-in orders: an
// optimistic local move to paid, the remote payment update, and on remote
// failure a compensating patch back to the previous payment status.
func (r *Reconciler) capturePayment(ctx context.Context, order models.Order) (models.Order, error) {
	previous := order.PaymentStatus

	paid := lifecycle.PaymentPaid
	if _, err := r.cache.Patch(order.ID, store.OrderPatch{ID: order.ID, PaymentStatus: &paid}); err != nil {
		return models.Order{}, err
	}

	result, err := r.api.UpdateOrderPaymentStatus(ctx, order.ID, lifecycle.PaymentPaid)
	if err != nil {
		restored := previous
		rolledBack, patchErr := r.cache.Patch(order.ID, store.OrderPatch{ID: order.ID, PaymentStatus: &restored})
		if patchErr != nil {
			return models.Order{}, patchErr
		}
		r.log.Warn("payment capture failed, payment status rolled back",
			zap.Uint("order_id", order.ID),
			zap.Error(err))
		return rolledBack, &PaymentCaptureError{OrderID: order.ID, Err: err}
	}

	final, err := r.cache.Patch(order.ID, result.Order)
	if err != nil {
		return models.Order{}, err
	}
	r.log.Info("payment captured", zap.Uint("order_id", order.ID))
	return final, nil
}

// RequestCancellation cancels an order. Cancellation bypasses the forward
// graph (any cancellable state may move to cancelled) and never triggers the
// dependent payment mutation.
func (r *Reconciler) RequestCancellation(ctx context.Context, orderID uint, reason string) (models.Order, error) {
	order, err := r.cache.Get(orderID)
	if err != nil {
		return models.Order{}, err
	}
	current, err := lifecycle.Normalize(order.Status)
	if err != nil {
		return models.Order{}, err
	}
	category := order.Category()
	if !lifecycle.CanTransition(current, lifecycle.StatusCancelled, category) {
		return models.Order{}, &InvalidTransitionError{From: current, To: lifecycle.StatusCancelled, Category: category}
	}

	if !r.acquire(orderID) {
		return models.Order{}, ErrAlreadyInProgress
	}
	defer r.release(orderID)

	result, err := r.api.CancelOrder(ctx, orderID, reason)
	if err != nil {
		r.log.Warn("order cancellation failed",
			zap.Uint("order_id", orderID),
			zap.Error(err))
		return models.Order{}, fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}

	cancelled, err := r.cache.Patch(orderID, result.Order)
	if err != nil {
		return models.Order{}, err
	}
	r.log.Info("order cancelled",
		zap.Uint("order_id", orderID),
		zap.String("reason", reason))
	return cancelled, nil
}

// RequestPaymentStatus is the manual payment update ("mark as paid" and
// friends). Same per-order guard, no transition graph involved.
func (r *Reconciler) RequestPaymentStatus(ctx context.Context, orderID uint, target string) (models.Order, error) {
	switch target {
	case lifecycle.PaymentPending, lifecycle.PaymentPaid, lifecycle.PaymentFailed:
	default:
		return models.Order{}, fmt.Errorf("invalid payment status %q", target)
	}
	if _, err := r.cache.Get(orderID); err != nil {
		return models.Order{}, err
	}

	if !r.acquire(orderID) {
		return models.Order{}, ErrAlreadyInProgress
	}
	defer r.release(orderID)

	result, err := r.api.UpdateOrderPaymentStatus(ctx, orderID, target)
	if err != nil {
		r.log.Warn("payment status update failed",
			zap.Uint("order_id", orderID),
			zap.String("target", target),
			zap.Error(err))
		return models.Order{}, fmt.Errorf("failed to update payment for order %d: %w", orderID, err)
	}

	updated, err := r.cache.Patch(orderID, result.Order)
	if err != nil {
		return models.Order{}, err
	}
	return updated, nil
}
