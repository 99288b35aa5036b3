package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolo/tavolo-api/lifecycle"
	"github.com/tavolo/tavolo-api/models"
	"github.com/tavolo/tavolo-api/services"
	"github.com/tavolo/tavolo-api/store"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func dineInOrder(id uint, status string) models.Order {
	return models.Order{
		ID:            id,
		CustomerName:  "Nina Rossi",
		CustomerEmail: "nina@example.com",
		Status:        status,
		PaymentStatus: "pending",
		TableNumber:   intPtr(6),
		TotalPrice:    31.00,
		Items: []models.OrderItem{
			{ID: 1, OrderID: id, Name: "Carbonara", Quantity: 1, UnitPrice: 14.00},
		},
		CreatedAt: time.Date(2026, 4, 2, 19, 0, 0, 0, time.UTC),
	}
}

func deliveryOrder(id uint, status string) models.Order {
	return models.Order{
		ID:              id,
		CustomerName:    "Omar Haddad",
		CustomerEmail:   "omar@example.com",
		Status:          status,
		PaymentStatus:   "pending",
		DeliveryAddress: strPtr("88 Canal Street"),
		TotalPrice:      22.50,
		CreatedAt:       time.Date(2026, 4, 2, 19, 30, 0, 0, time.UTC),
	}
}

func newTestReconciler(orders ...models.Order) (*Reconciler, *store.Cache, *services.MockOrderAPI) {
	cache := store.NewCache()
	cache.Reload(orders, nil)
	api := services.NewMockOrderAPI(orders...)
	return NewReconciler(api, cache, nil), cache, api
}

func TestRequestTransitionHappyPath(t *testing.T) {
	rec, cache, api := newTestReconciler(deliveryOrder(1, "pending"))

	updated, err := rec.RequestTransition(context.Background(), 1, lifecycle.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", updated.Status)
	assert.Equal(t, 1, api.StatusCalls)

	// The patch preserved unrelated fields.
	assert.Equal(t, "Omar Haddad", updated.CustomerName)
	assert.Equal(t, 22.50, updated.TotalPrice)

	stored, err := cache.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", stored.Status)
	assert.False(t, rec.Busy(1), "guard released after completion")
}

func TestRequestTransitionUsesServerStatus(t *testing.T) {
	// The server may coerce the persisted value; the cache must reflect what
	// the server returned, not what was requested.
	order := deliveryOrder(1, "pending")
	rec, cache, api := newTestReconciler(order)

	coerced := deliveryOrder(1, "confirmed")
	api.SetOrder(coerced) // server already ahead of the client

	_, err := rec.RequestTransition(context.Background(), 1, lifecycle.StatusConfirmed)
	require.NoError(t, err)
	stored, _ := cache.Get(1)
	assert.Equal(t, "confirmed", stored.Status)
}

func TestRequestTransitionRejectsInvalidMoveLocally(t *testing.T) {
	rec, cache, api := newTestReconciler(deliveryOrder(1, "pending"))

	_, err := rec.RequestTransition(context.Background(), 1, lifecycle.StatusDelivered)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, lifecycle.StatusPending, invalid.From)
	assert.Equal(t, lifecycle.StatusDelivered, invalid.To)

	assert.Equal(t, 0, api.StatusCalls, "no network call on local rejection")
	stored, _ := cache.Get(1)
	assert.Equal(t, "pending", stored.Status)
	assert.False(t, rec.Busy(1))
}

func TestRequestTransitionNormalizesLegacyStatus(t *testing.T) {
	// A cached row still carrying a legacy token validates against its
	// canonical image: in_progress == preparing, so preparing -> ready holds.
	rec, _, api := newTestReconciler(deliveryOrder(1, "in_progress"))

	updated, err := rec.RequestTransition(context.Background(), 1, lifecycle.StatusReady)
	require.NoError(t, err)
	assert.Equal(t, "ready", updated.Status)
	assert.Equal(t, 1, api.StatusCalls)
}

func TestRequestTransitionNotFound(t *testing.T) {
	rec, _, api := newTestReconciler()
	_, err := rec.RequestTransition(context.Background(), 42, lifecycle.StatusConfirmed)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, api.StatusCalls)
}

func TestRequestTransitionRemoteFailureRetainsState(t *testing.T) {
	rec, cache, api := newTestReconciler(deliveryOrder(1, "pending"))
	api.StatusErr = errors.New("backend unavailable")

	_, err := rec.RequestTransition(context.Background(), 1, lifecycle.StatusConfirmed)
	require.Error(t, err)

	stored, _ := cache.Get(1)
	assert.Equal(t, "pending", stored.Status, "previous status retained on remote failure")
	assert.False(t, rec.Busy(1), "guard released on failure")
}

func TestRequestTransitionPerOrderGuard(t *testing.T) {
	rec, cache, api := newTestReconciler(deliveryOrder(1, "pending"))
	api.Gate = make(chan struct{})

	results := make(chan error, 1)
	go func() {
		_, err := rec.RequestTransition(context.Background(), 1, lifecycle.StatusConfirmed)
		results <- err
	}()

	require.Eventually(t, func() bool { return rec.Busy(1) }, time.Second, time.Millisecond)

	// Second request for the same order while the first is in flight.
	_, err := rec.RequestTransition(context.Background(), 1, lifecycle.StatusConfirmed)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)

	close(api.Gate)
	require.NoError(t, <-results)

	assert.Equal(t, 1, api.StatusCalls, "exactly one mutation reached the backend")
	stored, _ := cache.Get(1)
	assert.Equal(t, "confirmed", stored.Status)
	assert.False(t, rec.Busy(1))
}

func TestServedDineInCapturesPayment(t *testing.T) {
	rec, cache, api := newTestReconciler(dineInOrder(9, "ready"))

	updated, err := rec.RequestTransition(context.Background(), 9, lifecycle.StatusServed)
	require.NoError(t, err)
	assert.Equal(t, "served", updated.Status)
	assert.Equal(t, "paid", updated.PaymentStatus)
	assert.Equal(t, 1, api.PaymentCalls)

	stored, _ := cache.Get(9)
	assert.Equal(t, "paid", stored.PaymentStatus)
	assert.False(t, rec.Busy(9))
}

func TestServedDineInPaymentFailureRollsBack(t *testing.T) {
	rec, cache, api := newTestReconciler(dineInOrder(9, "ready"))
	api.PaymentErr = errors.New("payment gateway timeout")

	updated, err := rec.RequestTransition(context.Background(), 9, lifecycle.StatusServed)

	// The primary transition stands; only the capture failed.
	var captureErr *PaymentCaptureError
	require.ErrorAs(t, err, &captureErr)
	assert.Equal(t, uint(9), captureErr.OrderID)
	assert.Equal(t, "served", updated.Status)
	assert.Equal(t, "pending", updated.PaymentStatus, "payment rolled back exactly")

	stored, _ := cache.Get(9)
	assert.Equal(t, "served", stored.Status)
	assert.Equal(t, "pending", stored.PaymentStatus)
	assert.False(t, rec.Busy(9))
}

func TestServedDineInAlreadyPaidSkipsCapture(t *testing.T) {
	order := dineInOrder(9, "ready")
	order.PaymentStatus = "paid"
	rec, _, api := newTestReconciler(order)

	updated, err := rec.RequestTransition(context.Background(), 9, lifecycle.StatusServed)
	require.NoError(t, err)
	assert.Equal(t, "paid", updated.PaymentStatus)
	assert.Equal(t, 0, api.PaymentCalls, "no dependent mutation when already paid")
}

func TestServedPickupDoesNotCapturePayment(t *testing.T) {
	// picked_up completion on a pickup order is not a dine-in serve; the
	// dependent mutation must not fire.
	order := deliveryOrder(3, "ready")
	order.DeliveryAddress = nil // pickup
	rec, _, api := newTestReconciler(order)

	updated, err := rec.RequestTransition(context.Background(), 3, lifecycle.StatusPickedUp)
	require.NoError(t, err)
	assert.Equal(t, "picked_up", updated.Status)
	assert.Equal(t, 0, api.PaymentCalls)
}

func TestRequestCancellation(t *testing.T) {
	rec, cache, api := newTestReconciler(dineInOrder(4, "preparing"))

	cancelled, err := rec.RequestCancellation(context.Background(), 4, "guest left")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, 1, api.CancelCalls)
	assert.Equal(t, 0, api.PaymentCalls, "cancellation never triggers the payment mutation")
	require.NotNil(t, cancelled.Notes)
	assert.Contains(t, *cancelled.Notes, "guest left")

	stored, _ := cache.Get(4)
	assert.Equal(t, "cancelled", stored.Status)
}

func TestRequestCancellationRejectedFromTerminalState(t *testing.T) {
	rec, _, api := newTestReconciler(deliveryOrder(5, "delivered"))

	_, err := rec.RequestCancellation(context.Background(), 5, "too late")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, api.CancelCalls)
}

func TestRequestPaymentStatus(t *testing.T) {
	rec, cache, api := newTestReconciler(deliveryOrder(6, "delivered"))

	updated, err := rec.RequestPaymentStatus(context.Background(), 6, "paid")
	require.NoError(t, err)
	assert.Equal(t, "paid", updated.PaymentStatus)
	assert.Equal(t, 1, api.PaymentCalls)

	stored, _ := cache.Get(6)
	assert.Equal(t, "paid", stored.PaymentStatus)

	_, err = rec.RequestPaymentStatus(context.Background(), 6, "refunded")
	assert.Error(t, err, "unknown payment status rejected")
}

func TestBusyIDs(t *testing.T) {
	rec, _, api := newTestReconciler(deliveryOrder(1, "pending"), deliveryOrder(2, "pending"))
	api.Gate = make(chan struct{})

	done := make(chan struct{})
	go func() {
		rec.RequestTransition(context.Background(), 2, lifecycle.StatusConfirmed)
		close(done)
	}()
	require.Eventually(t, func() bool { return rec.Busy(2) }, time.Second, time.Millisecond)

	assert.Equal(t, []uint{2}, rec.BusyIDs())
	close(api.Gate)
	<-done
	assert.Empty(t, rec.BusyIDs())
}
