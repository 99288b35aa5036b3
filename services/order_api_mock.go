package services

import (
	"context"
	"sync"
	"time"

	"github.com/tavolo/tavolo-api/models"
	"github.com/tavolo/tavolo-api/store"
)

// MockOrderAPI is a mock implementation of OrderAPI for testing. Each
// endpoint serves from in-memory state and can be scripted to fail. An
// optional gate channel lets tests hold a mutation in flight to exercise
// the per-order guard.
type MockOrderAPI struct {
	mu sync.Mutex

	orders map[uint]models.Order

	ListErr    error
	StatusErr  error
	PaymentErr error
	CancelErr  error

	// Gate, when non-nil, blocks status mutations until the channel is
	// closed, simulating a slow backend.
	Gate chan struct{}

	StatusCalls  int
	PaymentCalls int
	CancelCalls  int
}

// NewMockOrderAPI creates a mock backend seeded with the given orders.
func NewMockOrderAPI(orders ...models.Order) *MockOrderAPI {
	m := &MockOrderAPI{orders: make(map[uint]models.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

// SetOrder replaces the stored copy of an order.
func (m *MockOrderAPI) SetOrder(o models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// ListOrders returns the seeded orders.
func (m *MockOrderAPI) ListOrders(ctx context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

// UpdateOrderStatus applies the status server-side and returns the partial
// view a real backend would.
func (m *MockOrderAPI) UpdateOrderStatus(ctx context.Context, orderID uint, target string) (*MutationResult, error) {
	if gate := m.gate(); gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusCalls++
	if m.StatusErr != nil {
		return nil, m.StatusErr
	}
	o := m.orders[orderID]
	o.Status = target
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return &MutationResult{
		Message: "Order status updated",
		Order: store.OrderPatch{
			ID:        orderID,
			Status:    &o.Status,
			UpdatedAt: &o.UpdatedAt,
		},
	}, nil
}

// UpdateOrderPaymentStatus applies the payment status server-side.
func (m *MockOrderAPI) UpdateOrderPaymentStatus(ctx context.Context, orderID uint, target string) (*MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PaymentCalls++
	if m.PaymentErr != nil {
		return nil, m.PaymentErr
	}
	o := m.orders[orderID]
	o.PaymentStatus = target
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return &MutationResult{
		Message: "Payment status updated",
		Order: store.OrderPatch{
			ID:            orderID,
			PaymentStatus: &o.PaymentStatus,
			UpdatedAt:     &o.UpdatedAt,
		},
	}, nil
}

// CancelOrder cancels the order server-side.
func (m *MockOrderAPI) CancelOrder(ctx context.Context, orderID uint, reason string) (*MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls++
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	o := m.orders[orderID]
	o.Status = "cancelled"
	if reason != "" {
		notes := "Cancelled: " + reason
		o.Notes = &notes
	}
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return &MutationResult{
		Message: "Order cancelled",
		Order: store.OrderPatch{
			ID:        orderID,
			Status:    &o.Status,
			Notes:     o.Notes,
			UpdatedAt: &o.UpdatedAt,
		},
	}, nil
}

func (m *MockOrderAPI) gate() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gate
}
