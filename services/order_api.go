package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tavolo/tavolo-api/models"
	"github.com/tavolo/tavolo-api/store"
)

// MutationResult is the backend's response to a status, payment or
// cancellation mutation: a human-readable message plus a partial view of the
// order as the server persisted it. The partial is what gets merged into the
// cache; the server, not the requested target, is the source of truth.
type MutationResult struct {
	Message string           `json:"message"`
	Order   store.OrderPatch `json:"order"`
}

// OrderAPI defines the backend order endpoints the manager core consumes.
type OrderAPI interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uint, target string) (*MutationResult, error)
	UpdateOrderPaymentStatus(ctx context.Context, orderID uint, target string) (*MutationResult, error)
	CancelOrder(ctx context.Context, orderID uint, reason string) (*MutationResult, error)
}

// APIError is a structured error returned by the backend's response envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %s: %s", e.Code, e.Message)
}

// HTTPOrderAPI talks to the backend order API over HTTP.
type HTTPOrderAPI struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOrderAPI creates an order API client for the given base URL
// (e.g. "http://localhost:8080"). A nil client gets a sane default.
func NewHTTPOrderAPI(baseURL string, client *http.Client) *HTTPOrderAPI {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPOrderAPI{baseURL: baseURL, client: client}
}

// envelope mirrors the backend's {success, data, error} response shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

// ListOrders fetches the full order collection, items included.
func (a *HTTPOrderAPI) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := a.do(ctx, http.MethodGet, "/api/v1/orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus asks the backend to move an order to the target status.
func (a *HTTPOrderAPI) UpdateOrderStatus(ctx context.Context, orderID uint, target string) (*MutationResult, error) {
	body := map[string]string{"status": target}
	var result MutationResult
	path := fmt.Sprintf("/api/v1/orders/%d/status", orderID)
	if err := a.do(ctx, http.MethodPatch, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateOrderPaymentStatus updates the payment status of an order.
func (a *HTTPOrderAPI) UpdateOrderPaymentStatus(ctx context.Context, orderID uint, target string) (*MutationResult, error) {
	body := map[string]string{"payment_status": target}
	var result MutationResult
	path := fmt.Sprintf("/api/v1/orders/%d/payment", orderID)
	if err := a.do(ctx, http.MethodPatch, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelOrder cancels an order with a reason.
func (a *HTTPOrderAPI) CancelOrder(ctx context.Context, orderID uint, reason string) (*MutationResult, error) {
	body := map[string]string{"reason": reason}
	var result MutationResult
	path := fmt.Sprintf("/api/v1/orders/%d/cancel", orderID)
	if err := a.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do issues a request, unwraps the response envelope and decodes data into
// out. Backend-reported errors come back as *APIError.
func (a *HTTPOrderAPI) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("order API request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode order API response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return env.Error
		}
		return fmt.Errorf("order API request failed with status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode order API payload: %w", err)
		}
	}
	return nil
}
