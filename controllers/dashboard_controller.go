package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tavolo/tavolo-api/lifecycle"
	"github.com/tavolo/tavolo-api/manager"
	"github.com/tavolo/tavolo-api/store"
)

// DashboardController exposes the manager order-management view: the
// filtered projection of the order cache and the mutation actions. It owns
// nothing itself; cache, reconciler and poller are injected.
type DashboardController struct {
	cache      *store.Cache
	reconciler *manager.Reconciler
	poller     *manager.Poller
}

// NewDashboardController wires the dashboard endpoints to the manager core.
func NewDashboardController(cache *store.Cache, reconciler *manager.Reconciler, poller *manager.Poller) *DashboardController {
	return &DashboardController{cache: cache, reconciler: reconciler, poller: poller}
}

// TransitionRequest represents the request body for a dashboard transition
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// VisibilityRequest represents the request body for a visibility change
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// filterFromQuery rebuilds the ephemeral filter state from query parameters.
// The filter is never persisted server-side; each request carries its own.
func filterFromQuery(c *gin.Context) manager.FilterState {
	return manager.FilterState{
		Tab:    manager.Tab(c.DefaultQuery("tab", string(manager.TabAll))),
		Status: c.Query("status"),
		Search: c.Query("search"),
		Sort:   manager.SortKey(c.DefaultQuery("sort", string(manager.SortNewest))),
	}
}

// GetOrders handles GET /api/v1/dashboard/orders - the projected view
func (d *DashboardController) GetOrders(c *gin.Context) {
	filter := filterFromQuery(c)
	proj, err := manager.Project(d.cache.Snapshot(), filter)
	if err != nil {
		d.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"orders": proj.Orders,
			"counts": proj.Counts,
			"busy":   d.reconciler.BusyIDs(),
			"filter": filter,
		},
	})
}

// Transition handles POST /api/v1/dashboard/orders/:id/transition
func (d *DashboardController) Transition(c *gin.Context) {
	id, ok := dashboardOrderID(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}
	target, err := lifecycle.Normalize(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNKNOWN_STATUS",
				"message": err.Error(),
			},
		})
		return
	}

	order, err := d.reconciler.RequestTransition(c.Request.Context(), id, target)

	// A failed payment capture does not fail the primary transition; it is
	// surfaced as a warning alongside the applied order.
	var captureErr *manager.PaymentCaptureError
	if err != nil && !errors.As(err, &captureErr) {
		d.renderError(c, err)
		return
	}

	d.renderMutation(c, order.ID, captureErr, filterFromQuery(c), gin.H{"order": order})
}

// Cancel handles POST /api/v1/dashboard/orders/:id/cancel
func (d *DashboardController) Cancel(c *gin.Context) {
	id, ok := dashboardOrderID(c)
	if !ok {
		return
	}

	var req CancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	order, err := d.reconciler.RequestCancellation(c.Request.Context(), id, req.Reason)
	if err != nil {
		d.renderError(c, err)
		return
	}

	d.renderMutation(c, order.ID, nil, filterFromQuery(c), gin.H{"order": order})
}

// UpdatePayment handles POST /api/v1/dashboard/orders/:id/payment - the
// manual "mark as paid" action
func (d *DashboardController) UpdatePayment(c *gin.Context) {
	id, ok := dashboardOrderID(c)
	if !ok {
		return
	}

	var req UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	order, err := d.reconciler.RequestPaymentStatus(c.Request.Context(), id, req.PaymentStatus)
	if err != nil {
		d.renderError(c, err)
		return
	}

	d.renderMutation(c, order.ID, nil, filterFromQuery(c), gin.H{"order": order})
}

// SetVisibility handles POST /api/v1/dashboard/visibility - pauses polling
// while the view is hidden and resumes it when it comes back
func (d *DashboardController) SetVisibility(c *gin.Context) {
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	if *req.Visible {
		d.poller.Resume()
	} else {
		d.poller.Pause()
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"polling": !d.poller.Paused()},
	})
}

// renderMutation responds to a successful mutation with the repaired view:
// if the mutated order fell out of the active filter, the filter comes back
// reset to "all" and the projection is recomputed under it.
func (d *DashboardController) renderMutation(c *gin.Context, orderID uint, captureErr *manager.PaymentCaptureError, filter manager.FilterState, data gin.H) {
	proj, newFilter, err := manager.ProjectAfterMutation(d.cache, filter, orderID)
	if err != nil {
		d.renderError(c, err)
		return
	}

	data["orders"] = proj.Orders
	data["counts"] = proj.Counts
	data["filter"] = newFilter
	data["busy"] = d.reconciler.BusyIDs()
	if captureErr != nil {
		data["warning"] = captureErr.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// renderError maps the manager core's error taxonomy onto HTTP responses.
func (d *DashboardController) renderError(c *gin.Context, err error) {
	var invalid *manager.InvalidTransitionError
	var unknown *lifecycle.UnknownStatusError

	switch {
	case errors.Is(err, manager.ErrAlreadyInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ALREADY_IN_PROGRESS",
				"message": "This order is already being updated",
			},
		})
	case errors.As(err, &invalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_TRANSITION",
				"message": invalid.Error(),
			},
		})
	case errors.Is(err, store.ErrNotFound):
		// The cache is stale relative to the backend; refresh it so the
		// next request sees the server truth.
		go d.poller.Refresh(context.Background())
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found; the order list is being refreshed",
			},
		})
	case errors.As(err, &unknown):
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNKNOWN_STATUS",
				"message": unknown.Error(),
			},
		})
	default:
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "BACKEND_ERROR",
				"message": err.Error(),
			},
		})
	}
}

func dashboardOrderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Order id must be numeric",
			},
		})
		return 0, false
	}
	return uint(id), true
}
