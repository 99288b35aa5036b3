package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tavolo/tavolo-api/config"
	"github.com/tavolo/tavolo-api/lifecycle"
	"github.com/tavolo/tavolo-api/models"
	"github.com/tavolo/tavolo-api/store"
)

// OrderItemRequest is one line item in an order creation request
type OrderItemRequest struct {
	Name      string  `json:"name" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" binding:"required,gt=0"`
}

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	CustomerName    string             `json:"customer_name" binding:"required"`
	CustomerEmail   string             `json:"customer_email" binding:"required,email"`
	DeliveryAddress *string            `json:"delivery_address"`
	TableNumber     *int               `json:"table_number"`
	Notes           *string            `json:"notes"`
	Items           []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// UpdateStatusRequest represents the request body for a status update
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdatePaymentRequest represents the request body for a payment update
type UpdatePaymentRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

// CancelOrderRequest represents the request body for a cancellation
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// ListOrders handles GET /api/v1/orders - returns every order, items
// included, newest first
func ListOrders(c *gin.Context) {
	db := config.GetDB()

	var orders []models.Order
	if err := db.Preload("Items").Order("created_at DESC").Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load orders",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

// CreateOrder handles POST /api/v1/orders - creates a new order
func CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
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

	if req.DeliveryAddress != nil && req.TableNumber != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "An order cannot have both a delivery address and a table number",
			},
		})
		return
	}

	order := models.Order{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		Status:          string(lifecycle.StatusPending),
		PaymentStatus:   lifecycle.PaymentPending,
		DeliveryAddress: req.DeliveryAddress,
		TableNumber:     req.TableNumber,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
		order.TotalPrice += float64(item.Quantity) * item.UnitPrice
	}

	db := config.GetDB()
	if err := db.Create(&order).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create order",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order,
	})
}

// UpdateOrderStatus handles PATCH /api/v1/orders/:id/status - moves an order
// through its lifecycle. The same transition table the dashboard validates
// against is enforced here; a well-behaved client never hits the rejection.
// The response carries a partial view of the order, not the full record.
func UpdateOrderStatus(c *gin.Context) {
	order, ok := findOrder(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
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
	current, err := lifecycle.Normalize(order.Status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNKNOWN_STATUS",
				"message": err.Error(),
			},
		})
		return
	}
	if !lifecycle.CanTransition(current, target, order.Category()) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_TRANSITION",
				"message": "Order cannot move from " + string(current) + " to " + string(target),
			},
		})
		return
	}

	db := config.GetDB()
	order.Status = string(target)
	if err := db.Model(&order).Update("status", order.Status).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update order status",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"message": "Order status updated",
			"order": store.OrderPatch{
				ID:        order.ID,
				Status:    &order.Status,
				UpdatedAt: &order.UpdatedAt,
			},
		},
	})
}

// UpdateOrderPaymentStatus handles PATCH /api/v1/orders/:id/payment
func UpdateOrderPaymentStatus(c *gin.Context) {
	order, ok := findOrder(c)
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
	switch req.PaymentStatus {
	case lifecycle.PaymentPending, lifecycle.PaymentPaid, lifecycle.PaymentFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Payment status must be pending, paid or failed",
			},
		})
		return
	}

	db := config.GetDB()
	order.PaymentStatus = req.PaymentStatus
	if err := db.Model(&order).Update("payment_status", order.PaymentStatus).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update payment status",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"message": "Payment status updated",
			"order": store.OrderPatch{
				ID:            order.ID,
				PaymentStatus: &order.PaymentStatus,
				UpdatedAt:     &order.UpdatedAt,
			},
		},
	})
}

// CancelOrder handles POST /api/v1/orders/:id/cancel - cancels an order from
// any cancellable state and records the reason into the order notes
func CancelOrder(c *gin.Context) {
	order, ok := findOrder(c)
	if !ok {
		return
	}

	// The reason is optional; an empty or absent body is fine.
	var req CancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	current, err := lifecycle.Normalize(order.Status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNKNOWN_STATUS",
				"message": err.Error(),
			},
		})
		return
	}
	if !lifecycle.CanTransition(current, lifecycle.StatusCancelled, order.Category()) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_TRANSITION",
				"message": "Order can no longer be cancelled",
			},
		})
		return
	}

	order.Status = string(lifecycle.StatusCancelled)
	updates := map[string]interface{}{"status": order.Status}
	if req.Reason != "" {
		notes := "Cancelled: " + req.Reason
		if order.Notes != nil && *order.Notes != "" {
			notes = *order.Notes + "\n" + notes
		}
		order.Notes = &notes
		updates["notes"] = notes
	}

	db := config.GetDB()
	if err := db.Model(&order).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to cancel order",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"message": "Order cancelled",
			"order": store.OrderPatch{
				ID:        order.ID,
				Status:    &order.Status,
				Notes:     order.Notes,
				UpdatedAt: &order.UpdatedAt,
			},
		},
	})
}

// findOrder loads the order addressed by the :id route parameter. On failure
// it writes the error response and returns ok=false.
func findOrder(c *gin.Context) (models.Order, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Order id must be numeric",
			},
		})
		return models.Order{}, false
	}

	db := config.GetDB()
	var order models.Order
	if err := db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "Order not found",
				},
			})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to load order",
				},
			})
		}
		return models.Order{}, false
	}
	return order, true
}
