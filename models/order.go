package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/tavolo/tavolo-api/lifecycle"
)

// Order represents a restaurant order in the system
type Order struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CustomerName    string         `gorm:"not null" json:"customer_name"`
	CustomerEmail   string         `gorm:"not null;index" json:"customer_email"`
	Status          string         `gorm:"not null;default:'pending'" json:"status"`          // pending, confirmed, preparing, ready, picked_up, delivered, served, paid, cancelled (plus legacy aliases on older rows)
	PaymentStatus   string         `gorm:"not null;default:'pending'" json:"payment_status"` // pending, paid, failed
	DeliveryAddress *string        `json:"delivery_address,omitempty"`                        // nullable, set for delivery orders
	TableNumber     *int           `json:"table_number,omitempty"`                            // nullable, set for dine-in orders
	TotalPrice      float64        `gorm:"not null" json:"total_price"`
	Notes           *string        `json:"notes,omitempty"`
	Items           []OrderItem    `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// Category derives the fulfillment channel from the order's shape: a
// delivery address makes it a delivery order, a table reference makes it
// dine-in, anything else is pickup. Address and table are never updated
// after creation, so the category is stable for the order's lifetime.
func (o *Order) Category() lifecycle.Category {
	if o.DeliveryAddress != nil && *o.DeliveryAddress != "" {
		return lifecycle.CategoryDelivery
	}
	if o.TableNumber != nil {
		return lifecycle.CategoryDineIn
	}
	return lifecycle.CategoryPickup
}

// OrderItem represents a single line item on an order
type OrderItem struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	OrderID   uint    `gorm:"not null;index" json:"order_id"`
	Name      string  `gorm:"not null" json:"name"`
	Quantity  int     `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice float64 `gorm:"not null" json:"unit_price"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}
