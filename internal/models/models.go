package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is a node in the catalog tree. ParentID is nil for roots;
// children never own their parent, so the tree has no ownership cycle.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CategoryID    int64           `json:"category_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Customer struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Slug         string     `json:"slug"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Order.Total is derived: it must equal the sum of ItemPrice over the
// order's current items. The store re-establishes it on every item
// mutation rather than maintaining it incrementally.
type Order struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  int64           `json:"customer_id"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
	Items       []OrderItem     `json:"items,omitempty"`
}

// OrderItem carries no price snapshot. UnitPrice and ItemPrice are read
// from the referenced product at query time, so a later price change is
// reflected by the next recomputation.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ItemPrice decimal.Decimal `json:"item_price"`
	CreatedAt time.Time       `json:"created_at"`
}

type Review struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	CustomerID int64     `json:"customer_id"`
	Rating     int       `json:"rating"`
	Body       string    `json:"body,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	OrderStatusProcessing = "processing"
	OrderStatusShipping   = "shipping"
	OrderStatusDelivered  = "delivered"
)

func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusProcessing, OrderStatusShipping, OrderStatusDelivered:
		return true
	}
	return false
}

const (
	MinRating = 1
	MaxRating = 5
)

func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}
