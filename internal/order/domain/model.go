// Package domain contains core types for storefront orders.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusExpired = "expired"
)

// Order is a purchase attempt. It is persisted in pending state before any
// provider call so a confirmation can always find its order.
type Order struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID            snowflake.ID `json:"user_id" gorm:"not null;index"`
	EventID           snowflake.ID `json:"event_id" gorm:"not null;index"`
	Status            string       `json:"status" gorm:"type:text;not null;index"`
	Currency          string       `json:"currency" gorm:"type:text;not null"`
	SubtotalAmount    int64        `json:"subtotal_amount" gorm:"not null"`
	FeeAmount         int64        `json:"fee_amount" gorm:"not null"`
	TotalAmount       int64        `json:"total_amount" gorm:"not null"`
	PaymentProvider   string       `json:"payment_provider" gorm:"type:text"`
	ProviderSessionID string       `json:"provider_session_id" gorm:"type:text"`
	PaidAt            *time.Time   `json:"paid_at"`
	ExpiresAt         time.Time    `json:"expires_at" gorm:"not null"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is one cart line. Quantity stays within the storefront's
// configured per-line bounds.
type OrderItem struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID      snowflake.ID `json:"order_id" gorm:"not null;index"`
	TicketTypeID snowflake.ID `json:"ticket_type_id" gorm:"not null;index"`
	Quantity     int64        `json:"quantity" gorm:"not null"`
	UnitPrice    int64        `json:"unit_price" gorm:"not null"`
	LineAmount   int64        `json:"line_amount" gorm:"not null"`
}

func (OrderItem) TableName() string { return "order_items" }

// OrderSummary is an order joined with its lines for owner reads.
type OrderSummary struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}

// CheckoutLine is one requested cart line.
type CheckoutLine struct {
	TicketTypeID snowflake.ID `json:"ticket_type_id"`
	Quantity     int64        `json:"quantity"`
}

// CheckoutResult is returned to the client to hand off to the provider.
type CheckoutResult struct {
	OrderID     snowflake.ID `json:"order_id"`
	SessionID   string       `json:"session_id"`
	RedirectURL string       `json:"redirect_url"`
}

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order, items []OrderItem) error
	FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)
	RecordSessionRef(ctx context.Context, db *gorm.DB, id snowflake.ID, provider string, sessionID string, updatedAt time.Time) error
	ListOverduePending(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]snowflake.ID, error)
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, expiredAt time.Time) (bool, error)
}
