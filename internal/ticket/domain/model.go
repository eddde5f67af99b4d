// Package domain contains core types for issued tickets.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Ticket is one admission unit, created only by settlement. Tickets are
// immutable once issued.
type Ticket struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID      snowflake.ID `json:"order_id" gorm:"not null;index"`
	TicketTypeID snowflake.ID `json:"ticket_type_id" gorm:"not null;index"`
	EventID      snowflake.ID `json:"event_id" gorm:"not null;index"`
	UserID       snowflake.ID `json:"user_id" gorm:"not null;index"`
	Code         string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	IssuedAt     time.Time    `json:"issued_at" gorm:"not null"`
}

func (Ticket) TableName() string { return "tickets" }

// PublicTicket is the read-only view returned on code lookup. It carries no
// owner identity.
type PublicTicket struct {
	Code           string    `json:"code"`
	EventName      string    `json:"event_name"`
	EventSlug      string    `json:"event_slug"`
	TicketTypeName string    `json:"ticket_type_name"`
	StartsAt       time.Time `json:"starts_at"`
	Venue          string    `json:"venue"`
	IssuedAt       time.Time `json:"issued_at"`
}

var ErrTicketNotFound = errors.New("ticket_not_found")

type Repository interface {
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Ticket, error)
	FindPublicByCode(ctx context.Context, db *gorm.DB, code string) (*PublicTicket, error)
	CountByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)
}
