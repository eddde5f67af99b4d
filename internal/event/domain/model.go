// Package domain contains core types for the event catalog.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusArchived  = "archived"
)

// Event is a sellable event listing. Event management happens outside this
// service; this side only reads.
type Event struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Slug        string       `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"type:text"`
	Venue       string       `json:"venue" gorm:"type:text"`
	Status      string       `json:"status" gorm:"type:text;not null;index"`
	StartsAt    time.Time    `json:"starts_at" gorm:"not null"`
	EndsAt      time.Time    `json:"ends_at" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Event) TableName() string { return "events" }

// TicketType is a priced inventory bucket within an event. AvailableStock is
// the remaining sellable count and never drops below zero.
type TicketType struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	EventID        snowflake.ID `json:"event_id" gorm:"not null;index"`
	Name           string       `json:"name" gorm:"type:text;not null"`
	UnitPrice      int64        `json:"unit_price" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	TotalStock     int64        `json:"total_stock" gorm:"not null"`
	AvailableStock int64        `json:"available_stock" gorm:"not null"`
	Active         bool         `json:"active" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (TicketType) TableName() string { return "ticket_types" }

// EventDetail is an event joined with its ticket types for public reads.
type EventDetail struct {
	Event       Event        `json:"event"`
	TicketTypes []TicketType `json:"ticket_types"`
}

type Repository interface {
	ListPublished(ctx context.Context, db *gorm.DB) ([]Event, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Event, error)
	ListTicketTypes(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]TicketType, error)
	FindTicketType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TicketType, error)
}
