package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is a received provider event. The unique
// (provider, provider_event_id) pair is the idempotency key for at-least-once
// webhook delivery.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:idx_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:idx_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	OrderID         snowflake.ID   `json:"order_id" gorm:"not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeCheckoutCompleted = "checkout_completed"
	EventTypeCheckoutExpired   = "checkout_expired"
)

// PaymentEvent is the canonical provider event parsed by adapters. The order
// id comes exclusively from checkout session metadata.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderSessionID string
	Type              string
	OrderID           snowflake.ID
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}

// AdapterConfig carries provider credentials into an adapter instance.
type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

// PaymentAdapter verifies and parses raw webhook payloads for one provider.
// Verify runs before Parse; nothing downstream touches an unverified payload.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// CheckoutLineItem describes one priced line shown on the provider's page.
type CheckoutLineItem struct {
	Name      string
	UnitPrice int64
	Quantity  int64
}

// CheckoutSessionRequest describes the hosted session to create. The order id
// rides in session metadata so the confirmation can be correlated back.
type CheckoutSessionRequest struct {
	OrderID    snowflake.ID
	EventID    snowflake.ID
	UserID     snowflake.ID
	Currency   string
	LineItems  []CheckoutLineItem
	SuccessURL string
	CancelURL  string
	ExpiresAt  time.Time
}

// CheckoutSession is the provider's handle for a created session.
type CheckoutSession struct {
	ID          string
	RedirectURL string
}

// CheckoutClient creates hosted checkout sessions with a provider.
type CheckoutClient interface {
	CreateSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

// Service ingests raw provider webhooks.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
