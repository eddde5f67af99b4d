package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	eventrepo "github.com/smallbiznis/stagepass/internal/event/repository"
	orderdomain "github.com/smallbiznis/stagepass/internal/order/domain"
	orderrepo "github.com/smallbiznis/stagepass/internal/order/repository"
	orderservice "github.com/smallbiznis/stagepass/internal/order/service"
	"github.com/smallbiznis/stagepass/internal/payment/adapters"
	"github.com/smallbiznis/stagepass/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/stagepass/internal/payment/repository"
	paymentwebhook "github.com/smallbiznis/stagepass/internal/payment/webhook"
	"github.com/smallbiznis/stagepass/internal/settlement"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const stripeSecret = "whsec_test"

type fakeCheckoutClient struct{}

func (fakeCheckoutClient) CreateSession(ctx context.Context, req paymentdomain.CheckoutSessionRequest) (paymentdomain.CheckoutSession, error) {
	return paymentdomain.CheckoutSession{
		ID:          "cs_test_1",
		RedirectURL: "https://checkout.stripe.com/pay/cs_test_1",
	}, nil
}

func TestIngestWebhookSettlesOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 30)
	svc := newWebhookService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 5)
	orderID := seedPendingOrder(t, db, node, ticketTypeID, 2)

	payload, header := completedEvent(t, "evt_1", orderID)
	if err := svc.IngestWebhook(ctx, "stripe", payload, header); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	assertOrderStatus(t, db, orderID, orderdomain.OrderStatusPaid)
	assertCount(t, db, "SELECT COUNT(1) FROM tickets", 2)
	assertCount(t, db, "SELECT COUNT(1) FROM payment_events", 1)

	var processedAt *time.Time
	if err := db.Raw("SELECT processed_at FROM payment_events LIMIT 1").Scan(&processedAt).Error; err != nil {
		t.Fatalf("scan processed_at: %v", err)
	}
	if processedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}
}

func TestIngestWebhookRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 31)
	svc := newWebhookService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 5)
	orderID := seedPendingOrder(t, db, node, ticketTypeID, 2)

	payload, header := completedEvent(t, "evt_dup", orderID)
	if err := svc.IngestWebhook(ctx, "stripe", payload, header); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	err := svc.IngestWebhook(ctx, "stripe", payload, header)
	if !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	// One event row, one paid order, exactly the ordered ticket count.
	assertCount(t, db, "SELECT COUNT(1) FROM payment_events", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM tickets", 2)
	assertStock(t, db, ticketTypeID, 3)
}

func TestIngestWebhookDistinctEventsSameOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 32)
	svc := newWebhookService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 5)
	orderID := seedPendingOrder(t, db, node, ticketTypeID, 2)

	payload1, header1 := completedEvent(t, "evt_a", orderID)
	if err := svc.IngestWebhook(ctx, "stripe", payload1, header1); err != nil {
		t.Fatalf("first event: %v", err)
	}

	// A second provider event confirming the same order records a new row
	// but settlement observes the paid order and issues nothing.
	payload2, header2 := completedEvent(t, "evt_b", orderID)
	if err := svc.IngestWebhook(ctx, "stripe", payload2, header2); err != nil {
		t.Fatalf("second event: %v", err)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM payment_events", 2)
	assertCount(t, db, "SELECT COUNT(1) FROM tickets", 2)
	assertStock(t, db, ticketTypeID, 3)
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 33)
	svc := newWebhookService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 5)
	orderID := seedPendingOrder(t, db, node, ticketTypeID, 1)

	payload, _ := completedEvent(t, "evt_bad", orderID)
	header := http.Header{}
	header.Set("Stripe-Signature", "t=123,v1=deadbeef")

	err := svc.IngestWebhook(ctx, "stripe", payload, header)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM payment_events", 0)
	assertOrderStatus(t, db, orderID, orderdomain.OrderStatusPending)
}

func TestIngestWebhookIgnoresUnrelatedEventTypes(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 34)
	svc := newWebhookService(t, db, node)

	payload := []byte(`{"id":"evt_other","type":"invoice.paid","created":1700000000,"data":{"object":{"id":"in_1"}}}`)
	header := signedHeader(payload)

	err := svc.IngestWebhook(ctx, "stripe", payload, header)
	if !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM payment_events", 0)
}

func TestIngestWebhookUnknownProvider(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 35)
	svc := newWebhookService(t, db, node)

	err := svc.IngestWebhook(ctx, "braintree", []byte(`{}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestIngestWebhookExpiredSessionExpiresOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 36)
	svc := newWebhookService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 5)
	orderID := seedPendingOrder(t, db, node, ticketTypeID, 1)

	payload := sessionEvent("evt_exp", "checkout.session.expired", orderID)
	if err := svc.IngestWebhook(ctx, "stripe", payload, signedHeader(payload)); err != nil {
		t.Fatalf("ingest expired event: %v", err)
	}

	assertOrderStatus(t, db, orderID, orderdomain.OrderStatusExpired)
	assertStock(t, db, ticketTypeID, 5)
	assertCount(t, db, "SELECT COUNT(1) FROM tickets", 0)
}

func newWebhookService(t *testing.T, db *gorm.DB, node *snowflake.Node) *paymentwebhook.Service {
	t.Helper()

	fakeClock := clock.NewFakeClock(time.Now())
	settlementSvc := settlement.NewService(settlement.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
	})
	orderSvc := orderservice.NewService(orderservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       orderrepo.Provide(),
		EventRepo:  eventrepo.Provide(),
		Storefront: config.NewStaticStorefrontConfigHolder(config.DefaultStorefrontConfig()),
		Checkout:   fakeCheckoutClient{},
		Clock:      fakeClock,
	})
	return paymentwebhook.NewService(paymentwebhook.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Cfg:           config.Config{Payment: config.PaymentConfig{StripeWebhookSecret: stripeSecret}},
		Clock:         fakeClock,
		Adapters:      adapters.NewRegistry(stripe.NewFactory()),
		Repo:          paymentrepo.Provide(),
		SettlementSvc: settlementSvc,
		OrderSvc:      orderSvc,
	})
}

func newNode(t *testing.T, id int64) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(id)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_wh_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE ticket_types (
			id BIGINT PRIMARY KEY,
			event_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			unit_price BIGINT NOT NULL,
			currency TEXT NOT NULL,
			total_stock BIGINT NOT NULL,
			available_stock BIGINT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			event_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			currency TEXT NOT NULL,
			subtotal_amount BIGINT NOT NULL,
			fee_amount BIGINT NOT NULL,
			total_amount BIGINT NOT NULL,
			payment_provider TEXT,
			provider_session_id TEXT,
			paid_at DATETIME,
			expires_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE order_items (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			ticket_type_id BIGINT NOT NULL,
			quantity BIGINT NOT NULL,
			unit_price BIGINT NOT NULL,
			line_amount BIGINT NOT NULL
		)`,
		`CREATE TABLE tickets (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			ticket_type_id BIGINT NOT NULL,
			event_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			code TEXT NOT NULL,
			issued_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payment_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			order_id BIGINT,
			payload TEXT,
			received_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events(provider, provider_event_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func seedTicketType(t *testing.T, db *gorm.DB, node *snowflake.Node, stock int64) snowflake.ID {
	t.Helper()

	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO ticket_types (id, event_id, name, unit_price, currency, total_stock, available_stock, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, node.Generate(), "General Admission", 4500, "USD", stock, stock, true, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed ticket type: %v", err)
	}
	return id
}

func seedPendingOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, ticketTypeID snowflake.ID, quantity int64) snowflake.ID {
	t.Helper()

	orderID := node.Generate()
	now := time.Now().UTC()
	subtotal := 4500 * quantity
	err := db.Exec(
		`INSERT INTO orders (id, user_id, event_id, status, currency, subtotal_amount, fee_amount, total_amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, node.Generate(), node.Generate(), orderdomain.OrderStatusPending, "USD", subtotal, 0, subtotal, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	err = db.Exec(
		`INSERT INTO order_items (id, order_id, ticket_type_id, quantity, unit_price, line_amount)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		node.Generate(), orderID, ticketTypeID, quantity, 4500, subtotal,
	).Error
	if err != nil {
		t.Fatalf("seed order item: %v", err)
	}
	return orderID
}

func sessionEvent(eventID, eventType string, orderID snowflake.ID) []byte {
	now := time.Now().Unix()
	return []byte(fmt.Sprintf(
		`{"id":"%s","type":"%s","created":%d,"data":{"object":{"id":"cs_%s","amount_total":9000,"currency":"usd","created":%d,"metadata":{"order_id":"%s"}}}}`,
		eventID, eventType, now, eventID, now, orderID.String(),
	))
}

func completedEvent(t *testing.T, eventID string, orderID snowflake.ID) ([]byte, http.Header) {
	t.Helper()
	payload := sessionEvent(eventID, "checkout.session.completed", orderID)
	return payload, signedHeader(payload)
}

func signedHeader(payload []byte) http.Header {
	now := time.Now().Unix()
	signedPayload := fmt.Sprintf("%d.%s", now, string(payload))
	mac := hmac.New(sha256.New, []byte(stripeSecret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))

	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now, signature))
	return header
}

func assertOrderStatus(t *testing.T, db *gorm.DB, orderID snowflake.ID, expected string) {
	t.Helper()

	var status string
	if err := db.Raw("SELECT status FROM orders WHERE id = ?", orderID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != expected {
		t.Fatalf("expected order status %s, got %s", expected, status)
	}
}

func assertStock(t *testing.T, db *gorm.DB, ticketTypeID snowflake.ID, expected int64) {
	t.Helper()

	var stock int64
	if err := db.Raw("SELECT available_stock FROM ticket_types WHERE id = ?", ticketTypeID).Scan(&stock).Error; err != nil {
		t.Fatalf("scan stock: %v", err)
	}
	if stock != expected {
		t.Fatalf("expected stock %d, got %d", expected, stock)
	}
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}
