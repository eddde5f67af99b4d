package settlement_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/clock"
	orderdomain "github.com/smallbiznis/stagepass/internal/order/domain"
	"github.com/smallbiznis/stagepass/internal/settlement"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSettleIssuesTicketsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 20)
	svc := newSettlementService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 10)
	orderID := seedOrder(t, db, node, orderdomain.OrderStatusPending, []orderLine{{ticketTypeID, 3}})

	if err := svc.Settle(ctx, orderID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	assertOrderStatus(t, db, orderID, orderdomain.OrderStatusPaid)
	assertCount(t, db, countTicketsForOrder(orderID), 3)
	assertStock(t, db, ticketTypeID, 7)

	var paidAt *time.Time
	if err := db.Raw("SELECT paid_at FROM orders WHERE id = ?", orderID).Scan(&paidAt).Error; err != nil {
		t.Fatalf("scan paid_at: %v", err)
	}
	if paidAt == nil {
		t.Fatalf("expected paid_at to be set")
	}
}

func TestSettleDuplicateConfirmationIsNoOp(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 21)
	svc := newSettlementService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 5)
	orderID := seedOrder(t, db, node, orderdomain.OrderStatusPending, []orderLine{{ticketTypeID, 2}})

	if err := svc.Settle(ctx, orderID); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if err := svc.Settle(ctx, orderID); err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if err := svc.Settle(ctx, orderID); err != nil {
		t.Fatalf("third settle: %v", err)
	}

	assertCount(t, db, countTicketsForOrder(orderID), 2)
	assertStock(t, db, ticketTypeID, 3)
}

func TestSettleStockViolationRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 22)
	svc := newSettlementService(t, db, node)

	scarceID := seedTicketType(t, db, node, 1)
	plentyID := seedTicketType(t, db, node, 50)
	orderID := seedOrder(t, db, node, orderdomain.OrderStatusPending, []orderLine{
		{plentyID, 2},
		{scarceID, 2},
	})

	err := svc.Settle(ctx, orderID)
	if !errors.Is(err, settlement.ErrStockInvariant) {
		t.Fatalf("expected ErrStockInvariant, got %v", err)
	}

	// Whole transaction rolled back: no paid flip, no partial decrement,
	// no tickets.
	assertOrderStatus(t, db, orderID, orderdomain.OrderStatusPending)
	assertStock(t, db, scarceID, 1)
	assertStock(t, db, plentyID, 50)
	assertCount(t, db, countTicketsForOrder(orderID), 0)
}

func TestSettleCompetingOrdersOverLastUnit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 23)
	svc := newSettlementService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 1)
	firstID := seedOrder(t, db, node, orderdomain.OrderStatusPending, []orderLine{{ticketTypeID, 1}})
	secondID := seedOrder(t, db, node, orderdomain.OrderStatusPending, []orderLine{{ticketTypeID, 1}})

	if err := svc.Settle(ctx, firstID); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	err := svc.Settle(ctx, secondID)
	if !errors.Is(err, settlement.ErrStockInvariant) {
		t.Fatalf("expected ErrStockInvariant for second order, got %v", err)
	}

	assertOrderStatus(t, db, firstID, orderdomain.OrderStatusPaid)
	assertOrderStatus(t, db, secondID, orderdomain.OrderStatusPending)
	assertCount(t, db, countTicketsForOrder(firstID), 1)
	assertCount(t, db, countTicketsForOrder(secondID), 0)
	assertStock(t, db, ticketTypeID, 0)
}

func TestSettleUnknownOrderIsAccepted(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 24)
	svc := newSettlementService(t, db, node)

	if err := svc.Settle(ctx, node.Generate()); err != nil {
		t.Fatalf("settle unknown order: %v", err)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM tickets", 0)
}

func TestSettleExpiredOrderLeavesItAlone(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 25)
	svc := newSettlementService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 4)
	orderID := seedOrder(t, db, node, orderdomain.OrderStatusExpired, []orderLine{{ticketTypeID, 2}})

	if err := svc.Settle(ctx, orderID); err != nil {
		t.Fatalf("settle expired order: %v", err)
	}

	assertOrderStatus(t, db, orderID, orderdomain.OrderStatusExpired)
	assertStock(t, db, ticketTypeID, 4)
	assertCount(t, db, countTicketsForOrder(orderID), 0)
}

func TestSettledTicketCodesAreUnique(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node := newNode(t, 26)
	svc := newSettlementService(t, db, node)

	ticketTypeID := seedTicketType(t, db, node, 20)
	orderID := seedOrder(t, db, node, orderdomain.OrderStatusPending, []orderLine{{ticketTypeID, 10}})

	if err := svc.Settle(ctx, orderID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	var distinct int64
	if err := db.Raw("SELECT COUNT(DISTINCT code) FROM tickets WHERE order_id = ?", orderID).Scan(&distinct).Error; err != nil {
		t.Fatalf("count distinct codes: %v", err)
	}
	if distinct != 10 {
		t.Fatalf("expected 10 distinct codes, got %d", distinct)
	}
}

type orderLine struct {
	ticketTypeID snowflake.ID
	quantity     int64
}

func newSettlementService(t *testing.T, db *gorm.DB, node *snowflake.Node) *settlement.Service {
	t.Helper()
	return settlement.NewService(settlement.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Now()),
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

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
		`CREATE UNIQUE INDEX ux_tickets_code ON tickets(code)`,
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

func seedOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, status string, lines []orderLine) snowflake.ID {
	t.Helper()

	orderID := node.Generate()
	now := time.Now().UTC()
	var subtotal int64
	for _, line := range lines {
		subtotal += 4500 * line.quantity
	}
	err := db.Exec(
		`INSERT INTO orders (id, user_id, event_id, status, currency, subtotal_amount, fee_amount, total_amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, node.Generate(), node.Generate(), status, "USD", subtotal, 0, subtotal, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	for _, line := range lines {
		err := db.Exec(
			`INSERT INTO order_items (id, order_id, ticket_type_id, quantity, unit_price, line_amount)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			node.Generate(), orderID, line.ticketTypeID, line.quantity, 4500, 4500*line.quantity,
		).Error
		if err != nil {
			t.Fatalf("seed order item: %v", err)
		}
	}
	return orderID
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

func countTicketsForOrder(orderID snowflake.ID) string {
	return fmt.Sprintf("SELECT COUNT(1) FROM tickets WHERE order_id = %d", orderID)
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
