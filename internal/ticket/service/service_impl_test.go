package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/ticket/domain"
	ticketrepo "github.com/smallbiznis/stagepass/internal/ticket/repository"
	ticketservice "github.com/smallbiznis/stagepass/internal/ticket/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func setupTickets(t *testing.T, nodeID int64) (*gorm.DB, *snowflake.Node, *ticketservice.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_ticket_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE events (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			venue TEXT,
			status TEXT NOT NULL,
			starts_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
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
		`CREATE TABLE tickets (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			ticket_type_id BIGINT NOT NULL,
			event_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			issued_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := ticketservice.NewService(ticketservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: ticketrepo.Provide(),
	})
	return db, node, svc
}

func seedIssuedTicket(t *testing.T, db *gorm.DB, node *snowflake.Node, userID snowflake.ID, code string, issuedAt time.Time) {
	t.Helper()

	eventID := node.Generate()
	typeID := node.Generate()
	now := time.Now().UTC()

	stmts := []struct {
		query string
		args  []interface{}
	}{
		{
			`INSERT INTO events (id, name, slug, venue, status, starts_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			[]interface{}{eventID, "Launch Night", "launch-night", "Riverside Hall", "published", now.Add(24 * time.Hour), now, now},
		},
		{
			`INSERT INTO ticket_types (id, event_id, name, unit_price, currency, total_stock, available_stock, active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]interface{}{typeID, eventID, "General Admission", 4500, "USD", 100, 100, true, now, now},
		},
		{
			`INSERT INTO tickets (id, order_id, ticket_type_id, event_id, user_id, code, issued_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]interface{}{node.Generate(), node.Generate(), typeID, eventID, userID, code, issuedAt},
		},
	}
	for _, s := range stmts {
		if err := db.Exec(s.query, s.args...).Error; err != nil {
			t.Fatalf("seed exec failed: %v", err)
		}
	}
}

func TestListForUserReturnsOwnTicketsNewestFirst(t *testing.T) {
	ctx := context.Background()
	db, node, svc := setupTickets(t, 80)

	owner := node.Generate()
	other := node.Generate()
	base := time.Now().UTC().Truncate(time.Second)

	seedIssuedTicket(t, db, node, owner, "CODEOLD", base.Add(-time.Hour))
	seedIssuedTicket(t, db, node, owner, "CODENEW", base)
	seedIssuedTicket(t, db, node, other, "CODEOTHER", base)

	items, err := svc.ListForUser(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(items))
	}
	if items[0].Code != "CODENEW" || items[1].Code != "CODEOLD" {
		t.Fatalf("expected newest first, got %s then %s", items[0].Code, items[1].Code)
	}
}

func TestLookupPublicCarriesNoOwnerIdentity(t *testing.T) {
	ctx := context.Background()
	db, node, svc := setupTickets(t, 81)

	owner := node.Generate()
	seedIssuedTicket(t, db, node, owner, "CODEPUB", time.Now().UTC())

	item, err := svc.LookupPublic(ctx, "  CODEPUB ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if item.Code != "CODEPUB" {
		t.Fatalf("expected code CODEPUB, got %s", item.Code)
	}
	if item.EventName != "Launch Night" || item.EventSlug != "launch-night" {
		t.Fatalf("expected event fields, got %+v", item)
	}
	if item.TicketTypeName != "General Admission" || item.Venue != "Riverside Hall" {
		t.Fatalf("expected type and venue fields, got %+v", item)
	}
}

func TestLookupPublicUnknownCode(t *testing.T) {
	ctx := context.Background()
	_, _, svc := setupTickets(t, 82)

	if _, err := svc.LookupPublic(ctx, "NOPE"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
	if _, err := svc.LookupPublic(ctx, "   "); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound for blank code, got %v", err)
	}
}

func TestRenderQRProducesPNGForKnownCode(t *testing.T) {
	ctx := context.Background()
	db, node, svc := setupTickets(t, 83)

	seedIssuedTicket(t, db, node, node.Generate(), "CODEQR", time.Now().UTC())

	png, err := svc.RenderQR(ctx, "CODEQR")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatalf("expected PNG output")
	}
}

func TestRenderQRRefusesUnknownCode(t *testing.T) {
	ctx := context.Background()
	_, _, svc := setupTickets(t, 84)

	if _, err := svc.RenderQR(ctx, "UNKNOWN"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}
