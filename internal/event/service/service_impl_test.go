package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/cache"
	"github.com/smallbiznis/stagepass/internal/event/domain"
	eventrepo "github.com/smallbiznis/stagepass/internal/event/repository"
	eventservice "github.com/smallbiznis/stagepass/internal/event/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupEvents(t *testing.T, nodeID int64) (*gorm.DB, *snowflake.Node, *eventservice.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_event_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE events (
			id BIGINT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			venue TEXT,
			status TEXT NOT NULL,
			starts_at DATETIME NOT NULL,
			ends_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_events_slug ON events(slug)`,
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

	svc := eventservice.NewService(eventservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  eventrepo.Provide(),
		Cache: cache.NewEventListingCache(),
	})
	return db, node, svc
}

func seedEvent(t *testing.T, db *gorm.DB, node *snowflake.Node, name, slugValue, status string, startsAt time.Time) snowflake.ID {
	t.Helper()

	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO events (id, slug, name, description, venue, status, starts_at, ends_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, slugValue, name, "", "Riverside Hall", status, startsAt, startsAt.Add(4*time.Hour), now, now,
	).Error
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return id
}

func seedType(t *testing.T, db *gorm.DB, node *snowflake.Node, eventID snowflake.ID, name string, price, stock int64, active bool) snowflake.ID {
	t.Helper()

	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO ticket_types (id, event_id, name, unit_price, currency, total_stock, available_stock, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, eventID, name, price, "USD", stock, stock, active, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed ticket type: %v", err)
	}
	return id
}

func TestListPublishedFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	db, node, svc := setupEvents(t, 90)

	base := time.Now().UTC().Truncate(time.Second)
	seedEvent(t, db, node, "Later Show", "later-show", "published", base.Add(48*time.Hour))
	seedEvent(t, db, node, "Sooner Show", "sooner-show", "published", base.Add(24*time.Hour))
	seedEvent(t, db, node, "Hidden Draft", "hidden-draft", "draft", base.Add(12*time.Hour))

	items, err := svc.ListPublished(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(items))
	}
	if items[0].Slug != "sooner-show" || items[1].Slug != "later-show" {
		t.Fatalf("expected soonest first, got %s then %s", items[0].Slug, items[1].Slug)
	}
}

func TestListPublishedServesFromCache(t *testing.T) {
	ctx := context.Background()
	db, node, svc := setupEvents(t, 91)

	base := time.Now().UTC()
	seedEvent(t, db, node, "Cached Show", "cached-show", "published", base.Add(24*time.Hour))

	first, err := svc.ListPublished(ctx)
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 event, got %d", len(first))
	}

	// A row added after the cache warms stays invisible until the TTL lapses.
	seedEvent(t, db, node, "Fresh Show", "fresh-show", "published", base.Add(48*time.Hour))

	second, err := svc.ListPublished(ctx)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected cached listing of 1 event, got %d", len(second))
	}
}

func TestGetBySlugReturnsDetailWithTicketTypes(t *testing.T) {
	ctx := context.Background()
	db, node, svc := setupEvents(t, 92)

	eventID := seedEvent(t, db, node, "Launch Night", "launch-night", "published", time.Now().UTC().Add(24*time.Hour))
	seedType(t, db, node, eventID, "General Admission", 4500, 200, true)
	seedType(t, db, node, eventID, "VIP", 12000, 20, true)

	detail, err := svc.GetBySlug(ctx, "Launch Night")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.Event.ID != eventID {
		t.Fatalf("expected event %s, got %s", eventID, detail.Event.ID)
	}
	if len(detail.TicketTypes) != 2 {
		t.Fatalf("expected 2 ticket types, got %d", len(detail.TicketTypes))
	}
}

func TestGetBySlugHidesUnpublishedEvents(t *testing.T) {
	ctx := context.Background()
	db, node, svc := setupEvents(t, 93)

	seedEvent(t, db, node, "Secret Dry Run", "secret-dry-run", "draft", time.Now().UTC().Add(24*time.Hour))

	if _, err := svc.GetBySlug(ctx, "secret-dry-run"); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound for draft event, got %v", err)
	}
	if _, err := svc.GetBySlug(ctx, "never-existed"); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound for unknown slug, got %v", err)
	}
	if _, err := svc.GetBySlug(ctx, "   "); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound for blank slug, got %v", err)
	}
}

func TestGetTicketType(t *testing.T) {
	ctx := context.Background()
	db, node, svc := setupEvents(t, 94)

	eventID := seedEvent(t, db, node, "Launch Night", "launch-night", "published", time.Now().UTC().Add(24*time.Hour))
	typeID := seedType(t, db, node, eventID, "General Admission", 4500, 200, true)

	item, err := svc.GetTicketType(ctx, typeID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.ID != typeID || item.UnitPrice != 4500 {
		t.Fatalf("unexpected ticket type: %+v", item)
	}

	if _, err := svc.GetTicketType(ctx, node.Generate()); !errors.Is(err, domain.ErrTicketTypeNotFound) {
		t.Fatalf("expected ErrTicketTypeNotFound, got %v", err)
	}
}
