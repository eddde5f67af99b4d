package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/event/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListPublished(ctx context.Context, db *gorm.DB) ([]domain.Event, error) {
	var items []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, slug, name, description, venue, status, starts_at, ends_at,
			created_at, updated_at
		 FROM events
		 WHERE status = ?
		 ORDER BY starts_at ASC`,
		domain.EventStatusPublished,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Event, error) {
	var item domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, slug, name, description, venue, status, starts_at, ends_at,
			created_at, updated_at
		 FROM events
		 WHERE slug = ?
		 LIMIT 1`,
		slug,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListTicketTypes(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]domain.TicketType, error) {
	var items []domain.TicketType
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_id, name, unit_price, currency, total_stock,
			available_stock, active, created_at, updated_at
		 FROM ticket_types
		 WHERE event_id = ?
		 ORDER BY unit_price ASC`,
		eventID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindTicketType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.TicketType, error) {
	var item domain.TicketType
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_id, name, unit_price, currency, total_stock,
			available_stock, active, created_at, updated_at
		 FROM ticket_types
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
