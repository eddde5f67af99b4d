package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/ticket/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Ticket, error) {
	var items []domain.Ticket
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, ticket_type_id, event_id, user_id, code, issued_at
		 FROM tickets
		 WHERE user_id = ?
		 ORDER BY issued_at DESC, id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindPublicByCode(ctx context.Context, db *gorm.DB, code string) (*domain.PublicTicket, error) {
	var item domain.PublicTicket
	err := db.WithContext(ctx).Raw(
		`SELECT t.code, e.name AS event_name, e.slug AS event_slug,
			tt.name AS ticket_type_name, e.starts_at, e.venue, t.issued_at
		 FROM tickets t
		 JOIN events e ON e.id = t.event_id
		 JOIN ticket_types tt ON tt.id = t.ticket_type_id
		 WHERE t.code = ?
		 LIMIT 1`,
		code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Code == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CountByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM tickets WHERE order_id = ?`,
		orderID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
