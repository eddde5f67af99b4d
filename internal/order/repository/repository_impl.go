package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.Order, items []domain.OrderItem) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO orders (
				id, user_id, event_id, status, currency, subtotal_amount,
				fee_amount, total_amount, payment_provider, provider_session_id,
				paid_at, expires_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID,
			order.UserID,
			order.EventID,
			order.Status,
			order.Currency,
			order.SubtotalAmount,
			order.FeeAmount,
			order.TotalAmount,
			order.PaymentProvider,
			order.ProviderSessionID,
			order.PaidAt,
			order.ExpiresAt,
			order.CreatedAt,
			order.UpdatedAt,
		).Error; err != nil {
			return err
		}

		for _, item := range items {
			if err := tx.Exec(
				`INSERT INTO order_items (
					id, order_id, ticket_type_id, quantity, unit_price, line_amount
				) VALUES (?, ?, ?, ?, ?, ?)`,
				item.ID,
				item.OrderID,
				item.TicketTypeID,
				item.Quantity,
				item.UnitPrice,
				item.LineAmount,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, event_id, status, currency, subtotal_amount,
			fee_amount, total_amount, payment_provider, provider_session_id,
			paid_at, expires_at, created_at, updated_at
		 FROM orders
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

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, ticket_type_id, quantity, unit_price, line_amount
		 FROM order_items
		 WHERE order_id = ?
		 ORDER BY id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) RecordSessionRef(ctx context.Context, db *gorm.DB, id snowflake.ID, provider string, sessionID string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_provider = ?, provider_session_id = ?, updated_at = ?
		 WHERE id = ?`,
		provider,
		sessionID,
		updatedAt,
		id,
	).Error
}

func (r *repo) ListOverduePending(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id
		 FROM orders
		 WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
		 ORDER BY expires_at ASC
		 LIMIT ?`,
		domain.OrderStatusPending,
		cutoff,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkExpired flips pending orders only; a paid order never expires.
func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, expiredAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusExpired,
		expiredAt,
		id,
		domain.OrderStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
