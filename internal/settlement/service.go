// Package settlement turns verified payment confirmations into paid orders
// and issued tickets. Everything here runs inside one transaction per
// confirmation: the paid flip, the stock decrements, and the ticket inserts
// commit together or not at all.
package settlement

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/stagepass/internal/clock"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/stagepass/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrStockInvariant reports a confirmed order that cannot be fulfilled
// without driving a stock counter below zero. The transaction is rolled
// back whole; the order stays pending for operator reconciliation.
var ErrStockInvariant = errors.New("stock_invariant_violation")

const (
	outcomeSettled        = "settled"
	outcomeDuplicate      = "duplicate"
	outcomeUnknownOrder   = "unknown_order"
	outcomeStale          = "stale"
	outcomeStockViolation = "stock_violation"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Settle applies a payment confirmation for the order. The guarded status
// flip is the single serialization point: of any number of concurrent or
// repeated confirmations for the same order, exactly one wins the flip and
// proceeds to decrement stock and issue tickets. Every other call observes
// a non-pending order and returns without touching inventory.
//
// Confirmations for unknown orders are accepted as no-ops so the provider
// stops retrying; the mismatch is logged for reconciliation.
func (s *Service) Settle(ctx context.Context, orderID snowflake.ID) error {
	outcome := outcomeSettled
	var issued int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		res := tx.Exec(
			`UPDATE orders
			 SET status = ?, paid_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			orderdomain.OrderStatusPaid,
			now,
			now,
			orderID,
			orderdomain.OrderStatusPending,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var status string
			if err := tx.Raw(
				`SELECT status FROM orders WHERE id = ?`,
				orderID,
			).Scan(&status).Error; err != nil {
				return err
			}
			switch status {
			case "":
				outcome = outcomeUnknownOrder
				s.log.Warn("confirmation for unknown order",
					zap.String("order_id", orderID.String()))
			case orderdomain.OrderStatusPaid:
				outcome = outcomeDuplicate
			default:
				outcome = outcomeStale
				s.log.Warn("confirmation for non-pending order",
					zap.String("order_id", orderID.String()),
					zap.String("status", status))
			}
			return nil
		}

		var order orderdomain.Order
		if err := tx.Raw(
			`SELECT id, user_id, event_id FROM orders WHERE id = ?`,
			orderID,
		).Scan(&order).Error; err != nil {
			return err
		}

		var items []orderdomain.OrderItem
		if err := tx.Raw(
			`SELECT id, order_id, ticket_type_id, quantity
			 FROM order_items
			 WHERE order_id = ?
			 ORDER BY id ASC`,
			orderID,
		).Scan(&items).Error; err != nil {
			return err
		}

		for _, item := range items {
			dec := tx.Exec(
				`UPDATE ticket_types
				 SET available_stock = available_stock - ?, updated_at = ?
				 WHERE id = ? AND available_stock >= ?`,
				item.Quantity,
				now,
				item.TicketTypeID,
				item.Quantity,
			)
			if dec.Error != nil {
				return dec.Error
			}
			if dec.RowsAffected == 0 {
				outcome = outcomeStockViolation
				return ErrStockInvariant
			}
		}

		for _, item := range items {
			for unit := int64(0); unit < item.Quantity; unit++ {
				if err := tx.Exec(
					`INSERT INTO tickets (
						id, order_id, ticket_type_id, event_id, user_id, code, issued_at
					) VALUES (?, ?, ?, ?, ?, ?, ?)`,
					s.genID.Generate(),
					orderID,
					item.TicketTypeID,
					order.EventID,
					order.UserID,
					ulid.Make().String(),
					now,
				).Error; err != nil {
					return err
				}
				issued++
			}
		}

		return nil
	})

	if errors.Is(err, ErrStockInvariant) {
		s.log.Error("settlement rolled back on stock floor",
			zap.String("order_id", orderID.String()))
		if s.obsMetrics != nil {
			s.obsMetrics.RecordStockViolation(ctx)
			s.obsMetrics.RecordSettlement(ctx, outcomeStockViolation)
		}
		return err
	}
	if err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordSettlement(ctx, outcome)
		if issued > 0 {
			s.obsMetrics.RecordTicketsIssued(ctx, issued)
		}
	}
	return nil
}
