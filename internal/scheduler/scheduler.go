package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/stagepass/internal/clock"
	orderdomain "github.com/smallbiznis/stagepass/internal/order/domain"
	orderservice "github.com/smallbiznis/stagepass/internal/order/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler configuration is invalid")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	OrderSvc  *orderservice.Service
	OrderRepo orderdomain.Repository
	Clock     clock.Clock
	Config    Config `optional:"true"`
}

// Scheduler sweeps pending orders whose hold window has lapsed. The provider
// normally reports expiry through a webhook; the sweep is the backstop for
// deliveries that never arrive.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	orderSvc  *orderservice.Service
	orderRepo orderdomain.Repository
	clock     clock.Clock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.OrderSvc == nil || p.OrderRepo == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		orderSvc:  p.OrderSvc,
		orderRepo: p.OrderRepo,
		clock:     p.Clock,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepExpired(ctx); err != nil {
				s.log.Warn("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepExpired expires overdue pending orders one batch at a time. Each
// transition goes through the same guarded update as the webhook path, so a
// concurrent settlement always wins.
func (s *Scheduler) SweepExpired(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.SweepTimeout)
	defer cancel()

	now := s.clock.Now()
	ids, err := s.orderRepo.ListOverduePending(ctx, s.db, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	var failed int
	for _, id := range ids {
		if err := s.orderSvc.Expire(ctx, id); err != nil {
			failed++
			s.log.Warn("expire order failed",
				zap.String("order_id", id.String()),
				zap.Error(err),
			)
		}
	}

	s.log.Info("expiry sweep finished",
		zap.Int("candidates", len(ids)),
		zap.Int("failed", failed),
	)
	return nil
}
