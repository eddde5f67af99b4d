package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	orderservice "github.com/smallbiznis/stagepass/internal/order/service"
	"github.com/smallbiznis/stagepass/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/settlement"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Cfg           config.Config
	Clock         clock.Clock
	Adapters      *adapters.Registry
	Repo          paymentdomain.Repository
	SettlementSvc *settlement.Service
	OrderSvc      *orderservice.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

// Service ingests raw provider webhooks: verify the signature, record the
// event exactly once, then hand the confirmation to settlement.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	cfg           config.Config
	clock         clock.Clock
	adapters      *adapters.Registry
	repo          paymentdomain.Repository
	settlementSvc *settlement.Service
	orderSvc      *orderservice.Service
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.webhook"),
		genID:         p.GenID,
		cfg:           p.Cfg,
		clock:         p.Clock,
		adapters:      p.Adapters,
		repo:          p.Repo,
		settlementSvc: p.SettlementSvc,
		orderSvc:      p.OrderSvc,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		Provider: provider,
		Config:   s.providerConfig(provider),
	})
	if err != nil {
		return err
	}

	// Nothing downstream runs on an unverified payload.
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		return err
	}
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	return s.processEvent(ctx, event)
}

func (s *Service) processEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	now := s.clock.Now()
	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		OrderID:         event.OrderID,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.dispatch(ctx, event); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	if inserted && s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		return s.settlementSvc.Settle(ctx, event.OrderID)
	case paymentdomain.EventTypeCheckoutExpired:
		return s.orderSvc.Expire(ctx, event.OrderID)
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) providerConfig(provider string) map[string]any {
	switch provider {
	case "stripe":
		return map[string]any{"webhook_secret": s.cfg.Payment.StripeWebhookSecret}
	default:
		return map[string]any{}
	}
}
