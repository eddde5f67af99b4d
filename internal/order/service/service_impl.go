package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	"github.com/smallbiznis/stagepass/internal/order/domain"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	EventRepo  eventdomain.Repository
	Storefront *config.StorefrontConfigHolder
	Checkout   paymentdomain.CheckoutClient
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	eventRepo  eventdomain.Repository
	storefront *config.StorefrontConfigHolder
	checkout   paymentdomain.CheckoutClient
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		storefront: p.Storefront,
		checkout:   p.Checkout,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Checkout validates the cart, persists a pending order, then asks the
// provider for a hosted session. The order row lands before the provider
// call so a confirmation webhook can always find it, even if the response
// to the client is lost.
func (s *Service) Checkout(ctx context.Context, userID snowflake.ID, lines []domain.CheckoutLine) (*domain.CheckoutResult, error) {
	if userID == 0 {
		return nil, domain.ErrOrderNotFound
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	storefront := s.storefront.Get()
	now := s.clock.Now()

	var (
		eventID  snowflake.ID
		subtotal int64
		items    []domain.OrderItem
		checkout []paymentdomain.CheckoutLineItem
	)
	seen := map[snowflake.ID]bool{}
	for _, line := range lines {
		if line.Quantity < int64(storefront.MinLineQuantity) || line.Quantity > int64(storefront.MaxLineQuantity) {
			return nil, domain.ErrInvalidQuantity
		}
		if line.TicketTypeID == 0 || seen[line.TicketTypeID] {
			return nil, domain.ErrTicketTypeInvalid
		}
		seen[line.TicketTypeID] = true

		ticketType, err := s.eventRepo.FindTicketType(ctx, s.db, line.TicketTypeID)
		if err != nil {
			return nil, err
		}
		if ticketType == nil || !ticketType.Active {
			return nil, domain.ErrTicketTypeInvalid
		}
		if eventID == 0 {
			eventID = ticketType.EventID
		} else if eventID != ticketType.EventID {
			return nil, domain.ErrMixedEvents
		}

		// Advisory only. Settlement re-checks under the real guard; this
		// rejects carts that obviously cannot be fulfilled.
		if ticketType.AvailableStock < line.Quantity {
			return nil, domain.ErrInsufficientStock
		}

		lineAmount := ticketType.UnitPrice * line.Quantity
		subtotal += lineAmount
		items = append(items, domain.OrderItem{
			ID:           s.genID.Generate(),
			TicketTypeID: ticketType.ID,
			Quantity:     line.Quantity,
			UnitPrice:    ticketType.UnitPrice,
			LineAmount:   lineAmount,
		})
		checkout = append(checkout, paymentdomain.CheckoutLineItem{
			Name:      ticketType.Name,
			UnitPrice: ticketType.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	fee := subtotal * storefront.ServiceFeeBasisPts / 10000
	order := domain.Order{
		ID:             s.genID.Generate(),
		UserID:         userID,
		EventID:        eventID,
		Status:         domain.OrderStatusPending,
		Currency:       strings.ToUpper(strings.TrimSpace(storefront.Currency)),
		SubtotalAmount: subtotal,
		FeeAmount:      fee,
		TotalAmount:    subtotal + fee,
		ExpiresAt:      now.Add(storefront.SessionExpiry()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if fee > 0 {
		checkout = append(checkout, paymentdomain.CheckoutLineItem{
			Name:      "Service fee",
			UnitPrice: fee,
			Quantity:  1,
		})
	}
	for i := range items {
		items[i].OrderID = order.ID
	}

	if err := s.repo.InsertOrder(ctx, s.db, &order, items); err != nil {
		return nil, err
	}

	session, err := s.checkout.CreateSession(ctx, paymentdomain.CheckoutSessionRequest{
		OrderID:    order.ID,
		EventID:    order.EventID,
		UserID:     order.UserID,
		Currency:   order.Currency,
		LineItems:  checkout,
		SuccessURL: renderRedirectURL(storefront.CheckoutSuccessURL, order.ID),
		CancelURL:  renderRedirectURL(storefront.CheckoutCancelURL, order.ID),
		ExpiresAt:  order.ExpiresAt,
	})
	if err != nil {
		s.log.Error("checkout session creation failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.repo.RecordSessionRef(ctx, s.db, order.ID, "stripe", session.ID, s.clock.Now()); err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCheckoutSession(ctx, "stripe")
	}

	return &domain.CheckoutResult{
		OrderID:     order.ID,
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
	}, nil
}

// GetForUser returns an order with its lines, owner only.
func (s *Service) GetForUser(ctx context.Context, userID snowflake.ID, orderID snowflake.ID) (*domain.OrderSummary, error) {
	order, err := s.repo.FindOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	return &domain.OrderSummary{Order: *order, Items: items}, nil
}

// Expire flips a pending order after the provider reports its session
// expired. Paid orders are left alone.
func (s *Service) Expire(ctx context.Context, orderID snowflake.ID) error {
	flipped, err := s.repo.MarkExpired(ctx, s.db, orderID, s.clock.Now())
	if err != nil {
		return err
	}
	if !flipped {
		s.log.Debug("expiry skipped", zap.String("order_id", orderID.String()))
	}
	return nil
}

func renderRedirectURL(template string, orderID snowflake.ID) string {
	return strings.ReplaceAll(template, "{ORDER_ID}", orderID.String())
}
