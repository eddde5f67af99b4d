package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/stagepass/internal/cache"
	"github.com/smallbiznis/stagepass/internal/event/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.EventListingCache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.EventListingCache
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("event.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

// ListPublished returns events visible on the storefront, cached briefly to
// keep the landing read off the database.
func (s *Service) ListPublished(ctx context.Context) ([]domain.Event, error) {
	if s.cache != nil {
		if events, ok := s.cache.GetListing(); ok {
			return events, nil
		}
	}

	events, err := s.repo.ListPublished(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetListing(events)
	}
	return events, nil
}

// GetBySlug returns a published event with its ticket types.
func (s *Service) GetBySlug(ctx context.Context, rawSlug string) (*domain.EventDetail, error) {
	normalized := slug.Make(strings.TrimSpace(rawSlug))
	if normalized == "" {
		return nil, domain.ErrEventNotFound
	}

	event, err := s.repo.FindBySlug(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	if event == nil || event.Status != domain.EventStatusPublished {
		return nil, domain.ErrEventNotFound
	}

	ticketTypes, err := s.repo.ListTicketTypes(ctx, s.db, event.ID)
	if err != nil {
		return nil, err
	}

	return &domain.EventDetail{Event: *event, TicketTypes: ticketTypes}, nil
}

// GetTicketType loads a single ticket type for checkout validation.
func (s *Service) GetTicketType(ctx context.Context, id snowflake.ID) (*domain.TicketType, error) {
	item, err := s.repo.FindTicketType(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrTicketTypeNotFound
	}
	return item, nil
}
