package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/ticket/domain"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const qrSizePixels = 256

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("ticket.service"),
		repo: p.Repo,
	}
}

// ListForUser returns all tickets owned by the user, newest first.
func (s *Service) ListForUser(ctx context.Context, userID snowflake.ID) ([]domain.Ticket, error) {
	if userID == 0 {
		return nil, domain.ErrTicketNotFound
	}
	return s.repo.ListByUser(ctx, s.db, userID)
}

// LookupPublic resolves a scannable code to its public view. The lookup
// never mutates the ticket.
func (s *Service) LookupPublic(ctx context.Context, code string) (*domain.PublicTicket, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrTicketNotFound
	}
	item, err := s.repo.FindPublicByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrTicketNotFound
	}
	return item, nil
}

// RenderQR returns a PNG encoding the scannable code. The code is validated
// against storage first so the endpoint cannot be used as a QR generator for
// arbitrary content.
func (s *Service) RenderQR(ctx context.Context, code string) ([]byte, error) {
	ticket, err := s.LookupPublic(ctx, code)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(ticket.Code, qrcode.Medium, qrSizePixels)
}
