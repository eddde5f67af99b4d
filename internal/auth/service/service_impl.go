package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/auth/domain"
	"github.com/smallbiznis/stagepass/internal/auth/password"
	"github.com/smallbiznis/stagepass/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionTokenBytes = 32
	minPasswordLength = 8
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("auth.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

// Signup creates an account and opens a session for it.
func (s *Service) Signup(ctx context.Context, email, plaintext, displayName, userAgent string) (*domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, "", domain.ErrInvalidCredentials
	}
	if len(plaintext) < minPasswordLength {
		return nil, "", domain.ErrWeakPassword
	}

	existing, err := s.repo.FindUserByEmail(ctx, s.db, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", domain.ErrEmailTaken
	}

	hash, err := password.Hash(plaintext)
	if err != nil {
		return nil, "", err
	}

	now := s.clock.Now()
	user := domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertUser(ctx, s.db, &user); err != nil {
		return nil, "", err
	}

	token, err := s.openSession(ctx, user.ID, userAgent)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, plaintext, userAgent string) (*domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		return nil, "", domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindUserByEmail(ctx, s.db, email)
	if err != nil {
		return nil, "", err
	}
	if user == nil || !password.Verify(plaintext, user.PasswordHash) {
		return nil, "", domain.ErrInvalidCredentials
	}

	token, err := s.openSession(ctx, user.ID, userAgent)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Logout revokes the session behind the token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.repo.RevokeSession(ctx, s.db, hashToken(token), s.clock.Now())
}

// Authenticate resolves a session token to its user id.
func (s *Service) Authenticate(ctx context.Context, token string) (snowflake.ID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, domain.ErrSessionInvalid
	}

	session, err := s.repo.FindSessionByTokenHash(ctx, s.db, hashToken(token))
	if err != nil {
		return 0, err
	}
	if session == nil || session.RevokedAt != nil {
		return 0, domain.ErrSessionInvalid
	}
	if !s.clock.Now().Before(session.ExpiresAt) {
		return 0, domain.ErrSessionInvalid
	}
	return session.UserID, nil
}

func (s *Service) openSession(ctx context.Context, userID snowflake.ID, userAgent string) (string, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.clock.Now()
	session := domain.Session{
		ID:               s.genID.Generate(),
		UserID:           userID,
		SessionTokenHash: hashToken(token),
		UserAgent:        strings.TrimSpace(userAgent),
		ExpiresAt:        now.Add(domain.SessionLifetime),
		CreatedAt:        now,
	}
	if err := s.repo.InsertSession(ctx, s.db, &session); err != nil {
		return "", err
	}
	return token, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
