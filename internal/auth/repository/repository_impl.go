package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/stagepass/internal/auth/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var item domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, display_name, password_hash, created_at, updated_at
		 FROM users
		 WHERE email = ?
		 LIMIT 1`,
		email,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, session *domain.Session) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sessions (id, user_id, session_token_hash, user_agent, expires_at, revoked_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.SessionTokenHash,
		session.UserAgent,
		session.ExpiresAt,
		session.RevokedAt,
		session.CreatedAt,
	).Error
}

func (r *repo) FindSessionByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.Session, error) {
	var item domain.Session
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, session_token_hash, user_agent, expires_at, revoked_at, created_at
		 FROM sessions
		 WHERE session_token_hash = ?
		 LIMIT 1`,
		tokenHash,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) RevokeSession(ctx context.Context, db *gorm.DB, tokenHash string, revokedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sessions
		 SET revoked_at = ?
		 WHERE session_token_hash = ? AND revoked_at IS NULL`,
		revokedAt,
		tokenHash,
	).Error
}
