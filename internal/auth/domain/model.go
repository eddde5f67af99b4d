// Package domain contains core types for storefront authentication.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SessionLifetime bounds how long a login stays valid. The auth cookie
// max-age follows the same window.
const SessionLifetime = 30 * 24 * time.Hour

// User is a storefront account.
type User struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Email        string       `json:"email" gorm:"type:text;not null;uniqueIndex"`
	DisplayName  string       `json:"display_name" gorm:"type:text"`
	PasswordHash string       `json:"-" gorm:"type:text;not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Session is a persisted login. Only the SHA-256 hash of the opaque token is
// stored; the token itself exists client-side only.
type Session struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID           snowflake.ID `json:"user_id" gorm:"not null;index"`
	SessionTokenHash string       `json:"-" gorm:"type:text;not null;uniqueIndex"`
	UserAgent        string       `json:"user_agent" gorm:"type:text"`
	ExpiresAt        time.Time    `json:"expires_at" gorm:"not null;index"`
	RevokedAt        *time.Time   `json:"revoked_at"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

type Repository interface {
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	InsertSession(ctx context.Context, db *gorm.DB, session *Session) error
	FindSessionByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*Session, error)
	RevokeSession(ctx context.Context, db *gorm.DB, tokenHash string, revokedAt time.Time) error
}
