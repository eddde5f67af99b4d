package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	authdomain "github.com/smallbiznis/stagepass/internal/auth/domain"
	"github.com/smallbiznis/stagepass/internal/auth/password"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	"gorm.io/gorm"
)

const (
	demoUserEmail    = "demo@stagepass.dev"
	demoUserPassword = "demo1234"
	demoUserDisplay  = "Demo Attendee"
	demoEventName    = "StagePass Launch Night"
)

// EnsureDemoData seeds a demo account and a published event so a fresh
// install has something to sell. Seeding is idempotent.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDemoUserTx(ctx, tx, node); err != nil {
			return err
		}
		return ensureDemoEventTx(ctx, tx, node)
	})
}

func ensureDemoUserTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&authdomain.User{}).
		Where("email = ?", demoUserEmail).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := password.Hash(demoUserPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return tx.WithContext(ctx).Create(&authdomain.User{
		ID:           node.Generate(),
		Email:        demoUserEmail,
		DisplayName:  demoUserDisplay,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error
}

func ensureDemoEventTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	eventSlug := slug.Make(demoEventName)

	var count int64
	if err := tx.WithContext(ctx).Model(&eventdomain.Event{}).
		Where("slug = ?", eventSlug).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	event := eventdomain.Event{
		ID:          node.Generate(),
		Slug:        eventSlug,
		Name:        demoEventName,
		Description: "An evening of live music to open the season.",
		Venue:       "Riverside Hall",
		Status:      eventdomain.EventStatusPublished,
		StartsAt:    now.AddDate(0, 1, 0),
		EndsAt:      now.AddDate(0, 1, 0).Add(4 * time.Hour),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}

	ticketTypes := []eventdomain.TicketType{
		{
			ID:             node.Generate(),
			EventID:        event.ID,
			Name:           "General Admission",
			UnitPrice:      4500,
			Currency:       "USD",
			TotalStock:     200,
			AvailableStock: 200,
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:             node.Generate(),
			EventID:        event.ID,
			Name:           "VIP",
			UnitPrice:      12000,
			Currency:       "USD",
			TotalStock:     20,
			AvailableStock: 20,
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	return tx.WithContext(ctx).Create(&ticketTypes).Error
}
