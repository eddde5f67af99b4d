package migration

import (
	authdomain "github.com/smallbiznis/stagepass/internal/auth/domain"
	"github.com/smallbiznis/stagepass/internal/config"
	eventdomain "github.com/smallbiznis/stagepass/internal/event/domain"
	orderdomain "github.com/smallbiznis/stagepass/internal/order/domain"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
	"github.com/smallbiznis/stagepass/internal/seed"
	ticketdomain "github.com/smallbiznis/stagepass/internal/ticket/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Versioned migrations target postgres. Other dialects are for
			// local development and derive the schema from the models.
			if err := conn.AutoMigrate(
				&authdomain.User{},
				&authdomain.Session{},
				&eventdomain.Event{},
				&eventdomain.TicketType{},
				&orderdomain.Order{},
				&orderdomain.OrderItem{},
				&ticketdomain.Ticket{},
				&paymentdomain.EventRecord{},
			); err != nil {
				return err
			}
		}

		if cfg.Bootstrap.SeedDemoData {
			return seed.EnsureDemoData(conn)
		}
		return nil
	}),
)
