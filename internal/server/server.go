package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/stagepass/internal/auth"
	"github.com/smallbiznis/stagepass/internal/auth/session"
	authservice "github.com/smallbiznis/stagepass/internal/auth/service"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	"github.com/smallbiznis/stagepass/internal/event"
	eventservice "github.com/smallbiznis/stagepass/internal/event/service"
	"github.com/smallbiznis/stagepass/internal/migration"
	"github.com/smallbiznis/stagepass/internal/observability"
	obsmiddleware "github.com/smallbiznis/stagepass/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	obstracing "github.com/smallbiznis/stagepass/internal/observability/tracing"
	"github.com/smallbiznis/stagepass/internal/order"
	orderservice "github.com/smallbiznis/stagepass/internal/order/service"
	"github.com/smallbiznis/stagepass/internal/payment"
	"github.com/smallbiznis/stagepass/internal/payment/webhook"
	"github.com/smallbiznis/stagepass/internal/ratelimit"
	"github.com/smallbiznis/stagepass/internal/settlement"
	"github.com/smallbiznis/stagepass/internal/ticket"
	ticketservice "github.com/smallbiznis/stagepass/internal/ticket/service"
	"github.com/smallbiznis/stagepass/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	db.Module,
	migration.Module,
	clock.Module,
	fx.Provide(registerGin),
	auth.Module,
	session.Module,
	event.Module,
	order.Module,
	ticket.Module,
	settlement.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	authsvc       *authservice.Service
	sessions      *session.Manager
	genID         *snowflake.Node
	eventSvc      *eventservice.Service
	orderSvc      *orderservice.Service
	ticketSvc     *ticketservice.Service
	webhookSvc    *webhook.Service
	limiter       *ratelimit.StorefrontLimiter
	lookupLimiter *rateLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Authsvc    *authservice.Service
	Sessions   *session.Manager
	GenID      *snowflake.Node
	EventSvc   *eventservice.Service
	OrderSvc   *orderservice.Service
	TicketSvc  *ticketservice.Service
	WebhookSvc *webhook.Service
	Limiter    *ratelimit.StorefrontLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		authsvc:       p.Authsvc,
		sessions:      p.Sessions,
		genID:         p.GenID,
		eventSvc:      p.EventSvc,
		orderSvc:      p.OrderSvc,
		ticketSvc:     p.TicketSvc,
		webhookSvc:    p.WebhookSvc,
		limiter:       p.Limiter,
		lookupLimiter: newRateLimiter(60, time.Minute),
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerPublicRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Catalog --------
	api.GET("/events", s.ListEvents)
	api.GET("/events/:slug", s.GetEventBySlug)

	// -------- Checkout --------
	api.POST("/checkout", s.AuthRequired(), s.CheckoutRateLimit(), s.Checkout)

	// -------- Orders --------
	api.GET("/orders/:id", s.AuthRequired(), s.GetOrderByID)

	// -------- Tickets --------
	api.GET("/tickets", s.AuthRequired(), s.ListTickets)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/public")

	public.GET("/tickets/:code", s.PublicLookupRateLimit(), s.LookupTicket)
	public.GET("/tickets/:code/qr", s.PublicLookupRateLimit(), s.TicketQR)

	// Provider callbacks carry their own authentication via signatures.
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}
