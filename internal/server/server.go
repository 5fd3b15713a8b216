package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/profitlens/profitlens/internal/alert/domain"
	"github.com/profitlens/profitlens/internal/config"
	customerdomain "github.com/profitlens/profitlens/internal/customer/domain"
	eventdomain "github.com/profitlens/profitlens/internal/event/domain"
	"github.com/profitlens/profitlens/internal/event/liveevents"
	invoicedomain "github.com/profitlens/profitlens/internal/invoice/domain"
	margindomain "github.com/profitlens/profitlens/internal/margin/domain"
	orgdomain "github.com/profitlens/profitlens/internal/organization/domain"
	pricingdomain "github.com/profitlens/profitlens/internal/pricing/domain"
	ratedomain "github.com/profitlens/profitlens/internal/rate/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServerParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	GenID  *snowflake.Node

	Events    eventdomain.Service
	Customers customerdomain.Service
	Orgs      orgdomain.Service
	Margins   margindomain.Aggregator
	Alerts    alertdomain.Service
	Rates     ratedomain.Manager
	Pricing   pricingdomain.Service
	Invoices  invoicedomain.Repository
	Hub       *liveevents.Hub
}

type Server struct {
	log       *zap.Logger
	db        *gorm.DB
	events    eventdomain.Service
	customers customerdomain.Service
	orgs      orgdomain.Service
	margins   margindomain.Aggregator
	alerts    alertdomain.Service
	rates     ratedomain.Manager
	pricing   pricingdomain.Service
	invoices  invoicedomain.Repository
	hub       *liveevents.Hub
	genID     *snowflake.Node
}

func New(p ServerParam) *Server {
	return &Server{
		log:       p.Log.Named("server"),
		db:        p.DB,
		events:    p.Events,
		customers: p.Customers,
		orgs:      p.Orgs,
		margins:   p.Margins,
		alerts:    p.Alerts,
		rates:     p.Rates,
		pricing:   p.Pricing,
		invoices:  p.Invoices,
		hub:       p.Hub,
		genID:     p.GenID,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")

	admin := api.Group("/admin")
	{
		admin.POST("/organizations", s.createOrganization)
		admin.GET("/organizations", s.listOrganizations)
		admin.PATCH("/organizations/:id", s.updateOrganizationSettings)
		admin.POST("/rates", s.upsertGlobalRate)
		admin.GET("/rates", s.listGlobalRates)
		admin.POST("/pricing/sync", s.syncPricing)
		admin.GET("/pricing/drifts", s.listDrifts)
		admin.POST("/pricing/drifts/:id/apply", s.applyDrift)
		admin.POST("/pricing/drifts/:id/ignore", s.ignoreDrift)
	}

	tenant := api.Group("", s.requireOrg())
	{
		tenant.POST("/events", s.ingestEvents)
		tenant.GET("/events/:id", s.getEvent)
		tenant.POST("/telemetry_events", s.ingestTelemetryEvents)

		tenant.GET("/margins/organization", s.organizationMargin)
		tenant.GET("/margins/customers", s.customerMargins)
		tenant.GET("/margins/event_types", s.eventTypeMargins)
		tenant.GET("/costs/vendors", s.vendorCosts)
		tenant.GET("/costs/models", s.modelCosts)

		tenant.GET("/alerts", s.listAlerts)
		tenant.POST("/alerts/:id/acknowledge", s.acknowledgeAlert)

		tenant.POST("/rates", s.upsertOrgRate)
		tenant.GET("/rates", s.listOrgRates)

		tenant.POST("/subscriptions/revenue", s.replaceSubscriptionRevenue)
		tenant.POST("/invoices", s.upsertInvoice)

		tenant.GET("/live/events", s.streamEvents)
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// abortError maps domain sentinels onto HTTP statuses. Unknown errors are a
// 500 with a generic body; details stay in the log.
func (s *Server) abortError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, eventdomain.ErrEventNotFound),
		errors.Is(err, orgdomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, alertdomain.ErrNotFound),
		errors.Is(err, pricingdomain.ErrDriftNotFound):
		status = http.StatusNotFound
	case errors.Is(err, alertdomain.ErrAlreadyAcknowledged),
		errors.Is(err, pricingdomain.ErrDriftResolved),
		errors.Is(err, pricingdomain.ErrStaleDrift),
		errors.Is(err, ratedomain.ErrDuplicateActiveRate):
		status = http.StatusConflict
	case errors.Is(err, eventdomain.ErrInvalidOrganization),
		errors.Is(err, eventdomain.ErrInvalidIdempotencyKey),
		errors.Is(err, eventdomain.ErrInvalidCustomer),
		errors.Is(err, eventdomain.ErrInvalidEventType),
		errors.Is(err, eventdomain.ErrInvalidRevenue),
		errors.Is(err, eventdomain.ErrInvalidOccurredAt),
		errors.Is(err, eventdomain.ErrInvalidVendorCost),
		errors.Is(err, ratedomain.ErrInvalidRate),
		errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidDriftThreshold):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(Start),
)

// Start binds the HTTP listener to the fx lifecycle.
func Start(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, srv *Server) {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
