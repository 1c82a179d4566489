// Package server exposes the HTTP API (gin) and the gRPC health service.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/auth"
	"github.com/YorickdeJong/energy-contracts/internal/services/onboarding"
	"github.com/YorickdeJong/energy-contracts/internal/services/tenancy"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Onboarding     *onboarding.Service
	Tenancies      *tenancy.Service
	Store          Pinger
	Auth           auth.Config
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type handlers struct {
	onboarding *onboarding.Service
	tenancies  *tenancy.Service
	store      Pinger
	logger     *slog.Logger
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = constants.MaxUploadSize
	}
	h := &handlers{onboarding: d.Onboarding, tenancies: d.Tenancies, store: d.Store, logger: d.Logger}

	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery(d.Logger))
	router.Use(RequestLogger(d.Logger))

	router.GET("/health", h.health)

	api := router.Group("/api")
	api.Use(Authenticate(d.Auth))

	landlord := RequireRole(string(constants.RoleLandlord))
	ob := api.Group("/onboarding", landlord)
	{
		ob.POST("/households", h.createHousehold)
		ob.GET("/households/:id/agreements", h.listAgreements)
		ob.POST("/tenancy/upload", limitBody(d.MaxUploadBytes), h.uploadAgreement)
		ob.POST("/tenancy/confirm", h.confirmTenancy)
		ob.GET("/tenancy/:id", h.getAgreement)
		ob.POST("/tenancy/:id/process", h.processAgreement)
		ob.GET("/status", h.onboardingStatus)
	}

	ten := api.Group("/tenancies", landlord)
	{
		ten.GET("", h.listTenancies)
		ten.GET("/export", h.exportTenancies)
		ten.GET("/:id", h.getTenancy)
		ten.POST("/:id/activate", h.activateTenancy)
		ten.POST("/:id/move-out", h.startMoveOut)
		ten.POST("/:id/moved-out", h.markMovedOut)
		ten.POST("/:id/renters", h.addRenter)
	}
	return router
}

func (h *handlers) health(c *gin.Context) {
	resp := gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("health.store_unreachable", "error", err)
			resp["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
