// Package server exposes the risk decision service over HTTP.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/decisionlab/risk-engine/internal/apperrors"
	"github.com/decisionlab/risk-engine/internal/audit"
	"github.com/decisionlab/risk-engine/internal/auth"
	"github.com/decisionlab/risk-engine/internal/events"
	"github.com/decisionlab/risk-engine/internal/metrics"
	"github.com/decisionlab/risk-engine/internal/model"
	"github.com/decisionlab/risk-engine/internal/ratelimit"
	"github.com/decisionlab/risk-engine/internal/service"
	"github.com/decisionlab/risk-engine/internal/store"
)

// Server holds the HTTP surface and its collaborators.
type Server struct {
	svc       *service.Service
	keyring   *auth.Keyring
	limiter   *ratelimit.Limiter
	store     *store.Client
	events    *events.Queue
	auditLog  *audit.Log // nil when audit is disabled
	artifacts *model.Artifacts
	env       string
}

// Config collects everything the server needs.
type Config struct {
	Service   *service.Service
	Keyring   *auth.Keyring
	Limiter   *ratelimit.Limiter
	Store     *store.Client
	Events    *events.Queue
	AuditLog  *audit.Log
	Artifacts *model.Artifacts
	Env       string
}

func New(cfg Config) *Server {
	return &Server{
		svc:       cfg.Service,
		keyring:   cfg.Keyring,
		limiter:   cfg.Limiter,
		store:     cfg.Store,
		events:    cfg.Events,
		auditLog:  cfg.AuditLog,
		artifacts: cfg.Artifacts,
		env:       cfg.Env,
	}
}

// Router builds the gin engine with the full middleware chain and routes.
func (s *Server) Router() *gin.Engine {
	if s.env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(apperrors.RecoveryHandler())
	r.Use(RequestTracing())
	r.Use(metrics.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-Key", "x-request-id"},
		ExposeHeaders:    []string{"x-request-id", "x-latency-ms", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", metrics.Handler())
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/v1", s.Authenticate(), s.RateLimit())
	{
		v1.POST("/score", s.handleScore)
		v1.POST("/batch-score", s.handleBatchScore)
		v1.POST("/explain", s.handleExplain)
		v1.GET("/global-explain", s.handleGlobalExplain)
		v1.GET("/drift", s.handleDrift)
		v1.GET("/model-info", s.handleModelInfo)
		v1.GET("/audit/recent", s.RequireAdmin(), s.handleAuditRecent)
	}

	return r
}
