package server

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/decisionlab/risk-engine/internal/apperrors"
	"github.com/decisionlab/risk-engine/internal/auth"
	"github.com/decisionlab/risk-engine/internal/metrics"
)

// Context keys set by the middleware chain.
const (
	ctxRequestID = "request_id"
	ctxPrincipal = "principal"
)

// RequestTracing assigns a request id, echoes it and the latency back as
// headers, and writes one JSON log line per request.
func RequestTracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header("x-request-id", requestID)

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		c.Header("x-latency-ms", strconv.FormatInt(latency.Milliseconds(), 10))

		slog.Info("http_request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

// Authenticate resolves the X-API-Key header into a principal.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := s.keyring.Resolve(c.GetHeader("X-API-Key"))
		if err != nil {
			status := 403
			if err == auth.ErrMissingKey {
				status = 401
			}
			apperrors.Respond(c, apperrors.NewAuthError(err.Error(), status))
			return
		}
		c.Set(ctxPrincipal, principal)
		c.Next()
	}
}

// RateLimit enforces the principal's per-minute budget.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := currentPrincipal(c)
		res := s.limiter.Allow(c.Request.Context(), principal.APIKey, principal.RPM)
		if !res.Allowed {
			metrics.RateLimitedTotal.Inc()
			retry := res.RetryAfter
			if retry <= 0 {
				retry = 10 * time.Second
			}
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			apperrors.Respond(c, apperrors.NewRateLimitError(retry))
			return
		}
		c.Next()
	}
}

// RequireAdmin gates admin-only routes.
func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentPrincipal(c).IsAdmin() {
			apperrors.Respond(c, apperrors.NewAuthError("admin role required", 403))
			return
		}
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) auth.Principal {
	v, _ := c.Get(ctxPrincipal)
	p, _ := v.(auth.Principal)
	return p
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
