package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/decisionlab/risk-engine/internal/apperrors"
	"github.com/decisionlab/risk-engine/internal/events"
	"github.com/decisionlab/risk-engine/internal/explain"
	"github.com/decisionlab/risk-engine/internal/features"
	"github.com/decisionlab/risk-engine/internal/metrics"
	"github.com/decisionlab/risk-engine/internal/service"
)

const auditTimeout = 2 * time.Second

func decodePayload(c *gin.Context, dst any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func (s *Server) decodeFeatures(c *gin.Context) (features.FeatureVector, bool) {
	var p features.Payload
	if err := decodePayload(c, &p); err != nil {
		apperrors.Respond(c, err)
		return features.FeatureVector{}, false
	}
	fv, err := features.FromPayload(p)
	if err != nil {
		apperrors.Respond(c, apperrors.NewValidationError(err.Error()))
		return features.FeatureVector{}, false
	}
	return fv, true
}

// record pushes a scoring event and an audit row after the response is
// decided. Both sinks fail open.
func (s *Server) record(c *gin.Context, event, caller string, start time.Time, rec service.DecisionRecord) {
	s.events.Emit(c.Request.Context(), events.Event{
		Event:        event,
		RequestID:    requestID(c),
		LatencyMS:    time.Since(start).Milliseconds(),
		Probability:  rec.Probability,
		Label:        rec.Label,
		Decision:     string(rec.Decision),
		ModelVersion: rec.ModelVersion,
	})
	if s.auditLog != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
			defer cancel()
			s.auditLog.Record(ctx, caller, event, rec)
		}()
	}
}

func countWarnings(warnings []string) {
	for _, w := range warnings {
		if strings.HasPrefix(w, "ood_warning:") {
			metrics.OODWarningsTotal.Inc()
		}
	}
}

// handleHealth reports process and store health without touching the model.
func (s *Server) handleHealth(c *gin.Context) {
	storeStatus := "disabled"
	if s.store.Enabled() {
		storeStatus = "ok"
		if err := s.store.HealthCheck(c.Request.Context()); err != nil {
			storeStatus = "unavailable"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"model_version": s.svc.ModelVersion(),
		"store":         storeStatus,
	})
}

func (s *Server) handleScore(c *gin.Context) {
	start := time.Now()
	fv, ok := s.decodeFeatures(c)
	if !ok {
		return
	}
	principal := currentPrincipal(c)
	rec := s.svc.Score(c.Request.Context(), principal.APIKey, fv, !principal.ReadOnly)

	metrics.DecisionsTotal.WithLabelValues(string(rec.Decision)).Inc()
	countWarnings(rec.Warnings)
	s.record(c, "score", principal.Suffix(), start, rec)
	c.JSON(http.StatusOK, rec)
}

type batchRequest struct {
	Transactions []features.Payload `json:"transactions"`
}

func (s *Server) handleBatchScore(c *gin.Context) {
	start := time.Now()
	var req batchRequest
	if err := decodePayload(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	if len(req.Transactions) == 0 {
		apperrors.Respond(c, apperrors.NewValidationError("transactions must not be empty"))
		return
	}
	if len(req.Transactions) > s.svc.BatchMaxRows() {
		apperrors.Respond(c, apperrors.NewPayloadTooLarge(
			fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Transactions), s.svc.BatchMaxRows())))
		return
	}

	fvs := make([]features.FeatureVector, 0, len(req.Transactions))
	for i, p := range req.Transactions {
		fv, err := features.FromPayload(p)
		if err != nil {
			apperrors.Respond(c, apperrors.NewValidationError(fmt.Sprintf("transactions[%d]: %v", i, err)))
			return
		}
		fvs = append(fvs, fv)
	}

	principal := currentPrincipal(c)
	recs, err := s.svc.ScoreBatch(c.Request.Context(), principal.APIKey, fvs, !principal.ReadOnly)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	for _, rec := range recs {
		metrics.DecisionsTotal.WithLabelValues(string(rec.Decision)).Inc()
		countWarnings(rec.Warnings)
	}
	s.events.Emit(c.Request.Context(), events.Event{
		Event:        "batch_score",
		RequestID:    requestID(c),
		LatencyMS:    time.Since(start).Milliseconds(),
		Count:        len(recs),
		ModelVersion: s.svc.ModelVersion(),
	})
	c.JSON(http.StatusOK, gin.H{
		"model_version": s.svc.ModelVersion(),
		"count":         len(recs),
		"results":       recs,
	})
}

func (s *Server) handleExplain(c *gin.Context) {
	start := time.Now()
	fv, ok := s.decodeFeatures(c)
	if !ok {
		return
	}
	principal := currentPrincipal(c)
	out := s.svc.Explain(c.Request.Context(), principal.APIKey, fv, !principal.ReadOnly)

	metrics.DecisionsTotal.WithLabelValues(string(out.Decision)).Inc()
	metrics.ExplanationsTotal.WithLabelValues(string(out.Explanation.Method)).Inc()
	countWarnings(out.Warnings)
	s.record(c, "explain", principal.Suffix(), start, out.DecisionRecord)
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGlobalExplain(c *gin.Context) {
	global, err := s.svc.GlobalExplain(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, apperrors.NewInternalError("global explanation failed", err))
		return
	}
	metrics.ExplanationsTotal.WithLabelValues(string(global.Method)).Inc()
	c.JSON(http.StatusOK, global)
}

func (s *Server) handleDrift(c *gin.Context) {
	principal := currentPrincipal(c)
	c.JSON(http.StatusOK, s.svc.DriftSummary(c.Request.Context(), principal.APIKey))
}

func (s *Server) handleModelInfo(c *gin.Context) {
	a := s.artifacts
	c.JSON(http.StatusOK, gin.H{
		"model_version":  a.Version,
		"model_type":     a.ModelType,
		"training_date":  a.TrainingDate,
		"features":       a.FeatureList,
		"threshold":      a.Threshold,
		"metrics":        a.Metrics,
		"limitations":    a.Limitations,
		"model_card":     a.ModelCard,
		"explain_method": string(explain.MethodKernel),
	})
}

func (s *Server) handleAuditRecent(c *gin.Context) {
	if s.auditLog == nil {
		apperrors.Respond(c, apperrors.NewConfigurationError("audit log is not configured", nil))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.Respond(c, apperrors.NewValidationError("limit must be an integer"))
			return
		}
		limit = n
	}
	entries, err := s.auditLog.Recent(c.Request.Context(), limit)
	if err != nil {
		apperrors.Respond(c, apperrors.NewInternalError("audit query failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
