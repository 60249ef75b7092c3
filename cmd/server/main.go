package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/decisionlab/risk-engine/internal/audit"
	"github.com/decisionlab/risk-engine/internal/auth"
	"github.com/decisionlab/risk-engine/internal/config"
	"github.com/decisionlab/risk-engine/internal/drift"
	"github.com/decisionlab/risk-engine/internal/events"
	"github.com/decisionlab/risk-engine/internal/explain"
	"github.com/decisionlab/risk-engine/internal/model"
	"github.com/decisionlab/risk-engine/internal/ood"
	"github.com/decisionlab/risk-engine/internal/policy"
	"github.com/decisionlab/risk-engine/internal/ratelimit"
	"github.com/decisionlab/risk-engine/internal/server"
	"github.com/decisionlab/risk-engine/internal/service"
	"github.com/decisionlab/risk-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	artifacts, err := model.LoadArtifacts(cfg.ArtifactsDir)
	if err != nil {
		slog.Error("Failed to load model artifacts", "dir", cfg.ArtifactsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Model artifacts loaded",
		"version", artifacts.Version,
		"type", artifacts.ModelType,
		"features", len(artifacts.FeatureList),
	)

	storeClient := store.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
	defer storeClient.Close()
	if !storeClient.Enabled() {
		slog.Warn("Shared store unavailable, drift monitoring and explanation caching degrade gracefully")
	}

	detector := drift.NewDetector(
		drift.NewRedisStore(storeClient),
		artifacts.Baseline,
		artifacts.FeatureList,
		cfg.DriftZThreshold,
		cfg.DriftMinSamples,
		cfg.DriftTTL,
	)
	guardrail := ood.NewGuardrail(artifacts.Baseline, artifacts.FeatureList, cfg.OODZThreshold)

	pol, err := policy.New(policy.Thresholds{
		StepUp:  cfg.StepUpThreshold,
		Review:  cfg.ReviewThreshold,
		Decline: cfg.DeclineThreshold,
	}, cfg.LossPerEventUSD, cfg.LossAmtMultiplier, artifacts.Threshold)
	if err != nil {
		slog.Error("Invalid decision policy", "error", err)
		os.Exit(1)
	}

	var explainCache explain.Cache
	if storeClient.Enabled() {
		explainCache = storeClient
	}
	engine, err := explain.NewEngine(artifacts.Model, artifacts.FeatureList, artifacts.Background, explain.Options{
		TopK:          cfg.ExplainTopK,
		SampleBudget:  cfg.ExplainSampleBudget,
		MaxGlobalRows: cfg.GlobalExplainMaxRows,
		ModelVersion:  artifacts.Version,
		Cache:         explainCache,
	})
	if err != nil {
		slog.Error("Failed to build attribution engine", "error", err)
		os.Exit(1)
	}

	svc := service.New(service.Config{
		Model:        artifacts.Model,
		FeatureList:  artifacts.FeatureList,
		Policy:       pol,
		Drift:        detector,
		Guardrail:    guardrail,
		Explainer:    engine,
		GlobalSample: artifacts.GlobalSample,
		ModelVersion: artifacts.Version,
		BatchMaxRows: cfg.BatchMaxRows,
	})

	keyring, err := auth.NewKeyring(cfg.APIKey, cfg.APIKeysJSON, cfg.DefaultRPM)
	if err != nil {
		slog.Error("Failed to build API keyring", "error", err)
		os.Exit(1)
	}

	var auditLog *audit.Log
	if cfg.AuditDBPath != "" {
		auditLog, err = audit.Open(cfg.AuditDBPath)
		if err != nil {
			slog.Error("Failed to open audit log", "path", cfg.AuditDBPath, "error", err)
			os.Exit(1)
		}
		defer auditLog.Close()
	}

	srv := server.New(server.Config{
		Service:   svc,
		Keyring:   keyring,
		Limiter:   ratelimit.New(storeClient),
		Store:     storeClient,
		Events:    events.NewQueue(storeClient),
		AuditLog:  auditLog,
		Artifacts: artifacts,
		Env:       cfg.Env,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port, "env", cfg.Env)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	slog.Info("Server exited")
}
