// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// PharmaTrade Autoreply — webhook service
//
// Entry point for the autoreply service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL (trade data, outcomes, subscriptions) and
//     optionally Redis (result outbox)
//  3. Builds the mail provider (Graph with OAuth2, or the file-backed mock)
//  4. Wires the LLM agents into the per-scenario pipeline registry
//  5. Starts the worker pool and the webhook HTTP server
//  6. Registers the Graph inbox subscription once the endpoint is live
//  7. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pharmatrade/autoreply/internal/agents"
	"github.com/pharmatrade/autoreply/internal/allowlist"
	"github.com/pharmatrade/autoreply/internal/config"
	"github.com/pharmatrade/autoreply/internal/dedup"
	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
	"github.com/pharmatrade/autoreply/internal/outbox"
	"github.com/pharmatrade/autoreply/internal/outcome"
	"github.com/pharmatrade/autoreply/internal/pipeline"
	"github.com/pharmatrade/autoreply/internal/subscription"
	"github.com/pharmatrade/autoreply/internal/triggers"
	"github.com/pharmatrade/autoreply/internal/webhook"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// shutdownTimeout bounds how long shutdown waits for in-flight
// triggers and the renewal loop to drain.
const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting pharmatrade autoreply service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"provider", cfg.Provider,
		"workers", cfg.Workers,
		"queue_size", cfg.QueueSize,
		"draft_only", cfg.DraftOnly,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL ---
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	tradeStore, err := triggers.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise trade data store", "error", err)
		os.Exit(1)
	}
	outcomeStore, err := outcome.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise outcome store", "error", err)
		os.Exit(1)
	}

	// --- Result sinks ---
	sinks := []webhook.ResultSink{outcomeStore}
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		publisher := outbox.NewPublisher(rdb, cfg.OutboxQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, publisher)
		slog.Info("connected to Redis", "outbox_queue", cfg.OutboxQueue)
	}

	// --- Mail provider ---
	var (
		provider    graph.Provider
		graphClient *graph.Client
	)
	switch cfg.Provider {
	case "graph":
		creds := &clientcredentials.Config{
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.Graph.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		graphClient = graph.NewClient(creds.Client(ctx), graphBaseURL)
		provider = graphClient
		slog.Info("using Graph mail provider", "tenant", cfg.Graph.TenantID)
	case "mock":
		mock, err := graph.NewMockProvider(cfg.MockInboxPath, cfg.MockSentPath)
		if err != nil {
			slog.Error("failed to load mock provider", "error", err)
			os.Exit(1)
		}
		provider = mock
		slog.Info("using mock mail provider", "inbox", cfg.MockInboxPath)
	}

	// --- LLM agents and pipeline registry ---
	llm := agents.NewClient(agents.ClientConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	registry := pipeline.Registry{
		models.ScenarioSupply: {
			Extractor: agents.NewSupplyExtractor(llm),
			Fetcher:   triggers.NewInventoryFetcher(tradeStore),
			Drafter:   agents.NewDrafter(llm, models.ScenarioSupply),
		},
		models.ScenarioAccess: {
			Extractor: agents.NewAccessExtractor(llm),
			Fetcher:   triggers.NewAccessFetcher(tradeStore),
			Drafter:   agents.NewDrafter(llm, models.ScenarioAccess),
		},
		models.ScenarioAllocation: {
			Extractor: agents.NewAllocationExtractor(llm),
			Fetcher:   triggers.NewAllocationFetcher(tradeStore),
			Drafter:   agents.NewDrafter(llm, models.ScenarioAllocation),
		},
		models.ScenarioCatchAll: {
			Extractor: agents.NewCatchAllExtractor(llm),
			Fetcher:   triggers.NewPastMailFetcher(tradeStore),
			Drafter:   agents.NewDrafter(llm, models.ScenarioCatchAll),
		},
	}
	for code, handlers := range registry {
		handlers.Enabled = cfg.ScenarioEnabled[string(code)]
		handlers.LowConfidenceThreshold = cfg.ScenarioThresholds[string(code)]
		registry[code] = handlers
	}

	pipe := pipeline.New(pipeline.Config{
		Classifier: agents.NewClassifier(llm),
		Reviewer:   agents.NewReviewer(llm),
		Formatter:  agents.NewFormatter(llm),
		Registry:   registry,
		DraftOnly:  cfg.DraftOnly,
	})
	orchestrator := pipeline.NewOrchestrator(pipe, provider)

	// --- Dedup store and sender allowlist ---
	dedupStore := dedup.NewStore(cfg.DedupPath, cfg.ReplyCooldown, cfg.FailedTTL)
	allow := allowlist.Load(cfg.AllowlistPath)
	slog.Info("sender allowlist loaded", "senders", len(allow.List()))

	// --- Worker pool ---
	pool := webhook.NewPool(webhook.PoolConfig{
		Orchestrator:   orchestrator,
		Provider:       provider,
		Store:          dedupStore,
		Allowlist:      allow,
		Sinks:          sinks,
		QueueSize:      cfg.QueueSize,
		Workers:        cfg.Workers,
		FetchAttempts:  cfg.FetchAttempts,
		FetchBaseDelay: cfg.FetchBaseDelay,
	})
	pool.Start(ctx)

	// --- Phase 1: webhook server before subscription registration ---
	// Graph validates the endpoint immediately when creating a subscription.
	handler := webhook.NewHandler(ctx, pool, provider, dedupStore, allow, outcomeStore, cfg.ClientState)
	ready, err := webhook.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("webhook server ready")

	// --- Phase 2: subscription lifecycle ---
	var mgr *subscription.Manager
	if cfg.SubscriptionOn && graphClient != nil {
		subStore, err := subscription.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise subscription store", "error", err)
			os.Exit(1)
		}
		mgr = subscription.NewManager(subscription.ManagerConfig{
			Store:           subStore,
			API:             graphClient,
			NotificationURL: strings.TrimRight(cfg.PublicURL, "/") + "/webhook/notifications",
			ClientState:     cfg.ClientState,
			RenewBuffer:     cfg.RenewBuffer,
		})
		if err := mgr.Start(ctx); err != nil {
			slog.Error("failed to start subscription manager", "error", err)
			os.Exit(1)
		}
	}

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)

	cancel()

	// In-flight triggers may be mid-pipeline; give them a bounded
	// window to drain instead of blocking shutdown forever.
	ok := drainWithTimeout(shutdownTimeout, func() {
		if mgr != nil {
			mgr.Stop()
		}
		pool.Wait()
	})
	if !ok {
		slog.Warn("shutdown drain timed out, abandoning in-flight work", "timeout", shutdownTimeout)
	}

	if rdb != nil {
		rdb.Close()
	}
	pgPool.Close()

	slog.Info("autoreply service stopped")
}

// drainWithTimeout runs stop and waits for it at most timeout. Reports
// whether stop finished in time.
func drainWithTimeout(timeout time.Duration, stop func()) bool {
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
