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

// PharmaTrade Autoreply — batch command
//
// Standalone CLI tool that runs every conversation in a file-backed
// mock inbox through the reply pipeline in one pass. Intended for
// demos and for regression-checking prompt or trade-data changes
// against a fixed corpus.
//
// Usage:
//
//	go run ./cmd/batch/ [--inbox data/mock_inbox.json] [--sent data/mock_sent.json] [--draft-only]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pharmatrade/autoreply/internal/agents"
	"github.com/pharmatrade/autoreply/internal/batch"
	"github.com/pharmatrade/autoreply/internal/config"
	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
	"github.com/pharmatrade/autoreply/internal/outbox"
	"github.com/pharmatrade/autoreply/internal/outcome"
	"github.com/pharmatrade/autoreply/internal/pipeline"
	"github.com/pharmatrade/autoreply/internal/triggers"
	"github.com/pharmatrade/autoreply/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	inboxFlag := flag.String("inbox", "", "Path to the mock inbox JSON file (default: MOCK_INBOX_PATH)")
	sentFlag := flag.String("sent", "", "Path to the mock sent-items JSON file (default: MOCK_SENT_PATH)")
	draftOnlyFlag := flag.Bool("draft-only", false, "Create drafts instead of sending replies")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *inboxFlag != "" {
		cfg.MockInboxPath = *inboxFlag
	}
	if *sentFlag != "" {
		cfg.MockSentPath = *sentFlag
	}
	if *draftOnlyFlag {
		cfg.DraftOnly = true
	}

	slog.Info("starting batch run",
		"inbox", cfg.MockInboxPath,
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
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		publisher := outbox.NewPublisher(rdb, cfg.OutboxQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, publisher)
	}

	// --- Mock provider ---
	// Batch mode always works against the file-backed inbox; pointing it
	// at a live mailbox would reply to every unanswered thread at once.
	mock, err := graph.NewMockProvider(cfg.MockInboxPath, cfg.MockSentPath)
	if err != nil {
		slog.Error("failed to load mock provider", "error", err)
		os.Exit(1)
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
	orchestrator := pipeline.NewOrchestrator(pipe, mock)

	// --- Run ---
	runner := batch.NewRunner(mock, orchestrator, sinks)
	result, err := runner.Run(ctx)
	if err != nil {
		slog.Error("batch run failed", "error", err)
		os.Exit(1)
	}

	// --- Summary ---
	slog.Info("batch complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"elapsed", result.Elapsed.Round(time.Millisecond),
	)
	for _, tr := range result.Threads {
		if tr.Err != nil {
			slog.Warn("thread result",
				"conversation_id", tr.ConversationID,
				"error", tr.Err,
			)
			continue
		}
		slog.Info("thread result",
			"conversation_id", tr.ConversationID,
			"scenario", tr.Scenario,
			"review_status", tr.ReviewStatus,
			"subject", tr.FinalSubject,
		)
	}
}
