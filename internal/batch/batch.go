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

// Package batch runs every thread of a file-backed mock inbox through
// the reply pipeline in one pass. Used for demos and for exercising
// prompt or data changes against a fixed corpus without a live mailbox.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
	"github.com/pharmatrade/autoreply/internal/pipeline"
	"github.com/pharmatrade/autoreply/internal/webhook"
)

// ThreadResult tracks one processed conversation.
type ThreadResult struct {
	ConversationID string
	Scenario       models.Scenario
	ReviewStatus   string
	FinalSubject   string
	Err            error
}

// Result summarises a completed batch run.
type Result struct {
	Threads   []ThreadResult
	Processed int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// Runner drives the pipeline over a mock inbox.
type Runner struct {
	provider     *graph.MockProvider
	orchestrator *pipeline.Orchestrator
	sinks        []webhook.ResultSink
}

// NewRunner creates a batch runner. sinks may be empty; results are
// still reported in the returned summary.
func NewRunner(provider *graph.MockProvider, orchestrator *pipeline.Orchestrator, sinks []webhook.ResultSink) *Runner {
	return &Runner{
		provider:     provider,
		orchestrator: orchestrator,
		sinks:        sinks,
	}
}

// Run processes every conversation in the inbox once, in file order. A
// failed thread is recorded and the run continues; a disabled scenario
// counts as skipped rather than failed.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	seen := make(map[string]bool)
	var conversations []string
	for _, m := range r.provider.Messages() {
		id := m.ConversationID
		if id == "" {
			id = m.ID
		}
		if !seen[id] {
			seen[id] = true
			conversations = append(conversations, id)
		}
	}

	slog.Info("batch run starting", "conversations", len(conversations))

	result := Result{}
	for _, convID := range conversations {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := r.orchestrator.ProcessTrigger(ctx, pipeline.TriggerRequest{
			ConversationID: convID,
		})
		tr := ThreadResult{ConversationID: convID, Err: err}
		if err != nil {
			if errors.Is(err, pipeline.ErrScenarioDisabled) {
				result.Skipped++
				slog.Info("thread skipped, scenario disabled", "conversation_id", convID)
			} else {
				result.Failed++
				slog.Error("thread failed", "conversation_id", convID, "error", err)
			}
			result.Threads = append(result.Threads, tr)
			continue
		}

		tr.Scenario = res.Scenario
		tr.ReviewStatus = res.Review.Status
		tr.FinalSubject = res.FinalEmail.Subject
		result.Threads = append(result.Threads, tr)
		result.Processed++

		for _, sink := range r.sinks {
			if err := sink.Record(ctx, res); err != nil {
				slog.Warn("result sink failed", "conversation_id", convID, "error", err)
			}
		}
	}

	result.Elapsed = time.Since(start)
	slog.Info("batch run complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"elapsed", result.Elapsed.Round(time.Millisecond),
	)
	return result, nil
}
