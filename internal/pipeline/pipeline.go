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

// Package pipeline runs one email thread through the ordered processing
// stages: classify, extract, trigger-fetch, draft, aggregate, review,
// format, send. The chain is linear with a single branch — the
// allocation scenario runs a scaffold of auxiliary sub-steps before its
// trigger fetch. A stage error aborts the whole run; the caller decides
// what to do with the failed unit of work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
)

// ErrScenarioDisabled aborts the pipeline at the classify stage when the
// resolved scenario is administratively switched off. Not retryable.
var ErrScenarioDisabled = errors.New("scenario disabled")

// Classifier routes a thread to one of the four scenarios.
type Classifier interface {
	Classify(ctx context.Context, thread models.EmailThread) (models.ScenarioDecision, error)
}

// Extractor pulls scenario-specific structured fields from a thread.
type Extractor interface {
	Extract(ctx context.Context, thread models.EmailThread) (models.ExtractedInput, error)
}

// Fetcher retrieves supporting data for a scenario from its backing
// system. scaffold is nil except for the allocation scenario, where it
// carries the scaffold sub-step outputs.
type Fetcher interface {
	Fetch(ctx context.Context, inputs models.ExtractedInput, scaffold map[string]any) (models.TriggerData, error)
}

// Drafter produces a reply draft from the thread, extracted inputs, and
// fetched data.
type Drafter interface {
	Draft(ctx context.Context, thread models.EmailThread, inputs models.ExtractedInput, trigger models.TriggerData) (models.DraftEmail, error)
}

// ReviewContext is everything the reviewer sees beyond the draft itself.
type ReviewContext struct {
	Inputs     models.ExtractedInput
	Trigger    models.TriggerData
	Aggregated models.AggregatedContext
}

// Reviewer checks a draft for accuracy and tone.
type Reviewer interface {
	Review(ctx context.Context, draft models.DraftEmail, rc ReviewContext) (models.ReviewResult, error)
}

// Formatter produces the final outbound email from a reviewed draft.
type Formatter interface {
	Format(ctx context.Context, draft models.DraftEmail, review models.ReviewResult, replyTo, replyToName string) (models.FinalEmail, error)
}

// ScenarioHandlers bundles the collaborators for one scenario. Resolved
// once at startup and passed in explicitly — there is no global registry.
type ScenarioHandlers struct {
	Extractor Extractor
	Fetcher   Fetcher
	Drafter   Drafter

	// Enabled gates the scenario; classify aborts when the routed
	// scenario is disabled.
	Enabled bool

	// LowConfidenceThreshold flags extractions below it for later human
	// review. Soft signal only; does not halt the run.
	LowConfidenceThreshold float64
}

// Registry maps each scenario to its handlers.
type Registry map[models.Scenario]ScenarioHandlers

// Pipeline executes the stage sequence for email threads.
type Pipeline struct {
	classifier Classifier
	reviewer   Reviewer
	formatter  Formatter
	registry   Registry

	// draftOnly makes the send stage create a mailbox draft instead of
	// replying.
	draftOnly bool
}

// Config holds the pipeline's collaborators.
type Config struct {
	Classifier Classifier
	Reviewer   Reviewer
	Formatter  Formatter
	Registry   Registry
	DraftOnly  bool
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		classifier: cfg.Classifier,
		reviewer:   cfg.Reviewer,
		formatter:  cfg.Formatter,
		registry:   cfg.Registry,
		draftOnly:  cfg.DraftOnly,
	}
}

// RunOptions scope one pipeline invocation.
type RunOptions struct {
	// Provider and ReplyToMessageID enable the send stage; when either
	// is absent the run is dry (draft and result only).
	Provider         graph.Provider
	ReplyToMessageID string

	// UserID scopes the mailbox for the reply, when the triggering
	// notification named one.
	UserID string
}

// Run processes one thread through every stage and returns the terminal
// ProcessingResult. Any stage error propagates out unchanged; no stage
// is retried and no stage runs after a failure.
func (p *Pipeline) Run(ctx context.Context, thread models.EmailThread, opts RunOptions) (models.ProcessingResult, error) {
	log := slog.With("thread_id", thread.ThreadID)
	start := time.Now()

	// Stage 1: classify.
	decision, err := p.classifier.Classify(ctx, thread)
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("classify: %w", err)
	}
	log = log.With("scenario", decision.Scenario)
	log.Debug("thread classified", "confidence", decision.Confidence)

	handlers, ok := p.registry[decision.Scenario]
	if !ok {
		return models.ProcessingResult{}, fmt.Errorf("no handlers for scenario %s", decision.Scenario)
	}
	if !handlers.Enabled {
		return models.ProcessingResult{}, fmt.Errorf("scenario %s: %w", decision.Scenario, ErrScenarioDisabled)
	}

	// Stage 2: extract.
	inputs, err := handlers.Extractor.Extract(ctx, thread)
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("extract: %w", err)
	}
	if inputs.InputConfidence() < handlers.LowConfidenceThreshold {
		log.Warn("low extraction confidence, flagging for human review",
			"confidence", inputs.InputConfidence(),
			"threshold", handlers.LowConfidenceThreshold,
			"missing_fields", inputs.MissingFields(),
		)
	}

	// Stage 3: allocation scaffold — the one branch in the chain.
	var scaffold map[string]any
	if decision.Scenario == models.ScenarioAllocation {
		scaffold = runAllocationScaffold(inputs)
		log.Debug("allocation scaffold complete")
	}

	// Stage 4: trigger fetch.
	trigger, err := handlers.Fetcher.Fetch(ctx, inputs, scaffold)
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("trigger fetch: %w", err)
	}
	log.Debug("trigger data fetched", "source", trigger.Source)

	// Stage 5: draft, then stamp scenario and provenance.
	draft, err := handlers.Drafter.Draft(ctx, thread, inputs, trigger)
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("draft: %w", err)
	}
	draft.Scenario = decision.Scenario
	if draft.Metadata == nil {
		draft.Metadata = make(map[string]any)
	}
	draft.Metadata["trigger_source"] = trigger.Source

	// Stage 6: aggregate — pure reshaping, no LLM call.
	aggregated := AggregateContext(decision, inputs)

	// Stage 7: review.
	review, err := p.reviewer.Review(ctx, draft, ReviewContext{
		Inputs:     inputs,
		Trigger:    trigger,
		Aggregated: aggregated,
	})
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("review: %w", err)
	}
	log.Debug("draft reviewed", "status", review.Status, "quality", review.QualityScore)

	// Stage 8: format.
	originalSender := thread.Latest.Sender
	finalEmail, err := p.formatter.Format(ctx, draft, review, originalSender, thread.Latest.SenderName)
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("format: %w", err)
	}
	if finalEmail.To == "" {
		finalEmail.To = originalSender
	}

	rawData := map[string]any{
		"decision_reasoning": decision.Reasoning,
		"original_sender":    originalSender,
		"original_subject":   thread.Latest.Subject,
		"conversation_id":    thread.ThreadID,
	}

	// Stage 9: send or record.
	if opts.Provider != nil && opts.ReplyToMessageID != "" {
		if err := p.sendOrDraft(ctx, opts, finalEmail, rawData); err != nil {
			return models.ProcessingResult{}, err
		}
	}

	log.Info("pipeline complete",
		"review_status", review.Status,
		"final_subject", finalEmail.Subject,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return models.ProcessingResult{
		ThreadID:           thread.ThreadID,
		Scenario:           decision.Scenario,
		DecisionConfidence: decision.Confidence,
		Draft:              draft,
		Review:             review,
		FinalEmail:         finalEmail,
		RawData:            rawData,
	}, nil
}

// sendOrDraft performs the reply side effect — the only externally
// observable effect of the pipeline beyond its return value.
func (p *Pipeline) sendOrDraft(ctx context.Context, opts RunOptions, finalEmail models.FinalEmail, rawData map[string]any) error {
	if p.draftOnly {
		draftMsg, err := opts.Provider.CreateReplyDraft(ctx, opts.UserID, opts.ReplyToMessageID, finalEmail.Body)
		if err != nil {
			return fmt.Errorf("create reply draft: %w", err)
		}
		rawData["draft_message_id"] = draftMsg.ID
		return nil
	}

	sent, err := opts.Provider.ReplyToMessage(ctx, opts.UserID, opts.ReplyToMessageID, finalEmail.Body)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	rawData["sent_message_id"] = sent.ID
	rawData["sent_at"] = time.Now().UTC().Format(time.RFC3339)
	return nil
}
