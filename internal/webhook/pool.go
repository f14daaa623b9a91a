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

package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pharmatrade/autoreply/internal/allowlist"
	"github.com/pharmatrade/autoreply/internal/dedup"
	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
	"github.com/pharmatrade/autoreply/internal/pipeline"
)

// Candidate is one accepted notification waiting for a worker: the
// message to process and the mailbox it lives in ("" = default mailbox).
type Candidate struct {
	MessageID string
	UserID    string
}

// ResultSink receives completed processing results (outcome store,
// downstream queue). Sink errors are logged, never escalated — recording
// is best effort and must not fail the already-sent reply.
type ResultSink interface {
	Record(ctx context.Context, res models.ProcessingResult) error
}

// TriggerProcessor runs the reply pipeline for one claimed message.
// Satisfied by pipeline.Orchestrator.
type TriggerProcessor interface {
	ProcessTrigger(ctx context.Context, req pipeline.TriggerRequest) (models.ProcessingResult, error)
}

// Pool is the bounded queue plus fixed worker pool between notification
// ingestion and message processing. Queue capacity and worker count are
// deliberate backpressure knobs: a full queue blocks the enqueuing
// goroutine, throttling notification bursts instead of hammering the
// mail API.
type Pool struct {
	orchestrator TriggerProcessor
	provider     graph.Provider
	store        *dedup.Store
	allow        *allowlist.Allowlist
	sinks        []ResultSink

	queue          chan Candidate
	workers        int
	fetchAttempts  int
	fetchBaseDelay time.Duration

	wg sync.WaitGroup
}

// PoolConfig holds the pool's dependencies and sizing.
type PoolConfig struct {
	Orchestrator   TriggerProcessor
	Provider       graph.Provider
	Store          *dedup.Store
	Allowlist      *allowlist.Allowlist
	Sinks          []ResultSink
	QueueSize      int
	Workers        int
	FetchAttempts  int
	FetchBaseDelay time.Duration
}

// NewPool creates a worker pool. Zero sizing fields fall back to small
// safe defaults.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 4
	}
	if cfg.FetchBaseDelay <= 0 {
		cfg.FetchBaseDelay = time.Second
	}
	return &Pool{
		orchestrator:   cfg.Orchestrator,
		provider:       cfg.Provider,
		store:          cfg.Store,
		allow:          cfg.Allowlist,
		sinks:          cfg.Sinks,
		queue:          make(chan Candidate, cfg.QueueSize),
		workers:        cfg.Workers,
		fetchAttempts:  cfg.FetchAttempts,
		fetchBaseDelay: cfg.FetchBaseDelay,
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(ctx, id)
		}(i)
	}
	slog.Info("worker pool started", "workers", p.workers, "queue_capacity", cap(p.queue))
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

// Enqueue places a candidate on the queue, blocking while it is full.
// Returns false when ctx is cancelled before space frees.
func (p *Pool) Enqueue(ctx context.Context, c Candidate) bool {
	select {
	case p.queue <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.queue:
			p.process(ctx, c)
		}
	}
}

// process runs the slow path for one candidate: re-validation, fetch
// with retries, policy checks, the atomic claim, and finally the
// pipeline. The in-flight flag is cleared on every exit path.
func (p *Pool) process(ctx context.Context, c Candidate) {
	log := slog.With("message_id", c.MessageID)

	// Conditions can change between enqueue and dequeue; re-check the
	// cheap instantaneous ones before doing any network work.
	if p.store.HasFailed(c.MessageID) {
		log.Debug("skipping recently failed message")
		return
	}
	if p.store.IsProcessing(c.MessageID) {
		log.Debug("skipping in-flight message")
		return
	}

	p.store.AddProcessing(c.MessageID)
	defer p.store.RemoveProcessing(c.MessageID)

	msg, err := p.fetchWithRetry(ctx, c)
	if err != nil {
		log.Warn("fetch failed after retries, recording failure", "error", err)
		p.store.MarkFailed(c.MessageID)
		return
	}
	if msg == nil {
		// Exhausted every attempt without the message turning up.
		log.Warn("message never became visible, recording failure",
			"attempts", p.fetchAttempts,
		)
		p.store.MarkFailed(c.MessageID)
		return
	}

	sender := allowlist.Normalize(msg.SenderAddress())
	if sender == "" {
		// Unusable, not a failure: drop without suppressing retries of
		// other notifications for this id.
		log.Debug("message has no resolvable sender, dropping")
		return
	}
	if !p.allow.Allows(sender) {
		log.Info("sender not allowlisted, dropping", "sender", sender)
		return
	}
	if p.store.HasRecentReply(msg.ConversationID) {
		log.Info("conversation inside reply cooldown, dropping",
			"conversation_id", msg.ConversationID,
		)
		return
	}

	// The authoritative at-most-once gate. The upstream filter only
	// checked; this claims.
	if !p.store.MarkTriggered(c.MessageID) {
		log.Debug("lost claim race, dropping")
		return
	}

	log.Info("claim won, running pipeline", "sender", sender)

	result, err := p.orchestrator.ProcessTrigger(ctx, pipeline.TriggerRequest{
		MessageID: c.MessageID,
		UserID:    c.UserID,
	})
	if err != nil {
		// The id stays claimed: after a partial run we cannot know
		// whether the reply went out, and a duplicate reply is worse
		// than a dropped message.
		if errors.Is(err, pipeline.ErrNotFound) {
			log.Warn("message disappeared after claim", "error", err)
		} else {
			log.Error("pipeline failed after claim", "error", err)
		}
		p.store.MarkFailed(c.MessageID)
		return
	}

	if _, sent := result.RawData["sent_message_id"]; sent && result.ThreadID != "" {
		p.store.MarkReplied(result.ThreadID)
	}

	for _, sink := range p.sinks {
		if err := sink.Record(ctx, result); err != nil {
			log.Warn("result sink failed", "error", err)
		}
	}
}

// fetchWithRetry fetches the message with bounded exponential backoff.
// New messages are eventually consistent and the mail API throttles
// bursts with HTTP 429, so a miss and a transport error are both
// transient: each is retried until the attempt budget runs out. Returns
// nil, nil when every attempt missed without an error.
func (p *Pool) fetchWithRetry(ctx context.Context, c Candidate) (*graph.Message, error) {
	delay := p.fetchBaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.fetchAttempts; attempt++ {
		msg, err := p.provider.GetMessage(ctx, c.UserID, c.MessageID)
		if err == nil && msg != nil {
			return msg, nil
		}
		lastErr = err
		if attempt == p.fetchAttempts {
			break
		}
		if err != nil {
			slog.Debug("message fetch failed, retrying",
				"message_id", c.MessageID,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		} else {
			slog.Debug("message not visible yet, retrying",
				"message_id", c.MessageID,
				"attempt", attempt,
				"delay", delay,
			)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}
