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
	"path/filepath"
	"testing"
	"time"

	"github.com/pharmatrade/autoreply/internal/allowlist"
	"github.com/pharmatrade/autoreply/internal/dedup"
	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
)

// fakeProvider returns canned messages keyed by id and counts fetches.
// With fetchErr set, the first errFetches calls fail (every call when
// errFetches is zero).
type fakeProvider struct {
	messages   map[string]*graph.Message
	fetchErr   error
	errFetches int
	fetches    int
}

func (f *fakeProvider) GetMessage(_ context.Context, _, messageID string) (*graph.Message, error) {
	f.fetches++
	if f.fetchErr != nil && (f.errFetches <= 0 || f.fetches <= f.errFetches) {
		return nil, f.fetchErr
	}
	return f.messages[messageID], nil
}

func (f *fakeProvider) GetConversation(context.Context, string, string) ([]graph.Message, error) {
	return nil, nil
}

func (f *fakeProvider) ReplyToMessage(context.Context, string, string, string) (*graph.Message, error) {
	return nil, nil
}

func (f *fakeProvider) CreateReplyDraft(context.Context, string, string, string) (*graph.Message, error) {
	return nil, nil
}

func (f *fakeProvider) CreateSubscription(context.Context, graph.SubscriptionRequest) (*graph.Subscription, error) {
	return nil, nil
}

type recordingSink struct {
	results []models.ProcessingResult
}

func (r *recordingSink) Record(_ context.Context, res models.ProcessingResult) error {
	r.results = append(r.results, res)
	return nil
}

func inboxMessage(id, conversationID, sender string) *graph.Message {
	return &graph.Message{
		ID:             id,
		ConversationID: conversationID,
		Subject:        "Backorder inquiry",
		From: &graph.Recipient{
			EmailAddress: graph.EmailAddress{Address: sender, Name: "Buyer"},
		},
	}
}

type poolFixture struct {
	pool      *Pool
	store     *dedup.Store
	allow     *allowlist.Allowlist
	provider  *fakeProvider
	processor *stubProcessor
	sink      *recordingSink
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	dir := t.TempDir()
	f := &poolFixture{
		store: dedup.NewStore(filepath.Join(dir, "dedup.json"), time.Minute, time.Minute),
		allow: allowlist.Load(filepath.Join(dir, "senders.json")),
		provider: &fakeProvider{
			messages: map[string]*graph.Message{
				"m-1": inboxMessage("m-1", "conv-1", "buyer@distributor.com"),
			},
		},
		processor: &stubProcessor{
			result: models.ProcessingResult{
				ThreadID: "conv-1",
				Scenario: models.ScenarioSupply,
				RawData:  map[string]any{"sent_message_id": "sent-1"},
			},
		},
		sink: &recordingSink{},
	}
	if err := f.allow.Add("buyer@distributor.com"); err != nil {
		t.Fatalf("seed allowlist: %v", err)
	}
	f.pool = NewPool(PoolConfig{
		Orchestrator:   f.processor,
		Provider:       f.provider,
		Store:          f.store,
		Allowlist:      f.allow,
		Sinks:          []ResultSink{f.sink},
		QueueSize:      4,
		Workers:        1,
		FetchAttempts:  2,
		FetchBaseDelay: time.Millisecond,
	})
	return f
}

func TestProcessSuccess(t *testing.T) {
	f := newPoolFixture(t)

	f.pool.process(context.Background(), Candidate{MessageID: "m-1"})

	if len(f.processor.calls) != 1 {
		t.Fatalf("processor calls = %d, want 1", len(f.processor.calls))
	}
	if !f.store.HasTriggered("m-1") {
		t.Error("message not marked triggered")
	}
	if !f.store.HasRecentReply("conv-1") {
		t.Error("conversation reply not recorded")
	}
	if f.store.IsProcessing("m-1") {
		t.Error("in-flight marker not cleared")
	}
	if len(f.sink.results) != 1 {
		t.Fatalf("sink results = %d, want 1", len(f.sink.results))
	}
	if f.sink.results[0].Scenario != models.ScenarioSupply {
		t.Errorf("recorded scenario = %s", f.sink.results[0].Scenario)
	}
}

func TestProcessFetchExhaustion(t *testing.T) {
	f := newPoolFixture(t)
	delete(f.provider.messages, "m-1")

	f.pool.process(context.Background(), Candidate{MessageID: "m-1"})

	if f.provider.fetches != 2 {
		t.Errorf("fetch attempts = %d, want 2", f.provider.fetches)
	}
	if !f.store.HasFailed("m-1") {
		t.Error("exhausted fetch not marked failed")
	}
	if f.store.HasTriggered("m-1") {
		t.Error("unfetched message must not be claimed")
	}
	if len(f.processor.calls) != 0 {
		t.Errorf("processor called %d times", len(f.processor.calls))
	}
}

func TestProcessFetchTransientErrorRecovers(t *testing.T) {
	f := newPoolFixture(t)
	f.provider.fetchErr = errors.New("graph API returned HTTP 429: throttled")
	f.provider.errFetches = 1

	f.pool.process(context.Background(), Candidate{MessageID: "m-1"})

	if f.provider.fetches != 2 {
		t.Errorf("fetch attempts = %d, want 2 (transient error retried)", f.provider.fetches)
	}
	if len(f.processor.calls) != 1 {
		t.Fatalf("processor calls = %d, want 1", len(f.processor.calls))
	}
	if f.store.HasFailed("m-1") {
		t.Error("recovered fetch must not be marked failed")
	}
	if !f.store.HasTriggered("m-1") {
		t.Error("recovered message not claimed")
	}
}

func TestProcessFetchErrorExhaustion(t *testing.T) {
	f := newPoolFixture(t)
	f.provider.fetchErr = errors.New("graph API returned HTTP 429: throttled")

	f.pool.process(context.Background(), Candidate{MessageID: "m-1"})

	if f.provider.fetches != 2 {
		t.Errorf("fetch attempts = %d, want 2", f.provider.fetches)
	}
	if !f.store.HasFailed("m-1") {
		t.Error("exhausted fetch not marked failed")
	}
	if len(f.processor.calls) != 0 {
		t.Errorf("processor called %d times for an unfetched message", len(f.processor.calls))
	}
}

func TestProcessSenderNotAllowed(t *testing.T) {
	f := newPoolFixture(t)
	f.provider.messages["m-1"] = inboxMessage("m-1", "conv-1", "stranger@example.com")

	f.pool.process(context.Background(), Candidate{MessageID: "m-1"})

	if len(f.processor.calls) != 0 {
		t.Error("processor ran for a non-allowlisted sender")
	}
	if f.store.HasTriggered("m-1") {
		t.Error("dropped message must not be claimed")
	}
	if f.store.HasFailed("m-1") {
		t.Error("allowlist drop is not a failure")
	}
}

func TestProcessConversationCooldown(t *testing.T) {
	f := newPoolFixture(t)
	f.store.MarkReplied("conv-1")

	f.pool.process(context.Background(), Candidate{MessageID: "m-1"})

	if len(f.processor.calls) != 0 {
		t.Error("processor ran inside the reply cooldown")
	}
	if f.store.HasTriggered("m-1") {
		t.Error("cooldown drop must not claim the message")
	}
}

func TestProcessLostClaim(t *testing.T) {
	f := newPoolFixture(t)
	if !f.store.MarkTriggered("m-1") {
		t.Fatal("seed claim failed")
	}

	f.pool.process(context.Background(), Candidate{MessageID: "m-1"})

	if len(f.processor.calls) != 0 {
		t.Error("processor ran after a lost claim")
	}
}

func TestProcessPipelineFailureStaysClaimed(t *testing.T) {
	f := newPoolFixture(t)
	f.processor.err = errors.New("draft stage failed")

	f.pool.process(context.Background(), Candidate{MessageID: "m-1"})

	if !f.store.HasTriggered("m-1") {
		t.Error("claim must survive a pipeline failure")
	}
	if !f.store.HasFailed("m-1") {
		t.Error("pipeline failure not recorded")
	}
	if len(f.sink.results) != 0 {
		t.Errorf("sink recorded %d results for a failed run", len(f.sink.results))
	}
}

func TestPoolEndToEnd(t *testing.T) {
	f := newPoolFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.pool.Start(ctx)

	if !f.pool.Enqueue(ctx, Candidate{MessageID: "m-1"}) {
		t.Fatal("enqueue refused")
	}

	deadline := time.After(2 * time.Second)
	for !f.store.HasTriggered("m-1") {
		select {
		case <-deadline:
			t.Fatal("message never processed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	f.pool.Wait()
}
