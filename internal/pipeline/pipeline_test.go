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

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
)

// --- Stage fakes ---

type fakeClassifier struct {
	decision models.ScenarioDecision
	err      error
	calls    int
}

func (f *fakeClassifier) Classify(_ context.Context, _ models.EmailThread) (models.ScenarioDecision, error) {
	f.calls++
	return f.decision, f.err
}

type fakeExtractor struct {
	input models.ExtractedInput
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ models.EmailThread) (models.ExtractedInput, error) {
	f.calls++
	return f.input, f.err
}

type fakeFetcher struct {
	data     models.TriggerData
	err      error
	calls    int
	scaffold map[string]any
}

func (f *fakeFetcher) Fetch(_ context.Context, _ models.ExtractedInput, scaffold map[string]any) (models.TriggerData, error) {
	f.calls++
	f.scaffold = scaffold
	return f.data, f.err
}

type fakeDrafter struct {
	draft models.DraftEmail
	err   error
	calls int
}

func (f *fakeDrafter) Draft(_ context.Context, _ models.EmailThread, _ models.ExtractedInput, _ models.TriggerData) (models.DraftEmail, error) {
	f.calls++
	return f.draft, f.err
}

type fakeReviewer struct {
	result models.ReviewResult
	err    error
	calls  int
	rc     ReviewContext
}

func (f *fakeReviewer) Review(_ context.Context, _ models.DraftEmail, rc ReviewContext) (models.ReviewResult, error) {
	f.calls++
	f.rc = rc
	return f.result, f.err
}

type fakeFormatter struct {
	final models.FinalEmail
	err   error
	calls int
}

func (f *fakeFormatter) Format(_ context.Context, draft models.DraftEmail, review models.ReviewResult, replyTo, _ string) (models.FinalEmail, error) {
	f.calls++
	if f.final.Subject == "" && f.final.Body == "" {
		return models.FinalEmail{
			Subject:      "RE: " + draft.Subject,
			Body:         draft.Body,
			ReviewStatus: review.Status,
		}, f.err
	}
	return f.final, f.err
}

// fixture wires a pipeline out of fakes with one scenario registered.
type fixture struct {
	classifier *fakeClassifier
	extractor  *fakeExtractor
	fetcher    *fakeFetcher
	drafter    *fakeDrafter
	reviewer   *fakeReviewer
	formatter  *fakeFormatter
	pipe       *Pipeline
}

func newFixture(scenario models.Scenario, input models.ExtractedInput, draftOnly bool) *fixture {
	f := &fixture{
		classifier: &fakeClassifier{decision: models.ScenarioDecision{
			Scenario:   scenario,
			Confidence: 0.92,
			Reasoning:  "stock question",
		}},
		extractor: &fakeExtractor{input: input},
		fetcher: &fakeFetcher{data: models.TriggerData{
			Source: "db",
			Facts:  map[string]any{"total_quantity_available": 120},
		}},
		drafter: &fakeDrafter{draft: models.DraftEmail{
			Subject: "Stock availability",
			Body:    "We have 120 units on hand.",
		}},
		reviewer: &fakeReviewer{result: models.ReviewResult{
			Status:       models.ReviewApproved,
			Confidence:   0.9,
			QualityScore: 0.88,
		}},
		formatter: &fakeFormatter{},
	}
	f.pipe = New(Config{
		Classifier: f.classifier,
		Reviewer:   f.reviewer,
		Formatter:  f.formatter,
		Registry: Registry{
			scenario: {
				Extractor:              f.extractor,
				Fetcher:                f.fetcher,
				Drafter:                f.drafter,
				Enabled:                true,
				LowConfidenceThreshold: 0.5,
			},
		},
		DraftOnly: draftOnly,
	})
	return f
}

func testThread(t *testing.T) models.EmailThread {
	t.Helper()
	thread, err := models.NewThread("conv-1", []models.Email{
		{
			ID:         "m-1",
			Sender:     "buyer@distributor.com",
			SenderName: "Dana Buyer",
			Subject:    "NDC 0001-1234 stock",
			Body:       "Do you have NDC 0001-1234 in the Memphis DC?",
			ThreadID:   "conv-1",
		},
	})
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	return thread
}

func TestRunDry(t *testing.T) {
	f := newFixture(models.ScenarioSupply, models.SupplyInput{NDC: "0001-1234", Confidence: 0.9}, false)

	res, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Scenario != models.ScenarioSupply {
		t.Errorf("scenario = %s, want %s", res.Scenario, models.ScenarioSupply)
	}
	if res.ThreadID != "conv-1" {
		t.Errorf("thread ID = %q, want conv-1", res.ThreadID)
	}
	if res.DecisionConfidence != 0.92 {
		t.Errorf("decision confidence = %v, want 0.92", res.DecisionConfidence)
	}
	if res.Draft.Scenario != models.ScenarioSupply {
		t.Errorf("draft scenario not stamped: %q", res.Draft.Scenario)
	}
	if got := res.Draft.Metadata["trigger_source"]; got != "db" {
		t.Errorf("draft trigger_source = %v, want db", got)
	}
	if res.FinalEmail.To != "buyer@distributor.com" {
		t.Errorf("final To = %q, want original sender", res.FinalEmail.To)
	}
	if res.FinalEmail.Body == "" {
		t.Error("final body empty")
	}
	if _, ok := res.RawData["sent_message_id"]; ok {
		t.Error("dry run should not record a sent message")
	}
	if res.RawData["conversation_id"] != "conv-1" {
		t.Errorf("raw conversation_id = %v", res.RawData["conversation_id"])
	}

	if f.reviewer.rc.Aggregated.NDC != "0001-1234" {
		t.Errorf("review context NDC = %q, want 0001-1234", f.reviewer.rc.Aggregated.NDC)
	}
}

func TestRunDisabledScenario(t *testing.T) {
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)
	handlers := f.pipe.registry[models.ScenarioSupply]
	handlers.Enabled = false
	f.pipe.registry[models.ScenarioSupply] = handlers

	_, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{})
	if !errors.Is(err, ErrScenarioDisabled) {
		t.Fatalf("err = %v, want ErrScenarioDisabled", err)
	}
	if f.extractor.calls != 0 {
		t.Error("extractor ran for a disabled scenario")
	}
	if f.fetcher.calls != 0 || f.reviewer.calls != 0 {
		t.Error("later stages ran after the disabled-scenario abort")
	}
}

func TestRunUnknownScenario(t *testing.T) {
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)
	f.classifier.decision.Scenario = models.ScenarioAccess

	_, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{})
	if err == nil {
		t.Fatal("expected error for a scenario without handlers")
	}
}

func TestRunStageErrorAborts(t *testing.T) {
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)
	f.extractor.err = errors.New("llm timeout")

	_, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{})
	if err == nil {
		t.Fatal("expected extract error to propagate")
	}
	if f.fetcher.calls != 0 {
		t.Error("fetcher ran after extract failed")
	}
	if f.reviewer.calls != 0 || f.formatter.calls != 0 {
		t.Error("review or format ran after extract failed")
	}
}

func TestRunAllocationScaffold(t *testing.T) {
	f := newFixture(models.ScenarioAllocation, models.AllocationInput{YearStart: 2026, Confidence: 0.9}, false)

	if _, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.fetcher.scaffold == nil {
		t.Fatal("allocation fetcher received no scaffold")
	}
	for _, key := range []string{"reply_type", "data_source", "allocation_check", "simulation"} {
		if _, ok := f.fetcher.scaffold[key]; !ok {
			t.Errorf("scaffold missing %q", key)
		}
	}
}

func TestRunSupplyScaffoldAbsent(t *testing.T) {
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)

	if _, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.fetcher.scaffold != nil {
		t.Error("supply fetch received a scaffold")
	}
}

func newInboxProvider(t *testing.T, messages string) *graph.MockProvider {
	t.Helper()
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox.json")
	if err := os.WriteFile(inbox, []byte(messages), 0o644); err != nil {
		t.Fatalf("write inbox: %v", err)
	}
	provider, err := graph.NewMockProvider(inbox, filepath.Join(dir, "sent.json"))
	if err != nil {
		t.Fatalf("NewMockProvider: %v", err)
	}
	return provider
}

const singleMessageInbox = `[
  {
    "id": "m-1",
    "conversationId": "conv-1",
    "receivedDateTime": "2026-03-01T09:00:00Z",
    "subject": "NDC 0001-1234 stock",
    "body": {"contentType": "text", "content": "Do you have stock?"},
    "from": {"emailAddress": {"address": "buyer@distributor.com", "name": "Dana Buyer"}}
  }
]`

func TestRunSend(t *testing.T) {
	provider := newInboxProvider(t, singleMessageInbox)
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)

	res, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{
		Provider:         provider,
		ReplyToMessageID: "m-1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := res.RawData["sent_message_id"]; !ok {
		t.Error("send run did not record sent_message_id")
	}
	if _, ok := res.RawData["sent_at"]; !ok {
		t.Error("send run did not record sent_at")
	}
	if _, ok := res.RawData["draft_message_id"]; ok {
		t.Error("send run recorded a draft ID")
	}
}

func TestRunDraftOnly(t *testing.T) {
	provider := newInboxProvider(t, singleMessageInbox)
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, true)

	res, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{
		Provider:         provider,
		ReplyToMessageID: "m-1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := res.RawData["draft_message_id"]; !ok {
		t.Error("draft-only run did not record draft_message_id")
	}
	if _, ok := res.RawData["sent_message_id"]; ok {
		t.Error("draft-only run recorded a sent message")
	}
}

func TestRunSendFailureAborts(t *testing.T) {
	provider := newInboxProvider(t, singleMessageInbox)
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)

	_, err := f.pipe.Run(context.Background(), testThread(t), RunOptions{
		Provider:         provider,
		ReplyToMessageID: "no-such-message",
	})
	if err == nil {
		t.Fatal("expected reply to a missing message to fail the run")
	}
}

func TestAggregateContext(t *testing.T) {
	tests := []struct {
		name     string
		decision models.ScenarioDecision
		inputs   models.ExtractedInput
		want     models.AggregatedContext
	}{
		{
			name:     "supply",
			decision: models.ScenarioDecision{Scenario: models.ScenarioSupply},
			inputs:   models.SupplyInput{NDC: "0001-1234", Distributor: "DX"},
			want:     models.AggregatedContext{Decision: models.ScenarioSupply, NDC: "0001-1234", Distributor: "DX"},
		},
		{
			name:     "access",
			decision: models.ScenarioDecision{Scenario: models.ScenarioAccess},
			inputs:   models.AccessInput{NDC: "0001-5678", Distributor: "MCK"},
			want:     models.AggregatedContext{Decision: models.ScenarioAccess, NDC: "0001-5678", Distributor: "MCK"},
		},
		{
			name:     "allocation with range",
			decision: models.ScenarioDecision{Scenario: models.ScenarioAllocation},
			inputs:   models.AllocationInput{NDC: "0001-9999", YearStart: 2025, YearEnd: 2026},
			want:     models.AggregatedContext{Decision: models.ScenarioAllocation, NDC: "0001-9999", Year: 2025, YearEnd: 2026},
		},
		{
			name:     "allocation end year only",
			decision: models.ScenarioDecision{Scenario: models.ScenarioAllocation},
			inputs:   models.AllocationInput{YearEnd: 2026},
			want:     models.AggregatedContext{Decision: models.ScenarioAllocation, Year: 2026, YearEnd: 2026},
		},
		{
			name:     "catch-all carries only the decision",
			decision: models.ScenarioDecision{Scenario: models.ScenarioCatchAll},
			inputs:   models.CatchAllInput{Topics: []string{"returns"}},
			want:     models.AggregatedContext{Decision: models.ScenarioCatchAll},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AggregateContext(tc.decision, tc.inputs)
			if got != tc.want {
				t.Errorf("AggregateContext = %+v, want %+v", got, tc.want)
			}
		})
	}
}
