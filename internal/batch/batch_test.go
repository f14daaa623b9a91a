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

package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
	"github.com/pharmatrade/autoreply/internal/pipeline"
	"github.com/pharmatrade/autoreply/internal/webhook"
)

type staticClassifier struct{ scenario models.Scenario }

func (c staticClassifier) Classify(_ context.Context, _ models.EmailThread) (models.ScenarioDecision, error) {
	return models.ScenarioDecision{Scenario: c.scenario, Confidence: 0.9}, nil
}

type staticExtractor struct{}

func (staticExtractor) Extract(_ context.Context, _ models.EmailThread) (models.ExtractedInput, error) {
	return models.SupplyInput{NDC: "0001-1234", Confidence: 0.9}, nil
}

type staticFetcher struct{}

func (staticFetcher) Fetch(_ context.Context, _ models.ExtractedInput, _ map[string]any) (models.TriggerData, error) {
	return models.TriggerData{Source: "db", Facts: map[string]any{"total_quantity_available": 40}}, nil
}

type staticDrafter struct{}

func (staticDrafter) Draft(_ context.Context, _ models.EmailThread, _ models.ExtractedInput, _ models.TriggerData) (models.DraftEmail, error) {
	return models.DraftEmail{Subject: "Stock", Body: "We have 40 units."}, nil
}

type staticReviewer struct{}

func (staticReviewer) Review(_ context.Context, _ models.DraftEmail, _ pipeline.ReviewContext) (models.ReviewResult, error) {
	return models.ReviewResult{Status: models.ReviewApproved, QualityScore: 0.9}, nil
}

type staticFormatter struct{}

func (staticFormatter) Format(_ context.Context, draft models.DraftEmail, review models.ReviewResult, _, _ string) (models.FinalEmail, error) {
	return models.FinalEmail{Subject: "RE: " + draft.Subject, Body: draft.Body, ReviewStatus: review.Status}, nil
}

type recordingSink struct{ results []models.ProcessingResult }

func (s *recordingSink) Record(_ context.Context, res models.ProcessingResult) error {
	s.results = append(s.results, res)
	return nil
}

const batchInbox = `[
  {
    "id": "m-1",
    "conversationId": "conv-1",
    "receivedDateTime": "2026-03-01T09:00:00Z",
    "subject": "stock question",
    "body": {"contentType": "text", "content": "Do you have stock?"},
    "from": {"emailAddress": {"address": "buyer@distributor.com", "name": "Dana Buyer"}}
  },
  {
    "id": "m-2",
    "conversationId": "conv-1",
    "receivedDateTime": "2026-03-01T10:30:00Z",
    "subject": "RE: stock question",
    "body": {"contentType": "text", "content": "Any update?"},
    "from": {"emailAddress": {"address": "buyer@distributor.com", "name": "Dana Buyer"}}
  },
  {
    "id": "m-3",
    "conversationId": "conv-2",
    "receivedDateTime": "2026-03-02T08:00:00Z",
    "subject": "second stock question",
    "body": {"contentType": "text", "content": "Stock for the other NDC?"},
    "from": {"emailAddress": {"address": "ops@pharmacy.example", "name": "Sam Ops"}}
  }
]`

func newBatchFixture(t *testing.T, enabled bool) (*Runner, *recordingSink) {
	t.Helper()
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox.json")
	if err := os.WriteFile(inbox, []byte(batchInbox), 0o644); err != nil {
		t.Fatalf("write inbox: %v", err)
	}
	provider, err := graph.NewMockProvider(inbox, filepath.Join(dir, "sent.json"))
	if err != nil {
		t.Fatalf("NewMockProvider: %v", err)
	}

	pipe := pipeline.New(pipeline.Config{
		Classifier: staticClassifier{scenario: models.ScenarioSupply},
		Reviewer:   staticReviewer{},
		Formatter:  staticFormatter{},
		Registry: pipeline.Registry{
			models.ScenarioSupply: {
				Extractor: staticExtractor{},
				Fetcher:   staticFetcher{},
				Drafter:   staticDrafter{},
				Enabled:   enabled,
			},
		},
	})
	orchestrator := pipeline.NewOrchestrator(pipe, provider)

	sink := &recordingSink{}
	return NewRunner(provider, orchestrator, []webhook.ResultSink{sink}), sink
}

func TestRunProcessesEachConversationOnce(t *testing.T) {
	runner, sink := newBatchFixture(t, true)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 2 {
		t.Errorf("processed = %d, want 2", result.Processed)
	}
	if result.Failed != 0 || result.Skipped != 0 {
		t.Errorf("failed = %d, skipped = %d", result.Failed, result.Skipped)
	}
	if len(result.Threads) != 2 {
		t.Fatalf("threads = %d, want 2", len(result.Threads))
	}
	if result.Threads[0].ConversationID != "conv-1" || result.Threads[1].ConversationID != "conv-2" {
		t.Errorf("conversation order = %+v", result.Threads)
	}
	if result.Threads[0].Scenario != models.ScenarioSupply {
		t.Errorf("scenario = %s", result.Threads[0].Scenario)
	}
	if len(sink.results) != 2 {
		t.Errorf("sink recorded %d results, want 2", len(sink.results))
	}
}

func TestRunDisabledScenarioCountsAsSkipped(t *testing.T) {
	runner, sink := newBatchFixture(t, false)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Skipped != 2 || result.Processed != 0 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(sink.results) != 0 {
		t.Errorf("sink recorded %d results for skipped threads", len(sink.results))
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	runner, _ := newBatchFixture(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner.Run(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
