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
	"testing"

	"github.com/pharmatrade/autoreply/internal/models"
)

const twoMessageInbox = `[
  {
    "id": "m-1",
    "conversationId": "conv-1",
    "receivedDateTime": "2026-03-01T09:00:00Z",
    "subject": "NDC 0001-1234 stock",
    "body": {"contentType": "text", "content": "Do you have stock?"},
    "from": {"emailAddress": {"address": "buyer@distributor.com", "name": "Dana Buyer"}}
  },
  {
    "id": "m-2",
    "conversationId": "conv-1",
    "receivedDateTime": "2026-03-01T10:30:00Z",
    "subject": "RE: NDC 0001-1234 stock",
    "body": {"contentType": "text", "content": "Following up, any update?"},
    "from": {"emailAddress": {"address": "buyer@distributor.com", "name": "Dana Buyer"}}
  }
]`

func TestProcessTriggerByMessage(t *testing.T) {
	provider := newInboxProvider(t, twoMessageInbox)
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)
	o := NewOrchestrator(f.pipe, provider)

	res, err := o.ProcessTrigger(context.Background(), TriggerRequest{MessageID: "m-1"})
	if err != nil {
		t.Fatalf("ProcessTrigger: %v", err)
	}
	if res.ThreadID != "conv-1" {
		t.Errorf("thread ID = %q, want conv-1", res.ThreadID)
	}
	if _, ok := res.RawData["sent_message_id"]; !ok {
		t.Error("trigger did not send a reply")
	}
	// The message lookup expands to the whole conversation.
	if res.RawData["original_subject"] != "RE: NDC 0001-1234 stock" {
		t.Errorf("latest subject = %v, want the newest message's", res.RawData["original_subject"])
	}
}

func TestProcessTriggerByConversation(t *testing.T) {
	provider := newInboxProvider(t, twoMessageInbox)
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)
	o := NewOrchestrator(f.pipe, provider)

	res, err := o.ProcessTrigger(context.Background(), TriggerRequest{ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("ProcessTrigger: %v", err)
	}
	if res.ThreadID != "conv-1" {
		t.Errorf("thread ID = %q, want conv-1", res.ThreadID)
	}
	if f.classifier.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", f.classifier.calls)
	}
}

func TestProcessTriggerMessageNotFound(t *testing.T) {
	provider := newInboxProvider(t, twoMessageInbox)
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)
	o := NewOrchestrator(f.pipe, provider)

	_, err := o.ProcessTrigger(context.Background(), TriggerRequest{MessageID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if f.classifier.calls != 0 {
		t.Error("pipeline ran for a missing message")
	}
}

func TestProcessTriggerEmptyRequest(t *testing.T) {
	provider := newInboxProvider(t, twoMessageInbox)
	f := newFixture(models.ScenarioSupply, models.SupplyInput{Confidence: 0.9}, false)
	o := NewOrchestrator(f.pipe, provider)

	if _, err := o.ProcessTrigger(context.Background(), TriggerRequest{}); err == nil {
		t.Fatal("expected error for an empty trigger request")
	}
}
