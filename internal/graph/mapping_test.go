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

package graph

import (
	"testing"
)

func graphMessage(id, conv, received, subject string) Message {
	return Message{
		ID:               id,
		ConversationID:   conv,
		ReceivedDateTime: received,
		Subject:          subject,
		Body:             ItemBody{ContentType: "text", Content: "body of " + id},
		From: &Recipient{EmailAddress: EmailAddress{
			Address: "buyer@distributor.com",
			Name:    "Dana Buyer",
		}},
	}
}

func TestThreadFromMessagesOrdering(t *testing.T) {
	// Out of order on purpose; the thread must come back oldest first.
	msgs := []Message{
		graphMessage("m-2", "conv-1", "2026-03-01T10:30:00Z", "RE: stock"),
		graphMessage("m-1", "conv-1", "2026-03-01T09:00:00Z", "stock"),
	}

	thread, err := ThreadFromMessages(msgs)
	if err != nil {
		t.Fatalf("ThreadFromMessages: %v", err)
	}
	if thread.ThreadID != "conv-1" {
		t.Errorf("thread ID = %q, want conv-1", thread.ThreadID)
	}
	if len(thread.Emails) != 2 {
		t.Fatalf("emails = %d, want 2", len(thread.Emails))
	}
	if thread.Emails[0].ID != "m-1" || thread.Emails[1].ID != "m-2" {
		t.Errorf("order = %s, %s; want m-1, m-2", thread.Emails[0].ID, thread.Emails[1].ID)
	}
	if thread.Latest.ID != "m-2" {
		t.Errorf("latest = %s, want m-2", thread.Latest.ID)
	}
	if thread.Latest.Sender != "buyer@distributor.com" {
		t.Errorf("sender = %q", thread.Latest.Sender)
	}
	if thread.Latest.SenderName != "Dana Buyer" {
		t.Errorf("sender name = %q", thread.Latest.SenderName)
	}
}

func TestThreadFromMessagesIDFallback(t *testing.T) {
	msgs := []Message{graphMessage("m-9", "", "2026-03-01T09:00:00Z", "one-off")}

	thread, err := ThreadFromMessages(msgs)
	if err != nil {
		t.Fatalf("ThreadFromMessages: %v", err)
	}
	if thread.ThreadID != "m-9" {
		t.Errorf("thread ID = %q, want the message ID fallback", thread.ThreadID)
	}
}

func TestThreadFromMessagesSanitizes(t *testing.T) {
	msg := graphMessage("m-1", "conv-1", "2026-03-01T09:00:00Z", "stock")
	msg.Body = ItemBody{ContentType: "html", Content: "<p>Need 40 units</p>"}

	thread, err := ThreadFromMessages([]Message{msg})
	if err != nil {
		t.Fatalf("ThreadFromMessages: %v", err)
	}
	if thread.Latest.Body != "Need 40 units" {
		t.Errorf("body = %q, want sanitized text", thread.Latest.Body)
	}
}

func TestThreadFromMessagesTimestamps(t *testing.T) {
	msgs := []Message{
		graphMessage("m-1", "conv-1", "2026-03-01T09:00:00Z", "stock"),
		graphMessage("m-2", "conv-1", "not-a-timestamp", "RE: stock"),
	}

	thread, err := ThreadFromMessages(msgs)
	if err != nil {
		t.Fatalf("ThreadFromMessages: %v", err)
	}
	for _, e := range thread.Emails {
		if e.Timestamp.IsZero() {
			t.Errorf("email %s has zero timestamp", e.ID)
		}
	}
}

func TestThreadFromMessagesEmpty(t *testing.T) {
	if _, err := ThreadFromMessages(nil); err == nil {
		t.Fatal("expected error for empty message list")
	}
}
