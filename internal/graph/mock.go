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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a file-backed Provider: the inbox comes from a JSON
// file, and replies are appended to a sent-items JSON file instead of
// going over the network. Used by batch mode and tests.
type MockProvider struct {
	mu        sync.Mutex
	inboxPath string
	sentPath  string
	inbox     []Message
}

// NewMockProvider loads the inbox file at inboxPath. The file may be a
// bare array of Graph messages or an envelope with a "value" array. A
// missing inbox is not an error; it just yields an empty mailbox.
func NewMockProvider(inboxPath, sentPath string) (*MockProvider, error) {
	p := &MockProvider{
		inboxPath: inboxPath,
		sentPath:  sentPath,
	}

	data, err := os.ReadFile(inboxPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("mock inbox missing", "path", inboxPath)
			return p, nil
		}
		return nil, fmt.Errorf("read inbox %s: %w", inboxPath, err)
	}

	var direct []Message
	if err := json.Unmarshal(data, &direct); err == nil {
		p.inbox = direct
	} else {
		var envelope struct {
			Value []Message `json:"value"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("parse inbox %s: %w", inboxPath, err)
		}
		p.inbox = envelope.Value
	}

	slog.Info("mock inbox loaded", "path", inboxPath, "messages", len(p.inbox))
	return p, nil
}

// Messages returns a copy of the mock inbox.
func (p *MockProvider) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.inbox))
	copy(out, p.inbox)
	return out
}

// GetMessage returns the inbox message with the given ID, or nil.
func (p *MockProvider) GetMessage(_ context.Context, _, messageID string) (*Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.inbox {
		if p.inbox[i].ID == messageID {
			m := p.inbox[i]
			return &m, nil
		}
	}
	return nil, nil
}

// GetConversation returns all inbox messages with the given conversation
// ID ordered by received time. When nothing matches, it falls back to
// treating the argument as a message ID.
func (p *MockProvider) GetConversation(ctx context.Context, userID, conversationID string) ([]Message, error) {
	p.mu.Lock()
	var matching []Message
	for _, m := range p.inbox {
		if m.ConversationID == conversationID {
			matching = append(matching, m)
		}
	}
	p.mu.Unlock()

	if len(matching) == 0 {
		msg, err := p.GetMessage(ctx, userID, conversationID)
		if err != nil || msg == nil {
			return nil, err
		}
		return []Message{*msg}, nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].ReceivedDateTime < matching[j].ReceivedDateTime
	})
	return matching, nil
}

// sentItem is one record in the sent-items file.
type sentItem struct {
	Message
	InReplyTo string `json:"in_reply_to"`
	SentAt    string `json:"sent_at"`
}

func (p *MockProvider) appendSent(messageID, comment string, draft bool) (*Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var original *Message
	for i := range p.inbox {
		if p.inbox[i].ID == messageID {
			original = &p.inbox[i]
			break
		}
	}
	if original == nil {
		return nil, fmt.Errorf("message not found: %s", messageID)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	sent := sentItem{
		Message: Message{
			ID:               "sent-" + uuid.New().String(),
			ConversationID:   original.ConversationID,
			ReceivedDateTime: now,
			Subject:          "RE: " + original.Subject,
			Body:             ItemBody{ContentType: "text", Content: comment},
			ToRecipients:     []Recipient{{EmailAddress: EmailAddress{Address: original.SenderAddress(), Name: original.SenderName()}}},
			IsDraft:          draft,
		},
		InReplyTo: messageID,
		SentAt:    now,
	}

	var items []sentItem
	if data, err := os.ReadFile(p.sentPath); err == nil {
		// Best effort; a corrupt sent file starts a fresh one.
		_ = json.Unmarshal(data, &items)
	}
	items = append(items, sent)

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sent items: %w", err)
	}
	if dir := filepath.Dir(p.sentPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sent dir: %w", err)
		}
	}
	if err := os.WriteFile(p.sentPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write sent items %s: %w", p.sentPath, err)
	}

	m := sent.Message
	return &m, nil
}

// ReplyToMessage records a reply in the sent-items file.
func (p *MockProvider) ReplyToMessage(_ context.Context, _, messageID, comment string) (*Message, error) {
	msg, err := p.appendSent(messageID, comment, false)
	if err != nil {
		return nil, err
	}
	slog.Info("mock reply recorded", "reply_to_message_id", messageID, "sent_id", msg.ID)
	return msg, nil
}

// CreateReplyDraft records a draft in the sent-items file.
func (p *MockProvider) CreateReplyDraft(_ context.Context, _, messageID, comment string) (*Message, error) {
	msg, err := p.appendSent(messageID, comment, true)
	if err != nil {
		return nil, err
	}
	slog.Info("mock reply draft recorded", "reply_to_message_id", messageID, "draft_id", msg.ID)
	return msg, nil
}

// CreateSubscription returns a synthetic subscription; the mock has no
// notification source.
func (p *MockProvider) CreateSubscription(_ context.Context, req SubscriptionRequest) (*Subscription, error) {
	exp := req.Expiration
	if exp <= 0 {
		exp = time.Hour
	}
	return &Subscription{
		ID:        "mock-sub-" + uuid.New().String(),
		Resource:  "me/mailFolders('Inbox')/messages",
		ExpiresAt: time.Now().UTC().Add(exp),
	}, nil
}
