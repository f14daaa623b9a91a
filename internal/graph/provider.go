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

// Package graph provides the mail-provider capability interface and its
// two implementations: a network client for the Microsoft Graph API and a
// file-backed mock for batch runs and tests.
package graph

import (
	"context"
	"time"
)

// EmailAddress is the Graph emailAddress shape.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Recipient wraps an address the way Graph does for from/to/cc fields.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is the Graph message body.
type ItemBody struct {
	ContentType string `json:"contentType"` // "text" | "html"
	Content     string `json:"content"`
}

// Message is the subset of the Graph message resource the service needs.
type Message struct {
	ID               string      `json:"id"`
	ConversationID   string      `json:"conversationId,omitempty"`
	ReceivedDateTime string      `json:"receivedDateTime,omitempty"` // ISO 8601
	Subject          string      `json:"subject"`
	Body             ItemBody    `json:"body"`
	From             *Recipient  `json:"from,omitempty"`
	ToRecipients     []Recipient `json:"toRecipients,omitempty"`
	ReplyTo          []Recipient `json:"replyTo,omitempty"`
	IsDraft          bool        `json:"isDraft,omitempty"`
}

// SenderAddress returns the from address, or "" when unresolvable.
func (m *Message) SenderAddress() string {
	if m.From == nil {
		return ""
	}
	return m.From.EmailAddress.Address
}

// SenderName returns the from display name, or "" when absent.
func (m *Message) SenderName() string {
	if m.From == nil {
		return ""
	}
	return m.From.EmailAddress.Name
}

// SubscriptionRequest describes a change-notification subscription to create.
type SubscriptionRequest struct {
	NotificationURL string
	ClientState     string
	Expiration      time.Duration
}

// Subscription is the created Graph subscription.
type Subscription struct {
	ID        string    `json:"id"`
	Resource  string    `json:"resource"`
	ExpiresAt time.Time `json:"expirationDateTime"`
}

// Provider is the mail collaborator. Message and conversation lookups
// return nil (or an empty slice) without error when the item does not
// exist; transport and API failures are returned as errors.
//
// userID scopes the mailbox; the empty string means the default
// (signed-in or application primary) mailbox.
type Provider interface {
	GetMessage(ctx context.Context, userID, messageID string) (*Message, error)
	GetConversation(ctx context.Context, userID, conversationID string) ([]Message, error)
	ReplyToMessage(ctx context.Context, userID, messageID, comment string) (*Message, error)
	CreateReplyDraft(ctx context.Context, userID, messageID, comment string) (*Message, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error)
}
