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
	"fmt"
	"log/slog"
	"time"

	"github.com/pharmatrade/autoreply/internal/graph"
	"github.com/pharmatrade/autoreply/internal/models"
)

// ErrNotFound reports that the message or conversation a trigger named
// does not exist in the mailbox.
var ErrNotFound = errors.New("not found")

// TriggerRequest identifies the unit of work to process: either a
// message ID (preferred — the reply targets that message) or a
// conversation ID. UserID scopes the mailbox when the notification
// named one.
type TriggerRequest struct {
	MessageID      string
	ConversationID string
	UserID         string
}

// Orchestrator resolves trigger requests into full email threads and
// runs the pipeline over them, performing the reply side effect at most
// once per accepted invocation.
type Orchestrator struct {
	pipeline *Pipeline
	provider graph.Provider
}

// NewOrchestrator creates an orchestrator bound to a mail provider.
func NewOrchestrator(p *Pipeline, provider graph.Provider) *Orchestrator {
	return &Orchestrator{pipeline: p, provider: provider}
}

// ProcessTrigger fetches the thread for the request and processes it.
// Message lookups expand to the full conversation when one exists; a
// conversation lookup that fails falls back to the single message.
func (o *Orchestrator) ProcessTrigger(ctx context.Context, req TriggerRequest) (models.ProcessingResult, error) {
	start := time.Now()
	log := slog.With("message_id", req.MessageID, "conversation_id", req.ConversationID)
	log.Info("processing trigger")

	var messages []graph.Message
	replyTo := req.MessageID

	switch {
	case req.MessageID != "":
		msg, err := o.provider.GetMessage(ctx, req.UserID, req.MessageID)
		if err != nil {
			return models.ProcessingResult{}, fmt.Errorf("fetch message %s: %w", req.MessageID, err)
		}
		if msg == nil {
			return models.ProcessingResult{}, fmt.Errorf("message %s: %w", req.MessageID, ErrNotFound)
		}
		if msg.ConversationID != "" {
			messages, err = o.provider.GetConversation(ctx, req.UserID, msg.ConversationID)
			if err != nil || len(messages) == 0 {
				// Conversation queries can trail the message itself;
				// process the single message rather than dropping it.
				log.Debug("conversation lookup empty, using single message", "error", err)
				messages = []graph.Message{*msg}
			}
		} else {
			messages = []graph.Message{*msg}
		}

	case req.ConversationID != "":
		var err error
		messages, err = o.provider.GetConversation(ctx, req.UserID, req.ConversationID)
		if err != nil {
			return models.ProcessingResult{}, fmt.Errorf("fetch conversation %s: %w", req.ConversationID, err)
		}
		if len(messages) == 0 {
			return models.ProcessingResult{}, fmt.Errorf("conversation %s: %w", req.ConversationID, ErrNotFound)
		}
		replyTo = messages[len(messages)-1].ID

	default:
		return models.ProcessingResult{}, errors.New("trigger needs a message or conversation ID")
	}

	thread, err := graph.ThreadFromMessages(messages)
	if err != nil {
		return models.ProcessingResult{}, fmt.Errorf("build thread: %w", err)
	}

	result, err := o.pipeline.Run(ctx, thread, RunOptions{
		Provider:         o.provider,
		ReplyToMessageID: replyTo,
		UserID:           req.UserID,
	})
	if err != nil {
		return models.ProcessingResult{}, err
	}

	log.Info("trigger processed",
		"thread_id", result.ThreadID,
		"scenario", result.Scenario,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
