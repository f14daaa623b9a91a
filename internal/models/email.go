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

// Package models defines the data structures shared across the automation
// service: emails, threads, and the typed outputs of each pipeline stage.
package models

import (
	"fmt"
	"time"
)

// Email is a single message. Immutable once constructed.
type Email struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"` // sanitized plain text
	Timestamp  time.Time `json:"timestamp"`
	ThreadID   string    `json:"thread_id,omitempty"`
}

// EmailThread is an ordered sequence of emails (oldest first) sharing a
// thread ID. Latest always references the last element of Emails.
type EmailThread struct {
	ThreadID string  `json:"thread_id"`
	Emails   []Email `json:"emails"`
	Latest   Email   `json:"latest_email"`
}

// NewThread builds a thread from emails already ordered oldest to newest.
func NewThread(threadID string, emails []Email) (EmailThread, error) {
	if len(emails) == 0 {
		return EmailThread{}, fmt.Errorf("thread %s: at least one email required", threadID)
	}
	return EmailThread{
		ThreadID: threadID,
		Emails:   emails,
		Latest:   emails[len(emails)-1],
	}, nil
}
