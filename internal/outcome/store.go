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

// Package outcome persists the terminal result of each pipeline run to
// Postgres: one row per processed thread, carrying the draft, the final
// email, the review verdict, and send provenance.
package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmatrade/autoreply/internal/models"
)

// Outcome statuses.
const (
	StatusSent         = "sent"
	StatusDraftCreated = "draft_created"
	StatusRecorded     = "recorded" // dry run, nothing sent or drafted
)

// Record is one persisted pipeline outcome.
type Record struct {
	ID             int64          `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Scenario       string         `json:"scenario"`
	Status         string         `json:"status"`
	ReviewStatus   string         `json:"review_status"`
	DraftSubject   string         `json:"draft_subject"`
	DraftBody      string         `json:"draft_body"`
	FinalSubject   string         `json:"final_subject"`
	FinalBody      string         `json:"final_body"`
	FinalTo        string         `json:"final_to"`
	SentMessageID  string         `json:"sent_message_id,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	RawData        map[string]any `json:"raw_data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Store writes and reads pipeline outcomes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the outcome store backed by the given Postgres pool.
// It ensures the outcomes table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure outcome schema: %w", err)
	}
	slog.Info("outcome store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_outcomes (
			id              BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			scenario        TEXT NOT NULL,
			status          TEXT NOT NULL,
			review_status   TEXT DEFAULT '',
			draft_subject   TEXT DEFAULT '',
			draft_body      TEXT DEFAULT '',
			final_subject   TEXT DEFAULT '',
			final_body      TEXT DEFAULT '',
			final_to        TEXT DEFAULT '',
			sent_message_id TEXT DEFAULT '',
			sent_at         TIMESTAMPTZ,
			raw_data        JSONB DEFAULT '{}',
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_conversation ON email_outcomes(conversation_id);
		CREATE INDEX IF NOT EXISTS idx_outcomes_scenario ON email_outcomes(scenario);
		CREATE INDEX IF NOT EXISTS idx_outcomes_status ON email_outcomes(status)
	`)
	return err
}

// Record implements webhook.ResultSink. The outcome status is derived
// from which side effect the send stage reported.
func (s *Store) Record(ctx context.Context, res models.ProcessingResult) error {
	status := StatusRecorded
	var (
		sentMessageID string
		sentAt        *time.Time
	)
	if id, ok := res.RawData["sent_message_id"].(string); ok && id != "" {
		status = StatusSent
		sentMessageID = id
		if ts, ok := res.RawData["sent_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				sentAt = &t
			}
		}
	} else if _, ok := res.RawData["draft_message_id"]; ok {
		status = StatusDraftCreated
	}

	rawJSON, err := json.Marshal(res.RawData)
	if err != nil {
		return fmt.Errorf("marshal raw data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO email_outcomes
			(conversation_id, scenario, status, review_status,
			 draft_subject, draft_body, final_subject, final_body, final_to,
			 sent_message_id, sent_at, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		res.ThreadID, string(res.Scenario), status, res.Review.Status,
		res.Draft.Subject, res.Draft.Body,
		res.FinalEmail.Subject, res.FinalEmail.Body, res.FinalEmail.To,
		sentMessageID, sentAt, rawJSON,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	slog.Debug("outcome recorded",
		"conversation_id", res.ThreadID,
		"scenario", res.Scenario,
		"status", status,
	)
	return nil
}

// Counts returns the number of recorded outcomes per status.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM email_outcomes
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		StatusSent:         0,
		StatusDraftCreated: 0,
		StatusRecorded:     0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListByConversation returns outcomes for a conversation, newest first.
func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, scenario, status, review_status,
		       draft_subject, draft_body, final_subject, final_body, final_to,
		       sent_message_id, sent_at, raw_data, created_at
		FROM email_outcomes
		WHERE conversation_id = $1
		ORDER BY created_at DESC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListRecent returns the most recent outcomes across all conversations.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, scenario, status, review_status,
		       draft_subject, draft_body, final_subject, final_body, final_to,
		       sent_message_id, sent_at, raw_data, created_at
		FROM email_outcomes
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.ConversationID, &r.Scenario, &r.Status, &r.ReviewStatus,
			&r.DraftSubject, &r.DraftBody, &r.FinalSubject, &r.FinalBody, &r.FinalTo,
			&r.SentMessageID, &r.SentAt, &r.RawData, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
