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

// Package subscription provides a Postgres-backed store for the inbox
// change-notification subscription and a lifecycle manager that creates
// it once the webhook endpoint is reachable and renews it before expiry.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one persisted Graph subscription.
type Record struct {
	ID               int64
	SubscriptionID   string
	ClientState      string
	NotificationURL  string
	ExpiresAt        time.Time
	LastNotification *time.Time
	Status           string // "active", "expired", "removed"
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store provides CRUD operations for subscription records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a subscription store backed by the given Postgres
// pool. It ensures the subscriptions table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure subscription schema: %w", err)
	}
	slog.Info("subscription store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id                BIGSERIAL PRIMARY KEY,
			subscription_id   TEXT NOT NULL UNIQUE,
			client_state      TEXT NOT NULL,
			notification_url  TEXT NOT NULL,
			expires_at        TIMESTAMPTZ NOT NULL,
			last_notification TIMESTAMPTZ,
			status            TEXT DEFAULT 'active',
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			updated_at        TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subs_expires ON subscriptions(expires_at);
		CREATE INDEX IF NOT EXISTS idx_subs_status ON subscriptions(status)
	`)
	return err
}

// Upsert inserts or updates a subscription record keyed on its Graph
// subscription id.
func (s *Store) Upsert(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions
			(subscription_id, client_state, notification_url, expires_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subscription_id) DO UPDATE SET
			client_state     = EXCLUDED.client_state,
			notification_url = EXCLUDED.notification_url,
			expires_at       = EXCLUDED.expires_at,
			status           = EXCLUDED.status,
			updated_at       = NOW()
	`, r.SubscriptionID, r.ClientState, r.NotificationURL, r.ExpiresAt, r.Status)
	return err
}

// Current returns the newest active subscription, or nil when none
// exists.
func (s *Store) Current(ctx context.Context) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, subscription_id, client_state, notification_url,
		       expires_at, last_notification, status, created_at, updated_at
		FROM subscriptions
		WHERE status = 'active'
		ORDER BY expires_at DESC
		LIMIT 1
	`)
	return scanRecord(row)
}

// ListExpiringSoon returns active subscriptions expiring within the
// given buffer.
func (s *Store) ListExpiringSoon(ctx context.Context, buffer time.Duration) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subscription_id, client_state, notification_url,
		       expires_at, last_notification, status, created_at, updated_at
		FROM subscriptions
		WHERE status = 'active' AND expires_at < NOW() + $1::interval
		ORDER BY expires_at
	`, fmt.Sprintf("%d seconds", int(buffer.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.SubscriptionID, &r.ClientState, &r.NotificationURL,
			&r.ExpiresAt, &r.LastNotification, &r.Status, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpdateExpiry updates the expiration time after a successful renewal.
func (s *Store) UpdateExpiry(ctx context.Context, subscriptionID string, newExpiry time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET expires_at = $1, updated_at = NOW()
		WHERE subscription_id = $2
	`, newExpiry, subscriptionID)
	return err
}

// MarkStatus sets the status of a subscription.
func (s *Store) MarkStatus(ctx context.Context, subscriptionID, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = $1, updated_at = NOW()
		WHERE subscription_id = $2
	`, status, subscriptionID)
	return err
}

// TouchNotification updates last_notification to NOW().
func (s *Store) TouchNotification(ctx context.Context, subscriptionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET last_notification = NOW(), updated_at = NOW()
		WHERE subscription_id = $1
	`, subscriptionID)
	return err
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(
		&r.ID, &r.SubscriptionID, &r.ClientState, &r.NotificationURL,
		&r.ExpiresAt, &r.LastNotification, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
