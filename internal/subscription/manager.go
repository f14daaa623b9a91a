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

package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pharmatrade/autoreply/internal/graph"
)

// GraphAPI is the slice of the Graph client the manager needs.
// Satisfied by graph.Client.
type GraphAPI interface {
	CreateSubscription(ctx context.Context, req graph.SubscriptionRequest) (*graph.Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string, extension time.Duration) (*graph.Subscription, error)
}

var _ GraphAPI = (*graph.Client)(nil)

// RecordStore is the slice of the subscription store the manager
// needs. Satisfied by *Store.
type RecordStore interface {
	Current(ctx context.Context) (*Record, error)
	Upsert(ctx context.Context, r Record) error
	UpdateExpiry(ctx context.Context, subscriptionID string, newExpiry time.Time) error
	MarkStatus(ctx context.Context, subscriptionID, status string) error
	ListExpiringSoon(ctx context.Context, buffer time.Duration) ([]Record, error)
}

var _ RecordStore = (*Store)(nil)

// Manager handles creation and renewal of the inbox change-notification
// subscription. Graph validates the notification endpoint synchronously
// during creation, so Start must run only after the webhook server is
// listening.
type Manager struct {
	store           RecordStore
	api             GraphAPI
	notificationURL string
	clientState     string
	renewBuffer     time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ManagerConfig holds the configuration for the lifecycle manager.
type ManagerConfig struct {
	Store           RecordStore
	API             GraphAPI
	NotificationURL string
	ClientState     string

	// RenewBuffer is how close to expiry a subscription may get before
	// the renewal loop extends it.
	RenewBuffer time.Duration
}

// NewManager creates a subscription lifecycle manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.RenewBuffer <= 0 {
		cfg.RenewBuffer = 6 * time.Hour
	}
	return &Manager{
		store:           cfg.Store,
		api:             cfg.API,
		notificationURL: cfg.NotificationURL,
		clientState:     cfg.ClientState,
		renewBuffer:     cfg.RenewBuffer,
	}
}

// Start ensures an active subscription exists, then runs the renewal
// loop in the background.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.ensureSubscription(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.renewalLoop(loopCtx)

	slog.Info("subscription lifecycle manager started", "renew_buffer", m.renewBuffer)
	return nil
}

// Stop shuts down the renewal loop.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	slog.Info("subscription lifecycle manager stopped")
}

// ensureSubscription reuses the stored active subscription when it is
// far from expiry, renews it when it is close, and creates a fresh one
// otherwise.
func (m *Manager) ensureSubscription(ctx context.Context) error {
	existing, err := m.store.Current(ctx)
	if err != nil {
		return fmt.Errorf("check existing subscription: %w", err)
	}

	if existing != nil {
		until := time.Until(existing.ExpiresAt)
		switch {
		case until > m.renewBuffer:
			slog.Debug("subscription already active",
				"subscription_id", existing.SubscriptionID,
				"expires_at", existing.ExpiresAt,
			)
			return nil
		case until > 0:
			slog.Info("renewing near-expiry subscription",
				"subscription_id", existing.SubscriptionID,
				"expires_in", until.Round(time.Minute),
			)
			if err := m.renew(ctx, *existing); err == nil {
				return nil
			}
			// Renewal failed; fall through to creation.
		default:
			if err := m.store.MarkStatus(ctx, existing.SubscriptionID, "expired"); err != nil {
				slog.Error("failed to mark subscription expired", "error", err)
			}
		}
	}

	return m.create(ctx)
}

// create registers a new inbox subscription and persists it.
func (m *Manager) create(ctx context.Context) error {
	sub, err := m.api.CreateSubscription(ctx, graph.SubscriptionRequest{
		NotificationURL: m.notificationURL,
		ClientState:     m.clientState,
	})
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	record := Record{
		SubscriptionID:  sub.ID,
		ClientState:     m.clientState,
		NotificationURL: m.notificationURL,
		ExpiresAt:       sub.ExpiresAt,
		Status:          "active",
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}

	slog.Info("subscription created",
		"subscription_id", sub.ID,
		"expires_at", sub.ExpiresAt,
	)
	return nil
}

// renew extends the expiry of an existing subscription. A 404 from
// Graph means the subscription is gone and a new one is created.
func (m *Manager) renew(ctx context.Context, rec Record) error {
	sub, err := m.api.RenewSubscription(ctx, rec.SubscriptionID, 0)
	if err != nil {
		slog.Warn("subscription renewal failed, re-creating",
			"subscription_id", rec.SubscriptionID,
			"error", err,
		)
		if err := m.store.MarkStatus(ctx, rec.SubscriptionID, "removed"); err != nil {
			slog.Error("failed to mark subscription removed", "error", err)
		}
		return m.create(ctx)
	}

	if err := m.store.UpdateExpiry(ctx, rec.SubscriptionID, sub.ExpiresAt); err != nil {
		return fmt.Errorf("update expiry in store: %w", err)
	}

	slog.Info("subscription renewed",
		"subscription_id", rec.SubscriptionID,
		"new_expiry", sub.ExpiresAt,
	)
	return nil
}

// renewalLoop periodically renews subscriptions close to expiry.
func (m *Manager) renewalLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.renewBuffer / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renewExpiring(ctx)
		}
	}
}

func (m *Manager) renewExpiring(ctx context.Context) {
	records, err := m.store.ListExpiringSoon(ctx, m.renewBuffer)
	if err != nil {
		slog.Error("failed to list expiring subscriptions", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	slog.Info("renewing expiring subscriptions", "count", len(records))
	for _, rec := range records {
		if err := m.renew(ctx, rec); err != nil {
			slog.Error("renewal failed",
				"subscription_id", rec.SubscriptionID,
				"error", err,
			)
		}
	}
}
