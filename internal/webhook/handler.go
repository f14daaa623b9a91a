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

package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/pharmatrade/autoreply/internal/allowlist"
	"github.com/pharmatrade/autoreply/internal/dedup"
	"github.com/pharmatrade/autoreply/internal/graph"
)

// Handler serves the webhook HTTP surface: Graph change notifications,
// liveness, and the sender-allowlist CRUD.
type Handler struct {
	pool        *Pool
	provider    graph.Provider
	store       *dedup.Store
	allow       *allowlist.Allowlist
	outcomes    OutcomeReader
	clientState string

	// enqueueCtx bounds background enqueues so a full queue at shutdown
	// does not leak goroutines.
	enqueueCtx context.Context
}

// NewHandler creates the webhook handler. clientState, when non-empty,
// must match every notification's clientState or the notification is
// treated as forged and dropped. outcomes may be nil; the analytics
// endpoints then answer 503.
func NewHandler(ctx context.Context, pool *Pool, provider graph.Provider, store *dedup.Store, allow *allowlist.Allowlist, outcomes OutcomeReader, clientState string) *Handler {
	return &Handler{
		pool:        pool,
		provider:    provider,
		store:       store,
		allow:       allow,
		outcomes:    outcomes,
		clientState: strings.TrimSpace(clientState),
		enqueueCtx:  ctx,
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// ServeNotifications handles GET|POST /webhook/notifications.
//
// Graph validation flow: subscription creation probes the endpoint with
// ?validationToken=<token> and expects the token echoed back as plain
// text with 200.
//
// Notification flow: a JSON body {"value": [...]} answered 202
// immediately; filtering and enqueueing happen in the background.
// Internal failures never surface to Graph — a non-2xx would only make
// it redeliver.
func (h *Handler) ServeNotifications(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		slog.Info("subscription validation probe received")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, token)
		return
	}

	if h.provider == nil {
		slog.Error("notification received but no mail provider configured")
		writeJSON(w, http.StatusServiceUnavailable, `{"status":"no provider"}`)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("failed to read notification body", "error", err)
		writeJSON(w, http.StatusAccepted, `{"status":"accepted"}`)
		return
	}

	var batch NotificationBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		slog.Warn("notification body not valid JSON, dropping", "body_len", len(body))
		writeJSON(w, http.StatusAccepted, `{"status":"accepted"}`)
		return
	}

	// Respond before processing — Graph expects a fast answer.
	writeJSON(w, http.StatusAccepted, `{"status":"accepted"}`)

	if len(batch.Value) == 0 {
		slog.Debug("empty notification batch")
		return
	}
	go h.filterAndEnqueue(batch.Value)
}

// filterAndEnqueue runs the fast-path filter chain over a notification
// batch and enqueues survivors. Every rejection just moves on to the
// next notification; only the worker's claim is authoritative.
func (h *Handler) filterAndEnqueue(notifications []ChangeNotification) {
	for _, n := range notifications {
		if h.clientState != "" && n.ClientState != h.clientState {
			slog.Warn("clientState mismatch, possible spoofed notification",
				"subscription_id", n.SubscriptionID,
			)
			continue
		}

		if n.ChangeType != "created" {
			slog.Debug("skipping non-created notification", "change_type", n.ChangeType)
			continue
		}

		messageID, userID := ParseNotificationResource(n)
		if messageID == "" {
			slog.Debug("notification carries no resource identifiers",
				"resource", n.Resource,
			)
			continue
		}

		if h.store.IsProcessing(messageID) {
			slog.Debug("skipping in-flight message", "message_id", messageID)
			continue
		}
		if h.store.HasFailed(messageID) {
			slog.Debug("skipping recently failed message", "message_id", messageID)
			continue
		}
		if h.store.HasTriggered(messageID) {
			slog.Debug("skipping already triggered message", "message_id", messageID)
			continue
		}

		if !h.pool.Enqueue(h.enqueueCtx, Candidate{MessageID: messageID, UserID: userID}) {
			slog.Warn("enqueue aborted by shutdown", "message_id", messageID)
			return
		}
		slog.Info("notification accepted", "message_id", messageID, "user_id", userID)
	}
}

// ServeHealth handles GET /health.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, `{"status":"ok"}`)
}

// sendersPayload is the allowlist request/response body.
type sendersPayload struct {
	AllowedSenders []string `json:"allowed_senders"`
}

// ServeAllowedSenders handles /webhook/allowed-senders:
//
//	GET    /webhook/allowed-senders          list
//	POST   /webhook/allowed-senders          add {"email": "..."}
//	DELETE /webhook/allowed-senders/{email}  remove
func (h *Handler) ServeAllowedSenders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, _ := json.Marshal(sendersPayload{AllowedSenders: h.allow.List()})
		writeJSON(w, http.StatusOK, string(data))

	case http.MethodPost:
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"error":"invalid JSON body"}`)
			return
		}
		if err := h.allow.Add(req.Email); err != nil {
			writeJSON(w, http.StatusBadRequest, fmt.Sprintf(`{"error":%q}`, err.Error()))
			return
		}
		data, _ := json.Marshal(sendersPayload{AllowedSenders: h.allow.List()})
		writeJSON(w, http.StatusOK, string(data))

	case http.MethodDelete:
		email := strings.TrimPrefix(r.URL.Path, "/webhook/allowed-senders/")
		if email == "" || email == r.URL.Path {
			writeJSON(w, http.StatusBadRequest, `{"error":"missing email in path"}`)
			return
		}
		if err := h.allow.Remove(email); err != nil {
			writeJSON(w, http.StatusInternalServerError, fmt.Sprintf(`{"error":%q}`, err.Error()))
			return
		}
		data, _ := json.Marshal(sendersPayload{AllowedSenders: h.allow.List()})
		writeJSON(w, http.StatusOK, string(data))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Mux returns the webhook route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/notifications", h.ServeNotifications)
	mux.HandleFunc("/webhook/allowed-senders", h.ServeAllowedSenders)
	mux.HandleFunc("/webhook/allowed-senders/", h.ServeAllowedSenders)
	mux.HandleFunc("/webhook/analytics/", h.ServeAnalytics)
	mux.HandleFunc("/health", h.ServeHealth)
	return mux
}

// Serve starts the webhook HTTP server on the given port. It binds the
// port immediately and signals readiness via the returned channel —
// Graph validates the endpoint the moment a subscription is created, so
// the listener must be up first.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{Handler: handler.Mux()}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return ready, nil
}
