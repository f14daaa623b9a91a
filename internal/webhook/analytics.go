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
	"net/http"
	"strconv"
	"strings"

	"github.com/pharmatrade/autoreply/internal/outcome"
)

// OutcomeReader is the read side of the outcome store behind the
// analytics endpoints.
type OutcomeReader interface {
	Counts(ctx context.Context) (map[string]int, error)
	ListRecent(ctx context.Context, limit int) ([]outcome.Record, error)
	ListByConversation(ctx context.Context, conversationID string) ([]outcome.Record, error)
}

const maxRecentLimit = 500

// ServeAnalytics handles GET /webhook/analytics/...:
//
//	GET /webhook/analytics/counts              outcome totals per status
//	GET /webhook/analytics/recent[?limit=N]    newest outcomes, N capped at 500
//	GET /webhook/analytics/conversations/{id}  outcomes of one conversation
func (h *Handler) ServeAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.outcomes == nil {
		writeJSON(w, http.StatusServiceUnavailable, `{"error":"outcome store not configured"}`)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/webhook/analytics/")
	switch {
	case rest == "counts":
		h.analyticsCounts(w, r)
	case rest == "recent":
		h.analyticsRecent(w, r)
	case strings.HasPrefix(rest, "conversations/"):
		h.analyticsConversation(w, r, strings.TrimPrefix(rest, "conversations/"))
	default:
		writeJSON(w, http.StatusNotFound, `{"error":"unknown analytics path"}`)
	}
}

func (h *Handler) analyticsCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.outcomes.Counts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, `{"error":"counts query failed"}`)
		return
	}
	data, _ := json.Marshal(counts)
	writeJSON(w, http.StatusOK, string(data))
}

func (h *Handler) analyticsRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, `{"error":"limit must be a positive integer"}`)
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	records, err := h.outcomes.ListRecent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, `{"error":"recent query failed"}`)
		return
	}
	h.writeItems(w, records, limit)
}

func (h *Handler) analyticsConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	if conversationID == "" {
		writeJSON(w, http.StatusBadRequest, `{"error":"missing conversation id in path"}`)
		return
	}
	records, err := h.outcomes.ListByConversation(r.Context(), conversationID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, `{"error":"conversation query failed"}`)
		return
	}
	h.writeItems(w, records, 0)
}

// itemsPayload is the analytics list response body.
type itemsPayload struct {
	Items []outcome.Record `json:"items"`
	Limit int              `json:"limit,omitempty"`
}

func (h *Handler) writeItems(w http.ResponseWriter, records []outcome.Record, limit int) {
	if records == nil {
		records = []outcome.Record{}
	}
	data, _ := json.Marshal(itemsPayload{Items: records, Limit: limit})
	writeJSON(w, http.StatusOK, string(data))
}
