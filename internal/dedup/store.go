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

// Package dedup provides a persistent store preventing duplicate message
// processing and duplicate replies. Triggered message IDs and per-thread
// reply timestamps survive restarts in a JSON file; in-flight and
// recent-failure tracking is in-memory only.
package dedup

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultCooldown is the minimum time between replies to the same
	// conversation.
	DefaultCooldown = 5 * time.Minute

	// DefaultFailedTTL is how long a fetch failure suppresses retries of
	// the same message ID.
	DefaultFailedTTL = 15 * time.Minute
)

// state mirrors the persisted JSON layout.
type state struct {
	TriggeredMessageIDs []string          `json:"triggered_message_ids"`
	ConversationReplies map[string]string `json:"conversation_replies"`
}

// Store tracks triggered and failed message IDs and per-conversation reply
// times. All operations serialise on one lock; it is safe for concurrent
// use by many workers.
type Store struct {
	mu        sync.Mutex
	path      string
	cooldown  time.Duration
	failedTTL time.Duration

	triggered  map[string]struct{}
	replies    map[string]time.Time // conversation ID -> last reply
	processing map[string]struct{}  // in-flight only, never persisted
	failed     map[string]time.Time // message ID -> failure time, TTL-bounded

	now func() time.Time // test hook
}

// NewStore creates a store backed by the JSON file at path, loading any
// previously persisted state. A missing or corrupt file starts the store
// empty rather than failing.
func NewStore(path string, cooldown, failedTTL time.Duration) *Store {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if failedTTL <= 0 {
		failedTTL = DefaultFailedTTL
	}
	s := &Store{
		path:       path,
		cooldown:   cooldown,
		failedTTL:  failedTTL,
		triggered:  make(map[string]struct{}),
		replies:    make(map[string]time.Time),
		processing: make(map[string]struct{}),
		failed:     make(map[string]time.Time),
		now:        time.Now,
	}
	s.load()
	return s
}

// load reads persisted state from disk. Errors are logged and swallowed;
// the store degrades to empty in-memory state.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("dedup store load failed", "path", s.path, "error", err)
		}
		return
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("dedup store file corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	for _, id := range st.TriggeredMessageIDs {
		s.triggered[id] = struct{}{}
	}
	for conv, ts := range st.ConversationReplies {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		s.replies[conv] = t
	}
}

// save writes persisted state to disk. Caller must hold the lock.
// Errors are logged and swallowed — availability over durability for this
// auxiliary state.
func (s *Store) save() {
	st := state{
		TriggeredMessageIDs: make([]string, 0, len(s.triggered)),
		ConversationReplies: make(map[string]string, len(s.replies)),
	}
	for id := range s.triggered {
		st.TriggeredMessageIDs = append(st.TriggeredMessageIDs, id)
	}
	for conv, t := range s.replies {
		st.ConversationReplies[conv] = t.UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		slog.Error("dedup store marshal failed", "error", err)
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("dedup store mkdir failed", "path", s.path, "error", err)
			return
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		slog.Error("dedup store save failed", "path", s.path, "error", err)
	}
}

// HasTriggered reports whether the message ID was already accepted for
// processing.
func (s *Store) HasTriggered(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggered[messageID]
	return ok
}

// MarkTriggered atomically claims a message ID. Exactly one concurrent
// caller for a given ID observes true; everyone else gets false. A
// successful claim is persisted immediately.
func (s *Store) MarkTriggered(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.triggered[messageID]; ok {
		return false
	}
	s.triggered[messageID] = struct{}{}
	s.save()
	return true
}

// IsProcessing reports whether the message is currently in flight.
// In-flight state is memory-only and lost on restart by design.
func (s *Store) IsProcessing(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processing[messageID]
	return ok
}

// AddProcessing marks a message as in flight.
func (s *Store) AddProcessing(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing[messageID] = struct{}{}
}

// RemoveProcessing clears the in-flight mark.
func (s *Store) RemoveProcessing(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, messageID)
}

// HasFailed reports whether the message ID failed to fetch within the
// failure TTL. Expired entries are purged lazily here, which makes a
// once-failed ID eligible for retry after the TTL elapses.
func (s *Store) HasFailed(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.failed[messageID]
	if !ok {
		return false
	}
	if s.now().Sub(at) >= s.failedTTL {
		delete(s.failed, messageID)
		return false
	}
	return true
}

// MarkFailed records a fetch failure for the message ID. Not persisted.
func (s *Store) MarkFailed(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[messageID] = s.now()
}

// HasRecentReply reports whether a reply was recorded for the conversation
// within the cooldown window. Empty conversation IDs never match.
func (s *Store) HasRecentReply(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.replies[conversationID]
	if !ok {
		return false
	}
	return s.now().Sub(last) < s.cooldown
}

// MarkReplied records now as the conversation's last reply time and
// persists. A no-op for empty conversation IDs.
func (s *Store) MarkReplied(conversationID string) {
	if conversationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[conversationID] = s.now()
	s.save()
	slog.Debug("reply recorded", "conversation_id", conversationID)
}
