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

// Package allowlist maintains the set of sender addresses the webhook is
// allowed to reply to, persisted as JSON. An empty allowlist rejects
// every sender — the service never auto-replies to addresses nobody
// approved.
package allowlist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// fileLayout mirrors the persisted JSON: {"allowed_senders": [...]}.
type fileLayout struct {
	AllowedSenders []string `json:"allowed_senders"`
}

// Allowlist is a concurrency-safe, file-backed set of lowercase sender
// addresses.
type Allowlist struct {
	mu      sync.RWMutex
	path    string
	senders []string
}

// Load reads the allowlist file at path. A missing file yields an empty
// (reject-all) list; invalid entries are skipped with a warning.
func Load(path string) *Allowlist {
	a := &Allowlist{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("allowlist read failed", "path", path, "error", err)
		}
		return a
	}
	var f fileLayout
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("allowlist file corrupt, starting empty", "path", path, "error", err)
		return a
	}

	seen := make(map[string]bool, len(f.AllowedSenders))
	for _, raw := range f.AllowedSenders {
		addr := Normalize(raw)
		if addr == "" || seen[addr] {
			continue
		}
		if !ValidAddress(addr) {
			slog.Warn("allowlist entry invalid, skipped", "email", raw, "path", path)
			continue
		}
		seen[addr] = true
		a.senders = append(a.senders, addr)
	}
	slog.Info("allowlist loaded", "path", path, "senders", len(a.senders))
	return a
}

// Normalize lowercases and trims an address.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidAddress reports whether addr parses as a bare email address.
func ValidAddress(addr string) bool {
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	// Reject display-name forms; the config holds bare addresses.
	return parsed.Address == addr
}

// Allows reports whether the sender address is on the list. An empty
// list allows nothing.
func (a *Allowlist) Allows(addr string) bool {
	addr = Normalize(addr)
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Contains(a.senders, addr)
}

// List returns a copy of the current senders.
func (a *Allowlist) List() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.senders))
	copy(out, a.senders)
	return out
}

// Add validates, persists, and activates a new sender address.
func (a *Allowlist) Add(addr string) error {
	addr = Normalize(addr)
	if !ValidAddress(addr) {
		return fmt.Errorf("invalid email format: %q", addr)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if slices.Contains(a.senders, addr) {
		return nil
	}
	next := append(slices.Clone(a.senders), addr)
	if err := a.persist(next); err != nil {
		return err
	}
	a.senders = next
	slog.Info("allowlist sender added", "email", addr)
	return nil
}

// Remove deletes a sender address, persisting the change. Removing an
// absent address is not an error.
func (a *Allowlist) Remove(addr string) error {
	addr = Normalize(addr)

	a.mu.Lock()
	defer a.mu.Unlock()
	idx := slices.Index(a.senders, addr)
	if idx < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(a.senders), idx, idx+1)
	if err := a.persist(next); err != nil {
		return err
	}
	a.senders = next
	slog.Info("allowlist sender removed", "email", addr)
	return nil
}

// persist writes the given sender list to disk. Caller holds the lock.
func (a *Allowlist) persist(senders []string) error {
	data, err := json.MarshalIndent(fileLayout{AllowedSenders: senders}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal allowlist: %w", err)
	}
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create allowlist dir: %w", err)
		}
	}
	if err := os.WriteFile(a.path, data, 0o644); err != nil {
		return fmt.Errorf("write allowlist %s: %w", a.path, err)
	}
	return nil
}
