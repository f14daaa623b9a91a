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

package allowlist

import (
	"os"
	"path/filepath"
	"testing"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "allowed_senders.json")
}

func TestEmptyListRejectsAll(t *testing.T) {
	a := Load(tempPath(t))
	if a.Allows("buyer@distributor.com") {
		t.Error("empty allowlist allowed a sender")
	}
	if len(a.List()) != 0 {
		t.Errorf("list = %v, want empty", a.List())
	}
}

func TestLoadNormalizesAndDeduplicates(t *testing.T) {
	path := tempPath(t)
	content := `{"allowed_senders": [
		"Buyer@Distributor.com",
		" buyer@distributor.com ",
		"ops@pharmacy.example",
		"not-an-email",
		""
	]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write allowlist: %v", err)
	}

	a := Load(path)
	got := a.List()
	if len(got) != 2 {
		t.Fatalf("list = %v, want 2 entries", got)
	}
	if got[0] != "buyer@distributor.com" || got[1] != "ops@pharmacy.example" {
		t.Errorf("list = %v", got)
	}
	if !a.Allows("BUYER@distributor.com") {
		t.Error("case-insensitive match failed")
	}
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := tempPath(t)
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write allowlist: %v", err)
	}
	a := Load(path)
	if len(a.List()) != 0 {
		t.Errorf("list = %v, want empty", a.List())
	}
}

func TestAddPersists(t *testing.T) {
	path := tempPath(t)
	a := Load(path)

	if err := a.Add("Buyer@Distributor.com"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !a.Allows("buyer@distributor.com") {
		t.Error("added sender not allowed")
	}
	// Duplicate adds are idempotent.
	if err := a.Add("buyer@distributor.com"); err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}
	if len(a.List()) != 1 {
		t.Errorf("list = %v, want 1 entry", a.List())
	}

	reloaded := Load(path)
	if !reloaded.Allows("buyer@distributor.com") {
		t.Error("added sender lost across reload")
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	a := Load(tempPath(t))
	for _, addr := range []string{"", "no-at-sign", "Dana Buyer <buyer@distributor.com>"} {
		if err := a.Add(addr); err == nil {
			t.Errorf("Add(%q) accepted an invalid address", addr)
		}
	}
}

func TestRemovePersists(t *testing.T) {
	path := tempPath(t)
	a := Load(path)
	if err := a.Add("buyer@distributor.com"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := a.Remove("BUYER@distributor.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if a.Allows("buyer@distributor.com") {
		t.Error("removed sender still allowed")
	}
	// Removing an absent address is a no-op.
	if err := a.Remove("ghost@nowhere.example"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}

	reloaded := Load(path)
	if reloaded.Allows("buyer@distributor.com") {
		t.Error("removal lost across reload")
	}
}
