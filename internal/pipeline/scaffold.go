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

import "github.com/pharmatrade/autoreply/internal/models"

// The allocation scenario runs four scaffold sub-steps before its trigger
// fetch: reply-type decision, data-source selection, allocation check,
// and allocation simulation. They are placeholders for the demand
// analytics integration; their outputs are merged into the fetcher's
// context so the downstream contract is already in place.

func scaffoldReplyType(_ models.ExtractedInput) map[string]any {
	return map[string]any{"reply_type": "allocation_summary", "source": "scaffold"}
}

func scaffoldDataSource(_ models.ExtractedInput) map[string]any {
	return map[string]any{
		"dashboard":   "allocation",
		"report":      "dcs",
		"data_source": "db",
		"source":      "scaffold",
	}
}

func scaffoldAllocationCheck(_ models.ExtractedInput) map[string]any {
	return map[string]any{"check_status": "ok", "source": "scaffold"}
}

func scaffoldSimulation(_ models.ExtractedInput) map[string]any {
	return map[string]any{"simulated": true, "source": "scaffold"}
}

// runAllocationScaffold executes the four sub-steps in order and returns
// their combined context.
func runAllocationScaffold(inputs models.ExtractedInput) map[string]any {
	return map[string]any{
		"reply_type":       scaffoldReplyType(inputs),
		"data_source":      scaffoldDataSource(inputs),
		"allocation_check": scaffoldAllocationCheck(inputs),
		"simulation":       scaffoldSimulation(inputs),
	}
}
