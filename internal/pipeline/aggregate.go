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

// AggregateContext pulls the decision, NDC, distributor, and year fields
// out of the classification decision and the scenario's extracted inputs
// for the review stage. Pure reshaping; no external calls.
func AggregateContext(decision models.ScenarioDecision, inputs models.ExtractedInput) models.AggregatedContext {
	agg := models.AggregatedContext{Decision: decision.Scenario}

	switch in := inputs.(type) {
	case models.SupplyInput:
		agg.NDC = in.NDC
		agg.Distributor = in.Distributor
	case models.AccessInput:
		agg.NDC = in.NDC
		agg.Distributor = in.Distributor
	case models.AllocationInput:
		agg.NDC = in.NDC
		agg.Distributor = in.Distributor
		agg.Year = in.YearStart
		agg.YearEnd = in.YearEnd
		if agg.Year == 0 {
			agg.Year = in.YearEnd
		}
	}

	return agg
}
