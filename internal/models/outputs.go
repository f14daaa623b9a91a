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

package models

// Scenario is one of the four business-intent categories an inbound
// thread is classified into.
type Scenario string

const (
	ScenarioSupply     Scenario = "S1" // product supply / inventory
	ScenarioAccess     Scenario = "S2" // product access / class of trade
	ScenarioAllocation Scenario = "S3" // product allocation
	ScenarioCatchAll   Scenario = "S4" // everything else
)

// Valid reports whether s is one of the four known scenarios.
func (s Scenario) Valid() bool {
	switch s {
	case ScenarioSupply, ScenarioAccess, ScenarioAllocation, ScenarioCatchAll:
		return true
	}
	return false
}

// ScenarioDecision is the classification stage output.
type ScenarioDecision struct {
	Scenario   Scenario `json:"scenario"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// TriggerData holds supporting facts fetched for a scenario (inventory
// counts, customer attributes, allocation totals, similar documents)
// plus a source tag identifying provenance. Read-only once produced.
type TriggerData struct {
	Source string         `json:"source"`
	Facts  map[string]any `json:"facts"`
}

// DraftEmail is the drafting stage output. Scenario and the trigger_source
// metadata entry are stamped after generation; the draft is not mutated
// afterwards.
type DraftEmail struct {
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Scenario Scenario       `json:"scenario"`
	Metadata map[string]any `json:"metadata"`
}

// Review statuses.
const (
	ReviewApproved         = "approved"
	ReviewNeedsHumanReview = "needs_human_review"
)

// ReviewResult is the review stage output.
type ReviewResult struct {
	Status        string   `json:"status"`
	Confidence    float64  `json:"confidence"`
	QualityScore  float64  `json:"quality_score"`
	AccuracyNotes []string `json:"accuracy_notes"`
	Suggestions   []string `json:"suggestions"`
}

// AggregatedContext is the pure-reshaping aggregate stage output feeding
// the review context: decision, NDC, distributor, and year fields pulled
// from the classifier decision and extracted inputs. No LLM involved.
type AggregatedContext struct {
	Decision    Scenario `json:"decision"`
	NDC         string   `json:"ndc,omitempty"`
	Distributor string   `json:"distributor,omitempty"`
	Year        int      `json:"year,omitempty"`
	YearEnd     int      `json:"year_end,omitempty"`
}

// FinalEmail is the formatting stage output. To is backfilled from the
// reply-to address when the formatter leaves it empty.
type FinalEmail struct {
	To           string         `json:"to,omitempty"`
	Subject      string         `json:"subject"`
	Body         string         `json:"body"`
	ReviewStatus string         `json:"review_status"`
	Metadata     map[string]any `json:"metadata"`
}

// ProcessingResult is the terminal aggregate of one pipeline run.
// Created once at completion and never mutated after return.
type ProcessingResult struct {
	ThreadID           string         `json:"thread_id"`
	Scenario           Scenario       `json:"scenario"`
	DecisionConfidence float64        `json:"decision_confidence"`
	Draft              DraftEmail     `json:"draft"`
	Review             ReviewResult   `json:"review"`
	FinalEmail         FinalEmail     `json:"final_email"`
	RawData            map[string]any `json:"raw_data"`
}
