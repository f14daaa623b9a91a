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

// ExtractedInput is the per-scenario structured extraction from a thread.
// Each variant carries a confidence score and any field names the
// extractor could not resolve. Produced once per run; never mutated.
type ExtractedInput interface {
	InputConfidence() float64
	MissingFields() []string
}

// SupplyInput holds extracted fields for product supply (S1).
type SupplyInput struct {
	Location    string   `json:"location,omitempty"`
	Distributor string   `json:"distributor,omitempty"`
	NDC         string   `json:"ndc,omitempty"`
	Confidence  float64  `json:"confidence"`
	Missing     []string `json:"missing_fields,omitempty"`
}

func (i SupplyInput) InputConfidence() float64 { return i.Confidence }
func (i SupplyInput) MissingFields() []string  { return i.Missing }

// AccessInput holds extracted fields for product access (S2).
type AccessInput struct {
	Customer    string   `json:"customer,omitempty"`
	Distributor string   `json:"distributor,omitempty"`
	NDC         string   `json:"ndc,omitempty"`
	DEANumber   string   `json:"dea_number,omitempty"`
	Address     string   `json:"address,omitempty"`
	Is340B      *bool    `json:"is_340b,omitempty"`
	Contact     string   `json:"contact,omitempty"`
	Confidence  float64  `json:"confidence"`
	Missing     []string `json:"missing_fields,omitempty"`
}

func (i AccessInput) InputConfidence() float64 { return i.Confidence }
func (i AccessInput) MissingFields() []string  { return i.Missing }

// AllocationInput holds extracted fields for product allocation (S3).
type AllocationInput struct {
	Urgency     string   `json:"urgency,omitempty"`
	YearStart   int      `json:"year_start,omitempty"`
	YearEnd     int      `json:"year_end,omitempty"`
	Distributor string   `json:"distributor,omitempty"`
	NDC         string   `json:"ndc,omitempty"`
	Confidence  float64  `json:"confidence"`
	Missing     []string `json:"missing_fields,omitempty"`
}

func (i AllocationInput) InputConfidence() float64 { return i.Confidence }
func (i AllocationInput) MissingFields() []string  { return i.Missing }

// CatchAllInput holds extracted topics for the catch-all scenario (S4),
// used to search similar past correspondence.
type CatchAllInput struct {
	Topics          []string `json:"topics,omitempty"`
	QuestionSummary string   `json:"question_summary,omitempty"`
	Confidence      float64  `json:"confidence"`
	Missing         []string `json:"missing_fields,omitempty"`
}

func (i CatchAllInput) InputConfidence() float64 { return i.Confidence }
func (i CatchAllInput) MissingFields() []string  { return i.Missing }
