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

package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pharmatrade/autoreply/internal/models"
)

const supplyExtractPrompt = `You extract structured fields from pharmaceutical product supply (S1) email threads.
Extract: location, distributor, ndc (National Drug Code).
Omit fields that are not mentioned and list their names in missing_fields.
Respond with a JSON object: {"location": "...", "distributor": "...", "ndc": "...", "confidence": <0..1>, "missing_fields": ["..."]}.`

const accessExtractPrompt = `You extract structured fields from pharmaceutical product access (S2) email threads.
Extract: customer, distributor, ndc, dea_number, address, is_340b (boolean), contact.
Omit fields that are not mentioned and list their names in missing_fields.
Respond with a JSON object: {"customer": "...", "distributor": "...", "ndc": "...", "dea_number": "...", "address": "...", "is_340b": true|false, "contact": "...", "confidence": <0..1>, "missing_fields": ["..."]}.`

const allocationExtractPrompt = `You extract structured fields from pharmaceutical product allocation (S3) email threads.
Extract: urgency, year_start, year_end, distributor, ndc.
Omit fields that are not mentioned and list their names in missing_fields.
Respond with a JSON object: {"urgency": "...", "year_start": <year>, "year_end": <year>, "distributor": "...", "ndc": "...", "confidence": <0..1>, "missing_fields": ["..."]}.`

const catchAllExtractPrompt = `You extract search topics from general pharmaceutical trade inquiries (S4).
Identify the key topics and write a brief question_summary, suitable for searching similar past correspondence.
missing_fields may list clarifying information that would help answer.
Respond with a JSON object: {"topics": ["..."], "question_summary": "...", "confidence": <0..1>, "missing_fields": ["..."]}.`

// extract runs one extraction completion and logs the outcome.
func extract(ctx context.Context, c *Client, system string, thread models.EmailThread, out models.ExtractedInput) error {
	if err := c.completeJSON(ctx, system, threadPrompt(thread), out); err != nil {
		return fmt.Errorf("extract thread %s: %w", thread.ThreadID, err)
	}
	slog.Debug("inputs extracted",
		"thread_id", thread.ThreadID,
		"confidence", out.InputConfidence(),
		"missing_fields", out.MissingFields(),
	)
	return nil
}

// SupplyExtractor pulls product supply fields from a thread.
type SupplyExtractor struct{ client *Client }

func NewSupplyExtractor(client *Client) *SupplyExtractor {
	return &SupplyExtractor{client: client}
}

func (e *SupplyExtractor) Extract(ctx context.Context, thread models.EmailThread) (models.ExtractedInput, error) {
	var in models.SupplyInput
	if err := extract(ctx, e.client, supplyExtractPrompt, thread, &in); err != nil {
		return nil, err
	}
	return in, nil
}

// AccessExtractor pulls product access fields from a thread.
type AccessExtractor struct{ client *Client }

func NewAccessExtractor(client *Client) *AccessExtractor {
	return &AccessExtractor{client: client}
}

func (e *AccessExtractor) Extract(ctx context.Context, thread models.EmailThread) (models.ExtractedInput, error) {
	var in models.AccessInput
	if err := extract(ctx, e.client, accessExtractPrompt, thread, &in); err != nil {
		return nil, err
	}
	return in, nil
}

// AllocationExtractor pulls product allocation fields from a thread.
type AllocationExtractor struct{ client *Client }

func NewAllocationExtractor(client *Client) *AllocationExtractor {
	return &AllocationExtractor{client: client}
}

func (e *AllocationExtractor) Extract(ctx context.Context, thread models.EmailThread) (models.ExtractedInput, error) {
	var in models.AllocationInput
	if err := extract(ctx, e.client, allocationExtractPrompt, thread, &in); err != nil {
		return nil, err
	}
	return in, nil
}

// CatchAllExtractor pulls search topics from a general inquiry thread.
type CatchAllExtractor struct{ client *Client }

func NewCatchAllExtractor(client *Client) *CatchAllExtractor {
	return &CatchAllExtractor{client: client}
}

func (e *CatchAllExtractor) Extract(ctx context.Context, thread models.EmailThread) (models.ExtractedInput, error) {
	var in models.CatchAllInput
	if err := extract(ctx, e.client, catchAllExtractPrompt, thread, &in); err != nil {
		return nil, err
	}
	return in, nil
}
