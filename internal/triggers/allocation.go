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

package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pharmatrade/autoreply/internal/models"
)

// AllocationFetcher answers allocation inquiries from allocation
// records, merging the scaffold sub-step context when present.
type AllocationFetcher struct {
	store *Store
}

// NewAllocationFetcher creates the allocation scenario fetcher.
func NewAllocationFetcher(store *Store) *AllocationFetcher {
	return &AllocationFetcher{store: store}
}

// Fetch implements pipeline.Fetcher. An unspecified year range defaults
// to the current year.
func (f *AllocationFetcher) Fetch(ctx context.Context, inputs models.ExtractedInput, scaffold map[string]any) (models.TriggerData, error) {
	in, ok := inputs.(models.AllocationInput)
	if !ok {
		return models.TriggerData{}, fmt.Errorf("allocation fetch: unexpected input type %T", inputs)
	}

	yearStart := in.YearStart
	yearEnd := in.YearEnd
	if yearStart == 0 {
		yearStart = time.Now().Year()
	}
	if yearEnd == 0 {
		yearEnd = yearStart
	}

	query := `
		SELECT ndc, distributor, year, quantity_allocated, quantity_used
		FROM allocation_records
		WHERE year >= $1 AND year <= $2`
	args := []any{yearStart, yearEnd}

	if ndc := strings.TrimSpace(in.NDC); ndc != "" {
		args = append(args, ndc)
		query += fmt.Sprintf(" AND ndc LIKE '%%' || $%d || '%%'", len(args))
	}
	if dist := strings.TrimSpace(in.Distributor); dist != "" {
		codes, err := f.store.distributorCodes(ctx, dist)
		if err != nil {
			return models.TriggerData{}, fmt.Errorf("resolve distributor %q: %w", dist, err)
		}
		if len(codes) > 0 {
			args = append(args, codes)
			query += fmt.Sprintf(" AND distributor = ANY($%d)", len(args))
		} else {
			args = append(args, dist)
			query += fmt.Sprintf(" AND distributor ILIKE '%%' || $%d || '%%'", len(args))
		}
	}

	rows, err := f.store.pool.Query(ctx, query, args...)
	if err != nil {
		return models.TriggerData{}, fmt.Errorf("query allocation records: %w", err)
	}
	defer rows.Close()

	var (
		records                   []map[string]any
		totalAllocated, totalUsed int64
	)
	for rows.Next() {
		var (
			ndc, distributor string
			year             int
			allocated, used  int64
		)
		if err := rows.Scan(&ndc, &distributor, &year, &allocated, &used); err != nil {
			return models.TriggerData{}, fmt.Errorf("scan allocation row: %w", err)
		}
		totalAllocated += allocated
		totalUsed += used
		records = append(records, map[string]any{
			"ndc":                ndc,
			"distributor":        distributor,
			"year":               year,
			"quantity_allocated": allocated,
			"quantity_used":      used,
		})
	}
	if err := rows.Err(); err != nil {
		return models.TriggerData{}, fmt.Errorf("read allocation rows: %w", err)
	}

	facts := map[string]any{
		"allocation_records":       records,
		"total_quantity_allocated": totalAllocated,
		"total_quantity_used":      totalUsed,
		"year_start":               yearStart,
		"year_end":                 yearEnd,
	}
	if scaffold != nil {
		facts["scaffold"] = scaffold
	}

	slog.Debug("allocation fetched",
		"records", len(records),
		"total_allocated", totalAllocated,
		"total_used", totalUsed,
	)
	return models.TriggerData{Source: "db", Facts: facts}, nil
}
