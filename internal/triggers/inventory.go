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

	"github.com/pharmatrade/autoreply/internal/models"
)

// InventoryFetcher answers supply inquiries from inventory snapshots.
type InventoryFetcher struct {
	store *Store
}

// NewInventoryFetcher creates the supply scenario fetcher.
func NewInventoryFetcher(store *Store) *InventoryFetcher {
	return &InventoryFetcher{store: store}
}

// Fetch implements pipeline.Fetcher. Filters are substring matches so a
// partial NDC or a distributor's display name still finds rows.
func (f *InventoryFetcher) Fetch(ctx context.Context, inputs models.ExtractedInput, _ map[string]any) (models.TriggerData, error) {
	in, ok := inputs.(models.SupplyInput)
	if !ok {
		return models.TriggerData{}, fmt.Errorf("inventory fetch: unexpected input type %T", inputs)
	}

	query := `
		SELECT ndc, product_name, location, distributor, quantity_available
		FROM inventory_snapshots
		WHERE 1=1`
	var args []any

	if ndc := strings.TrimSpace(in.NDC); ndc != "" {
		args = append(args, ndc)
		query += fmt.Sprintf(" AND ndc LIKE '%%' || $%d || '%%'", len(args))
	}
	if loc := strings.TrimSpace(in.Location); loc != "" {
		args = append(args, loc)
		query += fmt.Sprintf(" AND location ILIKE '%%' || $%d || '%%'", len(args))
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
		return models.TriggerData{}, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var (
		records []map[string]any
		total   int64
	)
	for rows.Next() {
		var (
			ndc, product, location, distributor string
			qty                                 int64
		)
		if err := rows.Scan(&ndc, &product, &location, &distributor, &qty); err != nil {
			return models.TriggerData{}, fmt.Errorf("scan inventory row: %w", err)
		}
		total += qty
		records = append(records, map[string]any{
			"ndc":                ndc,
			"product_name":       product,
			"location":           location,
			"distributor":        distributor,
			"quantity_available": qty,
		})
	}
	if err := rows.Err(); err != nil {
		return models.TriggerData{}, fmt.Errorf("read inventory rows: %w", err)
	}

	slog.Debug("inventory fetched", "records", len(records), "total_quantity_available", total)
	return models.TriggerData{
		Source: "db",
		Facts: map[string]any{
			"records":                  records,
			"total_quantity_available": total,
		},
	}, nil
}
