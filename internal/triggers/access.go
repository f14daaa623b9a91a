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

	"github.com/jackc/pgx/v5"

	"github.com/pharmatrade/autoreply/internal/models"
)

// AccessFetcher answers access inquiries from the customer master.
type AccessFetcher struct {
	store *Store
}

// NewAccessFetcher creates the access scenario fetcher.
func NewAccessFetcher(store *Store) *AccessFetcher {
	return &AccessFetcher{store: store}
}

// Fetch implements pipeline.Fetcher. Lookup prefers the DEA number
// (exact) over the customer name (contains). Without either, or without
// a match, default attributes are returned so drafting can still ask
// the sender for the missing identification.
func (f *AccessFetcher) Fetch(ctx context.Context, inputs models.ExtractedInput, _ map[string]any) (models.TriggerData, error) {
	in, ok := inputs.(models.AccessInput)
	if !ok {
		return models.TriggerData{}, fmt.Errorf("access fetch: unexpected input type %T", inputs)
	}

	dea := strings.TrimSpace(in.DEANumber)
	name := strings.TrimSpace(in.Customer)

	noMatch := func() models.TriggerData {
		is340B := false
		if in.Is340B != nil {
			is340B = *in.Is340B
		}
		return models.TriggerData{
			Source: "db",
			Facts: map[string]any{
				"class_of_trade": "Unknown",
				"rems_certified": false,
				"is_340b":        is340B,
				"address":        "",
				"customer_id":    "",
			},
		}
	}

	if dea == "" && name == "" {
		slog.Debug("access fetch without lookup criteria, returning defaults")
		return noMatch(), nil
	}

	query := `
		SELECT customer_id, class_of_trade, rems_certified, is_340b, address
		FROM customers
		WHERE is_active`
	var arg any
	if dea != "" {
		query += ` AND dea_number = $1`
		arg = dea
	} else {
		query += ` AND name ILIKE '%' || $1 || '%'`
		arg = name
	}
	query += ` LIMIT 1`

	var (
		customerID, classOfTrade, address string
		remsCertified, is340B             bool
	)
	err := f.store.pool.QueryRow(ctx, query, arg).Scan(
		&customerID, &classOfTrade, &remsCertified, &is340B, &address,
	)
	if err == pgx.ErrNoRows {
		slog.Debug("no customer match, returning defaults", "dea_number", dea)
		return noMatch(), nil
	}
	if err != nil {
		return models.TriggerData{}, fmt.Errorf("query customer: %w", err)
	}

	if classOfTrade == "" {
		classOfTrade = "Unknown"
	}
	slog.Debug("customer matched", "customer_id", customerID)
	return models.TriggerData{
		Source: "db",
		Facts: map[string]any{
			"class_of_trade": classOfTrade,
			"rems_certified": remsCertified,
			"is_340b":        is340B,
			"address":        address,
			"customer_id":    customerID,
		},
	}, nil
}
