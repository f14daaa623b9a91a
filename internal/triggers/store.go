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

// Package triggers provides the Postgres-backed data fetchers behind the
// pipeline's trigger-fetch stage: inventory snapshots for supply,
// customer master data for access, allocation records for allocation,
// and past-correspondence search for the catch-all scenario.
package triggers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store owns the trade-data tables the fetchers query.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the trade-data store backed by the given Postgres
// pool. It ensures the tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure trade data schema: %w", err)
	}
	slog.Info("trade data store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS distributors (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS inventory_snapshots (
			id                 BIGSERIAL PRIMARY KEY,
			ndc                TEXT NOT NULL,
			product_name       TEXT DEFAULT '',
			location           TEXT DEFAULT '',
			distributor        TEXT DEFAULT '',
			quantity_available BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_inventory_ndc ON inventory_snapshots(ndc);
		CREATE TABLE IF NOT EXISTS customers (
			customer_id    TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			dea_number     TEXT DEFAULT '',
			class_of_trade TEXT DEFAULT '',
			rems_certified BOOLEAN NOT NULL DEFAULT FALSE,
			is_340b        BOOLEAN NOT NULL DEFAULT FALSE,
			address        TEXT DEFAULT '',
			is_active      BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE INDEX IF NOT EXISTS idx_customers_dea ON customers(dea_number);
		CREATE TABLE IF NOT EXISTS allocation_records (
			id                 BIGSERIAL PRIMARY KEY,
			ndc                TEXT NOT NULL,
			distributor        TEXT DEFAULT '',
			year               INT NOT NULL,
			quantity_allocated BIGINT NOT NULL DEFAULT 0,
			quantity_used      BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_allocation_ndc_year ON allocation_records(ndc, year);
		CREATE TABLE IF NOT EXISTS past_emails (
			email_id TEXT PRIMARY KEY,
			topic    TEXT DEFAULT '',
			subject  TEXT DEFAULT '',
			body     TEXT DEFAULT ''
		)
	`)
	return err
}

// distributorCodes resolves a distributor search term against both code
// and display name. Buyers write either "DIST-A" or "Acme Distribution";
// inventory and allocation rows carry only the code.
func (s *Store) distributorCodes(ctx context.Context, term string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code FROM distributors
		WHERE code ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%'
	`, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
