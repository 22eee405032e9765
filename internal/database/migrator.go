package database

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"revenue-backend/internal/shard"
)

// Districts is the authoritative roster seeded on first boot. Adding a
// district here (or inserting one directly) gets its shard table created on
// the next migration run.
var Districts = []string{
	"Adoni",
	"Alluri Seetaramaraju",
	"Anakapalli",
	"Anantapuramu",
	"Annamayya",
	"Bapatla",
	"Chittoor",
	"Dr. B.R.A. Konaseema",
	"East Godavari",
	"Eluru",
	"Guntur",
	"Kakinada",
	"Krishna",
	"Kurnool",
	"Nandyal",
	"Nellore",
	"NTR",
	"Palnadu",
	"Parvathipuram",
	"Prakasam",
	"Srikakulam",
	"Sri Sathya Sai",
	"Tirupati",
	"Vijayanagaram",
	"Visakhapatnam",
	"West Godavari",
	"YSR Kadapa District",
}

// Migrator creates the engine's schema: core tables, one DCB shard table per
// district, and the ledger functions that are the only mutation path into
// shard rows. All statements are idempotent, so re-running is safe.
type Migrator struct {
	pool *pgxpool.Pool
}

func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{pool: pool}
}

func (m *Migrator) Run(ctx context.Context) error {
	log.Println("[Migrator] Starting database migrations...")

	if err := m.createCoreTables(ctx); err != nil {
		return fmt.Errorf("core tables: %w", err)
	}
	if err := m.seedDistricts(ctx); err != nil {
		return fmt.Errorf("seed districts: %w", err)
	}
	if err := m.createShardTables(ctx); err != nil {
		return fmt.Errorf("shard tables: %w", err)
	}
	if err := m.createLedgerFunctions(ctx); err != nil {
		return fmt.Errorf("ledger functions: %w", err)
	}

	log.Println("[Migrator] Migrations complete")
	return nil
}

func (m *Migrator) createCoreTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS districts (
			id serial PRIMARY KEY,
			name text NOT NULL UNIQUE,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id serial PRIMARY KEY,
			name text NOT NULL,
			email text NOT NULL UNIQUE,
			phone text,
			password_hash text NOT NULL,
			role text NOT NULL DEFAULT 'inspector',
			district text,
			is_active boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS collection_submissions (
			id serial PRIMARY KEY,
			district_id integer NOT NULL REFERENCES districts(id),
			ap_gazette_no text NOT NULL,
			institution_name text NOT NULL,
			inspector_id integer NOT NULL REFERENCES users(id),
			submission_date date NOT NULL,
			fiscal_year text NOT NULL,
			new_arrear numeric(12,2) NOT NULL DEFAULT 0 CHECK (new_arrear >= 0),
			new_current numeric(12,2) NOT NULL DEFAULT 0 CHECK (new_current >= 0),
			status text NOT NULL DEFAULT 'pending',
			over_collection_reason text,
			remarks text,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			CONSTRAINT collection_submissions_dedup_key
				UNIQUE (ap_gazette_no, inspector_id, submission_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_status
			ON collection_submissions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_inspector
			ON collection_submissions(inspector_id, submission_date)`,
		`CREATE TABLE IF NOT EXISTS submission_receipts (
			id serial PRIMARY KEY,
			submission_id integer NOT NULL REFERENCES collection_submissions(id) ON DELETE CASCADE,
			receipt_type text NOT NULL CHECK (receipt_type IN ('bill', 'transaction')),
			object_key text NOT NULL,
			content_hash text NOT NULL,
			uploaded_at timestamptz NOT NULL DEFAULT now(),
			CONSTRAINT submission_receipts_one_per_type UNIQUE (submission_id, receipt_type)
		)`,
	}

	for _, s := range stmts {
		if _, err := m.pool.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) seedDistricts(ctx context.Context) error {
	for _, name := range Districts {
		if _, err := m.pool.Exec(ctx,
			`INSERT INTO districts (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return err
		}
	}
	return nil
}

// createShardTables creates one DCB table per district in the roster,
// including any districts inserted outside the seed list. Balance columns
// are generated by the database so a shard row can never read inconsistent.
func (m *Migrator) createShardTables(ctx context.Context) error {
	rows, err := m.pool.Query(ctx, `SELECT name FROM districts`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range names {
		table := shard.ShardOf(name)
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
				ap_gazette_no text NOT NULL,
				institution_name text NOT NULL,
				mandal text,
				village text,
				fiscal_year text NOT NULL,

				demand_arrears numeric(12,2) NOT NULL DEFAULT 0,
				demand_current numeric(12,2) NOT NULL DEFAULT 0,
				demand_total numeric(12,2) GENERATED ALWAYS AS (demand_arrears + demand_current) STORED,

				collection_arrears numeric(12,2) NOT NULL DEFAULT 0,
				collection_current numeric(12,2) NOT NULL DEFAULT 0,
				collection_total numeric(12,2) GENERATED ALWAYS AS (collection_arrears + collection_current) STORED,

				balance_arrears numeric(12,2) GENERATED ALWAYS AS (demand_arrears - collection_arrears) STORED,
				balance_current numeric(12,2) GENERATED ALWAYS AS (demand_current - collection_current) STORED,
				balance_total numeric(12,2) GENERATED ALWAYS AS (
					(demand_arrears + demand_current) - (collection_arrears + collection_current)
				) STORED,

				provisional boolean NOT NULL DEFAULT false,
				remarks text,
				created_at timestamptz NOT NULL DEFAULT now(),
				updated_at timestamptz NOT NULL DEFAULT now(),

				CONSTRAINT %s_gazette_fy_unique UNIQUE (ap_gazette_no, fiscal_year)
			)`, table, table)
		if _, err := m.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}

		idx := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_institution ON %s(institution_name)`, table, table)
		if _, err := m.pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("index %s: %w", table, err)
		}
	}

	log.Printf("[Migrator] %d district shard tables ensured", len(names))
	return nil
}

// createLedgerFunctions installs the four server-side functions the engine
// mutates and checks shard rows through. Each takes the shard table name and
// dispatches with dynamic SQL; the updates are single statements expressed in
// stored-value terms, so concurrent deltas sum correctly.
func (m *Migrator) createLedgerFunctions(ctx context.Context) error {
	fns := []string{
		`CREATE OR REPLACE FUNCTION check_over_collection(
			p_shard text, p_gazette_no text, p_fiscal_year text,
			p_new_arrear numeric, p_new_current numeric)
		RETURNS TABLE (requires_reason boolean, remaining_arrear numeric, remaining_current numeric)
		LANGUAGE plpgsql AS $$
		BEGIN
			RETURN QUERY EXECUTE format(
				'SELECT (collection_arrears + $1 > demand_arrears)
				     OR (collection_current + $2 > demand_current),
				        demand_arrears - collection_arrears,
				        demand_current - collection_current
				 FROM %I WHERE ap_gazette_no = $3 AND fiscal_year = $4', p_shard)
			USING p_new_arrear, p_new_current, p_gazette_no, p_fiscal_year;
			IF NOT FOUND THEN
				RAISE EXCEPTION 'no DCB row for % in %', p_gazette_no, p_shard;
			END IF;
		END $$`,

		`CREATE OR REPLACE FUNCTION update_dcb_provisional(
			p_shard text, p_gazette_no text, p_fiscal_year text,
			p_delta_arrear numeric, p_delta_current numeric, p_remarks text)
		RETURNS void LANGUAGE plpgsql AS $$
		DECLARE
			v_count integer;
		BEGIN
			EXECUTE format(
				'UPDATE %I SET
					collection_arrears = collection_arrears + $1,
					collection_current = collection_current + $2,
					provisional = true,
					remarks = COALESCE(NULLIF($3, ''''), remarks),
					updated_at = now()
				 WHERE ap_gazette_no = $4 AND fiscal_year = $5', p_shard)
			USING p_delta_arrear, p_delta_current, p_remarks, p_gazette_no, p_fiscal_year;
			GET DIAGNOSTICS v_count = ROW_COUNT;
			IF v_count = 0 THEN
				RAISE EXCEPTION 'no DCB row for % in %', p_gazette_no, p_shard;
			END IF;
		END $$`,

		`CREATE OR REPLACE FUNCTION finalize_dcb_verification(
			p_shard text, p_gazette_no text, p_fiscal_year text)
		RETURNS void LANGUAGE plpgsql AS $$
		DECLARE
			v_count integer;
		BEGIN
			EXECUTE format(
				'UPDATE %I SET provisional = false, updated_at = now()
				 WHERE ap_gazette_no = $1 AND fiscal_year = $2', p_shard)
			USING p_gazette_no, p_fiscal_year;
			GET DIAGNOSTICS v_count = ROW_COUNT;
			IF v_count = 0 THEN
				RAISE EXCEPTION 'no DCB row for % in %', p_gazette_no, p_shard;
			END IF;
		END $$`,

		`CREATE OR REPLACE FUNCTION rollback_dcb_rejection(
			p_shard text, p_gazette_no text, p_fiscal_year text,
			p_delta_arrear numeric, p_delta_current numeric)
		RETURNS void LANGUAGE plpgsql AS $$
		DECLARE
			v_count integer;
		BEGIN
			EXECUTE format(
				'UPDATE %I SET
					collection_arrears = collection_arrears - $1,
					collection_current = collection_current - $2,
					updated_at = now()
				 WHERE ap_gazette_no = $3 AND fiscal_year = $4', p_shard)
			USING p_delta_arrear, p_delta_current, p_gazette_no, p_fiscal_year;
			GET DIAGNOSTICS v_count = ROW_COUNT;
			IF v_count = 0 THEN
				RAISE EXCEPTION 'no DCB row for % in %', p_gazette_no, p_shard;
			END IF;
		END $$`,
	}

	for _, fn := range fns {
		if _, err := m.pool.Exec(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}
