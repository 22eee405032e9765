package repositories

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"revenue-backend/internal/models"
)

// shardNamePattern admits only identifiers the slug transform can produce.
// Shard names are interpolated into SQL (table names cannot be bind
// parameters), so anything else is refused outright.
var shardNamePattern = regexp.MustCompile(`^dcb_[a-z0-9_]+$`)

// LedgerRepository reads shard rows and mutates them exclusively through the
// four server-side ledger functions. The functions apply signed deltas in
// stored-value terms, so concurrent writers sum correctly without any
// client-held copy of the old totals.
type LedgerRepository struct {
	DB *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{DB: db}
}

func validShard(shardID string) error {
	if !shardNamePattern.MatchString(shardID) {
		return fmt.Errorf("invalid shard identifier %q", shardID)
	}
	return nil
}

// CheckOverCollection asks the store whether existing collection plus the
// proposed amounts would exceed demand for the institution. Evaluated
// atomically against current stored state; never recomputed client-side.
func (r *LedgerRepository) CheckOverCollection(ctx context.Context, shardID, gazetteNo, fiscalYear string, newArrear, newCurrent decimal.Decimal) (*models.OverCollectionCheck, error) {
	if err := validShard(shardID); err != nil {
		return nil, err
	}

	var check models.OverCollectionCheck
	err := r.DB.QueryRow(ctx,
		`SELECT requires_reason, remaining_arrear, remaining_current
		 FROM check_over_collection($1, $2, $3, $4, $5)`,
		shardID, gazetteNo, fiscalYear, newArrear, newCurrent,
	).Scan(&check.RequiresReason, &check.RemainingArrear, &check.RemainingCurrent)
	if err != nil {
		return nil, fmt.Errorf("check_over_collection on %s: %w", shardID, err)
	}
	return &check, nil
}

// ApplyProvisional adds a signed net delta to the institution's collection
// totals and marks the row provisional.
func (r *LedgerRepository) ApplyProvisional(ctx context.Context, shardID, gazetteNo, fiscalYear string, deltaArrear, deltaCurrent decimal.Decimal, remarks string) error {
	if err := validShard(shardID); err != nil {
		return err
	}
	_, err := r.DB.Exec(ctx,
		`SELECT update_dcb_provisional($1, $2, $3, $4, $5, $6)`,
		shardID, gazetteNo, fiscalYear, deltaArrear, deltaCurrent, remarks)
	if err != nil {
		return fmt.Errorf("update_dcb_provisional on %s: %w", shardID, err)
	}
	return nil
}

// FinalizeVerification lifts the provisional flag. No numeric change.
func (r *LedgerRepository) FinalizeVerification(ctx context.Context, shardID, gazetteNo, fiscalYear string) error {
	if err := validShard(shardID); err != nil {
		return err
	}
	_, err := r.DB.Exec(ctx,
		`SELECT finalize_dcb_verification($1, $2, $3)`,
		shardID, gazetteNo, fiscalYear)
	if err != nil {
		return fmt.Errorf("finalize_dcb_verification on %s: %w", shardID, err)
	}
	return nil
}

// RollbackRejection subtracts a previously applied provisional delta.
func (r *LedgerRepository) RollbackRejection(ctx context.Context, shardID, gazetteNo, fiscalYear string, deltaArrear, deltaCurrent decimal.Decimal) error {
	if err := validShard(shardID); err != nil {
		return err
	}
	_, err := r.DB.Exec(ctx,
		`SELECT rollback_dcb_rejection($1, $2, $3, $4, $5)`,
		shardID, gazetteNo, fiscalYear, deltaArrear, deltaCurrent)
	if err != nil {
		return fmt.Errorf("rollback_dcb_rejection on %s: %w", shardID, err)
	}
	return nil
}

// QueryShard reads up to q.Limit rows from one shard table with optional
// equality filters. The fan-out engine calls this once per shard in parallel.
func (r *LedgerRepository) QueryShard(ctx context.Context, shardID string, q models.ShardQuery) ([]models.DCBEntry, error) {
	if err := validShard(shardID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, ap_gazette_no, institution_name, COALESCE(mandal, ''), COALESCE(village, ''),
		       fiscal_year, demand_arrears, demand_current, demand_total,
		       collection_arrears, collection_current, collection_total,
		       balance_arrears, balance_current, balance_total,
		       provisional, COALESCE(remarks, ''), created_at, updated_at
		FROM %s
		WHERE ($1 = '' OR fiscal_year = $1)
		  AND (NOT $2 OR provisional = false)
		ORDER BY institution_name
		LIMIT $3`, shardID)

	rows, err := r.DB.Query(ctx, query, q.FiscalYear, q.VerifiedOnly, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", shardID, err)
	}
	defer rows.Close()

	var entries []models.DCBEntry
	for rows.Next() {
		var e models.DCBEntry
		if err := rows.Scan(
			&e.ID, &e.APGazetteNo, &e.InstitutionName, &e.Mandal, &e.Village,
			&e.FiscalYear, &e.DemandArrears, &e.DemandCurrent, &e.DemandTotal,
			&e.CollectionArrears, &e.CollectionCurrent, &e.CollectionTotal,
			&e.BalanceArrears, &e.BalanceCurrent, &e.BalanceTotal,
			&e.Provisional, &e.Remarks, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry fetches one institution's row from a shard for the fiscal year.
func (r *LedgerRepository) GetEntry(ctx context.Context, shardID, gazetteNo, fiscalYear string) (*models.DCBEntry, error) {
	if err := validShard(shardID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, ap_gazette_no, institution_name, COALESCE(mandal, ''), COALESCE(village, ''),
		       fiscal_year, demand_arrears, demand_current, demand_total,
		       collection_arrears, collection_current, collection_total,
		       balance_arrears, balance_current, balance_total,
		       provisional, COALESCE(remarks, ''), created_at, updated_at
		FROM %s
		WHERE ap_gazette_no = $1 AND fiscal_year = $2`, shardID)

	var e models.DCBEntry
	err := r.DB.QueryRow(ctx, query, gazetteNo, fiscalYear).Scan(
		&e.ID, &e.APGazetteNo, &e.InstitutionName, &e.Mandal, &e.Village,
		&e.FiscalYear, &e.DemandArrears, &e.DemandCurrent, &e.DemandTotal,
		&e.CollectionArrears, &e.CollectionCurrent, &e.CollectionTotal,
		&e.BalanceArrears, &e.BalanceCurrent, &e.BalanceTotal,
		&e.Provisional, &e.Remarks, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get entry %s/%s: %w", shardID, gazetteNo, err)
	}
	return &e, nil
}
