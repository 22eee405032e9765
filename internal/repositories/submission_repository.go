package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"revenue-backend/internal/models"
)

const submissionColumns = `
	s.id, s.district_id, d.name, s.ap_gazette_no, s.institution_name,
	s.inspector_id, COALESCE(u.name, ''), s.submission_date, s.fiscal_year,
	s.new_arrear, s.new_current, s.status,
	COALESCE(s.over_collection_reason, ''), COALESCE(s.remarks, ''),
	s.created_at, s.updated_at`

type SubmissionRepository struct {
	DB *pgxpool.Pool
}

func NewSubmissionRepository(db *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func scanSubmission(row pgx.Row) (*models.CollectionSubmission, error) {
	var s models.CollectionSubmission
	err := row.Scan(
		&s.ID, &s.DistrictID, &s.District, &s.APGazetteNo, &s.InstitutionName,
		&s.InspectorID, &s.InspectorName, &s.SubmissionDate, &s.FiscalYear,
		&s.NewArrear, &s.NewCurrent, &s.Status,
		&s.OverCollectionReason, &s.Remarks,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id int) (*models.CollectionSubmission, error) {
	row := r.DB.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM collection_submissions s
		JOIN districts d ON d.id = s.district_id
		LEFT JOIN users u ON u.id = s.inspector_id
		WHERE s.id = $1`, submissionColumns), id)
	return scanSubmission(row)
}

// GetByDedupKey looks up the (institution, inspector, day) row that decides
// update-vs-insert on save. Returns nil without error when absent.
func (r *SubmissionRepository) GetByDedupKey(ctx context.Context, gazetteNo string, inspectorID int, day time.Time) (*models.CollectionSubmission, error) {
	row := r.DB.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM collection_submissions s
		JOIN districts d ON d.id = s.district_id
		LEFT JOIN users u ON u.id = s.inspector_id
		WHERE s.ap_gazette_no = $1 AND s.inspector_id = $2 AND s.submission_date = $3`,
		submissionColumns), gazetteNo, inspectorID, day)

	s, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Upsert inserts or replaces the day's submission row on the natural dedup
// key, carrying the new amounts and status.
func (r *SubmissionRepository) Upsert(ctx context.Context, s *models.CollectionSubmission) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO collection_submissions
			(district_id, ap_gazette_no, institution_name, inspector_id, submission_date,
			 fiscal_year, new_arrear, new_current, status, over_collection_reason, remarks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (ap_gazette_no, inspector_id, submission_date) DO UPDATE SET
			new_arrear = EXCLUDED.new_arrear,
			new_current = EXCLUDED.new_current,
			status = EXCLUDED.status,
			over_collection_reason = EXCLUDED.over_collection_reason,
			remarks = EXCLUDED.remarks,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		s.DistrictID, s.APGazetteNo, s.InstitutionName, s.InspectorID, s.SubmissionDate,
		s.FiscalYear, s.NewArrear, s.NewCurrent, s.Status, s.OverCollectionReason, s.Remarks,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// TransitionStatus advances a submission from one status to another as a
// single guarded update. Returns false when the row was not in the expected
// status, which is how double verifies/rejects become no-ops instead of
// double-applied ledger changes.
func (r *SubmissionRepository) TransitionStatus(ctx context.Context, id int, from, to models.SubmissionStatus) (bool, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE collection_submissions
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SubmissionRepository) List(ctx context.Context, f models.SubmissionFilter) ([]*models.CollectionSubmission, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	var date time.Time
	if f.Date != nil {
		date = *f.Date
	}

	rows, err := r.DB.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM collection_submissions s
		JOIN districts d ON d.id = s.district_id
		LEFT JOIN users u ON u.id = s.inspector_id
		WHERE ($1 = 0 OR s.inspector_id = $1)
		  AND ($2 = '' OR s.status = $2)
		  AND ($3 = '' OR d.name = $3)
		  AND ($4::date IS NULL OR s.submission_date = $4)
		ORDER BY s.updated_at DESC
		LIMIT $5`, submissionColumns),
		f.InspectorID, string(f.Status), f.District, nullableDate(date), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.CollectionSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
