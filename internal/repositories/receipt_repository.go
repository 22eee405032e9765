package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"revenue-backend/internal/models"
)

type ReceiptRepository struct {
	DB *pgxpool.Pool
}

func NewReceiptRepository(db *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{DB: db}
}

// Attach records receipt metadata for a submission, replacing any earlier
// upload of the same type (an inspector may retake a photo before sending).
func (r *ReceiptRepository) Attach(ctx context.Context, rec *models.Receipt) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO submission_receipts (submission_id, receipt_type, object_key, content_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (submission_id, receipt_type) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			content_hash = EXCLUDED.content_hash,
			uploaded_at = now()
		RETURNING id, uploaded_at`,
		rec.SubmissionID, rec.ReceiptType, rec.ObjectKey, rec.ContentHash,
	).Scan(&rec.ID, &rec.UploadedAt)
}

func (r *ReceiptRepository) ListBySubmission(ctx context.Context, submissionID int) ([]*models.Receipt, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, submission_id, receipt_type, object_key, content_hash, uploaded_at
		FROM submission_receipts
		WHERE submission_id = $1
		ORDER BY receipt_type`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		var rec models.Receipt
		if err := rows.Scan(&rec.ID, &rec.SubmissionID, &rec.ReceiptType,
			&rec.ObjectKey, &rec.ContentHash, &rec.UploadedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, &rec)
	}
	return receipts, rows.Err()
}
