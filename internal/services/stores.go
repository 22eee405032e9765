package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"revenue-backend/internal/models"
)

// LedgerStore is the narrow query/RPC interface over the shard tables. The
// mutating operations are assumed atomic on the store side; they are the only
// way this engine changes a DCB row. Demand columns are never written here.
type LedgerStore interface {
	CheckOverCollection(ctx context.Context, shardID, gazetteNo, fiscalYear string, newArrear, newCurrent decimal.Decimal) (*models.OverCollectionCheck, error)
	ApplyProvisional(ctx context.Context, shardID, gazetteNo, fiscalYear string, deltaArrear, deltaCurrent decimal.Decimal, remarks string) error
	FinalizeVerification(ctx context.Context, shardID, gazetteNo, fiscalYear string) error
	RollbackRejection(ctx context.Context, shardID, gazetteNo, fiscalYear string, deltaArrear, deltaCurrent decimal.Decimal) error
	QueryShard(ctx context.Context, shardID string, q models.ShardQuery) ([]models.DCBEntry, error)
}

// SubmissionStore persists collection submissions and their guarded status
// transitions.
type SubmissionStore interface {
	GetByID(ctx context.Context, id int) (*models.CollectionSubmission, error)
	GetByDedupKey(ctx context.Context, gazetteNo string, inspectorID int, day time.Time) (*models.CollectionSubmission, error)
	Upsert(ctx context.Context, s *models.CollectionSubmission) error
	TransitionStatus(ctx context.Context, id int, from, to models.SubmissionStatus) (bool, error)
	List(ctx context.Context, f models.SubmissionFilter) ([]*models.CollectionSubmission, error)
}
