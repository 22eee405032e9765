package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"revenue-backend/internal/models"
)

// DistrictRepository is the authoritative roster source behind the shard
// router.
type DistrictRepository struct {
	DB *pgxpool.Pool
}

func NewDistrictRepository(db *pgxpool.Pool) *DistrictRepository {
	return &DistrictRepository{DB: db}
}

func (r *DistrictRepository) ListDistricts(ctx context.Context) ([]models.District, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name FROM districts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var districts []models.District
	for rows.Next() {
		var d models.District
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, err
		}
		districts = append(districts, d)
	}
	return districts, rows.Err()
}
