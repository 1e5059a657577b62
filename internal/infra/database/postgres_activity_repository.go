package database

import (
	"context"
	"database/sql"
	"fmt"

	"activity_scraper/internal/domain/activity"
)

// Queryer is satisfied by both *sql.DB and *sql.Conn.
type Queryer interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type PostgresActivityRepository struct {
	db Queryer
}

func NewPostgresActivityRepository(db Queryer) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db}
}

const upsertActivityQuery = `INSERT INTO activities
	(external_id, name, description, top_level_category, sub_level_category, latitude, longitude, url, scraped_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (external_id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		top_level_category = EXCLUDED.top_level_category,
		sub_level_category = EXCLUDED.sub_level_category,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		url = EXCLUDED.url,
		scraped_at = EXCLUDED.scraped_at,
		updated_at = NOW()`

// SaveActivities upserts all activities in a single transaction.
// Either every activity is stored or none is.
func (r *PostgresActivityRepository) SaveActivities(ctx context.Context, activities []activity.Activity) (err error) {
	if len(activities) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return MarkConnectionError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, a := range activities {
		_, err = tx.ExecContext(ctx, upsertActivityQuery,
			a.ExternalID, a.Name, a.Description, a.TopLevelCategory, a.SubLevelCategory,
			a.Latitude, a.Longitude, a.URL, a.ScrapedAt)
		if err != nil {
			return MarkConnectionError(fmt.Errorf("error upserting activity %s: %w", a.ExternalID, err))
		}
	}

	if err = tx.Commit(); err != nil {
		return MarkConnectionError(fmt.Errorf("failed to commit activities: %w", err))
	}
	return nil
}

func (r *PostgresActivityRepository) CountActivities(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&count); err != nil {
		return 0, MarkConnectionError(fmt.Errorf("error counting activities: %w", err))
	}
	return count, nil
}
