// Package ledger persists video records in PostgreSQL.
package ledger

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vodworks/pipeline/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewPool creates a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate runs embedded SQL migrations in order.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	return nil
}

// Repository is the Postgres-backed video ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a video ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const videoColumns = `id, user_id, video_id, status, created_at, updated_at`

// Insert creates a video record, or leaves an existing one untouched when a
// record with the same videoID is already present. Redelivered notifications
// therefore never produce a second row. The returned id is 0 when the row
// already existed.
func (r *Repository) Insert(ctx context.Context, userID, videoID string, status models.VideoStatus) (int64, error) {
	const q = `INSERT INTO videos (user_id, video_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (video_id) DO NOTHING
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, q, userID, videoID, string(status)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict skip: the record exists from an earlier delivery.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("insert video %s: %w", videoID, err)
	}

	return id, nil
}

// ListByStatus returns all records in the given status, oldest update first,
// so reconciliation staleness is bounded fairly across videos.
func (r *Repository) ListByStatus(ctx context.Context, status models.VideoStatus) ([]models.VideoRecord, error) {
	q := `SELECT ` + videoColumns + `
		FROM videos WHERE status = $1 ORDER BY updated_at ASC`

	rows, err := r.pool.Query(ctx, q, string(status))
	if err != nil {
		return nil, fmt.Errorf("list videos by status %s: %w", status, err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

// ListByUser returns all records owned by the given user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]models.VideoRecord, error) {
	q := `SELECT ` + videoColumns + `
		FROM videos WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list videos for user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

// GetByVideoID returns a single record, or models.ErrVideoNotFound.
func (r *Repository) GetByVideoID(ctx context.Context, videoID string) (*models.VideoRecord, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE video_id = $1`

	var rec models.VideoRecord
	err := r.pool.QueryRow(ctx, q, videoID).Scan(
		&rec.ID, &rec.UserID, &rec.VideoID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", videoID, err)
	}

	return &rec, nil
}

// UpdateStatus transitions a record forward to the given status, refreshing
// updated_at. Transitions only fire from a status that ranks strictly below
// the target; backward or repeated updates are silent no-ops.
func (r *Repository) UpdateStatus(ctx context.Context, videoID string, status models.VideoStatus) error {
	if !status.IsValid() {
		return models.ErrInvalidStatus
	}

	below := models.StatusesBelow(status)
	from := make([]string, len(below))
	for i, s := range below {
		from[i] = string(s)
	}

	const q = `UPDATE videos SET status = $1, updated_at = now()
		WHERE video_id = $2 AND status = ANY($3)`

	if _, err := r.pool.Exec(ctx, q, string(status), videoID, from); err != nil {
		return fmt.Errorf("update video %s to %s: %w", videoID, status, err)
	}

	return nil
}

func scanVideos(rows pgx.Rows) ([]models.VideoRecord, error) {
	var videos []models.VideoRecord
	for rows.Next() {
		var rec models.VideoRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.VideoID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		videos = append(videos, rec)
	}
	return videos, rows.Err()
}
