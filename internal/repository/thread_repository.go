package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
)

// ThreadRepository stores threads. Its counters track the statuses of the
// thread's per-account pivots, not of individual segment deliveries.
type ThreadRepository interface {
	CounterRepository
	Create(ctx context.Context, tx *sql.Tx, t *models.Thread) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Thread, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Thread, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error
	SetCounts(ctx context.Context, tx *sql.Tx, id int64, counts models.StatusCounts) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]int64, error)
	// ReleaseStuck returns publishing threads with no account run in flight
	// and no change since before to scheduled, or to draft when unscheduled.
	ReleaseStuck(ctx context.Context, before time.Time) ([]int64, error)
	Remove(ctx context.Context, tx *sql.Tx, id int64) error
}

type threadRepository struct {
	db *sql.DB
}

func NewThreadRepository(db *sql.DB) ThreadRepository {
	return &threadRepository{db: db}
}

const threadColumns = `id, user_id, title, status, scheduled_at, published_at,
	pending_count, publishing_count, published_count, failed_count, partial_count, created_at, updated_at`

func scanThread(row rowScanner) (*models.Thread, error) {
	var t models.Thread
	var scheduledAt, publishedAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Status, &scheduledAt, &publishedAt,
		&t.Counts.Pending, &t.Counts.Publishing, &t.Counts.Published, &t.Counts.Failed, &t.Counts.Partial,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		t.ScheduledAt = &scheduledAt.Time
	}
	if publishedAt.Valid {
		t.PublishedAt = &publishedAt.Time
	}
	return &t, nil
}

func (r *threadRepository) Create(ctx context.Context, tx *sql.Tx, t *models.Thread) (int64, error) {
	query := `
		INSERT INTO threads (user_id, title, status, scheduled_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	if err := pick(r.db, tx).QueryRowContext(ctx, query, t.UserID, t.Title, t.Status, t.ScheduledAt).Scan(&id); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *threadRepository) GetByID(ctx context.Context, id int64) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1`

	t, err := scanThread(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return t, nil
}

func (r *threadRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func (r *threadRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error {
	query := `UPDATE threads SET status = $1, published_at = $2, updated_at = $3 WHERE id = $4`

	if _, err := pick(r.db, tx).ExecContext(ctx, query, status, publishedAt, time.Now(), id); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadRepository) SetCounts(ctx context.Context, tx *sql.Tx, id int64, c models.StatusCounts) error {
	query := `
		UPDATE threads
		SET pending_count = $2,
			publishing_count = $3,
			published_count = $4,
			failed_count = $5,
			partial_count = $6
		WHERE id = $1
	`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, id, c.Pending, c.Publishing, c.Published, c.Failed, c.Partial); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadRepository) ApplyTransition(ctx context.Context, tx *sql.Tx, id int64, from, to models.DeliveryStatus) (models.StatusCounts, error) {
	return applyTransition(ctx, pick(r.db, tx), "threads", true, id, from, to)
}

func (r *threadRepository) LockCounts(ctx context.Context, tx *sql.Tx, id int64) (models.StatusCounts, error) {
	return lockCounts(ctx, pick(r.db, tx), "threads", true, id)
}

func (r *threadRepository) LockStatus(ctx context.Context, tx *sql.Tx, id int64) (models.PostStatus, error) {
	return lockStatus(ctx, pick(r.db, tx), "threads", id)
}

func (r *threadRepository) ReleaseStuck(ctx context.Context, before time.Time) ([]int64, error) {
	return releaseStuck(ctx, r.db, "threads", before, time.Now())
}

func (r *threadRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	query := `
		UPDATE threads
		SET status = 'publishing', updated_at = $1
		WHERE id IN (
			SELECT id FROM threads
			WHERE status = 'scheduled' AND scheduled_at <= $1
			ORDER BY scheduled_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`
	return claimIDs(ctx, r.db, query, now, limit)
}

func (r *threadRepository) Remove(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, id); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
