package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
)

type ThreadSegmentRepository interface {
	CounterRepository
	Create(ctx context.Context, tx *sql.Tx, s *models.ThreadSegment) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ThreadSegment, error)
	// ListByThread returns segments ordered by position.
	ListByThread(ctx context.Context, threadID int64) ([]*models.ThreadSegment, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error
	SetCounts(ctx context.Context, tx *sql.Tx, id int64, counts models.StatusCounts) error
}

type threadSegmentRepository struct {
	db *sql.DB
}

func NewThreadSegmentRepository(db *sql.DB) ThreadSegmentRepository {
	return &threadSegmentRepository{db: db}
}

const segmentColumns = `id, thread_id, position, content, language, variants, status, published_at,
	pending_count, publishing_count, published_count, failed_count, created_at, updated_at`

func scanSegment(row rowScanner) (*models.ThreadSegment, error) {
	var s models.ThreadSegment
	var publishedAt sql.NullTime
	err := row.Scan(&s.ID, &s.ThreadID, &s.Position, &s.Content, &s.Language, &s.Variants, &s.Status, &publishedAt,
		&s.Counts.Pending, &s.Counts.Publishing, &s.Counts.Published, &s.Counts.Failed, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		s.PublishedAt = &publishedAt.Time
	}
	return &s, nil
}

func (r *threadSegmentRepository) Create(ctx context.Context, tx *sql.Tx, s *models.ThreadSegment) (int64, error) {
	query := `
		INSERT INTO thread_segments (thread_id, position, content, language, variants, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := pick(r.db, tx).QueryRowContext(ctx, query, s.ThreadID, s.Position, s.Content, s.Language, s.Variants, s.Status).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *threadSegmentRepository) GetByID(ctx context.Context, id int64) (*models.ThreadSegment, error) {
	query := `SELECT ` + segmentColumns + ` FROM thread_segments WHERE id = $1`

	s, err := scanSegment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return s, nil
}

func (r *threadSegmentRepository) ListByThread(ctx context.Context, threadID int64) ([]*models.ThreadSegment, error) {
	query := `SELECT ` + segmentColumns + ` FROM thread_segments WHERE thread_id = $1 ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, threadID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var segments []*models.ThreadSegment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

func (r *threadSegmentRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error {
	query := `UPDATE thread_segments SET status = $1, published_at = $2, updated_at = $3 WHERE id = $4`

	if _, err := pick(r.db, tx).ExecContext(ctx, query, status, publishedAt, time.Now(), id); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadSegmentRepository) SetCounts(ctx context.Context, tx *sql.Tx, id int64, c models.StatusCounts) error {
	query := `
		UPDATE thread_segments
		SET pending_count = $2,
			publishing_count = $3,
			published_count = $4,
			failed_count = $5
		WHERE id = $1
	`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, id, c.Pending, c.Publishing, c.Published, c.Failed); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadSegmentRepository) ApplyTransition(ctx context.Context, tx *sql.Tx, id int64, from, to models.DeliveryStatus) (models.StatusCounts, error) {
	return applyTransition(ctx, pick(r.db, tx), "thread_segments", false, id, from, to)
}

func (r *threadSegmentRepository) LockCounts(ctx context.Context, tx *sql.Tx, id int64) (models.StatusCounts, error) {
	return lockCounts(ctx, pick(r.db, tx), "thread_segments", false, id)
}

func (r *threadSegmentRepository) LockStatus(ctx context.Context, tx *sql.Tx, id int64) (models.PostStatus, error) {
	return lockStatus(ctx, pick(r.db, tx), "thread_segments", id)
}
