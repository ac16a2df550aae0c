package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
)

type PostRepository interface {
	CounterRepository
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	Update(ctx context.Context, tx *sql.Tx, post *models.Post) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error
	SetCounts(ctx context.Context, tx *sql.Tx, id int64, counts models.StatusCounts) error
	// ClaimDue moves scheduled posts whose time has come to publishing and
	// returns their ids. Concurrent callers never receive the same post.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]int64, error)
	// ReleaseStuck returns publishing posts with pending deliveries, none in
	// flight and no change since before to scheduled, or to draft when they
	// were never scheduled.
	ReleaseStuck(ctx context.Context, before time.Time) ([]int64, error)
	Remove(ctx context.Context, tx *sql.Tx, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, title, content, language, variants, link, location, status,
	scheduled_at, published_at, pending_count, publishing_count, published_count, failed_count,
	created_at, updated_at`

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var scheduledAt, publishedAt sql.NullTime
	err := row.Scan(&post.ID, &post.UserID, &post.Title, &post.Content, &post.Language, &post.Variants,
		&post.Link, &post.Location, &post.Status, &scheduledAt, &publishedAt,
		&post.Counts.Pending, &post.Counts.Publishing, &post.Counts.Published, &post.Counts.Failed,
		&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		post.ScheduledAt = &scheduledAt.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, title, content, language, variants, link, location, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := pick(r.db, tx).QueryRowContext(ctx, query, post.UserID, post.Title, post.Content, post.Language,
		post.Variants, post.Link, post.Location, post.Status, post.ScheduledAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) Update(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	query := `
		UPDATE posts
		SET title = $2,
			content = $3,
			language = $4,
			variants = $5,
			link = $6,
			location = $7,
			status = $8,
			scheduled_at = $9,
			updated_at = $10
		WHERE id = $1
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, post.ID, post.Title, post.Content, post.Language,
		post.Variants, post.Link, post.Location, post.Status, post.ScheduledAt, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error {
	query := `
		UPDATE posts
		SET status = $1,
			published_at = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, status, publishedAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SetCounts(ctx context.Context, tx *sql.Tx, id int64, c models.StatusCounts) error {
	query := `
		UPDATE posts
		SET pending_count = $2,
			publishing_count = $3,
			published_count = $4,
			failed_count = $5
		WHERE id = $1
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, id, c.Pending, c.Publishing, c.Published, c.Failed)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) ApplyTransition(ctx context.Context, tx *sql.Tx, id int64, from, to models.DeliveryStatus) (models.StatusCounts, error) {
	return applyTransition(ctx, pick(r.db, tx), "posts", false, id, from, to)
}

func (r *postRepository) LockCounts(ctx context.Context, tx *sql.Tx, id int64) (models.StatusCounts, error) {
	return lockCounts(ctx, pick(r.db, tx), "posts", false, id)
}

func (r *postRepository) LockStatus(ctx context.Context, tx *sql.Tx, id int64) (models.PostStatus, error) {
	return lockStatus(ctx, pick(r.db, tx), "posts", id)
}

func (r *postRepository) ReleaseStuck(ctx context.Context, before time.Time) ([]int64, error) {
	return releaseStuck(ctx, r.db, "posts", before, time.Now())
}

func (r *postRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	query := `
		UPDATE posts
		SET status = 'publishing', updated_at = $1
		WHERE id IN (
			SELECT id FROM posts
			WHERE status = 'scheduled' AND scheduled_at <= $1
			ORDER BY scheduled_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`
	return claimIDs(ctx, r.db, query, now, limit)
}

func (r *postRepository) Remove(ctx context.Context, tx *sql.Tx, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := pick(r.db, tx).ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func claimIDs(ctx context.Context, db *sql.DB, query string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
