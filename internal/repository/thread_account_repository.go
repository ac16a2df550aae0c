package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
)

type ThreadAccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ta *models.ThreadAccount) error
	Get(ctx context.Context, threadID, accountID int64) (*models.ThreadAccount, error)
	ListByThread(ctx context.Context, threadID int64) ([]*models.ThreadAccount, error)
	// Claim starts a new delivery run for a pending pivot and returns the
	// run's attempt number.
	Claim(ctx context.Context, tx *sql.Tx, threadID, accountID int64) (attempt int, ok bool, err error)
	SetNextSegmentAt(ctx context.Context, tx *sql.Tx, threadID, accountID int64, at time.Time) error
	// Finish settles a publishing pivot.
	Finish(ctx context.Context, tx *sql.Tx, threadID, accountID int64, status models.DeliveryStatus, reason *string, publishedAt *time.Time) (bool, error)
	Reset(ctx context.Context, tx *sql.Tx, threadID, accountID int64) (from models.DeliveryStatus, ok bool, err error)
	// ListStale returns publishing pivots untouched since updatedBefore that
	// have no segment delivery in flight, i.e. runs whose next step was lost.
	ListStale(ctx context.Context, updatedBefore time.Time) ([]*models.ThreadAccount, error)
}

type threadAccountRepository struct {
	db *sql.DB
}

func NewThreadAccountRepository(db *sql.DB) ThreadAccountRepository {
	return &threadAccountRepository{db: db}
}

const threadAccountColumns = `thread_id, account_id, publish_mode, status, error_message, attempt,
	next_segment_at, published_at, updated_at`

func scanThreadAccount(row rowScanner) (*models.ThreadAccount, error) {
	var ta models.ThreadAccount
	var reason sql.NullString
	var nextAt, publishedAt sql.NullTime
	err := row.Scan(&ta.ThreadID, &ta.AccountID, &ta.PublishMode, &ta.Status, &reason, &ta.Attempt,
		&nextAt, &publishedAt, &ta.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		ta.ErrorMessage = &reason.String
	}
	if nextAt.Valid {
		ta.NextSegmentAt = &nextAt.Time
	}
	if publishedAt.Valid {
		ta.PublishedAt = &publishedAt.Time
	}
	return &ta, nil
}

func (r *threadAccountRepository) Create(ctx context.Context, tx *sql.Tx, ta *models.ThreadAccount) error {
	query := `
		INSERT INTO thread_accounts (thread_id, account_id, publish_mode, status)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, ta.ThreadID, ta.AccountID, ta.PublishMode, models.DeliveryPending); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadAccountRepository) Get(ctx context.Context, threadID, accountID int64) (*models.ThreadAccount, error) {
	query := `SELECT ` + threadAccountColumns + ` FROM thread_accounts WHERE thread_id = $1 AND account_id = $2`

	ta, err := scanThreadAccount(r.db.QueryRowContext(ctx, query, threadID, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return ta, nil
}

func (r *threadAccountRepository) ListByThread(ctx context.Context, threadID int64) ([]*models.ThreadAccount, error) {
	query := `SELECT ` + threadAccountColumns + ` FROM thread_accounts WHERE thread_id = $1 ORDER BY account_id`

	rows, err := r.db.QueryContext(ctx, query, threadID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var pivots []*models.ThreadAccount
	for rows.Next() {
		ta, err := scanThreadAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		pivots = append(pivots, ta)
	}
	return pivots, rows.Err()
}

func (r *threadAccountRepository) ListStale(ctx context.Context, updatedBefore time.Time) ([]*models.ThreadAccount, error) {
	query := `
		SELECT ` + threadAccountColumns + `
		FROM thread_accounts ta
		WHERE ta.status = 'publishing'
			AND ta.updated_at < $1
			AND NOT EXISTS (
				SELECT 1
				FROM thread_segment_platforms sp
				JOIN thread_segments s ON s.id = sp.segment_id
				WHERE s.thread_id = ta.thread_id
					AND sp.account_id = ta.account_id
					AND sp.status = 'publishing'
			)
		ORDER BY ta.updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, updatedBefore)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var pivots []*models.ThreadAccount
	for rows.Next() {
		ta, err := scanThreadAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		pivots = append(pivots, ta)
	}
	return pivots, rows.Err()
}

func (r *threadAccountRepository) Claim(ctx context.Context, tx *sql.Tx, threadID, accountID int64) (int, bool, error) {
	query := `
		UPDATE thread_accounts
		SET status = 'publishing',
			attempt = attempt + 1,
			error_message = NULL,
			next_segment_at = NULL,
			updated_at = $3
		WHERE thread_id = $1 AND account_id = $2 AND status = 'pending'
		RETURNING attempt
	`

	var attempt int
	err := pick(r.db, tx).QueryRowContext(ctx, query, threadID, accountID, time.Now()).Scan(&attempt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		slog.Info(err.Error())
		return 0, false, err
	}
	return attempt, true, nil
}

func (r *threadAccountRepository) SetNextSegmentAt(ctx context.Context, tx *sql.Tx, threadID, accountID int64, at time.Time) error {
	query := `UPDATE thread_accounts SET next_segment_at = $3, updated_at = $4 WHERE thread_id = $1 AND account_id = $2`

	if _, err := pick(r.db, tx).ExecContext(ctx, query, threadID, accountID, at, time.Now()); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadAccountRepository) Finish(ctx context.Context, tx *sql.Tx, threadID, accountID int64, status models.DeliveryStatus, reason *string, publishedAt *time.Time) (bool, error) {
	query := `
		UPDATE thread_accounts
		SET status = $3,
			error_message = $4,
			published_at = $5,
			next_segment_at = NULL,
			updated_at = $6
		WHERE thread_id = $1 AND account_id = $2 AND status = 'publishing'
	`
	result, err := pick(r.db, tx).ExecContext(ctx, query, threadID, accountID, status, reason, publishedAt, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *threadAccountRepository) Reset(ctx context.Context, tx *sql.Tx, threadID, accountID int64) (models.DeliveryStatus, bool, error) {
	query := `
		WITH prev AS (
			SELECT thread_id, account_id, status FROM thread_accounts
			WHERE thread_id = $1 AND account_id = $2
			FOR UPDATE
		)
		UPDATE thread_accounts t
		SET status = 'pending',
			error_message = NULL,
			published_at = NULL,
			next_segment_at = NULL,
			updated_at = $3
		FROM prev
		WHERE t.thread_id = prev.thread_id AND t.account_id = prev.account_id
			AND prev.status IN ('published', 'failed', 'partial')
		RETURNING prev.status
	`

	var from models.DeliveryStatus
	err := pick(r.db, tx).QueryRowContext(ctx, query, threadID, accountID, time.Now()).Scan(&from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		slog.Info(err.Error())
		return "", false, err
	}
	return from, true, nil
}
