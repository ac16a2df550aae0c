package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
)

// CounterRepository adjusts the per-status child counters of a parent row.
type CounterRepository interface {
	ApplyTransition(ctx context.Context, tx *sql.Tx, id int64, from, to models.DeliveryStatus) (models.StatusCounts, error)
	// LockCounts reads the counters and holds the parent row until tx ends.
	LockCounts(ctx context.Context, tx *sql.Tx, id int64) (models.StatusCounts, error)
	// LockStatus reads the status and holds the parent row until tx ends.
	// A missing row yields an empty status.
	LockStatus(ctx context.Context, tx *sql.Tx, id int64) (models.PostStatus, error)
}

func countSelect(withPartial bool) string {
	cols := "pending_count, publishing_count, published_count, failed_count"
	if withPartial {
		cols += ", partial_count"
	}
	return cols
}

func countDest(c *models.StatusCounts, withPartial bool) []any {
	dest := []any{&c.Pending, &c.Publishing, &c.Published, &c.Failed}
	if withPartial {
		dest = append(dest, &c.Partial)
	}
	return dest
}

func applyTransition(ctx context.Context, q execer, table string, withPartial bool, id int64, from, to models.DeliveryStatus) (models.StatusCounts, error) {
	fromCol, ok := countColumns[string(from)]
	if !ok {
		return models.StatusCounts{}, fmt.Errorf("no counter for status %q", from)
	}
	toCol, ok := countColumns[string(to)]
	if !ok {
		return models.StatusCounts{}, fmt.Errorf("no counter for status %q", to)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = %s - 1,
			%s = %s + 1,
			updated_at = $2
		WHERE id = $1
		RETURNING %s
	`, table, fromCol, fromCol, toCol, toCol, countSelect(withPartial))

	var c models.StatusCounts
	if err := q.QueryRowContext(ctx, query, id, time.Now()).Scan(countDest(&c, withPartial)...); err != nil {
		slog.Info(err.Error())
		return models.StatusCounts{}, err
	}
	return c, nil
}

func lockCounts(ctx context.Context, q execer, table string, withPartial bool, id int64) (models.StatusCounts, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, countSelect(withPartial), table)

	var c models.StatusCounts
	if err := q.QueryRowContext(ctx, query, id).Scan(countDest(&c, withPartial)...); err != nil {
		slog.Info(err.Error())
		return models.StatusCounts{}, err
	}
	return c, nil
}

func lockStatus(ctx context.Context, q execer, table string, id int64) (models.PostStatus, error) {
	query := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1 FOR UPDATE`, table)

	var status models.PostStatus
	if err := q.QueryRowContext(ctx, query, id).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		slog.Info(err.Error())
		return "", err
	}
	return status, nil
}

// releaseStuck hands parents that sit in publishing with nothing in flight
// back to the scheduler, or to their author when they were never scheduled.
func releaseStuck(ctx context.Context, db *sql.DB, table string, before, now time.Time) ([]int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = CASE WHEN scheduled_at IS NULL THEN 'draft' ELSE 'scheduled' END,
			updated_at = $2
		WHERE status = 'publishing'
			AND publishing_count = 0
			AND pending_count > 0
			AND updated_at < $1
		RETURNING id
	`, table)
	return claimIDs(ctx, db, query, before, now)
}
