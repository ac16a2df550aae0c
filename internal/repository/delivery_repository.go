package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/publishflow/internal/models"
)

// DeliveryRepository stores delivery units. Post deliveries and thread
// segment deliveries share the same shape and differ only in table.
type DeliveryRepository interface {
	Kind() models.DeliveryKind
	Create(ctx context.Context, tx *sql.Tx, d *models.Delivery) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Delivery, error)
	GetByParentAndAccount(ctx context.Context, parentID, accountID int64) (*models.Delivery, error)
	ListByParent(ctx context.Context, parentID int64) ([]*models.Delivery, error)
	ListByParents(ctx context.Context, parentIDs []int64) ([]*models.Delivery, error)
	// Claim moves a pending or failed delivery to publishing and returns the
	// status it left. ok is false when the delivery was not claimable.
	Claim(ctx context.Context, tx *sql.Tx, id int64, at time.Time) (from models.DeliveryStatus, ok bool, err error)
	MarkPublished(ctx context.Context, tx *sql.Tx, id int64, externalID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, tx *sql.Tx, id int64, reason string) (bool, error)
	// Reset moves a published or failed delivery back to pending and returns
	// the status it left.
	Reset(ctx context.Context, tx *sql.Tx, id int64) (from models.DeliveryStatus, ok bool, err error)
	ListStale(ctx context.Context, startedBefore time.Time) ([]*models.Delivery, error)
	RemoveByParent(ctx context.Context, tx *sql.Tx, parentID int64) ([]int64, error)
}

type deliveryRepository struct {
	db        *sql.DB
	kind      models.DeliveryKind
	table     string
	parentCol string
}

func NewPostDeliveryRepository(db *sql.DB) DeliveryRepository {
	return &deliveryRepository{db: db, kind: models.DeliveryKindPost, table: "post_platforms", parentCol: "post_id"}
}

func NewSegmentDeliveryRepository(db *sql.DB) DeliveryRepository {
	return &deliveryRepository{db: db, kind: models.DeliveryKindSegment, table: "thread_segment_platforms", parentCol: "segment_id"}
}

func (r *deliveryRepository) Kind() models.DeliveryKind {
	return r.kind
}

func (r *deliveryRepository) columns() string {
	return fmt.Sprintf(`id, %s, account_id, platform, status, external_id, error_message,
		published_at, publishing_started_at, created_at, updated_at`, r.parentCol)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *deliveryRepository) scan(row rowScanner) (*models.Delivery, error) {
	d := models.Delivery{Kind: r.kind}
	var externalID, errorMessage sql.NullString
	var publishedAt, startedAt sql.NullTime
	err := row.Scan(&d.ID, &d.ParentID, &d.AccountID, &d.Platform, &d.Status, &externalID, &errorMessage,
		&publishedAt, &startedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if externalID.Valid {
		d.ExternalID = &externalID.String
	}
	if errorMessage.Valid {
		d.ErrorMessage = &errorMessage.String
	}
	if publishedAt.Valid {
		d.PublishedAt = &publishedAt.Time
	}
	if startedAt.Valid {
		d.PublishingStartedAt = &startedAt.Time
	}
	return &d, nil
}

func (r *deliveryRepository) Create(ctx context.Context, tx *sql.Tx, d *models.Delivery) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, account_id, platform, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, r.table, r.parentCol)

	status := d.Status
	if status == "" {
		status = models.DeliveryPending
	}

	var id int64
	err := pick(r.db, tx).QueryRowContext(ctx, query, d.ParentID, d.AccountID, d.Platform, status).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *deliveryRepository) GetByID(ctx context.Context, id int64) (*models.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, r.columns(), r.table)

	d, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return d, nil
}

func (r *deliveryRepository) GetByParentAndAccount(ctx context.Context, parentID, accountID int64) (*models.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND account_id = $2`, r.columns(), r.table, r.parentCol)

	d, err := r.scan(r.db.QueryRowContext(ctx, query, parentID, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return d, nil
}

func (r *deliveryRepository) ListByParent(ctx context.Context, parentID int64) ([]*models.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY id`, r.columns(), r.table, r.parentCol)
	return r.list(ctx, query, parentID)
}

func (r *deliveryRepository) ListByParents(ctx context.Context, parentIDs []int64) ([]*models.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ANY($1) ORDER BY id`, r.columns(), r.table, r.parentCol)
	return r.list(ctx, query, pq.Array(parentIDs))
}

func (r *deliveryRepository) ListStale(ctx context.Context, startedBefore time.Time) ([]*models.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = 'publishing' AND publishing_started_at < $1 ORDER BY id`,
		r.columns(), r.table)
	return r.list(ctx, query, startedBefore)
}

func (r *deliveryRepository) list(ctx context.Context, query string, args ...any) ([]*models.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return deliveries, nil
}

func (r *deliveryRepository) Claim(ctx context.Context, tx *sql.Tx, id int64, at time.Time) (models.DeliveryStatus, bool, error) {
	// The row lock taken by the CTE serializes concurrent claims; the loser
	// sees the new status and matches nothing.
	query := fmt.Sprintf(`
		WITH prev AS (
			SELECT id, status FROM %[1]s WHERE id = $1 FOR UPDATE
		)
		UPDATE %[1]s t
		SET status = 'publishing',
			publishing_started_at = $2,
			error_message = NULL,
			updated_at = $2
		FROM prev
		WHERE t.id = prev.id AND prev.status IN ('pending', 'failed')
		RETURNING prev.status
	`, r.table)

	var from models.DeliveryStatus
	err := pick(r.db, tx).QueryRowContext(ctx, query, id, at).Scan(&from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		slog.Info(err.Error())
		return "", false, err
	}
	return from, true, nil
}

func (r *deliveryRepository) MarkPublished(ctx context.Context, tx *sql.Tx, id int64, externalID string, at time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'published',
			external_id = $2,
			published_at = $3,
			error_message = NULL,
			updated_at = $3
		WHERE id = $1 AND status = 'publishing'
	`, r.table)
	return r.exec(ctx, tx, query, id, externalID, at)
}

func (r *deliveryRepository) MarkFailed(ctx context.Context, tx *sql.Tx, id int64, reason string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'failed',
			error_message = $2,
			external_id = NULL,
			published_at = NULL,
			updated_at = $3
		WHERE id = $1 AND status = 'publishing'
	`, r.table)
	return r.exec(ctx, tx, query, id, reason, time.Now())
}

func (r *deliveryRepository) Reset(ctx context.Context, tx *sql.Tx, id int64) (models.DeliveryStatus, bool, error) {
	query := fmt.Sprintf(`
		WITH prev AS (
			SELECT id, status FROM %[1]s WHERE id = $1 FOR UPDATE
		)
		UPDATE %[1]s t
		SET status = 'pending',
			external_id = NULL,
			error_message = NULL,
			published_at = NULL,
			publishing_started_at = NULL,
			updated_at = $2
		FROM prev
		WHERE t.id = prev.id AND prev.status IN ('published', 'failed')
		RETURNING prev.status
	`, r.table)

	var from models.DeliveryStatus
	err := pick(r.db, tx).QueryRowContext(ctx, query, id, time.Now()).Scan(&from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		slog.Info(err.Error())
		return "", false, err
	}
	return from, true, nil
}

func (r *deliveryRepository) RemoveByParent(ctx context.Context, tx *sql.Tx, parentID int64) ([]int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 RETURNING id`, r.table, r.parentCol)

	rows, err := pick(r.db, tx).QueryContext(ctx, query, parentID)
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

func (r *deliveryRepository) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	result, err := pick(r.db, tx).ExecContext(ctx, query, args...)
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
