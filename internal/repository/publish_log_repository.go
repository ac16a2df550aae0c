package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/lib/pq"
	"github.com/maheshrc27/publishflow/internal/models"
)

// PublishLogRepository is append-only. Entries are removed only together
// with the deliveries they describe.
type PublishLogRepository interface {
	Append(ctx context.Context, tx *sql.Tx, entry *models.PublishLog) error
	ListByDelivery(ctx context.Context, kind models.DeliveryKind, deliveryID int64) ([]*models.PublishLog, error)
	RemoveByDeliveries(ctx context.Context, tx *sql.Tx, kind models.DeliveryKind, deliveryIDs []int64) error
}

type publishLogRepository struct {
	db *sql.DB
}

func NewPublishLogRepository(db *sql.DB) PublishLogRepository {
	return &publishLogRepository{db: db}
}

func (r *publishLogRepository) Append(ctx context.Context, tx *sql.Tx, entry *models.PublishLog) error {
	query := `
		INSERT INTO publish_logs (delivery_kind, delivery_id, action, details)
		VALUES ($1, $2, $3, $4)
	`

	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	if _, err := pick(r.db, tx).ExecContext(ctx, query, entry.DeliveryKind, entry.DeliveryID, entry.Action, []byte(details)); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *publishLogRepository) ListByDelivery(ctx context.Context, kind models.DeliveryKind, deliveryID int64) ([]*models.PublishLog, error) {
	query := `
		SELECT id, delivery_kind, delivery_id, action, details, created_at
		FROM publish_logs
		WHERE delivery_kind = $1 AND delivery_id = $2
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, kind, deliveryID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []*models.PublishLog
	for rows.Next() {
		var e models.PublishLog
		var details []byte
		if err := rows.Scan(&e.ID, &e.DeliveryKind, &e.DeliveryID, &e.Action, &details, &e.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		e.Details = details
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *publishLogRepository) RemoveByDeliveries(ctx context.Context, tx *sql.Tx, kind models.DeliveryKind, deliveryIDs []int64) error {
	if len(deliveryIDs) == 0 {
		return nil
	}

	query := `DELETE FROM publish_logs WHERE delivery_kind = $1 AND delivery_id = ANY($2)`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, kind, pq.Array(deliveryIDs)); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
