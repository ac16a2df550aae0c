package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/publishflow/internal/models"
)

// PostMediaRepository keeps the ordered media of a post or of a thread
// segment. The two owners use separate join tables.
type PostMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error
	ListAssets(ctx context.Context, ownerID int64) ([]*models.MediaAsset, error)
	RemoveByOwner(ctx context.Context, tx *sql.Tx, ownerID int64) error
}

type postMediaRepository struct {
	db    *sql.DB
	table string
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db, table: "post_media"}
}

func NewSegmentMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db, table: "segment_media"}
}

func (r *postMediaRepository) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, asset_id, display_order)
		VALUES ($1, $2, $3)
	`, r.table)

	_, err := pick(r.db, tx).ExecContext(ctx, query, pm.OwnerID, pm.AssetID, pm.DisplayOrder)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postMediaRepository) ListAssets(ctx context.Context, ownerID int64) ([]*models.MediaAsset, error) {
	query := fmt.Sprintf(`
		SELECT a.id, a.user_id, a.file_name, a.file_type, a.file_size, a.file_url, a.created_at
		FROM %s m
		JOIN media_assets a ON a.id = m.asset_id
		WHERE m.owner_id = $1
		ORDER BY m.display_order
	`, r.table)

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	for rows.Next() {
		var ma models.MediaAsset
		if err := rows.Scan(&ma.ID, &ma.UserID, &ma.FileName, &ma.FileType, &ma.FileSize, &ma.FileURL, &ma.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		assets = append(assets, &ma)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return assets, nil
}

func (r *postMediaRepository) RemoveByOwner(ctx context.Context, tx *sql.Tx, ownerID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1`, r.table)

	_, err := pick(r.db, tx).ExecContext(ctx, query, ownerID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
