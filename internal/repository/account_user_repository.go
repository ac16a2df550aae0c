package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/publishflow/internal/models"
)

type AccountUserRepository interface {
	Get(ctx context.Context, accountID, userID int64) (*models.AccountUser, error)
	ActiveAccountIDs(ctx context.Context, userID int64) ([]int64, error)
	SetActive(ctx context.Context, accountID, userID int64, active bool) (bool, error)
}

type accountUserRepository struct {
	db *sql.DB
}

func NewAccountUserRepository(db *sql.DB) AccountUserRepository {
	return &accountUserRepository{db: db}
}

func (r *accountUserRepository) Get(ctx context.Context, accountID, userID int64) (*models.AccountUser, error) {
	query := `SELECT account_id, user_id, is_active, created_at FROM account_users WHERE account_id = $1 AND user_id = $2`

	var link models.AccountUser
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&link.AccountID, &link.UserID, &link.IsActive, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &link, nil
}

func (r *accountUserRepository) ActiveAccountIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT account_id FROM account_users WHERE user_id = $1 AND is_active`

	rows, err := r.db.QueryContext(ctx, query, userID)
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

func (r *accountUserRepository) SetActive(ctx context.Context, accountID, userID int64, active bool) (bool, error) {
	query := `UPDATE account_users SET is_active = $3 WHERE account_id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, accountID, userID, active)
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
