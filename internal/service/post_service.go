package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/repository"
	"github.com/maheshrc27/publishflow/internal/transfer"
	"github.com/samber/lo"
)

const scheduledTimeLayout = "2006-01-02T15:04"

type PostService interface {
	Create(ctx context.Context, actor publisher.Actor, pc *transfer.PostCreation) (*transfer.PostDetails, error)
	Update(ctx context.Context, actor publisher.Actor, postID int64, pc *transfer.PostCreation) (*transfer.PostDetails, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, actor publisher.Actor, postID int64) (*transfer.PostDetails, error)
	Remove(ctx context.Context, actor publisher.Actor, postID int64) error
	Logs(ctx context.Context, actor publisher.Actor, deliveryID int64) ([]*models.PublishLog, error)
}

type postService struct {
	tx   repository.TxRunner
	pr   repository.PostRepository
	pd   repository.DeliveryRepository
	pm   repository.PostMediaRepository
	ma   repository.MediaAssetRepository
	ac   repository.SocialAccountRepository
	au   repository.AccountUserRepository
	logs repository.PublishLogRepository
}

func NewPostService(
	tx repository.TxRunner,
	pr repository.PostRepository,
	pd repository.DeliveryRepository,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository,
	ac repository.SocialAccountRepository,
	au repository.AccountUserRepository,
	logs repository.PublishLogRepository) PostService {
	return &postService{
		tx:   tx,
		pr:   pr,
		pd:   pd,
		pm:   pm,
		ma:   ma,
		ac:   ac,
		au:   au,
		logs: logs,
	}
}

func owns(actor publisher.Actor, userID int64) bool {
	return actor.IsAdmin || actor.UserID == userID
}

// parseSchedule returns the initial status for content scheduled at value.
func parseSchedule(value string) (models.PostStatus, *time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return models.PostStatusDraft, nil, nil
	}
	scheduledTime, err := time.Parse(scheduledTimeLayout, value)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid scheduled time format", ErrInvalid)
	}
	return models.PostStatusScheduled, &scheduledTime, nil
}

// linkedAccounts loads the selected accounts and checks that userID may
// publish to each of them.
func linkedAccounts(ctx context.Context, ac repository.SocialAccountRepository, au repository.AccountUserRepository, userID int64, ids []int64) ([]*models.SocialAccount, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no social accounts selected", ErrInvalid)
	}

	accounts := make([]*models.SocialAccount, 0, len(ids))
	for _, id := range ids {
		link, err := au.Get(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		if link == nil {
			return nil, fmt.Errorf("%w: social account %d is not linked", ErrInvalid, id)
		}
		account, err := ac.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, fmt.Errorf("%w: social account %d does not exist", ErrInvalid, id)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func checkMedia(ctx context.Context, ma repository.MediaAssetRepository, userID int64, ids []int64) ([]int64, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	n, err := ma.CountOwned(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if n != len(ids) {
		return nil, fmt.Errorf("%w: unknown media asset", ErrInvalid)
	}
	return ids, nil
}

func (s *postService) validate(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, []*models.SocialAccount, []int64, error) {
	if pc == nil {
		return nil, nil, nil, fmt.Errorf("%w: post creation data is nil", ErrInvalid)
	}
	if strings.TrimSpace(pc.Content) == "" {
		return nil, nil, nil, fmt.Errorf("%w: content cannot be empty", ErrInvalid)
	}

	status, scheduledAt, err := parseSchedule(pc.ScheduledTime)
	if err != nil {
		return nil, nil, nil, err
	}
	accounts, err := linkedAccounts(ctx, s.ac, s.au, userID, pc.AccountIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	mediaIDs, err := checkMedia(ctx, s.ma, userID, pc.MediaIDs)
	if err != nil {
		return nil, nil, nil, err
	}

	post := &models.Post{
		UserID:      userID,
		Title:       pc.Title,
		Content:     pc.Content,
		Language:    pc.Language,
		Variants:    pc.Variants,
		Link:        pc.Link,
		Location:    pc.Location,
		Status:      status,
		ScheduledAt: scheduledAt,
	}
	return post, accounts, mediaIDs, nil
}

// attach creates one pending delivery per account plus the media links and
// resets the post counters to match.
func (s *postService) attach(ctx context.Context, tx *sql.Tx, postID int64, accounts []*models.SocialAccount, mediaIDs []int64) error {
	for _, account := range accounts {
		d := models.Delivery{
			ParentID:  postID,
			AccountID: account.ID,
			Platform:  account.Platform,
			Status:    models.DeliveryPending,
		}
		if _, err := s.pd.Create(ctx, tx, &d); err != nil {
			return fmt.Errorf("error saving delivery for account %d: %w", account.ID, err)
		}
	}
	for i, assetID := range mediaIDs {
		pm := models.PostMedia{OwnerID: postID, AssetID: assetID, DisplayOrder: i}
		if err := s.pm.Create(ctx, tx, &pm); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
	}
	return s.pr.SetCounts(ctx, tx, postID, models.StatusCounts{Pending: len(accounts)})
}

func (s *postService) Create(ctx context.Context, actor publisher.Actor, pc *transfer.PostCreation) (*transfer.PostDetails, error) {
	post, accounts, mediaIDs, err := s.validate(ctx, actor.UserID, pc)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	var postID int64
	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		postID, err = s.pr.Create(ctx, tx, post)
		if err != nil {
			return fmt.Errorf("error creating post: %w", err)
		}
		return s.attach(ctx, tx, postID, accounts, mediaIDs)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("post created", "post_id", postID, "status", post.Status, "accounts", len(accounts))
	return s.PostInfo(ctx, actor, postID)
}

func (s *postService) load(ctx context.Context, actor publisher.Actor, postID int64) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("post %d: %w", postID, publisher.ErrNotFound)
	}
	if !owns(actor, post.UserID) {
		return nil, publisher.ErrUnauthorized
	}
	return post, nil
}

// Update replaces the post and its targets. Only drafts and scheduled posts
// can be edited; their deliveries are recreated from scratch.
func (s *postService) Update(ctx context.Context, actor publisher.Actor, postID int64, pc *transfer.PostCreation) (*transfer.PostDetails, error) {
	current, err := s.load(ctx, actor, postID)
	if err != nil {
		return nil, err
	}
	if !editable(current.Status) {
		return nil, fmt.Errorf("post %d is %s: %w", postID, current.Status, publisher.ErrConflict)
	}

	post, accounts, mediaIDs, err := s.validate(ctx, current.UserID, pc)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	post.ID = postID

	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.lock(ctx, tx, postID, editable); err != nil {
			return err
		}
		if err := s.detach(ctx, tx, postID); err != nil {
			return err
		}
		if err := s.pr.Update(ctx, tx, post); err != nil {
			return err
		}
		return s.attach(ctx, tx, postID, accounts, mediaIDs)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("post updated", "post_id", postID, "status", post.Status)
	return s.PostInfo(ctx, actor, postID)
}

func editable(status models.PostStatus) bool {
	return status == models.PostStatusDraft || status == models.PostStatusScheduled
}

func removable(status models.PostStatus) bool {
	return status != models.PostStatusPublishing
}

// lock holds the post row for the rest of tx and checks the status it has
// under the lock.
func (s *postService) lock(ctx context.Context, tx *sql.Tx, postID int64, allowed func(models.PostStatus) bool) error {
	status, err := s.pr.LockStatus(ctx, tx, postID)
	if err != nil {
		return err
	}
	if status == "" {
		return fmt.Errorf("post %d: %w", postID, publisher.ErrNotFound)
	}
	if !allowed(status) {
		return fmt.Errorf("post %d is %s: %w", postID, status, publisher.ErrConflict)
	}
	return nil
}

// detach removes deliveries, their audit entries and media links.
func (s *postService) detach(ctx context.Context, tx *sql.Tx, postID int64) error {
	ids, err := s.pd.RemoveByParent(ctx, tx, postID)
	if err != nil {
		return err
	}
	if err := s.logs.RemoveByDeliveries(ctx, tx, models.DeliveryKindPost, ids); err != nil {
		return err
	}
	return s.pm.RemoveByOwner(ctx, tx, postID)
}

func (s *postService) PostInfo(ctx context.Context, actor publisher.Actor, postID int64) (*transfer.PostDetails, error) {
	post, err := s.load(ctx, actor, postID)
	if err != nil {
		return nil, err
	}
	deliveries, err := s.pd.ListByParent(ctx, postID)
	if err != nil {
		return nil, err
	}
	media, err := s.pm.ListAssets(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &transfer.PostDetails{Post: post, Deliveries: deliveries, Media: media}, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting posts: %w", err)
	}
	return posts, nil
}

// Remove deletes a post with its deliveries and audit history. A post that
// is being published cannot be removed.
func (s *postService) Remove(ctx context.Context, actor publisher.Actor, postID int64) error {
	post, err := s.load(ctx, actor, postID)
	if err != nil {
		return err
	}
	if !removable(post.Status) {
		return fmt.Errorf("post %d is publishing: %w", postID, publisher.ErrConflict)
	}

	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.lock(ctx, tx, postID, removable); err != nil {
			return err
		}
		if err := s.detach(ctx, tx, postID); err != nil {
			return err
		}
		return s.pr.Remove(ctx, tx, postID)
	})
	if err != nil {
		return err
	}

	slog.Info("post removed", "post_id", postID)
	return nil
}

func (s *postService) Logs(ctx context.Context, actor publisher.Actor, deliveryID int64) ([]*models.PublishLog, error) {
	d, err := s.pd.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("delivery %d: %w", deliveryID, publisher.ErrNotFound)
	}
	if _, err := s.load(ctx, actor, d.ParentID); err != nil {
		if errors.Is(err, publisher.ErrNotFound) {
			return nil, fmt.Errorf("delivery %d: %w", deliveryID, publisher.ErrNotFound)
		}
		return nil, err
	}
	return s.logs.ListByDelivery(ctx, models.DeliveryKindPost, deliveryID)
}
