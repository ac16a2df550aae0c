package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/repository"
	"github.com/maheshrc27/publishflow/internal/transfer"
	"github.com/samber/lo"
)

type ThreadService interface {
	Create(ctx context.Context, actor publisher.Actor, tc *transfer.ThreadCreation) (*transfer.ThreadDetails, error)
	List(ctx context.Context, userID int64) ([]*models.Thread, error)
	ThreadInfo(ctx context.Context, actor publisher.Actor, threadID int64) (*transfer.ThreadDetails, error)
	Remove(ctx context.Context, actor publisher.Actor, threadID int64) error
}

type threadService struct {
	tx   repository.TxRunner
	tr   repository.ThreadRepository
	sr   repository.ThreadSegmentRepository
	sd   repository.DeliveryRepository
	sm   repository.PostMediaRepository
	ta   repository.ThreadAccountRepository
	ma   repository.MediaAssetRepository
	ac   repository.SocialAccountRepository
	au   repository.AccountUserRepository
	logs repository.PublishLogRepository
}

func NewThreadService(
	tx repository.TxRunner,
	tr repository.ThreadRepository,
	sr repository.ThreadSegmentRepository,
	sd repository.DeliveryRepository,
	sm repository.PostMediaRepository,
	ta repository.ThreadAccountRepository,
	ma repository.MediaAssetRepository,
	ac repository.SocialAccountRepository,
	au repository.AccountUserRepository,
	logs repository.PublishLogRepository) ThreadService {
	return &threadService{
		tx:   tx,
		tr:   tr,
		sr:   sr,
		sd:   sd,
		sm:   sm,
		ta:   ta,
		ma:   ma,
		ac:   ac,
		au:   au,
		logs: logs,
	}
}

func (s *threadService) Create(ctx context.Context, actor publisher.Actor, tc *transfer.ThreadCreation) (*transfer.ThreadDetails, error) {
	if tc == nil || len(tc.Segments) == 0 {
		return nil, fmt.Errorf("%w: a thread needs at least one segment", ErrInvalid)
	}
	for i, seg := range tc.Segments {
		if strings.TrimSpace(seg.Content) == "" {
			return nil, fmt.Errorf("%w: segment %d has no content", ErrInvalid, i+1)
		}
	}
	status, scheduledAt, err := parseSchedule(tc.ScheduledTime)
	if err != nil {
		return nil, err
	}
	accounts, err := linkedAccounts(ctx, s.ac, s.au, actor.UserID, tc.AccountIDs)
	if err != nil {
		return nil, err
	}
	media := make([][]int64, len(tc.Segments))
	for i, seg := range tc.Segments {
		if media[i], err = checkMedia(ctx, s.ma, actor.UserID, seg.MediaIDs); err != nil {
			return nil, err
		}
	}

	thread := &models.Thread{
		UserID:      actor.UserID,
		Title:       tc.Title,
		Status:      status,
		ScheduledAt: scheduledAt,
	}

	var threadID int64
	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		threadID, err = s.tr.Create(ctx, tx, thread)
		if err != nil {
			return fmt.Errorf("error creating thread: %w", err)
		}

		for _, account := range accounts {
			ta := models.ThreadAccount{
				ThreadID:    threadID,
				AccountID:   account.ID,
				PublishMode: models.ModeFor(account.Platform),
			}
			if err := s.ta.Create(ctx, tx, &ta); err != nil {
				return err
			}
		}
		if err := s.tr.SetCounts(ctx, tx, threadID, models.StatusCounts{Pending: len(accounts)}); err != nil {
			return err
		}

		for i, seg := range tc.Segments {
			if err := s.createSegment(ctx, tx, threadID, i+1, status, seg, accounts, media[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("thread created", "thread_id", threadID, "segments", len(tc.Segments), "accounts", len(accounts))
	return s.ThreadInfo(ctx, actor, threadID)
}

func (s *threadService) createSegment(ctx context.Context, tx *sql.Tx, threadID int64, position int, status models.PostStatus,
	seg transfer.SegmentCreation, accounts []*models.SocialAccount, mediaIDs []int64) error {
	segmentID, err := s.sr.Create(ctx, tx, &models.ThreadSegment{
		ThreadID: threadID,
		Position: position,
		Content:  seg.Content,
		Language: seg.Language,
		Variants: seg.Variants,
		Status:   status,
	})
	if err != nil {
		return fmt.Errorf("error creating segment %d: %w", position, err)
	}

	for _, account := range accounts {
		d := models.Delivery{
			ParentID:  segmentID,
			AccountID: account.ID,
			Platform:  account.Platform,
			Status:    models.DeliveryPending,
		}
		if _, err := s.sd.Create(ctx, tx, &d); err != nil {
			return err
		}
	}
	for i, assetID := range mediaIDs {
		pm := models.PostMedia{OwnerID: segmentID, AssetID: assetID, DisplayOrder: i}
		if err := s.sm.Create(ctx, tx, &pm); err != nil {
			return err
		}
	}
	return s.sr.SetCounts(ctx, tx, segmentID, models.StatusCounts{Pending: len(accounts)})
}

func (s *threadService) load(ctx context.Context, actor publisher.Actor, threadID int64) (*models.Thread, error) {
	thread, err := s.tr.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, fmt.Errorf("thread %d: %w", threadID, publisher.ErrNotFound)
	}
	if !owns(actor, thread.UserID) {
		return nil, publisher.ErrUnauthorized
	}
	return thread, nil
}

func (s *threadService) ThreadInfo(ctx context.Context, actor publisher.Actor, threadID int64) (*transfer.ThreadDetails, error) {
	thread, err := s.load(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.ta.ListByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	segments, err := s.sr.ListByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	ids := lo.Map(segments, func(seg *models.ThreadSegment, _ int) int64 { return seg.ID })
	deliveries, err := s.sd.ListByParents(ctx, ids)
	if err != nil {
		return nil, err
	}
	byParent := lo.GroupBy(deliveries, func(d *models.Delivery) int64 { return d.ParentID })

	details := &transfer.ThreadDetails{Thread: thread, Accounts: accounts}
	for _, seg := range segments {
		media, err := s.sm.ListAssets(ctx, seg.ID)
		if err != nil {
			return nil, err
		}
		details.Segments = append(details.Segments, transfer.SegmentDetails{
			ThreadSegment: seg,
			Deliveries:    byParent[seg.ID],
			Media:         media,
		})
	}
	return details, nil
}

func (s *threadService) List(ctx context.Context, userID int64) ([]*models.Thread, error) {
	threads, err := s.tr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting threads: %w", err)
	}
	return threads, nil
}

func (s *threadService) Remove(ctx context.Context, actor publisher.Actor, threadID int64) error {
	thread, err := s.load(ctx, actor, threadID)
	if err != nil {
		return err
	}
	if !removable(thread.Status) {
		return fmt.Errorf("thread %d is publishing: %w", threadID, publisher.ErrConflict)
	}

	segments, err := s.sr.ListByThread(ctx, threadID)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		status, err := s.tr.LockStatus(ctx, tx, threadID)
		if err != nil {
			return err
		}
		if status == "" {
			return fmt.Errorf("thread %d: %w", threadID, publisher.ErrNotFound)
		}
		if !removable(status) {
			return fmt.Errorf("thread %d is %s: %w", threadID, status, publisher.ErrConflict)
		}
		for _, seg := range segments {
			ids, err := s.sd.RemoveByParent(ctx, tx, seg.ID)
			if err != nil {
				return err
			}
			if err := s.logs.RemoveByDeliveries(ctx, tx, models.DeliveryKindSegment, ids); err != nil {
				return err
			}
			if err := s.sm.RemoveByOwner(ctx, tx, seg.ID); err != nil {
				return err
			}
		}
		return s.tr.Remove(ctx, tx, threadID)
	})
	if err != nil {
		return err
	}

	slog.Info("thread removed", "thread_id", threadID)
	return nil
}
