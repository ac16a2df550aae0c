package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/platform"
	"github.com/samber/lo"
)

// Step is one scheduled unit of work of a thread delivery to one account.
// Attempt ties the step to the pivot run that scheduled it so steps left over
// from an earlier run are ignored. Deferred counts how often the step arrived
// early and was put back.
type Step struct {
	ThreadID  int64 `json:"thread_id"`
	AccountID int64 `json:"account_id"`
	Position  int   `json:"position"`
	Attempt   int   `json:"attempt"`
	Deferred  int   `json:"deferred,omitempty"`
}

type AccountStart struct {
	AccountID int64              `json:"account_id"`
	Mode      models.PublishMode `json:"publish_mode"`
	Started   bool               `json:"started"`
	Error     string             `json:"error,omitempty"`
}

type ThreadStart struct {
	ThreadID int64          `json:"thread_id"`
	Accounts []AccountStart `json:"accounts"`
}

func (p *publisher) loadThread(ctx context.Context, actor Actor, threadID int64) (*models.Thread, error) {
	thread, err := p.tr.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, fmt.Errorf("thread %d: %w", threadID, ErrNotFound)
	}
	if !actor.owns(thread.UserID) {
		return nil, ErrUnauthorized
	}
	return thread, nil
}

// PublishThread starts an independent delivery run for every pending account
// of the thread. Segments are then delivered by ContinueThread steps.
func (p *publisher) PublishThread(ctx context.Context, actor Actor, threadID int64) (*ThreadStart, error) {
	thread, err := p.loadThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	start, _, err := p.startThread(ctx, actor, thread)
	return start, err
}

// PublishScheduledThread starts a due thread on behalf of its author. The
// thread must still be in the publishing state its claim put it in.
func (p *publisher) PublishScheduledThread(ctx context.Context, threadID int64) (*ThreadStart, error) {
	thread, err := p.tr.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, fmt.Errorf("thread %d: %w", threadID, ErrNotFound)
	}
	if thread.Status != models.PostStatusPublishing {
		return nil, fmt.Errorf("scheduled thread %d is %s: %w", threadID, thread.Status, ErrConflict)
	}

	start, started, err := p.startThread(ctx, Actor{UserID: thread.UserID}, thread)
	if err != nil && !errors.Is(err, ErrNothingToPublish) {
		return nil, err
	}
	if started == 0 {
		slog.Warn("scheduled thread had nothing to publish", "thread_id", thread.ID)
		if err := p.tr.UpdateStatus(ctx, nil, thread.ID, models.PostStatusDraft, nil); err != nil {
			return nil, err
		}
	}
	return start, err
}

func (p *publisher) startThread(ctx context.Context, actor Actor, thread *models.Thread) (*ThreadStart, int, error) {
	segments, err := p.sr.ListByThread(ctx, thread.ID)
	if err != nil {
		return nil, 0, err
	}
	if len(segments) == 0 {
		return nil, 0, fmt.Errorf("thread %d has no segments: %w", thread.ID, ErrNothingToPublish)
	}

	pivots, err := p.ta.ListByThread(ctx, thread.ID)
	if err != nil {
		return nil, 0, err
	}
	activeIDs, err := p.au.ActiveAccountIDs(ctx, actor.linkOwner(thread.UserID))
	if err != nil {
		return nil, 0, err
	}
	eligible := lo.Filter(pivots, func(ta *models.ThreadAccount, _ int) bool {
		return ta.Status == models.DeliveryPending && lo.Contains(activeIDs, ta.AccountID)
	})
	if len(eligible) == 0 {
		return nil, 0, fmt.Errorf("thread %d: %w", thread.ID, ErrNothingToPublish)
	}

	start := &ThreadStart{ThreadID: thread.ID}
	started := 0
	for _, pivot := range eligible {
		as := AccountStart{AccountID: pivot.AccountID, Mode: pivot.PublishMode}
		if err := p.startAccount(ctx, thread.ID, pivot.AccountID); err != nil {
			slog.Warn("thread account not started", "thread_id", thread.ID, "account_id", pivot.AccountID, "error", err)
			as.Error = err.Error()
		} else {
			as.Started = true
			started++
		}
		start.Accounts = append(start.Accounts, as)
	}

	slog.Info("thread publish started", "thread_id", thread.ID, "accounts", started)
	return start, started, nil
}

func (p *publisher) startAccount(ctx context.Context, threadID, accountID int64) error {
	account, err := p.ac.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	if _, ok := models.ParsePlatform(account.Platform); !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedPlatform, account.Platform)
	}

	var attempt int
	err = p.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var ok bool
		var err error
		attempt, ok, err = p.ta.Claim(ctx, tx, threadID, accountID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("thread %d account %d: %w", threadID, accountID, ErrConflict)
		}
		if _, err := p.tr.ApplyTransition(ctx, tx, threadID, models.DeliveryPending, models.DeliveryPublishing); err != nil {
			return err
		}
		return p.tr.UpdateStatus(ctx, tx, threadID, models.PostStatusPublishing, nil)
	})
	if err != nil {
		return err
	}

	step := Step{ThreadID: threadID, AccountID: accountID, Position: 1, Attempt: attempt}
	if err := p.steps.ScheduleStep(ctx, step, 0); err != nil {
		p.finishAccount(ctx, threadID, accountID, models.DeliveryFailed, "unable to schedule thread delivery")
		return err
	}
	return nil
}

// ContinueThread runs one step of an account's thread delivery. Steps that
// arrive early are deferred and steps from an older run are dropped.
func (p *publisher) ContinueThread(ctx context.Context, step Step) error {
	pivot, err := p.ta.Get(ctx, step.ThreadID, step.AccountID)
	if err != nil {
		return err
	}
	if pivot == nil || pivot.Status != models.DeliveryPublishing || pivot.Attempt != step.Attempt {
		slog.Info("dropping outdated thread step", "thread_id", step.ThreadID, "account_id", step.AccountID, "position", step.Position)
		return nil
	}

	now := p.now()
	if pivot.NextSegmentAt != nil && now.Before(*pivot.NextSegmentAt) {
		step.Deferred++
		return p.steps.ScheduleStep(ctx, step, pivot.NextSegmentAt.Sub(now))
	}

	thread, err := p.tr.GetByID(ctx, step.ThreadID)
	if err != nil {
		return err
	}
	if thread == nil {
		return nil
	}
	segments, err := p.sr.ListByThread(ctx, step.ThreadID)
	if err != nil {
		return err
	}
	account, err := p.ac.GetByID(ctx, step.AccountID)
	if err != nil {
		return err
	}
	if account == nil || len(segments) == 0 {
		p.finishAccount(ctx, step.ThreadID, step.AccountID, models.DeliveryFailed, "thread account or segments are gone")
		return nil
	}

	if pivot.PublishMode == models.PublishModeCompiled {
		return p.publishCompiled(ctx, thread, account, segments)
	}
	return p.publishSegment(ctx, thread, account, segments, step)
}

// segmentDelivery returns the delivery of a segment to one account.
func (p *publisher) segmentDelivery(ctx context.Context, segmentID, accountID int64) (*models.Delivery, error) {
	d, err := p.sd.GetByParentAndAccount(ctx, segmentID, accountID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("segment %d account %d: %w", segmentID, accountID, ErrNotFound)
	}
	return d, nil
}

func (p *publisher) segmentHooks(segmentID int64) hooks {
	return hooks{
		claimed: func(ctx context.Context, tx *sql.Tx) error {
			return p.sr.UpdateStatus(ctx, tx, segmentID, models.PostStatusPublishing, nil)
		},
		settled: func(ctx context.Context, tx *sql.Tx, counts models.StatusCounts) error {
			status := AggregatePost(counts)
			return p.sr.UpdateStatus(ctx, tx, segmentID, status, publishedAt(status, p.now()))
		},
	}
}

// publishSegment delivers the segment at step.Position as a reply to the
// previous one, skipping segments already published by an earlier run.
func (p *publisher) publishSegment(ctx context.Context, thread *models.Thread, account *models.SocialAccount, segments []*models.ThreadSegment, step Step) error {
	replyTo := ""
	var current *models.ThreadSegment
	var d *models.Delivery
	for _, segment := range segments {
		if segment.Position < step.Position {
			continue
		}
		sd, err := p.segmentDelivery(ctx, segment.ID, account.ID)
		if err != nil {
			return err
		}
		if sd.Status == models.DeliveryPublished {
			if sd.ExternalID != nil {
				replyTo = *sd.ExternalID
			}
			continue
		}
		current, d = segment, sd
		break
	}
	if current == nil {
		p.finishAccount(ctx, thread.ID, account.ID, models.DeliveryPublished, "")
		return nil
	}

	if replyTo == "" && current.Position > 1 {
		prev, ok := lo.Find(segments, func(s *models.ThreadSegment) bool { return s.Position == current.Position-1 })
		if ok {
			pd, err := p.segmentDelivery(ctx, prev.ID, account.ID)
			if err != nil {
				return err
			}
			if pd.ExternalID != nil {
				replyTo = *pd.ExternalID
			}
		}
	}

	t, err := p.loadTarget(ctx, d)
	if err != nil {
		p.finishAccount(ctx, thread.ID, account.ID, models.DeliveryFailed, err.Error())
		return nil
	}
	assets, err := p.sm.ListAssets(ctx, current.ID)
	if err != nil {
		return err
	}
	media, err := p.resolveMedia(ctx, assets)
	if err != nil {
		return err
	}

	text := p.text.Resolve(current.Text(), account)
	opts := platform.Options{ReplyToID: replyTo, Title: thread.Title}
	result, err := p.attempt(ctx, t, p.segmentHooks(current.ID), func(ctx context.Context) platform.Outcome {
		return p.invoke(ctx, t, text, media, opts)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			slog.Warn("thread segment already in flight", "thread_id", thread.ID, "segment_id", current.ID, "account_id", account.ID)
			return nil
		}
		return err
	}

	if !result.Success {
		p.finishAccount(ctx, thread.ID, account.ID, p.unfinishedStatus(ctx, segments, account.ID),
			fmt.Sprintf("segment %d: %s", current.Position, result.Error))
		return nil
	}

	last := segments[len(segments)-1]
	if current.ID == last.ID {
		p.finishAccount(ctx, thread.ID, account.ID, models.DeliveryPublished, "")
		return nil
	}

	next := Step{ThreadID: thread.ID, AccountID: account.ID, Position: current.Position + 1, Attempt: step.Attempt}
	if err := p.ta.SetNextSegmentAt(ctx, nil, thread.ID, account.ID, p.now().Add(p.delay)); err != nil {
		return err
	}
	return p.steps.ScheduleStep(ctx, next, p.delay)
}

// publishCompiled sends all segments as one post through the first segment's
// delivery and records the same post for the remaining segments.
func (p *publisher) publishCompiled(ctx context.Context, thread *models.Thread, account *models.SocialAccount, segments []*models.ThreadSegment) error {
	first := segments[0]
	d, err := p.segmentDelivery(ctx, first.ID, account.ID)
	if err != nil {
		return err
	}

	externalID := ""
	if d.Status == models.DeliveryPublished && d.ExternalID != nil {
		externalID = *d.ExternalID
	} else {
		t, err := p.loadTarget(ctx, d)
		if err != nil {
			p.finishAccount(ctx, thread.ID, account.ID, models.DeliveryFailed, err.Error())
			return nil
		}

		texts := make([]string, 0, len(segments))
		var assets []*models.MediaAsset
		for _, segment := range segments {
			texts = append(texts, p.text.Resolve(segment.Text(), account))
			segmentAssets, err := p.sm.ListAssets(ctx, segment.ID)
			if err != nil {
				return err
			}
			assets = append(assets, segmentAssets...)
		}
		media, err := p.resolveMedia(ctx, assets)
		if err != nil {
			return err
		}

		text := strings.Join(texts, "\n\n")
		opts := platform.Options{Title: thread.Title}
		result, err := p.attempt(ctx, t, p.segmentHooks(first.ID), func(ctx context.Context) platform.Outcome {
			return p.invoke(ctx, t, text, media, opts)
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				slog.Warn("compiled thread already in flight", "thread_id", thread.ID, "account_id", account.ID)
				return nil
			}
			return err
		}
		if !result.Success {
			p.finishAccount(ctx, thread.ID, account.ID, models.DeliveryFailed, result.Error)
			return nil
		}
		externalID = result.ExternalID
	}

	for _, segment := range segments[1:] {
		sd, err := p.segmentDelivery(ctx, segment.ID, account.ID)
		if err != nil {
			return err
		}
		if !sd.Status.Publishable() {
			continue
		}
		t := &target{delivery: sd, account: account, platform: models.Platform(sd.Platform)}
		_, err = p.attempt(ctx, t, p.segmentHooks(segment.ID), func(context.Context) platform.Outcome {
			return platform.Published(externalID)
		})
		if err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
	}

	p.finishAccount(ctx, thread.ID, account.ID, models.DeliveryPublished, "")
	return nil
}

// unfinishedStatus is partial when any segment already reached the account.
func (p *publisher) unfinishedStatus(ctx context.Context, segments []*models.ThreadSegment, accountID int64) models.DeliveryStatus {
	ids := lo.Map(segments, func(s *models.ThreadSegment, _ int) int64 { return s.ID })
	deliveries, err := p.sd.ListByParents(ctx, ids)
	if err != nil {
		slog.Error("unable to list segment deliveries", "account_id", accountID, "error", err)
		return models.DeliveryFailed
	}
	published := lo.ContainsBy(deliveries, func(d *models.Delivery) bool {
		return d.AccountID == accountID && d.Status == models.DeliveryPublished
	})
	if published {
		return models.DeliveryPartial
	}
	return models.DeliveryFailed
}

// finishAccount settles a publishing pivot and re-aggregates the thread. It
// reports whether this call settled the pivot.
func (p *publisher) finishAccount(ctx context.Context, threadID, accountID int64, status models.DeliveryStatus, reason string) bool {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	at := p.now()
	var finishedAt *time.Time
	if status == models.DeliveryPublished || status == models.DeliveryPartial {
		finishedAt = &at
	}

	finished := false
	err := p.tx.WithTx(ctx, func(tx *sql.Tx) error {
		ok, err := p.ta.Finish(ctx, tx, threadID, accountID, status, reasonPtr, finishedAt)
		if err != nil || !ok {
			return err
		}
		counts, err := p.tr.ApplyTransition(ctx, tx, threadID, models.DeliveryPublishing, status)
		if err != nil {
			return err
		}
		threadStatus := AggregateThread(counts)
		if err := p.tr.UpdateStatus(ctx, tx, threadID, threadStatus, publishedAt(threadStatus, at)); err != nil {
			return err
		}
		finished = true
		return nil
	})
	if err != nil {
		slog.Error("unable to finish thread account", "thread_id", threadID, "account_id", accountID, "error", err)
		return false
	}
	if finished {
		slog.Info("thread account finished", "thread_id", threadID, "account_id", accountID, "status", status)
	}
	return finished
}

// ResetSegmentDelivery returns a settled segment delivery to pending along
// with its account pivot, so the next publish resumes from it. Resetting a
// segment that a stopped run never reached reopens the account alone.
func (p *publisher) ResetSegmentDelivery(ctx context.Context, actor Actor, deliveryID int64) (*models.Delivery, error) {
	d, err := p.sd.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("delivery %d: %w", deliveryID, ErrNotFound)
	}
	segment, err := p.sr.GetByID(ctx, d.ParentID)
	if err != nil {
		return nil, err
	}
	if segment == nil {
		return nil, fmt.Errorf("segment %d: %w", d.ParentID, ErrNotFound)
	}
	thread, err := p.loadThread(ctx, actor, segment.ThreadID)
	if err != nil {
		return nil, err
	}
	pivot, err := p.ta.Get(ctx, thread.ID, d.AccountID)
	if err != nil {
		return nil, err
	}
	if pivot != nil && pivot.Status == models.DeliveryPublishing {
		return nil, fmt.Errorf("thread %d is publishing to account %d: %w", thread.ID, d.AccountID, ErrConflict)
	}

	reopenOnly := d.Status == models.DeliveryPending && pivot != nil && pivot.Status.Resettable()

	err = p.tx.WithTx(ctx, func(tx *sql.Tx) error {
		from, ok, err := p.sd.Reset(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		if !ok && !reopenOnly {
			return fmt.Errorf("delivery %d is %s: %w", d.ID, d.Status, ErrConflict)
		}
		if ok {
			segmentStatus, err := p.sr.LockStatus(ctx, tx, segment.ID)
			if err != nil {
				return err
			}
			if _, err := p.sr.ApplyTransition(ctx, tx, segment.ID, from, models.DeliveryPending); err != nil {
				return err
			}
			if segmentStatus.Settled() {
				if err := p.sr.UpdateStatus(ctx, tx, segment.ID, models.PostStatusDraft, nil); err != nil {
					return err
				}
			}
		}

		pivotFrom, pivotReset, err := p.ta.Reset(ctx, tx, thread.ID, d.AccountID)
		if err != nil {
			return err
		}
		if !pivotReset {
			if !ok {
				return fmt.Errorf("thread %d account %d is %s: %w", thread.ID, d.AccountID, pivot.Status, ErrConflict)
			}
			return nil
		}
		threadStatus, err := p.tr.LockStatus(ctx, tx, thread.ID)
		if err != nil {
			return err
		}
		if _, err := p.tr.ApplyTransition(ctx, tx, thread.ID, pivotFrom, models.DeliveryPending); err != nil {
			return err
		}
		if threadStatus.Settled() {
			return p.tr.UpdateStatus(ctx, tx, thread.ID, models.PostStatusDraft, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.notify(ctx, d, models.DeliveryPending, "", "")
	return p.sd.GetByID(ctx, d.ID)
}
