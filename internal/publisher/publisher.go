// Package publisher drives delivery units through their lifecycle: it claims
// them, calls the platform adapter, settles the outcome and keeps the parent
// content status in line with its deliveries.
package publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/metrics"
	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/platform"
	"github.com/maheshrc27/publishflow/internal/repository"
)

// DefaultSegmentDelay is the minimum gap between two thread segments sent to
// the same account.
const DefaultSegmentDelay = 35 * time.Second

const staleReason = "publish attempt timed out"

// Actor is the user on whose behalf a publish action runs.
type Actor struct {
	UserID  int64
	IsAdmin bool
}

func (a Actor) owns(userID int64) bool {
	return a.IsAdmin || a.UserID == userID
}

// linkOwner is the user whose account link gates the action. Admins acting on
// someone else's content are gated by the author's links.
func (a Actor) linkOwner(authorID int64) int64 {
	if a.UserID != authorID {
		return authorID
	}
	return a.UserID
}

type MediaResolver interface {
	Resolve(ctx context.Context, refs []models.MediaRef) ([]models.MediaRef, error)
}

type ContentResolver interface {
	Resolve(src models.TextSource, account *models.SocialAccount) string
}

// Notifier receives committed delivery transitions.
type Notifier interface {
	Notify(ctx context.Context, event models.DeliveryEvent)
}

// StepScheduler runs a thread step after delay.
type StepScheduler interface {
	ScheduleStep(ctx context.Context, step Step, delay time.Duration) error
}

// Result is the outcome of one delivery within a publish call.
type Result struct {
	DeliveryID int64  `json:"delivery_id"`
	AccountID  int64  `json:"account_id"`
	Platform   string `json:"platform"`
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

type BatchResult struct {
	PostID  int64             `json:"post_id"`
	Status  models.PostStatus `json:"status"`
	Success bool              `json:"success"`
	Results []Result          `json:"results"`
}

type Publisher interface {
	PublishOne(ctx context.Context, actor Actor, deliveryID int64) (*Result, error)
	PublishAll(ctx context.Context, actor Actor, postID int64) (*BatchResult, error)
	PublishScheduledPost(ctx context.Context, postID int64) (*BatchResult, error)
	ResetDelivery(ctx context.Context, actor Actor, deliveryID int64) (*models.Delivery, error)

	PublishThread(ctx context.Context, actor Actor, threadID int64) (*ThreadStart, error)
	PublishScheduledThread(ctx context.Context, threadID int64) (*ThreadStart, error)
	ContinueThread(ctx context.Context, step Step) error
	ResetSegmentDelivery(ctx context.Context, actor Actor, deliveryID int64) (*models.Delivery, error)

	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type Deps struct {
	Tx                repository.TxRunner
	Posts             repository.PostRepository
	PostDeliveries    repository.DeliveryRepository
	PostMedia         repository.PostMediaRepository
	Threads           repository.ThreadRepository
	Segments          repository.ThreadSegmentRepository
	SegmentDeliveries repository.DeliveryRepository
	SegmentMedia      repository.PostMediaRepository
	ThreadAccounts    repository.ThreadAccountRepository
	Accounts          repository.SocialAccountRepository
	Links             repository.AccountUserRepository
	Logs              repository.PublishLogRepository
	Adapters          *platform.Registry
	Media             MediaResolver
	Content           ContentResolver
	Events            Notifier
	Steps             StepScheduler
	SegmentDelay      time.Duration
	Now               func() time.Time
}

type publisher struct {
	tx     repository.TxRunner
	pr     repository.PostRepository
	pd     repository.DeliveryRepository
	pm     repository.PostMediaRepository
	tr     repository.ThreadRepository
	sr     repository.ThreadSegmentRepository
	sd     repository.DeliveryRepository
	sm     repository.PostMediaRepository
	ta     repository.ThreadAccountRepository
	ac     repository.SocialAccountRepository
	au     repository.AccountUserRepository
	logs   repository.PublishLogRepository
	reg    *platform.Registry
	media  MediaResolver
	text   ContentResolver
	events Notifier
	steps  StepScheduler
	delay  time.Duration
	now    func() time.Time
}

func New(d Deps) Publisher {
	if d.SegmentDelay <= 0 {
		d.SegmentDelay = DefaultSegmentDelay
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &publisher{
		tx:     d.Tx,
		pr:     d.Posts,
		pd:     d.PostDeliveries,
		pm:     d.PostMedia,
		tr:     d.Threads,
		sr:     d.Segments,
		sd:     d.SegmentDeliveries,
		sm:     d.SegmentMedia,
		ta:     d.ThreadAccounts,
		ac:     d.Accounts,
		au:     d.Links,
		logs:   d.Logs,
		reg:    d.Adapters,
		media:  d.Media,
		text:   d.Content,
		events: d.Events,
		steps:  d.Steps,
		delay:  d.SegmentDelay,
		now:    d.Now,
	}
}

func (p *publisher) linkActive(ctx context.Context, userID, accountID int64) (bool, error) {
	link, err := p.au.Get(ctx, accountID, userID)
	if err != nil {
		return false, err
	}
	return link != nil && link.IsActive, nil
}

// resolveMedia turns attached assets into fetchable references with a single
// resolver call.
func (p *publisher) resolveMedia(ctx context.Context, assets []*models.MediaAsset) ([]models.MediaRef, error) {
	if len(assets) == 0 {
		return nil, nil
	}
	refs := make([]models.MediaRef, 0, len(assets))
	for _, a := range assets {
		location := a.FileURL
		if location == "" {
			location = a.FileName
		}
		refs = append(refs, models.MediaRef{Type: a.FileType, Location: location})
	}
	resolved, err := p.media.Resolve(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("resolving media: %w", err)
	}
	return resolved, nil
}

// target is a delivery ready to be attempted.
type target struct {
	delivery *models.Delivery
	account  *models.SocialAccount
	platform models.Platform
}

func (p *publisher) loadTarget(ctx context.Context, d *models.Delivery) (*target, error) {
	plat, ok := models.ParsePlatform(d.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, d.Platform)
	}
	account, err := p.ac.GetByID(ctx, d.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", d.AccountID, ErrNotFound)
	}
	return &target{delivery: d, account: account, platform: plat}, nil
}

// invoke makes the single adapter call of an attempt.
func (p *publisher) invoke(ctx context.Context, t *target, text string, media []models.MediaRef, opts platform.Options) platform.Outcome {
	start := time.Now()
	outcome := p.reg.Get(t.platform).Publish(ctx, t.account, text, media, opts)
	metrics.PublishDuration.WithLabelValues(string(t.platform)).Observe(time.Since(start).Seconds())

	if outcome.Success && outcome.ExternalID == "" {
		outcome = platform.Failed("%s returned no post identifier", t.platform)
	}

	label := metrics.OutcomeSuccess
	if !outcome.Success {
		label = metrics.OutcomeFailure
	}
	metrics.PublishAttempts.WithLabelValues(string(t.platform), label).Inc()
	return outcome
}

// hooks let the caller adjust the parent inside the claim and settle
// transactions. counts are the parent's counters after the transition.
type hooks struct {
	claimed func(ctx context.Context, tx *sql.Tx) error
	settled func(ctx context.Context, tx *sql.Tx, counts models.StatusCounts) error
}

func (p *publisher) repos(kind models.DeliveryKind) (repository.DeliveryRepository, repository.CounterRepository) {
	if kind == models.DeliveryKindSegment {
		return p.sd, p.sr
	}
	return p.pd, p.pr
}

// attempt claims the delivery, runs call exactly once and settles the
// outcome. A delivery that cannot be claimed yields ErrConflict and call is
// never run.
func (p *publisher) attempt(ctx context.Context, t *target, h hooks, call func(ctx context.Context) platform.Outcome) (*Result, error) {
	d := t.delivery
	deliveries, parent := p.repos(d.Kind)

	err := p.tx.WithTx(ctx, func(tx *sql.Tx) error {
		from, ok, err := deliveries.Claim(ctx, tx, d.ID, p.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("delivery %d: %w", d.ID, ErrConflict)
		}
		if _, err := parent.ApplyTransition(ctx, tx, d.ParentID, from, models.DeliveryPublishing); err != nil {
			return err
		}
		if h.claimed != nil {
			if err := h.claimed(ctx, tx); err != nil {
				return err
			}
		}
		return p.appendLog(ctx, tx, d, models.ActionSubmitted, map[string]any{
			"account_id": d.AccountID,
			"platform":   d.Platform,
			"from":       from,
		})
	})
	if err != nil {
		return nil, err
	}
	p.notify(ctx, d, models.DeliveryPublishing, "", "")

	outcome := call(ctx)

	result := &Result{
		DeliveryID: d.ID,
		AccountID:  d.AccountID,
		Platform:   d.Platform,
		Success:    outcome.Success,
		ExternalID: outcome.ExternalID,
		Error:      outcome.Error,
	}

	to := models.DeliveryFailed
	if outcome.Success {
		to = models.DeliveryPublished
	}
	settled := false
	err = p.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var ok bool
		var err error
		if outcome.Success {
			ok, err = deliveries.MarkPublished(ctx, tx, d.ID, outcome.ExternalID, p.now())
		} else {
			ok, err = deliveries.MarkFailed(ctx, tx, d.ID, outcome.Error)
		}
		if err != nil || !ok {
			return err
		}

		counts, err := parent.ApplyTransition(ctx, tx, d.ParentID, models.DeliveryPublishing, to)
		if err != nil {
			return err
		}

		details := map[string]any{"external_id": outcome.ExternalID}
		action := models.ActionPublished
		if !outcome.Success {
			details = map[string]any{"error": outcome.Error}
			action = models.ActionFailed
		}
		if err := p.appendLog(ctx, tx, d, action, details); err != nil {
			return err
		}
		if h.settled != nil {
			if err := h.settled(ctx, tx, counts); err != nil {
				return err
			}
		}
		settled = true
		return nil
	})
	if err != nil {
		slog.Error("unable to record publish outcome", "kind", d.Kind, "delivery_id", d.ID, "error", err)
		return nil, err
	}
	if !settled {
		// The sweeper already gave up on this attempt.
		slog.Warn("delivery left publishing before the outcome was recorded",
			"kind", d.Kind, "delivery_id", d.ID, "success", outcome.Success, "external_id", outcome.ExternalID)
		result.Success = false
		result.ExternalID = ""
		result.Error = staleReason
		return result, nil
	}

	p.notify(ctx, d, to, outcome.ExternalID, outcome.Error)
	return result, nil
}

func (p *publisher) appendLog(ctx context.Context, tx *sql.Tx, d *models.Delivery, action models.PublishAction, details map[string]any) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return p.logs.Append(ctx, tx, &models.PublishLog{
		DeliveryKind: d.Kind,
		DeliveryID:   d.ID,
		Action:       action,
		Details:      payload,
	})
}

func (p *publisher) notify(ctx context.Context, d *models.Delivery, status models.DeliveryStatus, externalID, reason string) {
	if p.events == nil {
		return
	}
	p.events.Notify(ctx, models.DeliveryEvent{
		Kind:       d.Kind,
		DeliveryID: d.ID,
		ParentID:   d.ParentID,
		AccountID:  d.AccountID,
		Platform:   d.Platform,
		Status:     status,
		ExternalID: externalID,
		Error:      reason,
		At:         p.now(),
	})
}

func failure(d *models.Delivery, err error) Result {
	return Result{
		DeliveryID: d.ID,
		AccountID:  d.AccountID,
		Platform:   d.Platform,
		Error:      err.Error(),
	}
}
