package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/platform"
	"github.com/samber/lo"
)

func (p *publisher) loadPost(ctx context.Context, actor Actor, postID int64) (*models.Post, error) {
	post, err := p.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	if !actor.owns(post.UserID) {
		return nil, ErrUnauthorized
	}
	return post, nil
}

func (p *publisher) loadPostDelivery(ctx context.Context, actor Actor, deliveryID int64) (*models.Delivery, *models.Post, error) {
	d, err := p.pd.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, fmt.Errorf("delivery %d: %w", deliveryID, ErrNotFound)
	}
	post, err := p.loadPost(ctx, actor, d.ParentID)
	if err != nil {
		return nil, nil, err
	}
	return d, post, nil
}

// PublishOne publishes a single post delivery and re-aggregates the post in
// the same transaction that records the outcome.
func (p *publisher) PublishOne(ctx context.Context, actor Actor, deliveryID int64) (*Result, error) {
	d, post, err := p.loadPostDelivery(ctx, actor, deliveryID)
	if err != nil {
		return nil, err
	}

	active, err := p.linkActive(ctx, actor.linkOwner(post.UserID), d.AccountID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrUnauthorized
	}
	if !d.Status.Publishable() {
		return nil, fmt.Errorf("delivery %d is %s: %w", d.ID, d.Status, ErrConflict)
	}

	t, err := p.loadTarget(ctx, d)
	if err != nil {
		return nil, err
	}

	assets, err := p.pm.ListAssets(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	media, err := p.resolveMedia(ctx, assets)
	if err != nil {
		return nil, err
	}

	h := p.postHooks(post.ID)
	h.settled = func(ctx context.Context, tx *sql.Tx, counts models.StatusCounts) error {
		status := AggregatePost(counts)
		return p.pr.UpdateStatus(ctx, tx, post.ID, status, publishedAt(status, p.now()))
	}
	return p.publishPostTarget(ctx, post, t, media, h)
}

// PublishAll publishes every eligible delivery of a post one after another.
// Failures of one target never stop the others.
func (p *publisher) PublishAll(ctx context.Context, actor Actor, postID int64) (*BatchResult, error) {
	post, err := p.loadPost(ctx, actor, postID)
	if err != nil {
		return nil, err
	}
	batch, _, err := p.publishAll(ctx, actor, post)
	return batch, err
}

// PublishScheduledPost runs a due post on behalf of its author. The post must
// still be in the publishing state its claim put it in.
func (p *publisher) PublishScheduledPost(ctx context.Context, postID int64) (*BatchResult, error) {
	post, err := p.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	if post.Status != models.PostStatusPublishing {
		return nil, fmt.Errorf("scheduled post %d is %s: %w", postID, post.Status, ErrConflict)
	}

	batch, attempted, err := p.publishAll(ctx, Actor{UserID: post.UserID}, post)
	if err != nil && !errors.Is(err, ErrNothingToPublish) {
		return nil, err
	}
	if attempted == 0 {
		// Nothing could be sent; hand the post back to its author.
		slog.Warn("scheduled post had nothing to publish", "post_id", post.ID)
		if err := p.pr.UpdateStatus(ctx, nil, post.ID, models.PostStatusDraft, nil); err != nil {
			return nil, err
		}
	}
	return batch, err
}

func (p *publisher) publishAll(ctx context.Context, actor Actor, post *models.Post) (*BatchResult, int, error) {
	deliveries, err := p.pd.ListByParent(ctx, post.ID)
	if err != nil {
		return nil, 0, err
	}
	activeIDs, err := p.au.ActiveAccountIDs(ctx, actor.linkOwner(post.UserID))
	if err != nil {
		return nil, 0, err
	}

	eligible := lo.Filter(deliveries, func(d *models.Delivery, _ int) bool {
		return d.Status.Publishable() && lo.Contains(activeIDs, d.AccountID)
	})
	if len(eligible) == 0 {
		return nil, 0, fmt.Errorf("post %d: %w", post.ID, ErrNothingToPublish)
	}

	assets, err := p.pm.ListAssets(ctx, post.ID)
	if err != nil {
		return nil, 0, err
	}
	media, err := p.resolveMedia(ctx, assets)
	if err != nil {
		return nil, 0, err
	}

	batch := &BatchResult{PostID: post.ID, Status: post.Status}
	attempted := 0
	for _, d := range eligible {
		t, err := p.loadTarget(ctx, d)
		if err != nil {
			batch.Results = append(batch.Results, failure(d, err))
			continue
		}
		result, err := p.publishPostTarget(ctx, post, t, media, p.postHooks(post.ID))
		if err != nil {
			slog.Warn("post delivery not attempted", "post_id", post.ID, "delivery_id", d.ID, "error", err)
			batch.Results = append(batch.Results, failure(d, err))
			continue
		}
		attempted++
		batch.Results = append(batch.Results, *result)
	}

	if attempted > 0 {
		err = p.tx.WithTx(ctx, func(tx *sql.Tx) error {
			counts, err := p.pr.LockCounts(ctx, tx, post.ID)
			if err != nil {
				return err
			}
			batch.Status = AggregatePost(counts)
			return p.pr.UpdateStatus(ctx, tx, post.ID, batch.Status, publishedAt(batch.Status, p.now()))
		})
		if err != nil {
			return nil, attempted, err
		}
	}
	batch.Success = batch.Status == models.PostStatusPublished

	slog.Info("post publish finished", "post_id", post.ID, "status", batch.Status, "attempted", attempted)
	return batch, attempted, nil
}

func (p *publisher) postHooks(postID int64) hooks {
	return hooks{
		claimed: func(ctx context.Context, tx *sql.Tx) error {
			return p.pr.UpdateStatus(ctx, tx, postID, models.PostStatusPublishing, nil)
		},
	}
}

func (p *publisher) publishPostTarget(ctx context.Context, post *models.Post, t *target, media []models.MediaRef, h hooks) (*Result, error) {
	text := p.text.Resolve(post.Text(), t.account)
	opts := platform.Options{
		Title:    post.Title,
		Link:     post.Link,
		Location: post.Location,
	}
	return p.attempt(ctx, t, h, func(ctx context.Context) platform.Outcome {
		return p.invoke(ctx, t, text, media, opts)
	})
}

// ResetDelivery returns a settled post delivery to pending. A post whose
// status depended on it goes back to scheduled.
func (p *publisher) ResetDelivery(ctx context.Context, actor Actor, deliveryID int64) (*models.Delivery, error) {
	d, post, err := p.loadPostDelivery(ctx, actor, deliveryID)
	if err != nil {
		return nil, err
	}

	err = p.tx.WithTx(ctx, func(tx *sql.Tx) error {
		from, ok, err := p.pd.Reset(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("delivery %d is %s: %w", d.ID, d.Status, ErrConflict)
		}
		status, err := p.pr.LockStatus(ctx, tx, post.ID)
		if err != nil {
			return err
		}
		if _, err := p.pr.ApplyTransition(ctx, tx, post.ID, from, models.DeliveryPending); err != nil {
			return err
		}
		if status.Settled() {
			return p.pr.UpdateStatus(ctx, tx, post.ID, models.PostStatusScheduled, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.notify(ctx, d, models.DeliveryPending, "", "")
	return p.pd.GetByID(ctx, d.ID)
}
