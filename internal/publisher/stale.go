package publisher

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/metrics"
	"github.com/maheshrc27/publishflow/internal/models"
)

// FailStale fails deliveries that have been publishing for longer than
// olderThan. Their adapter call is presumed lost, so the delivery becomes
// retryable again. Thread account runs idle for as long with no segment in
// flight lost their next step and are settled too. It returns the number of
// deliveries and thread accounts failed.
func (p *publisher) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := p.now().Add(-olderThan)
	total := 0

	for _, kind := range []models.DeliveryKind{models.DeliveryKindPost, models.DeliveryKindSegment} {
		deliveries, _ := p.repos(kind)
		stale, err := deliveries.ListStale(ctx, cutoff)
		if err != nil {
			return total, err
		}
		for _, d := range stale {
			failed, err := p.failStale(ctx, d)
			if err != nil {
				slog.Error("unable to fail stale delivery", "kind", kind, "delivery_id", d.ID, "error", err)
				continue
			}
			if !failed {
				continue
			}
			total++
			metrics.StaleDeliveries.WithLabelValues(string(kind)).Inc()
			p.notify(ctx, d, models.DeliveryFailed, "", staleReason)

			if kind == models.DeliveryKindSegment {
				p.failStaleAccount(ctx, d)
			}
		}
	}

	pivots, err := p.ta.ListStale(ctx, cutoff)
	if err != nil {
		return total, err
	}
	for _, ta := range pivots {
		if p.failStalePivot(ctx, ta) {
			total++
			metrics.StaleDeliveries.WithLabelValues("thread_account").Inc()
		}
	}

	if total > 0 {
		slog.Warn("failed stale deliveries", "count", total, "older_than", olderThan)
	}
	return total, nil
}

// failStalePivot settles a run that stopped between segments. Segments the
// run never reached stay pending; resetting any of them reopens the account.
func (p *publisher) failStalePivot(ctx context.Context, ta *models.ThreadAccount) bool {
	segments, err := p.sr.ListByThread(ctx, ta.ThreadID)
	if err != nil {
		slog.Error("unable to list thread segments", "thread_id", ta.ThreadID, "error", err)
		return false
	}
	slog.Warn("thread account run stalled", "thread_id", ta.ThreadID, "account_id", ta.AccountID,
		"attempt", ta.Attempt, "updated_at", ta.UpdatedAt)
	return p.finishAccount(ctx, ta.ThreadID, ta.AccountID, p.unfinishedStatus(ctx, segments, ta.AccountID), staleReason)
}

func (p *publisher) failStale(ctx context.Context, d *models.Delivery) (bool, error) {
	deliveries, parent := p.repos(d.Kind)
	failed := false
	err := p.tx.WithTx(ctx, func(tx *sql.Tx) error {
		ok, err := deliveries.MarkFailed(ctx, tx, d.ID, staleReason)
		if err != nil || !ok {
			return err
		}
		counts, err := parent.ApplyTransition(ctx, tx, d.ParentID, models.DeliveryPublishing, models.DeliveryFailed)
		if err != nil {
			return err
		}
		if err := p.appendLog(ctx, tx, d, models.ActionFailed, map[string]any{"reason": "stale", "error": staleReason}); err != nil {
			return err
		}

		status := AggregatePost(counts)
		if d.Kind == models.DeliveryKindSegment {
			err = p.sr.UpdateStatus(ctx, tx, d.ParentID, status, publishedAt(status, p.now()))
		} else {
			err = p.pr.UpdateStatus(ctx, tx, d.ParentID, status, publishedAt(status, p.now()))
		}
		if err != nil {
			return err
		}
		failed = true
		return nil
	})
	return failed, err
}

// failStaleAccount stops the thread run the stale segment belonged to.
func (p *publisher) failStaleAccount(ctx context.Context, d *models.Delivery) {
	segment, err := p.sr.GetByID(ctx, d.ParentID)
	if err != nil || segment == nil {
		return
	}
	pivot, err := p.ta.Get(ctx, segment.ThreadID, d.AccountID)
	if err != nil || pivot == nil || pivot.Status != models.DeliveryPublishing {
		return
	}
	segments, err := p.sr.ListByThread(ctx, segment.ThreadID)
	if err != nil {
		return
	}
	p.finishAccount(ctx, segment.ThreadID, d.AccountID, p.unfinishedStatus(ctx, segments, d.AccountID), staleReason)
}
