package publisher

import (
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
)

// AggregatePost derives the status of a post or a thread segment from the
// counters of its deliveries.
func AggregatePost(c models.StatusCounts) models.PostStatus {
	switch {
	case c.Total() == 0:
		return models.PostStatusDraft
	case c.Pending > 0 || c.Publishing > 0:
		return models.PostStatusPublishing
	case c.Published > 0:
		return models.PostStatusPublished
	default:
		return models.PostStatusFailed
	}
}

// AggregateThread derives the thread status from the counters of its
// per-account pivots. Partial means some accounts got content out and
// some did not.
func AggregateThread(c models.StatusCounts) models.PostStatus {
	switch {
	case c.Total() == 0:
		return models.PostStatusDraft
	case c.Pending > 0 || c.Publishing > 0:
		return models.PostStatusPublishing
	case c.Published == c.Total():
		return models.PostStatusPublished
	case c.Published == 0 && c.Partial == 0:
		return models.PostStatusFailed
	default:
		return models.PostStatusPartial
	}
}

// publishedAt is set only when at least one target got the content out.
func publishedAt(status models.PostStatus, now time.Time) *time.Time {
	if status == models.PostStatusPublished || status == models.PostStatusPartial {
		return &now
	}
	return nil
}
