package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/platform"
	"github.com/maheshrc27/publishflow/internal/repository"
)

// store is an in-memory stand-in for the database. Every getter hands out
// copies so callers cannot mutate state behind the repositories' backs.
type store struct {
	mu         sync.Mutex
	nextID     int64
	posts      map[int64]*models.Post
	threads    map[int64]*models.Thread
	segments   map[int64]*models.ThreadSegment
	deliveries map[models.DeliveryKind]map[int64]*models.Delivery
	pivots     map[[2]int64]*models.ThreadAccount
	accounts   map[int64]*models.SocialAccount
	links      map[[2]int64]*models.AccountUser
	media      map[models.DeliveryKind]map[int64][]*models.MediaAsset
	logs       []*models.PublishLog
	now        func() time.Time
}

func newStore() *store {
	return &store{
		now:      time.Now,
		nextID:   100,
		posts:    map[int64]*models.Post{},
		threads:  map[int64]*models.Thread{},
		segments: map[int64]*models.ThreadSegment{},
		deliveries: map[models.DeliveryKind]map[int64]*models.Delivery{
			models.DeliveryKindPost:    {},
			models.DeliveryKindSegment: {},
		},
		pivots:   map[[2]int64]*models.ThreadAccount{},
		accounts: map[int64]*models.SocialAccount{},
		links:    map[[2]int64]*models.AccountUser{},
		media: map[models.DeliveryKind]map[int64][]*models.MediaAsset{
			models.DeliveryKindPost:    {},
			models.DeliveryKindSegment: {},
		},
	}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

// addAccount registers an account linked to userID.
func (s *store) addAccount(userID int64, p models.Platform, active bool) *models.SocialAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.SocialAccount{ID: s.id(), UserID: userID, Platform: string(p), AccountID: fmt.Sprintf("ext-%s", p)}
	s.accounts[a.ID] = a
	s.links[[2]int64{a.ID, userID}] = &models.AccountUser{AccountID: a.ID, UserID: userID, IsActive: active}
	return a
}

func (s *store) addPost(userID int64, status models.PostStatus, accounts ...*models.SocialAccount) (*models.Post, []*models.Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post := &models.Post{ID: s.id(), UserID: userID, Title: "title", Content: "hello world", Status: status}
	s.posts[post.ID] = post
	var out []*models.Delivery
	for _, a := range accounts {
		d := &models.Delivery{ID: s.id(), Kind: models.DeliveryKindPost, ParentID: post.ID, AccountID: a.ID, Platform: a.Platform, Status: models.DeliveryPending}
		s.deliveries[models.DeliveryKindPost][d.ID] = d
		post.Counts.Pending++
		out = append(out, d)
	}
	return post, out
}

func (s *store) addThread(userID int64, texts []string, accounts ...*models.SocialAccount) (*models.Thread, []*models.ThreadSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread := &models.Thread{ID: s.id(), UserID: userID, Title: "thread", Status: models.PostStatusDraft}
	s.threads[thread.ID] = thread
	var segments []*models.ThreadSegment
	for i, text := range texts {
		seg := &models.ThreadSegment{ID: s.id(), ThreadID: thread.ID, Position: i + 1, Content: text, Status: models.PostStatusDraft}
		s.segments[seg.ID] = seg
		segments = append(segments, seg)
		for _, a := range accounts {
			d := &models.Delivery{ID: s.id(), Kind: models.DeliveryKindSegment, ParentID: seg.ID, AccountID: a.ID, Platform: a.Platform, Status: models.DeliveryPending}
			s.deliveries[models.DeliveryKindSegment][d.ID] = d
			seg.Counts.Pending++
		}
	}
	for _, a := range accounts {
		s.pivots[[2]int64{thread.ID, a.ID}] = &models.ThreadAccount{
			ThreadID:    thread.ID,
			AccountID:   a.ID,
			PublishMode: models.ModeFor(a.Platform),
			Status:      models.DeliveryPending,
		}
		thread.Counts.Pending++
	}
	return thread, segments
}

func (s *store) attach(kind models.DeliveryKind, ownerID int64, assets ...*models.MediaAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[kind][ownerID] = append(s.media[kind][ownerID], assets...)
}

func (s *store) delivery(kind models.DeliveryKind, id int64) models.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.deliveries[kind][id]
}

func (s *store) segmentDeliveryFor(segmentID, accountID int64) models.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deliveries[models.DeliveryKindSegment] {
		if d.ParentID == segmentID && d.AccountID == accountID {
			return *d
		}
	}
	panic("no segment delivery")
}

func (s *store) post(id int64) models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.posts[id]
}

func (s *store) thread(id int64) models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.threads[id]
}

func (s *store) pivot(threadID, accountID int64) models.ThreadAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.pivots[[2]int64{threadID, accountID}]
}

func (s *store) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func (s *store) logsFor(kind models.DeliveryKind, id int64) []models.PublishLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PublishLog
	for _, l := range s.logs {
		if l.DeliveryKind == kind && l.DeliveryID == id {
			out = append(out, *l)
		}
	}
	return out
}

func (s *store) allDeliveries() []models.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Delivery
	for _, byID := range s.deliveries {
		for _, d := range byID {
			out = append(out, *d)
		}
	}
	return out
}

// fakeTx runs fn inline. A pending onBegin runs once before the next
// transaction, standing in for a writer that commits just ahead of it.
type fakeTx struct {
	mu      sync.Mutex
	onBegin func()
}

func (t *fakeTx) beforeNext(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onBegin = fn
}

func (t *fakeTx) WithTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	t.mu.Lock()
	before := t.onBegin
	t.onBegin = nil
	t.mu.Unlock()
	if before != nil {
		before()
	}
	return fn(nil)
}

// counters

func applyCounts(c *models.StatusCounts, from, to models.DeliveryStatus) models.StatusCounts {
	*c = c.Apply(from, to)
	return *c
}

// posts

type fakePosts struct{ s *store }

func (r fakePosts) ApplyTransition(_ context.Context, _ *sql.Tx, id int64, from, to models.DeliveryStatus) (models.StatusCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return applyCounts(&r.s.posts[id].Counts, from, to), nil
}

func (r fakePosts) LockCounts(_ context.Context, _ *sql.Tx, id int64) (models.StatusCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.posts[id].Counts, nil
}

func (r fakePosts) LockStatus(_ context.Context, _ *sql.Tx, id int64) (models.PostStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	post, ok := r.s.posts[id]
	if !ok {
		return "", nil
	}
	return post.Status, nil
}

func (r fakePosts) Create(_ context.Context, _ *sql.Tx, post *models.Post) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *post
	cp.ID = r.s.id()
	r.s.posts[cp.ID] = &cp
	return cp.ID, nil
}

func (r fakePosts) GetByID(_ context.Context, id int64) (*models.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	post, ok := r.s.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *post
	return &cp, nil
}

func (r fakePosts) GetByUserID(context.Context, int64) ([]*models.Post, error) { return nil, nil }

func (r fakePosts) Update(context.Context, *sql.Tx, *models.Post) error { return nil }

func (r fakePosts) UpdateStatus(_ context.Context, _ *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.posts[id].Status = status
	r.s.posts[id].PublishedAt = publishedAt
	return nil
}

func (r fakePosts) SetCounts(context.Context, *sql.Tx, int64, models.StatusCounts) error { return nil }

func (r fakePosts) ClaimDue(context.Context, time.Time, int) ([]int64, error) { return nil, nil }

func (r fakePosts) ReleaseStuck(context.Context, time.Time) ([]int64, error) { return nil, nil }

func (r fakePosts) Remove(context.Context, *sql.Tx, int64) error { return nil }

// threads

type fakeThreads struct{ s *store }

func (r fakeThreads) ApplyTransition(_ context.Context, _ *sql.Tx, id int64, from, to models.DeliveryStatus) (models.StatusCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return applyCounts(&r.s.threads[id].Counts, from, to), nil
}

func (r fakeThreads) LockCounts(_ context.Context, _ *sql.Tx, id int64) (models.StatusCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.threads[id].Counts, nil
}

func (r fakeThreads) LockStatus(_ context.Context, _ *sql.Tx, id int64) (models.PostStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.threads[id]
	if !ok {
		return "", nil
	}
	return t.Status, nil
}

func (r fakeThreads) Create(context.Context, *sql.Tx, *models.Thread) (int64, error) { return 0, nil }

func (r fakeThreads) GetByID(_ context.Context, id int64) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.threads[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r fakeThreads) GetByUserID(context.Context, int64) ([]*models.Thread, error) { return nil, nil }

func (r fakeThreads) UpdateStatus(_ context.Context, _ *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.threads[id].Status = status
	r.s.threads[id].PublishedAt = publishedAt
	return nil
}

func (r fakeThreads) SetCounts(context.Context, *sql.Tx, int64, models.StatusCounts) error { return nil }

func (r fakeThreads) ClaimDue(context.Context, time.Time, int) ([]int64, error) { return nil, nil }

func (r fakeThreads) ReleaseStuck(context.Context, time.Time) ([]int64, error) { return nil, nil }

func (r fakeThreads) Remove(context.Context, *sql.Tx, int64) error { return nil }

// segments

type fakeSegments struct{ s *store }

func (r fakeSegments) ApplyTransition(_ context.Context, _ *sql.Tx, id int64, from, to models.DeliveryStatus) (models.StatusCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return applyCounts(&r.s.segments[id].Counts, from, to), nil
}

func (r fakeSegments) LockCounts(_ context.Context, _ *sql.Tx, id int64) (models.StatusCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.segments[id].Counts, nil
}

func (r fakeSegments) LockStatus(_ context.Context, _ *sql.Tx, id int64) (models.PostStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seg, ok := r.s.segments[id]
	if !ok {
		return "", nil
	}
	return seg.Status, nil
}

func (r fakeSegments) Create(context.Context, *sql.Tx, *models.ThreadSegment) (int64, error) {
	return 0, nil
}

func (r fakeSegments) GetByID(_ context.Context, id int64) (*models.ThreadSegment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seg, ok := r.s.segments[id]
	if !ok {
		return nil, nil
	}
	cp := *seg
	return &cp, nil
}

func (r fakeSegments) ListByThread(_ context.Context, threadID int64) ([]*models.ThreadSegment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ThreadSegment
	for _, seg := range r.s.segments {
		if seg.ThreadID == threadID {
			cp := *seg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r fakeSegments) UpdateStatus(_ context.Context, _ *sql.Tx, id int64, status models.PostStatus, publishedAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.segments[id].Status = status
	r.s.segments[id].PublishedAt = publishedAt
	return nil
}

func (r fakeSegments) SetCounts(context.Context, *sql.Tx, int64, models.StatusCounts) error {
	return nil
}

// deliveries

type fakeDeliveries struct {
	s    *store
	kind models.DeliveryKind
}

func (r fakeDeliveries) all() map[int64]*models.Delivery {
	return r.s.deliveries[r.kind]
}

func (r fakeDeliveries) Kind() models.DeliveryKind { return r.kind }

func (r fakeDeliveries) Create(_ context.Context, _ *sql.Tx, d *models.Delivery) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *d
	cp.ID = r.s.id()
	cp.Kind = r.kind
	r.all()[cp.ID] = &cp
	return cp.ID, nil
}

func (r fakeDeliveries) GetByID(_ context.Context, id int64) (*models.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.all()[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r fakeDeliveries) GetByParentAndAccount(_ context.Context, parentID, accountID int64) (*models.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.all() {
		if d.ParentID == parentID && d.AccountID == accountID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeDeliveries) list(match func(d *models.Delivery) bool) []*models.Delivery {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Delivery
	for _, d := range r.all() {
		if match(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r fakeDeliveries) ListByParent(_ context.Context, parentID int64) ([]*models.Delivery, error) {
	return r.list(func(d *models.Delivery) bool { return d.ParentID == parentID }), nil
}

func (r fakeDeliveries) ListByParents(_ context.Context, parentIDs []int64) ([]*models.Delivery, error) {
	return r.list(func(d *models.Delivery) bool {
		for _, id := range parentIDs {
			if d.ParentID == id {
				return true
			}
		}
		return false
	}), nil
}

func (r fakeDeliveries) Claim(_ context.Context, _ *sql.Tx, id int64, at time.Time) (models.DeliveryStatus, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := r.all()[id]
	if d == nil || !d.Status.Publishable() {
		return "", false, nil
	}
	from := d.Status
	d.Status = models.DeliveryPublishing
	d.ErrorMessage = nil
	d.PublishingStartedAt = &at
	return from, true, nil
}

func (r fakeDeliveries) MarkPublished(_ context.Context, _ *sql.Tx, id int64, externalID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := r.all()[id]
	if d.Status != models.DeliveryPublishing {
		return false, nil
	}
	d.Status = models.DeliveryPublished
	d.ExternalID = &externalID
	d.PublishedAt = &at
	d.ErrorMessage = nil
	d.PublishingStartedAt = nil
	return true, nil
}

func (r fakeDeliveries) MarkFailed(_ context.Context, _ *sql.Tx, id int64, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := r.all()[id]
	if d.Status != models.DeliveryPublishing {
		return false, nil
	}
	d.Status = models.DeliveryFailed
	d.ErrorMessage = &reason
	d.PublishingStartedAt = nil
	return true, nil
}

func (r fakeDeliveries) Reset(_ context.Context, _ *sql.Tx, id int64) (models.DeliveryStatus, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d := r.all()[id]
	if d.Status != models.DeliveryPublished && d.Status != models.DeliveryFailed {
		return "", false, nil
	}
	from := d.Status
	d.Status = models.DeliveryPending
	d.ExternalID = nil
	d.ErrorMessage = nil
	d.PublishedAt = nil
	d.PublishingStartedAt = nil
	return from, true, nil
}

func (r fakeDeliveries) ListStale(_ context.Context, startedBefore time.Time) ([]*models.Delivery, error) {
	return r.list(func(d *models.Delivery) bool {
		return d.Status == models.DeliveryPublishing && d.PublishingStartedAt != nil && d.PublishingStartedAt.Before(startedBefore)
	}), nil
}

func (r fakeDeliveries) RemoveByParent(context.Context, *sql.Tx, int64) ([]int64, error) {
	return nil, nil
}

// media

type fakeMedia struct {
	s    *store
	kind models.DeliveryKind
}

func (r fakeMedia) Create(context.Context, *sql.Tx, *models.PostMedia) error { return nil }

func (r fakeMedia) ListAssets(_ context.Context, ownerID int64) ([]*models.MediaAsset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*models.MediaAsset(nil), r.s.media[r.kind][ownerID]...), nil
}

func (r fakeMedia) RemoveByOwner(context.Context, *sql.Tx, int64) error { return nil }

// thread accounts

type fakePivots struct{ s *store }

func (r fakePivots) Create(context.Context, *sql.Tx, *models.ThreadAccount) error { return nil }

func (r fakePivots) Get(_ context.Context, threadID, accountID int64) (*models.ThreadAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ta, ok := r.s.pivots[[2]int64{threadID, accountID}]
	if !ok {
		return nil, nil
	}
	cp := *ta
	return &cp, nil
}

func (r fakePivots) ListByThread(_ context.Context, threadID int64) ([]*models.ThreadAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ThreadAccount
	for _, ta := range r.s.pivots {
		if ta.ThreadID == threadID {
			cp := *ta
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (r fakePivots) Claim(_ context.Context, _ *sql.Tx, threadID, accountID int64) (int, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ta := r.s.pivots[[2]int64{threadID, accountID}]
	if ta.Status != models.DeliveryPending {
		return 0, false, nil
	}
	ta.Status = models.DeliveryPublishing
	ta.Attempt++
	ta.ErrorMessage = nil
	ta.NextSegmentAt = nil
	ta.UpdatedAt = r.s.now()
	return ta.Attempt, true, nil
}

func (r fakePivots) SetNextSegmentAt(_ context.Context, _ *sql.Tx, threadID, accountID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ta := r.s.pivots[[2]int64{threadID, accountID}]
	ta.NextSegmentAt = &at
	ta.UpdatedAt = r.s.now()
	return nil
}

func (r fakePivots) Finish(_ context.Context, _ *sql.Tx, threadID, accountID int64, status models.DeliveryStatus, reason *string, publishedAt *time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ta := r.s.pivots[[2]int64{threadID, accountID}]
	if ta.Status != models.DeliveryPublishing {
		return false, nil
	}
	ta.Status = status
	ta.ErrorMessage = reason
	ta.PublishedAt = publishedAt
	ta.NextSegmentAt = nil
	ta.UpdatedAt = r.s.now()
	return true, nil
}

func (r fakePivots) Reset(_ context.Context, _ *sql.Tx, threadID, accountID int64) (models.DeliveryStatus, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ta := r.s.pivots[[2]int64{threadID, accountID}]
	if !ta.Status.Resettable() {
		return "", false, nil
	}
	from := ta.Status
	ta.Status = models.DeliveryPending
	ta.ErrorMessage = nil
	ta.PublishedAt = nil
	ta.NextSegmentAt = nil
	ta.UpdatedAt = r.s.now()
	return from, true, nil
}

func (r fakePivots) ListStale(_ context.Context, updatedBefore time.Time) ([]*models.ThreadAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ThreadAccount
	for _, ta := range r.s.pivots {
		if ta.Status != models.DeliveryPublishing || !ta.UpdatedAt.Before(updatedBefore) {
			continue
		}
		inFlight := false
		for _, d := range r.s.deliveries[models.DeliveryKindSegment] {
			seg := r.s.segments[d.ParentID]
			if seg.ThreadID == ta.ThreadID && d.AccountID == ta.AccountID && d.Status == models.DeliveryPublishing {
				inFlight = true
				break
			}
		}
		if !inFlight {
			cp := *ta
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// accounts and links

type fakeAccounts struct{ s *store }

func (r fakeAccounts) GetByID(_ context.Context, id int64) (*models.SocialAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r fakeAccounts) ListLinkedByUser(context.Context, int64) ([]*models.LinkedAccount, error) {
	return nil, nil
}

func (r fakeAccounts) ListExpiring(context.Context, time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r fakeAccounts) SetToken(context.Context, int64, string, string, time.Time) error { return nil }

type fakeLinks struct{ s *store }

func (r fakeLinks) Get(_ context.Context, accountID, userID int64) (*models.AccountUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	link, ok := r.s.links[[2]int64{accountID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

func (r fakeLinks) ActiveAccountIDs(_ context.Context, userID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for _, link := range r.s.links {
		if link.UserID == userID && link.IsActive {
			ids = append(ids, link.AccountID)
		}
	}
	return ids, nil
}

func (r fakeLinks) SetActive(_ context.Context, accountID, userID int64, active bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	link, ok := r.s.links[[2]int64{accountID, userID}]
	if !ok {
		return false, nil
	}
	link.IsActive = active
	return true, nil
}

// publish logs

type fakeLogs struct{ s *store }

func (r fakeLogs) Append(_ context.Context, _ *sql.Tx, entry *models.PublishLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *entry
	cp.ID = r.s.id()
	r.s.logs = append(r.s.logs, &cp)
	return nil
}

func (r fakeLogs) ListByDelivery(context.Context, models.DeliveryKind, int64) ([]*models.PublishLog, error) {
	return nil, nil
}

func (r fakeLogs) RemoveByDeliveries(context.Context, *sql.Tx, models.DeliveryKind, []int64) error {
	return nil
}

// collaborators

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *clock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

type call struct {
	AccountID int64
	Platform  string
	Text      string
	Media     []models.MediaRef
	Opts      platform.Options
	At        time.Time
}

// fakeAdapter records every publish call. Outcomes are looked up per account
// and default to success with a generated id.
type fakeAdapter struct {
	mu       sync.Mutex
	clock    *clock
	calls    []call
	outcomes map[int64][]platform.Outcome
}

func (f *fakeAdapter) Publish(_ context.Context, account *models.SocialAccount, text string, media []models.MediaRef, opts platform.Options) platform.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{
		AccountID: account.ID,
		Platform:  account.Platform,
		Text:      text,
		Media:     media,
		Opts:      opts,
		At:        f.clock.Now(),
	})
	if queued := f.outcomes[account.ID]; len(queued) > 0 {
		f.outcomes[account.ID] = queued[1:]
		return queued[0]
	}
	return platform.Published(fmt.Sprintf("%s-%d", account.Platform, len(f.calls)))
}

func (f *fakeAdapter) fail(accountID int64, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[accountID] = append(f.outcomes[accountID], platform.Outcome{Error: reason})
}

func (f *fakeAdapter) succeed(accountID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[accountID] = append(f.outcomes[accountID], platform.Published(fmt.Sprintf("ok-%d", accountID)))
}

func (f *fakeAdapter) callsFor(accountID int64) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// countingResolver signs each reference with the number of the resolve call,
// so two resolutions of the same asset never produce the same URL.
type countingResolver struct {
	mu    sync.Mutex
	calls int
}

func (r *countingResolver) Resolve(_ context.Context, refs []models.MediaRef) ([]models.MediaRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	out := make([]models.MediaRef, len(refs))
	for i, ref := range refs {
		out[i] = models.MediaRef{Type: ref.Type, Location: fmt.Sprintf("https://cdn.test/%s?sig=%d", ref.Location, r.calls)}
	}
	return out, nil
}

type plainContent struct{}

func (plainContent) Resolve(src models.TextSource, _ *models.SocialAccount) string {
	return src.Content
}

type scheduled struct {
	step  Step
	delay time.Duration
	runAt time.Time
}

type fakeSteps struct {
	mu    sync.Mutex
	clock *clock
	queue []scheduled
}

func (f *fakeSteps) ScheduleStep(_ context.Context, step Step, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, scheduled{step: step, delay: delay, runAt: f.clock.Now().Add(delay)})
	return nil
}

// pop removes the step due first.
func (f *fakeSteps) pop() (scheduled, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return scheduled{}, false
	}
	sort.SliceStable(f.queue, func(i, j int) bool { return f.queue[i].runAt.Before(f.queue[j].runAt) })
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next, true
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.DeliveryEvent
}

func (f *fakeEvents) Notify(_ context.Context, e models.DeliveryEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

type harness struct {
	tx       *fakeTx
	store    *store
	clock    *clock
	adapter  *fakeAdapter
	resolver *countingResolver
	steps    *fakeSteps
	events   *fakeEvents
	pub      Publisher
}

func newHarness() *harness {
	s := newStore()
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.now = c.Now
	adapter := &fakeAdapter{clock: c, outcomes: map[int64][]platform.Outcome{}}
	registry, err := platform.NewRegistry(platform.Adapters{
		Facebook:  adapter,
		Instagram: adapter,
		Threads:   adapter,
		Twitter:   adapter,
		Telegram:  adapter,
		YouTube:   adapter,
	})
	if err != nil {
		panic(err)
	}
	h := &harness{
		tx:       &fakeTx{},
		store:    s,
		clock:    c,
		adapter:  adapter,
		resolver: &countingResolver{},
		steps:    &fakeSteps{clock: c},
		events:   &fakeEvents{},
	}
	h.pub = New(Deps{
		Tx:                h.tx,
		Posts:             fakePosts{s},
		PostDeliveries:    fakeDeliveries{s, models.DeliveryKindPost},
		PostMedia:         fakeMedia{s, models.DeliveryKindPost},
		Threads:           fakeThreads{s},
		Segments:          fakeSegments{s},
		SegmentDeliveries: fakeDeliveries{s, models.DeliveryKindSegment},
		SegmentMedia:      fakeMedia{s, models.DeliveryKindSegment},
		ThreadAccounts:    fakePivots{s},
		Accounts:          fakeAccounts{s},
		Links:             fakeLinks{s},
		Logs:              fakeLogs{s},
		Adapters:          registry,
		Media:             h.resolver,
		Content:           plainContent{},
		Events:            h.events,
		Steps:             h.steps,
		SegmentDelay:      DefaultSegmentDelay,
		Now:               c.Now,
	})
	return h
}

// drain runs scheduled thread steps in due order, moving the clock forward
// to each step's due time.
func (h *harness) drain(ctx context.Context) error {
	for i := 0; i < 100; i++ {
		next, ok := h.steps.pop()
		if !ok {
			return nil
		}
		if next.runAt.After(h.clock.Now()) {
			h.clock.Set(next.runAt)
		}
		if err := h.pub.ContinueThread(ctx, next.step); err != nil {
			return err
		}
	}
	return fmt.Errorf("steps did not settle")
}

var (
	_ repository.PostRepository          = fakePosts{}
	_ repository.ThreadRepository        = fakeThreads{}
	_ repository.ThreadSegmentRepository = fakeSegments{}
	_ repository.DeliveryRepository      = fakeDeliveries{}
	_ repository.PostMediaRepository     = fakeMedia{}
	_ repository.ThreadAccountRepository = fakePivots{}
	_ repository.SocialAccountRepository = fakeAccounts{}
	_ repository.AccountUserRepository   = fakeLinks{}
	_ repository.PublishLogRepository    = fakeLogs{}
)
