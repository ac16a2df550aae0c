package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/repository"
	"github.com/maheshrc27/publishflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type inlineTx struct{}

func (inlineTx) WithTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type mockPosts struct {
	repository.PostRepository
	mock.Mock
}

func (m *mockPosts) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	args := m.Called(post)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPosts) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	args := m.Called(id)
	post, _ := args.Get(0).(*models.Post)
	return post, args.Error(1)
}

func (m *mockPosts) Update(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	return m.Called(post).Error(0)
}

func (m *mockPosts) SetCounts(ctx context.Context, tx *sql.Tx, id int64, c models.StatusCounts) error {
	return m.Called(id, c).Error(0)
}

func (m *mockPosts) Remove(ctx context.Context, tx *sql.Tx, id int64) error {
	return m.Called(id).Error(0)
}

func (m *mockPosts) LockStatus(ctx context.Context, tx *sql.Tx, id int64) (models.PostStatus, error) {
	args := m.Called(id)
	return args.Get(0).(models.PostStatus), args.Error(1)
}

type mockDeliveries struct {
	repository.DeliveryRepository
	mock.Mock
}

func (m *mockDeliveries) Create(ctx context.Context, tx *sql.Tx, d *models.Delivery) (int64, error) {
	args := m.Called(d.ParentID, d.AccountID, d.Platform)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDeliveries) GetByID(ctx context.Context, id int64) (*models.Delivery, error) {
	args := m.Called(id)
	d, _ := args.Get(0).(*models.Delivery)
	return d, args.Error(1)
}

func (m *mockDeliveries) ListByParent(ctx context.Context, parentID int64) ([]*models.Delivery, error) {
	args := m.Called(parentID)
	return args.Get(0).([]*models.Delivery), args.Error(1)
}

func (m *mockDeliveries) RemoveByParent(ctx context.Context, tx *sql.Tx, parentID int64) ([]int64, error) {
	args := m.Called(parentID)
	return args.Get(0).([]int64), args.Error(1)
}

type mockPostMedia struct {
	repository.PostMediaRepository
	mock.Mock
}

func (m *mockPostMedia) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	return m.Called(pm.OwnerID, pm.AssetID, pm.DisplayOrder).Error(0)
}

func (m *mockPostMedia) ListAssets(ctx context.Context, ownerID int64) ([]*models.MediaAsset, error) {
	args := m.Called(ownerID)
	return args.Get(0).([]*models.MediaAsset), args.Error(1)
}

func (m *mockPostMedia) RemoveByOwner(ctx context.Context, tx *sql.Tx, ownerID int64) error {
	return m.Called(ownerID).Error(0)
}

type mockMediaAssets struct {
	repository.MediaAssetRepository
	mock.Mock
}

func (m *mockMediaAssets) CountOwned(ctx context.Context, userID int64, ids []int64) (int, error) {
	args := m.Called(userID, ids)
	return args.Int(0), args.Error(1)
}

type mockAccounts struct {
	repository.SocialAccountRepository
	mock.Mock
}

func (m *mockAccounts) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	args := m.Called(id)
	account, _ := args.Get(0).(*models.SocialAccount)
	return account, args.Error(1)
}

type mockLinks struct {
	repository.AccountUserRepository
	mock.Mock
}

func (m *mockLinks) Get(ctx context.Context, accountID, userID int64) (*models.AccountUser, error) {
	args := m.Called(accountID, userID)
	link, _ := args.Get(0).(*models.AccountUser)
	return link, args.Error(1)
}

type mockLogs struct {
	repository.PublishLogRepository
	mock.Mock
}

func (m *mockLogs) ListByDelivery(ctx context.Context, kind models.DeliveryKind, deliveryID int64) ([]*models.PublishLog, error) {
	args := m.Called(kind, deliveryID)
	return args.Get(0).([]*models.PublishLog), args.Error(1)
}

func (m *mockLogs) RemoveByDeliveries(ctx context.Context, tx *sql.Tx, kind models.DeliveryKind, ids []int64) error {
	return m.Called(kind, ids).Error(0)
}

type postMocks struct {
	posts      *mockPosts
	deliveries *mockDeliveries
	media      *mockPostMedia
	assets     *mockMediaAssets
	accounts   *mockAccounts
	links      *mockLinks
	logs       *mockLogs
	svc        PostService
}

func newPostMocks() *postMocks {
	m := &postMocks{
		posts:      &mockPosts{},
		deliveries: &mockDeliveries{},
		media:      &mockPostMedia{},
		assets:     &mockMediaAssets{},
		accounts:   &mockAccounts{},
		links:      &mockLinks{},
		logs:       &mockLogs{},
	}
	m.svc = NewPostService(inlineTx{}, m.posts, m.deliveries, m.media, m.assets, m.accounts, m.links, m.logs)
	return m
}

func (m *postMocks) assertExpectations(t *testing.T) {
	mock.AssertExpectationsForObjects(t, m.posts, m.deliveries, m.media, m.assets, m.accounts, m.links, m.logs)
}

func (m *postMocks) linkAccount(userID, accountID int64, platform models.Platform) {
	m.links.On("Get", accountID, userID).Return(&models.AccountUser{AccountID: accountID, UserID: userID, IsActive: true}, nil)
	m.accounts.On("GetByID", accountID).Return(&models.SocialAccount{ID: accountID, Platform: string(platform)}, nil)
}

func TestCreateScheduledPost(t *testing.T) {
	ctx := context.Background()
	m := newPostMocks()
	m.linkAccount(1, 11, models.PlatformFacebook)
	m.linkAccount(1, 12, models.PlatformTelegram)
	m.assets.On("CountOwned", int64(1), []int64{5}).Return(1, nil)

	scheduled := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	m.posts.On("Create", mock.MatchedBy(func(p *models.Post) bool {
		return p.Status == models.PostStatusScheduled && p.ScheduledAt != nil && p.ScheduledAt.Equal(scheduled) && p.UserID == 1
	})).Return(int64(40), nil)
	m.deliveries.On("Create", int64(40), int64(11), "facebook").Return(int64(1), nil)
	m.deliveries.On("Create", int64(40), int64(12), "telegram").Return(int64(2), nil)
	m.media.On("Create", int64(40), int64(5), 0).Return(nil)
	m.posts.On("SetCounts", int64(40), models.StatusCounts{Pending: 2}).Return(nil)

	m.posts.On("GetByID", int64(40)).Return(&models.Post{ID: 40, UserID: 1, Status: models.PostStatusScheduled}, nil)
	m.deliveries.On("ListByParent", int64(40)).Return([]*models.Delivery{{ID: 1}, {ID: 2}}, nil)
	m.media.On("ListAssets", int64(40)).Return([]*models.MediaAsset{{ID: 5}}, nil)

	details, err := m.svc.Create(ctx, publisher.Actor{UserID: 1}, &transfer.PostCreation{
		Content:       "launch day",
		ScheduledTime: "2024-06-01T09:30",
		AccountIDs:    []int64{11, 12, 11},
		MediaIDs:      []int64{5},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), details.ID)
	assert.Len(t, details.Deliveries, 2)
	assert.Len(t, details.Media, 1)
	m.assertExpectations(t)
}

func TestCreatePostValidation(t *testing.T) {
	ctx := context.Background()
	actor := publisher.Actor{UserID: 1}

	m := newPostMocks()
	_, err := m.svc.Create(ctx, actor, &transfer.PostCreation{Content: "  ", AccountIDs: []int64{1}})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = m.svc.Create(ctx, actor, &transfer.PostCreation{Content: "hi", ScheduledTime: "tomorrow", AccountIDs: []int64{1}})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = m.svc.Create(ctx, actor, &transfer.PostCreation{Content: "hi"})
	assert.ErrorIs(t, err, ErrInvalid)

	m.links.On("Get", int64(9), int64(1)).Return(nil, nil)
	_, err = m.svc.Create(ctx, actor, &transfer.PostCreation{Content: "hi", AccountIDs: []int64{9}})
	assert.ErrorIs(t, err, ErrInvalid)

	m.linkAccount(1, 11, models.PlatformFacebook)
	m.assets.On("CountOwned", int64(1), []int64{5, 6}).Return(1, nil)
	_, err = m.svc.Create(ctx, actor, &transfer.PostCreation{Content: "hi", AccountIDs: []int64{11}, MediaIDs: []int64{5, 6}})
	assert.ErrorIs(t, err, ErrInvalid)

	m.posts.AssertNotCalled(t, "Create", mock.Anything)
}

func TestUpdateRecreatesDeliveries(t *testing.T) {
	ctx := context.Background()
	m := newPostMocks()
	m.posts.On("GetByID", int64(40)).Return(&models.Post{ID: 40, UserID: 1, Status: models.PostStatusDraft}, nil)
	m.linkAccount(1, 12, models.PlatformThreads)

	m.posts.On("LockStatus", int64(40)).Return(models.PostStatusDraft, nil)
	m.deliveries.On("RemoveByParent", int64(40)).Return([]int64{1, 2}, nil)
	m.logs.On("RemoveByDeliveries", models.DeliveryKindPost, []int64{1, 2}).Return(nil)
	m.media.On("RemoveByOwner", int64(40)).Return(nil)
	m.posts.On("Update", mock.MatchedBy(func(p *models.Post) bool {
		return p.ID == 40 && p.Content == "edited" && p.Status == models.PostStatusDraft
	})).Return(nil)
	m.deliveries.On("Create", int64(40), int64(12), "threads").Return(int64(3), nil)
	m.posts.On("SetCounts", int64(40), models.StatusCounts{Pending: 1}).Return(nil)
	m.deliveries.On("ListByParent", int64(40)).Return([]*models.Delivery{{ID: 3}}, nil)
	m.media.On("ListAssets", int64(40)).Return([]*models.MediaAsset{}, nil)

	details, err := m.svc.Update(ctx, publisher.Actor{UserID: 1}, 40, &transfer.PostCreation{
		Content:    "edited",
		AccountIDs: []int64{12},
	})
	require.NoError(t, err)
	assert.Len(t, details.Deliveries, 1)
	m.assertExpectations(t)
}

func TestUpdateRejectedOncePublishing(t *testing.T) {
	for _, status := range []models.PostStatus{models.PostStatusPublishing, models.PostStatusPublished, models.PostStatusFailed} {
		m := newPostMocks()
		m.posts.On("GetByID", int64(40)).Return(&models.Post{ID: 40, UserID: 1, Status: status}, nil)

		_, err := m.svc.Update(context.Background(), publisher.Actor{UserID: 1}, 40, &transfer.PostCreation{Content: "x"})
		assert.ErrorIs(t, err, publisher.ErrConflict, status)
		m.posts.AssertNotCalled(t, "Update", mock.Anything)
	}
}

func TestRemovePost(t *testing.T) {
	ctx := context.Background()

	m := newPostMocks()
	m.posts.On("GetByID", int64(40)).Return(&models.Post{ID: 40, UserID: 1, Status: models.PostStatusPublishing}, nil)
	err := m.svc.Remove(ctx, publisher.Actor{UserID: 1}, 40)
	assert.ErrorIs(t, err, publisher.ErrConflict)

	m = newPostMocks()
	m.posts.On("GetByID", int64(41)).Return(&models.Post{ID: 41, UserID: 1, Status: models.PostStatusPublished}, nil)
	m.posts.On("LockStatus", int64(41)).Return(models.PostStatusPublished, nil)
	m.deliveries.On("RemoveByParent", int64(41)).Return([]int64{7}, nil)
	m.logs.On("RemoveByDeliveries", models.DeliveryKindPost, []int64{7}).Return(nil)
	m.media.On("RemoveByOwner", int64(41)).Return(nil)
	m.posts.On("Remove", int64(41)).Return(nil)
	require.NoError(t, m.svc.Remove(ctx, publisher.Actor{UserID: 1}, 41))
	m.assertExpectations(t)
}

// The scheduler may claim the post between the first read and the
// transaction; the locked status decides.
func TestUpdateRejectedWhenClaimedConcurrently(t *testing.T) {
	ctx := context.Background()
	m := newPostMocks()
	m.posts.On("GetByID", int64(40)).Return(&models.Post{ID: 40, UserID: 1, Status: models.PostStatusScheduled}, nil)
	m.linkAccount(1, 12, models.PlatformThreads)
	m.posts.On("LockStatus", int64(40)).Return(models.PostStatusPublishing, nil)

	_, err := m.svc.Update(ctx, publisher.Actor{UserID: 1}, 40, &transfer.PostCreation{
		Content:    "edited",
		AccountIDs: []int64{12},
	})
	assert.ErrorIs(t, err, publisher.ErrConflict)
	m.deliveries.AssertNotCalled(t, "RemoveByParent", mock.Anything)
	m.posts.AssertNotCalled(t, "Update", mock.Anything)
	m.deliveries.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveRejectedWhenClaimedConcurrently(t *testing.T) {
	ctx := context.Background()
	m := newPostMocks()
	m.posts.On("GetByID", int64(40)).Return(&models.Post{ID: 40, UserID: 1, Status: models.PostStatusScheduled}, nil)
	m.posts.On("LockStatus", int64(40)).Return(models.PostStatusPublishing, nil)

	err := m.svc.Remove(ctx, publisher.Actor{UserID: 1}, 40)
	assert.ErrorIs(t, err, publisher.ErrConflict)
	m.deliveries.AssertNotCalled(t, "RemoveByParent", mock.Anything)
	m.posts.AssertNotCalled(t, "Remove", mock.Anything)
}

func TestRemoveOfVanishedPost(t *testing.T) {
	m := newPostMocks()
	m.posts.On("GetByID", int64(40)).Return(&models.Post{ID: 40, UserID: 1, Status: models.PostStatusDraft}, nil)
	m.posts.On("LockStatus", int64(40)).Return(models.PostStatus(""), nil)

	err := m.svc.Remove(context.Background(), publisher.Actor{UserID: 1}, 40)
	assert.ErrorIs(t, err, publisher.ErrNotFound)
	m.posts.AssertNotCalled(t, "Remove", mock.Anything)
}

func TestPostAccess(t *testing.T) {
	ctx := context.Background()
	m := newPostMocks()
	m.posts.On("GetByID", int64(40)).Return(&models.Post{ID: 40, UserID: 1}, nil)
	m.posts.On("GetByID", int64(99)).Return(nil, nil)

	_, err := m.svc.PostInfo(ctx, publisher.Actor{UserID: 2}, 40)
	assert.ErrorIs(t, err, publisher.ErrUnauthorized)

	_, err = m.svc.PostInfo(ctx, publisher.Actor{UserID: 1}, 99)
	assert.ErrorIs(t, err, publisher.ErrNotFound)

	m.deliveries.On("GetByID", int64(3)).Return(&models.Delivery{ID: 3, ParentID: 40}, nil)
	m.logs.On("ListByDelivery", models.DeliveryKindPost, int64(3)).Return([]*models.PublishLog{{ID: 1}}, nil)
	logs, err := m.svc.Logs(ctx, publisher.Actor{UserID: 5, IsAdmin: true}, 3)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
