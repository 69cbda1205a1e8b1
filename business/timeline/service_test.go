package timeline

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawgram/business/recommend"
	"pawgram/domain"
)

// ---- stubs ----

type stubScorer struct {
	numUsers int
	scores   map[int]float64
}

func (s *stubScorer) ScoreOne(user, item int, image, text []float64) (float64, error) {
	return s.scores[item], nil
}

func (s *stubScorer) KnowsUser(userIndex int) bool {
	return userIndex >= 0 && userIndex < s.numUsers
}

type stubUserRepo struct {
	users map[uuid.UUID]*domain.User
}

func (r *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.users[id], nil
}

type stubPostRepo struct {
	existing []domain.CandidatePost
	fresh    []domain.CandidatePost

	existingCalls int
	freshCalls    int
}

func (r *stubPostRepo) CandidatesForExistingUser(ctx context.Context, limit int) ([]domain.CandidatePost, error) {
	r.existingCalls++
	return r.existing, nil
}

func (r *stubPostRepo) CandidatesForNewUser(ctx context.Context, limit int) ([]domain.CandidatePost, error) {
	r.freshCalls++
	return r.fresh, nil
}

type stubCache struct {
	store   map[uuid.UUID][]domain.TimelinePost
	flushed bool
}

func newStubCache() *stubCache {
	return &stubCache{store: map[uuid.UUID][]domain.TimelinePost{}}
}

func (c *stubCache) Get(ctx context.Context, userID uuid.UUID) ([]domain.TimelinePost, bool, error) {
	posts, ok := c.store[userID]
	return posts, ok, nil
}

func (c *stubCache) Set(ctx context.Context, userID uuid.UUID, posts []domain.TimelinePost) error {
	c.store[userID] = posts
	return nil
}

func (c *stubCache) Flush(ctx context.Context) error {
	c.store = map[uuid.UUID][]domain.TimelinePost{}
	c.flushed = true
	return nil
}

func candidate(id int, proxy float64, createdAt time.Time) domain.CandidatePost {
	return domain.CandidatePost{
		PostID:    id,
		PostUUID:  uuid.New(),
		CreatedAt: createdAt,
		Proxy:     proxy,
	}
}

func snapshotWith(scores map[int]float64, numUsers int) *Snapshot {
	return &Snapshot{
		Ranker:   recommend.NewRanker(&stubScorer{numUsers: numUsers, scores: scores}),
		NumUsers: numUsers,
		Source:   "test",
	}
}

// ---- tests ----

func TestTimelineExistingUserUsesModelScores(t *testing.T) {
	userID := uuid.New()
	now := time.Now()

	holder := NewHolder(snapshotWith(map[int]float64{1: 0.9, 2: 0.1, 3: 0.5}, 10))
	posts := &stubPostRepo{existing: []domain.CandidatePost{
		candidate(1, 0, now),
		candidate(2, 0, now),
		candidate(3, 0, now),
	}}
	users := &stubUserRepo{users: map[uuid.UUID]*domain.User{
		userID: {ID: userID, Index: 4},
	}}
	cache := newStubCache()

	svc := NewService(holder, users, posts, cache, nil, "", 100)
	got, err := svc.Timeline(context.Background(), userID)
	require.NoError(t, err)

	// Item 2 falls under the score threshold.
	require.Len(t, got, 2)
	assert.Equal(t, 0.9, got[0].Score)
	assert.Equal(t, 0.5, got[1].Score)
	assert.Equal(t, 1, posts.existingCalls)
	assert.Equal(t, 0, posts.freshCalls)

	// Rendered timeline lands in the cache.
	cached, ok, _ := cache.Get(context.Background(), userID)
	require.True(t, ok)
	assert.Equal(t, got, cached)
}

func TestTimelineUnknownUserGetsColdStartBranch(t *testing.T) {
	now := time.Now()
	holder := NewHolder(snapshotWith(nil, 10))
	posts := &stubPostRepo{fresh: []domain.CandidatePost{
		candidate(1, 5, now.Add(-time.Hour)),
		candidate(2, 1, now), // proxy below threshold
		candidate(3, 3, now),
	}}
	users := &stubUserRepo{users: map[uuid.UUID]*domain.User{}}

	svc := NewService(holder, users, posts, newStubCache(), nil, "", 100)
	got, err := svc.Timeline(context.Background(), uuid.New())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, float64(3), got[0].Score) // newest first
	assert.Equal(t, float64(5), got[1].Score)
	assert.Equal(t, 0, posts.existingCalls)
	assert.Equal(t, 1, posts.freshCalls)
}

func TestTimelineUserBeyondModelUniverseIsColdStart(t *testing.T) {
	userID := uuid.New()
	holder := NewHolder(snapshotWith(nil, 10))
	posts := &stubPostRepo{fresh: []domain.CandidatePost{candidate(1, 4, time.Now())}}
	users := &stubUserRepo{users: map[uuid.UUID]*domain.User{
		userID: {ID: userID, Index: 10}, // registered after the last training run
	}}

	svc := NewService(holder, users, posts, newStubCache(), nil, "", 100)
	got, err := svc.Timeline(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, posts.freshCalls)
}

func TestTimelineCacheHitSkipsRanking(t *testing.T) {
	userID := uuid.New()
	cache := newStubCache()
	cached := []domain.TimelinePost{{ID: uuid.New(), Score: 0.7}}
	cache.store[userID] = cached

	posts := &stubPostRepo{}
	svc := NewService(NewHolder(snapshotWith(nil, 10)), &stubUserRepo{}, posts, cache, nil, "", 100)

	got, err := svc.Timeline(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	assert.Equal(t, 0, posts.existingCalls)
	assert.Equal(t, 0, posts.freshCalls)
}

func TestTimelineWithoutModelFails(t *testing.T) {
	svc := NewService(NewHolder(nil), &stubUserRepo{}, &stubPostRepo{}, newStubCache(), nil, "", 100)
	_, err := svc.Timeline(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestReloadSwapsSnapshotAndFlushesCache(t *testing.T) {
	cfg := recommend.DefaultSimConfig()
	cfg.NumUsers = 3
	cfg.NumItems = 5
	cfg.ImageFeatureDim = 8
	cfg.TextFeatureDim = 8
	model, err := recommend.NewFusionScorer(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "latest.model")
	require.NoError(t, recommend.SaveCheckpoint(model.Checkpoint(), path))

	cache := newStubCache()
	cache.store[uuid.New()] = []domain.TimelinePost{{Score: 0.1}}

	svc := NewService(NewHolder(nil), &stubUserRepo{}, &stubPostRepo{}, cache, nil, path, 100)
	require.NoError(t, svc.Reload(context.Background()))

	snap := svc.holder.Load()
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.NumUsers)
	assert.Equal(t, path, snap.Source)
	assert.True(t, cache.flushed)
	assert.Empty(t, cache.store)
}

func TestHolderSwapPublishesNewSnapshot(t *testing.T) {
	first := snapshotWith(nil, 1)
	second := snapshotWith(nil, 2)

	h := NewHolder(first)
	assert.Same(t, first, h.Load())

	h.Swap(second)
	assert.Same(t, second, h.Load())
}
