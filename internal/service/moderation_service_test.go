package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/internal/repository"
)

type recordingNotifier struct {
	mu        sync.Mutex
	pending   []*model.Post
	decisions []*model.Post
	actors    []int64
}

func (n *recordingNotifier) NotifyNewPending(post *model.Post) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, post)
}

func (n *recordingNotifier) NotifyDecision(post *model.Post, actorID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decisions = append(n.decisions, post)
	n.actors = append(n.actors, actorID)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending), len(n.decisions)
}

func setupPosts(t *testing.T) repository.PostRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "feed.db")+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.InitSchema(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewPostRepository(db)
}

func setupModeration(t *testing.T) (ModerationService, repository.PostRepository, *recordingNotifier) {
	t.Helper()
	posts := setupPosts(t)
	n := &recordingNotifier{}
	return NewModerationService(posts, n), posts, n
}

var user42 = model.Author{UserID: 42, Name: "A B"}

func userSubmission(text string) SubmitParams {
	return SubmitParams{Category: model.CategoryNews, Text: text, Author: user42}
}

func TestSubmitByUserIsPending(t *testing.T) {
	svc, _, n := setupModeration(t)
	ctx := context.Background()

	post, err := svc.Submit(ctx, userSubmission("  Door fixed  "))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, post.Status)
	assert.Equal(t, model.OriginUser, post.Origin)
	assert.Equal(t, "Door fixed", post.Text)
	assert.False(t, post.CreatedAt.IsZero())

	pending, decisions := n.counts()
	assert.Equal(t, 1, pending, "queued for review exactly once")
	assert.Equal(t, 0, decisions)

	list, err := svc.ListPending(ctx, 10, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, post.ID, list[0].ID)
}

func TestSubmitByAdminIsApproved(t *testing.T) {
	svc, _, n := setupModeration(t)
	ctx := context.Background()

	params := userSubmission("Water off tomorrow")
	params.Privileged = true
	post, err := svc.Submit(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, post.Status)
	assert.Equal(t, model.OriginAdmin, post.Origin)

	pending, _ := n.counts()
	assert.Equal(t, 0, pending)

	list, err := svc.ListPending(ctx, 10, true)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmitValidation(t *testing.T) {
	svc, _, n := setupModeration(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, userSubmission("   "))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Submit(ctx, SubmitParams{Category: "sports", Text: "x", Author: user42})
	assert.ErrorIs(t, err, ErrValidation)

	photo, err := svc.Submit(ctx, SubmitParams{Category: model.CategoryNews, MediaRef: "file-1", Author: user42})
	require.NoError(t, err)
	assert.Equal(t, int64(1), photo.ID, "failed submissions allocate no id")
	assert.Empty(t, photo.Text)

	pending, _ := n.counts()
	assert.Equal(t, 1, pending)
}

func TestIDsIncreaseUnderConcurrentSubmission(t *testing.T) {
	svc, _, _ := setupModeration(t)
	ctx := context.Background()

	const n = 30
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			params := userSubmission("concurrent")
			params.Privileged = i%3 == 0
			post, err := svc.Submit(ctx, params)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, ids[post.ID], "duplicate id %d", post.ID)
			ids[post.ID] = true
		}(i)
	}
	wg.Wait()
	assert.Len(t, ids, n)

	next, err := svc.Submit(ctx, userSubmission("after"))
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), next.ID)
}

func TestDecideFirstTransitionWins(t *testing.T) {
	for _, tc := range []struct {
		first, second model.Action
		want          model.Status
	}{
		{model.ActionApprove, model.ActionReject, model.StatusApproved},
		{model.ActionReject, model.ActionApprove, model.StatusRejected},
	} {
		t.Run(string(tc.first), func(t *testing.T) {
			svc, _, n := setupModeration(t)
			ctx := context.Background()

			post, err := svc.Submit(ctx, userSubmission("Door fixed"))
			require.NoError(t, err)

			d, err := svc.Decide(ctx, DecideParams{PostID: post.ID, Action: tc.first, ActorID: 1, Privileged: true})
			require.NoError(t, err)
			assert.True(t, d.Applied)
			assert.Equal(t, tc.want, d.Post.Status)

			d, err = svc.Decide(ctx, DecideParams{PostID: post.ID, Action: tc.second, ActorID: 1, Privileged: true})
			require.NoError(t, err, "deciding a terminal post is a no-op, not an error")
			assert.False(t, d.Applied)
			assert.Equal(t, tc.want, d.Post.Status)

			_, decisions := n.counts()
			assert.Equal(t, 1, decisions)
			assert.Equal(t, []int64{1}, n.actors)
		})
	}
}

func TestDecideNotFound(t *testing.T) {
	svc, posts, n := setupModeration(t)
	ctx := context.Background()

	post, err := svc.Submit(ctx, userSubmission("Door fixed"))
	require.NoError(t, err)

	_, err = svc.Decide(ctx, DecideParams{PostID: 999, Action: model.ActionApprove, Privileged: true})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := posts.Find(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	_, decisions := n.counts()
	assert.Equal(t, 0, decisions)
}

func TestDecideForbidden(t *testing.T) {
	svc, posts, _ := setupModeration(t)
	ctx := context.Background()

	post, err := svc.Submit(ctx, userSubmission("Door fixed"))
	require.NoError(t, err)

	for _, id := range []int64{post.ID, 999} {
		_, err := svc.Decide(ctx, DecideParams{PostID: id, Action: model.ActionApprove, ActorID: 42})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NotErrorIs(t, err, ErrNotFound)
	}

	got, err := posts.Find(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	_, err = svc.ListPending(ctx, 10, false)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDecideUnknownAction(t *testing.T) {
	svc, _, _ := setupModeration(t)
	_, err := svc.Decide(context.Background(), DecideParams{PostID: 1, Action: "publish", Privileged: true})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConcurrentDecisionsApplyOnce(t *testing.T) {
	svc, _, n := setupModeration(t)
	ctx := context.Background()

	post, err := svc.Submit(ctx, userSubmission("Door fixed"))
	require.NoError(t, err)

	results := make(chan *Decision, 2)
	var wg sync.WaitGroup
	for _, action := range []model.Action{model.ActionApprove, model.ActionReject} {
		wg.Add(1)
		go func(action model.Action) {
			defer wg.Done()
			d, err := svc.Decide(ctx, DecideParams{PostID: post.ID, Action: action, ActorID: 1, Privileged: true})
			if assert.NoError(t, err) {
				results <- d
			}
		}(action)
	}
	wg.Wait()
	close(results)

	var applied []*Decision
	var statuses []model.Status
	for d := range results {
		if d.Applied {
			applied = append(applied, d)
		}
		statuses = append(statuses, d.Post.Status)
	}
	require.Len(t, applied, 1)
	require.Len(t, statuses, 2)
	assert.Equal(t, statuses[0], statuses[1], "the loser observes the winner's status")

	_, decisions := n.counts()
	assert.Equal(t, 1, decisions)
}

type failingPosts struct {
	repository.PostRepository
}

func (failingPosts) Create(ctx context.Context, post *model.Post) error {
	return errors.New("disk full")
}

func TestSubmitStorageError(t *testing.T) {
	n := &recordingNotifier{}
	svc := NewModerationService(failingPosts{setupPosts(t)}, n)

	_, err := svc.Submit(context.Background(), userSubmission("Door fixed"))
	assert.ErrorIs(t, err, ErrStorage)
	pending, _ := n.counts()
	assert.Equal(t, 0, pending)
}
