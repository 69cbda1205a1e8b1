package timeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"pawgram/domain"
	"pawgram/pkg/logger"
)

// ---- Repository interfaces ----

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type PostRepository interface {
	CandidatesForExistingUser(ctx context.Context, limit int) ([]domain.CandidatePost, error)
	CandidatesForNewUser(ctx context.Context, limit int) ([]domain.CandidatePost, error)
}

type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) ([]domain.TimelinePost, bool, error)
	Set(ctx context.Context, userID uuid.UUID, posts []domain.TimelinePost) error
	Flush(ctx context.Context) error
}

type ModelStore interface {
	Download(ctx context.Context, destPath string) error
}

// Service renders ranked timelines from the current model snapshot and
// handles model reloads.
type Service struct {
	holder         *Holder
	userRepo       UserRepository
	postRepo       PostRepository
	cache          Cache
	modelStore     ModelStore
	modelPath      string
	candidateLimit int
}

func NewService(holder *Holder, userRepo UserRepository, postRepo PostRepository, cache Cache, modelStore ModelStore, modelPath string, candidateLimit int) *Service {
	if candidateLimit <= 0 {
		candidateLimit = 100
	}
	return &Service{
		holder:         holder,
		userRepo:       userRepo,
		postRepo:       postRepo,
		cache:          cache,
		modelStore:     modelStore,
		modelPath:      modelPath,
		candidateLimit: candidateLimit,
	}
}

// Timeline returns the ranked timeline for a user. Users the current
// model knows get model scores; unknown or post-training users get the
// popularity branch.
func (s *Service) Timeline(ctx context.Context, userID uuid.UUID) ([]domain.TimelinePost, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	if s.cache != nil {
		if posts, ok, err := s.cache.Get(ctx, userID); err != nil {
			logger.Warn("timeline cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return posts, nil
		}
	}

	snap := s.holder.Load()
	if snap == nil {
		return nil, fmt.Errorf("no model loaded")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var posts []domain.TimelinePost
	if user != nil && snap.Ranker.KnowsUser(user.Index) {
		candidates, err := s.postRepo.CandidatesForExistingUser(ctx, s.candidateLimit)
		if err != nil {
			return nil, err
		}
		posts, err = snap.Ranker.RankExisting(user.Index, candidates)
		if err != nil {
			return nil, err
		}
	} else {
		candidates, err := s.postRepo.CandidatesForNewUser(ctx, s.candidateLimit)
		if err != nil {
			return nil, err
		}
		posts = snap.Ranker.RankNew(candidates)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, posts); err != nil {
			logger.Warn("timeline cache write failed", "user_id", userID, "error", err)
		}
	}

	return posts, nil
}

// Reload fetches the latest model artifact, builds a fresh snapshot and
// swaps it in. In-flight requests keep the snapshot they started with;
// the cache is flushed so no stale ranking survives the swap.
func (s *Service) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if s.modelStore != nil {
		if err := s.modelStore.Download(ctx, s.modelPath); err != nil {
			return fmt.Errorf("download latest model: %w", err)
		}
	}

	snap, err := NewSnapshotFromFile(s.modelPath)
	if err != nil {
		return err
	}
	s.holder.Swap(snap)

	if s.cache != nil {
		if err := s.cache.Flush(ctx); err != nil {
			logger.Warn("cache flush after reload failed", "error", err)
		}
	}

	logger.Info("model reloaded", "source", snap.Source, "num_users", snap.NumUsers)
	return nil
}
