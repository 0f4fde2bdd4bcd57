package diary

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/victornm/familytrip/internal/domain"
)

// MemoryRepository keeps diary posts in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	posts []domain.DiaryPost
}

func NewMemoryRepository(seed ...domain.DiaryPost) *MemoryRepository {
	return &MemoryRepository{posts: slices.Clone(seed)}
}

func (r *MemoryRepository) Create(_ context.Context, post domain.DiaryPost, score ScoreFunc) (domain.DiaryPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, to := dayBounds(post.CreateTime)
	rank := 0
	for _, p := range r.posts {
		if p.AuthorID == post.AuthorID && !p.CreateTime.Before(from) && p.CreateTime.Before(to) {
			rank++
		}
	}

	post.Points = decimal.NewNullDecimal(score(rank))
	r.posts = append(r.posts, post)
	return post, nil
}

func (r *MemoryRepository) List(_ context.Context, limit int) ([]domain.DiaryPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.sorted()
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListChronological(_ context.Context) ([]domain.DiaryPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(), nil
}

func (r *MemoryRepository) SetPoints(_ context.Context, postID string, points decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.posts {
		if r.posts[i].PostID != postID {
			continue
		}
		if r.posts[i].Points.Valid {
			return false, nil
		}
		r.posts[i].Points = decimal.NewNullDecimal(points)
		return true, nil
	}
	return false, nil
}

func (r *MemoryRepository) sorted() []domain.DiaryPost {
	out := slices.Clone(r.posts)
	slices.SortStableFunc(out, func(a, b domain.DiaryPost) int {
		if c := a.CreateTime.Compare(b.CreateTime); c != 0 {
			return c
		}
		return cmp.Compare(a.PostID, b.PostID)
	})
	return out
}
