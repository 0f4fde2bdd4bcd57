package diary

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
	"github.com/victornm/familytrip/internal/event"
	"github.com/victornm/familytrip/internal/scoring"
	"github.com/victornm/familytrip/internal/telemetry"
)

const maxContentLength = 2000

type Config struct {
	Repository Repository
	Roster     domain.Roster
	EventBus   *event.Bus
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	repo   Repository
	roster domain.Roster
	eb     *event.Bus
	now    func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		repo:   c.Repository,
		roster: c.Roster,
		eb:     c.EventBus,
		now:    now,
	}
}

// AuthorID is the stable author id of a roster member.
func AuthorID(familyIndex int) string {
	return strconv.Itoa(familyIndex)
}

type CreatePostRequest struct {
	FamilyIndex int
	Content     string
	Emoji       string
	Media       *domain.Media
}

type CreatePostResponse struct {
	Post domain.DiaryPost
}

// CreatePost stores a post scored by its author's daily rank and announces it.
func (s *Service) CreatePost(ctx context.Context, req CreatePostRequest) (*CreatePostResponse, error) {
	if !s.roster.Has(req.FamilyIndex) {
		return nil, errors.Validation("unknown participant %d", req.FamilyIndex)
	}
	hasPhoto := req.Media != nil && req.Media.URL != ""
	hasCaption := scoring.HasCaption(req.Content)
	if !hasPhoto && !hasCaption {
		return nil, errors.Validation("a post needs a photo or some text")
	}
	if len(req.Content) > maxContentLength {
		return nil, errors.Validation("content exceeds %d bytes", maxContentLength)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate post ID: %w", err)
	}

	post := domain.DiaryPost{
		PostID:     id.String(),
		AuthorID:   AuthorID(req.FamilyIndex),
		AuthorName: s.roster.Name(req.FamilyIndex),
		Content:    req.Content,
		Emoji:      req.Emoji,
		CreateTime: s.now().UTC().Truncate(time.Microsecond),
	}
	if hasPhoto {
		post.Media = req.Media
	}

	post, err = s.repo.Create(ctx, post, func(rank int) decimal.Decimal {
		return scoring.DiaryPoints(rank, hasPhoto, hasCaption)
	})
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithMessagef("create diary post"), errors.WithCause(err))
	}

	telemetry.DiaryPosts.Inc()
	slog.InfoContext(ctx, "diary: post created",
		"post_id", post.PostID,
		"author", post.AuthorName,
		"points", post.Points.Decimal.String(),
	)

	s.eb.Publish(ctx, domain.EventDiaryPostCreated{Post: post})

	return &CreatePostResponse{Post: post}, nil
}

type ListPostsRequest struct {
	Limit int
}

type ListPostsResponse struct {
	Posts []domain.DiaryPost
}

// ListPosts returns the newest posts first.
func (s *Service) ListPosts(ctx context.Context, req ListPostsRequest) (*ListPostsResponse, error) {
	posts, err := s.repo.List(ctx, req.Limit)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithMessagef("list diary posts"), errors.WithCause(err))
	}

	return &ListPostsResponse{Posts: posts}, nil
}
