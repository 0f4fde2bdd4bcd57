// Package diary implements the shared trip diary and its daily-rank points.
package diary

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/familytrip/internal/domain"
)

// ScoreFunc turns the number of posts the author already made that day into
// the points of the new post.
type ScoreFunc func(rank int) decimal.Decimal

type Repository interface {
	// Create ranks post against the author's earlier posts of the same UTC
	// day, scores it and stores it, atomically per author.
	Create(ctx context.Context, post domain.DiaryPost, score ScoreFunc) (domain.DiaryPost, error)
	// List returns up to limit posts, newest first. A limit <= 0 means all.
	List(ctx context.Context, limit int) ([]domain.DiaryPost, error)
	// ListChronological returns every post, oldest first. Posts without a
	// creation time come first.
	ListChronological(ctx context.Context) ([]domain.DiaryPost, error)
	// SetPoints sets the points of a post that has none and reports whether
	// it did.
	SetPoints(ctx context.Context, postID string, points decimal.Decimal) (bool, error)
}

// Day is the calendar day a post counts towards.
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func dayBounds(t time.Time) (time.Time, time.Time) {
	start := t.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}
