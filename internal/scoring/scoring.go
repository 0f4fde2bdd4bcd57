// Package scoring holds the declining-reward rules used by the quiz and the diary.
package scoring

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Decay awards Steps[rank] for the first len(Steps) repetitions of an action
// and Floor for every repetition after that. Rank is 0-based.
type Decay struct {
	Steps []decimal.Decimal
	Floor decimal.Decimal
}

// At returns the reward for the given 0-based rank; negative ranks count as 0.
func (d Decay) At(rank int) decimal.Decimal {
	if rank < 0 {
		rank = 0
	}
	if rank < len(d.Steps) {
		return d.Steps[rank]
	}
	return d.Floor
}

func ints(vs ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(vs))
	for _, v := range vs {
		out = append(out, decimal.NewFromInt(v))
	}
	return out
}

var (
	// QuizAttempt rewards a correct answer by attempt: 3, 2, 1, then nothing.
	QuizAttempt = Decay{Steps: ints(3, 2, 1), Floor: decimal.Zero}

	// DiaryFull applies to posts with both a photo and a caption.
	DiaryFull = Decay{Steps: ints(3, 2, 1), Floor: decimal.RequireFromString("0.1")}

	// DiaryPartial applies to posts with a photo or a caption, or neither.
	DiaryPartial = Decay{
		Steps: []decimal.Decimal{decimal.NewFromInt(2), decimal.NewFromInt(1), decimal.RequireFromString("0.5")},
		Floor: decimal.RequireFromString("0.1"),
	}

	// LegacyAnswerCredit is given by the backfill to correct answers holding no points.
	LegacyAnswerCredit = QuizAttempt.At(0)
)

// ScoreForAttempt returns the points for the attempt-th submission (1-based).
func ScoreForAttempt(attempt int, correct bool) decimal.Decimal {
	if !correct {
		return decimal.Zero
	}
	if attempt < 1 {
		attempt = 1
	}
	return QuizAttempt.At(attempt - 1)
}

// DiaryPoints returns the points of a diary post that is the rank-th post
// (0-based) of its author on that day.
func DiaryPoints(rank int, hasPhoto, hasCaption bool) decimal.Decimal {
	if hasPhoto && hasCaption {
		return DiaryFull.At(rank)
	}
	return DiaryPartial.At(rank)
}

// HasCaption reports whether content carries any visible text.
func HasCaption(content string) bool {
	return strings.TrimSpace(content) != ""
}
