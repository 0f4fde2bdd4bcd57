// Package answer stores quiz answer records, one per (question, participant),
// and pushes full snapshots to subscribers whenever a record changes.
package answer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/victornm/familytrip/internal/domain"
)

// Repository is the durable keyed storage of answer records.
type Repository interface {
	// Put upserts the record keyed by (QuestionID, FamilyIndex). A stored
	// record that is already correct is never replaced; Put reports
	// errors.AlreadyAnswered instead.
	Put(ctx context.Context, rec domain.AnswerRecord) error
	GetAll(ctx context.Context) ([]domain.AnswerRecord, error)
	GetForQuestion(ctx context.Context, questionID int) ([]domain.AnswerRecord, error)
	// CreditLegacy sets points on a correct record that holds no points. It
	// reports whether a record was changed.
	CreditLegacy(ctx context.Context, key domain.AnswerKey, points decimal.Decimal) (bool, error)
}

// IsLegacyUnscored reports whether rec is a correct answer with missing or
// zero points.
func IsLegacyUnscored(rec domain.AnswerRecord) bool {
	return rec.IsCorrect && rec.PointsOrZero().IsZero()
}
