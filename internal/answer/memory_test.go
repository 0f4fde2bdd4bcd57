package answer_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/familytrip/internal/answer"
	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
)

func TestMemoryRepository_Put(t *testing.T) {
	ctx := context.Background()
	r := answer.NewMemoryRepository()

	require.NoError(t, r.Put(ctx, record(1, 0, "a", false, 0, 1)))
	require.NoError(t, r.Put(ctx, record(1, 0, "b", true, 2, 2)), "a wrong answer is replaced")

	err := r.Put(ctx, record(1, 0, "c", false, 0, 3))
	require.True(t, errors.IsCode(err, errors.CodeFailedPrecondition), "a correct answer is locked: %v", err)

	got, err := r.GetForQuestion(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].AnswerKey)
	assert.Equal(t, "2", got[0].PointsOrZero().String())
}

func TestMemoryRepository_GetAllOrdered(t *testing.T) {
	r := answer.NewMemoryRepository(
		record(2, 1, "a", false, 0, 1),
		record(1, 3, "a", false, 0, 1),
		record(1, 0, "a", false, 0, 1),
	)

	got, err := r.GetAll(context.Background())
	require.NoError(t, err)

	keys := make([]domain.AnswerKey, 0, len(got))
	for _, rec := range got {
		keys = append(keys, rec.Key())
	}
	assert.Equal(t, []domain.AnswerKey{
		{QuestionID: 1, FamilyIndex: 0},
		{QuestionID: 1, FamilyIndex: 3},
		{QuestionID: 2, FamilyIndex: 1},
	}, keys)
}

func TestMemoryRepository_CreditLegacy(t *testing.T) {
	tests := map[string]struct {
		rec     domain.AnswerRecord
		changed bool
	}{
		"correct legacy answer without points": {
			rec:     domain.AnswerRecord{QuestionID: 1, FamilyIndex: 0, IsCorrect: true},
			changed: true,
		},
		"correct legacy answer with zero points": {
			rec:     record(1, 0, "b", true, 0, 0),
			changed: true,
		},
		"correct answer on fourth attempt with zero points": {
			rec:     record(1, 0, "b", true, 0, 4),
			changed: true,
		},
		"scored answer is untouched": {
			rec:     record(1, 0, "b", true, 2, 0),
			changed: false,
		},
		"wrong answer is untouched": {
			rec:     record(1, 0, "a", false, 0, 0),
			changed: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			r := answer.NewMemoryRepository(tt.rec)

			changed, err := r.CreditLegacy(ctx, tt.rec.Key(), decimal.NewFromInt(3))
			require.NoError(t, err)
			require.Equal(t, tt.changed, changed)

			changed, err = r.CreditLegacy(ctx, tt.rec.Key(), decimal.NewFromInt(3))
			require.NoError(t, err)
			require.False(t, changed, "second credit should be a no-op")
		})
	}
}

func record(q, f int, key string, correct bool, points int64, attempts int) domain.AnswerRecord {
	return domain.AnswerRecord{
		QuestionID:  q,
		FamilyIndex: f,
		UserName:    "user",
		AnswerKey:   key,
		IsCorrect:   correct,
		Points:      decimal.NewNullDecimal(decimal.NewFromInt(points)),
		Attempts:    attempts,
		Timestamp:   time.Unix(int64(1000+attempts), 0).UTC(),
	}
}
