package answer

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
)

// MemoryRepository keeps answer records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[domain.AnswerKey]domain.AnswerRecord
}

func NewMemoryRepository(seed ...domain.AnswerRecord) *MemoryRepository {
	r := &MemoryRepository{records: make(map[domain.AnswerKey]domain.AnswerRecord, len(seed))}
	for _, rec := range seed {
		r.records[rec.Key()] = rec
	}
	return r
}

func (r *MemoryRepository) Put(_ context.Context, rec domain.AnswerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.records[rec.Key()]; ok && prev.IsCorrect {
		return errors.AlreadyAnswered(rec.QuestionID, rec.FamilyIndex)
	}
	r.records[rec.Key()] = rec
	return nil
}

func (r *MemoryRepository) GetAll(_ context.Context) ([]domain.AnswerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(domain.AnswerRecord) bool { return true }), nil
}

func (r *MemoryRepository) GetForQuestion(_ context.Context, questionID int) ([]domain.AnswerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(rec domain.AnswerRecord) bool { return rec.QuestionID == questionID }), nil
}

func (r *MemoryRepository) CreditLegacy(_ context.Context, key domain.AnswerKey, points decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok || !IsLegacyUnscored(rec) {
		return false, nil
	}
	rec.Points = decimal.NewNullDecimal(points)
	r.records[key] = rec
	return true, nil
}

func (r *MemoryRepository) collect(keep func(domain.AnswerRecord) bool) []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuestionID != out[j].QuestionID {
			return out[i].QuestionID < out[j].QuestionID
		}
		return out[i].FamilyIndex < out[j].FamilyIndex
	})
	return out
}
