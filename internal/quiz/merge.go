// Package quiz turns raw answer records into the per-question, per-participant
// view of the family quiz and mediates answer submission.
package quiz

import (
	"github.com/victornm/familytrip/internal/domain"
)

// ApplyRecordsToQuestions builds the aggregate of every question from records.
// It is pure and total: records for unknown questions or participants outside
// the roster are ignored, and duplicate keys resolve to the latest record
// regardless of their order in the slice.
func ApplyRecordsToQuestions(questions []domain.Question, roster domain.Roster, records []domain.AnswerRecord) []domain.QuestionAggregate {
	latest := latestByKey(records, roster)

	out := make([]domain.QuestionAggregate, 0, len(questions))
	for _, q := range questions {
		agg := domain.QuestionAggregate{
			Question: q,
			Entries:  make(map[int]domain.AnswerEntry),
		}
		for f := 0; f < roster.Size(); f++ {
			rec, ok := latest[domain.AnswerKey{QuestionID: q.ID, FamilyIndex: f}]
			if !ok {
				continue
			}
			agg.Entries[f] = entryOf(rec)
		}
		agg.FullySolved = fullySolved(agg, roster.Size())
		out = append(out, agg)
	}

	return out
}

func latestByKey(records []domain.AnswerRecord, roster domain.Roster) map[domain.AnswerKey]domain.AnswerRecord {
	latest := make(map[domain.AnswerKey]domain.AnswerRecord, len(records))
	for _, rec := range records {
		if !roster.Has(rec.FamilyIndex) {
			continue
		}
		if cur, ok := latest[rec.Key()]; ok && !supersedes(rec, cur) {
			continue
		}
		latest[rec.Key()] = rec
	}
	return latest
}

// supersedes reports whether a is strictly newer than b for the same key.
// A correct answer is final, so it outranks any incorrect one.
func supersedes(a, b domain.AnswerRecord) bool {
	if a.IsCorrect != b.IsCorrect {
		return a.IsCorrect
	}
	if a.Attempts != b.Attempts {
		return a.Attempts > b.Attempts
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.AnswerKey > b.AnswerKey
}

// attemptsOf is the number of attempts a stored record proves. Records from
// before attempt tracking still prove one.
func attemptsOf(rec domain.AnswerRecord) int {
	return max(rec.Attempts, 1)
}

func entryOf(rec domain.AnswerRecord) domain.AnswerEntry {
	return domain.AnswerEntry{
		FamilyIndex: rec.FamilyIndex,
		UserName:    rec.UserName,
		AnswerKey:   rec.AnswerKey,
		IsCorrect:   rec.IsCorrect,
		Points:      rec.PointsOrZero(),
		Attempts:    attemptsOf(rec),
	}
}

func fullySolved(agg domain.QuestionAggregate, rosterSize int) bool {
	if rosterSize == 0 || len(agg.Entries) < rosterSize {
		return false
	}
	for f := 0; f < rosterSize; f++ {
		if e, ok := agg.Entries[f]; !ok || !e.IsCorrect {
			return false
		}
	}
	return true
}
