// Package backfill assigns retroactive points to records written before
// scoring existed.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/familytrip/internal/answer"
	"github.com/victornm/familytrip/internal/diary"
	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
	"github.com/victornm/familytrip/internal/scoring"
	"github.com/victornm/familytrip/internal/telemetry"
)

const defaultConcurrency = 8

type DiaryRepository interface {
	ListChronological(ctx context.Context) ([]domain.DiaryPost, error)
	SetPoints(ctx context.Context, postID string, points decimal.Decimal) (bool, error)
}

type AnswerStore interface {
	GetAll(ctx context.Context) ([]domain.AnswerRecord, error)
	CreditLegacy(ctx context.Context, key domain.AnswerKey, points decimal.Decimal) (bool, error)
}

type Catalog interface {
	Roster() domain.Roster
	Question(id int) (domain.Question, bool)
}

type Config struct {
	Diary   DiaryRepository
	Answers AnswerStore
	Catalog Catalog
	// Concurrency bounds the number of writes in flight. Defaults to 8.
	Concurrency int
}

type Job struct {
	diary       DiaryRepository
	answers     AnswerStore
	catalog     Catalog
	concurrency int
}

func NewJob(c Config) *Job {
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Job{
		diary:       c.Diary,
		answers:     c.Answers,
		catalog:     c.Catalog,
		concurrency: concurrency,
	}
}

type RunRequest struct {
	// Operator is the family index of whoever triggered the run.
	Operator int
}

// Report summarizes a run. Skipped records could not be classified safely
// and were left untouched.
type Report struct {
	DiaryScanned   int      `json:"diaryScanned"`
	DiaryUpdated   int      `json:"diaryUpdated"`
	AnswersScanned int      `json:"answersScanned"`
	AnswersUpdated int      `json:"answersUpdated"`
	Skipped        int      `json:"skipped"`
	SkippedIDs     []string `json:"skippedIds,omitempty"`
}

// Run scores legacy diary posts by their daily rank and credits legacy
// correct answers. Every write is conditional on the record still lacking
// points, so running it again, or alongside live traffic, changes nothing
// that already carries a value.
func (j *Job) Run(ctx context.Context, req RunRequest) (*Report, error) {
	if req.Operator != j.catalog.Roster().Operator {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("participant %d may not run the backfill", req.Operator))
	}

	report := &Report{}
	if err := j.backfillDiary(ctx, report); err != nil {
		return nil, err
	}
	if err := j.backfillAnswers(ctx, report); err != nil {
		return nil, err
	}

	telemetry.BackfillUpdates.WithLabelValues("diary_posts").Add(float64(report.DiaryUpdated))
	telemetry.BackfillUpdates.WithLabelValues("quiz_answers").Add(float64(report.AnswersUpdated))
	telemetry.BackfillSkipped.Add(float64(report.Skipped))

	slog.InfoContext(ctx, "backfill: finished",
		"diary_scanned", report.DiaryScanned,
		"diary_updated", report.DiaryUpdated,
		"answers_scanned", report.AnswersScanned,
		"answers_updated", report.AnswersUpdated,
		"skipped", report.Skipped,
	)

	return report, nil
}

type diaryUpdate struct {
	postID string
	points decimal.Decimal
}

func (j *Job) backfillDiary(ctx context.Context, report *Report) error {
	posts, err := j.diary.ListChronological(ctx)
	if err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithMessagef("list diary posts"), errors.WithCause(err))
	}
	report.DiaryScanned = len(posts)

	var updates []diaryUpdate
	ranks := make(map[string]int) // author and day -> posts seen
	for _, p := range posts {
		if p.CreateTime.IsZero() || p.AuthorID == "" {
			report.skip("diary_posts/" + p.PostID)
			continue
		}

		key := p.AuthorID + "/" + diary.Day(p.CreateTime)
		rank := ranks[key]
		ranks[key]++

		// Scored posts keep their value but still count towards the rank.
		if p.Points.Valid {
			continue
		}

		hasPhoto := p.Media != nil && p.Media.URL != ""
		updates = append(updates, diaryUpdate{
			postID: p.PostID,
			points: scoring.DiaryPoints(rank, hasPhoto, scoring.HasCaption(p.Content)),
		})
	}

	n, err := j.write(ctx, len(updates), func(ctx context.Context, i int) (bool, error) {
		return j.diary.SetPoints(ctx, updates[i].postID, updates[i].points)
	})
	report.DiaryUpdated = n
	if err != nil {
		return errors.New(errors.CodeUnavailable, errors.WithMessagef("write diary points"), errors.WithCause(err))
	}

	return nil
}

func (j *Job) backfillAnswers(ctx context.Context, report *Report) error {
	records, err := j.answers.GetAll(ctx)
	if err != nil {
		return err
	}
	report.AnswersScanned = len(records)

	roster := j.catalog.Roster()

	var keys []domain.AnswerKey
	for _, rec := range records {
		if _, ok := j.catalog.Question(rec.QuestionID); !ok || !roster.Has(rec.FamilyIndex) {
			report.skip(fmt.Sprintf("quiz_answers/%d_%d", rec.QuestionID, rec.FamilyIndex))
			continue
		}
		if answer.IsLegacyUnscored(rec) {
			keys = append(keys, rec.Key())
		}
	}

	n, err := j.write(ctx, len(keys), func(ctx context.Context, i int) (bool, error) {
		return j.answers.CreditLegacy(ctx, keys[i], scoring.LegacyAnswerCredit)
	})
	report.AnswersUpdated = n
	return err
}

// write runs n conditional writes with bounded concurrency and counts the
// ones that changed a record.
func (j *Job) write(ctx context.Context, n int, fn func(ctx context.Context, i int) (bool, error)) (int, error) {
	var (
		mu      sync.Mutex
		changed int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ok, err := fn(ctx, i)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				changed++
				mu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	return changed, err
}

func (r *Report) skip(id string) {
	r.Skipped++
	r.SkippedIDs = append(r.SkippedIDs, id)
}
