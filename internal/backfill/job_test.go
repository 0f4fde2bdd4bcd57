package backfill_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/familytrip/internal/answer"
	"github.com/victornm/familytrip/internal/backfill"
	"github.com/victornm/familytrip/internal/catalog"
	"github.com/victornm/familytrip/internal/diary"
	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
	"github.com/victornm/familytrip/internal/event"
)

var (
	day      = time.Date(2025, 12, 31, 3, 0, 0, 0, time.UTC)
	unscored = decimal.NullDecimal{}
)

func TestJob_DiaryDailyRank(t *testing.T) {
	photo := &domain.Media{URL: "https://example.com/1.jpg"}

	tests := map[string]struct {
		posts []domain.DiaryPost
		want  map[string]string
	}{
		"same author same day": {
			posts: []domain.DiaryPost{
				post("p1", "0", day, "beach", photo, unscored),
				post("p2", "0", day.Add(time.Hour), "caption only", nil, unscored),
				post("p3", "0", day.Add(2*time.Hour), "", nil, unscored),
				post("p4", "0", day.Add(3*time.Hour), "anything", photo, unscored),
			},
			want: map[string]string{"p1": "3", "p2": "1", "p3": "0.5", "p4": "0.1"},
		},
		"scored posts keep their value and still count": {
			posts: []domain.DiaryPost{
				post("p1", "0", day, "live", photo, points(3)),
				post("p2", "0", day.Add(time.Hour), "legacy", photo, unscored),
				post("p3", "0", day.Add(2*time.Hour), "live", nil, points(0.5)),
				post("p4", "0", day.Add(3*time.Hour), "legacy", photo, unscored),
			},
			want: map[string]string{"p1": "3", "p2": "2", "p3": "0.5", "p4": "0.1"},
		},
		"authors and days are ranked separately": {
			posts: []domain.DiaryPost{
				post("a1", "0", day, "dad", photo, unscored),
				post("b1", "1", day.Add(time.Minute), "mom", photo, unscored),
				post("a2", "0", day.Add(24*time.Hour), "dad next day", photo, unscored),
				post("a3", "0", day.Add(25*time.Hour), "dad again", nil, unscored),
			},
			want: map[string]string{"a1": "3", "b1": "3", "a2": "3", "a3": "1"},
		},
		"input order does not matter": {
			posts: []domain.DiaryPost{
				post("late", "0", day.Add(time.Hour), "second", photo, unscored),
				post("early", "0", day, "first", photo, unscored),
			},
			want: map[string]string{"early": "3", "late": "2"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			posts := diary.NewMemoryRepository(tt.posts...)
			job := newJob(t, posts, answer.NewMemoryRepository())

			first, err := job.Run(ctx, backfill.RunRequest{Operator: 0})
			require.NoError(t, err)
			after := pointsByID(t, posts)
			assert.Equal(t, tt.want, after)

			second, err := job.Run(ctx, backfill.RunRequest{Operator: 0})
			require.NoError(t, err)
			assert.Zero(t, second.DiaryUpdated, "second run changes nothing")
			assert.Equal(t, after, pointsByID(t, posts))
			assert.Equal(t, first.DiaryScanned, second.DiaryScanned)
		})
	}
}

func TestJob_LegacyAnswers(t *testing.T) {
	ctx := context.Background()
	ts := day

	answers := answer.NewMemoryRepository(
		// Legacy correct answers without points.
		domain.AnswerRecord{QuestionID: 1, FamilyIndex: 0, AnswerKey: "b", IsCorrect: true, Timestamp: ts},
		domain.AnswerRecord{QuestionID: 1, FamilyIndex: 1, AnswerKey: "b", IsCorrect: true, Points: points(0), Timestamp: ts},
		// Legacy wrong answer.
		domain.AnswerRecord{QuestionID: 1, FamilyIndex: 2, AnswerKey: "a", Timestamp: ts},
		// Scored live answer.
		domain.AnswerRecord{QuestionID: 2, FamilyIndex: 0, AnswerKey: "a", IsCorrect: true, Points: points(2), Attempts: 2, Timestamp: ts},
		// Correct with zero points, whatever the attempt number.
		domain.AnswerRecord{QuestionID: 2, FamilyIndex: 1, AnswerKey: "a", IsCorrect: true, Points: points(0), Attempts: 4, Timestamp: ts},
		// Unknown question.
		domain.AnswerRecord{QuestionID: 99, FamilyIndex: 0, AnswerKey: "a", IsCorrect: true, Timestamp: ts},
	)
	job := newJob(t, diary.NewMemoryRepository(), answers)

	report, err := job.Run(ctx, backfill.RunRequest{Operator: 0})
	require.NoError(t, err)
	assert.Equal(t, 6, report.AnswersScanned)
	assert.Equal(t, 3, report.AnswersUpdated)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"quiz_answers/99_0"}, report.SkippedIDs)

	records, err := answers.GetAll(ctx)
	require.NoError(t, err)
	got := make(map[domain.AnswerKey]string)
	for _, rec := range records {
		got[rec.Key()] = rec.PointsOrZero().String()
	}
	assert.Equal(t, map[domain.AnswerKey]string{
		{QuestionID: 1, FamilyIndex: 0}:  "3",
		{QuestionID: 1, FamilyIndex: 1}:  "3",
		{QuestionID: 1, FamilyIndex: 2}:  "0",
		{QuestionID: 2, FamilyIndex: 0}:  "2",
		{QuestionID: 2, FamilyIndex: 1}:  "3",
		{QuestionID: 99, FamilyIndex: 0}: "0",
	}, got)

	report, err = job.Run(ctx, backfill.RunRequest{Operator: 0})
	require.NoError(t, err)
	assert.Zero(t, report.AnswersUpdated)
}

func TestJob_SkipsUnclassifiablePosts(t *testing.T) {
	ctx := context.Background()
	posts := diary.NewMemoryRepository(
		post("no-time", "0", time.Time{}, "hello", nil, unscored),
		post("no-author", "", day, "hello", nil, unscored),
		post("ok", "0", day.Add(time.Hour), "hello", nil, unscored),
	)
	job := newJob(t, posts, answer.NewMemoryRepository())

	report, err := job.Run(ctx, backfill.RunRequest{Operator: 0})
	require.NoError(t, err)
	assert.Equal(t, 3, report.DiaryScanned)
	assert.Equal(t, 1, report.DiaryUpdated)
	assert.Equal(t, 2, report.Skipped)
	assert.ElementsMatch(t, []string{"diary_posts/no-time", "diary_posts/no-author"}, report.SkippedIDs)

	got := pointsByID(t, posts)
	assert.Equal(t, "2", got["ok"], "skipped posts do not consume a rank")
	assert.NotContains(t, got, "no-time")
}

func TestJob_OperatorOnly(t *testing.T) {
	posts := diary.NewMemoryRepository(post("p1", "0", day, "hello", nil, unscored))
	job := newJob(t, posts, answer.NewMemoryRepository())

	_, err := job.Run(context.Background(), backfill.RunRequest{Operator: 1})
	require.True(t, errors.IsCode(err, errors.CodePermissionDenied), "got %v", err)
	assert.Empty(t, pointsByID(t, posts))
}

func TestJob_WriteFailure(t *testing.T) {
	posts := &failingDiary{MemoryRepository: diary.NewMemoryRepository(post("p1", "0", day, "hello", nil, unscored))}
	job := newJob(t, posts, answer.NewMemoryRepository())

	_, err := job.Run(context.Background(), backfill.RunRequest{Operator: 0})
	require.True(t, errors.IsCode(err, errors.CodeUnavailable), "got %v", err)
}

func newJob(t *testing.T, posts backfill.DiaryRepository, answers answer.Repository) *backfill.Job {
	t.Helper()

	cat, err := catalog.New(
		domain.Roster{
			Participants: []domain.Participant{{Name: "Dad"}, {Name: "Mom"}, {Name: "Daughter"}},
			Operator:     0,
		},
		[]domain.Question{
			{ID: 1, Day: 1, Text: "Q1", Answers: map[string]string{"a": "A", "b": "B"}, CorrectAnswer: "b"},
			{ID: 2, Day: 2, Text: "Q2", Answers: map[string]string{"a": "A", "b": "B"}, CorrectAnswer: "a"},
		},
	)
	require.NoError(t, err)

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return backfill.NewJob(backfill.Config{
		Diary: posts,
		Answers: answer.NewStore(answer.Config{
			Repository: answers,
			Notifier:   answer.NewBusNotifier(eb),
		}),
		Catalog:     cat,
		Concurrency: 2,
	})
}

func post(id, author string, at time.Time, content string, media *domain.Media, pts decimal.NullDecimal) domain.DiaryPost {
	return domain.DiaryPost{
		PostID:     id,
		AuthorID:   author,
		AuthorName: "author " + author,
		Content:    content,
		Media:      media,
		Points:     pts,
		CreateTime: at,
	}
}

func points(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}

func pointsByID(t *testing.T, repo backfill.DiaryRepository) map[string]string {
	t.Helper()

	posts, err := repo.ListChronological(context.Background())
	require.NoError(t, err)

	out := make(map[string]string)
	for _, p := range posts {
		if p.Points.Valid {
			out[p.PostID] = p.Points.Decimal.String()
		}
	}
	return out
}

type failingDiary struct {
	*diary.MemoryRepository
}

func (f *failingDiary) SetPoints(context.Context, string, decimal.Decimal) (bool, error) {
	return false, stderrors.New("deadline exceeded")
}
