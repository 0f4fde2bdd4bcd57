package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/familytrip/internal/answer"
	"github.com/victornm/familytrip/internal/catalog"
	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/event"
	"github.com/victornm/familytrip/internal/quiz"
	"github.com/victornm/familytrip/internal/realtime"
)

func TestChannel_PropagatesToOtherDevices(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	cat := newCatalog(t)

	phone := quiz.NewEngine(quiz.Config{Catalog: cat, Store: store})
	tablet := quiz.NewEngine(quiz.Config{Catalog: cat, Store: store})

	ch := realtime.NewChannel(realtime.Config{Store: store, Engine: tablet})
	require.NoError(t, ch.Start(ctx))
	t.Cleanup(ch.Stop)

	views, cancel := ch.Watch()
	defer cancel()

	_, err := phone.Submit(ctx, quiz.SubmitAnswerRequest{QuestionID: 1, FamilyIndex: 2, AnswerKey: "b"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for {
			select {
			case v := <-views:
				if e, ok := v.Questions[0].Entries[2]; ok && e.IsCorrect {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, tablet.Attempts(1, 2))
	agg, _ := tablet.Question(1)
	assert.Equal(t, "3", agg.Entries[2].Points.String())
}

func TestChannel_WatchDeliversCurrentView(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	e := quiz.NewEngine(quiz.Config{Catalog: newCatalog(t), Store: store})

	_, err := e.Submit(ctx, quiz.SubmitAnswerRequest{QuestionID: 1, FamilyIndex: 0, AnswerKey: "a"})
	require.NoError(t, err)

	ch := realtime.NewChannel(realtime.Config{Store: store, Engine: e})
	views, cancel := ch.Watch()
	defer cancel()

	v := <-views
	require.Len(t, v.Questions, 1)
	assert.Equal(t, "a", v.Questions[0].Entries[0].AnswerKey)
	assert.False(t, v.Complete)
}

func TestChannel_SlowWatcherKeepsLatest(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	e := quiz.NewEngine(quiz.Config{Catalog: newCatalog(t), Store: store})

	ch := realtime.NewChannel(realtime.Config{Store: store, Engine: e, Buffer: 1})
	views, cancel := ch.Watch()
	defer cancel()

	for f := 0; f < 3; f++ {
		_, err := e.Submit(ctx, quiz.SubmitAnswerRequest{QuestionID: 1, FamilyIndex: f, AnswerKey: "b"})
		require.NoError(t, err)
		ch.Broadcast()
	}

	v := <-views
	assert.Len(t, v.Questions[0].Entries, 3, "only the newest view is queued")
	assert.True(t, v.Complete)
}

func TestChannel_CancelAndStop(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	e := quiz.NewEngine(quiz.Config{Catalog: newCatalog(t), Store: store})

	ch := realtime.NewChannel(realtime.Config{Store: store, Engine: e})
	require.NoError(t, ch.Start(ctx))

	first, cancelFirst := ch.Watch()
	second, _ := ch.Watch()
	require.Equal(t, 2, ch.Watchers())

	cancelFirst()
	cancelFirst()
	require.Equal(t, 1, ch.Watchers())

	// Ranging terminates only once the cancelled watcher is closed.
	for range first {
	}

	ch.Stop()
	require.Equal(t, 0, ch.Watchers())

	for range second {
	}
}

func newStore(t *testing.T) *answer.Store {
	t.Helper()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return answer.NewStore(answer.Config{
		Repository: answer.NewMemoryRepository(),
		Notifier:   answer.NewBusNotifier(eb),
	})
}

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	c, err := catalog.New(
		domain.Roster{Participants: []domain.Participant{{Name: "Dad"}, {Name: "Mom"}, {Name: "Daughter"}}},
		[]domain.Question{
			{ID: 1, Day: 1, Text: "Q1", Answers: map[string]string{"a": "A", "b": "B"}, CorrectAnswer: "b"},
		},
	)
	require.NoError(t, err)
	return c
}
