package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuizSubmissions counts answer submissions by outcome.
	QuizSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "familytrip",
		Subsystem: "quiz",
		Name:      "submissions_total",
		Help:      "Quiz answer submissions by result (correct, wrong, rejected, failed).",
	}, []string{"result"})

	StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "familytrip",
		Subsystem: "answer_store",
		Name:      "failures_total",
		Help:      "Failed answer store operations.",
	}, []string{"op"})

	DiaryPosts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "familytrip",
		Subsystem: "diary",
		Name:      "posts_total",
		Help:      "Diary posts created.",
	})

	BackfillUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "familytrip",
		Subsystem: "backfill",
		Name:      "updates_total",
		Help:      "Records given retroactive points, by collection.",
	}, []string{"collection"})

	BackfillSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "familytrip",
		Subsystem: "backfill",
		Name:      "skipped_total",
		Help:      "Records the backfill could not classify.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "familytrip",
		Subsystem: "notify",
		Name:      "messages_total",
		Help:      "Chat notifications by result.",
	}, []string{"result"})
)
