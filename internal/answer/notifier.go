package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/event"
)

// Notifier carries "something changed" signals from writers to subscribers.
// Signals may be coalesced or redelivered; they carry no snapshot.
type Notifier interface {
	Notify(ctx context.Context, rec domain.AnswerRecord) error
	// Listen returns a signal channel and a func that stops listening.
	Listen(ctx context.Context) (<-chan struct{}, func(), error)
}

// RedisNotifier fans change signals out across processes over Redis pub/sub.
type RedisNotifier struct {
	redis   redis.UniversalClient
	channel string
}

func NewRedisNotifier(r redis.UniversalClient, prefix string) *RedisNotifier {
	return &RedisNotifier{
		redis:   r,
		channel: fmt.Sprintf("%s:quiz_answers", prefix),
	}
}

type changeMessage struct {
	QuestionID  int `json:"question_id"`
	FamilyIndex int `json:"family_index"`
}

func (n *RedisNotifier) Notify(ctx context.Context, rec domain.AnswerRecord) error {
	b, err := json.Marshal(changeMessage{QuestionID: rec.QuestionID, FamilyIndex: rec.FamilyIndex})
	if err != nil {
		return fmt.Errorf("pubsub: marshal change: %w", err)
	}

	return n.redis.Publish(ctx, n.channel, b).Err()
}

func (n *RedisNotifier) Listen(ctx context.Context) (<-chan struct{}, func(), error) {
	sub := n.redis.Subscribe(ctx, n.channel)

	// Wait for the subscription to be confirmed so no signal published after
	// Listen returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("pubsub: subscribe %s: %w", n.channel, err)
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer close(signals)
		for msg := range sub.Channel() {
			slog.DebugContext(ctx, "pubsub: answers changed", "payload", msg.Payload)
			select {
			case signals <- struct{}{}:
			default:
			}
		}
	}()

	return signals, func() { _ = sub.Close() }, nil
}

// BusNotifier signals subscribers inside a single process through the event bus.
type BusNotifier struct {
	eb *event.Bus
}

func NewBusNotifier(eb *event.Bus) *BusNotifier {
	return &BusNotifier{eb: eb}
}

func (n *BusNotifier) Notify(ctx context.Context, rec domain.AnswerRecord) error {
	n.eb.Publish(ctx, domain.EventAnswersChanged{Record: rec})
	return nil
}

// Listen never closes the returned channel; callers stop reading once they cancel.
func (n *BusNotifier) Listen(_ context.Context) (<-chan struct{}, func(), error) {
	signals := make(chan struct{}, 1)
	unsubscribe := n.eb.Subscribe(domain.EventNameAnswersChanged, func(ctx context.Context, e event.Event) error {
		select {
		case signals <- struct{}{}:
		default:
		}
		return nil
	})

	return signals, unsubscribe, nil
}
