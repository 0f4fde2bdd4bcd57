package answer

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
	"github.com/victornm/familytrip/internal/telemetry"
)

type Config struct {
	Repository Repository
	Notifier   Notifier
}

// Store is the answer record store shared by every participant.
type Store struct {
	repo     Repository
	notifier Notifier
	sf       singleflight.Group
	// gen is bumped on every write and every change signal. Shared snapshot
	// reads are keyed by it so no reader joins a read started before a change.
	gen atomic.Uint64
}

func NewStore(c Config) *Store {
	return &Store{
		repo:     c.Repository,
		notifier: c.Notifier,
	}
}

// Put durably writes rec and then signals subscribers. It does not retry.
func (s *Store) Put(ctx context.Context, rec domain.AnswerRecord) error {
	if err := s.repo.Put(ctx, rec); err != nil {
		if errors.IsCode(err, errors.CodeFailedPrecondition) {
			return err
		}
		telemetry.StoreFailures.WithLabelValues("put").Inc()
		return errors.StoreUnavailable(err)
	}
	s.gen.Add(1)

	// The record is durable at this point; a lost signal only delays other devices.
	if err := s.notifier.Notify(ctx, rec); err != nil {
		slog.WarnContext(ctx, "answer: notify change failed",
			"question_id", rec.QuestionID,
			"family_index", rec.FamilyIndex,
			"error", err,
		)
	}

	return nil
}

func (s *Store) GetAll(ctx context.Context) ([]domain.AnswerRecord, error) {
	records, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(records), nil
}

func (s *Store) GetForQuestion(ctx context.Context, questionID int) ([]domain.AnswerRecord, error) {
	records, err := s.repo.GetForQuestion(ctx, questionID)
	if err != nil {
		telemetry.StoreFailures.WithLabelValues("get").Inc()
		return nil, errors.StoreUnavailable(err)
	}
	return records, nil
}

// CreditLegacy credits a legacy correct answer and signals subscribers when
// the record changed.
func (s *Store) CreditLegacy(ctx context.Context, key domain.AnswerKey, points decimal.Decimal) (bool, error) {
	changed, err := s.repo.CreditLegacy(ctx, key, points)
	if err != nil {
		telemetry.StoreFailures.WithLabelValues("credit").Inc()
		return false, errors.StoreUnavailable(err)
	}

	if changed {
		s.gen.Add(1)
		rec := domain.AnswerRecord{QuestionID: key.QuestionID, FamilyIndex: key.FamilyIndex}
		if err := s.notifier.Notify(ctx, rec); err != nil {
			slog.WarnContext(ctx, "answer: notify change failed", "error", err)
		}
	}

	return changed, nil
}

// Callback receives a full snapshot. Each delivery replaces the previous one.
type Callback func(records []domain.AnswerRecord)

// SubscribeAll delivers the current snapshot of every record and a fresh one
// after each change. Deliveries for one subscription never overlap.
func (s *Store) SubscribeAll(ctx context.Context, cb Callback) (unsubscribe func(), err error) {
	return s.subscribe(ctx, nil, cb)
}

// SubscribeForQuestion is SubscribeAll restricted to one question.
func (s *Store) SubscribeForQuestion(ctx context.Context, questionID int, cb Callback) (unsubscribe func(), err error) {
	return s.subscribe(ctx, func(rec domain.AnswerRecord) bool { return rec.QuestionID == questionID }, cb)
}

func (s *Store) subscribe(ctx context.Context, keep func(domain.AnswerRecord) bool, cb Callback) (func(), error) {
	signals, stopListen, err := s.notifier.Listen(ctx)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	initial, err := s.filtered(ctx, keep)
	if err != nil {
		stopListen()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		cb(initial)
		for {
			select {
			case <-done:
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
			}
			s.gen.Add(1)

			records, err := s.filtered(context.WithoutCancel(ctx), keep)
			if err != nil {
				// Keep the previous delivery; the next signal retries.
				slog.ErrorContext(ctx, "answer: refresh snapshot failed", "error", err)
				continue
			}

			select {
			case <-done:
				return
			default:
				cb(records)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			stopListen()
		})
	}, nil
}

func (s *Store) filtered(ctx context.Context, keep func(domain.AnswerRecord) bool) ([]domain.AnswerRecord, error) {
	all, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AnswerRecord, 0, len(all))
	for _, rec := range all {
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// snapshot shares one repository read between concurrent callers of the
// same generation. The read does not inherit the first caller's cancellation.
func (s *Store) snapshot(ctx context.Context) ([]domain.AnswerRecord, error) {
	key := strconv.FormatUint(s.gen.Load(), 10)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.repo.GetAll(context.WithoutCancel(ctx))
	})
	if err != nil {
		telemetry.StoreFailures.WithLabelValues("get").Inc()
		return nil, errors.StoreUnavailable(err)
	}
	return v.([]domain.AnswerRecord), nil
}
