package quiz

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
	"github.com/victornm/familytrip/internal/scoring"
	"github.com/victornm/familytrip/internal/telemetry"
)

// Catalog supplies the immutable roster and question definitions.
type Catalog interface {
	Roster() domain.Roster
	Questions() []domain.Question
	Question(id int) (domain.Question, bool)
}

// Store is the durable side of the engine.
type Store interface {
	Put(ctx context.Context, rec domain.AnswerRecord) error
	GetAll(ctx context.Context) ([]domain.AnswerRecord, error)
}

type Config struct {
	Catalog Catalog
	Store   Store
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine keeps one device's view of the quiz: the latest record per
// (question, participant), the running attempt counters and whether the
// whole quiz has been completed.
type Engine struct {
	catalog Catalog
	store   Store
	now     func() time.Time

	mu       sync.Mutex
	slots    map[domain.AnswerKey]slot
	attempts map[domain.AnswerKey]int
	inflight map[domain.AnswerKey]struct{}
	complete bool
}

type slot struct {
	rec     domain.AnswerRecord
	pending bool
}

func NewEngine(c Config) *Engine {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		catalog:  c.Catalog,
		store:    c.Store,
		now:      now,
		slots:    make(map[domain.AnswerKey]slot),
		attempts: make(map[domain.AnswerKey]int),
		inflight: make(map[domain.AnswerKey]struct{}),
	}
}

// Load merges the current store snapshot into the local view.
func (e *Engine) Load(ctx context.Context) error {
	records, err := e.store.GetAll(ctx)
	if err != nil {
		return storeError(err)
	}

	e.ApplySnapshot(records)
	return nil
}

// ApplySnapshot merges a full snapshot. Merging is monotonic per key: a
// snapshot never erases a known record, never replaces a newer local one and
// never turns a correct answer back into a wrong one.
func (e *Engine) ApplySnapshot(records []domain.AnswerRecord) {
	roster := e.catalog.Roster()
	latest := latestByKey(records, roster)

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, rec := range latest {
		if _, ok := e.catalog.Question(key.QuestionID); !ok {
			continue
		}

		if local, ok := e.slots[key]; !ok || !supersedes(local.rec, rec) {
			e.slots[key] = slot{rec: rec}
		}
		if a := attemptsOf(rec); a > e.attempts[key] {
			e.attempts[key] = a
		}
	}

	e.latchCompleteLocked()
}

// Status tells whether a submission has been confirmed by the store.
type Status int

const (
	StatusPending Status = iota + 1
	StatusConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

type SubmitAnswerRequest struct {
	QuestionID  int
	FamilyIndex int
	AnswerKey   string
}

type SubmitAnswerResponse struct {
	Record domain.AnswerRecord
	Status Status
}

// Tentative is a submission applied to the local view but not yet written.
type Tentative struct {
	Record domain.AnswerRecord

	prev         slot
	hadPrev      bool
	prevAttempts int
}

// Submit stages the answer locally, writes it to the store and confirms it.
// On a failed write the local view is rolled back and the error returned.
func (e *Engine) Submit(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	t, err := e.Stage(req)
	if err != nil {
		telemetry.QuizSubmissions.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if err := e.Commit(ctx, t); err != nil {
		telemetry.QuizSubmissions.WithLabelValues("failed").Inc()
		return nil, err
	}

	result := "wrong"
	if t.Record.IsCorrect {
		result = "correct"
	}
	telemetry.QuizSubmissions.WithLabelValues(result).Inc()

	return &SubmitAnswerResponse{Record: t.Record, Status: StatusConfirmed}, nil
}

// Stage validates the submission, scores it and applies it to the local view
// as pending. Every staged submission must be passed to Commit.
func (e *Engine) Stage(req SubmitAnswerRequest) (*Tentative, error) {
	q, ok := e.catalog.Question(req.QuestionID)
	if !ok {
		return nil, errors.Validation("unknown question %d", req.QuestionID)
	}
	roster := e.catalog.Roster()
	if !roster.Has(req.FamilyIndex) {
		return nil, errors.Validation("unknown participant %d", req.FamilyIndex)
	}
	if !q.HasAnswer(req.AnswerKey) {
		return nil, errors.Validation("question %d has no answer %q", req.QuestionID, req.AnswerKey)
	}

	key := domain.AnswerKey{QuestionID: req.QuestionID, FamilyIndex: req.FamilyIndex}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, hadPrev := e.slots[key]
	if hadPrev && prev.rec.IsCorrect {
		return nil, errors.AlreadyAnswered(req.QuestionID, req.FamilyIndex)
	}
	if _, busy := e.inflight[key]; busy {
		return nil, errors.New(errors.CodeAborted,
			errors.WithMessagef("a submission is already in flight: question=%d family=%d", req.QuestionID, req.FamilyIndex))
	}

	attempt := e.attempts[key] + 1
	correct := req.AnswerKey == q.CorrectAnswer

	rec := domain.AnswerRecord{
		QuestionID:  req.QuestionID,
		FamilyIndex: req.FamilyIndex,
		UserName:    roster.Name(req.FamilyIndex),
		AnswerKey:   req.AnswerKey,
		IsCorrect:   correct,
		Points:      decimal.NewNullDecimal(scoring.ScoreForAttempt(attempt, correct)),
		Attempts:    attempt,
		// Stores keep microseconds; truncating keeps the echo comparable.
		Timestamp: e.now().UTC().Truncate(time.Microsecond),
	}

	t := &Tentative{
		Record:       rec,
		prev:         prev,
		hadPrev:      hadPrev,
		prevAttempts: e.attempts[key],
	}

	e.slots[key] = slot{rec: rec, pending: true}
	e.attempts[key] = attempt
	e.inflight[key] = struct{}{}

	return t, nil
}

// Commit writes a staged submission. It confirms the local record on success
// and restores the previous local state on failure.
func (e *Engine) Commit(ctx context.Context, t *Tentative) error {
	err := e.store.Put(ctx, t.Record)

	key := t.Record.Key()

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.inflight, key)

	// A snapshot may have replaced the slot while the write was in flight;
	// it is authoritative then and nothing here should touch it.
	cur := e.slots[key]
	ours := cur.pending && cur.rec.Attempts == t.Record.Attempts && cur.rec.Timestamp.Equal(t.Record.Timestamp)

	if err != nil {
		if ours {
			if t.hadPrev {
				e.slots[key] = t.prev
			} else {
				delete(e.slots, key)
			}
			e.attempts[key] = t.prevAttempts
		}
		return storeError(err)
	}

	if ours {
		e.slots[key] = slot{rec: t.Record}
	}
	e.latchCompleteLocked()
	return nil
}

// Attempts returns how many submissions the participant made for the question.
func (e *Engine) Attempts(questionID, familyIndex int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.attempts[domain.AnswerKey{QuestionID: questionID, FamilyIndex: familyIndex}]
}

// Questions returns the aggregate of every question, in catalog order.
func (e *Engine) Questions() []domain.QuestionAggregate {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.aggregatesLocked(e.catalog.Questions())
}

func (e *Engine) Question(questionID int) (domain.QuestionAggregate, bool) {
	q, ok := e.catalog.Question(questionID)
	if !ok {
		return domain.QuestionAggregate{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.aggregatesLocked([]domain.Question{q})[0], true
}

// IsQuestionFullySolved reports whether every participant answered the question correctly.
func (e *Engine) IsQuestionFullySolved(questionID int) bool {
	agg, ok := e.Question(questionID)
	return ok && agg.FullySolved
}

// IsQuizComplete reports whether every question is fully solved. Once true it
// stays true for the lifetime of the engine.
func (e *Engine) IsQuizComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.latchCompleteLocked()
	return e.complete
}

// Scores sums confirmed and pending points per participant.
func (e *Engine) Scores() []domain.ParticipantScore {
	e.mu.Lock()
	defer e.mu.Unlock()

	return scoresOf(e.catalog.Roster(), e.aggregatesLocked(e.catalog.Questions()))
}

// View returns everything the presentation layer renders.
func (e *Engine) View() domain.QuizView {
	e.mu.Lock()
	defer e.mu.Unlock()

	aggs := e.aggregatesLocked(e.catalog.Questions())
	e.latchCompleteLocked()

	return domain.QuizView{
		Questions: aggs,
		Scores:    scoresOf(e.catalog.Roster(), aggs),
		Complete:  e.complete,
	}
}

func (e *Engine) aggregatesLocked(questions []domain.Question) []domain.QuestionAggregate {
	aggs := ApplyRecordsToQuestions(questions, e.catalog.Roster(), e.recordsLocked(true))
	for i := range aggs {
		for f, entry := range aggs[i].Entries {
			if e.slots[domain.AnswerKey{QuestionID: aggs[i].Question.ID, FamilyIndex: f}].pending {
				entry.Pending = true
				aggs[i].Entries[f] = entry
			}
		}
	}
	return aggs
}

func (e *Engine) recordsLocked(withPending bool) []domain.AnswerRecord {
	records := make([]domain.AnswerRecord, 0, len(e.slots))
	for _, s := range e.slots {
		if s.pending && !withPending {
			continue
		}
		records = append(records, s.rec)
	}
	return records
}

// latchCompleteLocked only looks at confirmed records so that a write that
// later fails can never latch completion.
func (e *Engine) latchCompleteLocked() {
	if e.complete {
		return
	}

	questions := e.catalog.Questions()
	if len(questions) == 0 {
		return
	}
	for _, agg := range ApplyRecordsToQuestions(questions, e.catalog.Roster(), e.recordsLocked(false)) {
		if !agg.FullySolved {
			return
		}
	}
	e.complete = true
}

func scoresOf(roster domain.Roster, aggs []domain.QuestionAggregate) []domain.ParticipantScore {
	scores := make([]domain.ParticipantScore, roster.Size())
	for f, p := range roster.Participants {
		scores[f] = domain.ParticipantScore{FamilyIndex: f, Name: p.Name, Points: decimal.Zero}
	}

	for _, agg := range aggs {
		for f, entry := range agg.Entries {
			scores[f].Points = scores[f].Points.Add(entry.Points)
			if entry.IsCorrect {
				scores[f].Solved++
			}
		}
	}
	return scores
}

func storeError(err error) error {
	if errors.IsCode(err, errors.CodeFailedPrecondition) || errors.IsCode(err, errors.CodeUnavailable) {
		return err
	}
	return errors.StoreUnavailable(err)
}
