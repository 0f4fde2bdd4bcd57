package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Participant is one member of the family roster. It is identified by its
// position in the roster (the family index).
type Participant struct {
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role" yaml:"role"`
	Emoji string `json:"emoji,omitempty" yaml:"emoji"`
}

// Roster is the fixed list of participants plus the member allowed to run
// operator actions.
type Roster struct {
	Participants []Participant `json:"participants"`
	Operator     int           `json:"operator"`
}

func (r Roster) Size() int { return len(r.Participants) }

// Has reports whether familyIndex points into the roster.
func (r Roster) Has(familyIndex int) bool {
	return familyIndex >= 0 && familyIndex < len(r.Participants)
}

// Name returns the display name of a participant or an empty string.
func (r Roster) Name(familyIndex int) string {
	if !r.Has(familyIndex) {
		return ""
	}
	return r.Participants[familyIndex].Name
}

// Question is an immutable quiz question definition.
type Question struct {
	ID            int               `json:"id" yaml:"id"`
	Day           int               `json:"day" yaml:"day"`
	Text          string            `json:"question" yaml:"question"`
	Answers       map[string]string `json:"answers" yaml:"answers"`
	CorrectAnswer string            `json:"-" yaml:"correctAnswer"`
	PlaceName     string            `json:"placeName,omitempty" yaml:"placeName"`
}

// HasAnswer reports whether key is one of the question's options.
func (q Question) HasAnswer(key string) bool {
	_, ok := q.Answers[key]
	return ok
}

// AnswerKey identifies the single answer slot of a participant for a question.
type AnswerKey struct {
	QuestionID  int
	FamilyIndex int
}

// AnswerRecord is the latest answer a participant submitted for a question.
// There is at most one record per AnswerKey; a new submission replaces it.
type AnswerRecord struct {
	QuestionID  int                 `json:"questionId"`
	FamilyIndex int                 `json:"familyIndex"`
	UserName    string              `json:"userName"`
	AnswerKey   string              `json:"answerKey"`
	IsCorrect   bool                `json:"isCorrect"`
	Points      decimal.NullDecimal `json:"points"`
	// Attempts is the attempt number of this submission. Zero means the
	// record was written before attempts were tracked.
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

func (r AnswerRecord) Key() AnswerKey {
	return AnswerKey{QuestionID: r.QuestionID, FamilyIndex: r.FamilyIndex}
}

// PointsOrZero returns the awarded points, treating missing points as zero.
func (r AnswerRecord) PointsOrZero() decimal.Decimal {
	if !r.Points.Valid {
		return decimal.Zero
	}
	return r.Points.Decimal
}

// AnswerEntry is one participant's state for a question in an aggregate.
type AnswerEntry struct {
	FamilyIndex int             `json:"familyIndex"`
	UserName    string          `json:"userName"`
	AnswerKey   string          `json:"answerKey"`
	IsCorrect   bool            `json:"isCorrect"`
	Points      decimal.Decimal `json:"points"`
	Attempts    int             `json:"attempts"`
	// Pending is set while a local submission has not been confirmed by the store.
	Pending bool `json:"pending"`
}

// QuestionAggregate is the derived per-question view. It is never persisted.
type QuestionAggregate struct {
	Question    Question            `json:"question"`
	Entries     map[int]AnswerEntry `json:"entries"`
	FullySolved bool                `json:"fullySolved"`
}

// ParticipantScore is the quiz point total of one participant.
type ParticipantScore struct {
	FamilyIndex int             `json:"familyIndex"`
	Name        string          `json:"name"`
	Points      decimal.Decimal `json:"points"`
	Solved      int             `json:"solved"`
}

// QuizView is the snapshot handed to the presentation layer.
type QuizView struct {
	Questions []QuestionAggregate `json:"questions"`
	Scores    []ParticipantScore  `json:"scores"`
	Complete  bool                `json:"complete"`
}

// Media is a photo attached to a diary post.
type Media struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// DiaryPost is an entry in the shared trip diary.
type DiaryPost struct {
	PostID     string              `json:"id"`
	AuthorID   string              `json:"authorId"`
	AuthorName string              `json:"authorName"`
	Content    string              `json:"content"`
	Emoji      string              `json:"emoji"`
	Media      *Media              `json:"media,omitempty"`
	Points     decimal.NullDecimal `json:"points"`
	CreateTime time.Time           `json:"timestamp"`
}
