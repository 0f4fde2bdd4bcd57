package domain

const (
	EventNameAnswersChanged   = "quiz.answers.changed"
	EventNameDiaryPostCreated = "diary.post.created"
)

// EventAnswersChanged is published after an answer record was durably written.
type EventAnswersChanged struct {
	Record AnswerRecord
}

func (EventAnswersChanged) Name() string { return EventNameAnswersChanged }

type EventDiaryPostCreated struct {
	Post DiaryPost
}

func (EventDiaryPostCreated) Name() string { return EventNameDiaryPostCreated }
