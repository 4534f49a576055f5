package domain

const (
	EventNameQuizExtracted   = "quiz.extracted"
	EventNameSessionStarted  = "session.started"
	EventNameSessionAdvanced = "session.advanced"
	EventNameSessionFinished = "session.finished"
	EventNameLibraryChanged  = "library.changed"
)

type EventQuizExtracted struct {
	QuizName      string
	QuestionCount int
}

func (EventQuizExtracted) Name() string { return EventNameQuizExtracted }

type EventSessionStarted struct {
	Settings Settings
	Total    int
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

// EventSessionAdvanced is published when auto-advance moves the session on
// without a user action.
type EventSessionAdvanced struct {
	Index int
	Total int
}

func (EventSessionAdvanced) Name() string { return EventNameSessionAdvanced }

type EventSessionFinished struct {
	Mode   Mode
	Result ResultSnapshot
}

func (EventSessionFinished) Name() string { return EventNameSessionFinished }

type EventLibraryChanged struct {
	Count int
}

func (EventLibraryChanged) Name() string { return EventNameLibraryChanged }
