// Package app drives the quiz flow from upload through configuration, the
// interactive session and the result view.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
	"github.com/victornm/pdfquiz/internal/event"
	"github.com/victornm/pdfquiz/internal/extract"
	"github.com/victornm/pdfquiz/internal/library"
	"github.com/victornm/pdfquiz/internal/queue"
	"github.com/victornm/pdfquiz/internal/score"
	"github.com/victornm/pdfquiz/internal/session"
)

type View string

const (
	ViewUpload  View = "upload"
	ViewLoading View = "loading"
	ViewConfig  View = "config"
	ViewQuiz    View = "quiz"
	ViewResult  View = "result"
)

// FlaggedPrefix marks library entries saved from flagged questions.
const FlaggedPrefix = "[Flagged] "

type Config struct {
	Text      extract.TextExtractor
	Questions extract.QuestionExtractor
	Library   *library.Service
	Results   *score.Store
	Builder   *queue.Builder
	EventBus  *event.Bus
	Clock     session.Clock
}

// App holds the state of the single active quiz flow.
type App struct {
	text      extract.TextExtractor
	questions extract.QuestionExtractor
	library   *library.Service
	results   *score.Store
	builder   *queue.Builder
	eb        *event.Bus
	clock     session.Clock

	mu       sync.Mutex
	view     View
	master   []domain.Question
	active   []domain.Question
	name     string
	settings domain.Settings
	session  *session.Session
	err      string
	notice   string
}

func New(c Config) *App {
	a := &App{
		text:      c.Text,
		questions: c.Questions,
		library:   c.Library,
		results:   c.Results,
		builder:   c.Builder,
		eb:        c.EventBus,
		clock:     c.Clock,
		view:      ViewUpload,
		settings:  domain.DefaultSettings(),
	}

	if a.builder == nil {
		a.builder = queue.NewBuilder(nil)
	}

	return a
}

type State struct {
	View          View            `json:"view"`
	QuizName      string          `json:"quizName"`
	QuestionCount int             `json:"questionCount"`
	Settings      domain.Settings `json:"settings"`
	Error         string          `json:"error,omitempty"`
	Notice        string          `json:"notice,omitempty"`
}

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	return State{
		View:          a.view,
		QuizName:      a.name,
		QuestionCount: len(a.master),
		Settings:      a.settings,
		Error:         a.err,
		Notice:        a.notice,
	}
}

// DismissMessages clears the error and notice shown to the user.
func (a *App) DismissMessages() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.err, a.notice = "", ""
}

// Upload extracts questions from a PDF file and saves them to the library.
// On failure the flow returns to the upload view and nothing is persisted.
func (a *App) Upload(ctx context.Context, filename string, data []byte) error {
	a.mu.Lock()
	if a.view == ViewLoading {
		a.mu.Unlock()
		return errors.FailedPrecondition("another file is being processed")
	}
	a.closeSession()
	a.view, a.err, a.notice = ViewLoading, "", ""
	a.mu.Unlock()

	qs, err := a.extract(ctx, data)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "app: extract quiz failed", "file", filename, "error", err)
		a.view = ViewUpload
		a.err = userMessage(err)
		return err
	}

	a.master, a.active = qs, qs
	a.name = library.CleanName(filename)
	a.view = ViewConfig

	if _, err := a.library.Save(ctx, a.name, qs); err != nil {
		a.noticeOrLog(ctx, err)
	}

	a.eb.Publish(ctx, domain.EventQuizExtracted{
		QuizName:      a.name,
		QuestionCount: len(qs),
	})

	return nil
}

func (a *App) extract(ctx context.Context, data []byte) ([]domain.Question, error) {
	text, err := a.text.ExtractText(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	qs, err := a.questions.ExtractQuestions(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extract questions: %w", err)
	}

	return qs, nil
}

func (a *App) Library(ctx context.Context) ([]domain.SavedQuiz, error) {
	return a.library.List(ctx)
}

func (a *App) DeleteSaved(ctx context.Context, id string) error {
	return a.library.Delete(ctx, id)
}

// LoadSaved makes a library entry the current quiz and opens the config view.
func (a *App) LoadSaved(ctx context.Context, id string) error {
	q, err := a.library.Get(ctx, id)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.notLoading(); err != nil {
		return err
	}

	a.closeSession()
	a.master, a.active = q.Questions, q.Questions
	a.name = q.Name
	a.view, a.err, a.notice = ViewConfig, "", ""
	return nil
}

// Start begins a session over the active questions with settings.
func (a *App) Start(ctx context.Context, settings domain.Settings) (*session.Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, errors.InvalidArgument("%v", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.view != ViewConfig {
		return nil, errors.FailedPrecondition("no quiz is ready to start")
	}

	a.settings = settings
	return a.startSession(ctx, a.active)
}

// Session returns the running session.
func (a *App) Session() (*session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.view != ViewQuiz || a.session == nil {
		return nil, errors.FailedPrecondition("no quiz in progress")
	}

	return a.session, nil
}

// Finish ends the running session and opens the result view.
func (a *App) Finish(ctx context.Context) (*domain.ResultSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.view != ViewQuiz || a.session == nil {
		return nil, errors.FailedPrecondition("no quiz in progress")
	}

	r, err := a.session.Finish(ctx)
	if err != nil {
		return nil, err
	}

	a.closeSession()
	a.view = ViewResult
	return r, nil
}

type Result struct {
	Snapshot domain.ResultSnapshot `json:"result"`
	Summary  score.Summary         `json:"summary"`
}

// Result returns the last persisted result. A missing result is a NotFound
// error the caller can only recover from with Reset.
func (a *App) Result(ctx context.Context) (*Result, error) {
	r, err := a.results.Load(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{
		Snapshot: *r,
		Summary:  score.Summarize(*r),
	}, nil
}

// RetakeAll starts over with the full question set of the current quiz.
func (a *App) RetakeAll(ctx context.Context) (*session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.master) == 0 {
		return nil, errors.FailedPrecondition("no quiz loaded")
	}

	a.active = a.master
	return a.startSession(ctx, a.active)
}

// RedoMistakes starts a session over the wrong and unanswered questions of
// the last result.
func (a *App) RedoMistakes(ctx context.Context) (*session.Session, error) {
	return a.requeue(ctx, queue.DeriveMistakes)
}

// RedoFlagged starts a session over the flagged questions of the last result.
func (a *App) RedoFlagged(ctx context.Context) (*session.Session, error) {
	return a.requeue(ctx, queue.DeriveFlagged)
}

func (a *App) requeue(ctx context.Context, derive func(domain.ResultSnapshot) ([]domain.Question, error)) (*session.Session, error) {
	r, err := a.results.Load(ctx)
	if err != nil {
		return nil, err
	}

	qs, err := derive(*r)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.notLoading(); err != nil {
		return nil, err
	}

	a.active = qs
	return a.startSession(ctx, qs)
}

// SaveFlagged stores the flagged questions of the last result as a new
// library entry. A full library is reported through the notice, not as an
// error; the returned bool tells whether the entry was saved.
func (a *App) SaveFlagged(ctx context.Context) (bool, error) {
	r, err := a.results.Load(ctx)
	if err != nil {
		return false, err
	}

	qs, err := queue.DeriveFlagged(*r)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	name := a.name
	a.mu.Unlock()

	_, err = a.library.Save(ctx, FlaggedPrefix+name, qs)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		return false, a.noticeOrLog(ctx, err)
	}

	a.notice = fmt.Sprintf("Saved %d flagged questions to the library.", len(qs))
	return true, nil
}

// Reset discards the current quiz and returns to the upload view.
func (a *App) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closeSession()
	a.view = ViewUpload
	a.master, a.active, a.name = nil, nil, ""
	a.err, a.notice = "", ""
}

// Close releases the running session.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closeSession()
}

func (a *App) startSession(ctx context.Context, qs []domain.Question) (*session.Session, error) {
	s, err := session.New(session.Config{
		Questions: qs,
		Settings:  a.settings,
		Builder:   a.builder,
		Results:   a.results,
		EventBus:  a.eb,
		Clock:     a.clock,
	})
	if err != nil {
		return nil, err
	}

	a.closeSession()
	a.session = s
	a.view, a.err, a.notice = ViewQuiz, "", ""

	a.eb.Publish(ctx, domain.EventSessionStarted{
		Settings: a.settings,
		Total:    s.State().Total,
	})

	return s, nil
}

func (a *App) closeSession() {
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
}

func (a *App) notLoading() error {
	if a.view == ViewLoading {
		return errors.FailedPrecondition("a file is being processed")
	}
	return nil
}

func userMessage(err error) string {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		return "could not process the PDF file"
	}
	return e.Message
}

// noticeOrLog turns a full library into a user notice and returns nil.
// Other errors are logged and returned.
func (a *App) noticeOrLog(ctx context.Context, err error) error {
	if errors.Is(err, errors.CodeResourceExhausted) {
		a.notice = errors.Convert(err).Message
		slog.InfoContext(ctx, "app: library full, quiz not saved", "name", a.name)
		return nil
	}

	slog.ErrorContext(ctx, "app: save to library failed", "name", a.name, "error", err)
	return err
}
