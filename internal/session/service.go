// Package session runs one interactive quiz over a working queue: answers,
// flags, navigation, auto-advance and finishing.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
	"github.com/victornm/pdfquiz/internal/event"
	"github.com/victornm/pdfquiz/internal/queue"
	"github.com/victornm/pdfquiz/internal/score"
)

// ErrFinished is returned by operations that need an in-progress session.
var ErrFinished = errors.New(errors.CodeFailedPrecondition,
	errors.WithMessagef("session is already finished"))

// ErrClosed is returned by every mutating operation once the session is closed.
var ErrClosed = errors.New(errors.CodeFailedPrecondition,
	errors.WithMessagef("session is closed"))

// Clock schedules the auto-advance callback.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Config struct {
	// Questions is the source set. Restart always rebuilds from it.
	Questions []domain.Question
	Settings  domain.Settings
	Builder   *queue.Builder
	Results   *score.Store
	EventBus  *event.Bus
	Clock     Clock
}

// Session is the state machine of one quiz run. It is safe for concurrent
// use; the auto-advance timer fires on its own goroutine.
type Session struct {
	source   []domain.Question
	settings domain.Settings
	builder  *queue.Builder
	results  *score.Store
	eb       *event.Bus
	clock    Clock

	mu        sync.Mutex
	questions []domain.Question
	answers   []domain.Answer
	flags     *domain.FlagSet
	pos       int
	finished  bool
	closed    bool

	// At most one auto-advance is armed. timerGen changes on every cancel so a
	// callback that raced with Stop sees it is stale.
	timer    Timer
	timerGen uint64
}

func New(c Config) (*Session, error) {
	if err := c.Settings.Validate(); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("session: %v", err))
	}

	s := &Session{
		source:   domain.CloneQuestions(c.Questions),
		settings: c.Settings,
		builder:  c.Builder,
		results:  c.Results,
		eb:       c.EventBus,
		clock:    c.Clock,
	}

	if s.builder == nil {
		s.builder = queue.NewBuilder(nil)
	}
	if s.clock == nil {
		s.clock = realClock{}
	}

	q, err := s.builder.Build(s.source, s.settings)
	if err != nil {
		return nil, err
	}
	s.load(q, q.Flags)

	return s, nil
}

func (s *Session) Settings() domain.Settings {
	return s.settings
}

// SelectOption answers the current question. In practice mode the first
// answer sticks and later calls return false without error.
func (s *Session) SelectOption(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return false, err
	}

	q := s.questions[s.pos]
	if index < 0 || index >= len(q.Options) {
		return false, errors.InvalidArgument("option index %d out of range [0, %d)", index, len(q.Options))
	}

	if s.settings.Mode == domain.ModePractice && s.answers[s.pos].Answered() {
		return false, nil
	}

	s.answers[s.pos] = domain.AnswerOf(index)

	if d := s.settings.AutoAdvance(); d > 0 {
		s.armAutoAdvance(d)
	}

	return true, nil
}

// ToggleFlag flips the flag on id and returns whether it is now flagged.
func (s *Session) ToggleFlag(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return false, err
	}

	return s.flags.Toggle(id), nil
}

// GoTo jumps to index. Any pending auto-advance is cancelled.
func (s *Session) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	if index < 0 || index >= len(s.questions) {
		return errors.InvalidArgument("question index %d out of range [0, %d)", index, len(s.questions))
	}

	s.cancelAutoAdvance()
	s.pos = index
	return nil
}

// Next moves one question forward. It does nothing on the last question.
func (s *Session) Next() bool {
	return s.move(1)
}

// Previous moves one question back. It does nothing on the first question.
func (s *Session) Previous() bool {
	return s.move(-1)
}

func (s *Session) move(delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	to := s.pos + delta
	if s.closed || s.finished || to < 0 || to >= len(s.questions) {
		return false
	}

	s.cancelAutoAdvance()
	s.pos = to
	return true
}

// Finish scores the session, persists the result and ends the session.
// It can be called from any position.
func (s *Session) Finish(ctx context.Context) (*domain.ResultSnapshot, error) {
	s.mu.Lock()

	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.cancelAutoAdvance()
	r := score.NewSnapshot(s.questions, s.answers, s.flags)

	if s.results != nil {
		if err := s.results.Save(ctx, r); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}

	s.finished = true
	s.mu.Unlock()

	s.eb.Publish(ctx, domain.EventSessionFinished{
		Mode:   s.settings.Mode,
		Result: r,
	})

	return &r, nil
}

// Restart rebuilds the queue from the source set, discarding answers, flags
// and position. It also reopens a finished session, but not a closed one.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	q, err := s.builder.Build(s.source, s.settings)
	if err != nil {
		return err
	}

	s.cancelAutoAdvance()
	s.load(q, q.Flags)
	return nil
}

// RedoMistakes replaces the queue with the wrong and unanswered questions of
// the current run. Flags are kept.
func (s *Session) RedoMistakes() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	mistakes, err := queue.DeriveMistakes(score.NewSnapshot(s.questions, s.answers, s.flags))
	if err != nil {
		return err
	}

	q, err := s.builder.Build(mistakes, s.settings)
	if err != nil {
		return err
	}

	s.cancelAutoAdvance()
	s.load(q, s.flags)
	return nil
}

// Close cancels any pending auto-advance and rejects every later mutation
// with ErrClosed. State stays readable. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.cancelAutoAdvance()
}

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	if s.finished {
		return ErrFinished
	}
	return nil
}

func (s *Session) load(q *queue.Queue, flags *domain.FlagSet) {
	s.questions = q.Questions
	s.answers = q.Answers
	s.flags = flags
	s.pos = 0
	s.finished = false
}

func (s *Session) armAutoAdvance(d time.Duration) {
	s.cancelAutoAdvance()

	gen, from := s.timerGen, s.pos
	s.timer = s.clock.AfterFunc(d, func() {
		s.autoAdvance(gen, from)
	})
}

func (s *Session) cancelAutoAdvance() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) autoAdvance(gen uint64, from int) {
	s.mu.Lock()

	if gen != s.timerGen || s.closed || s.finished {
		s.mu.Unlock()
		return
	}

	s.timer = nil
	if s.pos != from || s.pos >= len(s.questions)-1 {
		s.mu.Unlock()
		return
	}

	s.pos++
	e := domain.EventSessionAdvanced{Index: s.pos, Total: len(s.questions)}
	s.mu.Unlock()

	ctx := context.Background()
	slog.DebugContext(ctx, "session: auto-advanced", "index", e.Index, "total", e.Total)
	s.eb.Publish(ctx, e)
}
