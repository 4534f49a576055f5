package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OptionCount is the number of options every question carries.
const OptionCount = 4

type Mode string

const (
	// ModePractice locks the first answer and reveals correctness immediately.
	ModePractice Mode = "practice"
	// ModeTest lets answers change until the session is finished.
	ModeTest Mode = "test"
)

// Question is a multiple-choice question with a stable ID.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

func (q Question) Validate() error {
	if len(q.Options) != OptionCount {
		return fmt.Errorf("question %q: want %d options, got %d", q.ID, OptionCount, len(q.Options))
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("question %q: correct index %d out of range", q.ID, q.CorrectIndex)
	}
	return nil
}

// Clone returns a copy that shares no memory with q.
func (q Question) Clone() Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

// CloneQuestions copies a question set so the result is never an alias of qs.
func CloneQuestions(qs []Question) []Question {
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

// Settings configure one session and stay fixed for its lifetime.
type Settings struct {
	ShuffleQuestions   bool `json:"shuffleQuestions"`
	ShuffleOptions     bool `json:"shuffleOptions"`
	Mode               Mode `json:"mode"`
	AutoAdvanceSeconds int  `json:"autoAdvanceTime"`
}

func DefaultSettings() Settings {
	return Settings{
		Mode:               ModePractice,
		AutoAdvanceSeconds: 2,
	}
}

func (s Settings) Validate() error {
	if s.Mode != ModePractice && s.Mode != ModeTest {
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	if s.AutoAdvanceSeconds < 0 {
		return fmt.Errorf("auto advance seconds must not be negative, got %d", s.AutoAdvanceSeconds)
	}
	return nil
}

// AutoAdvance returns the delay before moving on after a practice answer,
// zero when auto-advance does not apply.
func (s Settings) AutoAdvance() time.Duration {
	if s.Mode != ModePractice || s.AutoAdvanceSeconds <= 0 {
		return 0
	}
	return time.Duration(s.AutoAdvanceSeconds) * time.Second
}

// Answer is one answer slot: either unanswered or a selected option index.
// It encodes to JSON as null or the index.
type Answer struct {
	index    int
	answered bool
}

// Unanswered is the zero Answer.
var Unanswered = Answer{}

func AnswerOf(index int) Answer {
	return Answer{index: index, answered: true}
}

func (a Answer) Answered() bool { return a.answered }

// Index returns the selected option, or -1 when unanswered.
func (a Answer) Index() int {
	if !a.answered {
		return -1
	}
	return a.index
}

// Correct reports whether a is exactly q's correct option.
func (a Answer) Correct(q Question) bool {
	return a.answered && a.index == q.CorrectIndex
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if !a.answered {
		return []byte("null"), nil
	}
	return json.Marshal(a.index)
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = Unanswered
		return nil
	}
	var i int
	if err := json.Unmarshal(b, &i); err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	*a = AnswerOf(i)
	return nil
}

// NewAnswers returns n unanswered slots.
func NewAnswers(n int) []Answer {
	return make([]Answer, n)
}

// FlagSet is a set of question IDs that remembers insertion order.
type FlagSet struct {
	ids   []string
	index map[string]struct{}
}

func NewFlagSet(ids ...string) *FlagSet {
	f := &FlagSet{index: make(map[string]struct{})}
	for _, id := range ids {
		if !f.Has(id) {
			f.Toggle(id)
		}
	}
	return f
}

// Toggle flips membership of id and returns whether it is now flagged.
func (f *FlagSet) Toggle(id string) bool {
	if _, ok := f.index[id]; ok {
		delete(f.index, id)
		for i, v := range f.ids {
			if v == id {
				f.ids = append(f.ids[:i], f.ids[i+1:]...)
				break
			}
		}
		return false
	}

	f.index[id] = struct{}{}
	f.ids = append(f.ids, id)
	return true
}

func (f *FlagSet) Has(id string) bool {
	_, ok := f.index[id]
	return ok
}

func (f *FlagSet) Len() int { return len(f.ids) }

// IDs returns the flagged IDs in the order they were flagged.
func (f *FlagSet) IDs() []string {
	return append([]string{}, f.ids...)
}

func (f *FlagSet) Clone() *FlagSet {
	return NewFlagSet(f.ids...)
}

// ResultSnapshot is the persisted record of one finished session.
type ResultSnapshot struct {
	Score      int        `json:"score"`
	Total      int        `json:"total"`
	Questions  []Question `json:"questions"`
	Answers    []Answer   `json:"userAnswers"`
	FlaggedIDs []string   `json:"flaggedIds"`
}

// AnswerAt returns the answer for position i, treating missing slots as unanswered.
func (r ResultSnapshot) AnswerAt(i int) Answer {
	if i < 0 || i >= len(r.Answers) {
		return Unanswered
	}
	return r.Answers[i]
}

// SavedQuiz is a named question set kept in the library.
type SavedQuiz struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

func (s SavedQuiz) CreatedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}
