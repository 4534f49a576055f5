package session

import (
	"github.com/victornm/pdfquiz/internal/domain"
)

// QuestionView is a question as the presentation layer may show it. The
// correct index is only present once correctness may be revealed.
type QuestionView struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correctIndex,omitempty"`
}

// Item summarizes one queue position for the navigation grid.
type Item struct {
	Answered bool  `json:"answered"`
	Correct  *bool `json:"correct,omitempty"`
	Flagged  bool  `json:"flagged"`
}

type State struct {
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Mode     domain.Mode   `json:"mode"`
	Question QuestionView  `json:"question"`
	Answer   domain.Answer `json:"answer"`
	Flagged  bool          `json:"flagged"`
	Items    []Item        `json:"items"`
	Finished bool          `json:"finished"`
	// AutoAdvancing is true while an auto-advance is armed.
	AutoAdvancing bool `json:"autoAdvancing"`
}

// State returns a copy of the session state for rendering.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Index:         s.pos,
		Total:         len(s.questions),
		Mode:          s.settings.Mode,
		Answer:        s.answers[s.pos],
		Flagged:       s.flags.Has(s.questions[s.pos].ID),
		Items:         make([]Item, len(s.questions)),
		Finished:      s.finished,
		AutoAdvancing: s.timer != nil,
	}

	q := s.questions[s.pos]
	st.Question = QuestionView{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Options: append([]string{}, q.Options...),
	}
	if s.revealed(s.pos) {
		ci := q.CorrectIndex
		st.Question.CorrectIndex = &ci
	}

	for i, q := range s.questions {
		a := s.answers[i]
		it := Item{
			Answered: a.Answered(),
			Flagged:  s.flags.Has(q.ID),
		}
		if a.Answered() && s.revealed(i) {
			c := a.Correct(q)
			it.Correct = &c
		}
		st.Items[i] = it
	}

	return st
}

// revealed reports whether correctness of position i may be shown: practice
// mode after answering, any mode after finishing.
func (s *Session) revealed(i int) bool {
	if s.finished {
		return true
	}
	return s.settings.Mode == domain.ModePractice && s.answers[i].Answered()
}
