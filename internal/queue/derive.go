package queue

import (
	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
)

// ErrNothingToRedo is returned when a derived queue would be empty.
var ErrNothingToRedo = errors.New(errors.CodeFailedPrecondition,
	errors.WithMessagef("nothing to redo"))

// DeriveMistakes returns the questions of r that were answered wrong,
// followed by the ones left unanswered. Each group keeps snapshot order.
func DeriveMistakes(r domain.ResultSnapshot) ([]domain.Question, error) {
	var wrong, unanswered []domain.Question

	for i, q := range r.Questions {
		a := r.AnswerAt(i)
		switch {
		case !a.Answered():
			unanswered = append(unanswered, q.Clone())
		case !a.Correct(q):
			wrong = append(wrong, q.Clone())
		}
	}

	out := append(wrong, unanswered...)
	if len(out) == 0 {
		return nil, ErrNothingToRedo
	}

	return out, nil
}

// DeriveFlagged returns the questions of r whose IDs were flagged, in snapshot order.
func DeriveFlagged(r domain.ResultSnapshot) ([]domain.Question, error) {
	flags := domain.NewFlagSet(r.FlaggedIDs...)

	var out []domain.Question
	for _, q := range r.Questions {
		if flags.Has(q.ID) {
			out = append(out, q.Clone())
		}
	}

	if len(out) == 0 {
		return nil, ErrNothingToRedo
	}

	return out, nil
}
