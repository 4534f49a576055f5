// Package queue builds the working queue a session iterates and derives
// retry queues from a finished result.
package queue

import (
	"math/rand/v2"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
)

// Shuffler produces permutations of [0, n).
type Shuffler interface {
	Perm(n int) []int
}

type randShuffler struct{}

func (randShuffler) Perm(n int) []int { return rand.Perm(n) }

// Queue is a freshly built working queue with its empty answer and flag state.
type Queue struct {
	Questions []domain.Question
	Answers   []domain.Answer
	Flags     *domain.FlagSet
}

type Builder struct {
	shuffler Shuffler
}

// NewBuilder returns a Builder using s for every permutation. A nil s means
// uniformly random permutations, independent per call.
func NewBuilder(s Shuffler) *Builder {
	if s == nil {
		s = randShuffler{}
	}
	return &Builder{shuffler: s}
}

// Build copies questions into a new queue, shuffling question order and
// option order as settings ask. The source set is never modified.
//
// When options are shuffled the correct index follows the text of the
// originally correct option. If several options share that text, the first
// matching position wins.
func (b *Builder) Build(questions []domain.Question, settings domain.Settings) (*Queue, error) {
	if len(questions) == 0 {
		return nil, errors.InvalidArgument("queue: question set is empty")
	}

	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("queue: %v", err),
				errors.WithCause(err))
		}
	}

	qs := domain.CloneQuestions(questions)

	if settings.ShuffleQuestions {
		qs = permute(qs, b.shuffler.Perm(len(qs)))
	}

	if settings.ShuffleOptions {
		for i := range qs {
			qs[i] = b.shuffleOptions(qs[i])
		}
	}

	return &Queue{
		Questions: qs,
		Answers:   domain.NewAnswers(len(qs)),
		Flags:     domain.NewFlagSet(),
	}, nil
}

func (b *Builder) shuffleOptions(q domain.Question) domain.Question {
	correct := q.Options[q.CorrectIndex]

	q.Options = permute(q.Options, b.shuffler.Perm(len(q.Options)))
	for i, o := range q.Options {
		if o == correct {
			q.CorrectIndex = i
			break
		}
	}

	return q
}

// permute returns out with out[i] = in[p[i]].
func permute[T any](in []T, p []int) []T {
	out := make([]T, len(in))
	for i, j := range p {
		out[i] = in[j]
	}
	return out
}
