package queue_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
	"github.com/victornm/pdfquiz/internal/queue"
)

func TestBuilder_Build(t *testing.T) {
	type (
		inputs struct {
			questions []domain.Question
			settings  domain.Settings
			perms     [][]int
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, in inputs, q *queue.Queue)
	}{
		"should keep order when shuffling is off": {
			arrange: func() inputs {
				return inputs{
					questions: makeQuestions(3),
					settings:  domain.Settings{Mode: domain.ModeTest},
				}
			},

			assert: func(t *testing.T, in inputs, q *queue.Queue) {
				require.Equal(t, in.questions, q.Questions)
			},
		},

		"should reorder questions by the permutation": {
			arrange: func() inputs {
				return inputs{
					questions: makeQuestions(3),
					settings:  domain.Settings{ShuffleQuestions: true, Mode: domain.ModeTest},
					perms:     [][]int{{2, 0, 1}},
				}
			},

			assert: func(t *testing.T, in inputs, q *queue.Queue) {
				require.Equal(t, []string{"q3", "q1", "q2"}, ids(q.Questions))
			},
		},

		"should remap the correct index after shuffling options": {
			arrange: func() inputs {
				return inputs{
					questions: []domain.Question{
						{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4", "5", "6"}, CorrectIndex: 1},
					},
					settings: domain.Settings{ShuffleOptions: true, Mode: domain.ModeTest},
					perms:    [][]int{{3, 2, 1, 0}},
				}
			},

			assert: func(t *testing.T, in inputs, q *queue.Queue) {
				require.Equal(t, []string{"6", "5", "4", "3"}, q.Questions[0].Options)
				require.Equal(t, 2, q.Questions[0].CorrectIndex)
			},
		},

		"should resolve duplicate option text to the first match": {
			arrange: func() inputs {
				return inputs{
					questions: []domain.Question{
						{ID: "q1", Prompt: "dup", Options: []string{"a", "b", "a", "c"}, CorrectIndex: 2},
					},
					settings: domain.Settings{ShuffleOptions: true, Mode: domain.ModeTest},
					perms:    [][]int{{0, 1, 2, 3}},
				}
			},

			assert: func(t *testing.T, in inputs, q *queue.Queue) {
				require.Equal(t, 0, q.Questions[0].CorrectIndex)
			},
		},

		"should shuffle questions before options": {
			arrange: func() inputs {
				return inputs{
					questions: makeQuestions(2),
					settings:  domain.Settings{ShuffleQuestions: true, ShuffleOptions: true, Mode: domain.ModeTest},
					perms:     [][]int{{1, 0}, {1, 0, 2, 3}, {0, 1, 2, 3}},
				}
			},

			assert: func(t *testing.T, in inputs, q *queue.Queue) {
				require.Equal(t, []string{"q2", "q1"}, ids(q.Questions))
				require.Equal(t, 1, q.Questions[0].CorrectIndex, "first options perm applies to q2")
				require.Equal(t, 0, q.Questions[1].CorrectIndex)
			},
		},

		"should start with empty answers and flags": {
			arrange: func() inputs {
				return inputs{
					questions: makeQuestions(4),
					settings:  domain.DefaultSettings(),
				}
			},

			assert: func(t *testing.T, in inputs, q *queue.Queue) {
				require.Len(t, q.Answers, 4)
				for _, a := range q.Answers {
					require.False(t, a.Answered())
				}
				require.Zero(t, q.Flags.Len())
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			b := queue.NewBuilder(&fixedShuffler{perms: in.perms})

			q, err := b.Build(in.questions, in.settings)
			require.NoError(t, err)

			tt.assert(t, in, q)
		})
	}
}

func TestBuilder_Build_PreservesCorrectText(t *testing.T) {
	b := queue.NewBuilder(nil)
	src := makeQuestions(20)
	for i := range src {
		src[i].CorrectIndex = i % domain.OptionCount
	}
	before := domain.CloneQuestions(src)

	for round := 0; round < 50; round++ {
		q, err := b.Build(src, domain.Settings{ShuffleQuestions: true, ShuffleOptions: true, Mode: domain.ModeTest})
		require.NoError(t, err)
		require.Len(t, q.Questions, len(src))

		byID := make(map[string]domain.Question)
		for _, s := range src {
			byID[s.ID] = s
		}
		for _, got := range q.Questions {
			want := byID[got.ID]
			require.Equal(t, want.Options[want.CorrectIndex], got.Options[got.CorrectIndex])
			require.ElementsMatch(t, want.Options, got.Options)
		}
	}

	require.Equal(t, before, src, "building must not modify the source set")
}

func TestBuilder_Build_Rejects(t *testing.T) {
	b := queue.NewBuilder(nil)

	_, err := b.Build(nil, domain.DefaultSettings())
	require.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, err = b.Build([]domain.Question{{ID: "q1", Options: []string{"a", "b"}}}, domain.DefaultSettings())
	require.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, err = b.Build([]domain.Question{{ID: "q1", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 4}}, domain.DefaultSettings())
	require.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestDeriveMistakes(t *testing.T) {
	qs := makeQuestions(3)

	t.Run("wrong answers come before unanswered ones", func(t *testing.T) {
		r := domain.ResultSnapshot{
			Score:     1,
			Total:     3,
			Questions: qs,
			Answers:   []domain.Answer{domain.AnswerOf(1), domain.AnswerOf(0), domain.Unanswered},
		}

		got, err := queue.DeriveMistakes(r)
		require.NoError(t, err)
		require.Equal(t, []string{"q1", "q3"}, ids(got))
	})

	t.Run("buckets are partitioned, not interleaved", func(t *testing.T) {
		r := domain.ResultSnapshot{
			Questions: makeQuestions(4),
			Answers:   []domain.Answer{domain.Unanswered, domain.AnswerOf(2), domain.Unanswered, domain.AnswerOf(3)},
		}

		got, err := queue.DeriveMistakes(r)
		require.NoError(t, err)
		require.Equal(t, []string{"q2", "q4", "q1", "q3"}, ids(got))
	})

	t.Run("missing answer slots count as unanswered", func(t *testing.T) {
		r := domain.ResultSnapshot{Questions: qs, Answers: []domain.Answer{domain.AnswerOf(0)}}

		got, err := queue.DeriveMistakes(r)
		require.NoError(t, err)
		require.Equal(t, []string{"q2", "q3"}, ids(got))
	})

	t.Run("all correct means nothing to redo", func(t *testing.T) {
		r := domain.ResultSnapshot{
			Score:     3,
			Total:     3,
			Questions: qs,
			Answers:   []domain.Answer{domain.AnswerOf(0), domain.AnswerOf(0), domain.AnswerOf(0)},
		}

		_, err := queue.DeriveMistakes(r)
		require.ErrorIs(t, err, queue.ErrNothingToRedo)
	})
}

func TestDeriveFlagged(t *testing.T) {
	qs := makeQuestions(3)

	t.Run("returns only flagged questions in snapshot order", func(t *testing.T) {
		r := domain.ResultSnapshot{Questions: qs, FlaggedIDs: []string{"q3", "q2"}}

		got, err := queue.DeriveFlagged(r)
		require.NoError(t, err)
		assert.Equal(t, []string{"q2", "q3"}, ids(got))
	})

	t.Run("single flag", func(t *testing.T) {
		r := domain.ResultSnapshot{Questions: qs, FlaggedIDs: []string{"q2"}}

		got, err := queue.DeriveFlagged(r)
		require.NoError(t, err)
		require.Equal(t, []domain.Question{qs[1]}, got)
	})

	t.Run("no flags means nothing to redo", func(t *testing.T) {
		_, err := queue.DeriveFlagged(domain.ResultSnapshot{Questions: qs})
		require.ErrorIs(t, err, queue.ErrNothingToRedo)
	})

	t.Run("flags of unknown questions are ignored", func(t *testing.T) {
		_, err := queue.DeriveFlagged(domain.ResultSnapshot{Questions: qs, FlaggedIDs: []string{"other"}})
		require.ErrorIs(t, err, queue.ErrNothingToRedo)
	})
}

// fixedShuffler hands out perms in order, then identity permutations.
type fixedShuffler struct {
	perms [][]int
}

func (s *fixedShuffler) Perm(n int) []int {
	if len(s.perms) > 0 {
		p := s.perms[0]
		s.perms = s.perms[1:]
		return p
	}

	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func makeQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			Prompt:       fmt.Sprintf("question %d", i+1),
			Options:      []string{fmt.Sprintf("%d-a", i+1), fmt.Sprintf("%d-b", i+1), fmt.Sprintf("%d-c", i+1), fmt.Sprintf("%d-d", i+1)},
			CorrectIndex: 0,
		}
	}
	return qs
}

func ids(qs []domain.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}
