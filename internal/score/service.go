package score

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
	"github.com/victornm/pdfquiz/internal/store"
)

// ResultKey is the fixed key the last finished result is stored under.
const ResultKey = "lastQuizResult"

// Compute counts the answers that exactly match their question's correct index.
// Unanswered slots never count.
func Compute(questions []domain.Question, answers []domain.Answer) int {
	score := 0
	for i, q := range questions {
		if i < len(answers) && answers[i].Correct(q) {
			score++
		}
	}
	return score
}

// NewSnapshot scores a finished session and copies its state into a result.
func NewSnapshot(questions []domain.Question, answers []domain.Answer, flags *domain.FlagSet) domain.ResultSnapshot {
	r := domain.ResultSnapshot{
		Score:      Compute(questions, answers),
		Total:      len(questions),
		Questions:  domain.CloneQuestions(questions),
		Answers:    append([]domain.Answer{}, answers...),
		FlaggedIDs: []string{},
	}

	if flags != nil {
		r.FlaggedIDs = flags.IDs()
	}

	return r
}

type Config struct {
	KV store.KV
}

// Store keeps the single most recent result. Each save overwrites the previous one.
type Store struct {
	kv store.KV
}

func NewStore(c Config) *Store {
	return &Store{kv: c.KV}
}

func (s *Store) Save(ctx context.Context, r domain.ResultSnapshot) error {
	if err := store.SetJSON(ctx, s.kv, ResultKey, r); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	return nil
}

// Load returns the last saved result, or a NotFound error when none exists.
func (s *Store) Load(ctx context.Context) (*domain.ResultSnapshot, error) {
	var r domain.ResultSnapshot
	err := store.GetJSON(ctx, s.kv, ResultKey, &r)
	if errors.Is(err, errors.CodeNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no finished quiz result found"),
			errors.WithCause(err))
	}
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}

	return &r, nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, ResultKey)
}

type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeVeryGood  Grade = "very_good"
	GradePass      Grade = "pass"
	GradeKeepGoing Grade = "keep_trying"
)

// Summary is what the result view shows about a finished session.
type Summary struct {
	Score      int             `json:"score"`
	Total      int             `json:"total"`
	Mistakes   int             `json:"mistakes"`
	Flagged    int             `json:"flagged"`
	Percentage decimal.Decimal `json:"percentage"`
	Grade      Grade           `json:"grade"`
}

var (
	hundred   = decimal.NewFromInt(100)
	excellent = decimal.NewFromInt(90)
	veryGood  = decimal.NewFromInt(75)
	pass      = decimal.NewFromInt(50)
)

// Summarize derives the percentage (rounded to a whole number) and grade of r.
func Summarize(r domain.ResultSnapshot) Summary {
	pct := decimal.Zero
	if r.Total > 0 {
		pct = decimal.NewFromInt(int64(r.Score)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(r.Total))).
			Round(0)
	}

	s := Summary{
		Score:      r.Score,
		Total:      r.Total,
		Mistakes:   r.Total - r.Score,
		Flagged:    len(r.FlaggedIDs),
		Percentage: pct,
	}

	switch {
	case pct.GreaterThanOrEqual(excellent):
		s.Grade = GradeExcellent
	case pct.GreaterThanOrEqual(veryGood):
		s.Grade = GradeVeryGood
	case pct.GreaterThanOrEqual(pass):
		s.Grade = GradePass
	default:
		s.Grade = GradeKeepGoing
	}

	return s
}
