package extract

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
)

// ErrUnrecognized is returned when the service output holds no usable questions.
var ErrUnrecognized = errors.New(errors.CodeInvalidArgument,
	errors.WithMessagef("no questions could be recognized in this file, ensure questions are in clear A/B/C/D format with a marked correct answer"))

type rawQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correctIndex"`
}

// ParseQuestions decodes the extraction service output. Markdown code fences
// around the JSON are stripped, ids are assigned fresh, and items that are
// not a question with exactly four options and a valid correct index are
// dropped.
func ParseQuestions(raw string) ([]domain.Question, error) {
	var items []rawQuestion
	if err := json.Unmarshal([]byte(StripFences(raw)), &items); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("%s", ErrUnrecognized.Message),
			errors.WithCause(err))
	}

	qs := make([]domain.Question, 0, len(items))
	for i, it := range items {
		q := domain.Question{
			ID:      "q-" + uuid.NewString(),
			Prompt:  strings.TrimSpace(it.Question),
			Options: it.Options,
		}
		if it.CorrectIndex != nil {
			q.CorrectIndex = *it.CorrectIndex
		}

		if err := validate(q, it); err != nil {
			slog.Warn("extract: dropping malformed question", "position", i, "error", err)
			continue
		}

		qs = append(qs, q)
	}

	if len(qs) == 0 {
		return nil, ErrUnrecognized
	}

	return qs, nil
}

func validate(q domain.Question, it rawQuestion) error {
	if q.Prompt == "" {
		return errors.InvalidArgument("empty question text")
	}
	if it.CorrectIndex == nil {
		return errors.InvalidArgument("missing correct index")
	}
	return q.Validate()
}

// StripFences removes markdown code fence markers such as ```json and ```.
func StripFences(s string) string {
	if !strings.Contains(s, "```") {
		return strings.TrimSpace(s)
	}

	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
