package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
)

const (
	defaultModel   = "gemini-2.5-pro"
	defaultTimeout = 5 * time.Minute
)

// QuestionExtractor converts raw document text into questions.
type QuestionExtractor interface {
	ExtractQuestions(ctx context.Context, text string) ([]domain.Question, error)
}

type GeminiConfig struct {
	// Endpoint overrides the Gemini API base URL.
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Gemini asks a Gemini model for the questions of one document per call.
// Calls are not retried.
type Gemini struct {
	config *genai.ClientConfig
	model  string
}

func NewGemini(c GeminiConfig) *Gemini {
	hc := c.HTTPClient
	if hc == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	g := &Gemini{
		config: &genai.ClientConfig{
			APIKey:     c.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: hc,
		},
		model: c.Model,
	}

	if c.Endpoint != "" {
		g.config.HTTPOptions.BaseURL = strings.TrimSuffix(c.Endpoint, "/") + "/"
	}
	if g.model == "" {
		g.model = defaultModel
	}

	return g
}

var questionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"question": {
				Type:        genai.TypeString,
				Description: "Clean question text without its number",
			},
			"options": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Exactly 4 options without their A/B/C/D labels",
			},
			"correctIndex": {
				Type:        genai.TypeInteger,
				Description: "Position of the correct option (0-3)",
			},
		},
		Required: []string{"question", "options", "correctIndex"},
	},
}

const promptTemplate = `You extract data from exam documents. Read the raw text extracted from a PDF and convert it into a JSON list of multiple-choice questions.

PDF TEXT:
---
%s
---

STRICT REQUIREMENTS:
1. Extract every question in the text, from the first to the last. Do not skip any.
2. Correct answer: prefer options marked with a leading '*' (for example *A. or *C.). Without a marker, infer it from context or emphasis if the raw text allows. If no correct answer can be found, use the first option (index 0) so the question is not lost.
3. Clean up: remove question numbering (Question 1:, 1/ ...) from "question", remove the A., B., C., D. labels from "options", drop headers, footers, page numbers and page markers.
4. Output only a JSON array, with no explanation.`

// ExtractQuestions sends text to the model and parses its answer.
func (g *Gemini) ExtractQuestions(ctx context.Context, text string) ([]domain.Question, error) {
	client, err := genai.NewClient(ctx, g.config)
	if err != nil {
		return nil, unavailable(fmt.Errorf("gemini: new client: %w", err))
	}

	res, err := client.Models.GenerateContent(ctx, g.model,
		genai.Text(fmt.Sprintf(promptTemplate, text)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   questionSchema,
		})
	if err != nil {
		return nil, unavailable(fmt.Errorf("gemini: generate content: %w", err))
	}

	if f := res.PromptFeedback; f != nil && f.BlockReason != "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("the document was rejected by the extraction service: %s", f.BlockReason))
	}

	raw := res.Text()
	if strings.TrimSpace(raw) == "" {
		raw = "[]"
	}

	return ParseQuestions(raw)
}

func unavailable(err error) error {
	return errors.New(errors.CodeUnavailable,
		errors.WithMessagef("the question extraction service failed, please upload the file again"),
		errors.WithCause(err))
}
