package extract_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/pdfquiz/internal/errors"
	"github.com/victornm/pdfquiz/internal/extract"
)

func TestParseQuestions(t *testing.T) {
	tests := map[string]struct {
		raw    string
		assert func(t *testing.T, got int, err error)
	}{
		"plain json array": {
			raw: `[{"question":"2+2?","options":["3","4","5","6"],"correctIndex":1}]`,
			assert: func(t *testing.T, got int, err error) {
				require.NoError(t, err)
				require.Equal(t, 1, got)
			},
		},
		"fenced json": {
			raw: "```json\n[{\"question\":\"q\",\"options\":[\"a\",\"b\",\"c\",\"d\"],\"correctIndex\":0}]\n```",
			assert: func(t *testing.T, got int, err error) {
				require.NoError(t, err)
				require.Equal(t, 1, got)
			},
		},
		"malformed items are dropped": {
			raw: `[
				{"question":"ok","options":["a","b","c","d"],"correctIndex":3},
				{"question":"three options","options":["a","b","c"],"correctIndex":0},
				{"question":"bad index","options":["a","b","c","d"],"correctIndex":4},
				{"question":"no index","options":["a","b","c","d"]},
				{"question":"","options":["a","b","c","d"],"correctIndex":0}
			]`,
			assert: func(t *testing.T, got int, err error) {
				require.NoError(t, err)
				require.Equal(t, 1, got)
			},
		},
		"empty array": {
			raw: `[]`,
			assert: func(t *testing.T, _ int, err error) {
				require.ErrorIs(t, err, extract.ErrUnrecognized)
			},
		},
		"not json": {
			raw: `Sorry, I cannot help with that.`,
			assert: func(t *testing.T, _ int, err error) {
				require.True(t, errors.Is(err, errors.CodeInvalidArgument))
				require.Contains(t, errors.Convert(err).Message, "A/B/C/D")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			qs, err := extract.ParseQuestions(tt.raw)
			tt.assert(t, len(qs), err)
		})
	}
}

func TestParseQuestions_AssignsFreshIDs(t *testing.T) {
	raw := `[
		{"id":"from-service","question":"a","options":["1","2","3","4"],"correctIndex":0},
		{"id":"from-service","question":"b","options":["1","2","3","4"],"correctIndex":2}
	]`

	qs, err := extract.ParseQuestions(raw)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	require.NotEqual(t, "from-service", qs[0].ID)
	require.NotEqual(t, qs[0].ID, qs[1].ID)
	require.Equal(t, 2, qs[1].CorrectIndex)
}

func TestStripFences(t *testing.T) {
	require.Equal(t, `[1]`, extract.StripFences("```json\n[1]\n```"))
	require.Equal(t, `[1]`, extract.StripFences("```\n[1]\n```"))
	require.Equal(t, `[1]`, extract.StripFences("  [1]  "))
}

func TestMarkPages(t *testing.T) {
	got := extract.MarkPages("first page\n\fsecond page\n\f")
	require.Equal(t, "first page\n--- PAGE 1 ---\nsecond page\n--- PAGE 2 ---\n", got)

	require.Equal(t, "single\n--- PAGE 1 ---\n", extract.MarkPages("single"))
}

func TestPDFToText_RejectsNonPDF(t *testing.T) {
	_, err := extract.PDFToText{}.ExtractText(context.Background(), []byte("hello"))
	require.ErrorIs(t, err, extract.ErrNotPDF)
}

func TestGemini_ExtractQuestions(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{
						map[string]any{"text": "```json\n[{\"question\":\"Capital of France?\","},
						map[string]any{"text": "\"options\":[\"Berlin\",\"Paris\",\"Rome\",\"Madrid\"],\"correctIndex\":1}]\n```"},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	g := extract.NewGemini(extract.GeminiConfig{
		Endpoint: srv.URL,
		Model:    "test-model",
		APIKey:   "secret",
	})

	qs, err := g.ExtractQuestions(context.Background(), "1. Capital of France?\n--- PAGE 1 ---\n")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	require.Equal(t, "Capital of France?", qs[0].Prompt)
	require.Equal(t, 1, qs[0].CorrectIndex)

	require.Equal(t, "/v1beta/models/test-model:generateContent", gotPath)
	require.Equal(t, "secret", gotKey)
	require.Contains(t, gotBody, "generationConfig")
}

func TestGemini_Failures(t *testing.T) {
	tests := map[string]struct {
		handler http.HandlerFunc
		code    errors.Code
	}{
		"server error": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			},
			code: errors.CodeUnavailable,
		},
		"empty candidates": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[]}`))
			},
			code: errors.CodeInvalidArgument,
		},
		"blocked prompt": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
			},
			code: errors.CodeInvalidArgument,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g := extract.NewGemini(extract.GeminiConfig{
				Endpoint: srv.URL,
				Model:    "test-model",
				APIKey:   "secret",
			})
			_, err := g.ExtractQuestions(context.Background(), "text")
			require.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}
