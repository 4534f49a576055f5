//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/pdfquiz/internal/api"
	"github.com/victornm/pdfquiz/internal/app"
	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/session"
)

const (
	addr = "localhost:8080"
)

// TestQuiz drives a running server through a full quiz over a real PDF,
// named by PDFQUIZ_DEMO_PDF, and checks the finish notification.
func TestQuiz(t *testing.T) {
	pdf := os.Getenv("PDFQUIZ_DEMO_PDF")
	if pdf == "" {
		t.Skip("PDFQUIZ_DEMO_PDF not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Minute)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("ws://%s/api/ws", addr), nil)
	require.NoError(t, err)
	defer conn.Close()

	var eg errgroup.Group
	finished := make(chan api.SessionFinished, 1)

	eg.Go(func() error {
		for {
			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := conn.ReadJSON(&n); err != nil {
				return err
			}
			t.Logf("notification: %s %s", n.Event, n.Data)

			if n.Event == domain.EventNameSessionFinished {
				var f api.SessionFinished
				if err := json.Unmarshal(n.Data, &f); err != nil {
					return err
				}
				finished <- f
				return nil
			}
		}
	})

	var st app.State
	call(t, uploadRequest(t, pdf), &st)
	require.Equal(t, app.ViewConfig, st.View)
	t.Logf("extracted %d questions from %s", st.QuestionCount, st.QuizName)

	var qs session.State
	call(t, jsonRequest(t, http.MethodPost, "/api/quiz/start", `{"mode":"test","shuffleQuestions":true,"shuffleOptions":true}`), &qs)
	require.Equal(t, st.QuestionCount, qs.Total)

	for i := 0; i < qs.Total; i++ {
		var ch api.ChangeResponse
		call(t, jsonRequest(t, http.MethodPost, "/api/quiz/select", `{"index":0}`), &ch)
		call(t, jsonRequest(t, http.MethodPost, "/api/quiz/next", ""), &ch)
	}

	var r domain.ResultSnapshot
	call(t, jsonRequest(t, http.MethodPost, "/api/quiz/finish", ""), &r)
	t.Logf("score %d/%d", r.Score, r.Total)

	select {
	case f := <-finished:
		require.Equal(t, r.Score, f.Score)
		require.Equal(t, r.Total, f.Total)
	case <-ctx.Done():
		t.Fatal("no finish notification")
	}

	_ = conn.Close()
	_ = eg.Wait()
}

func call(t *testing.T, req *http.Request, out any) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func jsonRequest(t *testing.T, method, path, body string) *http.Request {
	req, err := http.NewRequest(method, "http://"+addr+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, path string) *http.Request {
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filepath.Base(path))
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, "http://"+addr+"/api/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
