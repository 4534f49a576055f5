package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/event"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status class.",
	}, []string{"method", "route", "status"})

	quizzesExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Name:      "quizzes_extracted_total",
		Help:      "PDF files successfully turned into a quiz.",
	})

	questionsExtracted = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pdfquiz",
		Name:      "questions_per_quiz",
		Help:      "Number of questions extracted per quiz.",
		Buckets:   []float64{5, 10, 20, 50, 100, 200},
	})

	sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Name:      "sessions_started_total",
		Help:      "Quiz sessions started by mode.",
	}, []string{"mode"})

	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Name:      "sessions_finished_total",
		Help:      "Quiz sessions finished by mode.",
	}, []string{"mode"})

	scoreRatio = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pdfquiz",
		Name:      "score_ratio",
		Help:      "Score divided by total for finished sessions.",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	}, []string{"mode"})

	autoAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pdfquiz",
		Name:      "auto_advances_total",
		Help:      "Automatic moves to the next question in practice mode.",
	})

	librarySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pdfquiz",
		Name:      "library_size",
		Help:      "Number of quizzes in the library.",
	})
)

// RecordEvents subscribes the quiz metrics to eb.
func RecordEvents(eb *event.Bus) {
	eb.Subscribe(domain.EventNameQuizExtracted, func(_ context.Context, e event.Event) error {
		quizzesExtracted.Inc()
		questionsExtracted.Observe(float64(e.(domain.EventQuizExtracted).QuestionCount))
		return nil
	})

	eb.Subscribe(domain.EventNameSessionStarted, func(_ context.Context, e event.Event) error {
		sessionsStarted.WithLabelValues(string(e.(domain.EventSessionStarted).Settings.Mode)).Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionAdvanced, func(context.Context, event.Event) error {
		autoAdvances.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionFinished, func(_ context.Context, e event.Event) error {
		f := e.(domain.EventSessionFinished)
		mode := string(f.Mode)

		sessionsFinished.WithLabelValues(mode).Inc()
		if f.Result.Total > 0 {
			scoreRatio.WithLabelValues(mode).Observe(float64(f.Result.Score) / float64(f.Result.Total))
		}
		return nil
	})

	eb.Subscribe(domain.EventNameLibraryChanged, func(_ context.Context, e event.Event) error {
		librarySize.Set(float64(e.(domain.EventLibraryChanged).Count))
		return nil
	})
}
