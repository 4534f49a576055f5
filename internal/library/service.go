package library

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
	"github.com/victornm/pdfquiz/internal/event"
	"github.com/victornm/pdfquiz/internal/store"
)

const (
	// Key is the fixed key the library is stored under.
	Key = "quiz_library"
	// Capacity is the maximum number of saved quizzes.
	Capacity = 15
)

// ErrFull is returned by Save when the library holds Capacity entries.
var ErrFull = errors.New(errors.CodeResourceExhausted,
	errors.WithMessagef("library is full (max %d quizzes), delete an old quiz to save this one", Capacity))

type Config struct {
	KV       store.KV
	EventBus *event.Bus
	Now      func() time.Time
}

type Service struct {
	kv  store.KV
	eb  *event.Bus
	now func() time.Time

	// serializes read-modify-write of the stored list
	mu sync.Mutex
}

func NewService(c Config) *Service {
	s := &Service{
		kv:  c.KV,
		eb:  c.EventBus,
		now: c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Save stores questions under name, most recent first. The name is kept as
// given. Saving into a full library fails with ErrFull; nothing is evicted.
func (s *Service) Save(ctx context.Context, name string, questions []domain.Question) (*domain.SavedQuiz, error) {
	if len(questions) == 0 {
		return nil, errors.InvalidArgument("library: cannot save an empty quiz")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	if len(list) >= Capacity {
		return nil, ErrFull
	}

	q := domain.SavedQuiz{
		ID:        "quiz-" + uuid.NewString(),
		Name:      name,
		Questions: domain.CloneQuestions(questions),
		Timestamp: s.now().UnixMilli(),
	}

	list = append([]domain.SavedQuiz{q}, list...)
	if err := s.store(ctx, list); err != nil {
		return nil, err
	}

	return &q, nil
}

// Delete removes the quiz with id. Unknown ids are ignored.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := list[:0]
	for _, q := range list {
		if q.ID != id {
			kept = append(kept, q)
		}
	}

	if len(kept) == len(list) {
		return nil
	}

	return s.store(ctx, kept)
}

// List returns saved quizzes, most recent first.
func (s *Service) List(ctx context.Context) ([]domain.SavedQuiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.SavedQuiz, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, q := range list {
		if q.ID == id {
			return &q, nil
		}
	}

	return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("saved quiz not found: id=%s", id))
}

func (s *Service) load(ctx context.Context) ([]domain.SavedQuiz, error) {
	var list []domain.SavedQuiz
	err := store.GetJSON(ctx, s.kv, Key, &list)
	if errors.Is(err, errors.CodeNotFound) {
		return []domain.SavedQuiz{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}

	return list, nil
}

func (s *Service) store(ctx context.Context, list []domain.SavedQuiz) error {
	if err := store.SetJSON(ctx, s.kv, Key, list); err != nil {
		return fmt.Errorf("store library: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLibraryChanged{Count: len(list)})
	return nil
}

// CleanName drops the last file extension: "exam.v2.pdf" -> "exam.v2".
func CleanName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
