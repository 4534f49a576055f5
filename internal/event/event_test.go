package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/pdfquiz/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber should only receive events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						named("session.finished"),
						named("session.advanced"),
					},
					subscribers: []subscriber{
						{name: "metrics", subscribeTo: []string{"session.finished"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{named("session.finished")}, out.received["metrics"])
			},
		},

		"an event should be dispatched to all subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						named("session.advanced"),
					},
					subscribers: []subscriber{
						{name: "ws", subscribeTo: []string{"session.advanced"}},
						{name: "metrics", subscribeTo: []string{"session.advanced"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{named("session.advanced")}, out.received["ws"])
				assert.ElementsMatch(t, []event.Event{named("session.advanced")}, out.received["metrics"])
			},
		},

		"repeated events should all be delivered": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						named("quiz.extracted"),
						named("session.started"),
						named("quiz.extracted"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"quiz.extracted"}},
						{name: "s2", subscribeTo: []string{"quiz.extracted", "session.started"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 2)
				assert.ElementsMatch(t, []event.Event{
					named("quiz.extracted"), named("quiz.extracted"), named("session.started"),
				}, out.received["s2"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus(event.WithPoolSize(4))
			for _, s := range in.subscribers {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_HandlerFailuresDoNotStopDelivery(t *testing.T) {
	b := event.NewBus()

	var calls atomic.Int32
	b.Subscribe("e", func(context.Context, event.Event) error {
		calls.Add(1)
		panic("boom")
	})
	b.Subscribe("e", func(context.Context, event.Event) error {
		calls.Add(1)
		return errors.New("failed")
	})

	b.Publish(context.Background(), named("e"))
	b.Publish(context.Background(), named("e"))
	b.Stop()

	require.Equal(t, int32(4), calls.Load())
}

func TestBus_NilIsNoop(t *testing.T) {
	var b *event.Bus
	require.NotPanics(t, func() {
		b.Publish(context.Background(), named("e"))
		b.Stop()
	})
}

type named string

func (e named) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
