package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/common/logger"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(logger.Discard())
	defer b.Close()

	got := make(chan Event, 1)
	b.Subscribe("topic.a", func(_ context.Context, evt Event) {
		got <- evt
	})

	require.NoError(t, b.Publish(context.Background(), "topic.a", "payload"))

	select {
	case evt := <-got:
		assert.Equal(t, "topic.a", evt.Topic)
		assert.Equal(t, "payload", evt.Payload)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestPublishWithoutSubscribersIsQuiet(t *testing.T) {
	b := New(logger.Discard())
	defer b.Close()

	assert.NoError(t, b.Publish(context.Background(), "nobody.home", 42))
}

func TestSubscriberSeesEventsInPublishOrder(t *testing.T) {
	b := New(logger.Discard())
	defer b.Close()

	var mu sync.Mutex
	var seen []int
	b.Subscribe("ordered", func(_ context.Context, evt Event) {
		mu.Lock()
		seen = append(seen, evt.Payload.(int))
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(context.Background(), "ordered", i))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 20
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestEverySubscriberGetsTheEvent(t *testing.T) {
	b := New(logger.Discard())
	defer b.Close()

	first := make(chan Event, 1)
	second := make(chan Event, 1)
	b.Subscribe("fanout", func(_ context.Context, evt Event) { first <- evt })
	b.Subscribe("fanout", func(_ context.Context, evt Event) { second <- evt })

	require.NoError(t, b.Publish(context.Background(), "fanout", "hello"))

	for _, ch := range []chan Event{first, second} {
		select {
		case evt := <-ch:
			assert.Equal(t, "hello", evt.Payload)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestSubscriberOnlySeesItsTopic(t *testing.T) {
	b := New(logger.Discard())
	defer b.Close()

	got := make(chan Event, 4)
	b.Subscribe("topic.a", func(_ context.Context, evt Event) { got <- evt })

	require.NoError(t, b.Publish(context.Background(), "topic.b", "wrong"))
	require.NoError(t, b.Publish(context.Background(), "topic.a", "right"))

	select {
	case evt := <-got:
		assert.Equal(t, "right", evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
	select {
	case evt := <-got:
		t.Fatalf("unexpected extra event %v", evt.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(logger.Discard())
	defer b.Close()

	delivered := make(chan struct{}, 8)
	unsubscribe := b.Subscribe("topic.a", func(_ context.Context, evt Event) {
		delivered <- struct{}{}
	})

	require.NoError(t, b.Publish(context.Background(), "topic.a", 1))
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("first event was not delivered")
	}

	unsubscribe()
	require.NoError(t, b.Publish(context.Background(), "topic.a", 2))

	select {
	case <-delivered:
		t.Fatal("event delivered after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(logger.Discard())
	defer b.Close()

	unsubscribe := b.Subscribe("topic.a", func(_ context.Context, evt Event) {})
	unsubscribe()
	unsubscribe()

	assert.NoError(t, b.Publish(context.Background(), "topic.a", 1))
}

func TestCloseRejectsFurtherPublishes(t *testing.T) {
	b := New(logger.Discard())
	b.Subscribe("topic.a", func(_ context.Context, evt Event) {})

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(context.Background(), "topic.a", 1), ErrClosed)
}
