package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndPublish(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("t", 1)
	defer cancel()

	h.Publish("t", "hello")

	select {
	case got := <-ch:
		assert.Equal(t, "hello", got)
	case <-time.After(time.Second):
		t.Fatal("no payload received")
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe("t", 1)
	defer cancel1()
	ch2, cancel2 := h.Subscribe("t", 1)
	defer cancel2()

	require.Equal(t, 2, h.Subscribers("t"))
	h.Publish("t", 42)

	assert.Equal(t, 42, <-ch1)
	assert.Equal(t, 42, <-ch2)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	h := NewHub()
	h.Publish("empty", "x")
	assert.Equal(t, 0, h.Subscribers("empty"))
}

func TestTopicsAreIsolated(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("a", 1)
	defer cancel()

	h.Publish("b", "wrong topic")

	select {
	case got := <-ch:
		t.Fatalf("unexpected payload %v", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSlowSubscriberKeepsLatest(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("t", 2)
	defer cancel()

	// Nobody drains; the two oldest snapshots fall out of the buffer.
	h.Publish("t", 1)
	h.Publish("t", 2)
	h.Publish("t", 3)
	h.Publish("t", 4)

	assert.Equal(t, 3, <-ch)
	assert.Equal(t, 4, <-ch)
}

func TestCancelClosesChannelAndIsIdempotent(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("t", 1)

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers("t"))

	// Publishing after cancellation must not panic on the closed channel.
	h.Publish("t", "late")
}

func TestSubscriptionTopicNames(t *testing.T) {
	assert.Equal(t, "conversation:alice_bob", ConversationTopic("alice_bob"))
	assert.Equal(t, "user:alice:conversations", UserConversationsTopic("alice"))
}
