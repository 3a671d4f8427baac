package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratewatch/ratewatch/internal/core"
)

type failingSubscriber struct {
	id  string
	err error
}

func (f failingSubscriber) ID() string            { return f.id }
func (f failingSubscriber) Origin() string        { return "https://claude.ai" }
func (f failingSubscriber) Deliver(Message) error { return f.err }

type panickingSubscriber struct{}

func (panickingSubscriber) ID() string            { return "0-panics" }
func (panickingSubscriber) Origin() string        { return "https://claude.ai" }
func (panickingSubscriber) Deliver(Message) error { panic("boom") }

func fixedClock() time.Time {
	return time.UnixMilli(1_700_000_000_000)
}

func TestBrokerAllowed(t *testing.T) {
	b := NewBroker([]string{"claude.ai", " ChatGPT.com ", "api.", ""})

	assert.True(t, b.Allowed("https://claude.ai/chat/123"))
	assert.True(t, b.Allowed("https://CHATGPT.com"))
	assert.True(t, b.Allowed("https://api.anthropic.com"))
	assert.False(t, b.Allowed("https://example.com"))
	assert.False(t, b.Allowed(""))

	open := NewBroker(nil)
	assert.True(t, open.Allowed(""))
	assert.True(t, open.Allowed("https://example.com"))
}

func TestBrokerSubscribeRejectsOrigin(t *testing.T) {
	b := NewBroker([]string{"claude.ai"})

	_, err := b.Subscribe(NewChannelSubscriber("https://example.com", 1))
	require.ErrorIs(t, err, ErrOriginNotAllowed)
	assert.Equal(t, 0, b.Subscribers())
}

func TestBrokerPublishFanOut(t *testing.T) {
	b := NewBroker([]string{"claude.ai"}, WithClock(fixedClock))

	first := NewChannelSubscriber("https://claude.ai", 4)
	second := NewChannelSubscriber("https://claude.ai/new", 4)
	unsubFirst, err := b.Subscribe(first)
	require.NoError(t, err)
	_, err = b.Subscribe(second)
	require.NoError(t, err)
	_, err = b.Subscribe(failingSubscriber{id: "0-gone", err: errors.New("tab closed")})
	require.NoError(t, err)
	_, err = b.Subscribe(panickingSubscriber{})
	require.NoError(t, err)

	delivered := b.Publish(Message{Event: EventCleared, Domain: "claude.ai"})
	assert.Equal(t, 2, delivered, "failing subscribers never abort the fan-out")

	for _, s := range []*ChannelSubscriber{first, second} {
		msg := <-s.Messages()
		assert.Equal(t, EventCleared, msg.Event)
		assert.Equal(t, "claude.ai", msg.Domain)
		assert.Equal(t, int64(1_700_000_000_000), msg.Timestamp)
	}

	unsubFirst()
	unsubFirst()
	assert.Equal(t, 3, b.Subscribers())

	assert.Equal(t, 1, b.Publish(Message{Event: EventClearedAll, Timestamp: 42}))
	msg := <-second.Messages()
	assert.Equal(t, int64(42), msg.Timestamp)
}

func TestBrokerPublishOrder(t *testing.T) {
	b := NewBroker(nil)
	sub := NewChannelSubscriber("", 8)
	_, err := b.Subscribe(sub)
	require.NoError(t, err)

	for _, resetAt := range []int64{1, 2, 3} {
		status := core.Status{Domain: "x.test", ResetAt: core.Int64(resetAt)}
		b.Publish(Message{Event: EventUpdated, Domain: "x.test", Status: &status})
	}

	for _, want := range []int64{1, 2, 3} {
		msg := <-sub.Messages()
		require.NotNil(t, msg.Status)
		assert.Equal(t, want, *msg.Status.ResetAt)
	}
}

func TestChannelSubscriber(t *testing.T) {
	sub := NewChannelSubscriber("https://claude.ai", 1)
	require.NotEmpty(t, sub.ID())

	require.NoError(t, sub.Deliver(Message{Event: EventUpdated}))
	require.ErrorIs(t, sub.Deliver(Message{Event: EventUpdated}), ErrSubscriberBusy)

	sub.Close()
	sub.Close()
	require.ErrorIs(t, sub.Deliver(Message{Event: EventUpdated}), ErrSubscriberClosed)

	msg, ok := <-sub.Messages()
	require.True(t, ok, "buffered message survives close")
	assert.Equal(t, EventUpdated, msg.Event)

	_, ok = <-sub.Messages()
	assert.False(t, ok)
}
