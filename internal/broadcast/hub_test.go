package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubTopicFilter(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	docs, cancelDocs := hub.Subscribe(4, TopicDocument)
	defer cancelDocs()
	all, cancelAll := hub.Subscribe(4)
	defer cancelAll()

	hub.Publish(Event{Topic: TopicDocument, Key: "carousing.session"})
	hub.Publish(Event{Topic: TopicToast})

	e := <-docs
	assert.Equal(t, "carousing.session", e.Key)
	assert.Len(t, docs, 0)
	assert.Len(t, all, 2)
}

func TestHubDropsWhenFull(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(Event{Topic: TopicPresence, Key: "1"})
	hub.Publish(Event{Topic: TopicPresence, Key: "2"})

	e := <-ch
	assert.Equal(t, "1", e.Key)
	assert.Len(t, ch, 0)
}

func TestHubUnsubscribe(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	require.Equal(t, 1, hub.Len())

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Len())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestHubClose(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch, _ := hub.Subscribe(1)
	hub.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := hub.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}
