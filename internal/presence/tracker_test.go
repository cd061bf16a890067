package presence

import (
	"context"
	"testing"
	"time"

	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub()
	events, cancel := hub.Subscribe(8, broadcast.TopicPresence)
	defer cancel()

	tracker := NewTracker(hub)

	assert.True(t, tracker.Join("b"))
	assert.False(t, tracker.Join("b"))
	assert.True(t, tracker.Join("a"))
	assert.Equal(t, []string{"a", "b"}, tracker.Online())

	assert.False(t, tracker.Leave("b"))
	assert.True(t, tracker.IsOnline("b"))
	assert.True(t, tracker.Leave("b"))
	assert.False(t, tracker.IsOnline("b"))
	assert.False(t, tracker.Leave("b"))

	assert.Equal(t, []string{"a"}, tracker.Online())
	assert.Len(t, events, 3)
}

func TestClusterSharesOnlineSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := database.NewTestRedis(t, database.TestRedisPresence)

	nodeA := NewCluster(client, NewTracker(nil), ClusterConfig{NodeID: "a"})
	nodeB := NewCluster(client, NewTracker(nil), ClusterConfig{NodeID: "b"})

	assert.True(t, nodeA.Join("gm"))
	assert.True(t, nodeB.Join("bob"))
	assert.False(t, nodeB.Join("bob"))

	online, err := nodeA.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "gm"}, online)
	assert.Equal(t, []string{"gm"}, nodeA.Online())

	assert.False(t, nodeB.Leave("bob"))
	online, err = nodeA.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Contains(t, online, "bob")

	assert.True(t, nodeB.Leave("bob"))
	online, err = nodeA.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gm"}, online)
}

func TestClusterNodeExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := database.NewTestRedis(t, database.TestRedisPresenceExpiry)

	crashed := NewCluster(client, NewTracker(nil), ClusterConfig{NodeID: "crashed", TTL: time.Second})
	observer := NewCluster(client, NewTracker(nil), ClusterConfig{NodeID: "observer"})

	crashed.Join("bob")

	online, err := observer.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, online)

	require.Eventually(t, func() bool {
		online, err := observer.OnlineUsers(ctx)
		return err == nil && len(online) == 0
	}, 5*time.Second, 100*time.Millisecond)
}

func TestClusterRunRemovesNodeOnShutdown(t *testing.T) {
	t.Parallel()

	client := database.NewTestRedis(t, database.TestRedisPresenceShutdown)
	node := NewCluster(client, NewTracker(nil), ClusterConfig{NodeID: "n1"})
	node.Join("ash")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- node.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		online, err := node.OnlineUsers(context.Background())
		return err == nil && len(online) == 1
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	online, err := node.OnlineUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, online)
}
