package identity

import (
	"context"
	"testing"

	"github.com/bloops-games/carousing/internal/database"
	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/bloops-games/carousing/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	users := userDb.New(database.NewTestDB(t), nil)
	require.NoError(t, users.Store(userModel.User{ID: "gm", Name: "Game Master", GM: true}))
	require.NoError(t, users.Store(userModel.User{ID: "p1", Name: "Ash"}))

	tracker := presence.NewTracker(nil)
	dir := NewDirectory(users, tracker)

	u, err := dir.User(ctx, "gm")
	require.NoError(t, err)
	assert.True(t, u.GM)

	_, err = dir.User(ctx, "ghost")
	require.ErrorIs(t, err, ErrUnknownUser)

	tracker.Join("p1")
	tracker.Join("ghost")

	online, err := dir.Online(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "p1", online[0].ID)
}

type fixedPresence []string

func (p fixedPresence) OnlineUsers(context.Context) ([]string, error) {
	return p, nil
}

func TestDirectoryUsesSharedOnlineSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	users := userDb.New(database.NewTestDB(t), nil)
	require.NoError(t, users.Store(userModel.User{ID: "bob", Name: "Bob"}))

	// bob is connected to another node; this node's tracker is empty
	dir := NewDirectory(users, fixedPresence{"bob"})

	online, err := dir.Online(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "bob", online[0].ID)
}
