package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bloops-games/carousing/internal/broadcast"
	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/enescakir/emoji"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) Notify(context.Context, Toast) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()

	errA, errB := errors.New("a"), errors.New("b")
	err := Multi{failing{errA}, Nop{}, failing{errB}}.Notify(context.Background(), Toast{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	assert.NoError(t, Multi{Nop{}}.Notify(context.Background(), Toast{}))
}

func TestBroadcastRoundTrip(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe(1, broadcast.TopicToast)
	defer cancel()

	toast := Toast{ID: "t1", Recipient: "alice", Level: LevelMishap, Text: "You lose your boots"}
	require.NoError(t, NewBroadcast(hub).Notify(context.Background(), toast))

	e := <-ch
	assert.Equal(t, "alice", e.Key)

	got, err := Decode(e)
	require.NoError(t, err)
	assert.Equal(t, toast.Text, got.Text)
	assert.Equal(t, LevelMishap, got.Level)

	_, err = Decode(broadcast.Event{Topic: broadcast.TopicDocument})
	assert.Error(t, err)
}

type recordingSender struct {
	sent []tgbotapi.MessageConfig
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.sent = append(r.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type users map[string]userModel.User

func (u users) Fetch(id string) (userModel.User, error) {
	if v, ok := u[id]; ok {
		return v, nil
	}
	return userModel.User{}, userDb.ErrNotFound
}

func TestTelegramRouting(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	n := NewTelegram(sender, users{
		"alice": {ID: "alice", ChatID: 11},
		"bob":   {ID: "bob"},
	}, 99)
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, Toast{Recipient: "alice", Level: LevelBenefit, Text: "A new friend"}))
	require.NoError(t, n.Notify(ctx, Toast{Level: LevelWarning, Text: "Tier out of range"}))
	require.NoError(t, n.Notify(ctx, Toast{Recipient: "bob", Text: "no chat"}))
	require.NoError(t, n.Notify(ctx, Toast{Recipient: "ghost", Text: "unknown"}))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(11), sender.sent[0].ChatID)
	assert.True(t, strings.HasPrefix(sender.sent[0].Text, emoji.Star.String()))
	assert.Equal(t, int64(99), sender.sent[1].ChatID)
	assert.Contains(t, sender.sent[1].Text, "Tier out of range")
}
