package notify

import (
	"context"
	"errors"
	"fmt"

	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/strpool"
	"github.com/enescakir/emoji"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Users interface {
	Fetch(userID string) (userModel.User, error)
}

type TelegramConfig struct {
	Token    string `envconfig:"CAROUSING_TELEGRAM_TOKEN"`
	GMChatID int64  `envconfig:"CAROUSING_TELEGRAM_GM_CHAT"`
}

func NewTelegram(tg Sender, users Users, gmChatID int64) *Telegram {
	return &Telegram{tg: tg, users: users, gmChatID: gmChatID}
}

// Telegram mirrors toasts to players' telegram chats. Toasts without a recipient go to the
// GM chat; a recipient without a linked chat is skipped.
type Telegram struct {
	tg       Sender
	users    Users
	gmChatID int64
}

func (t *Telegram) Notify(ctx context.Context, toast Toast) error {
	logger := logging.FromContext(ctx).Named("notify.Telegram")

	chatID := t.gmChatID
	if toast.Recipient != "" {
		u, err := t.users.Fetch(toast.Recipient)
		if err != nil {
			if errors.Is(err, userDb.ErrNotFound) {
				logger.Debugf("toast recipient %s is unknown", toast.Recipient)
				return nil
			}
			return fmt.Errorf("fetch recipient: %w", err)
		}
		chatID = u.ChatID
	}

	if chatID == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, render(toast))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.tg.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

func render(toast Toast) string {
	buf := strpool.Get()
	defer strpool.Put(buf)

	switch toast.Level {
	case LevelBenefit:
		buf.WriteString(emoji.Star.String())
	case LevelMishap:
		buf.WriteString(emoji.CrossMark.String())
	case LevelWarning:
		buf.WriteString(emoji.Loudspeaker.String())
	default:
		buf.WriteString(emoji.GameDie.String())
	}
	buf.WriteString(" ")
	buf.WriteString(toast.Text)

	return buf.String()
}
