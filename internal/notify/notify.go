// Package notify delivers advisory toasts. Toasts are never persisted and a lost toast is not
// an error the caller has to recover from.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bloops-games/carousing/internal/broadcast"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelBenefit Level = "benefit"
	LevelMishap  Level = "mishap"
)

type Toast struct {
	ID string `json:"id"`
	// Recipient is the user the toast is addressed to, empty for the GM
	Recipient string    `json:"recipient,omitempty"`
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Notifier interface {
	Notify(ctx context.Context, t Toast) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Toast) error { return nil }

// Multi fans a toast out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, t Toast) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func NewBroadcast(publisher broadcast.Publisher) *Broadcast {
	return &Broadcast{publisher: publisher}
}

// Broadcast publishes toasts on the toast topic, keyed by recipient.
type Broadcast struct {
	publisher broadcast.Publisher
}

func (b *Broadcast) Notify(_ context.Context, t Toast) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal toast: %w", err)
	}

	b.publisher.Publish(broadcast.Event{Topic: broadcast.TopicToast, Key: t.Recipient, Payload: payload})
	return nil
}

// Decode extracts a toast from a toast topic event.
func Decode(e broadcast.Event) (Toast, error) {
	var t Toast
	if e.Topic != broadcast.TopicToast {
		return t, fmt.Errorf("unexpected topic %q", e.Topic)
	}
	if err := json.Unmarshal(e.Payload, &t); err != nil {
		return t, fmt.Errorf("json unmarshal error, %w", err)
	}
	return t, nil
}
