// Package overlay keeps one client's carousing view in sync with the shared session. It holds
// no state of its own: every refresh rebuilds the view from the engine.
package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/carousing"
	"github.com/bloops-games/carousing/internal/carousing/model"
	"github.com/bloops-games/carousing/internal/carousing/tables"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/notify"
)

const (
	FrameView  = "view"
	FrameToast = "toast"

	eventBuffer = 32
)

type Engine interface {
	Status(ctx context.Context) (carousing.Status, error)
	PruneOffline(ctx context.Context, callerID string) (int, error)
}

type Tables interface {
	List(ctx context.Context) (model.Collection, error)
}

type Subscriber interface {
	Subscribe(buf int, topics ...string) (<-chan broadcast.Event, func())
}

type View struct {
	Viewer userModel.User   `json:"viewer"`
	Status carousing.Status `json:"status"`
	Tables model.Collection `json:"tables"`
}

type Frame struct {
	Type  string        `json:"type"`
	View  *View         `json:"view,omitempty"`
	Toast *notify.Toast `json:"toast,omitempty"`
}

// Renderer pushes frames to the client, typically a websocket connection.
type Renderer interface {
	Render(f Frame) error
}

func New(viewer userModel.User, engine Engine, tables Tables, hub Subscriber, renderer Renderer) *Overlay {
	return &Overlay{viewer: viewer, engine: engine, tables: tables, hub: hub, renderer: renderer}
}

type Overlay struct {
	viewer   userModel.User
	engine   Engine
	tables   Tables
	hub      Subscriber
	renderer Renderer

	mtx    sync.Mutex
	open   bool
	cancel func()
	done   chan struct{}
}

// Open shows the overlay, subscribes to session, table, presence and toast events and renders
// the first view. A GM opening the overlay prunes the data of players who went offline.
func (o *Overlay) Open(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("overlay.Open")

	o.mtx.Lock()
	if o.open {
		o.mtx.Unlock()
		return o.Refresh(ctx)
	}

	events, unsubscribe := o.hub.Subscribe(eventBuffer, broadcast.TopicDocument, broadcast.TopicPresence, broadcast.TopicToast)
	loopCtx, cancel := context.WithCancel(ctx)
	o.open = true
	o.done = make(chan struct{})
	o.cancel = func() {
		cancel()
		unsubscribe()
	}
	done := o.done
	o.mtx.Unlock()

	if o.viewer.GM {
		if n, err := o.engine.PruneOffline(ctx, o.viewer.ID); err != nil {
			logger.Warnf("prune offline players: %v", err)
		} else if n > 0 {
			logger.Debugf("pruned %d offline players", n)
		}
	}

	go o.loop(loopCtx, events, done)

	return o.Refresh(ctx)
}

// Close hides the overlay and waits for its event loop to stop. Closing twice is a no-op.
func (o *Overlay) Close() {
	o.mtx.Lock()
	if !o.open {
		o.mtx.Unlock()
		return
	}
	o.open = false
	cancel, done := o.cancel, o.done
	o.mtx.Unlock()

	cancel()
	<-done
}

func (o *Overlay) IsOpen() bool {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.open
}

// Refresh re-renders the view; it does nothing while the overlay is closed.
func (o *Overlay) Refresh(ctx context.Context) error {
	if !o.IsOpen() {
		return nil
	}

	st, err := o.engine.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	list, err := o.tables.List(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	st = st.VisibleTo(o.viewer)

	return o.renderer.Render(Frame{Type: FrameView, View: &View{Viewer: o.viewer, Status: st, Tables: list}})
}

func (o *Overlay) loop(ctx context.Context, events <-chan broadcast.Event, done chan struct{}) {
	defer close(done)

	logger := logging.FromContext(ctx).Named("overlay.loop")

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}

			switch e.Topic {
			case broadcast.TopicToast:
				o.deliver(ctx, e)
			case broadcast.TopicDocument:
				if !watched(e.Key) {
					continue
				}
				if err := o.Refresh(ctx); err != nil {
					logger.Warnf("refresh: %v", err)
				}
			default:
				if err := o.Refresh(ctx); err != nil {
					logger.Warnf("refresh: %v", err)
				}
			}
		}
	}
}

// deliver renders toasts addressed to the viewer. The GM sees every toast.
func (o *Overlay) deliver(ctx context.Context, e broadcast.Event) {
	t, err := notify.Decode(e)
	if err != nil {
		logging.FromContext(ctx).Named("overlay.deliver").Warnf("bad toast: %v", err)
		return
	}

	if !o.viewer.GM && t.Recipient != o.viewer.ID {
		return
	}

	if err := o.renderer.Render(Frame{Type: FrameToast, Toast: &t}); err != nil {
		logging.FromContext(ctx).Named("overlay.deliver").Debugf("toast not rendered: %v", err)
	}
}

func watched(key string) bool {
	switch key {
	case carousing.SessionKey, carousing.SettingsKey, tables.DocumentKey:
		return true
	}
	return false
}
