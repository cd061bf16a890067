package carousing

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/bloops-games/carousing/internal/carousing/model"
	"github.com/bloops-games/carousing/internal/carousing/tables"
	"github.com/bloops-games/carousing/internal/database"
	actorDb "github.com/bloops-games/carousing/internal/database/actor/database"
	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
	docDb "github.com/bloops-games/carousing/internal/database/document/database"
	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/bloops-games/carousing/internal/identity"
	"github.com/bloops-games/carousing/internal/metrics"
	"github.com/bloops-games/carousing/internal/notify"
	"github.com/bloops-games/carousing/internal/presence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const gm = "gm"

// seqDice returns the queued faces in order and 1 once the queue is empty.
type seqDice struct {
	mtx   sync.Mutex
	faces []int
}

func (d *seqDice) queue(faces ...int) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.faces = append(d.faces, faces...)
}

func (d *seqDice) Intn(n int) int {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if len(d.faces) == 0 {
		return 0
	}
	face := d.faces[0]
	d.faces = d.faces[1:]
	if face < 1 || face > n {
		return 0
	}
	return face - 1
}

type toastRecorder struct {
	mtx    sync.Mutex
	toasts []notify.Toast
}

func (r *toastRecorder) Notify(_ context.Context, t notify.Toast) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.toasts = append(r.toasts, t)
	return nil
}

func (r *toastRecorder) levels(recipient string) []notify.Level {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var list []notify.Level
	for _, t := range r.toasts {
		if t.Recipient == recipient {
			list = append(list, t.Level)
		}
	}
	return list
}

type harness struct {
	engine   *Engine
	store    *docDb.DB
	actors   *actorDb.DB
	users    *userDb.DB
	presence *presence.Tracker
	tables   *tables.Repository
	dice     *seqDice
	toasts   *toastRecorder
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return newWrappedHarness(t, nil)
}

// newWrappedHarness builds the engine over wrap(store) so tests can interfere with writes.
func newWrappedHarness(t *testing.T, wrap func(Store) Store) *harness {
	t.Helper()

	db := database.NewTestDB(t)
	h := &harness{
		store:    docDb.New(db, nil, nil),
		actors:   actorDb.New(db),
		users:    userDb.New(db, nil),
		presence: presence.NewTracker(nil),
		dice:     &seqDice{},
		toasts:   &toastRecorder{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	h.tables = tables.New(h.store)

	var store Store = h.store
	if wrap != nil {
		store = wrap(h.store)
	}

	h.engine = New(&Config{DefaultMode: "custom"}, Deps{
		Store:    store,
		Tables:   h.tables,
		Identity: identity.NewDirectory(h.users, h.presence),
		Actors:   h.actors,
		Notifier: h.toasts,
		Dice:     h.dice,
		Metrics:  h.metrics,
	})

	h.addUser(t, gm, true, true)

	return h
}

func (h *harness) addUser(t *testing.T, id string, isGM, online bool) {
	t.Helper()

	require.NoError(t, h.users.Store(userModel.User{ID: id, Name: id, GM: isGM}))
	if online {
		h.presence.Join(id)
	}
}

// addPlayer registers an online player owning one actor with the given gold.
func (h *harness) addPlayer(t *testing.T, id string, gold int) string {
	t.Helper()

	h.addUser(t, id, false, true)
	actorID := id + "-pc"
	require.NoError(t, h.actors.Store(context.Background(), actorModel.Actor{
		ID:      actorID,
		OwnerID: id,
		Name:    id + "'s character",
		Coins:   actorModel.Coins{GP: gold},
	}))

	return actorID
}

func (h *harness) session(t *testing.T) model.Session {
	t.Helper()

	s, err := h.engine.Session(context.Background())
	require.NoError(t, err)
	return s
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()

	st, err := h.engine.Status(context.Background())
	require.NoError(t, err)
	return st
}

func (h *harness) gold(t *testing.T, actorID string) int {
	t.Helper()

	a, err := h.actors.Actor(context.Background(), actorID)
	require.NoError(t, err)
	return a.Coins.Copper() / actorModel.CopperPerGold
}

// ready drops, confirms and selects the default table at tier 0 for every given player.
func (h *harness) ready(t *testing.T, players ...string) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, h.engine.SetTable(ctx, gm, model.DefaultTableID))
	require.NoError(t, h.engine.SetTier(ctx, gm, intPtr(0)))
	for _, p := range players {
		require.NoError(t, h.engine.SetDrop(ctx, p, p, p+"-pc"))
		require.NoError(t, h.engine.SetConfirmation(ctx, p, p, true))
	}
}

func intPtr(i int) *int {
	return &i
}

func actorModelFor(id, owner string) actorModel.Actor {
	return actorModel.Actor{ID: id, OwnerID: owner, Name: id}
}

func jsonBytes(t *testing.T, v interface{}) []byte {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
