package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bloops-games/carousing/internal/auth"
	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/carousing"
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
	"github.com/bloops-games/carousing/internal/overlay"
	"github.com/bloops-games/carousing/internal/presence"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const allowedOrigin = "https://overlay.example"

type fixture struct {
	auth     *auth.Authenticator
	router   *gin.Engine
	presence *presence.Tracker
	actors   *actorDb.DB
	tables   *tables.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := database.NewTestDB(t)
	hub := broadcast.NewHub()
	t.Cleanup(hub.Close)

	store := docDb.New(db, nil, hub)
	users := userDb.New(db, nil)
	tracker := presence.NewTracker(hub)
	directory := identity.NewDirectory(users, tracker)
	actors := actorDb.New(db)
	repo := tables.New(store)
	m := metrics.New(prometheus.NewRegistry())

	engine := carousing.New(&carousing.Config{DefaultMode: "custom"}, carousing.Deps{
		Store:    store,
		Tables:   repo,
		Identity: directory,
		Actors:   actors,
		Notifier: notify.NewBroadcast(hub),
		Metrics:  m,
	})

	authenticator, err := auth.New(&auth.Config{SigningKey: "test-signing-key"}, users)
	require.NoError(t, err)

	for _, u := range []userModel.User{{ID: "gm", GM: true}, {ID: "alice"}, {ID: "bob"}} {
		require.NoError(t, users.Store(u))
		hash, err := auth.HashSecret(u.ID + "-secret")
		require.NoError(t, err)
		require.NoError(t, users.StoreSecretHash(u.ID, hash))
	}
	for _, a := range []actorModel.Actor{
		{ID: "alice-pc", OwnerID: "alice", Coins: actorModel.Coins{GP: 60}},
		{ID: "bob-pc", OwnerID: "bob", Coins: actorModel.Coins{GP: 40}},
	} {
		require.NoError(t, actors.Store(context.Background(), a))
	}

	r := gin.New()
	r.Use(Logger(zap.NewNop()))
	New(Deps{
		Auth:           authenticator,
		AllowedOrigins: []string{allowedOrigin},
		Engine:         engine,
		Tables:         repo,
		Actors:         actors,
		Users:          directory,
		Presence:       tracker,
		Hub:            hub,
		Metrics:        m,
	}).Register(r)

	return &fixture{auth: authenticator, router: r, presence: tracker, actors: actors, tables: repo}
}

func (f *fixture) do(t *testing.T, caller, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, caller))
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := f.auth.Issue(userID)
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestCallerIsRequired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, "", http.MethodGet, "/api/v1/session", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "mallory", http.MethodGet, "/api/v1/session", nil).Code)

	rec := f.do(t, "alice", http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var s model.Session
	decode(t, rec, &s)
	assert.Equal(t, model.PhaseCollecting, s.Phase)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, "alice", http.MethodPut, "/api/v1/session/table", map[string]string{"tableId": model.DefaultTableID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, "gm", http.MethodPut, "/api/v1/session/table", map[string]string{"tableId": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, "gm", http.MethodPut, "/api/v1/session/table", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusNoContent,
		f.do(t, "gm", http.MethodPut, "/api/v1/session/table", map[string]string{"tableId": model.DefaultTableID}).Code)
	rec = f.do(t, "gm", http.MethodPut, "/api/v1/session/tier", map[string]int{"tier": 42})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, "gm", http.MethodDelete, "/api/v1/session/results/alice/treasure/0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "gm", http.MethodDelete, "/api/v1/session/results/alice/benefit/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var removed map[string]bool
	decode(t, rec, &removed)
	assert.False(t, removed["removed"])

	rec = f.do(t, "gm", http.MethodDelete, "/api/v1/tables/custom/"+model.DefaultTableID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, "gm", http.MethodGet, "/api/v1/tables/custom/missing/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoundOverHTTP(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, id := range []string{"gm", "alice", "bob"} {
		f.presence.Join(id)
	}

	require.Equal(t, http.StatusNoContent,
		f.do(t, "gm", http.MethodPut, "/api/v1/session/table", map[string]string{"tableId": model.DefaultTableID}).Code)
	require.Equal(t, http.StatusNoContent,
		f.do(t, "gm", http.MethodPut, "/api/v1/session/tier", map[string]int{"tier": 0}).Code)

	for _, p := range []string{"alice", "bob"} {
		require.Equal(t, http.StatusNoContent,
			f.do(t, p, http.MethodPut, "/api/v1/session/drops/"+p, map[string]string{"actorId": p + "-pc"}).Code)
		require.Equal(t, http.StatusNoContent,
			f.do(t, p, http.MethodPut, "/api/v1/session/confirmations/"+p, map[string]bool{"confirmed": true}).Code)
	}

	assert.Equal(t, http.StatusForbidden,
		f.do(t, "alice", http.MethodPut, "/api/v1/session/drops/bob", map[string]string{"actorId": ""}).Code)

	var st carousing.Status
	decode(t, f.do(t, "gm", http.MethodGet, "/api/v1/status", nil), &st)
	assert.Equal(t, 50, st.SplitCost)
	assert.False(t, st.CanRoll)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, "gm", http.MethodPost, "/api/v1/session/roll", nil).Code)

	rec := f.do(t, "gm", http.MethodPost, "/api/v1/actors/bob-pc/award", map[string]int{"gold": 20})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "gm", http.MethodPost, "/api/v1/session/roll", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report carousing.Report
	decode(t, rec, &report)
	assert.Equal(t, []string{"alice", "bob"}, report.Resolved)

	var s model.Session
	decode(t, f.do(t, "bob", http.MethodGet, "/api/v1/session", nil), &s)
	assert.Equal(t, model.PhaseResolved, s.Phase)
	assert.Len(t, s.Results["bob"], 1)

	var own []actorModel.Actor
	decode(t, f.do(t, "bob", http.MethodGet, "/api/v1/actors", nil), &own)
	require.Len(t, own, 1)
	assert.Equal(t, "bob-pc", own[0].ID)

	require.Equal(t, http.StatusNoContent, f.do(t, "gm", http.MethodPost, "/api/v1/session/reset", nil).Code)
	s = model.Session{}
	decode(t, f.do(t, "gm", http.MethodGet, "/api/v1/session", nil), &s)
	assert.Len(t, s.Drops, 2)
	assert.Empty(t, s.Results)
}

func TestTablesOverHTTP(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, "gm", http.MethodPost, "/api/v1/tables/custom", model.Table{
		Name:     "Harbor",
		Tiers:    []model.Tier{{Cost: 10}},
		Outcomes: []model.Outcome{{Roll: "1+", Description: "Sea shanty"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created model.Table
	decode(t, rec, &created)
	require.NotEmpty(t, created.ID)

	assert.Equal(t, http.StatusForbidden, f.do(t, "alice", http.MethodPost, "/api/v1/tables/custom", created).Code)

	rec = f.do(t, "gm", http.MethodGet, "/api/v1/tables/custom/"+created.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.Bytes()

	assert.Equal(t, http.StatusUnprocessableEntity,
		f.do(t, "gm", http.MethodPost, "/api/v1/tables/expanded/import", exported).Code)

	rec = f.do(t, "gm", http.MethodPost, "/api/v1/tables/custom/import", exported)
	require.Equal(t, http.StatusOK, rec.Code)

	var list model.Collection
	decode(t, f.do(t, "alice", http.MethodGet, "/api/v1/tables", nil), &list)
	assert.Len(t, list.Custom, 3)
	assert.Len(t, list.Expanded, 1)

	rec = f.do(t, "alice", http.MethodPost, "/api/v1/tables/expanded/parse", map[string]string{
		"section": "outcomes",
		"text":    "1 | 2 | 0 | -10 | 0\nbroken",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var parsed struct {
		Rows    []model.Recipe `json:"rows"`
		Skipped int            `json:"skipped"`
	}
	decode(t, rec, &parsed)
	assert.Equal(t, []model.Recipe{{Roll: "1", Mishaps: 2, Modifier: -10}}, parsed.Rows)
	assert.Equal(t, 1, parsed.Skipped)

	assert.Equal(t, http.StatusNoContent, f.do(t, "gm", http.MethodDelete, "/api/v1/tables/custom/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "gm", http.MethodDelete, "/api/v1/tables/weird/x", nil).Code)
}

func TestWebsocketOverlay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?access_token=" + f.token(t, "alice")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() overlay.Frame {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame overlay.Frame
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	first := readFrame()
	require.Equal(t, overlay.FrameView, first.Type)
	assert.Equal(t, "alice", first.View.Viewer.ID)
	assert.True(t, f.presence.IsOnline("alice"))

	require.Equal(t, http.StatusNoContent,
		f.do(t, "alice", http.MethodPut, "/api/v1/session/drops/alice", map[string]string{"actorId": "alice-pc"}).Code)

	seen := false
	for i := 0; i < 10 && !seen; i++ {
		frame := readFrame()
		seen = frame.Type == overlay.FrameView && frame.View.Status.Session.Drops["alice"] == "alice-pc"
	}
	assert.True(t, seen, "drop never reached the overlay")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return !f.presence.IsOnline("alice")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestForgedCallerIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	send := func(req *http.Request) int {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec.Code
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/reset", nil)
	req.Header.Set("X-Carousing-User", "gm")
	assert.Equal(t, http.StatusUnauthorized, send(req))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/session/reset?user=gm", nil)
	assert.Equal(t, http.StatusUnauthorized, send(req))

	other, err := auth.New(&auth.Config{SigningKey: "someone-else"}, nil)
	require.NoError(t, err)
	forged, err := other.Issue("gm")
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/session/reset", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, send(req))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/session/reset", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, send(req))
}

func TestLoginOverHTTP(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	login := func(user, secret string) *httptest.ResponseRecorder {
		return f.do(t, "", http.MethodPost, "/api/v1/login", map[string]string{"user": user, "secret": secret})
	}

	assert.Equal(t, http.StatusUnauthorized, login("alice", "gm-secret").Code)
	assert.Equal(t, http.StatusUnauthorized, login("mallory", "mallory-secret").Code)
	assert.Equal(t, http.StatusBadRequest, login("alice", "").Code)

	rec := login("alice", "alice-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	decode(t, rec, &body)
	require.NotEmpty(t, body.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// a player token does not open GM operations
	req = httptest.NewRequest(http.MethodPost, "/api/v1/session/reset", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebsocketChecksOrigin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?access_token=" + f.token(t, "alice")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	for _, origin := range []string{allowedOrigin, srv.URL} {
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {origin}})
		require.NoError(t, err, origin)
		require.NoError(t, conn.Close())
	}
}

func TestPlayersOnlySeeTheirOwnModifier(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, p := range []string{"gm", "alice", "bob"} {
		f.presence.Join(p)
	}
	for _, p := range []string{"alice", "bob"} {
		require.Equal(t, http.StatusNoContent,
			f.do(t, p, http.MethodPut, "/api/v1/session/drops/"+p, map[string]string{"actorId": p + "-pc"}).Code)
		require.Equal(t, http.StatusNoContent,
			f.do(t, "gm", http.MethodPut, "/api/v1/session/modifiers/"+p,
				map[string]string{"field": "outcome", "text": "Secret for " + p}).Code)
	}

	var s model.Session
	decode(t, f.do(t, "bob", http.MethodGet, "/api/v1/session", nil), &s)
	assert.Equal(t, map[string]model.Modifier{"bob": {Outcome: "Secret for bob"}}, s.Modifiers)

	var st carousing.Status
	decode(t, f.do(t, "bob", http.MethodGet, "/api/v1/status", nil), &st)
	assert.Len(t, st.Session.Modifiers, 1)
	require.Len(t, st.Players, 2)
	for _, p := range st.Players {
		if p.User.ID == "bob" {
			assert.Equal(t, "Secret for bob", p.Modifier.Outcome)
		} else {
			assert.True(t, p.Modifier.Empty(), p.User.ID)
		}
	}

	decode(t, f.do(t, "gm", http.MethodGet, "/api/v1/session", nil), &s)
	assert.Len(t, s.Modifiers, 2)
}
