package carousing

import (
	"context"
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
	"github.com/bloops-games/carousing/internal/presence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	engine   *Engine
	presence *presence.Cluster
}

// newNode builds an engine sharing every store with its peers but owning its connections.
func newNode(client *redis.Client, id string, users *userDb.DB, actors *actorDb.DB) node {
	store := docDb.NewRedis(client, nil)
	cluster := presence.NewCluster(client, presence.NewTracker(nil), presence.ClusterConfig{NodeID: id})

	return node{
		presence: cluster,
		engine: New(&Config{DefaultMode: "custom"}, Deps{
			Store:    store,
			Tables:   tables.New(store),
			Identity: identity.NewDirectory(users, cluster),
			Actors:   actors,
			Notifier: &toastRecorder{},
			Dice:     &seqDice{},
			Metrics:  metrics.New(prometheus.NewRegistry()),
		}),
	}
}

func TestPruneKeepsPlayersOnOtherNodes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := database.NewTestRedis(t, database.TestRedisCluster)
	users := userDb.NewRedis(client)
	actors := actorDb.NewRedis(client)

	a := newNode(client, "node-a", users, actors)
	b := newNode(client, "node-b", users, actors)

	for _, u := range []userModel.User{{ID: gm, Name: gm, GM: true}, {ID: "alice", Name: "alice"}, {ID: "bob", Name: "bob"}} {
		require.NoError(t, users.Store(u))
	}
	for _, owner := range []string{"alice", "bob"} {
		require.NoError(t, actors.Store(ctx, actorModel.Actor{
			ID:      owner + "-pc",
			OwnerID: owner,
			Coins:   actorModel.Coins{GP: 200},
		}))
	}

	a.presence.Join(gm)
	a.presence.Join("alice")
	b.presence.Join("bob")

	require.NoError(t, a.engine.SetTable(ctx, gm, model.DefaultTableID))
	require.NoError(t, a.engine.SetTier(ctx, gm, intPtr(0)))
	require.NoError(t, a.engine.SetDrop(ctx, "alice", "alice", "alice-pc"))
	require.NoError(t, b.engine.SetDrop(ctx, "bob", "bob", "bob-pc"))

	// node a sees bob although he is connected to node b
	st, err := a.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Participants)

	a.presence.Leave("alice")

	pruned, err := a.engine.PruneOffline(ctx, gm)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	s, err := b.engine.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bob": "bob-pc"}, s.Drops)
}
