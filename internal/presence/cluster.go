package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bloops-games/carousing/internal/logging"
	"github.com/redis/go-redis/v9"
)

const (
	clusterPrefix = "carousing:presence:"
	nodesKey      = clusterPrefix + "nodes"
	syncTimeout   = 5 * time.Second

	DefaultTTL = 30 * time.Second
)

type ClusterConfig struct {
	NodeID string
	// TTL is how long a node's connections stay visible without a heartbeat.
	TTL time.Duration
}

// NewCluster mirrors the local tracker into redis so every node sees the same online set.
// Each node owns one hash of user id to connection count, refreshed by Run and expiring with
// the node.
func NewCluster(client *redis.Client, local *Tracker, config ClusterConfig) *Cluster {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	return &Cluster{
		client:  client,
		local:   local,
		config:  config,
		nodeKey: clusterPrefix + "node:" + config.NodeID,
	}
}

type Cluster struct {
	client  *redis.Client
	local   *Tracker
	config  ClusterConfig
	nodeKey string

	// serializes writes to this node's hash
	mtx sync.Mutex
}

func (c *Cluster) Join(userID string) bool {
	first := c.local.Join(userID)
	c.syncUser(userID)
	return first
}

func (c *Cluster) Leave(userID string) bool {
	last := c.local.Leave(userID)
	c.syncUser(userID)
	return last
}

func (c *Cluster) IsOnline(userID string) bool {
	return c.local.IsOnline(userID)
}

// Online lists the users connected to this node.
func (c *Cluster) Online() []string {
	return c.local.Online()
}

// OnlineUsers lists users connected to any live node, ordered by id. A crashed node stays in
// the node set but its hash expires, so its users drop out after TTL.
func (c *Cluster) OnlineUsers(ctx context.Context) ([]string, error) {
	nodes, err := c.client.SMembers(ctx, nodesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}

	cmds := make([]*redis.StringSliceCmd, len(nodes))
	if _, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, node := range nodes {
			cmds[i] = pipe.HKeys(ctx, clusterPrefix+"node:"+node)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}

	seen := map[string]struct{}{}
	for _, cmd := range cmds {
		for _, id := range cmd.Val() {
			seen[id] = struct{}{}
		}
	}

	list := make([]string, 0, len(seen))
	for id := range seen {
		list = append(list, id)
	}
	sort.Strings(list)

	return list, nil
}

// Run refreshes this node's hash until ctx is done, then removes it.
func (c *Cluster) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("presence.Run")

	ticker := time.NewTicker(c.config.TTL / 3)
	defer ticker.Stop()

	if err := c.heartbeat(ctx); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			cleanup, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			if _, err := c.client.TxPipelined(cleanup, func(pipe redis.Pipeliner) error {
				pipe.Del(cleanup, c.nodeKey)
				pipe.SRem(cleanup, nodesKey, c.config.NodeID)
				return nil
			}); err != nil {
				logger.Warnf("remove node %s: %v", c.config.NodeID, err)
			}
			return nil
		case <-ticker.C:
			if err := c.heartbeat(ctx); err != nil && ctx.Err() == nil {
				logger.Warnf("heartbeat: %v", err)
			}
		}
	}
}

// heartbeat rewrites the whole hash from the local tracker in one transaction.
func (c *Cluster) heartbeat(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	counts := c.local.snapshot()
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.nodeKey)
		for id, n := range counts {
			pipe.HSet(ctx, c.nodeKey, id, n)
		}
		pipe.Expire(ctx, c.nodeKey, c.config.TTL)
		pipe.SAdd(ctx, nodesKey, c.config.NodeID)
		return nil
	})
	return err
}

func (c *Cluster) syncUser(userID string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	n := c.local.Count(userID)
	if _, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if n > 0 {
			pipe.HSet(ctx, c.nodeKey, userID, n)
		} else {
			pipe.HDel(ctx, c.nodeKey, userID)
		}
		pipe.Expire(ctx, c.nodeKey, c.config.TTL)
		pipe.SAdd(ctx, nodesKey, c.config.NodeID)
		return nil
	}); err != nil {
		logging.FromContext(ctx).Named("presence.syncUser").
			Warnf("sync %s on node %s: %v", userID, c.config.NodeID, err)
	}
}
