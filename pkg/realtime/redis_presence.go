package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KEYS[1] = this node's hash, KEYS[2] = node registry
// ARGV[1] = key, ARGV[2] = delta, ARGV[3] = ttl ms, ARGV[4] = node id
// Returns the node's new connection count for the key; zero or below removes it.
var presenceAdjust = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], tonumber(ARGV[2]))
if n <= 0 then
  redis.call("HDEL", KEYS[1], ARGV[1])
  n = 0
end
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[3]))
  redis.call("SADD", KEYS[2], ARGV[4])
end
return n
`)

const defaultPresenceTTL = 30 * time.Second

// RedisPresenceOption customises a RedisPresence.
type RedisPresenceOption func(*RedisPresence)

// WithPresenceTTL sets how long a node's members outlive its last heartbeat.
func WithPresenceTTL(ttl time.Duration) RedisPresenceOption {
	return func(p *RedisPresence) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithPresenceHeartbeat overrides the heartbeat period, ttl/3 by default.
func WithPresenceHeartbeat(every time.Duration) RedisPresenceOption {
	return func(p *RedisPresence) {
		if every > 0 {
			p.heartbeat = every
		}
	}
}

// RedisPresence shares presence across API nodes. Every node counts its own
// connections in a hash that expires unless the node keeps refreshing it, so
// the members of a crashed node disappear after the ttl. Surviving nodes
// notice the expiry on their heartbeat and broadcast a sync.
type RedisPresence struct {
	client    *redis.Client
	nodeID    string
	nodesKey  string
	prefix    string
	channel   string
	ttl       time.Duration
	heartbeat time.Duration
	logger    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRedisPresence constructs a presence channel named name and starts its heartbeat.
// Close stops the heartbeat and withdraws this node's members.
func NewRedisPresence(client *redis.Client, name string, logger *zap.Logger, opts ...RedisPresenceOption) *RedisPresence {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = "online-users"
	}
	p := &RedisPresence{
		client:   client,
		nodeID:   uuid.NewString(),
		nodesKey: "presence:" + name + ":nodes",
		prefix:   "presence:" + name + ":node:",
		channel:  "presence:" + name + ":events",
		ttl:      defaultPresenceTTL,
		logger:   logger,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.heartbeat <= 0 {
		p.heartbeat = p.ttl / 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
	return p
}

func (p *RedisPresence) nodeKey(nodeID string) string {
	return p.prefix + nodeID
}

// Track registers a connection for key.
func (p *RedisPresence) Track(ctx context.Context, key string) error {
	n, err := p.adjust(ctx, key, 1)
	if err != nil {
		return fmt.Errorf("presence track %s: %w", key, err)
	}
	if n == 1 {
		p.publish(ctx, PresenceEvent{Type: PresenceJoin, Key: key})
	}
	return p.publishSync(ctx)
}

// Untrack releases a connection for key. The key leaves only when no node tracks it.
func (p *RedisPresence) Untrack(ctx context.Context, key string) error {
	n, err := p.adjust(ctx, key, -1)
	if err != nil {
		return fmt.Errorf("presence untrack %s: %w", key, err)
	}
	members, err := p.Members(ctx)
	if err != nil {
		return err
	}
	if n == 0 && !contains(members, key) {
		p.publish(ctx, PresenceEvent{Type: PresenceLeave, Key: key})
	}
	p.publish(ctx, PresenceEvent{Type: PresenceSync, Keys: members})
	return nil
}

// Members returns the keys tracked by any live node.
func (p *RedisPresence) Members(ctx context.Context) ([]string, error) {
	nodes, err := p.client.SMembers(ctx, p.nodesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("presence nodes: %w", err)
	}
	if len(nodes) == 0 {
		return []string{}, nil
	}
	cmds := make([]*redis.StringSliceCmd, 0, len(nodes))
	if _, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, node := range nodes {
			cmds = append(cmds, pipe.HKeys(ctx, p.nodeKey(node)))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("presence members: %w", err)
	}

	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for _, cmd := range cmds {
		for _, key := range cmd.Val() {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Subscribe relays presence events published by any node to h.
func (p *RedisPresence) Subscribe(h PresenceHandler) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := p.client.Subscribe(ctx, p.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("presence subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		for msg := range ch {
			var evt PresenceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				p.logger.Warn("drop malformed presence event", zap.Error(err))
				continue
			}
			h(evt)
		}
	}()
	return subscriptionFunc(func() error {
		cancel()
		return pubsub.Close()
	}), nil
}

// Close stops the heartbeat and removes this node's members. The redis client
// is owned by the caller.
func (p *RedisPresence) Close() error {
	var err error
	p.once.Do(func() {
		p.cancel()
		<-p.done

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pipe := p.client.TxPipeline()
		pipe.Del(ctx, p.nodeKey(p.nodeID))
		pipe.SRem(ctx, p.nodesKey, p.nodeID)
		if _, err = pipe.Exec(ctx); err != nil {
			err = fmt.Errorf("presence withdraw: %w", err)
			return
		}
		err = p.publishSync(ctx)
	})
	return err
}

func (p *RedisPresence) adjust(ctx context.Context, key string, delta int) (int64, error) {
	return presenceAdjust.Run(ctx, p.client, []string{p.nodeKey(p.nodeID), p.nodesKey},
		key, delta, p.ttl.Milliseconds(), p.nodeID).Int64()
}

func (p *RedisPresence) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.beat(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("presence heartbeat failed", zap.String("node", p.nodeID), zap.Error(err))
			}
		}
	}
}

// beat refreshes this node's ttl and sweeps nodes whose hash expired.
func (p *RedisPresence) beat(ctx context.Context) error {
	if err := p.client.PExpire(ctx, p.nodeKey(p.nodeID), p.ttl).Err(); err != nil {
		return fmt.Errorf("refresh node ttl: %w", err)
	}
	_, err := p.sweep(ctx)
	return err
}

// sweep drops registry entries of nodes whose hash expired or emptied and
// broadcasts a sync when it dropped any.
func (p *RedisPresence) sweep(ctx context.Context) (int, error) {
	nodes, err := p.client.SMembers(ctx, p.nodesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("presence nodes: %w", err)
	}
	var stale []interface{}
	for _, node := range nodes {
		if node == p.nodeID {
			continue
		}
		n, err := p.client.Exists(ctx, p.nodeKey(node)).Result()
		if err != nil {
			return 0, fmt.Errorf("presence node %s: %w", node, err)
		}
		if n == 0 {
			stale = append(stale, node)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := p.client.SRem(ctx, p.nodesKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("presence prune: %w", err)
	}
	p.logger.Info("presence pruned expired nodes", zap.Int("count", len(stale)))
	return len(stale), p.publishSync(ctx)
}

func (p *RedisPresence) publishSync(ctx context.Context) error {
	keys, err := p.Members(ctx)
	if err != nil {
		return err
	}
	p.publish(ctx, PresenceEvent{Type: PresenceSync, Keys: keys})
	return nil
}

func (p *RedisPresence) publish(ctx context.Context, evt PresenceEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("presence publish failed", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

func contains(list []string, key string) bool {
	i := sort.SearchStrings(list, key)
	return i < len(list) && list[i] == key
}
