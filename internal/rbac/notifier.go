package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Table names carried in change events.
const (
	TablePermissions     = "permissions"
	TableRolePermissions = "role_permissions"
)

// ChangeKind classifies a change event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeDelete ChangeKind = "delete"
	// ChangeUnknown is delivered when a payload could not be decoded or a
	// subscription was re-established. It still means "reload".
	ChangeUnknown ChangeKind = "unknown"
)

// DefaultChangeChannel is the Redis channel used when none is configured.
const DefaultChangeChannel = "rbac.changed"

// Change announces a committed mutation. Subscribers reload their snapshot.
type Change struct {
	Table        string     `json:"table"`
	Kind         ChangeKind `json:"kind"`
	PermissionID uuid.UUID  `json:"permission_id"`
	Role         Role       `json:"role,omitempty"`
	At           time.Time  `json:"at"`
}

// Notifier carries change events between writers and open views.
type Notifier interface {
	Publish(ctx context.Context, change Change) error
	// Subscribe delivers events to fn until ctx is cancelled. It returns once
	// the subscription is active.
	Subscribe(ctx context.Context, fn func(Change)) error
}

// LocalNotifier fans events out inside one process.
type LocalNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Change
}

// NewLocalNotifier constructs a LocalNotifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[int]chan Change)}
}

// Publish never blocks. A subscriber with a full buffer already has a reload
// pending, so the event is dropped for it.
func (n *LocalNotifier) Publish(ctx context.Context, change Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(ctx context.Context, fn func(Change)) error {
	if fn == nil {
		return errors.New("rbac: subscriber required")
	}
	ch := make(chan Change, 16)
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	go func() {
		defer func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-ch:
				fn(change)
			}
		}
	}()
	return nil
}

// RedisNotifier publishes change events over Redis pub/sub so every process
// sharing the store sees them.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier constructs a RedisNotifier on channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Publish(ctx context.Context, change Change) error {
	if n == nil || n.client == nil {
		return nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, fn func(Change)) error {
	if fn == nil {
		return errors.New("rbac: subscriber required")
	}
	if n == nil || n.client == nil {
		return nil
	}
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		// A subscription confirmation after the initial Receive means the
		// connection was re-established and events may have been missed.
		ch := pubsub.ChannelWithSubscriptions()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				switch msg := raw.(type) {
				case *redis.Subscription:
					if msg.Kind == "subscribe" {
						fn(Change{Kind: ChangeUnknown, At: time.Now().UTC()})
					}
				case *redis.Message:
					var change Change
					if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
						change = Change{Kind: ChangeUnknown, At: time.Now().UTC()}
					}
					fn(change)
				}
			}
		}
	}()
	return nil
}

var (
	_ Notifier = (*LocalNotifier)(nil)
	_ Notifier = (*RedisNotifier)(nil)
)
