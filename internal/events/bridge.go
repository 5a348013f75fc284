// Package events carries workspace lifecycle events between service
// instances over Redis pub/sub, so role-cache invalidation and workspace
// deletion reach sessions that live on another process.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/anirudh-why/codeHub/internal/models"
	"github.com/anirudh-why/codeHub/internal/session"
)

const Channel = "codehub:workspace"

const (
	TypeRoleChanged      = "roleChanged"
	TypeWorkspaceDeleted = "workspaceDeleted"
)

// Event is the wire format published on Channel.
type Event struct {
	Type       string      `json:"type"`
	Link       string      `json:"link"`
	Email      string      `json:"email,omitempty"`
	Role       models.Role `json:"role,omitempty"`
	InstanceID string      `json:"instanceId"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Bridge publishes local workspace events and applies remote ones to the
// local registry and hub. Events published by this instance are skipped on
// receipt.
type Bridge struct {
	rdb        *redis.Client
	registry   *session.Registry
	hub        *session.Hub
	instanceID string
	log        *zap.Logger
}

func NewBridge(rdb *redis.Client, reg *session.Registry, hub *session.Hub, log *zap.Logger) *Bridge {
	return &Bridge{
		rdb:        rdb,
		registry:   reg,
		hub:        hub,
		instanceID: uuid.New().String(),
		log:        log,
	}
}

func (b *Bridge) InstanceID() string { return b.instanceID }

func (b *Bridge) PublishRoleChanged(ctx context.Context, link, email string, role models.Role) error {
	return b.publish(ctx, Event{Type: TypeRoleChanged, Link: link, Email: email, Role: role})
}

func (b *Bridge) PublishWorkspaceDeleted(ctx context.Context, link string) error {
	return b.publish(ctx, Event{Type: TypeWorkspaceDeleted, Link: link})
}

func (b *Bridge) publish(ctx context.Context, ev Event) error {
	ev.InstanceID = b.instanceID
	ev.Timestamp = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, Channel, data).Err()
}

// Run subscribes to the event channel and applies remote events until ctx is
// cancelled. Intended to run in its own goroutine.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	b.log.Info("subscribed to workspace events", zap.String("instance", b.instanceID))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("malformed workspace event", zap.Error(err))
				continue
			}
			if ev.InstanceID == b.instanceID {
				continue
			}
			b.apply(ev)
		}
	}
}

func (b *Bridge) apply(ev Event) {
	switch ev.Type {
	case TypeRoleChanged:
		n := b.registry.UpdateCachedRole(ev.Email, ev.Link, ev.Role)
		if n > 0 {
			b.log.Info("applied remote role change",
				zap.String("workspace", ev.Link),
				zap.String("email", ev.Email),
				zap.Int("sessions", n),
			)
		}
	case TypeWorkspaceDeleted:
		b.registry.DropWorkspace(ev.Link)
		if room, ok := b.hub.Get(ev.Link); ok {
			room.BroadcastAll(models.WSFrame{Type: models.EvtError, Data: "workspace deleted"})
			b.hub.Delete(ev.Link)
		}
	default:
		b.log.Warn("unknown workspace event", zap.String("type", ev.Type))
	}
}
