// Package events carries typed change notifications between processes over
// Redis pub/sub. Payloads are explicit structs; subscribers attach on start
// and detach on teardown.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPermissions is the pub/sub channel for authorization changes.
const ChannelPermissions = "vantage:events:permissions"

// Scope names what kind of target a change applies to.
type Scope string

const (
	ScopeRole  Scope = "ROLE"
	ScopeStaff Scope = "STAFF"
)

// PermissionsChanged announces that a role matrix or staff override was
// committed. Consumers re-resolve; the payload carries no permission data.
type PermissionsChanged struct {
	EventID    string    `json:"event_id"`
	Scope      Scope     `json:"scope"`
	TargetID   string    `json:"target_id"`
	TargetName string    `json:"target_name"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Bus publishes and subscribes typed events over Redis.
type Bus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBus constructs a Bus.
func NewBus(client *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{client: client, logger: logger}
}

// PublishPermissionsChanged sends the event to every subscriber.
func (b *Bus) PublishPermissionsChanged(ctx context.Context, event PermissionsChanged) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("events: bus not configured")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelPermissions, payload).Err(); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// SubscribePermissionsChanged delivers events to handler until ctx is
// cancelled. Malformed payloads are logged and skipped.
func (b *Bus) SubscribePermissionsChanged(ctx context.Context, handler func(PermissionsChanged)) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("events: bus not configured")
	}
	sub := b.client.Subscribe(ctx, ChannelPermissions)
	defer func() {
		_ = sub.Close()
	}()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event PermissionsChanged
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				if b.logger != nil {
					b.logger.Warn("events: drop malformed payload", slog.Any("error", err))
				}
				continue
			}
			handler(event)
		}
	}
}
