// Package invalidation broadcasts blocklist changes over Redis pub/sub so every
// serving process purges its decision cache after an ingestion run.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
)

const (
	DefaultChannel = "sinkhole:blocklist:invalidate"

	publishTimeout   = 5 * time.Second
	eventTypeRefresh = "blocklist_refreshed"
)

var subscribeBackoff = time.Second

// Event is the JSON payload carried on the channel.
type Event struct {
	Type   string `json:"type"`
	Origin string `json:"origin"`
	At     int64  `json:"at"`
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Bus publishes refresh events and delivers events from other processes.
type Bus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  log.Logger
}

func NewBus(client *redis.Client, channel string, logger log.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Bus{client: client, channel: channel, origin: nodeID(), logger: logger}
}

// Invalidate publishes a refresh event. It satisfies the ingestion pipeline's
// invalidation hook.
func (b *Bus) Invalidate(ctx context.Context) error {
	payload, err := json.Marshal(Event{Type: eventTypeRefresh, Origin: b.origin, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.client.Publish(opCtx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	b.logger.Debug(map[string]any{"channel": b.channel}, "Published blocklist invalidation")
	return nil
}

// Subscribe calls onRefresh for every refresh event published by another
// process until ctx ends. Events from this Bus are skipped since the publisher
// already invalidated locally. It blocks; run it on its own goroutine.
func (b *Bus) Subscribe(ctx context.Context, onRefresh func(context.Context) error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			b.logger.Error(map[string]any{"error": err}, "Invalidation subscription error")
			time.Sleep(subscribeBackoff)
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.logger.Warn(map[string]any{"error": err}, "Invalid invalidation payload")
			continue
		}
		if event.Origin == b.origin {
			continue
		}
		if event.Type != eventTypeRefresh {
			b.logger.Warn(map[string]any{"type": event.Type}, "Unknown invalidation event type")
			continue
		}
		if err := onRefresh(ctx); err != nil {
			b.logger.Warn(map[string]any{"error": err, "origin": event.Origin}, "Failed to apply remote invalidation")
			continue
		}
		b.logger.Info(map[string]any{"origin": event.Origin}, "Applied remote blocklist invalidation")
	}
}

func nodeID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("sinkhole:%s:%d:%d", hostname, os.Getpid(), time.Now().UnixNano())
}
