// Package notify republishes pool lifecycle events to a Redis pub/sub
// channel for downstream fan-out (websocket gateways, audit sinks).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/config"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/pool"
)

// Publisher forwards pool events to Redis. A Publisher with no address
// configured is a no-op so local runs never require Redis.
type Publisher struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

// New builds a publisher from configuration. Empty REDIS_ADDR disables
// publishing.
func New(cfg config.Config, log *slog.Logger) *Publisher {
	p := &Publisher{
		channel: cfg.EventChannel,
		log:     log.With(slog.String("component", "notify")),
	}
	if cfg.RedisAddr == "" {
		return p
	}
	p.client = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return p
}

// Attach subscribes the publisher to a pool's event stream.
func (p *Publisher) Attach(pl *pool.Pool) {
	pl.Subscribe(p.Publish)
}

// Publish forwards one event to the configured channel. Failures are logged,
// never propagated; event delivery is best-effort.
func (p *Publisher) Publish(ev pool.Event) {
	if p.client == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal event", slog.String("event_id", ev.ID), slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Warn("publish event failed",
			slog.String("event_id", ev.ID),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err))
	}
}

// Ping reports broker reachability for readiness checks. Always healthy when
// publishing is disabled.
func (p *Publisher) Ping(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=notify.ping: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
