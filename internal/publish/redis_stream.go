package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"watchtower-sim/internal/logging"
)

// RedisStreamConfig configures a Redis Streams transport.
type RedisStreamConfig struct {
	Addr     string
	Stream   string
	Capacity int64
	Group    string
	Consumer string
	// Block bounds a single XREADGROUP wait.
	Block     time.Duration
	BatchSize int64
}

// RedisStreamTransport publishes messages as stream entries. A stream holding
// Capacity unconsumed entries refuses new ones with ErrOverflow; consumers
// delete entries once processed.
type RedisStreamTransport struct {
	rdb        *redis.Client
	cfg        RedisStreamConfig
	maxBackoff time.Duration
}

// NewRedisStreamTransport creates a transport for cfg.Stream.
func NewRedisStreamTransport(cfg RedisStreamConfig) *RedisStreamTransport {
	return newRedisStreamTransport(redis.NewClient(&redis.Options{Addr: cfg.Addr}), cfg)
}

func newRedisStreamTransport(rdb *redis.Client, cfg RedisStreamConfig) *RedisStreamTransport {
	if cfg.Group == "" {
		cfg.Group = "watchtower"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &RedisStreamTransport{rdb: rdb, cfg: cfg, maxBackoff: 30 * time.Second}
}

// Ping verifies Redis connectivity.
func (t *RedisStreamTransport) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Publish appends msg to the stream.
func (t *RedisStreamTransport) Publish(ctx context.Context, msg Message) error {
	if t.cfg.Capacity > 0 {
		n, err := t.rdb.XLen(ctx, t.cfg.Stream).Result()
		if err != nil {
			return fmt.Errorf("stream length: %w", err)
		}
		if n >= t.cfg.Capacity {
			return ErrOverflow
		}
	}
	args := &redis.XAddArgs{
		Stream: t.cfg.Stream,
		Values: map[string]interface{}{
			"key":    msg.Key,
			"data":   string(msg.Value),
			"run_id": msg.RunID,
		},
	}
	if t.cfg.Capacity > 0 {
		args.MaxLen = t.cfg.Capacity
	}
	if err := t.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", t.cfg.Stream, err)
	}
	return nil
}

// Subscribe reads the stream through the configured consumer group, backing
// off exponentially while Redis is unavailable.
func (t *RedisStreamTransport) Subscribe(ctx context.Context, h Handler) error {
	if err := t.createGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	log := logging.FromContext(ctx)
	log.Info("stream consumer started", "stream", t.cfg.Stream, "group", t.cfg.Group, "consumer", t.cfg.Consumer)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := t.consumeBatch(ctx, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("stream read failed", "err", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > t.maxBackoff {
				backoff = t.maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

func (t *RedisStreamTransport) createGroup(ctx context.Context) error {
	err := t.rdb.XGroupCreateMkStream(ctx, t.cfg.Stream, t.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (t *RedisStreamTransport) consumeBatch(ctx context.Context, h Handler) error {
	streams, err := t.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.cfg.Group,
		Consumer: t.cfg.Consumer,
		Streams:  []string{t.cfg.Stream, ">"},
		Count:    t.cfg.BatchSize,
		Block:    t.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	log := logging.FromContext(ctx)
	for _, s := range streams {
		for _, m := range s.Messages {
			msg := Message{
				Topic: s.Stream,
				Key:   stringValue(m.Values["key"]),
				Value: []byte(stringValue(m.Values["data"])),
				RunID: stringValue(m.Values["run_id"]),
			}
			if err := h(ctx, msg); err != nil {
				log.Warn("stream message not processed", "id", m.ID, "err", err)
			}
			// delivery is at-most-once: processed or not, the entry leaves the stream
			if err := t.rdb.XAck(ctx, t.cfg.Stream, t.cfg.Group, m.ID).Err(); err != nil {
				log.Warn("stream ack failed", "id", m.ID, "err", err)
			}
			if err := t.rdb.XDel(ctx, t.cfg.Stream, m.ID).Err(); err != nil {
				log.Warn("stream delete failed", "id", m.ID, "err", err)
			}
		}
	}
	return nil
}

// Close closes the Redis connection.
func (t *RedisStreamTransport) Close() error {
	return t.rdb.Close()
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
