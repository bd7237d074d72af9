package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisURL — адрес Redis для локальной разработки.
const DefaultRedisURL = "redis://localhost:6379/0"

const (
	defaultPrefix     = "shelly:"
	defaultHistoryTTL = time.Hour
)

// DialRedis подключается к Redis по URL и проверяет соединение.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		url = DefaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// RedisConfig — настройки RedisHub.
type RedisConfig struct {
	// Prefix — префикс ключей и каналов. По умолчанию "shelly:".
	Prefix string

	// HistoryTTL — сколько хранится история run. По умолчанию час.
	HistoryTTL time.Duration

	// Buffer — размер буфера канала подписчика.
	Buffer int

	Logger *slog.Logger
}

// RedisHub — Hub поверх Redis.
//
// Для каждого run используются три ключа:
//   - <prefix>run:<id>:seq    — счётчик (INCR)
//   - <prefix>run:<id>:events — история (список JSON)
//   - <prefix>run:<id>        — канал pub/sub
type RedisHub struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	buffer int
	logger *slog.Logger
}

// NewRedisHub создаёт RedisHub.
func NewRedisHub(client redis.UniversalClient, cfg RedisConfig) *RedisHub {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RedisHub{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.HistoryTTL,
		buffer: cfg.Buffer,
		logger: cfg.Logger,
	}
}

func (h *RedisHub) channel(runID string) string   { return h.prefix + "run:" + runID }
func (h *RedisHub) seqKey(runID string) string    { return h.channel(runID) + ":seq" }
func (h *RedisHub) eventsKey(runID string) string { return h.channel(runID) + ":events" }

// Publish реализует Hub.
func (h *RedisHub) Publish(ctx context.Context, event Event) error {
	seq, err := h.client.Incr(ctx, h.seqKey(event.RunID)).Result()
	if err != nil {
		return fmt.Errorf("next event seq: %w", err)
	}
	event.Seq = seq

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, h.eventsKey(event.RunID), data)
	pipe.Expire(ctx, h.eventsKey(event.RunID), h.ttl)
	pipe.Expire(ctx, h.seqKey(event.RunID), h.ttl)
	pipe.Publish(ctx, h.channel(event.RunID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe реализует Hub.
//
// Подписка на канал оформляется до чтения истории; события, попавшие
// и в историю, и в канал, отбрасываются по Seq.
func (h *RedisHub) Subscribe(ctx context.Context, runID string) (<-chan Event, error) {
	ps := h.client.Subscribe(ctx, h.channel(runID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	history, err := h.client.LRange(ctx, h.eventsKey(runID), 0, -1).Result()
	if err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}

	out := make(chan Event, h.buffer)
	go func() {
		defer close(out)
		defer ps.Close()

		var last int64
		// deliver возвращает false, когда подписку пора завершить.
		deliver := func(payload string) bool {
			var e Event
			if err := json.Unmarshal([]byte(payload), &e); err != nil {
				h.logger.Warn("skipping malformed live event", "run_id", runID, "error", err)
				return true
			}
			if e.Seq <= last {
				return true
			}
			last = e.Seq
			select {
			case out <- e:
			case <-ctx.Done():
				return false
			}
			return !e.Terminal()
		}

		for _, payload := range history {
			if !deliver(payload) {
				return
			}
		}

		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok || !deliver(msg.Payload) {
					return
				}
			}
		}
	}()
	return out, nil
}
