package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/yungbote/curator-backend/internal/platform/envutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
	"github.com/yungbote/curator-backend/internal/realtime"
)

const defaultChannel = "curation"

// RedisBus publishes events on a redis pub/sub channel. Publishes go through
// a circuit breaker so a dead redis costs one fast failure per call once the
// breaker opens.
type RedisBus struct {
	log        *logger.Logger
	rdb        goredis.UniversalClient
	channel    string
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	retryBase  time.Duration
}

// NewRedisBus connects using REDIS_ADDR. An empty address returns (nil, nil)
// and callers fall back to the in-process bus.
func NewRedisBus(log *logger.Logger) (*RedisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBusWithClient(log, rdb, envutil.String("CURATION_ALERT_CHANNEL", defaultChannel)), nil
}

func NewRedisBusWithClient(log *logger.Logger, rdb goredis.UniversalClient, channel string) *RedisBus {
	if channel == "" {
		channel = defaultChannel
	}
	busLog := log.With("service", "RedisBus", "channel", channel)
	return &RedisBus{
		log:     busLog,
		rdb:     rdb,
		channel: channel,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "RedisBusPublish",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     envutil.Duration("REDIS_BREAKER_TIMEOUT", 30*time.Second),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				busLog.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		}),
		maxRetries: uint64(envutil.Int("REDIS_PUBLISH_RETRIES", 2)),
		retryBase:  100 * time.Millisecond,
	}
}

func (b *RedisBus) Client() goredis.UniversalClient {
	if b == nil {
		return nil
	}
	return b.rdb
}

func (b *RedisBus) Channel() string { return b.channel }

func (b *RedisBus) Publish(ctx context.Context, ev realtime.Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.retryBase
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, b.maxRetries), ctx)

	op := func() error {
		_, err := b.breaker.Execute(func() (interface{}, error) {
			return nil, b.rdb.Publish(ctx, b.channel, raw).Err()
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Kind, err)
	}
	return nil
}

func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev realtime.Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("Bad redis event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
