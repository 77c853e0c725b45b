package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/yungbote/curator-backend/internal/data/repos/testutil"
	"github.com/yungbote/curator-backend/internal/realtime"
)

func recvEvent(t *testing.T, ch <-chan realtime.Event) realtime.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return realtime.Event{}
}

func TestMemoryBusFanOut(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	got := make(chan realtime.Event, 4)
	if err := b.StartForwarder(ctx, func(ev realtime.Event) { got <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.Publish(ctx, realtime.Event{Channel: "curation", Kind: realtime.EventHealthAlert}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ev := recvEvent(t, got); ev.Kind != realtime.EventHealthAlert {
		t.Fatalf("kind: want=%s got=%s", realtime.EventHealthAlert, ev.Kind)
	}
	_ = b.Close()
	if err := b.Publish(ctx, realtime.Event{Kind: realtime.EventJobDone}); err != nil {
		t.Fatalf("Publish after close: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("closed bus still delivered %d events", len(got))
	}
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	b := NewRedisBusWithClient(testutil.Logger(t), rdb, "curation-test")
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan realtime.Event, 4)
	if err := b.StartForwarder(ctx, func(ev realtime.Event) { got <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	sent := realtime.Event{
		Channel: "curation",
		Kind:    realtime.EventJobFailed,
		Data:    map[string]any{"stage": "schedule"},
	}
	if err := b.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ev := recvEvent(t, got)
	if ev.Kind != realtime.EventJobFailed || ev.Data["stage"] != "schedule" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.At.IsZero() {
		t.Fatalf("publish should stamp At")
	}
}

func TestRedisBusBreakerOpens(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	b := NewRedisBusWithClient(testutil.Logger(t), rdb, "curation-test")
	b.retryBase = time.Millisecond
	t.Cleanup(func() { _ = b.Close() })
	mr.Close()

	ctx := context.Background()
	var last error
	for i := 0; i < 4; i++ {
		last = b.Publish(ctx, realtime.Event{Kind: realtime.EventHealthAlert})
		if last == nil {
			t.Fatalf("publish %d succeeded against a closed server", i)
		}
	}
	if !errors.Is(last, gobreaker.ErrOpenState) {
		t.Fatalf("want open breaker, got %v", last)
	}
}
