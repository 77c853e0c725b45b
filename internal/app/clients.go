package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/curator-backend/internal/platform/logger"
	"github.com/yungbote/curator-backend/internal/realtime/bus"
	"github.com/yungbote/curator-backend/internal/temporalx"
)

type Clients struct {
	// Bus carries job and health events. Redis when REDIS_ADDR is set,
	// otherwise in-process.
	Bus      bus.Bus
	Redis    goredis.UniversalClient
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	var eventBus bus.Bus = bus.NewMemoryBus()
	var rdb goredis.UniversalClient
	rb, err := bus.NewRedisBus(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis bus: %w", err)
	}
	if rb != nil {
		eventBus = rb
		rdb = rb.Client()
	}

	// Temporal
	tc, err := temporalx.NewClient(log)
	if err != nil {
		_ = eventBus.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}

	return Clients{
		Bus:      eventBus,
		Redis:    rdb,
		Temporal: tc,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
