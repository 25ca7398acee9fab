package redisdb

import (
	"context"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// NewFromEnv returns a connected redis client, or nil when REDIS_ADDR is
// unset. Callers treat a nil client as "shared cache disabled".
func NewFromEnv(log *logger.Logger) (*goredis.Client, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	if log != nil {
		log.Info("redis connected", "addr", addr)
	}
	return rdb, nil
}
