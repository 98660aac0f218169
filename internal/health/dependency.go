package health

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// dbChecker pings the underlying sql.DB rather than issuing a query, which
// keeps the probe cheap enough to run on every readiness poll.
type dbChecker struct {
	db *gorm.DB
}

// NewDBChecker returns nil when no database is configured so callers can
// pass the result straight to NewProbeRunner.
func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &dbChecker{db: db}
}

func (c *dbChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "db", Healthy: true}
	sqlDB, err := c.db.DB()
	if err != nil {
		res.Healthy = false
		res.Error = err.Error()
		return res
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

type redisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker returns nil when redis is not configured, mirroring
// NewDBChecker.
func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &redisChecker{client: client}
}

func (c *redisChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "redis", Healthy: true}
	if err := c.client.Ping(ctx).Err(); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}
