package health

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/pixelstream-dev/matchmaker/internal/engine"
	"github.com/pixelstream-dev/matchmaker/internal/session"
)

// EngineCheck reports on the matchmaker core. The engine is degraded when
// clients are waiting and no node is eligible to serve them.
func EngineCheck(e *engine.Engine) CheckFunc {
	return func(ctx context.Context) CheckResult {
		stats := e.Stats()
		status := StatusHealthy
		if stats.QueueLength > 0 && stats.EligibleNodes == 0 {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Details: stats}
	}
}

// SessionStoreCheck reports session store counts.
func SessionStoreCheck(store *session.Store) CheckFunc {
	return func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy, Details: store.Stats()}
	}
}

// RedisCheck pings the optional Redis instance named by RedisUrl. The core
// does not depend on Redis; the check only surfaces reachability of the
// configured endpoint.
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if err := client.Ping(ctx).Err(); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Details: map[string]string{"error": err.Error()},
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
