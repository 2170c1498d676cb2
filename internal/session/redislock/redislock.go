// Package redislock backs the Session/Task Manager's at-most-one-task
// invariant with a Redis SETNX-based lease instead of an in-process mutex,
// so the invariant holds across multiple orchestrator processes (config's
// session.distributed_lock: true). Grounded on the SETNX-with-TTL pattern in
// orchestration/redis_task_store.go, adapted from task-record claiming to a
// short-lived mutual-exclusion lease.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures a Lock.
type Config struct {
	// KeyPrefix namespaces lease keys. Default: "orchestrator:session-lock".
	KeyPrefix string
	// Lease bounds how long a claim survives without being released, so a
	// crashed holder's session eventually accepts new tasks again. Default:
	// 5 minutes (comfortably above any single orchestrator run's deadline).
	Lease time.Duration
}

// Lock is a Redis-backed implementation of session.Lock.
type Lock struct {
	client *redis.Client
	prefix string
	lease  time.Duration
}

// New constructs a Lock. client must already be connected.
func New(client *redis.Client, cfg Config) *Lock {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "orchestrator:session-lock"
	}
	lease := cfg.Lease
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	return &Lock{client: client, prefix: prefix, lease: lease}
}

func (l *Lock) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", l.prefix, sessionID)
}

// TryAcquire implements session.Lock: it attempts a SETNX-with-TTL claim on
// the session's lease key, returning ok=false if another holder already owns
// it. release deletes the key only if it still holds the value it set,
// avoiding deleting a lease some other process has since legitimately claimed
// after this one expired.
func (l *Lock) TryAcquire(ctx context.Context, sessionID string) (func(), bool, error) {
	key := l.key(sessionID)
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redislock: acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		held, err := l.client.Get(releaseCtx, key).Result()
		if err == nil && held == token {
			l.client.Del(releaseCtx, key)
		}
	}
	return release, true, nil
}
