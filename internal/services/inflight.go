package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

const inflightLockTTL = 30 * time.Second

// InflightGuard drops a second save/send for the same submission key while
// the first is still in flight. With Redis present it is a distributed lock
// (covers multiple API replicas); without it, a per-process lock table.
type InflightGuard struct {
	locker *redislock.Client

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewInflightGuard creates a guard. locker may be nil.
func NewInflightGuard(locker *redislock.Client) *InflightGuard {
	return &InflightGuard{
		locker: locker,
		keys:   make(map[string]struct{}),
	}
}

// TryAcquire returns a release func and true, or nil and false when the key
// is already held. Never blocks.
func (g *InflightGuard) TryAcquire(ctx context.Context, key string) (func(), bool) {
	if g.locker != nil {
		lock, err := g.locker.Obtain(ctx, "inflight:"+key, inflightLockTTL, nil)
		switch err {
		case nil:
			return func() {
				if err := lock.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
					log.Printf("[InflightGuard] release %s: %v", key, err)
				}
			}, true
		case redislock.ErrNotObtained:
			return nil, false
		default:
			// Redis hiccup: fall back to the local table rather than
			// letting every save fail.
			log.Printf("[InflightGuard] redis lock unavailable, using local guard: %v", err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.keys[key]; held {
		return nil, false
	}
	g.keys[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.keys, key)
		g.mu.Unlock()
	}, true
}
