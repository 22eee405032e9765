package cache

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"revenue-backend/internal/shard"
)

// Cache keys
const (
	RosterSnapshotKey = "dcb:roster"
	RosterSnapshotTTL = 24 * time.Hour
)

var client *redis.Client
var locker *redislock.Client

// Init initializes the Redis connection. The engine degrades gracefully when
// Redis is absent: the roster snapshot and the distributed in-flight lock
// simply switch off.
func Init() error {
	// K8s sets REDIS_SERVICE_HOST and REDIS_SERVICE_PORT for services
	host := os.Getenv("REDIS_SERVICE_HOST")
	if host == "" {
		host = "redis" // fallback to service name
	}
	port := os.Getenv("REDIS_SERVICE_PORT")
	if port == "" {
		port = "6379"
	}

	client = redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		client = nil
		return err
	}

	locker = redislock.New(client)
	return nil
}

// GetClient returns the Redis client, nil when unavailable.
func GetClient() *redis.Client {
	return client
}

// GetLocker returns the distributed lock client, nil when Redis is unavailable.
func GetLocker() *redislock.Client {
	return locker
}

// RosterSnapshot persists the shard roster in Redis so a restarted process
// can route and aggregate before its first successful roster query.
type RosterSnapshot struct{}

// NewRosterSnapshot returns a snapshot store backed by the shared client.
func NewRosterSnapshot() *RosterSnapshot {
	return &RosterSnapshot{}
}

func (s *RosterSnapshot) LoadRoster(ctx context.Context) ([]shard.RosterEntry, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, RosterSnapshotKey).Bytes()
	if err != nil {
		return nil, false
	}
	var roster []shard.RosterEntry
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, false
	}
	return roster, true
}

func (s *RosterSnapshot) StoreRoster(ctx context.Context, roster []shard.RosterEntry) {
	if client == nil {
		return
	}
	data, err := json.Marshal(roster)
	if err != nil {
		return
	}
	client.Set(ctx, RosterSnapshotKey, data, RosterSnapshotTTL)
}
