package shard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"revenue-backend/internal/metrics"
	"revenue-backend/internal/models"
)

// Prefix is the namespace token all shard table names carry.
const Prefix = "dcb_"

// DefaultRosterTTL bounds roster staleness; the district list changes rarely.
const DefaultRosterTTL = 5 * time.Minute

// ErrRosterUnavailable is returned when the roster cannot be fetched and no
// cached copy exists. Retryable by the caller.
var ErrRosterUnavailable = errors.New("district roster unavailable")

// ShardOf maps a district's human name to its ledger table name: lowercase,
// spaces/dots/hyphens collapsed to underscores, apostrophes dropped, repeated
// underscores collapsed, leading/trailing underscores trimmed, dcb_ prefix.
// Total and deterministic; "Dr. B.R.A. Konaseema" -> "dcb_dr_b_r_a_konaseema".
func ShardOf(districtName string) string {
	name := strings.ToLower(districtName)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, "'", "")
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	name = strings.Trim(name, "_")
	return Prefix + name
}

// RosterEntry pairs a district with its shard table.
type RosterEntry struct {
	DistrictID int    `json:"district_id"`
	District   string `json:"district"`
	ShardID    string `json:"shard_id"`
}

// RosterSource is the authoritative district list, normally the districts
// table in the primary store.
type RosterSource interface {
	ListDistricts(ctx context.Context) ([]models.District, error)
}

// Snapshot persists the roster across process restarts (redis-backed in
// production). Both methods are best-effort.
type Snapshot interface {
	LoadRoster(ctx context.Context) ([]RosterEntry, bool)
	StoreRoster(ctx context.Context, roster []RosterEntry)
}

// Router resolves district names to shard identifiers and caches the roster
// under a TTL. A failed refresh serves the stale cache; a failed refresh with
// no cache at all is a hard error.
type Router struct {
	source   RosterSource
	snapshot Snapshot
	ttl      time.Duration

	mu        sync.RWMutex
	roster    []RosterEntry
	fetchedAt time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithTTL overrides the default roster TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Router) { r.ttl = ttl }
}

// WithSnapshot attaches a warm-start roster snapshot store.
func WithSnapshot(s Snapshot) Option {
	return func(r *Router) { r.snapshot = s }
}

// NewRouter creates a router over the given roster source.
func NewRouter(source RosterSource, opts ...Option) *Router {
	r := &Router{source: source, ttl: DefaultRosterTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Roster returns the cached district roster, refreshing it synchronously when
// the TTL has expired. Availability wins over freshness: if the refetch fails
// and a cached copy exists, the stale copy is returned.
func (r *Router) Roster(ctx context.Context) ([]RosterEntry, error) {
	r.mu.RLock()
	roster, fetchedAt := r.roster, r.fetchedAt
	r.mu.RUnlock()

	if len(roster) > 0 && time.Since(fetchedAt) < r.ttl {
		return roster, nil
	}

	fresh, err := r.fetch(ctx)
	if err == nil {
		return fresh, nil
	}

	if len(roster) > 0 {
		log.Printf("[ShardRouter] roster refresh failed, serving stale cache (%d districts): %v", len(roster), err)
		return roster, nil
	}

	if r.snapshot != nil {
		if snap, ok := r.snapshot.LoadRoster(ctx); ok && len(snap) > 0 {
			log.Printf("[ShardRouter] roster refresh failed, serving snapshot (%d districts): %v", len(snap), err)
			r.mu.Lock()
			r.roster = snap
			// fetchedAt stays zero so the next call retries the source
			r.mu.Unlock()
			return snap, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrRosterUnavailable, err)
}

func (r *Router) fetch(ctx context.Context) ([]RosterEntry, error) {
	districts, err := r.source.ListDistricts(ctx)
	if err != nil {
		metrics.RosterRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.RosterRefreshes.WithLabelValues("ok").Inc()

	roster := make([]RosterEntry, 0, len(districts))
	for _, d := range districts {
		roster = append(roster, RosterEntry{
			DistrictID: d.ID,
			District:   d.Name,
			ShardID:    ShardOf(d.Name),
		})
	}

	r.mu.Lock()
	r.roster = roster
	r.fetchedAt = time.Now()
	r.mu.Unlock()

	if r.snapshot != nil {
		r.snapshot.StoreRoster(ctx, roster)
	}
	return roster, nil
}

// Resolve finds the roster entry for a district name. The boolean is false
// when the district is not in the roster.
func (r *Router) Resolve(ctx context.Context, districtName string) (RosterEntry, bool, error) {
	roster, err := r.Roster(ctx)
	if err != nil {
		return RosterEntry{}, false, err
	}
	want := ShardOf(districtName)
	for _, e := range roster {
		if e.ShardID == want {
			return e, true, nil
		}
	}
	return RosterEntry{}, false, nil
}

// DistrictOf maps a shard id back to its district via the roster. The slug
// transform is lossy, so this is a roster lookup rather than an inverse.
func (r *Router) DistrictOf(ctx context.Context, shardID string) (RosterEntry, bool, error) {
	roster, err := r.Roster(ctx)
	if err != nil {
		return RosterEntry{}, false, err
	}
	for _, e := range roster {
		if e.ShardID == shardID {
			return e, true, nil
		}
	}
	return RosterEntry{}, false, nil
}
