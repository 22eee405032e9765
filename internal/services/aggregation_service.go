package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"revenue-backend/internal/metrics"
	"revenue-backend/internal/models"
	"revenue-backend/internal/shard"
)

const (
	// DefaultMaxRowsPerShard bounds total work regardless of shard count.
	DefaultMaxRowsPerShard = 500
	// MaxRowsPerShardCap is the hard ceiling a caller can request.
	MaxRowsPerShardCap = 1000

	shardQueryTimeout = 10 * time.Second
)

// AggregateOptions narrows an aggregation run. District and the date range
// are applied in-process after the merge; the rest map to per-shard filters.
type AggregateOptions struct {
	VerifiedOnly    bool
	FiscalYear      string
	District        string
	DateFrom        *time.Time
	DateTo          *time.Time
	MaxRowsPerShard int
}

// AggregateResult is the merged fan-out output. FailedShards lists shards
// whose query failed and therefore contributed nothing; the aggregate is
// still valid for the rest.
type AggregateResult struct {
	Rows         []models.DCBEntry `json:"rows"`
	FailedShards []string          `json:"failed_shards,omitempty"`
}

// AggregationService fans the same bounded read out to every shard in
// parallel, tags each row with its origin, merges, and post-filters. It
// performs no writes and holds no state beyond the router's roster cache.
type AggregationService struct {
	Router *shard.Router
	Ledger LedgerStore
}

func NewAggregationService(router *shard.Router, ledger LedgerStore) *AggregationService {
	return &AggregationService{Router: router, Ledger: ledger}
}

// Aggregate runs the fan-out. A failing shard degrades to an empty
// contribution, counted and logged, never fatal; only a missing roster
// aborts the whole call.
func (s *AggregationService) Aggregate(ctx context.Context, opts AggregateOptions) (*AggregateResult, error) {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	}()

	roster, err := s.Router.Roster(ctx)
	if err != nil {
		return nil, err
	}

	limit := opts.MaxRowsPerShard
	if limit <= 0 {
		limit = DefaultMaxRowsPerShard
	}
	if limit > MaxRowsPerShardCap {
		limit = MaxRowsPerShardCap
	}
	q := models.ShardQuery{
		VerifiedOnly: opts.VerifiedOnly,
		FiscalYear:   opts.FiscalYear,
		Limit:        limit,
	}

	var (
		mu     sync.Mutex
		rows   []models.DCBEntry
		failed []string
		wg     sync.WaitGroup
	)

	for _, e := range roster {
		wg.Add(1)
		go func(e shard.RosterEntry) {
			defer wg.Done()

			shardCtx, cancel := context.WithTimeout(ctx, shardQueryTimeout)
			defer cancel()

			entries, err := s.Ledger.QueryShard(shardCtx, e.ShardID, q)
			if err != nil {
				log.Printf("[Aggregation] shard %s unavailable, treating as empty: %v", e.ShardID, err)
				metrics.ShardQueryFailures.WithLabelValues(e.ShardID).Inc()
				mu.Lock()
				failed = append(failed, e.ShardID)
				mu.Unlock()
				return
			}

			for i := range entries {
				entries[i].ShardID = e.ShardID
				entries[i].District = e.District
			}

			mu.Lock()
			rows = append(rows, entries...)
			mu.Unlock()
		}(e)
	}
	wg.Wait()

	rows = applyPostFilter(rows, opts)
	sort.Strings(failed)
	return &AggregateResult{Rows: rows, FailedShards: failed}, nil
}

func applyPostFilter(rows []models.DCBEntry, opts AggregateOptions) []models.DCBEntry {
	if opts.District == "" && opts.DateFrom == nil && opts.DateTo == nil {
		return rows
	}

	wantShard := ""
	if opts.District != "" {
		wantShard = shard.ShardOf(opts.District)
	}

	filtered := rows[:0]
	for _, r := range rows {
		if wantShard != "" && r.ShardID != wantShard {
			continue
		}
		if opts.DateFrom != nil && r.UpdatedAt.Before(*opts.DateFrom) {
			continue
		}
		if opts.DateTo != nil && r.UpdatedAt.After(*opts.DateTo) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// Sum is the total reduction over merged rows.
func Sum(rows []models.DCBEntry) models.DCBSummary {
	var sum models.DCBSummary
	sum.Institutions = len(rows)
	for _, r := range rows {
		sum.DemandArrears = sum.DemandArrears.Add(r.DemandArrears)
		sum.DemandCurrent = sum.DemandCurrent.Add(r.DemandCurrent)
		sum.DemandTotal = sum.DemandTotal.Add(r.DemandTotal)
		sum.CollectionArrears = sum.CollectionArrears.Add(r.CollectionArrears)
		sum.CollectionCurrent = sum.CollectionCurrent.Add(r.CollectionCurrent)
		sum.CollectionTotal = sum.CollectionTotal.Add(r.CollectionTotal)
		sum.BalanceTotal = sum.BalanceTotal.Add(r.BalanceTotal)
	}
	return sum
}

// GroupByDistrict reduces merged rows into one summary per district, sorted
// by district name.
func GroupByDistrict(rows []models.DCBEntry) []models.DistrictSummary {
	byDistrict := make(map[string][]models.DCBEntry)
	shards := make(map[string]string)
	for _, r := range rows {
		byDistrict[r.District] = append(byDistrict[r.District], r)
		shards[r.District] = r.ShardID
	}

	summaries := make([]models.DistrictSummary, 0, len(byDistrict))
	for district, group := range byDistrict {
		summaries = append(summaries, models.DistrictSummary{
			District:   district,
			ShardID:    shards[district],
			DCBSummary: Sum(group),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].District < summaries[j].District })
	return summaries
}

// GroupByMonth reduces merged rows into per-month collection totals keyed by
// the row's last update, sorted chronologically.
func GroupByMonth(rows []models.DCBEntry) []models.MonthlySummary {
	totals := make(map[string]*models.MonthlySummary)
	for _, r := range rows {
		month := r.UpdatedAt.Format("2006-01")
		m, ok := totals[month]
		if !ok {
			m = &models.MonthlySummary{Month: month}
			totals[month] = m
		}
		m.CollectionTotal = m.CollectionTotal.Add(r.CollectionTotal)
		m.Institutions++
	}

	months := make([]models.MonthlySummary, 0, len(totals))
	for _, m := range totals {
		months = append(months, *m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Month < months[j].Month })
	return months
}

// TopByBalance returns the n rows with the largest outstanding balance.
func TopByBalance(rows []models.DCBEntry, n int) []models.DCBEntry {
	sorted := make([]models.DCBEntry, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].BalanceTotal.GreaterThan(sorted[j].BalanceTotal)
	})
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
