package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFiveDistricts(ledger *fakeLedger) {
	fy := "2025-26"
	ledger.seed("dcb_guntur", "AG-1", fy, "Inst G1", 1000, 500)
	ledger.seed("dcb_guntur", "AG-2", fy, "Inst G2", 2000, 500)
	ledger.seed("dcb_krishna", "AG-3", fy, "Inst K1", 300, 300)
	ledger.seed("dcb_nellore", "AG-4", fy, "Inst N1", 400, 100)
	ledger.seed("dcb_prakasam", "AG-5", fy, "Inst P1", 700, 0)
	ledger.seed("dcb_tirupati", "AG-6", fy, "Inst T1", 150, 50)
}

func fiveDistrictService(ledger *fakeLedger) *AggregationService {
	router := newTestRouter("Guntur", "Krishna", "Nellore", "Prakasam", "Tirupati")
	return NewAggregationService(router, ledger)
}

func TestAggregateMergesAllShards(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	svc := fiveDistrictService(ledger)

	res, err := svc.Aggregate(context.Background(), AggregateOptions{FiscalYear: "2025-26"})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 6)
	assert.Empty(t, res.FailedShards)

	// every row is tagged with its origin
	for _, r := range res.Rows {
		assert.NotEmpty(t, r.ShardID)
		assert.NotEmpty(t, r.District)
	}

	sum := Sum(res.Rows)
	assert.Equal(t, 6, sum.Institutions)
	assert.True(t, sum.DemandTotal.Equal(dec(6000)), "total demand, got %s", sum.DemandTotal)
}

func TestAggregateSurvivesFailingShard(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	ledger.failing["dcb_krishna"] = errors.New("connection refused")
	svc := fiveDistrictService(ledger)

	res, err := svc.Aggregate(context.Background(), AggregateOptions{FiscalYear: "2025-26"})
	require.NoError(t, err, "one unreachable shard must not abort the aggregate")
	assert.Len(t, res.Rows, 5, "union of the four healthy shards")
	assert.Equal(t, []string{"dcb_krishna"}, res.FailedShards)
}

func TestAggregateRosterFailureIsFatal(t *testing.T) {
	ledger := newFakeLedger()
	router := shardRouterWithError()
	svc := NewAggregationService(router, ledger)

	_, err := svc.Aggregate(context.Background(), AggregateOptions{})
	require.Error(t, err)
}

func TestAggregateRespectsRowBound(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	svc := fiveDistrictService(ledger)

	res, err := svc.Aggregate(context.Background(), AggregateOptions{FiscalYear: "2025-26", MaxRowsPerShard: 1})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5, "one row per shard when capped at 1")
}

func TestAggregateVerifiedOnly(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	// mark one row provisional
	require.NoError(t, ledger.ApplyProvisional(context.Background(), "dcb_guntur", "AG-1", "2025-26", dec(10), dec(0), ""))
	svc := fiveDistrictService(ledger)

	res, err := svc.Aggregate(context.Background(), AggregateOptions{FiscalYear: "2025-26", VerifiedOnly: true})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5, "provisional row excluded")
}

func TestAggregateDistrictPostFilter(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	svc := fiveDistrictService(ledger)

	res, err := svc.Aggregate(context.Background(), AggregateOptions{FiscalYear: "2025-26", District: "Guntur"})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	for _, r := range res.Rows {
		assert.Equal(t, "dcb_guntur", r.ShardID)
	}
}

func TestAggregateDateRangePostFilter(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	svc := fiveDistrictService(ledger)

	past := time.Now().Add(-time.Hour)
	res, err := svc.Aggregate(context.Background(), AggregateOptions{DateTo: &past})
	require.NoError(t, err)
	assert.Empty(t, res.Rows, "all rows updated after the cutoff")

	future := time.Now().Add(time.Hour)
	res, err = svc.Aggregate(context.Background(), AggregateOptions{DateTo: &future})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 6)
}

func TestGroupByDistrict(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	svc := fiveDistrictService(ledger)

	res, err := svc.Aggregate(context.Background(), AggregateOptions{})
	require.NoError(t, err)

	groups := GroupByDistrict(res.Rows)
	require.Len(t, groups, 5)
	// sorted by district name
	assert.Equal(t, "Guntur", groups[0].District)
	assert.Equal(t, 2, groups[0].Institutions)
	assert.True(t, groups[0].DemandTotal.Equal(dec(4000)))
}

func TestTopByBalance(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	svc := fiveDistrictService(ledger)

	res, err := svc.Aggregate(context.Background(), AggregateOptions{})
	require.NoError(t, err)

	top := TopByBalance(res.Rows, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "AG-2", top[0].APGazetteNo) // balance 2500
	assert.Equal(t, "AG-1", top[1].APGazetteNo) // balance 1500
}

func TestGroupByMonth(t *testing.T) {
	ledger := newFakeLedger()
	seedFiveDistricts(ledger)
	svc := fiveDistrictService(ledger)

	res, err := svc.Aggregate(context.Background(), AggregateOptions{})
	require.NoError(t, err)

	months := GroupByMonth(res.Rows)
	require.Len(t, months, 1, "all fake rows updated this month")
	assert.Equal(t, time.Now().Format("2006-01"), months[0].Month)
	assert.Equal(t, 6, months[0].Institutions)
}
