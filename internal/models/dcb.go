package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DCBEntry is one institution's Demand/Collection/Balance row in a district
// shard table, one row per institution per fiscal year.
//
// Demand columns are set by the administrative import and are read-only here.
// Balance columns are generated by the database as demand - collection, so a
// row read back is always internally consistent.
type DCBEntry struct {
	ID              string `json:"id"`
	APGazetteNo     string `json:"ap_gazette_no"`
	InstitutionName string `json:"institution_name"`
	Mandal          string `json:"mandal"`
	Village         string `json:"village"`
	FiscalYear      string `json:"fiscal_year"`

	DemandArrears decimal.Decimal `json:"demand_arrears"`
	DemandCurrent decimal.Decimal `json:"demand_current"`
	DemandTotal   decimal.Decimal `json:"demand_total"`

	CollectionArrears decimal.Decimal `json:"collection_arrears"`
	CollectionCurrent decimal.Decimal `json:"collection_current"`
	CollectionTotal   decimal.Decimal `json:"collection_total"`

	BalanceArrears decimal.Decimal `json:"balance_arrears"`
	BalanceCurrent decimal.Decimal `json:"balance_current"`
	BalanceTotal   decimal.Decimal `json:"balance_total"`

	// Provisional marks rows whose collection totals include at least one
	// submission not yet verified by accounts.
	Provisional bool   `json:"provisional"`
	Remarks     string `json:"remarks"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Set by the aggregation engine when rows from multiple shards are merged.
	ShardID  string `json:"shard_id,omitempty"`
	District string `json:"district,omitempty"`
}

// OverCollectionCheck is the result of the server-side check_over_collection
// function: whether the proposed payment needs a justification, and the
// remaining balances at the moment the store evaluated it.
type OverCollectionCheck struct {
	RequiresReason   bool            `json:"requires_reason"`
	RemainingArrear  decimal.Decimal `json:"remaining_arrear"`
	RemainingCurrent decimal.Decimal `json:"remaining_current"`
}

// ShardQuery is a bounded read against one shard table.
type ShardQuery struct {
	VerifiedOnly bool   `json:"verified_only"`
	FiscalYear   string `json:"fiscal_year"`
	Limit        int    `json:"limit"`
}

// DCBSummary is the sum reduction over a set of merged shard rows.
type DCBSummary struct {
	Institutions      int             `json:"institutions"`
	DemandArrears     decimal.Decimal `json:"demand_arrears"`
	DemandCurrent     decimal.Decimal `json:"demand_current"`
	DemandTotal       decimal.Decimal `json:"demand_total"`
	CollectionArrears decimal.Decimal `json:"collection_arrears"`
	CollectionCurrent decimal.Decimal `json:"collection_current"`
	CollectionTotal   decimal.Decimal `json:"collection_total"`
	BalanceTotal      decimal.Decimal `json:"balance_total"`
}

// DistrictSummary is the group-by-district reduction.
type DistrictSummary struct {
	District string `json:"district"`
	ShardID  string `json:"shard_id"`
	DCBSummary
}

// MonthlySummary is the group-by-month reduction, keyed "YYYY-MM".
type MonthlySummary struct {
	Month           string          `json:"month"`
	CollectionTotal decimal.Decimal `json:"collection_total"`
	Institutions    int             `json:"institutions"`
}
