package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubmissionStatus is the lifecycle state of a collection submission.
type SubmissionStatus string

const (
	// StatusPending - saved by the inspector, still editable by them.
	StatusPending SubmissionStatus = "pending"
	// StatusSentToAccounts - forwarded for verification, frozen for the inspector.
	StatusSentToAccounts SubmissionStatus = "sent_to_accounts"
	// StatusVerified - accounts confirmed the payment (terminal).
	StatusVerified SubmissionStatus = "verified"
	// StatusRejected - accounts rejected the payment, ledger reversed (terminal).
	StatusRejected SubmissionStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// CollectionSubmission is one (institution, inspector, day) payment record.
// NewArrear/NewCurrent are the delta this submission contributes to the shard
// row, not cumulative totals. Re-saving the same day's submission replaces the
// previously recorded delta in the ledger.
type CollectionSubmission struct {
	ID              int              `json:"id"`
	DistrictID      int              `json:"district_id"`
	District        string           `json:"district"`
	APGazetteNo     string           `json:"ap_gazette_no"`
	InstitutionName string           `json:"institution_name"`
	InspectorID     int              `json:"inspector_id"`
	InspectorName   string           `json:"inspector_name,omitempty"`
	SubmissionDate  time.Time        `json:"submission_date"`
	FiscalYear      string           `json:"fiscal_year"`
	NewArrear       decimal.Decimal  `json:"new_arrear"`
	NewCurrent      decimal.Decimal  `json:"new_current"`
	Status          SubmissionStatus `json:"status"`
	OverCollectionReason string      `json:"over_collection_reason,omitempty"`
	Remarks         string           `json:"remarks,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// SaveSubmissionRequest is the inspector-facing payload for save and send.
// Amounts arrive as strings so they parse straight into exact decimals.
type SaveSubmissionRequest struct {
	District             string `json:"district"`
	APGazetteNo          string `json:"ap_gazette_no"`
	InstitutionName      string `json:"institution_name"`
	NewArrear            string `json:"new_arrear"`
	NewCurrent           string `json:"new_current"`
	OverCollectionReason string `json:"over_collection_reason"`
	Remarks              string `json:"remarks"`
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	InspectorID int
	Status      SubmissionStatus
	District    string
	Date        *time.Time
	Limit       int
}
