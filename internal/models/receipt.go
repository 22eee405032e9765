package models

import "time"

// ReceiptType distinguishes the two attachments a submission may carry.
type ReceiptType string

const (
	ReceiptTypeBill        ReceiptType = "bill"
	ReceiptTypeTransaction ReceiptType = "transaction"
)

// Receipt is attachment metadata for an uploaded receipt image, stored in
// object storage; at most one of each type per submission.
type Receipt struct {
	ID           int         `json:"id"`
	SubmissionID int         `json:"submission_id"`
	ReceiptType  ReceiptType `json:"receipt_type"`
	ObjectKey    string      `json:"object_key"`
	ContentHash  string      `json:"content_hash"`
	UploadedAt   time.Time   `json:"uploaded_at"`
}
