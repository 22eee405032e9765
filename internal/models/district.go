package models

// District is one row in the authoritative district roster.
// The district name is the sharding key: every district has a dedicated
// DCB ledger table whose name is derived from it.
type District struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
