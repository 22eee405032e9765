package timeutil

import (
	"fmt"
	"time"
)

// FiscalYear returns the April-March fiscal year label for a date, e.g.
// "2025-26" for any date from 2025-04-01 through 2026-03-31. Stored on every
// collection submission and used to select the matching DCB ledger row.
func FiscalYear(t time.Time) string {
	ist := t.In(IST)
	year := ist.Year()
	if ist.Month() < time.April {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// CurrentFiscalYear returns the fiscal year label for today.
func CurrentFiscalYear() string {
	return FiscalYear(Now())
}
