package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFiscalYear(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2025-03-31", "2024-25"},
		{"2025-04-01", "2025-26"},
		{"2025-12-15", "2025-26"},
		{"2025-01-01", "2024-25"},
		{"2024-04-01", "2024-25"},
		{"2026-03-31", "2025-26"},
		{"2099-05-05", "2099-00"},
	}

	for _, tt := range tests {
		d, err := time.ParseInLocation(DateLayout, tt.date, IST)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, FiscalYear(d), "date %s", tt.date)
	}
}

func TestFiscalYearBoundaryIsIST(t *testing.T) {
	// 2025-03-31 20:00 UTC is already 2025-04-01 in IST.
	d := time.Date(2025, time.March, 31, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-26", FiscalYear(d))
}

func TestStartOfDay(t *testing.T) {
	d := time.Date(2025, time.June, 10, 23, 45, 0, 0, IST)
	got := StartOfDay(d)
	assert.Equal(t, time.Date(2025, time.June, 10, 0, 0, 0, 0, IST), got)
}
