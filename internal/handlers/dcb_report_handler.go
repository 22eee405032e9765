package handlers

import (
	"net/http"
	"strconv"

	"revenue-backend/internal/models"
	"revenue-backend/internal/services"
	"revenue-backend/internal/timeutil"
	"revenue-backend/pkg/utils"
)

// DCBReportHandler serves the cross-district DCB reports backed by the
// aggregation fan-out. All endpoints are read-only.
type DCBReportHandler struct {
	Service *services.AggregationService
}

func NewDCBReportHandler(s *services.AggregationService) *DCBReportHandler {
	return &DCBReportHandler{Service: s}
}

func parseAggregateOptions(r *http.Request) (services.AggregateOptions, error) {
	q := r.URL.Query()
	opts := services.AggregateOptions{
		VerifiedOnly: q.Get("verified_only") == "true",
		FiscalYear:   q.Get("fiscal_year"),
		District:     q.Get("district"),
	}
	if n, err := strconv.Atoi(q.Get("max_rows")); err == nil {
		opts.MaxRowsPerShard = n
	}
	if s := q.Get("from"); s != "" {
		from, err := timeutil.ParseDate(s)
		if err != nil {
			return opts, err
		}
		opts.DateFrom = &from
	}
	if s := q.Get("to"); s != "" {
		to, err := timeutil.ParseDate(s)
		if err != nil {
			return opts, err
		}
		// Inclusive day: push to end of the IST day.
		end := to.AddDate(0, 0, 1).Add(-1)
		opts.DateTo = &end
	}
	return opts, nil
}

func (h *DCBReportHandler) aggregate(w http.ResponseWriter, r *http.Request) (*services.AggregateResult, services.AggregateOptions, bool) {
	opts, err := parseAggregateOptions(r)
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return nil, opts, false
	}

	result, err := h.Service.Aggregate(r.Context(), opts)
	if err != nil {
		utils.Error(w, http.StatusServiceUnavailable, err.Error())
		return nil, opts, false
	}
	return result, opts, true
}

// Summary returns the merged rows plus the grand total.
// GET /api/reports/dcb
func (h *DCBReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.aggregate(w, r)
	if !ok {
		return
	}

	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"total":         services.Sum(result.Rows),
		"rows":          result.Rows,
		"failed_shards": result.FailedShards,
	})
}

// ByDistrict returns one DCB summary per district.
// GET /api/reports/dcb/districts
func (h *DCBReportHandler) ByDistrict(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.aggregate(w, r)
	if !ok {
		return
	}

	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"districts":     services.GroupByDistrict(result.Rows),
		"failed_shards": result.FailedShards,
	})
}

// Monthly returns per-month collection totals.
// GET /api/reports/dcb/monthly
func (h *DCBReportHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.aggregate(w, r)
	if !ok {
		return
	}

	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"months":        services.GroupByMonth(result.Rows),
		"failed_shards": result.FailedShards,
	})
}

// TopDefaulters returns institutions with the largest outstanding balance.
// GET /api/reports/dcb/top?limit=20
func (h *DCBReportHandler) TopDefaulters(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.aggregate(w, r)
	if !ok {
		return
	}

	limit := 20
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}

	rows := services.TopByBalance(result.Rows, limit)
	if rows == nil {
		rows = []models.DCBEntry{}
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"institutions":  rows,
		"failed_shards": result.FailedShards,
	})
}
