package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"revenue-backend/internal/middleware"
	"revenue-backend/internal/models"
	"revenue-backend/internal/services"
	"revenue-backend/internal/timeutil"
	"revenue-backend/pkg/utils"
)

type SubmissionHandler struct {
	Service *services.SubmissionService
}

func NewSubmissionHandler(s *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{Service: s}
}

// Save records (or replaces) the inspector's submission for today, leaving it
// editable. POST /api/submissions
func (h *SubmissionHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, false)
}

// Send records the submission and forwards it to accounts in one step.
// POST /api/submissions/send
func (h *SubmissionHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, true)
}

func (h *SubmissionHandler) save(w http.ResponseWriter, r *http.Request, send bool) {
	inspectorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.SaveSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Inspectors submit for their assigned district only.
	if district, ok := middleware.GetDistrictFromContext(r.Context()); ok && district != "" {
		req.District = district
	}

	sub, err := h.Service.Save(r.Context(), inspectorID, &req, send)
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	utils.JSON(w, http.StatusOK, sub)
}

// Verify confirms a submission's payment. Accounts only.
// POST /api/submissions/{id}/verify
func (h *SubmissionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Verify)
}

// Reject refuses a submission and reverses its ledger contribution.
// POST /api/submissions/{id}/reject
func (h *SubmissionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Reject)
}

func (h *SubmissionHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int) error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid submission ID")
		return
	}

	if err := fn(r.Context(), id); err != nil {
		writeSubmissionError(w, err)
		return
	}

	sub, err := h.Service.Get(r.Context(), id)
	if err != nil {
		utils.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, sub)
}

// Get returns one submission. GET /api/submissions/{id}
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid submission ID")
		return
	}

	sub, err := h.Service.Get(r.Context(), id)
	if err != nil {
		utils.Error(w, http.StatusNotFound, "Submission not found")
		return
	}
	utils.JSON(w, http.StatusOK, sub)
}

// List returns submissions matching query filters. Inspectors see their own;
// accounts and admins see everything. GET /api/submissions
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	var f models.SubmissionFilter

	role, _ := middleware.GetRoleFromContext(r.Context())
	if role == models.RoleInspector {
		inspectorID, _ := middleware.GetUserIDFromContext(r.Context())
		f.InspectorID = inspectorID
	}

	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		f.Status = models.SubmissionStatus(s)
	}
	if d := q.Get("district"); d != "" {
		f.District = d
	}
	if ds := q.Get("date"); ds != "" {
		day, err := timeutil.ParseDate(ds)
		if err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
		f.Date = &day
	}
	if ls := q.Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil {
			f.Limit = n
		}
	}

	subs, err := h.Service.List(r.Context(), f)
	if err != nil {
		utils.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if subs == nil {
		subs = []*models.CollectionSubmission{}
	}
	utils.JSON(w, http.StatusOK, subs)
}

// writeSubmissionError maps service errors onto HTTP statuses.
func writeSubmissionError(w http.ResponseWriter, err error) {
	var ocErr *services.OverCollectionError
	switch {
	case errors.As(err, &ocErr):
		utils.JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":             ocErr.Error(),
			"requires_reason":   true,
			"remaining_arrear":  ocErr.RemainingArrear,
			"remaining_current": ocErr.RemainingCurrent,
		})
	case errors.Is(err, services.ErrSaveInFlight):
		// Dropped, not failed: the first save is still running.
		utils.JSON(w, http.StatusAccepted, map[string]string{"status": "in_flight"})
	case errors.Is(err, services.ErrSubmissionFrozen):
		utils.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		utils.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrUnknownDistrict):
		utils.Error(w, http.StatusBadRequest, err.Error())
	default:
		utils.Error(w, http.StatusBadRequest, err.Error())
	}
}
