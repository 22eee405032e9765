package handlers

import (
	"net/http"

	"revenue-backend/internal/shard"
	"revenue-backend/pkg/utils"
)

// DistrictHandler serves the shard roster: the district list with each
// district's resolved shard table.
type DistrictHandler struct {
	Router *shard.Router
}

func NewDistrictHandler(router *shard.Router) *DistrictHandler {
	return &DistrictHandler{Router: router}
}

// List returns the cached district roster. GET /api/districts
func (h *DistrictHandler) List(w http.ResponseWriter, r *http.Request) {
	roster, err := h.Router.Roster(r.Context())
	if err != nil {
		utils.Error(w, http.StatusServiceUnavailable, "District roster unavailable")
		return
	}
	utils.JSON(w, http.StatusOK, roster)
}
