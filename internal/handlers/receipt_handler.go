package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"revenue-backend/internal/models"
	"revenue-backend/internal/repositories"
	"revenue-backend/internal/services"
	"revenue-backend/internal/storage"
	"revenue-backend/pkg/utils"
)

const maxReceiptBytes = 10 << 20 // 10 MB

// ReceiptHandler accepts receipt image uploads for a submission and attaches
// the stored object's metadata to it.
type ReceiptHandler struct {
	Store       *storage.ReceiptStore
	Repo        *repositories.ReceiptRepository
	Submissions *services.SubmissionService
}

func NewReceiptHandler(store *storage.ReceiptStore, repo *repositories.ReceiptRepository, submissions *services.SubmissionService) *ReceiptHandler {
	return &ReceiptHandler{Store: store, Repo: repo, Submissions: submissions}
}

// Upload stores one receipt file. Re-uploading the same type replaces it.
// POST /api/submissions/{id}/receipts (multipart: type, file)
func (h *ReceiptHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		utils.Error(w, http.StatusServiceUnavailable, "Receipt storage is not configured")
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid submission ID")
		return
	}

	sub, err := h.Submissions.Get(r.Context(), id)
	if err != nil {
		utils.Error(w, http.StatusNotFound, "Submission not found")
		return
	}
	if sub.Status.Terminal() {
		utils.Error(w, http.StatusConflict, "Submission is already settled")
		return
	}

	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	receiptType := models.ReceiptType(r.FormValue("type"))
	if receiptType != models.ReceiptTypeBill && receiptType != models.ReceiptTypeTransaction {
		utils.Error(w, http.StatusBadRequest, "type must be 'bill' or 'transaction'")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Missing receipt file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxReceiptBytes+1))
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Failed to read receipt file")
		return
	}
	if len(data) > maxReceiptBytes {
		utils.Error(w, http.StatusRequestEntityTooLarge, "Receipt exceeds 10 MB")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key, hash, err := h.Store.Upload(r.Context(), id, string(receiptType), contentType, data)
	if err != nil {
		utils.Error(w, http.StatusBadGateway, "Receipt upload failed")
		return
	}

	rec := &models.Receipt{
		SubmissionID: id,
		ReceiptType:  receiptType,
		ObjectKey:    key,
		ContentHash:  hash,
	}
	if err := h.Repo.Attach(r.Context(), rec); err != nil {
		utils.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.JSON(w, http.StatusCreated, rec)
}

// List returns the receipts attached to a submission.
// GET /api/submissions/{id}/receipts
func (h *ReceiptHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid submission ID")
		return
	}

	receipts, err := h.Repo.ListBySubmission(r.Context(), id)
	if err != nil {
		utils.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if receipts == nil {
		receipts = []*models.Receipt{}
	}
	utils.JSON(w, http.StatusOK, receipts)
}
