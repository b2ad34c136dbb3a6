package listing

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/transport"
	"github.com/ajirinow/backend/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	if base == nil {
		base = transport.NewBaseHandler(logger.LoggerWrapper())
	}
	return &Handler{BaseHandler: base, Service: svc}
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.HandleError(w, internal.NewValidationFieldError("id", "id must be a positive number", internal.ErrCodeInvalidRequest))
		return 0, false
	}
	return id, true
}

// CreateJob handles POST /jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	job, err := h.Service.CreateJob(r.Context(), principal, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	principal, _ := internal.UserFromContext(r.Context())
	jobs, err := h.Service.ListJobs(r.Context(), principal)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, jobs)
}

// MyJobs handles GET /jobs/mine
func (h *Handler) MyJobs(w http.ResponseWriter, r *http.Request) {
	principal, _ := internal.UserFromContext(r.Context())
	jobs, err := h.Service.MyJobs(r.Context(), principal)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, jobs)
}

// GetJob handles GET /jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	job, err := h.Service.GetJob(r.Context(), principal, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, job)
}

// MarkJobFilled handles PATCH /jobs/{id}/filled
func (h *Handler) MarkJobFilled(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	job, err := h.Service.MarkJobFilled(r.Context(), principal, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, job)
}

// UpdateJob handles PATCH /jobs/{id}
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req UpdateJobRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	job, err := h.Service.UpdateJob(r.Context(), principal, id, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, job)
}

// DeleteJob handles DELETE /jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	if err := h.Service.DeleteJob(r.Context(), principal, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateAd handles POST /ads
func (h *Handler) CreateAd(w http.ResponseWriter, r *http.Request) {
	var req CreateAdRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	ad, err := h.Service.CreateAd(r.Context(), principal, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, ad)
}

// ListAds handles GET /ads
func (h *Handler) ListAds(w http.ResponseWriter, r *http.Request) {
	ads, err := h.Service.ListAds(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ads)
}

// MyAds handles GET /ads/mine
func (h *Handler) MyAds(w http.ResponseWriter, r *http.Request) {
	principal, _ := internal.UserFromContext(r.Context())
	ads, err := h.Service.MyAds(r.Context(), principal)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ads)
}

// GetAd handles GET /ads/{id}
func (h *Handler) GetAd(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	ad, err := h.Service.GetAd(r.Context(), principal, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ad)
}

// UpdateAd handles PATCH /ads/{id}
func (h *Handler) UpdateAd(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req UpdateAdRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	ad, err := h.Service.UpdateAd(r.Context(), principal, id, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ad)
}

// DeleteAd handles DELETE /ads/{id}
func (h *Handler) DeleteAd(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	if err := h.Service.DeleteAd(r.Context(), principal, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
