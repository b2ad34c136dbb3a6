package payment

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: service}
}

// Initiate handles POST /api/v1/mpesa/stkpush
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	var req InitiateRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	payerID := user.ID
	p, err := h.Service.Initiate(r.Context(), InitiateInput{
		PayerID:  &payerID,
		Phone:    req.Phone,
		Purpose:  req.Purpose,
		TargetID: req.TargetID,
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, InitiateResponse{
		Message:    "STK push sent",
		CheckoutID: p.CheckoutRequestID,
		PaymentID:  p.ID,
		Amount:     p.Amount,
	})
}

// InitiateGuest handles POST /api/v1/mpesa/stkpush/guest. Mounted only when
// anonymous payments are enabled.
func (h *Handler) InitiateGuest(w http.ResponseWriter, r *http.Request) {
	var req GuestInitiateRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	if req.Amount != nil {
		h.Logger.Debug("ignoring client supplied amount", "purpose", req.Purpose)
	}

	p, err := h.Service.Initiate(r.Context(), InitiateInput{Phone: req.Phone, Purpose: req.Purpose})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, InitiateResponse{
		Message:    "STK push sent",
		CheckoutID: p.CheckoutRequestID,
		PaymentID:  p.ID,
		Amount:     p.Amount,
	})
}

// ListPayments handles GET /api/v1/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	payments, err := h.Service.ListMine(r.Context(), user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	out := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, ToPaymentResponse(&payments[i]))
	}
	h.WriteJSON(w, http.StatusOK, out)
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.HandleError(w, internal.NewValidationError("invalid payment id", internal.ErrCodeInvalidRequest))
		return
	}

	p, err := h.Service.Get(r.Context(), user, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToPaymentResponse(p))
}

// JobPaymentStatus handles GET /api/v1/payments/job-status?job_id=
func (h *Handler) JobPaymentStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	jobID, err := strconv.ParseInt(r.URL.Query().Get("job_id"), 10, 64)
	if err != nil {
		h.HandleError(w, internal.NewValidationFieldError("job_id", "job_id must be a number", internal.ErrCodeInvalidRequest))
		return
	}

	st, err := h.Service.JobStatus(r.Context(), user.ID, jobID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, st)
}
