package user

import (
	"net/http"

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

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	u, err := h.Service.Register(r.Context(), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, u)
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("Authentication required", internal.ErrCodeUnauthorizedAccess))
		return
	}

	u, err := h.Service.Me(r.Context(), principal.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// GetFundiProfile handles GET /fundis/me
func (h *Handler) GetFundiProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := internal.UserFromContext(r.Context())
	p, err := h.Service.GetFundiProfile(r.Context(), principal)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// UpdateFundiProfile handles PATCH /fundis/me
func (h *Handler) UpdateFundiProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateFundiProfileRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	principal, _ := internal.UserFromContext(r.Context())
	p, err := h.Service.UpdateFundiProfile(r.Context(), principal, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// ResetPassword handles POST /auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	if err := h.Service.ResetPassword(r.Context(), req); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password reset successful"})
}

// DeleteAccount handles DELETE /fundis/me and DELETE /clients/me
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	principal, _ := internal.UserFromContext(r.Context())
	if err := h.Service.DeleteAccount(r.Context(), principal); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListClients handles GET /clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Service.ListClients(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, clients)
}

// GetClient handles GET /clients/me
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	principal, _ := internal.UserFromContext(r.Context())
	c, err := h.Service.GetClient(r.Context(), principal)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, c)
}

// UpdateClient handles PATCH /clients/me
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req UpdateClientRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	principal, _ := internal.UserFromContext(r.Context())
	c, err := h.Service.UpdateClient(r.Context(), principal, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, c)
}
