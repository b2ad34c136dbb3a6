package entitlement

import (
	"net/http"
	"strconv"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/transport"
	"github.com/ajirinow/backend/pkg/logger"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	directory *Directory
}

func NewHandler(directory *Directory) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.LoggerWrapper()),
		directory:   directory,
	}
}

// ListFundis handles GET /fundis
func (h *Handler) ListFundis(w http.ResponseWriter, r *http.Request) {
	cards, err := h.directory.Visible(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, cards)
}

// GetFundi handles GET /fundis/{id}
func (h *Handler) GetFundi(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, internal.NewValidationFieldError("id", "id must be a number", internal.ErrCodeInvalidRequest))
		return
	}

	card, err := h.directory.Card(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, card)
}
