package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// History возвращает журнал жизненного цикла заявки
// GET /api/requests/{id}/history
func (h *ApprovalHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.service.History(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
