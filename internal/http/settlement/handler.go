package settlement

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rickysdata/dataplug/internal/settlement"
)

type Handler struct {
	svc *settlement.Service
}

func NewHandler(svc *settlement.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/import", h.importFile)
}

type conflictResponse struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

type importResponse struct {
	Settled   []string           `json:"settled"`
	Conflicts []conflictResponse `json:"conflicts"`
	Unmatched []string           `json:"unmatched"`
}

// importFile accepts a settlement CSV either as a multipart upload under
// the "file" field or as the raw request body.
func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	body := r.Body

	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		body = file
	}

	result, err := h.svc.Import(r.Context(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := importResponse{
		Settled:   result.Settled,
		Conflicts: make([]conflictResponse, len(result.Conflicts)),
		Unmatched: make([]string, len(result.Unmatched)),
	}

	for i, c := range result.Conflicts {
		resp.Conflicts[i] = conflictResponse{Reference: c.Row.Reference, Reason: c.Reason}
	}

	for i, row := range result.Unmatched {
		resp.Unmatched[i] = row.Reference
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
