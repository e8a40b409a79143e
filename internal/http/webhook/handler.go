// Package webhook receives gateway notifications. The contract with the
// gateway is acknowledgement, not agreement: every well-formed delivery
// gets a 200 so the gateway stops retrying, whatever the reconciliation
// outcome was. Only malformed payloads are refused.
package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rickysdata/dataplug/internal/gateway/moolre"
	"github.com/rickysdata/dataplug/internal/payment"
)

const maxBodySize = 1 << 20

type Handler struct {
	svc *payment.Service
}

func NewHandler(svc *payment.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/moolre", h.moolre)
}

type ackResponse struct {
	Reference string        `json:"reference,omitempty"`
	State     payment.State `json:"state,omitempty"`
	Message   string        `json:"message"`
}

func (h *Handler) moolre(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	wh, err := moolre.ParseWebhook(body)
	if err != nil {
		slog.Warn("malformed webhook refused", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	res, err := h.svc.Reconcile(r.Context(), wh.Reference, wh.Observation)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			// Unknown reference. Acked so the gateway does not retry a
			// notification that will never match anything.
			ack(w, ackResponse{Message: "unknown reference"})
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	ack(w, ackResponse{Reference: res.Reference, State: res.State, Message: "processed"})
}

func ack(w http.ResponseWriter, resp ackResponse) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
