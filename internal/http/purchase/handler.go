package purchase

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rickysdata/dataplug/internal/purchase"
)

type Handler struct {
	svc *purchase.Service
}

func NewHandler(svc *purchase.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/export", h.export)
}

type purchaseResponse struct {
	Reference        string     `json:"reference"`
	GatewayReference string     `json:"gateway_reference,omitempty"`
	Amount           int64      `json:"amount"`
	PayerMSISDN      string     `json:"payer_msisdn"`
	RecipientMSISDN  string     `json:"recipient_msisdn"`
	ServiceID        string     `json:"service_id"`
	ServiceName      string     `json:"service_name"`
	Exported         bool       `json:"exported"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toResponse(p purchase.Purchase) purchaseResponse {
	return purchaseResponse{
		Reference:        p.Reference,
		GatewayReference: p.GatewayReference,
		Amount:           p.Amount,
		PayerMSISDN:      p.PayerMSISDN,
		RecipientMSISDN:  p.RecipientMSISDN,
		ServiceID:        p.ServiceID,
		ServiceName:      p.ServiceName,
		Exported:         p.Exported,
		SettledAt:        p.SettledAt,
		CreatedAt:        p.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := purchase.ListFilter{}

	if s := r.URL.Query().Get("exported"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			filter.Exported = &b
		}
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Limit = n
		}
	}

	purchases, err := h.svc.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]purchaseResponse, len(purchases))
	for i, p := range purchases {
		resp[i] = toResponse(p)
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type exportRequest struct {
	References []string `json:"references"`
}

type exportResponse struct {
	Exported int64 `json:"exported"`
}

// export marks purchases as picked up by the fulfillment tooling. An
// empty reference list drains everything currently pending.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	references := req.References
	if len(references) == 0 {
		pending, err := h.svc.PendingExport(r.Context(), 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		for _, p := range pending {
			references = append(references, p.Reference)
		}
	}

	count, err := h.svc.MarkExported(r.Context(), references)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(exportResponse{Exported: count}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
