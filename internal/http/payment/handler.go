package payment

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rickysdata/dataplug/internal/gateway"
	"github.com/rickysdata/dataplug/internal/payment"
)

type Handler struct {
	svc *payment.Service
}

func NewHandler(svc *payment.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.initiate)
	r.Get("/{reference}", h.poll)
}

// AdminRoutes are mounted behind the operator token check.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.list)
}

type initiateRequest struct {
	Reference       string           `json:"reference,omitempty"`
	Kind            payment.Kind     `json:"kind"`
	Amount          int64            `json:"amount"`
	PayerMSISDN     string           `json:"payer_msisdn"`
	RecipientMSISDN string           `json:"recipient_msisdn,omitempty"`
	Network         string           `json:"network,omitempty"`
	Email           string           `json:"email,omitempty"`
	Metadata        payment.Metadata `json:"metadata,omitempty"`
}

type initiateResponse struct {
	Reference   string        `json:"reference"`
	State       payment.State `json:"state"`
	ReasonCode  string        `json:"reason_code,omitempty"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.svc.Initiate(r.Context(), payment.InitiateParams{
		Reference:       req.Reference,
		Kind:            req.Kind,
		Amount:          req.Amount,
		PayerMSISDN:     req.PayerMSISDN,
		RecipientMSISDN: req.RecipientMSISDN,
		Network:         req.Network,
		Email:           req.Email,
		Metadata:        req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalid):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, gateway.ErrUnavailable):
			// The record stays pending and the client may retry with the
			// same reference.
			http.Error(w, "payment gateway unavailable", http.StatusBadGateway)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}

		return
	}

	status := http.StatusOK
	if res.State == payment.StatePending {
		status = http.StatusAccepted
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(initiateResponse{
		Reference:   res.Reference,
		State:       res.State,
		ReasonCode:  res.ReasonCode,
		CheckoutURL: res.CheckoutURL,
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) poll(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	res, err := h.svc.Poll(r.Context(), reference)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			http.Error(w, "transaction not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(initiateResponse{
		Reference:  res.Reference,
		State:      res.State,
		ReasonCode: res.ReasonCode,
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{}

	if s := r.URL.Query().Get("state"); s != "" {
		state := payment.State(s)
		filter.State = &state
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Limit = n
		}
	}

	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Offset = n
		}
	}

	txs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(toResponseList(txs)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
