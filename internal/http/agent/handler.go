package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rickysdata/dataplug/internal/agent"
	"github.com/rickysdata/dataplug/internal/auth"
)

type Handler struct {
	svc    *agent.Service
	tokens *auth.TokenManager
}

func NewHandler(svc *agent.Service, tokens *auth.TokenManager) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.login)
}

// AdminRoutes are mounted behind the operator token check.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.list)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a, err := h.svc.VerifyCredential(r.Context(), req.Email, req.Password)
	if err != nil {
		// One answer for a missing account and a wrong credential.
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.tokens.Generate(a.Email)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(loginResponse{Token: token}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type agentResponse struct {
	ID                   string       `json:"id"`
	FullName             string       `json:"full_name"`
	Phone                string       `json:"phone"`
	MomoNumber           string       `json:"momo_number"`
	Email                string       `json:"email"`
	Username             string       `json:"username"`
	Status               agent.Status `json:"status"`
	TransactionReference string       `json:"transaction_reference,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	agents, err := h.svc.List(r.Context(), limit)
	if err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	resp := make([]agentResponse, len(agents))
	for i, a := range agents {
		resp[i] = agentResponse{
			ID:                   a.ID.String(),
			FullName:             a.FullName,
			Phone:                a.Phone,
			MomoNumber:           a.MomoNumber,
			Email:                a.Email,
			Username:             a.Username,
			Status:               a.Status,
			TransactionReference: a.TransactionReference,
			CreatedAt:            a.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
