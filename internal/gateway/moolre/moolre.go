// Package moolre implements the asynchronous gateway variant: initiation
// yields a hosted checkout link and the verdict arrives later on a
// webhook.
package moolre

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rickysdata/dataplug/internal/gateway"
)

type Config struct {
	BaseURL       string
	Username      string
	PublicKey     string
	AccountNumber string
	CallbackURL   string
	RedirectURL   string
	Timeout       time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Name() string { return "moolre" }

type linkRequest struct {
	Type          int               `json:"type"`
	Amount        string            `json:"amount"`
	Email         string            `json:"email"`
	Reusable      bool              `json:"reusable"`
	Redirect      string            `json:"redirect"`
	Currency      string            `json:"currency"`
	ExternalRef   string            `json:"externalref"`
	Callback      string            `json:"callback"`
	AccountNumber string            `json:"accountnumber"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type linkResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// linkGenerated is the code the gateway answers when a checkout link was
// created.
const linkGenerated = "POS09"

func (c *Client) Initiate(ctx context.Context, req gateway.ChargeRequest) (gateway.InitiateResult, error) {
	body := linkRequest{
		Type: 1,
		// Checkout links are priced in major units with two decimals.
		Amount:        fmt.Sprintf("%d.%02d", req.Amount/100, req.Amount%100),
		Email:         req.Email,
		Redirect:      c.cfg.RedirectURL,
		Currency:      "GHS",
		ExternalRef:   req.Reference,
		Callback:      c.cfg.CallbackURL,
		AccountNumber: c.cfg.AccountNumber,
		Metadata:      req.Metadata,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return gateway.InitiateResult{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embed/link", bytes.NewReader(payload))
	if err != nil {
		return gateway.InitiateResult{}, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-USER", c.cfg.Username)
	httpReq.Header.Set("X-API-PUBKEY", c.cfg.PublicKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return gateway.InitiateResult{}, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gateway.InitiateResult{}, fmt.Errorf("%w: link returned %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	var lr linkResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return gateway.InitiateResult{}, fmt.Errorf("decoding link response: %w", err)
	}

	if lr.Status != 1 || lr.Code != linkGenerated {
		// No checkout link means no charge attempt; the reference stays
		// pending and may retry.
		return gateway.InitiateResult{}, fmt.Errorf("%w: link rejected: %s (code %s)", gateway.ErrUnavailable, lr.Message, lr.Code)
	}

	return gateway.InitiateResult{
		GatewayReference: lr.Data.Reference,
		CheckoutURL:      lr.Data.AuthorizationURL,
	}, nil
}

// Webhook is a parsed gateway notification.
type Webhook struct {
	Reference   string
	Observation gateway.Observation
	Amount      string
	Payee       string
}

type webhookPayload struct {
	Data *struct {
		ExternalRef   string            `json:"externalref"`
		TransactionID json.Number       `json:"transactionid"`
		TxStatus      *int              `json:"txstatus"`
		Amount        json.Number       `json:"amount"`
		Payee         string            `json:"payee"`
		Metadata      map[string]string `json:"metadata"`
	} `json:"data"`
}

// ParseWebhook maps a raw notification body onto the reconciliation
// contract. Errors here mean the payload is malformed and the delivery
// should be refused; every well-formed payload must be acked regardless
// of whether the reference is known.
func ParseWebhook(body []byte) (Webhook, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Webhook{}, fmt.Errorf("decoding webhook: %w", err)
	}

	if p.Data == nil {
		return Webhook{}, fmt.Errorf("webhook missing data field")
	}

	if p.Data.ExternalRef == "" || p.Data.TxStatus == nil {
		return Webhook{}, fmt.Errorf("webhook missing externalref or txstatus")
	}

	outcome := gateway.OutcomeDeclined
	if *p.Data.TxStatus == 1 {
		outcome = gateway.OutcomeApproved
	}

	return Webhook{
		Reference: p.Data.ExternalRef,
		Observation: gateway.Observation{
			Outcome:          outcome,
			GatewayReference: p.Data.TransactionID.String(),
			ReasonCode:       fmt.Sprintf("txstatus=%d", *p.Data.TxStatus),
		},
		Amount: p.Data.Amount.String(),
		Payee:  p.Data.Payee,
	}, nil
}
