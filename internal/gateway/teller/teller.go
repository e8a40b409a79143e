// Package teller implements the synchronous gateway variant: the
// processor's verdict comes back in the HTTP response to the initiation
// call itself, and a pull-style status API covers later rechecks.
package teller

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
	BaseURL    string
	MerchantID string
	APIKey     string // pre-encoded basic-auth credential
	Timeout    time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
}

var _ gateway.StatusQuerier = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Name() string { return "teller" }

type processRequest struct {
	Amount         string `json:"amount"`
	ProcessingCode string `json:"processing_code"`
	TransactionID  string `json:"transaction_id"`
	Desc           string `json:"desc"`
	MerchantID     string `json:"merchant_id"`
	Subscriber     string `json:"subscriber_number"`
	RSwitch        string `json:"r-switch"`
}

type processResponse struct {
	Status        string `json:"status"`
	Code          string `json:"code"`
	Reason        string `json:"reason"`
	TransactionID string `json:"transaction_id"`
}

func (c *Client) Initiate(ctx context.Context, req gateway.ChargeRequest) (gateway.InitiateResult, error) {
	body := processRequest{
		// The wire wants minor units zero-padded to 12 digits.
		Amount:         fmt.Sprintf("%012d", req.Amount),
		ProcessingCode: "000200",
		TransactionID:  req.Reference,
		Desc:           truncate(req.Description, 100),
		MerchantID:     c.cfg.MerchantID,
		Subscriber:     req.PayerMSISDN,
		RSwitch:        req.Network,
	}

	var resp processResponse
	if err := c.post(ctx, "/v1.1/transaction/process", body, &resp); err != nil {
		return gateway.InitiateResult{}, err
	}

	obs, err := observe(resp.Status, resp.Code, resp.Reason)
	if err != nil {
		return gateway.InitiateResult{}, err
	}

	obs.GatewayReference = resp.TransactionID

	return gateway.InitiateResult{Final: &obs, GatewayReference: resp.TransactionID}, nil
}

type statusResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (c *Client) Status(ctx context.Context, reference string) (gateway.Observation, error) {
	url := fmt.Sprintf("%s/v1.1/users/transactions/%s/status", c.cfg.BaseURL, reference)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gateway.Observation{}, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Merchant-Id", c.cfg.MerchantID)
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return gateway.Observation{}, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gateway.Observation{}, fmt.Errorf("%w: status check returned %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return gateway.Observation{}, fmt.Errorf("decoding status response: %w", err)
	}

	switch sr.Status {
	case "approved", "declined":
		obs, err := observe(sr.Status, sr.Code, sr.Reason)
		if err != nil {
			return gateway.Observation{}, err
		}

		return obs, nil
	}

	return gateway.Observation{Outcome: gateway.OutcomePending, ReasonCode: sr.Code, Reason: sr.Reason}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+c.cfg.APIKey)
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Anything but a clean 200 carries no verdict; the charge may be
		// retried with the same reference.
		return fmt.Errorf("%w: process returned %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func observe(status, code, reason string) (gateway.Observation, error) {
	switch status {
	case "approved":
		return gateway.Observation{Outcome: gateway.OutcomeApproved, ReasonCode: code, Reason: reason}, nil
	case "declined":
		return gateway.Observation{Outcome: gateway.OutcomeDeclined, ReasonCode: code, Reason: reason}, nil
	}

	// An unrecognized verdict must not be guessed into a terminal state.
	return gateway.Observation{}, fmt.Errorf("%w: unexpected status %q (code %s)", gateway.ErrUnavailable, status, code)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
