package payment

import (
	"time"

	"github.com/rickysdata/dataplug/internal/payment"
)

type transactionResponse struct {
	Reference        string           `json:"reference"`
	Kind             payment.Kind     `json:"kind"`
	Amount           int64            `json:"amount"`
	PayerMSISDN      string           `json:"payer_msisdn"`
	RecipientMSISDN  string           `json:"recipient_msisdn"`
	State            payment.State    `json:"state"`
	GatewayReference string           `json:"gateway_reference,omitempty"`
	CheckoutURL      string           `json:"checkout_url,omitempty"`
	ReasonCode       string           `json:"reason_code,omitempty"`
	Metadata         payment.Metadata `json:"metadata,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	TerminalAt       *time.Time       `json:"terminal_at,omitempty"`
}

func toResponse(tx payment.Transaction) transactionResponse {
	return transactionResponse{
		Reference:        tx.Reference,
		Kind:             tx.Kind,
		Amount:           tx.Amount,
		PayerMSISDN:      tx.PayerMSISDN,
		RecipientMSISDN:  tx.RecipientMSISDN,
		State:            tx.State,
		GatewayReference: tx.GatewayReference,
		CheckoutURL:      tx.CheckoutURL,
		ReasonCode:       tx.ReasonCode,
		Metadata:         tx.Metadata,
		CreatedAt:        tx.CreatedAt,
		TerminalAt:       tx.TerminalAt,
	}
}

func toResponseList(txs []payment.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}
