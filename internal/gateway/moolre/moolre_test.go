package moolre_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickysdata/dataplug/internal/gateway"
	"github.com/rickysdata/dataplug/internal/gateway/moolre"
)

func newClient(srv *httptest.Server) *moolre.Client {
	return moolre.New(moolre.Config{
		BaseURL:       srv.URL,
		Username:      "dataplug",
		PublicKey:     "pubkey-123",
		AccountNumber: "10001234",
		CallbackURL:   "https://api.example.com/webhooks/moolre",
		RedirectURL:   "https://example.com/thanks",
	})
}

func TestInitiate_GeneratesCheckoutLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed/link", r.URL.Path)
		assert.Equal(t, "dataplug", r.Header.Get("X-API-USER"))
		assert.Equal(t, "pubkey-123", r.Header.Get("X-API-PUBKEY"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "23.00", body["amount"])
		assert.Equal(t, "GHS", body["currency"])
		assert.Equal(t, "R1", body["externalref"])
		assert.Equal(t, "https://api.example.com/webhooks/moolre", body["callback"])
		assert.Equal(t, "10001234", body["accountnumber"])

		json.NewEncoder(w).Encode(map[string]any{
			"status": 1, "code": "POS09", "message": "Link generated",
			"data": map[string]string{
				"authorization_url": "https://checkout.example/abc",
				"reference":         "M1",
			},
		})
	}))
	defer srv.Close()

	res, err := newClient(srv).Initiate(context.Background(), gateway.ChargeRequest{
		Reference: "R1", Amount: 2300, PayerMSISDN: "233244123456",
	})
	require.NoError(t, err)

	assert.Nil(t, res.Final)
	assert.Equal(t, "M1", res.GatewayReference)
	assert.Equal(t, "https://checkout.example/abc", res.CheckoutURL)
}

func TestInitiate_RejectedLinkIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": 0, "code": "POS14", "message": "Invalid account",
		})
	}))
	defer srv.Close()

	_, err := newClient(srv).Initiate(context.Background(), gateway.ChargeRequest{
		Reference: "R1", Amount: 2300,
	})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.ErrorContains(t, err, "POS14")
}

func TestInitiate_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(srv).Initiate(context.Background(), gateway.ChargeRequest{
		Reference: "R1", Amount: 2300,
	})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestParseWebhook(t *testing.T) {
	t.Run("Approved", func(t *testing.T) {
		wh, err := moolre.ParseWebhook([]byte(`{
			"data": {
				"externalref": "R1",
				"transactionid": 987654,
				"txstatus": 1,
				"amount": 23.00,
				"payee": "233244123456"
			}
		}`))
		require.NoError(t, err)

		assert.Equal(t, "R1", wh.Reference)
		assert.Equal(t, gateway.OutcomeApproved, wh.Observation.Outcome)
		assert.Equal(t, "987654", wh.Observation.GatewayReference)
		assert.Equal(t, "txstatus=1", wh.Observation.ReasonCode)
		assert.Equal(t, "233244123456", wh.Payee)
	})

	t.Run("NonSuccessStatusIsDeclined", func(t *testing.T) {
		wh, err := moolre.ParseWebhook([]byte(`{"data":{"externalref":"R1","txstatus":2}}`))
		require.NoError(t, err)
		assert.Equal(t, gateway.OutcomeDeclined, wh.Observation.Outcome)
		assert.Equal(t, "txstatus=2", wh.Observation.ReasonCode)
	})

	t.Run("StringTransactionID", func(t *testing.T) {
		wh, err := moolre.ParseWebhook([]byte(`{"data":{"externalref":"R1","txstatus":1,"transactionid":"ABC-1"}}`))
		require.NoError(t, err)
		assert.Equal(t, "ABC-1", wh.Observation.GatewayReference)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		_, err := moolre.ParseWebhook([]byte(`{"data":`))
		assert.Error(t, err)
	})

	t.Run("MissingData", func(t *testing.T) {
		_, err := moolre.ParseWebhook([]byte(`{}`))
		assert.ErrorContains(t, err, "missing data")
	})

	t.Run("MissingExternalRef", func(t *testing.T) {
		_, err := moolre.ParseWebhook([]byte(`{"data":{"txstatus":1}}`))
		assert.ErrorContains(t, err, "externalref")
	})

	t.Run("MissingTxStatus", func(t *testing.T) {
		_, err := moolre.ParseWebhook([]byte(`{"data":{"externalref":"R1"}}`))
		assert.ErrorContains(t, err, "txstatus")
	})
}
