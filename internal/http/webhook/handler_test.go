package webhook_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rickysdata/dataplug/internal/gateway"
	webhookhttp "github.com/rickysdata/dataplug/internal/http/webhook"
	"github.com/rickysdata/dataplug/internal/payment"
)

type noInitiateGateway struct{}

func (noInitiateGateway) Name() string { return "moolre" }

func (noInitiateGateway) Initiate(context.Context, gateway.ChargeRequest) (gateway.InitiateResult, error) {
	return gateway.InitiateResult{}, gateway.ErrUnavailable
}

func serve(t *testing.T, store *payment.MockStore, effects *payment.MockEffects, body string) *httptest.ResponseRecorder {
	t.Helper()

	router := chi.NewRouter()
	router.Route("/webhooks", webhookhttp.NewHandler(payment.NewService(store, noInitiateGateway{}, effects)).Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/moolre", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestMoolreWebhook_ApprovedIsProcessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := payment.NewMockStore(ctrl)
	effects := payment.NewMockEffects(ctrl)

	pending := payment.Transaction{Reference: "R1", Kind: payment.KindDataBundle, Amount: 2300, State: payment.StatePending}
	store.EXPECT().Get(gomock.Any(), "R1").Return(pending, nil)

	approved := pending
	approved.State = payment.StateApproved
	approved.GatewayReference = "987654"
	approved.SideEffectApplied = true
	store.EXPECT().
		TryTransition(gomock.Any(), "R1", payment.StatePending, payment.StateApproved, gomock.Any()).
		Return(approved, true, nil)

	effects.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(nil)

	rec := serve(t, store, effects, `{"data":{"externalref":"R1","transactionid":987654,"txstatus":1,"amount":23.00}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"approved"`)
	assert.Contains(t, rec.Body.String(), `"processed"`)
}

func TestMoolreWebhook_DuplicateDeliveryIsAcked(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := payment.NewMockStore(ctrl)

	settled := payment.Transaction{Reference: "R1", State: payment.StateApproved, SideEffectApplied: true}
	store.EXPECT().Get(gomock.Any(), "R1").Return(settled, nil)

	rec := serve(t, store, payment.NewMockEffects(ctrl), `{"data":{"externalref":"R1","txstatus":1}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"approved"`)
}

func TestMoolreWebhook_UnknownReferenceIsAcked(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := payment.NewMockStore(ctrl)

	store.EXPECT().
		Get(gomock.Any(), "GHOST").
		Return(payment.Transaction{}, payment.ErrNotFound)

	rec := serve(t, store, payment.NewMockEffects(ctrl), `{"data":{"externalref":"GHOST","txstatus":1}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown reference")
}

func TestMoolreWebhook_MalformedPayloadIsRefused(t *testing.T) {
	ctrl := gomock.NewController(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "BadJSON", body: `{"data":`},
		{name: "MissingData", body: `{}`},
		{name: "MissingExternalRef", body: `{"data":{"txstatus":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, payment.NewMockStore(ctrl), payment.NewMockEffects(ctrl), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
