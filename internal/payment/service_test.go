package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/rickysdata/dataplug/internal/gateway"
	"github.com/rickysdata/dataplug/internal/payment"
)

type stubGateway struct {
	name     string
	initiate func(ctx context.Context, req gateway.ChargeRequest) (gateway.InitiateResult, error)
}

func (s *stubGateway) Name() string { return s.name }

func (s *stubGateway) Initiate(ctx context.Context, req gateway.ChargeRequest) (gateway.InitiateResult, error) {
	return s.initiate(ctx, req)
}

type stubStatusGateway struct {
	stubGateway
	status func(ctx context.Context, reference string) (gateway.Observation, error)
}

func (s *stubStatusGateway) Status(ctx context.Context, reference string) (gateway.Observation, error) {
	return s.status(ctx, reference)
}

func approvedSync(gatewayRef string) *stubGateway {
	return &stubGateway{
		name: "teller",
		initiate: func(_ context.Context, _ gateway.ChargeRequest) (gateway.InitiateResult, error) {
			return gateway.InitiateResult{Final: &gateway.Observation{
				Outcome:          gateway.OutcomeApproved,
				GatewayReference: gatewayRef,
				ReasonCode:       "000",
			}}, nil
		},
	}
}

func TestService_Initiate(t *testing.T) {
	type testCase struct {
		name       string
		params     payment.InitiateParams
		gw         gateway.Client
		setupMocks func(store *payment.MockStore, effects *payment.MockEffects)
		want       payment.InitiateResult
		wantErr    error
	}

	bundleParams := payment.InitiateParams{
		Reference:   "R1",
		Kind:        payment.KindDataBundle,
		Amount:      2300,
		PayerMSISDN: "0244123456",
		Network:     "MTN",
		Metadata:    payment.Metadata{payment.MetaServiceID: "D5"},
	}

	pendingTx := payment.Transaction{
		Reference:       "R1",
		Kind:            payment.KindDataBundle,
		Amount:          2300,
		PayerMSISDN:     "233244123456",
		RecipientMSISDN: "233244123456",
		Metadata:        payment.Metadata{payment.MetaServiceID: "D5"},
		State:           payment.StatePending,
	}

	tests := []testCase{
		{
			name:    "RejectsNonPositiveAmount",
			params:  payment.InitiateParams{Kind: payment.KindDataBundle, Amount: 0, PayerMSISDN: "0244123456"},
			gw:      approvedSync("G1"),
			wantErr: payment.ErrInvalid,
		},
		{
			name: "RejectsBadMSISDN",
			params: payment.InitiateParams{
				Kind: payment.KindDataBundle, Amount: 2300, PayerMSISDN: "12345",
				Metadata: payment.Metadata{payment.MetaServiceID: "D5"},
			},
			gw:      approvedSync("G1"),
			wantErr: payment.ErrInvalid,
		},
		{
			// A signup whose momo number cannot be provisioned must fail
			// before any record exists or any money moves.
			name: "RejectsUnprovisionableAgentSignup",
			params: payment.InitiateParams{
				Reference:   "R9",
				Kind:        payment.KindAgentSignup,
				Amount:      5000,
				PayerMSISDN: "0244123456",
				Metadata: payment.Metadata{
					payment.MetaFullName:   "Kofi Mensah",
					payment.MetaPhone:      "not-a-number",
					payment.MetaMomoNumber: "0244123456",
					payment.MetaEmail:      "kofi@example.com",
					payment.MetaUsername:   "kofi",
					payment.MetaPassword:   "hunter22",
				},
			},
			gw: &stubGateway{
				name: "moolre",
				initiate: func(_ context.Context, _ gateway.ChargeRequest) (gateway.InitiateResult, error) {
					t.Fatal("gateway must not be contacted for an invalid signup")
					return gateway.InitiateResult{}, nil
				},
			},
			wantErr: payment.ErrInvalid,
		},
		{
			name:   "SyncApprovedAppliesEffectOnce",
			params: bundleParams,
			gw:     approvedSync("G1"),
			setupMocks: func(store *payment.MockStore, effects *payment.MockEffects) {
				store.EXPECT().
					CreateIfAbsent(gomock.Any(), gomock.Any()).
					Return(pendingTx, true, nil)
				store.EXPECT().
					Get(gomock.Any(), "R1").
					Return(pendingTx, nil)

				approved := pendingTx
				approved.State = payment.StateApproved
				approved.GatewayReference = "G1"
				approved.SideEffectApplied = true
				store.EXPECT().
					TryTransition(gomock.Any(), "R1", payment.StatePending, payment.StateApproved, gomock.Any()).
					Return(approved, true, nil)

				effects.EXPECT().
					Apply(gomock.Any(), gomock.Any()).
					Times(1).
					Return(nil)
			},
			want: payment.InitiateResult{Reference: "R1", State: payment.StateApproved},
		},
		{
			name:   "SyncDeclinedSkipsEffect",
			params: bundleParams,
			gw: &stubGateway{
				name: "teller",
				initiate: func(_ context.Context, _ gateway.ChargeRequest) (gateway.InitiateResult, error) {
					return gateway.InitiateResult{Final: &gateway.Observation{
						Outcome:    gateway.OutcomeDeclined,
						ReasonCode: "116",
					}}, nil
				},
			},
			setupMocks: func(store *payment.MockStore, effects *payment.MockEffects) {
				store.EXPECT().
					CreateIfAbsent(gomock.Any(), gomock.Any()).
					Return(pendingTx, true, nil)
				store.EXPECT().
					Get(gomock.Any(), "R1").
					Return(pendingTx, nil)

				declined := pendingTx
				declined.State = payment.StateDeclined
				declined.ReasonCode = "116"
				store.EXPECT().
					TryTransition(gomock.Any(), "R1", payment.StatePending, payment.StateDeclined, gomock.Any()).
					Return(declined, true, nil)
			},
			want: payment.InitiateResult{Reference: "R1", State: payment.StateDeclined, ReasonCode: "116"},
		},
		{
			name:   "AsyncLeavesPendingWithCheckoutURL",
			params: bundleParams,
			gw: &stubGateway{
				name: "moolre",
				initiate: func(_ context.Context, _ gateway.ChargeRequest) (gateway.InitiateResult, error) {
					return gateway.InitiateResult{GatewayReference: "M1", CheckoutURL: "https://pay.example/M1"}, nil
				},
			},
			setupMocks: func(store *payment.MockStore, effects *payment.MockEffects) {
				store.EXPECT().
					CreateIfAbsent(gomock.Any(), gomock.Any()).
					Return(pendingTx, true, nil)
				store.EXPECT().
					SetGatewayReference(gomock.Any(), "R1", "M1", "https://pay.example/M1").
					Return(nil)
			},
			want: payment.InitiateResult{
				Reference:   "R1",
				State:       payment.StatePending,
				CheckoutURL: "https://pay.example/M1",
			},
		},
		{
			name:   "ReplayedReferenceReturnsStoredWithoutGatewayCall",
			params: bundleParams,
			gw: &stubGateway{
				name: "moolre",
				initiate: func(_ context.Context, _ gateway.ChargeRequest) (gateway.InitiateResult, error) {
					t.Fatal("gateway must not be contacted on replay")
					return gateway.InitiateResult{}, nil
				},
			},
			setupMocks: func(store *payment.MockStore, effects *payment.MockEffects) {
				stored := pendingTx
				stored.State = payment.StateApproved
				stored.GatewayReference = "G1"
				store.EXPECT().
					CreateIfAbsent(gomock.Any(), gomock.Any()).
					Return(stored, false, nil)
			},
			want: payment.InitiateResult{Reference: "R1", State: payment.StateApproved},
		},
		{
			name:   "GatewayFailureLeavesRecordPending",
			params: bundleParams,
			gw: &stubGateway{
				name: "moolre",
				initiate: func(_ context.Context, _ gateway.ChargeRequest) (gateway.InitiateResult, error) {
					return gateway.InitiateResult{}, gateway.ErrUnavailable
				},
			},
			setupMocks: func(store *payment.MockStore, effects *payment.MockEffects) {
				store.EXPECT().
					CreateIfAbsent(gomock.Any(), gomock.Any()).
					Return(pendingTx, true, nil)
			},
			wantErr: gateway.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := payment.NewMockStore(ctrl)
			effects := payment.NewMockEffects(ctrl)

			if tt.setupMocks != nil {
				tt.setupMocks(store, effects)
			}

			svc := payment.NewService(store, tt.gw, effects)
			got, err := svc.Initiate(context.Background(), tt.params)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The stored signup record carries normalized numbers and a credential
// hash; the plaintext password never reaches the store.
func TestService_Initiate_StoresHashedAgentCredential(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := payment.NewMockStore(ctrl)

	store.EXPECT().
		CreateIfAbsent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx payment.Transaction) (payment.Transaction, bool, error) {
			assert.Equal(t, "233244123456", tx.Metadata[payment.MetaPhone])
			assert.Equal(t, "233244123456", tx.Metadata[payment.MetaMomoNumber])
			assert.Empty(t, tx.Metadata[payment.MetaPassword])
			assert.NoError(t, bcrypt.CompareHashAndPassword(
				[]byte(tx.Metadata[payment.MetaPasswordHash]), []byte("hunter22")))
			return tx, true, nil
		})
	store.EXPECT().
		SetGatewayReference(gomock.Any(), "R2", "M1", "https://pay.example/M1").
		Return(nil)

	gw := &stubGateway{
		name: "moolre",
		initiate: func(_ context.Context, _ gateway.ChargeRequest) (gateway.InitiateResult, error) {
			return gateway.InitiateResult{GatewayReference: "M1", CheckoutURL: "https://pay.example/M1"}, nil
		},
	}

	got, err := payment.NewService(store, gw, payment.NewMockEffects(ctrl)).Initiate(context.Background(), payment.InitiateParams{
		Reference:   "R2",
		Kind:        payment.KindAgentSignup,
		Amount:      5000,
		PayerMSISDN: "0244123456",
		Metadata: payment.Metadata{
			payment.MetaFullName:   "Kofi Mensah",
			payment.MetaPhone:      "0244123456",
			payment.MetaMomoNumber: "0244123456",
			payment.MetaEmail:      "kofi@example.com",
			payment.MetaUsername:   "kofi",
			payment.MetaPassword:   "hunter22",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatePending, got.State)
}

func TestService_Initiate_RetriesStalledPendingRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := payment.NewMockStore(ctrl)
	effects := payment.NewMockEffects(ctrl)

	stalled := payment.Transaction{
		Reference:       "R1",
		Kind:            payment.KindDataBundle,
		Amount:          2300,
		PayerMSISDN:     "233244123456",
		RecipientMSISDN: "233244123456",
		State:           payment.StatePending,
	}

	store.EXPECT().
		CreateIfAbsent(gomock.Any(), gomock.Any()).
		Return(stalled, false, nil)
	store.EXPECT().
		SetGatewayReference(gomock.Any(), "R1", "M1", "https://pay.example/M1").
		Return(nil)

	gw := &stubGateway{
		name: "moolre",
		initiate: func(_ context.Context, req gateway.ChargeRequest) (gateway.InitiateResult, error) {
			assert.Equal(t, "R1", req.Reference)
			return gateway.InitiateResult{GatewayReference: "M1", CheckoutURL: "https://pay.example/M1"}, nil
		},
	}

	got, err := payment.NewService(store, gw, effects).Initiate(context.Background(), payment.InitiateParams{
		Reference:   "R1",
		Kind:        payment.KindDataBundle,
		Amount:      2300,
		PayerMSISDN: "0244123456",
		Metadata:    payment.Metadata{payment.MetaServiceID: "D5"},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatePending, got.State)
	assert.Equal(t, "https://pay.example/M1", got.CheckoutURL)
}

func TestService_Reconcile(t *testing.T) {
	pending := payment.Transaction{Reference: "R1", Kind: payment.KindDataBundle, Amount: 2300, State: payment.StatePending}

	approvedObs := gateway.Observation{Outcome: gateway.OutcomeApproved, GatewayReference: "G1"}

	t.Run("UnknownReference", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)

		store.EXPECT().
			Get(gomock.Any(), "GHOST").
			Return(payment.Transaction{}, payment.ErrNotFound)

		svc := payment.NewService(store, approvedSync("G1"), payment.NewMockEffects(ctrl))
		_, err := svc.Reconcile(context.Background(), "GHOST", approvedObs)
		assert.ErrorIs(t, err, payment.ErrNotFound)
	})

	t.Run("DuplicateDeliveryReturnsStoredVerdict", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)

		settled := pending
		settled.State = payment.StateDeclined
		settled.ReasonCode = "116"
		store.EXPECT().
			Get(gomock.Any(), "R1").
			Return(settled, nil)

		svc := payment.NewService(store, approvedSync("G1"), payment.NewMockEffects(ctrl))

		// A late approved webhook for an already-declined transaction does
		// not overwrite the stored verdict.
		got, err := svc.Reconcile(context.Background(), "R1", approvedObs)
		require.NoError(t, err)
		assert.Equal(t, payment.StateDeclined, got.State)
		assert.Equal(t, "116", got.ReasonCode)
	})

	t.Run("RaceLoserGetsWinnersState", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)

		store.EXPECT().
			Get(gomock.Any(), "R1").
			Return(pending, nil)

		winner := pending
		winner.State = payment.StateApproved
		winner.SideEffectApplied = true
		store.EXPECT().
			TryTransition(gomock.Any(), "R1", payment.StatePending, payment.StateDeclined, gomock.Any()).
			Return(winner, false, nil)

		svc := payment.NewService(store, approvedSync("G1"), payment.NewMockEffects(ctrl))
		got, err := svc.Reconcile(context.Background(), "R1", gateway.Observation{Outcome: gateway.OutcomeDeclined})
		require.NoError(t, err)
		assert.Equal(t, payment.StateApproved, got.State)
	})

	t.Run("PendingObservationChangesNothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)

		store.EXPECT().
			Get(gomock.Any(), "R1").
			Return(pending, nil)

		svc := payment.NewService(store, approvedSync("G1"), payment.NewMockEffects(ctrl))
		got, err := svc.Reconcile(context.Background(), "R1", gateway.Observation{Outcome: gateway.OutcomePending})
		require.NoError(t, err)
		assert.Equal(t, payment.StatePending, got.State)
	})

	t.Run("EffectFailureKeepsTransactionApproved", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)
		effects := payment.NewMockEffects(ctrl)

		store.EXPECT().
			Get(gomock.Any(), "R1").
			Return(pending, nil)

		approved := pending
		approved.State = payment.StateApproved
		approved.GatewayReference = "G1"
		approved.SideEffectApplied = true
		store.EXPECT().
			TryTransition(gomock.Any(), "R1", payment.StatePending, payment.StateApproved, gomock.Any()).
			Return(approved, true, nil)

		effects.EXPECT().
			Apply(gomock.Any(), gomock.Any()).
			Return(errors.New("provisioning api down"))

		svc := payment.NewService(store, approvedSync("G1"), effects)
		got, err := svc.Reconcile(context.Background(), "R1", approvedObs)
		require.NoError(t, err)
		assert.Equal(t, payment.StateApproved, got.State)
	})
}

func TestService_Poll(t *testing.T) {
	pending := payment.Transaction{Reference: "R1", State: payment.StatePending}

	t.Run("TerminalStateAnsweredFromStore", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)

		approved := pending
		approved.State = payment.StateApproved
		store.EXPECT().
			Get(gomock.Any(), "R1").
			Return(approved, nil)

		gw := &stubStatusGateway{
			stubGateway: stubGateway{name: "teller"},
			status: func(_ context.Context, _ string) (gateway.Observation, error) {
				t.Fatal("gateway must not be queried for a settled transaction")
				return gateway.Observation{}, nil
			},
		}

		got, err := payment.NewService(store, gw, payment.NewMockEffects(ctrl)).Poll(context.Background(), "R1")
		require.NoError(t, err)
		assert.Equal(t, payment.StateApproved, got.State)
	})

	t.Run("GatewayWithoutStatusAPIReportsPending", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)

		store.EXPECT().
			Get(gomock.Any(), "R1").
			Return(pending, nil)

		gw := &stubGateway{name: "moolre"}
		got, err := payment.NewService(store, gw, payment.NewMockEffects(ctrl)).Poll(context.Background(), "R1")
		require.NoError(t, err)
		assert.Equal(t, payment.StatePending, got.State)
	})

	t.Run("StatusQueryErrorReportsPending", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)

		store.EXPECT().
			Get(gomock.Any(), "R1").
			Return(pending, nil)

		gw := &stubStatusGateway{
			stubGateway: stubGateway{name: "teller"},
			status: func(_ context.Context, _ string) (gateway.Observation, error) {
				return gateway.Observation{}, gateway.ErrUnavailable
			},
		}

		got, err := payment.NewService(store, gw, payment.NewMockEffects(ctrl)).Poll(context.Background(), "R1")
		require.NoError(t, err)
		assert.Equal(t, payment.StatePending, got.State)
	})

	t.Run("TerminalStatusReconciles", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := payment.NewMockStore(ctrl)
		effects := payment.NewMockEffects(ctrl)

		store.EXPECT().
			Get(gomock.Any(), "R1").
			Return(pending, nil).
			Times(2)

		approved := pending
		approved.State = payment.StateApproved
		approved.SideEffectApplied = true
		store.EXPECT().
			TryTransition(gomock.Any(), "R1", payment.StatePending, payment.StateApproved, gomock.Any()).
			Return(approved, true, nil)

		effects.EXPECT().
			Apply(gomock.Any(), gomock.Any()).
			Times(1).
			Return(nil)

		gw := &stubStatusGateway{
			stubGateway: stubGateway{name: "teller"},
			status: func(_ context.Context, _ string) (gateway.Observation, error) {
				return gateway.Observation{Outcome: gateway.OutcomeApproved, GatewayReference: "G1"}, nil
			},
		}

		got, err := payment.NewService(store, gw, effects).Poll(context.Background(), "R1")
		require.NoError(t, err)
		assert.Equal(t, payment.StateApproved, got.State)
	})
}

// memStore is an in-memory Store with the same compare-and-swap semantics
// the Postgres store provides, for exercising concurrent deliveries.
type memStore struct {
	mu  sync.Mutex
	txs map[string]payment.Transaction
}

func newMemStore() *memStore {
	return &memStore{txs: make(map[string]payment.Transaction)}
}

func (s *memStore) CreateIfAbsent(_ context.Context, tx payment.Transaction) (payment.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.txs[tx.Reference]; ok {
		return existing, false, nil
	}

	tx.CreatedAt = time.Now().UTC()
	s.txs[tx.Reference] = tx

	return tx, true, nil
}

func (s *memStore) Get(_ context.Context, reference string) (payment.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[reference]
	if !ok {
		return payment.Transaction{}, payment.ErrNotFound
	}

	return tx, nil
}

func (s *memStore) TryTransition(_ context.Context, reference string, from, to payment.State, terminal payment.TerminalFields) (payment.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[reference]
	if !ok {
		return payment.Transaction{}, false, payment.ErrNotFound
	}

	if tx.State != from {
		return tx, false, nil
	}

	tx.State = to
	if to == payment.StateApproved {
		tx.SideEffectApplied = true
	}

	if terminal.GatewayReference != "" {
		tx.GatewayReference = terminal.GatewayReference
	}

	tx.ReasonCode = terminal.ReasonCode
	at := terminal.TerminalAt
	tx.TerminalAt = &at
	s.txs[reference] = tx

	return tx, true, nil
}

func (s *memStore) SetGatewayReference(_ context.Context, reference, gatewayRef, checkoutURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[reference]
	if !ok {
		return payment.ErrNotFound
	}

	if tx.State == payment.StatePending {
		tx.GatewayReference = gatewayRef
		tx.CheckoutURL = checkoutURL
		s.txs[reference] = tx
	}

	return nil
}

func (s *memStore) List(_ context.Context, _ payment.ListFilter) ([]payment.Transaction, error) {
	return nil, nil
}

type countingEffects struct {
	mu      sync.Mutex
	applied map[string]int
}

func (e *countingEffects) Apply(_ context.Context, tx payment.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.applied == nil {
		e.applied = make(map[string]int)
	}

	e.applied[tx.Reference]++

	return nil
}

// Concurrent webhook deliveries and status polls for the same reference
// must settle on a single verdict and fire the side effect exactly once.
func TestService_ConcurrentDeliveriesApplyEffectOnce(t *testing.T) {
	store := newMemStore()
	effects := &countingEffects{}

	gw := &stubGateway{
		name: "moolre",
		initiate: func(_ context.Context, _ gateway.ChargeRequest) (gateway.InitiateResult, error) {
			return gateway.InitiateResult{GatewayReference: "G1", CheckoutURL: "https://pay.example/G1"}, nil
		},
	}

	svc := payment.NewService(store, gw, effects)

	_, err := svc.Initiate(context.Background(), payment.InitiateParams{
		Reference:   "R1",
		Kind:        payment.KindDataBundle,
		Amount:      2300,
		PayerMSISDN: "0244123456",
		Metadata:    payment.Metadata{payment.MetaServiceID: "D5"},
	})
	require.NoError(t, err)

	const deliveries = 32

	var wg sync.WaitGroup
	results := make([]payment.Result, deliveries)

	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			obs := gateway.Observation{Outcome: gateway.OutcomeApproved, GatewayReference: "G1"}
			if i%2 == 1 {
				// Half the deliveries disagree, as a late declined report
				// racing an approved one would.
				obs = gateway.Observation{Outcome: gateway.OutcomeDeclined, ReasonCode: "116"}
			}

			res, err := svc.Reconcile(context.Background(), "R1", obs)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	wg.Wait()

	stored, err := store.Get(context.Background(), "R1")
	require.NoError(t, err)
	require.True(t, stored.State.Terminal())

	// Whichever delivery won, every caller was answered with the stored
	// verdict.
	for _, res := range results {
		assert.Equal(t, stored.State, res.State)
	}

	if stored.State == payment.StateApproved {
		assert.Equal(t, 1, effects.applied["R1"])
		assert.True(t, stored.SideEffectApplied)
	} else {
		assert.Zero(t, effects.applied["R1"])
	}
}
