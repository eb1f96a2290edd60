package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/custody/internal/core/clock"
	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/emitter"
	"github.com/vietddude/custody/internal/core/fee"
	"github.com/vietddude/custody/internal/core/guardian"
	"github.com/vietddude/custody/internal/core/ledger"
	"github.com/vietddude/custody/internal/core/recovery"
	"github.com/vietddude/custody/internal/core/wallet"
	"github.com/vietddude/custody/internal/health"
	"github.com/vietddude/custody/internal/identity"
	"github.com/vietddude/custody/internal/infra/storage/memory"
)

type testAPI struct {
	handler http.Handler
	clock   *clock.Manual
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewMemoryStorage()
	settlement, err := fee.NewSettlement(store, fee.Config{Transfer: 10, Treasury: "treasury"})
	require.NoError(t, err)

	registry := identity.NewMemoryRegistry(
		identity.Credential{Owner: "alice", ID: "A"},
		identity.Credential{Owner: "alice", ID: "B"},
	)
	clk := clock.NewManual(0)
	events := emitter.NewBuffer()
	policy := domain.DefaultPolicy()

	srv := NewServer(Services{
		Wallets:    wallet.NewService(store, registry, settlement, clk, events, policy),
		Ledger:     ledger.NewLedger(store, registry, settlement, clk, events, policy),
		Guardians:  guardian.NewRegistry(store, clk, events, policy),
		Recovery:   recovery.NewEngine(store, clk, events, policy),
		Fees:       settlement,
		Depositors: []domain.Principal{"settlement"},
	}, nil, 0)

	monitor := health.NewMonitor(health.Check{Name: "database", Critical: true, Probe: store.Health})
	return &testAPI{handler: srv.Router(monitor), clock: clk}
}

func (a *testAPI) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(PrincipalHeader, caller)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWithdrawalFlow(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/v1/wallets", "alice", map[string]any{"threshold": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/wallets/alice/deposits", "settlement", map[string]any{"amount": 1000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1000, decode(t, rec)["balance"])

	rec = a.do(t, http.MethodPost, "/v1/transactions", "alice", map[string]any{"to": "bob", "amount": 400, "credential": "A"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decode(t, rec)
	assert.EqualValues(t, 0, tx["id"])
	assert.EqualValues(t, 10, tx["fee"])

	rec = a.do(t, http.MethodPost, "/v1/transactions/0/execute", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "threshold_not_met", body["error"])
	assert.EqualValues(t, 208, body["code"])

	rec = a.do(t, http.MethodPost, "/v1/transactions/0/approvals", "", map[string]any{"credential": "B"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode(t, rec)["approvals"])

	rec = a.do(t, http.MethodPost, "/v1/transactions/0/execute", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["executed"])

	rec = a.do(t, http.MethodGet, "/v1/wallets/alice/balance", "", nil)
	assert.EqualValues(t, 590, decode(t, rec)["balance"])

	rec = a.do(t, http.MethodGet, "/v1/treasury", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	treasury := decode(t, rec)
	assert.Equal(t, "treasury", treasury["treasury"])
	assert.EqualValues(t, 10, treasury["collected"])
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/v1/wallets", "alice", map[string]any{"threshold": 1}).Code)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		status int
		code   string
	}{
		{"missing principal", http.MethodPost, "/v1/wallets", "", map[string]any{"threshold": 1}, http.StatusForbidden, "not_authorized"},
		{"wallet exists", http.MethodPost, "/v1/wallets", "alice", map[string]any{"threshold": 1}, http.StatusConflict, "wallet_exists"},
		{"unknown wallet", http.MethodGet, "/v1/wallets/nobody", "", nil, http.StatusNotFound, "wallet_not_found"},
		{"unknown transaction", http.MethodGet, "/v1/transactions/42", "", nil, http.StatusNotFound, "transaction_not_found"},
		{"bad transaction id", http.MethodGet, "/v1/transactions/abc", "", nil, http.StatusBadRequest, "bad_request"},
		{"zero deposit", http.MethodPost, "/v1/wallets/alice/deposits", "settlement", map[string]any{"amount": 0}, http.StatusUnprocessableEntity, "invalid_amount"},
		{"unknown field", http.MethodPost, "/v1/wallets/alice/deposits", "settlement", map[string]any{"amt": 5}, http.StatusBadRequest, "bad_request"},
		{"deposit above max amount", http.MethodPost, "/v1/wallets/alice/deposits", "settlement", map[string]any{"amount": uint64(1) << 63}, http.StatusUnprocessableEntity, "invalid_amount"},
		{"threshold by stranger", http.MethodPut, "/v1/wallets/alice/threshold", "mallory", map[string]any{"threshold": 1}, http.StatusForbidden, "not_authorized"},
		{"threshold above credentials", http.MethodPut, "/v1/wallets/alice/threshold", "alice", map[string]any{"threshold": 3}, http.StatusUnprocessableEntity, "invalid_threshold"},
		{"foreign credential", http.MethodPost, "/v1/transactions", "mallory", map[string]any{"to": "bob", "amount": 1, "credential": "A"}, http.StatusNotFound, "wallet_not_found"},
		{"no recovery", http.MethodGet, "/v1/recoveries/alice", "", nil, http.StatusConflict, "recovery_not_active"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(t, tc.method, tc.path, tc.caller, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode(t, rec)["error"])
		})
	}
}

func TestDepositRequiresDepositor(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/v1/wallets", "alice", map[string]any{"threshold": 1}).Code)

	for _, caller := range []string{"", "alice", "mallory"} {
		rec := a.do(t, http.MethodPost, "/v1/wallets/alice/deposits", caller, map[string]any{"amount": 1000})
		assert.Equal(t, http.StatusForbidden, rec.Code, "caller %q", caller)
		assert.Equal(t, "not_authorized", decode(t, rec)["error"])
	}

	rec := a.do(t, http.MethodGet, "/v1/wallets/alice/balance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["balance"])
}

func TestRecoveryFlow(t *testing.T) {
	a := newTestAPI(t)

	for _, g := range []string{"g1", "g2"} {
		rec := a.do(t, http.MethodPost, "/v1/guardians/alice/members", "alice", map[string]any{"guardian": g})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := a.do(t, http.MethodPost, "/v1/guardians/alice/members", "mallory", map[string]any{"guardian": "g3"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPut, "/v1/guardians/alice/threshold", "alice", map[string]any{"threshold": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	guardians := decode(t, rec)
	assert.Len(t, guardians["active"], 2)

	rec = a.do(t, http.MethodGet, "/v1/guardians/alice/members/g1", "", nil)
	assert.Equal(t, true, decode(t, rec)["is_guardian"])

	rec = a.do(t, http.MethodPost, "/v1/recoveries/alice", "mallory", map[string]any{"new_owner": "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/recoveries/alice", "g1", map[string]any{"new_owner": "bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "active", decode(t, rec)["status"])

	rec = a.do(t, http.MethodPost, "/v1/recoveries/alice/execute", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "recovery_threshold_not_met", decode(t, rec)["error"])

	rec = a.do(t, http.MethodPost, "/v1/recoveries/alice/approvals", "g2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/recoveries/alice/execute", "", nil)
	assert.Equal(t, http.StatusTooEarly, rec.Code)
	assert.Equal(t, "timelock_not_expired", decode(t, rec)["error"])

	a.clock.Advance(domain.DefaultPolicy().RecoveryDelay)

	rec = a.do(t, http.MethodPost, "/v1/recoveries/alice/execute", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "bob", decode(t, rec)["new_owner"])

	rec = a.do(t, http.MethodPost, "/v1/recoveries/alice/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "recovery_already_executed", decode(t, rec)["error"])
}

func TestHealthAndMetricsMounted(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = a.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}
