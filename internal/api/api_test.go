package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specproof/internal/counterexample"
	"specproof/internal/dsl"
	"specproof/internal/metrics"
	"specproof/internal/verify"
)

const walletYAML = `name: WalletSystem
version: 1.2.0
entities:
  - name: Wallet
    fields:
      - {name: id, type: UUID, primary_key: true}
      - {name: balance, type: Decimal}
    invariants:
      - name: non_negative_balance
        expr: "balance >= 0"
  - name: Transfer
    fields:
      - {name: id, type: UUID, primary_key: true}
      - {name: from_id, type: UUID, foreign_key: Wallet.id}
      - {name: to_id, type: UUID, foreign_key: Wallet.id}
      - {name: amount, type: Decimal}
    invariants:
      - name: positive_amount
        expr: "amount > 0"
      - name: distinct_wallets
        expr: "from_id != to_id"
services:
  - name: TransferMoney
    inputs:
      - "from_id: UUID"
      - "amount: Decimal"
    preconditions:
      - "amount > 0"
      - "Wallet(from_id).balance >= amount"
`

const ledgerYAML = `name: Ledger
version: 0.1.0
entities:
  - name: Entry
    fields:
      - {name: id, type: Int, primary_key: true}
      - {name: amount, type: Decimal}
`

// ссылка на несуществующую сущность блокирует reload
const brokenYAML = `name: Broken
version: 0.0.1
entities:
  - name: Entry
    fields:
      - {name: id, type: Int}
services:
  - name: Post
    preconditions:
      - "Account(id).balance >= 0"
`

func init() {
	gin.SetMode(gin.TestMode)
}

func writeSpecs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

type fixture struct {
	router   *gin.Engine
	svc      *Service
	gatherer *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := writeSpecs(t, map[string]string{"wallet.yaml": walletYAML})
	specs, err := dsl.LoadAllSpecs(dir)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(
		NewRegistry(dir, specs),
		verify.New(verify.WithMetrics(m), verify.WithLogger(logger)),
		counterexample.New(counterexample.WithMetrics(m), counterexample.WithLogger(logger)),
		nil,
		logger,
	)
	return &fixture{router: NewRouter(svc, reg), svc: svc, gatherer: reg}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSpecList(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/specs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]metaSpecListItem](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, metaSpecListItem{Name: "WalletSystem", Version: "1.2.0", Entities: 2, Services: 1}, list[0])
}

func TestSpecMeta(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/specs/walletsystem", nil)
	require.Equal(t, http.StatusOK, rec.Code, "name lookup is case-insensitive")
	meta := decode[metaSpec](t, rec)
	require.Len(t, meta.Entities, 2)
	assert.Equal(t, "Wallet", meta.Entities[0].Name)
	assert.Equal(t, "balance >= 0", meta.Entities[0].Invariants[0].Expr)
	require.Len(t, meta.Services, 1)
	assert.Len(t, meta.Services[0].Preconditions, 2)

	rec = f.do(t, http.MethodGet, "/api/specs/Nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Specification not found")
}

func TestLint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/specs/WalletSystem/lint", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[struct {
		Spec   string      `json:"spec"`
		Issues []dsl.Issue `json:"issues"`
	}](t, rec)
	assert.Equal(t, "WalletSystem", out.Spec)
	assert.Empty(t, out.Issues)
}

func TestVerify_RecordsRun(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/specs/WalletSystem/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[verifyResponse](t, rec)
	require.NotEmpty(t, resp.RunID)
	assert.True(t, resp.Result.IsConsistent)
	assert.True(t, resp.Result.IsComplete)
	assert.Empty(t, resp.Result.Errors)
	// второе предусловие вне грамматики
	assert.Len(t, resp.Result.Warnings, 1)

	rec = f.do(t, http.MethodGet, "/api/runs/"+resp.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"spec":"WalletSystem"`)

	f.do(t, http.MethodPost, "/api/specs/WalletSystem/verify", nil)
	rec = f.do(t, http.MethodGet, "/api/specs/WalletSystem/runs?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = f.do(t, http.MethodGet, "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerify_ClientGoneIsNotRecorded(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/specs/WalletSystem/verify", nil).WithContext(ctx)
	f.router.ServeHTTP(httptest.NewRecorder(), req)

	list, err := f.svc.Runs.ListBySpec(context.Background(), "WalletSystem", 0)
	require.NoError(t, err)
	assert.Empty(t, list, "canceled request leaves no run behind")
}

func TestVerify_Metrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/specs/WalletSystem/verify", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `specproof_verifications_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "specproof_unsupported_expressions_total 1")
}

func TestAdhocVerify(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/verify", "name: [")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid specification")

	doc := `{"name": "Tight", "version": "1", "entities": [{"name": "Box", "fields": [{"name": "v", "type": "Int"}], ` +
		`"invariants": [{"name": "lo", "expr": "v >= 10"}, {"name": "hi", "expr": "v <= 5"}]}]}`
	rec = f.do(t, http.MethodPost, "/api/verify", doc)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[verifyResponse](t, rec)
	assert.Equal(t, "Tight", resp.Spec)
	assert.False(t, resp.Result.IsConsistent)
	assert.Equal(t, []string{verify.MsgInconsistent}, resp.Result.Errors)
}

func TestSuspicious(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/specs/WalletSystem/suspicious", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[struct {
		States []counterexample.SuspiciousState `json:"states"`
		Errors []string                         `json:"errors"`
	}](t, rec)
	require.Len(t, out.States, 1, "transfer probes are excluded by its invariants")
	assert.Equal(t, "Wallet", out.States[0].EntityName)
	assert.Equal(t, "0", out.States[0].VariableValues["balance"])
	assert.Empty(t, out.Errors)
}

func TestCounterexample(t *testing.T) {
	f := newFixture(t)
	path := "/api/specs/WalletSystem/counterexample"

	cases := []struct {
		name   string
		body   any
		code   int
		status string
	}{
		{"holds", map[string]string{"entity": "Wallet", "invariant": "balance >= 0"}, http.StatusOK, "holds"},
		{"violated", map[string]string{"entity": "Wallet", "invariant": "balance >= 100"}, http.StatusOK, "violated"},
		{"unknown entity", map[string]string{"entity": "Ledger", "invariant": "balance >= 0"}, http.StatusNotFound, ""},
		{"unsupported operator", map[string]string{"entity": "Wallet", "invariant": "balance <= 1"}, http.StatusUnprocessableEntity, ""},
		{"no field", map[string]string{"entity": "Wallet", "invariant": "limit > 0"}, http.StatusUnprocessableEntity, ""},
		{"missing invariant", map[string]string{"entity": "Wallet"}, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, path, tc.body)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			if tc.status == "" {
				return
			}
			out := decode[struct {
				Status string                          `json:"status"`
				State  *counterexample.SuspiciousState `json:"state"`
			}](t, rec)
			assert.Equal(t, tc.status, out.Status)
			if tc.status == "violated" {
				require.NotNil(t, out.State)
				assert.Equal(t, "0", out.State.VariableValues["balance"])
				require.NotNil(t, out.State.PreventionRule)
				assert.Equal(t, "balance >= 100", *out.State.PreventionRule)
			}
		})
	}
}

func TestAdminReload(t *testing.T) {
	f := newFixture(t)

	next := writeSpecs(t, map[string]string{"wallet.yaml": walletYAML, "ledger.yml": ledgerYAML})
	rec := f.do(t, http.MethodPost, "/api/admin/reload", map[string]string{"spec_dir": next})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"specs":2`)
	assert.Equal(t, next, f.svc.Specs.Root())
	_, ok := f.svc.Specs.Get("Ledger")
	assert.True(t, ok)

	// без тела перечитывается текущая директория
	rec = f.do(t, http.MethodPost, "/api/admin/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminReload_BlockingIssues(t *testing.T) {
	f := newFixture(t)
	before := f.svc.Specs.Root()

	bad := writeSpecs(t, map[string]string{"broken.yaml": brokenYAML})
	rec := f.do(t, http.MethodPost, "/api/admin/reload", map[string]string{"spec_dir": bad})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), dsl.IssueUnknownEntity)

	assert.Equal(t, before, f.svc.Specs.Root(), "registry is left untouched")
	_, ok := f.svc.Specs.Get("WalletSystem")
	assert.True(t, ok)

	rec = f.do(t, http.MethodPost, "/api/admin/reload", map[string]string{"spec_dir": filepath.Join(bad, "missing")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorDetails(t *testing.T) {
	assert.Equal(t, []string{}, errorDetails(nil))
	err := errors.Join(errors.New("a"), errors.Join(errors.New("b"), errors.New("c")))
	assert.Equal(t, []string{"a", "b", "c"}, errorDetails(err))
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, defaultRunsLimit, parseLimit(""))
	assert.Equal(t, defaultRunsLimit, parseLimit("-3"))
	assert.Equal(t, 7, parseLimit(" 7 "))
	assert.Equal(t, maxRunsLimit, parseLimit("100000"))
}

func TestRegistry_AmbiguousName(t *testing.T) {
	r := NewRegistry("x", map[string]*dsl.Specification{
		"Wallet": {Name: "Wallet"},
		"WALLET": {Name: "WALLET"},
	})
	key, ok := r.NormalizeSpecName("Wallet")
	assert.True(t, ok)
	assert.Equal(t, "Wallet", key)

	_, ok = r.NormalizeSpecName("wallet")
	assert.False(t, ok, "case-insensitive match must be unique")
}
