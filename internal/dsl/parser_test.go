package dsl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSpec_Wallet(t *testing.T) {
	spec, err := LoadSpec(filepath.Join("testdata", "wallet.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "WalletSystem", spec.Name)
	assert.Equal(t, "1.2.0", spec.Version)
	assert.Equal(t, []string{"Wallet", "Transfer"}, spec.EntityNames())

	wallet, ok := spec.Entity("Wallet")
	require.True(t, ok)
	balance, ok := wallet.FieldByName("balance")
	require.True(t, ok)
	assert.Equal(t, TypeDecimal, balance.Type, "type spelling is normalized")
	require.NotNil(t, balance.Precision)
	assert.Equal(t, 18, *balance.Precision)
	id, _ := wallet.FieldByName("id")
	assert.True(t, id.PrimaryKey)
	assert.Equal(t, TypeUUID, id.Type)

	require.Len(t, wallet.Invariants, 1)
	assert.Equal(t, Invariant{Name: "non_negative_balance", Expr: "balance >= 0", Severity: SeverityError}, wallet.Invariants[0])

	transfer, ok := spec.Entity("Transfer")
	require.True(t, ok)
	require.Len(t, transfer.Invariants, 2)
	assert.Equal(t, "amount > 0", transfer.Invariants[0].Expr, "expression key is accepted")
	assert.Equal(t, "from_id != to_id", transfer.Invariants[1].Expr, "nested expression form is accepted")
	assert.Equal(t, SeverityWarning, transfer.Invariants[1].Severity)
	fk, _ := transfer.FieldByName("from_id")
	assert.Equal(t, "Wallet.id", fk.ForeignKey)

	svc, ok := spec.Service("TransferMoney")
	require.True(t, ok)
	assert.Equal(t, []Parameter{
		{Name: "from_id", Type: TypeUUID},
		{Name: "to_id", Type: TypeUUID},
		{Name: "amount", Type: TypeDecimal},
		{Name: "memo", Type: TypeString},
	}, svc.Contract.Inputs)
	assert.Equal(t, []string{"amount > 0", "Wallet(from_id).balance >= amount"}, svc.Contract.Preconditions)
	assert.Len(t, svc.Contract.Postconditions, 1)
	assert.Equal(t, StrategyACID, svc.Strategy)
	assert.Equal(t, "SERIALIZABLE", svc.Isolation)
	require.NotNil(t, svc.Timeout)
	assert.Equal(t, 30, *svc.Timeout)
}

func TestParse_Defaults(t *testing.T) {
	spec, err := Parse([]byte(`
entities:
  - Wallet
  - name: Account
    fields:
      - name: note
services:
  - name: Ping
    strategy: Whatever
`))
	require.NoError(t, err)
	assert.Equal(t, "UnnamedSystem", spec.Name)
	assert.Equal(t, "1.0.0", spec.Version)
	assert.Equal(t, []string{"Wallet", "Account"}, spec.EntityNames())

	acc, _ := spec.Entity("Account")
	note, ok := acc.FieldByName("note")
	require.True(t, ok)
	assert.Equal(t, TypeString, note.Type, "missing type defaults to String")

	ping, _ := spec.Service("Ping")
	assert.Equal(t, StrategySimple, ping.Strategy, "unknown strategy falls back to Simple")
	assert.Empty(t, ping.Contract.Preconditions)
}

func TestParse_JSONDocument(t *testing.T) {
	spec, err := Parse([]byte(`{"name":"Ledger","entities":[{"name":"Entry","fields":[{"name":"amount","type":"Int"}],"invariants":[{"name":"pos","expr":"amount > 0"}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Ledger", spec.Name)
	e, _ := spec.Entity("Entry")
	require.Len(t, e.Invariants, 1)
	assert.Equal(t, "amount > 0", e.Invariants[0].Expr)
}

func TestParse_CollectsAllErrors(t *testing.T) {
	_, err := Parse([]byte(`
entities:
  - name: Wallet
    fields:
      - {name: balance, type: Money}
      - {name: id, type: UUID}
      - {name: id, type: UUID}
    invariants:
      - name: ""
        expr: "balance >= 0"
      - name: empty
      - name: cross
        expr: "Transfer(x).amount > 0"
      - name: loud
        expr: "balance >= 0"
        severity: fatal
  - name: Wallet
  - name: Transfer
services:
  - name: ""
`))
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))

	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok, "errors are joined, not returned one by one")
	msgs := make([]string, 0)
	for _, e := range joined.Unwrap() {
		msgs = append(msgs, e.Error())
	}
	assert.Len(t, msgs, 8)
	assert.Contains(t, msgs, `entity Wallet, fields[0]: field "balance": unknown type "Money"`)
	assert.Contains(t, msgs, `entity Wallet: duplicate field "id"`)
	assert.Contains(t, msgs, `entity Wallet, invariants[0]: invariant name is required`)
	assert.Contains(t, msgs, `entity Wallet, invariants[1]: invariant "empty" has empty expression`)
	assert.Contains(t, msgs, `entity Wallet, invariants[2]: invariant "cross" references Transfer: use only fields of Wallet`)
	assert.Contains(t, msgs, `entity Wallet, invariants[3]: unknown severity "fatal" (allowed: error|warning)`)
	assert.Contains(t, msgs, `entities[1]: duplicate entity "Wallet"`)
	assert.Contains(t, msgs, `services[0]: service name is required`)
}

func TestParse_RejectsNonMapping(t *testing.T) {
	_, err := Parse([]byte(`- just\n- a list`))
	require.Error(t, err)

	_, err = Parse([]byte("name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YAML parsing error")
}

func TestReferencesEntity(t *testing.T) {
	assert.True(t, ReferencesEntity("Wallet(from_id).balance >= 100", "Wallet"))
	assert.True(t, ReferencesEntity("Wallet (x).balance > 0", "Wallet"))
	assert.False(t, ReferencesEntity("MyWallet(x).balance > 0", "Wallet"))
	assert.False(t, ReferencesEntity("wallet_balance >= 0", "Wallet"))
	assert.False(t, ReferencesEntity("anything", ""))
}

func TestLoadAllSpecs(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("a.yaml", "name: Alpha\nentities: [A]\n")
	write("nested/b.yml", "name: Beta\n")
	write("notes.txt", "not a spec")

	specs, err := LoadAllSpecs(dir)
	require.NoError(t, err)
	assert.Len(t, specs, 2)
	assert.Contains(t, specs, "Alpha")
	assert.Contains(t, specs, "Beta")

	write("c.yaml", "name: Alpha\n")
	_, err = LoadAllSpecs(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate specification "Alpha"`)
}

func TestNormalizeType(t *testing.T) {
	for raw, want := range map[string]BaseType{
		"decimal":   TypeDecimal,
		" INT64 ":   TypeInt64,
		"boolean":   TypeBoolean,
		"Timestamp": TypeTimestamp,
	} {
		got, ok := NormalizeType(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	got, ok := NormalizeType("Money")
	assert.False(t, ok)
	assert.Equal(t, BaseType("Money"), got)
}
