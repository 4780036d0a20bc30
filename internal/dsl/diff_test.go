package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_Equal(t *testing.T) {
	two := 2
	a := Field{Name: "balance", Type: TypeDecimal, Scale: &two}
	b := Field{Name: "balance", Type: TypeDecimal, Scale: &two, Values: []string{}}
	assert.True(t, a.Equal(b), "nil and empty values are the same")

	c := b
	c.Indexed = true
	assert.False(t, a.Equal(c))

	three := 3
	d := a
	d.Scale = &three
	assert.False(t, a.Equal(d), "pointers are compared by value")
}

func TestEntity_Equal(t *testing.T) {
	e := Entity{Name: "Wallet", Fields: []Field{{Name: "balance", Type: TypeDecimal}}, Invariants: []Invariant{{Name: "nn", Expr: "balance >= 0", Severity: SeverityError}}}
	same := Entity{Name: "Wallet", Fields: []Field{{Name: "balance", Type: TypeDecimal}}, Invariants: []Invariant{{Name: "nn", Expr: "balance >= 0", Severity: SeverityError}}}
	assert.True(t, e.Equal(same))

	same.Invariants[0].Expr = "balance > 0"
	assert.False(t, e.Equal(same))
}

func TestDiff(t *testing.T) {
	prev, err := Parse([]byte(`
entities:
  - name: Wallet
    fields:
      - {name: id, type: UUID}
      - {name: balance, type: Int}
      - {name: legacy, type: String}
  - name: Audit
services:
  - name: Old
`))
	require.NoError(t, err)
	next, err := Parse([]byte(`
entities:
  - name: Wallet
    fields:
      - {name: id, type: UUID}
      - {name: balance, type: Decimal}
      - {name: currency, type: String}
  - name: Transfer
services:
  - name: New
`))
	require.NoError(t, err)

	d := Diff(prev, next)
	assert.False(t, d.Empty())
	assert.Equal(t, []string{"Transfer"}, d.AddedEntities)
	assert.Equal(t, []string{"Audit"}, d.RemovedEntities)
	assert.Equal(t, []string{"New"}, d.AddedServices)
	assert.Equal(t, []string{"Old"}, d.RemovedServices)

	require.Len(t, d.FieldChanges, 3)
	assert.Equal(t, "balance", d.FieldChanges[0].Field)
	assert.Equal(t, ChangeModified, d.FieldChanges[0].Action)
	assert.Equal(t, TypeInt, d.FieldChanges[0].Old.Type)
	assert.Equal(t, TypeDecimal, d.FieldChanges[0].New.Type)
	assert.Equal(t, "currency", d.FieldChanges[1].Field)
	assert.Equal(t, ChangeAdded, d.FieldChanges[1].Action)
	assert.Equal(t, "legacy", d.FieldChanges[2].Field)
	assert.Equal(t, ChangeRemoved, d.FieldChanges[2].Action)

	assert.True(t, Diff(next, next).Empty())
}
