package counterexample

import (
	"specproof/internal/smt"
)

// Pattern — эвристика подозрительного состояния. Срабатывает на сущности,
// у которой есть все поля из Fields.
type Pattern struct {
	Name        string
	Description string
	Fields      []string
	Prevention  string
	Build       func(vars []smt.Var) smt.Formula
}

// Probe строит ограничение-пробу для переменных сущности. ok=false — полей нет.
func (p Pattern) Probe(entityVars map[string]smt.Var) (smt.Formula, bool) {
	if len(p.Fields) == 0 || p.Build == nil {
		return smt.Formula{}, false
	}
	vs := make([]smt.Var, 0, len(p.Fields))
	for _, name := range p.Fields {
		v, ok := entityVars[name]
		if !ok {
			return smt.Formula{}, false
		}
		vs = append(vs, v)
	}
	return p.Build(vs), true
}

func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "zero_balance",
			Description: "Edge case: balance equals zero",
			Fields:      []string{"balance"},
			Build:       func(vs []smt.Var) smt.Formula { return smt.CompareInt(vs[0], smt.EQ, 0) },
		},
		{
			Name:        "zero_amount",
			Description: "Zero-amount transaction",
			Fields:      []string{"amount"},
			Prevention:  "amount > 0",
			Build:       func(vs []smt.Var) smt.Formula { return smt.CompareInt(vs[0], smt.EQ, 0) },
		},
		{
			Name:        "self_transfer",
			Description: "Transfer from wallet to same wallet",
			Fields:      []string{"from_id", "to_id"},
			Prevention:  "from_id != to_id",
			Build:       func(vs []smt.Var) smt.Formula { return smt.Equal(vs[0], vs[1]) },
		},
	}
}
