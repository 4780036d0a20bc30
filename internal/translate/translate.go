// Package translate переводит ограниченные выражения сравнения в атомы решателя.
package translate

import (
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"

	"specproof/internal/dsl"
	"specproof/internal/smt"
)

const (
	nameP = `([A-Za-z_][A-Za-z0-9_]*)`
	numP  = `(-?\d+(?:\.\d+)?)`
)

type rule struct {
	op       smt.Op
	re       *regexp.Regexp
	rhsIsNum bool
}

func cmpRe(lhs, op, rhs string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*` + lhs + `\s*` + regexp.QuoteMeta(op) + `\s*` + rhs + `\s*$`)
}

// порядок важен: первым срабатывает первое совпадение
var grammar = []rule{
	{smt.GE, cmpRe(nameP, ">=", numP), true},
	{smt.LE, cmpRe(nameP, "<=", numP), true},
	{smt.GT, cmpRe(nameP, ">", numP), true},
	{smt.LT, cmpRe(nameP, "<", numP), true},
	{smt.EQ, cmpRe(nameP, "==", numP), true},
	{smt.NE, cmpRe(nameP, "!=", nameP), false},
	{smt.EQ, cmpRe(nameP, "==", nameP), false},
}

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Outcome — результат трансляции одного выражения: Translated либо Unsupported.
type Outcome struct {
	Scope     Scope
	Source    string // имя инварианта или "precondition #N"
	Expr      string
	Formula   smt.Formula
	Supported bool
}

func (o Outcome) String() string {
	if o.Supported {
		return fmt.Sprintf("%s, %s: %s", o.Scope, o.Source, o.Formula)
	}
	return fmt.Sprintf("%s, %s: expression not supported, not verified: %q", o.Scope, o.Source, o.Expr)
}

// Translation — результат одного прохода по спецификации. Строится заново на каждый вызов.
type Translation struct {
	Invariants    []smt.Formula
	Preconditions map[string][]smt.Formula
	Variables     map[string]smt.Var
	EntityVars    map[string]map[string]smt.Var
	ServiceVars   map[string]map[string]smt.Var
	Outcomes      []Outcome
}

// Unsupported — выражения вне грамматики: в решатель они ничего не добавляют.
func (t *Translation) Unsupported() []Outcome {
	var out []Outcome
	for _, o := range t.Outcomes {
		if !o.Supported {
			out = append(out, o)
		}
	}
	return out
}

// DeclareAll объявляет весь пул в решателе в стабильном порядке,
// чтобы модель содержала и переменные без ограничений.
func (t *Translation) DeclareAll(s smt.Solver) {
	keys := make([]string, 0, len(t.Variables))
	for k := range t.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Declare(t.Variables[k])
	}
}

// Translate строит атомы для всех инвариантов и предусловий.
func Translate(spec *dsl.Specification) *Translation {
	env := NewEnv()
	t := &Translation{
		Preconditions: make(map[string][]smt.Formula, len(spec.Services)),
		EntityVars:    make(map[string]map[string]smt.Var, len(spec.Entities)),
		ServiceVars:   make(map[string]map[string]smt.Var, len(spec.Services)),
	}

	// поля и входы объявляются заранее: Decimal -> Real, остальное -> Int
	for _, e := range spec.Entities {
		for _, f := range e.Fields {
			env.Declare(Entity(e.Name), f.Name, domainOf(f.Type))
		}
	}
	for _, s := range spec.Services {
		for _, in := range s.Contract.Inputs {
			if in.Name != "" {
				env.Declare(Service(s.Name), in.Name, domainOf(in.Type))
			}
		}
	}

	for _, e := range spec.Entities {
		scope := Entity(e.Name)
		for _, inv := range e.Invariants {
			o := Outcome{Scope: scope, Source: "invariant " + inv.Name, Expr: inv.Expr}
			if f, ok := compile(inv.Expr, env, []Scope{scope}, scope); ok {
				o.Formula, o.Supported = f, true
				t.Invariants = append(t.Invariants, f)
			}
			t.Outcomes = append(t.Outcomes, o)
		}
	}

	for _, s := range spec.Services {
		scope := Service(s.Name)
		pres := []smt.Formula{}
		for i, pre := range s.Contract.Preconditions {
			o := Outcome{Scope: scope, Source: fmt.Sprintf("precondition #%d", i+1), Expr: pre}
			if f, ok := compilePrecondition(spec, pre, env, scope); ok {
				o.Formula, o.Supported = f, true
				pres = append(pres, f)
			}
			t.Outcomes = append(t.Outcomes, o)
		}
		t.Preconditions[s.Name] = pres
	}

	for _, e := range spec.Entities {
		t.EntityVars[e.Name] = env.Table(Entity(e.Name))
	}
	for _, s := range spec.Services {
		t.ServiceVars[s.Name] = env.Table(Service(s.Name))
	}
	t.Variables = env.Pool()
	return t
}

func domainOf(t dsl.BaseType) smt.Domain {
	if t == dsl.TypeDecimal {
		return smt.Real
	}
	return smt.Int
}

// compilePrecondition: сначала выражение как есть в области сервиса; если не вышло и
// в тексте есть "Entity(", срезаем "Entity(...)." и пробуем снова в области сущности.
func compilePrecondition(spec *dsl.Specification, pre string, env *Env, scope Scope) (smt.Formula, bool) {
	if f, ok := compile(pre, env, []Scope{scope}, scope); ok {
		return f, true
	}
	for _, e := range spec.Entities {
		if !dsl.ReferencesEntity(pre, e.Name) {
			continue
		}
		stripped := stripEntityRef(pre, e.Name)
		if f, ok := compile(stripped, env, []Scope{Entity(e.Name), scope}, scope); ok {
			return f, true
		}
	}
	return smt.Formula{}, false
}

// stripEntityRef: "Wallet(from_id).balance >= 100" -> "balance >= 100"
func stripEntityRef(expr, entity string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(entity) + `\s*\([^)]*\)\s*\.?\s*`)
	return re.ReplaceAllString(expr, "")
}

// compile сопоставляет выражение с грамматикой. Имена ищутся по цепочке областей;
// неизвестное имя объявляется в области owner.
func compile(expr string, env *Env, chain []Scope, owner Scope) (smt.Formula, bool) {
	expr = strings.TrimSpace(expr)
	for _, r := range grammar {
		m := r.re.FindStringSubmatch(expr)
		if m == nil {
			continue
		}
		lhs, rhs := m[1], m[2]
		if r.rhsIsNum {
			c, ok := new(big.Rat).SetString(rhs)
			if !ok {
				return smt.Formula{}, false
			}
			left := resolve(env, chain, owner, lhs, literalDomain(rhs))
			return smt.Compare(left, r.op, c), true
		}
		left := resolve(env, chain, owner, lhs, smt.Int)
		right := resolve(env, chain, owner, rhs, left.Domain)
		if r.op == smt.NE {
			return smt.NotEqual(left, right), true
		}
		return smt.Equal(left, right), true
	}
	return smt.Formula{}, false
}

func resolve(env *Env, chain []Scope, owner Scope, name string, d smt.Domain) smt.Var {
	for _, s := range chain {
		if v, ok := env.Lookup(s, name); ok {
			return v
		}
	}
	return env.Declare(owner, name, d)
}

// literal с точкой даёт Real
func literalDomain(lit string) smt.Domain {
	if strings.Contains(lit, ".") {
		return smt.Real
	}
	return smt.Int
}

// FirstVariable ищет первое имя из vars, встречающееся в тексте.
func FirstVariable(expr string, vars map[string]smt.Var) (string, smt.Var, bool) {
	for _, name := range identRe.FindAllString(expr, -1) {
		if v, ok := vars[name]; ok {
			return name, v, true
		}
	}
	return "", smt.Var{}, false
}
