// Package counterexample ищет конкретные состояния, на которых правила ломаются
// или выходят на край допустимого.
package counterexample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"sort"
	"time"

	"specproof/internal/dsl"
	"specproof/internal/metrics"
	"specproof/internal/smt"
	"specproof/internal/translate"
)

const DefaultTimeout = 3 * time.Second

var (
	ErrUnknownEntity       = errors.New("entity not found in specification")
	ErrUnsupportedOperator = errors.New("no derivable negation for invariant operator")
	ErrNoField             = errors.New("invariant mentions no variable of the entity")
	ErrIndeterminate       = errors.New("solver could not decide within timeout")
)

// SuspiciousState — конкретное присваивание, свидетельствующее о нарушении или краевом случае.
type SuspiciousState struct {
	Description    string            `json:"description"`
	EntityName     string            `json:"entity_name"`
	VariableValues map[string]string `json:"variable_values"`
	PreventionRule *string           `json:"prevention_rule,omitempty"`
}

type SolverFactory func(timeout time.Duration) smt.Solver

type Finder struct {
	timeout   time.Duration
	newSolver SolverFactory
	patterns  []Pattern
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(f *Finder)

func WithTimeout(d time.Duration) Option {
	return func(f *Finder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithSolverFactory(sf SolverFactory) Option {
	return func(f *Finder) {
		f.newSolver = sf
	}
}

// WithPatterns заменяет встроенный каталог эвристик.
func WithPatterns(ps ...Pattern) Option {
	return func(f *Finder) {
		f.patterns = ps
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Finder) {
		f.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Finder) {
		f.metrics = m
	}
}

func New(opts ...Option) *Finder {
	f := &Finder{
		timeout:  DefaultTimeout,
		patterns: DefaultPatterns(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.newSolver == nil {
		f.newSolver = func(d time.Duration) smt.Solver { return smt.New(smt.WithTimeout(d)) }
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// FindSuspiciousStates прогоняет каталог эвристик по всем сущностям.
// Каждая проба изолирована push/pop и не влияет на следующую.
// Сбой одной пробы не останавливает остальные: ошибки собираются и возвращаются вместе с находками.
func (f *Finder) FindSuspiciousStates(ctx context.Context, spec *dsl.Specification) ([]SuspiciousState, error) {
	tr := translate.Translate(spec)
	s := f.newSolver(f.timeout)
	tr.DeclareAll(s)
	s.Assert(tr.Invariants...)

	found := []SuspiciousState{}
	var errs []error
	for _, e := range spec.Entities {
		vars := tr.EntityVars[e.Name]
		for _, p := range f.patterns {
			probe, ok := p.Probe(vars)
			if !ok {
				continue
			}
			st, err := f.probe(ctx, s, e.Name, vars, p, probe)
			if err != nil {
				f.logger.Warn("pattern probe failed", "pattern", p.Name, "entity", e.Name, "error", err)
				errs = append(errs, fmt.Errorf("pattern %s on %s: %w", p.Name, e.Name, err))
				continue
			}
			if st != nil {
				found = append(found, *st)
			}
		}
	}
	f.metrics.AddSuspicious(len(found))
	return found, errors.Join(errs...)
}

func (f *Finder) probe(ctx context.Context, s smt.Solver, entity string, vars map[string]smt.Var, p Pattern, probe smt.Formula) (st *SuspiciousState, err error) {
	s.Push()
	defer func() {
		if perr := s.Pop(); perr != nil && err == nil {
			err = perr
		}
	}()
	defer recoverFault(&err)
	s.Assert(probe)
	status, err := s.Check(ctx)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("pattern probed", "pattern", p.Name, "entity", entity, "status", status.String())
	switch status {
	case smt.Unsat:
		return nil, nil
	case smt.Unknown:
		// unknown — не «ничего подозрительного», а отсутствие ответа
		return nil, indeterminate(s)
	}
	st = &SuspiciousState{
		Description:    p.Description,
		EntityName:     entity,
		VariableValues: assignment(s, vars),
	}
	if p.Prevention != "" {
		rule := p.Prevention
		st.PreventionRule = &rule
	}
	return st, nil
}

var (
	// первый оператор сравнения в тексте; двухсимвольные раньше односимвольных
	opRe = regexp.MustCompile(`>=|<=|==|!=|>|<`)

	// правая часть целиком — числовой литерал
	boundRe = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*$`)
)

// negations — какие операторы мы умеем отрицать. Остальные — явный ErrUnsupportedOperator.
var negations = map[string]smt.Op{
	">=": smt.LT,
	">":  smt.LE,
}

// FindCounterexampleForInvariant ищет состояние, при котором все инварианты спецификации
// выполнены, а отрицание указанного — тоже.
//
// (nil, nil) — отрицание невыполнимо (инвариант не нарушить).
func (f *Finder) FindCounterexampleForInvariant(ctx context.Context, spec *dsl.Specification, entityName, invariantExpr string) (_ *SuspiciousState, err error) {
	defer recoverFault(&err)

	if _, ok := spec.Entity(entityName); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityName)
	}
	tr := translate.Translate(spec)
	vars := tr.EntityVars[entityName]

	op := opRe.FindString(invariantExpr)
	negOp, ok := negations[op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
	}
	_, v, ok := translate.FirstVariable(invariantExpr, vars)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %q", ErrNoField, entityName, invariantExpr)
	}
	m := boundRe.FindStringSubmatch(invariantExpr[opRe.FindStringIndex(invariantExpr)[1]:])
	if m == nil {
		return nil, fmt.Errorf("%w: right-hand side of %q is not a numeric literal", ErrUnsupportedOperator, invariantExpr)
	}
	bound, ok := new(big.Rat).SetString(m[1])
	if !ok {
		return nil, fmt.Errorf("%w: bad numeric literal %q", ErrUnsupportedOperator, m[1])
	}

	s := f.newSolver(f.timeout)
	tr.DeclareAll(s)
	s.Assert(tr.Invariants...)
	s.Push()
	defer func() {
		if perr := s.Pop(); perr != nil && err == nil {
			err = perr
		}
	}()

	s.Assert(smt.Compare(v, negOp, bound))
	status, err := s.Check(ctx)
	if err != nil {
		return nil, err
	}
	switch status {
	case smt.Sat:
		rule := invariantExpr
		f.metrics.AddSuspicious(1)
		return &SuspiciousState{
			Description:    "Invariant violation: " + invariantExpr,
			EntityName:     entityName,
			VariableValues: assignment(s, vars),
			PreventionRule: &rule,
		}, nil
	case smt.Unsat:
		return nil, nil
	default:
		return nil, indeterminate(s)
	}
}

// indeterminate добавляет к ErrIndeterminate причину, если решатель её знает.
func indeterminate(s smt.Solver) error {
	if r := smt.ReasonOf(s); r != "" {
		return fmt.Errorf("%w (%s)", ErrIndeterminate, r)
	}
	return ErrIndeterminate
}

// assignment: значения по имени поля
func assignment(s smt.Solver, vars map[string]smt.Var) map[string]string {
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make(map[string]string, len(names))
	for _, n := range names {
		if val, ok := s.Eval(vars[n]); ok {
			out[n] = val
		}
	}
	return out
}

// recoverFault превращает панику решателя в ошибку.
func recoverFault(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("solver fault: %v", r)
	}
}
