package smt

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"time"
)

// Status: sat, unsat или unknown.
type Status int

const (
	Unknown Status = iota
	Sat
	Unsat
)

func (s Status) String() string {
	switch s {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Solver — то, что ядру нужно от решателя. Любая реализация с этой семантикой подходит.
type Solver interface {
	// Declare регистрирует переменную. Сорт фиксируется при первом объявлении.
	Declare(v Var) Var
	Assert(fs ...Formula)
	Check(ctx context.Context) (Status, error)
	Push()
	Pop() error
	// Eval — значение переменной в модели последнего Sat.
	Eval(v Var) (string, bool)
}

const DefaultTimeout = 5 * time.Second

var ErrEmptyStack = errors.New("smt: pop without matching push")

// Reason для Unknown.
const (
	ReasonTimeout  = "timeout"
	ReasonCanceled = "canceled"
)

type frame struct {
	assertions int
	vars       int
}

// Engine — встроенный решатель. Один Engine — один запрос, между горутинами не делится.
type Engine struct {
	timeout    time.Duration
	vars       []Var
	index      map[string]int
	assertions []Formula
	frames     []frame

	model  map[string]*big.Rat
	reason string
}

type Option func(*Engine)

// WithTimeout ограничивает время одного Check. Неположительное значение — DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout, index: map[string]int{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Timeout() time.Duration { return e.timeout }

// Reason: почему последний Check вернул Unknown.
func (e *Engine) Reason() string { return e.reason }

// ReasonOf — причина последнего Unknown, если решатель её сообщает; иначе "".
func ReasonOf(s Solver) string {
	if r, ok := s.(interface{ Reason() string }); ok {
		return r.Reason()
	}
	return ""
}

func (e *Engine) Declare(v Var) Var {
	if i, ok := e.index[v.Name]; ok {
		return e.vars[i]
	}
	e.index[v.Name] = len(e.vars)
	e.vars = append(e.vars, v)
	e.model = nil
	return v
}

func (e *Engine) Assert(fs ...Formula) {
	for _, f := range fs {
		for _, v := range f.Vars() {
			e.Declare(v)
		}
		e.assertions = append(e.assertions, f)
	}
	e.model = nil
}

func (e *Engine) Push() {
	e.frames = append(e.frames, frame{assertions: len(e.assertions), vars: len(e.vars)})
}

func (e *Engine) Pop() error {
	if len(e.frames) == 0 {
		return ErrEmptyStack
	}
	fr := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]
	e.assertions = e.assertions[:fr.assertions]
	for _, v := range e.vars[fr.vars:] {
		delete(e.index, v.Name)
	}
	e.vars = e.vars[:fr.vars]
	e.model = nil
	return nil
}

// Assertions возвращает копию текущих утверждений.
func (e *Engine) Assertions() []Formula {
	return append([]Formula(nil), e.assertions...)
}

func (e *Engine) Eval(v Var) (string, bool) {
	if e.model == nil {
		return "", false
	}
	i, ok := e.index[v.Name]
	if !ok {
		return "", false
	}
	val := e.model[v.Name]
	if val == nil {
		val = new(big.Rat)
	}
	return literal(val, e.vars[i].Domain), true
}

func literal(r *big.Rat, d Domain) string {
	if d == Int || r.IsInt() {
		return r.Num().String()
	}
	return r.RatString()
}

var errDeadline = errors.New("deadline")

// Check решает текущий набор утверждений.
// Таймаут не вытесняющий: опрашивается между шагами перебора.
func (e *Engine) Check(ctx context.Context) (Status, error) {
	e.model = nil
	e.reason = ""
	for _, f := range e.assertions {
		if err := f.check(); err != nil {
			return Unknown, err
		}
	}

	deadline := time.Now().Add(e.timeout)
	expired := func() bool {
		if ctx.Err() != nil {
			e.reason = ReasonCanceled
			return true
		}
		if !time.Now().Before(deadline) {
			e.reason = ReasonTimeout
			return true
		}
		return false
	}

	p := newProblem(e.vars, e.assertions)
	if !p.build() {
		return Unsat, nil
	}
	if expired() {
		return Unknown, nil
	}

	values, err := p.solve(expired)
	if errors.Is(err, errDeadline) {
		return Unknown, nil
	}
	if err != nil {
		return Unknown, err
	}
	if values == nil {
		return Unsat, nil
	}
	e.model = values
	return Sat, nil
}

// ---------- решение ----------

type bound struct {
	val    *big.Rat
	strict bool
}

type class struct {
	isInt bool
	lo    *bound
	hi    *bound
	excl  []*big.Rat
	nbrs  map[int]struct{}
	cands []*big.Rat
}

type problem struct {
	vars       []Var
	index      map[string]int
	assertions []Formula
	parent     []int
	classes    map[int]*class
}

func newProblem(vars []Var, assertions []Formula) *problem {
	p := &problem{
		vars:       vars,
		index:      make(map[string]int, len(vars)),
		assertions: assertions,
		parent:     make([]int, len(vars)),
		classes:    map[int]*class{},
	}
	for i, v := range vars {
		p.index[v.Name] = i
		p.parent[i] = i
	}
	return p
}

func (p *problem) find(i int) int {
	for p.parent[i] != i {
		p.parent[i] = p.parent[p.parent[i]]
		i = p.parent[i]
	}
	return i
}

func (p *problem) union(a, b int) {
	ra, rb := p.find(a), p.find(b)
	if ra != rb {
		p.parent[ra] = rb
	}
}

// build строит классы эквивалентности и границы. false — противоречие найдено сразу.
func (p *problem) build() bool {
	for _, f := range p.assertions {
		if f.Right != nil && f.Op == EQ {
			p.union(p.index[f.Left.Name], p.index[f.Right.Name])
		}
	}
	for i, v := range p.vars {
		c := p.class(p.find(i))
		if v.Domain == Int {
			c.isInt = true
		}
	}
	for _, f := range p.assertions {
		l := p.find(p.index[f.Left.Name])
		if f.Right != nil {
			if f.Op == NE {
				r := p.find(p.index[f.Right.Name])
				if l == r {
					return false
				}
				p.classes[l].nbrs[r] = struct{}{}
				p.classes[r].nbrs[l] = struct{}{}
			}
			continue
		}
		c := p.classes[l]
		switch f.Op {
		case GE:
			c.raiseLo(f.Const, false)
		case GT:
			c.raiseLo(f.Const, true)
		case LE:
			c.lowerHi(f.Const, false)
		case LT:
			c.lowerHi(f.Const, true)
		case EQ:
			c.raiseLo(f.Const, false)
			c.lowerHi(f.Const, false)
		case NE:
			c.excl = append(c.excl, new(big.Rat).Set(f.Const))
		}
	}
	for _, c := range p.classes {
		if c.isInt {
			c.tighten()
		}
		if c.empty() {
			return false
		}
	}
	return true
}

func (p *problem) class(root int) *class {
	c, ok := p.classes[root]
	if !ok {
		c = &class{nbrs: map[int]struct{}{}}
		p.classes[root] = c
	}
	return c
}

func (c *class) raiseLo(v *big.Rat, strict bool) {
	if c.lo == nil {
		c.lo = &bound{val: new(big.Rat).Set(v), strict: strict}
		return
	}
	switch cmp := v.Cmp(c.lo.val); {
	case cmp > 0:
		c.lo = &bound{val: new(big.Rat).Set(v), strict: strict}
	case cmp == 0 && strict:
		c.lo.strict = true
	}
}

func (c *class) lowerHi(v *big.Rat, strict bool) {
	if c.hi == nil {
		c.hi = &bound{val: new(big.Rat).Set(v), strict: strict}
		return
	}
	switch cmp := v.Cmp(c.hi.val); {
	case cmp < 0:
		c.hi = &bound{val: new(big.Rat).Set(v), strict: strict}
	case cmp == 0 && strict:
		c.hi.strict = true
	}
}

// tighten переводит границы целочисленного класса в нестрогие целые.
func (c *class) tighten() {
	one := big.NewRat(1, 1)
	if c.lo != nil {
		v := ceil(c.lo.val)
		if c.lo.strict && v.Cmp(c.lo.val) == 0 {
			v.Add(v, one)
		}
		c.lo = &bound{val: v}
	}
	if c.hi != nil {
		v := floor(c.hi.val)
		if c.hi.strict && v.Cmp(c.hi.val) == 0 {
			v.Sub(v, one)
		}
		c.hi = &bound{val: v}
	}
	kept := c.excl[:0]
	for _, x := range c.excl {
		if x.IsInt() {
			kept = append(kept, x)
		}
	}
	c.excl = kept
}

func floor(r *big.Rat) *big.Rat {
	q := new(big.Int).Div(r.Num(), r.Denom()) // евклидово деление: для положительного делителя это floor
	return new(big.Rat).SetInt(q)
}

func ceil(r *big.Rat) *big.Rat {
	f := floor(r)
	if f.Cmp(r) != 0 {
		f.Add(f, big.NewRat(1, 1))
	}
	return f
}

func (c *class) empty() bool {
	if c.lo == nil || c.hi == nil {
		return false
	}
	cmp := c.lo.val.Cmp(c.hi.val)
	return cmp > 0 || (cmp == 0 && (c.lo.strict || c.hi.strict))
}

func (c *class) contains(v *big.Rat) bool {
	if c.lo != nil {
		cmp := v.Cmp(c.lo.val)
		if cmp < 0 || (cmp == 0 && c.lo.strict) {
			return false
		}
	}
	if c.hi != nil {
		cmp := v.Cmp(c.hi.val)
		if cmp > 0 || (cmp == 0 && c.hi.strict) {
			return false
		}
	}
	if c.isInt && !v.IsInt() {
		return false
	}
	return true
}

func (c *class) allowed(v *big.Rat) bool {
	if !c.contains(v) {
		return false
	}
	for _, x := range c.excl {
		if x.Cmp(v) == 0 {
			return false
		}
	}
	return true
}

// start — первое значение-кандидат: 0, если возможно, иначе ближайшее к нулю.
func (c *class) start() *big.Rat {
	zero := new(big.Rat)
	if c.contains(zero) {
		return zero
	}
	one := big.NewRat(1, 1)
	if c.hi != nil && c.hi.val.Sign() <= 0 {
		if !c.hi.strict {
			return new(big.Rat).Set(c.hi.val)
		}
		if v := new(big.Rat).Sub(c.hi.val, one); c.contains(v) {
			return v
		}
	} else if c.lo != nil {
		if !c.lo.strict {
			return new(big.Rat).Set(c.lo.val)
		}
		if v := new(big.Rat).Add(c.lo.val, one); c.contains(v) {
			return v
		}
	}
	return mid(c.lo.val, c.hi.val)
}

func mid(a, b *big.Rat) *big.Rat {
	m := new(big.Rat).Add(a, b)
	return m.Quo(m, big.NewRat(2, 1))
}

// candidates — до need различных допустимых значений.
// need = число соседей + 1: среди них всегда найдётся значение, не совпадающее ни с одним соседом.
func (c *class) candidates(need int) []*big.Rat {
	var out []*big.Rat
	add := func(v *big.Rat) {
		if !c.allowed(v) {
			return
		}
		for _, o := range out {
			if o.Cmp(v) == 0 {
				return
			}
		}
		out = append(out, v)
	}

	s := c.start()
	add(s)
	for k := int64(1); len(out) < need; k++ {
		step := big.NewRat(k, 1)
		up := new(big.Rat).Add(s, step)
		down := new(big.Rat).Sub(s, step)
		upOK, downOK := c.contains(up), c.contains(down)
		if upOK {
			add(up)
		}
		if downOK && len(out) < need {
			add(down)
		}
		if upOK || downOK {
			continue
		}
		// оба направления вышли за границы: целый класс исчерпан,
		// вещественный ограничен с двух сторон — делим интервал
		if c.isInt {
			break
		}
		c.bisect(&out, need, add)
		break
	}
	return out
}

func (c *class) bisect(out *[]*big.Rat, need int, add func(*big.Rat)) {
	width := new(big.Rat).Sub(c.hi.val, c.lo.val)
	if width.Sign() == 0 {
		return
	}
	for j := int64(2); len(*out) < need; j++ {
		v := new(big.Rat).Quo(width, big.NewRat(j, 1))
		add(v.Add(v, c.lo.val))
	}
}

func (p *problem) solve(expired func() bool) (map[string]*big.Rat, error) {
	roots := make([]int, 0, len(p.classes))
	for r, c := range p.classes {
		c.cands = c.candidates(len(c.nbrs) + 1)
		if len(c.cands) == 0 {
			return nil, nil
		}
		roots = append(roots, r)
	}
	// самые стеснённые классы — первыми
	sort.Slice(roots, func(i, j int) bool {
		ci, cj := p.classes[roots[i]], p.classes[roots[j]]
		if len(ci.cands) != len(cj.cands) {
			return len(ci.cands) < len(cj.cands)
		}
		return roots[i] < roots[j]
	})

	assign := make(map[int]*big.Rat, len(roots))
	var dfs func(k int) (bool, error)
	dfs = func(k int) (bool, error) {
		if expired() {
			return false, errDeadline
		}
		if k == len(roots) {
			return true, nil
		}
		r := roots[k]
		c := p.classes[r]
	next:
		for _, v := range c.cands {
			for n := range c.nbrs {
				if av, ok := assign[n]; ok && av.Cmp(v) == 0 {
					continue next
				}
			}
			assign[r] = v
			ok, err := dfs(k + 1)
			if err != nil || ok {
				return ok, err
			}
			delete(assign, r)
		}
		return false, nil
	}

	ok, err := dfs(0)
	if err != nil || !ok {
		return nil, err
	}
	model := make(map[string]*big.Rat, len(p.vars))
	for i, v := range p.vars {
		model[v.Name] = assign[p.find(i)]
	}
	return model, nil
}
