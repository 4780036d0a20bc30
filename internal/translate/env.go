package translate

import (
	"specproof/internal/smt"
)

type ScopeKind int

const (
	EntityScope ScopeKind = iota
	ServiceScope
)

// Scope — владелец переменных: сущность или сервис.
type Scope struct {
	Kind ScopeKind
	Name string
}

func Entity(name string) Scope  { return Scope{Kind: EntityScope, Name: name} }
func Service(name string) Scope { return Scope{Kind: ServiceScope, Name: name} }

func (s Scope) String() string {
	if s.Kind == ServiceScope {
		return "service " + s.Name
	}
	return "entity " + s.Name
}

// Key — имя переменной в решателе. Префикс вида владельца исключает
// совпадение сущности и сервиса с одинаковым именем.
func (s Scope) Key(name string) string {
	if s.Kind == ServiceScope {
		return "service:" + s.Name + "." + name
	}
	return "entity:" + s.Name + "." + name
}

// Env — двухуровневая таблица переменных: владелец -> имя -> переменная.
// Живёт ровно один проход трансляции.
type Env struct {
	tables map[Scope]map[string]smt.Var
	pool   map[string]smt.Var
}

func NewEnv() *Env {
	return &Env{
		tables: map[Scope]map[string]smt.Var{},
		pool:   map[string]smt.Var{},
	}
}

// Declare заводит переменную; повторное объявление сорт не меняет.
func (e *Env) Declare(s Scope, name string, d smt.Domain) smt.Var {
	t := e.tables[s]
	if t == nil {
		t = map[string]smt.Var{}
		e.tables[s] = t
	}
	if v, ok := t[name]; ok {
		return v
	}
	v := smt.Var{Name: s.Key(name), Domain: d}
	t[name] = v
	e.pool[v.Name] = v
	return v
}

func (e *Env) Lookup(s Scope, name string) (smt.Var, bool) {
	v, ok := e.tables[s][name]
	return v, ok
}

// Table возвращает копию переменных владельца.
func (e *Env) Table(s Scope) map[string]smt.Var {
	out := make(map[string]smt.Var, len(e.tables[s]))
	for k, v := range e.tables[s] {
		out[k] = v
	}
	return out
}

// Pool возвращает все переменные по ключу решателя.
func (e *Env) Pool() map[string]smt.Var {
	out := make(map[string]smt.Var, len(e.pool))
	for k, v := range e.pool {
		out[k] = v
	}
	return out
}
