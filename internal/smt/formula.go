// Package smt — минимальный интерфейс решателя ограничений и встроенный движок
// для фрагмента "переменная op константа" / "переменная ==|!= переменная".
package smt

import (
	"fmt"
	"math/big"
)

type Domain int

const (
	Int Domain = iota
	Real
)

func (d Domain) String() string {
	if d == Real {
		return "Real"
	}
	return "Int"
}

// Var — типизированная символьная переменная. Идентичность — по имени.
type Var struct {
	Name   string
	Domain Domain
}

func (v Var) String() string { return v.Name }

type Op string

const (
	LT Op = "<"
	LE Op = "<="
	GT Op = ">"
	GE Op = ">="
	EQ Op = "=="
	NE Op = "!="
)

func (o Op) valid() bool {
	switch o {
	case LT, LE, GT, GE, EQ, NE:
		return true
	}
	return false
}

// Negate возвращает отрицание оператора.
func (o Op) Negate() Op {
	switch o {
	case LT:
		return GE
	case LE:
		return GT
	case GT:
		return LE
	case GE:
		return LT
	case EQ:
		return NE
	default:
		return EQ
	}
}

// Formula — атом: Left Op Const либо Left Op Right.
type Formula struct {
	Left  Var
	Op    Op
	Right *Var
	Const *big.Rat
}

// Compare строит атом "v op c".
func Compare(v Var, op Op, c *big.Rat) Formula {
	return Formula{Left: v, Op: op, Const: new(big.Rat).Set(c)}
}

// CompareInt: то же для целой константы.
func CompareInt(v Var, op Op, c int64) Formula {
	return Compare(v, op, new(big.Rat).SetInt64(c))
}

func Equal(a, b Var) Formula {
	return Formula{Left: a, Op: EQ, Right: &b}
}

func NotEqual(a, b Var) Formula {
	return Formula{Left: a, Op: NE, Right: &b}
}

// Vars возвращает переменные атома.
func (f Formula) Vars() []Var {
	if f.Right != nil {
		return []Var{f.Left, *f.Right}
	}
	return []Var{f.Left}
}

func (f Formula) String() string {
	if f.Right != nil {
		return fmt.Sprintf("%s %s %s", f.Left.Name, f.Op, f.Right.Name)
	}
	if f.Const == nil {
		return fmt.Sprintf("%s %s ?", f.Left.Name, f.Op)
	}
	return fmt.Sprintf("%s %s %s", f.Left.Name, f.Op, f.Const.RatString())
}

func (f Formula) check() error {
	if f.Left.Name == "" {
		return fmt.Errorf("formula %q: empty variable name", f.String())
	}
	if !f.Op.valid() {
		return fmt.Errorf("formula %q: unknown operator %q", f.String(), f.Op)
	}
	if f.Right != nil {
		if f.Right.Name == "" {
			return fmt.Errorf("formula %q: empty variable name", f.String())
		}
		if f.Op != EQ && f.Op != NE {
			return fmt.Errorf("formula %q: only == and != are supported between variables", f.String())
		}
		return nil
	}
	if f.Const == nil {
		return fmt.Errorf("formula %q: missing constant", f.String())
	}
	return nil
}
