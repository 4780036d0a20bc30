package dsl

import "strings"

// BaseType — базовый тип поля или входного параметра сервиса.
type BaseType string

const (
	TypeUUID      BaseType = "UUID"
	TypeString    BaseType = "String"
	TypeInt       BaseType = "Int"
	TypeInt64     BaseType = "Int64"
	TypeDecimal   BaseType = "Decimal"
	TypeBoolean   BaseType = "Boolean"
	TypeTimestamp BaseType = "Timestamp"
	TypeEnum      BaseType = "Enum"
)

var baseTypes = []BaseType{
	TypeUUID, TypeString, TypeInt, TypeInt64, TypeDecimal, TypeBoolean, TypeTimestamp, TypeEnum,
}

// NormalizeType приводит написание типа к каноническому ("decimal" -> "Decimal").
// ok=false, если тип вне допустимого набора.
func NormalizeType(raw string) (BaseType, bool) {
	t := strings.TrimSpace(raw)
	for _, bt := range baseTypes {
		if strings.EqualFold(string(bt), t) {
			return bt, true
		}
	}
	return BaseType(t), false
}

// Severity инварианта. По умолчанию блокирующая.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Strategy — тег стратегии исполнения сервиса (на верификацию не влияет).
type Strategy string

const (
	StrategySimple     Strategy = "Simple"
	StrategyACID       Strategy = "ACID_Transaction"
	StrategyIdempotent Strategy = "Idempotent"
)

// Field описывает поле сущности
type Field struct {
	Name       string
	Type       BaseType
	PrimaryKey bool
	Indexed    bool
	ForeignKey string   // "Entity.field", только для ссылочных полей
	Precision  *int     // Decimal
	Scale      *int     // Decimal
	Length     *int     // String
	Values     []string // Enum
}

// Invariant — условие, которое должно выполняться для любого валидного состояния сущности.
type Invariant struct {
	Name     string
	Expr     string
	Severity Severity
}

// Entity описывает структуру сущности из спецификации
type Entity struct {
	Name       string
	Fields     []Field
	Invariants []Invariant
}

// FieldByName ищет поле по имени.
func (e *Entity) FieldByName(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type Parameter struct {
	Name string
	Type BaseType
}

// Contract — вход сервиса, пред- и постусловия.
// Постусловия хранятся для справки, верификатор их не проверяет.
type Contract struct {
	Inputs         []Parameter
	Preconditions  []string
	Postconditions []string
}

type Service struct {
	Name        string
	Contract    Contract
	Strategy    Strategy
	Isolation   string
	Timeout     *int
	RetryPolicy string
}

// Specification — корневой агрегат: владеет списками сущностей и сервисов.
type Specification struct {
	Name     string
	Version  string
	Entities []Entity
	Services []Service
}

// Entity возвращает сущность по имени.
func (s *Specification) Entity(name string) (*Entity, bool) {
	for i := range s.Entities {
		if s.Entities[i].Name == name {
			return &s.Entities[i], true
		}
	}
	return nil, false
}

// Service возвращает сервис по имени.
func (s *Specification) Service(name string) (*Service, bool) {
	for i := range s.Services {
		if s.Services[i].Name == name {
			return &s.Services[i], true
		}
	}
	return nil, false
}

// EntityNames возвращает имена в порядке объявления.
func (s *Specification) EntityNames() []string {
	out := make([]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		out = append(out, e.Name)
	}
	return out
}
