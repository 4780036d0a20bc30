package dsl

import (
	"fmt"
	"regexp"
	"strings"
)

// Issue — находка линтера. В отличие от ошибок Parse, спецификацию не блокирует.
type Issue struct {
	Entity  string `json:"entity,omitempty"`
	Service string `json:"service,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	switch {
	case i.Entity != "":
		return fmt.Sprintf("Entity %s: %s", i.Entity, i.Message)
	case i.Service != "":
		return fmt.Sprintf("Service %s: %s", i.Service, i.Message)
	default:
		return i.Message
	}
}

const (
	IssueUnknownEntity     = "unknown_entity"
	IssueUnknownField      = "unknown_field"
	IssueParamNameEmpty    = "param_name_empty"
	IssueParamTypeEmpty    = "param_type_empty"
	IssueParamTypeUnknown  = "param_type_unknown"
	IssueFacetTypeMismatch = "facet_type_mismatch"
	IssueEnumValuesEmpty   = "enum_values_empty"
	IssueForeignKeyUnknown = "foreign_key_unknown"
)

var (
	// Name( — синтаксическая ссылка на сущность; сущности пишутся с заглавной.
	callRe = regexp.MustCompile(`\b([A-Z]\w*)\s*\(`)
	// Name(...).field
	memberRe = regexp.MustCompile(`\b([A-Z]\w*)\s*\([^)]*\)\s*\.\s*(\w+)`)
)

// Lint — синтаксические проверки без решателя.
func Lint(spec *Specification) []Issue {
	var issues []Issue

	fieldsOf := make(map[string]map[string]struct{}, len(spec.Entities))
	for _, e := range spec.Entities {
		set := make(map[string]struct{}, len(e.Fields))
		for _, f := range e.Fields {
			set[f.Name] = struct{}{}
		}
		fieldsOf[e.Name] = set
	}

	checkRefs := func(expr string, mk func(code, msg string) Issue) {
		for _, m := range callRe.FindAllStringSubmatch(expr, -1) {
			if _, ok := fieldsOf[m[1]]; !ok {
				issues = append(issues, mk(IssueUnknownEntity, fmt.Sprintf("expression %q references non-existent entity %s", expr, m[1])))
			}
		}
		for _, m := range memberRe.FindAllStringSubmatch(expr, -1) {
			fields, ok := fieldsOf[m[1]]
			if !ok || len(fields) == 0 {
				continue
			}
			if _, ok := fields[m[2]]; !ok {
				issues = append(issues, mk(IssueUnknownField, fmt.Sprintf("expression %q references non-existent field %s.%s", expr, m[1], m[2])))
			}
		}
	}

	for _, e := range spec.Entities {
		for _, f := range e.Fields {
			issues = append(issues, lintField(spec, e.Name, f)...)
		}
		for _, inv := range e.Invariants {
			entity := e.Name
			checkRefs(inv.Expr, func(code, msg string) Issue {
				return Issue{Entity: entity, Code: code, Message: "invariant " + inv.Name + ": " + msg}
			})
		}
	}

	for _, s := range spec.Services {
		for _, in := range s.Contract.Inputs {
			switch {
			case in.Name == "":
				issues = append(issues, Issue{Service: s.Name, Code: IssueParamNameEmpty, Message: "empty parameter name"})
			case strings.TrimSpace(string(in.Type)) == "":
				issues = append(issues, Issue{Service: s.Name, Field: in.Name, Code: IssueParamTypeEmpty, Message: "input " + in.Name + ": type not specified"})
			default:
				if _, ok := NormalizeType(string(in.Type)); !ok {
					issues = append(issues, Issue{Service: s.Name, Field: in.Name, Code: IssueParamTypeUnknown, Message: fmt.Sprintf("input %s: unknown type %q", in.Name, in.Type)})
				}
			}
		}
		for _, pre := range s.Contract.Preconditions {
			service := s.Name
			checkRefs(pre, func(code, msg string) Issue {
				return Issue{Service: service, Code: code, Message: "precondition: " + msg}
			})
		}
	}
	return issues
}

func lintField(spec *Specification, entity string, f Field) []Issue {
	var out []Issue
	mismatch := func(facet string, want BaseType) {
		out = append(out, Issue{
			Entity:  entity,
			Field:   f.Name,
			Code:    IssueFacetTypeMismatch,
			Message: fmt.Sprintf("field %s: %s applies only to %s, not %s", f.Name, facet, want, f.Type),
		})
	}
	if (f.Precision != nil || f.Scale != nil) && f.Type != TypeDecimal {
		mismatch("precision/scale", TypeDecimal)
	}
	if f.Length != nil && f.Type != TypeString {
		mismatch("length", TypeString)
	}
	if len(f.Values) > 0 && f.Type != TypeEnum {
		mismatch("values", TypeEnum)
	}
	if f.Type == TypeEnum && len(f.Values) == 0 {
		out = append(out, Issue{Entity: entity, Field: f.Name, Code: IssueEnumValuesEmpty, Message: "field " + f.Name + ": enum has no values"})
	}
	if f.ForeignKey != "" {
		target, _, _ := strings.Cut(f.ForeignKey, ".")
		if _, ok := spec.Entity(target); !ok {
			out = append(out, Issue{
				Entity:  entity,
				Field:   f.Name,
				Code:    IssueForeignKeyUnknown,
				Message: fmt.Sprintf("field %s: foreign key target %q is not a known entity", f.Name, f.ForeignKey),
			})
		}
	}
	return out
}

// Validate — то же, что Lint, но строками (удобно для вывода оператору).
func Validate(spec *Specification) []string {
	issues := Lint(spec)
	out := make([]string, 0, len(issues))
	for _, it := range issues {
		out = append(out, it.String())
	}
	return out
}
