package dsl

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document — нормализованный документ спецификации в том виде, в каком он лежит в YAML/JSON.
// Из него ParseDocument строит типизированную Specification.
type Document struct {
	Name     string       `yaml:"name" json:"name"`
	Version  string       `yaml:"version" json:"version"`
	Entities []EntityDoc  `yaml:"entities" json:"entities"`
	Services []ServiceDoc `yaml:"services" json:"services"`
}

type EntityDoc struct {
	Name       string         `yaml:"name" json:"name"`
	Fields     []FieldDoc     `yaml:"fields" json:"fields"`
	Invariants []InvariantDoc `yaml:"invariants" json:"invariants"`
}

// UnmarshalYAML: сущность может быть задана просто строкой — "Wallet".
func (d *EntityDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*d = EntityDoc{Name: strings.TrimSpace(n.Value)}
		return nil
	}
	type plain EntityDoc
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*d = EntityDoc(p)
	return nil
}

type FieldDoc struct {
	Name       string   `yaml:"name" json:"name"`
	Type       string   `yaml:"type" json:"type"`
	PrimaryKey bool     `yaml:"primary_key" json:"primary_key"`
	Indexed    bool     `yaml:"indexed" json:"indexed"`
	ForeignKey string   `yaml:"foreign_key" json:"foreign_key"`
	Precision  *int     `yaml:"precision" json:"precision"`
	Scale      *int     `yaml:"scale" json:"scale"`
	Length     *int     `yaml:"length" json:"length"`
	Values     []string `yaml:"values" json:"values"`
}

type InvariantDoc struct {
	Name       string `yaml:"name" json:"name"`
	Expr       string `yaml:"expr" json:"expr"`
	Expression string `yaml:"expression" json:"expression"`
	Severity   string `yaml:"severity" json:"severity"`
}

// UnmarshalYAML: expr бывает вложенным — expr: {expression: "balance >= 0"}.
func (d *InvariantDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: invariant must be a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "name":
			d.Name = val.Value
		case "severity":
			d.Severity = val.Value
		case "expr", "expression":
			if val.Kind == yaml.MappingNode {
				var inner struct {
					Expression string `yaml:"expression"`
				}
				if err := val.Decode(&inner); err != nil {
					return err
				}
				d.Expr = inner.Expression
				continue
			}
			if key.Value == "expr" {
				d.Expr = val.Value
			} else {
				d.Expression = val.Value
			}
		}
	}
	return nil
}

func (d InvariantDoc) expr() string {
	if strings.TrimSpace(d.Expr) != "" {
		return d.Expr
	}
	return d.Expression
}

type InputDoc struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

// UnmarshalYAML понимает три формы входа:
//
//	- {name: amount, type: Decimal}
//	- "amount: Decimal"   (делим по первому двоеточию)
//	- amount: Decimal     (однопольный mapping)
func (d *InputDoc) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		name, typ, ok := strings.Cut(n.Value, ":")
		if !ok {
			*d = InputDoc{Name: strings.TrimSpace(n.Value), Type: string(TypeString)}
			return nil
		}
		*d = InputDoc{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)}
		return nil
	case yaml.MappingNode:
		if len(n.Content) == 2 && n.Content[0].Value != "name" && n.Content[0].Value != "type" {
			*d = InputDoc{Name: n.Content[0].Value, Type: n.Content[1].Value}
			return nil
		}
		type plain InputDoc
		var p plain
		if err := n.Decode(&p); err != nil {
			return err
		}
		*d = InputDoc(p)
		if strings.TrimSpace(d.Type) == "" {
			d.Type = string(TypeString)
		}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported input form", n.Line)
	}
}

type ServiceDoc struct {
	Name           string     `yaml:"name" json:"name"`
	Inputs         []InputDoc `yaml:"inputs" json:"inputs"`
	Preconditions  []string   `yaml:"preconditions" json:"preconditions"`
	Postconditions []string   `yaml:"postconditions" json:"postconditions"`
	Strategy       string     `yaml:"strategy" json:"strategy"`
	Isolation      string     `yaml:"isolation" json:"isolation"`
	Timeout        *int       `yaml:"timeout" json:"timeout"`
	RetryPolicy    string     `yaml:"retry_policy" json:"retry_policy"`
}
