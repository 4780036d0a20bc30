package dsl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultSpecName    = "UnnamedSystem"
	defaultSpecVersion = "1.0.0"
)

// ValidationError — спецификация сформирована неверно (имя, тип, дубликат и т.п.).
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

func verr(path, format string, args ...any) error {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// entityCallRe находит синтаксическую ссылку на сущность вида "Wallet(".
func entityCallRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*\(`)
}

// ReferencesEntity — упоминается ли в выражении сущность name в форме "Name(".
func ReferencesEntity(expr, name string) bool {
	return name != "" && entityCallRe(name).MatchString(expr)
}

// Parse декодирует YAML (JSON тоже годится) и строит Specification.
func Parse(data []byte) (*Specification, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("YAML parsing error: %w", err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("specification must be a YAML mapping")
	}
	var doc Document
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode specification: %w", err)
	}
	return ParseDocument(doc)
}

// ParseDocument проверяет документ и строит типизированную модель.
// Все найденные проблемы возвращаются разом (errors.Join), а не первая.
func ParseDocument(doc Document) (*Specification, error) {
	var errs []error

	spec := &Specification{
		Name:    strings.TrimSpace(doc.Name),
		Version: strings.TrimSpace(doc.Version),
	}
	if spec.Name == "" {
		spec.Name = defaultSpecName
	}
	if spec.Version == "" {
		spec.Version = defaultSpecVersion
	}

	entityNames := make(map[string]struct{}, len(doc.Entities))
	for i, ed := range doc.Entities {
		path := fmt.Sprintf("entities[%d]", i)
		name := strings.TrimSpace(ed.Name)
		if name == "" {
			errs = append(errs, verr(path, "entity name is required"))
			continue
		}
		if _, dup := entityNames[name]; dup {
			errs = append(errs, verr(path, "duplicate entity %q", name))
			continue
		}
		entityNames[name] = struct{}{}
		spec.Entities = append(spec.Entities, Entity{Name: name})
	}

	// второй проход: поля и инварианты (нужен полный список имён сущностей)
	for i := range spec.Entities {
		e := &spec.Entities[i]
		ed := findEntityDoc(doc.Entities, e.Name)
		path := "entity " + e.Name

		seen := map[string]struct{}{}
		for j, fd := range ed.Fields {
			f, err := buildField(fd)
			if err != nil {
				errs = append(errs, verr(fmt.Sprintf("%s, fields[%d]", path, j), "%s", err.Error()))
				continue
			}
			if _, dup := seen[f.Name]; dup {
				errs = append(errs, verr(path, "duplicate field %q", f.Name))
				continue
			}
			seen[f.Name] = struct{}{}
			e.Fields = append(e.Fields, f)
		}

		for j, id := range ed.Invariants {
			ipath := fmt.Sprintf("%s, invariants[%d]", path, j)
			name := strings.TrimSpace(id.Name)
			expr := strings.TrimSpace(id.expr())
			if name == "" {
				errs = append(errs, verr(ipath, "invariant name is required"))
				continue
			}
			if expr == "" {
				errs = append(errs, verr(ipath, "invariant %q has empty expression", name))
				continue
			}
			crossRef := false
			for _, other := range spec.Entities {
				if other.Name != e.Name && ReferencesEntity(expr, other.Name) {
					errs = append(errs, verr(ipath, "invariant %q references %s: use only fields of %s", name, other.Name, e.Name))
					crossRef = true
				}
			}
			if crossRef {
				continue
			}
			sev := Severity(strings.ToLower(strings.TrimSpace(id.Severity)))
			switch sev {
			case "":
				sev = SeverityError
			case SeverityError, SeverityWarning:
			default:
				errs = append(errs, verr(ipath, "unknown severity %q (allowed: error|warning)", id.Severity))
				continue
			}
			e.Invariants = append(e.Invariants, Invariant{Name: name, Expr: expr, Severity: sev})
		}
	}

	serviceNames := make(map[string]struct{}, len(doc.Services))
	for i, sd := range doc.Services {
		path := fmt.Sprintf("services[%d]", i)
		name := strings.TrimSpace(sd.Name)
		if name == "" {
			errs = append(errs, verr(path, "service name is required"))
			continue
		}
		if _, dup := serviceNames[name]; dup {
			errs = append(errs, verr(path, "duplicate service %q", name))
			continue
		}
		serviceNames[name] = struct{}{}
		spec.Services = append(spec.Services, buildService(name, sd))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return spec, nil
}

func findEntityDoc(docs []EntityDoc, name string) EntityDoc {
	for _, d := range docs {
		if strings.TrimSpace(d.Name) == name {
			return d
		}
	}
	return EntityDoc{}
}

func buildField(fd FieldDoc) (Field, error) {
	name := strings.TrimSpace(fd.Name)
	if name == "" {
		return Field{}, errors.New("field name is required")
	}
	rawType := fd.Type
	if strings.TrimSpace(rawType) == "" {
		rawType = string(TypeString)
	}
	t, ok := NormalizeType(rawType)
	if !ok {
		return Field{}, fmt.Errorf("field %q: unknown type %q", name, fd.Type)
	}
	return Field{
		Name:       name,
		Type:       t,
		PrimaryKey: fd.PrimaryKey,
		Indexed:    fd.Indexed,
		ForeignKey: strings.TrimSpace(fd.ForeignKey),
		Precision:  fd.Precision,
		Scale:      fd.Scale,
		Length:     fd.Length,
		Values:     append([]string(nil), fd.Values...),
	}, nil
}

func buildService(name string, sd ServiceDoc) Service {
	svc := Service{
		Name:        name,
		Isolation:   strings.TrimSpace(sd.Isolation),
		Timeout:     sd.Timeout,
		RetryPolicy: strings.TrimSpace(sd.RetryPolicy),
		Strategy:    StrategySimple,
	}
	switch Strategy(strings.TrimSpace(sd.Strategy)) {
	case StrategyACID:
		svc.Strategy = StrategyACID
	case StrategyIdempotent:
		svc.Strategy = StrategyIdempotent
	}
	for _, in := range sd.Inputs {
		// неизвестный тип оставляем как есть — это забота Validate
		t, _ := NormalizeType(in.Type)
		svc.Contract.Inputs = append(svc.Contract.Inputs, Parameter{Name: strings.TrimSpace(in.Name), Type: t})
	}
	for _, p := range sd.Preconditions {
		if p = strings.TrimSpace(p); p != "" {
			svc.Contract.Preconditions = append(svc.Contract.Preconditions, p)
		}
	}
	for _, p := range sd.Postconditions {
		if p = strings.TrimSpace(p); p != "" {
			svc.Contract.Postconditions = append(svc.Contract.Postconditions, p)
		}
	}
	return svc
}

// LoadSpec читает один YAML-файл спецификации.
func LoadSpec(path string) (*Specification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return spec, nil
}

// LoadAllSpecs обходит каталог и загружает все *.yaml/*.yml, ключ — имя спецификации.
func LoadAllSpecs(root string) (map[string]*Specification, error) {
	result := make(map[string]*Specification)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}

		spec, err := LoadSpec(path)
		if err != nil {
			return err
		}
		if _, exists := result[spec.Name]; exists {
			return fmt.Errorf("duplicate specification %q (file: %s)", spec.Name, path)
		}
		result[spec.Name] = spec
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
