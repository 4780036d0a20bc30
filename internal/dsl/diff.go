package dsl

import (
	"reflect"
	"sort"
)

// Equal сравнивает поля структурно.
func (f Field) Equal(o Field) bool {
	return reflect.DeepEqual(normField(f), normField(o))
}

// nil и пустой срез значений считаем одинаковыми
func normField(f Field) Field {
	if len(f.Values) == 0 {
		f.Values = nil
	}
	return f
}

// Equal сравнивает сущности; порядок полей и инвариантов важен.
func (e Entity) Equal(o Entity) bool {
	if e.Name != o.Name || len(e.Fields) != len(o.Fields) || len(e.Invariants) != len(o.Invariants) {
		return false
	}
	for i := range e.Fields {
		if !e.Fields[i].Equal(o.Fields[i]) {
			return false
		}
	}
	for i := range e.Invariants {
		if e.Invariants[i] != o.Invariants[i] {
			return false
		}
	}
	return true
}

type ChangeAction string

const (
	ChangeAdded    ChangeAction = "added"
	ChangeRemoved  ChangeAction = "removed"
	ChangeModified ChangeAction = "modified"
)

type FieldChange struct {
	Entity string       `json:"entity"`
	Field  string       `json:"field"`
	Action ChangeAction `json:"action"`
	Old    *Field       `json:"old,omitempty"`
	New    *Field       `json:"new,omitempty"`
}

type SpecDiff struct {
	AddedEntities   []string      `json:"added_entities"`
	RemovedEntities []string      `json:"removed_entities"`
	AddedServices   []string      `json:"added_services"`
	RemovedServices []string      `json:"removed_services"`
	FieldChanges    []FieldChange `json:"field_changes"`
}

func (d SpecDiff) Empty() bool {
	return len(d.AddedEntities) == 0 && len(d.RemovedEntities) == 0 &&
		len(d.AddedServices) == 0 && len(d.RemovedServices) == 0 && len(d.FieldChanges) == 0
}

// Diff сравнивает две версии спецификации: сущности, сервисы и поля общих сущностей.
func Diff(prev, next *Specification) SpecDiff {
	var d SpecDiff

	for _, e := range next.Entities {
		if _, ok := prev.Entity(e.Name); !ok {
			d.AddedEntities = append(d.AddedEntities, e.Name)
		}
	}
	for _, e := range prev.Entities {
		ne, ok := next.Entity(e.Name)
		if !ok {
			d.RemovedEntities = append(d.RemovedEntities, e.Name)
			continue
		}
		d.FieldChanges = append(d.FieldChanges, diffFields(e, *ne)...)
	}

	for _, s := range next.Services {
		if _, ok := prev.Service(s.Name); !ok {
			d.AddedServices = append(d.AddedServices, s.Name)
		}
	}
	for _, s := range prev.Services {
		if _, ok := next.Service(s.Name); !ok {
			d.RemovedServices = append(d.RemovedServices, s.Name)
		}
	}
	return d
}

func diffFields(prev, next Entity) []FieldChange {
	var out []FieldChange
	for _, f := range next.Fields {
		if _, ok := prev.FieldByName(f.Name); !ok {
			nf := f
			out = append(out, FieldChange{Entity: prev.Name, Field: f.Name, Action: ChangeAdded, New: &nf})
		}
	}
	for _, f := range prev.Fields {
		of := f
		nf, ok := next.FieldByName(f.Name)
		switch {
		case !ok:
			out = append(out, FieldChange{Entity: prev.Name, Field: f.Name, Action: ChangeRemoved, Old: &of})
		case !f.Equal(nf):
			out = append(out, FieldChange{Entity: prev.Name, Field: f.Name, Action: ChangeModified, Old: &of, New: &nf})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
