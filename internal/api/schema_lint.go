package api

import (
	"sort"

	"specproof/internal/dsl"
)

// SchemaIssue — находка линтера с именем спецификации.
type SchemaIssue struct {
	Spec string `json:"spec"`
	dsl.Issue
}

// блокирующие коды: ссылки в никуда
var blockingCodes = map[string]struct{}{
	dsl.IssueUnknownEntity:     {},
	dsl.IssueUnknownField:      {},
	dsl.IssueForeignKeyUnknown: {},
}

// SchemaLint проверяет набор спецификаций. blocking=true — только то, что мешает reload.
func SchemaLint(specs map[string]*dsl.Specification, blocking bool) []SchemaIssue {
	names := make([]string, 0, len(specs))
	for n := range specs {
		names = append(names, n)
	}
	sort.Strings(names)

	var out []SchemaIssue
	for _, n := range names {
		for _, it := range dsl.Lint(specs[n]) {
			if _, ok := blockingCodes[it.Code]; blocking && !ok {
				continue
			}
			out = append(out, SchemaIssue{Spec: n, Issue: it})
		}
	}
	return out
}
