package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"specproof/internal/counterexample"
	"specproof/internal/dsl"
	"specproof/internal/verify"
)

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printResult(spec *dsl.Specification, res *verify.Result) {
	printKV([][2]string{
		{"spec", spec.Name + " " + spec.Version},
		{"consistent", yesNo(res.IsConsistent)},
		{"complete", yesNo(res.IsComplete)},
	})
	if res.Counterexample != "" {
		fmt.Println("counterexample:", res.Counterexample)
	}
	for _, e := range res.Errors {
		fmt.Println("error:  ", e)
	}
	for _, w := range res.Warnings {
		fmt.Println("warning:", w)
	}
}

func printIssues(issues []dsl.Issue) {
	rows := make([][]string, 0, len(issues))
	for _, it := range issues {
		owner := it.Entity
		if owner == "" {
			owner = it.Service
		}
		rows = append(rows, []string{owner, it.Code, it.Message})
	}
	printTable([]string{"OWNER", "CODE", "MESSAGE"}, rows)
}

func printStates(states []counterexample.SuspiciousState) {
	rows := make([][]string, 0, len(states))
	for _, st := range states {
		names := make([]string, 0, len(st.VariableValues))
		for n := range st.VariableValues {
			names = append(names, n)
		}
		sort.Strings(names)
		vals := make([]string, 0, len(names))
		for _, n := range names {
			vals = append(vals, n+"="+st.VariableValues[n])
		}
		rule := "-"
		if st.PreventionRule != nil {
			rule = *st.PreventionRule
		}
		rows = append(rows, []string{st.EntityName, st.Description, strings.Join(vals, " "), rule})
	}
	printTable([]string{"ENTITY", "DESCRIPTION", "VALUES", "PREVENTION"}, rows)
}

func printDiff(d dsl.SpecDiff) {
	if d.Empty() {
		fmt.Println("no changes")
		return
	}
	var rows [][]string
	for _, e := range d.AddedEntities {
		rows = append(rows, []string{"entity", e, string(dsl.ChangeAdded)})
	}
	for _, e := range d.RemovedEntities {
		rows = append(rows, []string{"entity", e, string(dsl.ChangeRemoved)})
	}
	for _, s := range d.AddedServices {
		rows = append(rows, []string{"service", s, string(dsl.ChangeAdded)})
	}
	for _, s := range d.RemovedServices {
		rows = append(rows, []string{"service", s, string(dsl.ChangeRemoved)})
	}
	for _, fc := range d.FieldChanges {
		rows = append(rows, []string{"field", fc.Entity + "." + fc.Field, string(fc.Action)})
	}
	printTable([]string{"KIND", "NAME", "CHANGE"}, rows)
}
