// Package codeql reads the relational export produced by a CodeQL analysis
// run: the function tree, class/macro/global tables, the findings CSV, the
// database metadata descriptor and the archived source snapshot. Everything
// here is read-only; lookups that find nothing return model-visible text
// instead of errors.
package codeql

import (
	"fmt"
	"strconv"
	"strings"
)

// FunctionRecord is one row of FunctionTree.csv. Identifier is unique within
// one database; CallerReference points at another row's Identifier, or encodes
// a raw "file:line" position for functions whose caller CodeQL could not name.
type FunctionRecord struct {
	Name            string
	File            string
	StartLine       int
	Identifier      string
	EndLine         int
	CallerReference string
}

// ClassRecord is one row of Classes.csv. Kind is class, struct or union.
// SimpleName is the unqualified name, independent of namespace qualification.
type ClassRecord struct {
	Kind       string
	Name       string
	File       string
	StartLine  int
	EndLine    int
	SimpleName string
}

// MacroRecord is one row of Macros.csv.
type MacroRecord struct {
	Name string
	Body string
}

// GlobalVarRecord is one row of GlobalVars.csv.
type GlobalVarRecord struct {
	Name      string
	File      string
	StartLine int
	EndLine   int
}

// Finding is one row of issues.csv: a single static-analysis result with its
// rule identity and source location. DatabasePath is attached by the runner so
// a finding stays resolvable after findings from several databases are merged.
type Finding struct {
	RuleName     string
	Description  string
	RuleType     string
	Message      string
	File         string
	StartLine    int
	StartOffset  int
	EndLine      int
	EndOffset    int
	DatabasePath string
}

func parseFunctionRow(fields []string) (FunctionRecord, bool) {
	if len(fields) != 6 {
		return FunctionRecord{}, false
	}
	start, err1 := strconv.Atoi(unquote(fields[2]))
	end, err2 := strconv.Atoi(unquote(fields[4]))
	if err1 != nil || err2 != nil {
		return FunctionRecord{}, false
	}
	return FunctionRecord{
		Name:            unquote(fields[0]),
		File:            unquote(fields[1]),
		StartLine:       start,
		Identifier:      unquote(fields[3]),
		EndLine:         end,
		CallerReference: unquote(fields[5]),
	}, true
}

func parseClassRow(fields []string) (ClassRecord, bool) {
	if len(fields) != 6 {
		return ClassRecord{}, false
	}
	start, err1 := strconv.Atoi(unquote(fields[3]))
	end, err2 := strconv.Atoi(unquote(fields[4]))
	if err1 != nil || err2 != nil {
		return ClassRecord{}, false
	}
	return ClassRecord{
		Kind:       unquote(fields[0]),
		Name:       unquote(fields[1]),
		File:       unquote(fields[2]),
		StartLine:  start,
		EndLine:    end,
		SimpleName: unquote(fields[5]),
	}, true
}

func parseMacroRow(fields []string) (MacroRecord, bool) {
	if len(fields) < 2 {
		return MacroRecord{}, false
	}
	// Macro bodies may themselves contain commas outside quotes; everything
	// after the name belongs to the body.
	return MacroRecord{
		Name: unquote(fields[0]),
		Body: unquote(strings.Join(fields[1:], ",")),
	}, true
}

func parseGlobalVarRow(fields []string) (GlobalVarRecord, bool) {
	if len(fields) != 4 {
		return GlobalVarRecord{}, false
	}
	start, err1 := strconv.Atoi(unquote(fields[2]))
	end, err2 := strconv.Atoi(unquote(fields[3]))
	if err1 != nil || err2 != nil {
		return GlobalVarRecord{}, false
	}
	return GlobalVarRecord{
		Name:      unquote(fields[0]),
		File:      unquote(fields[1]),
		StartLine: start,
		EndLine:   end,
	}, true
}

// unqualifiedName strips a leading "Class::" qualifier chain, keeping the
// trailing component. The export stores plain names; the model often asks for
// qualified ones.
func unqualifiedName(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}

func (f FunctionRecord) String() string {
	return fmt.Sprintf("%s (%s:%d-%d)", f.Name, f.File, f.StartLine, f.EndLine)
}
