package codeql

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Resolver answers identifier and position lookups against one database's
// relational export. All lookups scan the CSV files on demand; the export is
// never loaded whole or mutated, so a Resolver is safe for concurrent use.
type Resolver struct {
	dir string
}

// NewResolver creates a Resolver for the database directory containing
// FunctionTree.csv, Classes.csv, Macros.csv and GlobalVars.csv.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Dir returns the database directory this resolver reads from.
func (r *Resolver) Dir() string { return r.dir }

func (r *Resolver) functionTreePath() string { return filepath.Join(r.dir, "FunctionTree.csv") }

// scanRows streams the lines of an export CSV through visit, stopping early
// when visit returns false. Open/read failures come back as ExportError.
func (r *Resolver) scanRows(path string, visit func(line string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if !visit(scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}

// FunctionContaining returns the first function whose [StartLine, EndLine]
// span contains line in the given file. The file argument is matched as a
// substring of the row's file column, the way the export stores archive paths.
// Returns nil when no function contains the line.
func (r *Resolver) FunctionContaining(file string, line int) (*FunctionRecord, error) {
	var found *FunctionRecord
	err := r.scanRows(r.functionTreePath(), func(row string) bool {
		if !strings.Contains(row, file) {
			return true
		}
		fn, ok := parseFunctionRow(splitRow(row))
		if !ok || !strings.Contains(fn.File, file) {
			return true
		}
		if fn.StartLine <= line && line <= fn.EndLine {
			found = &fn
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// SmallestFunctionContaining returns the function with the narrowest line span
// containing line in file. Nested records (a lambda inside its enclosing
// function, for instance) both contain the line; prompt assembly wants the
// most specific one.
func (r *Resolver) SmallestFunctionContaining(file string, line int) (*FunctionRecord, error) {
	var best *FunctionRecord
	bestRange := -1
	err := r.scanRows(r.functionTreePath(), func(row string) bool {
		if !strings.Contains(row, file) {
			return true
		}
		fn, ok := parseFunctionRow(splitRow(row))
		if !ok || !strings.Contains(fn.File, file) {
			return true
		}
		if fn.StartLine <= line && line <= fn.EndLine {
			size := fn.EndLine - fn.StartLine
			if bestRange < 0 || size < bestRange {
				f := fn
				best = &f
				bestRange = size
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

// FunctionByName resolves a function by name, searching rows associated with
// the already-resolved functions in known. Phase one requires an exact match
// on the unqualified name; only if that yields nothing does phase two retry
// with substring matching. When found, the second return value is the known
// function whose identifier led to the row, so the caller can pair caller and
// callee for argument mapping. Both values are nil when nothing matches.
func (r *Resolver) FunctionByName(name string, known []FunctionRecord) (*FunctionRecord, *FunctionRecord, error) {
	target := unqualifiedName(name)

	for _, strict := range []bool{true, false} {
		for i := range known {
			ctx := known[i]
			var found *FunctionRecord
			err := r.scanRows(r.functionTreePath(), func(row string) bool {
				if !strings.Contains(row, ctx.Identifier) {
					return true
				}
				fn, ok := parseFunctionRow(splitRow(row))
				if !ok {
					return true
				}
				if fn.Name == target || (!strict && strings.Contains(fn.Name, target)) {
					found = &fn
					return false
				}
				return true
			})
			if err != nil {
				return nil, nil, err
			}
			if found != nil {
				return found, &ctx, nil
			}
		}
	}
	return nil, nil, nil
}

// Caller resolves fn's CallerReference to the function it names, by exact
// identifier match. References of the form "file:line" (emitted when the
// caller has no identifier of its own) fall back to position lookup.
// Returns nil when the reference resolves to nothing.
func (r *Resolver) Caller(fn FunctionRecord) (*FunctionRecord, error) {
	callerID := strings.TrimSpace(fn.CallerReference)
	if callerID == "" {
		return nil, nil
	}

	var found *FunctionRecord
	err := r.scanRows(r.functionTreePath(), func(row string) bool {
		if !strings.Contains(row, callerID) {
			return true
		}
		candidate, ok := parseFunctionRow(splitRow(row))
		if !ok {
			return true
		}
		if candidate.Identifier == callerID {
			found = &candidate
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}

	// "file:line" fallback for callers the export could not name.
	if file, line, ok := splitPositionRef(callerID); ok {
		return r.FunctionContaining(file, line)
	}
	return nil, nil
}

// Macro finds a macro definition by name, exact match first, substring second.
func (r *Resolver) Macro(name string) (*MacroRecord, error) {
	path := filepath.Join(r.dir, "Macros.csv")
	for _, strict := range []bool{true, false} {
		var found *MacroRecord
		err := r.scanRows(path, func(row string) bool {
			if !strings.Contains(row, name) {
				return true
			}
			m, ok := parseMacroRow(splitRow(row))
			if !ok {
				return true
			}
			if m.Name == name || (!strict && strings.Contains(m.Name, name)) {
				found = &m
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// GlobalVar finds a global variable by name, exact match first, substring
// second. A "Namespace::var" qualifier is stripped before matching.
func (r *Resolver) GlobalVar(name string) (*GlobalVarRecord, error) {
	path := filepath.Join(r.dir, "GlobalVars.csv")
	target := unqualifiedName(name)
	for _, strict := range []bool{true, false} {
		var found *GlobalVarRecord
		err := r.scanRows(path, func(row string) bool {
			if !strings.Contains(row, target) {
				return true
			}
			g, ok := parseGlobalVarRow(splitRow(row))
			if !ok {
				return true
			}
			if g.Name == target || (!strict && strings.Contains(g.Name, target)) {
				found = &g
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// Class finds a class, struct or union by name. Both the qualified name and
// the simple name columns are matched, exact first, substring second.
func (r *Resolver) Class(name string) (*ClassRecord, error) {
	path := filepath.Join(r.dir, "Classes.csv")
	target := unqualifiedName(name)
	for _, strict := range []bool{true, false} {
		var found *ClassRecord
		err := r.scanRows(path, func(row string) bool {
			if !strings.Contains(row, target) {
				return true
			}
			c, ok := parseClassRow(splitRow(row))
			if !ok {
				return true
			}
			match := c.Name == target || c.SimpleName == target
			if !strict {
				match = match || strings.Contains(c.Name, target) || strings.Contains(c.SimpleName, target)
			}
			if match {
				found = &c
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// splitPositionRef parses a "file:line" caller reference. The file component
// carries a leading slash in the export which position lookups don't use.
func splitPositionRef(ref string) (string, int, bool) {
	i := strings.LastIndex(ref, ":")
	if i <= 0 || i == len(ref)-1 {
		return "", 0, false
	}
	line, err := strconv.Atoi(ref[i+1:])
	if err != nil {
		return "", 0, false
	}
	file := ref[:i]
	file = strings.TrimPrefix(file, "/")
	return file, line, true
}
