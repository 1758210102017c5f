// Package assembler turns a raw finding into the prompt a triage
// conversation starts from: it locates the enclosing function, rewrites the
// message's embedded location references into inline snippets, pulls in
// auxiliary code blocks the message points at, and renders the prompt
// template.
package assembler

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"vulnhalla.app/triage/internal/codeql"
)

// ErrNoEnclosingFunction means the finding's position is not inside any
// function the export knows about. The finding is skipped, not failed.
var ErrNoEnclosingFunction = errors.New("no enclosing function for finding")

// lifetimeRule gets its message augmented with the location phrase because
// its analyzer message says only "here" without naming the position.
const lifetimeRule = "Use of object after its lifetime has ended"

// PromptContext is everything the conversation controller needs to start
// triaging one finding: the rendered prompt, the primary function the finding
// sits in, and every function whose code the prompt already contains.
type PromptContext struct {
	Prompt    string
	Function  codeql.FunctionRecord
	Functions []codeql.FunctionRecord
}

type Assembler struct {
	db        *codeql.Database
	templates *Templates
}

func New(db *codeql.Database, templates *Templates) *Assembler {
	return &Assembler{db: db, templates: templates}
}

// Assemble builds the prompt context for one finding.
func (a *Assembler) Assemble(finding codeql.Finding) (*PromptContext, error) {
	fullPath := a.db.SourceRoot + finding.File

	lines, err := a.db.Archive.Lines(fullPath)
	if err != nil {
		return nil, err
	}

	// The narrowest enclosing function; nested records (lambdas, local
	// classes) all contain the line, and the most specific one is wanted.
	fn, err := a.db.Resolver.SmallestFunctionContaining("/"+fullPath, finding.StartLine)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, ErrNoEnclosingFunction
	}

	snippet := spanOf(lines, finding.StartLine, finding.StartOffset, finding.EndOffset)

	code, err := a.db.Archive.Snippet(fullPath, fn.StartLine, fn.EndLine)
	if err != nil {
		return nil, err
	}

	message, err := rewriteMessage(a.db, finding.Message)
	if err != nil {
		return nil, err
	}

	functions := []codeql.FunctionRecord{*fn}
	code, functions, err = a.appendReferencedFunctions(finding.Message, code, functions)
	if err != nil {
		return nil, err
	}

	// Human-facing prompt only; tool results keep tabs as-is.
	code = strings.ReplaceAll(code, "\t", "    ")

	location := fmt.Sprintf("look at %s:%d with '%s'", path.Base(finding.File), finding.StartLine, snippet)
	if finding.RuleName == lifetimeRule {
		message = strings.Replace(message, "here", "here ("+location+")", 1)
	}

	prompt, err := a.templates.Render(finding, message, location, code)
	if err != nil {
		return nil, err
	}

	return &PromptContext{
		Prompt:    prompt,
		Function:  *fn,
		Functions: functions,
	}, nil
}

// appendReferencedFunctions pulls in the code of functions the message points
// at outside the primary function's line range, deduplicated by identifier.
func (a *Assembler) appendReferencedFunctions(message, code string, functions []codeql.FunctionRecord) (string, []codeql.FunctionRecord, error) {
	primary := functions[0]
	for _, ref := range extraReferences(message) {
		file := resolveRefPath(a.db.SourceRoot, ref.pathKind, ref.file)

		if primary.StartLine <= ref.line && ref.line <= primary.EndLine {
			continue
		}

		fn, err := a.db.Resolver.SmallestFunctionContaining("/"+file, ref.line)
		if err != nil {
			return "", nil, err
		}
		if fn == nil || containsFunction(functions, *fn) {
			continue
		}
		functions = append(functions, *fn)

		block, err := a.db.Archive.Snippet(file, fn.StartLine, fn.EndLine)
		if err != nil {
			return "", nil, err
		}
		code += "\n\n" + block
	}
	return code, functions, nil
}

func containsFunction(functions []codeql.FunctionRecord, fn codeql.FunctionRecord) bool {
	for _, f := range functions {
		if f.Identifier == fn.Identifier {
			return true
		}
	}
	return false
}
