// Package recorder persists per-finding analysis artifacts as JSON files:
// the raw input sent to the model and the final transcript with its verdict.
// Files land under <results root>/<language>/<sanitized rule name>/.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vulnhalla.app/triage/internal/codeql"
	"vulnhalla.app/triage/internal/triage"
)

type Recorder struct {
	root string
	lang string
}

func New(root, lang string) *Recorder {
	return &Recorder{root: root, lang: lang}
}

// RawInput is everything that went into one conversation, captured before the
// first model call so a crashed run still leaves the inputs on disk.
type RawInput struct {
	Finding      codeql.Finding        `json:"finding"`
	Function     codeql.FunctionRecord `json:"function"`
	DatabasePath string                `json:"db_path"`
	SourceRoot   string                `json:"code_path"`
	Prompt       string                `json:"prompt"`
}

// finalOutput pairs the verdict with the transcript that produced it.
type finalOutput struct {
	Verdict    triage.Verdict    `json:"verdict"`
	Transcript triage.Transcript `json:"transcript"`
}

// SaveRawInput writes <id>_raw.json for one finding.
func (r *Recorder) SaveRawInput(rule string, id int64, in RawInput) error {
	return r.writeJSON(rule, fmt.Sprintf("%d_raw.json", id), in)
}

// SaveResult writes <id>_final.json for one completed conversation.
func (r *Recorder) SaveResult(rule string, id int64, res *triage.Result) error {
	return r.writeJSON(rule, fmt.Sprintf("%d_final.json", id), finalOutput{
		Verdict:    res.Verdict,
		Transcript: res.Transcript,
	})
}

// RuleDir returns the directory results for a rule land in.
func (r *Recorder) RuleDir(rule string) string {
	return filepath.Join(r.root, r.lang, sanitizeRule(rule))
}

func (r *Recorder) writeJSON(rule, name string, v any) error {
	dir := r.RuleDir(rule)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// sanitizeRule maps a rule name to a directory name: spaces become
// underscores and path separators become dashes.
func sanitizeRule(rule string) string {
	return strings.ReplaceAll(strings.ReplaceAll(rule, " ", "_"), "/", "-")
}
