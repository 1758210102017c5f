package assembler

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"vulnhalla.app/triage/internal/codeql"
)

//go:embed templates
var embeddedTemplates embed.FS

// Templates resolves the outer prompt template and the per-rule hint
// templates. A non-empty override directory takes precedence over the
// embedded set, so prompt tuning does not require a rebuild. C findings use
// the cpp template folder; the analyzer stores most C queries there.
type Templates struct {
	overrideDir string
	lang        string
}

func NewTemplates(lang, overrideDir string) *Templates {
	return &Templates{lang: lang, overrideDir: overrideDir}
}

func (t *Templates) folder() string {
	if t.lang == "c" {
		return "cpp"
	}
	return t.lang
}

func (t *Templates) read(name string) (string, bool) {
	if t.overrideDir != "" {
		if data, err := os.ReadFile(filepath.Join(t.overrideDir, t.folder(), name)); err == nil {
			return string(data), true
		}
	}
	data, err := embeddedTemplates.ReadFile(path.Join("templates", t.folder(), name))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// hints returns the guidance questions for a rule, falling back to the
// generic set when no rule-specific template exists.
func (t *Templates) hints(rule string) (string, error) {
	if s, ok := t.read(rule + ".template"); ok {
		return s, nil
	}
	if s, ok := t.read("general.template"); ok {
		return s, nil
	}
	return "", fmt.Errorf("no hint template for language %q", t.lang)
}

type promptData struct {
	Name        string
	Description string
	Message     string
	Location    string
	Hints       string
	Code        string
}

// Render builds the final prompt for a finding from the outer template.
func (t *Templates) Render(finding codeql.Finding, message, location, code string) (string, error) {
	hints, err := t.hints(finding.RuleName)
	if err != nil {
		return "", err
	}
	outer, ok := t.read("template.template")
	if !ok {
		return "", fmt.Errorf("no outer template for language %q", t.lang)
	}
	tmpl, err := template.New("prompt").Parse(outer)
	if err != nil {
		return "", fmt.Errorf("parsing prompt template: %w", err)
	}

	var b strings.Builder
	err = tmpl.Execute(&b, promptData{
		Name:        finding.RuleName,
		Description: finding.Description,
		Message:     message,
		Location:    location,
		Hints:       hints,
		Code:        code,
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt template: %w", err)
	}
	return b.String(), nil
}
