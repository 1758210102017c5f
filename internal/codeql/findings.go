package codeql

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
)

// ParseFindings reads a database's issues.csv. Rows that do not carry the
// nine expected columns or have non-numeric positions are skipped rather than
// failing the whole file; the export occasionally emits partial rows for
// findings without a concrete location.
func ParseFindings(dir string) ([]Finding, error) {
	path := filepath.Join(dir, "issues.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExportError{Path: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &ExportError{Path: path, Err: err}
	}

	findings := make([]Finding, 0, len(rows))
	for _, row := range rows {
		if len(row) != 9 {
			continue
		}
		startLine, err1 := strconv.Atoi(row[5])
		startOffset, err2 := strconv.Atoi(row[6])
		endLine, err3 := strconv.Atoi(row[7])
		endOffset, err4 := strconv.Atoi(row[8])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		findings = append(findings, Finding{
			RuleName:     row[0],
			Description:  row[1],
			RuleType:     row[2],
			Message:      row[3],
			File:         row[4],
			StartLine:    startLine,
			StartOffset:  startOffset,
			EndLine:      endLine,
			EndOffset:    endOffset,
			DatabasePath: dir,
		})
	}
	return findings, nil
}
