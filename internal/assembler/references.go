package assembler

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"vulnhalla.app/triage/internal/codeql"
)

// bracketRefPattern matches the location references the analyzer embeds in
// finding messages: [["label"|"relative:///path:line:col:endLine:endCol"]].
// The path kind prefix is optional; a bare path behaves like file://.
var bracketRefPattern = regexp.MustCompile(`\[\["(.*?)"\|"((?:relative://|file://))?(/.*?):(\d+):(\d+):\d+:(\d+)"\]\]`)

// extraRefPattern captures only the position of each reference, used to
// discover code blocks the message points at outside the primary function.
var extraRefPattern = regexp.MustCompile(`\[\[".*?"\|"((?:relative://|file://)?)(/.*?):(\d+):\d+:\d+:\d+"\]\]`)

type reference struct {
	pathKind string
	file     string
	line     int
}

// rewriteMessage replaces every bracketed reference in message with the
// referenced span quoted inline: `label 'span' (basename:line)`. An archive
// read failure aborts the whole rewrite; a message pointing at files the
// snapshot does not carry means the export is unusable.
func rewriteMessage(db *codeql.Database, message string) (string, error) {
	var firstErr error
	out := bracketRefPattern.ReplaceAllStringFunc(message, func(match string) string {
		m := bracketRefPattern.FindStringSubmatch(match)
		label, pathKind, filePath := m[1], m[2], m[3]
		line, _ := strconv.Atoi(m[4])
		startOffset, _ := strconv.Atoi(m[5])
		endOffset, _ := strconv.Atoi(m[6])

		lines, err := db.Archive.Lines(resolveRefPath(db.SourceRoot, pathKind, filePath))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		span := spanOf(lines, line, startOffset, endOffset)
		return fmt.Sprintf("%s '%s' (%s:%d)", label, span, path.Base(filePath), line)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// extraReferences extracts the positions of all bracketed references.
func extraReferences(message string) []reference {
	matches := extraRefPattern.FindAllStringSubmatch(message, -1)
	refs := make([]reference, 0, len(matches))
	for _, m := range matches {
		line, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		refs = append(refs, reference{
			pathKind: m[1],
			file:     strings.TrimSpace(m[2]),
			line:     line,
		})
	}
	return refs
}

// resolveRefPath maps a reference path to its location inside the source
// archive. relative:// paths are joined to the export's source root; absolute
// file:// paths just lose their leading slash.
func resolveRefPath(sourceRoot, pathKind, filePath string) string {
	if pathKind == "relative://" {
		return sourceRoot + filePath
	}
	return strings.TrimPrefix(filePath, "/")
}

// spanOf slices [startOffset, endOffset] (1-based, inclusive) out of the given
// line. Out-of-range positions clamp rather than fail; the export's offsets
// are occasionally one past the end of the line.
func spanOf(lines []string, line, startOffset, endOffset int) string {
	if line < 1 || line > len(lines) {
		return ""
	}
	text := lines[line-1]
	start := startOffset - 1
	if start < 0 {
		start = 0
	}
	if start > len(text) {
		start = len(text)
	}
	end := endOffset
	if end > len(text) {
		end = len(text)
	}
	if end < start {
		end = start
	}
	return text[start:end]
}
