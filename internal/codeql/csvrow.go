package codeql

import "strings"

// splitRow splits one export CSV row on commas that are outside double-quoted
// fields. The export quotes fields that contain commas (function signatures,
// macro bodies), so a plain strings.Split would shred them. Quotes are kept in
// the returned fields; unquote strips them.
func splitRow(row string) []string {
	row = strings.TrimRight(row, "\r\n")

	var fields []string
	var b strings.Builder
	inQuotes := false

	for i := 0; i < len(row); i++ {
		c := row[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			b.WriteByte(c)
		case c == ',' && !inQuotes:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	fields = append(fields, b.String())
	return fields
}

// unquote removes surrounding double quotes and collapses doubled quotes,
// mirroring how the export writer escapes them.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, `""`, `"`)
}
