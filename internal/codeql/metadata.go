package codeql

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the subset of codeql-database.yml this system needs: the
// source-root prefix that "relative://" references resolve against.
type Metadata struct {
	SourceLocationPrefix string `yaml:"sourceLocationPrefix"`
}

// ReadMetadata parses the database descriptor in dir.
func ReadMetadata(dir string) (Metadata, error) {
	path := filepath.Join(dir, "codeql-database.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, &ExportError{Path: path, Err: err}
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, &ExportError{Path: path, Err: err}
	}
	return meta, nil
}

// SourceRoot normalizes the source-location prefix into the path form used
// inside the archive. Windows prefixes ("C:\src") are stored in the archive
// with the drive colon replaced by an underscore; Unix prefixes lose their
// leading slash.
func (m Metadata) SourceRoot() string {
	prefix := m.SourceLocationPrefix
	if strings.Contains(prefix, ":") {
		prefix = strings.ReplaceAll(prefix, ":", "_")
		prefix = strings.ReplaceAll(prefix, `\`, "/")
		return prefix
	}
	return strings.TrimPrefix(prefix, "/")
}
