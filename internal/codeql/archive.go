package codeql

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// Archive is the zip source-tree snapshot (src.zip) a database carries.
// Files are addressed by the archive-relative path the export uses. The
// underlying zip reader supports concurrent opens, so one Archive may be
// shared by concurrent lookups against the same database.
type Archive struct {
	path   string
	reader *zip.ReadCloser
	files  map[string]*zip.File
}

// OpenArchive opens the source archive at path. Missing or corrupt archives
// come back as ExportError.
func OpenArchive(path string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, &ExportError{Path: path, Err: err}
	}
	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}
	return &Archive{path: path, reader: r, files: files}, nil
}

// Close releases the archive handle.
func (a *Archive) Close() error { return a.reader.Close() }

// ReadFile returns the full contents of one file in the archive. A path that
// is not in the archive is an ExportError: the export promised a snapshot of
// every referenced file, so a miss means the export is unusable, not that the
// code does not exist.
func (a *Archive) ReadFile(path string) (string, error) {
	f, ok := a.files[path]
	if !ok {
		return "", &ExportError{Path: a.path, Err: fmt.Errorf("%s: %w", path, fs.ErrNotExist)}
	}
	rc, err := f.Open()
	if err != nil {
		return "", &ExportError{Path: a.path, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", &ExportError{Path: a.path, Err: err}
	}
	return string(data), nil
}

// Lines returns the file split into lines, without trailing newline handling
// surprises: a trailing newline does not produce a phantom empty last line
// beyond what the source actually contains.
func (a *Archive) Lines(path string) ([]string, error) {
	content, err := a.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(content, "\n"), nil
}

// Snippet renders lines [startLine, endLine] of a file, each prefixed with
// its 1-based line number, under a "file:" header. These numbers are the ones
// every other part of the system quotes, so they must match the export's line
// numbering exactly; content is preserved byte for byte.
func (a *Archive) Snippet(path string, startLine, endLine int) (string, error) {
	lines, err := a.Lines(path)
	if err != nil {
		return "", err
	}
	return renderSnippet(path, lines, startLine, endLine), nil
}

// ExtractFunction renders the numbered body of fn from the archive. The
// export stores function paths with a leading slash the archive does not use.
func (a *Archive) ExtractFunction(fn FunctionRecord) (string, error) {
	return a.Snippet(archivePath(fn.File), fn.StartLine, fn.EndLine)
}

// ExtractSpan renders a numbered span addressed by raw file/line fields, used
// for globals and classes which share the function span layout.
func (a *Archive) ExtractSpan(file string, startLine, endLine int) (string, error) {
	return a.Snippet(archivePath(file), startLine, endLine)
}

func renderSnippet(path string, lines []string, startLine, endLine int) string {
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", path)
	for i := startLine; i <= endLine; i++ {
		fmt.Fprintf(&b, "%d: %s", i, lines[i-1])
		if i < endLine {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// archivePath maps an export file column to the path used inside src.zip.
func archivePath(file string) string {
	return strings.TrimPrefix(file, "/")
}
