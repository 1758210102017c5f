package codeql

import (
	"errors"
	"fmt"
)

// ErrExportUnreadable marks export files or archives that are missing or
// cannot be read. This is distinct from a lookup that finds nothing: absence
// is normal data for the model, unreadable exports abort the finding.
var ErrExportUnreadable = errors.New("export unreadable")

// ExportError wraps the underlying I/O failure with the export path.
// errors.Is(err, ErrExportUnreadable) matches it.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export unreadable: %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

func (e *ExportError) Is(target error) bool { return target == ErrExportUnreadable }
