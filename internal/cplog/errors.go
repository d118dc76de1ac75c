package cplog

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHeader: no "No.U" parameter-name row.
	ErrNoHeader = errors.New("no No.U header row")
	// ErrNoLimits: the LimitU or LimitL row is missing.
	ErrNoLimits = errors.New("missing LimitU/LimitL row")
	// ErrNoTargets: the header names none of the target parameters.
	ErrNoTargets = errors.New("no target parameters in header")
	// ErrNoData: the header is present but no data row follows.
	ErrNoData = errors.New("no data rows")
)

// FormatError marks a file whose structure could not be recognized. The file
// is unusable; callers skip it.
type FormatError struct {
	File   string
	Kind   error
	Detail string
}

func (e *FormatError) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}

// Is matches the sentinel kind, so errors.Is(err, ErrNoHeader) works.
func (e *FormatError) Is(target error) bool { return e.Kind == target }

func (e *FormatError) Unwrap() error { return e.Kind }

func formatErr(file string, kind error, format string, args ...any) *FormatError {
	return &FormatError{File: file, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
