package pipeline

import (
	"errors"
	"fmt"
)

// ErrSinkOpen wraps failures to create or start the output sink
var ErrSinkOpen = errors.New("failed to open output")

// SourceOpenError reports that the input could not be opened. It is returned
// before any output has been created.
type SourceOpenError struct {
	Path string
	Err  error
}

func (e *SourceOpenError) Error() string {
	return fmt.Sprintf("failed to open input %s: %v", e.Path, e.Err)
}

func (e *SourceOpenError) Unwrap() error {
	return e.Err
}
