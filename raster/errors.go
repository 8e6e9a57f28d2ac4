package raster

import "fmt"

// ContextError reports that the rendering context is unusable: adapter or
// device acquisition failed, the device was lost, or an operation was
// attempted on a released context.
type ContextError struct {
	// Op is the operation that failed, e.g. "request adapter".
	Op string

	// Err is the underlying cause, when one exists.
	Err error
}

func (e *ContextError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("context: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("context: %s", e.Op)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *ContextError) Unwrap() error {
	return e.Err
}
