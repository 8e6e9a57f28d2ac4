package binding

import "fmt"

// ConfigurationError reports that a submitted variable could not be resolved
// against the program's declared binding interface: an unknown kind, a shape
// mismatch, a missing declaration, or a declaration left unbound.
type ConfigurationError struct {
	// Variable is the name of the offending variable, or the declared name
	// when the problem is a declaration nothing was bound to.
	Variable string

	// Reason describes the mismatch.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("variable %q: %s", e.Variable, e.Reason)
}
