package shader

import "fmt"

// CompilationError reports that a single shader stage failed to compile.
// The compiler's diagnostic text is surfaced verbatim in Log; the error is
// never retried internally.
type CompilationError struct {
	// Stage is the stage whose compilation failed.
	Stage Stage

	// Log is the compiler's diagnostic output.
	Log string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%s stage failed to compile: %s", e.Stage, e.Log)
}

// LinkError reports that the stages compiled (or reflected) individually but
// could not be combined into a pipeline — an interface mismatch, a missing
// entry point, or an output arity the target cannot represent.
type LinkError struct {
	// Log is the linker or reflection diagnostic.
	Log string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("program failed to link: %s", e.Log)
}
