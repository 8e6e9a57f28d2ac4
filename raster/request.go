package raster

import (
	"fmt"

	"github.com/softglow/raster-go/raster/binding"
	"github.com/softglow/raster-go/raster/shader"
)

// RenderRequest describes one draw/readback cycle: the program sources, the
// variables to bind, the primitive count to expand, and the output size.
// All fields are read-only once submitted.
type RenderRequest struct {
	// PrimitiveCount is the number of input primitives; the pipeline draws
	// three vertices per primitive.
	PrimitiveCount int

	// Variables are matched by name against the program's declared
	// bindings. Extras are ignored; a declaration left unbound is an error.
	Variables []binding.Variable

	// Width and Height are the exact output dimensions in pixels.
	Width  int
	Height int

	// Source holds the three stage blobs.
	Source shader.Source
}

// Validate checks the request's host-side preconditions: non-negative
// primitive count and positive dimensions. Shader and binding validation happens downstream
// where the reflected interface is available.
//
// Returns:
//   - error: a *binding.ConfigurationError naming the first bad field
func (r *RenderRequest) Validate() error {
	// Zero primitives is a valid request: the draw no-ops and the cleared
	// background comes back.
	if r.PrimitiveCount < 0 {
		return &binding.ConfigurationError{
			Variable: "primitive_count",
			Reason:   fmt.Sprintf("must be non-negative, got %d", r.PrimitiveCount),
		}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return &binding.ConfigurationError{
			Variable: "output_resolution",
			Reason:   fmt.Sprintf("must be positive, got %dx%d", r.Width, r.Height),
		}
	}
	return nil
}
