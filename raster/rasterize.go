package raster

import (
	"fmt"

	"github.com/softglow/raster-go/raster/binding"
	"github.com/softglow/raster-go/raster/shader"
)

// Rasterize is the string-keyed entry point: variables arrive as three
// parallel slices of names, kind strings ("mat" or "buffer"), and flat
// float32 payloads. It builds a typed request and runs it through the given
// rasterizer.
//
// Parameters:
//   - r: the rasterizer to run the request on
//   - primitiveCount: number of input primitives
//   - names: variable names, parallel to kinds and values
//   - kinds: "mat" or "buffer" per variable
//   - values: flat float32 payload per variable
//   - width, height: exact output dimensions in pixels
//   - vertex, geometry, fragment: the three stage blobs
//
// Returns:
//   - *Image: the rendered pixels
//   - error: a *binding.ConfigurationError for malformed parallel arrays or
//     kinds, else whatever the rasterizer reports
func Rasterize(
	r Rasterizer,
	primitiveCount int,
	names []string,
	kinds []string,
	values [][]float32,
	width, height int,
	vertex, geometry, fragment string,
) (*Image, error) {
	if len(names) != len(kinds) || len(names) != len(values) {
		return nil, &binding.ConfigurationError{
			Variable: "variables",
			Reason: fmt.Sprintf("parallel arrays disagree: %d names, %d kinds, %d values",
				len(names), len(kinds), len(values)),
		}
	}

	vars := make([]binding.Variable, len(names))
	for i, name := range names {
		kind, err := binding.ParseKind(kinds[i])
		if err != nil {
			if cfgErr, ok := err.(*binding.ConfigurationError); ok {
				cfgErr.Variable = name
			}
			return nil, err
		}
		// Stride is not derivable from a flat value slice, so per-primitive
		// divisibility goes unchecked on this path.
		vars[i] = binding.Variable{
			Name: name,
			Kind: kind,
			Data: values[i],
		}
	}

	return r.Rasterize(RenderRequest{
		PrimitiveCount: primitiveCount,
		Variables:      vars,
		Width:          width,
		Height:         height,
		Source: shader.Source{
			Vertex:   vertex,
			Geometry: geometry,
			Fragment: fragment,
		},
	})
}
