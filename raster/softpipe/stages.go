package softpipe

import (
	"github.com/softglow/raster-go/raster/geometry"
)

// BarycentricGeometry builds the canonical expansion stage: nine floats per
// primitive fetched from a flat buffer, transformed by the column-major
// view-projection matrix, back faces culled.
//
// Parameters:
//   - mesh: flat triangle buffer, nine floats per primitive
//   - viewProj: column-major 4×4 view-projection matrix
//
// Returns:
//   - GeometryFunc: the expansion stage
func BarycentricGeometry(mesh []float32, viewProj []float32) GeometryFunc {
	fetch := geometry.BufferFetch(mesh)
	return func(prim int) geometry.Expansion {
		return geometry.Expand(prim, fetch, viewProj)
	}
}

// BarycentricFragment is the canonical four-channel fragment stage: it packs
// the two leading barycentric weights, the primitive index, and the
// object-space z of the covered point.
//
// Parameters:
//   - in: the covered pixel's interpolated inputs
//
// Returns:
//   - []float32: [bar0, bar1, primID, objectZ]
func BarycentricFragment(in FragmentInput) []float32 {
	return []float32{in.Attrs[3], in.Attrs[4], in.Attrs[5], in.Attrs[2]}
}
