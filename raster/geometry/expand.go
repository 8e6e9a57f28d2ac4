// Package geometry is the host-side model of the point-expansion stage: a
// pure function from one input primitive to either a culled marker or three
// emitted vertices. It mirrors the canonical expansion WGSL exactly, so the
// rasterizer's behavior can be reasoned about and tested without a device.
package geometry

import (
	"math"

	"github.com/softglow/raster-go/common"
)

// VertexFetch returns the object-space position of one corner of one input
// primitive.
type VertexFetch func(prim, corner int) [3]float32

// Vertex is one emitted vertex: a clip-space position and the attributes
// interpolated across the primitive.
type Vertex struct {
	// Position is the clip-space position before perspective divide.
	Position [4]float32

	// Attrs are the interpolated attributes, laid out as
	// [x, y, z, bar0, bar1, triID] with x, y, z in object space.
	Attrs []float32
}

// Expansion is the outcome of expanding one primitive: either Culled or
// Emitted.
type Expansion interface {
	isExpansion()
}

// Culled marks a back-facing primitive. It contributes no vertices; on the
// GPU path the same primitive emits NaN clip positions, which produce zero
// fragments.
type Culled struct{}

func (Culled) isExpansion() {}

// Emitted carries the three vertices of a front-facing primitive.
type Emitted struct {
	Vertices [3]Vertex
}

func (Emitted) isExpansion() {}

// barycentric assignment per corner: interpolating these two channels
// reconstructs the full barycentric weights in the fragment stage.
var barycentrics = [3][2]float32{
	{1, 0},
	{0, 1},
	{0, 0},
}

// Expand maps one input primitive to its expansion.
//
// The three corners are fetched, transformed by the column-major
// view-projection matrix, and tested for facing in post-divide 2D: a
// non-positive signed area (clockwise or degenerate on screen) culls the
// primitive. A corner behind the eye (w <= 0) also culls, matching the NaN
// path the expansion shader takes.
//
// Parameters:
//   - prim: the primitive index
//   - fetch: corner position lookup
//   - viewProj: the column-major 4×4 view-projection matrix
//
// Returns:
//   - Expansion: Culled, or Emitted with three clip-space vertices
func Expand(prim int, fetch VertexFetch, viewProj []float32) Expansion {
	var clip [3][4]float32
	var ndc [3][2]float32

	for corner := 0; corner < 3; corner++ {
		p := fetch(prim, corner)
		clip[corner] = common.MulVec4(viewProj, [4]float32{p[0], p[1], p[2], 1})

		w := clip[corner][3]
		if w <= 0 || math.IsNaN(float64(w)) {
			return Culled{}
		}
		ndc[corner][0] = clip[corner][0] / w
		ndc[corner][1] = clip[corner][1] / w
	}

	ax, ay := ndc[1][0]-ndc[0][0], ndc[1][1]-ndc[0][1]
	bx, by := ndc[2][0]-ndc[0][0], ndc[2][1]-ndc[0][1]
	if area := ax*by - ay*bx; area <= 0 || math.IsNaN(float64(area)) {
		return Culled{}
	}

	var out Emitted
	for corner := 0; corner < 3; corner++ {
		p := fetch(prim, corner)
		out.Vertices[corner] = Vertex{
			Position: clip[corner],
			Attrs: []float32{
				p[0], p[1], p[2],
				barycentrics[corner][0], barycentrics[corner][1],
				float32(prim),
			},
		}
	}
	return out
}

// BufferFetch adapts a flat triangle buffer (nine floats per primitive,
// three xyz corners) to a VertexFetch.
//
// Parameters:
//   - data: the flat position buffer
//
// Returns:
//   - VertexFetch: indexed corner lookup into data
func BufferFetch(data []float32) VertexFetch {
	return func(prim, corner int) [3]float32 {
		base := prim*9 + corner*3
		return [3]float32{data[base], data[base+1], data[base+2]}
	}
}
