// Package softpipe is a CPU implementation of the draw/readback cycle: the
// same expansion, culling, and interpolation semantics as the GPU path,
// with Go functions in place of WGSL stages. It exists so pipeline behavior
// is testable on machines with no adapter, and doubles as an executable
// reference for what the canonical shaders compute.
package softpipe

import (
	"fmt"
	"math"

	"github.com/softglow/raster-go/raster"
	"github.com/softglow/raster-go/raster/geometry"
)

// GeometryFunc expands one input primitive, mirroring the expansion stage.
type GeometryFunc func(prim int) geometry.Expansion

// FragmentInput is what one covered pixel sees: its coordinates, the
// interpolated depth, and the perspective-correct interpolated attributes.
type FragmentInput struct {
	// X and Y are the pixel coordinates, row 0 at the top.
	X, Y int

	// Depth is the interpolated clip-space depth in [0, 1].
	Depth float32

	// Attrs are the perspective-correct attributes, same layout the
	// geometry stage emitted.
	Attrs []float32
}

// FragmentFunc computes one pixel's channel values, mirroring the fragment
// stage. The returned slice length must equal the pipeline's channel count.
type FragmentFunc func(in FragmentInput) []float32

// Pipeline is a fixed-size software render target configuration.
type Pipeline struct {
	width    int
	height   int
	channels int
}

// NewPipeline validates and creates a software pipeline.
//
// Parameters:
//   - width, height: output dimensions, must be positive
//   - channels: values per pixel (1, 2, or 4), matching the GPU formats
//
// Returns:
//   - *Pipeline: the pipeline
//   - error: invalid dimensions or channel count
func NewPipeline(width, height, channels int) (*Pipeline, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("output resolution must be positive, got %dx%d", width, height)
	}
	switch channels {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("channel count must be 1, 2, or 4, got %d", channels)
	}
	return &Pipeline{width: width, height: height, channels: channels}, nil
}

// vertex is one screen-space vertex prepared for rasterization.
type vertex struct {
	x, y  float32 // screen coordinates, pixel units, y down
	z     float32 // clip depth after divide
	invW  float32
	attrs []float32
}

// Render runs one full cycle: expand each primitive, rasterize front-facing
// triangles with a depth test, shade covered pixels, and return a tightly
// packed image cleared to zero.
//
// Parameters:
//   - primitiveCount: number of input primitives to expand
//   - geom: the expansion stage
//   - frag: the fragment stage
//
// Returns:
//   - *raster.Image: the rendered pixels
//   - error: a fragment stage returning the wrong channel count
func (p *Pipeline) Render(primitiveCount int, geom GeometryFunc, frag FragmentFunc) (*raster.Image, error) {
	img := raster.NewImage(p.width, p.height, p.channels)

	depth := make([]float32, p.width*p.height)
	for i := range depth {
		depth[i] = float32(math.Inf(1))
	}

	for prim := 0; prim < primitiveCount; prim++ {
		emitted, ok := geom(prim).(geometry.Emitted)
		if !ok {
			continue
		}
		if err := p.rasterize(emitted, frag, img, depth); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func (p *Pipeline) rasterize(emitted geometry.Emitted, frag FragmentFunc, img *raster.Image, depth []float32) error {
	var v [3]vertex
	for i, ev := range emitted.Vertices {
		w := ev.Position[3]
		if w <= 0 || isBad(w) {
			return nil
		}
		invW := 1 / w
		ndcX := ev.Position[0] * invW
		ndcY := ev.Position[1] * invW
		ndcZ := ev.Position[2] * invW
		if isBad(ndcX) || isBad(ndcY) || isBad(ndcZ) {
			return nil
		}
		v[i] = vertex{
			x:     (ndcX + 1) * 0.5 * float32(p.width),
			y:     (1 - ndcY) * 0.5 * float32(p.height),
			z:     ndcZ,
			invW:  invW,
			attrs: ev.Attrs,
		}
	}

	// The y flip reverses winding, so front-facing triangles may arrive
	// either way round in screen space; normalize to positive area.
	if orient2d(v[0], v[1], v[2].x, v[2].y) < 0 {
		v[1], v[2] = v[2], v[1]
	}
	area := orient2d(v[0], v[1], v[2].x, v[2].y)
	if area == 0 {
		return nil
	}

	minX := clampInt(int(math.Floor(float64(min3(v[0].x, v[1].x, v[2].x)))), 0, p.width-1)
	maxX := clampInt(int(math.Ceil(float64(max3(v[0].x, v[1].x, v[2].x)))), 0, p.width-1)
	minY := clampInt(int(math.Floor(float64(min3(v[0].y, v[1].y, v[2].y)))), 0, p.height-1)
	maxY := clampInt(int(math.Ceil(float64(max3(v[0].y, v[1].y, v[2].y)))), 0, p.height-1)

	attrCount := len(v[0].attrs)
	interp := make([]float32, attrCount)

	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5

			w0 := orient2d(v[1], v[2], px, py)
			w1 := orient2d(v[2], v[0], px, py)
			w2 := orient2d(v[0], v[1], px, py)
			if !covered(w0, v[1], v[2]) || !covered(w1, v[2], v[0]) || !covered(w2, v[0], v[1]) {
				continue
			}

			// Depth is screen-linear, so plain barycentrics interpolate it.
			l0, l1, l2 := w0/area, w1/area, w2/area
			z := l0*v[0].z + l1*v[1].z + l2*v[2].z
			if z < 0 || z > 1 {
				continue
			}
			di := y*p.width + x
			if z >= depth[di] {
				continue
			}

			// Attributes are perspective-correct: weight by 1/w, renormalize.
			c0 := l0 * v[0].invW
			c1 := l1 * v[1].invW
			c2 := l2 * v[2].invW
			sum := c0 + c1 + c2
			c0, c1, c2 = c0/sum, c1/sum, c2/sum
			for a := 0; a < attrCount; a++ {
				interp[a] = c0*v[0].attrs[a] + c1*v[1].attrs[a] + c2*v[2].attrs[a]
			}

			out := frag(FragmentInput{X: x, Y: y, Depth: z, Attrs: interp})
			if len(out) != p.channels {
				return fmt.Errorf("fragment stage returned %d channels, pipeline has %d", len(out), p.channels)
			}
			depth[di] = z
			copy(img.At(x, y), out)
		}
	}
	return nil
}

// orient2d is the signed doubled area of triangle (a, b, p): positive when p
// is to the left of a→b in y-down screen space.
func orient2d(a, b vertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// covered applies the top-left fill rule: strictly inside always passes,
// pixels exactly on an edge pass only when it is a top or left edge, so
// adjacent triangles never shade a shared pixel twice.
func covered(w float32, a, b vertex) bool {
	if w > 0 {
		return true
	}
	if w < 0 {
		return false
	}
	if a.y == b.y {
		return b.x < a.x // top edge
	}
	return b.y > a.y // left edge
}

func isBad(v float32) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func min3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
