package geometry

import (
	"math"
	"testing"

	"github.com/softglow/raster-go/common"
)

// testViewProjection builds the camera used throughout: origin, looking down
// +z with +y up, 60° vertical field of view, square aspect, near 1, far 10.
func testViewProjection(t *testing.T) []float32 {
	t.Helper()
	view := make([]float32, 16)
	proj := make([]float32, 16)
	viewProj := make([]float32, 16)
	common.LookAt(view, 0, 0, 0, 0, 0, 1, 0, 1, 0)
	common.Perspective(proj, float32(60.0*math.Pi/180.0), 1, 1, 10)
	common.Mul4(viewProj, proj, view)
	return viewProj
}

// frontTriangle is front-facing under the test camera; swapping its first two
// corners reverses the screen-space winding.
func frontTriangle(depth float32) []float32 {
	return []float32{
		-10, 10, depth,
		10, 10, depth,
		0, -10, depth,
	}
}

func TestExpandFrontFacing(t *testing.T) {
	viewProj := testViewProjection(t)
	const depth = 3.0

	result := Expand(0, BufferFetch(frontTriangle(depth)), viewProj)
	emitted, ok := result.(Emitted)
	if !ok {
		t.Fatalf("Expand() = %T, want Emitted", result)
	}

	wantBar := [3][2]float32{{1, 0}, {0, 1}, {0, 0}}
	for i, v := range emitted.Vertices {
		if len(v.Attrs) != 6 {
			t.Fatalf("vertex %d has %d attrs, want 6", i, len(v.Attrs))
		}
		if v.Attrs[2] != depth {
			t.Errorf("vertex %d object-space z = %g, want %g", i, v.Attrs[2], depth)
		}
		if v.Attrs[3] != wantBar[i][0] || v.Attrs[4] != wantBar[i][1] {
			t.Errorf("vertex %d barycentrics = (%g, %g), want (%g, %g)",
				i, v.Attrs[3], v.Attrs[4], wantBar[i][0], wantBar[i][1])
		}
		if v.Attrs[5] != 0 {
			t.Errorf("vertex %d primitive id = %g, want 0", i, v.Attrs[5])
		}
		if v.Position[3] <= 0 {
			t.Errorf("vertex %d clip w = %g, want > 0", i, v.Position[3])
		}
	}
}

func TestExpandCullsReversedWinding(t *testing.T) {
	viewProj := testViewProjection(t)
	reversed := []float32{
		10, 10, 3,
		-10, 10, 3,
		0, -10, 3,
	}
	if _, ok := Expand(0, BufferFetch(reversed), viewProj).(Culled); !ok {
		t.Error("reversed winding should be culled")
	}
}

func TestExpandCullsDegenerate(t *testing.T) {
	viewProj := testViewProjection(t)
	collinear := []float32{
		-1, 0, 3,
		0, 0, 3,
		1, 0, 3,
	}
	if _, ok := Expand(0, BufferFetch(collinear), viewProj).(Culled); !ok {
		t.Error("zero-area triangle should be culled")
	}
}

func TestExpandCullsBehindEye(t *testing.T) {
	viewProj := testViewProjection(t)
	behind := frontTriangle(-3)
	if _, ok := Expand(0, BufferFetch(behind), viewProj).(Culled); !ok {
		t.Error("triangle behind the eye should be culled")
	}
}

func TestExpandDepthRange(t *testing.T) {
	viewProj := testViewProjection(t)

	// Clip z/w spans [0, 1] between the near and far planes.
	for _, tc := range []struct {
		depth float32
		want  float32
	}{
		{depth: 1, want: 0},
		{depth: 10, want: 1},
	} {
		result := Expand(0, BufferFetch(frontTriangle(tc.depth)), viewProj)
		emitted, ok := result.(Emitted)
		if !ok {
			t.Fatalf("Expand(depth=%g) = %T, want Emitted", tc.depth, result)
		}
		v := emitted.Vertices[0]
		got := v.Position[2] / v.Position[3]
		if math.Abs(float64(got-tc.want)) > 1e-5 {
			t.Errorf("depth %g maps to clip z/w = %g, want %g", tc.depth, got, tc.want)
		}
	}
}

func TestExpandPrimitiveIndexing(t *testing.T) {
	viewProj := testViewProjection(t)
	two := append(frontTriangle(2), frontTriangle(4)...)

	for prim := 0; prim < 2; prim++ {
		result := Expand(prim, BufferFetch(two), viewProj)
		emitted, ok := result.(Emitted)
		if !ok {
			t.Fatalf("Expand(prim=%d) = %T, want Emitted", prim, result)
		}
		wantZ := float32(2 + 2*prim)
		for i, v := range emitted.Vertices {
			if v.Attrs[2] != wantZ {
				t.Errorf("prim %d vertex %d object z = %g, want %g", prim, i, v.Attrs[2], wantZ)
			}
			if v.Attrs[5] != float32(prim) {
				t.Errorf("prim %d vertex %d id = %g, want %d", prim, i, v.Attrs[5], prim)
			}
		}
	}
}
