package shader

import (
	"errors"
	"strings"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

const testGeometrySource = `
@group(0) @binding(0) var<uniform> view_projection_matrix: mat4x4<f32>;
@group(0) @binding(1) var<storage, read> triangular_mesh: array<f32>;

struct GeometryOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) bar_coord: vec2<f32>,
    @location(1) tri_id: f32,
}

@vertex
fn expand_vertices(@builtin(vertex_index) vertex_index: u32) -> GeometryOutput {
    var out: GeometryOutput;
    let prim = vertex_index / 3u;
    let corner = vertex_index % 3u;
    let base = prim * 9u;
    var positions: array<vec4<f32>, 3>;
    for (var i = 0u; i < 3u; i = i + 1u) {
        let p = vec4<f32>(
            triangular_mesh[base + i * 3u],
            triangular_mesh[base + i * 3u + 1u],
            triangular_mesh[base + i * 3u + 2u],
            1.0,
        );
        positions[i] = view_projection_matrix * p;
    }
    let a = positions[0].xy / positions[0].w;
    let b = positions[1].xy / positions[1].w;
    let c = positions[2].xy / positions[2].w;
    let area = (b.x - a.x) * (c.y - a.y) - (b.y - a.y) * (c.x - a.x);
    if (area <= 0.0) {
        out.position = vec4<f32>(bitcast<f32>(0x7fc00000u));
        return out;
    }
    out.position = positions[corner];
    if (corner == 0u) {
        out.bar_coord = vec2<f32>(1.0, 0.0);
    } else if (corner == 1u) {
        out.bar_coord = vec2<f32>(0.0, 1.0);
    } else {
        out.bar_coord = vec2<f32>(0.0, 0.0);
    }
    out.tri_id = f32(prim);
    return out;
}
`

const testFragmentSource = `
struct FragmentInput {
    @builtin(position) position: vec4<f32>,
    @location(0) bar_coord: vec2<f32>,
    @location(1) tri_id: f32,
}

@fragment
fn write_fragment(in: FragmentInput) -> @location(0) vec4<f32> {
    return vec4<f32>(in.bar_coord, in.tri_id, in.position.z);
}
`

func TestParseEntryPoint(t *testing.T) {
	if got := parseEntryPoint(testGeometrySource, StageGeometry); got != "expand_vertices" {
		t.Errorf("geometry entry point = %q, want %q", got, "expand_vertices")
	}
	if got := parseEntryPoint(testFragmentSource, StageFragment); got != "write_fragment" {
		t.Errorf("fragment entry point = %q, want %q", got, "write_fragment")
	}
	if got := parseEntryPoint(testGeometrySource, StageVertex); got != "" {
		t.Errorf("vertex entry point = %q, want empty", got)
	}
	if got := parseEntryPoint(testFragmentSource, StageGeometry); got != "" {
		t.Errorf("geometry entry point in fragment source = %q, want empty", got)
	}
}

func TestParseEntryPointIgnoresComments(t *testing.T) {
	source := `
// @vertex
// fn commented_out() {}
/* @vertex
fn also_commented() {} */
@vertex
fn real_entry(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0);
}
`
	if got := parseEntryPoint(source, StageGeometry); got != "real_entry" {
		t.Errorf("entry point = %q, want %q", got, "real_entry")
	}
}

func TestParseFragmentChannels(t *testing.T) {
	tests := []struct {
		name       string
		returnType string
		want       int
		wantErr    bool
	}{
		{name: "scalar", returnType: "f32", want: 1},
		{name: "vec2 long form", returnType: "vec2<f32>", want: 2},
		{name: "vec2 short form", returnType: "vec2f", want: 2},
		{name: "vec4 long form", returnType: "vec4<f32>", want: 4},
		{name: "vec4 short form", returnType: "vec4f", want: 4},
		{name: "vec3 rejected", returnType: "vec3<f32>", wantErr: true},
		{name: "integer rejected", returnType: "u32", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := "@fragment\nfn main() -> @location(0) " + tt.returnType + " {\n}\n"
			got, err := parseFragmentChannels(source)
			if tt.wantErr {
				var linkErr *LinkError
				if !errors.As(err, &linkErr) {
					t.Fatalf("parseFragmentChannels() error = %v, want *LinkError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFragmentChannels() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseFragmentChannels() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseFragmentChannelsStructReturn(t *testing.T) {
	source := `
struct FragmentOutput {
    @location(0) color: vec2<f32>,
}

@fragment
fn main() -> FragmentOutput {
    var out: FragmentOutput;
    return out;
}
`
	got, err := parseFragmentChannels(source)
	if err != nil {
		t.Fatalf("parseFragmentChannels() error = %v", err)
	}
	if got != 2 {
		t.Errorf("parseFragmentChannels() = %d, want 2", got)
	}
}

func TestParseFragmentChannelsMultipleOutputs(t *testing.T) {
	source := `
struct FragmentOutput {
    @location(0) color: vec4<f32>,
    @location(1) extra: f32,
}

@fragment
fn main() -> FragmentOutput {
    var out: FragmentOutput;
    return out;
}
`
	_, err := parseFragmentChannels(source)
	var linkErr *LinkError
	if !errors.As(err, &linkErr) {
		t.Fatalf("parseFragmentChannels() error = %v, want *LinkError", err)
	}
	if !strings.Contains(linkErr.Log, "multiple") {
		t.Errorf("LinkError.Log = %q, want mention of multiple outputs", linkErr.Log)
	}
}

func TestParseBindingInterface(t *testing.T) {
	iface, entries, err := parseBindingInterface(testGeometrySource, testFragmentSource)
	if err != nil {
		t.Fatalf("parseBindingInterface() error = %v", err)
	}

	matrix, ok := iface["view_projection_matrix"]
	if !ok {
		t.Fatal("view_projection_matrix missing from interface")
	}
	if matrix.Kind != BindingUniform {
		t.Errorf("view_projection_matrix kind = %v, want %v", matrix.Kind, BindingUniform)
	}
	if matrix.Binding != 0 {
		t.Errorf("view_projection_matrix binding = %d, want 0", matrix.Binding)
	}
	if matrix.MinBindingSize != 64 {
		t.Errorf("view_projection_matrix min binding size = %d, want 64", matrix.MinBindingSize)
	}

	mesh, ok := iface["triangular_mesh"]
	if !ok {
		t.Fatal("triangular_mesh missing from interface")
	}
	if mesh.Kind != BindingStorage {
		t.Errorf("triangular_mesh kind = %v, want %v", mesh.Kind, BindingStorage)
	}
	if mesh.Binding != 1 {
		t.Errorf("triangular_mesh binding = %d, want 1", mesh.Binding)
	}
	if mesh.MinBindingSize != 4 {
		t.Errorf("triangular_mesh min binding size = %d, want 4", mesh.MinBindingSize)
	}

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Binding >= entries[i].Binding {
			t.Errorf("entries not sorted by binding: %d before %d", entries[i-1].Binding, entries[i].Binding)
		}
	}
	if entries[0].Buffer.Type != wgpu.BufferBindingTypeUniform {
		t.Errorf("entry 0 buffer type = %v, want uniform", entries[0].Buffer.Type)
	}
	if entries[1].Buffer.Type != wgpu.BufferBindingTypeReadOnlyStorage {
		t.Errorf("entry 1 buffer type = %v, want read-only storage", entries[1].Buffer.Type)
	}
}

func TestParseBindingInterfaceSharedDeclaration(t *testing.T) {
	fragment := `
@group(0) @binding(0) var<uniform> view_projection_matrix: mat4x4<f32>;

@fragment
fn main() -> @location(0) f32 {
    return view_projection_matrix[0][0];
}
`
	iface, entries, err := parseBindingInterface(testGeometrySource, fragment)
	if err != nil {
		t.Fatalf("parseBindingInterface() error = %v", err)
	}
	if len(iface) != 2 {
		t.Errorf("len(iface) = %d, want 2", len(iface))
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
}

func TestParseBindingInterfaceErrors(t *testing.T) {
	tests := []struct {
		name     string
		geometry string
		fragment string
		wantLog  string
	}{
		{
			name:     "non-zero group",
			geometry: "@group(1) @binding(0) var<uniform> m: mat4x4<f32>;\n@vertex\nfn v() {}\n",
			fragment: "@fragment\nfn f() -> @location(0) f32 { return 0.0; }\n",
			wantLog:  "group",
		},
		{
			name:     "texture declaration",
			geometry: "@group(0) @binding(0) var t: texture_2d<f32>;\n@vertex\nfn v() {}\n",
			fragment: "@fragment\nfn f() -> @location(0) f32 { return 0.0; }\n",
			wantLog:  "address space",
		},
		{
			name:     "conflicting slots across stages",
			geometry: "@group(0) @binding(0) var<uniform> m: mat4x4<f32>;\n@vertex\nfn v() {}\n",
			fragment: "@group(0) @binding(1) var<uniform> m: mat4x4<f32>;\n@fragment\nfn f() -> @location(0) f32 { return 0.0; }\n",
			wantLog:  "conflicting",
		},
		{
			name:     "two names on one binding",
			geometry: "@group(0) @binding(0) var<uniform> m: mat4x4<f32>;\n@vertex\nfn v() {}\n",
			fragment: "@group(0) @binding(0) var<uniform> n: mat4x4<f32>;\n@fragment\nfn f() -> @location(0) f32 { return 0.0; }\n",
			wantLog:  "declared as both",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseBindingInterface(tt.geometry, tt.fragment)
			var linkErr *LinkError
			if !errors.As(err, &linkErr) {
				t.Fatalf("parseBindingInterface() error = %v, want *LinkError", err)
			}
			if !strings.Contains(linkErr.Log, tt.wantLog) {
				t.Errorf("LinkError.Log = %q, want substring %q", linkErr.Log, tt.wantLog)
			}
		})
	}
}

func TestResolveTypeLayout(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		wantSize uint64
		wantOK   bool
	}{
		{name: "scalar", typeName: "f32", wantSize: 4, wantOK: true},
		{name: "matrix", typeName: "mat4x4<f32>", wantSize: 64, wantOK: true},
		{name: "runtime array", typeName: "array<f32>", wantSize: 4, wantOK: true},
		{name: "fixed array", typeName: "array<f32, 9>", wantSize: 36, wantOK: true},
		{name: "fixed vec3 array pads stride", typeName: "array<vec3<f32>, 2>", wantSize: 32, wantOK: true},
		{name: "unknown", typeName: "texture_2d<f32>", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, ok := resolveTypeLayout(tt.typeName, nil)
			if ok != tt.wantOK {
				t.Fatalf("resolveTypeLayout(%q) ok = %v, want %v", tt.typeName, ok, tt.wantOK)
			}
			if ok && layout.size != tt.wantSize {
				t.Errorf("resolveTypeLayout(%q) size = %d, want %d", tt.typeName, layout.size, tt.wantSize)
			}
		})
	}
}

func TestComputeStructSizes(t *testing.T) {
	source := stripComments(`
struct Params {
    transform: mat4x4<f32>,
    origin: vec3<f32>,
    scale: f32,
}
`)
	sizes := computeStructSizes(parseStructBlocks(source))
	layout, ok := sizes["Params"]
	if !ok {
		t.Fatal("Params missing from computed sizes")
	}
	// mat4x4 at 0 (64 bytes), vec3 at 64 (12 bytes), f32 packs at 76,
	// total 80 rounded to the struct's 16-byte alignment.
	if layout.size != 80 {
		t.Errorf("Params size = %d, want 80", layout.size)
	}
}

func TestStripCommentsNestedBlocks(t *testing.T) {
	source := "a /* outer /* inner */ still outer */ b // trailing\nc"
	got := stripComments(source)
	if strings.Contains(got, "outer") || strings.Contains(got, "inner") || strings.Contains(got, "trailing") {
		t.Errorf("stripComments() = %q, comment text survived", got)
	}
	for _, keep := range []string{"a", "b", "c"} {
		if !strings.Contains(got, keep) {
			t.Errorf("stripComments() = %q, lost code text %q", got, keep)
		}
	}
}
