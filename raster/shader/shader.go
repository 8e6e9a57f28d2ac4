// Package shader compiles and links the caller-supplied WGSL stages of a
// rasterization program and reflects their binding interface.
//
// The engine targets WebGPU, which has no geometry stage. The original
// point-expansion pipeline is preserved by contract instead: the rasterizer
// draws three vertices per input point, and the geometry stage's @vertex
// entry reconstructs (primitive, corner) from @builtin(vertex_index), reads
// per-primitive data from a storage buffer, culls back faces, and assigns
// per-corner attributes. A culled primitive emits degenerate clip positions
// for all three corners, producing zero fragments. The vertex stage (empty in
// the classic pipeline) remains an opaque blob: when non-empty it is compiled
// and validated on its own so stage-correct compile errors are reported, but
// the render pipeline is linked from the geometry and fragment modules.
package shader

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Stage identifies one of the three programmable stages of a program.
type Stage int

const (
	// StageVertex is the optional pre-expansion stage. It is compiled for
	// validation when non-empty but does not participate in pipeline linking.
	StageVertex Stage = iota

	// StageGeometry is the point-expansion stage. Its @vertex entry point
	// drives the render pipeline.
	StageGeometry

	// StageFragment is the per-pixel stage. Its @fragment entry point's
	// declared return type determines the output channel count.
	StageFragment
)

// String returns the lower-case stage name used in diagnostics.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageGeometry:
		return "geometry"
	case StageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Source holds the three opaque WGSL stage blobs of a program. Immutable once
// submitted to NewProgram.
type Source struct {
	Vertex   string
	Geometry string
	Fragment string
}

// BindingKind classifies a reflected resource declaration.
type BindingKind int

const (
	// BindingUniform is a var<uniform> declaration (matrix uniforms).
	BindingUniform BindingKind = iota

	// BindingStorage is a var<storage, read> or var<storage, read_write>
	// declaration (per-primitive data buffers).
	BindingStorage
)

// String returns the kind name used in diagnostics.
func (k BindingKind) String() string {
	switch k {
	case BindingUniform:
		return "uniform"
	case BindingStorage:
		return "storage"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// BindingPoint describes one named resource slot declared by the program.
// It is the typed lookup table entry the binding table resolves variables
// against — built once at reflection time, no runtime reflection.
type BindingPoint struct {
	// Binding is the @binding index within group 0.
	Binding uint32

	// Kind classifies the slot as a uniform or a storage buffer.
	Kind BindingKind

	// Type is the declared WGSL type, e.g. "mat4x4<f32>" or "array<f32>".
	Type string

	// MinBindingSize is the minimum buffer size in bytes implied by the
	// declared type (one element stride for runtime-sized arrays).
	MinBindingSize uint64
}

// program is the implementation of the Program interface.
type program struct {
	source        Source
	iface         map[string]BindingPoint
	layoutEntries []wgpu.BindGroupLayoutEntry
	geometryEntry string
	fragmentEntry string
	channels      int
	format        wgpu.TextureFormat
}

// Program is a parsed, reflected — but not yet compiled — rasterization
// program. Reflection is pure CPU work; Compile produces the GPU objects.
type Program interface {
	// Source returns the stage blobs this program was built from.
	//
	// Returns:
	//   - Source: the immutable stage sources
	Source() Source

	// Interface returns the reflected binding interface: every named
	// resource slot declared by the geometry and fragment stages.
	//
	// Returns:
	//   - map[string]BindingPoint: binding points keyed by variable name
	Interface() map[string]BindingPoint

	// LayoutEntries returns the bind group layout entries for group 0,
	// sorted by binding index, ready for CreateBindGroupLayout.
	//
	// Returns:
	//   - []wgpu.BindGroupLayoutEntry: the group 0 layout entries
	LayoutEntries() []wgpu.BindGroupLayoutEntry

	// Channels returns the output channel count inferred from the fragment
	// stage's declared return type (1, 2, or 4).
	//
	// Returns:
	//   - int: the per-pixel channel count
	Channels() int

	// TargetFormat returns the float32 color target format matching the
	// fragment stage's output arity.
	//
	// Returns:
	//   - wgpu.TextureFormat: R32Float, RG32Float, or RGBA32Float
	TargetFormat() wgpu.TextureFormat

	// EntryPoint returns the entry point function name for the given stage.
	// The vertex stage has no pipeline entry point and returns "".
	//
	// Parameters:
	//   - stage: the stage whose entry point to return
	//
	// Returns:
	//   - string: the entry point name, or "" if the stage has none
	EntryPoint(stage Stage) string

	// Compile compiles each non-empty stage into its own shader module and
	// links the render pipeline. The first stage that fails to compile
	// aborts linking with a CompilationError naming that stage; a pipeline
	// or layout failure yields a LinkError. No partial GPU objects are held
	// on any error path.
	//
	// Parameters:
	//   - device: the device owning the compiled objects
	//
	// Returns:
	//   - *Compiled: the linked pipeline and bind group layout
	//   - error: CompilationError or LinkError on failure
	Compile(device *wgpu.Device) (*Compiled, error)
}

var _ Program = &program{}

// NewProgram parses and reflects the given stage sources. Errors are
// reported as LinkError: the shader interface itself is malformed in a way
// that no stage compiler would attribute to a single stage (missing entry
// points, unsupported output arity, bind groups other than 0, or slots
// declared twice with conflicting types).
//
// Parameters:
//   - src: the three stage blobs; Geometry and Fragment must be non-empty
//
// Returns:
//   - Program: the reflected program
//   - error: a *LinkError describing the interface problem
func NewProgram(src Source) (Program, error) {
	if src.Geometry == "" {
		return nil, &LinkError{Log: "geometry stage source is empty"}
	}
	if src.Fragment == "" {
		return nil, &LinkError{Log: "fragment stage source is empty"}
	}

	geometryEntry := parseEntryPoint(src.Geometry, StageGeometry)
	if geometryEntry == "" {
		return nil, &LinkError{Log: "geometry stage declares no @vertex entry point"}
	}
	fragmentEntry := parseEntryPoint(src.Fragment, StageFragment)
	if fragmentEntry == "" {
		return nil, &LinkError{Log: "fragment stage declares no @fragment entry point"}
	}

	channels, err := parseFragmentChannels(src.Fragment)
	if err != nil {
		return nil, err
	}

	iface, entries, err := parseBindingInterface(src.Geometry, src.Fragment)
	if err != nil {
		return nil, err
	}

	return &program{
		source:        src,
		iface:         iface,
		layoutEntries: entries,
		geometryEntry: geometryEntry,
		fragmentEntry: fragmentEntry,
		channels:      channels,
		format:        channelFormats[channels],
	}, nil
}

// channelFormats maps an output channel count to its float32 texture format.
// Three-channel targets do not exist in WebGPU, which is why reflection
// rejects vec3 fragment outputs.
var channelFormats = map[int]wgpu.TextureFormat{
	1: wgpu.TextureFormatR32Float,
	2: wgpu.TextureFormatRG32Float,
	4: wgpu.TextureFormatRGBA32Float,
}

func (p *program) Source() Source {
	return p.source
}

func (p *program) Interface() map[string]BindingPoint {
	return p.iface
}

func (p *program) LayoutEntries() []wgpu.BindGroupLayoutEntry {
	return p.layoutEntries
}

func (p *program) Channels() int {
	return p.channels
}

func (p *program) TargetFormat() wgpu.TextureFormat {
	return p.format
}

func (p *program) EntryPoint(stage Stage) string {
	switch stage {
	case StageGeometry:
		return p.geometryEntry
	case StageFragment:
		return p.fragmentEntry
	default:
		return ""
	}
}
