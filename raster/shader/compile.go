package shader

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// Compiled holds the GPU objects linked from a Program: the render pipeline
// and the group 0 bind group layout the binding table builds against. The
// owner must call Release when the program is evicted or the context closes.
type Compiled struct {
	pipeline *wgpu.RenderPipeline
	layout   *wgpu.BindGroupLayout

	vertexModule   *wgpu.ShaderModule
	geometryModule *wgpu.ShaderModule
	fragmentModule *wgpu.ShaderModule
}

// Pipeline returns the linked render pipeline.
func (c *Compiled) Pipeline() *wgpu.RenderPipeline {
	return c.pipeline
}

// Layout returns the group 0 bind group layout.
func (c *Compiled) Layout() *wgpu.BindGroupLayout {
	return c.layout
}

// Release frees all GPU objects held by the compiled program. Safe to call
// on a partially-populated value; each field is released at most once.
func (c *Compiled) Release() {
	if c.pipeline != nil {
		c.pipeline.Release()
		c.pipeline = nil
	}
	if c.layout != nil {
		c.layout.Release()
		c.layout = nil
	}
	if c.fragmentModule != nil {
		c.fragmentModule.Release()
		c.fragmentModule = nil
	}
	if c.geometryModule != nil {
		c.geometryModule.Release()
		c.geometryModule = nil
	}
	if c.vertexModule != nil {
		c.vertexModule.Release()
		c.vertexModule = nil
	}
}

func (p *program) Compile(device *wgpu.Device) (*Compiled, error) {
	compiled := &Compiled{}

	// Stages compile in declaration order so the first failure is
	// attributed to the earliest broken stage, matching how a caller
	// iterating their own sources would expect diagnostics to land.
	if p.source.Vertex != "" {
		mod, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          "raster-vertex",
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: p.source.Vertex},
		})
		if err != nil {
			compiled.Release()
			return nil, &CompilationError{Stage: StageVertex, Log: err.Error()}
		}
		compiled.vertexModule = mod
	}

	geometryModule, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "raster-geometry",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: p.source.Geometry},
	})
	if err != nil {
		compiled.Release()
		return nil, &CompilationError{Stage: StageGeometry, Log: err.Error()}
	}
	compiled.geometryModule = geometryModule

	fragmentModule, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "raster-fragment",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: p.source.Fragment},
	})
	if err != nil {
		compiled.Release()
		return nil, &CompilationError{Stage: StageFragment, Log: err.Error()}
	}
	compiled.fragmentModule = fragmentModule

	layout, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "raster-bind-group-layout",
		Entries: p.layoutEntries,
	})
	if err != nil {
		compiled.Release()
		return nil, &LinkError{Log: err.Error()}
	}
	compiled.layout = layout

	pipelineLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "raster-pipeline-layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		compiled.Release()
		return nil, &LinkError{Log: err.Error()}
	}
	defer pipelineLayout.Release()

	// Back-face culling happens in the geometry stage (culled primitives
	// emit degenerate clip positions), so the fixed-function cull stays off
	// and winding never silently discards what the program meant to draw.
	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "raster-pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     compiled.geometryModule,
			EntryPoint: p.geometryEntry,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		// Overlapping primitives resolve by depth, not submission order.
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth32Float,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     compiled.fragmentModule,
			EntryPoint: p.fragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    p.format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		compiled.Release()
		return nil, &LinkError{Log: err.Error()}
	}
	compiled.pipeline = pipeline

	return compiled, nil
}
