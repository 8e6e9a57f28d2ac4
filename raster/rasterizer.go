package raster

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/softglow/raster-go/common"
	"github.com/softglow/raster-go/raster/binding"
	"github.com/softglow/raster-go/raster/shader"
)

// Rasterizer executes draw/readback cycles through one Context. Each
// Rasterize call runs the full upload → draw → readback sequence in order
// and returns a fully-populated image; no state leaks between calls except
// the program cache, which is keyed by source hash and purely an
// optimization.
type Rasterizer interface {
	// Rasterize runs one render: compile or fetch the program, resolve and
	// upload the variables, draw three vertices per primitive into an
	// offscreen target of exactly (Width, Height), block until the GPU
	// finishes, and read the pixels back.
	//
	// Parameters:
	//   - req: the request; see RenderRequest field docs
	//
	// Returns:
	//   - *Image: the rendered pixels, row-major with no padding
	//   - error: CompilationError, LinkError, ConfigurationError, or
	//     ContextError depending on the failing phase
	Rasterize(req RenderRequest) (*Image, error)

	// Release frees all cached programs. The underlying Context is not
	// released; the caller owns it.
	Release()
}

type cachedProgram struct {
	program  shader.Program
	compiled *shader.Compiled
}

type rasterizer struct {
	ctx      *Context
	caching  bool
	programs map[[sha256.Size]byte]*cachedProgram
}

var _ Rasterizer = &rasterizer{}

// RasterizerOption is a functional option applied during NewRasterizer.
type RasterizerOption func(*rasterizer)

// WithProgramCaching controls whether compiled programs are kept across
// Rasterize calls, keyed by a hash of the stage sources. Enabled by default.
//
// Parameters:
//   - enabled: false to recompile on every call
//
// Returns:
//   - RasterizerOption: a function that applies the caching option
func WithProgramCaching(enabled bool) RasterizerOption {
	return func(r *rasterizer) {
		r.caching = enabled
	}
}

// NewRasterizer creates a rasterizer bound to the given context.
//
// Parameters:
//   - ctx: the context all GPU work runs through
//   - opts: optional configuration
//
// Returns:
//   - Rasterizer: the rasterizer
func NewRasterizer(ctx *Context, opts ...RasterizerOption) Rasterizer {
	r := &rasterizer{
		ctx:      ctx,
		caching:  true,
		programs: make(map[[sha256.Size]byte]*cachedProgram),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *rasterizer) Rasterize(req RenderRequest) (*Image, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var img *Image
	err := r.ctx.locked(func() error {
		rendered, err := r.render(req)
		if err != nil {
			return err
		}
		img = rendered
		return nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (r *rasterizer) Release() {
	for _, cached := range r.programs {
		cached.compiled.Release()
	}
	r.programs = make(map[[sha256.Size]byte]*cachedProgram)
}

// lookupProgram returns a reflected and compiled program for the request's
// sources, from cache when possible.
func (r *rasterizer) lookupProgram(src shader.Source) (*cachedProgram, error) {
	key := sourceHash(src)
	if cached, ok := r.programs[key]; ok && r.caching {
		return cached, nil
	}

	prog, err := shader.NewProgram(src)
	if err != nil {
		return nil, err
	}
	compiled, err := prog.Compile(r.ctx.Device())
	if err != nil {
		return nil, err
	}

	cached := &cachedProgram{program: prog, compiled: compiled}
	if r.caching {
		r.programs[key] = cached
	}
	Logger().Debug("program compiled",
		"channels", prog.Channels(),
		"bindings", len(prog.Interface()),
		"cached", r.caching,
	)
	return cached, nil
}

// render runs one full cycle with the context lock held.
func (r *rasterizer) render(req RenderRequest) (*Image, error) {
	device := r.ctx.Device()
	queue := r.ctx.Queue()

	cached, err := r.lookupProgram(req.Source)
	if err != nil {
		return nil, err
	}
	prog, compiled := cached.program, cached.compiled
	if !r.caching {
		defer compiled.Release()
	}

	planned, err := binding.Plan(prog.Interface(), req.Variables)
	if err != nil {
		return nil, err
	}
	table, err := binding.Upload(device, queue, compiled.Layout(), planned, "Raster")
	if err != nil {
		return nil, &ContextError{Op: "upload bindings", Err: err}
	}
	defer table.Release()

	texture, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Raster Target",
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
		Dimension:     wgpu.TextureDimension2D,
		Format:        prog.TargetFormat(),
		MipLevelCount: 1,
		SampleCount:   1,
		Size: wgpu.Extent3D{
			Width:              uint32(req.Width),
			Height:             uint32(req.Height),
			DepthOrArrayLayers: 1,
		},
	})
	if err != nil {
		return nil, &ContextError{Op: "create render target", Err: err}
	}
	defer texture.Release()

	view, err := texture.CreateView(nil)
	if err != nil {
		return nil, &ContextError{Op: "create target view", Err: err}
	}
	defer view.Release()

	depthTexture, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Raster Depth",
		Usage:         wgpu.TextureUsageRenderAttachment,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth32Float,
		MipLevelCount: 1,
		SampleCount:   1,
		Size: wgpu.Extent3D{
			Width:              uint32(req.Width),
			Height:             uint32(req.Height),
			DepthOrArrayLayers: 1,
		},
	})
	if err != nil {
		return nil, &ContextError{Op: "create depth texture", Err: err}
	}
	defer depthTexture.Release()

	depthView, err := depthTexture.CreateView(nil)
	if err != nil {
		return nil, &ContextError{Op: "create depth view", Err: err}
	}
	defer depthView.Release()

	channels := prog.Channels()
	rowBytes := req.Width * channels * 4
	alignedRowBytes := alignTo(rowBytes, wgpu.CopyBytesPerRowAlignment)
	readbackSize := uint64(alignedRowBytes) * uint64(req.Height)

	readback, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Raster Readback",
		Size:  readbackSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, &ContextError{Op: "create readback buffer", Err: err}
	}
	defer readback.Release()

	encoder, err := device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, &ContextError{Op: "create command encoder", Err: err}
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	pass.SetPipeline(compiled.Pipeline())
	pass.SetBindGroup(0, table.BindGroup(), nil)
	pass.Draw(uint32(3*req.PrimitiveCount), 1, 0, 0)
	pass.End()

	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: readback,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(alignedRowBytes),
				RowsPerImage: uint32(req.Height),
			},
		},
		&wgpu.Extent3D{
			Width:              uint32(req.Width),
			Height:             uint32(req.Height),
			DepthOrArrayLayers: 1,
		},
	)

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, &ContextError{Op: "finish command encoder", Err: err}
	}
	queue.Submit(commandBuffer)
	commandBuffer.Release()

	Logger().Debug("render submitted",
		"primitives", req.PrimitiveCount,
		"size", fmt.Sprintf("%dx%dx%d", req.Width, req.Height, channels),
	)

	var mapStatus wgpu.BufferMapAsyncStatus
	if err := readback.MapAsync(wgpu.MapModeRead, 0, readbackSize, func(status wgpu.BufferMapAsyncStatus) {
		mapStatus = status
	}); err != nil {
		return nil, &ContextError{Op: "map readback buffer", Err: err}
	}
	device.Poll(true, nil)
	if mapStatus != wgpu.BufferMapAsyncStatusSuccess {
		return nil, &ContextError{Op: fmt.Sprintf("map readback buffer: status %v", mapStatus)}
	}
	defer readback.Unmap()

	// Strip the 256-byte row alignment copy-side so the returned image is
	// tightly packed.
	raw := readback.GetMappedRange(0, uint(readbackSize))
	img := NewImage(req.Width, req.Height, channels)
	rowFloats := req.Width * channels
	for y := 0; y < req.Height; y++ {
		row := common.BytesToFloat32(raw[y*alignedRowBytes : y*alignedRowBytes+rowBytes])
		copy(img.Pix[y*rowFloats:(y+1)*rowFloats], row)
	}

	return img, nil
}

// sourceHash keys the program cache. Length prefixes keep distinct source
// triples from colliding under concatenation.
func sourceHash(src shader.Source) [sha256.Size]byte {
	h := sha256.New()
	var n [8]byte
	for _, s := range []string{src.Vertex, src.Geometry, src.Fragment} {
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	var key [sha256.Size]byte
	copy(key[:], h.Sum(nil))
	return key
}

func alignTo(v, alignment int) int {
	return (v + alignment - 1) &^ (alignment - 1)
}
