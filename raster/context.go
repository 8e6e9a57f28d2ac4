package raster

import (
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/softglow/raster-go/common"
)

// Context is the explicit handle owning one WebGPU instance, adapter, device,
// and queue, created headless for offscreen rendering. Contexts share no GPU
// objects with each other; a single mutex serializes all work through one
// context, so a Context is safe to share between goroutines but renders
// through it never overlap.
type Context struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	released bool
}

// ContextOption is a functional option applied during NewContext.
type ContextOption func(*contextConfig)

type contextConfig struct {
	forceFallbackAdapter bool
	deviceLabel          string
}

// WithForceFallbackAdapter forces a CPU/software fallback adapter instead of
// hardware acceleration. Requires a software implementation to be installed
// on the system (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter
//
// Returns:
//   - ContextOption: a function that applies the fallback option
func WithForceFallbackAdapter(force bool) ContextOption {
	return func(c *contextConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithDeviceLabel sets the debug label of the created device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - ContextOption: a function that applies the label option
func WithDeviceLabel(label string) ContextOption {
	return func(c *contextConfig) {
		c.deviceLabel = label
	}
}

// NewContext acquires an instance, adapter, device, and queue with no
// surface. The calling goroutine is locked to its OS thread for the life of
// the context; all work submitted through the context runs from it.
//
// Parameters:
//   - opts: optional configuration
//
// Returns:
//   - *Context: the usable context
//   - error: a *ContextError when acquisition fails
func NewContext(opts ...ContextOption) (*Context, error) {
	var cfg contextConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.deviceLabel = common.Coalesce(cfg.deviceLabel, "Raster Device")

	runtime.LockOSThread()

	ctx := &Context{instance: wgpu.CreateInstance(nil)}
	if ctx.instance == nil {
		return nil, &ContextError{Op: "create instance"}
	}

	adapter, err := ctx.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
	})
	if err != nil {
		ctx.Release()
		return nil, &ContextError{Op: "request adapter", Err: err}
	}
	ctx.adapter = adapter

	info := adapter.GetInfo()
	Logger().Info("adapter selected",
		"name", info.Name,
		"backend", info.BackendType,
		"fallback", cfg.forceFallbackAdapter,
	)

	limits := wgpu.DefaultLimits()
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: cfg.deviceLabel,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		ctx.Release()
		return nil, &ContextError{Op: "request device", Err: err}
	}
	ctx.device = device
	ctx.queue = device.GetQueue()

	return ctx, nil
}

// Instance returns the context's instance, e.g. for surface creation when a
// rendered image is presented to a window.
func (c *Context) Instance() *wgpu.Instance {
	return c.instance
}

// Adapter returns the context's adapter.
func (c *Context) Adapter() *wgpu.Adapter {
	return c.adapter
}

// Device returns the context's device.
func (c *Context) Device() *wgpu.Device {
	return c.device
}

// Queue returns the context's queue.
func (c *Context) Queue() *wgpu.Queue {
	return c.queue
}

// Release tears the context down in reverse acquisition order. Further use
// of the context after Release fails with a ContextError. Idempotent.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return
	}
	c.released = true

	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}

// locked runs fn with the context mutex held, failing fast once released.
func (c *Context) locked(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return &ContextError{Op: "use of released context"}
	}
	return fn()
}
