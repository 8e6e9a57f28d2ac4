package binding

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/softglow/raster-go/common"
)

// Table owns the GPU resources backing one render's resolved variables: one
// buffer per binding point and the bind group tying them to group 0. A table
// is built per draw and released once the frame's commands are submitted.
type Table struct {
	bindGroup *wgpu.BindGroup
	buffers   []*wgpu.Buffer
}

// Upload creates a buffer per planned variable, writes its payload, and
// assembles the bind group against the program's layout.
//
// Parameters:
//   - device: the device owning the buffers
//   - queue: the queue the payloads are written on
//   - layout: the compiled program's group 0 layout
//   - planned: the resolved variables from Plan
//   - label: debug label prefix for the created objects
//
// Returns:
//   - *Table: the uploaded table; call Release after submission
//   - error: the underlying device error, with partial resources released
func Upload(device *wgpu.Device, queue *wgpu.Queue, layout *wgpu.BindGroupLayout, planned []Planned, label string) (*Table, error) {
	t := &Table{buffers: make([]*wgpu.Buffer, 0, len(planned))}

	entries := make([]wgpu.BindGroupEntry, 0, len(planned))
	for _, p := range planned {
		var usage wgpu.BufferUsage
		switch p.Kind {
		case KindMatrix:
			usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
		case KindBuffer:
			usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
		}

		data := common.SliceToBytes(p.Data)
		buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label + " " + p.Name,
			Size:  uint64(len(data)),
			Usage: usage,
		})
		if err != nil {
			t.Release()
			return nil, err
		}
		t.buffers = append(t.buffers, buf)
		queue.WriteBuffer(buf, 0, data)

		entries = append(entries, wgpu.BindGroupEntry{
			Binding: p.Binding,
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label + " Bind Group",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		t.Release()
		return nil, err
	}
	t.bindGroup = bindGroup

	return t, nil
}

// BindGroup returns the assembled group 0 bind group.
func (t *Table) BindGroup() *wgpu.BindGroup {
	return t.bindGroup
}

// Release frees the bind group and all buffers. Safe on a partially-built
// table and idempotent.
func (t *Table) Release() {
	if t.bindGroup != nil {
		t.bindGroup.Release()
		t.bindGroup = nil
	}
	for _, buf := range t.buffers {
		buf.Release()
	}
	t.buffers = nil
}
