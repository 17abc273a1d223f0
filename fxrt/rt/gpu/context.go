package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"unsafe"

	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Context records every command into its own submission. Each Apply
// rewrites the shared uniform buffer, so a draw must reach the queue
// before the next Apply.
type Context struct {
	dev *Device

	binding  *core.PassBinding
	topology core.Topology
	layout   core.VertexLayout
	vertex   *Buffer
	index    *Buffer
	stream   *Buffer
	target   target

	queries []*Query
	mapped  map[*Buffer]bool
	mu      sync.Mutex
}

func asBuffer(b core.Buffer) *Buffer {
	if b == nil {
		return nil
	}
	return b.(*Buffer)
}

func (c *Context) ApplyPass(b *core.PassBinding) error {
	if b == nil || b.Program == nil {
		return errors.New("gpu: apply without program")
	}
	cp := *b
	c.binding = &cp
	u := cp.Uniforms
	return c.dev.Queue.WriteBuffer(c.dev.FrameBuf, 0, unsafe.Slice((*byte)(unsafe.Pointer(&u)), core.FrameUniformsSize))
}

func (c *Context) SetPrimitiveTopology(t core.Topology)                 { c.topology = t }
func (c *Context) SetInputLayout(l core.VertexLayout)                   { c.layout = l }
func (c *Context) SetVertexBuffer(b core.Buffer, stride, offset uint32) { c.vertex = asBuffer(b) }
func (c *Context) SetIndexBuffer(b core.Buffer)                         { c.index = asBuffer(b) }
func (c *Context) SetStreamTarget(b core.Buffer)                        { c.stream = asBuffer(b) }

func (c *Context) SetRenderTarget(t core.RenderTarget) {
	if t == nil {
		c.target = nil
		return
	}
	c.target = t.(target)
}

func (c *Context) submit(label string, record func(enc *wgpu.CommandEncoder) error) error {
	enc, err := c.dev.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return err
	}
	defer enc.Release()
	if err := record(enc); err != nil {
		return err
	}
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	defer cmd.Release()
	c.dev.Queue.Submit(cmd)
	return nil
}

func (c *Context) checkUnmapped() error {
	if len(c.mapped) == 0 {
		return nil
	}
	var labels []string
	for b := range c.mapped {
		labels = append(labels, b.label)
	}
	return fmt.Errorf("%w during draw: %s", core.ErrMapped, strings.Join(labels, ", "))
}

func (c *Context) program() (*Program, error) {
	if c.binding == nil {
		return nil, errors.New("gpu: draw without applied pass")
	}
	return c.binding.Program.(*Program), nil
}

func (c *Context) Draw(count uint32) error { return c.draw(count, false) }
func (c *Context) DrawAuto() error         { return c.draw(math.MaxUint32, true) }

func (c *Context) draw(count uint32, auto bool) error {
	prog, err := c.program()
	if err != nil {
		return err
	}
	if c.vertex == nil {
		return errors.New("gpu: draw without vertex buffer")
	}
	if err := c.checkUnmapped(); err != nil {
		return err
	}
	if c.stream != nil {
		return c.simulate(prog, count)
	}
	if prog.Kind() == core.ProgramSimulate {
		return errors.New("gpu: simulate pass without stream target")
	}
	return c.render(prog, func(pass *wgpu.RenderPassEncoder) {
		pass.SetVertexBuffer(0, c.vertex.Buffer, 0, wgpu.WholeSize)
		switch {
		case auto:
			pass.DrawIndirect(c.vertex.Meta, streamMetaIndirectAt)
		case c.topology == core.TopologyPointList:
			pass.Draw(billboardVertices, count, 0, 0)
		default:
			pass.Draw(count, 1, 0, 0)
		}
	})
}

func (c *Context) DrawIndexed(count uint32) error {
	prog, err := c.program()
	if err != nil {
		return err
	}
	if c.vertex == nil || c.index == nil {
		return errors.New("gpu: indexed draw without vertex or index buffer")
	}
	if err := c.checkUnmapped(); err != nil {
		return err
	}
	return c.render(prog, func(pass *wgpu.RenderPassEncoder) {
		pass.SetVertexBuffer(0, c.vertex.Buffer, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(c.index.Buffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		pass.DrawIndexed(count, 1, 0, 0, 0)
	})
}

func textureView(t core.Texture, fallback *Texture) *wgpu.TextureView {
	switch v := t.(type) {
	case *Texture:
		if v.View != nil {
			return v.View
		}
	case *Target:
		if v.View != nil {
			return v.View
		}
	}
	return fallback.View
}

func (c *Context) render(prog *Program, draw func(pass *wgpu.RenderPassEncoder)) error {
	if c.target == nil {
		return errors.New("gpu: draw without render target")
	}
	rp, err := prog.renderPipeline(c.dev, c.binding, c.layout, c.topology, c.target.format())
	if err != nil {
		return err
	}
	tex := c.binding.Textures
	white := c.dev.WhiteTexture
	bg, err := c.dev.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  c.binding.Pass,
		Layout: c.dev.VisualLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.dev.FrameBuf, Size: core.FrameUniformsSize},
			{Binding: 1, Sampler: c.dev.SamplerWrap},
			{Binding: 2, Sampler: c.dev.SamplerClamp},
			{Binding: 3, TextureView: textureView(tex[core.SlotInput], white)},
			{Binding: 4, TextureView: textureView(tex[core.SlotAsh], white)},
			{Binding: 5, TextureView: textureView(tex[core.SlotPrimary], white)},
			{Binding: 6, TextureView: textureView(tex[core.SlotSmoke], white)},
		},
	})
	if err != nil {
		return fmt.Errorf("bind group %s: %w", c.binding.Pass, err)
	}
	defer bg.Release()

	return c.submit(c.binding.Pass, func(enc *wgpu.CommandEncoder) error {
		pass := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
			Label: c.binding.Pass,
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:    c.target.colorView(),
				LoadOp:  wgpu.LoadOpLoad,
				StoreOp: wgpu.StoreOpStore,
			}},
		})
		pass.SetPipeline(rp)
		pass.SetBindGroup(0, bg, nil)
		draw(pass)
		return pass.End()
	})
}

// simulate dispatches prepare, simulate and finalize over the input buffer.
// Records past the stream target's capacity are dropped by the program.
func (c *Context) simulate(prog *Program, limit uint32) error {
	if prog.Kind() != core.ProgramSimulate {
		return fmt.Errorf("gpu: pass %s cannot write a stream target", c.binding.Pass)
	}
	src, dst := c.vertex, c.stream
	if src == dst {
		return errors.New("gpu: stream target is also the input")
	}
	limits := make([]byte, 16)
	binary.LittleEndian.PutUint32(limits[0:], limit)
	binary.LittleEndian.PutUint32(limits[4:], dst.records())
	if err := c.dev.Queue.WriteBuffer(c.dev.LimitsBuf, 0, limits); err != nil {
		return err
	}

	random := c.dev.ZeroRandom.View
	if t, ok := c.binding.Textures[core.SlotRandom].(*Texture); ok && t.View != nil {
		random = t.View
	}
	bg, err := c.dev.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  c.binding.Pass,
		Layout: c.dev.ComputeLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.dev.FrameBuf, Size: core.FrameUniformsSize},
			{Binding: 1, Buffer: src.Buffer, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: src.Meta, Size: streamMetaSize},
			{Binding: 3, Buffer: dst.Buffer, Size: wgpu.WholeSize},
			{Binding: 4, Buffer: dst.Meta, Size: streamMetaSize},
			{Binding: 5, Buffer: c.dev.LimitsBuf, Size: 16},
			{Binding: 6, TextureView: random},
		},
	})
	if err != nil {
		return fmt.Errorf("bind group %s: %w", c.binding.Pass, err)
	}
	defer bg.Release()

	invocations := src.records()
	if limit < invocations {
		invocations = limit
	}
	groups := (invocations + core.WorkgroupSize - 1) / core.WorkgroupSize
	if groups == 0 {
		groups = 1
	}

	return c.submit(c.binding.Pass, func(enc *wgpu.CommandEncoder) error {
		pass := enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: c.binding.Pass})
		pass.SetBindGroup(0, bg, nil)
		pass.SetPipeline(prog.compute[0])
		pass.DispatchWorkgroups(1, 1, 1)
		pass.SetPipeline(prog.compute[1])
		pass.DispatchWorkgroups(groups, 1, 1)
		pass.SetPipeline(prog.compute[2])
		pass.DispatchWorkgroups(1, 1, 1)
		if err := pass.End(); err != nil {
			return err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, q := range c.queries {
			if q.readback != readbackFree {
				continue
			}
			enc.CopyBufferToBuffer(dst.Meta, 0, q.Readback, 0, 8)
			q.state = queryCopied
		}
		return nil
	})
}

func (c *Context) ClearRenderTarget(t core.RenderTarget, color mgl32.Vec4) {
	tgt, ok := t.(target)
	if !ok {
		return
	}
	_ = c.submit("clear "+t.Label(), func(enc *wgpu.CommandEncoder) error {
		pass := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:       tgt.colorView(),
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: colorOf(color),
			}},
		})
		return pass.End()
	})
}

func (c *Context) CopyBuffer(dst, src core.Buffer) error {
	d, s := asBuffer(dst), asBuffer(src)
	if c.mapped[d] {
		return fmt.Errorf("%w: copy into %s", core.ErrMapped, d.label)
	}
	size := s.Size()
	if d.Size() < size {
		size = d.Size()
	}
	return c.submit("copy "+s.label, func(enc *wgpu.CommandEncoder) error {
		enc.CopyBufferToBuffer(s.Buffer, 0, d.Buffer, 0, size)
		return nil
	})
}

// Map blocks until the staging buffer is readable. The slice is valid
// until Unmap.
func (c *Context) Map(b core.Buffer) ([]byte, error) {
	buf := asBuffer(b)
	if !buf.usage.Has(core.UsageStaging) {
		return nil, fmt.Errorf("gpu: %s is not CPU readable", buf.label)
	}
	if c.mapped[buf] {
		return nil, fmt.Errorf("%w: %s", core.ErrMapped, buf.label)
	}
	size := buf.Buffer.GetSize()
	done := false
	status := wgpu.BufferMapAsyncStatusSuccess
	buf.Buffer.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	for !done {
		c.dev.Device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("gpu: map %s failed: %v", buf.label, status)
	}
	if c.mapped == nil {
		c.mapped = make(map[*Buffer]bool)
	}
	c.mapped[buf] = true
	return buf.Buffer.GetMappedRange(0, uint(size)), nil
}

func (c *Context) Unmap(b core.Buffer) error {
	buf := asBuffer(b)
	if !c.mapped[buf] {
		return fmt.Errorf("%w: %s", core.ErrNotMapped, buf.label)
	}
	buf.Buffer.Unmap()
	delete(c.mapped, buf)
	return nil
}

func (c *Context) Begin(q core.Query) {
	qq := q.(*Query)
	c.mu.Lock()
	switch qq.readback {
	case readbackMapped:
		c.collect(qq)
	case readbackFailed:
		qq.readback = readbackFree
	}
	qq.state = queryOpen
	c.mu.Unlock()
	c.queries = append(c.queries, qq)
}

// End starts the asynchronous readback of whatever the bracket copied. When
// an earlier map is still pending nothing was copied and that map is left
// to deliver its result.
func (c *Context) End(q core.Query) {
	qq := q.(*Query)
	for i, open := range c.queries {
		if open == qq {
			c.queries = append(c.queries[:i], c.queries[i+1:]...)
			break
		}
	}
	c.mu.Lock()
	copied := qq.state == queryCopied
	qq.state = queryEnded
	if !copied {
		if qq.readback == readbackFree {
			qq.result = core.StreamStats{}
		}
		c.mu.Unlock()
		return
	}
	qq.readback = readbackMapping
	c.mu.Unlock()

	qq.Readback.MapAsync(wgpu.MapModeRead, 0, qq.Readback.GetSize(), func(status wgpu.BufferMapAsyncStatus) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if status == wgpu.BufferMapAsyncStatusSuccess {
			qq.readback = readbackMapped
		} else {
			qq.readback = readbackFailed
		}
	})
}

// collect reads a landed map and frees the readback buffer. c.mu must be held.
func (c *Context) collect(qq *Query) {
	data := qq.Readback.GetMappedRange(0, 8)
	qq.result = core.StreamStats{
		Needed:  uint64(binary.LittleEndian.Uint32(data[0:])),
		Written: uint64(binary.LittleEndian.Uint32(data[4:])),
	}
	qq.Readback.Unmap()
	qq.readback = readbackFree
}

func (c *Context) GetData(q core.Query) (core.StreamStats, bool, error) {
	qq := q.(*Query)
	c.mu.Lock()
	state, rb := qq.state, qq.readback
	c.mu.Unlock()
	if state != queryEnded {
		return core.StreamStats{}, false, errors.New("gpu: query was not ended")
	}

	if rb == readbackMapping {
		c.dev.Device.Poll(false, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch qq.readback {
	case readbackMapping:
		return core.StreamStats{}, false, nil
	case readbackMapped:
		c.collect(qq)
	case readbackFailed:
		qq.readback = readbackFree
		return core.StreamStats{}, false, fmt.Errorf("gpu: query %s readback failed", qq.label)
	}
	return qq.result, true, nil
}
