package gputest

import (
	"errors"
	"fmt"

	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

type OpKind string

const (
	OpApply       OpKind = "apply"
	OpSimulate    OpKind = "simulate"
	OpDraw        OpKind = "draw"
	OpDrawIndexed OpKind = "draw_indexed"
	OpClear       OpKind = "clear"
	OpCopy        OpKind = "copy"
	OpMap         OpKind = "map"
	OpUnmap       OpKind = "unmap"
	OpBegin       OpKind = "begin"
	OpEnd         OpKind = "end"
)

// Op is one recorded command.
type Op struct {
	Kind   OpKind
	Pass   string
	Buffer string
	Output string
	Target string
	Count  uint64
	Auto   bool
	Color  mgl32.Vec4
}

// Context implements core.Context against host buffers.
type Context struct {
	dev *Device

	binding  *core.PassBinding
	topology core.Topology
	layout   core.VertexLayout
	vertex   *Buffer
	index    *Buffer
	stream   *Buffer
	target   core.RenderTarget
	queries  []*Query

	ops []Op
	// Bindings keeps every applied binding in order.
	Bindings []core.PassBinding
}

func (c *Context) Ops() []Op { return c.ops }

func (c *Context) ResetOps() {
	c.ops = nil
	c.Bindings = nil
}

// OpsOf filters the log by kind.
func (c *Context) OpsOf(kind OpKind) []Op {
	var out []Op
	for _, op := range c.ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

func (c *Context) ApplyPass(b *core.PassBinding) error {
	if b == nil || b.Program == nil {
		return errors.New("gputest: apply without program")
	}
	cp := *b
	c.binding = &cp
	c.Bindings = append(c.Bindings, cp)
	c.ops = append(c.ops, Op{Kind: OpApply, Pass: b.Pass})
	return nil
}

func (c *Context) SetPrimitiveTopology(t core.Topology) { c.topology = t }
func (c *Context) SetInputLayout(l core.VertexLayout)   { c.layout = l }
func (c *Context) SetRenderTarget(t core.RenderTarget)  { c.target = t }

func asBuffer(b core.Buffer) *Buffer {
	if b == nil {
		return nil
	}
	return b.(*Buffer)
}

func (c *Context) SetVertexBuffer(b core.Buffer, stride, offset uint32) { c.vertex = asBuffer(b) }
func (c *Context) SetIndexBuffer(b core.Buffer)                         { c.index = asBuffer(b) }
func (c *Context) SetStreamTarget(b core.Buffer)                        { c.stream = asBuffer(b) }

func (c *Context) checkUnmapped() error {
	for _, b := range c.dev.buffers {
		if b.mapped {
			return fmt.Errorf("%w during draw: %s", core.ErrMapped, b.label)
		}
	}
	return nil
}

func (c *Context) Draw(count uint32) error {
	return c.draw(count, false)
}

func (c *Context) DrawAuto() error {
	return c.draw(0, true)
}

func (c *Context) draw(count uint32, auto bool) error {
	if c.binding == nil {
		return errors.New("gputest: draw without applied pass")
	}
	if c.vertex == nil {
		return errors.New("gputest: draw without vertex buffer")
	}
	if err := c.checkUnmapped(); err != nil {
		return err
	}
	if auto {
		count = c.vertex.written
	}
	if c.stream != nil {
		return c.simulate(count, auto)
	}
	if c.binding.Program.Kind() == core.ProgramSimulate {
		return errors.New("gputest: simulate pass without stream target")
	}
	if c.target == nil {
		return errors.New("gputest: draw without render target")
	}
	c.ops = append(c.ops, Op{
		Kind:   OpDraw,
		Pass:   c.binding.Pass,
		Buffer: c.vertex.label,
		Target: c.target.Label(),
		Count:  uint64(count),
		Auto:   auto,
	})
	return nil
}

func (c *Context) simulate(limit uint32, auto bool) error {
	if c.binding.Program.Kind() != core.ProgramSimulate {
		return fmt.Errorf("gputest: pass %s cannot write a stream target", c.binding.Pass)
	}
	if c.stream == c.vertex {
		return errors.New("gputest: stream target is also the input")
	}
	n := int(c.vertex.written)
	if int(limit) < n {
		n = int(limit)
	}
	src := core.DecodeParticles(c.vertex.data, n)

	var random []float32
	if t, ok := c.binding.Textures[core.SlotRandom].(*Texture); ok {
		random = t.Texels
	}
	capacity := len(c.stream.data) / core.ParticleStride
	out, needed := Simulate(c.binding.Uniforms, random, src, capacity)

	copy(c.stream.data, core.EncodeParticles(out))
	c.stream.written = uint32(len(out))
	c.stream.needed = uint32(needed)

	for _, q := range c.queries {
		if q.open && !q.pending {
			q.bracket.Written += uint64(len(out))
			q.bracket.Needed += uint64(needed)
		}
	}
	c.ops = append(c.ops, Op{
		Kind:   OpSimulate,
		Pass:   c.binding.Pass,
		Buffer: c.vertex.label,
		Output: c.stream.label,
		Count:  uint64(len(out)),
		Auto:   auto,
	})
	return nil
}

func (c *Context) DrawIndexed(count uint32) error {
	if c.binding == nil || c.index == nil || c.vertex == nil {
		return errors.New("gputest: indexed draw without pass, index or vertex buffer")
	}
	if c.target == nil {
		return errors.New("gputest: draw without render target")
	}
	if err := c.checkUnmapped(); err != nil {
		return err
	}
	c.ops = append(c.ops, Op{
		Kind:   OpDrawIndexed,
		Pass:   c.binding.Pass,
		Buffer: c.vertex.label,
		Target: c.target.Label(),
		Count:  uint64(count),
	})
	return nil
}

func (c *Context) ClearRenderTarget(t core.RenderTarget, color mgl32.Vec4) {
	if tt, ok := t.(*Target); ok {
		tt.Clears++
	}
	c.ops = append(c.ops, Op{Kind: OpClear, Target: t.Label(), Color: color})
}

func (c *Context) CopyBuffer(dst, src core.Buffer) error {
	d, s := asBuffer(dst), asBuffer(src)
	if d.mapped {
		return fmt.Errorf("%w: copy into %s", core.ErrMapped, d.label)
	}
	copy(d.data, s.data)
	d.written = s.written
	c.ops = append(c.ops, Op{Kind: OpCopy, Buffer: s.label, Output: d.label})
	return nil
}

func (c *Context) Map(b core.Buffer) ([]byte, error) {
	buf := asBuffer(b)
	if !buf.usage.Has(core.UsageStaging) {
		return nil, fmt.Errorf("gputest: %s is not CPU readable", buf.label)
	}
	if buf.mapped {
		return nil, fmt.Errorf("%w: %s", core.ErrMapped, buf.label)
	}
	buf.mapped = true
	c.ops = append(c.ops, Op{Kind: OpMap, Buffer: buf.label})
	return buf.data, nil
}

func (c *Context) Unmap(b core.Buffer) error {
	buf := asBuffer(b)
	if !buf.mapped {
		return fmt.Errorf("%w: %s", core.ErrNotMapped, buf.label)
	}
	buf.mapped = false
	c.ops = append(c.ops, Op{Kind: OpUnmap, Buffer: buf.label})
	return nil
}

func (c *Context) Begin(q core.Query) {
	qq := q.(*Query)
	qq.open, qq.ended = true, false
	qq.bracket = core.StreamStats{}
	c.queries = append(c.queries, qq)
	c.ops = append(c.ops, Op{Kind: OpBegin})
}

func (c *Context) End(q core.Query) {
	qq := q.(*Query)
	qq.open, qq.ended = false, true
	for i, open := range c.queries {
		if open == qq {
			c.queries = append(c.queries[:i], c.queries[i+1:]...)
			break
		}
	}
	if !qq.pending {
		qq.pending, qq.inflight, qq.polls = true, qq.bracket, 0
		qq.started++
	}
	c.ops = append(c.ops, Op{Kind: OpEnd})
}

func (c *Context) GetData(q core.Query) (core.StreamStats, bool, error) {
	qq := q.(*Query)
	if !qq.ended {
		return core.StreamStats{}, false, errors.New("gputest: query was not ended")
	}
	if !qq.pending {
		return qq.result, true, nil
	}
	if c.dev.queryLatency < 0 {
		return core.StreamStats{}, false, nil
	}
	qq.polls++
	if qq.polls <= c.dev.queryLatency {
		return core.StreamStats{}, false, nil
	}
	qq.pending = false
	qq.result = qq.inflight
	return qq.result, true, nil
}
