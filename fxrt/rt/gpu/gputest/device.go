// Package gputest provides an in-memory device that records commands and
// runs the simulate program on the CPU. It exists for tests only.
package gputest

import (
	"errors"
	"fmt"

	"github.com/gekko3d/firefx/fxrt/rt/core"
)

// Buffer is a host-memory buffer.
type Buffer struct {
	label    string
	usage    core.BufferUsage
	data     []byte
	written  uint32
	needed   uint32
	mapped   bool
	released bool
}

func (b *Buffer) Label() string         { return b.label }
func (b *Buffer) SetLabel(label string) { b.label = label }
func (b *Buffer) Size() uint64          { return uint64(len(b.data)) }
func (b *Buffer) Release()              { b.released = true }
func (b *Buffer) Usage() core.BufferUsage {
	return b.usage
}

// Data exposes the raw contents.
func (b *Buffer) Data() []byte { return b.data }

// Written is the record count of the last stream-out pass into b.
func (b *Buffer) Written() uint32 { return b.written }
func (b *Buffer) Mapped() bool    { return b.mapped }
func (b *Buffer) Released() bool  { return b.released }

// Particles decodes the written prefix.
func (b *Buffer) Particles() []core.Particle {
	return core.DecodeParticles(b.data, int(b.written))
}

// Query models a readback buffer that stays busy until its result has been
// polled. Brackets that open while it is busy record nothing, and the late
// result is delivered to whoever polls next.
type Query struct {
	label    string
	open     bool
	ended    bool
	bracket  core.StreamStats
	pending  bool
	inflight core.StreamStats
	polls    int
	result   core.StreamStats
	started  int
	released bool
}

func (q *Query) Release() { q.released = true }

// Pending reports a readback that has not been delivered yet.
func (q *Query) Pending() bool { return q.pending }

// Readbacks is the number of readbacks started over the query's lifetime.
func (q *Query) Readbacks() int { return q.started }

type Program struct {
	src core.ProgramSource
}

func (p *Program) Name() string           { return p.src.Name }
func (p *Program) Kind() core.ProgramKind { return p.src.Kind }
func (p *Program) Release()               {}

// Target is an offscreen surface or a stand-in for a swapchain image.
type Target struct {
	label         string
	width, height uint32
	Clears        int
	released      bool
}

func NewTarget(label string, width, height uint32) *Target {
	return &Target{label: label, width: width, height: height}
}

func (t *Target) Label() string                { return t.label }
func (t *Target) Size() (width, height uint32) { return t.width, t.height }
func (t *Target) Release()                     { t.released = true }
func (t *Target) Released() bool               { return t.released }

// Texture holds optional RGBA32F texels used by the simulate kernel.
type Texture struct {
	label  string
	Texels []float32
}

func NewTexture(label string, texels []float32) *Texture {
	return &Texture{label: label, Texels: texels}
}

func (t *Texture) Label() string { return t.label }

// Textures is a name-keyed texture source.
type Textures map[string]core.Texture

func (s Textures) Texture(name string) (core.Texture, bool) {
	t, ok := s[name]
	return t, ok
}

type Option func(*Device)

// WithQueryLatency makes every query report ready only after n polls.
func WithQueryLatency(n int) Option {
	return func(d *Device) { d.queryLatency = n }
}

// WithQueryNeverReady makes queries never complete.
func WithQueryNeverReady() Option {
	return func(d *Device) { d.queryLatency = -1 }
}

// SetQueryLatency changes the latency of readbacks, including those in flight.
func (d *Device) SetQueryLatency(n int) { d.queryLatency = n }

// WithMemoryLimit rejects buffers larger than limit bytes.
func WithMemoryLimit(limit uint64) Option {
	return func(d *Device) { d.memoryLimit = limit }
}

// WithFailingProgram makes CreateProgram fail for name.
func WithFailingProgram(name string) Option {
	return func(d *Device) { d.failPrograms[name] = true }
}

// Device implements core.Device in host memory.
type Device struct {
	queryLatency int
	memoryLimit  uint64
	failPrograms map[string]bool

	buffers  []*Buffer
	programs []string
	binaries []string
	targets  []*Target
	ctx      *Context
}

func NewDevice(opts ...Option) *Device {
	d := &Device{failPrograms: make(map[string]bool)}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx = &Context{dev: d}
	return d
}

func (d *Device) Context() *Context { return d.ctx }

func (d *Device) Buffers() []*Buffer { return d.buffers }

func (d *Device) Programs() []string { return d.programs }

// Binaries lists the programs created from a cached SPIR-V binary.
func (d *Device) Binaries() []string { return d.binaries }

func (d *Device) CreateBuffer(desc core.BufferDesc) (core.Buffer, error) {
	if desc.Size == 0 && len(desc.Contents) == 0 {
		return nil, errors.New("gputest: zero-sized buffer")
	}
	size := desc.Size
	if uint64(len(desc.Contents)) > size {
		size = uint64(len(desc.Contents))
	}
	if d.memoryLimit > 0 && size > d.memoryLimit {
		return nil, fmt.Errorf("%w: %s needs %d bytes", core.ErrOutOfMemory, desc.Label, size)
	}
	b := &Buffer{label: desc.Label, usage: desc.Usage, data: make([]byte, size)}
	copy(b.data, desc.Contents)
	if desc.Usage.Has(core.UsageVertex) {
		b.written = uint32(len(desc.Contents) / core.ParticleStride)
	}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *Device) CreateQuery(label string) (core.Query, error) {
	return &Query{label: label}, nil
}

func (d *Device) CreateProgram(src core.ProgramSource) (core.Program, error) {
	if d.failPrograms[src.Name] {
		return nil, fmt.Errorf("gputest: compile %s failed", src.Name)
	}
	d.programs = append(d.programs, src.Name)
	if len(src.SPIRV) > 0 {
		d.binaries = append(d.binaries, src.Name)
	}
	return &Program{src: src}, nil
}

func (d *Device) CreateRenderTarget(label string, width, height uint32) (core.OffscreenTarget, error) {
	t := NewTarget(label, width, height)
	d.targets = append(d.targets, t)
	return t, nil
}
