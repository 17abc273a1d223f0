package gpu

import (
	"encoding/binary"

	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

// streamMetaSize is the size of the count record kept next to every
// particle buffer: {needed, written, pad, pad} followed by the indirect
// draw args {vertex_count, instance_count, first_vertex, first_instance}.
const (
	streamMetaSize       = 32
	streamMetaIndirectAt = 16
	billboardVertices    = 6
)

func streamMeta(written uint32) []byte {
	b := make([]byte, streamMetaSize)
	binary.LittleEndian.PutUint32(b[0:], written)
	binary.LittleEndian.PutUint32(b[4:], written)
	binary.LittleEndian.PutUint32(b[16:], billboardVertices)
	binary.LittleEndian.PutUint32(b[20:], written)
	return b
}

// Buffer is a GPU buffer. Particle buffers carry a meta buffer holding the
// record count written by the last simulate pass.
type Buffer struct {
	label  string
	usage  core.BufferUsage
	Buffer *wgpu.Buffer
	Meta   *wgpu.Buffer
	mapped bool
}

func (b *Buffer) Label() string         { return b.label }
func (b *Buffer) SetLabel(label string) { b.label = label }
func (b *Buffer) Size() uint64          { return b.Buffer.GetSize() }

func (b *Buffer) Release() {
	if b.Buffer != nil {
		b.Buffer.Release()
		b.Buffer = nil
	}
	if b.Meta != nil {
		b.Meta.Release()
		b.Meta = nil
	}
}

func (b *Buffer) records() uint32 {
	return uint32(b.Buffer.GetSize() / core.ParticleStride)
}

// queryState tracks one Begin/End bracket.
type queryState int

const (
	queryIdle queryState = iota
	queryOpen
	queryCopied
	queryEnded
)

// readbackState tracks the readback buffer. A map still pending after a poll
// timed out outlives its bracket: later brackets skip the copy and the late
// result is delivered when it lands.
type readbackState int

const (
	readbackFree readbackState = iota
	readbackMapping
	readbackMapped
	readbackFailed
)

// Query reads back the meta record of the stream target written while open.
type Query struct {
	label    string
	Readback *wgpu.Buffer
	state    queryState
	readback readbackState
	result   core.StreamStats
}

func (q *Query) Release() {
	if q.Readback != nil {
		q.Readback.Release()
		q.Readback = nil
	}
}

type Texture struct {
	label   string
	Texture *wgpu.Texture
	View    *wgpu.TextureView
}

func (t *Texture) Label() string { return t.label }

func (t *Texture) Release() {
	if t.View != nil {
		t.View.Release()
		t.View = nil
	}
	if t.Texture != nil {
		t.Texture.Release()
		t.Texture = nil
	}
}

type target interface {
	core.RenderTarget
	colorView() *wgpu.TextureView
	format() wgpu.TextureFormat
}

// Target is an offscreen surface that visual passes draw into and the
// composite pass samples.
type Target struct {
	Texture
	width, height uint32
	fmt           wgpu.TextureFormat
}

func (t *Target) Size() (width, height uint32) { return t.width, t.height }
func (t *Target) colorView() *wgpu.TextureView { return t.View }
func (t *Target) format() wgpu.TextureFormat   { return t.fmt }

// SurfaceTarget wraps the current swapchain view. It is valid for one frame.
type SurfaceTarget struct {
	label         string
	view          *wgpu.TextureView
	fmt           wgpu.TextureFormat
	width, height uint32
}

func NewSurfaceTarget(label string, view *wgpu.TextureView, format wgpu.TextureFormat, width, height uint32) *SurfaceTarget {
	return &SurfaceTarget{label: label, view: view, fmt: format, width: width, height: height}
}

func (s *SurfaceTarget) Label() string                { return s.label }
func (s *SurfaceTarget) Size() (width, height uint32) { return s.width, s.height }
func (s *SurfaceTarget) colorView() *wgpu.TextureView { return s.view }
func (s *SurfaceTarget) format() wgpu.TextureFormat   { return s.fmt }
