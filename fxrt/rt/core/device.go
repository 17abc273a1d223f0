package core

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrOutOfMemory    = errors.New("gpu: allocation rejected")
	ErrLayoutMismatch = errors.New("particle layout mismatch")
	ErrMapped         = errors.New("buffer is mapped")
	ErrNotMapped      = errors.New("buffer is not mapped")
)

type BufferUsage uint32

const (
	UsageVertex BufferUsage = 1 << iota
	UsageStreamOut
	UsageIndex
	UsageStaging
)

func (u BufferUsage) Has(flag BufferUsage) bool { return u&flag != 0 }

type BufferDesc struct {
	Label    string
	Usage    BufferUsage
	Size     uint64
	Contents []byte
}

type Buffer interface {
	Label() string
	SetLabel(label string)
	Size() uint64
	Release()
}

// Query counts primitives written by the stream target bound while it is open.
type Query interface {
	Release()
}

// StreamStats is the result of a stream-output statistics query.
type StreamStats struct {
	Written uint64
	Needed  uint64
}

func (s StreamStats) Dropped() uint64 {
	if s.Needed > s.Written {
		return s.Needed - s.Written
	}
	return 0
}

// Texture is a readable image handle. Core code never decodes images.
type Texture interface {
	Label() string
}

// RenderTarget is a surface a visual pass can draw into.
type RenderTarget interface {
	Label() string
	Size() (width, height uint32)
}

// OffscreenTarget can be drawn into and later sampled.
type OffscreenTarget interface {
	RenderTarget
	Texture
	Release()
}

type ProgramKind uint8

const (
	ProgramSimulate ProgramKind = iota
	ProgramVisual
	ProgramComposite
)

func (k ProgramKind) String() string {
	switch k {
	case ProgramSimulate:
		return "simulate"
	case ProgramVisual:
		return "visual"
	case ProgramComposite:
		return "composite"
	}
	return "unknown"
}

// ProgramSource names one compiled program and its entry points. SPIRV,
// when set, is a cached binary of Code that devices may use instead.
type ProgramSource struct {
	Name     string
	Kind     ProgramKind
	Code     string
	Compute  []string
	Vertex   string
	Fragment string
	SPIRV    []byte
}

type Program interface {
	Name() string
	Kind() ProgramKind
	Release()
}

type Device interface {
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateQuery(label string) (Query, error)
	CreateProgram(src ProgramSource) (Program, error)
	CreateRenderTarget(label string, width, height uint32) (OffscreenTarget, error)
}

type Topology uint8

const (
	TopologyPointList Topology = iota
	TopologyTriangleList
)

func (t Topology) String() string {
	if t == TopologyPointList {
		return "point-list"
	}
	return "triangle-list"
}

type TextureSlot uint8

const (
	SlotInput TextureSlot = iota
	SlotRandom
	SlotAsh
	SlotPrimary
	SlotSmoke
	NumTextureSlots
)

// PassBinding is everything Apply pushes for the bound pass.
type PassBinding struct {
	Pass     string
	Program  Program
	Blend    BlendState
	Depth    DepthStencilState
	Raster   RasterizerState
	Uniforms FrameUniforms
	Textures [NumTextureSlots]Texture
}

// Context records commands in submission order. Implementations are not
// safe for concurrent use.
type Context interface {
	ApplyPass(b *PassBinding) error

	SetPrimitiveTopology(t Topology)
	SetInputLayout(l VertexLayout)
	SetVertexBuffer(b Buffer, stride, offset uint32)
	SetIndexBuffer(b Buffer)
	SetStreamTarget(b Buffer)

	Draw(count uint32) error
	DrawAuto() error
	DrawIndexed(count uint32) error

	SetRenderTarget(t RenderTarget)
	ClearRenderTarget(t RenderTarget, color mgl32.Vec4)

	CopyBuffer(dst, src Buffer) error
	Map(b Buffer) ([]byte, error)
	Unmap(b Buffer) error

	Begin(q Query)
	End(q Query)
	// GetData never blocks. ready is false until the result is available.
	GetData(q Query) (stats StreamStats, ready bool, err error)
}

// TextureSource resolves logical texture names.
type TextureSource interface {
	Texture(name string) (Texture, bool)
}
