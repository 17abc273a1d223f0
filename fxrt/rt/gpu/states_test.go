package gpu

import (
	"encoding/binary"
	"testing"

	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlendStateMapping(t *testing.T) {
	rs := core.NewRenderStates()

	opaque, _ := rs.Blend(core.BlendOpaque)
	assert.Nil(t, blendState(opaque))

	additive, _ := rs.Blend(core.BlendAlphaWeightedAdditive)
	b := blendState(additive)
	require.NotNil(t, b)
	assert.Equal(t, wgpu.BlendFactorSrcAlpha, b.Color.SrcFactor)
	assert.Equal(t, wgpu.BlendFactorOne, b.Color.DstFactor)
	assert.Equal(t, wgpu.BlendOperationAdd, b.Color.Operation)

	invMul, _ := rs.Blend(core.BlendInvMul)
	b = blendState(invMul)
	require.NotNil(t, b)
	assert.Equal(t, wgpu.BlendFactorZero, b.Color.SrcFactor)
	assert.Equal(t, wgpu.BlendFactorSrc, b.Color.DstFactor)
}

func TestCullMode(t *testing.T) {
	rs := core.NewRenderStates()
	def, _ := rs.Rasterizer(core.RasterDefault)
	none, _ := rs.Rasterizer(core.RasterNoCull)
	assert.Equal(t, wgpu.CullModeBack, cullMode(def))
	assert.Equal(t, wgpu.CullModeNone, cullMode(none))
}

func TestVertexBufferLayout(t *testing.T) {
	l := core.ParticleLayout()
	points := vertexBufferLayout(l, core.TopologyPointList)
	assert.Equal(t, uint64(core.ParticleStride), points.ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeInstance, points.StepMode)
	require.Len(t, points.Attributes, len(l.Attributes))

	for i, a := range l.Attributes {
		assert.Equal(t, uint64(a.Offset), points.Attributes[i].Offset, a.Name)
		assert.Equal(t, a.Location, points.Attributes[i].ShaderLocation, a.Name)
	}
	assert.Equal(t, wgpu.VertexFormatFloat32x3, points.Attributes[0].Format)
	assert.Equal(t, wgpu.VertexFormatUint32, points.Attributes[len(l.Attributes)-1].Format)

	quad := vertexBufferLayout(l, core.TopologyTriangleList)
	assert.Equal(t, wgpu.VertexStepModeVertex, quad.StepMode)
}

func TestStreamMeta(t *testing.T) {
	b := streamMeta(1)
	require.Len(t, b, streamMetaSize)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[0:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, uint32(billboardVertices), binary.LittleEndian.Uint32(b[streamMetaIndirectAt:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[streamMetaIndirectAt+4:]))
}

func TestColorOf(t *testing.T) {
	c := colorOf(mgl32.Vec4{0.25, 0.5, 0.75, 1})
	assert.Equal(t, wgpu.Color{R: 0.25, G: 0.5, B: 0.75, A: 1}, c)
}

func TestAllocErr(t *testing.T) {
	err := allocErr("DrawVB", assert.AnError)
	assert.NotErrorIs(t, err, core.ErrOutOfMemory)
	assert.ErrorIs(t, err, assert.AnError)

	err = allocErr("DrawVB", errTest("Device::create_buffer: Not enough memory left (out of memory)"))
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
}

type errTest string

func (e errTest) Error() string { return string(e) }
