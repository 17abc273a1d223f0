package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderStatesRegistry(t *testing.T) {
	rs := NewRenderStates()

	b, ok := rs.Blend(BlendAlphaWeightedAdditive)
	require.True(t, ok)
	assert.True(t, b.Enabled)
	assert.Equal(t, BlendSrcAlpha, b.Color.Src)
	assert.Equal(t, BlendOne, b.Color.Dst)

	inv, ok := rs.Blend(BlendInvMul)
	require.True(t, ok)
	assert.Equal(t, BlendZero, inv.Color.Src)
	assert.Equal(t, BlendSrcColor, inv.Color.Dst)

	d, ok := rs.DepthStencil(DepthNoDepthWrite)
	require.True(t, ok)
	assert.True(t, d.DepthTest)
	assert.False(t, d.DepthWrite)

	_, ok = rs.Rasterizer(RasterNoCull)
	assert.True(t, ok)

	_, ok = rs.Blend("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{
		BlendAdditive, BlendAlphaWeightedAdditive, BlendInvMul, BlendOpaque, BlendTransparent,
	}, rs.BlendNames())
}

func TestRenderStatesLookupsReturnCopies(t *testing.T) {
	rs := NewRenderStates()
	b, _ := rs.Blend(BlendAdditive)
	b.Enabled = false
	again, _ := rs.Blend(BlendAdditive)
	assert.True(t, again.Enabled)
}
