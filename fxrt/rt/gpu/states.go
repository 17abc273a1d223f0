package gpu

import (
	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

func blendFactor(f core.BlendFactor) wgpu.BlendFactor {
	switch f {
	case core.BlendOne:
		return wgpu.BlendFactorOne
	case core.BlendSrcAlpha:
		return wgpu.BlendFactorSrcAlpha
	case core.BlendOneMinusSrcAlpha:
		return wgpu.BlendFactorOneMinusSrcAlpha
	case core.BlendSrcColor:
		return wgpu.BlendFactorSrc
	case core.BlendOneMinusSrcColor:
		return wgpu.BlendFactorOneMinusSrc
	case core.BlendDstColor:
		return wgpu.BlendFactorDst
	}
	return wgpu.BlendFactorZero
}

func blendOp(op core.BlendOp) wgpu.BlendOperation {
	if op == core.BlendOpSubtract {
		return wgpu.BlendOperationSubtract
	}
	return wgpu.BlendOperationAdd
}

func blendComponent(c core.BlendComponent) wgpu.BlendComponent {
	return wgpu.BlendComponent{
		SrcFactor: blendFactor(c.Src),
		DstFactor: blendFactor(c.Dst),
		Operation: blendOp(c.Op),
	}
}

// blendState returns nil for disabled blending, which wgpu treats as replace.
func blendState(b core.BlendState) *wgpu.BlendState {
	if !b.Enabled {
		return nil
	}
	return &wgpu.BlendState{
		Color: blendComponent(b.Color),
		Alpha: blendComponent(b.Alpha),
	}
}

func cullMode(r core.RasterizerState) wgpu.CullMode {
	if r.Cull == core.CullBack {
		return wgpu.CullModeBack
	}
	return wgpu.CullModeNone
}

func vertexFormat(f core.VertexFormat) wgpu.VertexFormat {
	switch f {
	case core.FormatFloat32:
		return wgpu.VertexFormatFloat32
	case core.FormatFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case core.FormatFloat32x3:
		return wgpu.VertexFormatFloat32x3
	case core.FormatFloat32x4:
		return wgpu.VertexFormatFloat32x4
	case core.FormatUint32:
		return wgpu.VertexFormatUint32
	}
	return wgpu.VertexFormatUndefined
}

// vertexBufferLayout maps a particle layout to one wgpu vertex stream.
// Point lists are drawn as instanced billboards, so each record is an instance.
func vertexBufferLayout(l core.VertexLayout, topology core.Topology) wgpu.VertexBufferLayout {
	attrs := make([]wgpu.VertexAttribute, len(l.Attributes))
	for i, a := range l.Attributes {
		attrs[i] = wgpu.VertexAttribute{
			Format:         vertexFormat(a.Format),
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		}
	}
	step := wgpu.VertexStepModeVertex
	if topology == core.TopologyPointList {
		step = wgpu.VertexStepModeInstance
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: uint64(l.Stride),
		StepMode:    step,
		Attributes:  attrs,
	}
}

func colorOf(c [4]float32) wgpu.Color {
	return wgpu.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
}
