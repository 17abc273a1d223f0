package gpu

import (
	"fmt"

	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

type pipelineKey struct {
	blend    string
	cull     wgpu.CullMode
	format   wgpu.TextureFormat
	topology core.Topology
}

// Program is a compiled shader module. Simulate programs own one compute
// pipeline per entry point; visual programs build render pipelines on
// demand for each state and target format they are drawn with.
type Program struct {
	src    core.ProgramSource
	module *wgpu.ShaderModule

	computeLayout *wgpu.PipelineLayout
	compute       []*wgpu.ComputePipeline

	renderLayout *wgpu.PipelineLayout
	pipelines    map[pipelineKey]*wgpu.RenderPipeline
}

func (p *Program) Name() string           { return p.src.Name }
func (p *Program) Kind() core.ProgramKind { return p.src.Kind }

func (p *Program) Release() {
	for _, cp := range p.compute {
		cp.Release()
	}
	p.compute = nil
	for k, rp := range p.pipelines {
		rp.Release()
		delete(p.pipelines, k)
	}
	if p.computeLayout != nil {
		p.computeLayout.Release()
		p.computeLayout = nil
	}
	if p.renderLayout != nil {
		p.renderLayout.Release()
		p.renderLayout = nil
	}
	if p.module != nil {
		p.module.Release()
		p.module = nil
	}
}

func (p *Program) buildCompute(d *Device) error {
	var err error
	p.computeLayout, err = d.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.src.Name,
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.ComputeLayout},
	})
	if err != nil {
		return err
	}
	for _, entry := range p.src.Compute {
		cp, err := d.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  p.src.Name + "." + entry,
			Layout: p.computeLayout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     p.module,
				EntryPoint: entry,
			},
		})
		if err != nil {
			return fmt.Errorf("pipeline %s.%s: %w", p.src.Name, entry, err)
		}
		p.compute = append(p.compute, cp)
	}
	if len(p.compute) != 3 {
		return fmt.Errorf("program %s: want prepare/simulate/finalize entry points, got %d", p.src.Name, len(p.compute))
	}
	return nil
}

func (p *Program) renderPipeline(d *Device, b *core.PassBinding, layout core.VertexLayout, topology core.Topology, format wgpu.TextureFormat) (*wgpu.RenderPipeline, error) {
	key := pipelineKey{blend: b.Blend.Name, cull: cullMode(b.Raster), format: format, topology: topology}
	if rp, ok := p.pipelines[key]; ok {
		return rp, nil
	}
	if p.renderLayout == nil {
		var err error
		p.renderLayout, err = d.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
			Label:            p.src.Name,
			BindGroupLayouts: []*wgpu.BindGroupLayout{d.VisualLayout},
		})
		if err != nil {
			return nil, err
		}
	}
	rp, err := d.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("%s/%s", p.src.Name, b.Blend.Name),
		Layout: p.renderLayout,
		Vertex: wgpu.VertexState{
			Module:     p.module,
			EntryPoint: p.src.Vertex,
			Buffers:    []wgpu.VertexBufferLayout{vertexBufferLayout(layout, topology)},
		},
		Fragment: &wgpu.FragmentState{
			Module:     p.module,
			EntryPoint: p.src.Fragment,
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				Blend:     blendState(b.Blend),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  key.cull,
		},
		// Particle targets have no depth attachment.
		DepthStencil: nil,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.src.Name, err)
	}
	p.pipelines[key] = rp
	return rp, nil
}
