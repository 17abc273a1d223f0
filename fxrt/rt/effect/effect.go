package effect

import (
	"errors"
	"fmt"

	"github.com/gekko3d/firefx/fxrt/rt/core"
	"github.com/gekko3d/firefx/fxrt/rt/shaders"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnknownPass  = errors.New("unknown effect pass")
	ErrNoPass       = errors.New("no effect pass selected")
	ErrUnknownState = errors.New("unknown render state")
)

// Pass names.
const (
	PassStreamOutput = "StreamOutput"
	PassRender       = "Render"
	PassRenderSmoke  = "RenderSmoke"
	PassComposite    = "RenderToBackBuffer"
)

// CompositeIndexCount is the index count of the composite quad.
const CompositeIndexCount = 6

// ProgramLoader compiles programs and reports their record signatures.
type ProgramLoader interface {
	Load(dev core.Device, name string) (core.Program, error)
	StreamSignature(name string) (core.VertexLayout, error)
	InputSignature(name string) (core.VertexLayout, error)
}

type Desc struct {
	Name string
	// WithSmoke builds the dual-population pass set.
	WithSmoke    bool
	Flags        core.EffectFlags
	EmitSpeed    float32
	ParticleSize [2]float32
}

// InputData tells the caller how to bind vertex input for the selected pass.
type InputData struct {
	Layout     core.VertexLayout
	Topology   core.Topology
	Stride     uint32
	Offset     uint32
	IndexCount uint32
}

type pass struct {
	name     string
	program  core.Program
	topology core.Topology
	indexed  bool
	blend    core.BlendState
	depth    core.DepthStencilState
	raster   core.RasterizerState
}

// Effect owns the compiled passes of one particle effect and the
// parameters staged for them. It holds no particle data.
type Effect struct {
	name    string
	desc    Desc
	states  *core.RenderStates
	layout  core.VertexLayout
	passes  map[string]*pass
	order   []string
	current *pass

	frame    core.FrameParams
	emit     core.EmitParams
	textures [core.NumTextureSlots]core.Texture
	pending  bool
}

// New compiles the pass set described by desc and checks that the simulate
// output matches every visual input.
func New(dev core.Device, loader ProgramLoader, states *core.RenderStates, desc Desc) (*Effect, error) {
	if states == nil {
		return nil, errors.New("effect: nil render states")
	}
	if desc.EmitSpeed == 0 {
		desc.EmitSpeed = 1
	}
	if desc.ParticleSize == [2]float32{} {
		desc.ParticleSize = [2]float32{1, 1}
	}
	e := &Effect{
		name:   desc.Name,
		desc:   desc,
		states: states,
		layout: core.ParticleLayout(),
		passes: make(map[string]*pass),
		frame: core.FrameParams{
			View: mgl32.Ident4(),
			Proj: mgl32.Ident4(),
		},
	}

	if err := e.validateLayout(loader, desc.WithSmoke); err != nil {
		return nil, err
	}

	type spec struct {
		pass, program, blend, depth string
		topology                    core.Topology
		indexed                     bool
	}
	specs := []spec{
		{PassStreamOutput, shaders.ProgramSimulate, core.BlendOpaque, core.DepthNoDepthTest, core.TopologyPointList, false},
		{PassRender, shaders.ProgramRender, core.BlendAlphaWeightedAdditive, core.DepthNoDepthWrite, core.TopologyPointList, false},
	}
	if desc.WithSmoke {
		specs = append(specs,
			spec{PassRenderSmoke, shaders.ProgramRenderSmoke, core.BlendInvMul, core.DepthNoDepthWrite, core.TopologyPointList, false},
			spec{PassComposite, shaders.ProgramComposite, core.BlendOpaque, core.DepthNoDepthTest, core.TopologyTriangleList, true},
		)
	}
	raster, _ := states.Rasterizer(core.RasterNoCull)
	for _, s := range specs {
		prog, err := loader.Load(dev, s.program)
		if err != nil {
			e.Release()
			return nil, fmt.Errorf("effect %s: pass %s: %w", desc.Name, s.pass, err)
		}
		blend, ok := states.Blend(s.blend)
		if !ok {
			e.Release()
			return nil, fmt.Errorf("%w: %s", ErrUnknownState, s.blend)
		}
		depth, ok := states.DepthStencil(s.depth)
		if !ok {
			e.Release()
			return nil, fmt.Errorf("%w: %s", ErrUnknownState, s.depth)
		}
		e.passes[s.pass] = &pass{
			name:     s.pass,
			program:  prog,
			topology: s.topology,
			indexed:  s.indexed,
			blend:    blend,
			depth:    depth,
			raster:   raster,
		}
		e.order = append(e.order, s.pass)
	}
	return e, nil
}

func (e *Effect) validateLayout(loader ProgramLoader, withSmoke bool) error {
	out, err := loader.StreamSignature(shaders.ProgramSimulate)
	if err != nil {
		return fmt.Errorf("effect %s: %w", e.name, err)
	}
	if err := e.layout.Compare(out); err != nil {
		return fmt.Errorf("%w: simulate output: %v", core.ErrLayoutMismatch, err)
	}
	visual := []string{shaders.ProgramRender}
	if withSmoke {
		visual = append(visual, shaders.ProgramRenderSmoke, shaders.ProgramComposite)
	}
	for _, name := range visual {
		in, err := loader.InputSignature(name)
		if err != nil {
			return fmt.Errorf("effect %s: %w", e.name, err)
		}
		if err := out.Compare(in); err != nil {
			return fmt.Errorf("%w: %s input: %v", core.ErrLayoutMismatch, name, err)
		}
	}
	return nil
}

func (e *Effect) Name() string { return e.name }

// WithSmoke reports whether the dual-population passes exist.
func (e *Effect) WithSmoke() bool { return e.desc.WithSmoke }

// Passes lists pass names in creation order.
func (e *Effect) Passes() []string { return append([]string(nil), e.order...) }

func (e *Effect) Release() {
	for _, p := range e.passes {
		p.program.Release()
	}
	e.passes = map[string]*pass{}
	e.order = nil
	e.current = nil
}

func (e *Effect) inputData(p *pass) InputData {
	in := InputData{
		Layout:   e.layout,
		Topology: p.topology,
		Stride:   e.layout.Stride,
	}
	if p.indexed {
		in.IndexCount = CompositeIndexCount
	}
	return in
}

// SelectSimulatePass makes the stream-output pass current.
func (e *Effect) SelectSimulatePass() InputData {
	p := e.passes[PassStreamOutput]
	e.current = p
	return e.inputData(p)
}

// SelectVisualPass makes a visual pass current.
func (e *Effect) SelectVisualPass(name string) (InputData, error) {
	p, ok := e.passes[name]
	if !ok || name == PassStreamOutput {
		return InputData{}, fmt.Errorf("%w: %s", ErrUnknownPass, name)
	}
	e.current = p
	return e.inputData(p), nil
}

// CurrentPass returns the selected pass name, or "".
func (e *Effect) CurrentPass() string {
	if e.current == nil {
		return ""
	}
	return e.current.name
}

func (e *Effect) lookup(name string) (*pass, error) {
	p, ok := e.passes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPass, name)
	}
	return p, nil
}

// SetBlendState assigns a registry blend state to a pass.
func (e *Effect) SetBlendState(passName, state string) error {
	p, err := e.lookup(passName)
	if err != nil {
		return err
	}
	b, ok := e.states.Blend(state)
	if !ok {
		return fmt.Errorf("%w: blend %s", ErrUnknownState, state)
	}
	p.blend = b
	e.pending = true
	return nil
}

func (e *Effect) SetDepthStencilState(passName, state string) error {
	p, err := e.lookup(passName)
	if err != nil {
		return err
	}
	d, ok := e.states.DepthStencil(state)
	if !ok {
		return fmt.Errorf("%w: depth %s", ErrUnknownState, state)
	}
	p.depth = d
	e.pending = true
	return nil
}

func (e *Effect) SetRasterizerState(passName, state string) error {
	p, err := e.lookup(passName)
	if err != nil {
		return err
	}
	r, ok := e.states.Rasterizer(state)
	if !ok {
		return fmt.Errorf("%w: raster %s", ErrUnknownState, state)
	}
	p.raster = r
	e.pending = true
	return nil
}

// BlendState reports the blend state name of a pass.
func (e *Effect) BlendState(passName string) string {
	if p, ok := e.passes[passName]; ok {
		return p.blend.Name
	}
	return ""
}
