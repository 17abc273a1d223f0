package core

import "sort"

type BlendFactor uint8

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
	BlendSrcColor
	BlendOneMinusSrcColor
	BlendDstColor
)

type BlendOp uint8

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
)

type BlendComponent struct {
	Src BlendFactor
	Dst BlendFactor
	Op  BlendOp
}

type BlendState struct {
	Name    string
	Enabled bool
	Color   BlendComponent
	Alpha   BlendComponent
}

type CompareFunc uint8

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareAlways
)

type DepthStencilState struct {
	Name       string
	DepthTest  bool
	DepthWrite bool
	Compare    CompareFunc
}

type CullMode uint8

const (
	CullNone CullMode = iota
	CullBack
)

type RasterizerState struct {
	Name string
	Cull CullMode
}

// Names of the shared states.
const (
	BlendOpaque                = "Opaque"
	BlendAlphaWeightedAdditive = "AlphaWeightedAdditive"
	BlendAdditive              = "Additive"
	BlendTransparent           = "Transparent"
	BlendInvMul                = "InvMul"

	DepthDefault      = "Default"
	DepthNoDepthWrite = "NoDepthWrite"
	DepthNoDepthTest  = "NoDepthTest"

	RasterDefault = "Default"
	RasterNoCull  = "NoCull"
)

// RenderStates is the registry of fixed-function states. It is built once
// by NewRenderStates and never mutated, so effects share it freely.
type RenderStates struct {
	blends  map[string]BlendState
	depths  map[string]DepthStencilState
	rasters map[string]RasterizerState
}

func NewRenderStates() *RenderStates {
	rs := &RenderStates{
		blends:  make(map[string]BlendState),
		depths:  make(map[string]DepthStencilState),
		rasters: make(map[string]RasterizerState),
	}
	for _, b := range []BlendState{
		{Name: BlendOpaque},
		{
			Name:    BlendAlphaWeightedAdditive,
			Enabled: true,
			Color:   BlendComponent{Src: BlendSrcAlpha, Dst: BlendOne, Op: BlendOpAdd},
			Alpha:   BlendComponent{Src: BlendZero, Dst: BlendZero, Op: BlendOpAdd},
		},
		{
			Name:    BlendAdditive,
			Enabled: true,
			Color:   BlendComponent{Src: BlendOne, Dst: BlendOne, Op: BlendOpAdd},
			Alpha:   BlendComponent{Src: BlendZero, Dst: BlendOne, Op: BlendOpAdd},
		},
		{
			Name:    BlendTransparent,
			Enabled: true,
			Color:   BlendComponent{Src: BlendSrcAlpha, Dst: BlendOneMinusSrcAlpha, Op: BlendOpAdd},
			Alpha:   BlendComponent{Src: BlendOne, Dst: BlendZero, Op: BlendOpAdd},
		},
		{
			// dst * src: darkens what is already there.
			Name:    BlendInvMul,
			Enabled: true,
			Color:   BlendComponent{Src: BlendZero, Dst: BlendSrcColor, Op: BlendOpAdd},
			Alpha:   BlendComponent{Src: BlendZero, Dst: BlendOne, Op: BlendOpAdd},
		},
	} {
		rs.blends[b.Name] = b
	}
	for _, d := range []DepthStencilState{
		{Name: DepthDefault, DepthTest: true, DepthWrite: true, Compare: CompareLess},
		{Name: DepthNoDepthWrite, DepthTest: true, DepthWrite: false, Compare: CompareLessEqual},
		{Name: DepthNoDepthTest, Compare: CompareAlways},
	} {
		rs.depths[d.Name] = d
	}
	for _, r := range []RasterizerState{
		{Name: RasterDefault, Cull: CullBack},
		{Name: RasterNoCull, Cull: CullNone},
	} {
		rs.rasters[r.Name] = r
	}
	return rs
}

func (rs *RenderStates) Blend(name string) (BlendState, bool) {
	b, ok := rs.blends[name]
	return b, ok
}

func (rs *RenderStates) DepthStencil(name string) (DepthStencilState, bool) {
	d, ok := rs.depths[name]
	return d, ok
}

func (rs *RenderStates) Rasterizer(name string) (RasterizerState, bool) {
	r, ok := rs.rasters[name]
	return r, ok
}

// BlendNames lists registered blend states, sorted.
func (rs *RenderStates) BlendNames() []string {
	names := make([]string, 0, len(rs.blends))
	for n := range rs.blends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
