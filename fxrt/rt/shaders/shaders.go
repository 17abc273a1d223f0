package shaders

import (
	_ "embed"

	"github.com/gekko3d/firefx/fxrt/rt/core"
)

//go:embed particle_simulate.wgsl
var ParticleSimulateWGSL string

//go:embed particle_render.wgsl
var ParticleRenderWGSL string

//go:embed particle_composite.wgsl
var ParticleCompositeWGSL string

// Program names understood by Loader.
const (
	ProgramSimulate    = "particle.simulate"
	ProgramRender      = "particle.render"
	ProgramRenderSmoke = "particle.render_smoke"
	ProgramComposite   = "particle.composite"
)

// Compute entry points of the simulate program, in dispatch order.
var SimulateEntries = []string{"prepare", "simulate", "finalize"}

var builtin = map[string]core.ProgramSource{
	ProgramSimulate: {
		Name:    ProgramSimulate,
		Kind:    core.ProgramSimulate,
		Code:    ParticleSimulateWGSL,
		Compute: SimulateEntries,
	},
	ProgramRender: {
		Name:     ProgramRender,
		Kind:     core.ProgramVisual,
		Code:     ParticleRenderWGSL,
		Vertex:   "vs_main",
		Fragment: "fs_main",
	},
	ProgramRenderSmoke: {
		Name:     ProgramRenderSmoke,
		Kind:     core.ProgramVisual,
		Code:     ParticleRenderWGSL,
		Vertex:   "vs_main",
		Fragment: "fs_smoke",
	},
	ProgramComposite: {
		Name:     ProgramComposite,
		Kind:     core.ProgramComposite,
		Code:     ParticleCompositeWGSL,
		Vertex:   "vs_main",
		Fragment: "fs_main",
	},
}

// Source returns the built-in program registered under name.
func Source(name string) (core.ProgramSource, bool) {
	src, ok := builtin[name]
	return src, ok
}
