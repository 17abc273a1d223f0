package effect

import (
	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// Every setter only stages a value. Nothing reaches the context before Apply.

func (e *Effect) SetGameTime(t float32) {
	e.frame.GameTime = t
	e.pending = true
}

func (e *Effect) SetTimeStep(dt float32) {
	e.frame.TimeStep = dt
	e.pending = true
}

func (e *Effect) SetViewMatrix(m mgl32.Mat4) {
	e.frame.View = m
	e.pending = true
}

func (e *Effect) SetProjMatrix(m mgl32.Mat4) {
	e.frame.Proj = m
	e.pending = true
}

func (e *Effect) SetEyePos(p mgl32.Vec3) {
	e.frame.EyePos = p
	e.pending = true
}

func (e *Effect) SetEmitPos(p mgl32.Vec3) {
	e.emit.Position = p
	e.pending = true
}

func (e *Effect) SetEmitDir(d mgl32.Vec3) {
	e.emit.Dir = d
	e.pending = true
}

func (e *Effect) SetAcceleration(a mgl32.Vec3) {
	e.emit.Accel = a
	e.pending = true
}

func (e *Effect) SetEmitInterval(t float32) {
	e.emit.Interval = t
	e.pending = true
}

func (e *Effect) SetAliveTime(t float32) {
	e.emit.Lifetime = t
	e.pending = true
}

func (e *Effect) SetParticleCount(pop core.Population) {
	e.emit.Counts = pop
	e.pending = true
}

// SetTexture binds tex to slot. A nil texture unbinds it.
func (e *Effect) SetTexture(slot core.TextureSlot, tex core.Texture) {
	if slot >= core.NumTextureSlots {
		return
	}
	e.textures[slot] = tex
	e.pending = true
}

func (e *Effect) SetTextureInput(t core.Texture)  { e.SetTexture(core.SlotInput, t) }
func (e *Effect) SetTextureRandom(t core.Texture) { e.SetTexture(core.SlotRandom, t) }
func (e *Effect) SetTextureAsh(t core.Texture)    { e.SetTexture(core.SlotAsh, t) }

// SetTextureDefaultParticle binds the primary surface for the composite pass.
func (e *Effect) SetTextureDefaultParticle(t core.Texture) { e.SetTexture(core.SlotPrimary, t) }

// SetTextureSmokeParticle binds the smoke surface for the composite pass.
func (e *Effect) SetTextureSmokeParticle(t core.Texture) { e.SetTexture(core.SlotSmoke, t) }

// SetFrameParameters stages clock and camera in one call.
func (e *Effect) SetFrameParameters(f core.FrameParams) {
	e.frame = f
	e.pending = true
}

// SetEmitParameters stages the emission state of a system.
func (e *Effect) SetEmitParameters(p core.EmitParams) {
	e.emit = p
	e.pending = true
}

// Pending reports whether values were staged since the last Apply.
func (e *Effect) Pending() bool { return e.pending }

// ViewProj is the combined transform Apply uploads.
func (e *Effect) ViewProj() mgl32.Mat4 {
	return e.frame.Proj.Mul4(e.frame.View)
}

func (e *Effect) uniforms() core.FrameUniforms {
	return core.FrameUniforms{
		ViewProj:     e.ViewProj(),
		EyePos:       e.frame.EyePos,
		GameTime:     e.frame.GameTime,
		EmitPos:      e.emit.Position,
		TimeStep:     e.frame.TimeStep,
		EmitDir:      e.emit.Dir,
		EmitInterval: e.emit.Interval,
		Accel:        e.emit.Accel,
		AliveTime:    e.emit.Lifetime,
		PrimaryCount: e.emit.Counts.Primary,
		SmokeCount:   e.emit.Counts.Smoke,
		Flags:        e.desc.Flags,
		EmitSpeed:    e.desc.EmitSpeed,
		ParticleSize: e.desc.ParticleSize,
	}
}

// Apply pushes the selected pass's states, uniforms and textures.
func (e *Effect) Apply(ctx core.Context) error {
	if e.current == nil {
		return ErrNoPass
	}
	p := e.current
	b := &core.PassBinding{
		Pass:     p.name,
		Program:  p.program,
		Blend:    p.blend,
		Depth:    p.depth,
		Raster:   p.raster,
		Uniforms: e.uniforms(),
		Textures: e.textures,
	}
	if err := ctx.ApplyPass(b); err != nil {
		return err
	}
	e.pending = false
	return nil
}

// RenderToVertexBuffer runs the simulate pass from in into out. A zero
// count draws whatever the previous pass wrote into in.
func (e *Effect) RenderToVertexBuffer(ctx core.Context, in, out core.Buffer, count uint32) error {
	input := e.SelectSimulatePass()
	ctx.SetPrimitiveTopology(input.Topology)
	ctx.SetInputLayout(input.Layout)
	ctx.SetVertexBuffer(in, input.Stride, input.Offset)
	ctx.SetStreamTarget(out)
	defer func() {
		ctx.SetStreamTarget(nil)
		ctx.SetVertexBuffer(nil, 0, 0)
	}()

	if err := e.Apply(ctx); err != nil {
		return err
	}
	if count > 0 {
		return ctx.Draw(count)
	}
	return ctx.DrawAuto()
}
