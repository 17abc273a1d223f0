package firefx

import (
	"errors"
	"fmt"

	"github.com/gekko3d/firefx/fxrt/rt/core"
	"github.com/gekko3d/firefx/fxrt/rt/effect"
	"github.com/gekko3d/firefx/fxrt/rt/particle"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnknownPreset = errors.New("unknown preset")
	ErrNoSurfaces    = errors.New("offscreen surfaces not allocated, call Resize")
)

// Adjustment ranges for the interactive knobs.
const (
	MaxEmitInterval = 0.5
	MaxAliveTime    = 10
)

// TextureProvider resolves named textures and uploads generated random data.
type TextureProvider interface {
	core.TextureSource
	RandomTexture(name string, texels []float32) (core.Texture, error)
}

// Entry is one preset with its compiled effect and particle system.
type Entry struct {
	Preset Preset
	Effect *effect.Effect
	System *particle.System
}

type RuntimeOption func(*Runtime)

func WithRuntimeLogger(l Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

func WithMetrics(m *Metrics) RuntimeOption {
	return func(r *Runtime) { r.metrics = m }
}

func WithPollPolicy(p particle.PollPolicy) RuntimeOption {
	return func(r *Runtime) { r.policy = p }
}

// Runtime owns every configured effect and draws the selected one.
// Only the current entry is simulated; the others keep their buffers.
type Runtime struct {
	dev      core.Device
	loader   effect.ProgramLoader
	textures TextureProvider
	states   *core.RenderStates
	log      Logger
	metrics  *Metrics
	policy   particle.PollPolicy

	entries []*Entry
	current int

	primary, smoke core.OffscreenTarget
	width, height  uint32
}

func NewRuntime(dev core.Device, loader effect.ProgramLoader, textures TextureProvider, presets []Preset, opts ...RuntimeOption) (*Runtime, error) {
	if len(presets) == 0 {
		return nil, fmt.Errorf("%w: no presets", ErrInvalidPreset)
	}
	r := &Runtime{
		dev:      dev,
		loader:   loader,
		textures: textures,
		states:   core.NewRenderStates(),
		log:      NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range presets {
		e, err := r.build(p)
		if err != nil {
			r.Release()
			return nil, err
		}
		r.entries = append(r.entries, e)
	}
	r.log.Infof("runtime ready: %d effects, current %s", len(r.entries), r.entries[0].Preset.Name)
	return r, nil
}

func (r *Runtime) build(p Preset) (*Entry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	eff, err := effect.New(r.dev, r.loader, r.states, p.EffectDesc())
	if err != nil {
		return nil, err
	}
	if p.Blend != "" {
		if err := eff.SetBlendState(effect.PassRender, p.Blend); err != nil {
			eff.Release()
			return nil, fmt.Errorf("preset %s: %w", p.Name, err)
		}
	}
	if p.WithSmoke && p.SmokeBlend != "" {
		if err := eff.SetBlendState(effect.PassRenderSmoke, p.SmokeBlend); err != nil {
			eff.Release()
			return nil, fmt.Errorf("preset %s: %w", p.Name, err)
		}
	}

	opts := []particle.Option{
		particle.WithName(p.Name),
		particle.WithLogger(r.log),
		particle.WithPollPolicy(r.policy),
	}
	if r.metrics != nil {
		opts = append(opts, particle.WithObserver(r.metrics))
	}
	sys := particle.NewSystem(opts...)
	if err := sys.Initialize(r.dev, p.Capacity); err != nil {
		eff.Release()
		return nil, err
	}
	sys.Configure(p.EmitConfig())
	sys.SetBgColor(p.BgColor)

	if err := r.bindTextures(p, sys); err != nil {
		sys.Release()
		eff.Release()
		return nil, err
	}
	return &Entry{Preset: p, Effect: eff, System: sys}, nil
}

func (r *Runtime) bindTextures(p Preset, sys *particle.System) error {
	if r.textures == nil {
		return nil
	}
	lookup := func(name string) core.Texture {
		if name == "" {
			return nil
		}
		tex, ok := r.textures.Texture(name)
		if !ok {
			r.log.Warnf("preset %s: texture %q not found, using fallback", p.Name, name)
			return nil
		}
		return tex
	}
	sys.SetTextureInput(lookup(p.InputTexture))
	sys.SetTextureAsh(lookup(p.AshTexture))

	texels := core.RandomVectors(core.RandomTexels, p.RandomSeed, p.RandomKind())
	random, err := r.textures.RandomTexture(p.Name+"RandomTex", texels)
	if err != nil {
		return fmt.Errorf("preset %s: random texture: %w", p.Name, err)
	}
	sys.SetTextureRandom(random)
	return nil
}

func (r *Runtime) Entries() []*Entry { return r.entries }
func (r *Runtime) Current() *Entry   { return r.entries[r.current] }
func (r *Runtime) CurrentIndex() int { return r.current }

func (r *Runtime) Select(i int) error {
	if i < 0 || i >= len(r.entries) {
		return fmt.Errorf("%w: index %d", ErrUnknownPreset, i)
	}
	if i != r.current {
		r.current = i
		r.log.Debugf("effect switched to %s", r.entries[i].Preset.Name)
	}
	return nil
}

func (r *Runtime) SelectByName(name string) error {
	for i, e := range r.entries {
		if e.Preset.Name == name {
			return r.Select(i)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownPreset, name)
}

// Next cycles to the following effect.
func (r *Runtime) Next() {
	_ = r.Select((r.current + 1) % len(r.entries))
}

// Resize reallocates the offscreen surfaces used by composite effects.
func (r *Runtime) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	if width == r.width && height == r.height && r.primary != nil {
		return nil
	}
	r.releaseSurfaces()
	primary, err := r.dev.CreateRenderTarget("PrimaryRT", width, height)
	if err != nil {
		return fmt.Errorf("primary surface: %w", err)
	}
	smoke, err := r.dev.CreateRenderTarget("SmokeRT", width, height)
	if err != nil {
		primary.Release()
		return fmt.Errorf("smoke surface: %w", err)
	}
	r.primary, r.smoke = primary, smoke
	r.width, r.height = width, height
	return nil
}

func (r *Runtime) releaseSurfaces() {
	if r.primary != nil {
		r.primary.Release()
		r.primary = nil
	}
	if r.smoke != nil {
		r.smoke.Release()
		r.smoke = nil
	}
}

func (r *Runtime) ResetAll() {
	for _, e := range r.entries {
		e.System.Reset()
	}
}

// Update advances every system clock, as the demo keeps all effects aging.
func (r *Runtime) Update(dt, total float32) {
	for _, e := range r.entries {
		e.System.Update(dt, total)
	}
}

func (r *Runtime) SetCamera(view, proj mgl32.Mat4, eye mgl32.Vec3) {
	for _, e := range r.entries {
		e.Effect.SetViewMatrix(view)
		e.Effect.SetProjMatrix(proj)
		e.Effect.SetEyePos(eye)
	}
}

func (r *Runtime) AdjustEmitInterval(delta float32) float32 {
	sys := r.Current().System
	v := math32.Max(0, math32.Min(MaxEmitInterval, sys.Config().Interval+delta))
	sys.SetEmitInterval(v)
	return v
}

func (r *Runtime) AdjustAliveTime(delta float32) float32 {
	sys := r.Current().System
	v := math32.Max(0, math32.Min(MaxAliveTime, sys.Config().Lifetime+delta))
	sys.SetAliveTime(v)
	return v
}

func (r *Runtime) SetBgColor(c mgl32.Vec4) {
	r.Current().System.SetBgColor(c)
}

// Frame simulates and draws the current effect into final.
func (r *Runtime) Frame(ctx core.Context, final core.RenderTarget) error {
	e := r.Current()
	if !e.Preset.WithSmoke {
		return e.System.Draw(ctx, e.Effect, final)
	}
	if r.primary == nil || r.smoke == nil {
		return ErrNoSurfaces
	}
	return e.System.DrawComposite(ctx, e.Effect, particle.CompositeTargets{
		Final:   final,
		Primary: r.primary,
		Smoke:   r.smoke,
	})
}

func (r *Runtime) Release() {
	for _, e := range r.entries {
		e.System.Release()
		e.Effect.Release()
		if r.metrics != nil {
			r.metrics.Forget(e.System.Name())
		}
	}
	r.entries = nil
	r.releaseSurfaces()
}
