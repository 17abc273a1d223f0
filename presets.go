package firefx

import (
	"errors"
	"fmt"
	"os"

	"github.com/gekko3d/firefx/fxrt/rt/core"
	"github.com/gekko3d/firefx/fxrt/rt/effect"
	"github.com/gekko3d/firefx/fxrt/rt/particle"

	"github.com/go-gl/mathgl/mgl32"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrInvalidPreset = errors.New("invalid preset")

// Preset describes one effect and the particle system that drives it.
type Preset struct {
	Name     string `json:"name"`
	Capacity uint32 `json:"capacity"`
	// WithSmoke selects the dual-population pipeline drawn with DrawComposite.
	WithSmoke bool `json:"with_smoke,omitempty"`
	Shells    bool `json:"shells,omitempty"`

	EmitPos  mgl32.Vec3 `json:"emit_pos"`
	EmitDir  mgl32.Vec3 `json:"emit_dir"`
	Accel    mgl32.Vec3 `json:"acceleration"`
	Interval float32    `json:"emit_interval"`
	Lifetime float32    `json:"alive_time"`

	EmitSpeed    float32    `json:"emit_speed,omitempty"`
	ParticleSize [2]float32 `json:"particle_size,omitempty"`
	BgColor      mgl32.Vec4 `json:"bg_color"`

	Blend      string `json:"blend"`
	SmokeBlend string `json:"smoke_blend,omitempty"`

	InputTexture string `json:"input_texture"`
	AshTexture   string `json:"ash_texture,omitempty"`
	// Random is "uniform" or "cone".
	Random     string `json:"random"`
	RandomSeed int64  `json:"random_seed"`
}

type PresetFile struct {
	Presets []Preset `json:"presets"`
}

func (p Preset) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidPreset)
	case p.Capacity == 0:
		return fmt.Errorf("%w: %s: capacity must be positive", ErrInvalidPreset, p.Name)
	case p.Interval < 0:
		return fmt.Errorf("%w: %s: negative emit interval", ErrInvalidPreset, p.Name)
	case p.Lifetime <= 0:
		return fmt.Errorf("%w: %s: alive time must be positive", ErrInvalidPreset, p.Name)
	case p.Random != "" && p.Random != core.RandomUniform.String() && p.Random != core.RandomCone.String():
		return fmt.Errorf("%w: %s: unknown random kind %q", ErrInvalidPreset, p.Name, p.Random)
	}
	return nil
}

func (p Preset) Flags() core.EffectFlags {
	var f core.EffectFlags
	if p.WithSmoke {
		f |= core.FlagSpawnSmoke
	}
	if p.Shells {
		f |= core.FlagShells
	}
	return f
}

func (p Preset) RandomKind() core.RandomKind {
	if p.Random == core.RandomCone.String() {
		return core.RandomCone
	}
	return core.RandomUniform
}

func (p Preset) EffectDesc() effect.Desc {
	return effect.Desc{
		Name:         p.Name,
		WithSmoke:    p.WithSmoke,
		Flags:        p.Flags(),
		EmitSpeed:    p.EmitSpeed,
		ParticleSize: p.ParticleSize,
	}
}

func (p Preset) EmitConfig() particle.EmitConfig {
	return particle.EmitConfig{
		Position: p.EmitPos,
		Dir:      p.EmitDir,
		Accel:    p.Accel,
		Interval: p.Interval,
		Lifetime: p.Lifetime,
	}
}

// DefaultPresets returns the five demo effects.
func DefaultPresets() []Preset {
	black := mgl32.Vec4{0, 0, 0, 1}
	return []Preset{
		{
			Name: "Flare", Capacity: 10000,
			EmitPos: mgl32.Vec3{0, -1, 0}, EmitDir: mgl32.Vec3{0, 1, 0}, Accel: mgl32.Vec3{0, 7.8, 0},
			Interval: 0.005, Lifetime: 1,
			BgColor: black, Blend: core.BlendAlphaWeightedAdditive,
			InputTexture: "boom", AshTexture: "ash0", Random: "uniform", RandomSeed: 1,
		},
		{
			Name: "Smoke", Capacity: 1000,
			EmitPos: mgl32.Vec3{0, -1, 0}, EmitDir: mgl32.Vec3{0, 1, 0}, Accel: mgl32.Vec3{1, 1, 1},
			Interval: 0.01, Lifetime: 5,
			BgColor: mgl32.Vec4{1, 1, 1, 1}, Blend: core.BlendInvMul,
			InputTexture: "smoke_01", Random: "cone", RandomSeed: 2,
		},
		{
			Name: "FireSmoke", Capacity: 1000, WithSmoke: true,
			EmitPos: mgl32.Vec3{0, -1, 0}, EmitDir: mgl32.Vec3{0, 1, 0}, Accel: mgl32.Vec3{0, 7.8, 0},
			Interval: 0.005, Lifetime: 1,
			BgColor: black, Blend: core.BlendAlphaWeightedAdditive, SmokeBlend: core.BlendInvMul,
			InputTexture: "boom", AshTexture: "smoke_01", Random: "uniform", RandomSeed: 3,
		},
		{
			Name: "Boom", Capacity: 200000, Shells: true,
			EmitPos: mgl32.Vec3{0, -1, 0}, EmitDir: mgl32.Vec3{0, 1, 0}, Accel: mgl32.Vec3{1, 1, 1},
			Interval: 0.25, Lifetime: 2.5,
			BgColor: black, Blend: core.BlendAlphaWeightedAdditive,
			InputTexture: "boom", AshTexture: "ash0", Random: "uniform", RandomSeed: 4,
		},
		{
			Name: "Fountain", Capacity: 1000,
			EmitPos: mgl32.Vec3{0, 0, 0}, EmitDir: mgl32.Vec3{0, 1, 0}, Accel: mgl32.Vec3{0, -9.8, 0},
			Interval: 0.0015, Lifetime: 3,
			BgColor: black, Blend: core.BlendAlphaWeightedAdditive,
			InputTexture: "raindrop0", Random: "cone", RandomSeed: 5,
		},
	}
}

func SavePresets(filename string, presets []Preset) error {
	bytes, err := json.MarshalIndent(PresetFile{Presets: presets}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}

// LoadPresets reads and validates a preset file. Names must be unique.
func LoadPresets(filename string) ([]Preset, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var file PresetFile
	if err := json.Unmarshal(bytes, &file); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if len(file.Presets) == 0 {
		return nil, fmt.Errorf("%w: %s has no presets", ErrInvalidPreset, filename)
	}
	seen := make(map[string]bool, len(file.Presets))
	for _, p := range file.Presets {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidPreset, p.Name)
		}
		seen[p.Name] = true
	}
	return file.Presets, nil
}
