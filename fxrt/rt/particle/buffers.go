package particle

import (
	"errors"
	"fmt"

	"github.com/gekko3d/firefx/fxrt/rt/core"
)

// BufferSet owns the GPU buffers of one particle system. The draw and
// stream-out buffers trade roles on every simulate pass.
type BufferSet struct {
	capacity uint32

	seed    core.Buffer
	vbs     [2]core.Buffer
	draw    int
	quad    core.Buffer
	index   core.Buffer
	staging core.Buffer
	name    string

	firstRun   bool
	age        float32
	generation uint64
}

// NewBufferSet allocates every buffer for maxParticles records. Any
// allocation failure releases what was created and is returned as is.
func NewBufferSet(dev core.Device, maxParticles uint32) (*BufferSet, error) {
	bs := &BufferSet{}
	if err := bs.Initialize(dev, maxParticles); err != nil {
		return nil, err
	}
	return bs, nil
}

func (bs *BufferSet) Initialize(dev core.Device, maxParticles uint32) error {
	if maxParticles == 0 {
		return errors.New("particle: capacity must be positive")
	}
	bs.Release()

	size := uint64(maxParticles) * core.ParticleStride
	create := func(desc core.BufferDesc) (core.Buffer, error) {
		b, err := dev.CreateBuffer(desc)
		if err != nil {
			bs.Release()
			return nil, fmt.Errorf("create %s buffer: %w", desc.Label, err)
		}
		return b, nil
	}

	var err error
	if bs.seed, err = create(core.BufferDesc{
		Label:    bs.label("InitVB"),
		Usage:    core.UsageVertex,
		Contents: core.EncodeParticles([]core.Particle{core.SeedEmitter()}),
	}); err != nil {
		return err
	}
	for i, role := range []string{"DrawVB", "StreamVB"} {
		if bs.vbs[i], err = create(core.BufferDesc{
			Label: bs.label(role),
			Usage: core.UsageVertex | core.UsageStreamOut,
			Size:  size,
		}); err != nil {
			return err
		}
	}
	corners := core.QuadCorners()
	if bs.quad, err = create(core.BufferDesc{
		Label:    bs.label("QuadVB"),
		Usage:    core.UsageVertex,
		Contents: core.EncodeParticles(corners[:]),
	}); err != nil {
		return err
	}
	if bs.index, err = create(core.BufferDesc{
		Label:    bs.label("QuadIB"),
		Usage:    core.UsageIndex,
		Contents: core.QuadIndexBytes(),
	}); err != nil {
		return err
	}
	if bs.staging, err = create(core.BufferDesc{
		Label: bs.label("StagingVB"),
		Usage: core.UsageStaging,
		Size:  size,
	}); err != nil {
		return err
	}

	bs.capacity = maxParticles
	bs.draw = 0
	bs.generation = 0
	bs.Reset()
	return nil
}

func (bs *BufferSet) Initialized() bool { return bs.seed != nil }

func (bs *BufferSet) Capacity() uint32 { return bs.capacity }

func (bs *BufferSet) Seed() core.Buffer      { return bs.seed }
func (bs *BufferSet) Draw() core.Buffer      { return bs.vbs[bs.draw] }
func (bs *BufferSet) StreamOut() core.Buffer { return bs.vbs[1-bs.draw] }
func (bs *BufferSet) Quad() core.Buffer      { return bs.quad }
func (bs *BufferSet) Index() core.Buffer     { return bs.index }
func (bs *BufferSet) Staging() core.Buffer   { return bs.staging }

// Swap exchanges the draw and stream-out roles. Labels follow the roles.
func (bs *BufferSet) Swap() {
	bs.draw = 1 - bs.draw
	bs.generation++
	bs.labelRoles()
}

// Generation is the number of swaps since Initialize.
func (bs *BufferSet) Generation() uint64 { return bs.generation }

// Reset makes the next simulate pass read the seed buffer again. Buffer
// contents are left alone.
func (bs *BufferSet) Reset() {
	bs.firstRun = true
	bs.age = 0
}

func (bs *BufferSet) FirstRun() bool { return bs.firstRun }

func (bs *BufferSet) Age() float32 { return bs.age }

// SetDebugName prefixes every buffer label with name. The two ping-pong
// buffers are labelled by their current role, not by allocation order.
func (bs *BufferSet) SetDebugName(name string) {
	bs.name = name
	if !bs.Initialized() {
		return
	}
	bs.seed.SetLabel(bs.label("InitVB"))
	bs.quad.SetLabel(bs.label("QuadVB"))
	bs.index.SetLabel(bs.label("QuadIB"))
	bs.staging.SetLabel(bs.label("StagingVB"))
	bs.labelRoles()
}

func (bs *BufferSet) label(role string) string {
	if bs.name == "" {
		return role
	}
	return bs.name + "." + role
}

func (bs *BufferSet) labelRoles() {
	if !bs.Initialized() {
		return
	}
	bs.Draw().SetLabel(bs.label("DrawVB"))
	bs.StreamOut().SetLabel(bs.label("StreamVB"))
}

// SnapshotToStaging copies the draw buffer into staging and tallies the
// first written records by type. Staging is unmapped before returning.
func (bs *BufferSet) SnapshotToStaging(ctx core.Context, written uint64) (core.Population, error) {
	if err := ctx.CopyBuffer(bs.staging, bs.Draw()); err != nil {
		return core.Population{}, err
	}
	data, err := ctx.Map(bs.staging)
	if err != nil {
		return core.Population{}, err
	}
	defer ctx.Unmap(bs.staging)

	n := written
	if n > uint64(bs.capacity) {
		n = uint64(bs.capacity)
	}
	return core.Tally(data, int(n)), nil
}

func (bs *BufferSet) Release() {
	for _, b := range []core.Buffer{bs.seed, bs.vbs[0], bs.vbs[1], bs.quad, bs.index, bs.staging} {
		if b != nil {
			b.Release()
		}
	}
	bs.seed, bs.quad, bs.index, bs.staging = nil, nil, nil, nil
	bs.vbs = [2]core.Buffer{}
}

func (bs *BufferSet) advance(dt float32) { bs.age += dt }
