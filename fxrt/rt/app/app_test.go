package app

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gekko3d/firefx"
	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

type fakeTexture struct {
	label    string
	width    int
	released bool
}

func (t *fakeTexture) Label() string { return t.label }
func (t *fakeTexture) Release()      { t.released = true }

type fakeUploader struct {
	images  []*image.RGBA
	randoms int
	fail    bool
}

func (u *fakeUploader) UploadImage(label string, img *image.RGBA) (core.Texture, error) {
	if u.fail {
		return nil, errors.New("device lost")
	}
	u.images = append(u.images, img)
	return &fakeTexture{label: label, width: img.Bounds().Dx()}, nil
}

func (u *fakeUploader) UploadRandom(label string, texels []float32) (core.Texture, error) {
	u.randoms++
	return &fakeTexture{label: label, width: len(texels) / 4}, nil
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestTextureServerLoad(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "boom.png"), 512, 256)

	up := &fakeUploader{}
	s := NewTextureServer(dir, 128, up)
	id, err := s.Load("boom")
	require.NoError(t, err)

	got, ok := s.Id("boom")
	require.True(t, ok)
	assert.Equal(t, id, got)

	require.Len(t, up.images, 1)
	assert.Equal(t, image.Rect(0, 0, 128, 64), up.images[0].Bounds())

	tex, ok := s.Texture("boom")
	require.True(t, ok)
	assert.Equal(t, "boom", tex.Label())

	_, ok = s.Texture("ash0")
	assert.False(t, ok)
}

func TestTextureServerDecodesBMP(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, "ash0.bmp"))
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, img))
	require.NoError(t, f.Close())

	up := &fakeUploader{}
	s := NewTextureServer(dir, 0, up)
	_, err = s.Load("ash0")
	require.NoError(t, err)
	require.Len(t, up.images, 1)
	assert.Equal(t, uint8(255), up.images[0].RGBAAt(1, 1).R)
}

func TestTextureServerFallbacks(t *testing.T) {
	up := &fakeUploader{}
	s := NewTextureServer(t.TempDir(), 32, up)

	_, err := s.Load("raindrop0")
	assert.ErrorIs(t, err, ErrTextureNotFound)

	_, err = s.LoadOrGenerate("raindrop0")
	require.NoError(t, err)
	require.Len(t, up.images, 1)
	assert.Equal(t, 32, up.images[0].Bounds().Dx())
	assert.Equal(t, []string{"raindrop0"}, s.Names())

	up.fail = true
	_, err = s.LoadOrGenerate("flare0")
	assert.ErrorContains(t, err, "device lost")
}

func TestTextureServerRandomAndRelease(t *testing.T) {
	up := &fakeUploader{}
	s := NewTextureServer(t.TempDir(), 0, up)

	tex, err := s.RandomTexture("FireRandomTex", core.RandomVectors(core.RandomTexels, 1, core.RandomUniform))
	require.NoError(t, err)
	assert.Equal(t, core.RandomTexels, tex.(*fakeTexture).width)
	assert.Equal(t, 1, up.randoms)

	s.Release()
	assert.True(t, tex.(*fakeTexture).released)
	assert.Empty(t, s.Names())
}

func TestSoftSprite(t *testing.T) {
	img := SoftSprite(17)
	assert.Equal(t, uint8(255), img.RGBAAt(8, 8).A)
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).A)
	assert.Equal(t, uint8(255), img.RGBAAt(0, 0).R)
}

func TestSpriteNames(t *testing.T) {
	names := spriteNames(firefx.DefaultPresets())
	assert.Equal(t, []string{"boom", "ash0", "smoke_01", "raindrop0"}, names)
}

func TestOrbitCamera(t *testing.T) {
	c := NewOrbitCamera()
	eye := c.Eye()
	assert.InDelta(t, 0, eye.X(), 1e-5)
	assert.InDelta(t, -15, eye.Z(), 1e-5)

	c.Rotate(0, 1e6)
	assert.Less(t, c.Pitch, float32(1.5708))

	c.Zoom(100)
	assert.Equal(t, float32(2), c.Distance)
	c.Zoom(-1000)
	assert.Equal(t, float32(80), c.Distance)

	// The target projects to the centre of the screen.
	c = NewOrbitCamera()
	clip := c.Proj(1280, 720).Mul4(c.View()).Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, clip.X()/clip.W(), 1e-5)
	assert.InDelta(t, 0, clip.Y()/clip.W(), 1e-5)
}

func TestProfiler(t *testing.T) {
	p := NewProfiler()
	clock := time.Unix(0, 0)
	p.now = func() time.Time { return clock }

	require.NoError(t, p.Scope("update", func() error {
		clock = clock.Add(2 * time.Millisecond)
		return nil
	}))
	err := p.Scope("particles", func() error {
		clock = clock.Add(500 * time.Microsecond)
		return errors.New("lost")
	})
	assert.EqualError(t, err, "lost")
	p.SetCount("fire", 120)

	assert.Equal(t, []string{"update", "particles"}, p.Order)
	assert.Equal(t, 2*time.Millisecond, p.Scopes["update"])
	assert.Equal(t, "fire 120 | update 2.00ms | particles 0.50ms", p.Summary())
	assert.Contains(t, p.GetStatsString(), "update")

	p.Reset()
	assert.Zero(t, p.Scopes["update"])
	p.BeginScope("update")
	assert.Len(t, p.Order, 2)
}
