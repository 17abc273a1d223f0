package app

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gekko3d/firefx/fxrt/rt/core"
	"github.com/gekko3d/firefx/fxrt/rt/gpu"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrTextureNotFound = errors.New("texture not found")

// Extensions tried, in order, when resolving a texture name in the asset directory.
var textureExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".webp"}

// Uploader creates GPU textures from decoded data.
type Uploader interface {
	UploadImage(label string, img *image.RGBA) (core.Texture, error)
	UploadRandom(label string, texels []float32) (core.Texture, error)
}

// DeviceUploader uploads through the wgpu backend.
type DeviceUploader struct {
	Device *gpu.Device
}

func (u DeviceUploader) UploadImage(label string, img *image.RGBA) (core.Texture, error) {
	tex, err := u.Device.CreateTexture(label, img)
	if err != nil {
		return nil, err
	}
	return tex, nil
}

func (u DeviceUploader) UploadRandom(label string, texels []float32) (core.Texture, error) {
	tex, err := u.Device.CreateRandomTexture(label, texels)
	if err != nil {
		return nil, err
	}
	return tex, nil
}

type TextureId uuid.UUID

type textureEntry struct {
	id      TextureId
	name    string
	source  string
	texture core.Texture
}

// TextureServer loads sprites by logical name and owns the uploaded textures.
type TextureServer struct {
	mu       sync.RWMutex
	dir      string
	maxSize  int
	uploader Uploader
	byName   map[string]*textureEntry
	byId     map[TextureId]*textureEntry
}

func NewTextureServer(dir string, maxSize int, uploader Uploader) *TextureServer {
	return &TextureServer{
		dir:      dir,
		maxSize:  maxSize,
		uploader: uploader,
		byName:   make(map[string]*textureEntry),
		byId:     make(map[TextureId]*textureEntry),
	}
}

// Texture implements core.TextureSource.
func (s *TextureServer) Texture(name string) (core.Texture, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return e.texture, true
}

func (s *TextureServer) Id(name string) (TextureId, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byName[name]
	if !ok {
		return TextureId{}, false
	}
	return e.id, true
}

func (s *TextureServer) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *TextureServer) register(name, source string, tex core.Texture) TextureId {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &textureEntry{id: TextureId(uuid.New()), name: name, source: source, texture: tex}
	if old, ok := s.byName[name]; ok {
		delete(s.byId, old.id)
	}
	s.byName[name] = e
	s.byId[e.id] = e
	return e.id
}

func (s *TextureServer) resolve(name string) (string, error) {
	for _, ext := range textureExtensions {
		path := filepath.Join(s.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrTextureNotFound, name, s.dir)
}

// Load decodes name from the asset directory, downscales it to maxSize and
// uploads it.
func (s *TextureServer) Load(name string) (TextureId, error) {
	path, err := s.resolve(name)
	if err != nil {
		return TextureId{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return TextureId{}, err
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return TextureId{}, fmt.Errorf("decode %s: %w", path, err)
	}
	tex, err := s.uploader.UploadImage(name, fitRGBA(src, s.maxSize))
	if err != nil {
		return TextureId{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return s.register(name, path, tex), nil
}

// LoadOrGenerate falls back to a procedural soft sprite when the file is missing.
func (s *TextureServer) LoadOrGenerate(name string) (TextureId, error) {
	id, err := s.Load(name)
	if !errors.Is(err, ErrTextureNotFound) {
		return id, err
	}
	size := 64
	if s.maxSize > 0 && s.maxSize < size {
		size = s.maxSize
	}
	tex, err := s.uploader.UploadImage(name, SoftSprite(size))
	if err != nil {
		return TextureId{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return s.register(name, "procedural", tex), nil
}

// RandomTexture uploads generated RGBA32F texels under name.
func (s *TextureServer) RandomTexture(name string, texels []float32) (core.Texture, error) {
	tex, err := s.uploader.UploadRandom(name, texels)
	if err != nil {
		return nil, err
	}
	s.register(name, "random", tex)
	return tex, nil
}

type releaser interface{ Release() }

func (s *TextureServer) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byName {
		if r, ok := e.texture.(releaser); ok {
			r.Release()
		}
	}
	s.byName = make(map[string]*textureEntry)
	s.byId = make(map[TextureId]*textureEntry)
}

// fitRGBA converts src to RGBA, scaling it down with Catmull-Rom when either
// side exceeds maxSize.
func fitRGBA(src image.Image, maxSize int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		scale := float32(maxSize) / float32(max(w, h))
		w = max(1, int(math32.Round(float32(w)*scale)))
		h = max(1, int(math32.Round(float32(h)*scale)))
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// SoftSprite is a white disc whose alpha falls off toward the edge.
func SoftSprite(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	c := float32(size-1) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := (float32(x)-c)/c, (float32(y)-c)/c
			a := 1 - math32.Sqrt(dx*dx+dy*dy)
			if a < 0 {
				a = 0
			}
			a *= a
			i := img.PixOffset(x, y)
			img.Pix[i+0] = 255
			img.Pix[i+1] = 255
			img.Pix[i+2] = 255
			img.Pix[i+3] = uint8(a * 255)
		}
	}
	return img
}
