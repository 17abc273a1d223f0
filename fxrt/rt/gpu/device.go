package gpu

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
)

// OffscreenFormat is the colour format of the primary and smoke surfaces.
const OffscreenFormat = wgpu.TextureFormatRGBA8Unorm

// Device implements core.Device on a wgpu device.
type Device struct {
	Device *wgpu.Device
	Queue  *wgpu.Queue

	FrameBuf  *wgpu.Buffer
	LimitsBuf *wgpu.Buffer

	SamplerWrap  *wgpu.Sampler
	SamplerClamp *wgpu.Sampler

	// Bound when a slot has no texture.
	WhiteTexture  *Texture
	ZeroRandom    *Texture
	ComputeLayout *wgpu.BindGroupLayout
	VisualLayout  *wgpu.BindGroupLayout

	ctx *Context
}

func NewDevice(device *wgpu.Device) (*Device, error) {
	d := &Device{Device: device, Queue: device.GetQueue()}
	if err := d.setup(); err != nil {
		d.Release()
		return nil, err
	}
	d.ctx = &Context{dev: d}
	return d, nil
}

func (d *Device) Context() *Context { return d.ctx }

func (d *Device) setup() error {
	var err error
	d.FrameBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Frame Uniforms",
		Size:  core.FrameUniformsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	d.LimitsBuf, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Simulate Limits",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}

	d.SamplerWrap, err = d.Device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Particle Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}
	d.SamplerClamp, err = d.Device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Composite Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMaxClamp:   1,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}

	white := image.NewRGBA(image.Rect(0, 0, 1, 1))
	copy(white.Pix, []byte{255, 255, 255, 255})
	if d.WhiteTexture, err = d.CreateTexture("white", white); err != nil {
		return err
	}
	if d.ZeroRandom, err = d.CreateRandomTexture("random.zero", make([]float32, core.RandomTexels*4)); err != nil {
		return err
	}

	d.ComputeLayout, err = d.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Simulate BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
			{Binding: 4, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
			{Binding: 5, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
			{
				Binding:    6,
				Visibility: wgpu.ShaderStageCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension1D,
				},
			},
		},
	})
	if err != nil {
		return err
	}

	visual := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	texture2D := wgpu.TextureBindingLayout{
		SampleType:    wgpu.TextureSampleTypeFloat,
		ViewDimension: wgpu.TextureViewDimension2D,
	}
	d.VisualLayout, err = d.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Visual BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: visual, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: wgpu.ShaderStageFragment, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}},
			{Binding: 2, Visibility: wgpu.ShaderStageFragment, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}},
			{Binding: 3, Visibility: wgpu.ShaderStageFragment, Texture: texture2D},
			{Binding: 4, Visibility: wgpu.ShaderStageFragment, Texture: texture2D},
			{Binding: 5, Visibility: wgpu.ShaderStageFragment, Texture: texture2D},
			{Binding: 6, Visibility: wgpu.ShaderStageFragment, Texture: texture2D},
		},
	})
	return err
}

func (d *Device) Release() {
	for _, b := range []*wgpu.Buffer{d.FrameBuf, d.LimitsBuf} {
		if b != nil {
			b.Release()
		}
	}
	for _, s := range []*wgpu.Sampler{d.SamplerWrap, d.SamplerClamp} {
		if s != nil {
			s.Release()
		}
	}
	for _, t := range []*Texture{d.WhiteTexture, d.ZeroRandom} {
		if t != nil {
			t.Release()
		}
	}
	for _, l := range []*wgpu.BindGroupLayout{d.ComputeLayout, d.VisualLayout} {
		if l != nil {
			l.Release()
		}
	}
}

// allocErr marks allocation failures as out-of-memory. wgpu reports both
// validation and allocation problems as plain errors.
func allocErr(label string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "out of memory") || strings.Contains(msg, "outofmemory") || strings.Contains(msg, "max_buffer_size") {
		return fmt.Errorf("%w: %s: %v", core.ErrOutOfMemory, label, err)
	}
	return fmt.Errorf("%s: %w", label, err)
}

func (d *Device) CreateBuffer(desc core.BufferDesc) (core.Buffer, error) {
	size := desc.Size
	if n := uint64(len(desc.Contents)); n > size {
		size = n
	}
	if size == 0 {
		return nil, errors.New("gpu: zero-sized buffer")
	}
	size = (size + 3) &^ 3

	var usage wgpu.BufferUsage
	switch {
	case desc.Usage.Has(core.UsageStaging):
		usage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	case desc.Usage.Has(core.UsageIndex):
		usage = wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst
	default:
		usage = wgpu.BufferUsageVertex | wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	}

	buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{Label: desc.Label, Size: size, Usage: usage})
	if err != nil {
		return nil, allocErr(desc.Label, err)
	}
	if len(desc.Contents) > 0 {
		data := desc.Contents
		if uint64(len(data)) != size {
			data = make([]byte, size)
			copy(data, desc.Contents)
		}
		if err := d.Queue.WriteBuffer(buf, 0, data); err != nil {
			buf.Release()
			return nil, err
		}
	}
	b := &Buffer{label: desc.Label, usage: desc.Usage, Buffer: buf}

	if desc.Usage.Has(core.UsageVertex) {
		b.Meta, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label + " Meta",
			Size:  streamMetaSize,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			b.Release()
			return nil, allocErr(desc.Label, err)
		}
		written := uint32(len(desc.Contents) / core.ParticleStride)
		if err := d.Queue.WriteBuffer(b.Meta, 0, streamMeta(written)); err != nil {
			b.Release()
			return nil, err
		}
	}
	return b, nil
}

func (d *Device) CreateQuery(label string) (core.Query, error) {
	rb, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Readback",
		Size:  16,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, allocErr(label, err)
	}
	return &Query{label: label, Readback: rb}, nil
}

// createModule prefers a cached SPIR-V binary and falls back to the WGSL
// source when the driver rejects it.
func (d *Device) createModule(src core.ProgramSource) (*wgpu.ShaderModule, error) {
	if len(src.SPIRV) > 0 {
		module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:           src.Name,
			SPIRVDescriptor: &wgpu.ShaderModuleSPIRVDescriptor{Code: src.SPIRV},
		})
		if err == nil {
			return module, nil
		}
	}
	return d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.Code},
	})
}

func (d *Device) CreateProgram(src core.ProgramSource) (core.Program, error) {
	module, err := d.createModule(src)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", src.Name, err)
	}
	p := &Program{src: src, module: module, pipelines: make(map[pipelineKey]*wgpu.RenderPipeline)}
	if src.Kind == core.ProgramSimulate {
		if err := p.buildCompute(d); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

func (d *Device) CreateRenderTarget(label string, width, height uint32) (core.OffscreenTarget, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("gpu: empty render target %s", label)
	}
	tex, err := d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        OffscreenFormat,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, allocErr(label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &Target{
		Texture: Texture{label: label, Texture: tex, View: view},
		width:   width,
		height:  height,
		fmt:     OffscreenFormat,
	}, nil
}

// CreateTexture uploads an RGBA image as a sampled 2D texture.
func (d *Device) CreateTexture(label string, img *image.RGBA) (*Texture, error) {
	b := img.Bounds()
	extent := wgpu.Extent3D{Width: uint32(b.Dx()), Height: uint32(b.Dy()), DepthOrArrayLayers: 1}
	tex, err := d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, allocErr(label, err)
	}
	err = d.Queue.WriteTexture(tex.AsImageCopy(), img.Pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(img.Stride),
		RowsPerImage: extent.Height,
	}, &extent)
	if err != nil {
		tex.Release()
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &Texture{label: label, Texture: tex, View: view}, nil
}

// CreateRandomTexture uploads RGBA32F texels as a 1D texture read with
// textureLoad by the simulate program.
func (d *Device) CreateRandomTexture(label string, texels []float32) (*Texture, error) {
	width := uint32(len(texels) / 4)
	if width == 0 {
		return nil, fmt.Errorf("gpu: empty random texture %s", label)
	}
	extent := wgpu.Extent3D{Width: width, Height: 1, DepthOrArrayLayers: 1}
	tex, err := d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension1D,
		Format:        wgpu.TextureFormatRGBA32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, allocErr(label, err)
	}
	err = d.Queue.WriteTexture(tex.AsImageCopy(), wgpu.ToBytes(texels[:width*4]), &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  width * 16,
		RowsPerImage: 1,
	}, &extent)
	if err != nil {
		tex.Release()
		return nil, err
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           label,
		Format:          wgpu.TextureFormatRGBA32Float,
		Dimension:       wgpu.TextureViewDimension1D,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &Texture{label: label, Texture: tex, View: view}, nil
}
