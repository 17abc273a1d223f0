package app

import (
	"fmt"

	"github.com/gekko3d/firefx"
	"github.com/gekko3d/firefx/fxrt/rt/gpu"
	"github.com/gekko3d/firefx/fxrt/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Options configure the demo. Zero values pick the built-in presets and no
// shader cache.
type Options struct {
	Presets       []firefx.Preset
	Effect        string
	TextureDir    string
	ShaderCache   string
	OverwriteSPV  bool
	Logger        firefx.Logger
	Metrics       *firefx.Metrics
	MaxSpriteSize int
}

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	GPU      *gpu.Device
	Runtime  *firefx.Runtime
	Textures *TextureServer
	Camera   *OrbitCamera
	Clock    *firefx.Clock
	Profiler *Profiler
	Log      firefx.Logger

	opts Options

	Dragging   bool
	LastX      float64
	LastY      float64
	titleTimer float32
	frameCount int
}

func NewApp(window *glfw.Window, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = firefx.NewNopLogger()
	}
	if len(opts.Presets) == 0 {
		opts.Presets = firefx.DefaultPresets()
	}
	if opts.MaxSpriteSize == 0 {
		opts.MaxSpriteSize = 256
	}
	return &App{
		Window:   window,
		Camera:   NewOrbitCamera(),
		Clock:    firefx.NewClock(),
		Profiler: NewProfiler(),
		Log:      opts.Logger,
		opts:     opts,
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)

	a.GPU, err = gpu.NewDevice(a.Device)
	if err != nil {
		return fmt.Errorf("gpu setup: %w", err)
	}

	loaderOpts := []shaders.LoaderOption{shaders.WithLogger(a.Log)}
	if a.opts.ShaderCache != "" {
		loaderOpts = append(loaderOpts, shaders.WithCacheDir(a.opts.ShaderCache, a.opts.OverwriteSPV))
	}
	loader := shaders.NewLoader(loaderOpts...)

	a.Textures = NewTextureServer(a.opts.TextureDir, a.opts.MaxSpriteSize, DeviceUploader{Device: a.GPU})
	for _, name := range spriteNames(a.opts.Presets) {
		if _, err := a.Textures.LoadOrGenerate(name); err != nil {
			return err
		}
	}

	runtimeOpts := []firefx.RuntimeOption{firefx.WithRuntimeLogger(a.Log)}
	if a.opts.Metrics != nil {
		runtimeOpts = append(runtimeOpts, firefx.WithMetrics(a.opts.Metrics))
	}
	a.Runtime, err = firefx.NewRuntime(a.GPU, loader, a.Textures, a.opts.Presets, runtimeOpts...)
	if err != nil {
		return err
	}
	if a.opts.Effect != "" {
		if err := a.Runtime.SelectByName(a.opts.Effect); err != nil {
			return err
		}
	}
	if err := a.Runtime.Resize(a.Config.Width, a.Config.Height); err != nil {
		return err
	}
	a.Clock.Reset()
	return nil
}

// spriteNames lists every texture the presets reference, without duplicates.
func spriteNames(presets []firefx.Preset) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range presets {
		for _, n := range []string{p.InputTexture, p.AshTexture} {
			if n != "" && !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

func (a *App) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	a.Config.Width = uint32(w)
	a.Config.Height = uint32(h)
	a.Surface.Configure(a.Adapter, a.Device, a.Config)
	if err := a.Runtime.Resize(a.Config.Width, a.Config.Height); err != nil {
		a.Log.Errorf("resize offscreen surfaces: %v", err)
	}
}

func (a *App) Update() {
	a.Profiler.BeginScope("update")
	dt, total := a.Clock.Tick()
	a.Runtime.Update(dt, total)
	a.Runtime.SetCamera(a.Camera.View(), a.Camera.Proj(a.Config.Width, a.Config.Height), a.Camera.Eye())
	a.Profiler.EndScope("update")

	a.titleTimer += dt
	a.frameCount++
	if a.titleTimer >= 0.5 {
		a.updateTitle()
		a.titleTimer = 0
		a.frameCount = 0
	}
}

func (a *App) updateTitle() {
	e := a.Runtime.Current()
	primary, smoke := e.System.PopulationCounts()
	a.Profiler.SetCount("fire", int(primary))
	a.Profiler.SetCount("smoke", int(smoke))
	fps := float32(a.frameCount) / a.titleTimer
	cfg := e.System.Config()
	a.Window.SetTitle(fmt.Sprintf("firefx - %s | %.0f fps | interval %.4f | alive %.1f | %s",
		e.Preset.Name, fps, cfg.Interval, cfg.Lifetime, a.Profiler.Summary()))
}

func (a *App) Render() {
	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Log.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Log.Errorf("CreateView failed: %v", err)
		return
	}
	defer view.Release()

	target := gpu.NewSurfaceTarget("BackBuffer", view, a.Config.Format, a.Config.Width, a.Config.Height)
	err = a.Profiler.Scope("particles", func() error {
		return a.Runtime.Frame(a.GPU.Context(), target)
	})
	if err != nil {
		a.Log.Errorf("frame: %v", err)
	}
	a.Surface.Present()
}

// HandleKey implements the demo controls: R resets every effect, Tab and
// 1-5 switch effects, arrows tune the current emitter.
func (a *App) HandleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}
	switch key {
	case glfw.KeyEscape:
		a.Window.SetShouldClose(true)
	case glfw.KeyR:
		a.Runtime.ResetAll()
		a.Clock.Reset()
	case glfw.KeyTab:
		a.Runtime.Next()
	case glfw.Key1, glfw.Key2, glfw.Key3, glfw.Key4, glfw.Key5:
		if err := a.Runtime.Select(int(key - glfw.Key1)); err != nil {
			a.Log.Warnf("%v", err)
		}
	case glfw.KeyUp:
		a.Runtime.AdjustEmitInterval(0.0005)
	case glfw.KeyDown:
		a.Runtime.AdjustEmitInterval(-0.0005)
	case glfw.KeyRight:
		a.Runtime.AdjustAliveTime(0.1)
	case glfw.KeyLeft:
		a.Runtime.AdjustAliveTime(-0.1)
	}
}

// HandleMouseButton starts and stops camera orbiting with the right button.
func (a *App) HandleMouseButton(button glfw.MouseButton, action glfw.Action) {
	if button != glfw.MouseButtonRight {
		return
	}
	a.Dragging = action == glfw.Press
	a.LastX, a.LastY = a.Window.GetCursorPos()
}

func (a *App) HandleCursor(x, y float64) {
	if a.Dragging {
		a.Camera.Rotate(float32(x-a.LastX), float32(y-a.LastY))
	}
	a.LastX, a.LastY = x, y
}

func (a *App) HandleScroll(dy float64) {
	a.Camera.Zoom(float32(dy))
}

func (a *App) Release() {
	if a.Runtime != nil {
		a.Runtime.Release()
	}
	if a.Textures != nil {
		a.Textures.Release()
	}
	if a.GPU != nil {
		a.GPU.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}
