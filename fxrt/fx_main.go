package main

import (
	"errors"
	"flag"
	"net/http"
	"os"
	"runtime"

	"github.com/gekko3d/firefx"
	"github.com/gekko3d/firefx/fxrt/rt/app"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	presetsPath := flag.String("presets", "", "Load effect presets from a JSON file")
	dumpPresets := flag.String("dump-presets", "", "Write the built-in presets to a JSON file and exit")
	effectName := flag.String("effect", "", "Effect selected at startup")
	textureDir := flag.String("textures", "assets/textures", "Directory searched for sprite images")
	shaderCache := flag.String("shader-cache", "", "Directory for validated SPIR-V binaries")
	overwriteCache := flag.Bool("overwrite-cache", false, "Rewrite cached shader binaries")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9100")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := firefx.NewDefaultLogger("firefx", *debug)
	defer log.Sync()

	if *dumpPresets != "" {
		if err := firefx.SavePresets(*dumpPresets, firefx.DefaultPresets()); err != nil {
			log.Errorf("write presets: %v", err)
			os.Exit(1)
		}
		log.Infof("presets written to %s", *dumpPresets)
		return
	}

	presets := firefx.DefaultPresets()
	if *presetsPath != "" {
		var err error
		presets, err = firefx.LoadPresets(*presetsPath)
		if err != nil {
			log.Errorf("load presets: %v", err)
			os.Exit(1)
		}
	}

	var metrics *firefx.Metrics
	if *metricsAddr != "" {
		metrics = firefx.NewMetrics("firefx")
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warnf("metrics server exited: %v", err)
			}
		}()
		defer srv.Close()
		log.Infof("metrics on %s/metrics", *metricsAddr)
	}

	if err := glfw.Init(); err != nil {
		log.Errorf("glfw init: %v", err)
		os.Exit(1)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "firefx", nil, nil)
	if err != nil {
		log.Errorf("create window: %v", err)
		os.Exit(1)
	}
	defer window.Destroy()

	application := app.NewApp(window, app.Options{
		Presets:      presets,
		Effect:       *effectName,
		TextureDir:   *textureDir,
		ShaderCache:  *shaderCache,
		OverwriteSPV: *overwriteCache,
		Logger:       log,
		Metrics:      metrics,
	})
	if err := application.Init(); err != nil {
		log.Errorf("init: %v", err)
		application.Release()
		os.Exit(1)
	}
	defer application.Release()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		application.HandleKey(key, action)
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		application.HandleMouseButton(button, action)
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		application.HandleCursor(xpos, ypos)
	})
	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		application.HandleScroll(yoff)
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		application.Render()
	}
}
