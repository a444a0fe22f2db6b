package main

import (
	"flag"
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/ikemen-engine/waterdemo/engine"
	"github.com/ikemen-engine/waterdemo/gpu"
)

const title = "waterdemo"

var (
	width       = flag.Int("width", 1280, "window width")
	height      = flag.Int("height", 720, "window height")
	modeName    = flag.String("mode", "deferred", "render mode: quad, forward, deferred")
	scenePath   = flag.String("scenes", "assets/scenes.yaml", "scene description file")
	sceneName   = flag.String("scene", "", "scene to start with, the first one when empty")
	environment = flag.String("env", "", "HDR environment image, overrides the scene file")
	quadTexture = flag.String("quad", "assets/textures/checker.png", "texture shown in quad mode")
	shaderDir   = flag.String("shaders", "", "read shaders from this directory instead of the embedded copy")
	hotReload   = flag.Bool("watch", false, "rebuild shaders when files in -shaders change")
	exposure    = flag.Float64("exposure", 1, "tone mapping exposure")
	noToneMap   = flag.Bool("no-tonemap", false, "disable tone mapping")
	debug       = flag.Bool("debug", false, "development logging")
)

func init() {
	runtime.LockOSThread()
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func config() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	mode, err := engine.ParseMode(*modeName)
	if err != nil {
		return cfg, err
	}
	cfg.Width, cfg.Height = *width, *height
	cfg.Mode = mode
	cfg.ScenePath = *scenePath
	cfg.Scene = *sceneName
	cfg.Environment = *environment
	cfg.QuadTexture = *quadTexture
	cfg.ShaderDir = *shaderDir
	cfg.HotReload = *hotReload
	cfg.Exposure = float32(*exposure)
	cfg.ToneMapping = !*noToneMap
	return cfg, nil
}

func main() {
	flag.Parse()
	log, err := newLogger(*debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config()
	if err != nil {
		log.Fatal("invalid flags", zap.Error(err))
	}

	window, err := initWindow(cfg.Width, cfg.Height, title)
	if err != nil {
		log.Fatal("window", zap.Error(err))
	}
	defer glfw.Terminate()

	dev, err := gpu.NewGLDevice(log.Named("gpu"))
	if err != nil {
		log.Fatal("failed to initialize OpenGL", zap.Error(err))
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("loading"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish())
	app := engine.New(dev, cfg,
		engine.WithLogger(log),
		engine.WithProgress(func(step string) {
			bar.Describe(step)
			_ = bar.Add(1)
		}))
	if err := app.Init(); err != nil {
		log.Fatal("engine init failed", zap.Error(err))
	}
	_ = bar.Finish()
	defer app.CleanUp()

	// The framebuffer differs from the window size on high DPI screens.
	if fw, fh := window.GetFramebufferSize(); fw != cfg.Width || fh != cfg.Height {
		if err := app.Resize(fw, fh); err != nil {
			log.Fatal("resize", zap.Error(err))
		}
	}
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		if err := app.Resize(w, h); err != nil {
			log.Error("resize", zap.Int("width", w), zap.Int("height", h), zap.Error(err))
		}
	})
	c := &controls{app: app, log: log}
	window.SetKeyCallback(c.key)

	glfw.SwapInterval(1)

	var fps fpsCounter
	last := glfw.GetTime()
	fps.prev = last
	for !window.ShouldClose() {
		glfw.PollEvents()
		now := glfw.GetTime()
		app.Update(float32(now - last))
		last = now

		app.Render()
		window.SwapBuffers()

		if f, ok := fps.tick(now); ok {
			window.SetTitle(fmt.Sprintf("%s | %s | %s | FPS: %.1f", title, app.SceneName(), app.Mode(), f))
		}
	}
}
