package main

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"

	"github.com/ikemen-engine/waterdemo/engine"
)

func initWindow(width, height int, title string) (*glfw.Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize glfw: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	window.MakeContextCurrent()
	return window, nil
}

const exposureStep = 0.1

// controls maps keys to the engine's debug switches.
type controls struct {
	app *engine.App
	log *zap.Logger
}

func (c *controls) key(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}
	switch key {
	case glfw.KeyEscape:
		w.SetShouldClose(true)
	case glfw.Key1:
		c.setMode(engine.ModeTexturedQuad)
	case glfw.Key2:
		c.setMode(engine.ModeForward)
	case glfw.Key3:
		c.setMode(engine.ModeDeferred)
	case glfw.KeyTab:
		d := c.app.DisplayMode().Next()
		c.app.SetDisplayMode(d)
		c.log.Info("display mode", zap.Stringer("display", d))
	case glfw.KeyI:
		c.app.ToggleInvertDepth()
	case glfw.KeyN:
		c.nextScene()
	case glfw.KeyT:
		env := c.app.Environment()
		env.SetToneMapping(!env.ToneMapping, env.Exposure)
	case glfw.KeyEqual, glfw.KeyKPAdd:
		c.addExposure(exposureStep)
	case glfw.KeyMinus, glfw.KeyKPSubtract:
		c.addExposure(-exposureStep)
	case glfw.KeyD:
		env := c.app.Environment()
		env.SetReflectionMode(!env.DiffuseIBL, env.SpecularIBL)
	case glfw.KeyS:
		env := c.app.Environment()
		env.SetReflectionMode(env.DiffuseIBL, !env.SpecularIBL)
	}
}

func (c *controls) setMode(m engine.Mode) {
	c.app.SetMode(m)
	c.log.Info("render mode", zap.Stringer("mode", m))
}

func (c *controls) addExposure(d float32) {
	env := c.app.Environment()
	e := env.Exposure + d
	if e < exposureStep {
		e = exposureStep
	}
	env.SetToneMapping(env.ToneMapping, e)
}

func (c *controls) nextScene() {
	names := c.app.Description().Names()
	if len(names) == 0 {
		return
	}
	next := names[0]
	for i, n := range names {
		if n == c.app.SceneName() {
			next = names[(i+1)%len(names)]
			break
		}
	}
	if err := c.app.LoadScene(next); err != nil {
		c.log.Error("scene switch failed", zap.String("scene", next), zap.Error(err))
	}
}

// fpsCounter reports the frame rate once per second.
type fpsCounter struct {
	prev   float64
	frames int
}

func (f *fpsCounter) tick(now float64) (float64, bool) {
	f.frames++
	dt := now - f.prev
	if dt < 1 {
		return 0, false
	}
	fps := float64(f.frames) / dt
	f.frames, f.prev = 0, now
	return fps, true
}
