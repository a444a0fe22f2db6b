// Package engine runs the frame: scene loading, the reflection, refraction and
// geometry passes, and the final composite or blit.
package engine

import (
	"errors"
	"fmt"
	"path/filepath"

	mgl "github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/ikemen-engine/waterdemo/framebuffer"
	"github.com/ikemen-engine/waterdemo/gpu"
	"github.com/ikemen-engine/waterdemo/ibl"
	"github.com/ikemen-engine/waterdemo/mesh"
	"github.com/ikemen-engine/waterdemo/resource"
	"github.com/ikemen-engine/waterdemo/scene"
	"github.com/ikemen-engine/waterdemo/shaders"
	"github.com/ikemen-engine/waterdemo/uniform"
)

// Program variants of the shader file.
const (
	programQuad             = "RENDER_QUAD"
	programGeometryForward  = "GEOMETRY_FORWARD"
	programGeometryDeferred = "GEOMETRY_DEFERRED"
	programWaterForward     = "WATER_FORWARD"
	programWaterDeferred    = "WATER_DEFERRED"
	programProbeForward     = "IBL_PROBE_FORWARD"
	programProbeDeferred    = "IBL_PROBE_DEFERRED"
	programSkybox           = "SKYBOX"
	programComposite        = "COMPOSITE"
)

var errNotInitialized = errors.New("engine not initialized")

// shaderPollInterval is how often, in seconds, shader sources are checked for
// changes when no file watcher could be started.
const shaderPollInterval = 1

var newWatcher = resource.NewWatcher

type Option func(*App)

func WithLogger(log *zap.Logger) Option {
	return func(a *App) { a.log = log }
}

func WithDecoder(d resource.ImageDecoder) Option {
	return func(a *App) { a.decoder = d }
}

func WithImporter(i mesh.Importer) Option {
	return func(a *App) { a.importer = i }
}

// WithDescription uses d instead of reading Config.ScenePath.
func WithDescription(d *scene.Description) Option {
	return func(a *App) { a.desc = d }
}

// WithProgress receives a message for every loading step of Init.
func WithProgress(fn func(step string)) Option {
	return func(a *App) { a.progress = fn }
}

type programs struct {
	quad, composite, skybox uint32
	geometry                [2]uint32
	water                   [2]uint32
	probe                   [2]uint32
}

type waterSurface struct {
	entity    int
	height    float32
	dudv      uint32
	normal    uint32
	tiling    float32
	waveSpeed float32
}

// App owns every subsystem of the renderer. All methods must be called on the
// thread that owns the GL context.
type App struct {
	cfg      Config
	dev      gpu.Device
	log      *zap.Logger
	decoder  resource.ImageDecoder
	importer mesh.Importer
	progress func(string)

	cache   *resource.Cache
	meshes  *mesh.Registry
	scene   *scene.Scene
	env     *ibl.Environment
	targets *framebuffer.Set
	watcher *resource.Watcher
	desc    *scene.Description

	pollShaders bool
	sincePoll   float32

	shaderPath  string
	programs    programs
	quad        uint32
	cube        uint32
	sphere      uint32
	planes      map[[2]float32]uint32
	quadTexture uint32

	camera      scene.Camera
	sceneName   string
	water       *waterSurface
	mode        Mode
	display     DisplayMode
	invertDepth bool
	time        float32
	ready       bool
}

func New(dev gpu.Device, cfg Config, opts ...Option) *App {
	a := &App{
		cfg:         cfg,
		dev:         dev,
		log:         zap.NewNop(),
		decoder:     resource.FileDecoder{},
		importer:    mesh.GLTFImporter{},
		mode:        cfg.Mode,
		planes:      make(map[[2]float32]uint32),
		quadTexture: resource.InvalidIndex,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *App) step(msg string) {
	a.log.Debug(msg)
	if a.progress != nil {
		a.progress(msg)
	}
}

// Init creates every GPU resource and loads the start scene. Render targets
// and vertex bindings that cannot be built are fatal and returned; missing
// textures, shaders or environments only degrade the picture.
func (a *App) Init() error {
	var source resource.SourceReader = resource.FSSource{FS: shaders.FS}
	a.shaderPath = shaders.File
	if a.cfg.ShaderDir != "" {
		source = resource.FileSource{}
		a.shaderPath = filepath.Join(a.cfg.ShaderDir, shaders.File)
	}
	a.cache = resource.NewCache(a.dev,
		resource.WithLogger(a.log.Named("resource")),
		resource.WithDecoder(a.decoder),
		resource.WithSource(source),
		resource.WithBlockBindings(map[string]uint32{
			"Globals":     uniform.GlobalsBinding,
			"LocalParams": uniform.LocalParamsBinding,
		}))
	a.meshes = mesh.NewRegistry(a.dev, a.cache, a.log.Named("mesh"), a.importer)
	a.scene = scene.New(a.dev, a.cfg.EntityBufferSize)

	a.step("render targets")
	targets, err := framebuffer.NewSet(a.dev, a.cfg.Width, a.cfg.Height)
	if err != nil {
		return err
	}
	a.targets = targets

	a.step("programs")
	a.loadPrograms()
	a.quad = a.meshes.AddMesh(mesh.Quad())
	a.cube = a.meshes.AddMesh(mesh.Cube())
	a.sphere = a.meshes.AddModel(mesh.Model{
		Mesh:      a.meshes.AddMesh(mesh.Sphere(24, 48)),
		Materials: []uint32{a.meshes.FallbackMaterial()},
	})
	if err := a.validateBindings(); err != nil {
		return err
	}

	if a.desc == nil {
		a.step("scene description")
		a.desc, err = scene.LoadDescription(a.cfg.ScenePath)
		if err != nil {
			return err
		}
	}

	a.env = ibl.New(a.dev, a.cache, a.meshes, a.shaderPath, a.log.Named("ibl"))
	a.env.SetToneMapping(a.cfg.ToneMapping, a.cfg.Exposure)
	a.env.OnStage = func(s ibl.Stage) { a.step("environment " + s.String()) }
	envPath := a.cfg.Environment
	if envPath == "" {
		envPath = a.desc.Environment
	}
	if envPath != "" {
		a.step("environment")
		if err := a.LoadEnvironment(envPath); err != nil {
			a.log.Warn("environment unavailable, rendering without image based lighting", zap.Error(err))
		}
	}

	if a.cfg.QuadTexture != "" {
		a.quadTexture = a.cache.LoadTexture(a.cfg.QuadTexture)
	}

	start := a.cfg.Scene
	if start == "" && len(a.desc.Scenes) > 0 {
		start = a.desc.Scenes[0].Name
	}
	a.ready = true
	if start != "" {
		a.step("scene " + start)
		if err := a.LoadScene(start); err != nil {
			return err
		}
	}

	if a.cfg.HotReload && a.cfg.ShaderDir != "" {
		w, err := newWatcher(a.log.Named("watcher"), a.shaderPath)
		if err != nil {
			a.log.Warn("shader watcher unavailable, polling for changes", zap.Error(err))
			a.pollShaders = true
		} else {
			a.watcher = w
		}
	}
	a.log.Info("engine initialized", zap.Stringer("mode", a.mode), zap.Int("width", a.cfg.Width), zap.Int("height", a.cfg.Height))
	return nil
}

func (a *App) loadPrograms() {
	load := func(name string) uint32 { return a.cache.LoadProgram(a.shaderPath, name) }
	a.programs = programs{
		quad:      load(programQuad),
		composite: load(programComposite),
		skybox:    load(programSkybox),
		geometry:  [2]uint32{load(programGeometryForward), load(programGeometryDeferred)},
		water:     [2]uint32{load(programWaterForward), load(programWaterDeferred)},
		probe:     [2]uint32{load(programProbeForward), load(programProbeDeferred)},
	}
}

// validateBindings builds the vertex bindings of the builtin meshes so a
// layout mismatch fails Init instead of the first frame.
func (a *App) validateBindings() error {
	checks := []struct {
		mesh    uint32
		program uint32
	}{
		{a.quad, a.programs.quad},
		{a.quad, a.programs.composite},
		{a.cube, a.programs.skybox},
		{a.meshes.Model(a.sphere).Mesh, a.programs.probe[0]},
		{a.meshes.Model(a.sphere).Mesh, a.programs.probe[1]},
	}
	for _, c := range checks {
		p := a.cache.Program(c.program)
		if p == nil || p.Handle == 0 {
			continue
		}
		if _, err := a.meshes.FindOrCreateVAO(c.mesh, 0, p); err != nil {
			return err
		}
	}
	return nil
}

// LoadScene replaces the entities and lights with the named scene of the
// description. Models that fail to import are skipped.
func (a *App) LoadScene(name string) error {
	if !a.ready {
		return errNotInitialized
	}
	sd, err := a.desc.Scene(name)
	if err != nil {
		return err
	}
	a.scene.Reset()
	a.water = nil
	a.camera = sd.Camera.Camera(a.aspect())
	if err := a.populate(sd); err != nil {
		a.scene.Reset()
		a.water = nil
		a.sceneName = ""
		return fmt.Errorf("scene %s: %w", name, err)
	}
	a.sceneName = name
	a.log.Info("scene loaded", zap.String("scene", name), zap.Int("entities", len(a.scene.Entities)), zap.Int("lights", len(a.scene.Lights)))
	return nil
}

// populate creates the entities and lights of sd in the emptied scene.
func (a *App) populate(sd *scene.SceneDesc) error {
	for _, ed := range sd.Entities {
		model, err := a.meshes.LoadModel(ed.Model)
		if err != nil {
			a.log.Error("model skipped", zap.String("scene", sd.Name), zap.String("model", ed.Model), zap.Error(err))
			continue
		}
		if _, err := a.scene.CreateEntity(ed.Transform(), model, scene.Opaque); err != nil {
			return err
		}
	}
	for _, pd := range sd.Probes {
		idx, err := a.scene.CreateEntity(pd.Transform(), a.sphere, scene.Probe)
		if err != nil {
			return err
		}
		e := &a.scene.Entities[idx]
		e.Albedo, e.Smoothness = pd.Albedo, pd.Smoothness
	}
	if wd := sd.Water; wd != nil {
		idx, err := a.scene.CreateEntity(mgl.Translate3D(0, wd.Height, 0), a.plane(wd.Size, wd.Tiling), scene.Water)
		if err != nil {
			return err
		}
		a.water = &waterSurface{
			entity:    idx,
			height:    wd.Height,
			dudv:      a.cache.LoadTexture(wd.DuDvMap),
			normal:    a.cache.LoadTexture(wd.NormalMap),
			tiling:    wd.Tiling,
			waveSpeed: wd.WaveSpeed,
		}
		if a.water.waveSpeed == 0 {
			a.water.waveSpeed = 0.03
		}
	}
	for _, ld := range sd.Lights {
		l, err := ld.Light()
		if err != nil {
			return err
		}
		if err := a.scene.AddLight(l); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) plane(size, tiling float32) uint32 {
	key := [2]float32{size, tiling}
	if m, ok := a.planes[key]; ok {
		return m
	}
	mat := mesh.NewMaterial("water", mgl.Vec3{1, 1, 1})
	m := a.meshes.AddModel(mesh.Model{
		Mesh:      a.meshes.AddMesh(mesh.Plane(size, tiling)),
		Materials: []uint32{a.meshes.AddMaterial(mat)},
	})
	a.planes[key] = m
	return m
}

// LoadEnvironment rebuilds the image based lighting maps from an HDR image.
func (a *App) LoadEnvironment(path string) error {
	if a.env == nil {
		return errNotInitialized
	}
	return a.env.Load(path)
}

func (a *App) aspect() float32 {
	if a.cfg.Height == 0 {
		return 1
	}
	return float32(a.cfg.Width) / float32(a.cfg.Height)
}

// Update advances the animation clock and rebuilds shaders changed on disk.
// Without a watcher the sources are polled by modification time.
func (a *App) Update(dt float32) {
	a.time += dt
	n := 0
	switch {
	case a.watcher != nil:
		if paths := a.watcher.Drain(); len(paths) > 0 {
			n = a.cache.ReloadPaths(paths)
		}
	case a.pollShaders:
		a.sincePoll += dt
		if a.sincePoll < shaderPollInterval {
			return
		}
		a.sincePoll = 0
		n = a.cache.ReloadModified()
	}
	if n > 0 {
		a.log.Info("shaders reloaded", zap.Int("programs", n))
	}
}

// UpdateLights rewrites the global buffer after lights were edited in place.
func (a *App) UpdateLights() error {
	a.scene.InvalidateLights()
	_, err := a.scene.UpdateLights(a.camera.Position)
	return err
}

// UpdateEntities streams the current camera into the entity buffer.
func (a *App) UpdateEntities() error {
	_, err := a.scene.UpdateEntities(a.camera.ViewProjection())
	return err
}

func (a *App) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	a.cfg.Width, a.cfg.Height = width, height
	a.camera.Aspect = a.aspect()
	if a.targets == nil {
		return nil
	}
	return a.targets.Resize(width, height)
}

func (a *App) Camera() *scene.Camera           { return &a.camera }
func (a *App) Scene() *scene.Scene             { return a.scene }
func (a *App) Environment() *ibl.Environment   { return a.env }
func (a *App) Targets() *framebuffer.Set       { return a.targets }
func (a *App) Description() *scene.Description { return a.desc }
func (a *App) Mode() Mode                      { return a.mode }
func (a *App) SetMode(m Mode)                  { a.mode = m }
func (a *App) DisplayMode() DisplayMode        { return a.display }
func (a *App) SetDisplayMode(d DisplayMode)    { a.display = d }
func (a *App) ToggleInvertDepth()              { a.invertDepth = !a.invertDepth }
func (a *App) SceneName() string               { return a.sceneName }

// CleanUp releases every GPU resource. The App cannot render afterwards.
func (a *App) CleanUp() {
	if !a.ready && a.cache == nil {
		return
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.log.Warn("watcher close", zap.Error(err))
		}
		a.watcher = nil
	}
	a.pollShaders = false
	if a.env != nil {
		a.env.Release()
	}
	if a.targets != nil {
		a.targets.Clean()
	}
	if a.scene != nil {
		a.scene.Release()
	}
	if a.meshes != nil {
		a.meshes.Release()
	}
	if a.cache != nil {
		a.cache.Release()
	}
	a.ready = false
}
