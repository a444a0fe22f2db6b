package engine

import (
	mgl "github.com/go-gl/mathgl/mgl32"
)

type Config struct {
	Width  int
	Height int
	Mode   Mode

	// ScenePath is the scene description file; Scene picks the scene to start
	// with, the first one when empty.
	ScenePath string
	Scene     string
	// Environment overrides the environment image of the description.
	Environment string
	// QuadTexture is shown in textured quad mode.
	QuadTexture string

	// ShaderDir reads shaders from disk instead of the embedded copy.
	ShaderDir string
	HotReload bool

	EntityBufferSize uint32
	ClearColor       mgl.Vec4
	ToneMapping      bool
	Exposure         float32
}

func DefaultConfig() Config {
	return Config{
		Width:            1280,
		Height:           720,
		Mode:             ModeDeferred,
		ScenePath:        "assets/scenes.yaml",
		QuadTexture:      "assets/textures/checker.png",
		EntityBufferSize: 1 << 20,
		ClearColor:       mgl.Vec4{0.1, 0.1, 0.1, 1},
		ToneMapping:      true,
		Exposure:         1,
	}
}
