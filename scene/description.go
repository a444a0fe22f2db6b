package scene

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mgl "github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

var ErrUnknownScene = errors.New("unknown scene")

// Description is the on-disk list of scenes and the environment they share.
type Description struct {
	Environment string      `yaml:"environment"`
	Scenes      []SceneDesc `yaml:"scenes"`
}

type SceneDesc struct {
	Name     string       `yaml:"name"`
	Camera   CameraDesc   `yaml:"camera"`
	Water    *WaterDesc   `yaml:"water,omitempty"`
	Entities []EntityDesc `yaml:"entities"`
	Probes   []ProbeDesc  `yaml:"probes,omitempty"`
	Lights   []LightDesc  `yaml:"lights"`
}

type CameraDesc struct {
	Position [3]float32 `yaml:"position"`
	Target   [3]float32 `yaml:"target"`
	FOV      float32    `yaml:"fov,omitempty"`
}

type WaterDesc struct {
	Height    float32 `yaml:"height"`
	Size      float32 `yaml:"size"`
	Tiling    float32 `yaml:"tiling"`
	DuDvMap   string  `yaml:"dudv"`
	NormalMap string  `yaml:"normal"`
	WaveSpeed float32 `yaml:"waveSpeed,omitempty"`
}

type EntityDesc struct {
	Model    string     `yaml:"model"`
	Position [3]float32 `yaml:"position"`
	Rotation [3]float32 `yaml:"rotation,omitempty"` // degrees around X, Y, Z
	Scale    [3]float32 `yaml:"scale,omitempty"`
}

type ProbeDesc struct {
	Position   [3]float32 `yaml:"position"`
	Radius     float32    `yaml:"radius,omitempty"`
	Albedo     [3]float32 `yaml:"albedo"`
	Smoothness float32    `yaml:"smoothness"`
}

type LightDesc struct {
	Type      string     `yaml:"type"`
	Color     [3]float32 `yaml:"color"`
	Direction [3]float32 `yaml:"direction,omitempty"`
	Position  [3]float32 `yaml:"position,omitempty"`
}

func LoadDescription(path string) (*Description, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := ParseDescription(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func ParseDescription(b []byte) (*Description, error) {
	var d Description
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	for _, s := range d.Scenes {
		if s.Name == "" {
			return nil, errors.New("scene without a name")
		}
		if names[s.Name] {
			return nil, fmt.Errorf("duplicate scene %q", s.Name)
		}
		names[s.Name] = true
		if len(s.Lights) > MaxLights {
			return nil, fmt.Errorf("scene %q: %w", s.Name, ErrTooManyLights)
		}
		for _, l := range s.Lights {
			if _, err := l.Light(); err != nil {
				return nil, fmt.Errorf("scene %q: %w", s.Name, err)
			}
		}
	}
	return &d, nil
}

func (d *Description) Scene(name string) (*SceneDesc, error) {
	for i := range d.Scenes {
		if d.Scenes[i].Name == name {
			return &d.Scenes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScene, name)
}

func (d *Description) Names() []string {
	names := make([]string, len(d.Scenes))
	for i, s := range d.Scenes {
		names[i] = s.Name
	}
	return names
}

func (c CameraDesc) Camera(aspect float32) Camera {
	cam := NewCamera(c.Position, c.Target, aspect)
	if c.FOV > 0 {
		cam.FOV = c.FOV
	}
	return cam
}

func (e EntityDesc) Transform() mgl.Mat4 {
	scale := mgl.Vec3(e.Scale)
	if scale == (mgl.Vec3{}) {
		scale = mgl.Vec3{1, 1, 1}
	}
	r := e.Rotation
	rot := mgl.HomogRotate3DY(mgl.DegToRad(r[1])).
		Mul4(mgl.HomogRotate3DX(mgl.DegToRad(r[0]))).
		Mul4(mgl.HomogRotate3DZ(mgl.DegToRad(r[2])))
	return mgl.Translate3D(e.Position[0], e.Position[1], e.Position[2]).
		Mul4(rot).
		Mul4(mgl.Scale3D(scale[0], scale[1], scale[2]))
}

func (p ProbeDesc) Transform() mgl.Mat4 {
	r := p.Radius
	if r == 0 {
		r = 1
	}
	return mgl.Translate3D(p.Position[0], p.Position[1], p.Position[2]).Mul4(mgl.Scale3D(r, r, r))
}

func (l LightDesc) Light() (Light, error) {
	out := Light{Color: l.Color, Direction: l.Direction, Position: l.Position}
	switch strings.ToLower(l.Type) {
	case "directional", "":
		out.Type = Directional
		if out.Direction.Len() > 0 {
			out.Direction = out.Direction.Normalize()
		}
	case "point":
		out.Type = Point
	default:
		return Light{}, fmt.Errorf("unknown light type %q", l.Type)
	}
	return out, nil
}
