package engine

import (
	"fmt"
	"strings"
)

// Mode selects the render path of a frame.
type Mode int

const (
	ModeTexturedQuad Mode = iota
	ModeForward
	ModeDeferred
)

func (m Mode) String() string {
	switch m {
	case ModeTexturedQuad:
		return "quad"
	case ModeForward:
		return "forward"
	case ModeDeferred:
		return "deferred"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeTexturedQuad, ModeForward, ModeDeferred} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown render mode %q", s)
}

// DisplayMode selects which G-buffer channel the deferred composite shows.
type DisplayMode int32

const (
	DisplayDefault DisplayMode = iota
	DisplayAlbedo
	DisplayNormals
	DisplayPosition
	DisplayViewDir
	DisplayDepth
	displayModes
)

var displayNames = [...]string{"default", "albedo", "normals", "position", "viewdir", "depth"}

func (d DisplayMode) String() string {
	if d < 0 || d >= displayModes {
		return fmt.Sprintf("DisplayMode(%d)", int32(d))
	}
	return displayNames[d]
}

// Next cycles through the display modes.
func (d DisplayMode) Next() DisplayMode {
	return (d + 1) % displayModes
}
