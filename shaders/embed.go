// Package shaders embeds the GLSL sources so the demo runs without a shader
// directory next to the binary.
package shaders

import "embed"

// File is the name of the source every program variant is built from.
const File = "shaders.glsl"

//go:embed *.glsl
var FS embed.FS
