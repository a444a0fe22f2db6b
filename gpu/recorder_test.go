package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttributes(t *testing.T) {
	src := `
#ifdef VERTEX
layout(location = 2) in vec2 aUV;
layout(location=0) in vec3 aPosition;
layout (location = 3) in vec4 aTangent;
layout(location = 5) in float aWeight;
#endif
`
	attrs := parseAttributes(src)
	require.Len(t, attrs, 4)
	assert.Equal(t, AttributeInfo{Name: "aPosition", Location: 0, Components: 3}, attrs[0])
	assert.Equal(t, AttributeInfo{Name: "aUV", Location: 2, Components: 2}, attrs[1])
	assert.Equal(t, AttributeInfo{Name: "aTangent", Location: 3, Components: 4}, attrs[2])
	assert.Equal(t, AttributeInfo{Name: "aWeight", Location: 5, Components: 1}, attrs[3])
}

func TestRecorderProgramIntrospection(t *testing.T) {
	r := NewRecorder()
	vs, err := r.CompileShader(VertexStage, "layout(location = 0) in vec3 aPosition;")
	require.NoError(t, err)
	fs, err := r.CompileShader(FragmentStage, "out vec4 color;")
	require.NoError(t, err)
	prog, err := r.LinkProgram(vs, fs)
	require.NoError(t, err)
	assert.Equal(t, []AttributeInfo{{Name: "aPosition", Location: 0, Components: 3}}, r.ActiveAttributes(prog))

	r.UseProgram(prog)
	r.Uniform1i(r.UniformLocation(prog, "uTexture"), 3)
	assert.Equal(t, int32(3), r.Programs[prog].Uniforms["uTexture"])
}

func TestRecorderFailCompile(t *testing.T) {
	r := NewRecorder()
	r.FailCompile = "#define BROKEN"
	_, err := r.CompileShader(FragmentStage, "#define BROKEN\n")
	require.Error(t, err)
	assert.IsType(t, Error(""), err)
}

func TestRecorderMappedWritesLand(t *testing.T) {
	r := NewRecorder()
	buf := r.CreateBuffer(UniformBuffer, 16, nil, DynamicDraw)
	data := r.MapBuffer(UniformBuffer, buf, 16)
	require.Len(t, data, 16)
	data[4] = 0xAB
	r.UnmapBuffer(UniformBuffer, buf)
	assert.Equal(t, byte(0xAB), r.Buffers[buf].Data[4])
	assert.Equal(t, 1, r.Buffers[buf].Maps)
}

func TestRecorderDrawCapturesState(t *testing.T) {
	r := NewRecorder()
	fbo := r.CreateFramebuffer()
	r.BindFramebuffer(fbo)
	r.BindTexture(0, Texture2D, 42)
	r.BindBufferRange(1, 7, 256, 128)
	r.SetClipDistance(0, true)
	r.DrawElements(Triangles, 36, 12)

	require.Len(t, r.Draws, 1)
	d := r.Draws[0]
	assert.Equal(t, fbo, d.Framebuffer)
	assert.Equal(t, uint32(42), d.Textures[0])
	assert.Equal(t, BufferRange{Buffer: 7, Offset: 256, Size: 128}, d.Ranges[1])
	assert.True(t, d.Clip)
	assert.Equal(t, 36, d.Count)
	assert.Equal(t, 12, d.Offset)
}

func TestCubeFaceOrder(t *testing.T) {
	assert.Equal(t, TextureCubeMapPositiveX, CubeFace(0))
	assert.Equal(t, TextureCubeMapNegativeZ, CubeFace(5))
	assert.Equal(t, 3, FormatRGB16F.Channels())
	assert.True(t, FormatDepth32F.Float())
}
