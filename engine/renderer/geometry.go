package renderer

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// Vertex is a position with a per-face color.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec4
}

const VertexStride = 7 * 4

func InputLayout() []gpu.InputElement {
	return []gpu.InputElement{
		{Semantic: "POSITION", Format: gpu.FormatR32G32B32Float, Offset: 0},
		{Semantic: "COLOR", Format: gpu.FormatR32G32B32A32Float, Offset: 12},
	}
}

var faceColors = [6]mgl32.Vec4{
	{1.0, 0.2, 0.2, 1.0}, // front
	{0.2, 1.0, 0.2, 1.0}, // back
	{0.2, 0.2, 1.0, 1.0}, // left
	{1.0, 1.0, 0.2, 1.0}, // right
	{1.0, 0.2, 1.0, 1.0}, // bottom
	{0.2, 1.0, 1.0, 1.0}, // top
}

// GenerateCube returns 24 vertices, 4 per face, and 36 indices centered on
// the origin. Zero extents default to one.
func GenerateCube(width, height, depth float32) ([]Vertex, []uint16) {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}

	x0, y0, z0 := -width*0.5, -height*0.5, -depth*0.5
	x1, y1, z1 := width*0.5, height*0.5, depth*0.5

	faces := [6][4]mgl32.Vec3{
		{{x0, y0, z1}, {x1, y1, z1}, {x0, y1, z1}, {x1, y0, z1}},
		{{x1, y0, z0}, {x0, y1, z0}, {x1, y1, z0}, {x0, y0, z0}},
		{{x0, y0, z0}, {x0, y1, z1}, {x0, y1, z0}, {x0, y0, z1}},
		{{x1, y0, z1}, {x1, y1, z0}, {x1, y1, z1}, {x1, y0, z0}},
		{{x1, y0, z1}, {x0, y0, z0}, {x1, y0, z0}, {x0, y0, z1}},
		{{x0, y1, z1}, {x1, y1, z0}, {x0, y1, z0}, {x1, y1, z1}},
	}

	vertices := make([]Vertex, 0, 24)
	indices := make([]uint16, 0, 36)
	for f, corners := range faces {
		for _, p := range corners {
			vertices = append(vertices, Vertex{Position: p, Color: faceColors[f]})
		}
		base := uint16(f * 4)
		indices = append(indices, base+0, base+1, base+2, base+0, base+3, base+1)
	}
	return vertices, indices
}

// EncodeVertices lays vertices out as tightly packed little-endian floats.
func EncodeVertices(vertices []Vertex) []byte {
	out := make([]byte, 0, len(vertices)*VertexStride)
	for _, v := range vertices {
		for _, f := range v.Position {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
		for _, f := range v.Color {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

func EncodeIndices(indices []uint16) []byte {
	out := make([]byte, 0, len(indices)*2)
	for _, i := range indices {
		out = binary.LittleEndian.AppendUint16(out, i)
	}
	return out
}

// encodeMatrix writes m column-major into dst, which must hold 64 bytes.
func encodeMatrix(dst []byte, m mgl32.Mat4) {
	for i, f := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}
