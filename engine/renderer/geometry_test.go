package renderer

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestGenerateCube(t *testing.T) {
	vertices, indices := GenerateCube(2, 2, 2)
	assert.Len(t, vertices, 24)
	assert.Len(t, indices, 36)
	for _, i := range indices {
		assert.Less(t, int(i), len(vertices))
	}
	for _, v := range vertices {
		for _, c := range v.Position {
			assert.InDelta(t, 1.0, math.Abs(float64(c)), 1e-6)
		}
	}
	assert.Equal(t, []uint16{4, 5, 6, 4, 7, 5}, indices[6:12])
}

func TestGenerateCubeDefaultsZeroExtents(t *testing.T) {
	vertices, _ := GenerateCube(0, 0, 0)
	assert.Equal(t, mgl32.Vec3{-0.5, -0.5, 0.5}, vertices[0].Position)
}

func TestEncodeVertices(t *testing.T) {
	vertices, indices := GenerateCube(1, 1, 1)
	vb := EncodeVertices(vertices)
	assert.Len(t, vb, 24*VertexStride)
	assert.Equal(t, float32(-0.5), math.Float32frombits(binary.LittleEndian.Uint32(vb[0:])))
	assert.Equal(t, vertices[0].Color[0], math.Float32frombits(binary.LittleEndian.Uint32(vb[12:])))

	ib := EncodeIndices(indices)
	assert.Len(t, ib, 72)
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(ib[2:]))
	assert.Equal(t, uint32(VertexStride), layoutStride(InputLayout()))
}

func TestCameraProjectsOriginIntoDepthRange(t *testing.T) {
	c := NewCamera(1280, 720)
	assert.InDelta(t, 1280.0/720.0, c.Aspect, 1e-6)

	clip := c.WVP(mgl32.Ident4()).Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	ndc := clip.Vec3().Mul(1 / clip.W())
	assert.InDelta(t, 0, ndc.X(), 1e-5)
	assert.Greater(t, ndc.Z(), float32(0))
	assert.Less(t, ndc.Z(), float32(1))

	m := mgl32.Translate3D(1, 2, 3)
	buf := make([]byte, 64)
	encodeMatrix(buf, m)
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[48:])), "column-major translation")
}
