package renderer

import "github.com/go-gl/mathgl/mgl32"

// depthRemap maps OpenGL clip depth [-1,1] to [0,1].
var depthRemap = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

type Camera struct {
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3
	FovY   float32
	Aspect float32
	Near   float32
	Far    float32
}

func NewCamera(width, height uint32) *Camera {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return &Camera{
		Eye:    mgl32.Vec3{0, 1.5, -4},
		Target: mgl32.Vec3{0, 0, 0},
		Up:     mgl32.Vec3{0, 1, 0},
		FovY:   mgl32.DegToRad(45),
		Aspect: aspect,
		Near:   0.1,
		Far:    100,
	}
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Target, c.Up)
}

// Projection has depth in [0,1].
func (c *Camera) Projection() mgl32.Mat4 {
	return depthRemap.Mul4(mgl32.Perspective(c.FovY, c.Aspect, c.Near, c.Far))
}

// WVP is projection * view * model.
func (c *Camera) WVP(model mgl32.Mat4) mgl32.Mat4 {
	return c.Projection().Mul4(c.View()).Mul4(model)
}
