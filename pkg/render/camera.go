package render

import (
	"math"

	"github.com/taigrr/avatarview/pkg/math3d"
)

// Camera is an orbit camera: it sits on a sphere around Target and always
// looks at it.
type Camera struct {
	Target    math3d.Vec3
	Azimuth   float64 // Rotation around the Y axis, 0 = looking down -Z from +Z
	Elevation float64 // Angle above the horizontal plane
	Distance  float64 // Radius of the orbit

	// Projection parameters
	FOV         float64 // Vertical field of view in radians
	AspectRatio float64 // Width / Height
	Near        float64
	Far         float64

	viewMatrix     math3d.Mat4
	projMatrix     math3d.Mat4
	viewProjMatrix math3d.Mat4
	viewDirty      bool
	projDirty      bool
}

// MaxElevation keeps the orbit away from the poles.
const MaxElevation = math.Pi/2 - 0.01

// NewCamera creates a new camera with default settings.
func NewCamera() *Camera {
	return &Camera{
		Distance:    3,
		FOV:         math.Pi / 4,
		AspectRatio: 16.0 / 9.0,
		Near:        0.05,
		Far:         100,
		viewDirty:   true,
		projDirty:   true,
	}
}

// SetTarget sets the orbit center.
func (c *Camera) SetTarget(target math3d.Vec3) {
	c.Target = target
	c.viewDirty = true
}

// SetOrbit places the camera on its orbit. Elevation is clamped and the
// distance is kept positive.
func (c *Camera) SetOrbit(azimuth, elevation, distance float64) {
	c.Azimuth = azimuth
	c.Elevation = math3d.Clamp(elevation, -MaxElevation, MaxElevation)
	c.Distance = math.Max(distance, c.Near*2)
	c.viewDirty = true
}

// SetAspectRatio sets the aspect ratio.
func (c *Camera) SetAspectRatio(aspect float64) {
	if aspect <= 0 {
		return
	}
	c.AspectRatio = aspect
	c.projDirty = true
}

// Position returns the eye position in world space.
func (c *Camera) Position() math3d.Vec3 {
	cosEl := math.Cos(c.Elevation)
	offset := math3d.V3(
		math.Sin(c.Azimuth)*cosEl,
		math.Sin(c.Elevation),
		math.Cos(c.Azimuth)*cosEl,
	)
	return c.Target.Add(offset.Scale(c.Distance))
}

// ViewMatrix returns the view matrix.
func (c *Camera) ViewMatrix() math3d.Mat4 {
	if c.viewDirty {
		c.viewMatrix = math3d.LookAt(c.Position(), c.Target, math3d.Up())
		c.viewDirty = false
	}
	return c.viewMatrix
}

// ProjectionMatrix returns the projection matrix.
func (c *Camera) ProjectionMatrix() math3d.Mat4 {
	if c.projDirty {
		c.projMatrix = math3d.Perspective(c.FOV, c.AspectRatio, c.Near, c.Far)
		c.projDirty = false
	}
	return c.projMatrix
}

// ViewProjectionMatrix returns the combined view-projection matrix.
func (c *Camera) ViewProjectionMatrix() math3d.Mat4 {
	if c.viewDirty || c.projDirty {
		c.viewProjMatrix = c.ProjectionMatrix().Mul(c.ViewMatrix())
	}
	return c.viewProjMatrix
}
