package viewer

import (
	"math"

	"github.com/charmbracelet/harmonica"

	"github.com/taigrr/avatarview/pkg/math3d"
	"github.com/taigrr/avatarview/pkg/render"
)

// avatarHeight is the normalized standing height of a loaded model.
const avatarHeight = 1.8

const (
	springFrequency = 6.0
	springDamping   = 1.0 // critically damped, no overshoot

	minDistance = 0.3
	maxDistance = 8.0
	settleEps   = 1e-3
)

// orbitAxis is one animated orbit coordinate.
type orbitAxis struct {
	pos, vel, goal float64
}

func (a *orbitAxis) step(s harmonica.Spring) {
	a.pos, a.vel = s.Update(a.pos, a.vel, a.goal)
}

func (a *orbitAxis) snap(v float64) {
	a.pos, a.vel, a.goal = v, 0, v
}

func (a *orbitAxis) settled() bool {
	return math.Abs(a.pos-a.goal) < settleEps && math.Abs(a.vel) < settleEps
}

// OrbitControls animate the camera around the avatar with harmonica springs.
type OrbitControls struct {
	azimuth, elevation, distance orbitAxis

	target math3d.Vec3

	home struct {
		azimuth, elevation, distance float64
	}

	AutoRotate      bool
	AutoRotateSpeed float64 // radians per second
}

// NewOrbitControls creates controls looking at the origin.
func NewOrbitControls(autoRotateSpeed float64) *OrbitControls {
	c := &OrbitControls{AutoRotateSpeed: autoRotateSpeed}
	c.distance.snap(3)
	return c
}

// Frame points the controls at a standing figure of the given height, or at
// its head when faceOnly is set, and makes that the home position.
func (c *OrbitControls) Frame(height float64, faceOnly bool) {
	if faceOnly {
		c.target = math3d.V3(0, height*0.92, 0)
		c.home.distance = height * 0.35
		c.home.elevation = 0
	} else {
		c.target = math3d.V3(0, height*0.5, 0)
		c.home.distance = height * 1.6
		c.home.elevation = 0.12
	}
	c.home.azimuth = 0
	c.Home(true)
}

// Home returns to the home position, animated unless snap is set.
func (c *OrbitControls) Home(snap bool) {
	if snap {
		c.azimuth.snap(c.home.azimuth)
		c.elevation.snap(c.home.elevation)
		c.distance.snap(c.home.distance)
		return
	}
	c.SetGoal(c.home.azimuth, c.home.elevation, c.home.distance)
}

// SetGoal animates toward an orbit position. The azimuth takes the short
// way around.
func (c *OrbitControls) SetGoal(azimuth, elevation, distance float64) {
	c.azimuth.goal = c.azimuth.pos + wrapAngle(azimuth-c.azimuth.pos)
	c.elevation.goal = math3d.Clamp(elevation, -render.MaxElevation, render.MaxElevation)
	c.distance.goal = math3d.Clamp(distance, minDistance, maxDistance)
}

// Goal returns the current animation goal.
func (c *OrbitControls) Goal() (azimuth, elevation, distance float64) {
	return c.azimuth.goal, c.elevation.goal, c.distance.goal
}

// Position returns the current animated orbit position.
func (c *OrbitControls) Position() (azimuth, elevation, distance float64) {
	return c.azimuth.pos, c.elevation.pos, c.distance.pos
}

// Settled reports whether every axis reached its goal.
func (c *OrbitControls) Settled() bool {
	return c.azimuth.settled() && c.elevation.settled() && c.distance.settled()
}

// HandleInput applies drag and zoom input.
func (c *OrbitControls) HandleInput(ev InputEvent) {
	switch ev.Kind {
	case InputDrag:
		c.azimuth.goal -= ev.DX * math.Pi
		c.elevation.goal = math3d.Clamp(c.elevation.goal+ev.DY*math.Pi/2, -render.MaxElevation, render.MaxElevation)
	case InputZoom:
		c.distance.goal = math3d.Clamp(c.distance.goal*(1+ev.DY*0.1), minDistance, maxDistance)
	}
}

// Update advances the springs by dt seconds.
func (c *OrbitControls) Update(dt float64) {
	if dt <= 0 {
		return
	}
	if c.AutoRotate {
		delta := c.AutoRotateSpeed * dt
		c.azimuth.pos += delta
		c.azimuth.goal += delta
	}
	s := harmonica.NewSpring(dt, springFrequency, springDamping)
	c.azimuth.step(s)
	c.elevation.step(s)
	c.distance.step(s)
}

// Apply copies the orbit into cam.
func (c *OrbitControls) Apply(cam *render.Camera) {
	cam.SetTarget(c.target)
	cam.SetOrbit(c.azimuth.pos, c.elevation.pos, c.distance.pos)
}

// wrapAngle maps a into [-π, π).
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
