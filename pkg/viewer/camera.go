package viewer

import (
	"fmt"
	"math"
)

// CameraPreset is a named camera angle.
type CameraPreset int

const (
	PresetFront CameraPreset = iota
	PresetProfile
	PresetThreeQuarter
)

func (p CameraPreset) String() string {
	switch p {
	case PresetFront:
		return "front"
	case PresetProfile:
		return "profile"
	case PresetThreeQuarter:
		return "threequarter"
	default:
		return fmt.Sprintf("preset(%d)", int(p))
	}
}

// ParsePreset parses a preset name.
func ParsePreset(s string) (CameraPreset, error) {
	switch s {
	case "front":
		return PresetFront, nil
	case "profile":
		return PresetProfile, nil
	case "threequarter", "three-quarter":
		return PresetThreeQuarter, nil
	}
	return 0, fmt.Errorf("unknown camera preset %q", s)
}

func (p CameraPreset) azimuth() float64 {
	switch p {
	case PresetProfile:
		return math.Pi / 2
	case PresetThreeQuarter:
		return math.Pi / 4
	default:
		return 0
	}
}

// CameraControls drive preset transitions and auto-rotate once the scene
// is ready. Auto-rotate is held here so it survives preset changes, resets
// and scene re-creation.
type CameraControls struct {
	scene      func() *SceneContext
	ready      func() bool
	autoRotate bool
	preset     CameraPreset
}

func newCameraControls(scene func() *SceneContext, ready func() bool) *CameraControls {
	return &CameraControls{scene: scene, ready: ready}
}

func (c *CameraControls) controls() *OrbitControls {
	if !c.ready() {
		return nil
	}
	sc := c.scene()
	if sc == nil {
		return nil
	}
	return sc.Controls
}

// SetCameraView animates to preset. It is a no-op returning false when the
// scene is not ready.
func (c *CameraControls) SetCameraView(preset CameraPreset) bool {
	oc := c.controls()
	if oc == nil {
		return false
	}
	c.preset = preset
	_, _, dist := oc.Goal()
	oc.SetGoal(preset.azimuth(), oc.home.elevation, dist)
	return true
}

// ToggleAutoRotate flips auto-rotate. No-op when not ready.
func (c *CameraControls) ToggleAutoRotate() bool {
	oc := c.controls()
	if oc == nil {
		return false
	}
	c.autoRotate = !c.autoRotate
	oc.AutoRotate = c.autoRotate
	return true
}

// ResetCamera animates back to the home framing and the front preset.
// Auto-rotate is left as is. No-op when not ready.
func (c *CameraControls) ResetCamera() bool {
	oc := c.controls()
	if oc == nil {
		return false
	}
	c.preset = PresetFront
	oc.Home(false)
	return true
}

// AutoRotate reports the auto-rotate setting.
func (c *CameraControls) AutoRotate() bool { return c.autoRotate }

// Preset returns the last selected preset.
func (c *CameraControls) Preset() CameraPreset { return c.preset }

// update pushes auto-rotate into the live controls and steps the springs.
func (c *CameraControls) update(dt float64) {
	sc := c.scene()
	if sc == nil {
		return
	}
	sc.Controls.AutoRotate = c.autoRotate && c.ready()
	sc.Controls.Update(dt)
}
