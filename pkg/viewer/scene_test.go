package viewer

import (
	"errors"
	"math"
	"testing"
)

type inputContainer struct {
	fakeContainer
	fn           func(InputEvent)
	unsubscribed bool
}

func (c *inputContainer) Subscribe(fn func(InputEvent)) func() {
	c.fn = fn
	return func() { c.unsubscribed = true }
}

func TestSceneCreate(t *testing.T) {
	s := NewSceneLifecycle(SceneOptions{})
	fired := 0
	s.OnSceneReady(func(*SceneContext) { fired++ })

	if _, err := s.Create(nil, "female", "", false); !errors.Is(err, ErrContainerNotReady) {
		t.Fatalf("nil container: err = %v", err)
	}
	if _, err := s.Create(&fakeContainer{w: 0, h: 10}, "female", "", false); !errors.Is(err, ErrContainerNotReady) {
		t.Fatalf("zero width: err = %v", err)
	}
	if s.Context() != nil || fired != 0 {
		t.Fatal("scene created for an unusable container")
	}

	c := &inputContainer{fakeContainer: fakeContainer{w: 40, h: 30}}
	ctx, err := s.Create(c, "female", "", false)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.Create(c, "female", "", false)
	if err != nil || again != ctx {
		t.Error("second Create must return the live context")
	}
	if fired != 1 {
		t.Errorf("onSceneReady fired %d times", fired)
	}

	c.fn(InputEvent{Kind: InputZoom, DY: 1})
	_, _, goal := ctx.Controls.Goal()
	_, _, pos := ctx.Controls.Position()
	if goal <= pos {
		t.Error("zoom input not routed to the controls")
	}

	s.Resize(0, 0)
	if w, h := ctx.Renderer.Size(); w != 40 || h != 30 {
		t.Error("zero resize applied")
	}
	s.Resize(20, 10)
	if w, h := ctx.Renderer.Size(); w != 20 || h != 10 {
		t.Errorf("size = %dx%d", w, h)
	}

	s.Dispose()
	s.Dispose()
	if s.Context() != nil {
		t.Error("context survives Dispose")
	}
	if !c.unsubscribed {
		t.Error("input not unsubscribed")
	}
	if !ctx.Renderer.Disposed() {
		t.Error("renderer not disposed")
	}
	if s.Render() != nil {
		t.Error("rendered without a scene")
	}
}

func TestSceneReleaseResources(t *testing.T) {
	s := NewSceneLifecycle(SceneOptions{})
	if s.ReleaseResources() {
		t.Error("released without a scene")
	}
	if _, err := s.Create(&fakeContainer{w: 16, h: 16}, "female", "", false); err != nil {
		t.Fatal(err)
	}
	if !s.ReleaseResources() {
		t.Fatal("nothing released")
	}
	if s.ReleaseResources() {
		t.Error("released twice")
	}
	if s.Render() == nil || !s.Context().Renderer.Allocated() {
		t.Error("render did not reallocate")
	}
}

func TestSceneGraph(t *testing.T) {
	root := NewSceneNode("root")
	a := NewSceneNode("a")
	b := NewSceneNode("b")
	root.Add(a)
	a.Add(b)

	root.Add(b)
	if b.Parent() != root || len(a.Children) != 0 {
		t.Error("Add must reparent")
	}
	b.Detach()
	if b.Parent() != nil || len(root.Children) != 1 {
		t.Error("Detach failed")
	}
	b.Detach()
	if root.Remove(b) {
		t.Error("removed a detached node")
	}
}

func TestOrbitControls(t *testing.T) {
	t.Run("frame sets home", func(t *testing.T) {
		body := NewOrbitControls(0)
		body.Frame(avatarHeight, false)
		face := NewOrbitControls(0)
		face.Frame(avatarHeight, true)

		_, _, bd := body.Position()
		_, _, fd := face.Position()
		if fd >= bd {
			t.Errorf("face distance %v not closer than body %v", fd, bd)
		}
		if !body.Settled() {
			t.Error("framing must snap")
		}
	})

	t.Run("springs converge on the goal", func(t *testing.T) {
		c := NewOrbitControls(0)
		c.Frame(avatarHeight, false)
		c.SetGoal(math.Pi/2, 0.2, 2)
		for range 300 {
			c.Update(1.0 / 60)
		}
		az, el, dist := c.Position()
		if math.Abs(az-math.Pi/2) > 1e-2 || math.Abs(el-0.2) > 1e-2 || math.Abs(dist-2) > 1e-2 {
			t.Errorf("position = %v %v %v", az, el, dist)
		}
	})

	t.Run("azimuth takes the short way", func(t *testing.T) {
		c := NewOrbitControls(0)
		c.Frame(avatarHeight, false)
		c.SetGoal(-math.Pi/2+2*math.Pi, 0, 2)
		az, _, _ := c.Goal()
		if math.Abs(az+math.Pi/2) > 1e-9 {
			t.Errorf("goal azimuth = %v", az)
		}
	})

	t.Run("auto-rotate advances azimuth", func(t *testing.T) {
		c := NewOrbitControls(1)
		c.Frame(avatarHeight, false)
		c.AutoRotate = true
		c.Update(0.5)
		az, _, _ := c.Position()
		if az <= 0 {
			t.Errorf("azimuth = %v", az)
		}
	})

	t.Run("zoom is bounded", func(t *testing.T) {
		c := NewOrbitControls(0)
		for range 200 {
			c.HandleInput(InputEvent{Kind: InputZoom, DY: 1})
		}
		if _, _, d := c.Goal(); d != maxDistance {
			t.Errorf("distance = %v", d)
		}
	})
}

func TestWrapAngle(t *testing.T) {
	for _, a := range []float64{0, 1, -1, 3 * math.Pi, -3 * math.Pi, 7.5} {
		w := wrapAngle(a)
		if w < -math.Pi || w >= math.Pi {
			t.Errorf("wrapAngle(%v) = %v", a, w)
		}
		if d := math.Mod(a-w, 2*math.Pi); math.Abs(d) > 1e-9 && math.Abs(math.Abs(d)-2*math.Pi) > 1e-9 {
			t.Errorf("wrapAngle(%v) = %v changes the direction", a, w)
		}
	}
}

func TestParsePreset(t *testing.T) {
	for _, p := range []CameraPreset{PresetFront, PresetProfile, PresetThreeQuarter} {
		got, err := ParsePreset(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePreset(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePreset("top"); err == nil {
		t.Error("expected error")
	}
}
