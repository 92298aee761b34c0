package viewer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taigrr/avatarview/pkg/models"
)

type loadResult struct {
	inst *ModelInstance
	err  error
}

func newTestModelLifecycle(resolver *fakeResolver, fetcher *fakeFetcher) (*ModelLifecycle, *Loop) {
	loop := NewLoop()
	return NewModelLifecycle(ModelOptions{
		Resolver: resolver,
		Fetcher:  fetcher,
		Loop:     loop,
		Metrics:  NewMetrics(nil),
	}), loop
}

func TestModelLoadCoalesces(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.hold()
	m, loop := newTestModelLifecycle(&fakeResolver{}, fetcher)

	var results []loadResult
	done := func(inst *ModelInstance, err error) {
		results = append(results, loadResult{inst, err})
	}
	m.Load("female", "scan-42", done)
	m.Load("female", "scan-42", done)
	fetcher.release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.RunUntil(ctx, func() bool { return len(results) == 2 }); err != nil {
		t.Fatalf("loads did not complete: %v", err)
	}

	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	for _, r := range results {
		if r.err != nil {
			t.Fatalf("load failed: %v", r.err)
		}
	}
	if results[0].inst != results[1].inst {
		t.Error("coalesced loads returned different instances")
	}
}

func TestModelLoadDistinctKeys(t *testing.T) {
	m, loop := newTestModelLifecycle(&fakeResolver{}, newFakeFetcher())

	got := map[ModelKey]*ModelInstance{}
	for _, key := range []ModelKey{{"female", "a"}, {"male", "a"}} {
		m.Load(key.Gender, key.ScanID, func(inst *ModelInstance, err error) {
			if err != nil {
				t.Errorf("load %s: %v", key, err)
			}
			got[key] = inst
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.RunUntil(ctx, func() bool { return len(got) == 2 }); err != nil {
		t.Fatal(err)
	}
	a, b := got[ModelKey{"female", "a"}], got[ModelKey{"male", "a"}]
	if a == b || a.Generation == b.Generation {
		t.Error("distinct keys must produce distinct instances")
	}
}

func TestModelDisposeDropsInFlightLoad(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.hold()
	m, loop := newTestModelLifecycle(&fakeResolver{}, fetcher)

	called := false
	m.Load("female", "", func(*ModelInstance, error) { called = true })
	m.Dispose()
	fetcher.release()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		loop.RunPending()
		time.Sleep(5 * time.Millisecond)
	}
	if called {
		t.Error("completion delivered after Dispose")
	}
}

func TestModelAdopt(t *testing.T) {
	m, _ := newTestModelLifecycle(&fakeResolver{}, newFakeFetcher())
	scene := &SceneContext{Root: NewSceneNode("scene")}

	var loaded []*ModelInstance
	m.OnModelLoaded(func(inst *ModelInstance) { loaded = append(loaded, inst) })

	first := testInstance(t, ModelKey{Gender: "female"}, 1)
	if err := m.Adopt(first, scene); err != nil {
		t.Fatal(err)
	}
	if err := m.Adopt(first, scene); err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Errorf("onModelLoaded fired %d times for one instance", len(loaded))
	}

	second := testInstance(t, ModelKey{Gender: "male"}, 2)
	if err := m.Adopt(second, scene); err != nil {
		t.Fatal(err)
	}
	if !first.Disposed() {
		t.Error("superseded instance not disposed")
	}
	if len(scene.Root.Children) != 1 || scene.Root.Children[0] != second.Root {
		t.Error("scene must hold only the current instance")
	}
	if err := m.Adopt(first, scene); !errors.Is(err, ErrModelDisposed) {
		t.Errorf("adopting a disposed instance: err = %v", err)
	}

	m.Dispose()
	m.Dispose()
	if m.Current() != nil || !second.Disposed() {
		t.Error("Dispose left the current instance")
	}
}

func TestModelInstanceNormalized(t *testing.T) {
	inst := testInstance(t, ModelKey{Gender: "female"}, 1)

	lo, hi := inst.Primary.BoundsMin, inst.Primary.BoundsMax
	bottom := inst.Root.Transform.MulVec3(lo)
	top := inst.Root.Transform.MulVec3(hi)
	if d := top.Y - bottom.Y; d < avatarHeight-1e-9 || d > avatarHeight+1e-9 {
		t.Errorf("height = %v, want %v", d, avatarHeight)
	}
	if bottom.Y < -1e-9 || bottom.Y > 1e-9 {
		t.Errorf("feet at y=%v, want 0", bottom.Y)
	}
}

func TestModelParseFailure(t *testing.T) {
	resolver := &fakeResolver{}
	fetcher := newFakeFetcher()
	loop := NewLoop()
	m := NewModelLifecycle(ModelOptions{
		Resolver: resolver,
		Fetcher:  fetcher,
		Loop:     loop,
		Parse: func(string, []byte) (*models.Model, error) {
			return &models.Model{}, nil
		},
	})

	var got error
	done := false
	m.Load("female", "", func(_ *ModelInstance, err error) { got, done = err, true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.RunUntil(ctx, func() bool { return done }); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(got, ErrAssetParseFailed) || !errors.Is(got, models.ErrNoMesh) {
		t.Errorf("err = %v", got)
	}
}

func TestModelNotFoundIsWrapped(t *testing.T) {
	resolver := &fakeResolver{failFirst: 10}
	m, loop := newTestModelLifecycle(resolver, newFakeFetcher())

	var got error
	done := false
	m.Load("female", "", func(_ *ModelInstance, err error) { got, done = err, true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.RunUntil(ctx, func() bool { return done }); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(got, ErrAssetResolutionFailed) || !errors.Is(got, ErrAssetNotFound) {
		t.Errorf("err = %v", got)
	}
}
