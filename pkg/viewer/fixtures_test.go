package viewer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taigrr/avatarview/pkg/assets"
	"github.com/taigrr/avatarview/pkg/mapping"
	"github.com/taigrr/avatarview/pkg/models"
	"github.com/taigrr/avatarview/pkg/models/modeltest"
)

var avatarTargets = []string{"Chest", "Waist", "Jaw", "ArmL"}

const testTable = `
version: "1"
morphs:
  chest: {target: Chest}
  waist: {target: Waist, min: -1, max: 1}
face:
  jaw: {target: Jaw}
limbs:
  left_arm: {target: ArmL, min: 0.5, max: 2}
`

func avatarBytes() []byte {
	return modeltest.Avatar(modeltest.Options{Targets: avatarTargets})
}

func testMapping(t *testing.T) *mapping.Table {
	t.Helper()
	tbl, err := mapping.Parse([]byte(testTable))
	if err != nil {
		t.Fatalf("parse mapping: %v", err)
	}
	return tbl
}

func testInstance(t *testing.T, key ModelKey, generation uint64) *ModelInstance {
	t.Helper()
	m, err := models.Decode(key.String(), avatarBytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return newModelInstance(key, m, generation)
}

func weightOf(inst *ModelInstance, target string) float64 {
	return inst.Primary.Weight(inst.Primary.MorphIndex(target))
}

// fakeResolver resolves every gender to mem://<gender>, failing the first
// failFirst calls.
type fakeResolver struct {
	failFirst int32
	err       error
	calls     atomic.Int32
}

func (r *fakeResolver) ResolveModelAsset(_ context.Context, gender string) (string, error) {
	n := r.calls.Add(1)
	if n <= r.failFirst {
		if r.err != nil {
			return "", r.err
		}
		return "", assets.ErrNotFound
	}
	return "mem://" + gender, nil
}

// fakeFetcher serves payloads from memory. While gate is open-ended every
// fetch blocks until gate is closed or its context is done.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	gate     chan struct{}

	calls    atomic.Int32
	canceled atomic.Int32
	purged   atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	data := avatarBytes()
	return &fakeFetcher{payloads: map[string][]byte{
		"mem://female": data,
		"mem://male":   data,
	}}
}

func (f *fakeFetcher) hold() {
	f.gate = make(chan struct{})
}

func (f *fakeFetcher) release() {
	close(f.gate)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			f.canceled.Add(1)
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.payloads[url]
	if !ok {
		return nil, assets.ErrNotFound
	}
	return data, nil
}

func (f *fakeFetcher) Purge() {
	f.purged.Add(1)
}

type fakeContainer struct {
	mu   sync.Mutex
	w, h int
}

func (c *fakeContainer) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w, c.h
}

func (c *fakeContainer) set(w, h int) {
	c.mu.Lock()
	c.w, c.h = w, h
	c.mu.Unlock()
}

type fixture struct {
	v        *Viewer
	resolver *fakeResolver
	fetcher  *fakeFetcher
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{resolver: &fakeResolver{}, fetcher: newFakeFetcher()}
	opts := Options{
		Resolver: f.resolver,
		Fetcher:  f.fetcher,
		Gender:   "female",
		ScanID:   "scan-42",
	}
	for _, m := range mutate {
		m(&opts)
	}
	v, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.v = v
	t.Cleanup(v.Unmount)
	return f
}

// settle drains the loop until cond holds.
func settle(t *testing.T, v *Viewer, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.Loop().RunUntil(ctx, cond); err != nil {
		t.Fatalf("viewer did not settle: phase=%s err=%q", v.State().Phase, v.ErrorMessage())
	}
}

func settleReady(t *testing.T, v *Viewer) {
	t.Helper()
	settle(t, v, func() bool { return v.IsReady() || v.HasError() })
	if !v.IsReady() {
		t.Fatalf("phase = %s, error %q", v.State().Phase, v.ErrorMessage())
	}
}

func mountReady(t *testing.T, f *fixture) {
	t.Helper()
	f.v.Mount(&fakeContainer{w: 64, h: 48})
	settleReady(t, f.v)
}
