package mapping

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taigrr/avatarview/pkg/math3d"
	"github.com/taigrr/avatarview/pkg/models"
)

const sampleTable = `
version: "2"
morphs:
  chest: {target: Chest}
  waist: {target: Waist, min: -1, max: 1, scale: 0.5}
  hips: {index: 2}
  shoulders: {target: Missing}
face:
  jaw: {target: Jaw}
limbs:
  left_arm: {target: ArmL, min: 0.5, max: 2}
`

func testMesh() *models.Mesh {
	m := models.NewMesh("Body")
	m.Vertices = []models.MeshVertex{{Position: math3d.V3(0, 0, 0)}}
	for _, name := range []string{"Chest", "Waist", "Hips", "Jaw"} {
		m.Targets = append(m.Targets, models.MorphTarget{Name: name, Deltas: []math3d.Vec3{{}}})
	}
	m.Weights = make([]float64, len(m.Targets))
	return m
}

func TestParseDefaults(t *testing.T) {
	tbl, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Len() != 6 {
		t.Errorf("expected 6 entries, got %d", tbl.Len())
	}

	chest, ok := tbl.Morph("chest")
	if !ok {
		t.Fatal("chest missing")
	}
	if chest.Scale != 1 || chest.Min != 0 || chest.Max != 1 {
		t.Errorf("chest defaults not applied: %+v", chest)
	}

	waist, _ := tbl.Morph("waist")
	if waist.Scale != 0.5 || waist.Min != -1 {
		t.Errorf("waist explicit values lost: %+v", waist)
	}

	if _, ok := tbl.Limb("left_arm"); !ok {
		t.Error("left_arm limb missing")
	}
	if _, ok := tbl.FaceMorph("jaw"); !ok {
		t.Error("jaw face morph missing")
	}

	want := []string{"chest", "hips", "shoulders", "waist"}
	got := tbl.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no channel", "morphs:\n  chest: {min: 0, max: 1}\n"},
		{"inverted range", "morphs:\n  chest: {target: Chest, min: 1, max: 0.5}\n"},
		{"negative index", "morphs:\n  chest: {index: -1}\n"},
		{"bad yaml", "morphs: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestChannel(t *testing.T) {
	tbl, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatal(err)
	}
	mesh := testMesh()

	tests := []struct {
		name string
		want int
	}{
		{"chest", 0},
		{"waist", 1},
		{"hips", 2},
		{"shoulders", -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := tbl.Morph(tc.name)
			if got := e.Channel(mesh); got != tc.want {
				t.Errorf("Channel() = %d, want %d", got, tc.want)
			}
		})
	}

	idx := 9
	if got := (Entry{Index: &idx}).Channel(mesh); got != -1 {
		t.Errorf("out-of-range index should be unmapped, got %d", got)
	}
	if got := (Entry{Target: "Chest"}).Channel(nil); got != -1 {
		t.Errorf("nil mesh should be unmapped, got %d", got)
	}
}

func TestWeight(t *testing.T) {
	tests := []struct {
		name        string
		entry       Entry
		in          float64
		want        float64
		wantClamped bool
	}{
		{"in range", Entry{Min: 0, Max: 1, Scale: 1}, 0.4, 0.4, false},
		{"above max", Entry{Min: 0, Max: 1, Scale: 1}, 1.5, 1.0, true},
		{"below min", Entry{Min: 0, Max: 1, Scale: 1}, -0.2, 0, true},
		{"scaled", Entry{Min: -1, Max: 1, Scale: 0.5}, 0.8, 0.4, false},
		{"zero scale means one", Entry{Min: 0, Max: 1}, 0.3, 0.3, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, clamped := tc.entry.Weight(tc.in)
			if got != tc.want || clamped != tc.wantClamped {
				t.Errorf("Weight(%v) = %v,%v want %v,%v", tc.in, got, clamped, tc.want, tc.wantClamped)
			}
		})
	}
}

func TestNilTable(t *testing.T) {
	var tbl *Table
	if _, ok := tbl.Morph("chest"); ok {
		t.Error("nil table should have no morphs")
	}
	if tbl.Len() != 0 || tbl.Names() != nil {
		t.Error("nil table should be empty")
	}
}

type loadResult struct {
	table *Table
	err   error
}

func TestWatchPicksUpLateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan loadResult, 16)
	if err := Watch(ctx, path, func(tbl *Table, err error) {
		select {
		case results <- loadResult{tbl, err}:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	first := <-results
	if first.err == nil || !errors.Is(first.err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error on initial load, got %v", first.err)
	}

	if err := os.WriteFile(path, []byte(sampleTable), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-results:
			if r.err != nil || r.table == nil {
				continue
			}
			// a create event can precede the write and load an empty table
			if _, ok := r.table.Morph("chest"); ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for mapping reload")
		}
	}
}
