package viewer

import (
	"errors"
	"testing"

	"github.com/taigrr/avatarview/pkg/models"
)

func skinState(inst *ModelInstance) []models.Material {
	var out []models.Material
	for _, mesh := range inst.Model.Meshes {
		out = append(out, mesh.Materials...)
	}
	return out
}

func TestConfigureMaterialsIdempotent(t *testing.T) {
	scene := &SceneContext{Root: NewSceneNode("scene")}
	inst := testInstance(t, ModelKey{Gender: "female"}, 1)
	l := NewMaterialLifecycle(nil)
	in := SkinToneInput{Tone: 0.55}

	first, err := l.ConfigureMaterials(scene, inst, in, "female")
	if err != nil {
		t.Fatal(err)
	}
	a := skinState(inst)

	second, err := l.ConfigureMaterials(scene, inst, in, "female")
	if err != nil {
		t.Fatal(err)
	}
	b := skinState(inst)

	if first != second {
		t.Errorf("tone %+v != %+v", first, second)
	}
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("materials: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("material %d differs:\n%+v\n%+v", i, a[i], b[i])
		}
	}
	if a[0].Metallic != 0 {
		t.Errorf("metallic = %v", a[0].Metallic)
	}
}

func TestConfigureMaterialsPreconditions(t *testing.T) {
	l := NewMaterialLifecycle(nil)
	inst := testInstance(t, ModelKey{Gender: "female"}, 1)
	scene := &SceneContext{Root: NewSceneNode("scene")}

	if _, err := l.ConfigureMaterials(nil, inst, SkinToneInput{}, "female"); !errors.Is(err, ErrNotReady) {
		t.Errorf("nil scene: err = %v", err)
	}
	if _, err := l.ConfigureMaterials(scene, nil, SkinToneInput{}, "female"); !errors.Is(err, ErrNotReady) {
		t.Errorf("nil model: err = %v", err)
	}
	inst.Dispose()
	if _, err := l.ConfigureMaterials(scene, inst, SkinToneInput{}, "female"); !errors.Is(err, ErrModelDisposed) {
		t.Errorf("disposed model: err = %v", err)
	}
}

func TestMaterialDisposeRestoresOriginals(t *testing.T) {
	scene := &SceneContext{Root: NewSceneNode("scene")}
	inst := testInstance(t, ModelKey{Gender: "female"}, 1)
	orig := skinState(inst)

	l := NewMaterialLifecycle(nil)
	if _, err := l.ConfigureMaterials(scene, inst, SkinToneInput{Hex: "#8d5524"}, "female"); err != nil {
		t.Fatal(err)
	}
	if skinState(inst)[0] == orig[0] {
		t.Fatal("material unchanged by configuration")
	}

	l.Dispose()
	got := skinState(inst)
	for i := range orig {
		if got[i] != orig[i] {
			t.Errorf("material %d not restored", i)
		}
	}
	if _, ok := l.Tone(); ok {
		t.Error("tone kept after Dispose")
	}
}

func TestComputeSkinTone(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a, _ := ComputeSkinTone("female", SkinToneInput{Tone: 0.3})
		b, _ := ComputeSkinTone("female", SkinToneInput{Tone: 0.3})
		if a != b {
			t.Errorf("%+v != %+v", a, b)
		}
	})

	t.Run("ends of the scale", func(t *testing.T) {
		light, _ := ComputeSkinTone("female", SkinToneInput{Tone: 0})
		deep, _ := ComputeSkinTone("female", SkinToneInput{Tone: 1})
		if light.Normalized != 0 || deep.Normalized != 1 {
			t.Errorf("normalized = %v, %v", light.Normalized, deep.Normalized)
		}
		if light.RGB[0] <= deep.RGB[0] {
			t.Errorf("light %v not lighter than deep %v", light.RGB, deep.RGB)
		}
	})

	t.Run("gender shifts the scale", func(t *testing.T) {
		f, _ := ComputeSkinTone("female", SkinToneInput{Tone: 0.5})
		m, _ := ComputeSkinTone("male", SkinToneInput{Tone: 0.5})
		if m.Normalized <= f.Normalized {
			t.Errorf("male %v, female %v", m.Normalized, f.Normalized)
		}
	})

	t.Run("hex overrides tone", func(t *testing.T) {
		st, err := ComputeSkinTone("female", SkinToneInput{Tone: 0.9, Hex: "#ffffff"})
		if err != nil {
			t.Fatal(err)
		}
		if st.RGB != [3]float64{1, 1, 1} {
			t.Errorf("rgb = %v", st.RGB)
		}
		if st.Normalized != 0 {
			t.Errorf("white normalized to %v, want 0", st.Normalized)
		}
	})

	t.Run("invalid hex", func(t *testing.T) {
		if _, err := ComputeSkinTone("female", SkinToneInput{Hex: "skin"}); !errors.Is(err, ErrInvalidSkinTone) {
			t.Errorf("err = %v, want ErrInvalidSkinTone", err)
		}
	})
}
