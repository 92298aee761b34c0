package viewer

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"

	"github.com/taigrr/avatarview/pkg/math3d"
	"github.com/taigrr/avatarview/pkg/models"
)

// SkinToneInput is the host's skin tone selection: a position on the
// light-to-deep scale, or an explicit hex color which wins when set.
type SkinToneInput struct {
	Tone float64
	Hex  string
}

// SkinTone is the resolved skin color.
type SkinTone struct {
	RGB        [3]float64
	Normalized float64 // 0 = lightest, 1 = deepest
}

var (
	lightSkin = colorful.Color{R: 0.96, G: 0.82, B: 0.72}
	deepSkin  = colorful.Color{R: 0.33, G: 0.21, B: 0.15}
)

// genderToneShift nudges the scale per declared gender.
func genderToneShift(gender string) float64 {
	switch strings.ToLower(gender) {
	case "male", "m":
		return 0.04
	default:
		return 0
	}
}

// ComputeSkinTone resolves in for gender. The result depends only on its
// arguments.
func ComputeSkinTone(gender string, in SkinToneInput) (SkinTone, error) {
	if in.Hex != "" {
		c, err := colorful.Hex(in.Hex)
		if err != nil {
			return SkinTone{}, fmt.Errorf("%w: %w", ErrInvalidSkinTone, err)
		}
		lc, _, _ := c.Lab()
		ll, _, _ := lightSkin.Lab()
		ld, _, _ := deepSkin.Lab()
		return SkinTone{
			RGB:        [3]float64{c.R, c.G, c.B},
			Normalized: math3d.Clamp((ll-lc)/(ll-ld), 0, 1),
		}, nil
	}

	t := math3d.Clamp(in.Tone+genderToneShift(gender), 0, 1)
	c := lightSkin.BlendLab(deepSkin, t).Clamped()
	return SkinTone{RGB: [3]float64{c.R, c.G, c.B}, Normalized: t}, nil
}

// MaterialLifecycle configures the model's skin materials from the skin
// tone and restores the originals on Dispose.
type MaterialLifecycle struct {
	log        *zap.Logger
	generation uint64
	originals  map[*models.Material]models.Material
	tone       SkinTone
	configured bool
}

// NewMaterialLifecycle creates an unconfigured lifecycle.
func NewMaterialLifecycle(log *zap.Logger) *MaterialLifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &MaterialLifecycle{log: log, originals: make(map[*models.Material]models.Material)}
}

// ConfigureMaterials recomputes every skin material of model from tone.
// Both scene and model must be live. Identical inputs produce identical
// material state.
func (l *MaterialLifecycle) ConfigureMaterials(scene *SceneContext, model *ModelInstance, tone SkinToneInput, gender string) (SkinTone, error) {
	if scene == nil || model == nil {
		return SkinTone{}, ErrNotReady
	}
	if model.Disposed() {
		return SkinTone{}, ErrModelDisposed
	}
	st, err := ComputeSkinTone(gender, tone)
	if err != nil {
		return SkinTone{}, err
	}
	if model.Generation != l.generation {
		// the previous instance is gone; its originals are meaningless
		clear(l.originals)
		l.generation = model.Generation
	}

	for _, mesh := range model.Model.Meshes {
		for _, mat := range skinMaterials(mesh, mesh == model.Primary) {
			if _, ok := l.originals[mat]; !ok {
				l.originals[mat] = *mat
			}
			orig := l.originals[mat]
			mat.BaseColor = [4]float64{st.RGB[0], st.RGB[1], st.RGB[2], orig.BaseColor[3]}
			mat.Metallic = 0
			// deeper tones read slightly glossier
			mat.Roughness = 0.62 - 0.12*st.Normalized
		}
	}

	l.tone = st
	l.configured = true
	l.log.Debug("materials configured",
		zap.Uint64("generation", model.Generation),
		zap.Float64("tone", st.Normalized),
		zap.Int("materials", len(l.originals)))
	return st, nil
}

// skinMaterials returns the materials skin tone drives on mesh. Only the
// primary mesh falls back to all of its materials.
func skinMaterials(mesh *models.Mesh, primary bool) []*models.Material {
	if primary {
		return mesh.SkinMaterials()
	}
	var out []*models.Material
	for i := range mesh.Materials {
		if mesh.Materials[i].Skin {
			out = append(out, &mesh.Materials[i])
		}
	}
	return out
}

// Tone returns the last configured tone.
func (l *MaterialLifecycle) Tone() (SkinTone, bool) {
	return l.tone, l.configured
}

// Dispose restores the original materials and forgets all state.
func (l *MaterialLifecycle) Dispose() {
	for mat, orig := range l.originals {
		*mat = orig
	}
	clear(l.originals)
	l.generation = 0
	l.tone = SkinTone{}
	l.configured = false
}
