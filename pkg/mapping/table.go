// Package mapping translates logical morphology parameter names into
// mesh-specific morph target channels.
package mapping

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/taigrr/avatarview/pkg/math3d"
	"github.com/taigrr/avatarview/pkg/models"
)

// ErrInvalid is returned for tables that fail validation.
var ErrInvalid = errors.New("invalid mapping table")

// Entry maps one logical parameter to a morph target channel.
// Target (by name) wins over Index when both are set.
type Entry struct {
	Target string  `yaml:"target,omitempty"`
	Index  *int    `yaml:"index,omitempty"`
	Scale  float64 `yaml:"scale,omitempty"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// Table is a read-only morphology mapping. Morphs holds body parameters,
// Face holds facial parameters and Limbs holds per-limb mass factors.
type Table struct {
	Version string           `yaml:"version,omitempty"`
	Morphs  map[string]Entry `yaml:"morphs"`
	Face    map[string]Entry `yaml:"face,omitempty"`
	Limbs   map[string]Entry `yaml:"limbs,omitempty"`
}

// Parse decodes and validates a YAML mapping table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads and parses a mapping table file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// normalize fills scale and range defaults.
func (t *Table) normalize() {
	for _, section := range []map[string]Entry{t.Morphs, t.Face, t.Limbs} {
		for name, e := range section {
			if e.Scale == 0 {
				e.Scale = 1
			}
			if e.Min == 0 && e.Max == 0 {
				e.Max = 1
			}
			section[name] = e
		}
	}
}

// Validate checks every entry for a channel reference and a sane range.
func (t *Table) Validate() error {
	for sectionName, section := range map[string]map[string]Entry{
		"morphs": t.Morphs, "face": t.Face, "limbs": t.Limbs,
	} {
		for name, e := range section {
			if e.Target == "" && e.Index == nil {
				return fmt.Errorf("%w: %s.%s has neither target nor index", ErrInvalid, sectionName, name)
			}
			if e.Index != nil && *e.Index < 0 {
				return fmt.Errorf("%w: %s.%s has negative index %d", ErrInvalid, sectionName, name, *e.Index)
			}
			if e.Min > e.Max {
				return fmt.Errorf("%w: %s.%s min %g > max %g", ErrInvalid, sectionName, name, e.Min, e.Max)
			}
		}
	}
	return nil
}

// Morph looks up a body parameter.
func (t *Table) Morph(name string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.Morphs[name]
	return e, ok
}

// FaceMorph looks up a facial parameter.
func (t *Table) FaceMorph(name string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.Face[name]
	return e, ok
}

// Limb looks up a limb mass factor.
func (t *Table) Limb(name string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.Limbs[name]
	return e, ok
}

// Len returns the total number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Morphs) + len(t.Face) + len(t.Limbs)
}

// Names returns the sorted body parameter names.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.Morphs))
	for name := range t.Morphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Channel resolves the entry to a morph target index on mesh, or -1 if the
// mesh has no such channel.
func (e Entry) Channel(mesh *models.Mesh) int {
	if mesh == nil {
		return -1
	}
	if e.Target != "" {
		return mesh.MorphIndex(e.Target)
	}
	if e.Index != nil && *e.Index < mesh.MorphCount() {
		return *e.Index
	}
	return -1
}

// Weight clamps v into [Min, Max] and applies Scale. clamped reports whether
// v was outside the range.
func (e Entry) Weight(v float64) (w float64, clamped bool) {
	c := math3d.Clamp(v, e.Min, e.Max)
	scale := e.Scale
	if scale == 0 {
		scale = 1
	}
	return c * scale, c != v
}
