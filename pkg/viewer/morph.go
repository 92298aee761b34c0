package viewer

import (
	"sort"

	"go.uber.org/zap"

	"github.com/taigrr/avatarview/pkg/mapping"
)

// MorphReport describes one apply call.
type MorphReport struct {
	Generation uint64
	// Written counts weights actually written; Unchanged counts mapped
	// parameters suppressed because the cached value already matched.
	Written   int
	Unchanged int
	Skipped   []string // unmapped names
	Clamped   []string // names whose value was outside the declared range
	// NoMapping is set when no mapping table was available.
	NoMapping bool
}

func (r *MorphReport) merge(o MorphReport) {
	r.Generation = o.Generation
	r.Written += o.Written
	r.Unchanged += o.Unchanged
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Clamped = append(r.Clamped, o.Clamped...)
	r.NoMapping = r.NoMapping || o.NoMapping
}

// MorphLifecycle writes morphology parameters onto the primary mesh of a
// model instance. It remembers the last weight written per channel for the
// current generation and skips unchanged writes.
type MorphLifecycle struct {
	log        *zap.Logger
	metrics    *Metrics
	generation uint64
	written    map[int]float64
}

// NewMorphLifecycle creates a lifecycle with an empty cache.
func NewMorphLifecycle(log *zap.Logger, metrics *Metrics) *MorphLifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &MorphLifecycle{log: log, metrics: metrics, written: make(map[int]float64)}
}

// lookup selects a mapping section.
type lookup func(t *mapping.Table, name string) (mapping.Entry, bool)

var (
	bodySection = (*mapping.Table).Morph
	faceSection = (*mapping.Table).FaceMorph
	limbSection = (*mapping.Table).Limb
)

// ApplyMorphs writes body parameters. Unmapped names are skipped and
// reported; out-of-range values are clamped.
func (l *MorphLifecycle) ApplyMorphs(model *ModelInstance, values map[string]float64, table *mapping.Table) (MorphReport, error) {
	return l.apply(model, values, table, bodySection)
}

// ApplyFaceMorphs writes facial parameters.
func (l *MorphLifecycle) ApplyFaceMorphs(model *ModelInstance, values map[string]float64, table *mapping.Table) (MorphReport, error) {
	return l.apply(model, values, table, faceSection)
}

// ApplyLimbMasses writes per-limb mass factors.
func (l *MorphLifecycle) ApplyLimbMasses(model *ModelInstance, masses map[string]float64, table *mapping.Table) (MorphReport, error) {
	return l.apply(model, masses, table, limbSection)
}

// ForceMorphsUpdate drops the written-value cache and re-applies body and
// face values to model.
func (l *MorphLifecycle) ForceMorphsUpdate(model *ModelInstance, values, faceValues map[string]float64, table *mapping.Table) (MorphReport, error) {
	l.Invalidate()

	report, err := l.ApplyMorphs(model, values, table)
	if err != nil {
		return report, err
	}
	face, err := l.ApplyFaceMorphs(model, faceValues, table)
	report.merge(face)
	return report, err
}

// Invalidate forgets every cached weight.
func (l *MorphLifecycle) Invalidate() {
	clear(l.written)
}

// Dispose forgets the cache and the bound generation.
func (l *MorphLifecycle) Dispose() {
	l.Invalidate()
	l.generation = 0
}

func (l *MorphLifecycle) apply(model *ModelInstance, values map[string]float64, table *mapping.Table, section lookup) (MorphReport, error) {
	if model.Disposed() {
		return MorphReport{}, ErrModelDisposed
	}
	if model.Generation != l.generation {
		l.Invalidate()
		l.generation = model.Generation
	}
	report := MorphReport{Generation: model.Generation}
	if len(values) == 0 {
		return report, nil
	}
	if table == nil {
		report.NoMapping = true
		report.Skipped = sortedKeys(values)
		l.log.Debug("morphs skipped", zap.Error(ErrMappingUnavailable), zap.Int("count", len(values)))
		l.observe(report)
		return report, nil
	}

	mesh := model.Primary
	for _, name := range sortedKeys(values) {
		entry, ok := section(table, name)
		if !ok {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		ch := entry.Channel(mesh)
		if ch < 0 {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		w, clamped := entry.Weight(values[name])
		if clamped {
			report.Clamped = append(report.Clamped, name)
		}
		if last, ok := l.written[ch]; ok && last == w {
			report.Unchanged++
			continue
		}
		mesh.SetWeight(ch, w)
		l.written[ch] = w
		report.Written++
	}

	if len(report.Skipped) > 0 {
		l.log.Debug("unmapped morph parameters", zap.Strings("names", report.Skipped))
	}
	l.observe(report)
	return report, nil
}

func (l *MorphLifecycle) observe(r MorphReport) {
	if l.metrics != nil {
		l.metrics.observeReport(r)
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
