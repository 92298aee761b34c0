package viewer

import (
	"errors"
	"maps"

	"go.uber.org/zap"
)

// Overrides is one batch of host-supplied values. Nil fields are left
// untouched.
type Overrides struct {
	Morphs     map[string]float64
	Face       map[string]float64
	LimbMasses map[string]float64
	SkinTone   *SkinToneInput
}

// UpdateStats counts override updates. Successes never exceeds Attempts.
type UpdateStats struct {
	Attempts  uint64 `json:"attempts"`
	Successes uint64 `json:"successes"`
}

// MorphUpdates applies incoming overrides whenever the viewer is ready and
// remembers the latest values for re-application after model or mapping
// changes.
type MorphUpdates struct {
	v      *Viewer
	stats  UpdateStats
	latest Overrides
	report MorphReport
}

// record folds o into the latest values. Maps are copied so a host may
// reuse its own. An unparsable skin tone is dropped and reported.
func (u *MorphUpdates) record(o Overrides) error {
	if o.Morphs != nil {
		u.latest.Morphs = maps.Clone(o.Morphs)
	}
	if o.Face != nil {
		u.latest.Face = maps.Clone(o.Face)
	}
	if o.LimbMasses != nil {
		u.latest.LimbMasses = maps.Clone(o.LimbMasses)
	}
	if o.SkinTone != nil {
		if _, err := ComputeSkinTone(u.v.subject.Gender, *o.SkinTone); err != nil {
			return err
		}
		tone := *o.SkinTone
		u.latest.SkinTone = &tone
	}
	return nil
}

// UpdateMorphData counts an attempt and applies o when the viewer is ready,
// a model is loaded and the projection session is active. Successes grows
// only when every apply succeeded.
func (u *MorphUpdates) UpdateMorphData(o Overrides) bool {
	v := u.v
	u.stats.Attempts++
	v.metrics.UpdateAttempts.Inc()
	toneErr := u.record(o)
	if toneErr != nil {
		v.log.Warn("skin tone dropped", zap.Error(toneErr))
		o.SkinTone = nil
	}

	model := v.model.Current()
	if !v.IsReady() || model == nil || !v.refs.ProjectionSessionActive.Get() {
		v.log.Debug("morph update dropped",
			zap.Stringer("phase", v.state.phase()),
			zap.Bool("model", model != nil),
			zap.Bool("session", v.refs.ProjectionSessionActive.Get()))
		return false
	}

	table := v.refs.MorphologyMapping.Get()
	var report MorphReport
	errs := []error{toneErr}
	if o.Morphs != nil {
		r, err := v.morph.ApplyMorphs(model, o.Morphs, table)
		report.merge(r)
		errs = append(errs, err)
	}
	if o.Face != nil {
		r, err := v.morph.ApplyFaceMorphs(model, o.Face, table)
		report.merge(r)
		errs = append(errs, err)
	}
	if o.LimbMasses != nil {
		r, err := v.morph.ApplyLimbMasses(model, o.LimbMasses, table)
		report.merge(r)
		errs = append(errs, err)
	}
	if o.SkinTone != nil {
		_, err := v.material.ConfigureMaterials(v.scene.Context(), model, *o.SkinTone, v.subject.Gender)
		errs = append(errs, err)
	}
	u.report = report

	if err := errors.Join(errs...); err != nil {
		v.log.Warn("morph update failed", zap.Error(err))
		return false
	}
	u.stats.Successes++
	v.metrics.UpdateSuccesses.Inc()
	return true
}

// reapply force-writes the latest values onto model, used after a model
// swap or a new mapping table.
func (u *MorphUpdates) reapply(model *ModelInstance) (MorphReport, error) {
	v := u.v
	table := v.refs.MorphologyMapping.Get()

	report, err := v.morph.ForceMorphsUpdate(model, u.latest.Morphs, u.latest.Face, table)
	if err != nil {
		return report, err
	}
	limbs, err := v.morph.ApplyLimbMasses(model, u.latest.LimbMasses, table)
	report.merge(limbs)
	u.report = report
	return report, err
}

// Stats returns the counters.
func (u *MorphUpdates) Stats() UpdateStats {
	return u.stats
}

// LastReport returns the report of the latest apply.
func (u *MorphUpdates) LastReport() MorphReport {
	return u.report
}
