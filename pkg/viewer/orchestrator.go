// Package viewer orchestrates the avatar viewer's resource lifecycles: scene,
// model, morphs and materials, under a single-threaded loop.
package viewer

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/taigrr/avatarview/pkg/assets"
	"github.com/taigrr/avatarview/pkg/mapping"
	"github.com/taigrr/avatarview/pkg/pressure"
	"github.com/taigrr/avatarview/pkg/render"
)

// PressureMonitor delivers memory pressure signals.
type PressureMonitor interface {
	OnMemoryPressure(fn func()) pressure.Registration
	Unregister(r pressure.Registration)
}

// Purger drops cached asset payloads.
type Purger interface {
	Purge()
}

// Options configures a Viewer.
type Options struct {
	Resolver assets.Resolver
	Fallback assets.Resolver
	Fetcher  assets.Fetcher
	Parse    Parser
	// Pressure is optional.
	Pressure PressureMonitor
	// Cache is purged on memory pressure. Defaults to Fetcher when it
	// implements Purger.
	Cache Purger

	Loop     *Loop
	Logger   *zap.Logger
	Registry *prometheus.Registry

	Gender          string
	ScanID          string
	FaceOnly        bool
	PerformanceMode bool
	SkinTone        SkinToneInput
	AutoRotateSpeed float64
	Render          render.Options
}

// Viewer is the orchestrator. Every method must be called on the loop
// goroutine except Snapshot.
type Viewer struct {
	opts    Options
	log     *zap.Logger
	loop    *Loop
	metrics *Metrics
	cache   Purger

	refs  *Refs
	state stateHolder

	scene    *SceneLifecycle
	model    *ModelLifecycle
	morph    *MorphLifecycle
	material *MaterialLifecycle
	camera   *CameraControls
	updates  *MorphUpdates

	container Container
	mounted   bool
	subject   ModelKey
	faceOnly  bool

	pressureReg        pressure.Registration
	pressureRegistered bool

	frames   uint64
	snapshot atomic.Pointer[Snapshot]
}

// New creates an unmounted viewer.
func New(opts Options) (*Viewer, error) {
	if opts.Resolver == nil {
		return nil, errors.New("viewer: resolver required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("viewer: fetcher required")
	}
	if opts.Loop == nil {
		opts.Loop = NewLoop()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Render == (render.Options{}) {
		opts.Render = render.DefaultOptions()
	}
	opts.Render.Flat = opts.Render.Flat || opts.PerformanceMode

	v := &Viewer{
		opts:     opts,
		log:      log,
		loop:     opts.Loop,
		metrics:  NewMetrics(opts.Registry),
		refs:     NewRefs(),
		subject:  ModelKey{Gender: opts.Gender, ScanID: opts.ScanID},
		faceOnly: opts.FaceOnly,
	}
	v.cache = opts.Cache
	if v.cache == nil {
		v.cache, _ = opts.Fetcher.(Purger)
	}
	v.updates = &MorphUpdates{v: v}
	if tone := opts.SkinTone; tone != (SkinToneInput{}) {
		if err := v.updates.record(Overrides{SkinTone: &tone}); err != nil {
			log.Warn("configured skin tone ignored", zap.Error(err))
		}
	}

	v.state.observer = v.onPhaseChange
	v.scene = NewSceneLifecycle(SceneOptions{
		Render:          opts.Render,
		AutoRotateSpeed: opts.AutoRotateSpeed,
		Logger:          log.Named("scene"),
	})
	v.scene.OnSceneReady(v.onSceneReady)
	v.model = NewModelLifecycle(ModelOptions{
		Resolver: opts.Resolver,
		Fallback: opts.Fallback,
		Fetcher:  opts.Fetcher,
		Parse:    opts.Parse,
		Loop:     v.loop,
		Metrics:  v.metrics,
		Logger:   log.Named("model"),
	})
	v.model.OnModelLoaded(v.onModelLoaded)
	v.morph = NewMorphLifecycle(log.Named("morph"), v.metrics)
	v.material = NewMaterialLifecycle(log.Named("material"))
	v.camera = newCameraControls(v.scene.Context, v.IsReady)

	v.publish()
	return v, nil
}

// Loop returns the viewer's loop.
func (v *Viewer) Loop() *Loop { return v.loop }

// Metrics returns the viewer's collectors.
func (v *Viewer) Metrics() *Metrics { return v.metrics }

// Refs returns the shared cells.
func (v *Viewer) Refs() *Refs { return v.refs }

// State returns the current state.
func (v *Viewer) State() ViewerState { return v.state.get() }

// IsReady reports whether the viewer is ready.
func (v *Viewer) IsReady() bool { return v.state.get().IsReady() }

// HasError reports whether the viewer is in the error phase.
func (v *Viewer) HasError() bool { return v.state.get().HasError() }

// ErrorMessage returns the retained error message.
func (v *Viewer) ErrorMessage() string { return v.state.get().ErrorMessage() }

// Scene returns the scene handle, or nil.
func (v *Viewer) Scene() *SceneContext { return v.scene.Context() }

// Model returns the model handle, or nil.
func (v *Viewer) Model() *ModelInstance { return v.model.Current() }

// Subject returns the requested (gender, scan id).
func (v *Viewer) Subject() ModelKey { return v.subject }

// Stats returns the update counters.
func (v *Viewer) Stats() UpdateStats { return v.updates.Stats() }

// LastReport returns the report of the latest morph apply.
func (v *Viewer) LastReport() MorphReport { return v.updates.LastReport() }

// SkinTone returns the configured skin tone.
func (v *Viewer) SkinTone() (SkinTone, bool) { return v.material.Tone() }

// Camera returns the camera controls.
func (v *Viewer) Camera() *CameraControls { return v.camera }

// Mount attaches the container and starts initialization once it has a
// non-zero size.
func (v *Viewer) Mount(c Container) {
	if v.mounted && c != v.container {
		v.replaceContainer(c)
		return
	}
	v.container = c
	v.mounted = true
	v.requestInitialization()
}

// replaceContainer rebuilds the scene against a new container. The current
// model is detached and re-attached to the new scene rather than reloaded.
func (v *Viewer) replaceContainer(c Container) {
	if v.scene.Context() != nil {
		v.log.Info("container replaced; rebuilding scene")
		if inst := v.model.Current(); inst != nil {
			inst.Root.Detach()
		}
		v.scene.Dispose()
	}
	v.container = c
	if v.state.phase() == PhaseUninitialized {
		v.requestInitialization()
	} else {
		v.startScene()
	}
	v.publish()
}

// ContainerResized follows a container size change and starts a pending
// initialization that was waiting for a non-zero size.
func (v *Viewer) ContainerResized() {
	if !v.mounted {
		return
	}
	if v.scene.Context() != nil {
		w, h := v.container.Size()
		v.scene.Resize(w, h)
		return
	}
	switch v.state.phase() {
	case PhaseUninitialized:
		v.requestInitialization()
	case PhaseInitializing, PhaseReady, PhaseError:
		v.startScene()
	}
}

// requestInitialization runs the Uninitialized -> Initializing transition.
// Requests while initialized or already initializing are ignored.
func (v *Viewer) requestInitialization() {
	switch {
	case v.refs.FullyInitialized.Get():
		v.log.Debug("initialization request ignored: already initialized")
		return
	case v.state.phase() == PhaseInitializing:
		v.log.Debug("initialization request ignored: in flight")
		return
	case v.state.phase() == PhaseError:
		v.log.Debug("initialization request ignored: retry required")
		return
	case !containerReady(v.container):
		v.log.Debug("waiting for container", zap.Error(ErrContainerNotReady))
		return
	}
	v.transition(PhaseInitializing, "")
	v.startScene()
}

// startScene creates the scene, or reuses a live one, and proceeds to the
// model load.
func (v *Viewer) startScene() {
	if sc := v.scene.Context(); sc != nil {
		v.beginModelLoad()
		return
	}
	_, err := v.scene.Create(v.container, v.subject.Gender, v.subject.ScanID, v.faceOnly)
	switch {
	case errors.Is(err, ErrContainerNotReady):
		v.log.Debug("waiting for container", zap.Error(err))
	case err != nil:
		v.fail(fmt.Errorf("create scene: %w", err))
	}
}

func (v *Viewer) onSceneReady(sc *SceneContext) {
	if !v.pressureRegistered && v.opts.Pressure != nil {
		v.pressureReg = v.opts.Pressure.OnMemoryPressure(func() {
			v.loop.Post(v.handleMemoryPressure)
		})
		v.pressureRegistered = true
	}
	// a replacement scene keeps the live model; a pending subject switch
	// completes onto it, and Error waits for RetryInitialization
	if ph := v.state.phase(); ph == PhaseReady || ph == PhaseError {
		if inst := v.model.Current(); inst != nil {
			sc.Root.Add(inst.Root)
			v.camera.SetCameraView(v.camera.Preset())
			v.log.Info("model re-attached to new scene", zap.Stringer("key", inst.Key))
		}
		return
	}
	v.beginModelLoad()
}

func (v *Viewer) beginModelLoad() {
	key := v.subject
	v.log.Info("loading model", zap.Stringer("key", key))
	v.model.Load(key.Gender, key.ScanID, func(inst *ModelInstance, err error) {
		v.onLoadComplete(key, inst, err)
	})
}

func (v *Viewer) onLoadComplete(key ModelKey, inst *ModelInstance, err error) {
	if !v.mounted {
		return
	}
	if key != v.subject {
		v.log.Debug("dropping superseded model", zap.Stringer("key", key), zap.Stringer("want", v.subject))
		return
	}
	if err != nil {
		v.fail(err)
		return
	}
	sc := v.scene.Context()
	if sc == nil {
		return
	}
	if err := v.model.Adopt(inst, sc); err != nil {
		v.fail(err)
	}
}

// onModelLoaded applies mapping and materials to a freshly adopted instance
// and enters Ready.
func (v *Viewer) onModelLoaded(inst *ModelInstance) {
	if v.refs.MorphologyMapping.Get() == nil {
		v.log.Info("mapping not loaded yet; morphs deferred", zap.Error(ErrMappingUnavailable))
	}
	report, err := v.updates.reapply(inst)
	if err != nil {
		v.fail(fmt.Errorf("apply morphs: %w", err))
		return
	}

	tone := SkinToneInput{}
	if t := v.updates.latest.SkinTone; t != nil {
		tone = *t
	}
	_, err = v.material.ConfigureMaterials(v.scene.Context(), inst, tone, inst.Key.Gender)
	if errors.Is(err, ErrInvalidSkinTone) {
		v.log.Warn("skin tone rejected; using default", zap.Error(err))
		v.updates.latest.SkinTone = nil
		_, err = v.material.ConfigureMaterials(v.scene.Context(), inst, SkinToneInput{}, inst.Key.Gender)
	}
	if err != nil {
		v.fail(fmt.Errorf("configure materials: %w", err))
		return
	}

	v.log.Info("model ready",
		zap.Stringer("key", inst.Key),
		zap.Uint64("generation", inst.Generation),
		zap.Int("morphs_written", report.Written),
		zap.Int("morphs_skipped", len(report.Skipped)))

	if v.state.phase() == PhaseInitializing {
		v.transition(PhaseReady, "")
		v.refs.FullyInitialized.Set(true)
	}
	v.publish()
}

// fail enters Error, keeping the message. Scene and model stay so the last
// frame remains visible.
func (v *Viewer) fail(err error) {
	v.log.Error("viewer initialization failed", zap.Error(err))
	v.transition(PhaseError, err.Error())
}

// RetryInitialization leaves Error and re-runs initialization against the
// attached container. It reports whether a retry started.
func (v *Viewer) RetryInitialization() bool {
	if v.state.phase() != PhaseError || !v.mounted {
		return false
	}
	v.log.Info("retrying initialization")
	v.refs.FullyInitialized.Set(false)
	v.transition(PhaseInitializing, "")
	v.startScene()
	return true
}

// SetSubject switches the avatar. While ready the current model keeps
// rendering until the replacement is adopted.
func (v *Viewer) SetSubject(gender, scanID string) {
	key := ModelKey{Gender: gender, ScanID: scanID}
	if key == v.subject {
		return
	}
	v.subject = key
	v.publish()

	switch v.state.phase() {
	case PhaseReady, PhaseInitializing:
		if v.scene.Context() != nil {
			v.beginModelLoad()
		}
	}
}

// SetMapping installs a mapping table. While ready the latest overrides
// are force-applied through it.
func (v *Viewer) SetMapping(t *mapping.Table) {
	v.refs.MorphologyMapping.Set(t)
	if t == nil {
		v.log.Warn("mapping cleared", zap.Error(ErrMappingUnavailable))
		v.publish()
		return
	}
	v.log.Info("mapping installed", zap.Int("entries", t.Len()), zap.String("version", t.Version))

	if model := v.model.Current(); v.IsReady() && model != nil {
		if _, err := v.updates.reapply(model); err != nil {
			v.log.Warn("re-applying morphs after mapping change", zap.Error(err))
		}
	}
	v.publish()
}

// SetPerformanceMode switches flat shading on the live renderer and on
// renderers created later.
func (v *Viewer) SetPerformanceMode(on bool) {
	v.opts.PerformanceMode = on
	v.opts.Render.Flat = on
	v.scene.opts.Render.Flat = on
	if sc := v.scene.Context(); sc != nil {
		sc.Renderer.SetFlat(on)
	}
	v.log.Info("performance mode", zap.Bool("on", on))
}

// PerformanceMode reports whether flat shading is on.
func (v *Viewer) PerformanceMode() bool { return v.opts.Render.Flat }

// SetProjectionSession gates live morph updates.
func (v *Viewer) SetProjectionSession(active bool) {
	v.refs.ProjectionSessionActive.Set(active)
}

// UpdateMorphData applies a batch of overrides; see MorphUpdates.
func (v *Viewer) UpdateMorphData(o Overrides) bool {
	ok := v.updates.UpdateMorphData(o)
	v.publish()
	return ok
}

// ForceMorphsUpdate records o and re-applies every latest value with the
// write cache dropped.
func (v *Viewer) ForceMorphsUpdate(o Overrides) (MorphReport, error) {
	model := v.model.Current()
	if !v.IsReady() || model == nil {
		return MorphReport{}, ErrNotReady
	}
	toneErr := v.updates.record(o)
	report, err := v.updates.reapply(model)
	if err == nil && o.SkinTone != nil && toneErr == nil {
		_, err = v.material.ConfigureMaterials(v.scene.Context(), model, *o.SkinTone, v.subject.Gender)
	}
	v.publish()
	return report, errors.Join(toneErr, err)
}

// SetCameraView animates to preset. No-op when not ready.
func (v *Viewer) SetCameraView(p CameraPreset) bool { return v.camera.SetCameraView(p) }

// ToggleAutoRotate flips auto-rotate. No-op when not ready.
func (v *Viewer) ToggleAutoRotate() bool { return v.camera.ToggleAutoRotate() }

// ResetCamera returns to the home framing. No-op when not ready.
func (v *Viewer) ResetCamera() bool { return v.camera.ResetCamera() }

// Frame advances animation by dt seconds and renders. It returns nil
// without a scene.
func (v *Viewer) Frame(dt float64) *render.Framebuffer {
	if v.scene.Context() == nil {
		return nil
	}
	v.camera.update(dt)
	fb := v.scene.Render()
	v.frames++
	v.publish()
	return fb
}

func (v *Viewer) handleMemoryPressure() {
	if !v.mounted {
		return
	}
	released := v.scene.ReleaseResources()
	if v.cache != nil {
		v.cache.Purge()
	}
	v.metrics.PressureEvents.Inc()
	v.log.Info("memory pressure: released scene resources",
		zap.Bool("renderer_released", released),
		zap.Stringer("phase", v.state.phase()))
	v.publish()
}

// Unmount tears everything down in reverse creation order and resets to
// Uninitialized. Loads still in flight complete as no-ops.
func (v *Viewer) Unmount() {
	if v.pressureRegistered {
		v.opts.Pressure.Unregister(v.pressureReg)
		v.pressureRegistered = false
	}
	v.material.Dispose()
	v.morph.Dispose()
	v.model.Dispose()
	v.scene.Dispose()

	v.container = nil
	v.mounted = false
	v.refs.FullyInitialized.Set(false)
	v.transition(PhaseUninitialized, "")
	v.publish()
}

func (v *Viewer) transition(to Phase, msg string) {
	if err := v.state.transition(to, msg); err != nil {
		v.log.Error("state machine", zap.Error(err))
	}
}

func (v *Viewer) onPhaseChange(from, to ViewerState) {
	v.metrics.Phase.Set(float64(to.Phase))
	v.log.Info("phase changed",
		zap.Stringer("from", from.Phase),
		zap.Stringer("to", to.Phase),
		zap.String("error", to.Err))
	v.publish()
}

// Snapshot is an immutable view of the viewer for other goroutines.
type Snapshot struct {
	Phase             string      `json:"phase"`
	Ready             bool        `json:"ready"`
	Error             string      `json:"error,omitempty"`
	Gender            string      `json:"gender"`
	ScanID            string      `json:"scan_id,omitempty"`
	Generation        uint64      `json:"generation"`
	Stats             UpdateStats `json:"stats"`
	Skipped           []string    `json:"skipped,omitempty"`
	Clamped           []string    `json:"clamped,omitempty"`
	MappingEntries    int         `json:"mapping_entries"`
	ProjectionSession bool        `json:"projection_session"`
	AutoRotate        bool        `json:"auto_rotate"`
	Preset            string      `json:"preset"`
	RendererAllocated bool        `json:"renderer_allocated"`
	Frames            uint64      `json:"frames"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Snapshot returns the latest published snapshot. Safe from any goroutine.
func (v *Viewer) Snapshot() *Snapshot {
	return v.snapshot.Load()
}

func (v *Viewer) publish() {
	st := v.state.get()
	report := v.updates.LastReport()
	s := &Snapshot{
		Phase:             st.Phase.String(),
		Ready:             st.IsReady(),
		Error:             st.Err,
		Gender:            v.subject.Gender,
		ScanID:            v.subject.ScanID,
		Stats:             v.updates.Stats(),
		Skipped:           report.Skipped,
		Clamped:           report.Clamped,
		MappingEntries:    v.refs.MorphologyMapping.Get().Len(),
		ProjectionSession: v.refs.ProjectionSessionActive.Get(),
		AutoRotate:        v.camera != nil && v.camera.AutoRotate(),
		Frames:            v.frames,
		UpdatedAt:         time.Now(),
	}
	if v.camera != nil {
		s.Preset = v.camera.Preset().String()
	}
	if m := v.model.Current(); m != nil {
		s.Generation = m.Generation
	}
	if sc := v.scene.Context(); sc != nil {
		s.RendererAllocated = sc.Renderer.Allocated()
	}
	v.snapshot.Store(s)
}
