package viewer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/taigrr/avatarview/pkg/assets"
	"github.com/taigrr/avatarview/pkg/math3d"
	"github.com/taigrr/avatarview/pkg/models"
)

// Parser decodes downloaded asset bytes.
type Parser func(name string, data []byte) (*models.Model, error)

// ModelKey identifies a model instance.
type ModelKey struct {
	Gender string
	ScanID string
}

func (k ModelKey) String() string {
	if k.ScanID == "" {
		return k.Gender
	}
	return k.Gender + "/" + k.ScanID
}

// ModelInstance is one loaded avatar. It is replaced wholesale when the
// subject changes; Generation is unique per instance.
type ModelInstance struct {
	Key        ModelKey
	Root       *SceneNode
	Primary    *models.Mesh
	Model      *models.Model
	Generation uint64

	disposed bool
}

// Disposed reports whether the instance has been torn down.
func (m *ModelInstance) Disposed() bool {
	return m == nil || m.disposed
}

// Dispose detaches the instance from the scene.
func (m *ModelInstance) Dispose() {
	if m == nil || m.disposed {
		return
	}
	m.Root.Detach()
	m.disposed = true
}

func newModelInstance(key ModelKey, model *models.Model, generation uint64) *ModelInstance {
	root := NewSceneNode("avatar:" + key.String())

	lo, hi := model.Bounds()
	// Stand the figure on the origin and scale it to avatarHeight.
	size := hi.Sub(lo)
	scale := 1.0
	if size.Y > 0 {
		scale = avatarHeight / size.Y
	}
	center := lo.Add(hi).Scale(0.5)
	root.Transform = math3d.ScaleUniform(scale).Mul(math3d.Translate(math3d.V3(-center.X, -lo.Y, -center.Z)))

	for _, mesh := range model.Meshes {
		node := NewSceneNode(mesh.Name)
		node.Mesh = mesh
		root.Add(node)
	}
	return &ModelInstance{
		Key:        key,
		Root:       root,
		Primary:    model.Primary,
		Model:      model,
		Generation: generation,
	}
}

// ModelOptions configures a ModelLifecycle.
type ModelOptions struct {
	Resolver assets.Resolver
	// Fallback is tried once when resolving or downloading through Resolver
	// fails. Nil retries Resolver.
	Fallback assets.Resolver
	Fetcher  assets.Fetcher
	Parse    Parser
	Loop     *Loop
	Metrics  *Metrics
	Logger   *zap.Logger
}

// ModelLifecycle downloads, parses and owns the current model instance.
type ModelLifecycle struct {
	opts ModelOptions
	log  *zap.Logger

	group      singleflight.Group
	generation atomic.Uint64

	// Loads started in one epoch are bound to ctx; Dispose cancels ctx
	// and bumps the epoch so late completions are dropped.
	ctx    context.Context
	cancel context.CancelFunc
	epoch  uint64

	current  *ModelInstance
	onLoaded func(*ModelInstance)
}

// NewModelLifecycle creates a lifecycle with no model.
func NewModelLifecycle(opts ModelOptions) *ModelLifecycle {
	if opts.Fallback == nil {
		opts.Fallback = opts.Resolver
	}
	if opts.Parse == nil {
		opts.Parse = models.Decode
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &ModelLifecycle{opts: opts, log: log}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// OnModelLoaded sets the callback fired when an instance is adopted.
func (m *ModelLifecycle) OnModelLoaded(fn func(*ModelInstance)) {
	m.onLoaded = fn
}

// Current returns the adopted instance, or nil.
func (m *ModelLifecycle) Current() *ModelInstance {
	return m.current
}

// Load resolves, downloads and parses the model for (gender, scanID) in the
// background; done runs on the loop. Loads of the same key while one is in
// flight share its fetch and receive the same instance. done is never
// called for loads canceled by Dispose.
func (m *ModelLifecycle) Load(gender, scanID string, done func(*ModelInstance, error)) {
	key := ModelKey{Gender: gender, ScanID: scanID}
	epoch, ctx := m.epoch, m.ctx
	flight := fmt.Sprintf("%d|%s", epoch, key)

	ch := m.group.DoChan(flight, func() (any, error) {
		return m.fetch(ctx, key)
	})
	go func() {
		select {
		case res := <-ch:
			m.opts.Loop.Post(func() {
				if epoch != m.epoch {
					m.log.Debug("dropping stale model load", zap.Stringer("key", key))
					return
				}
				inst, _ := res.Val.(*ModelInstance)
				done(inst, res.Err)
			})
		case <-ctx.Done():
		}
	}()
}

// fetch runs on a background goroutine.
func (m *ModelLifecycle) fetch(ctx context.Context, key ModelKey) (*ModelInstance, error) {
	start := time.Now()

	data, err := m.download(ctx, m.opts.Resolver, key.Gender)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.log.Warn("primary asset path failed, trying fallback",
			zap.Stringer("key", key), zap.Error(err))
		if m.opts.Metrics != nil {
			m.opts.Metrics.FallbackLoads.Inc()
		}
		var ferr error
		data, ferr = m.download(ctx, m.opts.Fallback, key.Gender)
		if ferr != nil {
			m.observe("resolve_error", start)
			return nil, fmt.Errorf("%w: %s: %w", ErrAssetResolutionFailed, key, ferr)
		}
	}

	model, err := m.opts.Parse(key.String(), data)
	if err != nil {
		m.observe("parse_error", start)
		return nil, fmt.Errorf("%w: %s: %w", ErrAssetParseFailed, key, err)
	}
	if model == nil || model.Primary == nil || len(model.Meshes) == 0 {
		m.observe("parse_error", start)
		return nil, fmt.Errorf("%w: %s: %w", ErrAssetParseFailed, key, models.ErrNoMesh)
	}

	m.observe("ok", start)
	inst := newModelInstance(key, model, m.generation.Add(1))
	m.log.Info("model parsed",
		zap.Stringer("key", key),
		zap.Uint64("generation", inst.Generation),
		zap.Int("meshes", len(model.Meshes)),
		zap.Int("morph_targets", inst.Primary.MorphCount()),
		zap.Duration("elapsed", time.Since(start)))
	return inst, nil
}

func (m *ModelLifecycle) download(ctx context.Context, r assets.Resolver, gender string) ([]byte, error) {
	url, err := r.ResolveModelAsset(ctx, gender)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.AssetFetches.Inc()
	}
	data, err := m.opts.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return data, nil
}

func (m *ModelLifecycle) observe(result string, start time.Time) {
	if m.opts.Metrics == nil {
		return
	}
	m.opts.Metrics.ModelLoads.WithLabelValues(result).Inc()
	m.opts.Metrics.LoadSeconds.Observe(time.Since(start).Seconds())
}

// Adopt attaches inst to the scene, replacing the current instance. The
// previous instance is detached and disposed first.
func (m *ModelLifecycle) Adopt(inst *ModelInstance, scene *SceneContext) error {
	if inst.Disposed() {
		return ErrModelDisposed
	}
	if inst == m.current {
		return nil
	}
	if m.current != nil {
		m.log.Info("replacing model",
			zap.Stringer("old", m.current.Key), zap.Uint64("old_generation", m.current.Generation),
			zap.Stringer("new", inst.Key), zap.Uint64("new_generation", inst.Generation))
		m.current.Dispose()
	}
	scene.Root.Add(inst.Root)
	m.current = inst
	if m.onLoaded != nil {
		m.onLoaded(inst)
	}
	return nil
}

// Dispose cancels in-flight loads and disposes the current instance.
// Safe to call repeatedly.
func (m *ModelLifecycle) Dispose() {
	m.cancel()
	m.epoch++
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if m.current != nil {
		m.current.Dispose()
		m.log.Info("model disposed", zap.Stringer("key", m.current.Key))
		m.current = nil
	}
}
