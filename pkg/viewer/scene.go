package viewer

import (
	"go.uber.org/zap"

	"github.com/taigrr/avatarview/pkg/math3d"
	"github.com/taigrr/avatarview/pkg/models"
	"github.com/taigrr/avatarview/pkg/render"
)

// Container is the host viewport the scene renders into.
type Container interface {
	// Size returns the viewport size in pixels.
	Size() (width, height int)
}

// InputKind classifies pointer input.
type InputKind int

const (
	InputDrag InputKind = iota // DX/DY in viewport fractions
	InputZoom                  // DY > 0 zooms out
)

// InputEvent is pointer input routed to the orbit controls.
type InputEvent struct {
	Kind   InputKind
	DX, DY float64
}

// InputSource is implemented by containers that deliver pointer input.
type InputSource interface {
	Subscribe(fn func(InputEvent)) (unsubscribe func())
}

// SceneNode is a node in the scene graph.
type SceneNode struct {
	Name      string
	Mesh      *models.Mesh
	Transform math3d.Mat4
	Children  []*SceneNode
	parent    *SceneNode
}

// NewSceneNode creates an empty node with an identity transform.
func NewSceneNode(name string) *SceneNode {
	return &SceneNode{Name: name, Transform: math3d.Identity()}
}

// Add attaches child, detaching it from any previous parent.
func (n *SceneNode) Add(child *SceneNode) {
	if child.parent != nil {
		child.parent.Remove(child)
	}
	child.parent = n
	n.Children = append(n.Children, child)
}

// Remove detaches child. It reports whether child was attached here.
func (n *SceneNode) Remove(child *SceneNode) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// Detach removes n from its parent, if any.
func (n *SceneNode) Detach() {
	if n.parent != nil {
		n.parent.Remove(n)
	}
}

// Parent returns the parent node or nil.
func (n *SceneNode) Parent() *SceneNode {
	return n.parent
}

// Drawables flattens the subtree into world-space draw items.
func (n *SceneNode) Drawables() []render.Drawable {
	var out []render.Drawable
	var walk func(node *SceneNode, parent math3d.Mat4)
	walk = func(node *SceneNode, parent math3d.Mat4) {
		world := parent.Mul(node.Transform)
		if node.Mesh != nil {
			out = append(out, render.Drawable{Mesh: node.Mesh, Transform: world})
		}
		for _, c := range node.Children {
			walk(c, world)
		}
	}
	walk(n, math3d.Identity())
	return out
}

// SceneContext is the rendering context of one mounted viewport.
type SceneContext struct {
	Root     *SceneNode
	Renderer *render.Renderer
	Camera   *render.Camera
	Controls *OrbitControls
	FaceOnly bool
}

// SceneOptions configures a SceneLifecycle.
type SceneOptions struct {
	Render          render.Options
	AutoRotateSpeed float64
	Logger          *zap.Logger
}

// SceneLifecycle creates and disposes the SceneContext for a container.
type SceneLifecycle struct {
	opts        SceneOptions
	log         *zap.Logger
	ctx         *SceneContext
	onReady     func(*SceneContext)
	unsubscribe func()
}

// NewSceneLifecycle creates a lifecycle with no scene.
func NewSceneLifecycle(opts SceneOptions) *SceneLifecycle {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &SceneLifecycle{opts: opts, log: log}
}

// OnSceneReady sets the callback fired once per created context.
func (s *SceneLifecycle) OnSceneReady(fn func(*SceneContext)) {
	s.onReady = fn
}

// Context returns the live context, or nil.
func (s *SceneLifecycle) Context() *SceneContext {
	return s.ctx
}

func containerReady(c Container) bool {
	if c == nil {
		return false
	}
	w, h := c.Size()
	return w > 0 && h > 0
}

// Create builds the scene for container. It returns ErrContainerNotReady
// while the container is missing or zero-sized, and the existing context
// when one is already live.
func (s *SceneLifecycle) Create(container Container, gender, scanID string, faceOnly bool) (*SceneContext, error) {
	if s.ctx != nil {
		return s.ctx, nil
	}
	if !containerReady(container) {
		return nil, ErrContainerNotReady
	}
	w, h := container.Size()

	cam := render.NewCamera()
	cam.SetAspectRatio(float64(w) / float64(h))
	controls := NewOrbitControls(s.opts.AutoRotateSpeed)
	controls.Frame(avatarHeight, faceOnly)
	controls.Apply(cam)

	ctx := &SceneContext{
		Root:     NewSceneNode("scene"),
		Renderer: render.NewRenderer(w, h, s.opts.Render),
		Camera:   cam,
		Controls: controls,
		FaceOnly: faceOnly,
	}
	if src, ok := container.(InputSource); ok {
		s.unsubscribe = src.Subscribe(controls.HandleInput)
	}
	s.ctx = ctx

	s.log.Info("scene created",
		zap.Int("width", w), zap.Int("height", h),
		zap.String("gender", gender), zap.String("scan_id", scanID),
		zap.Bool("face_only", faceOnly))

	if s.onReady != nil {
		s.onReady(ctx)
	}
	return ctx, nil
}

// Resize follows a container size change. Zero sizes are ignored.
func (s *SceneLifecycle) Resize(width, height int) {
	if s.ctx == nil || width <= 0 || height <= 0 {
		return
	}
	s.ctx.Renderer.Resize(width, height)
	s.ctx.Camera.SetAspectRatio(float64(width) / float64(height))
}

// ReleaseResources frees renderer buffers while keeping the context; the
// next frame reallocates them.
func (s *SceneLifecycle) ReleaseResources() bool {
	if s.ctx == nil || !s.ctx.Renderer.Allocated() {
		return false
	}
	s.ctx.Renderer.Release()
	return true
}

// Render draws one frame, or returns nil without a scene.
func (s *SceneLifecycle) Render() *render.Framebuffer {
	if s.ctx == nil {
		return nil
	}
	s.ctx.Controls.Apply(s.ctx.Camera)
	return s.ctx.Renderer.Render(s.ctx.Camera, s.ctx.Root.Drawables())
}

// Dispose releases the renderer and input listeners. Safe to call twice or
// before Create.
func (s *SceneLifecycle) Dispose() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.ctx == nil {
		return
	}
	s.ctx.Renderer.Dispose()
	s.ctx.Root.Children = nil
	s.ctx = nil
	s.log.Info("scene disposed")
}
