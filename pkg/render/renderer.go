package render

import (
	"math"

	"github.com/taigrr/avatarview/pkg/math3d"
	"github.com/taigrr/avatarview/pkg/models"
)

// Drawable is a mesh placed in the world.
type Drawable struct {
	Mesh      *models.Mesh
	Transform math3d.Mat4
}

// Options control shading.
type Options struct {
	Background Color
	LightDir   math3d.Vec3
	// Flat disables per-vertex lighting; used in performance mode.
	Flat bool
}

// DefaultOptions returns the viewer's default shading options.
func DefaultOptions() Options {
	return Options{
		Background: RGB(30, 30, 40),
		LightDir:   math3d.V3(0.5, 1, 0.8).Normalize(),
	}
}

// Renderer owns the color and depth buffers for one viewport. The buffers
// are the renderer's only heavy allocation; Release frees them and the next
// Render reallocates.
type Renderer struct {
	width, height int
	opts          Options

	fb      *Framebuffer
	zbuffer []float64

	disposed bool
	frames   uint64
}

// NewRenderer creates a renderer for a width x height pixel viewport.
func NewRenderer(width, height int, opts Options) *Renderer {
	r := &Renderer{width: width, height: height, opts: opts}
	r.allocate()
	return r
}

func (r *Renderer) allocate() {
	r.fb = NewFramebuffer(r.width, r.height)
	r.zbuffer = make([]float64, r.width*r.height)
}

// Size returns the viewport size in pixels.
func (r *Renderer) Size() (width, height int) {
	return r.width, r.height
}

// Resize changes the viewport size and drops the current buffers.
func (r *Renderer) Resize(width, height int) {
	if width == r.width && height == r.height {
		return
	}
	r.width, r.height = width, height
	r.Release()
}

// SetFlat toggles flat shading.
func (r *Renderer) SetFlat(flat bool) {
	r.opts.Flat = flat
}

// Allocated reports whether the buffers are currently held.
func (r *Renderer) Allocated() bool {
	return r.fb != nil
}

// Release frees the color and depth buffers.
func (r *Renderer) Release() {
	r.fb = nil
	r.zbuffer = nil
}

// Dispose releases the buffers permanently. Dispose is idempotent.
func (r *Renderer) Dispose() {
	r.Release()
	r.disposed = true
}

// Disposed reports whether Dispose has been called.
func (r *Renderer) Disposed() bool {
	return r.disposed
}

// Frames returns how many frames have been rendered.
func (r *Renderer) Frames() uint64 {
	return r.frames
}

// Framebuffer returns the last rendered frame, or nil when released.
func (r *Renderer) Framebuffer() *Framebuffer {
	return r.fb
}

// Render draws items from the camera's point of view. It returns nil after
// Dispose.
func (r *Renderer) Render(cam *Camera, items []Drawable) *Framebuffer {
	if r.disposed || r.width <= 0 || r.height <= 0 {
		return nil
	}
	if r.fb == nil {
		r.allocate()
	}

	r.fb.Clear(r.opts.Background)
	for i := range r.zbuffer {
		r.zbuffer[i] = math.MaxFloat64
	}

	viewProj := cam.ViewProjectionMatrix()
	for _, item := range items {
		if item.Mesh != nil {
			r.drawMesh(viewProj, item)
		}
	}
	r.frames++
	return r.fb
}

// screenVertex holds a vertex transformed to screen space.
type screenVertex struct {
	X, Y, Z, W float64
	Color      Color
}

func (r *Renderer) drawMesh(viewProj math3d.Mat4, item Drawable) {
	mesh := item.Mesh
	light := r.opts.LightDir.Normalize()

	for _, face := range mesh.Faces {
		base := RGB(200, 200, 200)
		if mat := mesh.GetMaterial(face.Material); mat != nil {
			base = RGBFloat(mat.BaseColor[0], mat.BaseColor[1], mat.BaseColor[2])
		}

		var world [3]math3d.Vec3
		for i, idx := range face.V {
			world[i] = item.Transform.MulVec3(mesh.DeformedPosition(idx))
		}
		faceNormal := world[1].Sub(world[0]).Cross(world[2].Sub(world[0])).Normalize()

		var sv [3]screenVertex
		allBehind := true
		for i, idx := range face.V {
			clip := viewProj.MulVec4(math3d.V4FromV3(world[i], 1))
			if clip.W > 0 {
				allBehind = false
			}
			if clip.W != 0 {
				sv[i].X, sv[i].Y, sv[i].Z = clip.X/clip.W, clip.Y/clip.W, clip.Z/clip.W
			}
			sv[i].W = clip.W
			sv[i].X = (sv[i].X + 1) * 0.5 * float64(r.width)
			sv[i].Y = (1 - sv[i].Y) * 0.5 * float64(r.height)

			normal := faceNormal
			if !r.opts.Flat {
				if n := item.Transform.MulVec3Dir(mesh.Vertices[idx].Normal); n.Len() > 0 {
					normal = n.Normalize()
				}
			}
			sv[i].Color = shade(base, normal, light)
		}
		if allBehind {
			continue
		}
		r.rasterize(sv)
	}
}

// shade applies ambient + diffuse lighting.
func shade(c Color, normal, light math3d.Vec3) Color {
	intensity := 0.3 + 0.7*math.Max(0, normal.Dot(light))
	return RGB(
		uint8(float64(c.R)*intensity),
		uint8(float64(c.G)*intensity),
		uint8(float64(c.B)*intensity),
	)
}

func (r *Renderer) rasterize(sv [3]screenVertex) {
	// glTF front faces are CCW; the Y flip to screen space makes them CW.
	cross := (sv[1].X-sv[0].X)*(sv[2].Y-sv[0].Y) - (sv[1].Y-sv[0].Y)*(sv[2].X-sv[0].X)
	if cross >= 0 {
		return
	}

	minX := int(math.Max(0, math.Floor(min(sv[0].X, sv[1].X, sv[2].X))))
	maxX := int(math.Min(float64(r.width-1), math.Ceil(max(sv[0].X, sv[1].X, sv[2].X))))
	minY := int(math.Max(0, math.Floor(min(sv[0].Y, sv[1].Y, sv[2].Y))))
	maxY := int(math.Min(float64(r.height-1), math.Ceil(max(sv[0].Y, sv[1].Y, sv[2].Y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			bc := barycentric(sv, float64(x)+0.5, float64(y)+0.5)
			if bc.X < 0 || bc.Y < 0 || bc.Z < 0 {
				continue
			}

			z := bc.X*sv[0].Z + bc.Y*sv[1].Z + bc.Z*sv[2].Z
			i := y*r.width + x
			if z >= r.zbuffer[i] {
				continue
			}
			r.zbuffer[i] = z
			r.fb.SetPixel(x, y, interpolateColor3(sv[0].Color, sv[1].Color, sv[2].Color, bc))
		}
	}
}

// barycentric calculates barycentric coordinates for point (px, py) in triangle.
func barycentric(sv [3]screenVertex, px, py float64) math3d.Vec3 {
	v0x, v0y := sv[2].X-sv[0].X, sv[2].Y-sv[0].Y
	v1x, v1y := sv[1].X-sv[0].X, sv[1].Y-sv[0].Y
	v2x, v2y := px-sv[0].X, py-sv[0].Y

	dot00 := v0x*v0x + v0y*v0y
	dot01 := v0x*v1x + v0y*v1y
	dot02 := v0x*v2x + v0y*v2y
	dot11 := v1x*v1x + v1y*v1y
	dot12 := v1x*v2x + v1y*v2y

	denom := dot00*dot11 - dot01*dot01
	if denom == 0 {
		return math3d.V3(-1, -1, -1)
	}
	u := (dot11*dot02 - dot01*dot12) / denom
	v := (dot00*dot12 - dot01*dot02) / denom

	return math3d.V3(1-u-v, v, u)
}

// interpolateColor3 interpolates between 3 colors using barycentric coords.
func interpolateColor3(c0, c1, c2 Color, bc math3d.Vec3) Color {
	return RGB(
		uint8(float64(c0.R)*bc.X+float64(c1.R)*bc.Y+float64(c2.R)*bc.Z),
		uint8(float64(c0.G)*bc.X+float64(c1.G)*bc.Y+float64(c2.G)*bc.Z),
		uint8(float64(c0.B)*bc.X+float64(c1.B)*bc.Y+float64(c2.B)*bc.Z),
	)
}
