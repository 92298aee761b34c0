// Package models provides skinned avatar model loading and representation.
package models

import (
	"strings"

	"github.com/taigrr/avatarview/pkg/math3d"
)

// Model is a parsed avatar asset: every mesh it contains plus the primary
// skinned mesh that carries the body morph targets.
type Model struct {
	Name    string
	Meshes  []*Mesh
	Primary *Mesh
}

// Mesh represents a triangle mesh with morph targets and materials.
type Mesh struct {
	Name      string
	Vertices  []MeshVertex
	Faces     []Face
	Materials []Material

	// Morph targets share the vertex order of Vertices.
	Targets []MorphTarget
	Weights []float64

	// Skinned is set when a node binds this mesh to a skin.
	Skinned bool

	// Bounding box of the base pose (calculated on load)
	BoundsMin math3d.Vec3
	BoundsMax math3d.Vec3
}

// MeshVertex holds all vertex attributes.
type MeshVertex struct {
	Position math3d.Vec3
	Normal   math3d.Vec3
}

// Face represents a triangle face with vertex indices and material reference.
type Face struct {
	V        [3]int // Indices into Mesh.Vertices
	Material int    // Index into Mesh.Materials (-1 for no material)
}

// MorphTarget is a named per-vertex position delta driven by one weight.
type MorphTarget struct {
	Name   string
	Deltas []math3d.Vec3
}

// Material represents a PBR material from GLTF.
type Material struct {
	Name      string
	BaseColor [4]float64 // RGBA in 0-1 range
	Metallic  float64    // 0 = dielectric, 1 = metal
	Roughness float64    // 0 = smooth, 1 = rough
	Skin      bool       // Whether skin tone drives this material
}

var skinMaterialHints = []string{"skin", "body", "face", "head", "torso"}

// IsSkinMaterialName reports whether a material name looks like avatar skin.
func IsSkinMaterialName(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range skinMaterialHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// NewMesh creates an empty mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:     name,
		Vertices: make([]MeshVertex, 0),
		Faces:    make([]Face, 0),
	}
}

// CalculateBounds computes the axis-aligned bounding box of the base pose.
func (m *Mesh) CalculateBounds() {
	if len(m.Vertices) == 0 {
		return
	}

	m.BoundsMin = m.Vertices[0].Position
	m.BoundsMax = m.Vertices[0].Position

	for _, v := range m.Vertices[1:] {
		m.BoundsMin = m.BoundsMin.Min(v.Position)
		m.BoundsMax = m.BoundsMax.Max(v.Position)
	}
}

// Bounds returns the box enclosing every mesh of the model.
func (m *Model) Bounds() (lo, hi math3d.Vec3) {
	if len(m.Meshes) == 0 {
		return
	}
	lo, hi = m.Meshes[0].BoundsMin, m.Meshes[0].BoundsMax
	for _, mesh := range m.Meshes[1:] {
		lo, hi = lo.Min(mesh.BoundsMin), hi.Max(mesh.BoundsMax)
	}
	return lo, hi
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// MorphCount returns the number of morph target channels.
func (m *Mesh) MorphCount() int {
	return len(m.Targets)
}

// MorphIndex returns the channel index of the named morph target, or -1.
func (m *Mesh) MorphIndex(name string) int {
	for i, t := range m.Targets {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// Weight returns the current weight of channel i (0 when out of range).
func (m *Mesh) Weight(i int) float64 {
	if i < 0 || i >= len(m.Weights) {
		return 0
	}
	return m.Weights[i]
}

// SetWeight writes the weight of channel i. It reports false when the mesh
// has no such channel.
func (m *Mesh) SetWeight(i int, w float64) bool {
	if i < 0 || i >= len(m.Targets) {
		return false
	}
	if len(m.Weights) < len(m.Targets) {
		weights := make([]float64, len(m.Targets))
		copy(weights, m.Weights)
		m.Weights = weights
	}
	m.Weights[i] = w
	return true
}

// ResetWeights zeroes every morph weight.
func (m *Mesh) ResetWeights() {
	for i := range m.Weights {
		m.Weights[i] = 0
	}
}

// DeformedPosition returns vertex i with all weighted morph deltas applied.
func (m *Mesh) DeformedPosition(i int) math3d.Vec3 {
	p := m.Vertices[i].Position
	for t, target := range m.Targets {
		w := m.Weight(t)
		if w == 0 || i >= len(target.Deltas) {
			continue
		}
		p = p.AddScaled(target.Deltas[i], w)
	}
	return p
}

// CalculateSmoothNormals computes averaged normals for smooth shading.
func (m *Mesh) CalculateSmoothNormals() {
	for i := range m.Vertices {
		m.Vertices[i].Normal = math3d.Zero3()
	}

	for _, f := range m.Faces {
		v0 := m.Vertices[f.V[0]].Position
		v1 := m.Vertices[f.V[1]].Position
		v2 := m.Vertices[f.V[2]].Position

		normal := v1.Sub(v0).Cross(v2.Sub(v0))

		m.Vertices[f.V[0]].Normal = m.Vertices[f.V[0]].Normal.Add(normal)
		m.Vertices[f.V[1]].Normal = m.Vertices[f.V[1]].Normal.Add(normal)
		m.Vertices[f.V[2]].Normal = m.Vertices[f.V[2]].Normal.Add(normal)
	}

	for i := range m.Vertices {
		m.Vertices[i].Normal = m.Vertices[i].Normal.Normalize()
	}
}

// GetMaterial returns the material at index i.
// Returns nil if index is out of bounds or -1.
func (m *Mesh) GetMaterial(i int) *Material {
	if i < 0 || i >= len(m.Materials) {
		return nil
	}
	return &m.Materials[i]
}

// SkinMaterials returns pointers to every material flagged as skin. When none
// is flagged, every material counts as skin.
func (m *Mesh) SkinMaterials() []*Material {
	var out []*Material
	for i := range m.Materials {
		if m.Materials[i].Skin {
			out = append(out, &m.Materials[i])
		}
	}
	if len(out) > 0 {
		return out
	}
	for i := range m.Materials {
		out = append(out, &m.Materials[i])
	}
	return out
}

// pickPrimary chooses the mesh that drives body morphs: skinned meshes win,
// then the one with the most morph targets, then the largest.
func pickPrimary(meshes []*Mesh) *Mesh {
	var best *Mesh
	better := func(a, b *Mesh) bool {
		if a.Skinned != b.Skinned {
			return a.Skinned
		}
		if a.MorphCount() != b.MorphCount() {
			return a.MorphCount() > b.MorphCount()
		}
		return a.VertexCount() > b.VertexCount()
	}
	for _, m := range meshes {
		if best == nil || better(m, best) {
			best = m
		}
	}
	return best
}
