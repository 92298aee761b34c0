package models

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/taigrr/avatarview/pkg/math3d"
)

// ErrNoMesh is returned when an asset contains no triangle geometry.
var ErrNoMesh = errors.New("models: asset has no triangle mesh")

// GLTFLoader loads GLTF/GLB documents into Models.
type GLTFLoader struct {
	CalculateNormals bool
}

// NewGLTFLoader creates a new GLTF loader with default options.
func NewGLTFLoader() *GLTFLoader {
	return &GLTFLoader{CalculateNormals: true}
}

// Decode parses an in-memory GLB (or self-contained glTF JSON) asset.
func Decode(name string, data []byte) (*Model, error) {
	return NewGLTFLoader().Decode(name, data)
}

// LoadFile loads a GLB file from disk.
func LoadFile(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return NewGLTFLoader().build(filepath.Base(path), doc)
}

// Decode parses data and builds a Model.
func (l *GLTFLoader) Decode(name string, data []byte) (*Model, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}
	return l.build(name, doc)
}

func (l *GLTFLoader) build(name string, doc *gltf.Document) (*Model, error) {
	skinned := make(map[int]bool)
	for _, n := range doc.Nodes {
		if n.Mesh != nil && n.Skin != nil {
			skinned[*n.Mesh] = true
		}
	}

	model := &Model{Name: name}
	for i, m := range doc.Meshes {
		mesh := NewMesh(m.Name)
		mesh.Skinned = skinned[i]
		if err := l.processMesh(doc, m, mesh); err != nil {
			return nil, fmt.Errorf("process mesh %q: %w", m.Name, err)
		}
		if mesh.TriangleCount() == 0 {
			continue
		}
		if l.CalculateNormals && !hasNormals(mesh) {
			mesh.CalculateSmoothNormals()
		}
		mesh.CalculateBounds()
		model.Meshes = append(model.Meshes, mesh)
	}

	if len(model.Meshes) == 0 {
		return nil, ErrNoMesh
	}
	model.Primary = pickPrimary(model.Meshes)
	return model, nil
}

func hasNormals(mesh *Mesh) bool {
	for _, v := range mesh.Vertices {
		if v.Normal.Len() > 0.001 {
			return true
		}
	}
	return false
}

// processMesh merges the triangle primitives of a GLTF mesh into one Mesh.
func (l *GLTFLoader) processMesh(doc *gltf.Document, m *gltf.Mesh, mesh *Mesh) error {
	names := targetNames(m.Extras)
	materialSlots := make(map[int]int)

	targetCount := 0
	for _, prim := range m.Primitives {
		targetCount = max(targetCount, len(prim.Targets))
	}
	mesh.Targets = make([]MorphTarget, targetCount)
	for t := range mesh.Targets {
		mesh.Targets[t].Name = fmt.Sprintf("target_%d", t)
		if t < len(names) && names[t] != "" {
			mesh.Targets[t].Name = names[t]
		}
	}
	mesh.Weights = make([]float64, targetCount)
	for t := range min(targetCount, len(m.Weights)) {
		mesh.Weights[t] = float64(m.Weights[t])
	}

	for _, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVec3Accessor(doc, posIdx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}

		var normals []math3d.Vec3
		if normIdx, ok := prim.Attributes[gltf.NORMAL]; ok {
			normals, err = readVec3Accessor(doc, normIdx)
			if err != nil {
				return fmt.Errorf("read normals: %w", err)
			}
		}

		baseVertex := len(mesh.Vertices)
		for i := range positions {
			v := MeshVertex{Position: positions[i]}
			if i < len(normals) {
				v.Normal = normals[i]
			}
			mesh.Vertices = append(mesh.Vertices, v)
		}

		for t := range mesh.Targets {
			deltas := make([]math3d.Vec3, len(positions))
			if t < len(prim.Targets) {
				if idx, ok := prim.Targets[t][gltf.POSITION]; ok {
					read, err := readVec3Accessor(doc, idx)
					if err != nil {
						return fmt.Errorf("read morph target %d: %w", t, err)
					}
					copy(deltas, read)
				}
			}
			mesh.Targets[t].Deltas = append(mesh.Targets[t].Deltas, deltas...)
		}

		material := -1
		if prim.Material != nil {
			material = l.materialSlot(doc, *prim.Material, mesh, materialSlots)
		}

		var indices []int
		if prim.Indices != nil {
			indices, err = readIndices(doc, *prim.Indices)
			if err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
		} else {
			indices = make([]int, len(positions))
			for i := range indices {
				indices[i] = i
			}
		}

		for i := 0; i+2 < len(indices); i += 3 {
			face := Face{
				V:        [3]int{baseVertex + indices[i], baseVertex + indices[i+1], baseVertex + indices[i+2]},
				Material: material,
			}
			if face.V[0] >= len(mesh.Vertices) || face.V[1] >= len(mesh.Vertices) || face.V[2] >= len(mesh.Vertices) {
				return fmt.Errorf("index out of range in face %d", i/3)
			}
			mesh.Faces = append(mesh.Faces, face)
		}
	}

	return nil
}

// materialSlot returns the mesh-local index for a document material,
// appending it on first use.
func (l *GLTFLoader) materialSlot(doc *gltf.Document, docIdx int, mesh *Mesh, slots map[int]int) int {
	if slot, ok := slots[docIdx]; ok {
		return slot
	}
	if docIdx < 0 || docIdx >= len(doc.Materials) {
		return -1
	}
	src := doc.Materials[docIdx]
	mat := Material{
		Name:      src.Name,
		BaseColor: [4]float64{1, 1, 1, 1},
		Roughness: 1,
		Skin:      IsSkinMaterialName(src.Name),
	}
	if pbr := src.PBRMetallicRoughness; pbr != nil {
		mat.BaseColor = pbr.BaseColorFactorOrDefault()
		mat.Metallic = pbr.MetallicFactorOrDefault()
		mat.Roughness = pbr.RoughnessFactorOrDefault()
	}
	mesh.Materials = append(mesh.Materials, mat)
	slots[docIdx] = len(mesh.Materials) - 1
	return slots[docIdx]
}

// targetNames pulls the de-facto "targetNames" array out of mesh extras.
func targetNames(extras any) []string {
	m, ok := extras.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["targetNames"].([]any)
	if !ok {
		return nil
	}
	names := make([]string, len(raw))
	for i, v := range raw {
		if s, ok := v.(string); ok {
			names[i] = s
		}
	}
	return names
}

// readVec3Accessor reads Vec3 data from a GLTF accessor.
func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec3, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec3 || accessor.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("expected float VEC3, got %v/%v", accessor.Type, accessor.ComponentType)
	}

	data, start, stride, err := accessorBytes(doc, accessor, 12)
	if err != nil {
		return nil, err
	}

	result := make([]math3d.Vec3, accessor.Count)
	for i := range accessor.Count {
		offset := start + i*stride
		result[i] = math3d.V3(
			float64(readFloat32(data[offset:])),
			float64(readFloat32(data[offset+4:])),
			float64(readFloat32(data[offset+8:])),
		)
	}
	return result, nil
}

// readIndices reads index data from a GLTF accessor.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("expected SCALAR indices, got %v", accessor.Type)
	}

	var size int
	switch accessor.ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("unexpected index type: %v", accessor.ComponentType)
	}

	data, start, stride, err := accessorBytes(doc, accessor, size)
	if err != nil {
		return nil, err
	}

	result := make([]int, accessor.Count)
	for i := range accessor.Count {
		offset := start + i*stride
		switch size {
		case 1:
			result[i] = int(data[offset])
		case 2:
			result[i] = int(binary.LittleEndian.Uint16(data[offset:]))
		case 4:
			result[i] = int(binary.LittleEndian.Uint32(data[offset:]))
		}
	}
	return result, nil
}

// accessorBytes returns the backing buffer, the first element offset and the
// element stride for an accessor, bounds-checked against the buffer.
func accessorBytes(doc *gltf.Document, accessor *gltf.Accessor, elemSize int) ([]byte, int, int, error) {
	if accessor.BufferView == nil {
		return nil, 0, 0, fmt.Errorf("accessor has no buffer view")
	}
	if *accessor.BufferView >= len(doc.BufferViews) {
		return nil, 0, 0, fmt.Errorf("buffer view %d out of range", *accessor.BufferView)
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	if bufferView.Buffer >= len(doc.Buffers) {
		return nil, 0, 0, fmt.Errorf("buffer %d out of range", bufferView.Buffer)
	}

	// GLB chunks and data: URIs are both decoded into Data.
	data := doc.Buffers[bufferView.Buffer].Data
	if data == nil {
		return nil, 0, 0, fmt.Errorf("external buffers not supported")
	}

	start := bufferView.ByteOffset + accessor.ByteOffset
	stride := bufferView.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	if accessor.Count > 0 {
		end := start + (accessor.Count-1)*stride + elemSize
		if end > len(data) {
			return nil, 0, 0, fmt.Errorf("accessor reads past buffer end (%d > %d)", end, len(data))
		}
	}
	return data, start, stride, nil
}

// readFloat32 reads a little-endian float32.
func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
