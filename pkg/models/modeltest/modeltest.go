// Package modeltest builds tiny self-contained glTF avatar assets for tests.
package modeltest

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
)

// Options describe the generated asset.
type Options struct {
	MeshName     string
	MaterialName string
	// Targets lists morph target names; each target moves every vertex
	// by +1 on Y at weight 1.
	Targets []string
	Skinned bool
}

// Avatar returns a single-triangle glTF document (JSON with an embedded
// base64 buffer) carrying the requested morph targets.
func Avatar(opts Options) []byte {
	if opts.MeshName == "" {
		opts.MeshName = "Body"
	}
	if opts.MaterialName == "" {
		opts.MaterialName = "Skin"
	}

	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	delta := [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}}

	var buf []byte
	appendVec3s := func(vs [][3]float32) int {
		offset := len(buf)
		for _, v := range vs {
			for _, f := range v {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
			}
		}
		return offset
	}

	type view struct {
		Buffer     int `json:"buffer"`
		ByteOffset int `json:"byteOffset"`
		ByteLength int `json:"byteLength"`
	}
	type accessor struct {
		BufferView    int       `json:"bufferView"`
		ComponentType int       `json:"componentType"`
		Count         int       `json:"count"`
		Type          string    `json:"type"`
		Min           []float32 `json:"min,omitempty"`
		Max           []float32 `json:"max,omitempty"`
	}

	var views []view
	var accessors []accessor
	addAccessor := func(vs [][3]float32, bounds bool) int {
		off := appendVec3s(vs)
		views = append(views, view{ByteOffset: off, ByteLength: len(vs) * 12})
		a := accessor{BufferView: len(views) - 1, ComponentType: 5126, Count: len(vs), Type: "VEC3"}
		if bounds {
			a.Min = []float32{0, 0, 0}
			a.Max = []float32{1, 1, 0}
		}
		accessors = append(accessors, a)
		return len(accessors) - 1
	}

	pos := addAccessor(positions, true)
	var targets []map[string]int
	weights := make([]float64, 0, len(opts.Targets))
	for range opts.Targets {
		targets = append(targets, map[string]int{"POSITION": addAccessor(delta, false)})
		weights = append(weights, 0)
	}

	primitive := map[string]any{
		"attributes": map[string]int{"POSITION": pos},
		"material":   0,
	}
	if len(targets) > 0 {
		primitive["targets"] = targets
	}

	mesh := map[string]any{
		"name":       opts.MeshName,
		"primitives": []any{primitive},
	}
	if len(opts.Targets) > 0 {
		mesh["weights"] = weights
		mesh["extras"] = map[string]any{"targetNames": opts.Targets}
	}

	nodes := []map[string]any{{"name": "avatar", "mesh": 0}}
	doc := map[string]any{
		"asset":  map[string]string{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"meshes": []any{mesh},
		"materials": []any{map[string]any{
			"name": opts.MaterialName,
			"pbrMetallicRoughness": map[string]any{
				"baseColorFactor": []float64{0.8, 0.6, 0.5, 1},
				"metallicFactor":  0,
				"roughnessFactor": 0.7,
			},
		}},
		"accessors":   accessors,
		"bufferViews": views,
		"buffers": []any{map[string]any{
			"byteLength": len(buf),
			"uri":        "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(buf),
		}},
	}
	if opts.Skinned {
		nodes[0]["skin"] = 0
		nodes = append(nodes, map[string]any{"name": "hips"})
		doc["skins"] = []any{map[string]any{"joints": []int{1}}}
	}
	doc["nodes"] = nodes

	out, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return out
}
