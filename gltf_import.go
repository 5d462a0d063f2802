package vehicle3d

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/float64/vec4"
	"github.com/flywave/go3d/quaternion"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/qmuntal/gltf"
)

const (
	extClearcoat    = "KHR_materials_clearcoat"
	extSheen        = "KHR_materials_sheen"
	extTransmission = "KHR_materials_transmission"
	extIor          = "KHR_materials_ior"
	extVolume       = "KHR_materials_volume"
)

var (
	identityMatrix = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	emptyMatrix    = [16]float32{}
)

// gltfImporter 将 glTF 文档转换为只读的源场景图
type gltfImporter struct {
	doc       *gltf.Document
	materials map[uint32]*PbrMaterial
	visiting  map[uint32]bool
}

func importGltf(doc *gltf.Document, name string) (*Node, error) {
	g := &gltfImporter{
		doc:       doc,
		materials: make(map[uint32]*PbrMaterial),
		visiting:  make(map[uint32]bool),
	}
	root := NewNode(name)
	for _, idx := range g.rootNodes() {
		n, err := g.transNode(idx)
		if err != nil {
			return nil, err
		}
		root.AddChild(n)
	}
	if root.MeshCount() == 0 {
		return nil, errors.New("document contains no triangle meshes")
	}
	return root, nil
}

func (g *gltfImporter) rootNodes() []uint32 {
	if len(g.doc.Scenes) > 0 {
		si := 0
		if g.doc.Scene != nil && int(*g.doc.Scene) < len(g.doc.Scenes) {
			si = int(*g.doc.Scene)
		}
		return g.doc.Scenes[si].Nodes
	}
	// 无场景时取所有非子节点
	isChild := make(map[uint32]bool)
	for _, nd := range g.doc.Nodes {
		for _, c := range nd.Children {
			isChild[c] = true
		}
	}
	var roots []uint32
	for i := range g.doc.Nodes {
		if !isChild[uint32(i)] {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

func (g *gltfImporter) transNode(idx uint32) (*Node, error) {
	if int(idx) >= len(g.doc.Nodes) {
		return nil, fmt.Errorf("node index %d out of range", idx)
	}
	if g.visiting[idx] {
		return nil, fmt.Errorf("node %d is part of a cycle", idx)
	}
	g.visiting[idx] = true
	defer delete(g.visiting, idx)

	nd := g.doc.Nodes[idx]
	n := NewNode(nd.Name)
	if nd.Matrix != emptyMatrix && nd.Matrix != identityMatrix {
		var m [16]float64
		for i := range nd.Matrix {
			m[i] = float64(nd.Matrix[i])
		}
		position, rotation, scale := dmat.Decompose(toMat(m))
		n.Translation = vec3.T{float32(position[0]), float32(position[1]), float32(position[2])}
		n.Rotation = quaternion.T{float32(rotation[0]), float32(rotation[1]), float32(rotation[2]), float32(rotation[3])}
		n.Scale = vec3.T{float32(scale[0]), float32(scale[1]), float32(scale[2])}
	} else {
		n.Translation = vec3.T(nd.Translation)
		if nd.Rotation != [4]float32{} {
			n.Rotation = quaternion.T(nd.Rotation)
		}
		if nd.Scale != [3]float32{} {
			n.Scale = vec3.T(nd.Scale)
		}
	}

	if nd.Mesh != nil {
		meshes, err := g.transMesh(*nd.Mesh, nd.Name)
		if err != nil {
			return nil, err
		}
		n.Meshes = meshes
	}
	for _, c := range nd.Children {
		child, err := g.transNode(c)
		if err != nil {
			return nil, err
		}
		n.AddChild(child)
	}
	return n, nil
}

func (g *gltfImporter) transMesh(idx uint32, nodeName string) ([]*Mesh, error) {
	if int(idx) >= len(g.doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", idx)
	}
	mh := g.doc.Meshes[idx]
	name := nodeName
	if name == "" {
		name = mh.Name
	}
	var out []*Mesh
	for i, ps := range mh.Primitives {
		if ps.Mode != gltf.PrimitiveTriangles {
			continue
		}
		geom, err := g.transPrimitive(ps)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", mh.Name, i, err)
		}
		m := &Mesh{Name: name, Geometry: geom}
		if len(mh.Primitives) > 1 {
			m.Name = fmt.Sprintf("%s_%d", name, i)
		}
		if ps.Material != nil {
			mtl, err := g.transMaterial(*ps.Material)
			if err != nil {
				return nil, err
			}
			m.Material = mtl
		}
		out = append(out, m)
	}
	return out, nil
}

func (g *gltfImporter) transPrimitive(ps *gltf.Primitive) (*Geometry, error) {
	geom := &Geometry{}
	idx, ok := ps.Attributes["POSITION"]
	if !ok {
		return nil, errors.New("primitive has no POSITION attribute")
	}
	var err error
	if geom.Vertices, err = g.readVec3(idx); err != nil {
		return nil, err
	}
	if idx, ok := ps.Attributes["NORMAL"]; ok {
		if geom.Normals, err = g.readVec3(idx); err != nil {
			return nil, err
		}
	}
	if idx, ok := ps.Attributes["TEXCOORD_0"]; ok {
		if geom.TexCoords, err = g.readVec2(idx); err != nil {
			return nil, err
		}
	}
	if ps.Indices != nil {
		if geom.Indices, err = g.readIndices(*ps.Indices); err != nil {
			return nil, err
		}
		for _, i := range geom.Indices {
			if int(i) >= len(geom.Vertices) {
				return nil, fmt.Errorf("index %d exceeds vertex count %d", i, len(geom.Vertices))
			}
		}
	}
	if len(geom.Normals) != len(geom.Vertices) {
		geom.ReComputeNormal()
	}
	return geom, nil
}

func (g *gltfImporter) accessor(idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(g.doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", idx)
	}
	return g.doc.Accessors[idx], nil
}

// accessorBytes 返回访问器数据切片及元素跨度
func (g *gltfImporter) accessorBytes(idx uint32, acc *gltf.Accessor, elemSize int) ([]byte, int, int, error) {
	if acc.BufferView == nil || acc.Sparse != nil {
		return nil, 0, 0, fmt.Errorf("accessor %d: sparse or bufferless accessors are not supported", idx)
	}
	if int(*acc.BufferView) >= len(g.doc.BufferViews) {
		return nil, 0, 0, fmt.Errorf("accessor %d: buffer view out of range", idx)
	}
	view := g.doc.BufferViews[*acc.BufferView]
	if int(view.Buffer) >= len(g.doc.Buffers) {
		return nil, 0, 0, fmt.Errorf("accessor %d: buffer out of range", idx)
	}
	data := g.doc.Buffers[view.Buffer].Data
	stride := int(view.ByteStride)
	if stride == 0 {
		stride = elemSize
	}
	count := int(acc.Count)
	start := int(view.ByteOffset) + int(acc.ByteOffset)
	end := int(view.ByteOffset) + int(view.ByteLength)
	if start > end || end > len(data) {
		return nil, 0, 0, fmt.Errorf("accessor %d exceeds its buffer", idx)
	}
	if count > 0 && start+stride*(count-1)+elemSize > end {
		return nil, 0, 0, fmt.Errorf("accessor %d exceeds its buffer view", idx)
	}
	return data[start:end], stride, count, nil
}

func (g *gltfImporter) readVec3(idx uint32) ([]vec3.T, error) {
	acc, err := g.accessor(idx)
	if err != nil {
		return nil, err
	}
	if acc.ComponentType != gltf.ComponentFloat || acc.Type != gltf.AccessorVec3 {
		return nil, fmt.Errorf("accessor %d: expected float vec3", idx)
	}
	data, stride, count, err := g.accessorBytes(idx, acc, 12)
	if err != nil {
		return nil, err
	}
	out := make([]vec3.T, count)
	for i := range out {
		off := i * stride
		for j := 0; j < 3; j++ {
			out[i][j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+j*4:]))
		}
	}
	return out, nil
}

func (g *gltfImporter) readVec2(idx uint32) ([]vec2.T, error) {
	acc, err := g.accessor(idx)
	if err != nil {
		return nil, err
	}
	if acc.ComponentType != gltf.ComponentFloat || acc.Type != gltf.AccessorVec2 {
		return nil, fmt.Errorf("accessor %d: expected float vec2", idx)
	}
	data, stride, count, err := g.accessorBytes(idx, acc, 8)
	if err != nil {
		return nil, err
	}
	out := make([]vec2.T, count)
	for i := range out {
		off := i * stride
		out[i][0] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		out[i][1] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:]))
	}
	return out, nil
}

func (g *gltfImporter) readIndices(idx uint32) ([]uint32, error) {
	acc, err := g.accessor(idx)
	if err != nil {
		return nil, err
	}
	size := 0
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("accessor %d: unsupported index component type", idx)
	}
	data, stride, count, err := g.accessorBytes(idx, acc, size)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		off := i * stride
		switch size {
		case 1:
			out[i] = uint32(data[off])
		case 2:
			out[i] = uint32(binary.LittleEndian.Uint16(data[off:]))
		case 4:
			out[i] = binary.LittleEndian.Uint32(data[off:])
		}
	}
	return out, nil
}

func (g *gltfImporter) transMaterial(id uint32) (*PbrMaterial, error) {
	if mtl, ok := g.materials[id]; ok {
		return mtl, nil
	}
	if int(id) >= len(g.doc.Materials) {
		return nil, fmt.Errorf("material index %d out of range", id)
	}
	mt := g.doc.Materials[id]
	mtl := &PbrMaterial{
		Name:            mt.Name,
		Metallic:        1,
		Roughness:       1,
		EnvMapIntensity: 1,
		DoubleSided:     mt.DoubleSided,
		owner:           ownerSource,
	}
	mtl.Color = [3]byte{255, 255, 255}
	mtl.Emissive = floatToColor(mt.EmissiveFactor)
	if pbr := mt.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			mtl.Color = floatToColor([3]float32{pbr.BaseColorFactor[0], pbr.BaseColorFactor[1], pbr.BaseColorFactor[2]})
			mtl.Transparency = 1 - pbr.BaseColorFactor[3]
		}
		if pbr.MetallicFactor != nil {
			mtl.Metallic = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			mtl.Roughness = *pbr.RoughnessFactor
		}
	}
	readMaterialExtensions(mtl, mt.Extensions)
	g.materials[id] = mtl
	return mtl, nil
}

type clearcoatExt struct {
	ClearcoatFactor          *float32 `json:"clearcoatFactor"`
	ClearcoatRoughnessFactor *float32 `json:"clearcoatRoughnessFactor"`
}

type sheenExt struct {
	SheenColorFactor     *[3]float32 `json:"sheenColorFactor"`
	SheenRoughnessFactor *float32    `json:"sheenRoughnessFactor"`
}

type transmissionExt struct {
	TransmissionFactor *float32 `json:"transmissionFactor"`
}

type iorExt struct {
	Ior *float32 `json:"ior"`
}

type volumeExt struct {
	ThicknessFactor     *float32    `json:"thicknessFactor"`
	AttenuationDistance *float32    `json:"attenuationDistance"`
	AttenuationColor    *[3]float32 `json:"attenuationColor"`
}

// decodeExtension 未注册的扩展以原始 JSON 保存，导出时写入的是 map
func decodeExtension(raw interface{}, v interface{}) bool {
	var data []byte
	switch r := raw.(type) {
	case json.RawMessage:
		data = r
	case []byte:
		data = r
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return false
		}
		data = b
	}
	return json.Unmarshal(data, v) == nil
}

func readMaterialExtensions(mtl *PbrMaterial, exts gltf.Extensions) {
	if raw, ok := exts[extClearcoat]; ok {
		var e clearcoatExt
		if decodeExtension(raw, &e) {
			mtl.ClearCoat = e.ClearcoatFactor
			mtl.ClearCoatRoughness = e.ClearcoatRoughnessFactor
		}
	}
	if raw, ok := exts[extSheen]; ok {
		var e sheenExt
		if decodeExtension(raw, &e) && e.SheenColorFactor != nil {
			c := floatToColor(*e.SheenColorFactor)
			mtl.SheenColor = &c
			mtl.Sheen = float32Ptr(1)
			if e.SheenRoughnessFactor != nil {
				mtl.Sheen = float32Ptr(1 - *e.SheenRoughnessFactor)
			}
		}
	}
	if raw, ok := exts[extTransmission]; ok {
		var e transmissionExt
		if decodeExtension(raw, &e) {
			mtl.Transmission = e.TransmissionFactor
		}
	}
	if raw, ok := exts[extIor]; ok {
		var e iorExt
		if decodeExtension(raw, &e) {
			mtl.Ior = e.Ior
		}
	}
	if raw, ok := exts[extVolume]; ok {
		var e volumeExt
		if decodeExtension(raw, &e) {
			mtl.Thickness = e.ThicknessFactor
			mtl.AttenuationDistance = e.AttenuationDistance
			if e.AttenuationColor != nil {
				c := floatToColor(*e.AttenuationColor)
				mtl.AttenuationColor = &c
			}
		}
	}
}

func floatToColor(f [3]float32) [3]byte {
	return [3]byte{unitToByte(f[0]), unitToByte(f[1]), unitToByte(f[2])}
}

func unitToByte(f float32) byte {
	v := math.Round(float64(f) * 255)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func colorToFloat(c [3]byte) [3]float32 {
	return [3]float32{float32(c[0]) / 255, float32(c[1]) / 255, float32(c[2]) / 255}
}

func toMat(mat [16]float64) *dmat.T {
	m := &dmat.T{}
	m[0] = vec4.T{mat[0], mat[1], mat[2], mat[3]}
	m[1] = vec4.T{mat[4], mat[5], mat[6], mat[7]}
	m[2] = vec4.T{mat[8], mat[9], mat[10], mat[11]}
	m[3] = vec4.T{mat[12], mat[13], mat[14], mat[15]}
	return m
}
