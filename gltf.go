package vehicle3d

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/flywave/go3d/quaternion"
	"github.com/qmuntal/gltf"
)

const (
	// GLTFVersion GLTF规范版本
	GLTFVersion = "2.0"

	// PaddingChar 二进制填充字符
	PaddingChar = 0x20
)

// ExportGltf 将场景图导出为 GLTF 文档，供下游渲染或离线检查
func ExportGltf(root *Node) (*gltf.Document, error) {
	if root == nil {
		return nil, errors.New("nil root node")
	}
	ctx := &buildContext{
		doc:       CreateDoc(),
		materials: make(map[*PbrMaterial]uint32),
	}
	idx, err := ctx.buildNode(root)
	if err != nil {
		return nil, err
	}
	ctx.doc.Scenes[0].Nodes = append(ctx.doc.Scenes[0].Nodes, idx)
	return ctx.doc, nil
}

// CreateDoc 创建一个新的GLTF文档
func CreateDoc() *gltf.Document {
	doc := &gltf.Document{
		Asset: gltf.Asset{
			Version: GLTFVersion,
		},
		Scenes:  []*gltf.Scene{{}},
		Buffers: []*gltf.Buffer{{}},
	}

	sceneIndex := uint32(0)
	doc.Scene = &sceneIndex

	return doc
}

// bufferWriter 记录写入字节数
type bufferWriter struct {
	writer io.Writer
	size   int
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.size += n
	return n, err
}

func (w *bufferWriter) Bytes() []byte {
	return w.writer.(*bytes.Buffer).Bytes()
}

func newBufferWriter() *bufferWriter {
	return &bufferWriter{
		writer: bytes.NewBuffer(nil),
	}
}

// calcPadding 计算需要的填充字节数
func calcPadding(offset, unit int) int {
	if unit <= 0 {
		return 0
	}
	padding := offset % unit
	if padding != 0 {
		padding = unit - padding
	}
	return padding
}

// GetGltfBinary 将GLTF文档编码为GLB
func GetGltfBinary(doc *gltf.Document, paddingUnit int) ([]byte, error) {
	writer := newBufferWriter()

	encoder := gltf.NewEncoder(writer)
	encoder.AsBinary = true

	if err := encoder.Encode(doc); err != nil {
		return nil, err
	}

	padding := calcPadding(writer.size, paddingUnit)
	if padding == 0 {
		return writer.Bytes(), nil
	}

	pad := bytes.Repeat([]byte{PaddingChar}, padding)
	writer.Write(pad)

	return writer.Bytes(), nil
}

// buildContext 导出过程中的状态
type buildContext struct {
	doc       *gltf.Document
	materials map[*PbrMaterial]uint32
}

func (ctx *buildContext) buildNode(n *Node) (uint32, error) {
	gn := &gltf.Node{
		Name:        n.Name,
		Translation: [3]float32(n.Translation),
		Rotation:    [4]float32(normalizedRotation(n.Rotation)),
		Scale:       [3]float32(n.Scale),
	}
	index := uint32(len(ctx.doc.Nodes))
	ctx.doc.Nodes = append(ctx.doc.Nodes, gn)

	// 单网格且同名时直接挂在节点上，保证往返后名称一致
	if len(n.Meshes) == 1 && n.Meshes[0].Name == n.Name {
		mi, err := ctx.buildMesh(n.Meshes[0])
		if err != nil {
			return 0, err
		}
		gn.Mesh = mi
	} else {
		for _, m := range n.Meshes {
			mi, err := ctx.buildMesh(m)
			if err != nil {
				return 0, err
			}
			if mi == nil {
				continue
			}
			ci := uint32(len(ctx.doc.Nodes))
			ctx.doc.Nodes = append(ctx.doc.Nodes, &gltf.Node{
				Name:     m.Name,
				Mesh:     mi,
				Rotation: [4]float32{0, 0, 0, 1},
				Scale:    [3]float32{1, 1, 1},
			})
			gn.Children = append(gn.Children, ci)
		}
	}

	for _, c := range n.Children {
		ci, err := ctx.buildNode(c)
		if err != nil {
			return 0, err
		}
		gn.Children = append(gn.Children, ci)
	}
	return index, nil
}

func normalizedRotation(q quaternion.T) quaternion.T {
	if q == (quaternion.T{}) {
		return quaternion.Ident
	}
	return q
}

// buildMesh 写入几何数据并返回网格索引，空几何返回 nil
func (ctx *buildContext) buildMesh(m *Mesh) (*uint32, error) {
	g := m.Geometry
	if g == nil || len(g.Vertices) == 0 {
		return nil, nil
	}
	if len(g.Normals) > 0 && len(g.Normals) != len(g.Vertices) {
		return nil, errors.New("mesh " + m.Name + ": normal count does not match vertex count")
	}
	if len(g.TexCoords) > 0 && len(g.TexCoords) != len(g.Vertices) {
		return nil, errors.New("mesh " + m.Name + ": texcoord count does not match vertex count")
	}

	doc := ctx.doc
	attributes := gltf.Attribute{}

	bounds := g.GetBoundbox()
	attributes["POSITION"] = ctx.writeAccessor(g.Vertices, &gltf.Accessor{
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorVec3,
		Count:         uint32(len(g.Vertices)),
		Min:           []float32{float32(bounds[0]), float32(bounds[1]), float32(bounds[2])},
		Max:           []float32{float32(bounds[3]), float32(bounds[4]), float32(bounds[5])},
	})
	if len(g.Normals) > 0 {
		attributes["NORMAL"] = ctx.writeAccessor(g.Normals, &gltf.Accessor{
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec3,
			Count:         uint32(len(g.Normals)),
		})
	}
	if len(g.TexCoords) > 0 {
		attributes["TEXCOORD_0"] = ctx.writeAccessor(g.TexCoords, &gltf.Accessor{
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec2,
			Count:         uint32(len(g.TexCoords)),
		})
	}

	primitive := &gltf.Primitive{
		Mode:       gltf.PrimitiveTriangles,
		Attributes: attributes,
	}
	if len(g.Indices) > 0 {
		primitive.Indices = uint32Ptr(ctx.writeAccessor(g.Indices, &gltf.Accessor{
			ComponentType: gltf.ComponentUint,
			Type:          gltf.AccessorScalar,
			Count:         uint32(len(g.Indices)),
		}))
	}
	if m.Material != nil {
		primitive.Material = uint32Ptr(ctx.fillMaterial(m.Material))
	}

	index := uint32(len(doc.Meshes))
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name:       m.Name,
		Primitives: []*gltf.Primitive{primitive},
	})
	return &index, nil
}

// writeAccessor 追加缓冲区视图和访问器，数据元素均为 4 字节对齐
func (ctx *buildContext) writeAccessor(data interface{}, acc *gltf.Accessor) uint32 {
	doc := ctx.doc
	buffer := doc.Buffers[0]
	buf := bytes.NewBuffer(nil)
	binary.Write(buf, binary.LittleEndian, data)

	view := &gltf.BufferView{
		Buffer:     0,
		ByteOffset: buffer.ByteLength,
		ByteLength: uint32(buf.Len()),
	}
	buffer.ByteLength += uint32(buf.Len())
	buffer.Data = append(buffer.Data, buf.Bytes()...)

	acc.BufferView = uint32Ptr(uint32(len(doc.BufferViews)))
	doc.BufferViews = append(doc.BufferViews, view)

	index := uint32(len(doc.Accessors))
	doc.Accessors = append(doc.Accessors, acc)
	return index
}

// fillMaterial 写入材质，同一材质实例只写一次
func (ctx *buildContext) fillMaterial(mtl *PbrMaterial) uint32 {
	if index, ok := ctx.materials[mtl]; ok {
		return index
	}
	doc := ctx.doc

	metallic := mtl.Metallic
	roughness := mtl.Roughness
	color := mtl.GetColor()
	gltfMaterial := &gltf.Material{
		Name:        mtl.Name,
		DoubleSided: mtl.DoubleSided,
		AlphaMode:   gltf.AlphaOpaque,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{
				float32(color[0]) / 255,
				float32(color[1]) / 255,
				float32(color[2]) / 255,
				1 - mtl.Transparency,
			},
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
		EmissiveFactor: colorToFloat(mtl.GetEmissive()),
	}
	if mtl.Transparency > 0 {
		gltfMaterial.AlphaMode = gltf.AlphaBlend
	}

	exts := materialExtensions(mtl)
	if len(exts) > 0 {
		gltfMaterial.Extensions = make(gltf.Extensions, len(exts))
		for name, v := range exts {
			gltfMaterial.Extensions[name] = v
			ctx.useExtension(name)
		}
	}

	index := uint32(len(doc.Materials))
	doc.Materials = append(doc.Materials, gltfMaterial)
	ctx.materials[mtl] = index
	return index
}

func (ctx *buildContext) useExtension(name string) {
	for _, ext := range ctx.doc.ExtensionsUsed {
		if ext == name {
			return
		}
	}
	ctx.doc.ExtensionsUsed = append(ctx.doc.ExtensionsUsed, name)
}

// materialExtensions 预设中的可选参数映射为 KHR 材质扩展
func materialExtensions(mtl *PbrMaterial) map[string]map[string]interface{} {
	exts := make(map[string]map[string]interface{})
	if mtl.ClearCoat != nil {
		e := map[string]interface{}{"clearcoatFactor": *mtl.ClearCoat}
		if mtl.ClearCoatRoughness != nil {
			e["clearcoatRoughnessFactor"] = *mtl.ClearCoatRoughness
		}
		exts[extClearcoat] = e
	}
	if mtl.SheenColor != nil {
		e := map[string]interface{}{"sheenColorFactor": colorToFloat(*mtl.SheenColor)}
		if mtl.Sheen != nil {
			e["sheenRoughnessFactor"] = 1 - *mtl.Sheen
		}
		exts[extSheen] = e
	}
	if mtl.Transmission != nil {
		exts[extTransmission] = map[string]interface{}{"transmissionFactor": *mtl.Transmission}
	}
	if mtl.Ior != nil {
		exts[extIor] = map[string]interface{}{"ior": *mtl.Ior}
	}
	if mtl.Thickness != nil || mtl.AttenuationDistance != nil || mtl.AttenuationColor != nil {
		e := map[string]interface{}{}
		if mtl.Thickness != nil {
			e["thicknessFactor"] = *mtl.Thickness
		}
		if mtl.AttenuationDistance != nil {
			e["attenuationDistance"] = *mtl.AttenuationDistance
		}
		if mtl.AttenuationColor != nil {
			e["attenuationColor"] = colorToFloat(*mtl.AttenuationColor)
		}
		exts[extVolume] = e
	}
	return exts
}

func uint32Ptr(v uint32) *uint32 {
	return &v
}
