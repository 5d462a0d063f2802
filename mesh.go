package vehicle3d

import (
	"log/slog"
	"math"
	"sync/atomic"

	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/flywave/go3d/quaternion"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/jinzhu/copier"
)

// Geometry 网格几何数据，三角形索引
type Geometry struct {
	Vertices  []vec3.T `json:"vertices"`
	Normals   []vec3.T `json:"normals,omitempty"`
	TexCoords []vec2.T `json:"texCoords,omitempty"`
	Indices   []uint32 `json:"indices,omitempty"`

	releaser Releaser
	disposed atomic.Bool
}

func (g *Geometry) TriangleCount() int {
	if len(g.Indices) > 0 {
		return len(g.Indices) / 3
	}
	return len(g.Vertices) / 3
}

func (g *Geometry) triangle(i int) (uint32, uint32, uint32) {
	if len(g.Indices) > 0 {
		return g.Indices[i*3], g.Indices[i*3+1], g.Indices[i*3+2]
	}
	b := uint32(i * 3)
	return b, b + 1, b + 2
}

// ReComputeNormal 按面积加权重新计算顶点法线
func (g *Geometry) ReComputeNormal() {
	normals := make([]vec3.T, len(g.Vertices))
	for i := 0; i < g.TriangleCount(); i++ {
		a, b, c := g.triangle(i)
		pt1 := g.Vertices[a]
		pt2 := g.Vertices[b]
		pt3 := g.Vertices[c]

		sub1 := vec3.Sub(&pt3, &pt2)
		sub2 := vec3.Sub(&pt1, &pt2)

		cro := vec3.Cross(&sub1, &sub2)
		l := cro.Length()
		if l == 0 {
			continue
		}
		weightedNormal := cro.Scale(1 / l)

		normals[a].Add(weightedNormal)
		normals[b].Add(weightedNormal)
		normals[c].Add(weightedNormal)
	}

	for i := range normals {
		normals[i].Normalize()
	}

	g.Normals = normals
}

func (g *Geometry) GetBoundbox() *[6]float64 {
	minX := math.MaxFloat64
	minY := math.MaxFloat64
	minZ := math.MaxFloat64
	maxX := -math.MaxFloat64
	maxY := -math.MaxFloat64
	maxZ := -math.MaxFloat64
	for i := range g.Vertices {
		minX = math.Min(minX, float64(g.Vertices[i][0]))
		minY = math.Min(minY, float64(g.Vertices[i][1]))
		minZ = math.Min(minZ, float64(g.Vertices[i][2]))

		maxX = math.Max(maxX, float64(g.Vertices[i][0]))
		maxY = math.Max(maxY, float64(g.Vertices[i][1]))
		maxZ = math.Max(maxZ, float64(g.Vertices[i][2]))
	}
	return &[6]float64{minX, minY, minZ, maxX, maxY, maxZ}
}

// Clone 深拷贝顶点数据
func (g *Geometry) Clone() *Geometry {
	c := &Geometry{}
	if err := copier.CopyWithOption(c, g, copier.Option{DeepCopy: true}); err != nil {
		slog.Error("vehicle3d.Geometry.Clone", "err", err)
	}
	c.releaser = g.releaser
	c.disposed.Store(false)
	return c
}

func (g *Geometry) Disposed() bool {
	return g.disposed.Load()
}

func (g *Geometry) dispose() bool {
	if !g.disposed.CompareAndSwap(false, true) {
		return false
	}
	if g.releaser != nil {
		g.releaser.ReleaseGeometry(g)
	}
	return true
}

// Mesh 可渲染网格，名称用于材质模式匹配
type Mesh struct {
	Name     string       `json:"name"`
	Geometry *Geometry    `json:"geometry"`
	Material *PbrMaterial `json:"material,omitempty"`
}

// SetMaterial 替换网格材质，旧材质按所有权归还
func (m *Mesh) SetMaterial(mtl *PbrMaterial) {
	if m.Material == mtl {
		return
	}
	retainMaterial(mtl)
	old := m.Material
	m.Material = mtl
	releaseMaterial(old)
}

// Node 场景节点
type Node struct {
	Name        string       `json:"name"`
	Translation vec3.T       `json:"translation"`
	Rotation    quaternion.T `json:"rotation"`
	Scale       vec3.T       `json:"scale"`
	Meshes      []*Mesh      `json:"meshes,omitempty"`
	Children    []*Node      `json:"children,omitempty"`
}

func NewNode(name string) *Node {
	return &Node{Name: name, Rotation: quaternion.Ident, Scale: vec3.T{1, 1, 1}}
}

func (n *Node) AddChild(c *Node) *Node {
	n.Children = append(n.Children, c)
	return n
}

// SetEulerRotation 按 XYZ 顺序设置欧拉角旋转（弧度）
func (n *Node) SetEulerRotation(r vec3.T) {
	n.Rotation = eulerToQuaternion(r)
}

func eulerToQuaternion(r vec3.T) quaternion.T {
	qx := quaternion.FromXAxisAngle(r[0])
	qy := quaternion.FromYAxisAngle(r[1])
	qz := quaternion.FromZAxisAngle(r[2])
	return quaternion.Mul3(&qx, &qy, &qz)
}

// Traverse 深度优先遍历，先父后子
func (n *Node) Traverse(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Traverse(fn)
	}
}

// TraverseMeshes 按遍历顺序访问全部网格
func (n *Node) TraverseMeshes(fn func(*Mesh)) {
	n.Traverse(func(nd *Node) {
		for _, m := range nd.Meshes {
			fn(m)
		}
	})
}

func (n *Node) MeshCount() int {
	count := 0
	n.TraverseMeshes(func(*Mesh) { count++ })
	return count
}

// FindMesh 按名称查找第一个网格
func (n *Node) FindMesh(name string) *Mesh {
	var found *Mesh
	n.TraverseMeshes(func(m *Mesh) {
		if found == nil && m.Name == name {
			found = m
		}
	})
	return found
}

// ComputeBBox 计算几何包围盒，不含节点变换
func (n *Node) ComputeBBox() dvec3.Box {
	if n.MeshCount() == 0 {
		return dvec3.Box{}
	}

	bbox := dvec3.MinBox
	n.TraverseMeshes(func(m *Mesh) {
		if m.Geometry == nil || len(m.Geometry.Vertices) == 0 {
			return
		}
		bx := m.Geometry.GetBoundbox()
		min := dvec3.T{bx[0], bx[1], bx[2]}
		max := dvec3.T{bx[3], bx[4], bx[5]}
		bbx := dvec3.Box{Min: min, Max: max}
		bbox.Join(&bbx)
	})
	return bbox
}

// cloneTree 深拷贝节点树，几何总是复制，材质由 cloneMaterial 决定
func (n *Node) cloneTree(cloneMaterial func(*PbrMaterial) *PbrMaterial) *Node {
	c := &Node{
		Name:        n.Name,
		Translation: n.Translation,
		Rotation:    n.Rotation,
		Scale:       n.Scale,
	}
	for _, m := range n.Meshes {
		cm := &Mesh{Name: m.Name}
		if m.Geometry != nil {
			cm.Geometry = m.Geometry.Clone()
		}
		cm.Material = cloneMaterial(m.Material)
		c.Meshes = append(c.Meshes, cm)
	}
	for _, ch := range n.Children {
		c.Children = append(c.Children, ch.cloneTree(cloneMaterial))
	}
	return c
}

// cloneMaterialOwned 克隆时材质一律深拷贝为实例私有，缓存和外部材质也不例外
func cloneMaterialOwned(m *PbrMaterial) *PbrMaterial {
	if m == nil {
		return nil
	}
	return m.Clone()
}

// disposeTree 释放树上全部几何，材质按所有权归还
func (n *Node) disposeTree() {
	n.TraverseMeshes(func(m *Mesh) {
		if m.Geometry != nil {
			m.Geometry.dispose()
		}
		releaseMaterial(m.Material)
	})
}
