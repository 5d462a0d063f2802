package vehicle3d

import (
	"math"
	"testing"

	"github.com/flywave/go3d/vec3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewNode 测试新节点的默认变换
func TestNewNode(t *testing.T) {
	n := NewNode("root")
	assert.Equal(t, "root", n.Name)
	assert.Equal(t, vec3.T{1, 1, 1}, n.Scale)
	assert.Equal(t, vec3.T{}, n.Translation)
	assert.Equal(t, float32(1), n.Rotation[3])
	assert.Equal(t, 0, n.MeshCount())
}

// TestBoxNormals 测试长方体法线为单位长度且朝外
func TestBoxNormals(t *testing.T) {
	center := vec3.T{1, 2, 3}
	g := NewBoxGeometry(vec3.T{2, 4, 6}, center)
	require.Len(t, g.Vertices, 24)
	require.Len(t, g.Normals, 24)
	assert.Equal(t, 12, g.TriangleCount())

	for i, v := range g.Vertices {
		n := g.Normals[i]
		assert.InDelta(t, 1, n.Length(), 1e-5, "normal %d", i)
		d := vec3.Sub(&v, &center)
		assert.Greater(t, vec3.Dot(&n, &d), float32(0), "normal %d points inward", i)
	}
	// +y 面
	for i := 20; i < 24; i++ {
		assert.InDelta(t, 1, g.Normals[i][1], 1e-5)
	}
}

// TestReComputeNormalDegenerate 测试退化三角形不产生 NaN
func TestReComputeNormalDegenerate(t *testing.T) {
	g := &Geometry{
		Vertices: []vec3.T{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}},
		Indices:  []uint32{0, 1, 2},
	}
	g.ReComputeNormal()
	require.Len(t, g.Normals, 3)
	for _, n := range g.Normals {
		for _, c := range n {
			assert.False(t, math.IsNaN(float64(c)))
		}
	}
}

// TestComputeBBox 测试节点树包围盒
func TestComputeBBox(t *testing.T) {
	root := NewNode("root")
	root.Meshes = []*Mesh{{Name: "a", Geometry: NewBoxGeometry(vec3.T{2, 2, 2}, vec3.T{})}}
	child := NewNode("child")
	child.Meshes = []*Mesh{{Name: "b", Geometry: NewBoxGeometry(vec3.T{2, 2, 2}, vec3.T{4, 0, 0})}}
	root.AddChild(child)

	box := root.ComputeBBox()
	assert.InDelta(t, -1, box.Min[0], 1e-6)
	assert.InDelta(t, 5, box.Max[0], 1e-6)
	assert.InDelta(t, 2, box.Max[1]-box.Min[1], 1e-6)

	empty := NewNode("empty").ComputeBBox()
	assert.Equal(t, 0.0, empty.Max[0]-empty.Min[0])
}

// TestEulerRotation 测试欧拉角转四元数
func TestEulerRotation(t *testing.T) {
	tests := []struct {
		name  string
		euler vec3.T
		want  [4]float32
	}{
		{"identity", vec3.T{}, [4]float32{0, 0, 0, 1}},
		{"z90", vec3.T{0, 0, math.Pi / 2}, [4]float32{0, 0, float32(math.Sqrt2 / 2), float32(math.Sqrt2 / 2)}},
		{"x180", vec3.T{math.Pi, 0, 0}, [4]float32{1, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNode("n")
			n.SetEulerRotation(tt.euler)
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], n.Rotation[i], 1e-5)
			}
		})
	}
}

// TestGeometryClone 测试几何克隆相互独立
func TestGeometryClone(t *testing.T) {
	g := triangleGeometry()
	g.ReComputeNormal()
	c := g.Clone()
	require.Equal(t, g.Vertices, c.Vertices)
	require.Equal(t, g.Indices, c.Indices)

	c.Vertices[0][0] = 42
	c.Indices[0] = 2
	assert.Equal(t, float32(0), g.Vertices[0][0])
	assert.Equal(t, uint32(0), g.Indices[0])
	assert.False(t, c.Disposed())
}

// TestMaterialClone 测试材质克隆为实例私有的深拷贝
func TestMaterialClone(t *testing.T) {
	m := NewPbrMaterial("paint", [3]byte{10, 20, 30}, 0.2, 0.3)
	m.ClearCoat = float32Ptr(1)
	m.SheenColor = colorPtr([3]byte{1, 2, 3})

	c := m.Clone()
	assert.Equal(t, m.Name, c.Name)
	assert.Equal(t, m.Color, c.Color)
	assert.Equal(t, m.Metallic, c.Metallic)
	assert.Equal(t, ownerInstance, c.owner)
	assert.False(t, c.Shared())

	require.NotNil(t, c.ClearCoat)
	*c.ClearCoat = 0.5
	assert.Equal(t, float32(1), *m.ClearCoat)
	c.SheenColor[0] = 99
	assert.Equal(t, byte(1), m.SheenColor[0])
}

// TestCloneTreeMaterialOwnership 测试克隆时材质全部复制为实例私有
func TestCloneTreeMaterialOwnership(t *testing.T) {
	cache := NewMaterialCache()
	shared := cache.Get(DefaultPresets().DefaultForZone(ZoneBody), "#ff0000")
	external := NewPbrMaterial("external", [3]byte{1, 1, 1}, 0, 1)
	source := &PbrMaterial{Name: "authored", owner: ownerSource}

	root := NewNode("root")
	root.Meshes = []*Mesh{
		{Name: "cached", Geometry: triangleGeometry(), Material: shared},
		{Name: "external", Geometry: triangleGeometry(), Material: external},
		{Name: "source", Geometry: triangleGeometry(), Material: source},
	}
	clone := root.cloneTree(cloneMaterialOwned)

	tests := []struct {
		mesh string
		orig *PbrMaterial
	}{
		{"cached", shared},
		{"external", external},
		{"source", source},
	}
	for _, tt := range tests {
		t.Run(tt.mesh, func(t *testing.T) {
			c := clone.FindMesh(tt.mesh).Material
			assert.NotSame(t, tt.orig, c)
			assert.Equal(t, tt.orig.Name, c.Name)
			assert.Equal(t, tt.orig.Color, c.Color)
			assert.Equal(t, ownerInstance, c.owner)
			assert.False(t, c.Shared())
		})
	}
	assert.NotSame(t, root.Meshes[0].Geometry, clone.Meshes[0].Geometry)

	// 修改克隆的材质不影响原材质
	clone.FindMesh("cached").Material.Color = [3]byte{0, 255, 0}
	assert.Equal(t, [3]byte{255, 0, 0}, shared.Color)

	// 克隆不持有缓存引用
	cache.Release(shared)
	assert.Equal(t, 0, cache.Stats().Live)

	clone.disposeTree()
	assert.False(t, shared.Disposed())
	assert.False(t, external.Disposed())
	assert.False(t, source.Disposed())
	for _, tt := range tests {
		assert.True(t, clone.FindMesh(tt.mesh).Material.Disposed())
	}
	assert.True(t, clone.Meshes[0].Geometry.Disposed())
	assert.False(t, root.Meshes[0].Geometry.Disposed())
}

// TestSetMaterial 测试替换材质时按所有权归还旧材质
func TestSetMaterial(t *testing.T) {
	cache := NewMaterialCache()
	preset, _ := DefaultPresets().Get("metal-chrome")
	shared := cache.Get(preset, "#cccccc")

	private := NewPbrMaterial("private", [3]byte{}, 0, 1).Clone()
	m := &Mesh{Name: "rim", Geometry: triangleGeometry(), Material: private}

	m.SetMaterial(shared)
	assert.True(t, private.Disposed())
	assert.Same(t, shared, m.Material)

	cache.Release(shared)
	stats := cache.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 0, stats.Idle)

	// 同一材质不重复计数
	m.SetMaterial(shared)
	m.SetMaterial(nil)
	stats = cache.Stats()
	assert.Equal(t, 0, stats.Live)
	assert.Equal(t, 1, stats.Idle)
	assert.False(t, shared.Disposed())
}

// TestTraverseOrder 测试深度优先先父后子的遍历顺序
func TestTraverseOrder(t *testing.T) {
	root := NewNode("root")
	a := NewNode("a")
	a.AddChild(NewNode("a1"))
	root.AddChild(a).AddChild(NewNode("b"))

	var names []string
	root.Traverse(func(n *Node) {
		names = append(names, n.Name)
	})
	assert.Equal(t, []string{"root", "a", "a1", "b"}, names)
}
