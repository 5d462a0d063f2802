package vehicle3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildMap 测试解析结果可追溯到目录条目和预设
func TestBuildMap(t *testing.T) {
	f := NewMaterialFactory(DefaultPresets(), NewMaterialCache())
	m := f.BuildMap([]MaterialSelection{
		{Zone: ZoneBody, MaterialID: "paint-red"},
		{Zone: ZoneSeats, MaterialID: "leather-tan"},
	}, testCatalog())

	assert.Equal(t, []MaterialZone{ZoneBody, ZoneSeats}, m.Zones())

	body, ok := m.Get(ZoneBody)
	require.True(t, ok)
	assert.Equal(t, "paint-red", body.MaterialID)
	assert.Equal(t, "paint-metallic", body.PresetID)
	assert.Equal(t, "#cc0000", body.Color)
	assert.Equal(t, FinishMetallic, body.Finish)
	assert.Equal(t, [3]byte{0xcc, 0, 0}, body.Material.Color)
	assert.Same(t, body.Material, m.ForZone(ZoneBody))

	seats, ok := m.Get(ZoneSeats)
	require.True(t, ok)
	assert.Equal(t, "upholstery-leather", seats.PresetID)
	assert.Equal(t, "#a0785a", seats.Color)

	_, ok = m.Get(ZoneGlass)
	assert.False(t, ok)
}

// TestBuildMapSharesCache 测试两个映射中相同的选择共享同一材质实例
func TestBuildMapSharesCache(t *testing.T) {
	f := NewMaterialFactory(nil, nil)
	sel := []MaterialSelection{{Zone: ZoneBody, MaterialID: "paint-red"}}
	a := f.BuildMap(sel, testCatalog())
	b := f.BuildMap(sel, testCatalog())
	assert.Same(t, a.ForZone(ZoneBody), b.ForZone(ZoneBody))
	assert.Equal(t, uint64(1), f.Cache().Stats().Created)
	assert.NotNil(t, f.Presets())
}

// TestBuildMapSkipsUnknown 测试未知材质标识和区域被跳过
func TestBuildMapSkipsUnknown(t *testing.T) {
	f := NewMaterialFactory(DefaultPresets(), NewMaterialCache())
	m := f.BuildMap([]MaterialSelection{
		{Zone: ZoneBody, MaterialID: "does-not-exist"},
		{Zone: "underbody", MaterialID: "paint-red"},
	}, testCatalog())

	assert.Empty(t, m.Zones())
	for _, z := range AllZones() {
		assert.Same(t, NeutralMaterial(), f.GetForZone(m, z), z)
	}
}

// TestGetForZoneTotal 测试空映射和 nil 映射对所有区域都返回材质
func TestGetForZoneTotal(t *testing.T) {
	f := NewMaterialFactory(nil, nil)
	empty := f.BuildMap(nil, nil)
	for _, z := range AllZones() {
		for _, m := range []*MaterialMap{nil, empty} {
			mtl := f.GetForZone(m, z)
			require.NotNil(t, mtl)
			assert.Equal(t, neutralGray, mtl.Color)
			assert.Equal(t, float32(0.5), mtl.Metallic)
			assert.Equal(t, float32(0.5), mtl.Roughness)
		}
	}
	assert.Nil(t, (*MaterialMap)(nil).Zones())
}

// TestBuildDefaultMap 测试默认映射覆盖全部区域
func TestBuildDefaultMap(t *testing.T) {
	f := NewMaterialFactory(DefaultPresets(), NewMaterialCache())
	m := f.BuildDefaultMap()
	assert.Equal(t, AllZones(), m.Zones())

	body, _ := m.Get(ZoneBody)
	assert.Equal(t, "paint-gloss", body.PresetID)
	assert.Equal(t, "#1f3a5f", body.Color)
	assert.Equal(t, "default-body", body.MaterialID)

	lights, _ := m.Get(ZoneLights)
	assert.Equal(t, "lens-clear", lights.PresetID)

	// 车身和车顶同色同预设，共享实例
	assert.Same(t, m.ForZone(ZoneBody), m.ForZone(ZoneRoof))
}

// TestWithZoneDefaults 测试覆盖区域默认值
func TestWithZoneDefaults(t *testing.T) {
	f := NewMaterialFactory(DefaultPresets(), NewMaterialCache(), WithZoneDefaults(map[MaterialZone]ZoneDefault{
		ZoneBody: {ColorHex: "#ffffff", Type: MaterialTypePaint, Finish: FinishPearl},
	}))
	m := f.BuildDefaultMap()
	body, _ := m.Get(ZoneBody)
	assert.Equal(t, "paint-pearl", body.PresetID)
	assert.Equal(t, "#ffffff", body.Color)

	roof, _ := m.Get(ZoneRoof)
	assert.Equal(t, "#1f3a5f", roof.Color)
}

// TestResolve 测试选择叠加在默认映射上，未知标识保留默认材质
func TestResolve(t *testing.T) {
	cache := NewMaterialCache()
	f := NewMaterialFactory(DefaultPresets(), cache)
	m := f.Resolve([]MaterialSelection{
		{Zone: ZoneBody, MaterialID: "paint-red"},
		{Zone: ZoneSeats, MaterialID: "missing-leather"},
	}, testCatalog())

	assert.Equal(t, AllZones(), m.Zones())
	body, _ := m.Get(ZoneBody)
	assert.Equal(t, "paint-red", body.MaterialID)

	seats, _ := m.Get(ZoneSeats)
	assert.Equal(t, "default-seats", seats.MaterialID)
	assert.Equal(t, "upholstery-leather", seats.PresetID)

	roof, _ := m.Get(ZoneRoof)
	assert.Equal(t, "#1f3a5f", roof.Color)

	// 被覆盖的默认车身材质已归还
	m.Release()
	stats := cache.Stats()
	assert.Equal(t, 0, stats.Live)
	assert.Equal(t, uint64(stats.Idle)+stats.Disposed, stats.Created)
}

// TestMaterialMapRelease 测试映射归还引用，网格持有的材质继续存活
func TestMaterialMapRelease(t *testing.T) {
	cache := NewMaterialCache(WithIdleCapacity(0))
	f := NewMaterialFactory(DefaultPresets(), cache)
	m := f.BuildMap([]MaterialSelection{
		{Zone: ZoneBody, MaterialID: "paint-red"},
		{Zone: ZoneMetal, MaterialID: "chrome"},
	}, testCatalog())

	body := m.ForZone(ZoneBody)
	metal := m.ForZone(ZoneMetal)
	mesh := &Mesh{Name: "BodyMesh", Geometry: triangleGeometry()}
	mesh.SetMaterial(body)

	m.Release()
	m.Release()
	assert.False(t, body.Disposed())
	assert.True(t, metal.Disposed())
	assert.Empty(t, m.Zones())
	assert.Same(t, NeutralMaterial(), m.ForZone(ZoneBody))

	mesh.SetMaterial(nil)
	assert.True(t, body.Disposed())
}

// TestNeutralMaterialNeverDisposed 测试中性灰材质不受归还影响
func TestNeutralMaterialNeverDisposed(t *testing.T) {
	n := NeutralMaterial()
	mesh := &Mesh{Name: "x", Material: n}
	mesh.SetMaterial(nil)
	releaseMaterial(n)
	assert.False(t, n.Disposed())
	assert.Same(t, n, NeutralMaterial())
}
