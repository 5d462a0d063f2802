package vehicle3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPresetSelect 测试类型、工艺、区域三级降级匹配
func TestPresetSelect(t *testing.T) {
	catalog := DefaultPresets()
	tests := []struct {
		name string
		mtl  CatalogMaterial
		zone MaterialZone
		want string
	}{
		{"exact", CatalogMaterial{Type: MaterialTypePaint, Finish: FinishMetallic}, ZoneBody, "paint-metallic"},
		{"zone compatible among finishes", CatalogMaterial{Type: MaterialTypeGlass, Finish: FinishClear}, ZoneLights, "lens-clear"},
		{"glass clear for glass", CatalogMaterial{Type: MaterialTypeGlass, Finish: FinishClear}, ZoneGlass, "glass-clear"},
		{"zone is advisory", CatalogMaterial{Type: MaterialTypePaint, Finish: FinishGloss}, ZoneSeats, "paint-gloss"},
		{"finish miss falls to zone default", CatalogMaterial{Type: MaterialTypePaint, Finish: "satin"}, ZoneBody, "paint-gloss"},
		{"finish miss on seats", CatalogMaterial{Type: MaterialTypeMetal, Finish: FinishLeather}, ZoneSeats, "upholstery-leather"},
		{"unknown type", CatalogMaterial{Type: "vinyl", Finish: FinishMatte}, ZoneTrim, "trim-matte"},
		{"empty material", CatalogMaterial{}, ZoneMetal, "metal-chrome"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := catalog.Select(tt.mtl, tt.zone)
			require.NotNil(t, p)
			assert.Equal(t, tt.want, p.ID)
		})
	}
}

// TestDefaultForZone 测试每个区域都有兼容的兜底预设
func TestDefaultForZone(t *testing.T) {
	catalog := DefaultPresets()
	want := map[MaterialZone]string{
		ZoneBody:   "paint-gloss",
		ZoneRoof:   "paint-gloss",
		ZoneSeats:  "upholstery-leather",
		ZoneMetal:  "metal-chrome",
		ZoneGlass:  "glass-clear",
		ZoneTrim:   "trim-matte",
		ZoneLights: "lens-clear",
	}
	for _, z := range AllZones() {
		p := catalog.DefaultForZone(z)
		require.NotNil(t, p, z)
		assert.Equal(t, want[z], p.ID, z)
		assert.True(t, p.CompatibleWith(z), z)
	}

	// 未知区域也有结果
	assert.NotNil(t, catalog.DefaultForZone("underbody"))
}

// TestPresetCatalogFallbacks 测试缺少默认表或目录为空时的兜底
func TestPresetCatalogFallbacks(t *testing.T) {
	empty := NewPresetCatalog(nil, nil)
	p := empty.DefaultForZone(ZoneBody)
	require.NotNil(t, p)
	assert.Equal(t, "neutral", p.ID)
	assert.Equal(t, float32(0.5), p.Metalness)
	assert.Equal(t, float32(0.5), p.Roughness)
	assert.Equal(t, "neutral", empty.Select(CatalogMaterial{Type: MaterialTypePaint}, ZoneBody).ID)

	only := NewPresetCatalog([]MaterialPreset{
		{ID: "a", Type: MaterialTypeTrim, Finish: FinishMatte, CompatibleZones: []MaterialZone{ZoneTrim}},
		{ID: "b", Type: MaterialTypeMetal, Finish: FinishChrome, CompatibleZones: []MaterialZone{ZoneMetal}},
	}, map[MaterialZone]string{ZoneBody: "missing"})
	assert.Equal(t, "b", only.DefaultForZone(ZoneMetal).ID)
	assert.Equal(t, "a", only.DefaultForZone(ZoneBody).ID)
}

// TestPresetQueries 测试按区域、类型和标识查询
func TestPresetQueries(t *testing.T) {
	catalog := DefaultPresets()

	p, ok := catalog.Get("paint-gloss")
	require.True(t, ok)
	assert.Equal(t, float32(0.1), p.Metalness)
	assert.Equal(t, float32(0.2), p.Roughness)
	require.NotNil(t, p.ClearCoat)
	assert.Equal(t, float32(1), *p.ClearCoat)
	assert.ElementsMatch(t, []MaterialZone{ZoneBody, ZoneRoof}, p.CompatibleZones)

	_, ok = catalog.Get("nope")
	assert.False(t, ok)

	var glassIDs []string
	for _, g := range catalog.ByType(MaterialTypeGlass) {
		glassIDs = append(glassIDs, g.ID)
	}
	assert.Equal(t, []string{"glass-clear", "glass-tinted", "glass-frosted", "lens-clear"}, glassIDs)

	var lightIDs []string
	for _, l := range catalog.ByZone(ZoneLights) {
		lightIDs = append(lightIDs, l.ID)
	}
	assert.Equal(t, []string{"glass-frosted", "lens-clear"}, lightIDs)

	ids := catalog.IDs()
	assert.Len(t, ids, 18)
	assert.Contains(t, ids, "rubber-matte")
}

// TestPresetCatalogCopiesInput 测试目录不受输入切片修改影响
func TestPresetCatalogCopiesInput(t *testing.T) {
	in := []MaterialPreset{{ID: "a", Type: MaterialTypeTrim, CompatibleZones: []MaterialZone{ZoneTrim}}}
	c := NewPresetCatalog(in, nil)
	in[0].ID = "changed"
	in[0].CompatibleZones[0] = ZoneBody

	p, ok := c.Get("a")
	require.True(t, ok)
	assert.True(t, p.CompatibleWith(ZoneTrim))
	assert.False(t, p.CompatibleWith(ZoneBody))
}
