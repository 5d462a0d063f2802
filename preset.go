package vehicle3d

import (
	"sort"
)

// MaterialPreset 与颜色无关的物理渲染参数组合
type MaterialPreset struct {
	ID                  string
	Type                MaterialType
	Finish              Finish
	CompatibleZones     []MaterialZone
	Metalness           float32
	Roughness           float32
	ClearCoat           *float32
	ClearCoatRoughness  *float32
	Sheen               *float32
	SheenColor          *[3]byte
	Transmission        *float32
	Ior                 *float32
	Thickness           *float32
	AttenuationColor    *[3]byte
	AttenuationDistance *float32
	EnvMapIntensity     float32
	Transparency        float32
}

// CompatibleWith 预设是否适用于区域
func (p *MaterialPreset) CompatibleWith(zone MaterialZone) bool {
	for _, z := range p.CompatibleZones {
		if z == zone {
			return true
		}
	}
	return false
}

// PresetCatalog 静态预设目录
type PresetCatalog struct {
	presets  []*MaterialPreset
	byID     map[string]*MaterialPreset
	defaults map[MaterialZone]string
}

// NewPresetCatalog 以声明顺序建立目录，defaults 给出每个区域的兜底预设
func NewPresetCatalog(presets []MaterialPreset, defaults map[MaterialZone]string) *PresetCatalog {
	c := &PresetCatalog{
		byID:     make(map[string]*MaterialPreset, len(presets)),
		defaults: make(map[MaterialZone]string, len(defaults)),
	}
	for i := range presets {
		p := presets[i]
		p.CompatibleZones = append([]MaterialZone(nil), presets[i].CompatibleZones...)
		c.presets = append(c.presets, &p)
		c.byID[p.ID] = &p
	}
	for z, id := range defaults {
		c.defaults[z] = id
	}
	return c
}

func (c *PresetCatalog) Get(id string) (*MaterialPreset, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *PresetCatalog) ByZone(zone MaterialZone) []*MaterialPreset {
	var out []*MaterialPreset
	for _, p := range c.presets {
		if p.CompatibleWith(zone) {
			out = append(out, p)
		}
	}
	return out
}

func (c *PresetCatalog) ByType(t MaterialType) []*MaterialPreset {
	var out []*MaterialPreset
	for _, p := range c.presets {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// IDs 全部预设标识，排序后返回
func (c *PresetCatalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultForZone 区域兜底预设，总能返回
func (c *PresetCatalog) DefaultForZone(zone MaterialZone) *MaterialPreset {
	if id, ok := c.defaults[zone]; ok {
		if p, ok := c.byID[id]; ok {
			return p
		}
	}
	if ps := c.ByZone(zone); len(ps) > 0 {
		return ps[0]
	}
	if len(c.presets) > 0 {
		return c.presets[0]
	}
	return &neutralPreset
}

// Select 三级降级匹配：类型 -> 工艺 -> 区域兼容，任何情况下都不报错
func (c *PresetCatalog) Select(m CatalogMaterial, zone MaterialZone) *MaterialPreset {
	byType := c.ByType(m.Type)
	if len(byType) == 0 {
		return c.DefaultForZone(zone)
	}
	var byFinish []*MaterialPreset
	for _, p := range byType {
		if p.Finish == m.Finish {
			byFinish = append(byFinish, p)
		}
	}
	if len(byFinish) == 0 {
		return c.DefaultForZone(zone)
	}
	for _, p := range byFinish {
		if p.CompatibleWith(zone) {
			return p
		}
	}
	// 区域兼容只是建议
	return byFinish[0]
}

var neutralPreset = MaterialPreset{
	ID:              "neutral",
	Metalness:       0.5,
	Roughness:       0.5,
	EnvMapIntensity: 1,
	CompatibleZones: allZones,
}

// DefaultPresets 内置预设目录
func DefaultPresets() *PresetCatalog {
	return NewPresetCatalog(builtinPresets, map[MaterialZone]string{
		ZoneBody:   "paint-gloss",
		ZoneRoof:   "paint-gloss",
		ZoneSeats:  "upholstery-leather",
		ZoneMetal:  "metal-chrome",
		ZoneGlass:  "glass-clear",
		ZoneTrim:   "trim-matte",
		ZoneLights: "lens-clear",
	})
}

var builtinPresets = []MaterialPreset{
	{
		ID: "paint-gloss", Type: MaterialTypePaint, Finish: FinishGloss,
		CompatibleZones: []MaterialZone{ZoneBody, ZoneRoof},
		Metalness:       0.1, Roughness: 0.2,
		ClearCoat: float32Ptr(1), ClearCoatRoughness: float32Ptr(0.03),
		EnvMapIntensity: 1.5,
	},
	{
		ID: "paint-matte", Type: MaterialTypePaint, Finish: FinishMatte,
		CompatibleZones: []MaterialZone{ZoneBody, ZoneRoof},
		Metalness:       0, Roughness: 0.8,
		EnvMapIntensity: 0.8,
	},
	{
		ID: "paint-metallic", Type: MaterialTypePaint, Finish: FinishMetallic,
		CompatibleZones: []MaterialZone{ZoneBody, ZoneRoof},
		Metalness:       0.7, Roughness: 0.3,
		ClearCoat: float32Ptr(1), ClearCoatRoughness: float32Ptr(0.1),
		EnvMapIntensity: 1.5,
	},
	{
		ID: "paint-pearl", Type: MaterialTypePaint, Finish: FinishPearl,
		CompatibleZones: []MaterialZone{ZoneBody, ZoneRoof},
		Metalness:       0.4, Roughness: 0.25,
		ClearCoat: float32Ptr(1), ClearCoatRoughness: float32Ptr(0.05),
		Sheen: float32Ptr(0.5), SheenColor: colorPtr([3]byte{255, 255, 255}),
		EnvMapIntensity: 1.5,
	},
	{
		ID: "metal-chrome", Type: MaterialTypeMetal, Finish: FinishChrome,
		CompatibleZones: []MaterialZone{ZoneMetal, ZoneTrim},
		Metalness:       1, Roughness: 0.05,
		EnvMapIntensity: 2,
	},
	{
		ID: "metal-brushed", Type: MaterialTypeMetal, Finish: FinishBrushed,
		CompatibleZones: []MaterialZone{ZoneMetal, ZoneTrim},
		Metalness:       1, Roughness: 0.35,
		EnvMapIntensity: 1.2,
	},
	{
		ID: "metal-matte", Type: MaterialTypeMetal, Finish: FinishMatte,
		CompatibleZones: []MaterialZone{ZoneMetal},
		Metalness:       0.9, Roughness: 0.6,
		EnvMapIntensity: 1,
	},
	{
		ID: "upholstery-leather", Type: MaterialTypeUpholstery, Finish: FinishLeather,
		CompatibleZones: []MaterialZone{ZoneSeats},
		Metalness:       0, Roughness: 0.6,
		Sheen: float32Ptr(0.3), SheenColor: colorPtr([3]byte{60, 50, 40}),
		EnvMapIntensity: 0.8,
	},
	{
		ID: "upholstery-fabric", Type: MaterialTypeUpholstery, Finish: FinishFabric,
		CompatibleZones: []MaterialZone{ZoneSeats},
		Metalness:       0, Roughness: 0.9,
		Sheen: float32Ptr(1), SheenColor: colorPtr([3]byte{200, 200, 200}),
		EnvMapIntensity: 0.5,
	},
	{
		ID: "upholstery-suede", Type: MaterialTypeUpholstery, Finish: FinishSuede,
		CompatibleZones: []MaterialZone{ZoneSeats, ZoneTrim},
		Metalness:       0, Roughness: 0.95,
		Sheen: float32Ptr(0.8), SheenColor: colorPtr([3]byte{120, 110, 100}),
		EnvMapIntensity: 0.4,
	},
	{
		ID: "trim-matte", Type: MaterialTypeTrim, Finish: FinishMatte,
		CompatibleZones: []MaterialZone{ZoneTrim},
		Metalness:       0, Roughness: 0.7,
		EnvMapIntensity: 0.8,
	},
	{
		ID: "trim-carbon", Type: MaterialTypeTrim, Finish: FinishCarbon,
		CompatibleZones: []MaterialZone{ZoneTrim, ZoneBody},
		Metalness:       0.3, Roughness: 0.2,
		ClearCoat: float32Ptr(1), ClearCoatRoughness: float32Ptr(0.02),
		EnvMapIntensity: 1.2,
	},
	{
		ID: "trim-wood", Type: MaterialTypeTrim, Finish: FinishWood,
		CompatibleZones: []MaterialZone{ZoneTrim},
		Metalness:       0, Roughness: 0.45,
		ClearCoat: float32Ptr(0.6), ClearCoatRoughness: float32Ptr(0.15),
		EnvMapIntensity: 1,
	},
	{
		ID: "glass-clear", Type: MaterialTypeGlass, Finish: FinishClear,
		CompatibleZones: []MaterialZone{ZoneGlass},
		Metalness:       0, Roughness: 0.05,
		Transmission: float32Ptr(0.95), Ior: float32Ptr(1.5), Thickness: float32Ptr(0.5),
		EnvMapIntensity: 1, Transparency: 0.7,
	},
	{
		ID: "glass-tinted", Type: MaterialTypeGlass, Finish: FinishTinted,
		CompatibleZones: []MaterialZone{ZoneGlass},
		Metalness:       0, Roughness: 0.05,
		Transmission: float32Ptr(0.7), Ior: float32Ptr(1.5), Thickness: float32Ptr(0.5),
		AttenuationColor: colorPtr([3]byte{40, 40, 45}), AttenuationDistance: float32Ptr(0.5),
		EnvMapIntensity: 1, Transparency: 0.5,
	},
	{
		ID: "glass-frosted", Type: MaterialTypeGlass, Finish: FinishFrosted,
		CompatibleZones: []MaterialZone{ZoneGlass, ZoneLights},
		Metalness:       0, Roughness: 0.6,
		Transmission: float32Ptr(0.8), Ior: float32Ptr(1.5), Thickness: float32Ptr(0.3),
		EnvMapIntensity: 0.8, Transparency: 0.4,
	},
	{
		ID: "lens-clear", Type: MaterialTypeGlass, Finish: FinishClear,
		CompatibleZones: []MaterialZone{ZoneLights},
		Metalness:       0, Roughness: 0.02,
		Transmission: float32Ptr(0.98), Ior: float32Ptr(1.49), Thickness: float32Ptr(0.2),
		EnvMapIntensity: 1.2, Transparency: 0.8,
	},
	{
		ID: "rubber-matte", Type: MaterialTypeRubber, Finish: FinishMatte,
		CompatibleZones: []MaterialZone{ZoneTrim},
		Metalness:       0, Roughness: 0.9,
		EnvMapIntensity: 0.3,
	},
}
