package vehicle3d

import (
	"log/slog"
	"sync"
)

// ProcessedMaterial 某区域解析后的材质
type ProcessedMaterial struct {
	Zone       MaterialZone
	Color      string
	Finish     Finish
	PresetID   string
	MaterialID string
	Material   *PbrMaterial
}

// MaterialMap 区域到材质的映射，通过 ForZone 读取时对全部区域有定义
type MaterialMap struct {
	mu       sync.Mutex
	zones    map[MaterialZone]*ProcessedMaterial
	released bool
}

func newMaterialMap() *MaterialMap {
	return &MaterialMap{zones: make(map[MaterialZone]*ProcessedMaterial)}
}

// Get 返回区域显式解析的材质
func (m *MaterialMap) Get(zone MaterialZone) (*ProcessedMaterial, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.zones[zone]
	return pm, ok
}

// ForZone 区域材质，缺失时返回中性灰材质
func (m *MaterialMap) ForZone(zone MaterialZone) *PbrMaterial {
	if pm, ok := m.Get(zone); ok && pm.Material != nil {
		return pm.Material
	}
	return NeutralMaterial()
}

// Zones 显式解析过的区域，按枚举顺序
func (m *MaterialMap) Zones() []MaterialZone {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MaterialZone
	for _, z := range allZones {
		if _, ok := m.zones[z]; ok {
			out = append(out, z)
		}
	}
	return out
}

func (m *MaterialMap) set(pm *ProcessedMaterial) {
	m.mu.Lock()
	old := m.zones[pm.Zone]
	m.zones[pm.Zone] = pm
	m.mu.Unlock()
	if old != nil {
		releaseMaterial(old.Material)
	}
}

// Release 归还映射持有的全部缓存引用，已赋给网格的材质由网格继续持有
func (m *MaterialMap) Release() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return
	}
	m.released = true
	zones := m.zones
	m.zones = make(map[MaterialZone]*ProcessedMaterial)
	m.mu.Unlock()
	for _, pm := range zones {
		releaseMaterial(pm.Material)
	}
}

var (
	neutralOnce sync.Once
	neutralMtl  *PbrMaterial
)

// NeutralMaterial 进程内唯一的中性灰兜底材质，不会被释放
func NeutralMaterial() *PbrMaterial {
	neutralOnce.Do(func() {
		neutralMtl = NewPbrMaterial("neutral", neutralGray, neutralPreset.Metalness, neutralPreset.Roughness)
	})
	return neutralMtl
}

// ZoneDefault 未定制时区域使用的颜色和工艺
type ZoneDefault struct {
	ColorHex string
	Type     MaterialType
	Finish   Finish
}

var builtinZoneDefaults = map[MaterialZone]ZoneDefault{
	ZoneBody:   {ColorHex: "#1f3a5f", Type: MaterialTypePaint, Finish: FinishGloss},
	ZoneSeats:  {ColorHex: "#2b2b2b", Type: MaterialTypeUpholstery, Finish: FinishLeather},
	ZoneRoof:   {ColorHex: "#1f3a5f", Type: MaterialTypePaint, Finish: FinishGloss},
	ZoneMetal:  {ColorHex: "#c8c8c8", Type: MaterialTypeMetal, Finish: FinishChrome},
	ZoneGlass:  {ColorHex: "#e8f0f5", Type: MaterialTypeGlass, Finish: FinishClear},
	ZoneTrim:   {ColorHex: "#1a1a1a", Type: MaterialTypeTrim, Finish: FinishMatte},
	ZoneLights: {ColorHex: "#ffffff", Type: MaterialTypeGlass, Finish: FinishClear},
}

// MaterialFactory 将配置中的材质选择解析为区域材质映射
type MaterialFactory struct {
	presets  *PresetCatalog
	cache    *MaterialCache
	defaults map[MaterialZone]ZoneDefault
	logger   *slog.Logger
}

type FactoryOption func(*MaterialFactory)

func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *MaterialFactory) {
		f.logger = l
	}
}

// WithZoneDefaults 覆盖部分区域的默认颜色和工艺
func WithZoneDefaults(d map[MaterialZone]ZoneDefault) FactoryOption {
	return func(f *MaterialFactory) {
		for z, v := range d {
			f.defaults[z] = v
		}
	}
}

func NewMaterialFactory(presets *PresetCatalog, cache *MaterialCache, opts ...FactoryOption) *MaterialFactory {
	if presets == nil {
		presets = DefaultPresets()
	}
	if cache == nil {
		cache = NewMaterialCache()
	}
	f := &MaterialFactory{
		presets:  presets,
		cache:    cache,
		defaults: make(map[MaterialZone]ZoneDefault, len(builtinZoneDefaults)),
		logger:   slog.Default(),
	}
	for z, d := range builtinZoneDefaults {
		f.defaults[z] = d
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *MaterialFactory) Cache() *MaterialCache {
	return f.cache
}

func (f *MaterialFactory) Presets() *PresetCatalog {
	return f.presets
}

// BuildMap 解析材质选择，目录中不存在的材质标识被跳过，该区域读取时回落到默认值
func (f *MaterialFactory) BuildMap(selections []MaterialSelection, catalog []CatalogMaterial) *MaterialMap {
	byID := make(map[string]*CatalogMaterial, len(catalog))
	for i := range catalog {
		byID[catalog[i].ID] = &catalog[i]
	}
	m := newMaterialMap()
	for _, sel := range selections {
		cm, ok := byID[sel.MaterialID]
		if !ok {
			f.logger.Debug("unknown catalog material, zone falls back to default", "zone", sel.Zone, "material", sel.MaterialID)
			continue
		}
		if !sel.Zone.Valid() {
			f.logger.Debug("selection for unknown zone skipped", "zone", sel.Zone, "material", sel.MaterialID)
			continue
		}
		m.set(f.process(sel.Zone, *cm))
	}
	return m
}

// GetForZone 总能返回材质：映射为空或区域缺失时返回中性灰
func (f *MaterialFactory) GetForZone(m *MaterialMap, zone MaterialZone) *PbrMaterial {
	return m.ForZone(zone)
}

// BuildDefaultMap 每个区域一套内置的颜色和工艺，走与选择相同的预设和缓存路径
func (f *MaterialFactory) BuildDefaultMap() *MaterialMap {
	m := newMaterialMap()
	for _, z := range allZones {
		d, ok := f.defaults[z]
		if !ok {
			continue
		}
		m.set(f.process(z, CatalogMaterial{
			ID:       "default-" + string(z),
			Zone:     z,
			Type:     d.Type,
			Finish:   d.Finish,
			ColorHex: d.ColorHex,
		}))
	}
	return m
}

// Resolve 在默认映射上叠加选择结果，未选择或选择无效的区域保留默认材质
func (f *MaterialFactory) Resolve(selections []MaterialSelection, catalog []CatalogMaterial) *MaterialMap {
	m := f.BuildDefaultMap()
	sel := f.BuildMap(selections, catalog)
	sel.mu.Lock()
	zones := sel.zones
	sel.zones = nil
	sel.released = true
	sel.mu.Unlock()
	for _, z := range allZones {
		if pm, ok := zones[z]; ok {
			m.set(pm)
		}
	}
	return m
}

func (f *MaterialFactory) process(zone MaterialZone, cm CatalogMaterial) *ProcessedMaterial {
	preset := f.presets.Select(cm, zone)
	return &ProcessedMaterial{
		Zone:       zone,
		Color:      NormalizeColor(cm.ColorHex),
		Finish:     cm.Finish,
		PresetID:   preset.ID,
		MaterialID: cm.ID,
		Material:   f.cache.Get(preset, cm.ColorHex),
	}
}
