package vehicle3d

import (
	"fmt"
	"math"
	"sort"

	"github.com/flywave/go3d/vec3"
	"github.com/go-playground/validator"
)

// MeshPatternRule 网格名子串到材质区域的映射，按声明顺序首个命中生效
type MeshPatternRule struct {
	Pattern string       `json:"pattern" validate:"required"`
	Zone    MaterialZone `json:"zone" validate:"required,zone"`
}

// AssetMetadata 子组件对应的外部模型资源描述，注册后只读
type AssetMetadata struct {
	Path            string            `json:"path" validate:"required,asset_ext"`
	Scale           vec3.T            `json:"scale" validate:"nonzero_scale"`
	Rotation        vec3.T            `json:"rotation"`
	Offset          *vec3.T           `json:"offset,omitempty"`
	MaterialMapping []MeshPatternRule `json:"materialMapping" validate:"dive"`
}

// Transform 返回归一化变换
func (m *AssetMetadata) Transform() Transform {
	t := Transform{Scale: m.Scale, Rotation: m.Rotation}
	if m.Offset != nil {
		t.Offset = *m.Offset
	}
	return t
}

// Transform 加载后施加到克隆根节点上的归一化变换
type Transform struct {
	Scale    vec3.T
	Rotation vec3.T
	Offset   vec3.T
}

// IdentityTransform 单位变换
func IdentityTransform() Transform {
	return Transform{Scale: vec3.T{1, 1, 1}}
}

func (t Transform) applyTo(n *Node) {
	n.Scale = t.Scale
	n.SetEulerRotation(t.Rotation)
	n.Translation = t.Offset
}

// Registry 子组件到资源元数据的不可变注册表
type Registry struct {
	entries map[SubassemblyId]*AssetMetadata
	enabled bool
}

type RegistryOption func(*Registry)

// WithAssetsEnabled 全局开关，关闭后所有子组件走占位几何
func WithAssetsEnabled(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.enabled = enabled
	}
}

// assetValidations 注册表条目使用的自定义校验标签
var assetValidations = map[string]validator.Func{
	"zone": func(fl validator.FieldLevel) bool {
		return MaterialZone(fl.Field().String()).Valid()
	},
	"asset_ext": func(fl validator.FieldLevel) bool {
		return supportedAssetPath(fl.Field().String())
	},
	"nonzero_scale": func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(vec3.T)
		if !ok {
			return false
		}
		return s[0] != 0 && s[1] != 0 && s[2] != 0
	},
}

func newValidator(funcs map[string]validator.Func) (*validator.Validate, error) {
	v := validator.New()
	for tag, fn := range funcs {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("register validation %q: %w", tag, err)
		}
	}
	return v, nil
}

// NewRegistry 校验并冻结注册表条目
func NewRegistry(entries map[SubassemblyId]AssetMetadata, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{entries: make(map[SubassemblyId]*AssetMetadata, len(entries)), enabled: true}
	for _, opt := range opts {
		opt(r)
	}
	v, err := newValidator(assetValidations)
	if err != nil {
		return nil, err
	}
	for id, meta := range entries {
		if err := v.Struct(meta); err != nil {
			return nil, fmt.Errorf("registry entry %q: %w", id, err)
		}
		frozen := meta
		frozen.MaterialMapping = append([]MeshPatternRule(nil), meta.MaterialMapping...)
		if meta.Offset != nil {
			off := *meta.Offset
			frozen.Offset = &off
		}
		r.entries[id] = &frozen
	}
	return r, nil
}

// Get 返回注册的元数据，多次调用返回同一指针，调用方不得修改
func (r *Registry) Get(id SubassemblyId) (*AssetMetadata, bool) {
	meta, ok := r.entries[id]
	return meta, ok
}

// Has 是否存在可加载资源，受全局开关控制
func (r *Registry) Has(id SubassemblyId) bool {
	if !r.enabled {
		return false
	}
	_, ok := r.entries[id]
	return ok
}

func (r *Registry) AssetsEnabled() bool {
	return r.enabled
}

// ListRegistered 已注册的子组件，按标识排序
func (r *Registry) ListRegistered() []SubassemblyId {
	ids := make([]SubassemblyId, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DefaultRegistry 内置注册表，多数子组件没有模型资源，只渲染占位几何。
// 表是编译期常量，校验失败属于编程错误，直接 panic
func DefaultRegistry(enabled bool) *Registry {
	offset := vec3.T{0, 0.35, 0}
	r, err := NewRegistry(map[SubassemblyId]AssetMetadata{
		SubassemblyWheelsChrome: {
			Path:     "models/wheels/wheel_chrome.glb",
			Scale:    vec3.T{0.01, 0.01, 0.01},
			Rotation: vec3.T{0, 0, math.Pi / 2},
			MaterialMapping: []MeshPatternRule{
				{Pattern: "rim", Zone: ZoneMetal},
				{Pattern: "spoke", Zone: ZoneMetal},
				{Pattern: "cap", Zone: ZoneTrim},
			},
		},
		SubassemblyWheelsOffroad: {
			Path:  "models/wheels/wheel_offroad.glb",
			Scale: vec3.T{0.01, 0.01, 0.01},
			MaterialMapping: []MeshPatternRule{
				{Pattern: "rim", Zone: ZoneMetal},
				{Pattern: "hub", Zone: ZoneMetal},
			},
		},
		SubassemblySeatsSport: {
			Path:   "models/seats/seat_sport.glb",
			Scale:  vec3.T{1, 1, 1},
			Offset: &offset,
			MaterialMapping: []MeshPatternRule{
				{Pattern: "stitch", Zone: ZoneTrim},
				{Pattern: "cushion", Zone: ZoneSeats},
				{Pattern: "back", Zone: ZoneSeats},
				{Pattern: "frame", Zone: ZoneMetal},
			},
		},
		SubassemblyRoofPanoramic: {
			Path:  "models/roof/roof_panoramic.glb",
			Scale: vec3.T{1, 1, 1},
			MaterialMapping: []MeshPatternRule{
				{Pattern: "glass", Zone: ZoneGlass},
				{Pattern: "frame", Zone: ZoneMetal},
				{Pattern: "panel", Zone: ZoneRoof},
			},
		},
		SubassemblyLightingLed: {
			Path:  "models/lighting/led_bar.glb",
			Scale: vec3.T{1, 1, 1},
			MaterialMapping: []MeshPatternRule{
				{Pattern: "lens", Zone: ZoneLights},
				{Pattern: "housing", Zone: ZoneTrim},
			},
		},
	}, WithAssetsEnabled(enabled))
	if err != nil {
		panic(err)
	}
	return r
}
