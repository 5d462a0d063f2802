package vehicle3d

import (
	"fmt"
	"strings"
)

// SubassemblyId 子组件逻辑标识
type SubassemblyId string

const (
	SubassemblyBaseStandard    SubassemblyId = "base-standard"
	SubassemblyBaseExtended    SubassemblyId = "base-extended"
	SubassemblyWheelsStandard  SubassemblyId = "wheels-standard"
	SubassemblyWheelsChrome    SubassemblyId = "wheels-chrome"
	SubassemblyWheelsOffroad   SubassemblyId = "wheels-offroad"
	SubassemblyRoofHardtop     SubassemblyId = "roof-hardtop"
	SubassemblyRoofPanoramic   SubassemblyId = "roof-panoramic"
	SubassemblyRoofConvertible SubassemblyId = "roof-convertible"
	SubassemblySeatsStandard   SubassemblyId = "seats-standard"
	SubassemblySeatsSport      SubassemblyId = "seats-sport"
	SubassemblyCargoRack       SubassemblyId = "cargo-rack"
	SubassemblyCargoBox        SubassemblyId = "cargo-box"
	SubassemblyLightingHalogen SubassemblyId = "lighting-halogen"
	SubassemblyLightingLed     SubassemblyId = "lighting-led"
	SubassemblyAudioStandard   SubassemblyId = "audio-standard"
	SubassemblyAudioPremium    SubassemblyId = "audio-premium"
)

var allSubassemblies = []SubassemblyId{
	SubassemblyBaseStandard,
	SubassemblyBaseExtended,
	SubassemblyWheelsStandard,
	SubassemblyWheelsChrome,
	SubassemblyWheelsOffroad,
	SubassemblyRoofHardtop,
	SubassemblyRoofPanoramic,
	SubassemblyRoofConvertible,
	SubassemblySeatsStandard,
	SubassemblySeatsSport,
	SubassemblyCargoRack,
	SubassemblyCargoBox,
	SubassemblyLightingHalogen,
	SubassemblyLightingLed,
	SubassemblyAudioStandard,
	SubassemblyAudioPremium,
}

// AllSubassemblies 返回全部子组件标识
func AllSubassemblies() []SubassemblyId {
	out := make([]SubassemblyId, len(allSubassemblies))
	copy(out, allSubassemblies)
	return out
}

// MaterialZone 表面区域
type MaterialZone string

const (
	ZoneBody   MaterialZone = "body"
	ZoneSeats  MaterialZone = "seats"
	ZoneRoof   MaterialZone = "roof"
	ZoneMetal  MaterialZone = "metal"
	ZoneGlass  MaterialZone = "glass"
	ZoneTrim   MaterialZone = "trim"
	ZoneLights MaterialZone = "lights"
)

var allZones = []MaterialZone{ZoneBody, ZoneSeats, ZoneRoof, ZoneMetal, ZoneGlass, ZoneTrim, ZoneLights}

// AllZones 返回全部材质区域，顺序固定
func AllZones() []MaterialZone {
	out := make([]MaterialZone, len(allZones))
	copy(out, allZones)
	return out
}

func (z MaterialZone) Valid() bool {
	for _, v := range allZones {
		if v == z {
			return true
		}
	}
	return false
}

// ParseZone 解析区域名，大小写不敏感
func ParseZone(s string) (MaterialZone, error) {
	z := MaterialZone(strings.ToLower(strings.TrimSpace(s)))
	if !z.Valid() {
		return "", fmt.Errorf("unknown material zone %q", s)
	}
	return z, nil
}

// MaterialType 材质类别
type MaterialType string

const (
	MaterialTypePaint      MaterialType = "paint"
	MaterialTypeMetal      MaterialType = "metal"
	MaterialTypeUpholstery MaterialType = "upholstery"
	MaterialTypeTrim       MaterialType = "trim"
	MaterialTypeGlass      MaterialType = "glass"
	MaterialTypeRubber     MaterialType = "rubber"
)

// Finish 表面工艺
type Finish string

const (
	FinishGloss    Finish = "gloss"
	FinishMatte    Finish = "matte"
	FinishMetallic Finish = "metallic"
	FinishPearl    Finish = "pearl"
	FinishChrome   Finish = "chrome"
	FinishBrushed  Finish = "brushed"
	FinishLeather  Finish = "leather"
	FinishFabric   Finish = "fabric"
	FinishSuede    Finish = "suede"
	FinishCarbon   Finish = "carbon"
	FinishWood     Finish = "wood"
	FinishClear    Finish = "clear"
	FinishTinted   Finish = "tinted"
	FinishFrosted  Finish = "frosted"
)

// Category 子组件分类
type Category string

const (
	CategoryBase     Category = "base"
	CategoryWheels   Category = "wheels"
	CategoryRoof     Category = "roof"
	CategorySeating  Category = "seating"
	CategoryCargo    Category = "cargo"
	CategoryLighting Category = "lighting"
	CategoryAudio    Category = "audio"
)

var allCategories = []Category{
	CategoryBase, CategoryWheels, CategoryRoof, CategorySeating,
	CategoryCargo, CategoryLighting, CategoryAudio,
}

// AllCategories 返回全部分类，顺序即装配顺序
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// CatalogMaterial 由目录服务提供的材质条目
type CatalogMaterial struct {
	ID       string       `json:"id" yaml:"id"`
	Zone     MaterialZone `json:"zone" yaml:"zone"`
	Type     MaterialType `json:"type" yaml:"type"`
	Finish   Finish       `json:"finish" yaml:"finish"`
	ColorHex string       `json:"colorHex" yaml:"colorHex"`
}

// MaterialSelection 当前配置中某区域选中的材质
type MaterialSelection struct {
	Zone       MaterialZone `json:"zone" yaml:"zone"`
	MaterialID string       `json:"materialId" yaml:"materialId"`
}
