package vehicle3d

import (
	"log/slog"
	"sync/atomic"

	"github.com/jinzhu/copier"
)

type materialOwner int

const (
	// 实例私有，随实例释放
	ownerInstance materialOwner = iota
	// 共享源模型持有，永不由加载器释放
	ownerSource
	// 材质缓存管理，引用计数归零后由缓存释放
	ownerCache
	// 调用方自行管理
	ownerExternal
)

// Releaser 释放渲染端资源（GPU 缓冲、着色程序等）
type Releaser interface {
	ReleaseGeometry(g *Geometry)
	ReleaseMaterial(m *PbrMaterial)
}

type nopReleaser struct{}

func (nopReleaser) ReleaseGeometry(*Geometry)    {}
func (nopReleaser) ReleaseMaterial(*PbrMaterial) {}

// BaseMaterial 基础材质
type BaseMaterial struct {
	Color        [3]byte `json:"color"`
	Transparency float32 `json:"transparency"`
}

func (m *BaseMaterial) GetColor() [3]byte {
	return m.Color
}

// PbrMaterial 可渲染的物理材质实例
type PbrMaterial struct {
	BaseMaterial
	Name                string   `json:"name"`
	Finish              Finish   `json:"finish,omitempty"`
	Emissive            [3]byte  `json:"emissive"`
	Metallic            float32  `json:"metallic"`
	Roughness           float32  `json:"roughness"`
	ClearCoat           *float32 `json:"clearCoat,omitempty"`
	ClearCoatRoughness  *float32 `json:"clearCoatRoughness,omitempty"`
	Sheen               *float32 `json:"sheen,omitempty"`
	SheenColor          *[3]byte `json:"sheenColor,omitempty"`
	Transmission        *float32 `json:"transmission,omitempty"`
	Ior                 *float32 `json:"ior,omitempty"`
	Thickness           *float32 `json:"thickness,omitempty"`
	AttenuationColor    *[3]byte `json:"attenuationColor,omitempty"`
	AttenuationDistance *float32 `json:"attenuationDistance,omitempty"`
	EnvMapIntensity     float32  `json:"envMapIntensity"`
	DoubleSided         bool     `json:"doubleSided"`

	owner    materialOwner
	entry    *cacheEntry
	releaser Releaser
	disposed atomic.Bool
}

// NewPbrMaterial 创建调用方自行管理的材质，例如固定的轮胎橡胶覆盖材质
func NewPbrMaterial(name string, color [3]byte, metallic, roughness float32) *PbrMaterial {
	return &PbrMaterial{
		BaseMaterial:    BaseMaterial{Color: color},
		Name:            name,
		Metallic:        metallic,
		Roughness:       roughness,
		EnvMapIntensity: 1,
		owner:           ownerExternal,
	}
}

func (m *PbrMaterial) GetEmissive() [3]byte {
	return m.Emissive
}

// Shared 是否由材质缓存管理
func (m *PbrMaterial) Shared() bool {
	return m.owner == ownerCache
}

func (m *PbrMaterial) Disposed() bool {
	return m.disposed.Load()
}

// Clone 深拷贝材质参数，返回实例私有的新材质
func (m *PbrMaterial) Clone() *PbrMaterial {
	c := &PbrMaterial{}
	if err := copier.CopyWithOption(c, m, copier.Option{DeepCopy: true}); err != nil {
		slog.Error("vehicle3d.PbrMaterial.Clone", "material", m.Name, "err", err)
	}
	c.owner = ownerInstance
	c.entry = nil
	c.releaser = m.releaser
	c.disposed.Store(false)
	return c
}

func (m *PbrMaterial) dispose() bool {
	if !m.disposed.CompareAndSwap(false, true) {
		return false
	}
	if m.releaser != nil {
		m.releaser.ReleaseMaterial(m)
	}
	return true
}

// releaseMaterial 按所有权归还网格不再使用的材质
func releaseMaterial(m *PbrMaterial) {
	if m == nil {
		return
	}
	switch m.owner {
	case ownerInstance:
		m.dispose()
	case ownerCache:
		if m.entry != nil {
			m.entry.cache.Release(m)
		}
	}
}

// retainMaterial 网格开始引用材质
func retainMaterial(m *PbrMaterial) {
	if m != nil && m.owner == ownerCache && m.entry != nil {
		m.entry.cache.Retain(m)
	}
}

func float32Ptr(v float32) *float32 {
	return &v
}

func colorPtr(c [3]byte) *[3]byte {
	return &c
}
