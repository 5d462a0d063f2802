package vehicle3d

import (
	"container/list"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/jinzhu/copier"
)

const defaultIdleCapacity = 64

type cacheKey struct {
	preset string
	color  string
}

type cacheEntry struct {
	cache *MaterialCache
	key   cacheKey
	mtl   *PbrMaterial
	refs  int
	idle  *list.Element
}

// CacheStats 缓存计数快照
type CacheStats struct {
	Live     int
	Idle     int
	Created  uint64
	Disposed uint64
}

// MaterialCache 以 (预设, 颜色) 为键去重的材质实例缓存。
// 引用计数归零的条目进入空闲队列，超出容量时最久未用的条目被释放
type MaterialCache struct {
	mu           sync.Mutex
	entries      map[cacheKey]*cacheEntry
	idle         *list.List
	idleCapacity int
	releaser     Releaser
	logger       *slog.Logger
	created      uint64
	disposed     uint64
}

type CacheOption func(*MaterialCache)

// WithIdleCapacity 空闲条目上限，0 表示引用归零立即释放
func WithIdleCapacity(n int) CacheOption {
	return func(c *MaterialCache) {
		if n >= 0 {
			c.idleCapacity = n
		}
	}
}

func WithCacheReleaser(r Releaser) CacheOption {
	return func(c *MaterialCache) {
		c.releaser = r
	}
}

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *MaterialCache) {
		c.logger = l
	}
}

func NewMaterialCache(opts ...CacheOption) *MaterialCache {
	c := &MaterialCache{
		entries:      make(map[cacheKey]*cacheEntry),
		idle:         list.New(),
		idleCapacity: defaultIdleCapacity,
		releaser:     nopReleaser{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 返回 (预设, 颜色) 对应的共享材质并增加一次引用，调用方用 Release 归还
func (c *MaterialCache) Get(preset *MaterialPreset, color string) *PbrMaterial {
	if preset == nil {
		preset = &neutralPreset
	}
	rgb, ok := ParseColorHex(color)
	if !ok {
		c.logger.Debug("invalid color, using neutral gray", "color", color, "preset", preset.ID)
	}
	key := cacheKey{preset: preset.ID, color: formatColorHex(rgb)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.reviveLocked(e)
		e.refs++
		return e.mtl
	}

	e := &cacheEntry{cache: c, key: key, refs: 1}
	e.mtl = buildMaterial(preset, rgb)
	e.mtl.owner = ownerCache
	e.mtl.entry = e
	e.mtl.releaser = c.releaser
	c.entries[key] = e
	c.created++
	return e.mtl
}

// Retain 为缓存材质增加一次引用
func (c *MaterialCache) Retain(m *PbrMaterial) {
	if m == nil || m.entry == nil || m.entry.cache != c {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := m.entry
	if c.entries[e.key] != e {
		return
	}
	c.reviveLocked(e)
	e.refs++
}

// Release 归还一次引用，归零后条目转入空闲队列
func (c *MaterialCache) Release(m *PbrMaterial) {
	if m == nil || m.entry == nil || m.entry.cache != c {
		return
	}
	var victims []*cacheEntry
	c.mu.Lock()
	e := m.entry
	if c.entries[e.key] != e || e.refs == 0 {
		c.mu.Unlock()
		c.logger.Warn("release of unreferenced material", "material", m.Name)
		return
	}
	e.refs--
	if e.refs == 0 {
		e.idle = c.idle.PushFront(e)
		victims = c.evictLocked(c.idleCapacity)
	}
	c.mu.Unlock()
	c.disposeEntries(victims)
}

// Purge 释放全部空闲条目
func (c *MaterialCache) Purge() int {
	c.mu.Lock()
	victims := c.evictLocked(0)
	c.mu.Unlock()
	c.disposeEntries(victims)
	return len(victims)
}

func (c *MaterialCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Live:     len(c.entries) - c.idle.Len(),
		Idle:     c.idle.Len(),
		Created:  c.created,
		Disposed: c.disposed,
	}
}

func (c *MaterialCache) reviveLocked(e *cacheEntry) {
	if e.idle != nil {
		c.idle.Remove(e.idle)
		e.idle = nil
	}
}

func (c *MaterialCache) evictLocked(capacity int) []*cacheEntry {
	var victims []*cacheEntry
	for c.idle.Len() > capacity {
		back := c.idle.Back()
		e := back.Value.(*cacheEntry)
		c.idle.Remove(back)
		e.idle = nil
		delete(c.entries, e.key)
		c.disposed++
		victims = append(victims, e)
	}
	return victims
}

func (c *MaterialCache) disposeEntries(victims []*cacheEntry) {
	for _, e := range victims {
		if e.mtl.dispose() {
			c.logger.Debug("material evicted", "preset", e.key.preset, "color", e.key.color)
		}
	}
}

// buildMaterial 由预设参数和颜色构造材质
func buildMaterial(p *MaterialPreset, rgb [3]byte) *PbrMaterial {
	m := &PbrMaterial{}
	if err := copier.CopyWithOption(m, p, copier.Option{DeepCopy: true}); err != nil {
		slog.Error("vehicle3d.buildMaterial", "preset", p.ID, "err", err)
	}
	m.Name = p.ID + formatColorHex(rgb)
	m.Color = rgb
	m.Transparency = p.Transparency
	m.Metallic = p.Metalness
	m.Roughness = p.Roughness
	m.DoubleSided = p.Transmission != nil
	return m
}

var neutralGray = [3]byte{128, 128, 128}

// ParseColorHex 解析 #rgb / #rrggbb，失败时返回中性灰
func ParseColorHex(s string) ([3]byte, bool) {
	h := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return neutralGray, false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return neutralGray, false
	}
	return [3]byte{byte(v >> 16), byte(v >> 8), byte(v)}, true
}

// NormalizeColor 颜色的规范形式 #rrggbb
func NormalizeColor(s string) string {
	rgb, _ := ParseColorHex(s)
	return formatColorHex(rgb)
}

func formatColorHex(c [3]byte) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
