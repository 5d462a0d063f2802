package vehicle3d

import (
	"sort"
	"strings"
)

// ApplyReport 一次材质应用的结果
type ApplyReport struct {
	Overridden []string
	Matched    map[string]MaterialZone
	Unmatched  []string
}

func (r *ApplyReport) Total() int {
	return len(r.Overridden) + len(r.Matched) + len(r.Unmatched)
}

// ApplyMaterials 按覆盖表和模式规则给模型网格赋材质。
// 覆盖优先：先精确名称，再按键长从长到短做大小写无关的子串匹配；
// 然后按声明顺序扫描规则，首个命中的规则生效；未命中的网格保持原材质
func ApplyMaterials(root *Node, mats *MaterialMap, rules []MeshPatternRule, overrides map[string]*PbrMaterial) *ApplyReport {
	report := &ApplyReport{Matched: make(map[string]MaterialZone)}
	if root == nil {
		return report
	}
	keys := overrideKeys(overrides)
	root.TraverseMeshes(func(m *Mesh) {
		if mtl := matchOverride(m.Name, overrides, keys); mtl != nil {
			m.SetMaterial(mtl)
			report.Overridden = append(report.Overridden, m.Name)
			return
		}
		if zone, ok := MatchZone(m.Name, rules); ok {
			m.SetMaterial(mats.ForZone(zone))
			report.Matched[m.Name] = zone
			return
		}
		report.Unmatched = append(report.Unmatched, m.Name)
	})
	return report
}

// MatchZone 返回首个匹配规则的区域，大小写不敏感
func MatchZone(name string, rules []MeshPatternRule) (MaterialZone, bool) {
	lower := strings.ToLower(name)
	for _, r := range rules {
		if r.Pattern == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r.Zone, true
		}
	}
	return "", false
}

func overrideKeys(overrides map[string]*PbrMaterial) []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func matchOverride(name string, overrides map[string]*PbrMaterial, keys []string) *PbrMaterial {
	if len(overrides) == 0 {
		return nil
	}
	if mtl, ok := overrides[name]; ok && mtl != nil {
		return mtl
	}
	lower := strings.ToLower(name)
	for _, k := range keys {
		if strings.Contains(lower, strings.ToLower(k)) && overrides[k] != nil {
			return overrides[k]
		}
	}
	return nil
}

// ListMeshNames 模型中的全部网格名称，按遍历顺序
func ListMeshNames(root *Node) []string {
	var names []string
	if root == nil {
		return names
	}
	root.TraverseMeshes(func(m *Mesh) {
		names = append(names, m.Name)
	})
	return names
}

// FindUnmatchedMeshes 没有任何规则命中的网格名称
func FindUnmatchedMeshes(root *Node, rules []MeshPatternRule) []string {
	var out []string
	for _, name := range ListMeshNames(root) {
		if _, ok := MatchZone(name, rules); !ok {
			out = append(out, name)
		}
	}
	return out
}

// AmbiguousMesh 被多条规则命中的网格
type AmbiguousMesh struct {
	Mesh     string
	Patterns []string
	Zones    []MaterialZone
}

// FindAmbiguousMeshes 被多条规则命中且区域不同的网格，首条规则生效
func FindAmbiguousMeshes(root *Node, rules []MeshPatternRule) []AmbiguousMesh {
	return findAmbiguous(ListMeshNames(root), rules)
}

func findAmbiguous(names []string, rules []MeshPatternRule) []AmbiguousMesh {
	var out []AmbiguousMesh
	for _, name := range names {
		lower := strings.ToLower(name)
		var a AmbiguousMesh
		distinct := make(map[MaterialZone]bool)
		for _, r := range rules {
			if r.Pattern == "" || !strings.Contains(lower, strings.ToLower(r.Pattern)) {
				continue
			}
			a.Patterns = append(a.Patterns, r.Pattern)
			a.Zones = append(a.Zones, r.Zone)
			distinct[r.Zone] = true
		}
		if len(distinct) > 1 {
			a.Mesh = name
			out = append(out, a)
		}
	}
	return out
}
