package vehicle3d

import (
	"context"
	"log/slog"
)

// AssemblySelection 每个分类选中的选项及可选的动态资源地址
type AssemblySelection struct {
	Options map[Category][]string `json:"options" yaml:"options"`
	URIs    map[Category]string   `json:"uris,omitempty" yaml:"uris,omitempty"`
}

// Assembly 七个分类的子组件集合，输出交给渲染器的根节点
type Assembly struct {
	order   []Category
	parts   map[Category]*Subassembly
	views   map[Category]View
	changed chan struct{}
}

type assemblyConfig struct {
	logger   *slog.Logger
	releaser Releaser
}

type AssemblyOption func(*assemblyConfig)

func WithAssemblyLogger(l *slog.Logger) AssemblyOption {
	return func(c *assemblyConfig) {
		c.logger = l
	}
}

func WithAssemblyReleaser(r Releaser) AssemblyOption {
	return func(c *assemblyConfig) {
		c.releaser = r
	}
}

func NewAssembly(loader *Loader, policies []CategoryPolicy, opts ...AssemblyOption) *Assembly {
	cfg := &assemblyConfig{logger: slog.Default(), releaser: nopReleaser{}}
	for _, opt := range opts {
		opt(cfg)
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	a := &Assembly{
		parts:   make(map[Category]*Subassembly, len(policies)),
		views:   make(map[Category]View, len(policies)),
		changed: make(chan struct{}, 1),
	}
	notify := func() {
		select {
		case a.changed <- struct{}{}:
		default:
		}
	}
	for _, p := range policies {
		a.order = append(a.order, p.Category)
		a.parts[p.Category] = NewSubassembly(p, loader,
			WithSubassemblyLogger(cfg.logger.With("category", p.Category)),
			WithPlaceholderReleaser(cfg.releaser),
			WithHandleOptions(WithOnChange(notify)),
		)
	}
	return a
}

// Update 更新全部分类并返回新的根节点
func (a *Assembly) Update(sel AssemblySelection, mats *MaterialMap) *Node {
	root := NewNode("vehicle")
	for _, c := range a.order {
		v := a.parts[c].Update(sel.Options[c], mats, sel.URIs[c])
		a.views[c] = v
		if v.Root != nil {
			root.AddChild(v.Root)
		}
	}
	return root
}

// View 分类最近一次的结果
func (a *Assembly) View(c Category) (View, bool) {
	v, ok := a.views[c]
	return v, ok
}

// Settled 没有分类处于加载中
func (a *Assembly) Settled() bool {
	for _, v := range a.views {
		if v.State == StateAssetLoading {
			return false
		}
	}
	return true
}

// Changed 异步加载完成时收到通知，需要重新 Update
func (a *Assembly) Changed() <-chan struct{} {
	return a.changed
}

// UpdateSettled 反复更新直到没有加载中的分类或 ctx 结束
func (a *Assembly) UpdateSettled(ctx context.Context, sel AssemblySelection, mats *MaterialMap) (*Node, error) {
	for {
		root := a.Update(sel, mats)
		if a.Settled() {
			return root, nil
		}
		select {
		case <-ctx.Done():
			return root, ctx.Err()
		case <-a.changed:
		}
	}
}

func (a *Assembly) Close() {
	for _, c := range a.order {
		a.parts[c].Close()
	}
}
