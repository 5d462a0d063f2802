package vehicle3d

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/flywave/go3d/vec3"
)

// AssemblyState 子组件的渲染状态
type AssemblyState int

const (
	StateNoOption AssemblyState = iota
	StateOptionNoAsset
	StateAssetLoading
	StateAssetReady
	StateAssetError
)

func (s AssemblyState) String() string {
	switch s {
	case StateNoOption:
		return "NoOption"
	case StateOptionNoAsset:
		return "OptionNoAsset"
	case StateAssetLoading:
		return "AssetLoading"
	case StateAssetReady:
		return "AssetReady"
	case StateAssetError:
		return "AssetError"
	}
	return fmt.Sprintf("AssemblyState(%d)", int(s))
}

// CategoryPolicy 分类策略：选项到资源的映射、占位几何和多实例位置
type CategoryPolicy struct {
	Category Category
	// AssetID 选项到子组件标识，为空时选项即标识
	AssetID func(option string) SubassemblyId
	// Positions 多实例位置，为空时单实例位于原点
	Positions []vec3.T
	// Rules 原始地址加载的资源使用的模式规则
	Rules       []MeshPatternRule
	Overrides   map[string]*PbrMaterial
	Placeholder PlaceholderFunc
}

func (p *CategoryPolicy) assetID(option string) SubassemblyId {
	if p.AssetID != nil {
		return p.AssetID(option)
	}
	return SubassemblyId(option)
}

var (
	tireRubberOnce sync.Once
	tireRubber     *PbrMaterial
)

// TireRubber 轮胎固定使用的橡胶材质，不受配置影响
func TireRubber() *PbrMaterial {
	tireRubberOnce.Do(func() {
		tireRubber = NewPbrMaterial("tire-rubber", [3]byte{20, 20, 20}, 0, 0.9)
		tireRubber.Finish = FinishMatte
		tireRubber.EnvMapIntensity = 0.3
	})
	return tireRubber
}

// WheelPositions 四轮位置
var WheelPositions = []vec3.T{
	{1.35, 0.35, -0.8},
	{1.35, 0.35, 0.8},
	{-1.35, 0.35, -0.8},
	{-1.35, 0.35, 0.8},
}

// DefaultPolicies 七个分类的内置策略，顺序即装配顺序
func DefaultPolicies() []CategoryPolicy {
	return []CategoryPolicy{
		{Category: CategoryBase, Placeholder: basePlaceholder},
		{
			Category:    CategoryWheels,
			Positions:   WheelPositions,
			Rules:       []MeshPatternRule{{Pattern: "rim", Zone: ZoneMetal}, {Pattern: "spoke", Zone: ZoneMetal}},
			Overrides:   map[string]*PbrMaterial{"tire": TireRubber()},
			Placeholder: wheelPlaceholder,
		},
		{Category: CategoryRoof, Placeholder: roofPlaceholder},
		{Category: CategorySeating, Placeholder: seatPlaceholder},
		{Category: CategoryCargo, Placeholder: cargoPlaceholder},
		{Category: CategoryLighting, Placeholder: lightPlaceholder},
		{Category: CategoryAudio, Placeholder: audioPlaceholder},
	}
}

// View 一次更新的渲染结果，Root 为空表示不渲染
type View struct {
	State  AssemblyState
	Option string
	Root   *Node
	Err    error
	Report *ApplyReport
}

type viewKey struct {
	state  AssemblyState
	option string
	uri    string
	mats   *MaterialMap
	model  *Instance
}

// Subassembly 单个分类的编排状态机，Update 每个渲染周期调用
type Subassembly struct {
	policy   CategoryPolicy
	loader   *Loader
	handle   *AssetHandle
	releaser Releaser
	logger   *slog.Logger

	mu     sync.Mutex
	key    viewKey
	view   View
	owned  []*Instance
	placed *Node
	closed bool
}

type SubassemblyOption func(*Subassembly)

func WithSubassemblyLogger(l *slog.Logger) SubassemblyOption {
	return func(s *Subassembly) {
		s.logger = l
	}
}

// WithPlaceholderReleaser 占位几何的渲染端释放回调
func WithPlaceholderReleaser(r Releaser) SubassemblyOption {
	return func(s *Subassembly) {
		s.releaser = r
	}
}

// WithHandleOptions 透传给资源句柄，例如加载完成回调
func WithHandleOptions(opts ...HandleOption) SubassemblyOption {
	return func(s *Subassembly) {
		s.handle = s.loader.NewHandle(opts...)
	}
}

func NewSubassembly(policy CategoryPolicy, loader *Loader, opts ...SubassemblyOption) *Subassembly {
	s := &Subassembly{
		policy:   policy,
		loader:   loader,
		releaser: nopReleaser{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handle == nil {
		s.handle = loader.NewHandle()
	}
	return s
}

func (s *Subassembly) Category() Category {
	return s.policy.Category
}

// Update 由选中的选项、材质映射和可选的动态资源地址决定渲染结果。
// 输入不变时返回同一结果；被替换的结果所持有的资源随即释放
func (s *Subassembly) Update(options []string, mats *MaterialMap, uri string) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{State: StateNoOption}
	}

	option := ""
	if len(options) > 0 {
		option = options[0]
	}

	var res LoadedAssetResult
	var rules []MeshPatternRule
	switch {
	case uri != "":
		res = s.handle.AcquireURI(uri, nil)
		rules = s.policy.Rules
	case option != "":
		id := s.policy.assetID(option)
		res = s.handle.Acquire(id)
		if meta, ok := s.loader.lookup(id); ok {
			rules = meta.MaterialMapping
		}
	default:
		res = s.handle.Acquire("")
	}

	key := viewKey{option: option, uri: uri, mats: mats, model: res.Model}
	switch {
	case option == "" && uri == "":
		key.state = StateNoOption
	case !res.HasAsset:
		key.state = StateOptionNoAsset
	case res.Loading:
		key.state = StateAssetLoading
	case res.Err != nil:
		key.state = StateAssetError
	default:
		key.state = StateAssetReady
	}
	if key == s.key && s.view.State == key.state {
		return s.view
	}

	s.releaseLocked()
	s.key = key
	view := View{State: key.state, Option: option, Err: res.Err}
	switch key.state {
	case StateOptionNoAsset, StateAssetError:
		if key.state == StateAssetError {
			s.logger.Warn("asset failed, rendering placeholder", "category", s.policy.Category, "option", option, "err", res.Err)
		}
		view.Root = s.buildPlaceholderLocked(option, mats)
	case StateAssetReady:
		view.Root, view.Report = s.buildReadyLocked(res.Model, mats, rules)
	}
	s.view = view
	return view
}

func (s *Subassembly) buildPlaceholderLocked(option string, mats *MaterialMap) *Node {
	if s.policy.Placeholder == nil {
		return nil
	}
	parts := s.policy.Placeholder(option)
	if len(parts) == 0 {
		return nil
	}
	s.placed = buildPlaceholder(string(s.policy.Category), parts, s.policy.Positions, mats, s.releaser)
	return s.placed
}

// buildReadyLocked 对准备好的实例按 (实例, 映射) 只应用一次材质，然后按位置克隆
func (s *Subassembly) buildReadyLocked(model *Instance, mats *MaterialMap, rules []MeshPatternRule) (*Node, *ApplyReport) {
	var report *ApplyReport
	if model.applied != mats {
		report = ApplyMaterials(model.root, mats, rules, s.policy.Overrides)
		model.applied = mats
		if len(report.Unmatched) > 0 {
			s.logger.Debug("meshes without pattern match keep their material",
				"category", s.policy.Category, "meshes", report.Unmatched)
		}
	}

	name := string(s.policy.Category)
	root := NewNode(name)
	if len(s.policy.Positions) <= 1 {
		n := NewNode(positionName(name, 0, 1))
		if len(s.policy.Positions) == 1 {
			n.Translation = s.policy.Positions[0]
		}
		n.AddChild(model.root)
		root.AddChild(n)
		return root, report
	}
	for i, pos := range s.policy.Positions {
		inst := model.Clone()
		s.owned = append(s.owned, inst)
		n := NewNode(positionName(name, i, len(s.policy.Positions)))
		n.Translation = pos
		n.AddChild(inst.root)
		root.AddChild(n)
	}
	return root, report
}

// releaseLocked 释放当前结果自己持有的资源，句柄持有的模型由句柄释放
func (s *Subassembly) releaseLocked() {
	for _, inst := range s.owned {
		inst.Dispose()
	}
	s.owned = nil
	if s.placed != nil {
		s.placed.disposeTree()
		s.placed = nil
	}
	s.view = View{}
}

// Close 释放全部资源，之后的 Update 不再渲染
func (s *Subassembly) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.releaseLocked()
	s.handle.Close()
}

func positionName(name string, i, n int) string {
	if n <= 1 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, i)
}
