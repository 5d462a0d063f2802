package vehicle3d

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
)

// LoadedAssetResult 一次加载请求的结果，Model 由请求方独占
type LoadedAssetResult struct {
	Model    *Instance
	Loading  bool
	Err      error
	HasAsset bool
}

// Source 解析后的只读源场景图，进程内共享，从不被释放
type Source struct {
	path  string
	root  *Node
	names []string
}

func newSource(p string, root *Node) *Source {
	s := &Source{path: p, root: root}
	root.TraverseMeshes(func(m *Mesh) {
		s.names = append(s.names, m.Name)
	})
	return s
}

func (s *Source) Path() string {
	return s.path
}

// MeshNames 源中全部网格名称，按遍历顺序
func (s *Source) MeshNames() []string {
	return append([]string(nil), s.names...)
}

// Instantiate 深拷贝几何与材质，施加归一化变换，并包裹在新的容器节点中
func (s *Source) Instantiate(xf Transform) *Instance {
	clone := s.root.cloneTree(cloneMaterialOwned)
	xf.applyTo(clone)
	container := NewNode(s.path)
	container.AddChild(clone)
	return &Instance{root: container, source: s}
}

// Instance 独占的可变模型实例
type Instance struct {
	root     *Node
	source   *Source
	disposed atomic.Bool

	// 已应用材质的映射，避免每次渲染重复应用
	applied *MaterialMap
}

func (i *Instance) Root() *Node {
	return i.root
}

func (i *Instance) Source() *Source {
	return i.source
}

// Clone 连同已应用的材质一起深拷贝，用于多位置实例，克隆之间不共享任何材质
func (i *Instance) Clone() *Instance {
	return &Instance{
		root:    i.root.cloneTree(cloneMaterialOwned),
		source:  i.source,
		applied: i.applied,
	}
}

// Dispose 释放实例持有的几何和材质，只生效一次
func (i *Instance) Dispose() bool {
	if i == nil || !i.disposed.CompareAndSwap(false, true) {
		return false
	}
	i.root.disposeTree()
	return true
}

func (i *Instance) Disposed() bool {
	return i.disposed.Load()
}

// Loader 资源加载与管理，同一路径的并发请求共享一次读取
type Loader struct {
	registry     *Registry
	reader       SourceReader
	files        *FileReader
	releaser     Releaser
	logger       *slog.Logger
	fetchTimeout time.Duration
	onChanged    func(p string)

	group   singleflight.Group
	mu      sync.RWMutex
	sources map[string]*Source
	// 每次失效递增，读取开始后失效的结果不进入缓存
	gens map[string]uint64
	warned  sync.Map
}

type LoaderOption func(*Loader)

// WithSourceReader 替换默认的本地文件 / HTTP 读取
func WithSourceReader(r SourceReader) LoaderOption {
	return func(l *Loader) {
		l.reader = r
	}
}

// WithAssetRoot 本地相对路径的根目录
func WithAssetRoot(root string) LoaderOption {
	return func(l *Loader) {
		l.files.Root = root
	}
}

func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.fetchTimeout = d
	}
}

func WithLoaderReleaser(r Releaser) LoaderOption {
	return func(l *Loader) {
		l.releaser = r
	}
}

// WithSourceChanged Watch 发现本地源文件变化后回调，参数为缓存或注册表中的路径
func WithSourceChanged(fn func(p string)) LoaderOption {
	return func(l *Loader) {
		l.onChanged = fn
	}
}

func WithLoaderLogger(lg *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = lg
	}
}

func NewLoader(registry *Registry, opts ...LoaderOption) *Loader {
	l := &Loader{
		registry: registry,
		files:    &FileReader{},
		releaser: nopReleaser{},
		logger:   slog.Default(),
		sources:  make(map[string]*Source),
		gens:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.reader == nil {
		l.reader = &routingReader{file: l.files, http: &HTTPReader{}}
	}
	return l
}

func (l *Loader) Registry() *Registry {
	return l.registry
}

// Load 按子组件加载，未注册或全局关闭时立即返回 HasAsset=false，不做任何读取
func (l *Loader) Load(ctx context.Context, id SubassemblyId) LoadedAssetResult {
	meta, ok := l.lookup(id)
	if !ok {
		return LoadedAssetResult{}
	}
	res := l.load(ctx, meta.Path, meta.Transform())
	if res.Model != nil {
		l.warnAmbiguous(id, res.Model.source, meta.MaterialMapping)
	}
	return res
}

// LoadURI 按原始地址加载，override 为空时使用单位变换
func (l *Loader) LoadURI(ctx context.Context, uri string, override *Transform) LoadedAssetResult {
	if uri == "" {
		return LoadedAssetResult{}
	}
	xf := IdentityTransform()
	if override != nil {
		xf = *override
	}
	return l.load(ctx, uri, xf)
}

// Preload 后台加载源，不返回实例
func (l *Loader) Preload(ids ...SubassemblyId) {
	for _, id := range ids {
		meta, ok := l.lookup(id)
		if !ok || !supportedAssetPath(meta.Path) {
			continue
		}
		p := meta.Path
		go func() {
			if _, err := l.source(context.Background(), p); err != nil {
				l.logger.Warn("preload failed", "path", p, "err", err)
			}
		}()
	}
}

// Cached 源是否已在共享缓存中
func (l *Loader) Cached(p string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.sources[p]
	return ok
}

// CachedPaths 已缓存的源路径，排序后返回
func (l *Loader) CachedPaths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.sources))
	for p := range l.sources {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Invalidate 从共享缓存中移除源，正在进行的读取结果也不再缓存；已有实例不受影响，下次加载重新读取
func (l *Loader) Invalidate(p string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gens[p]++
	l.group.Forget(p)
	if _, ok := l.sources[p]; !ok {
		return false
	}
	delete(l.sources, p)
	return true
}

// Source 取得共享源，必要时读取
func (l *Loader) Source(ctx context.Context, p string) (*Source, error) {
	if !supportedAssetPath(p) {
		return nil, &LoadError{Path: p, Kind: LoadErrorUnsupported, Err: ErrUnsupportedFormat}
	}
	return l.source(ctx, p)
}

func (l *Loader) lookup(id SubassemblyId) (*AssetMetadata, bool) {
	if l.registry == nil || !l.registry.Has(id) {
		return nil, false
	}
	return l.registry.Get(id)
}

func (l *Loader) load(ctx context.Context, p string, xf Transform) LoadedAssetResult {
	src, err := l.Source(ctx, p)
	if err != nil {
		l.logger.Warn("asset load failed", "path", p, "err", err)
		return LoadedAssetResult{HasAsset: true, Err: err}
	}
	return LoadedAssetResult{HasAsset: true, Model: src.Instantiate(xf)}
}

func (l *Loader) source(ctx context.Context, p string) (*Source, error) {
	l.mu.RLock()
	src, ok := l.sources[p]
	l.mu.RUnlock()
	if ok {
		return src, nil
	}

	ch := l.group.DoChan(p, func() (interface{}, error) {
		return l.fetch(p)
	})
	select {
	case <-ctx.Done():
		return nil, &LoadError{Path: p, Kind: LoadErrorTransport, Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Source), nil
	}
}

// fetch 读取解析并放入共享缓存，失败不缓存
func (l *Loader) fetch(p string) (*Source, error) {
	l.mu.RLock()
	src, ok := l.sources[p]
	gen := l.gens[p]
	l.mu.RUnlock()
	if ok {
		return src, nil
	}

	ctx := context.Background()
	if l.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.fetchTimeout)
		defer cancel()
	}
	start := time.Now()
	doc, err := l.reader.Read(ctx, p)
	if err != nil {
		return nil, asLoadError(p, err)
	}
	root, err := importGltf(doc, p)
	if err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorParse, Err: err}
	}
	root.TraverseMeshes(func(m *Mesh) {
		if m.Geometry != nil {
			m.Geometry.releaser = l.releaser
		}
		if m.Material != nil {
			m.Material.releaser = l.releaser
		}
	})
	src = newSource(p, root)

	l.mu.Lock()
	current := l.gens[p] == gen
	if current {
		l.sources[p] = src
	}
	l.mu.Unlock()
	if !current {
		l.logger.Debug("asset source invalidated during read, not cached", "path", p)
		return src, nil
	}
	l.logger.Debug("asset source loaded", "path", p, "meshes", len(src.names), "elapsed", time.Since(start))
	return src, nil
}

func (l *Loader) warnAmbiguous(id SubassemblyId, src *Source, rules []MeshPatternRule) {
	if src == nil {
		return
	}
	key := string(id) + "\x00" + src.path
	if _, seen := l.warned.LoadOrStore(key, struct{}{}); seen {
		return
	}
	for _, a := range findAmbiguous(src.names, rules) {
		l.logger.Warn("mesh matched by several pattern rules, first rule wins",
			"subassembly", id, "mesh", a.Mesh, "zones", a.Zones)
	}
}

// Watch 监听资源根目录，文件变化时使对应源失效，阻塞直到 ctx 结束
func (l *Loader) Watch(ctx context.Context) error {
	root := l.files.Root
	if root == "" {
		return errors.New("watch requires an asset root")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					l.watchDir(watcher, ev.Name)
					continue
				}
			}
			l.invalidateFile(ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("asset watcher error", "err", err)
		}
	}
}

// watchDir 监听新出现的目录，失败只记录不中断监听
func (l *Loader) watchDir(watcher *fsnotify.Watcher, dir string) bool {
	if err := watcher.Add(dir); err != nil {
		l.logger.Warn("asset watcher add failed", "dir", dir, "err", err)
		return false
	}
	return true
}

func (l *Loader) invalidateFile(name string) {
	name = filepath.Clean(name)
	for _, p := range l.watchedPaths() {
		if isRemotePath(p) || l.files.Resolve(p) != name {
			continue
		}
		if l.Invalidate(p) {
			l.logger.Info("asset source invalidated", "path", p)
		}
		if l.onChanged != nil {
			l.onChanged(p)
		}
	}
}

// watchedPaths 已缓存的路径加上注册表中的路径，失败未缓存的资源同样需要通知
func (l *Loader) watchedPaths() []string {
	seen := make(map[string]struct{})
	for _, p := range l.CachedPaths() {
		seen[p] = struct{}{}
	}
	if l.registry != nil {
		for _, id := range l.registry.ListRegistered() {
			if meta, ok := l.registry.Get(id); ok {
				seen[meta.Path] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
