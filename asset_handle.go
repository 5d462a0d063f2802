package vehicle3d

import (
	"context"
	"fmt"
	"sync"
)

// AssetHandle 每个渲染周期无条件调用的资源获取句柄。
// 键变化时释放旧模型并发起新加载，过期或关闭后到达的结果被直接释放
type AssetHandle struct {
	loader   *Loader
	onChange func()

	mu     sync.Mutex
	key    string
	gen    uint64
	result LoadedAssetResult
	cancel context.CancelFunc
	closed bool
}

type HandleOption func(*AssetHandle)

// WithOnChange 异步加载完成时回调，通常用于请求重绘
func WithOnChange(fn func()) HandleOption {
	return func(h *AssetHandle) {
		h.onChange = fn
	}
}

func (l *Loader) NewHandle(opts ...HandleOption) *AssetHandle {
	h := &AssetHandle{loader: l}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Acquire 获取子组件资源，未注册时返回 HasAsset=false
func (h *AssetHandle) Acquire(id SubassemblyId) LoadedAssetResult {
	meta, ok := h.loader.lookup(id)
	if !ok {
		return h.switchTo("", nil)
	}
	key := "id:" + string(id)
	return h.switchTo(key, func(ctx context.Context) LoadedAssetResult {
		return h.loader.Load(ctx, id)
	}, meta.Path)
}

// AcquireURI 获取原始地址资源，空地址返回 HasAsset=false
func (h *AssetHandle) AcquireURI(uri string, override *Transform) LoadedAssetResult {
	if uri == "" {
		return h.switchTo("", nil)
	}
	key := "uri:" + uri
	if override != nil {
		key += fmt.Sprintf("|%v", *override)
	}
	return h.switchTo(key, func(ctx context.Context) LoadedAssetResult {
		return h.loader.LoadURI(ctx, uri, override)
	}, uri)
}

// Current 当前结果快照
func (h *AssetHandle) Current() LoadedAssetResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func (h *AssetHandle) switchTo(key string, load func(context.Context) LoadedAssetResult, paths ...string) LoadedAssetResult {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return LoadedAssetResult{}
	}
	if key == h.key && (key == "" || h.result.HasAsset) {
		res := h.result
		h.mu.Unlock()
		return res
	}

	old := h.result.Model
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.gen++
	h.key = key
	if load == nil {
		h.result = LoadedAssetResult{}
		h.mu.Unlock()
		old.Dispose()
		return LoadedAssetResult{}
	}

	if len(paths) > 0 && !supportedAssetPath(paths[0]) {
		h.result = LoadedAssetResult{HasAsset: true, Err: &LoadError{Path: paths[0], Kind: LoadErrorUnsupported, Err: ErrUnsupportedFormat}}
		res := h.result
		h.mu.Unlock()
		old.Dispose()
		return res
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	gen := h.gen
	h.result = LoadedAssetResult{HasAsset: true, Loading: true}
	res := h.result
	h.mu.Unlock()

	old.Dispose()
	go func() {
		h.complete(gen, load(ctx))
	}()
	return res
}

func (h *AssetHandle) complete(gen uint64, res LoadedAssetResult) {
	h.mu.Lock()
	if h.closed || gen != h.gen {
		h.mu.Unlock()
		// 过期结果直接释放
		res.Model.Dispose()
		return
	}
	h.result = res
	h.cancel = nil
	h.mu.Unlock()
	if h.onChange != nil {
		h.onChange()
	}
}

// Close 取消未完成的加载并释放当前模型
func (h *AssetHandle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.gen++
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	old := h.result.Model
	h.result = LoadedAssetResult{}
	h.mu.Unlock()
	old.Dispose()
}
