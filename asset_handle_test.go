package vehicle3d

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitReady(t *testing.T, acquire func() LoadedAssetResult) LoadedAssetResult {
	t.Helper()
	var res LoadedAssetResult
	require.Eventually(t, func() bool {
		res = acquire()
		return !res.Loading
	}, 2*time.Second, 5*time.Millisecond)
	return res
}

// TestHandleLoadingThenReady 测试首次获取处于加载中，完成后返回同一模型
func TestHandleLoadingThenReady(t *testing.T) {
	reader := newGatedReader(wheelReader(t))
	l := NewLoader(wheelRegistry(t, true), WithSourceReader(reader))
	var changes atomic.Int32
	h := l.NewHandle(WithOnChange(func() { changes.Add(1) }))
	defer h.Close()

	first := h.Acquire(SubassemblyWheelsChrome)
	assert.True(t, first.HasAsset)
	assert.True(t, first.Loading)
	assert.Nil(t, first.Model)

	// 加载中重复获取不发起新的加载
	again := h.Acquire(SubassemblyWheelsChrome)
	assert.True(t, again.Loading)

	close(reader.gate)
	res := waitReady(t, func() LoadedAssetResult { return h.Acquire(SubassemblyWheelsChrome) })
	require.NoError(t, res.Err)
	require.NotNil(t, res.Model)
	require.Eventually(t, func() bool { return changes.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), reader.Reads(wheelPath))

	assert.Same(t, res.Model, h.Acquire(SubassemblyWheelsChrome).Model)
	assert.Same(t, res.Model, h.Current().Model)
}

// TestHandleNoAsset 测试未注册的子组件立即返回
func TestHandleNoAsset(t *testing.T) {
	l := NewLoader(DefaultRegistry(true), WithSourceReader(failReader{t}))
	h := l.NewHandle()
	defer h.Close()

	res := h.Acquire(SubassemblyBaseStandard)
	assert.False(t, res.HasAsset)
	assert.False(t, res.Loading)
	assert.False(t, h.AcquireURI("", nil).HasAsset)
}

// TestHandleUnsupportedImmediate 测试不支持的格式立即报错，不进入加载中
func TestHandleUnsupportedImmediate(t *testing.T) {
	l := NewLoader(nil, WithSourceReader(failReader{t}))
	h := l.NewHandle()
	defer h.Close()

	res := h.AcquireURI("custom/model.fbx", nil)
	assert.True(t, res.HasAsset)
	assert.False(t, res.Loading)
	assert.True(t, IsLoadError(res.Err, LoadErrorUnsupported))
}

// TestHandleErrorNotRetried 测试同一请求失败后不在每个周期重试
func TestHandleErrorNotRetried(t *testing.T) {
	reader := NewMemoryReader()
	l := NewLoader(nil, WithSourceReader(reader))
	h := l.NewHandle()
	defer h.Close()

	h.AcquireURI("missing.glb", nil)
	res := waitReady(t, func() LoadedAssetResult { return h.AcquireURI("missing.glb", nil) })
	require.Error(t, res.Err)
	assert.True(t, IsLoadError(res.Err, LoadErrorTransport))

	for i := 0; i < 5; i++ {
		h.AcquireURI("missing.glb", nil)
	}
	assert.Equal(t, int64(1), reader.Reads("missing.glb"))
}

// TestHandleSwitchDisposesOld 测试键变化时释放旧模型
func TestHandleSwitchDisposesOld(t *testing.T) {
	reader := wheelReader(t)
	reader.Put("custom/roof.glb", fixtureGLB(t, "roof", "Panel"))
	l := NewLoader(wheelRegistry(t, true), WithSourceReader(reader))
	h := l.NewHandle()
	defer h.Close()

	h.Acquire(SubassemblyWheelsChrome)
	wheel := waitReady(t, func() LoadedAssetResult { return h.Acquire(SubassemblyWheelsChrome) })
	require.NotNil(t, wheel.Model)

	next := h.AcquireURI("custom/roof.glb", nil)
	assert.True(t, next.Loading)
	assert.True(t, wheel.Model.Disposed())

	roof := waitReady(t, func() LoadedAssetResult { return h.AcquireURI("custom/roof.glb", nil) })
	require.NotNil(t, roof.Model)
	assert.Equal(t, []string{"Panel"}, ListMeshNames(roof.Model.Root()))

	// 切到无资源同样释放
	assert.False(t, h.Acquire(SubassemblyBaseStandard).HasAsset)
	assert.True(t, roof.Model.Disposed())
}

// TestHandleSupersededLoadCanceled 测试被取代的加载不会产生结果
func TestHandleSupersededLoadCanceled(t *testing.T) {
	reader := newGatedReader(wheelReader(t))
	l := NewLoader(wheelRegistry(t, true), WithSourceReader(reader))
	var changes atomic.Int32
	h := l.NewHandle(WithOnChange(func() { changes.Add(1) }))
	defer h.Close()

	assert.True(t, h.Acquire(SubassemblyWheelsChrome).Loading)
	<-reader.started
	assert.False(t, h.Acquire(SubassemblyBaseStandard).HasAsset)

	close(reader.gate)
	require.Eventually(t, func() bool { return l.Cached(wheelPath) }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, h.Current().HasAsset)
	assert.Nil(t, h.Current().Model)
	assert.Equal(t, int32(0), changes.Load())
}

// TestHandleStaleResultDisposed 测试过期或关闭后到达的结果被释放
func TestHandleStaleResultDisposed(t *testing.T) {
	l := NewLoader(wheelRegistry(t, true), WithSourceReader(wheelReader(t)))
	src, err := l.Source(context.Background(), wheelPath)
	require.NoError(t, err)

	h := l.NewHandle()
	h.Acquire(SubassemblyWheelsChrome)
	h.mu.Lock()
	stale := h.gen - 1
	h.mu.Unlock()

	late := src.Instantiate(IdentityTransform())
	h.complete(stale, LoadedAssetResult{HasAsset: true, Model: late})
	assert.True(t, late.Disposed())

	h.Close()
	h.mu.Lock()
	gen := h.gen
	h.mu.Unlock()
	afterClose := src.Instantiate(IdentityTransform())
	h.complete(gen, LoadedAssetResult{HasAsset: true, Model: afterClose})
	assert.True(t, afterClose.Disposed())
	assert.Nil(t, h.Current().Model)
}

// TestHandleClose 测试关闭后释放当前模型并不再加载
func TestHandleClose(t *testing.T) {
	l := NewLoader(wheelRegistry(t, true), WithSourceReader(wheelReader(t)))
	h := l.NewHandle()
	h.Acquire(SubassemblyWheelsChrome)
	res := waitReady(t, func() LoadedAssetResult { return h.Acquire(SubassemblyWheelsChrome) })
	require.NotNil(t, res.Model)

	h.Close()
	h.Close()
	assert.True(t, res.Model.Disposed())
	after := h.Acquire(SubassemblyWheelsChrome)
	assert.False(t, after.HasAsset)
	assert.Nil(t, after.Model)
}

// TestHandleURIOverrideKey 测试不同变换视为不同请求
func TestHandleURIOverrideKey(t *testing.T) {
	reader := NewMemoryReader()
	reader.Put("custom/roof.glb", fixtureGLB(t, "roof", "Panel"))
	l := NewLoader(nil, WithSourceReader(reader))
	h := l.NewHandle()
	defer h.Close()

	h.AcquireURI("custom/roof.glb", nil)
	plain := waitReady(t, func() LoadedAssetResult { return h.AcquireURI("custom/roof.glb", nil) })
	require.NotNil(t, plain.Model)

	xf := IdentityTransform()
	xf.Offset[1] = 2
	assert.True(t, h.AcquireURI("custom/roof.glb", &xf).Loading)
	assert.True(t, plain.Model.Disposed())
	moved := waitReady(t, func() LoadedAssetResult { return h.AcquireURI("custom/roof.glb", &xf) })
	require.NotNil(t, moved.Model)
	assert.Equal(t, float32(2), moved.Model.Root().Children[0].Translation[1])
}
