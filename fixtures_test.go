package vehicle3d

import (
	"context"
	"sync"
	"testing"

	"github.com/flywave/go3d/vec3"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/require"
)

const wheelPath = "models/wheels/wheel_chrome.glb"

func triangleGeometry() *Geometry {
	return &Geometry{
		Vertices: []vec3.T{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Indices:  []uint32{0, 1, 2},
	}
}

// fixtureModel 构造以给定名称命名网格的模型
func fixtureModel(name string, meshNames ...string) *Node {
	root := NewNode(name)
	for i, n := range meshNames {
		g := NewBoxGeometry(vec3.T{1, 1, 1}, vec3.T{float32(i), 0, 0})
		mtl := NewPbrMaterial(n+"-authored", [3]byte{200, 200, 200}, 0, 0.5)
		root.Meshes = append(root.Meshes, &Mesh{Name: n, Geometry: g, Material: mtl})
	}
	return root
}

func fixtureGLB(t *testing.T, name string, meshNames ...string) []byte {
	t.Helper()
	doc, err := ExportGltf(fixtureModel(name, meshNames...))
	require.NoError(t, err)
	bin, err := GetGltfBinary(doc, 4)
	require.NoError(t, err)
	return bin
}

func wheelRegistry(t *testing.T, enabled bool) *Registry {
	t.Helper()
	r, err := NewRegistry(map[SubassemblyId]AssetMetadata{
		SubassemblyWheelsChrome: {
			Path:  wheelPath,
			Scale: vec3.T{0.01, 0.01, 0.01},
			MaterialMapping: []MeshPatternRule{
				{Pattern: "rim", Zone: ZoneMetal},
			},
		},
		SubassemblyWheelsOffroad: {
			Path:            "models/wheels/missing.glb",
			Scale:           vec3.T{1, 1, 1},
			MaterialMapping: []MeshPatternRule{{Pattern: "rim", Zone: ZoneMetal}},
		},
	}, WithAssetsEnabled(enabled))
	require.NoError(t, err)
	return r
}

func wheelReader(t *testing.T) *MemoryReader {
	t.Helper()
	r := NewMemoryReader()
	r.Put(wheelPath, fixtureGLB(t, "wheel", "Rim_Front", "Tire_FL"))
	return r
}

// countingReleaser 记录每个对象被释放的次数
type countingReleaser struct {
	mu    sync.Mutex
	geoms map[*Geometry]int
	mtls  map[*PbrMaterial]int
}

func newCountingReleaser() *countingReleaser {
	return &countingReleaser{geoms: make(map[*Geometry]int), mtls: make(map[*PbrMaterial]int)}
}

func (r *countingReleaser) ReleaseGeometry(g *Geometry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geoms[g]++
}

func (r *countingReleaser) ReleaseMaterial(m *PbrMaterial) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mtls[m]++
}

func (r *countingReleaser) geometryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.geoms)
}

func (r *countingReleaser) materialCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mtls)
}

// maxReleases 单个对象的最大释放次数，正确时不超过 1
func (r *countingReleaser) maxReleases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, n := range r.geoms {
		if n > max {
			max = n
		}
	}
	for _, n := range r.mtls {
		if n > max {
			max = n
		}
	}
	return max
}

// gatedReader 读取阻塞直到 gate 关闭
type gatedReader struct {
	*MemoryReader
	gate    chan struct{}
	started chan struct{}
}

func newGatedReader(inner *MemoryReader) *gatedReader {
	return &gatedReader{MemoryReader: inner, gate: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (r *gatedReader) Read(ctx context.Context, p string) (*gltf.Document, error) {
	select {
	case r.started <- struct{}{}:
	default:
	}
	<-r.gate
	return r.MemoryReader.Read(ctx, p)
}

// failReader 任何读取都是错误
type failReader struct {
	t *testing.T
}

func (r failReader) Read(ctx context.Context, p string) (*gltf.Document, error) {
	r.t.Errorf("unexpected read of %s", p)
	return nil, context.Canceled
}

func testCatalog() []CatalogMaterial {
	return []CatalogMaterial{
		{ID: "paint-red", Zone: ZoneBody, Type: MaterialTypePaint, Finish: FinishMetallic, ColorHex: "#CC0000"},
		{ID: "leather-tan", Zone: ZoneSeats, Type: MaterialTypeUpholstery, Finish: FinishLeather, ColorHex: "#a0785a"},
		{ID: "chrome", Zone: ZoneMetal, Type: MaterialTypeMetal, Finish: FinishChrome, ColorHex: "#dddddd"},
	}
}
