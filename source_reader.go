package vehicle3d

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/qmuntal/gltf"
)

// LoadErrorKind 加载失败分类
type LoadErrorKind int

const (
	LoadErrorTransport LoadErrorKind = iota
	LoadErrorParse
	LoadErrorUnsupported
)

func (k LoadErrorKind) String() string {
	switch k {
	case LoadErrorTransport:
		return "transport"
	case LoadErrorParse:
		return "parse"
	case LoadErrorUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("LoadErrorKind(%d)", int(k))
}

// LoadError 资源读取或解析失败
type LoadError struct {
	Path string
	Kind LoadErrorKind
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

var ErrUnsupportedFormat = errors.New("unsupported asset format")

// IsLoadError 判断错误是否为指定分类的加载错误
func IsLoadError(err error, kind LoadErrorKind) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Kind == kind
}

func asLoadError(p string, err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	kind := LoadErrorParse
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = LoadErrorTransport
	}
	return &LoadError{Path: p, Kind: kind, Err: err}
}

// supportedAssetPath 只接受 glb / gltf
func supportedAssetPath(p string) bool {
	if p == "" {
		return false
	}
	if u, err := url.Parse(p); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".glb", ".gltf":
		return true
	}
	return false
}

func isRemotePath(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// SourceReader 读取并解码一个资源文档
type SourceReader interface {
	Read(ctx context.Context, path string) (*gltf.Document, error)
}

// FileReader 从本地目录读取
type FileReader struct {
	Root string
}

func (r *FileReader) Resolve(p string) string {
	if filepath.IsAbs(p) || r.Root == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(r.Root, filepath.FromSlash(p))
}

func (r *FileReader) Read(ctx context.Context, p string) (*gltf.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorTransport, Err: err}
	}
	full := r.Resolve(p)
	if _, err := os.Stat(full); err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorTransport, Err: err}
	}
	doc, err := gltf.Open(full)
	if err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorParse, Err: err}
	}
	return doc, nil
}

// HTTPReader 通过 http(s) 读取自包含的资源
type HTTPReader struct {
	Client *http.Client
}

func (r *HTTPReader) Read(ctx context.Context, p string) (*gltf.Document, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorTransport, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorTransport, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Path: p, Kind: LoadErrorTransport, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(resp.Body).Decode(doc); err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorParse, Err: err}
	}
	return doc, nil
}

// routingReader 远程地址走 HTTP，其余走本地文件
type routingReader struct {
	file *FileReader
	http *HTTPReader
}

func (r *routingReader) Read(ctx context.Context, p string) (*gltf.Document, error) {
	if isRemotePath(p) {
		return r.http.Read(ctx, p)
	}
	return r.file.Read(ctx, p)
}

// MemoryReader 内存中的资源包，用于测试和预置资源
type MemoryReader struct {
	mu    sync.RWMutex
	files map[string][]byte
	reads sync.Map
}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{files: make(map[string][]byte)}
}

func (r *MemoryReader) Put(p string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[p] = data
}

// Reads 路径被读取的次数
func (r *MemoryReader) Reads(p string) int64 {
	if v, ok := r.reads.Load(p); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

func (r *MemoryReader) Read(ctx context.Context, p string) (*gltf.Document, error) {
	v, _ := r.reads.LoadOrStore(p, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)

	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorTransport, Err: err}
	}
	r.mu.RLock()
	data, ok := r.files[p]
	r.mu.RUnlock()
	if !ok {
		return nil, &LoadError{Path: p, Kind: LoadErrorTransport, Err: fs.ErrNotExist}
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, &LoadError{Path: p, Kind: LoadErrorParse, Err: err}
	}
	return doc, nil
}
