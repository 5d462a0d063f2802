package vehicle3d

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/pelletier/go-toml/v2"
)

// Config 进程级配置
type Config struct {
	EnableAssets      bool     `toml:"enable_assets"`
	AssetRoot         string   `toml:"asset_root"`
	CacheIdleCapacity int      `toml:"cache_idle_capacity" validate:"min=0"`
	FetchTimeout      Duration `toml:"fetch_timeout" validate:"min=0"`
	LogLevel          string   `toml:"log_level" validate:"oneof=debug info warn error"`
	Watch             bool     `toml:"watch"`
}

// Duration 以字符串形式（如 "30s"）读写的时间长度
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func DefaultConfig() Config {
	return Config{
		EnableAssets:      true,
		AssetRoot:         "assets",
		CacheIdleCapacity: defaultIdleCapacity,
		FetchTimeout:      Duration(30 * time.Second),
		LogLevel:          "info",
	}
}

// LoadConfig 读取 TOML 配置，未出现的字段保持默认值
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	return validator.New().Struct(c)
}

// SlogLevel 日志级别
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Pipeline 按配置组装的完整管线
type Pipeline struct {
	Registry *Registry
	Presets  *PresetCatalog
	Cache    *MaterialCache
	Factory  *MaterialFactory
	Loader   *Loader
}

// NewPipeline 以内置注册表和预设目录按配置组装管线，额外的加载选项追加在配置之后
func (c Config) NewPipeline(logger *slog.Logger, opts ...LoaderOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	registry := DefaultRegistry(c.EnableAssets)
	presets := DefaultPresets()
	cache := NewMaterialCache(WithIdleCapacity(c.CacheIdleCapacity), WithCacheLogger(logger))
	factory := NewMaterialFactory(presets, cache, WithFactoryLogger(logger))
	loaderOpts := []LoaderOption{
		WithAssetRoot(c.AssetRoot),
		WithFetchTimeout(time.Duration(c.FetchTimeout)),
		WithLoaderLogger(logger),
	}
	return &Pipeline{
		Registry: registry,
		Presets:  presets,
		Cache:    cache,
		Factory:  factory,
		Loader:   NewLoader(registry, append(loaderOpts, opts...)...),
	}
}
