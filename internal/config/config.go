package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"photo-resizer-go/internal/compressor"
	"photo-resizer-go/internal/workerpool"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	InDir             string            `mapstructure:"in_dir"`
	OutDir            string            `mapstructure:"out_dir"`
	Targets           []string          `mapstructure:"targets"`
	Quality           float64           `mapstructure:"quality"`
	ChromaSubsampling int               `mapstructure:"chroma_subsampling"`
	Progressive       int               `mapstructure:"progressive"`
	PreserveMetadata  bool              `mapstructure:"preserve_metadata"`
	OutMetadata       string            `mapstructure:"out_metadata"`
	ReprocessExisting bool              `mapstructure:"reprocess_existing"`
	DeleteUnknown     bool              `mapstructure:"delete_unknown"`
	ContentHash       bool              `mapstructure:"content_hash"`
	FailFast          bool              `mapstructure:"fail_fast"`
	DryRun            bool              `mapstructure:"dry_run"`
	Performance       PerformanceConfig `mapstructure:"performance"`
	Tools             ToolsConfig       `mapstructure:"tools"`
	Cache             CacheConfig       `mapstructure:"cache"`
	Logging           LoggingConfig     `mapstructure:"logging"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	// Concurrency is the number of jobs in flight; 0 means one per logical CPU.
	Concurrency  int  `mapstructure:"concurrency"`
	ShowProgress bool `mapstructure:"show_progress"`
}

// ToolsConfig names the external programs.
type ToolsConfig struct {
	Resize        string `mapstructure:"resize"`
	ResizeBackend string `mapstructure:"resize_backend"`
	Encoder       string `mapstructure:"encoder"`
	Exiftool      string `mapstructure:"exiftool"`
}

// CacheConfig locates the content-hash cache. An empty path disables it.
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

var (
	validChroma = map[int]bool{420: true, 422: true, 440: true, 444: true}

	validBackends = map[string]bool{
		compressor.BackendExternal: true,
		compressor.BackendBuiltin:  true,
	}

	validLogLevels = map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Quality:           1.0,
		ChromaSubsampling: 420,
		Progressive:       2,
		ContentHash:       true,
		Performance: PerformanceConfig{
			Concurrency:  0,
			ShowProgress: true,
		},
		Tools: ToolsConfig{
			Resize:        "magick",
			ResizeBackend: compressor.BackendExternal,
			Encoder:       "cjpegli",
			Exiftool:      "exiftool",
		},
		Cache: CacheConfig{
			Path: defaultCachePath(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// SetDefaults registers DefaultConfig on v so that every key is known to
// viper, which AutomaticEnv needs to resolve nested environment variables.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("quality", d.Quality)
	v.SetDefault("chroma_subsampling", d.ChromaSubsampling)
	v.SetDefault("progressive", d.Progressive)
	v.SetDefault("preserve_metadata", d.PreserveMetadata)
	v.SetDefault("out_metadata", d.OutMetadata)
	v.SetDefault("reprocess_existing", d.ReprocessExisting)
	v.SetDefault("delete_unknown", d.DeleteUnknown)
	v.SetDefault("content_hash", d.ContentHash)
	v.SetDefault("fail_fast", d.FailFast)
	v.SetDefault("dry_run", d.DryRun)
	v.SetDefault("performance.concurrency", d.Performance.Concurrency)
	v.SetDefault("performance.show_progress", d.Performance.ShowProgress)
	v.SetDefault("tools.resize", d.Tools.Resize)
	v.SetDefault("tools.resize_backend", d.Tools.ResizeBackend)
	v.SetDefault("tools.encoder", d.Tools.Encoder)
	v.SetDefault("tools.exiftool", d.Tools.Exiftool)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// LoadConfig loads configuration from file, environment variables and any
// flags already bound to v, then validates it.
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	config, err := Load(v, configPath)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Load reads configuration like LoadConfig but skips validation, for
// commands that do not process a directory.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	config := DefaultConfig()
	SetDefaults(v)

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.photo-resizer")
		v.AddConfigPath("/etc/photo-resizer")
	}

	v.SetEnvPrefix("PHOTO_RESIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.InDir == "" {
		return fmt.Errorf("in_dir is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("out_dir is required")
	}

	c.InDir = expandPath(c.InDir)
	c.OutDir = expandPath(c.OutDir)
	if c.OutMetadata != "" {
		c.OutMetadata = expandPath(c.OutMetadata)
	}
	if c.Cache.Path != "" {
		c.Cache.Path = expandPath(c.Cache.Path)
	}

	if !isValidPath(c.InDir) {
		return fmt.Errorf("in_dir does not exist or is not accessible: %s", c.InDir)
	}
	if samePath(c.InDir, c.OutDir) {
		return fmt.Errorf("out_dir must differ from in_dir: %s", c.OutDir)
	}

	if c.Quality <= 0 {
		return fmt.Errorf("invalid quality: %v (must be greater than 0)", c.Quality)
	}
	if !validChroma[c.ChromaSubsampling] {
		return fmt.Errorf("invalid chroma_subsampling: %d (valid: 420, 422, 440, 444)", c.ChromaSubsampling)
	}
	if c.Progressive < 0 || c.Progressive > 2 {
		return fmt.Errorf("invalid progressive level: %d (valid: 0, 1, 2)", c.Progressive)
	}

	if c.Tools.ResizeBackend == "" {
		c.Tools.ResizeBackend = compressor.BackendExternal
	}
	if !validBackends[c.Tools.ResizeBackend] {
		return fmt.Errorf("invalid resize_backend: %s (valid: external, builtin)", c.Tools.ResizeBackend)
	}

	if c.Performance.Concurrency <= 0 {
		c.Performance.Concurrency = workerpool.DefaultSize()
	}

	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// Helper functions

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "photo-resizer", "hashes.db")
}

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	stat, err := os.Stat(path)
	return err == nil && stat.IsDir()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
