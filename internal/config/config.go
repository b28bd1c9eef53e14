// Package config loads the speechmodels configuration from flags,
// environment variables and an optional config file, in that precedence
// order, on top of compiled-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Registry RegistryConfig `mapstructure:"registry"`
	Download DownloadConfig `mapstructure:"download"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	LogLevel string         `mapstructure:"log_level"`
}

type PathsConfig struct {
	// DataDir is the root under which snapshots, manifests and model
	// files live. Empty means the platform default
	// (os.UserCacheDir()/speechmodels).
	DataDir string `mapstructure:"data_dir"`
}

type RegistryConfig struct {
	// BaseURL is the release-listing endpoint; category listings are
	// fetched from <base>/<category>/models.json.
	BaseURL string `mapstructure:"base_url"`

	// CacheTTLMinutes controls how long a snapshot answers Refresh
	// without a network call.
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
}

type DownloadConfig struct {
	MaxRetries         int `mapstructure:"max_retries"`
	IdleTimeoutSeconds int `mapstructure:"idle_timeout_seconds"`
}

type RuntimeConfig struct {
	// ORTLibraryPath points at the ONNX Runtime shared library used by
	// the engine probe. Empty disables probing.
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTAPIVersion  int    `mapstructure:"ort_api_version"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			DataDir: "",
		},
		Registry: RegistryConfig{
			BaseURL:         "https://models.example.com/speech",
			CacheTTLMinutes: 60,
		},
		Download: DownloadConfig{
			MaxRetries:         3,
			IdleTimeoutSeconds: 30,
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTAPIVersion:  23,
		},
		LogLevel: "info",
	}
}

// CacheTTL returns the snapshot TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Registry.CacheTTLMinutes) * time.Minute
}

// IdleTimeout returns the transport idle timeout as a duration.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.Download.IdleTimeoutSeconds) * time.Second
}

// ResolveDataDir returns the configured data dir, or the platform default
// when unset.
func (c Config) ResolveDataDir() (string, error) {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(base, "speechmodels"), nil
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-data-dir", defaults.Paths.DataDir, "Root directory for snapshots, manifests and model files")
	fs.String("registry-base-url", defaults.Registry.BaseURL, "Base URL of the model release registry")
	fs.Int("registry-cache-ttl-minutes", defaults.Registry.CacheTTLMinutes, "Registry snapshot TTL in minutes")
	fs.Int("download-max-retries", defaults.Download.MaxRetries, "Max retries for transient download failures")
	fs.Int("download-idle-timeout-seconds", defaults.Download.IdleTimeoutSeconds, "Abort a download attempt when no bytes arrive for this long")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (enables model probing)")
	fs.Int("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "Expected ONNX Runtime API version")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("SPEECHMODELS")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("paths.data_dir", "SPEECHMODELS_DATA_DIR"); err != nil {
		return Config{}, fmt.Errorf("bind data dir env var: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("speechmodels")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.data_dir", c.Paths.DataDir)
	v.SetDefault("registry.base_url", c.Registry.BaseURL)
	v.SetDefault("registry.cache_ttl_minutes", c.Registry.CacheTTLMinutes)
	v.SetDefault("download.max_retries", c.Download.MaxRetries)
	v.SetDefault("download.idle_timeout_seconds", c.Download.IdleTimeoutSeconds)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.data_dir", "paths-data-dir")
	v.RegisterAlias("registry.base_url", "registry-base-url")
	v.RegisterAlias("registry.cache_ttl_minutes", "registry-cache-ttl-minutes")
	v.RegisterAlias("download.max_retries", "download-max-retries")
	v.RegisterAlias("download.idle_timeout_seconds", "download-idle-timeout-seconds")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_api_version", "runtime-ort-api-version")
	v.RegisterAlias("log_level", "log-level")
}
