package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/distantorigin/noobcraft-installer/internal/download"
	"github.com/distantorigin/noobcraft-installer/internal/syscheck"
	"github.com/distantorigin/noobcraft-installer/internal/version"
)

// Source selects where mods come from.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "NOOBCRAFT_"

// Config is the installer configuration.
type Config struct {
	MinecraftDir string             `yaml:"minecraft_dir"`
	Source       string             `yaml:"source"`
	Assets       AssetsConfig       `yaml:"assets"`
	Server       ServerConfig       `yaml:"server"`
	Download     DownloadConfig     `yaml:"download"`
	Sync         SyncConfig         `yaml:"sync"`
	Launcher     LauncherConfig     `yaml:"launcher"`
	Requirements RequirementsConfig `yaml:"requirements"`
	Log          LogConfig          `yaml:"log"`
}

// AssetsConfig locates the asset store.
type AssetsConfig struct {
	// URL is a gocloud blob URL (file://, mem://, s3://, gs://) or a directory.
	URL           string `yaml:"url"`
	Manifest      string `yaml:"manifest"`
	ModsPrefix    string `yaml:"mods_prefix"`
	ConfigsPrefix string `yaml:"configs_prefix"`
	GamePrefix    string `yaml:"game_prefix"`
}

// ServerConfig describes the download server.
type ServerConfig struct {
	BaseURL         string        `yaml:"base_url"`
	ModListEndpoint string        `yaml:"mod_list_endpoint"`
	CDNURLs         []string      `yaml:"cdn_urls"`
	FallbackURLs    []string      `yaml:"fallback_urls"`
	UserAgent       string        `yaml:"user_agent"`
	Timeout         time.Duration `yaml:"timeout"`
	IncludeOptional bool          `yaml:"include_optional"`
}

// DownloadConfig tunes the download pool.
type DownloadConfig struct {
	Workers           int   `yaml:"workers"`
	MaxBytesPerSecond int64 `yaml:"max_bytes_per_second"`
}

// SyncConfig tunes directory reconciliation.
type SyncConfig struct {
	PruneConfigs bool `yaml:"prune_configs"`
}

// LauncherConfig describes the launcher profile.
type LauncherConfig struct {
	ProfileID   string `yaml:"profile_id"`
	ProfileName string `yaml:"profile_name"`
	VersionID   string `yaml:"version_id"`
	JavaArgs    string `yaml:"java_args"`
	Icon        string `yaml:"icon"`
}

// RequirementsConfig sets the system checks.
type RequirementsConfig struct {
	MinFreeBytes  uint64 `yaml:"min_free_bytes"`
	MinJavaMajor  int    `yaml:"min_java_major"`
	CheckJava     bool   `yaml:"check_java"`
	CheckInternet bool   `yaml:"check_internet"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Source: SourceLocal,
		Assets: AssetsConfig{
			URL:        "assets",
			Manifest:   "mods.json",
			ModsPrefix: "mods/",
		},
		Server: ServerConfig{
			BaseURL:         "https://api.noobcraft.com/v1/",
			ModListEndpoint: "mods",
			CDNURLs:         []string{"https://cdn1.noobcraft.com/", "https://cdn2.noobcraft.com/"},
			FallbackURLs:    []string{"https://backup.noobcraft.com/api/v1/", "https://mirror.noobcraft.com/api/v1/"},
			UserAgent:       version.UserAgent(),
			Timeout:         download.DefaultTimeout,
		},
		Download: DownloadConfig{
			Workers: download.DefaultWorkers,
		},
		Launcher: LauncherConfig{
			ProfileID:   "noobcraft",
			ProfileName: "Noobcraft",
			VersionID:   "1.20.1",
		},
		Requirements: RequirementsConfig{
			MinFreeBytes:  syscheck.DefaultMinFreeBytes,
			MinJavaMajor:  syscheck.DefaultMinJavaMajor,
			CheckInternet: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values. Environment variables in path fields are expanded.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(os.ExpandEnv(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.expandEnv()
	return cfg, nil
}

func (c *Config) expandEnv() {
	c.MinecraftDir = os.ExpandEnv(c.MinecraftDir)
	c.Assets.URL = os.ExpandEnv(c.Assets.URL)
}

// LoadFromEnv applies NOOBCRAFT_* overrides.
func (c *Config) LoadFromEnv() error {
	str := map[string]*string{
		"MINECRAFT_DIR":     &c.MinecraftDir,
		"SOURCE":            &c.Source,
		"ASSETS_URL":        &c.Assets.URL,
		"SERVER_BASE_URL":   &c.Server.BaseURL,
		"USER_AGENT":        &c.Server.UserAgent,
		"PROFILE_ID":        &c.Launcher.ProfileID,
		"MINECRAFT_VERSION": &c.Launcher.VersionID,
		"JAVA_ARGS":         &c.Launcher.JavaArgs,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FORMAT":        &c.Log.Format,
	}
	for name, dst := range str {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "FALLBACK_URLS"); v != "" {
		c.Server.FallbackURLs = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "CDN_URLS"); v != "" {
		c.Server.CDNURLs = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sWORKERS: %w", EnvPrefix, err)
		}
		c.Download.Workers = n
	}
	if v := os.Getenv(EnvPrefix + "MAX_BYTES_PER_SECOND"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %sMAX_BYTES_PER_SECOND: %w", EnvPrefix, err)
		}
		c.Download.MaxBytesPerSecond = n
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Server.Timeout = d
	}
	if v := os.Getenv(EnvPrefix + "INCLUDE_OPTIONAL"); v != "" {
		c.Server.IncludeOptional = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "PRUNE_CONFIGS"); v != "" {
		c.Sync.PruneConfigs = v == "true" || v == "1"
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceLocal:
		if c.Assets.URL == "" {
			return errors.New("config: assets.url is required for local installs")
		}
		if c.Assets.Manifest == "" {
			return errors.New("config: assets.manifest is required")
		}
	case SourceRemote:
		if c.Server.BaseURL == "" {
			return errors.New("config: server.base_url is required for remote installs")
		}
	default:
		return fmt.Errorf("config: unknown source %q (want %s or %s)", c.Source, SourceLocal, SourceRemote)
	}
	if c.Download.Workers <= 0 {
		return errors.New("config: download.workers must be positive")
	}
	if c.Download.MaxBytesPerSecond < 0 {
		return errors.New("config: download.max_bytes_per_second must not be negative")
	}
	if c.Server.Timeout <= 0 {
		return errors.New("config: server.timeout must be positive")
	}
	if c.Launcher.ProfileID == "" {
		return errors.New("config: launcher.profile_id is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Merge returns c with the non-zero fields of override applied.
func (c Config) Merge(override Config) Config {
	if override.MinecraftDir != "" {
		c.MinecraftDir = override.MinecraftDir
	}
	if override.Source != "" {
		c.Source = override.Source
	}
	if override.Assets.URL != "" {
		c.Assets.URL = override.Assets.URL
	}
	if override.Server.BaseURL != "" {
		c.Server.BaseURL = override.Server.BaseURL
	}
	if override.Server.IncludeOptional {
		c.Server.IncludeOptional = true
	}
	if override.Download.Workers != 0 {
		c.Download.Workers = override.Download.Workers
	}
	if override.Download.MaxBytesPerSecond != 0 {
		c.Download.MaxBytesPerSecond = override.Download.MaxBytesPerSecond
	}
	if override.Sync.PruneConfigs {
		c.Sync.PruneConfigs = true
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	return c
}

// DownloadConfig builds the download client configuration.
func (c *Config) DownloadConfig() download.Config {
	return download.Config{
		BaseURL:         c.Server.BaseURL,
		ModListEndpoint: c.Server.ModListEndpoint,
		CDNURLs:         c.Server.CDNURLs,
		FallbackURLs:    c.Server.FallbackURLs,
		UserAgent:       c.Server.UserAgent,
		Timeout:         c.Server.Timeout,
		Workers:         c.Download.Workers,
		BytesPerSecond:  c.Download.MaxBytesPerSecond,
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
