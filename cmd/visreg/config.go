package main

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hairizuan-noorazman/visreg/browser"
	"github.com/hairizuan-noorazman/visreg/compare"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// Config holds all application configuration.
type Config struct {
	Storage     StorageConfig
	Browser     BrowserConfig
	Viewports   map[string]testcase.Viewport
	Engine      string
	Threshold   float64
	DiffColor   color.RGBA
	Concurrency ConcurrencyConfig
	Include     []string
	Exclude     []string
	Ready       ReadyConfig
	Sources     []SourceConfig
	Server      ServerConfig
	Log         LogConfig
	Quiet       bool
}

// StorageConfig holds screenshot storage configuration. BaseDir is always
// used for local run artifacts (outcome report, run lock) even when the
// screenshots themselves live in S3.
type StorageConfig struct {
	Type          string        // "local" or "s3"
	BaseDir       string        // local root for the screenshot buckets
	Bucket        string        // s3 bucket name
	Region        string        // s3 AWS region
	Prefix        string        // s3 optional key prefix
	PresignExpiry time.Duration // s3 presigned URL expiration
}

// BrowserConfig holds browser adapter configuration.
type BrowserConfig struct {
	Adapters          []string
	Headless          bool
	ExecPath          string
	NoSandbox         bool
	Args              []string
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
}

// ConcurrencyConfig sizes the capture and compare pools. Zero per-phase
// values fall back to the shared setting.
type ConcurrencyConfig struct {
	Capture int
	Compare int
}

// ReadyConfig holds the global page settle signal applied after navigation.
type ReadyConfig struct {
	Delay    time.Duration
	Selector string
}

// SourceConfig is one entry of the sources list, dispatched by Type.
type SourceConfig struct {
	Type     string `mapstructure:"type"`
	URL      string `mapstructure:"url"`       // storybook
	Path     string `mapstructure:"path"`      // urls
	StartURL string `mapstructure:"start_url"` // crawl
	MaxPages int    `mapstructure:"max_pages"` // crawl
}

// ServerConfig holds review server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".visreg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_dir", ".visreg")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.presign_expiry", "15m")

	v.SetDefault("browser.adapters", []string{browser.AdapterChrome})
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.wait_timeout", "10s")

	v.SetDefault("engine", compare.DefaultEngineName)
	v.SetDefault("threshold", 0.1)
	v.SetDefault("diff_color", "#ff0000")

	v.SetDefault("concurrency", 1)
	v.SetDefault("capture_concurrency", 0)
	v.SetDefault("compare_concurrency", 0)

	v.SetDefault("include", []string{})
	v.SetDefault("exclude", []string{})

	v.SetDefault("ready.delay", "0s")
	v.SetDefault("ready.selector", "")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("quiet", false)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults
	}

	// Parse configuration
	var config Config

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.Bucket = v.GetString("storage.bucket")
	config.Storage.Region = v.GetString("storage.region")
	config.Storage.Prefix = v.GetString("storage.prefix")
	config.Storage.PresignExpiry = v.GetDuration("storage.presign_expiry")

	config.Browser.Adapters = v.GetStringSlice("browser.adapters")
	config.Browser.Headless = v.GetBool("browser.headless")
	config.Browser.ExecPath = v.GetString("browser.exec_path")
	config.Browser.NoSandbox = v.GetBool("browser.no_sandbox")
	config.Browser.Args = v.GetStringSlice("browser.args")
	config.Browser.NavigationTimeout = v.GetDuration("browser.navigation_timeout")
	config.Browser.WaitTimeout = v.GetDuration("browser.wait_timeout")

	config.Engine = v.GetString("engine")
	config.Threshold = v.GetFloat64("threshold")
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %v", config.Threshold)
	}

	diffColor, err := parseHexColor(v.GetString("diff_color"))
	if err != nil {
		return nil, fmt.Errorf("invalid diff_color: %w", err)
	}
	config.DiffColor = diffColor

	shared := v.GetInt("concurrency")
	config.Concurrency.Capture = v.GetInt("capture_concurrency")
	if config.Concurrency.Capture <= 0 {
		config.Concurrency.Capture = shared
	}
	config.Concurrency.Compare = v.GetInt("compare_concurrency")
	if config.Concurrency.Compare <= 0 {
		config.Concurrency.Compare = shared
	}

	config.Include = v.GetStringSlice("include")
	config.Exclude = v.GetStringSlice("exclude")

	config.Ready.Delay = v.GetDuration("ready.delay")
	config.Ready.Selector = v.GetString("ready.selector")

	if err := v.UnmarshalKey("viewports", &config.Viewports); err != nil {
		return nil, fmt.Errorf("invalid viewports: %w", err)
	}
	if len(config.Viewports) == 0 {
		config.Viewports = map[string]testcase.Viewport{
			"laptop": {Name: "laptop", Width: 1366, Height: 768},
		}
	}
	for name, vp := range config.Viewports {
		if vp.Width <= 0 || vp.Height <= 0 {
			return nil, fmt.Errorf("viewport %s must have positive width and height", name)
		}
		vp.Name = name
		config.Viewports[name] = vp
	}

	if err := v.UnmarshalKey("sources", &config.Sources); err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")

	config.Quiet = v.GetBool("quiet")

	return &config, nil
}

// parseHexColor parses a "#rrggbb" hex string into an opaque RGBA color.
func parseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("expected #rrggbb, got %q", s)
	}
	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("expected #rrggbb, got %q", s)
	}
	return color.RGBA{
		R: uint8(value >> 16),
		G: uint8(value >> 8),
		B: uint8(value),
		A: 0xff,
	}, nil
}
