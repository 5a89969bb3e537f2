package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/uprent-dev/commutesync/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "commutesync.json"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "COMMUTESYNC_"

	// DefaultPort is the default extension host port.
	DefaultPort = 3000

	// DefaultHost is the default extension host address.
	DefaultHost = "localhost"

	// DefaultWebSocketPath is where pages connect to the storage bridge.
	DefaultWebSocketPath = "/ws"

	// DefaultReconcileTimeout is how long a page store waits for the
	// extension before becoming self-authoritative.
	DefaultReconcileTimeout = time.Second

	// DefaultNamespace prefixes every bridge topic.
	DefaultNamespace = "UPRENT_"

	// DefaultDatabase is the default SQLite file for the authoritative area.
	DefaultDatabase = "commutesync.db"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverS3     = "s3"
)

// Config represents the complete commutesync.json configuration.
type Config struct {
	// Name is the deployment name, used as a constant metrics label.
	Name string `json:"name,omitempty" env:"NAME"`

	// Server contains the extension host settings.
	Server ServerConfig `json:"server,omitempty" envPrefix:"SERVER_"`

	// Storage selects and configures the authoritative area.
	Storage StorageConfig `json:"storage,omitempty" envPrefix:"STORAGE_"`

	// Sync contains synchronized store settings.
	Sync SyncConfig `json:"sync,omitempty" envPrefix:"SYNC_"`

	// Proxy contains fetch proxy settings.
	Proxy ProxyConfig `json:"proxy,omitempty" envPrefix:"PROXY_"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics,omitempty" envPrefix:"METRICS_"`

	// Tracing contains OpenTelemetry export settings.
	Tracing TracingConfig `json:"tracing,omitempty" envPrefix:"TRACING_"`

	// Log contains logging settings.
	Log LogConfig `json:"log,omitempty" envPrefix:"LOG_"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains the extension host settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" env:"HOST"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" env:"PORT"`

	// WebSocketPath is the path pages dial to reach the storage bridge.
	WebSocketPath string `json:"wsPath,omitempty" env:"WS_PATH"`

	// AllowedOrigins restricts websocket origins. Empty allows all.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// StorageConfig selects the authoritative area.
type StorageConfig struct {
	// Driver is one of memory, sqlite, s3.
	Driver string `json:"driver,omitempty" env:"DRIVER"`

	// Path is the SQLite database file.
	Path string `json:"path,omitempty" env:"PATH"`

	// Bucket is the S3 bucket.
	Bucket string `json:"bucket,omitempty" env:"BUCKET"`

	// Prefix is the S3 key prefix.
	Prefix string `json:"prefix,omitempty" env:"PREFIX"`

	// Region is the S3 region.
	Region string `json:"region,omitempty" env:"REGION"`
}

// SyncConfig contains synchronized store settings.
type SyncConfig struct {
	// ReconcileTimeout is the reconciliation deadline (e.g., "1s").
	ReconcileTimeout string `json:"reconcileTimeout,omitempty" env:"RECONCILE_TIMEOUT"`

	// Namespace prefixes bridge topics.
	Namespace string `json:"namespace,omitempty" env:"NAMESPACE"`
}

// ProxyConfig contains fetch proxy settings.
type ProxyConfig struct {
	// Hosts are the local-only hosts whose requests are tunneled.
	Hosts []string `json:"hosts,omitempty" env:"HOSTS" envSeparator:","`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	Enabled bool `json:"enabled,omitempty" env:"ENABLED"`

	// Path is the metrics endpoint path.
	Path string `json:"path,omitempty" env:"PATH"`

	// Namespace is the metrics namespace.
	Namespace string `json:"namespace,omitempty" env:"NAMESPACE"`
}

// TracingConfig contains OpenTelemetry export settings.
// Tracing is off unless Endpoint is set.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL, e.g. "http://localhost:4318".
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT"`

	// Disabled turns tracing off even when Endpoint is set.
	Disabled bool `json:"disabled,omitempty" env:"DISABLED"`

	// ServiceName is reported as service.name (default: "commutesync").
	ServiceName string `json:"serviceName,omitempty" env:"SERVICE_NAME"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" env:"LEVEL"`

	// Format is text or json.
	Format string `json:"format,omitempty" env:"FORMAT"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the specified directory.
// It looks for commutesync.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path and applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("S001").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("S002").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("S002").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error())
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// FromEnv builds a Config from defaults and environment overrides only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from COMMUTESYNC_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.New("S004").Wrap(err)
	}
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("S002").Wrap(err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("S002").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.WebSocketPath == "" {
		c.Server.WebSocketPath = DefaultWebSocketPath
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		c.Storage.Path = DefaultDatabase
	}
	if c.Storage.Driver == DriverS3 && c.Storage.Prefix == "" {
		c.Storage.Prefix = "commutesync/"
	}

	if c.Sync.ReconcileTimeout == "" {
		c.Sync.ReconcileTimeout = DefaultReconcileTimeout.String()
	}
	if c.Sync.Namespace == "" {
		c.Sync.Namespace = DefaultNamespace
	}

	if c.Proxy.Hosts == nil {
		c.Proxy.Hosts = []string{"localhost", "127.0.0.1"}
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "commutesync"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "commutesync"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("S003").
			WithDetail("Port must be between 0 and 65535")
	}
	if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
		return errors.New("S003").
			WithDetail("server.wsPath must start with /")
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverS3:
		if c.Storage.Bucket == "" {
			return errors.New("S003").
				WithDetail("storage.bucket is required for the s3 driver")
		}
	default:
		return errors.New("S023").WithDetail("got " + strconv.Quote(c.Storage.Driver))
	}
	d, err := time.ParseDuration(c.Sync.ReconcileTimeout)
	if err != nil || d <= 0 {
		return errors.New("S003").
			WithDetail("sync.reconcileTimeout must be a positive duration, got " + strconv.Quote(c.Sync.ReconcileTimeout))
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		return errors.New("S003").
			WithDetail("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// Address returns the listen address for the extension host.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// WebSocketURL returns the URL pages dial to reach the bridge.
func (c *Config) WebSocketURL() string {
	return "ws://" + c.Address() + c.Server.WebSocketPath
}

// ReconcileTimeout returns the parsed reconciliation deadline, falling
// back to DefaultReconcileTimeout when unparsable.
func (c *Config) ReconcileTimeout() time.Duration {
	d, err := time.ParseDuration(c.Sync.ReconcileTimeout)
	if err != nil || d <= 0 {
		return DefaultReconcileTimeout
	}
	return d
}

// DatabasePath returns the absolute path to the SQLite database.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(c.Dir(), c.Storage.Path)
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	if l, ok := levels[strings.ToLower(c.Log.Level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing commutesync.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("S001").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory,
// falling back to defaults plus environment when no file exists.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		if errors.CodeOf(err) == "S001" {
			return FromEnv()
		}
		return nil, err
	}

	return Load(root)
}
