package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server      Server      `mapstructure:"server"`
	Paths       Paths       `mapstructure:"paths"`
	Render      Render      `mapstructure:"render"`
	Raster      Raster      `mapstructure:"raster"`
	Compression Compression `mapstructure:"compression"`
	Storage     Storage     `mapstructure:"storage"`
	Database    Database    `mapstructure:"database"`
	Kafka       Kafka       `mapstructure:"kafka"`
	Retry       Retry       `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP address to listen on, e.g. ":3001"
}

// Paths holds the directories the service works in.
type Paths struct {
	WorkspaceRoot string `mapstructure:"workspace_root"` // per-job scratch directories
	OutputDir     string `mapstructure:"output_dir"`     // published images (local backend)
	OutputURL     string `mapstructure:"output_url"`     // URL prefix of published images
	StaticDir     string `mapstructure:"static_dir"`     // optional web UI, empty to disable
}

// Render configures the LaTeX → SVG stage.
type Render struct {
	Sandbox       string        `mapstructure:"sandbox"` // docker or local
	DockerBinary  string        `mapstructure:"docker_binary"`
	Image         string        `mapstructure:"image"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Grace         time.Duration `mapstructure:"grace"`
	MaxConcurrent int64         `mapstructure:"max_concurrent"` // 0 = unlimited
}

// Raster configures the SVG → PNG/JPG stage.
type Raster struct {
	Binary  string        `mapstructure:"binary"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Compression configures the raster compression stage.
type Compression struct {
	Driver      string `mapstructure:"driver"` // imagemin, native or none
	Binary      string        `mapstructure:"binary"`
	JPEGQuality int           `mapstructure:"jpeg_quality"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Storage holds configuration for the artifact store.
type Storage struct {
	Backend    string `mapstructure:"backend"` // local or minio
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	Region     string `mapstructure:"region"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	Prefix     string `mapstructure:"prefix"`
	PublicURL  string `mapstructure:"public_url"`
}

// Database holds database master and slave configuration.
type Database struct {
	Enabled bool           `mapstructure:"enabled"`
	Master  DatabaseNode   `mapstructure:"master"`
	Slaves  []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Kafka holds configuration for conversion events.
type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Topic   string   `mapstructure:"topic"`   // Kafka topic name
	Brokers []string `mapstructure:"brokers"` // List of Kafka broker addresses
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// JobTimeout is the longest a single conversion may take: every external
// stage at its bound.
func (c *Config) JobTimeout() time.Duration {
	return c.Render.Timeout + c.Render.Grace + c.Raster.Timeout + c.Compression.Timeout
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// envBindings maps Viper keys to environment variables holding secrets and
// deployment-specific values.
var envBindings = map[string]string{
	"server.http_port":     "HTTP_PORT",
	"database.master.host": "DB_HOST",
	"database.master.port": "DB_PORT",
	"database.master.user": "DB_USER",
	"database.master.pass": "DB_PASSWORD",
	"database.master.name": "DB_NAME",
	"storage.access_key":   "STORAGE_ACCESS_KEY",
	"storage.secret_key":   "STORAGE_SECRET_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":3001")

	v.SetDefault("paths.workspace_root", "temp")
	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("paths.output_url", "output/")

	v.SetDefault("render.sandbox", "docker")
	v.SetDefault("render.docker_binary", "docker")
	v.SetDefault("render.image", "blang/latex:ubuntu")
	v.SetDefault("render.timeout", 5*time.Second)
	v.SetDefault("render.grace", 10*time.Second)

	v.SetDefault("raster.binary", "svgexport")
	v.SetDefault("raster.timeout", 30*time.Second)

	v.SetDefault("compression.driver", "imagemin")
	v.SetDefault("compression.binary", "imagemin")
	v.SetDefault("compression.jpeg_quality", 85)
	v.SetDefault("compression.timeout", 15*time.Second)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.prefix", "output")
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 100*time.Millisecond)
	v.SetDefault("retry.backoff", 2.0)
}

// Load reads the configuration file at path, applies defaults and
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}
