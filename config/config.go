// Package config loads the injector configuration from a file and the
// environment
package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"metadata-injector/errors"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the configuration of both the HTTP server and the CLI.
// Every field can be set from a YAML file and overridden by the
// environment.
type Config struct {
	Host string `yaml:"host" json:"host" env:"HOST" env-description:"address to listen on"`
	Port string `yaml:"port" json:"port" env:"PORT" env-default:"8080" env-description:"port to listen on"`
	// GinMode is passed to gin.SetMode
	GinMode string `yaml:"gin_mode" json:"gin_mode" env:"GIN_MODE" env-default:"release" env-description:"gin mode: debug, release or test"`

	// TempDir is where uploads are stored, one sub directory per upload
	TempDir       string `yaml:"temp_dir" json:"temp_dir" env:"TEMP_DIR" env-default:"temp" env-description:"directory for uploaded files"`
	MaxUploadSize int64  `yaml:"max_upload_size" json:"max_upload_size" env:"MAX_UPLOAD_SIZE" env-default:"33554432" env-description:"multipart memory limit in bytes"`
	// AllowedExtensions limits what the HTTP upload accepts, the CLI accepts
	// every format that has a tag writer
	AllowedExtensions []string      `yaml:"allowed_extensions" json:"allowed_extensions" env:"ALLOWED_EXTENSIONS" env-default:".mp4,.mkv,.wmv,.asf" env-description:"extensions accepted for upload"`
	UploadTTL         time.Duration `yaml:"upload_ttl" json:"upload_ttl" env:"UPLOAD_TTL" env-default:"1h" env-description:"how long processed uploads are kept"`
	SweepInterval     time.Duration `yaml:"sweep_interval" json:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"10m" env-description:"how often expired uploads are removed"`

	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins" env:"CORS_ORIGINS" env-default:"http://localhost:3000" env-description:"origins allowed by CORS"`

	FFmpegPath  string `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"FFMPEG_PATH" env-default:"ffmpeg" env-description:"ffmpeg executable used for matroska files"`
	FFprobePath string `yaml:"ffprobe_path" json:"ffprobe_path" env:"FFPROBE_PATH" env-default:"ffprobe" env-description:"ffprobe executable used to read matroska tags"`
}

// Load reads the configuration file at path, if path is non-empty and the
// file exists, and then applies the environment on top of it.
func Load(path string) (Config, error) {
	const op errors.Op = "config.Load"

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return cfg, errors.E(op, errors.InvalidArgument, errors.Path(path), err)
			}
			cfg = cfg.normalize()
			if err := cfg.validate(); err != nil {
				return cfg, errors.E(op, errors.Path(path), err)
			}
			return cfg, nil
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, errors.E(op, errors.InvalidArgument, err)
	}
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, errors.E(op, err)
	}
	return cfg, nil
}

// Default returns the configuration with only defaults applied
func Default() Config {
	var cfg Config
	// the defaults are static so this can't fail unless the tags are wrong
	_ = cleanenv.ReadEnv(&cfg)
	return cfg.normalize()
}

// Addr returns the listen address
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Allowed reports whether ext is accepted for upload
func (c Config) Allowed(ext string) bool {
	ext = strings.ToLower(ext)
	for _, a := range c.AllowedExtensions {
		if a == ext {
			return true
		}
	}
	return false
}

// Save writes the configuration as indented JSON
func (c Config) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Description returns the environment variable help text
func Description() string {
	header := "Environment variables:"
	text, err := cleanenv.GetDescription(&Config{}, &header)
	if err != nil {
		return ""
	}
	return text
}

// validate rejects values the server can't run with
func (c Config) validate() error {
	if c.SweepInterval <= 0 {
		return errors.E(errors.InvalidArgument, errors.Info("sweep_interval"), "must be positive, got "+c.SweepInterval.String())
	}
	if c.UploadTTL <= 0 {
		return errors.E(errors.InvalidArgument, errors.Info("upload_ttl"), "must be positive, got "+c.UploadTTL.String())
	}
	if c.MaxUploadSize <= 0 {
		return errors.E(errors.InvalidArgument, errors.Info("max_upload_size"), "must be positive")
	}
	return nil
}

func (c Config) normalize() Config {
	exts := make([]string, 0, len(c.AllowedExtensions))
	for _, ext := range c.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	c.AllowedExtensions = exts
	return c
}
