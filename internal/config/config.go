package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Gallery    GalleryConfig    `yaml:"gallery"`
	Match      MatchConfig      `yaml:"match"`
	Auth       AuthConfig       `yaml:"auth"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins besides localhost
}

// Addr returns host:port for the HTTP listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`         // postgres or mysql
	URL          string        `yaml:"url"`            // DSN for the selected driver
	MaxOpenConns int           `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int           `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
	Timeout      time.Duration `yaml:"timeout"`        // Bound on each storage call
}

type EmbeddingConfig struct {
	URL          string        `yaml:"url"`            // defaults to http://localhost:8000
	Dim          int           `yaml:"dim"`            // defaults to 128
	Timeout      time.Duration `yaml:"timeout"`        // per request
	MaxImageSize int           `yaml:"max_image_size"` // longest edge in pixels before upload
}

type GalleryConfig struct {
	FacesDir        string        `yaml:"faces_dir"`        // enrollment images, one directory per roll number
	Workers         int           `yaml:"workers"`          // concurrent embedder calls during rebuild
	RefreshInterval time.Duration `yaml:"refresh_interval"` // 0 disables periodic rebuilds
	WarmStart       bool          `yaml:"warm_start"`       // load cached embeddings on startup
}

type MatchConfig struct {
	Threshold     float64 `yaml:"threshold"`
	MinConfidence int     `yaml:"min_confidence"`
	MaxConfidence int     `yaml:"max_confidence"`
	FacePolicy    string  `yaml:"face_policy"` // first or best
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type AttendanceConfig struct {
	TimeZone string `yaml:"time_zone"` // IANA name; defines the attendance calendar day
}

// Location resolves the configured time zone.
func (c AttendanceConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("5s", "4h"). Zero is allowed.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// Defaults returns the configuration embedded in defaults.yaml.
func Defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return cfg
}

// Load reads the configuration from environment variables on top of the embedded defaults.
func Load() *Config {
	d := Defaults()

	return &Config{
		Server: ServerConfig{
			Host:           envString("WEB_HOST", d.Server.Host),
			Port:           envInt("WEB_PORT", d.Server.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Server.AllowedOrigins),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", d.Database.Driver)),
			URL:          envString("DATABASE_URL", d.Database.URL),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
			Timeout:      envDuration("STORAGE_TIMEOUT", d.Database.Timeout),
		},
		Embedding: EmbeddingConfig{
			URL:          envString("EMBEDDING_URL", d.Embedding.URL),
			Dim:          envInt("EMBEDDING_DIM", d.Embedding.Dim),
			Timeout:      envDuration("EMBEDDING_TIMEOUT", d.Embedding.Timeout),
			MaxImageSize: envInt("EMBEDDING_MAX_IMAGE_SIZE", d.Embedding.MaxImageSize),
		},
		Gallery: GalleryConfig{
			FacesDir:        envString("FACES_DIR", d.Gallery.FacesDir),
			Workers:         envInt("GALLERY_WORKERS", d.Gallery.Workers),
			RefreshInterval: envDuration("GALLERY_REFRESH_INTERVAL", d.Gallery.RefreshInterval),
			WarmStart:       envBool("GALLERY_WARM_START", d.Gallery.WarmStart),
		},
		Match: MatchConfig{
			Threshold:     envFloat("MATCH_THRESHOLD", d.Match.Threshold),
			MinConfidence: envInt("MATCH_MIN_CONFIDENCE", d.Match.MinConfidence),
			MaxConfidence: envInt("MATCH_MAX_CONFIDENCE", d.Match.MaxConfidence),
			FacePolicy:    strings.ToLower(envString("MATCH_FACE_POLICY", d.Match.FacePolicy)),
		},
		Auth: AuthConfig{
			JWTSecret: envString("JWT_SECRET", d.Auth.JWTSecret),
			TokenTTL:  envDuration("JWT_TOKEN_TTL", d.Auth.TokenTTL),
		},
		Attendance: AttendanceConfig{
			TimeZone: envString("ATTENDANCE_TIME_ZONE", d.Attendance.TimeZone),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", d.Log.Level),
		},
	}
}

// Validate rejects settings that would make matching or storage meaningless.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or mysql, got %q", c.Database.Driver))
	}
	if c.Embedding.Dim <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Embedding.Dim))
	}
	if c.Match.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be positive, got %v", c.Match.Threshold))
	}
	if c.Match.MaxConfidence > 100 {
		errs = append(errs, fmt.Errorf("MATCH_MAX_CONFIDENCE must not exceed 100, got %d", c.Match.MaxConfidence))
	}
	if c.Match.MinConfidence > c.Match.MaxConfidence {
		errs = append(errs, fmt.Errorf("MATCH_MIN_CONFIDENCE %d exceeds MATCH_MAX_CONFIDENCE %d",
			c.Match.MinConfidence, c.Match.MaxConfidence))
	}
	switch c.Match.FacePolicy {
	case "first", "best":
	default:
		errs = append(errs, fmt.Errorf("MATCH_FACE_POLICY must be first or best, got %q", c.Match.FacePolicy))
	}
	if _, err := c.Attendance.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
