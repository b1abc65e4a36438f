// Package config loads the hsplines server configuration from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/hbasis"
	"github.com/nainya/hsplines/pkg/journal"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root of the YAML document
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
	Basis   BasisConfig   `yaml:"basis"`
}

// ServerConfig holds the listener settings
type ServerConfig struct {
	Port         int `yaml:"port"`
	MetricsPort  int `yaml:"metrics_port"`
	MaxMessageMB int `yaml:"max_message_mb"`
}

// JournalConfig holds the refinement journal settings
type JournalConfig struct {
	Path               string        `yaml:"path"`
	MaxFileSize        int64         `yaml:"max_file_size"`
	SyncWrites         bool          `yaml:"sync_writes"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// LogConfig holds the logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DirectionConfig describes one direction of the default level-0 basis.
// Knots, when set, wins over the uniform Lower/Upper/Interior description.
type DirectionConfig struct {
	Degree   int       `yaml:"degree"`
	Knots    []float64 `yaml:"knots,omitempty"`
	Lower    float64   `yaml:"lower"`
	Upper    float64   `yaml:"upper"`
	Interior int       `yaml:"interior"`
}

// BasisConfig is the basis created when a request names no directions
type BasisConfig struct {
	Mode       string            `yaml:"mode"`
	Algorithm  string            `yaml:"algorithm"`
	Directions []DirectionConfig `yaml:"directions"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         50051,
			MetricsPort:  9090,
			MaxMessageMB: 100,
		},
		Journal: JournalConfig{
			Path:               "hsplines.journal",
			MaxFileSize:        journal.DefaultMaxFileSize,
			SyncWrites:         true,
			CheckpointInterval: journal.DefaultCheckpointInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		Basis: BasisConfig{
			Mode:      hbasis.Truncated.String(),
			Algorithm: "leaves",
			Directions: []DirectionConfig{
				{Degree: 2, Lower: 0, Upper: 1, Interior: 3},
				{Degree: 2, Lower: 0, Upper: 1, Interior: 3},
			},
		},
	}
}

// Load reads path over the defaults and validates the result. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, creating its
// directory
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks ports, journal settings and the default basis
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("%w: server.metrics_port %d", ErrInvalidConfig, c.Server.MetricsPort)
	}
	if c.Server.MaxMessageMB <= 0 {
		return fmt.Errorf("%w: server.max_message_mb must be positive", ErrInvalidConfig)
	}
	if c.Journal.MaxFileSize < 0 {
		return fmt.Errorf("%w: journal.max_file_size must not be negative", ErrInvalidConfig)
	}
	if c.Journal.CheckpointInterval < 0 {
		return fmt.Errorf("%w: journal.checkpoint_interval must not be negative", ErrInvalidConfig)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	if _, err := c.Basis.ModeValue(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Basis.AlgorithmValue(); err != nil {
		return err
	}
	if _, err := c.Basis.Tensor(); err != nil {
		return fmt.Errorf("%w: basis: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ModeValue parses the configured basis variant
func (b BasisConfig) ModeValue() (hbasis.Mode, error) {
	return hbasis.ParseMode(b.Mode)
}

// AlgorithmValue parses the configured active-set algorithm
func (b BasisConfig) AlgorithmValue() (hbasis.ActiveAlgorithm, error) {
	switch b.Algorithm {
	case "", "leaves":
		return hbasis.ByLeaves, nil
	case "sweep":
		return hbasis.BySweep, nil
	}
	return 0, fmt.Errorf("%w: basis.algorithm %q", ErrInvalidConfig, b.Algorithm)
}

// Tensor builds the level-0 tensor basis
func (b BasisConfig) Tensor() (*bspline.TensorBasis, error) {
	if len(b.Directions) == 0 {
		return nil, errors.New("no directions")
	}
	comps := make([]*bspline.Basis, len(b.Directions))
	for i, d := range b.Directions {
		c, err := d.basis()
		if err != nil {
			return nil, fmt.Errorf("direction %d: %w", i, err)
		}
		comps[i] = c
	}
	return bspline.NewTensorBasis(comps...)
}

// Options returns the hbasis options for the configured mode and algorithm
func (b BasisConfig) Options() ([]hbasis.Option, error) {
	mode, err := b.ModeValue()
	if err != nil {
		return nil, err
	}
	algo, err := b.AlgorithmValue()
	if err != nil {
		return nil, err
	}
	return []hbasis.Option{hbasis.WithMode(mode), hbasis.WithActiveAlgorithm(algo)}, nil
}

func (d DirectionConfig) basis() (*bspline.Basis, error) {
	if d.Degree < 0 {
		return nil, fmt.Errorf("negative degree %d", d.Degree)
	}
	if len(d.Knots) > 0 {
		kv, err := bspline.NewKnotVector(d.Knots)
		if err != nil {
			return nil, err
		}
		return bspline.NewBasis(kv, d.Degree)
	}
	if d.Upper <= d.Lower || d.Interior < 0 {
		return nil, fmt.Errorf("invalid range [%v,%v] with %d interior knots", d.Lower, d.Upper, d.Interior)
	}
	return bspline.NewBasis(bspline.Clamped(d.Lower, d.Upper, d.Interior, d.Degree), d.Degree)
}
