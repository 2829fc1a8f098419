package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ChannelOrder names the in-memory channel layout of decoded frames
type ChannelOrder string

const (
	ChannelOrderBGR ChannelOrder = "bgr" // OpenCV decoders
	ChannelOrderRGB ChannelOrder = "rgb"
)

// RGB is a color in red/green/blue components regardless of frame channel order
type RGB struct {
	R uint8 `json:"r" yaml:"r" mapstructure:"r"`
	G uint8 `json:"g" yaml:"g" mapstructure:"g"`
	B uint8 `json:"b" yaml:"b" mapstructure:"b"`
}

// SegmentationConfig holds the HSV threshold policy and mask cleanup kernel.
// Hue is on OpenCV's 0-179 scale, saturation and value on 0-255.
type SegmentationConfig struct {
	HueMin        int          `json:"hue_min" yaml:"hue_min" mapstructure:"hue_min"`
	HueMax        int          `json:"hue_max" yaml:"hue_max" mapstructure:"hue_max"`
	SaturationMin int          `json:"saturation_min" yaml:"saturation_min" mapstructure:"saturation_min"`
	ValueMin      int          `json:"value_min" yaml:"value_min" mapstructure:"value_min"`
	KernelSize    int          `json:"kernel_size" yaml:"kernel_size" mapstructure:"kernel_size"`
	ChannelOrder  ChannelOrder `json:"channel_order" yaml:"channel_order" mapstructure:"channel_order"`
}

// WeightTolerance is how far FrameWeight+HighlightWeight may drift from 1
const WeightTolerance = 1e-9

// CompositeConfig holds the overlay blend. The two weights sum to 1.
type CompositeConfig struct {
	FrameWeight     float64 `json:"frame_weight" yaml:"frame_weight" mapstructure:"frame_weight"`
	HighlightWeight float64 `json:"highlight_weight" yaml:"highlight_weight" mapstructure:"highlight_weight"`
	Highlight       RGB     `json:"highlight" yaml:"highlight" mapstructure:"highlight"`
}

// OutputConfig controls the recorded video
type OutputConfig struct {
	FourCC string `json:"fourcc" yaml:"fourcc" mapstructure:"fourcc"`
	// FPS of 0 keeps the source frame rate
	FPS float64 `json:"fps" yaml:"fps" mapstructure:"fps"`
}

// PreviewConfig controls the optional live MJPEG preview server
type PreviewConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port" yaml:"port" mapstructure:"port"`
	Quality int  `json:"quality" yaml:"quality" mapstructure:"quality"`
	HUD     bool `json:"hud" yaml:"hud" mapstructure:"hud"`

	// Widgets are extra overlay widgets ("text" or "coverage") drawn on preview frames
	Widgets []map[string]interface{} `json:"widgets,omitempty" yaml:"widgets,omitempty" mapstructure:"widgets"`
}

// Config represents the application configuration
type Config struct {
	Segmentation SegmentationConfig `json:"segmentation" yaml:"segmentation" mapstructure:"segmentation"`
	Composite    CompositeConfig    `json:"composite" yaml:"composite" mapstructure:"composite"`
	Output       OutputConfig       `json:"output" yaml:"output" mapstructure:"output"`
	Preview      PreviewConfig      `json:"preview" yaml:"preview" mapstructure:"preview"`
	LogLevel     string             `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		Segmentation: SegmentationConfig{
			HueMin:        0,
			HueMax:        35,
			SaturationMin: 50,
			ValueMin:      50,
			KernelSize:    5,
			ChannelOrder:  ChannelOrderBGR,
		},
		Composite: CompositeConfig{
			FrameWeight:     0.7,
			HighlightWeight: 0.3,
			Highlight:       RGB{R: 255},
		},
		Output: OutputConfig{
			FourCC: "XVID",
		},
		Preview: PreviewConfig{
			Port:    8080,
			Quality: 90,
			HUD:     true,
		},
		LogLevel: "info",
	}
}

// Validate checks every field for a usable value
func (c *Config) Validate() error {
	s := c.Segmentation
	if s.HueMin < 0 || s.HueMin > 179 {
		return fmt.Errorf("segmentation.hue_min must be in [0,179], got %d", s.HueMin)
	}
	if s.HueMax < 0 || s.HueMax > 179 {
		return fmt.Errorf("segmentation.hue_max must be in [0,179], got %d", s.HueMax)
	}
	if s.HueMin > s.HueMax {
		return fmt.Errorf("segmentation.hue_min (%d) exceeds hue_max (%d)", s.HueMin, s.HueMax)
	}
	if s.SaturationMin < 0 || s.SaturationMin > 255 {
		return fmt.Errorf("segmentation.saturation_min must be in [0,255], got %d", s.SaturationMin)
	}
	if s.ValueMin < 0 || s.ValueMin > 255 {
		return fmt.Errorf("segmentation.value_min must be in [0,255], got %d", s.ValueMin)
	}
	if s.KernelSize < 1 {
		return fmt.Errorf("segmentation.kernel_size must be at least 1, got %d", s.KernelSize)
	}
	switch s.ChannelOrder {
	case ChannelOrderBGR, ChannelOrderRGB:
	default:
		return fmt.Errorf("segmentation.channel_order must be bgr or rgb, got %q", s.ChannelOrder)
	}

	w := c.Composite
	if w.FrameWeight < 0 || w.FrameWeight > 1 {
		return fmt.Errorf("composite.frame_weight must be in [0,1], got %g", w.FrameWeight)
	}
	if w.HighlightWeight < 0 || w.HighlightWeight > 1 {
		return fmt.Errorf("composite.highlight_weight must be in [0,1], got %g", w.HighlightWeight)
	}
	if math.Abs(w.FrameWeight+w.HighlightWeight-1) > WeightTolerance {
		return fmt.Errorf("composite.frame_weight and highlight_weight must sum to 1, got %g + %g", w.FrameWeight, w.HighlightWeight)
	}

	if len(c.Output.FourCC) != 4 {
		return fmt.Errorf("output.fourcc must be exactly 4 characters, got %q", c.Output.FourCC)
	}
	if c.Output.FPS < 0 {
		return fmt.Errorf("output.fps must not be negative, got %g", c.Output.FPS)
	}

	if c.Preview.Enabled && (c.Preview.Port < 1 || c.Preview.Port > 65535) {
		return fmt.Errorf("preview.port must be in [1,65535], got %d", c.Preview.Port)
	}
	if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
		return fmt.Errorf("preview.quality must be in [1,100], got %d", c.Preview.Quality)
	}

	if !logger.IsValidLevel(c.LogLevel) {
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	v          *viper.Viper
	mu         sync.RWMutex
}

// DefaultPath returns flameseg/config.yaml under the XDG config home,
// $HOME/.config unless XDG_CONFIG_HOME is set
func DefaultPath() (string, error) {
	if xdg.ConfigHome == "" {
		return "", fmt.Errorf("failed to resolve config directory")
	}
	return filepath.Join(xdg.ConfigHome, "flameseg", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty, creating it
// with defaults if it does not exist.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			m.v = newViper(m.config)
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk, filling missing keys from defaults
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Segmentation.ChannelOrder = ChannelOrder(strings.ToLower(string(cfg.Segmentation.ChannelOrder)))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.v = newViper(cfg)
	m.mu.Unlock()
	return nil
}

// newViper mirrors cfg into a viper instance keyed by yaml paths
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range flatten(cfg) {
		v.Set(key, value)
	}
	return v
}

// flatten turns cfg into dotted yaml keys
func flatten(cfg *Config) map[string]interface{} {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil
	}
	out := make(map[string]interface{})
	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for k, val := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := val.(map[string]interface{}); ok {
				walk(key, child)
				continue
			}
			out[key] = val
		}
	}
	walk("", tree)
	return out
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// GetViper returns the viper view of the configuration, keyed by yaml paths
// such as "segmentation.hue_max".
func (m *Manager) GetViper() *viper.Viper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v
}

// Set updates one dotted key, validates the result and saves it
func (m *Manager) Set(key string, value interface{}) error {
	m.mu.Lock()
	if !m.v.IsSet(key) {
		m.mu.Unlock()
		return fmt.Errorf("configuration key not found: %s", key)
	}
	m.v.Set(key, value)

	cfg := Defaults()
	if err := m.v.Unmarshal(cfg); err != nil {
		m.v = newViper(m.config)
		m.mu.Unlock()
		return fmt.Errorf("failed to apply %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		m.v = newViper(m.config)
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	m.mu.Unlock()

	return m.Save()
}

// ApplyOverrides copies every key set on v (typically flag-bound globals)
// onto the in-memory configuration without saving it. An empty string counts
// as unset, so "--log-level=" keeps the file's value.
func (m *Manager) ApplyOverrides(v *viper.Viper) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	applied := 0
	for _, key := range m.v.AllKeys() {
		if !v.IsSet(key) {
			continue
		}
		val := v.Get(key)
		if s, ok := val.(string); ok && s == "" {
			continue
		}
		m.v.Set(key, val)
		applied++
	}
	if applied == 0 {
		return nil
	}

	cfg := Defaults()
	if err := m.v.Unmarshal(cfg); err != nil {
		m.v = newViper(m.config)
		return fmt.Errorf("failed to apply overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		m.v = newViper(m.config)
		return err
	}
	m.config = cfg

	logger.WithComponent("config").Debug().
		Int("overrides", applied).
		Msg("Applied command line overrides")
	return nil
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
