package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const DefaultConfigPath = "meed.toml"

type WindowConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Title  string `toml:"title"`
}

type RendererConfig struct {
	// Debug enables validation layers and the debug messenger on Vulkan.
	Debug bool `toml:"debug"`
	// PresentMode is one of fifo, mailbox or immediate. Unsupported modes fall back to fifo.
	PresentMode string     `toml:"present_mode"`
	ClearColor  [4]float32 `toml:"clear_color"`
}

type ShaderConfig struct {
	Dir      string `toml:"dir"`
	Vertex   string `toml:"vertex"`
	Fragment string `toml:"fragment"`
	// Watch rebuilds the pipeline when a file under Dir changes.
	Watch bool `toml:"watch"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Log      LogConfig      `toml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Width:  800,
			Height: 600,
			Title:  "MEED Application Window",
		},
		Renderer: RendererConfig{
			Debug:       false,
			PresentMode: "fifo",
			ClearColor:  [4]float32{0.1, 0.1, 0.2, 1.0},
		},
		Shaders: ShaderConfig{
			Dir:      "shaders",
			Vertex:   "triangle.vert",
			Fragment: "triangle.frag",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		LogDebug("no config at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("%w: window size must be positive, got %dx%d", ErrPrecondition, c.Window.Width, c.Window.Height)
	}
	switch c.Renderer.PresentMode {
	case "fifo", "mailbox", "immediate":
	default:
		return fmt.Errorf("%w: unknown present mode %q", ErrPrecondition, c.Renderer.PresentMode)
	}
	for i, v := range c.Renderer.ClearColor {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: clear color component %d out of range: %f", ErrPrecondition, i, v)
		}
	}
	return nil
}

// ShaderPath joins the shader directory and name, appending suffix (".spv" on Vulkan).
func (c *Config) ShaderPath(name, suffix string) string {
	return filepath.Join(c.Shaders.Dir, name+suffix)
}
