// Package config loads viewer configuration from YAML. Load starts from
// Default and overlays the file, so absent keys keep their defaults and
// an explicit zero stays zero. Validate clamps soft values and rejects
// contradictions.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Render output formats.
const (
	FormatRaster = "raster"
	FormatVector = "vector"
)

// Soft defaults filled by Validate when a value is missing or out of
// range.
const (
	DefaultCachePages        = 8
	DefaultPrerenderBehind   = 1
	DefaultPrerenderAhead    = 2
	DefaultMinZoom           = 0.25
	DefaultMaxZoom           = 4.0
	DefaultZoom              = 1.0
	DefaultRenderWorkers     = 2
	DefaultSearchConcurrency = 4
)

type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Zoom    ZoomConfig    `yaml:"zoom"`
	Render  RenderConfig  `yaml:"render"`
	Search  SearchConfig  `yaml:"search"`
	OCR     OCRConfig     `yaml:"ocr"`
	Limits  Limits        `yaml:"limits"`
	Logging LoggingConfig `yaml:"logging"`
}

type CacheConfig struct {
	// MaxPages bounds the rendered-page cache in entries.
	MaxPages int `yaml:"max_pages"`

	// PrerenderBehind and PrerenderAhead size the window of pages
	// rendered proactively around the current page.
	PrerenderBehind int `yaml:"prerender_behind"`
	PrerenderAhead  int `yaml:"prerender_ahead"`
}

type ZoomConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`

	// Default is the zoom a freshly opened document starts at.
	Default float64 `yaml:"default"`
}

type RenderConfig struct {
	// Format selects raster or vector output.
	Format string `yaml:"format"`

	// Workers bounds concurrent prerender jobs.
	Workers int `yaml:"workers"`
}

type SearchConfig struct {
	// Concurrency bounds the parallel page sweep.
	Concurrency int `yaml:"concurrency"`
}

type OCRConfig struct {
	// Enabled turns on OCR fallback for pages with a poor text layer.
	// The tesseract binary must be installed.
	Enabled bool `yaml:"enabled"`

	// Languages are trained-data hints, e.g. ["eng", "deu"].
	Languages []string `yaml:"languages"`

	// PSM is the Tesseract page segmentation mode.
	PSM int `yaml:"psm"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration a zero-config embedder gets.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			MaxPages:        DefaultCachePages,
			PrerenderBehind: DefaultPrerenderBehind,
			PrerenderAhead:  DefaultPrerenderAhead,
		},
		Zoom: ZoomConfig{
			Min:     DefaultMinZoom,
			Max:     DefaultMaxZoom,
			Default: DefaultZoom,
		},
		Render: RenderConfig{
			Format:  FormatRaster,
			Workers: DefaultRenderWorkers,
		},
		Search: SearchConfig{
			Concurrency: DefaultSearchConcurrency,
		},
		OCR: OCRConfig{
			Languages: []string{"eng"},
			PSM:       3,
		},
		Limits: DefaultLimits(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate clamps out-of-range values to usable ones and rejects
// contradictory settings.
func (c *Config) Validate() error {
	if c.Cache.MaxPages < 1 {
		c.Cache.MaxPages = DefaultCachePages
	}
	if c.Cache.PrerenderBehind < 0 {
		c.Cache.PrerenderBehind = 0
	}
	if c.Cache.PrerenderAhead < 0 {
		c.Cache.PrerenderAhead = 0
	}

	if c.Zoom.Min <= 0 {
		c.Zoom.Min = DefaultMinZoom
	}
	if c.Zoom.Max <= 0 {
		c.Zoom.Max = DefaultMaxZoom
	}
	if c.Zoom.Min > c.Zoom.Max {
		return fmt.Errorf("zoom: min %.2f exceeds max %.2f", c.Zoom.Min, c.Zoom.Max)
	}
	if c.Zoom.Default <= 0 {
		c.Zoom.Default = DefaultZoom
	}
	if c.Zoom.Default < c.Zoom.Min {
		c.Zoom.Default = c.Zoom.Min
	}
	if c.Zoom.Default > c.Zoom.Max {
		c.Zoom.Default = c.Zoom.Max
	}

	switch c.Render.Format {
	case "":
		c.Render.Format = FormatRaster
	case FormatRaster, FormatVector:
	default:
		return fmt.Errorf("render: unknown format %q", c.Render.Format)
	}
	if c.Render.Workers < 1 {
		c.Render.Workers = DefaultRenderWorkers
	}

	if c.Search.Concurrency < 1 {
		c.Search.Concurrency = DefaultSearchConcurrency
	}

	if len(c.OCR.Languages) == 0 {
		c.OCR.Languages = []string{"eng"}
	}
	if c.OCR.PSM < 0 || c.OCR.PSM > 13 {
		return fmt.Errorf("ocr: page segmentation mode %d out of range 0..13", c.OCR.PSM)
	}

	c.Limits.fill()

	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "":
		c.Logging.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}

// SlogLevel maps the configured level onto log/slog. Call Validate first;
// unknown levels fall back to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
