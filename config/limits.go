package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" as well as integer nanoseconds.
type Duration time.Duration

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Any scalar decodes into a string under yaml.v3, so the integer form is
// tried first.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	return fmt.Errorf("line %d: cannot parse duration", node.Line)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Limits bounds per-page resource use so one hostile or degenerate
// document cannot exhaust the host.
type Limits struct {
	// Maximum pixels a single render may produce. Default: 64 MiPx,
	// roughly a US Letter page at 16x zoom.
	MaxPixelsPerPage int64 `yaml:"max_pixels_per_page"`

	// Maximum runes of indexed text per page. Default: 1 Mi.
	MaxPageTextRunes int `yaml:"max_page_text_runes"`

	// Maximum wall time for one render, prerenders included.
	// Default: 30s.
	RenderTimeout Duration `yaml:"render_timeout"`
}

// DefaultLimits returns safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxPixelsPerPage: 64 << 20,
		MaxPageTextRunes: 1 << 20,
		RenderTimeout:    Duration(30 * time.Second),
	}
}

func (l *Limits) fill() {
	d := DefaultLimits()
	if l.MaxPixelsPerPage < 1 {
		l.MaxPixelsPerPage = d.MaxPixelsPerPage
	}
	if l.MaxPageTextRunes < 1 {
		l.MaxPageTextRunes = d.MaxPageTextRunes
	}
	if l.RenderTimeout <= 0 {
		l.RenderTimeout = d.RenderTimeout
	}
}
