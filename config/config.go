// Package config loads pipeline tuning from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline tuning document.
type Config struct {
	Cache   Cache   `yaml:"cache"`
	Control Control `yaml:"control"`
	Sched   Sched   `yaml:"sched"`
}

// Cache tunes the chunk cache manager.
type Cache struct {
	Capacity     int `yaml:"capacity"`
	Shards       int `yaml:"shards"`
	TTLSeconds   int `yaml:"ttl_seconds"`
	LoadParallel int `yaml:"load_parallel"`
}

// TTL returns the configured entry TTL.
func (c Cache) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

// Control tunes the concurrency controller.
type Control struct {
	Min                  int     `yaml:"min_parallelism"`
	Max                  int     `yaml:"max_parallelism"`
	Initial              int     `yaml:"initial_parallelism"`
	HighCPU              float64 `yaml:"high_cpu"`
	LowCPU               float64 `yaml:"low_cpu"`
	HighMem              float64 `yaml:"high_mem"`
	LowMem               float64 `yaml:"low_mem"`
	MaxConsecutiveRaises int     `yaml:"max_consecutive_raises"`
	SampleIntervalMs     int     `yaml:"sample_interval_ms"`
}

// SampleInterval returns the feedback cadence.
func (c Control) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMs) * time.Millisecond
}

// Sched tunes the batch scheduler.
type Sched struct {
	MaxPasses int `yaml:"max_passes"`
}

// Default returns the tuning used when no file is supplied.
func Default() Config {
	return Config{
		Cache: Cache{
			Capacity:   4096,
			TTLSeconds: 60,
		},
		Control: Control{
			Min:              1,
			Max:              8,
			Initial:          4,
			SampleIntervalMs: 500,
		},
		Sched: Sched{
			MaxPasses: 4,
		},
	}
}

// Load reads and validates a YAML tuning file. Unset fields fall back to
// Default() values.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("config: cache.capacity must be > 0")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config: cache.ttl_seconds must be >= 0")
	}
	if c.Control.Min < 1 {
		return fmt.Errorf("config: control.min_parallelism must be >= 1")
	}
	if c.Control.Max < c.Control.Min {
		return fmt.Errorf("config: control.max_parallelism must be >= min_parallelism")
	}
	if c.Control.Initial != 0 && (c.Control.Initial < c.Control.Min || c.Control.Initial > c.Control.Max) {
		return fmt.Errorf("config: control.initial_parallelism must be within [min, max]")
	}
	for _, t := range []struct {
		name string
		v    float64
	}{
		{"high_cpu", c.Control.HighCPU},
		{"low_cpu", c.Control.LowCPU},
		{"high_mem", c.Control.HighMem},
		{"low_mem", c.Control.LowMem},
	} {
		if t.v < 0 || t.v > 1 {
			return fmt.Errorf("config: control.%s must be in [0,1]", t.name)
		}
	}
	if c.Sched.MaxPasses < 1 {
		return fmt.Errorf("config: sched.max_passes must be >= 1")
	}
	return nil
}
