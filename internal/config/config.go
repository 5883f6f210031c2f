// Package config loads and validates engine runtime options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Affinity steers which CPUs a worker prefers, per the topology table.
type Affinity string

const (
	AffinityNone          Affinity = "none"
	AffinityComputeBound  Affinity = "compute_bound"
	AffinityMemoryBound   Affinity = "memory_bound"
)

// Locality bounds how far a worker may roam from its assigned CPU slot.
type Locality string

const (
	LocalityGlobal Locality = "global"
	LocalitySocket Locality = "socket"
	LocalityNuma   Locality = "numa"
	LocalityCore   Locality = "core"
	LocalityCPU    Locality = "cpu"
)

// BackoffStrategy selects the retry curve a worker uses after ComeBackLater.
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// ArrowSettings holds the per-arrow knobs named in the configuration table.
type ArrowSettings struct {
	ChunkSize       int             `yaml:"chunk_size"`
	BackoffStrategy BackoffStrategy `yaml:"backoff_strategy"`
	BackoffTries    int             `yaml:"backoff_tries"`
	InitialBackoff  time.Duration   `yaml:"initial_backoff"`
	CheckinTime     time.Duration   `yaml:"checkin_time"`
}

// Settings is the full engine configuration tree, loaded from YAML with
// defaults and environment-variable overrides layered on top, mirroring
// the teacher's Default()/FromEnv()/Option/Apply pattern.
type Settings struct {
	NWorkers          int                      `yaml:"n_workers"`
	MaxInflightEvents int                      `yaml:"max_inflight_events"`
	Affinity          Affinity                 `yaml:"affinity"`
	Locality          Locality                 `yaml:"locality"`
	WarmupTimeout     time.Duration            `yaml:"warmup_timeout"`
	SteadyTimeout     time.Duration            `yaml:"steady_timeout"`
	NEvents           int64                    `yaml:"nevents"`
	NSkip             int64                    `yaml:"nskip"`
	Autoactivate      string                   `yaml:"autoactivate"`
	Arrows            map[string]ArrowSettings `yaml:"arrows"`
}

// Default returns the engine's baked-in configuration.
func Default() Settings {
	return Settings{
		NWorkers:          0, // 0 means "one per discovered CPU"
		MaxInflightEvents: 0, // 0 means "2x NWorkers", resolved at engine build time
		Affinity:          AffinityNone,
		Locality:          LocalityGlobal,
		WarmupTimeout:     30 * time.Second,
		SteadyTimeout:     8 * time.Second,
		NEvents:           0, // 0 means unbounded
		NSkip:             0,
		Autoactivate:      "",
		Arrows:            make(map[string]ArrowSettings),
	}
}

// Load reads a YAML configuration file over the defaults. A missing path
// is not an error: callers get Default() back.
func Load(path string) (Settings, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Arrows == nil {
		cfg.Arrows = make(map[string]ArrowSettings)
	}
	return cfg, nil
}

// FromEnv overlays JANAFLOW_* environment variables onto base.
func FromEnv(base Settings) Settings {
	cfg := base.clone()
	if v := strings.TrimSpace(os.Getenv("JANAFLOW_NWORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NWorkers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("JANAFLOW_NEVENTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.NEvents = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("JANAFLOW_NSKIP")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.NSkip = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("JANAFLOW_AFFINITY")); v != "" {
		cfg.Affinity = Affinity(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("JANAFLOW_LOCALITY")); v != "" {
		cfg.Locality = Locality(strings.ToLower(v))
	}
	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies opts to a copy of base.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithNWorkers overrides the worker pool size.
func WithNWorkers(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.NWorkers = n
		}
	}
}

// WithEventRange overrides the nskip/nevents window.
func WithEventRange(nskip, nevents int64) Option {
	return func(s *Settings) {
		if nskip >= 0 {
			s.NSkip = nskip
		}
		if nevents >= 0 {
			s.NEvents = nevents
		}
	}
}

// WithArrow overrides or inserts one arrow's settings.
func WithArrow(name string, settings ArrowSettings) Option {
	name = strings.TrimSpace(name)
	return func(s *Settings) {
		if name == "" {
			return
		}
		if s.Arrows == nil {
			s.Arrows = make(map[string]ArrowSettings)
		}
		s.Arrows[name] = settings
	}
}

// Arrow returns the settings for a named arrow, falling back to a
// conservative default (chunk size 1, exponential backoff) when unset.
func (s Settings) Arrow(name string) ArrowSettings {
	if cfg, ok := s.Arrows[name]; ok {
		return cfg
	}
	return ArrowSettings{
		ChunkSize:       1,
		BackoffStrategy: BackoffExponential,
		BackoffTries:    4,
		InitialBackoff:  time.Millisecond,
		CheckinTime:     500 * time.Millisecond,
	}
}

func (s Settings) clone() Settings {
	out := s
	out.Arrows = make(map[string]ArrowSettings, len(s.Arrows))
	for k, v := range s.Arrows {
		out.Arrows[k] = v
	}
	return out
}
