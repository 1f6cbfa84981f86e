package explore

import (
	"fmt"
	"time"
)

// Options configures exploration.
type Options struct {
	// Revisions compared by the recorder
	RevA uint64 `yaml:"rev_a" toml:"rev_a"`
	RevB uint64 `yaml:"rev_b" toml:"rev_b" validate:"nefield=RevA"`

	// Limits
	MaxStates     int    `yaml:"max_states" toml:"max_states" validate:"gt=0"`         // Live states before forks are refused (default: 10000)
	MaxIterations int    `yaml:"max_iterations" toml:"max_iterations" validate:"gt=0"` // Steps before Run gives up (default: 1000000)
	MaxForkDepth  uint32 `yaml:"max_fork_depth" toml:"max_fork_depth"`                 // 0 = unlimited
	MaxPatchDepth int    `yaml:"max_patch_depth" toml:"max_patch_depth" validate:"gte=0"`

	// Merging
	EnableMerge        bool `yaml:"enable_merge" toml:"enable_merge"`
	DebugLogStateMerge bool `yaml:"debug_log_state_merge" toml:"debug_log_state_merge"`

	// Solver
	SolverTimeout Duration `yaml:"solver_timeout" toml:"solver_timeout" validate:"gte=0"` // 0 = no timeout

	// Logging configuration
	LogLevel      string `yaml:"log_level" toml:"log_level" validate:"omitempty,oneof=error warn warning info debug"`
	LogTimeFormat string `yaml:"log_time_format" toml:"log_time_format"` // strftime layout; "-" disables timestamps

	// CorpusDir stores divergent test cases when set.
	CorpusDir string `yaml:"corpus_dir" toml:"corpus_dir"`
}

// DefaultOptions returns the default configuration for exploration.
func DefaultOptions() Options {
	return Options{
		RevA:          0,
		RevB:          1,
		MaxStates:     10000,
		MaxIterations: 1000000,
		MaxPatchDepth: 8,
		EnableMerge:   false,
		SolverTimeout: Duration(30 * time.Second),
		LogLevel:      "warn",
	}
}

// Duration is a time.Duration read from text such as "1.5s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }
