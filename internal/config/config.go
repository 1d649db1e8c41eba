// Package config parses robotcore.toml configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Find.
const FileName = "robotcore.toml"

var routineNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Config is the top-level robotcore.toml configuration.
type Config struct {
	Looper    LooperConfig    `toml:"looper"`
	Executor  ExecutorConfig  `toml:"executor"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Routines  RoutinesConfig  `toml:"routines"`
}

// LooperConfig controls the enabled and disabled loopers.
type LooperConfig struct {
	Period     time.Duration `toml:"period"`
	OverrunLog bool          `toml:"overrun_log"`
}

// ExecutorConfig controls how routines are driven.
type ExecutorConfig struct {
	Mode   string        `toml:"mode"`   // "merged" or "dedicated"
	Period time.Duration `toml:"period"` // dedicated mode only; 0 = looper period
}

// TelemetryConfig controls logging and the event store.
type TelemetryConfig struct {
	Database  string `toml:"database"` // empty = no event store
	QueueSize int    `toml:"queue_size"`
	LogLevel  string `toml:"log_level"`
}

// RoutinesConfig locates routine definitions.
type RoutinesConfig struct {
	Dir     string `toml:"dir"`
	Default string `toml:"default"` // auto mode selected at startup; empty = do_nothing
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Looper: LooperConfig{
			Period:     20 * time.Millisecond,
			OverrunLog: true,
		},
		Executor: ExecutorConfig{
			Mode: "merged",
		},
		Telemetry: TelemetryConfig{
			Database:  "",
			QueueSize: 4096,
			LogLevel:  "info",
		},
		Routines: RoutinesConfig{
			Dir: "routines",
		},
	}
}

// Validate checks the configuration and returns every issue found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Looper.Period <= 0 {
		errs = append(errs, fmt.Errorf("looper.period must be > 0"))
	} else if c.Looper.Period > time.Second {
		errs = append(errs, fmt.Errorf("looper.period must be <= 1s, got %s", c.Looper.Period))
	}

	switch c.Executor.Mode {
	case "merged", "dedicated":
	default:
		errs = append(errs, fmt.Errorf("executor.mode must be \"merged\" or \"dedicated\", got %q", c.Executor.Mode))
	}
	if c.Executor.Period < 0 {
		errs = append(errs, fmt.Errorf("executor.period must be >= 0 (0 = looper period)"))
	}

	if c.Telemetry.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.queue_size must be > 0"))
	}
	if _, err := ParseLevel(c.Telemetry.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("telemetry.log_level: %w", err))
	}

	if c.Routines.Dir == "" {
		errs = append(errs, fmt.Errorf("routines.dir must not be empty"))
	}
	if c.Routines.Default != "" && !routineNameRe.MatchString(c.Routines.Default) {
		errs = append(errs, fmt.Errorf("routines.default %q is not a valid routine name", c.Routines.Default))
	}

	return errors.Join(errs...)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}

// Load reads the file at path over Defaults. Unknown keys are an error
// (likely typos). Relative routines.dir and telemetry.database paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s (possible typos?)", path, strings.Join(keys, ", "))
	}

	base := filepath.Dir(path)
	cfg.Routines.Dir = resolve(base, cfg.Routines.Dir)
	cfg.Telemetry.Database = resolve(base, cfg.Telemetry.Database)
	return &cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Find walks up from dir looking for robotcore.toml.
func Find(dir string) (string, bool) {
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Resolve loads the file at path, or the nearest robotcore.toml above the
// working directory when path is empty, or Defaults when there is none. The
// result is validated.
func Resolve(path string) (*Config, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: get working directory: %w", err)
		}
		found, ok := Find(wd)
		if !ok {
			cfg := Defaults()
			return &cfg, nil
		}
		path = found
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return cfg, nil
}

// InitFile writes a commented robotcore.toml template to dir.
func InitFile(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config: %s already exists at %s", FileName, path)
	}

	content := `# robotcore.toml

[looper]
period = "20ms"      # tick period of the enabled and disabled loopers
overrun_log = true   # warn on ticks that exceed the period

[executor]
mode = "merged"      # "merged": routines tick inside the enabled looper; "dedicated": own goroutine
period = "0s"        # dedicated mode only; 0 = looper period

[telemetry]
database = ""        # SQLite event log path; empty = no event store
queue_size = 4096    # events buffered ahead of the database writer
log_level = "info"   # debug, info, warn, error

[routines]
dir = "routines"     # directory of *.cue routine definitions
default = ""         # auto mode selected at startup; empty = do_nothing
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}
