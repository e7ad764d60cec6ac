package missionseq

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	// ConfigEnv is the environment variable holding the directory of conf.toml.
	ConfigEnv = "MISSIONSEQ_CONFIG"
	envPrefix = "MISSIONSEQ"
)

var (
	cfgOnce   sync.Once
	cfgLoaded Config
	cfgErr    error
)

// ErrorNorm selects how the integration error of a step is normalized.
type ErrorNorm uint8

const (
	// NormNone does not normalize: the error is the largest absolute difference.
	NormNone ErrorNorm = iota
	// NormLargest normalizes by the largest component of the step change.
	NormLargest
	// NormRSS normalizes by the root sum square of the step change.
	NormRSS
)

func (n ErrorNorm) String() string {
	switch n {
	case NormNone:
		return "none"
	case NormLargest:
		return "largest"
	case NormRSS:
		return "rss"
	}
	panic("cannot stringify unknown error norm")
}

// ErrorNormFromString returns the norm from its name.
func ErrorNormFromString(name string) (ErrorNorm, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return NormNone, nil
	case "largest":
		return NormLargest, nil
	case "rss":
		return NormRSS, nil
	default:
		return NormNone, fmt.Errorf("%w: unknown error norm '%s'", ErrConfig, name)
	}
}

// PropagationConfig holds the integration settings.
type PropagationConfig struct {
	Step              time.Duration // nominal step of a propagation
	MinStep, MaxStep  time.Duration
	Accuracy          float64 // desired accuracy of adaptive steps
	MaxAttempts       int     // step attempts before an adaptive step fails
	Norm              ErrorNorm
	RelativeThreshold float64
}

// EventConfig holds the event location settings.
type EventConfig struct {
	Tolerance     float64
	MaxIterations int
	MinSeparation time.Duration
}

// LoggingConfig holds the log output settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// EphemerisConfig selects the source of the celestial body positions.
type EphemerisConfig struct {
	Source string // meeus or jpl
	File   string // path to a JPL DE binary file
}

// Config is the configuration of a run.
type Config struct {
	Propagation PropagationConfig
	Events      EventConfig
	Logging     LoggingConfig
	Ephemeris   EphemerisConfig
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() Config {
	return Config{
		Propagation: PropagationConfig{
			Step:              60 * time.Second,
			MinStep:           time.Millisecond,
			MaxStep:           2700 * time.Second,
			Accuracy:          1e-11,
			MaxAttempts:       50,
			Norm:              NormRSS,
			RelativeThreshold: 0.1,
		},
		Events: EventConfig{
			Tolerance:     1e-7,
			MaxIterations: 31,
			MinSeparation: time.Second,
		},
		Logging:   LoggingConfig{Level: "info", Format: "logfmt"},
		Ephemeris: EphemerisConfig{Source: "meeus"},
	}
}

// Validate returns an error if the configuration cannot be used for a run.
func (c Config) Validate() error {
	p := c.Propagation
	if p.Step <= 0 {
		return fmt.Errorf("%w: propagation step must be positive (got %s)", ErrConfig, p.Step)
	}
	if p.MinStep <= 0 || p.MaxStep < p.MinStep {
		return fmt.Errorf("%w: invalid step bounds [%s, %s]", ErrConfig, p.MinStep, p.MaxStep)
	}
	if p.Accuracy <= 0 {
		return fmt.Errorf("%w: accuracy must be positive (got %g)", ErrConfig, p.Accuracy)
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive (got %d)", ErrConfig, p.MaxAttempts)
	}
	e := c.Events
	if e.Tolerance <= 0 {
		return fmt.Errorf("%w: event tolerance must be positive (got %g)", ErrConfig, e.Tolerance)
	}
	if e.MaxIterations <= 0 {
		return fmt.Errorf("%w: event iterations must be positive (got %d)", ErrConfig, e.MaxIterations)
	}
	if e.MinSeparation < 0 {
		return fmt.Errorf("%w: event separation may not be negative", ErrConfig)
	}
	if src := strings.ToLower(c.Ephemeris.Source); src != "meeus" && src != "jpl" {
		return fmt.Errorf("%w: unknown ephemeris source '%s'", ErrConfig, c.Ephemeris.Source)
	}
	if strings.ToLower(c.Ephemeris.Source) == "jpl" && c.Ephemeris.File == "" {
		return fmt.Errorf("%w: JPL ephemeris requires ephemeris.file", ErrConfig)
	}
	return nil
}

// LoadConfig reads conf.toml (or any format viper supports) from the provided directory.
// Any key may be overridden by an environment variable, e.g. MISSIONSEQ_EVENTS_TOLERANCE.
func LoadConfig(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("conf")
	v.AddConfigPath(dir)
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("%w: %s/conf.toml: %s", ErrConfig, dir, err)
	}
	return FromViper(v)
}

// FromViper builds the configuration from an already loaded viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)
	norm, err := ErrorNormFromString(v.GetString("propagation.error_norm"))
	if err != nil {
		return Config{}, err
	}
	conf := Config{
		Propagation: PropagationConfig{
			Step:              v.GetDuration("propagation.step"),
			MinStep:           v.GetDuration("propagation.min_step"),
			MaxStep:           v.GetDuration("propagation.max_step"),
			Accuracy:          v.GetFloat64("propagation.accuracy"),
			MaxAttempts:       v.GetInt("propagation.max_attempts"),
			Norm:              norm,
			RelativeThreshold: v.GetFloat64("propagation.relative_threshold"),
		},
		Events: EventConfig{
			Tolerance:     v.GetFloat64("events.tolerance"),
			MaxIterations: v.GetInt("events.max_iterations"),
			MinSeparation: v.GetDuration("events.min_separation"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Ephemeris: EphemerisConfig{
			Source: v.GetString("ephemeris.source"),
			File:   v.GetString("ephemeris.file"),
		},
	}
	return conf, conf.Validate()
}

// Settings returns the configuration from the MISSIONSEQ_CONFIG directory, or the defaults if unset.
// The file is only read once.
func Settings() (Config, error) {
	cfgOnce.Do(func() {
		confPath := os.Getenv(ConfigEnv)
		if confPath == "" {
			cfgLoaded = DefaultConfig()
			return
		}
		cfgLoaded, cfgErr = LoadConfig(confPath)
	})
	return cfgLoaded, cfgErr
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("propagation.step", def.Propagation.Step)
	v.SetDefault("propagation.min_step", def.Propagation.MinStep)
	v.SetDefault("propagation.max_step", def.Propagation.MaxStep)
	v.SetDefault("propagation.accuracy", def.Propagation.Accuracy)
	v.SetDefault("propagation.max_attempts", def.Propagation.MaxAttempts)
	v.SetDefault("propagation.error_norm", def.Propagation.Norm.String())
	v.SetDefault("propagation.relative_threshold", def.Propagation.RelativeThreshold)
	v.SetDefault("events.tolerance", def.Events.Tolerance)
	v.SetDefault("events.max_iterations", def.Events.MaxIterations)
	v.SetDefault("events.min_separation", def.Events.MinSeparation)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("ephemeris.source", def.Ephemeris.Source)
}
