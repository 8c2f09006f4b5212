// Package config provides configuration loading and validation for bugflow.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/tracker"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

// Sentinel validation errors.
var (
	ErrInvalidStartDate    = errors.New("invalid window start date")
	ErrInvalidFaultPolicy  = errors.New("invalid fault policy")
	ErrInvalidRecordSize   = errors.New("invalid max record size")
	ErrInvalidOutputFormat = errors.New("invalid output format")
	ErrInvalidTheme        = errors.New("invalid output theme")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidLogFormat    = errors.New("invalid log format")
	ErrEmptyVocabulary     = errors.New("tracker vocabulary value must not be empty")
)

const (
	configName = "bugflow"
	configType = "yaml"
	envPrefix  = "BUGFLOW"
)

// Config holds all configuration for a bugflow run.
type Config struct {
	Window    WindowConfig    `mapstructure:"window"`
	Selection SelectionConfig `mapstructure:"selection"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Source    SourceConfig    `mapstructure:"source"`
	Output    OutputConfig    `mapstructure:"output"`
	Store     StoreConfig     `mapstructure:"store"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// WindowConfig bounds the processing window.
type WindowConfig struct {
	// StartDate is an ISO date. Records last changed before it are background population.
	StartDate string `mapstructure:"start_date"`
}

// SelectionConfig narrows the loaded records.
type SelectionConfig struct {
	Types    []string `mapstructure:"types"`
	Products []string `mapstructure:"products"`
}

// TrackerConfig holds tracker-specific field values.
type TrackerConfig struct {
	DefaultComponent string   `mapstructure:"default_component"`
	UnsetSeverities  []string `mapstructure:"unset_severities"`
	NeedinfoFlag     string   `mapstructure:"needinfo_flag"`
	FlagField        string   `mapstructure:"flag_field"`
}

// PipelineConfig holds pipeline behavior settings.
type PipelineConfig struct {
	FaultPolicy string `mapstructure:"fault_policy"`
}

// SourceConfig holds record file decoding settings.
type SourceConfig struct {
	// MaxRecordSize uses humanize format (e.g. "64MB", "1GiB").
	MaxRecordSize string `mapstructure:"max_record_size"`
	Validate      bool   `mapstructure:"validate"`
}

// OutputConfig holds rendering settings.
type OutputConfig struct {
	Format string `mapstructure:"format"`
	Theme  string `mapstructure:"theme"`
	// Rows is the number of trailing snapshots in text output.
	Rows int `mapstructure:"rows"`
}

// StoreConfig holds result store settings. An empty DSN disables the store.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig holds metrics export settings. An empty Textfile disables export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OTLP export settings.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	Environment  string `mapstructure:"environment"`
}

// LoadConfig loads configuration from file and environment variables.
// If configPath is empty, bugflow.yaml is searched in the working directory,
// ./config and /etc/bugflow; a missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType(configType)
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/bugflow")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := Validate(&config)
	if validateErr != nil {
		return nil, validateErr
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("window.start_date", DefaultStartDate)

	viperCfg.SetDefault("selection.types", DefaultTypes)
	viperCfg.SetDefault("selection.products", []string{})

	viperCfg.SetDefault("tracker.default_component", DefaultComponent)
	viperCfg.SetDefault("tracker.unset_severities", DefaultUnsetSeverities)
	viperCfg.SetDefault("tracker.needinfo_flag", DefaultNeedinfoFlag)
	viperCfg.SetDefault("tracker.flag_field", DefaultFlagField)

	viperCfg.SetDefault("pipeline.fault_policy", DefaultFaultPolicy)

	viperCfg.SetDefault("source.max_record_size", DefaultMaxRecordSize)
	viperCfg.SetDefault("source.validate", DefaultValidate)

	viperCfg.SetDefault("output.format", DefaultOutputFormat)
	viperCfg.SetDefault("output.theme", DefaultTheme)
	viperCfg.SetDefault("output.rows", DefaultTextRows)

	viperCfg.SetDefault("store.dsn", "")
	viperCfg.SetDefault("metrics.textfile", "")

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.environment", "")
}

// Validate checks config after overrides have been applied.
func Validate(config *Config) error {
	err := validateConfig(config)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

func validateConfig(config *Config) error {
	_, err := config.Start()
	if err != nil {
		return err
	}

	_, err = series.ParseFaultPolicy(config.Pipeline.FaultPolicy)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidFaultPolicy, config.Pipeline.FaultPolicy)
	}

	_, err = config.MaxRecordBytes()
	if err != nil {
		return err
	}

	if !slices.Contains([]string{FormatJSON, FormatYAML, FormatText, FormatPlot}, config.Output.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidOutputFormat, config.Output.Format)
	}

	if config.Output.Theme != ThemeDark && config.Output.Theme != ThemeLight {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, config.Output.Theme)
	}

	_, err = config.LogLevel()
	if err != nil {
		return err
	}

	if config.Logging.Format != "text" && config.Logging.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Tracker.DefaultComponent == "" || config.Tracker.NeedinfoFlag == "" || config.Tracker.FlagField == "" {
		return ErrEmptyVocabulary
	}

	return nil
}

// Start returns the window start as a UTC midnight.
func (c *Config) Start() (time.Time, error) {
	start, err := time.Parse(time.DateOnly, c.Window.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidStartDate, c.Window.StartDate)
	}

	return start, nil
}

// MaxRecordBytes parses the source record size limit.
func (c *Config) MaxRecordBytes() (int, error) {
	size, err := humanize.ParseBytes(c.Source.MaxRecordSize)
	if err != nil || size == 0 || size > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRecordSize, c.Source.MaxRecordSize)
	}

	return int(size), nil
}

// LogLevel parses the configured slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Logging.Level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return level, nil
}

// Vocabulary returns the tracker vocabulary for the stage rules.
func (c *Config) Vocabulary() workflow.Vocabulary {
	return workflow.Vocabulary{
		DefaultComponent: c.Tracker.DefaultComponent,
		UnsetSeverities:  slices.Clone(c.Tracker.UnsetSeverities),
		NeedinfoFlag:     c.Tracker.NeedinfoFlag,
		FlagField:        c.Tracker.FlagField,
	}
}

// RecordSelection returns the record selection.
func (c *Config) RecordSelection() tracker.Selection {
	return tracker.Selection{
		Types:    slices.Clone(c.Selection.Types),
		Products: slices.Clone(c.Selection.Products),
	}
}

// LoadOptions returns the record source options.
func (c *Config) LoadOptions() (tracker.LoadOptions, error) {
	size, err := c.MaxRecordBytes()
	if err != nil {
		return tracker.LoadOptions{}, err
	}

	return tracker.LoadOptions{MaxRecordSize: size, Validate: c.Source.Validate}, nil
}

// PipelineOptions returns pipeline options with records last changed before
// the window start folded into the background population.
func (c *Config) PipelineOptions(logger *slog.Logger) (series.Options, error) {
	start, err := c.Start()
	if err != nil {
		return series.Options{}, err
	}

	policy, err := series.ParseFaultPolicy(c.Pipeline.FaultPolicy)
	if err != nil {
		return series.Options{}, err
	}

	return series.Options{
		Vocabulary:  c.Vocabulary(),
		Background:  tracker.LastChangeBefore(start),
		Start:       start,
		FaultPolicy: policy,
		Logger:      logger,
	}, nil
}
