package config

// Window defaults.
const (
	DefaultStartDate = "2022-01-01"
)

// Tracker vocabulary defaults.
const (
	DefaultComponent    = "Untriaged"
	DefaultNeedinfoFlag = "needinfo"
	DefaultFlagField    = "flagtypes.name"
)

// DefaultTypes and DefaultUnsetSeverities are slice defaults; callers must not mutate them.
var (
	DefaultTypes           = []string{"defect"}
	DefaultUnsetSeverities = []string{"n/a", "--"}
)

// Pipeline and source defaults.
const (
	DefaultFaultPolicy   = "abort"
	DefaultMaxRecordSize = "64MB"
	DefaultValidate      = true
)

// Output defaults.
const (
	DefaultOutputFormat = FormatText
	DefaultTheme        = ThemeDark
	DefaultTextRows     = 14
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
	FormatPlot = "plot"
)

// Plot themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)
