// Package render turns a pipeline result into its output formats: an HTML
// stacked area chart, a terminal table, and JSON or YAML documents.
package render

import "github.com/Sumatoshi-tech/bugflow/pkg/workflow"

// Theme represents a color theme for the plot page.
type Theme string

const (
	// ThemeLight is the light color theme.
	ThemeLight Theme = "light"
	// ThemeDark is the dark color theme.
	ThemeDark Theme = "dark"
)

// ThemeConfig holds the styling values of a theme.
type ThemeConfig struct {
	Background string

	ChartGrid      string
	ChartAxis      string
	ChartText      string
	ChartTextMuted string

	// Stages maps every plotted stage to its series color.
	Stages map[workflow.Stage]string
}

// GetThemeConfig returns the configuration for theme, defaulting to light.
func GetThemeConfig(theme Theme) ThemeConfig {
	if theme == ThemeDark {
		return darkTheme
	}

	return lightTheme
}

// Early stages are warm, late stages cool, resolved green.
var lightTheme = ThemeConfig{
	Background: "#fafaf9", // stone-50.

	ChartGrid:      "#e7e5e4", // stone-200.
	ChartAxis:      "#a8a29e", // stone-400.
	ChartText:      "#44403c", // stone-700.
	ChartTextMuted: "#78716c", // stone-500.

	Stages: map[workflow.Stage]string{
		workflow.NoComponent:      "#b91c1c", // red-700.
		workflow.Unconfirmed:      "#c2410c", // orange-700.
		workflow.Confirmed:        "#a16207", // amber-700.
		workflow.PendingNeedinfo:  "#be185d", // pink-700.
		workflow.AnsweredNeedinfo: "#7c3aed", // violet-600.
		workflow.Triaged:          "#4338ca", // indigo-700.
		workflow.Assigned:         "#0369a1", // sky-700.
		workflow.InReview:         "#0891b2", // cyan-600.
		workflow.Resolved:         "#15803d", // green-700.
	},
}

var darkTheme = ThemeConfig{
	Background: "#0c0a09", // stone-950.

	ChartGrid:      "#44403c", // stone-700.
	ChartAxis:      "#57534e", // stone-600.
	ChartText:      "#d6d3d1", // stone-300.
	ChartTextMuted: "#a8a29e", // stone-400.

	Stages: map[workflow.Stage]string{
		workflow.NoComponent:      "#ef4444", // red-500.
		workflow.Unconfirmed:      "#f97316", // orange-500.
		workflow.Confirmed:        "#f59e0b", // amber-500.
		workflow.PendingNeedinfo:  "#ec4899", // pink-500.
		workflow.AnsweredNeedinfo: "#8b5cf6", // violet-500.
		workflow.Triaged:          "#6366f1", // indigo-500.
		workflow.Assigned:         "#0ea5e9", // sky-500.
		workflow.InReview:         "#06b6d4", // cyan-500.
		workflow.Resolved:         "#22c55e", // green-500.
	},
}

// PlottedStages returns the stages shown in charts and tables, highest
// first. Nothing is the pre-creation state and is never shown.
func PlottedStages() []workflow.Stage {
	all := workflow.Stages()
	stages := make([]workflow.Stage, 0, len(all)-1)

	for i := len(all) - 1; i > 0; i-- {
		stages = append(stages, all[i])
	}

	return stages
}
