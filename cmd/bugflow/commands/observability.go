package commands

import (
	"io"
	"os"

	"github.com/Sumatoshi-tech/bugflow/pkg/config"
	"github.com/Sumatoshi-tech/bugflow/pkg/observability"
	"github.com/Sumatoshi-tech/bugflow/pkg/version"
)

// observabilityConfig maps the application configuration onto the
// observability layer. OTLP headers come from the standard OTel variable.
func observabilityConfig(cfg *config.Config, mode observability.AppMode) (observability.Config, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return observability.Config{}, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obsCfg.MetricsTextfile = cfg.Metrics.Textfile
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.Format == "json"

	return obsCfg, nil
}

func initObservability(cfg *config.Config, mode observability.AppMode, logOut io.Writer) (observability.Providers, error) {
	obsCfg, err := observabilityConfig(cfg, mode)
	if err != nil {
		return observability.Providers{}, err
	}

	return observability.InitWithWriter(obsCfg, logOut)
}
