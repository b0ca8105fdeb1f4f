package cli

import (
	"fmt"
	"io"

	"github.com/hupe1980/agentflow/config"
	"github.com/hupe1980/agentflow/logging"
)

// newLogger builds the logger selected by log.backend. The returned func
// flushes buffered entries.
func newLogger(cfg config.LogConfig, w io.Writer) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case "zap":
		z, err := logging.NewZapLogger(level, cfg.Format)
		if err != nil {
			return nil, nil, err
		}
		return z, func() { _ = z.Sync() }, nil
	case "", "slog":
		l := logging.NewLogger(&logging.LoggerConfig{
			Level:     level,
			Format:    cfg.Format,
			Output:    w,
			Component: "agentflow",
		})
		return l, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}
