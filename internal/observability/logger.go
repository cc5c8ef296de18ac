package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gridmesh/internal/logging"
)

// InitLogger configures the process-wide logger and returns it tagged with
// the application name.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	cfg := logging.Active()

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor,
	}
	builder := zerolog.New(output).With().Str("app", app)
	if cfg.Timestamp {
		builder = builder.Timestamp()
	}
	logger := builder.Logger()
	log.Logger = logger
	return logger
}
