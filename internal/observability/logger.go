package observability

import (
	"io"

	"github.com/danmuck/donuts/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures runtime logging and returns the app-scoped logger.
// The client passes stderr so stdout stays reserved for command output.
func InitLogger(app string, out io.Writer) zerolog.Logger {
	logging.ConfigureRuntime()
	cfg := logging.Current()
	cfg.Out = out
	logger := logging.New(cfg).With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
