package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var output io.Writer = os.Stdout

// Init configures the global zerolog logger.
func Init(level string, pretty bool) {
	lvl := zerolog.InfoLevel
	if v := strings.TrimSpace(level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			lvl = parsed
		}
	}

	output = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// Writer is the sink shared with non-zerolog loggers.
func Writer() io.Writer {
	return output
}
