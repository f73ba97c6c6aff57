package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the application-wide structured logger.
var Logger zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.RFC3339,
}).With().Timestamp().Logger()

// InitLogger sets the global log level. Unknown level strings fall back to
// info.
func InitLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	Logger = Logger.Level(lvl)
}
