package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process logger. Format "console" gives the human readable
// writer, anything else emits JSON lines.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
			},
			FormatFieldName: func(i interface{}) string {
				return fmt.Sprintf("%s=", i)
			},
		}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "nl2sql-tool").Logger()
}
