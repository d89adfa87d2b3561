package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json or console
	OutputPath string // stdout, stderr, or file path
}

// New builds a zerolog logger writing to cfg.OutputPath. Each returned logger
// carries a timestamp and the given service name.
func New(cfg Config, service string) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
		}
		level = l
	}

	var out io.Writer
	toFile := false
	switch cfg.OutputPath {
	case "stdout", "":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		file, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
		}
		out = file
		toFile = true
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: toFile}
	}

	l := zerolog.New(out).Level(level).With().Timestamp()
	if service != "" {
		l = l.Str("service", service)
	}
	return l.Logger(), nil
}
