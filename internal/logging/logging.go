package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/vadim/mention-tracker/internal/config"
)

// New constructs a slog.Logger writing to stdout according to cfg.
func New(cfg config.Logging) (*slog.Logger, error) {
	format := ResolveFormat(cfg.Format, isatty.IsTerminal(os.Stdout.Fd()))
	return NewWithWriter(os.Stdout, cfg.Level, format)
}

// NewWithWriter builds a logger for an explicit writer and format
func NewWithWriter(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

// ResolveFormat turns "auto" into text on a terminal and json otherwise
func ResolveFormat(format string, terminal bool) string {
	if format != "auto" && format != "" {
		return format
	}
	if terminal {
		return "text"
	}
	return "json"
}

// ParseLevel parses debug, info, warn or error
func ParseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return lvl, fmt.Errorf("unsupported log level: %s", level)
	}
	return lvl, nil
}
