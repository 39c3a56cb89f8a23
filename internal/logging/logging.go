// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w. Format "auto" picks the text formatter
// on a terminal and JSON otherwise.
func New(w io.Writer, level, format string) (*logrus.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)

	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "", "auto":
		if IsTerminal(w) {
			logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
		} else {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return logger, nil
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
