// Package console is the log sink scripts and demos print through. Each
// call joins its arguments with spaces, the way console.log does, and
// writes one zerolog event at the matching level.
package console

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxLine bounds a single console line. Longer lines are cut at the last
// whole argument that fits.
const MaxLine = 255

type Console struct {
	logger zerolog.Logger
}

// New returns a console writing through the global logger.
func New() *Console {
	return NewWithLogger(log.With().Str("component", "console").Logger())
}

func NewWithLogger(logger zerolog.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) Log(args ...any) {
	c.write(zerolog.InfoLevel, args)
}

func (c *Console) Warn(args ...any) {
	c.write(zerolog.WarnLevel, args)
}

func (c *Console) Error(args ...any) {
	c.write(zerolog.ErrorLevel, args)
}

func (c *Console) write(level zerolog.Level, args []any) {
	line, truncated := Format(args...)
	if truncated {
		c.logger.Warn().Int("limit", MaxLine).Msg("Console line truncated")
	}
	c.logger.WithLevel(level).Msg(line)
}

// Format joins args with single spaces. Errors print their message and
// nil prints as "null".
func Format(args ...any) (string, bool) {
	var b strings.Builder
	for i, arg := range args {
		s := stringify(arg)
		extra := len(s)
		if i > 0 {
			extra++
		}
		if b.Len()+extra > MaxLine {
			return b.String(), true
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String(), false
}

func stringify(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "null"
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(arg)
}
