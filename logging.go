package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
	colorCyan
	colorWhite

	colorBold     = 1
	colorDarkGray = 90
)

func colorize(s interface{}, c int, disabled bool) string {
	if disabled {
		return fmt.Sprint(s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// lockedWriter serializes writes so log lines from different goroutines
// never interleave.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

var stdoutMu sync.Mutex

func levelFormatter(noColor bool) zerolog.Formatter {
	return func(i interface{}) string {
		ll, ok := i.(string)
		if !ok {
			if i == nil {
				return "| " + colorize("???  ", colorBold, noColor) + " |"
			}
			return "| " + strings.ToUpper(fmt.Sprintf("%-5s", i))[0:5] + " |"
		}

		var l string
		switch ll {
		case zerolog.LevelTraceValue:
			l = colorize("TRACE", colorMagenta, noColor)
		case zerolog.LevelDebugValue:
			l = colorize("DEBUG", colorYellow, noColor)
		case zerolog.LevelInfoValue:
			l = colorize("INFO ", colorGreen, noColor)
		case zerolog.LevelWarnValue:
			l = colorize("WARN ", colorRed, noColor)
		case zerolog.LevelErrorValue, zerolog.LevelFatalValue, zerolog.LevelPanicValue:
			l = colorize(colorize(strings.ToUpper(ll), colorRed, noColor), colorBold, noColor)
		default:
			l = colorize(ll, colorBold, noColor)
		}
		return "| " + l + " |"
	}
}

// InitializeLogger points the global logger at a colored console writer.
// NO_COLOR in the environment turns colors off.
func InitializeLogger() {
	noColor := os.Getenv("NO_COLOR") != ""

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	output := zerolog.ConsoleWriter{
		Out:         lockedWriter{mu: &stdoutMu, w: colorable.NewColorable(os.Stdout)},
		TimeFormat:  time.RFC3339,
		NoColor:     noColor,
		FormatLevel: levelFormatter(noColor),
	}

	log.Logger = log.Output(output)
}

// SetLogLevel applies a level name from config or flags.
func SetLogLevel(name string) error {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, name)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// Copied from https://github.com/ironstar-io/chizerolog
func LoggerMiddleware(logger *zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			log := logger.With().Str("component", "http").Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			defer func() {
				t2 := time.Now()

				// Recover and record stack traces in case of a panic
				if rec := recover(); rec != nil {
					log.Error().
						Interface("recover_info", rec).
						Bytes("debug_stack", debug.Stack()).
						Msg("HTTP endpoint panic")

					http.Error(ww, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}

				// log end request
				log.Info().
					Str("type", "access").
					Timestamp().
					Fields(map[string]interface{}{
						"remote_ip":  r.RemoteAddr,
						"url":        r.URL.Path,
						"proto":      r.Proto,
						"method":     r.Method,
						"user_agent": r.Header.Get("User-Agent"),
						"status":     ww.Status(),
						"latency_ms": float64(t2.Sub(t1).Nanoseconds()) / 1000000.0,
						"bytes_in":   r.Header.Get("Content-Length"),
						"bytes_out":  ww.BytesWritten(),
					}).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
