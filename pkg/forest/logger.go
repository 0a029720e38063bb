package forest

import (
	"fmt"
	"log/slog"
)

// Logger is the per-index diagnostic sink. The zero value (NopLogger)
// discards everything; callers that want visibility into splits supply
// SlogLogger instead. Only AddItem's splits are logged; Create takes no
// Logger and writes its roots without logging. This is deliberately not a
// process-global logger — each Index owns its own.
type Logger interface {
	Splitf(format string, args ...any)
}

// NopLogger discards every message; it is the default for an Index that
// never configures a Logger.
type NopLogger struct{}

func (NopLogger) Splitf(string, ...any) {}

// SlogLogger forwards split diagnostics to a *slog.Logger at Debug level,
// grounded on shruggr-inspiration's p2p.SlogAdapter wrapping idiom.
type SlogLogger struct {
	L *slog.Logger
}

func (s SlogLogger) Splitf(format string, args ...any) {
	if s.L == nil {
		return
	}
	s.L.Debug(fmt.Sprintf(format, args...))
}
