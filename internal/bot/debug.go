package bot

import "sync/atomic"

// debugLoggingEnabled guards per-bot debug logs on the decision hot path,
// where checking the handler level on every call is too costly.
var debugLoggingEnabled atomic.Bool

// EnableDebugLogging toggles per-bot debug logging. Set once from main.
func EnableDebugLogging(enabled bool) {
	debugLoggingEnabled.Store(enabled)
}

// IsDebugEnabled reports whether per-bot debug logging is on.
//
//	if bot.IsDebugEnabled() {
//	    slog.Debug("decided", "bot", id, "requests", len(reqs))
//	}
func IsDebugEnabled() bool {
	return debugLoggingEnabled.Load()
}
