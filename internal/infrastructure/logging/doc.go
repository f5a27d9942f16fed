// Package logging provides structured logging for Homewatch Core.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components that log take a narrow interface (Debug/Info/Warn/Error) so
// *Logger can be passed directly and tests can substitute a no-op.
package logging
