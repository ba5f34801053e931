/*
Package log provides Dockhand's structured logging built on zerolog.

Init configures the global logger once at process start (console writer
for interactive use, JSON for machine consumption). Components derive
child loggers with WithComponent / WithNodeID so every line carries its
origin:

	logger := log.WithComponent("session")
	logger.Info().Str("node_id", id).Msg("node authenticated")

Log levels follow the usual debug/info/warn/error ladder; the level is
set globally through Config.Level.
*/
package log
