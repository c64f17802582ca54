/*
Package log provides structured logging for DepotGate using zerolog.

The package wraps zerolog behind a global logger initialized once via
log.Init, with child-logger helpers that attach DepotGate's namespace
coordinates (tenant, task, deliverable) to every line.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	stagingLog := log.WithComponent("staging")
	stagingLog.Info().
		Str("artifact_id", id).
		Int64("size_bytes", n).
		Msg("artifact staged")

JSON output is intended for production; console output for development.
Events below the configured threshold are discarded by zerolog at run time
without building the log line.
*/
package log
