// Package log provides structured logging for SimpleGym using zerolog.
//
// The package wraps zerolog with a simple configuration interface and
// component-scoped child loggers. Call Init once at startup (or InitWorker
// inside a worker subprocess, which forces JSON output on stderr so the
// stdio IPC pipe stays clean), then use the global Logger or the WithX
// helpers:
//
//	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
//	logger := log.WithComponent("router")
//	logger.Info().Int("worker_id", 3).Msg("worker ready")
package log
