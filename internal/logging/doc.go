// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// Loggers are plain [log/slog] loggers. Output is routed automatically:
//   - systemd journal when available (identifier "camnode")
//   - stdout when a terminal, pipe, or file is connected
//   - an in-memory ring buffer that backs the /api/logs/stream endpoint;
//     entries are numbered so a reconnecting client can resume with ?since=
//
// # Usage
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"stream":    "debug",
//			"discovery": "warn",
//		},
//	})
//
// Get a logger for your module and add context:
//
//	logger := logging.GetLogger("stream").With("camera_id", id)
//	logger.Info("Stream started", "source", "automatic")
//
// Every module logger is backed by a [slog.LevelVar], so [ApplyLevels] and
// [SetModuleLevel] change levels of loggers that were already handed out.
// The config watcher uses this to apply edits of the [logging] section
// without a restart.
//
// # Viewing Logs
//
//	journalctl -t camnode -f
//	journalctl -t camnode MODULE=stream CAMERA_ID=cam0
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	stream = "debug"
//	api = "warn"
package logging
