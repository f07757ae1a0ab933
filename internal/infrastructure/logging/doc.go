// Package logging wraps log/slog into the hub's structured logger.
//
// Every record carries the service name and build version; components add a
// "component" attribute via With so one process's interleaved output stays
// filterable:
//
//	log := logging.New(cfg.Logging, version)
//	snapLog := log.With("component", "snapcast")
//	snapLog.Info("connected", "address", addr)
//
// Level, format (json or text) and destination (stdout or stderr) come from
// the logging section of config.yaml. Default() provides a fallback logger
// for startup code that runs before the configuration is loaded.
//
// Do not log credentials, tokens, or MQTT passwords.
package logging
