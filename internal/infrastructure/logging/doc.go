// Package logging provides structured logging for the G32 bridge.
//
// It wraps log/slog with the bridge's default fields (service, version)
// and the JSON or text handler selected in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("manager").Info("grill enabled", "serial", serial)
//
// Never log account passwords, pop keys or access tokens; use Redact for
// identifiers that must appear.
package logging
