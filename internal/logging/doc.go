// Package logging holds the process-wide zap logger shared by the volt
// packages, plus helpers for the events every front-end reports:
// connection open/close, one line per HTTP request and response, and
// WebSocket frame traffic with bounded hex dumps.
//
// Levels as used by the servers:
//
//	debug  frame headers, ping/pong, hex dumps, lagging diagnostics subscribers
//	info   listeners started and stopped, requests served, upgrades
//	warn   recovered handler panics, responses that could not be written
//	error  accept failures, record file write errors
//
// Call Initialize once from main:
//
//	if err := logging.Initialize(cfg.LogLevel); err != nil {
//		return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to VOLT_LOG_LEVEL. With neither set the logger
// discards everything, so libraries embedding the servers and package tests
// stay silent. InitializeToFile sends the same console format to a file
// while the terminal belongs to the live monitor.
package logging
