// Package config provides the volt server configuration file.
//
// The configuration is a YAML file that selects ports, reader limits,
// diagnostics retention and mDNS advertisement. The file follows OS-specific
// conventions for its location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/volt/config.yaml or $HOME/.config/volt/config.yaml
//   - macOS: $HOME/.config/volt/config.yaml
//   - Windows: %LOCALAPPDATA%\volt\config.yaml
//
// # Example
//
//	version: 1
//	log_level: info
//	http:
//	    enabled: true
//	    port: 8080
//	websocket:
//	    enabled: true
//	    port: 8081
//	    strict_framing: false
//	reader:
//	    buffer_size: 262144
//	    line_timeout: 15s
//	diagnostics:
//	    history: 256
//	    record_dir: /var/log/volt
//	discovery:
//	    advertise: true
//
// Sections missing from the file take their default values. Saves are
// atomic (write to a temporary file, then rename).
package config
