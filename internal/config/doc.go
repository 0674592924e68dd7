// Package config handles configuration loading for the orchestra gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	archive:
//	  path: "${ORCHESTRA_DATA_DIR}/archive.db"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  readiness_timeout: "5s"
//	  idle_ttl: "30m"
//	  reap_interval: "1m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8787"
//
// Worker process:
//
//	worker:
//	  command: "python3"
//	  args: ["-m", "orchestrator.session_runner"]
//
// Event archive:
//
//	archive:
//	  enabled: true
//	  path: "/var/lib/orchestra/archive.db"
//
// Policy rules override:
//
//	policy:
//	  rules_path: "/etc/orchestra/policy.toml"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
