// Package config handles configuration loading for hub-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Every optional field has a default, so a file naming only the
// snapshot path is a complete configuration.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HUB_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/hub-gateway/config.yaml
//  3. ~/.config/hub-gateway/config.yaml
//
// Files ending in .toml are decoded with BurntSushi/toml; anything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${HUB_DATA_DIR}/hub.db"
//
// Unset variables expand to the empty string. HUB_DB_PATH, when set,
// overrides database.path after the file is decoded.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  read_header_timeout: "10s"
//	  request_timeout: "30s"
//
// # Configuration Sections
//
//   - server: listen address, external base URL, timeouts
//   - database: snapshot path, SQLite driver, hot-swap watch
//   - hub: public hub site URL used for docs and logo links
//   - compression: minimum body size and zstd/gzip levels
//   - rate_limit: optional per-client token bucket
//   - logging: log level and format
//
// # Validation
//
// Validate checks required fields and ranges and reports the first failure.
// Load calls it before returning.
package config
