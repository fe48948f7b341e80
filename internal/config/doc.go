// Package config handles configuration loading for flowkeeper.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Values a file leaves out keep the defaults from Default.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FLOWKEEPER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/flowkeeper/config.yaml
//  3. ~/.config/flowkeeper/config.yaml
//
// A path ending in .toml is decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	matrix:
//	  access_token: "${FLOWKEEPER_MATRIX_TOKEN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	flows:
//	  default_timeout: "1h"
//	  sweep_interval: "60s"
//	  gateway_timeout: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Flow lifecycle:
//
//	flows:
//	  default_timeout: "1h"        # idle time before a flow times out
//	  sweep_interval: "60s"        # how often idle flows are checked
//	  gateway_timeout: "10s"       # bound on each outbound chat call
//	  send_timeout_notice: true    # tell users when their flow timed out
//
// Redelivery suppression:
//
//	dedupe:
//	  enabled: true
//	  ttl: "10m"
//	  max_size: 10000
//
// Matrix connection (access token or password login):
//
//	matrix:
//	  homeserver: "https://matrix.org"
//	  user_id: "@flowbot:matrix.org"
//	  access_token: "${FLOWKEEPER_MATRIX_TOKEN}"
//	  username: ""                  # alternative to access_token
//	  password: ""
//	  recovery_key: ""              # enables E2EE cross-signing
//	  data_dir: ""                  # defaults to $XDG_DATA_HOME/flowkeeper
//
// Room handling:
//
//	bridge:
//	  allowed_rooms: []             # empty = all joined rooms
//	  command_prefix: "!flow"       # messages starting with it count as mentions
//	  typing_indicator: true
//
// Metrics:
//
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load validates durations, dedupe sizing, metrics and logging settings.
// MatrixConfig.Validate checks the homeserver URL and that either an access
// token with user ID or a username and password are present; only commands
// that connect to Matrix call it.
//
// # Usage
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
