// Package config provides configuration loading and validation for the
// telephony-to-realtime audio bridge. It handles YAML-based configuration
// with per-section struct validation.
package config
