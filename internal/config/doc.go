// Package config provides configuration management for the weekly pivot
// tools.
//
// Configuration is loaded from environment variables (W2W_* namespace) with
// an optional YAML file in the config directory filling in anything the
// environment leaves unset. The config directory follows the XDG base
// directory spec ($XDG_CONFIG_HOME/w2w or ~/.config/w2w) and can be
// overridden with W2W_CONFIG_DIR, which tests rely on.
//
// The same directory holds the persisted Withings OAuth token file.
package config
