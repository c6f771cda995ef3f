// Package config loads and validates the busbridge daemon configuration
// from YAML. Permission rules are validated structurally against a JSON
// schema before they are handed to the bridge, so a malformed rules file
// fails fast at startup instead of silently matching nothing.
package config
