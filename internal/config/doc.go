// Package config holds the ipchanger configuration: defaults, the optional
// YAML file, environment overrides and validation.
package config
