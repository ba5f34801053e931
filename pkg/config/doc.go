// Package config holds the coordinator's configuration: listener
// addresses and channel capacities, loadable from YAML with
// environment overrides.
package config
