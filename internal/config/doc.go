// Package config defines the hub's configuration: default values with
// their rationale, the flat Config struct populated from flags and the
// optional YAML file, and validation that fails fast before any worker
// starts.
package config
