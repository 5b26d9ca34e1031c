// Package config loads runtime configuration from the environment.
//
// Every tunable has a default; the zero-configuration case runs the
// governor against a local simulator with the catalog defaults. Values
// are parsed once at startup into an immutable Config. A malformed
// value is a config error and the process exits with code 1 rather
// than running with a silently-substituted default.
package config
