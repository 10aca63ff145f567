// Package config loads and validates the semrelay connection configuration.
//
// Sources are layered, lowest precedence first:
//
//  1. built-in defaults (ingest URL, timeout, batch size, reconnect interval)
//  2. the current workspace profile from ~/.semrelay/workspaces.toml
//  3. configuration files (.semrelayrc, .semrelayrc.json, .semrelayrc.yaml, .semrelayrc.yml)
//  4. SEMRELAY_* environment variables
//
// JSON files may contain comments. Duration fields accept strings such as "5s".
//
//	cfg, err := config.Resolve(config.Options{File: path})
//	if err != nil {
//		return err // always fatal
//	}
//
// The resulting *Config is treated as immutable and passed to every component that
// needs it; there is no package-level configuration state.
package config
