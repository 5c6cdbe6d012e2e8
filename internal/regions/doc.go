// Package regions resolves per-region connection details and TLS credentials
// for the distributed repository service.
//
// Credentials are described by a standalone YAML manifest, kept outside the
// tool configuration so operators can rotate certificates without touching
// repomigrate settings. Resolution is a pure lookup performed fresh for every
// push, clone, and creation call; resolved bundles must never be cached across
// operations.
package regions
