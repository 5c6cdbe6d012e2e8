// Package spanner provides the client used to create project repositories in
// the distributed repository service.
//
// Creation is the only call this tool makes to the service directly; all other
// traffic flows through the bridge helper. Requests authenticate with the same
// per-region, per-kind TLS client certificates the bridge uses, resolved fresh
// for every call.
package spanner
