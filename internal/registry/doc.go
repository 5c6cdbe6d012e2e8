// Package registry models forge projects and provides access to the project
// registry database.
//
// The registry is the source of truth for which projects exist, where their
// repositories live on local disk, and which distributed-service region (if
// any) a project has been migrated to. Region updates are staged in memory and
// flushed in a single batch so that no project is marked migrated unless the
// whole run persists successfully.
package registry
