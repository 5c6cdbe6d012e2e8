// Package mirror maintains the local read-optimized mirror directories for
// migrated repositories.
//
// Mirrors are disposable caches, never a source of truth. Fresh mirrors are
// cloned into a staging sibling and installed with a stage-then-rename swap so
// the live directory is never missing or half-written; a stale ".old" sibling
// from an interrupted swap is surfaced to the operator instead of being
// silently overwritten.
package mirror
