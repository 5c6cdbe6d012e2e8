// Package migration implements the project migration workflow that moves
// forge projects from filesystem-backed git storage into a region of the
// distributed repository service.
//
// Each project runs through an ordered pipeline (create, push, prime,
// reconfigure) with independent failure handling per step, and the runner
// drives the pipeline across every registry project matching the requested
// name pattern, committing staged registry updates in one batch at the end.
package migration
