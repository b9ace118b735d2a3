// Package command owns command registration and dispatch.
//
// Ownership boundary:
// - command table and lookup
// - argument validation before handler entry
// - per-context pipes handed to handlers
// - the built-in get-help catalogue
package command
