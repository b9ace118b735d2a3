// Package workspace is a headless editor and terminal host that donuts
// commands operate on.
//
// Ownership boundary:
// - open documents, their text and selections
// - terminal registry
// - user-facing message log
//
// Document edits are applied through one ordered queue per document.
package workspace
