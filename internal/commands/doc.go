// Package commands holds the built-in command sets a host can register.
//
// Sets are selected by id:
//   - core: echo
//   - workspace: documents, messages and terminals of a headless workspace
//   - kv: key-value state in the host store
package commands
