// Package daemon wires the capture store, upload queue, sync orchestrator,
// and network watcher into a single-instance background process with a
// local HTTP control API.
package daemon
