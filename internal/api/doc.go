// Package api is the HTTP client for the remote evidence service: the
// two-phase upload protocol (issue target, transfer bytes, register the
// record) plus the best-effort analysis hook and the connectivity probe.
package api
