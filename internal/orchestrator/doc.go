// Package orchestrator decides when the upload queue runs. Triggers carry
// a reason (startup, manual, network restored, app foregrounded, review
// opened, photo captured); each reason has its own throttle window and
// captures are debounced so a burst syncs once. Syncs while offline are
// deferred until connectivity returns.
package orchestrator
