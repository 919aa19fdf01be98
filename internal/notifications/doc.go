// Package notifications delivers optional operator push notifications via
// ntfy. Distinct from the evidence service's analysis hook: these never
// influence the upload lifecycle.
package notifications
