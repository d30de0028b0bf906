// Package integration runs the sync daemon end to end against scripted
// upstream servers: adaptive intervals, error backoff, engagement, manual
// refreshes and state persistence across restarts.
package integration
