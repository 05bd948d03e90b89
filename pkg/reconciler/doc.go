// Package reconciler runs the periodic repair loop: it fails Running
// requests orphaned by a node restart (without reading their partial
// artifacts), applies lazy TTL expiry to pending requests, and deletes
// terminal workspaces once the retention window passes. The first pass
// runs at startup so restart recovery completes within one cycle.
package reconciler
