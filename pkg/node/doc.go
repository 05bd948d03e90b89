/*
Package node is the facade the transport collaborator talks to.

It wires every core component over one root directory:

	┌────────────────────── NODE ──────────────────────┐
	│                                                   │
	│  catalog.Registry ◀── data/manifest.json          │
	│        ▲                                          │
	│  uploads.Store ──▶ synthetic uploaded catalog     │
	│        │                                          │
	│  approval.Machine ──▶ storage.BoltStore + audit   │
	│        │                                          │
	│  runner.Runner ──▶ sandboxed child processes      │
	│        │                                          │
	│  reconciler ──▶ restart recovery, TTL, retention  │
	│                                                   │
	│  events.Broker ──▶ subscribers                    │
	└───────────────────────────────────────────────────┘

Every exported method maps to one logical external operation (catalog
listing, uploads, request create/get/decide, results). Handlers never
block on a running job; they report the stored state. The node holds an
exclusive file lock on the root directory for its lifetime.
*/
package node
