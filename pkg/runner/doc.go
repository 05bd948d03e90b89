/*
Package runner executes approved analysis requests in sandboxed child
processes.

	            ┌──────────── RUNNER ─────────────┐
	approve ──▶ │ queue (FIFO, high-priority jump) │
	            │        │                         │
	            │   executor slots (default 2)     │
	            │        │                         │
	            │   supervisor per job:            │
	            │     workspace build              │
	            │     sandboxed child              │
	            │     250ms poll, 64KiB stdio tails│
	            │     graceful-then-kill           │
	            │     artifact + privacy gate      │
	            └─────────────────────────────────┘

A queued job stays Approved until a slot frees; the Approved -> Running
transition happens exactly once, when the supervisor takes ownership. On a
clean exit the supervisor ingests every save_results call in order, runs
each payload through the privacy gate, and completes the request. Every
other termination path (nonzero exit, signal, wall or CPU limit, cancel,
artifact over MaxOut) fails the request with a structured error carrying
the stdio tails. Error messages are scrubbed of host paths before they
become user-visible.

Workspaces live under work/<job-id> and are retained after terminal
states for the configured window; the reconciler deletes them.
*/
package runner
