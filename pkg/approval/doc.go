/*
Package approval governs the request lifecycle state machine.

	Submitted ──▶ Pending ──▶ Approved ──▶ Running ──▶ Completed
	                 │                         │
	                 ├──▶ Denied               └──▶ Failed
	                 └──▶ Expired

Denied, Expired, Completed, and Failed are terminal. Transition validates a
single edge; Machine serializes all transitions behind one mutex so the
first decision always wins. Approving an already-approved request is a
no-op that returns the prior decision record; a second conflicting
decision is rejected with a policy error.

Expiry is lazy: a pending request older than the configured TTL is moved
to Expired on the next touch (or by the reconciler pass); no per-request
timer exists.
*/
package approval
