/*
Package storage provides BoltDB-backed state persistence for the node.

The storage package implements the Store interface using BoltDB, providing
ACID transactions for requests, jobs, results, upload metadata, and the
audit trail. All data is serialized as JSON and stored in separate buckets.

	┌──────────────────── BOLTDB STORAGE ─────────────────────┐
	│                                                          │
	│  File: <root>/state/axon.db                              │
	│                                                          │
	│  ┌──────────────────────────────────────────┐            │
	│  │ requests  key: request ID                │            │
	│  │ jobs      key: job ID                    │            │
	│  │ results   key: request ID / seq (u64 BE) │            │
	│  │ uploads   key: upload ID                 │            │
	│  │ audit     key: request ID / counter      │            │
	│  └──────────────────────────────────────────┘            │
	│                                                          │
	└──────────────────────────────────────────────────────────┘

Request IDs embed the creation timestamp, so bucket iteration order is
creation order. Result and audit keys carry a big-endian sequence suffix so
per-request rows come back in write order.

State mutations go through UpdateRequest, which writes the new record and
its audit entry in a single transaction; BoltDB fsyncs on commit, so a
transition is durable before it becomes externally visible. The same record
is then mirrored to <root>/state/audit.log, a plain-text append-only log
meant for operators (AuditLog).

Readers always observe a consistent snapshot (BoltDB MVCC); there are no
partial records.
*/
package storage
