/*
Package types defines the core data model shared across all node components.

The model follows the request lifecycle: a Manifest describes Catalogs of
Files; researchers submit AnalysisRequests (optionally referencing
UploadedFiles); an approved request produces a Job; each save_results call
from the analysis process produces a Result, and every state change appends
an AuditRecord.

	Manifest ──▶ Catalog ──▶ File ──▶ Column
	                 ▲
	                 │ target
	AnalysisRequest ─┴─▶ Job ──▶ Result*
	       │
	       └─▶ AuditRecord* (append-only)

States are plain string enums with an explicit terminal set; the legal
transitions live in pkg/approval. All structs marshal to JSON both for
BoltDB persistence and for the workspace contract (job_config.json), so
field tags use the external snake_case names.

Typed errors carry an ErrorKind (validation, policy, resource-exhausted,
timeout, child-crash, interrupted, internal) so callers can branch with
errors.As without string matching.
*/
package types
