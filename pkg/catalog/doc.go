/*
Package catalog implements the catalog registry: the typed, queryable view
over the node's dataset manifest.

The manifest (data/manifest.json) is human-authored and read-only from the
node's perspective. The registry projects it into enriched Catalog values:
every file gains an existence bit, tabular files gain an actual record
count (rows excluding header), and files without a declared schema get one
inferred from the header plus a bounded row sample.

Column inference applies a fixed rule order per column over the non-blank
sample: all int64 → int, all finite float → float, all of
{true,false,yes,no,0,1} → bool, all ISO-8601 → datetime, else string. An
all-blank column is unknown. The rules are deterministic for a given file
and sample size.

The enriched view is cached. The cache invalidates when the manifest mtime
changes, when the fsnotify watcher reports a write, or when the upload
store registers a new data file into the synthetic user-uploaded-files
catalog. Watcher failure degrades to the mtime check; it never takes the
registry down.
*/
package catalog
