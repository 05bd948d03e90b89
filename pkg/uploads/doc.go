// Package uploads persists researcher-submitted scripts and data files.
//
// Bytes live under <root>/uploads/{scripts,data}/<id>_<safe-original>;
// metadata lives in the node store. Stored files are append-only: they are
// written once with O_EXCL and never mutated in place. Data uploads feed
// the synthetic user-uploaded-files catalog, and the registry is notified
// after every data upload so listings stay current.
package uploads
