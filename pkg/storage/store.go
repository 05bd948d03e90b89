package storage

import (
	"github.com/neurofed/axon/pkg/types"
)

// Store defines the interface for node state persistence. Implemented by
// BoltDB-backed storage.
type Store interface {
	// Requests
	CreateRequest(req *types.AnalysisRequest) error
	GetRequest(id string) (*types.AnalysisRequest, error)
	ListRequests(filter types.RequestFilter) ([]*types.AnalysisRequest, error)
	// UpdateRequest persists req and appends audit in one transaction.
	UpdateRequest(req *types.AnalysisRequest, audit *types.AuditRecord) error

	// Jobs
	CreateJob(job *types.Job) error
	GetJob(id string) (*types.Job, error)
	ListJobs() ([]*types.Job, error)
	UpdateJob(job *types.Job) error

	// Results (append-only per request)
	AppendResult(result *types.Result) error
	ListResults(requestID string) ([]*types.Result, error)

	// Uploads (metadata; bytes live in the upload store directories)
	CreateUpload(file *types.UploadedFile) error
	GetUpload(id string) (*types.UploadedFile, error)
	ListUploads(kind types.UploadKind) ([]*types.UploadedFile, error)

	// Audit
	ListAudit(requestID string) ([]*types.AuditRecord, error)

	// Utility
	Close() error
}
