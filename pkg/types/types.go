package types

import (
	"time"
)

// Manifest is the human-authored description of the catalogs hosted on
// this node. It is the source of truth for what data exists here.
type Manifest struct {
	Version  string     `json:"version"`
	Catalogs []*Catalog `json:"catalogs"`
}

// Catalog is a named collection of related files exposed to analyses.
type Catalog struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	AccessLevel   AccessLevel    `json:"access_level,omitempty"`
	PrivacyLevel  PrivacyLevel   `json:"privacy_level,omitempty"`
	MinCohortSize int            `json:"min_cohort_size,omitempty"`
	Files         []*File        `json:"files"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// AccessLevel controls who may target a catalog.
type AccessLevel string

const (
	AccessPublic     AccessLevel = "public"
	AccessRestricted AccessLevel = "restricted"
	AccessPrivate    AccessLevel = "private"
	AccessUnknown    AccessLevel = "unknown"
)

// PrivacyLevel tunes how strict the privacy gate is for a catalog.
type PrivacyLevel string

const (
	PrivacyLow     PrivacyLevel = "low"
	PrivacyMedium  PrivacyLevel = "medium"
	PrivacyHigh    PrivacyLevel = "high"
	PrivacyUnknown PrivacyLevel = "unknown"
)

// FileType identifies how a catalog file is materialized for analyses.
type FileType string

const (
	FileCSV   FileType = "csv"
	FileTSV   FileType = "tsv"
	FileJSON  FileType = "json"
	FileNIfTI FileType = "nifti"
	FileNIIGz FileType = "nii.gz"
	FileNPY   FileType = "npy"
	FileNPZ   FileType = "npz"
	FileMAT   FileType = "mat"
)

// Tabular reports whether files of this type parse to rows and columns.
// Everything else is handed to the analysis process as an opaque path.
func (t FileType) Tabular() bool {
	return t == FileCSV || t == FileTSV
}

// File describes one logical file inside a catalog. Exists and
// ActualRecords are derived at read time; the rest comes from the manifest.
type File struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Type        FileType  `json:"type"`
	Description string    `json:"description,omitempty"`
	Columns     []*Column `json:"columns,omitempty"`
	Records     int       `json:"records,omitempty"`
	Glob        string    `json:"glob,omitempty"`

	Exists        bool `json:"exists"`
	ActualRecords int  `json:"actual_records,omitempty"`
}

// ColumnType is the closed set of semantic column type tags.
type ColumnType string

const (
	ColumnString   ColumnType = "string"
	ColumnInt      ColumnType = "int"
	ColumnFloat    ColumnType = "float"
	ColumnBool     ColumnType = "bool"
	ColumnDatetime ColumnType = "datetime"
	ColumnUnknown  ColumnType = "unknown"
)

// Column describes one column of a tabular catalog file.
type Column struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Description string     `json:"description,omitempty"`
}

// OptionKind distinguishes score options from timeline options.
type OptionKind string

const (
	OptionScore    OptionKind = "score"
	OptionTimeline OptionKind = "timeline"
)

// Option is a selectable score or timeline value offered by a catalog.
type Option struct {
	Kind    OptionKind `json:"kind"`
	Name    string     `json:"name"`
	Value   string     `json:"value"`
	Default bool       `json:"default"`
}

// UploadKind distinguishes analysis scripts from data files.
type UploadKind string

const (
	UploadScript UploadKind = "script"
	UploadData   UploadKind = "data"
)

// UploadedFile is the record kept for a user-submitted file. StoredName is
// prefixed with the id so originals can never collide on disk.
type UploadedFile struct {
	ID           string     `json:"id"`
	OriginalName string     `json:"original_name"`
	StoredName   string     `json:"stored_name"`
	Kind         UploadKind `json:"kind"`
	Extension    string     `json:"extension"`
	SizeBytes    int64      `json:"size_bytes"`
	UploadedBy   string     `json:"uploaded_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AnalysisKind selects the analysis template family for a request.
type AnalysisKind string

const (
	AnalysisDemographics AnalysisKind = "demographics"
	AnalysisCorrelation  AnalysisKind = "correlation"
	AnalysisDamageScore  AnalysisKind = "damage-score"
	AnalysisCustom       AnalysisKind = "custom"
)

// Priority tags a request for queue ordering. High-priority jobs jump
// ahead of all non-high entries while waiting for an executor slot.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// RequestState is the lifecycle state of an analysis request.
type RequestState string

const (
	StateSubmitted RequestState = "submitted"
	StatePending   RequestState = "pending"
	StateApproved  RequestState = "approved"
	StateDenied    RequestState = "denied"
	StateExpired   RequestState = "expired"
	StateRunning   RequestState = "running"
	StateCompleted RequestState = "completed"
	StateFailed    RequestState = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RequestState) Terminal() bool {
	switch s {
	case StateDenied, StateExpired, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Requester identifies the researcher behind a request. The core treats
// this as an opaque record; authentication belongs to the transport layer.
type Requester struct {
	Name        string `json:"name"`
	Institution string `json:"institution"`
	Email       string `json:"email"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Decision records an approver's verdict on a pending request.
type Decision struct {
	Approver  string    `json:"approver"`
	Approved  bool      `json:"approved"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// AnalysisRequest is a researcher's proposed analysis awaiting approval
// and execution. Requests are never deleted; terminal records are retained
// for audit.
type AnalysisRequest struct {
	ID               string       `json:"id"`
	Requester        Requester    `json:"requester"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	ResearchQuestion string       `json:"research_question,omitempty"`
	Methodology      string       `json:"methodology,omitempty"`
	ExpectedOutcomes string       `json:"expected_outcomes,omitempty"`
	CatalogID        string       `json:"catalog_id"`
	Score            string       `json:"score,omitempty"`
	Timeline         string       `json:"timeline,omitempty"`
	Kind             AnalysisKind `json:"kind"`
	Script           string       `json:"script,omitempty"`
	UploadIDs        []string     `json:"upload_ids,omitempty"`
	Priority         Priority     `json:"priority,omitempty"`
	EstimatedMinutes int          `json:"estimated_minutes,omitempty"`
	State            RequestState `json:"state"`
	Decision         *Decision    `json:"decision,omitempty"`
	JobID            string       `json:"job_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// JobStatus is the execution state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// FailureReason tags why a job failed.
type FailureReason string

const (
	ReasonChildCrash     FailureReason = "child-crash"
	ReasonTimeout        FailureReason = "timeout"
	ReasonCancelled      FailureReason = "cancelled"
	ReasonArtifactTooBig FailureReason = "artifact-too-large"
	ReasonInterrupted    FailureReason = "interrupted-before-completion"
	ReasonInternal       FailureReason = "internal"
)

// JobError is the structured failure payload attached to a failed job.
// Tails are bounded; Message must never contain absolute host paths.
type JobError struct {
	Reason     FailureReason `json:"reason"`
	Message    string        `json:"message"`
	ExitCode   int           `json:"exit_code"`
	Signal     string        `json:"signal,omitempty"`
	StdoutTail string        `json:"stdout_tail,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"`
}

// Job is one execution instance of an approved request. Frozen once the
// child terminates.
type Job struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	Status           JobStatus `json:"status"`
	StartedAt        time.Time `json:"started_at,omitzero"`
	FinishedAt       time.Time `json:"finished_at,omitzero"`
	ExitCode         int       `json:"exit_code"`
	StdoutTail       string    `json:"stdout_tail,omitempty"`
	StderrTail       string    `json:"stderr_tail,omitempty"`
	ArtifactPath     string    `json:"artifact_path,omitempty"`
	RecordsProcessed int       `json:"records_processed,omitempty"`
	Error            *JobError `json:"error,omitempty"`
}

// Result is one save_results call from an analysis process. Blocked rows
// are withheld from the external interface; Payload then carries the
// placeholder and Original the audited value.
type Result struct {
	RequestID string         `json:"request_id"`
	Seq       int            `json:"seq"`
	Type      string         `json:"type,omitempty"`
	Payload   map[string]any `json:"payload"`
	Original  map[string]any `json:"original,omitempty"`
	Released  bool           `json:"released"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditRecord is one append-only entry in the state transition trail.
type AuditRecord struct {
	Timestamp time.Time    `json:"timestamp"`
	RequestID string       `json:"request_id"`
	FromState RequestState `json:"from_state"`
	ToState   RequestState `json:"to_state"`
	Principal string       `json:"principal"`
	Notes     string       `json:"notes,omitempty"`
}

// JobConfig is the structure written to the workspace as job_config.json
// and consumed by the data loader inside the analysis process. File and
// upload paths are resolved absolute paths under the workspace's input
// directory; those are the only paths the child may open.
type JobConfig struct {
	JobID      string            `json:"job_id"`
	RequestID  string            `json:"request_id"`
	CatalogID  string            `json:"catalog_id"`
	Catalog    *Catalog          `json:"catalog"`
	Files      map[string]string `json:"files"`
	FileOrder  []string          `json:"file_order"`
	Uploads    []string          `json:"uploads,omitempty"`
	Score      string            `json:"score,omitempty"`
	Timeline   string            `json:"timeline,omitempty"`
	OutputFile string            `json:"output_file"`
}

// RequestFilter narrows a request listing. Zero fields match everything.
type RequestFilter struct {
	State     RequestState
	Requester string
	CatalogID string
	Since     time.Time
}
