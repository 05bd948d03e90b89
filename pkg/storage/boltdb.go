package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurofed/axon/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketRequests = []byte("requests")
	bucketJobs     = []byte("jobs")
	bucketResults  = []byte("results")
	bucketUploads  = []byte("uploads")
	bucketAudit    = []byte("audit")
)

// BoltStore implements Store interface using BoltDB. Alongside the
// database it mirrors every audit record to an append-only text log.
type BoltStore struct {
	db       *bolt.DB
	auditLog *AuditLog
}

// NewBoltStore creates a new BoltDB-backed store under stateDir.
func NewBoltStore(stateDir string) (*BoltStore, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	dbPath := filepath.Join(stateDir, "axon.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketRequests,
			bucketJobs,
			bucketResults,
			bucketUploads,
			bucketAudit,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	auditLog, err := OpenAuditLog(filepath.Join(stateDir, "audit.log"))
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, auditLog: auditLog}, nil
}

// Close closes the database and the audit log
func (s *BoltStore) Close() error {
	if err := s.auditLog.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Request operations

func (s *BoltStore) CreateRequest(req *types.AnalysisRequest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRequests)
		if b.Get([]byte(req.ID)) != nil {
			return fmt.Errorf("request already exists: %s", req.ID)
		}
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		return b.Put([]byte(req.ID), data)
	})
}

func (s *BoltStore) GetRequest(id string) (*types.AnalysisRequest, error) {
	var req types.AnalysisRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRequests)
		data := b.Get([]byte(id))
		if data == nil {
			return types.NewError(types.KindValidation, "request not found: %s", id)
		}
		return json.Unmarshal(data, &req)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *BoltStore) ListRequests(filter types.RequestFilter) ([]*types.AnalysisRequest, error) {
	var requests []*types.AnalysisRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRequests)
		return b.ForEach(func(k, v []byte) error {
			var req types.AnalysisRequest
			if err := json.Unmarshal(v, &req); err != nil {
				return err
			}
			if !matchesFilter(&req, filter) {
				return nil
			}
			requests = append(requests, &req)
			return nil
		})
	})
	return requests, err
}

func matchesFilter(req *types.AnalysisRequest, f types.RequestFilter) bool {
	if f.State != "" && req.State != f.State {
		return false
	}
	if f.Requester != "" && !strings.EqualFold(req.Requester.Name, f.Requester) {
		return false
	}
	if f.CatalogID != "" && req.CatalogID != f.CatalogID {
		return false
	}
	if !f.Since.IsZero() && req.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// UpdateRequest persists the request and its audit record atomically, then
// mirrors the record to the text audit log. BoltDB commits with fsync, so
// the update is durable before this returns.
func (s *BoltStore) UpdateRequest(req *types.AnalysisRequest, audit *types.AuditRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRequests)
		if b.Get([]byte(req.ID)) == nil {
			return types.NewError(types.KindValidation, "request not found: %s", req.ID)
		}
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(req.ID), data); err != nil {
			return err
		}
		if audit != nil {
			return appendAudit(tx, audit)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if audit != nil {
		return s.auditLog.Append(audit)
	}
	return nil
}

// Job operations

func (s *BoltStore) CreateJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(job.ID), data)
	})
}

func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var job types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return types.NewError(types.KindValidation, "job not found: %s", id)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListJobs() ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	return jobs, err
}

func (s *BoltStore) UpdateJob(job *types.Job) error {
	return s.CreateJob(job) // Same as create (upsert)
}

// Result operations. Result keys are requestID/seq with a big-endian
// sequence number so bucket order equals save_results call order.

func (s *BoltStore) AppendResult(result *types.Result) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)

		prefix := []byte(result.RequestID + "/")
		seq := 0
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && len(k) == len(prefix)+8 && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			seq++
		}
		result.Seq = seq

		key := make([]byte, len(prefix)+8)
		copy(key, prefix)
		binary.BigEndian.PutUint64(key[len(prefix):], uint64(seq))

		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) ListResults(requestID string) ([]*types.Result, error) {
	var results []*types.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		prefix := []byte(requestID + "/")
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var result types.Result
			if err := json.Unmarshal(v, &result); err != nil {
				return err
			}
			results = append(results, &result)
		}
		return nil
	})
	return results, err
}

// Upload operations

func (s *BoltStore) CreateUpload(file *types.UploadedFile) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUploads)
		if b.Get([]byte(file.ID)) != nil {
			return fmt.Errorf("upload already exists: %s", file.ID)
		}
		data, err := json.Marshal(file)
		if err != nil {
			return err
		}
		return b.Put([]byte(file.ID), data)
	})
}

func (s *BoltStore) GetUpload(id string) (*types.UploadedFile, error) {
	var file types.UploadedFile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUploads)
		data := b.Get([]byte(id))
		if data == nil {
			return types.NewError(types.KindValidation, "upload not found: %s", id)
		}
		return json.Unmarshal(data, &file)
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *BoltStore) ListUploads(kind types.UploadKind) ([]*types.UploadedFile, error) {
	var files []*types.UploadedFile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUploads)
		return b.ForEach(func(k, v []byte) error {
			var file types.UploadedFile
			if err := json.Unmarshal(v, &file); err != nil {
				return err
			}
			if kind != "" && file.Kind != kind {
				return nil
			}
			files = append(files, &file)
			return nil
		})
	})
	return files, err
}

// Audit operations. Keys are requestID/counter so per-request order is
// preserved; records are never rewritten.

func appendAudit(tx *bolt.Tx, record *types.AuditRecord) error {
	b := tx.Bucket(bucketAudit)
	n, err := b.NextSequence()
	if err != nil {
		return err
	}
	key := make([]byte, len(record.RequestID)+1+8)
	copy(key, record.RequestID)
	key[len(record.RequestID)] = '/'
	binary.BigEndian.PutUint64(key[len(record.RequestID)+1:], n)

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (s *BoltStore) ListAudit(requestID string) ([]*types.AuditRecord, error) {
	var records []*types.AuditRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)
		prefix := []byte(requestID + "/")
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var record types.AuditRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	return records, err
}
