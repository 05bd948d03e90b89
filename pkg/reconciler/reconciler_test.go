package reconciler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurofed/axon/pkg/approval"
	"github.com/neurofed/axon/pkg/storage"
	"github.com/neurofed/axon/pkg/types"
)

func setup(t *testing.T, ttl time.Duration) (storage.Store, *approval.Machine) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, approval.NewMachine(store, nil, ttl)
}

func runningRequest(t *testing.T, m *approval.Machine, store storage.Store, id, jobID string) {
	t.Helper()
	req := &types.AnalysisRequest{
		ID:        id,
		Requester: types.Requester{Name: "Dr. Ada", Institution: "Example", Email: "ada@example.edu"},
		Title:     "t",
		CatalogID: "clinical_trial_data",
		Kind:      types.AnalysisDemographics,
	}
	require.NoError(t, m.Create(req))
	_, err := m.Decide(id, "reviewer", true, "")
	require.NoError(t, err)
	_, err = m.MarkRunning(id, jobID)
	require.NoError(t, err)
	require.NoError(t, store.CreateJob(&types.Job{
		ID:        jobID,
		RequestID: id,
		Status:    types.JobRunning,
		StartedAt: time.Now().UTC(),
	}))
}

// TestRestartRecovery covers the node-killed-mid-job scenario: a Running
// request with no live supervisor fails within one pass
func TestRestartRecovery(t *testing.T) {
	store, m := setup(t, 0)
	runningRequest(t, m, store, "req-1", "job-1")

	rec := NewReconciler(Config{Store: store, Machine: m})
	require.NoError(t, rec.Reconcile())

	req, err := store.GetRequest("req-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, req.State)

	job, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, types.ReasonInterrupted, job.Error.Reason)
	assert.False(t, job.FinishedAt.IsZero())
}

func TestExpiryPass(t *testing.T) {
	store, m := setup(t, 30*time.Millisecond)

	req := &types.AnalysisRequest{
		ID:        "req-1",
		Requester: types.Requester{Name: "Dr. Ada", Institution: "Example", Email: "ada@example.edu"},
		Title:     "t",
		CatalogID: "clinical_trial_data",
		Kind:      types.AnalysisDemographics,
	}
	require.NoError(t, m.Create(req))

	time.Sleep(50 * time.Millisecond)

	rec := NewReconciler(Config{Store: store, Machine: m})
	require.NoError(t, rec.Reconcile())

	got, err := store.GetRequest("req-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateExpired, got.State)
}

func TestWorkspaceRetention(t *testing.T) {
	store, m := setup(t, 0)
	workDir := t.TempDir()

	// Old completed job: workspace is deleted.
	old := filepath.Join(workDir, "job-old")
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, store.CreateJob(&types.Job{
		ID:         "job-old",
		Status:     types.JobCompleted,
		FinishedAt: time.Now().Add(-48 * time.Hour),
	}))

	// Fresh failed job: still inside the retention window.
	fresh := filepath.Join(workDir, "job-fresh")
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	require.NoError(t, store.CreateJob(&types.Job{
		ID:         "job-fresh",
		Status:     types.JobFailed,
		FinishedAt: time.Now(),
	}))

	// Directory without a job record is left for the operator.
	stray := filepath.Join(workDir, "not-a-job")
	require.NoError(t, os.MkdirAll(stray, 0o755))

	rec := NewReconciler(Config{
		Store:     store,
		Machine:   m,
		WorkDir:   workDir,
		Retention: 24 * time.Hour,
	})
	require.NoError(t, rec.Reconcile())

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "expired workspace removed")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "fresh workspace retained")
	_, err = os.Stat(stray)
	assert.NoError(t, err, "unknown directory retained")
}
