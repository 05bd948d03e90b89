package node

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurofed/axon/pkg/catalog"
	"github.com/neurofed/axon/pkg/config"
	"github.com/neurofed/axon/pkg/types"
)

const testManifest = `{
  "version": "1.0",
  "catalogs": [
    {
      "id": "clinical_trial_data",
      "name": "Clinical Trial Data",
      "privacy_level": "high",
      "min_cohort_size": 10,
      "files": [
        {"name": "subjects", "path": "subjects.csv", "type": "csv"}
      ]
    }
  ]
}`

func newTestNode(t *testing.T) *Node {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "manifest.json"), []byte(testManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "subjects.csv"),
		[]byte("subject_id,age,sex\nS001,60,M\nS002,55,F\n"), 0o644))

	n, err := New(config.Default(root))
	require.NoError(t, err)
	t.Cleanup(n.Stop)
	return n
}

func validRequest() *types.AnalysisRequest {
	return &types.AnalysisRequest{
		Requester: types.Requester{
			Name:        "Dr. Ada",
			Institution: "Example University",
			Email:       "ada@example.edu",
		},
		Title:       "Age distribution",
		Description: "Summarize the cohort demographics",
		CatalogID:   "clinical_trial_data",
		Kind:        types.AnalysisDemographics,
	}
}

func TestNodeLock(t *testing.T) {
	n := newTestNode(t)

	// A second node on the same root is refused.
	_, err := New(config.Default(n.cfg.RootDir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")
}

func TestListCatalogs(t *testing.T) {
	n := newTestNode(t)

	catalogs, err := n.ListCatalogs()
	require.NoError(t, err)
	require.Len(t, catalogs, 1)
	assert.Equal(t, "clinical_trial_data", catalogs[0].ID)
	assert.True(t, catalogs[0].Files[0].Exists)
	assert.Equal(t, 2, catalogs[0].Files[0].ActualRecords)
}

// TestCreateRequestValidation tests the synchronous validation errors
func TestCreateRequestValidation(t *testing.T) {
	n := newTestNode(t)

	tests := []struct {
		name   string
		mutate func(*types.AnalysisRequest)
	}{
		{"missing title", func(r *types.AnalysisRequest) { r.Title = "" }},
		{"missing requester", func(r *types.AnalysisRequest) { r.Requester.Name = "" }},
		{"bad email", func(r *types.AnalysisRequest) { r.Requester.Email = "not-an-email" }},
		{"unknown catalog", func(r *types.AnalysisRequest) { r.CatalogID = "nope" }},
		{"unknown kind", func(r *types.AnalysisRequest) { r.Kind = "mystery" }},
		{"unknown priority", func(r *types.AnalysisRequest) { r.Priority = "urgent" }},
		{"custom without script", func(r *types.AnalysisRequest) { r.Kind = types.AnalysisCustom }},
		{"missing upload", func(r *types.AnalysisRequest) { r.UploadIDs = []string{"ghost"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			_, err := n.CreateRequest(req)
			require.Error(t, err)
			assert.True(t, types.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreateRequestLandsPending(t *testing.T) {
	n := newTestNode(t)

	id, err := n.CreateRequest(validRequest())
	require.NoError(t, err)

	req, err := n.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, req.State)
	assert.Equal(t, types.PriorityNormal, req.Priority)
}

// TestRequestIDsMonotone verifies ids sort in creation order and repeats
// are never deduplicated
func TestRequestIDsMonotone(t *testing.T) {
	n := newTestNode(t)

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := n.CreateRequest(validRequest())
		require.NoError(t, err)
		ids = append(ids, id)
	}

	sorted := append([]string{}, ids...)
	sort.Strings(sorted)
	assert.Equal(t, sorted, ids, "ids are monotone in creation time")

	unique := map[string]bool{}
	for _, id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, 5, "same submission twice yields distinct ids")
}

// TestDenialFlow covers submit -> deny -> no job, empty results
func TestDenialFlow(t *testing.T) {
	n := newTestNode(t)

	id, err := n.CreateRequest(validRequest())
	require.NoError(t, err)

	req, err := n.Decide(id, "irb-officer", "deny", "insufficient IRB")
	require.NoError(t, err)
	assert.Equal(t, types.StateDenied, req.State)
	assert.Empty(t, req.JobID)

	results, err := n.Results(id)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Audit shows the full path.
	audit, err := n.Audit(id)
	require.NoError(t, err)
	var path []types.RequestState
	path = append(path, audit[0].FromState)
	for _, rec := range audit {
		path = append(path, rec.ToState)
	}
	assert.Equal(t, []types.RequestState{types.StateSubmitted, types.StatePending, types.StateDenied}, path)
}

func TestDecideRejectsUnknownDecision(t *testing.T) {
	n := newTestNode(t)
	id, err := n.CreateRequest(validRequest())
	require.NoError(t, err)

	_, err = n.Decide(id, "reviewer", "maybe", "")
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestApproveQueues(t *testing.T) {
	n := newTestNode(t)
	id, err := n.CreateRequest(validRequest())
	require.NoError(t, err)

	// The runner is not started, so the request stays Approved in queue.
	req, err := n.Decide(id, "reviewer", "approve", "ok")
	require.NoError(t, err)
	assert.Equal(t, types.StateApproved, req.State)
}

func TestCancelPendingIsSelfDenial(t *testing.T) {
	n := newTestNode(t)
	id, err := n.CreateRequest(validRequest())
	require.NoError(t, err)

	require.NoError(t, n.Cancel(id, "Dr. Ada"))

	req, err := n.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, types.StateDenied, req.State)
	assert.Equal(t, "Dr. Ada", req.Decision.Approver)
}

func TestUploadGrowsSyntheticCatalog(t *testing.T) {
	n := newTestNode(t)

	_, err := n.UploadData("extra.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)

	catalogs, err := n.ListCatalogs()
	require.NoError(t, err)
	require.Len(t, catalogs, 2)
	assert.Equal(t, catalog.UploadedCatalogID, catalogs[1].ID)

	// Requests may target the synthetic catalog.
	req := validRequest()
	req.CatalogID = catalog.UploadedCatalogID
	_, err = n.CreateRequest(req)
	require.NoError(t, err)
}

func TestUploadAttachesToRequest(t *testing.T) {
	n := newTestNode(t)

	file, err := n.UploadData("map.nii.gz", strings.NewReader("volume"))
	require.NoError(t, err)

	req := validRequest()
	req.Kind = types.AnalysisDamageScore
	req.UploadIDs = []string{file.ID}
	id, err := n.CreateRequest(req)
	require.NoError(t, err)

	got, err := n.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, []string{file.ID}, got.UploadIDs)
}

func TestScoreTimeline(t *testing.T) {
	n := newTestNode(t)

	options, err := n.ScoreTimeline("clinical_trial_data")
	require.NoError(t, err)
	// Inferred from the subjects file: age is the only numeric column.
	require.NotEmpty(t, options)
	assert.Equal(t, types.OptionScore, options[0].Kind)
	assert.Equal(t, "age", options[0].Value)
}
