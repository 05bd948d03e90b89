package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neurofed/axon/pkg/approval"
	"github.com/neurofed/axon/pkg/catalog"
	"github.com/neurofed/axon/pkg/events"
	"github.com/neurofed/axon/pkg/log"
	"github.com/neurofed/axon/pkg/metrics"
	"github.com/neurofed/axon/pkg/privacy"
	"github.com/neurofed/axon/pkg/sandbox"
	"github.com/neurofed/axon/pkg/storage"
	"github.com/neurofed/axon/pkg/types"
	"github.com/neurofed/axon/pkg/uploads"
)

// recordsKey is the reserved artifact key carrying the child's
// records-processed count.
const recordsKey = "_records_processed"

// Config holds runner configuration
type Config struct {
	WorkDir    string
	Slots      int
	PythonBin  string
	RscriptBin string
	RunAsUID   int
	RunAsGID   int
	Limits     sandbox.Limits

	Store    storage.Store
	Machine  *approval.Machine
	Registry *catalog.Registry
	Uploads  *uploads.Store
	Backend  sandbox.Backend
	Broker   *events.Broker
}

// runningJob tracks one occupied executor slot.
type runningJob struct {
	jobID  string
	cancel chan struct{}
	once   sync.Once
}

func (j *runningJob) requestCancel() {
	j.once.Do(func() { close(j.cancel) })
}

// Runner owns the executor slots. Approved requests queue FIFO (high
// priority first) and run as sandboxed child processes, at most Slots at
// a time.
type Runner struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	queue   *jobQueue
	running map[string]*runningJob // request id -> slot

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates the runner. Slots below 1 default to 2.
func NewRunner(cfg Config) *Runner {
	if cfg.Slots < 1 {
		cfg.Slots = 2
	}
	if cfg.PythonBin == "" {
		cfg.PythonBin = "python3"
	}
	if cfg.RscriptBin == "" {
		cfg.RscriptBin = "Rscript"
	}
	return &Runner{
		cfg:     cfg,
		logger:  log.WithComponent("runner"),
		queue:   newJobQueue(),
		running: make(map[string]*runningJob),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the dispatch loop.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.dispatch()
	r.logger.Info().Int("slots", r.cfg.Slots).Str("sandbox", r.cfg.Backend.Name()).Msg("Runner started")
}

// Stop cancels all running jobs and waits for slots to drain.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.mu.Lock()
	for _, rj := range r.running {
		rj.requestCancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Info().Msg("Runner stopped")
}

// Submit queues an approved request for execution. The request stays
// Approved until a slot frees.
func (r *Runner) Submit(requestID string) error {
	req, err := r.cfg.Store.GetRequest(requestID)
	if err != nil {
		return err
	}
	if req.State != types.StateApproved {
		return types.NewError(types.KindPolicy, "request %s is %s, not approved", requestID, req.State)
	}

	r.mu.Lock()
	if _, busy := r.running[requestID]; busy {
		r.mu.Unlock()
		return types.NewError(types.KindPolicy, "request %s is already running", requestID)
	}
	r.queue.Enqueue(requestID, req.Priority, req.CreatedAt)
	depth := r.queue.Len()
	r.mu.Unlock()

	metrics.JobsQueued.Set(float64(depth))
	r.logger.Info().Str("request_id", requestID).Int("queue_depth", depth).Msg("Job queued")
	r.kick()
	return nil
}

// Cancel aborts a running job, or drops a queued one before it starts.
func (r *Runner) Cancel(requestID string) error {
	r.mu.Lock()
	if rj, ok := r.running[requestID]; ok {
		rj.requestCancel()
		r.mu.Unlock()
		return nil
	}
	removed := r.queue.Remove(requestID)
	r.mu.Unlock()

	if !removed {
		return types.NewError(types.KindValidation, "request %s is not queued or running", requestID)
	}
	// Dropped before Approved -> Running; fail it so the record is terminal.
	if _, err := r.cfg.Machine.MarkRunning(requestID, "cancelled-before-start"); err != nil {
		return err
	}
	_, err := r.cfg.Machine.MarkFailed(requestID, "cancelled while queued")
	return err
}

// AliveJob reports whether a supervisor currently owns the job. The
// reconciler uses this to detect jobs orphaned by a node restart.
func (r *Runner) AliveJob(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rj := range r.running {
		if rj.jobID == jobID {
			return true
		}
	}
	return false
}

// QueueDepth returns the number of jobs waiting for a slot.
func (r *Runner) QueueDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

func (r *Runner) kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) dispatch() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.wake:
		}

		for {
			r.mu.Lock()
			if len(r.running) >= r.cfg.Slots || r.queue.Len() == 0 {
				r.mu.Unlock()
				break
			}
			requestID := r.queue.Dequeue()
			rj := &runningJob{cancel: make(chan struct{})}
			r.running[requestID] = rj
			depth := r.queue.Len()
			occupied := len(r.running)
			r.mu.Unlock()

			metrics.JobsQueued.Set(float64(depth))
			metrics.JobsRunning.Set(float64(occupied))

			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.runJob(requestID, rj)

				r.mu.Lock()
				delete(r.running, requestID)
				occupied := len(r.running)
				r.mu.Unlock()
				metrics.JobsRunning.Set(float64(occupied))
				r.kick()
			}()
		}
	}
}

// runJob owns one executor slot from workspace creation to collection.
func (r *Runner) runJob(requestID string, rj *runningJob) {
	jobID := "job-" + uuid.New().String()[:8]
	rj.jobID = jobID
	logger := log.WithJobID(jobID)
	timer := metrics.NewTimer()

	req, err := r.cfg.Store.GetRequest(requestID)
	if err != nil {
		logger.Error().Err(err).Msg("Request vanished before execution")
		return
	}
	if req.State != types.StateApproved {
		logger.Warn().Str("state", string(req.State)).Msg("Request no longer approved, skipping")
		return
	}

	if _, err := r.cfg.Machine.MarkRunning(requestID, jobID); err != nil {
		logger.Error().Err(err).Msg("Failed to transition request to running")
		return
	}

	job := &types.Job{
		ID:        jobID,
		RequestID: requestID,
		Status:    types.JobRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.cfg.Store.CreateJob(job); err != nil {
		logger.Error().Err(err).Msg("Failed to persist job record")
		r.fail(job, req, types.ReasonInternal, "failed to persist job record", timer)
		return
	}

	cat, err := r.cfg.Registry.GetCatalog(req.CatalogID)
	if err != nil {
		r.fail(job, req, types.ReasonInternal, "target catalog unavailable: "+req.CatalogID, timer)
		return
	}

	ws, err := newWorkspace(filepath.Join(r.cfg.WorkDir, jobID))
	if err != nil {
		r.fail(job, req, types.ReasonInternal, "failed to create workspace", timer)
		return
	}

	uploadPaths, err := r.uploadPaths(req)
	if err != nil {
		r.fail(job, req, types.ReasonInternal, r.sanitize(err.Error(), ws.dir), timer)
		return
	}

	_, scriptName, err := ws.build(jobID, req, cat, r.cfg.Registry.ResolvePath, uploadPaths)
	if err != nil {
		r.fail(job, req, types.ReasonInternal, r.sanitize(err.Error(), ws.dir), timer)
		return
	}

	program := r.cfg.PythonBin
	if strings.HasSuffix(scriptName, ".r") {
		program = r.cfg.RscriptBin
	}
	spec := &sandbox.Spec{
		WorkDir: ws.dir,
		Program: program,
		Args:    []string{scriptName},
		Env: []string{
			"LC_ALL=C",
			"JOB_ID=" + jobID,
			"JOB_CONFIG=" + filepath.Join(ws.dir, "job_config.json"),
			"OUTPUT_FILE=" + ws.outputPath(),
		},
		UID:    r.cfg.RunAsUID,
		GID:    r.cfg.RunAsGID,
		Limits: r.cfg.Limits,
	}

	logger.Info().Str("request_id", requestID).Str("catalog", cat.ID).Msg("Launching analysis")
	res := supervise(r.cfg.Backend, spec, rj.cancel, logger)

	job.StartedAt = res.started.UTC()
	job.FinishedAt = res.finished.UTC()
	job.ExitCode = res.exitCode
	job.StdoutTail = res.stdoutTail
	job.StderrTail = res.stderrTail

	if res.reason != "" {
		r.failWith(job, req, &types.JobError{
			Reason:     res.reason,
			Message:    r.sanitize(res.message, ws.dir),
			ExitCode:   res.exitCode,
			Signal:     res.signal,
			StdoutTail: res.stdoutTail,
			StderrTail: res.stderrTail,
		}, timer)
		return
	}
	if res.exitCode != 0 {
		msg := fmt.Sprintf("analysis process exited with code %d", res.exitCode)
		if res.signal != "" {
			msg = "analysis process terminated by signal " + res.signal
		}
		r.failWith(job, req, &types.JobError{
			Reason:     types.ReasonChildCrash,
			Message:    msg,
			ExitCode:   res.exitCode,
			Signal:     res.signal,
			StdoutTail: res.stdoutTail,
			StderrTail: res.stderrTail,
		}, timer)
		return
	}

	r.collect(job, req, cat, ws, timer)
}

func (r *Runner) uploadPaths(req *types.AnalysisRequest) ([]string, error) {
	var paths []string
	for _, id := range req.UploadIDs {
		file, err := r.cfg.Uploads.Get(id)
		if err != nil {
			return nil, fmt.Errorf("attached upload %s: %w", id, err)
		}
		paths = append(paths, r.cfg.Uploads.Path(file))
	}
	return paths, nil
}

// collect ingests the artifact and per-call results on a clean exit.
func (r *Runner) collect(job *types.Job, req *types.AnalysisRequest, cat *types.Catalog, ws *workspace, timer *metrics.Timer) {
	logger := log.WithJobID(job.ID)
	outDir := filepath.Join(ws.dir, "output")

	resultFiles, err := filepath.Glob(filepath.Join(outDir, "result_*.json"))
	if err != nil {
		resultFiles = nil
	}

	// A child that never called save_results completes with no results.
	canonical := ws.outputPath()
	if _, err := os.Stat(canonical); os.IsNotExist(err) && len(resultFiles) == 0 {
		job.Status = types.JobCompleted
		if err := r.cfg.Store.UpdateJob(job); err != nil {
			logger.Error().Err(err).Msg("Failed to persist job record")
		}
		if _, err := r.cfg.Machine.MarkCompleted(req.ID); err != nil {
			logger.Error().Err(err).Msg("Failed to complete request")
		}
		metrics.JobsTotal.WithLabelValues("completed").Inc()
		timer.ObserveDuration(metrics.JobDuration)
		logger.Info().Msg("Job completed with no results")
		return
	}

	// MaxOut applies to every produced artifact, canonical included.
	for _, path := range append(append([]string{}, resultFiles...), canonical) {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if r.cfg.Limits.MaxOut > 0 && info.Size() > r.cfg.Limits.MaxOut {
			r.failWith(job, req, &types.JobError{
				Reason:   types.ReasonArtifactTooBig,
				Message:  fmt.Sprintf("artifact exceeds limit of %d bytes", r.cfg.Limits.MaxOut),
				ExitCode: job.ExitCode,
			}, timer)
			return
		}
	}

	payloads, err := readResultPayloads(resultFiles, canonical)
	if err != nil {
		r.failWith(job, req, &types.JobError{
			Reason:   types.ReasonChildCrash,
			Message:  "artifact unreadable: " + r.sanitize(err.Error(), ws.dir),
			ExitCode: job.ExitCode,
		}, timer)
		return
	}

	for _, payload := range payloads {
		r.gateAndStore(req, cat, payload)
	}

	if last := payloads[len(payloads)-1]; last != nil {
		if n, ok := last[recordsKey].(float64); ok && n >= 0 {
			job.RecordsProcessed = int(n)
		}
	}
	job.ArtifactPath = filepath.Join("output", "result.json")
	job.Status = types.JobCompleted
	if err := r.cfg.Store.UpdateJob(job); err != nil {
		logger.Error().Err(err).Msg("Failed to persist job record")
	}
	if _, err := r.cfg.Machine.MarkCompleted(req.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to complete request")
	}
	metrics.JobsTotal.WithLabelValues("completed").Inc()
	timer.ObserveDuration(metrics.JobDuration)
	logger.Info().Int("results", len(payloads)).Msg("Job completed")
}

// readResultPayloads loads the numbered per-call results in call order,
// falling back to the canonical artifact alone when the child wrote it
// directly.
func readResultPayloads(resultFiles []string, canonical string) ([]map[string]any, error) {
	paths := resultFiles
	if len(paths) == 0 {
		paths = []string{canonical}
	}
	payloads := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

// gateAndStore runs one payload through the privacy gate and appends the
// result row.
func (r *Runner) gateAndStore(req *types.AnalysisRequest, cat *types.Catalog, payload map[string]any) {
	verdict := privacy.Inspect(payload, cat)

	result := &types.Result{
		RequestID: req.ID,
		Released:  verdict.Released,
		CreatedAt: time.Now().UTC(),
	}
	if t, ok := payload["analysis"].(string); ok {
		result.Type = t
	}
	if verdict.Released {
		result.Payload = payload
	} else {
		result.Payload = verdict.Placeholder()
		result.Original = payload
	}

	if err := r.cfg.Store.AppendResult(result); err != nil {
		r.logger.Error().Err(err).Str("request_id", req.ID).Msg("Failed to append result")
		return
	}

	event := events.EventResultReleased
	msg := "Result released"
	if !verdict.Released {
		event = events.EventResultBlocked
		msg = fmt.Sprintf("Result blocked: cohort below minimum of %d", verdict.K)
	}
	if r.cfg.Broker != nil {
		r.cfg.Broker.Publish(&events.Event{Type: event, RequestID: req.ID, Message: msg})
	}
}

func (r *Runner) fail(job *types.Job, req *types.AnalysisRequest, reason types.FailureReason, msg string, timer *metrics.Timer) {
	r.failWith(job, req, &types.JobError{Reason: reason, Message: msg, ExitCode: job.ExitCode}, timer)
}

func (r *Runner) failWith(job *types.Job, req *types.AnalysisRequest, jobErr *types.JobError, timer *metrics.Timer) {
	logger := log.WithJobID(job.ID)

	job.Status = types.JobFailed
	job.Error = jobErr
	if job.FinishedAt.IsZero() {
		job.FinishedAt = time.Now().UTC()
	}
	if err := r.cfg.Store.UpdateJob(job); err != nil {
		logger.Error().Err(err).Msg("Failed to persist failed job")
	}
	if _, err := r.cfg.Machine.MarkFailed(req.ID, string(jobErr.Reason)+": "+jobErr.Message); err != nil {
		logger.Error().Err(err).Msg("Failed to transition request to failed")
	}
	metrics.JobsTotal.WithLabelValues("failed").Inc()
	timer.ObserveDuration(metrics.JobDuration)
	logger.Warn().Str("reason", string(jobErr.Reason)).Str("message", jobErr.Message).Msg("Job failed")
}

// sanitize strips host paths from user-visible messages.
func (r *Runner) sanitize(msg, workDir string) string {
	msg = strings.ReplaceAll(msg, workDir, "workspace")
	if r.cfg.WorkDir != "" {
		msg = strings.ReplaceAll(msg, r.cfg.WorkDir, "work")
	}
	return msg
}
