package reconciler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/neurofed/axon/pkg/approval"
	"github.com/neurofed/axon/pkg/log"
	"github.com/neurofed/axon/pkg/metrics"
	"github.com/neurofed/axon/pkg/runner"
	"github.com/neurofed/axon/pkg/storage"
	"github.com/neurofed/axon/pkg/types"
)

// Reconciler repairs stored state that drifted from reality: requests
// left Running by a node crash, pending requests past their TTL, and
// terminal workspaces past the retention window.
type Reconciler struct {
	store     storage.Store
	machine   *approval.Machine
	runner    *runner.Runner
	workDir   string
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config holds reconciler configuration
type Config struct {
	Store     storage.Store
	Machine   *approval.Machine
	Runner    *runner.Runner
	WorkDir   string
	Retention time.Duration
	Interval  time.Duration
}

// NewReconciler creates a new reconciler
func NewReconciler(cfg Config) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		store:     cfg.Store,
		machine:   cfg.Machine,
		runner:    cfg.Runner,
		workDir:   cfg.WorkDir,
		retention: cfg.Retention,
		interval:  interval,
		logger:    log.WithComponent("reconciler"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the reconciliation loop. The first pass runs immediately
// so restart recovery does not wait a full interval.
func (r *Reconciler) Start() {
	r.started = true
	go r.run()
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
	if r.started {
		<-r.doneCh
	}
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("Reconciler started")
	if err := r.Reconcile(); err != nil {
		r.logger.Error().Err(err).Msg("Initial reconciliation failed")
	}

	for {
		select {
		case <-ticker.C:
			if err := r.Reconcile(); err != nil {
				// Log error but continue
				r.logger.Error().Err(err).Msg("Reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("Reconciler stopped")
			return
		}
	}
}

// Reconcile performs one reconciliation cycle.
func (r *Reconciler) Reconcile() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	if err := r.reconcileInterrupted(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to reconcile interrupted jobs")
	}
	if err := r.reconcileExpired(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to reconcile expired requests")
	}
	if err := r.reconcileWorkspaces(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to clean workspaces")
	}
	return nil
}

// reconcileInterrupted fails any Running request whose job has no live
// supervisor. The possibly-partial artifact is never read.
func (r *Reconciler) reconcileInterrupted() error {
	requests, err := r.store.ListRequests(types.RequestFilter{State: types.StateRunning})
	if err != nil {
		return fmt.Errorf("failed to list running requests: %w", err)
	}

	for _, req := range requests {
		if r.runner != nil && r.runner.AliveJob(req.JobID) {
			continue
		}
		r.logger.Warn().
			Str("request_id", req.ID).
			Str("job_id", req.JobID).
			Msg("Running request has no live job, marking failed")

		if req.JobID != "" {
			if job, err := r.store.GetJob(req.JobID); err == nil && job.Status == types.JobRunning {
				job.Status = types.JobFailed
				job.FinishedAt = time.Now().UTC()
				job.Error = &types.JobError{
					Reason:  types.ReasonInterrupted,
					Message: "node restarted while the job was running",
				}
				if err := r.store.UpdateJob(job); err != nil {
					r.logger.Error().Err(err).Str("job_id", req.JobID).Msg("Failed to update interrupted job")
				}
			}
		}

		if _, err := r.machine.MarkFailed(req.ID, string(types.ReasonInterrupted)); err != nil {
			r.logger.Error().Err(err).Str("request_id", req.ID).Msg("Failed to fail interrupted request")
		}
	}
	return nil
}

// reconcileExpired touches pending requests so lazy TTL expiry applies.
func (r *Reconciler) reconcileExpired() error {
	requests, err := r.store.ListRequests(types.RequestFilter{State: types.StatePending})
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}
	for _, req := range requests {
		if _, err := r.machine.Get(req.ID); err != nil {
			r.logger.Error().Err(err).Str("request_id", req.ID).Msg("Failed to touch pending request")
		}
	}
	return nil
}

// reconcileWorkspaces deletes terminal workspaces past retention.
func (r *Reconciler) reconcileWorkspaces() error {
	if r.retention <= 0 || r.workDir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read work directory: %w", err)
	}

	cutoff := time.Now().Add(-r.retention)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		job, err := r.store.GetJob(entry.Name())
		if err != nil {
			// Unknown directory; leave it for the operator.
			continue
		}
		if job.Status != types.JobCompleted && job.Status != types.JobFailed {
			continue
		}
		if job.FinishedAt.IsZero() || job.FinishedAt.After(cutoff) {
			continue
		}
		path := filepath.Join(r.workDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to delete workspace")
			continue
		}
		r.logger.Info().Str("job_id", job.ID).Msg("Workspace deleted after retention")
	}
	return nil
}
