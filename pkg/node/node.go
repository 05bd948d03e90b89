package node

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neurofed/axon/pkg/approval"
	"github.com/neurofed/axon/pkg/catalog"
	"github.com/neurofed/axon/pkg/config"
	"github.com/neurofed/axon/pkg/events"
	"github.com/neurofed/axon/pkg/log"
	"github.com/neurofed/axon/pkg/metrics"
	"github.com/neurofed/axon/pkg/reconciler"
	"github.com/neurofed/axon/pkg/runner"
	"github.com/neurofed/axon/pkg/sandbox"
	"github.com/neurofed/axon/pkg/storage"
	"github.com/neurofed/axon/pkg/types"
	"github.com/neurofed/axon/pkg/uploads"
)

// Node wires the catalog registry, upload store, approval machine, job
// runner, and reconciler into the single facade the transport collaborator
// calls. All operations return immediately; nothing here blocks on a
// running job.
type Node struct {
	cfg        *config.Config
	store      storage.Store
	registry   *catalog.Registry
	uploads    *uploads.Store
	machine    *approval.Machine
	runner     *runner.Runner
	reconciler *reconciler.Reconciler
	broker     *events.Broker
	lock       *flock.Flock
	logger     zerolog.Logger
}

// New creates a node rooted at cfg.RootDir. The node takes an exclusive
// lock on the root so two processes can never share state.
func New(cfg *config.Config) (*Node, error) {
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create node root: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.RootDir, "axon.lock"))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire node lock: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("node root %s is already in use by another process", cfg.RootDir)
	}

	store, err := storage.NewBoltStore(cfg.StateDir())
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	broker := events.NewBroker()
	registry := catalog.NewRegistry(cfg.ManifestPath, 0)
	machine := approval.NewMachine(store, broker, cfg.Approval.PendingTTL.Std())

	uploadStore, err := uploads.NewStore(uploads.Config{
		BaseDir:      cfg.UploadsDir(),
		MaxFileBytes: cfg.Uploads.MaxFileBytes,
		Meta:         store,
	})
	if err != nil {
		store.Close()
		lock.Unlock()
		return nil, err
	}
	registry.SetSyntheticProvider(uploadStore.Catalog)
	uploadStore.OnDataStored(registry.Invalidate)

	backend, err := sandbox.New(cfg.Runner.Sandbox, cfg.Runner.OCIRuntime, cfg.Runner.OCIRootFS)
	if err != nil {
		store.Close()
		lock.Unlock()
		return nil, err
	}

	jobRunner := runner.NewRunner(runner.Config{
		WorkDir:    cfg.WorkDir(),
		Slots:      cfg.Runner.Slots,
		PythonBin:  cfg.Runner.PythonBin,
		RscriptBin: cfg.Runner.RscriptBin,
		RunAsUID:   cfg.Runner.RunAsUID,
		RunAsGID:   cfg.Runner.RunAsGID,
		Limits: sandbox.Limits{
			MaxCPU:  cfg.Runner.MaxCPU.Std(),
			MaxWall: cfg.Runner.MaxWall.Std(),
			MaxMem:  cfg.Runner.MaxMem,
			MaxOut:  cfg.Runner.MaxOut,
		},
		Store:    store,
		Machine:  machine,
		Registry: registry,
		Uploads:  uploadStore,
		Backend:  backend,
		Broker:   broker,
	})

	rec := reconciler.NewReconciler(reconciler.Config{
		Store:     store,
		Machine:   machine,
		Runner:    jobRunner,
		WorkDir:   cfg.WorkDir(),
		Retention: cfg.Runner.Retention.Std(),
		Interval:  cfg.Reconciler.Interval.Std(),
	})

	return &Node{
		cfg:        cfg,
		store:      store,
		registry:   registry,
		uploads:    uploadStore,
		machine:    machine,
		runner:     jobRunner,
		reconciler: rec,
		broker:     broker,
		lock:       lock,
		logger:     log.WithComponent("node"),
	}, nil
}

// Start brings up the background components.
func (n *Node) Start() {
	n.broker.Start()
	n.registry.Watch()
	n.runner.Start()
	n.reconciler.Start()

	// Approved requests whose slot never arrived (for example because the
	// node restarted) re-enter the queue.
	if approved, err := n.store.ListRequests(types.RequestFilter{State: types.StateApproved}); err == nil {
		for _, req := range approved {
			if err := n.runner.Submit(req.ID); err != nil {
				n.logger.Error().Err(err).Str("request_id", req.ID).Msg("Failed to requeue approved request")
			}
		}
	}

	metrics.RegisterComponent("store", true, "")
	metrics.RegisterComponent("runner", true, "")
	if _, err := n.registry.ListCatalogs(); err != nil {
		metrics.RegisterComponent("catalog", false, err.Error())
		n.logger.Warn().Err(err).Msg("Catalog registry unavailable at startup")
	} else {
		metrics.RegisterComponent("catalog", true, "")
	}
	n.logger.Info().Str("root", n.cfg.RootDir).Msg("Node started")
}

// Stop shuts the node down in reverse order and releases the root lock.
func (n *Node) Stop() {
	n.reconciler.Stop()
	n.runner.Stop()
	n.registry.Stop()
	n.broker.Stop()
	if err := n.store.Close(); err != nil {
		n.logger.Error().Err(err).Msg("Failed to close store")
	}
	if err := n.lock.Unlock(); err != nil {
		n.logger.Error().Err(err).Msg("Failed to release node lock")
	}
	n.logger.Info().Msg("Node stopped")
}

// Events returns the node's event broker.
func (n *Node) Events() *events.Broker { return n.broker }

// Catalog operations

// ListCatalogs returns all catalogs enriched with existence and schema.
func (n *Node) ListCatalogs() ([]*types.Catalog, error) {
	return n.registry.ListCatalogs()
}

// GetCatalog returns one catalog by id.
func (n *Node) GetCatalog(id string) (*types.Catalog, error) {
	return n.registry.GetCatalog(id)
}

// ScoreTimeline returns the selectable score/timeline options.
func (n *Node) ScoreTimeline(catalogID string) ([]*types.Option, error) {
	return n.registry.ScoreTimeline(catalogID)
}

// SchemaOf returns the declared or inferred column schema of one file.
func (n *Node) SchemaOf(catalogID, fileName string) ([]*types.Column, error) {
	return n.registry.SchemaOf(catalogID, fileName)
}

// Upload operations

// UploadScript stores an analysis script.
func (n *Node) UploadScript(originalName string, r io.Reader) (*types.UploadedFile, error) {
	file, err := n.uploads.PutScript(originalName, r)
	if err != nil {
		return nil, err
	}
	n.broker.Publish(&events.Event{Type: events.EventUploadStored, Message: "Script uploaded: " + file.OriginalName})
	return file, nil
}

// UploadData stores a data file and grows the synthetic catalog.
func (n *Node) UploadData(originalName string, r io.Reader) (*types.UploadedFile, error) {
	file, err := n.uploads.PutData(originalName, r)
	if err != nil {
		return nil, err
	}
	n.broker.Publish(&events.Event{Type: events.EventUploadStored, Message: "Data uploaded: " + file.OriginalName})
	return file, nil
}

// ListUploads lists stored uploads by kind; empty kind lists everything.
func (n *Node) ListUploads(kind types.UploadKind) ([]*types.UploadedFile, error) {
	return n.uploads.List(kind)
}

// OpenUpload streams a stored upload.
func (n *Node) OpenUpload(id string) (io.ReadCloser, error) {
	return n.uploads.Open(id)
}

// Request operations

// CreateRequest validates and persists a new analysis request, returning
// its id. The request lands in Pending.
func (n *Node) CreateRequest(req *types.AnalysisRequest) (string, error) {
	if err := n.validateRequest(req); err != nil {
		return "", err
	}
	req.ID = newRequestID()
	if req.Priority == "" {
		req.Priority = types.PriorityNormal
	}
	if err := n.machine.Create(req); err != nil {
		return "", err
	}
	n.logger.Info().
		Str("request_id", req.ID).
		Str("catalog", req.CatalogID).
		Str("requester", req.Requester.Name).
		Msg("Request created")
	return req.ID, nil
}

// newRequestID returns an id whose lexical order follows creation time.
func newRequestID() string {
	now := time.Now().UTC()
	return fmt.Sprintf("req-%s-%s", now.Format("20060102T150405.000000000"), uuid.New().String()[:8])
}

func (n *Node) validateRequest(req *types.AnalysisRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return types.NewError(types.KindValidation, "title is required")
	}
	if strings.TrimSpace(req.Requester.Name) == "" || strings.TrimSpace(req.Requester.Institution) == "" {
		return types.NewError(types.KindValidation, "requester name and institution are required")
	}
	if _, err := mail.ParseAddress(req.Requester.Email); err != nil {
		return types.NewError(types.KindValidation, "requester email %q is invalid", req.Requester.Email)
	}
	switch req.Kind {
	case types.AnalysisDemographics, types.AnalysisCorrelation, types.AnalysisDamageScore:
	case types.AnalysisCustom:
		if strings.TrimSpace(req.Script) == "" {
			return types.NewError(types.KindValidation, "custom analysis requires a script")
		}
	default:
		return types.NewError(types.KindValidation, "unknown analysis kind %q", req.Kind)
	}
	switch req.Priority {
	case "", types.PriorityNormal, types.PriorityHigh:
	default:
		return types.NewError(types.KindValidation, "unknown priority %q", req.Priority)
	}

	if _, err := n.registry.GetCatalog(req.CatalogID); err != nil {
		return err
	}
	for _, id := range req.UploadIDs {
		if _, err := n.uploads.Get(id); err != nil {
			return types.NewError(types.KindValidation, "attached upload not found: %s", id)
		}
	}
	return nil
}

// GetRequest returns a request; touching it applies lazy expiry.
func (n *Node) GetRequest(id string) (*types.AnalysisRequest, error) {
	return n.machine.Get(id)
}

// ListRequests lists requests matching a filter.
func (n *Node) ListRequests(filter types.RequestFilter) ([]*types.AnalysisRequest, error) {
	return n.store.ListRequests(filter)
}

// Decide applies an approve/deny decision. An approval also queues the
// job; the call returns without waiting for execution.
func (n *Node) Decide(id, approver, decision, notes string) (*types.AnalysisRequest, error) {
	var approve bool
	switch decision {
	case "approve":
		approve = true
	case "deny":
	default:
		return nil, types.NewError(types.KindValidation, "decision must be \"approve\" or \"deny\", got %q", decision)
	}

	req, err := n.machine.Decide(id, approver, approve, notes)
	if err != nil {
		return nil, err
	}
	if approve && req.State == types.StateApproved {
		if err := n.runner.Submit(id); err != nil {
			n.logger.Error().Err(err).Str("request_id", id).Msg("Failed to queue approved request")
		}
	}
	return req, nil
}

// Cancel aborts a request: a pending request becomes a self-denial, a
// running one is signalled through its supervisor.
func (n *Node) Cancel(id, principal string) error {
	req, err := n.machine.Get(id)
	if err != nil {
		return err
	}
	switch req.State {
	case types.StatePending:
		_, err := n.machine.Decide(id, principal, false, "cancelled by requester")
		return err
	case types.StateApproved, types.StateRunning:
		return n.runner.Cancel(id)
	default:
		return types.NewError(types.KindPolicy, "request %s is %s and cannot be cancelled", id, req.State)
	}
}

// Results returns every result row of a request in call order. Released
// rows carry their payload; blocked rows carry only the placeholder, with
// the original withheld.
func (n *Node) Results(id string) ([]*types.Result, error) {
	if _, err := n.machine.Get(id); err != nil {
		return nil, err
	}
	all, err := n.store.ListResults(id)
	if err != nil {
		return nil, err
	}
	released := make([]*types.Result, 0, len(all))
	for _, res := range all {
		if res.Released {
			// Blocked originals never leave the node.
			released = append(released, res)
		} else {
			placeholder := *res
			placeholder.Original = nil
			released = append(released, &placeholder)
		}
	}
	return released, nil
}

// AllResults is the internal/admin view including blocked originals.
func (n *Node) AllResults(id string) ([]*types.Result, error) {
	return n.store.ListResults(id)
}

// Job returns a job record.
func (n *Node) Job(id string) (*types.Job, error) {
	return n.store.GetJob(id)
}

// Audit returns the transition trail for a request.
func (n *Node) Audit(id string) ([]*types.AuditRecord, error) {
	return n.store.ListAudit(id)
}
