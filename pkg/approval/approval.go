package approval

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neurofed/axon/pkg/events"
	"github.com/neurofed/axon/pkg/log"
	"github.com/neurofed/axon/pkg/metrics"
	"github.com/neurofed/axon/pkg/storage"
	"github.com/neurofed/axon/pkg/types"
)

// legalTransitions is the full request state machine. A transition absent
// from this table is rejected.
var legalTransitions = map[types.RequestState][]types.RequestState{
	types.StateSubmitted: {types.StatePending},
	types.StatePending:   {types.StateApproved, types.StateDenied, types.StateExpired},
	types.StateApproved:  {types.StateRunning},
	types.StateRunning:   {types.StateCompleted, types.StateFailed},
}

// Transition validates a single state transition.
func Transition(from, to types.RequestState) error {
	for _, next := range legalTransitions[from] {
		if next == to {
			return nil
		}
	}
	return types.NewError(types.KindPolicy, "illegal transition %s -> %s", from, to)
}

// Machine serializes all request state transitions. A single mutex
// guarantees first-decision-wins; transitions are cheap, so contention is
// not a concern.
type Machine struct {
	mu     sync.Mutex
	store  storage.Store
	broker *events.Broker
	ttl    time.Duration
	logger zerolog.Logger
}

// NewMachine creates the state machine. ttl controls pending expiry; zero
// disables it.
func NewMachine(store storage.Store, broker *events.Broker, ttl time.Duration) *Machine {
	return &Machine{
		store:  store,
		broker: broker,
		ttl:    ttl,
		logger: log.WithComponent("approval"),
	}
}

// Create persists a new request and moves it Submitted -> Pending. Both
// states appear in the audit trail.
func (m *Machine) Create(req *types.AnalysisRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	req.State = types.StateSubmitted
	req.CreatedAt = now
	req.UpdatedAt = now
	if err := m.store.CreateRequest(req); err != nil {
		return err
	}

	if err := m.apply(req, types.StatePending, req.Requester.Name, "auto-transition on creation"); err != nil {
		return err
	}

	metrics.RequestsTotal.WithLabelValues(string(types.StatePending)).Inc()
	m.publish(events.EventRequestSubmitted, req, "Request submitted")
	return nil
}

// Get returns the request, applying lazy expiry on touch.
func (m *Machine) Get(id string) (*types.AnalysisRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *Machine) getLocked(id string) (*types.AnalysisRequest, error) {
	req, err := m.store.GetRequest(id)
	if err != nil {
		return nil, err
	}
	if expired, err := m.expireIfStale(req); err != nil {
		return nil, err
	} else if expired {
		m.publish(events.EventRequestExpired, req, "Request expired")
	}
	return req, nil
}

// expireIfStale moves an over-TTL pending request to Expired. The caller
// holds the mutex.
func (m *Machine) expireIfStale(req *types.AnalysisRequest) (bool, error) {
	if m.ttl <= 0 || req.State != types.StatePending {
		return false, nil
	}
	if time.Since(req.CreatedAt) <= m.ttl {
		return false, nil
	}
	if err := m.apply(req, types.StateExpired, "system", "pending longer than TTL"); err != nil {
		return false, err
	}
	m.logger.Info().Str("request_id", req.ID).Msg("Request expired")
	return true, nil
}

// Decide applies an approver's verdict. Approving an already-approved
// request is a no-op returning the prior record; any other decision on a
// decided request is rejected (first decision wins).
func (m *Machine) Decide(id, approver string, approve bool, notes string) (*types.AnalysisRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.getLocked(id)
	if err != nil {
		return nil, err
	}

	// Double approval of a not-yet-running request is idempotent. Once the
	// request is past Approved, a decision is a re-run attempt and is
	// rejected below.
	if approve && req.State == types.StateApproved &&
		req.Decision != nil && req.Decision.Approved {
		return req, nil
	}

	if req.State != types.StatePending {
		return nil, types.NewError(types.KindPolicy, "request %s is %s, not pending", id, req.State)
	}

	target := types.StateDenied
	outcome := "denied"
	event := events.EventRequestDenied
	if approve {
		target = types.StateApproved
		outcome = "approved"
		event = events.EventRequestApproved
	}

	req.Decision = &types.Decision{
		Approver:  approver,
		Approved:  approve,
		Notes:     notes,
		DecidedAt: time.Now().UTC(),
	}
	if err := m.apply(req, target, approver, notes); err != nil {
		return nil, err
	}

	metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
	m.publish(event, req, "Request "+outcome)
	m.logger.Info().
		Str("request_id", id).
		Str("approver", approver).
		Str("outcome", outcome).
		Msg("Decision recorded")
	return req, nil
}

// MarkRunning moves an approved request into Running and records the job
// id. Happens exactly once per request.
func (m *Machine) MarkRunning(id, jobID string) (*types.AnalysisRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.store.GetRequest(id)
	if err != nil {
		return nil, err
	}
	req.JobID = jobID
	if err := m.apply(req, types.StateRunning, "runner", "job "+jobID+" started"); err != nil {
		return nil, err
	}
	m.publish(events.EventJobStarted, req, "Job started")
	return req, nil
}

// MarkCompleted finishes a running request successfully.
func (m *Machine) MarkCompleted(id string) (*types.AnalysisRequest, error) {
	return m.finish(id, types.StateCompleted, "job completed")
}

// MarkFailed finishes a running request with a failure note.
func (m *Machine) MarkFailed(id, note string) (*types.AnalysisRequest, error) {
	return m.finish(id, types.StateFailed, note)
}

func (m *Machine) finish(id string, state types.RequestState, note string) (*types.AnalysisRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.store.GetRequest(id)
	if err != nil {
		return nil, err
	}
	if err := m.apply(req, state, "runner", note); err != nil {
		return nil, err
	}

	if state == types.StateCompleted {
		m.publish(events.EventJobCompleted, req, note)
	} else {
		m.publish(events.EventJobFailed, req, note)
	}
	return req, nil
}

// apply validates and persists one transition with its audit record. The
// caller holds the mutex.
func (m *Machine) apply(req *types.AnalysisRequest, to types.RequestState, principal, notes string) error {
	if err := Transition(req.State, to); err != nil {
		return err
	}
	from := req.State
	req.State = to
	req.UpdatedAt = time.Now().UTC()
	return m.store.UpdateRequest(req, &types.AuditRecord{
		Timestamp: req.UpdatedAt,
		RequestID: req.ID,
		FromState: from,
		ToState:   to,
		Principal: principal,
		Notes:     notes,
	})
}

func (m *Machine) publish(event events.EventType, req *types.AnalysisRequest, msg string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:      event,
		RequestID: req.ID,
		JobID:     req.JobID,
		Message:   msg,
	})
}
