// Package subagent spawns and supervises bounded-concurrency child agents
// with per-type tool gating, priority queueing, and a resumable lifecycle.
package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type selects the behavioral profile (and therefore tool allow-list) of a
// spawned sub-agent.
type Type string

const (
	TypeExplore   Type = "explore"
	TypeImplement Type = "implement"
	TypeReview    Type = "review"
	TypeTest      Type = "test"
	TypeDebug     Type = "debug"
	TypeCustom    Type = "custom"
)

// Priority orders queued spawns; higher values run sooner.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// State is the sub-agent lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StatePaused    State = "paused"
)

func (s State) resumable() bool { return s == StatePaused || s == StateCompleted }

// SpawnRequest describes a child agent to create.
type SpawnRequest struct {
	ParentSessionID string
	Type            Type
	Prompt          string
	Description     string
	Priority        Priority
	MaxTurns        int
	RunInBackground bool
}

// Agent tracks one spawned sub-agent's state.
type Agent struct {
	ID              string
	ParentSessionID string
	Type            Type
	Prompt          string
	Description     string
	Priority        Priority
	MaxTurns        int
	Turn            int
	State           State
	Summary         string
	FailureReason   string
	CreatedAt       time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
	OutputFile      string
}

// AllowedTools returns the per-type tool allow-list gate. An empty list
// means "inherit the parent's full tool set" (Custom).
func AllowedTools(t Type) []string {
	switch t {
	case TypeExplore:
		return []string{"read_file", "list_files", "search", "glob", "web_search", "web_fetch"}
	case TypeImplement:
		return []string{"read_file", "write_file", "edit_file", "list_files", "search", "glob", "exec"}
	case TypeReview:
		return []string{"read_file", "list_files", "search", "glob"}
	case TypeTest:
		return []string{"read_file", "write_file", "edit_file", "list_files", "search", "glob", "exec"}
	case TypeDebug:
		return []string{"read_file", "write_file", "edit_file", "list_files", "search", "glob", "exec"}
	default:
		return nil
	}
}

// IsToolAllowed reports whether name is permitted for a sub-agent of type t.
// An empty allow-list (Custom) permits everything except the always-denied
// orchestration tools.
func IsToolAllowed(t Type, name string) bool {
	for _, denied := range alwaysDenied {
		if name == denied {
			return false
		}
	}
	allowed := AllowedTools(t)
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}

// alwaysDenied are tools no sub-agent may use regardless of type.
var alwaysDenied = []string{
	"spawn", "subagent", "sessions_spawn", "gateway", "cron", "session_status",
}

// Config bounds the orchestrator's concurrency and queue behavior.
type Config struct {
	MaxConcurrent    int
	MaxQueueSize     int // 0 = unbounded
	QueueTimeout     time.Duration
	DefaultMaxTurns  int
}

// DefaultConfig mirrors SubAgentManagerConfig's defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 4, MaxQueueSize: 16, QueueTimeout: 5 * time.Minute, DefaultMaxTurns: 50}
}

type queuedSpawn struct {
	agentID  string
	priority Priority
	queuedAt time.Time
	readyCh  chan struct{}
}

// QueueStats reports queue occupancy and wait-time telemetry.
type QueueStats struct {
	QueueLength   int
	TotalQueued   int
	TotalTimeouts int
	AvgWaitMillis int64
}

// RunFunc drives one sub-agent turn loop to completion, returning a summary
// string on success. The orchestrator doesn't know how to talk to a
// provider itself; it delegates that to the caller so it stays decoupled
// from the agent loop implementation.
type RunFunc func(ctx context.Context, agent *Agent) (summary string, err error)

// Orchestrator spawns and tracks sub-agents, enforcing a concurrency bound
// via a priority queue.
type Orchestrator struct {
	mu      sync.RWMutex
	agents  map[string]*Agent
	running int
	queue   []*queuedSpawn
	config  Config

	totalQueued   int
	totalTimeouts int
	totalWaitMs   int64

	discoveries *Store
}

// NewOrchestrator creates an Orchestrator sharing discoveries store.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		agents:      make(map[string]*Agent),
		config:      cfg,
		discoveries: NewStore(),
	}
}

// Discoveries returns the shared discovery store sub-agents publish into.
func (o *Orchestrator) Discoveries() *Store { return o.discoveries }

// Spawn creates a new Agent and either starts it immediately (if a
// concurrency slot is free) or queues it, honoring priority ordering:
// entries are inserted before the first strictly-lower-priority entry
// already queued, so equal-priority spawns stay FIFO.
func (o *Orchestrator) Spawn(ctx context.Context, req SpawnRequest, run RunFunc) (*Agent, error) {
	if req.MaxTurns <= 0 {
		req.MaxTurns = o.config.DefaultMaxTurns
	}

	agent := &Agent{
		ID:              uuid.New().String(),
		ParentSessionID: req.ParentSessionID,
		Type:            req.Type,
		Prompt:          req.Prompt,
		Description:     req.Description,
		Priority:        req.Priority,
		MaxTurns:        req.MaxTurns,
		State:           StatePending,
		CreatedAt:       time.Now(),
	}

	o.mu.Lock()
	o.agents[agent.ID] = agent

	if o.running < o.config.MaxConcurrent {
		o.running++
		o.mu.Unlock()
		o.start(ctx, agent, run)
		return agent, nil
	}

	if o.config.MaxQueueSize > 0 && len(o.queue) >= o.config.MaxQueueSize {
		delete(o.agents, agent.ID)
		o.mu.Unlock()
		return nil, fmt.Errorf("sub-agent queue full (%d/%d)", len(o.queue), o.config.MaxQueueSize)
	}

	q := &queuedSpawn{agentID: agent.ID, priority: req.Priority, queuedAt: time.Now(), readyCh: make(chan struct{})}
	pos := len(o.queue)
	for i, e := range o.queue {
		if e.priority < q.priority {
			pos = i
			break
		}
	}
	o.queue = append(o.queue, nil)
	copy(o.queue[pos+1:], o.queue[pos:])
	o.queue[pos] = q
	o.totalQueued++
	o.mu.Unlock()

	slog.Info("subagent queued", "id", agent.ID, "priority", req.Priority, "queue_length", len(o.queue))

	var timeoutCh <-chan time.Time
	if o.config.QueueTimeout > 0 {
		timer := time.NewTimer(o.config.QueueTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-q.readyCh:
		o.mu.Lock()
		o.totalWaitMs += time.Since(q.queuedAt).Milliseconds()
		o.mu.Unlock()
		o.start(ctx, agent, run)
		return agent, nil
	case <-timeoutCh:
		o.removeFromQueue(agent.ID)
		o.mu.Lock()
		o.totalTimeouts++
		delete(o.agents, agent.ID)
		o.mu.Unlock()
		return nil, fmt.Errorf("sub-agent queue timeout after %s", o.config.QueueTimeout)
	case <-ctx.Done():
		o.removeFromQueue(agent.ID)
		o.mu.Lock()
		delete(o.agents, agent.ID)
		o.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) removeFromQueue(agentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, e := range o.queue {
		if e.agentID == agentID {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return
		}
	}
}

func (o *Orchestrator) start(ctx context.Context, agent *Agent, run RunFunc) {
	o.mu.Lock()
	agent.State = StateRunning
	agent.StartedAt = time.Now()
	o.mu.Unlock()

	go func() {
		summary, err := run(ctx, agent)

		o.mu.Lock()
		if err != nil {
			agent.State = StateFailed
			agent.FailureReason = err.Error()
		} else {
			agent.State = StateCompleted
			agent.Summary = summary
		}
		agent.CompletedAt = time.Now()
		o.running--
		o.mu.Unlock()

		o.notifyNextInQueue()
	}()
}

func (o *Orchestrator) notifyNextInQueue() {
	o.mu.Lock()
	if len(o.queue) == 0 {
		o.mu.Unlock()
		return
	}
	next := o.queue[0]
	o.queue = o.queue[1:]
	o.running++
	o.mu.Unlock()

	close(next.readyCh)
}

// Get returns the Agent by ID.
func (o *Orchestrator) Get(id string) (*Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[id]
	return a, ok
}

// Cancel marks a running or pending agent cancelled. Pending (still queued)
// agents are removed from the queue outright; running agents rely on the
// caller's RunFunc observing ctx cancellation.
func (o *Orchestrator) Cancel(id, reason string) bool {
	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return false
	}
	wasRunning := a.State == StateRunning
	a.State = StateCancelled
	a.FailureReason = reason
	a.CompletedAt = time.Now()
	o.mu.Unlock()

	o.removeFromQueue(id)
	if wasRunning {
		o.mu.Lock()
		o.running--
		o.mu.Unlock()
		o.notifyNextInQueue()
	}
	return true
}

// Pause marks a running agent paused; it may later be resumed with Resume.
func (o *Orchestrator) Pause(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.agents[id]
	if !ok || a.State != StateRunning {
		return false
	}
	a.State = StatePaused
	return true
}

// Resume restarts a Paused or Completed agent's RunFunc from its current
// turn count, subject to the same concurrency bound as Spawn.
func (o *Orchestrator) Resume(ctx context.Context, id string, run RunFunc) error {
	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown sub-agent: %s", id)
	}
	if !a.State.resumable() {
		o.mu.Unlock()
		return fmt.Errorf("sub-agent %s is not resumable (state=%s)", id, a.State)
	}
	if o.running >= o.config.MaxConcurrent {
		o.mu.Unlock()
		return fmt.Errorf("no concurrency slots free to resume sub-agent %s", id)
	}
	o.running++
	o.mu.Unlock()

	o.start(ctx, a, run)
	return nil
}

// QueueStats reports current queue telemetry.
func (o *Orchestrator) QueueStats() QueueStats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	avg := int64(0)
	if o.totalQueued > 0 {
		avg = o.totalWaitMs / int64(o.totalQueued)
	}
	return QueueStats{
		QueueLength:   len(o.queue),
		TotalQueued:   o.totalQueued,
		TotalTimeouts: o.totalTimeouts,
		AvgWaitMillis: avg,
	}
}

// Cleanup drops terminal agents beyond the most recent keepPerSession per
// parent session.
func (o *Orchestrator) Cleanup(keepPerSession int) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	bySession := make(map[string][]*Agent)
	for _, a := range o.agents {
		if a.State == StateCompleted || a.State == StateFailed || a.State == StateCancelled {
			bySession[a.ParentSessionID] = append(bySession[a.ParentSessionID], a)
		}
	}

	removed := 0
	for _, agents := range bySession {
		if len(agents) <= keepPerSession {
			continue
		}
		for i := 0; i < len(agents); i++ {
			for j := i + 1; j < len(agents); j++ {
				if agents[j].CompletedAt.Before(agents[i].CompletedAt) {
					agents[i], agents[j] = agents[j], agents[i]
				}
			}
		}
		for _, a := range agents[:len(agents)-keepPerSession] {
			delete(o.agents, a.ID)
			removed++
		}
	}
	return removed
}
