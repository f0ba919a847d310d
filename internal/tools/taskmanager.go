package tools

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a submitted task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskTimeout   TaskState = "timeout"
	TaskCancelled TaskState = "cancelled"
)

func (s TaskState) terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskTimeout, TaskCancelled:
		return true
	}
	return false
}

// Task is one unit of work tracked by a TaskManager.
type Task struct {
	ID          string
	SessionID   string
	ToolName    string
	Command     string
	Env         []string
	TimeoutPolicy TimeoutPolicy

	State       TaskState
	ExitCode    int
	Error       string
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	cancel context.CancelFunc
}

// TaskStatus is a lightweight snapshot safe to hand out without exposing
// the live Task struct.
type TaskStatus struct {
	ID           string
	SessionID    string
	ToolName     string
	Command      string
	State        TaskState
	IsRunning    bool
	HasErrors    bool
	LogLineCount int
}

// ResourceStats summarizes the manager's current task population.
type ResourceStats struct {
	Total     int
	Running   int
	Pending   int
	Completed int
	Failed    int
}

// TaskManagerConfig bounds concurrency and retention.
type TaskManagerConfig struct {
	MaxConcurrent int
}

// DefaultTaskManagerConfig matches the original manager's defaults.
func DefaultTaskManagerConfig() TaskManagerConfig {
	return TaskManagerConfig{MaxConcurrent: 4}
}

// TaskManager owns a FIFO queue of submitted tasks, dispatches them to a
// LocalExecutor under a bounded running-count gauge, and retains completed
// tasks until explicitly cleaned up.
type TaskManager struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	queue    []string
	running  int
	config   TaskManagerConfig
	executor *LocalExecutor
	logs     *LogBus
	dispatch chan struct{} // signals the dispatcher to re-check the queue
}

// NewTaskManager creates a manager whose tasks stream output into logs and
// execute via executor.
func NewTaskManager(cfg TaskManagerConfig, executor *LocalExecutor, logs *LogBus) *TaskManager {
	m := &TaskManager{
		tasks:    make(map[string]*Task),
		config:   cfg,
		executor: executor,
		logs:     logs,
		dispatch: make(chan struct{}, 1),
	}
	return m
}

// Submit enqueues a new task and returns its ID. The dispatcher picks it up
// as soon as a concurrency slot frees.
func (m *TaskManager) Submit(sessionID, toolName, command string, env []string, policy TimeoutPolicy) string {
	m.mu.Lock()
	id := uuid.New().String()
	m.tasks[id] = &Task{
		ID: id, SessionID: sessionID, ToolName: toolName, Command: command,
		Env: env, TimeoutPolicy: policy, State: TaskPending, SubmittedAt: time.Now(),
	}
	m.queue = append(m.queue, id)
	m.mu.Unlock()

	m.wake()
	return id
}

func (m *TaskManager) wake() {
	select {
	case m.dispatch <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is cancelled, dispatching tasks as
// concurrency slots free up. Call it once in a background goroutine per
// TaskManager instance.
func (m *TaskManager) Run(ctx context.Context) {
	for {
		m.processQueue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-m.dispatch:
		}
	}
}

func (m *TaskManager) processQueue(ctx context.Context) {
	for {
		m.mu.Lock()
		if m.running >= m.config.MaxConcurrent || len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		id := m.queue[0]
		m.queue = m.queue[1:]
		task, ok := m.tasks[id]
		if !ok {
			m.mu.Unlock()
			continue
		}
		m.running++
		taskCtx, cancel := context.WithCancel(ctx)
		task.cancel = cancel
		task.State = TaskRunning
		task.StartedAt = time.Now()
		m.mu.Unlock()

		go m.execute(taskCtx, task)
	}
}

func (m *TaskManager) execute(ctx context.Context, task *Task) {
	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
		m.wake()
	}()

	if m.logs != nil {
		m.logs.CreateBuffer(task.ID, task.Command)
	}

	outcome, err := m.executor.Execute(ctx, task.ID, task.Command, task.Env, task.TimeoutPolicy)

	m.mu.Lock()
	task.CompletedAt = time.Now()
	switch {
	case ctx.Err() == context.Canceled && err == context.Canceled:
		task.State = TaskCancelled
	case err != nil:
		task.State = TaskFailed
		task.Error = err.Error()
	case outcome.TimedOut:
		task.State = TaskTimeout
		task.Error = outcome.Reason
	default:
		task.State = TaskCompleted
		task.ExitCode = outcome.ExitCode
	}
	m.mu.Unlock()
}

// Get returns the live Task by ID.
func (m *TaskManager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

// GetStatus returns a TaskStatus snapshot, joined with log buffer info.
func (m *TaskManager) GetStatus(id string) (TaskStatus, bool) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return TaskStatus{}, false
	}
	status := TaskStatus{
		ID: t.ID, SessionID: t.SessionID, ToolName: t.ToolName, Command: t.Command,
		State: t.State, IsRunning: t.State == TaskRunning,
	}
	if m.logs != nil {
		entries := m.logs.Tail(t.ID, 0)
		status.LogLineCount = len(entries)
		status.HasErrors = len(m.logs.Errors(t.ID)) > 0
	}
	return status, true
}

// Cancel stops a task: if still queued it's removed outright, if running its
// context is cancelled so the executor kills the process.
func (m *TaskManager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if t.State == TaskPending {
		for i, qid := range m.queue {
			if qid == id {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
		t.State = TaskCancelled
		t.CompletedAt = time.Now()
		m.mu.Unlock()
		return true
	}
	cancel := t.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// CancelSession cancels every non-terminal task belonging to sessionID.
func (m *TaskManager) CancelSession(sessionID string) int {
	m.mu.Lock()
	var ids []string
	for id, t := range m.tasks {
		if t.SessionID == sessionID && !t.State.terminal() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Cancel(id)
	}
	return len(ids)
}

// ForceKillAll cancels every running task across all sessions.
func (m *TaskManager) ForceKillAll() int {
	m.mu.Lock()
	var ids []string
	for id, t := range m.tasks {
		if t.State == TaskRunning {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Cancel(id)
	}
	return len(ids)
}

// RunningCount reports how many tasks are currently executing.
func (m *TaskManager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// PendingCount reports how many tasks are queued but not yet started.
func (m *TaskManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// ResourceStats summarizes the current task population.
func (m *TaskManager) ResourceStats() ResourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := ResourceStats{Total: len(m.tasks), Running: m.running, Pending: len(m.queue)}
	for _, t := range m.tasks {
		switch t.State {
		case TaskCompleted:
			stats.Completed++
		case TaskFailed, TaskTimeout:
			stats.Failed++
		}
	}
	return stats
}

// CleanupCompleted retains only the most recent keepPerSession terminal
// tasks per session, dropping older ones, matching the original retention
// sweep.
func (m *TaskManager) CleanupCompleted(keepPerSession int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySession := make(map[string][]*Task)
	for _, t := range m.tasks {
		if t.State.terminal() {
			bySession[t.SessionID] = append(bySession[t.SessionID], t)
		}
	}

	removed := 0
	for _, tasks := range bySession {
		if len(tasks) <= keepPerSession {
			continue
		}
		for i := 0; i < len(tasks); i++ {
			for j := i + 1; j < len(tasks); j++ {
				if tasks[j].CompletedAt.Before(tasks[i].CompletedAt) {
					tasks[i], tasks[j] = tasks[j], tasks[i]
				}
			}
		}
		toRemove := tasks[:len(tasks)-keepPerSession]
		for _, t := range toRemove {
			delete(m.tasks, t.ID)
			if m.logs != nil {
				m.logs.Close(t.ID)
			}
			removed++
		}
	}
	return removed
}

// CleanupOlderThan removes terminal tasks that completed before the cutoff.
func (m *TaskManager) CleanupOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.tasks {
		if t.State.terminal() && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			if m.logs != nil {
				m.logs.Close(id)
			}
			removed++
		}
	}
	return removed
}

// StartPeriodicCleanup runs CleanupCompleted/CleanupOlderThan on interval
// until ctx is cancelled, driven by its own time.Ticker; it blocks until
// then.
func (m *TaskManager) StartPeriodicCleanup(ctx context.Context, interval time.Duration, keepPerSession int, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupCompleted(keepPerSession)
			m.CleanupOlderThan(maxAge)
		}
	}
}
