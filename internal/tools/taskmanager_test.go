package tools

import (
	"context"
	"testing"
	"time"
)

func TestTaskManagerSubmitAndComplete(t *testing.T) {
	logs := NewLogBus()
	exec := NewLocalExecutor(logs)
	mgr := NewTaskManager(DefaultTaskManagerConfig(), exec, logs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go mgr.Run(ctx)

	id := mgr.Submit("sess-1", "exec", "echo hello", nil, HardTimeout(2*time.Second))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		status, ok := mgr.GetStatus(id)
		if ok && status.State != TaskPending && status.State != TaskRunning {
			if status.State != TaskCompleted {
				t.Fatalf("expected task to complete, got state %v", status.State)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("task did not complete within deadline")
}

func TestTaskManagerCancelPending(t *testing.T) {
	logs := NewLogBus()
	exec := NewLocalExecutor(logs)
	cfg := DefaultTaskManagerConfig()
	cfg.MaxConcurrent = 0 // nothing will ever dispatch, so it stays pending
	mgr := NewTaskManager(cfg, exec, logs)

	id := mgr.Submit("sess-1", "exec", "echo hi", nil, HardTimeout(time.Second))
	if !mgr.Cancel(id) {
		t.Fatal("expected Cancel to succeed for a pending task")
	}
	status, ok := mgr.GetStatus(id)
	if !ok || status.State != TaskCancelled {
		t.Fatalf("expected cancelled state, got %+v", status)
	}
}

func TestResourceStats(t *testing.T) {
	logs := NewLogBus()
	exec := NewLocalExecutor(logs)
	mgr := NewTaskManager(DefaultTaskManagerConfig(), exec, logs)
	mgr.Submit("s", "exec", "echo hi", nil, HardTimeout(time.Second))
	stats := mgr.ResourceStats()
	if stats.Total != 1 {
		t.Fatalf("expected 1 total task, got %d", stats.Total)
	}
}
