package agent

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/opencoder/agentruntime/internal/contextmgr"
	"github.com/opencoder/agentruntime/internal/providers"
	"github.com/opencoder/agentruntime/internal/store"
)

type fakeSessionStore struct {
	history []providers.Message
	summary string
}

func (f *fakeSessionStore) GetOrCreate(key string) *store.SessionData { return &store.SessionData{Key: key} }
func (f *fakeSessionStore) AddMessage(key string, msg providers.Message) {
	f.history = append(f.history, msg)
}
func (f *fakeSessionStore) GetHistory(key string) []providers.Message   { return f.history }
func (f *fakeSessionStore) GetSummary(key string) string                { return f.summary }
func (f *fakeSessionStore) SetSummary(key, summary string)              { f.summary = summary }
func (f *fakeSessionStore) SetLabel(key, label string)                  {}
func (f *fakeSessionStore) SetAgentInfo(string, uuid.UUID, string)      {}
func (f *fakeSessionStore) UpdateMetadata(key, model, provider, channel string) {}
func (f *fakeSessionStore) AccumulateTokens(key string, input, output int64)    {}
func (f *fakeSessionStore) IncrementCompaction(key string)              {}
func (f *fakeSessionStore) GetCompactionCount(key string) int           { return 0 }
func (f *fakeSessionStore) GetMemoryFlushCompactionCount(key string) int { return 0 }
func (f *fakeSessionStore) SetMemoryFlushDone(key string)               {}
func (f *fakeSessionStore) SetSpawnInfo(key, spawnedBy string, depth int) {}
func (f *fakeSessionStore) SetContextWindow(key string, cw int)         {}
func (f *fakeSessionStore) GetContextWindow(key string) int             { return 0 }
func (f *fakeSessionStore) SetLastPromptTokens(key string, tokens, msgCount int) {}
func (f *fakeSessionStore) GetLastPromptTokens(key string) (int, int)   { return 0, 0 }
func (f *fakeSessionStore) TruncateHistory(key string, keepLast int) {
	if keepLast <= 0 {
		f.history = nil
	} else if len(f.history) > keepLast {
		f.history = f.history[len(f.history)-keepLast:]
	}
}
func (f *fakeSessionStore) Reset(key string) { f.history = nil; f.summary = "" }
func (f *fakeSessionStore) Delete(key string) error { f.history = nil; return nil }
func (f *fakeSessionStore) List(agentID string) []store.SessionInfo { return nil }
func (f *fakeSessionStore) ListPaged(opts store.SessionListOpts) store.SessionListResult {
	return store.SessionListResult{}
}
func (f *fakeSessionStore) Save(key string) error                           { return nil }
func (f *fakeSessionStore) LastUsedChannel(agentID string) (string, string) { return "", "" }

type fakeSummarizeProvider struct{ summary string }

func (p *fakeSummarizeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: p.summary}, nil
}
func (p *fakeSummarizeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}
func (p *fakeSummarizeProvider) DefaultModel() string { return "fake-model" }
func (p *fakeSummarizeProvider) Name() string         { return "fake" }

func newCompressTestLoop(sessions *fakeSessionStore, provider providers.Provider) *Loop {
	cfg := contextmgr.DefaultWindowConfig()
	cfg.MinPreservedMessages = 2
	cfg.SummarizationThreshold = 0.0 // always needs management once any message exists
	cfg.MaxTokens = 1000
	cfg.ReservedForResponse = 0
	return &Loop{
		id:        "test-agent",
		provider:  provider,
		model:     "fake-model",
		sessions:  sessions,
		windowCfg: cfg,
	}
}

func TestMaybeCompressEvictsAndRecordsCheckpoint(t *testing.T) {
	sessions := &fakeSessionStore{history: []providers.Message{
		{Role: "user", Content: "first message"},
		{Role: "assistant", Content: "first reply"},
		{Role: "user", Content: "second message"},
		{Role: "assistant", Content: "second reply"},
		{Role: "user", Content: "third message"},
		{Role: "assistant", Content: "third reply"},
	}}
	provider := &fakeSummarizeProvider{summary: "compacted summary of the conversation"}
	l := newCompressTestLoop(sessions, provider)

	l.maybeCompress(context.Background(), RunRequest{SessionKey: "sess-1"}, sessions.GetHistory("sess-1"))

	if len(sessions.history) != 2 {
		t.Fatalf("expected history truncated to MinPreservedMessages=2, got %d", len(sessions.history))
	}
	if sessions.summary == "" {
		t.Fatal("expected a summary to be recorded on the session")
	}

	w := l.windowFor("sess-1")
	if len(w.Checkpoints) != 1 {
		t.Fatalf("expected exactly one checkpoint recorded, got %d", len(w.Checkpoints))
	}
	if w.Checkpoints[0].MessageCount() != 4 {
		t.Fatalf("expected the checkpoint to hold the 4 evicted messages, got %d", w.Checkpoints[0].MessageCount())
	}
}

func TestRestoreLastCheckpointUndoesCompaction(t *testing.T) {
	sessions := &fakeSessionStore{history: []providers.Message{
		{Role: "user", Content: "first message"},
		{Role: "assistant", Content: "first reply"},
		{Role: "user", Content: "second message"},
		{Role: "assistant", Content: "second reply"},
	}}
	provider := &fakeSummarizeProvider{summary: "summary"}
	l := newCompressTestLoop(sessions, provider)

	l.maybeCompress(context.Background(), RunRequest{SessionKey: "sess-1"}, sessions.GetHistory("sess-1"))
	if len(sessions.history) >= 4 {
		t.Fatal("expected compaction to have shrunk the history before restoring")
	}

	if !l.RestoreLastCheckpoint("sess-1") {
		t.Fatal("expected a checkpoint to be available to restore")
	}
	if len(sessions.history) != 4 {
		t.Fatalf("expected history fully restored to 4 messages, got %d", len(sessions.history))
	}

	w := l.windowFor("sess-1")
	if len(w.Checkpoints) != 0 {
		t.Fatalf("expected no checkpoints left after restoring the only one, got %d", len(w.Checkpoints))
	}
}

func TestRestoreAllCheckpointsReportsZeroWhenNoneExist(t *testing.T) {
	sessions := &fakeSessionStore{}
	l := newCompressTestLoop(sessions, &fakeSummarizeProvider{})

	if count := l.RestoreAllCheckpoints("sess-empty"); count != 0 {
		t.Fatalf("expected 0 restorations with no checkpoints, got %d", count)
	}
}
