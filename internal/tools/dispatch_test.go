package tools

import (
	"context"
	"testing"
)

type echoTool struct{ name string }

func (e *echoTool) Name() string                             { return e.name }
func (e *echoTool) Description() string                      { return "echo" }
func (e *echoTool) Parameters() map[string]interface{}       { return map[string]interface{}{} }
func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	p, _ := args["path"].(string)
	return NewResult(e.name + ":" + p)
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(&echoTool{name: "read_file"})
	r.Register(&echoTool{name: "write_file"})
	r.Register(&echoTool{name: "exec"})
	return r
}

func TestExecuteParallelPreservesOrder(t *testing.T) {
	reg := newTestRegistry()
	calls := []Call{
		{Index: 0, ID: "a", Name: "exec", Args: map[string]interface{}{}},
		{Index: 1, ID: "b", Name: "exec", Args: map[string]interface{}{}},
		{Index: 2, ID: "c", Name: "exec", Args: map[string]interface{}{}},
	}
	results := ExecuteParallel(context.Background(), reg, calls, 2, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("result %d out of order: index=%d", i, r.Index)
		}
	}
}

func TestPartitionSmartParallelSerializesWrites(t *testing.T) {
	calls := []Call{
		{Index: 0, Name: "read_file", Args: map[string]interface{}{"path": "a.go"}},
		{Index: 1, Name: "write_file", Args: map[string]interface{}{"path": "a.go"}},
		{Index: 2, Name: "read_file", Args: map[string]interface{}{"path": "a.go"}},
		{Index: 3, Name: "read_file", Args: map[string]interface{}{"path": "b.go"}},
		{Index: 4, Name: "exec", Args: map[string]interface{}{}},
	}
	groups := PartitionSmartParallel(calls)

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}
	group0Names := map[int]bool{}
	for _, c := range groups[0] {
		group0Names[c.Index] = true
	}
	if !group0Names[0] || group0Names[1] || !group0Names[3] || !group0Names[4] {
		t.Fatalf("unexpected group 0 membership: %+v", groups[0])
	}
	group1Names := map[int]bool{}
	for _, c := range groups[1] {
		group1Names[c.Index] = true
	}
	if len(groups[1]) != 2 || !group1Names[1] || !group1Names[2] {
		t.Fatalf("expected group 1 to hold the write and the read after it, got %+v", groups[1])
	}
}

func TestExecuteSmartParallelCoversAllCalls(t *testing.T) {
	reg := newTestRegistry()
	calls := []Call{
		{Index: 0, Name: "read_file", Args: map[string]interface{}{"path": "a.go"}},
		{Index: 1, Name: "write_file", Args: map[string]interface{}{"path": "a.go"}},
		{Index: 2, Name: "read_file", Args: map[string]interface{}{"path": "a.go"}},
	}
	results := ExecuteSmartParallel(context.Background(), reg, calls, 4, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("result %d has index %d", i, r.Index)
		}
	}
}
