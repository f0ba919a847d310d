package tools

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Call is one requested tool invocation, tagged with the index it held in
// the model's tool_calls list so results can be restored to that order.
type Call struct {
	Index int
	ID    string
	Name  string
	Args  map[string]interface{}
}

// CallResult pairs a Call's original index with its Result, so a dispatcher
// can sort goroutine-fanned-out results back into the order the model
// issued the calls in.
type CallResult struct {
	Index  int
	ID     string
	Result *Result
}

// pathArg extracts the file_path/path argument a call touches, if any.
func pathArg(args map[string]interface{}) (string, bool) {
	for _, key := range []string{"file_path", "path"} {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// writingTools names tools whose path argument is a write, not just a read,
// for the purposes of dependency-DAG partitioning.
var writingTools = map[string]bool{
	"write_file": true, "edit_file": true, "apply_patch": true, "delete_file": true,
}

// ExecuteParallel runs calls concurrently, bounded by maxConcurrency
// (<=0 means unbounded), each under perCallTimeout (nil means inherit ctx),
// and returns results restored to the calls' original order. This mirrors
// the index-tagged goroutine-fan-out-then-sort pattern used for multi-tool
// turns in the agent loop.
func ExecuteParallel(ctx context.Context, reg *Registry, calls []Call, maxConcurrency int, perCallTimeout func(name string) context.Context) []CallResult {
	if len(calls) == 0 {
		return nil
	}

	var sem *semaphore.Weighted
	if maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(maxConcurrency))
	}

	resultsCh := make(chan CallResult, len(calls))
	var wg sync.WaitGroup

	for _, call := range calls {
		wg.Add(1)
		go func(c Call) {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					resultsCh <- CallResult{Index: c.Index, ID: c.ID, Result: ErrorResult("execution cancelled: " + err.Error())}
					return
				}
				defer sem.Release(1)
			}

			callCtx := ctx
			if perCallTimeout != nil {
				callCtx = perCallTimeout(c.Name)
			}
			res := reg.Execute(callCtx, c.Name, c.Args)
			resultsCh <- CallResult{Index: c.Index, ID: c.ID, Result: res}
		}(call)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	out := make([]CallResult, 0, len(calls))
	for r := range resultsCh {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// PartitionSmartParallel splits calls into sequential execution groups by
// read/write conflicts on their file_path/path argument: a write to path p
// is placed in group locks[p]+1 (strictly after anything already scheduled
// against p); a read is placed in group locks[p] if p has been written
// before, else group 0 alongside every call that carries no path argument.
// Group indices are sequential: group N+1 can only start once every call in
// group N has completed.
func PartitionSmartParallel(calls []Call) [][]Call {
	locks := make(map[string]int)
	groupOf := make([]int, len(calls))
	maxGroup := 0

	for i, c := range calls {
		p, hasPath := pathArg(c.Args)
		if !hasPath {
			groupOf[i] = 0
			continue
		}
		current := locks[p]
		if writingTools[c.Name] {
			groupOf[i] = current + 1
			locks[p] = current + 1
		} else {
			groupOf[i] = current
		}
		if groupOf[i] > maxGroup {
			maxGroup = groupOf[i]
		}
	}

	groups := make([][]Call, maxGroup+1)
	for i, c := range calls {
		g := groupOf[i]
		groups[g] = append(groups[g], c)
	}

	// drop any empty trailing/interior groups while preserving relative order
	out := make([][]Call, 0, len(groups))
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// ExecuteSmartParallel partitions calls by PartitionSmartParallel, running
// each group with ExecuteParallel in turn, and concatenates the per-group
// results back into one index-ordered slice covering every original call.
func ExecuteSmartParallel(ctx context.Context, reg *Registry, calls []Call, maxConcurrency int, perCallTimeout func(name string) context.Context) []CallResult {
	groups := PartitionSmartParallel(calls)

	all := make([]CallResult, 0, len(calls))
	for _, group := range groups {
		all = append(all, ExecuteParallel(ctx, reg, group, maxConcurrency, perCallTimeout)...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	return all
}
