package tools

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/mattn/go-runewidth"
)

// PtyState is the lifecycle state of a PTY-backed process.
type PtyState string

const (
	PtyPending   PtyState = "pending"
	PtyRunning   PtyState = "running"
	PtyCompleted PtyState = "completed"
	PtyFailed    PtyState = "failed"
	PtyTimeout   PtyState = "timeout"
	PtyCancelled PtyState = "cancelled"
)

// PtyMode selects whether Run blocks for completion or returns immediately.
type PtyMode int

const (
	PtySynchronous PtyMode = iota
	PtyBackground
)

// PtySession tracks one PTY-backed process, used for REPLs and other
// interactive programs that require a real terminal to behave correctly.
type PtySession struct {
	ID      string
	Command string
	Cols    int
	Rows    int

	mu    sync.Mutex
	state PtyState
	buf   []byte

	file ptyFile
	cmd  *exec.Cmd
	done chan struct{}
}

// ptyFile is the minimal surface PtyExecutor needs from a *os.File wrapping
// a pseudo-terminal, so tests can substitute a fake.
type ptyFile interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// PtyExecutor allocates a pseudo-terminal per session, matching REPL/
// interactive-program execution that a plain pipe-based executor can't
// drive correctly (line-buffering, echo, raw mode).
type PtyExecutor struct {
	mu       sync.Mutex
	sessions map[string]*PtySession
	logs     *LogBus
}

func NewPtyExecutor(logs *LogBus) *PtyExecutor {
	return &PtyExecutor{sessions: make(map[string]*PtySession), logs: logs}
}

// Start allocates a PTY, spawns command inside it, and returns the session
// handle immediately (PtyBackground) or once the command exits
// (PtySynchronous, honoring ctx's deadline).
func (e *PtyExecutor) Start(ctx context.Context, id, command string, cols, rows int, mode PtyMode, timeout time.Duration) (*PtySession, error) {
	name, args := shellInvocation(command)
	cmd := exec.Command(name, args...)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("allocate pty: %w", err)
	}

	sess := &PtySession{
		ID: id, Command: command, Cols: cols, Rows: rows,
		state: PtyRunning, file: f, cmd: cmd, done: make(chan struct{}),
	}

	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	if e.logs != nil {
		e.logs.CreateBuffer(id, command)
	}

	go e.pump(sess)
	go e.supervise(ctx, sess, timeout)

	if mode == PtySynchronous {
		<-sess.done
	}

	return sess, nil
}

func (e *PtyExecutor) pump(sess *PtySession) {
	scanner := bufio.NewScanner(sess.file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		sess.mu.Lock()
		sess.buf = append(sess.buf, []byte(line+"\n")...)
		sess.mu.Unlock()
		if e.logs != nil {
			e.logs.Push(sess.ID, "stdout", line)
		}
	}
	_ = sess.cmd.Wait()

	sess.mu.Lock()
	if sess.state == PtyRunning {
		sess.state = PtyCompleted
	}
	sess.mu.Unlock()
	close(sess.done)

	if e.logs != nil {
		e.logs.Close(sess.ID)
	}
}

func (e *PtyExecutor) supervise(ctx context.Context, sess *PtySession, timeout time.Duration) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-sess.done:
	case <-timeoutCh:
		sess.mu.Lock()
		sess.state = PtyTimeout
		sess.mu.Unlock()
		_ = sess.cmd.Process.Kill()
	case <-ctx.Done():
		sess.mu.Lock()
		sess.state = PtyCancelled
		sess.mu.Unlock()
		_ = sess.cmd.Process.Kill()
	}
}

// Write sends input to a running PTY session, e.g. answering an
// interactive prompt.
func (e *PtyExecutor) Write(id string, input []byte) error {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown pty session: %s", id)
	}
	_, err := sess.file.Write(input)
	return err
}

// State returns the current state of a session.
func (e *PtyExecutor) State(id string) (PtyState, bool) {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return "", false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state, true
}

// Cancel force-kills a running session.
func (e *PtyExecutor) Cancel(id string) bool {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	sess.mu.Lock()
	if sess.state != PtyRunning {
		sess.mu.Unlock()
		return false
	}
	sess.state = PtyCancelled
	sess.mu.Unlock()
	_ = sess.cmd.Process.Kill()
	return true
}

// Output returns the session's accumulated output, truncated to width
// columns per line for terminal-safe display (accounting for wide
// characters, since a naive byte/rune count misjudges CJK/emoji width).
func (e *PtyExecutor) Output(id string, width int) (string, bool) {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return "", false
	}
	sess.mu.Lock()
	out := string(sess.buf)
	sess.mu.Unlock()

	if width <= 0 {
		return out, true
	}
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = runewidth.Truncate(line, width, "...")
	}
	return strings.Join(lines, "\n"), true
}
