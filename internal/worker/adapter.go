// ABOUTME: Supervises one external worker process per session
// ABOUTME: Demultiplexes stdout JSONL into typed events and stderr into system logs

package worker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/arkgart/orchestra/internal/event"
)

const (
	// sessionIDEnv carries the session identifier to the worker
	// out-of-band, alongside the request on stdin.
	sessionIDEnv = "ORCHESTRA_SESSION_ID"

	// maxLineBytes bounds a single stdout line; graph snapshots for
	// large tournaments can run well past bufio's default.
	maxLineBytes = 4 * 1024 * 1024
)

// Bus receives the events the adapter extracts from worker output.
// The session registry satisfies this.
type Bus interface {
	Publish(sessionID string, ev *event.Event) error
}

// Command locates the worker executable.
type Command struct {
	Path string
	Args []string
}

// Adapter owns exactly one live worker process. Process resources are
// released when the process exits, regardless of why.
type Adapter struct {
	sessionID string
	cmd       *exec.Cmd
	bus       Bus
	logger    *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// Start spawns the worker, writes the serialized request to its stdin,
// and begins translating its output into events on the bus. The session
// identifier travels in the worker's environment.
func Start(command Command, sessionID string, req *Request, bus Bus, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if command.Path == "" {
		return nil, errors.New("worker command path is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Env = append(os.Environ(), sessionIDEnv+"="+sessionID)
	cmd.Stdin = bytes.NewReader(payload)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}

	a := &Adapter{
		sessionID: sessionID,
		cmd:       cmd,
		bus:       bus,
		logger:    logger.With("component", "worker", "session_id", sessionID),
		done:      make(chan struct{}),
	}

	a.logger.Info("worker started", "pid", cmd.Process.Pid, "command", command.Path)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		a.readEvents(stdout)
	}()
	go func() {
		defer readers.Done()
		a.readDiagnostics(stderr)
	}()

	go a.reap(&readers)

	return a, nil
}

// readEvents parses each stdout line as one event record. Malformed
// lines are logged and dropped; they never end the session.
func (a *Adapter) readEvents(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		ev, err := event.Parse(line)
		if err != nil {
			a.logger.Warn("dropping malformed worker line", "error", err)
			continue
		}

		if err := a.bus.Publish(a.sessionID, ev); err != nil {
			a.logger.Warn("publish failed", "error", err, "type", ev.Type)
		}
	}

	if err := scanner.Err(); err != nil {
		a.logger.Warn("worker stdout read error", "error", err)
	}
}

// readDiagnostics wraps each stderr line as a system-attributed log event.
func (a *Adapter) readDiagnostics(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := a.bus.Publish(a.sessionID, event.SystemLog(line)); err != nil {
			a.logger.Warn("publish failed for diagnostic line", "error", err)
		}
	}
}

// reap waits for both readers to drain, then for the process to exit.
// A non-zero exit fabricates a terminal error event; a clean exit
// without an explicit complete event leaves the session status as-is.
func (a *Adapter) reap(readers *sync.WaitGroup) {
	defer close(a.done)

	readers.Wait()
	err := a.cmd.Wait()

	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		a.logger.Error("worker failed", "exit_code", code, "error", err)
		if pubErr := a.bus.Publish(a.sessionID, event.Errorf("worker exited with code %d", code)); pubErr != nil {
			a.logger.Warn("publish failed for exit event", "error", pubErr)
		}
		return
	}

	a.logger.Info("worker exited cleanly")
}

// Stop kills the worker process. The exit path in reap still runs, so
// resources are released exactly once.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() {
		if a.cmd.Process != nil {
			_ = a.cmd.Process.Kill()
		}
	})
}

// Done closes when the worker has exited and all output is drained.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}
