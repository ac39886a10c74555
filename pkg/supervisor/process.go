package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcpgate/gateway/pkg/correlator"
	"github.com/mcpgate/gateway/pkg/logger"
	"github.com/mcpgate/gateway/pkg/telemetry/metrics"
	"github.com/mcpgate/gateway/pkg/transport"
)

// Outbound stdin writes are rate-bound per backend so one caller flooding
// the queue cannot monopolize a child that is slow to read; the burst equals
// the queue capacity so normal traffic never waits.
const (
	outboundWritesPerSecond = 200
	outboundWriteBurst      = transport.OutboundQueueCapacity
)

// osProcess wraps the exec.Cmd and its three piped streams for one spawned
// backend: request lines go in on stdin, newline-delimited lines come out
// on stdout, and stderr is drained and logged.
type osProcess struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	exited atomic.Bool
	waitCh chan error
}

// spawn starts command with args and env piped on stdin/stdout/stderr. The
// child is exclusively owned by the returned osProcess.
func spawn(command string, args []string, env map[string]string) (*osProcess, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = mergeEnv(env)

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stderr pipe: %w", err)
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdinW.Close()
		_ = stdoutR.Close()
		_ = stderrR.Close()
		return nil, fmt.Errorf("%w: %w", transport.ErrSpawnFailed, err)
	}
	// The parent's copies of the child-side pipe halves must be closed so
	// EOF propagates correctly once the child exits.
	_ = stdinR.Close()
	_ = stdoutW.Close()
	_ = stderrW.Close()

	p := &osProcess{
		cmd:    cmd,
		stdin:  stdinW,
		stdout: stdoutR,
		stderr: stderrR,
		waitCh: make(chan error, 1),
	}
	go func() {
		err := cmd.Wait()
		p.exited.Store(true)
		p.waitCh <- err
	}()
	return p, nil
}

func (p *osProcess) alive() bool {
	return !p.exited.Load()
}

// kill sends the strongest available termination signal. It is safe to
// call multiple times.
func (p *osProcess) kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// wait blocks until the child exits or ctx is done.
func (p *osProcess) wait(ctx context.Context) error {
	select {
	case err := <-p.waitCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mergeEnv layers def.Env on top of the supervisor process's own
// environment, matching how a shell-launched MCP server would normally
// inherit PATH and friends.
func mergeEnv(overrides map[string]string) []string {
	base := os.Environ()
	for k, v := range overrides {
		base = append(base, k+"="+v)
	}
	return base
}

// runOutboundWriter drains backend's outbound queue into the child's stdin,
// one NDJSON line per message. It exits when the queue is closed (which is
// how an orderly stop delivers EOF to the child's stdin) or ctx is
// cancelled.
func runOutboundWriter(ctx context.Context, proc *osProcess, outbound <-chan []byte) error {
	defer func() {
		if err := proc.stdin.Close(); err != nil {
			logger.Warnf("supervisor: closing stdin: %v", err)
		}
	}()
	limiter := rate.NewLimiter(outboundWritesPerSecond, outboundWriteBurst)
	for {
		select {
		case body, ok := <-outbound:
			if !ok {
				return nil
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			line := make([]byte, 0, len(body)+1)
			line = append(line, body...)
			line = append(line, '\n')
			if _, err := proc.stdin.Write(line); err != nil {
				return fmt.Errorf("%w: %w", transport.ErrStdioClosed, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// runStdoutPump reads newline-delimited JSON lines from the child's stdout
// and feeds each into corr.Ingest. On EOF it invokes onEOF, which the
// supervisor uses to mark the entry Crashed unless the pump was cancelled
// as part of an orderly Stop.
func runStdoutPump(ctx context.Context, name string, proc *osProcess, corr *correlator.Correlator, onEOF func()) error {
	scanner := bufio.NewScanner(proc.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := append([]byte(nil), scanner.Bytes()...)
		corr.Ingest(line)
	}

	if err := scanner.Err(); err != nil {
		logger.Warnf("supervisor: backend %q stdout pump: %v", name, err)
	}
	select {
	case <-ctx.Done():
		// Cancelled as part of an orderly Stop; not a crash.
	default:
		onEOF()
	}
	return nil
}

// runStatsReporter publishes the correlator's discard/pending counters to
// the metrics gauges on a coarse tick.
func runStatsReporter(ctx context.Context, name string, corr *correlator.Correlator) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.SetCorrelatorStats(name, corr.DiscardedCount(), corr.PendingWaiters())
		case <-ctx.Done():
			return nil
		}
	}
}

// runStderrPump drains the child's stderr and logs each line as free-form
// text.
func runStderrPump(ctx context.Context, name string, proc *osProcess) error {
	scanner := bufio.NewScanner(proc.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		logger.Infof("supervisor: backend %q stderr: %s", name, scanner.Text())
	}
	return nil
}
