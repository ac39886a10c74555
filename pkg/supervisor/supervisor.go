// Package supervisor owns the lifecycle of every backend: spawn (with
// sandbox wrapper where applicable), detached I/O pump tasks, settle wait,
// crash detection, and the start/stop/update protocols.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/correlator"
	"github.com/mcpgate/gateway/pkg/logger"
	"github.com/mcpgate/gateway/pkg/registry"
	"github.com/mcpgate/gateway/pkg/store"
	"github.com/mcpgate/gateway/pkg/telemetry/metrics"
	"github.com/mcpgate/gateway/pkg/transport"
	"github.com/mcpgate/gateway/pkg/transport/npx"
	"github.com/mcpgate/gateway/pkg/transport/sandbox"
)

// Sentinel errors for the supervisor's start/stop protocols.
var (
	// ErrAlreadyRunning mirrors registry.ErrAlreadyRunning at this layer so
	// callers of pkg/supervisor never need to import pkg/registry directly.
	ErrAlreadyRunning = registry.ErrAlreadyRunning

	// ErrBackendDown is returned when a forwarded request targets an entry
	// whose state is Crashed or Stopped.
	ErrBackendDown = errors.New("supervisor: backend is down")

	// ErrStartFailed wraps any spawn-time failure.
	ErrStartFailed = errors.New("supervisor: failed to start backend")
)

// stopTimeout bounds how long Stop waits for the child to exit before
// giving up the wait while still retaining the kill.
const stopTimeout = 5 * time.Second

// Supervisor owns every running backend's lifecycle on behalf of the
// registry. One Supervisor serves the whole process.
type Supervisor struct {
	reg     *registry.Registry
	backend store.Store
	sandbox sandbox.Wrapper

	mu    sync.RWMutex
	procs map[string]*processHandle
}

// New constructs a Supervisor backed by reg for live handles and backend
// for persisted ServerDefinitions.
func New(reg *registry.Registry, backend store.Store) *Supervisor {
	return &Supervisor{
		reg:     reg,
		backend: backend,
		sandbox: sandbox.Default(),
		procs:   make(map[string]*processHandle),
	}
}

// processHandle is the concrete per-backend state the supervisor tracks for
// a stdio child beyond what registry.Entry already carries: the OS process,
// its correlator, and the errgroup running its detached pumps.
type processHandle struct {
	proc       *osProcess
	corr       *correlator.Correlator
	pump       *errgroup.Group
	pumpCancel context.CancelFunc
}

// Start brings one backend up: refuse a duplicate name, resolve the
// command, spawn, launch the pump tasks, and hand the registry entry back.
func (s *Supervisor) Start(ctx context.Context, def catalog.ServerDefinition) (*registry.Entry, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	if _, err := s.reg.Lookup(def.Name); err == nil {
		return nil, ErrAlreadyRunning
	}

	switch def.Transport {
	case catalog.TransportHTTP:
		return s.startHTTP(def)
	default:
		return s.startStdio(ctx, def)
	}
}

func (s *Supervisor) startHTTP(def catalog.ServerDefinition) (*registry.Entry, error) {
	if len(def.Args) == 0 {
		return nil, fmt.Errorf("%w: http transport requires args[0] to be a URL", ErrStartFailed)
	}
	backend := transport.NewHTTPBackend(def.Name, def.Args[0], def.Env)

	entry, err := s.reg.Add(def.Name, backend, registry.StateRunning)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	logger.Infof("supervisor: backend %q started (http, url=%s)", def.Name, def.Args[0])
	metrics.RecordBackendStart(def.Name, string(catalog.TransportHTTP))
	return entry, nil
}

func (s *Supervisor) startStdio(ctx context.Context, def catalog.ServerDefinition) (*registry.Entry, error) {
	command, args, err := npx.Rewrite(def.Command, def.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	wrappedCommand, wrappedArgs := s.sandbox.Wrap(sandbox.DefaultProfile, command, args)

	corr := correlator.New(def.Name)
	backend := transport.NewProcess(def.Name, corr)

	proc, err := spawn(wrappedCommand, wrappedArgs, def.Env)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	entry, err := s.reg.Add(def.Name, backend, registry.StateStarting)
	if err != nil {
		_ = proc.kill()
		_ = backend.Close()
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(pumpCtx)
	ph := &processHandle{proc: proc, corr: corr, pump: g, pumpCancel: cancel}

	g.Go(func() error { return runOutboundWriter(gctx, proc, backend.Outbound()) })
	g.Go(func() error { return runStdoutPump(gctx, def.Name, proc, corr, s.onCrash(def.Name)) })
	g.Go(func() error { return runStderrPump(gctx, def.Name, proc) })
	g.Go(func() error { return runStatsReporter(gctx, def.Name, corr) })

	s.mu.Lock()
	s.procs[def.Name] = ph
	s.mu.Unlock()

	s.awaitSettle(def.Name, proc)
	entry.SetState(registry.StateRunning)

	logger.Infof("supervisor: backend %q started (stdio, command=%s)", def.Name, wrappedCommand)
	metrics.RecordBackendStart(def.Name, string(catalog.TransportStdio))
	return entry, nil
}

// awaitSettle checks that a freshly spawned process is alive. A process
// alive at the first check returns at once; one found dead is re-checked
// with exponential backoff for up to 200ms, after which a warning is logged.
// Start goes on in either case; the supervisor never performs the MCP
// handshake itself, the first forwarded request does.
func (s *Supervisor) awaitSettle(name string, proc *osProcess) {
	op := func() (struct{}, error) {
		if !proc.alive() {
			return struct{}{}, errors.New("process exited during startup")
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(context.Background(), op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(200*time.Millisecond),
	)
	if err != nil {
		logger.Warnf("supervisor: backend %q did not settle cleanly: %v", name, err)
	}
}

// onCrash returns the callback the stdout pump invokes on EOF while the
// entry is still Running.
func (s *Supervisor) onCrash(name string) func() {
	return func() {
		entry, err := s.reg.Lookup(name)
		if err != nil {
			return
		}
		if entry.State() == registry.StateRunning {
			entry.SetState(registry.StateCrashed)
			logger.Warnf("supervisor: backend %q crashed (stdout closed)", name)
			metrics.RecordBackendCrash(name)
		}
	}
}

// Stop tears one backend down: close the outbound queue (EOF to child
// stdin), kill the child, await its exit with an upper bound, drop the pump
// tasks, and remove the registry entry.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	entry, err := s.reg.Remove(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// Double-uninstall is a no-op.
			return nil
		}
		return err
	}
	entry.SetState(registry.StateStopping)

	if err := entry.Backend.Close(); err != nil {
		logger.Warnf("supervisor: closing backend %q: %v", name, err)
	}

	s.mu.Lock()
	ph, ok := s.procs[name]
	delete(s.procs, name)
	s.mu.Unlock()

	if !ok {
		// HTTP backend: nothing else to tear down.
		entry.SetState(registry.StateStopped)
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	if err := ph.proc.kill(); err != nil {
		logger.Warnf("supervisor: killing backend %q: %v", name, err)
	}
	if err := ph.proc.wait(stopCtx); err != nil {
		logger.Warnf("supervisor: backend %q did not exit within %s: %v", name, stopTimeout, err)
	}
	ph.pumpCancel()
	_ = ph.pump.Wait()

	entry.SetState(registry.StateStopped)
	logger.Infof("supervisor: backend %q stopped", name)
	metrics.RecordBackendStop(name)
	return nil
}

// Update replaces a running backend's definition: stop, persist, start.
func (s *Supervisor) Update(ctx context.Context, def catalog.ServerDefinition) (*registry.Entry, error) {
	if err := s.Stop(ctx, def.Name); err != nil {
		return nil, err
	}
	if s.backend != nil {
		if _, err := s.backend.Upsert(ctx, def); err != nil {
			return nil, fmt.Errorf("supervisor: persisting update for %q: %w", def.Name, err)
		}
	}
	return s.Start(ctx, def)
}

// Registry exposes the live-handle registry this supervisor drives, for the
// gateway's status surface.
func (s *Supervisor) Registry() *registry.Registry {
	return s.reg
}

// Correlator returns the response correlator backing a stdio entry, or nil
// for an HTTP entry or unknown name. Nothing in this module calls it: the
// proxy relies on transport.Process.SendAndReceive, which owns correlation.
func (s *Supervisor) Correlator(name string) *correlator.Correlator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ph, ok := s.procs[name]; ok {
		return ph.corr
	}
	return nil
}
