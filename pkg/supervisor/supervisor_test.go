package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/registry"
)

func catDefinition(name string) catalog.ServerDefinition {
	return catalog.ServerDefinition{
		Name:      name,
		Transport: catalog.TransportStdio,
		Command:   "/bin/cat",
		Args:      []string{},
		Env:       map[string]string{},
	}
}

// TestInstallCallUninstall drives the full lifecycle with a cat-backed
// stdio server, which echoes each request line back as its response.
func TestInstallCallUninstall(t *testing.T) {
	reg := registry.New()
	sup := New(reg, nil)
	ctx := context.Background()

	entry, err := sup.Start(ctx, catDefinition("cat"))
	require.NoError(t, err)
	require.Equal(t, registry.StateRunning, entry.State())

	req := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`)
	respCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := entry.Backend.SendAndReceive(respCtx, req)
	require.NoError(t, err)
	require.JSONEq(t, string(req), string(resp))

	require.NoError(t, sup.Stop(ctx, "cat"))

	_, err = reg.Lookup("cat")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestStartRefusesDuplicateName(t *testing.T) {
	reg := registry.New()
	sup := New(reg, nil)
	ctx := context.Background()

	_, err := sup.Start(ctx, catDefinition("dup"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Stop(ctx, "dup") })

	_, err = sup.Start(ctx, catDefinition("dup"))
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStopIsNoopWhenAlreadyStopped(t *testing.T) {
	reg := registry.New()
	sup := New(reg, nil)
	ctx := context.Background()

	require.NoError(t, sup.Stop(ctx, "never-started"))
	require.NoError(t, sup.Stop(ctx, "never-started"))
}

func TestNotificationReturnsEmptyBodyImmediately(t *testing.T) {
	reg := registry.New()
	sup := New(reg, nil)
	ctx := context.Background()

	entry, err := sup.Start(ctx, catDefinition("notify"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Stop(ctx, "notify") })

	start := time.Now()
	resp, err := entry.Backend.SendAndReceive(ctx, []byte(`{"jsonrpc":"2.0","method":"cancelled","params":{}}`))
	require.NoError(t, err)
	require.Empty(t, resp)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestConcurrentCallersGetTheirOwnResponse(t *testing.T) {
	reg := registry.New()
	sup := New(reg, nil)
	ctx := context.Background()

	entry, err := sup.Start(ctx, catDefinition("concurrent"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Stop(ctx, "concurrent") })

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(id int) {
			req := []byte(`{"jsonrpc":"2.0","id":` + strconv.Itoa(id) + `,"method":"echo"}`)
			respCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			resp, err := entry.Backend.SendAndReceive(respCtx, req)
			if err != nil {
				errs <- err
				return
			}
			if string(resp) != string(req) {
				errs <- fmt.Errorf("response id mismatch for caller %d", id)
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
}
