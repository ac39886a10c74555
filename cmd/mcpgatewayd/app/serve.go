package app

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpgate/gateway/pkg/authz"
	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/config"
	"github.com/mcpgate/gateway/pkg/gateway"
	"github.com/mcpgate/gateway/pkg/logger"
	"github.com/mcpgate/gateway/pkg/registry"
	"github.com/mcpgate/gateway/pkg/store/sqlite"
	"github.com/mcpgate/gateway/pkg/supervisor"
	"github.com/mcpgate/gateway/pkg/telemetry/tracing"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway and supervise installed MCP servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("listen-addr", "", "Address to bind the gateway listener to")
	flags.String("state-dir", "", "Directory holding the database, lock file, and config")
	flags.String("db-path", "", "Path to the sqlite database (defaults to <state-dir>/mcpgate.db)")
	flags.String("catalog-path", "", "Path to a server catalog file replacing the bundled one")
	flags.String("policy-path", "", "Path to a Cedar authorization policy file")
	flags.String("sandbox-profile-dir", "", "Recorded in the config only; sandbox-exec profiles are always loaded from ./sandbox-exec-profiles")

	for flag, key := range map[string]string{
		"listen-addr":         "listen_addr",
		"state-dir":           "state_dir",
		"db-path":             "db_path",
		"catalog-path":        "catalog_path",
		"policy-path":         "policy_path",
		"sandbox-profile-dir": "sandbox_profile_dir",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			logger.Errorf("error binding %s flag: %v", flag, err)
		}
	}
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := cfg.EnsureStateDir(); err != nil {
		return err
	}

	// One process, one user: a second daemon against the same state
	// directory refuses to start rather than fighting over the database
	// and the fixed listener port.
	lock := flock.New(filepath.Join(cfg.StateDir, "mcpgatewayd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another mcpgatewayd instance holds %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	backend, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	authorizer, err := authz.Load(cfg.PolicyPath)
	if err != nil {
		return err
	}

	shutdownTracing := tracing.Init("mcpgatewayd")
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	sup := supervisor.New(reg, backend)
	defer stopAll(sup)

	startPersisted(ctx, sup, backend)

	return gateway.Serve(ctx, gateway.Config{
		ListenAddr:     cfg.ListenAddr,
		Registry:       reg,
		Supervisor:     sup,
		Store:          backend,
		Authorizer:     authorizer,
		LLMProviders:   cfg.LLMProviders,
		CatalogEntries: loadCatalog(cfg.CatalogPath),
	})
}

// loadCatalog resolves the static catalog: an explicit --catalog-path
// replaces the one compiled into the binary. Entries stay browsable until
// the user installs them through the API.
func loadCatalog(path string) []catalog.ServerDefinition {
	var (
		entries []catalog.ServerDefinition
		err     error
	)
	if path != "" {
		entries, err = catalog.Load(path)
	} else {
		entries, err = catalog.Bundled()
	}
	if err != nil {
		logger.Warnf("serve: loading catalog: %v", err)
		return nil
	}
	return entries
}

// startPersisted brings every installed ServerDefinition up. A definition
// that fails to start is logged and skipped; it stays installed so the user
// can fix it through the API.
func startPersisted(ctx context.Context, sup *supervisor.Supervisor, backend *sqlite.Store) {
	defs, err := backend.LoadAllDefinitions(ctx)
	if err != nil {
		logger.Errorf("serve: loading definitions: %v", err)
		return
	}
	for _, def := range defs {
		if _, err := sup.Start(ctx, def); err != nil {
			logger.Warnf("serve: starting %q: %v", def.Name, err)
		}
	}
}

func stopAll(sup *supervisor.Supervisor) {
	ctx := context.Background()
	for _, name := range sup.Registry().Names() {
		if err := sup.Stop(ctx, name); err != nil {
			logger.Warnf("serve: stopping %q: %v", name, err)
		}
	}
}
