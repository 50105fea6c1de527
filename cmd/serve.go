package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/discoveryd/discoveryd/internal/builtins"
	"github.com/discoveryd/discoveryd/internal/cmdb"
	"github.com/discoveryd/discoveryd/internal/config"
	"github.com/discoveryd/discoveryd/internal/discovery"
	"github.com/discoveryd/discoveryd/internal/dispatch"
	"github.com/discoveryd/discoveryd/internal/oauthmw"
	"github.com/discoveryd/discoveryd/internal/pluginmgr"
	"github.com/discoveryd/discoveryd/internal/registry"
	"github.com/discoveryd/discoveryd/internal/session"
	"github.com/discoveryd/discoveryd/internal/transport/amqptransport"
	"github.com/discoveryd/discoveryd/internal/transport/httptransport"
	"github.com/discoveryd/discoveryd/internal/transport/stdio"
	"github.com/discoveryd/discoveryd/internal/vault"
	"github.com/discoveryd/discoveryd/internal/watcher"
	"github.com/discoveryd/discoveryd/pkg/logging"
)

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the discoveryd server",
	Long: `Starts discoveryd: discovers and activates plugins from
PLUGINS_ROOT, opens the credential vault and CMDB store, and serves
MCP over the transport(s) selected by TRANSPORT_MODE.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func newServeCmd() *cobra.Command {
	return serveCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServer(ctx, cfg)
}

// runServer wires the Core Registry, Plugin Manager, hot-reload
// Watcher, Credential Vault, CMDB, Server Dispatcher, and the
// transport(s) selected by cfg.Transport into one running server.
func runServer(ctx context.Context, cfg config.Config) error {
	reg := registry.New()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	vaultStore, err := vault.Open(cfg.DataDir, cfg.CredsKey)
	if err != nil {
		return fmt.Errorf("opening credential vault: %w", err)
	}

	cmdbStore, err := cmdb.Open(filepath.Join(cfg.DataDir, "cmdb.db"), cmdb.Options{
		AutoSaveEnabled:  cfg.MemoryAutoSave,
		AutoSaveInterval: cfg.MemoryAutoSaveInterval,
	})
	if err != nil {
		return fmt.Errorf("opening CMDB store: %w", err)
	}
	defer cmdbStore.Close(ctx)

	mgr := pluginmgr.New(cfg.PluginsRoot, pluginmgr.SignaturePolicy{}, reg)

	// The whole startup registration pass runs under the registry's
	// bootstrap guard so a re-entrant init (e.g. transport restart)
	// cannot double-register the catalogue.
	if err := reg.RunBootstrap(func() error {
		if err := mgr.Discover(); err != nil {
			return fmt.Errorf("discovering plugins: %w", err)
		}
		for _, p := range mgr.List() {
			if err := mgr.Load(p.ID); err != nil {
				logging.Warn("Server", "loading plugin %s: %v", p.ID, err)
				continue
			}
			if err := mgr.Activate(ctx, p.ID); err != nil {
				logging.Warn("Server", "activating plugin %s: %v", p.ID, err)
			}
		}

		// Descriptor-declared module bundles under the same root load
		// in dependency order; registrars bound on the plugin manager
		// serve both paths.
		eng := discovery.NewEngine(reg)
		for id, registrar := range mgr.Registrars {
			eng.Registrars[id] = discovery.Registrar(registrar)
		}
		if err := eng.Run(ctx, cfg.PluginsRoot); err != nil {
			return fmt.Errorf("running discovery engine: %w", err)
		}

		if err := builtins.RegisterCredentials(ctx, reg, vaultStore); err != nil {
			return fmt.Errorf("registering credential tools: %w", err)
		}
		if err := builtins.RegisterMemory(ctx, reg, cmdbStore); err != nil {
			return fmt.Errorf("registering memory tools: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	w := watcher.New(reg, []string{cfg.PluginsRoot}, 300*time.Millisecond)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()
	watchActivePlugins(w, mgr)

	d := dispatch.New(reg, mgr)
	sessions := session.NewTable(10 * time.Minute)

	var oauth *oauthmw.Middleware
	if cfg.OAuth.Enabled {
		oauth = oauthmw.New(oauthmw.Config{
			Enabled:               cfg.OAuth.Enabled,
			ResourceServerURI:     cfg.OAuth.ResourceServerURI,
			Realm:                 cfg.OAuth.Realm,
			AuthorizationServer:   cfg.OAuth.AuthorizationServer,
			IntrospectionEndpoint: cfg.OAuth.IntrospectionEndpoint,
			ClientID:              cfg.OAuth.ClientID,
			ClientSecret:          cfg.OAuth.ClientSecret,
			TokenCacheTTL:         cfg.OAuth.TokenCacheTTL,
			SupportedScopes:       cfg.OAuth.SupportedScopes,
			Production:            cfg.OAuth.Production,
		})
	}

	runHTTP := cfg.Transport == config.TransportHTTP || cfg.Transport == config.TransportBoth
	runStdio := cfg.Transport == config.TransportStdio || cfg.Transport == config.TransportBoth

	errCh := make(chan error, 3)
	active := 0

	if runStdio {
		active++
		go func() {
			t := stdio.New(d, os.Stdin, os.Stdout)
			errCh <- t.Run(ctx)
		}()
	}

	if runHTTP {
		active++
		go func() {
			srv := httptransport.New(d, reg, httptransport.Options{
				IdleTimeout:     10 * time.Minute,
				SweepInterval:   time.Minute,
				OAuthMiddleware: oauth,
			})
			ln, err := httptransport.Listen(cfg.HTTPAddr)
			if err != nil {
				errCh <- err
				return
			}
			logging.Info("Server", "http transport listening on %s", cfg.HTTPAddr)
			errCh <- srv.Run(ln)
		}()
	}

	if cfg.Transport == config.TransportAMQP {
		active++
		go func() {
			t := amqptransport.New(amqptransport.Config{
				URL:      cfg.AMQP.URL,
				Exchange: cfg.AMQP.Exchange,
			}, d, sessions)
			if err := t.Connect(ctx); err != nil {
				errCh <- err
				return
			}
			defer t.Close()
			// Bind one worker session at startup so the generic
			// mcp.request.# patterns are consumed even before any
			// client establishes a session of its own.
			if err := t.RegisterSession(uuid.NewString(), uuid.NewString()); err != nil {
				errCh <- err
				return
			}
			<-ctx.Done()
			errCh <- nil
		}()
	}

	if active == 0 {
		return fmt.Errorf("cmd: no transport selected for TRANSPORT_MODE %q", cfg.Transport)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// watchActivePlugins puts each active plugin's manifest under the
// Hot-Reload Watcher, re-running the plugin's registrar on change.
// Plugins without a bound registrar are skipped: there is nothing to
// re-register for them.
func watchActivePlugins(w *watcher.Watcher, mgr *pluginmgr.Manager) {
	for _, p := range mgr.List() {
		if p.State != pluginmgr.StateActive {
			continue
		}
		registrar, ok := mgr.Registrars[p.ID]
		if !ok {
			continue
		}
		reloader := watcher.ReloadFunc(registrar)
		if err := w.Watch(p.ID, p.ManifestPath(), reloader); err != nil {
			logging.Warn("Server", "watching plugin %s: %v", p.ID, err)
		}
	}
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}
