// Command mcpgateway starts the gateway process: a root scope wired with
// providers, tool/resource/prompt/skill registries, the flow engine, and
// the streamable-HTTP transport.
//
// Grounded on cmd/mcpproxy/main.go's cobra root command + runServer
// function, trimmed to a single "serve" path (no tray, REST management
// API, or quarantine CLI subcommands -- see DESIGN.md's final-pass
// deletions) and generalized from mcpproxy's upstream-server fleet to the
// gateway's scope/flow/transport stack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpgateway/internal/coreflows"
	"mcpgateway/internal/credcache"
	"mcpgateway/internal/elicit"
	"mcpgateway/internal/gwconfig"
	"mcpgateway/internal/logs"
	"mcpgateway/internal/obctx"
	"mcpgateway/internal/provider"
	"mcpgateway/internal/scope"
	"mcpgateway/internal/sessionstore"
	"mcpgateway/internal/skillindex"
	"mcpgateway/internal/toolinvoke"
	"mcpgateway/internal/transportreg"

	"mcpgateway/internal/dispatch"
)

const exitCodeGeneralError = 1

var (
	configFile string
	dataDir    string
	listen     string
	logLevel   string
	logToFile  bool
	logDir     string

	version = "v0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "mcpgateway",
		Short:   "MCP gateway - scoped dependency injection and flow dispatch for Model Context Protocol servers",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory path (default: ~/.mcpgateway)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to file")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP gateway server",
		RunE:  runServer,
	}
	serveCmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeGeneralError)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath := configFile
	if dataDir != "" && configPath == "" {
		configPath = gwconfig.GetConfigPath(dataDir)
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}

	cfg, err := gwconfig.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listen != "" {
		cfg.Listen = listen
	}

	if cfg.Logging == nil {
		level := logLevel
		if level == "" {
			level = "info"
		}
		cfg.Logging = defaultLogConfig(level, logToFile, logDir)
	} else if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logDir != "" {
		cfg.Logging.LogDir = logDir
	}

	logger, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting mcpgateway",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("data_dir", cfg.DataDir))

	nodeID := cfg.NodeID
	if nodeID == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "mcpgateway-node"
		}
		nodeID = hostname
	}

	store, err := sessionstore.New(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() { _ = store.Close() }()

	skills, err := skillindex.NewIndex(cfg.SkillDataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open skill index: %w", err)
	}
	defer func() { _ = skills.Close() }()

	credentials, err := credcache.NewManager(store.DB(), cfg.CredentialCacheSize, logger)
	if err != nil {
		return fmt.Errorf("failed to start credential cache: %w", err)
	}

	root := scope.New("server", scope.KindServer, logger)
	root.Skills = skills
	if err := root.Providers.Register(&provider.Record{
		Token: provider.Symbol("credential-cache"),
		Kind:  provider.KindValue,
		Scope: provider.ScopeGlobal,
		Value: scope.CredentialCache(credentials),
	}); err != nil {
		return fmt.Errorf("failed to register credential cache provider: %w", err)
	}

	levels := obctx.NewLevelRegistry(logger)
	coreflows.Register(root, levels, logger)

	responseCache := toolinvoke.NewBboltCache(store.DB(), logger)
	root.Flows.Register(toolinvoke.NewRecord(root, responseCache, logger))

	root.Freeze()

	views := provider.NewViewBuilder(root.Providers)
	dispatcher := dispatch.New(root, views, logger)

	elicitBrokers := newElicitBrokerCache(store)
	factory := func(key transportreg.Key, scopeID string, writer transportreg.ResponseWriter, broker *elicit.Broker) *transportreg.Adapter {
		return transportreg.NewAdapter(key, scopeID, writer, broker, logger)
	}
	registry := transportreg.NewRegistry(nodeID, store, factory, views, elicitBrokers.forSession, logger)

	gw := newGatewayServer(registry, dispatcher, logger)

	httpServer := newHTTPServer(cfg.Listen, gw.router())

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		logger.Info("press ctrl+c again within 10 seconds to force quit")
		cancel()

		forceQuit := time.NewTimer(10 * time.Second)
		defer forceQuit.Stop()
		select {
		case sig2 := <-sigChan:
			logger.Warn("received second signal, forcing immediate exit", zap.String("signal", sig2.String()))
			os.Exit(exitCodeGeneralError)
		case <-forceQuit.C:
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Listen))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	registry.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}

	logger.Info("mcpgateway stopped")
	return nil
}
