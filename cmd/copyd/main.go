// Command copyd runs the file-copy daemon: it loads configuration, recovers any jobs
// left unfinished by a previous run, and serves the control-plane RPC socket until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/copyd/copyd/checkpoint"
	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/config"
	"github.com/copyd/copyd/daemon"
	"github.com/copyd/copyd/jobmanager"
	"github.com/copyd/copyd/metrics"
	"github.com/copyd/copyd/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	socketOverride string
	foreground bool
)

func main() {
	root := &cobra.Command{
		Use:   "copyd",
		Short: "copyd is a local file-copy daemon",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config.json (default: $COPYD_CONFIG_PATH or ~/.copyd/config.json)")
	root.Flags().StringVar(&socketOverride, "socket", "", "override the control-plane socket path from config")
	root.Flags().BoolVar(&foreground, "foreground", true, "run attached to the terminal (copyd never daemonizes itself, so this flag has no effect)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.ResolvePath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if socketOverride != "" {
		cfg.SocketPath = socketOverride
	}

	common.InitializeFolders(cfg.CheckpointDir, cfg.LogDir)

	logger := common.NewJobLogger(common.NewJobID(), cfg.LogLevel(), common.LogPathFolder, "-daemon")
	logger.OpenLog()
	defer logger.CloseLog()
	common.AzcopyCurrentJobLogger = logger

	store, err := checkpoint.NewStore(cfg.CheckpointDir, logger)
	if err != nil {
		return fmt.Errorf("copyd: opening checkpoint store: %w", err)
	}

	sink := metrics.NewSink(prometheus.DefaultRegisterer)

	manager := jobmanager.NewManager(jobmanager.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		Store:             store,
		Sink:              sink,
		Logger:            logger,
		CPUMonitor:        common.NewCalibratedCpuUsageMonitor(),
	})

	if err := manager.RecoverFromCheckpoints(); err != nil {
		logger.Log(common.LogWarning, "copyd: recovering checkpoints: "+err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go manager.Run(ctx)

	policy := security.Policy{}
	server := daemon.NewServer(cfg.SocketPath, manager, sink, policy, logger)

	logger.Log(common.LogInfo, fmt.Sprintf("copyd: listening on %s", cfg.SocketPath))
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("copyd: serving: %w", err)
	}
	return nil
}
