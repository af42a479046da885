package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/mplexd/internal/config"
	"github.com/ehrlich-b/mplexd/internal/logger"
	"github.com/ehrlich-b/mplexd/internal/mplexserver"
)

func main() {
	root := &cobra.Command{
		Use:   "mplexd",
		Short: "terminal multiplexer daemon",
		RunE:  run,
	}

	root.Flags().String("socket", "", "override the listen socket path")
	root.Flags().String("log-level", "", "override the configured log level")
	root.Flags().String("log-file", "", "override the configured log file path")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	userDir, err := config.GetUserConfigDir()
	if err != nil {
		return fmt.Errorf("resolve user config dir: %w", err)
	}
	projectDir, err := config.GetProjectDir()
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}
	if err := config.EnsureConfigDirs(userDir, projectDir); err != nil {
		return fmt.Errorf("ensure config dirs: %w", err)
	}

	mgr := config.NewManager()
	if err := mgr.Load(userDir, projectDir); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()

	if v, _ := cmd.Flags().GetString("socket"); v != "" {
		cfg.SocketPath = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-file"); v != "" {
		cfg.LogFile = v
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	srv := mplexserver.New(cfg, startTimeMS())
	if err := srv.Listen(cfg.SocketPath); err != nil {
		return err
	}
	logger.Info("mplexd listening", "socket", cfg.SocketPath)

	sigCtx, stop := notifyShutdown()
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case <-sigCtx.Done():
		logger.Info("mplexd shutting down")
		srv.Shutdown()
		return nil
	case err := <-errCh:
		if isCleanCloseErr(err) {
			return nil
		}
		return err
	}
}
