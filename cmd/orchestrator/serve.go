package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperforge/orchestrator/api/rest"
	"github.com/paperforge/orchestrator/internal/orchestrator"
	"github.com/paperforge/orchestrator/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration engine with the REST API",
	Long: `Start the orchestration engine and expose it over the REST API.
The built-in echo agents are registered for every role; production callers
replace them by embedding the engine as a library.`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	orc := orchestrator.New(cfg, logger.L())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, ag := range builtinAgents() {
		if err := orc.RegisterAgent(ctx, ag); err != nil {
			return fmt.Errorf("failed to register agent: %w", err)
		}
	}

	if err := orc.Start(ctx); err != nil {
		return err
	}

	server := rest.NewServer(orc, cfg.Server)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	err = server.StartWithContext(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if serr := orc.Stop(stopCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}
