package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tx2tx/tx2tx/internal/config"
	"github.com/tx2tx/tx2tx/internal/display"
	"github.com/tx2tx/tx2tx/internal/engine"
	"github.com/tx2tx/tx2tx/internal/logger"
)

var (
	serverHost    string
	serverPort    int
	serverBackend string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run tx2tx in server mode",
	Long: `Run tx2tx in server mode: poll the local pointer, detect edge crossings
from connected clients' bound positions, and forward input to whichever
client currently has focus.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", "", "Address to listen on")
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Port to listen on")
	serverCmd.Flags().StringVarP(&serverBackend, "backend", "b", "", "Display backend (x11|wayland|auto)")

	_ = viper.BindPFlag("server.host", serverCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serverCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("backend.name", serverCmd.Flags().Lookup("backend"))
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Init(configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Get()
	logger.SetLevel(cfg.Logging.Level)
	logger.SetPrefix("SERVER")

	backend, err := display.New(cfg.Backend.Name, cfg.Backend.Options)
	if err != nil {
		return fmt.Errorf("initializing display backend: %w", err)
	}

	eng, err := engine.New(cfg, backend, cfg.Backend.Name)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("initializing engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("server: shutdown signal received")
		cancel()
	}()

	printBanner("server", fmt.Sprintf("listening on %s:%d (backend=%s)", cfg.Server.Host, cfg.Server.Port, cfg.Backend.Name))
	logger.Infof("server: %d client binding(s) configured, poll interval %dms", len(cfg.Clients), cfg.Server.PollIntervalMS)
	return eng.Run(ctx)
}
