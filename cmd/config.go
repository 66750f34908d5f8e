package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tx2tx/tx2tx/internal/config"
	"github.com/tx2tx/tx2tx/internal/logger"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect tx2tx configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg := config.Get()

		logger.Info("[server]")
		logger.Infof("  host: %s", cfg.Server.Host)
		logger.Infof("  port: %d", cfg.Server.Port)
		logger.Infof("  edge_threshold: %d", cfg.Server.EdgeThreshold)
		logger.Infof("  velocity_threshold: %.1f", cfg.Server.VelocityThreshold)
		logger.Infof("  poll_interval_ms: %d", cfg.Server.PollIntervalMS)
		logger.Infof("  panic_key: %s", cfg.Server.PanicKey)
		logger.Infof("  jump_hotkey: %s", cfg.Server.JumpHotkey)
		logger.Infof("  max_clients: %d", cfg.Server.MaxClients)

		if len(cfg.Clients) > 0 {
			logger.Info("[clients]")
			for _, cl := range cfg.Clients {
				logger.Infof("  %s -> %s", cl.Name, cl.Position)
			}
		}

		logger.Info("[client]")
		logger.Infof("  server_address: %s", cfg.Client.ServerAddress)
		logger.Infof("  reconnect.enabled: %v", cfg.Client.Reconnect.Enabled)
		logger.Infof("  reconnect.max_attempts: %d", cfg.Client.Reconnect.MaxAttempts)
		logger.Infof("  reconnect.delay_seconds: %d", cfg.Client.Reconnect.DelaySeconds)

		logger.Info("[backend]")
		logger.Infof("  name: %s", cfg.Backend.Name)
		for k, v := range cfg.Backend.Options {
			logger.Infof("  options.%s: %s", k, v)
		}

		logger.Info("[logging]")
		logger.Infof("  level: %s", cfg.Logging.Level)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration without starting a server or client",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger.Info("config: valid")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
