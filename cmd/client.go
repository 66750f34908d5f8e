package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tx2tx/tx2tx/internal/clientapp"
	"github.com/tx2tx/tx2tx/internal/config"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/logger"
)

var (
	clientServerAddr string
	clientName       string
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run tx2tx in client mode",
	Long: `Run tx2tx in client mode: connect to a server and inject any
mouse_event/key_event messages it forwards using a virtual uinput device.`,
	RunE: runClient,
}

func init() {
	clientCmd.Flags().StringVarP(&clientServerAddr, "server", "s", "", "Server address (host:port)")
	clientCmd.Flags().StringVarP(&clientName, "name", "n", "", "Name this client registers under, must match a clients[] entry in the server's config")

	_ = viper.BindPFlag("client.server_address", clientCmd.Flags().Lookup("server"))
}

func runClient(cmd *cobra.Command, args []string) error {
	if err := config.Init(configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Get()
	logger.SetLevel(cfg.Logging.Level)
	logger.SetPrefix("CLIENT")

	address := cfg.Client.ServerAddress
	if address == "" {
		return fmt.Errorf("no server address specified (use --server or configure client.server_address)")
	}

	if clientName == "" {
		return fmt.Errorf("no client name specified (use --name, must match a clients[] entry in the server's config)")
	}

	geom := geometryFromBackendOptions(cfg)
	injector, err := clientapp.NewUinputInjector(geom)
	if err != nil {
		return fmt.Errorf("initializing local input injection: %w", err)
	}
	defer func() { _ = injector.Close() }()

	receiver := clientapp.NewReceiver(clientName, address, cfg.Client.Reconnect, injector)
	receiver.OnStatusChange(func(s clientapp.Status) {
		if s.BeingForwarded {
			logger.Info("client: now receiving forwarded input")
		} else {
			logger.Info("client: no longer receiving forwarded input")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emergency := clientapp.NewEmergencyRelease(receiver)
	receiver.OnActivity(emergency.NoteActivity)
	emergency.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("client: shutdown signal received")
		cancel()
	}()

	printBanner("client", fmt.Sprintf("connecting to %s as %q", address, clientName))
	return receiver.Run(ctx)
}

// geometryFromBackendOptions reads the client's own screen size from
// backend.options (width/height), the same keys internal/display.New reads
// server-side, since the client denormalizes incoming coordinates against
// its own geometry rather than the server's.
func geometryFromBackendOptions(cfg *config.Config) geometry.ScreenGeometry {
	geom := geometry.ScreenGeometry{Width: 1920, Height: 1080}
	if w, err := strconv.Atoi(cfg.Backend.Options["width"]); err == nil && w > 0 {
		geom.Width = w
	}
	if h, err := strconv.Atoi(cfg.Backend.Options["height"]); err == nil && h > 0 {
		geom.Height = h
	}
	return geom
}
