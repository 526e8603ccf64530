package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Rorical/PromptMachine/internal/config"
	"github.com/Rorical/PromptMachine/internal/logger"
	"github.com/Rorical/PromptMachine/internal/relay"
	"github.com/Rorical/PromptMachine/internal/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the streaming relay",
	Long: `Run the relay that forwards prompts to the upstream chat-completion API and
streams its answer back as line-delimited JSON events.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		addr := cfg.ListenAddr()
		if cmd.Flags().Changed("listen") {
			if addr, err = cmd.Flags().GetString("listen"); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logger.GetDefault()
		if !cfg.IsValid() {
			log.Warn("No API key configured; requests will be answered with an error", "profile", cfg.ActiveProfile)
		}
		log.Info("Relay configured", "profile", cfg.ActiveProfile, "model", cfg.GetModel(), "base_url", cfg.GetBaseURL())

		return newRelayServer(cfg, addr, log).Run(ctx)
	},
}

func newRelayServer(cfg *config.Config, addr string, log logger.Logger) *relay.Server {
	metrics := relay.NewMetrics()
	reader := upstream.NewReader(upstream.Config{
		APIKey:         cfg.GetAPIKey(),
		BaseURL:        cfg.GetBaseURL(),
		RequestTimeout: cfg.RequestTimeout(),
		ConnectTimeout: cfg.ConnectTimeout(),
	})
	handler := relay.NewHandler(relay.HandlerOptions{
		APIKey:   cfg.GetAPIKey(),
		Model:    cfg.GetModel(),
		Upstream: reader,
		Metrics:  metrics,
	})
	return relay.NewServer(relay.ServerConfig{
		ListenAddr: addr,
		Username:   cfg.Server.Auth.Username,
		Password:   cfg.Server.Auth.Password,
	}, handler, metrics, log)
}

// startLocalRelay serves a relay on a loopback port until stop is called and
// returns its URL.
func startLocalRelay(cfg *config.Config, log logger.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to start local relay: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	server := newRelayServer(cfg, ln.Addr().String(), log)
	go func() {
		defer close(done)
		if err := server.Serve(ctx, ln); err != nil {
			log.Error("Local relay stopped", "error", err)
		}
	}()

	stop := func() {
		cancel()
		<-done
	}
	return fmt.Sprintf("http://%s/", ln.Addr()), stop, nil
}

func init() {
	serveCmd.Flags().String("listen", config.DefaultListenAddr, "address to listen on")
	rootCmd.AddCommand(serveCmd)
}
