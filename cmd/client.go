package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Rorical/PromptMachine/internal/app"
	"github.com/Rorical/PromptMachine/internal/config"
	"github.com/Rorical/PromptMachine/internal/core"
	"github.com/Rorical/PromptMachine/internal/eventbus"
	"github.com/Rorical/PromptMachine/internal/logger"
	"github.com/Rorical/PromptMachine/internal/models"
	"github.com/Rorical/PromptMachine/internal/stream"
)

func addClientFlags(fs *pflag.FlagSet) {
	fs.StringP("prompt-file", "f", "", "file with the prompt (default: stdin)")
	fs.String("relay-url", "", "relay to send to (default: relay_url from config)")
	fs.Int("max-attempts", 0, "attempts before giving up on transient failures")
	fs.Duration("retry-delay", 0, "fixed delay between attempts")
	fs.Bool("local", false, "run a relay in-process instead of using the configured relay_url")
}

// readPrompt reads the prompt from --prompt-file, or stdin when unset.
func readPrompt(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("prompt-file")
	if err != nil {
		return "", err
	}
	var data []byte
	if path == "" || path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func applyClientFlags(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("relay-url") {
		url, err := fs.GetString("relay-url")
		if err != nil {
			return err
		}
		cfg.Server.RelayURL = url
	}
	if fs.Changed("max-attempts") {
		n, err := fs.GetInt("max-attempts")
		if err != nil {
			return err
		}
		cfg.Server.MaxAttempts = n
	}
	if fs.Changed("retry-delay") {
		d, err := fs.GetDuration("retry-delay")
		if err != nil {
			return err
		}
		if d < time.Millisecond {
			return fmt.Errorf("--retry-delay must be at least 1ms, got %s", d)
		}
		cfg.Server.RetryDelayMs = int((d + time.Millisecond - 1) / time.Millisecond)
	}
	return nil
}

// cliSession is a core session whose progress is written to the log.
type cliSession struct {
	*core.Session
	bus  *eventbus.EventBus
	wg   sync.WaitGroup
	stop func()
}

func newCLISession(cmd *cobra.Command, prompt string) (*cliSession, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyClientFlags(cmd, cfg); err != nil {
		return nil, err
	}

	log := logger.GetDefault()
	s := &cliSession{bus: eventbus.NewEventBus(), stop: func() {}}

	local, err := cmd.Flags().GetBool("local")
	if err != nil {
		return nil, err
	}
	if local {
		relayURL, stop, err := startLocalRelay(cfg, log)
		if err != nil {
			return nil, err
		}
		cfg.Server.RelayURL = relayURL
		s.stop = stop
	}

	s.Session = core.NewSession(app.NewTransport(cfg), s.bus, prompt, log)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logEvents(s.bus, log)
	}()
	return s, nil
}

func (s *cliSession) Close() {
	s.Stop()
	s.bus.Close()
	s.wg.Wait()
	s.stop()
}

func logEvents(bus *eventbus.EventBus, log logger.Logger) {
	for event := range bus.CoreToUI() {
		e, ok := event.(eventbus.LogEntryEvent)
		if !ok {
			continue
		}
		entry := e.Entry
		keyvals := []any{"action", entry.Action}
		if entry.Source == models.Server {
			keyvals = append(keyvals, "source", "relay", "t", entry.Elapsed)
		}
		switch entry.Severity {
		case stream.SeverityErr:
			log.Error(entry.Message, keyvals...)
		case stream.SeverityWarn:
			log.Warn(entry.Message, keyvals...)
		default:
			log.Info(entry.Message, keyvals...)
		}
	}
}
