package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/orbtalk/internal/app"
	"github.com/MrWong99/orbtalk/internal/config"
	"github.com/MrWong99/orbtalk/internal/observe"
	"github.com/MrWong99/orbtalk/internal/tui"
	"github.com/MrWong99/orbtalk/pkg/audio/portaudio"
)

// Chat flags
var (
	chatOrigin string
	chatURL    string
	noMeter    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a voice conversation",
	Long: `Connect to the chat endpoint and talk.

The endpoint comes from the config file unless --origin or --url is given.
Press ctrl+c to hang up.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	addChatFlags(chatCmd)
	rootCmd.AddCommand(chatCmd)
}

// addChatFlags registers the conversation flags on cmd. Both the root command
// and chat accept them.
func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&chatOrigin, "origin", "", "page origin of the serving host, e.g. https://voice.example.com")
	cmd.Flags().StringVar(&chatURL, "url", "", "explicit ws:// or wss:// chat endpoint")
	cmd.Flags().BoolVar(&noMeter, "no-meter", false, "hide the output level meter")
	cmd.MarkFlagsMutuallyExclusive("origin", "url")
}

// loadChatConfig reads the config file and applies flag overrides. A missing
// file is fine when the endpoint is given on the command line. The second
// return value reports whether the file was found.
func loadChatConfig(cmd *cobra.Command) (*config.Config, bool, error) {
	cfg, err := config.Read(configPath)
	found := err == nil
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && (chatOrigin != "" || chatURL != ""):
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	case errors.Is(err, fs.ErrNotExist):
		return nil, false, fmt.Errorf("config file %q not found; pass --origin or --url, or create it", configPath)
	default:
		return nil, false, err
	}

	if chatOrigin != "" {
		cfg.Endpoint = config.EndpointConfig{Origin: chatOrigin}
	}
	if chatURL != "" {
		cfg.Endpoint = config.EndpointConfig{URL: chatURL}
	}
	if cmd.Flags().Changed("no-meter") {
		on := !noMeter
		cfg.UI.Meter = &on
	}
	if verbose {
		cfg.LogLevel = config.LogDebug
	}
	if err := config.Validate(cfg); err != nil {
		return nil, false, fmt.Errorf("config: %w", err)
	}
	return cfg, found, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, found, err := loadChatConfig(cmd)
	if err != nil {
		return err
	}

	// ── 1. Logging ─────────────────────────────────────────────────────────
	// Logs go to stderr so they do not tear the frame drawn on stdout.
	level := &slog.LevelVar{}
	level.Set(cfg.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 2. Telemetry ───────────────────────────────────────────────────────
	tel, err := observe.Setup(ctx, observe.WithServiceVersion(Version))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	// ── 3. Audio ───────────────────────────────────────────────────────────
	terminate, err := portaudio.Initialize()
	if err != nil {
		return err
	}
	defer func() { _ = terminate() }()

	// ── 4. App ─────────────────────────────────────────────────────────────
	renderer := tui.New(cmd.OutOrStdout(), tui.WithMeter(cfg.UI.MeterEnabled()))
	opts := []app.Option{
		app.WithRenderer(renderer),
		app.WithLogLevel(level),
		app.WithGatherer(tel.Registry()),
	}
	// Flag overrides would be lost on reload, so only an untouched file is
	// watched.
	if found && chatOrigin == "" && chatURL == "" {
		opts = append(opts, app.WithConfigWatch(configPath, 0))
	}
	a, err := app.New(cfg, opts...)
	if err != nil {
		return err
	}

	slog.Info("orbtalk starting",
		"version", Version,
		"endpoint", a.URL(),
		"codec", cfg.Audio.Codec,
		"admin", cfg.Admin.ListenAddr,
	)
	if err := a.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	slog.Info("orbtalk stopped")
	return nil
}
