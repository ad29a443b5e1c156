// Package main provides the entry point for the kbchat CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/kbchat/kbchat/internal/config"
	"github.com/kbchat/kbchat/internal/queue"
	"github.com/kbchat/kbchat/ui"
)

// speechDrainTimeout bounds how long one-shot commands wait for queued
// sentences to finish playing.
const speechDrainTimeout = 5 * time.Minute

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	plain      bool
	noSpeech   bool
	width      uint
	mouse      bool

	rootCmd = &cobra.Command{
		Use:   "kbchat",
		Short: "Chat with your knowledge base, out loud",
		Long: paragraph(
			fmt.Sprintf("\nChat with your knowledge base and hear each reply %s.", keyword("sentence by sentence")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}

	askCmd = &cobra.Command{
		Use:     "ask MESSAGE",
		Short:   "Send one message, print the reply and speak it",
		Example: paragraph("kbchat ask \"What is in the handbook?\""),
		Args:    cobra.MinimumNArgs(1),
		RunE:    executeAsk,
	}

	sayCmd = &cobra.Command{
		Use:     "say TEXT",
		Short:   "Speak text without asking the server for a reply",
		Example: paragraph("kbchat say \"Testing one two. Can you hear me?\""),
		Args:    cobra.MinimumNArgs(1),
		RunE:    executeSay,
	}
)

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	debug = viper.GetBool("debug")
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	if _, err := config.LoadFromViper(); err != nil {
		return err
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") && width == 0 {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = uint(min(w, 120)) //nolint:gosec
		}
	}
	return nil
}

func execute(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(!noSpeech)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	watchConfig(a.mute)

	isTerminal := term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
	if !isTerminal || plain {
		display := newPlainDisplay(os.Stdout, os.Stderr)
		if err := runPlain(ctx, a.controller(display), os.Stdin, os.Stderr); err != nil {
			return err
		}
		return waitForSpeech(ctx, a)
	}

	return runTUI(ctx, a)
}

func runTUI(ctx context.Context, a *app) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.Theme = a.cfg.Theme
	cfg.GlamourMaxWidth = width
	cfg.EnableMouse = mouse

	display := ui.NewDisplay()
	controller := a.controller(display)
	log.Debug("session started", "session", controller.SessionID())

	// Run Bubble Tea program
	if _, err := ui.NewProgram(ctx, cfg, controller, a.mute, display).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func executeAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(!noSpeech)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	display := newPlainDisplay(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err := a.controller(display).Send(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	return waitForSpeech(ctx, a)
}

func executeSay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if a.queue == nil {
		return errors.New("no audio device available")
	}
	if a.mute.Muted() {
		log.Warn("speech is muted in the configuration, nothing will be spoken")
	}

	display := newPlainDisplay(cmd.OutOrStdout(), cmd.ErrOrStderr())
	n := a.controller(display).Speak(strings.Join(args, " "))
	log.Debug("speaking", "sentences", n)

	if err := waitForSpeech(ctx, a); err != nil {
		return err
	}

	stats := a.queue.Stats()
	if stats.TotalFailed > 0 {
		return fmt.Errorf("%d of %d sentences could not be played: %w", stats.TotalFailed, n, stats.LastError)
	}
	return nil
}

// waitForSpeech blocks until queued sentences have been played.
func waitForSpeech(ctx context.Context, a *app) error {
	if a.queue == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, speechDrainTimeout)
	defer cancel()

	if err := a.queue.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("speech did not finish: %w", err)
	}
	return nil
}

// watchConfig applies mute changes made to the config file while running.
func watchConfig(mute *queue.Mute) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !viper.IsSet("mute") {
			return
		}
		muted := viper.GetBool("mute")
		if muted != mute.Muted() {
			log.Info("mute changed in config", "file", e.Name, "muted", muted)
			mute.Set(muted)
		}
	})
	viper.WatchConfig()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().Bool("debug", false, "write debug logs")
	rootCmd.PersistentFlags().String("server", "", "chat server url")
	rootCmd.PersistentFlags().String("backend", "", "playback backend: auto, streaming or buffered")
	rootCmd.PersistentFlags().Bool("mute", false, "start with speech muted")
	rootCmd.PersistentFlags().BoolVar(&noSpeech, "no-speech", false, "do not open the audio device")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "read messages from stdin and print replies, without the TUI")
	rootCmd.Flags().UintP("width", "w", 0, "word-wrap replies at width (set to 0 to use the terminal width)")
	rootCmd.Flags().BoolP("mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("audio.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("mute", rootCmd.PersistentFlags().Lookup("mute"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	viper.SetDefault("width", 0)
	config.SetDefaults()

	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(askCmd, sayCmd, cacheCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "kbchat")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "kbchat")}, dirs...)
	}

	if c := os.Getenv("KBCHAT_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("kbchat")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("kbchat")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "kbchat.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
