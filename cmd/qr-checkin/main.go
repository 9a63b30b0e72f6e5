package main

import (
	"context"
	"os"
	"time"

	"github.com/fpang/qr-checkin/internal/backend"
	"github.com/fpang/qr-checkin/internal/config"
	"github.com/fpang/qr-checkin/internal/logging"
	"github.com/fpang/qr-checkin/internal/notify"
	"github.com/fpang/qr-checkin/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Persistent flags
var (
	apiURLFlag      string
	sessionFileFlag string
	journalFlag     string
	envFileFlag     string
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "qr-checkin",
	Short: "Attendance check-in by QR code",
	Long: `qr-checkin registers class attendance by scanning the QR code shown by the
instructor with a webcam.

Log in once, then run scan. The first camera frame holding a valid attendance
code is submitted to the backend and the result is shown in a dialog.

Examples:
  qr-checkin login -e ana@example.com
  qr-checkin scan
  qr-checkin scan --rear-device /dev/video2 --timeout 60s
  qr-checkin scan --frames-dir ./frames --no-dialogs
  qr-checkin history --limit 20`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Backend API root (default $CHECKIN_API_URL or "+config.DefaultAPIURL+")")
	rootCmd.PersistentFlags().StringVar(&sessionFileFlag, "session-file", "", "Session file (default in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&journalFlag, "journal", "", "Check-in journal file (default in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Optional .env file with CHECKIN_* settings")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, scanCmd, parseCmd, attendanceCmd, reportCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig initializes logging and resolves configuration for cmd.
// Exits fatally on invalid configuration.
func loadConfig(cmd *cobra.Command) *config.Config {
	logging.Init()

	cfg, err := config.Load(config.Options{DotEnv: envFileFlag, Flags: cmd.Flags()})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if cfg.APIURLSSMParam != "" && cfg.Source == "default" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		awsCfg, err := config.LoadAWS(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load AWS config")
		}
		if err := cfg.ResolveSSM(ctx, config.NewSSMClient(awsCfg)); err != nil {
			log.Fatal().Err(err).Msg("Failed to resolve API URL")
		}
	}

	log.Debug().Str("apiUrl", cfg.APIURL).Str("source", cfg.Source).Msg("Configuration loaded")
	return cfg
}

// openSession opens the session store and an API client bound to it.
func openSession(cfg *config.Config) (*session.Store, *backend.Client) {
	store, err := session.Open(cfg.SessionFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SessionFile).Msg("Failed to open session store")
	}
	return store, backend.NewClient(cfg.APIURL, store)
}

// newNotifier returns desktop dialogs, or console output with --no-dialogs.
func newNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Dialogs {
		return notify.Desktop{}
	}
	return notify.NewConsole(os.Stdout)
}

// show presents d and logs when the dialog cannot be shown.
func show(n notify.Notifier, d notify.Dialog) {
	if err := n.Notify(d); err != nil {
		log.Warn().Err(err).Str("title", d.Title).Msg("Failed to show dialog")
	}
}

// requireLogin exits unless a session is stored.
func requireLogin(n notify.Notifier, store *session.Store) session.State {
	st := store.Get()
	if !st.LoggedIn() {
		show(n, notify.Dialog{Kind: notify.KindWarning, Title: "Sesión requerida", Text: "Iniciá sesión con 'qr-checkin login'."})
		log.Fatal().Msg("Not logged in")
	}
	return st
}
