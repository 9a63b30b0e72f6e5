package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fpang/qr-checkin/internal/cli"
	"github.com/fpang/qr-checkin/internal/notify"
	"github.com/fpang/qr-checkin/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Login flags
var (
	emailFlag    string
	passwordFlag string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in against the backend and store the session token for later commands.

The password is read from a dialog (or the terminal with --no-dialogs) when
--password is not given.`,
	Args: cobra.NoArgs,
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	Run:   runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	Run:   runWhoami,
}

func init() {
	loginCmd.Flags().StringVarP(&emailFlag, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&passwordFlag, "password", "p", "", "Account password (prompted when empty)")
	loginCmd.Flags().Bool("no-dialogs", false, "Prompt and report on the console instead of desktop dialogs")
}

func runLogin(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	store, client := openSession(cfg)
	notifier := newNotifier(cfg)

	email := emailFlag
	if email == "" {
		email = cli.PromptLine("Email", "")
	}
	password := passwordFlag
	if password == "" {
		var err error
		password, err = cli.PromptPassword(cfg.Dialogs)
		if err != nil {
			cli.HandleAPIError(notifier, err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	st, err := client.Login(ctx, email, password)
	if err != nil {
		cli.HandleAPIError(notifier, err)
	}

	route, ok := session.Destination(st.Role, st.ProPlan())
	if !ok {
		show(notifier, notify.Dialog{Kind: notify.KindError, Title: "Rol no reconocido", Text: fmt.Sprintf("El rol %q no está soportado.", st.Role)})
		if err := store.Clear(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear session")
		}
		log.Error().Str("role", string(st.Role)).Msg("Unknown role, session discarded")
		os.Exit(1)
	}

	if err := store.Set(st); err != nil {
		log.Fatal().Err(err).Str("path", store.Path()).Msg("Failed to store session")
	}

	fmt.Println()
	fmt.Printf("✅ Sesión iniciada: %s\n", displayName(st))
	fmt.Printf("   Rol: %s\n", st.Role)
	if st.User != nil && st.User.OrganizationName != "" {
		plan := "básico"
		if st.ProPlan() {
			plan = "PRO"
		}
		fmt.Printf("   Organización: %s (plan %s)\n", st.User.OrganizationName, plan)
	}
	fmt.Printf("   Inicio: %s\n", route)
}

func runLogout(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	store, _ := openSession(cfg)
	if err := store.Clear(); err != nil {
		log.Fatal().Err(err).Msg("Failed to clear session")
	}
	show(newNotifier(cfg), notify.Dialog{Kind: notify.KindInfo, Title: "Sesión cerrada", Text: "Hasta pronto."})
}

func runWhoami(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	store, client := openSession(cfg)
	st := store.Get()
	if !st.LoggedIn() {
		fmt.Println("No hay sesión iniciada.")
		os.Exit(1)
	}

	route, _ := session.Destination(st.Role, st.ProPlan())
	fmt.Printf("👤 %s\n", displayName(st))
	fmt.Printf("   Rol: %s\n", st.Role)
	fmt.Printf("   Plan PRO: %v\n", st.ProPlan())
	fmt.Printf("   Inicio: %s\n", route)
	fmt.Printf("   API: %s (%s)\n", client.BaseURL(), cfg.Source)
	fmt.Printf("   Sesión: %s\n", store.Path())
}

func displayName(st session.State) string {
	if st.User == nil {
		return "(sin datos de usuario)"
	}
	if st.User.FullName != "" {
		return fmt.Sprintf("%s <%s>", st.User.FullName, st.User.Email)
	}
	return st.User.Email
}
