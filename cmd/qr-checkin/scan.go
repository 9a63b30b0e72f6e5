package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/fpang/qr-checkin/internal/camera"
	"github.com/fpang/qr-checkin/internal/cli"
	"github.com/fpang/qr-checkin/internal/config"
	"github.com/fpang/qr-checkin/internal/journal"
	"github.com/fpang/qr-checkin/internal/logging"
	"github.com/fpang/qr-checkin/internal/metrics"
	"github.com/fpang/qr-checkin/internal/notify"
	"github.com/fpang/qr-checkin/internal/scanner"
	"github.com/fpang/qr-checkin/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// mirrorTimeout bounds each DynamoDB write made after an outcome.
const mirrorTimeout = 5 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan an attendance QR code and check in",
	Long: `Open the camera, decode frames until an attendance QR code is found, and
register attendance for the logged-in user.

The rear camera is tried first and the default camera is used when no rear
camera is available. An invalid code or a failed submission keeps scanning;
a successful check-in, a camera error, the timeout, or Ctrl+C ends the scan.

Examples:
  qr-checkin scan
  qr-checkin scan --device /dev/video0 --rear-device /dev/video2
  qr-checkin scan --input-format avfoundation --device 0
  qr-checkin scan --frames-dir ./captured --no-dialogs --timeout 30s`,
	Args: cobra.NoArgs,
	Run:  runScan,
}

func init() {
	scanCmd.Flags().String("device", "", "Default camera input (e.g. /dev/video0, 0, \"video=Webcam\")")
	scanCmd.Flags().String("rear-device", "", "Rear-facing camera input, tried first")
	scanCmd.Flags().String("input-format", "", "ffmpeg input format (default per OS: v4l2, avfoundation, dshow)")
	scanCmd.Flags().String("frames-dir", "", "Replay image files from a directory instead of a camera")
	scanCmd.Flags().Duration("timeout", 0, "Stop when no code is decoded for this long (0 = never)")
	scanCmd.Flags().Bool("no-dialogs", false, "Report on the console instead of desktop dialogs")
}

func runScan(cmd *cobra.Command, args []string) {
	if code := scan(cmd); code != 0 {
		os.Exit(code)
	}
}

// scan runs one check-in and returns the process exit code. Deferred cleanup
// runs before runScan exits.
func scan(cmd *cobra.Command) int {
	initStart := time.Now()
	cfg := loadConfig(cmd)
	store, client := openSession(cfg)
	notifier := newNotifier(cfg)

	st := requireLogin(notifier, store)
	if cfg.RequirePro && !st.ProPlan() {
		show(notifier, notify.Dialog{Kind: notify.KindWarning, Title: "Plan PRO", Text: "Esta función está disponible solo para plan PRO."})
		log.Error().Msg("QR check-in requires a PRO organization")
		return 1
	}

	destination, ok := session.Destination(st.Role, st.ProPlan())
	if !ok {
		destination = scanner.DefaultDestination
	}

	jrnl, err := journal.Open(cfg.JournalFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open journal")
		return 1
	}

	if cfg.MetricsFile != "" {
		closer, err := metrics.OpenFile(cfg.MetricsFile)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to open metrics file")
			return 1
		}
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mirror *journal.Mirror
	if cfg.JournalTable != "" {
		awsCfg, err := config.LoadAWS(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load AWS config")
			return 1
		}
		mirror = journal.NewMirror(dynamodb.NewFromConfig(awsCfg), cfg.JournalTable)
	}

	device, deviceLabel := newDevice(cfg)

	logging.NewStartupLogger("qr-checkin").
		Version(version).
		CommitHash(commitHash).
		Endpoint("api", client.BaseURL()).
		Device("camera", deviceLabel).
		SSMParam("apiUrl", cfg.APIURLSSMParam).
		File("session", store.Path()).
		File("journal", jrnl.Path()).
		File("metrics", cfg.MetricsFile).
		Feature("dialogs", cfg.Dialogs).
		Feature("requirePro", cfg.RequirePro).
		Feature("journalMirror", mirror != nil).
		Config("buildTime", buildTime).
		Config("apiUrlSource", cfg.Source).
		Config("timeout", cfg.Timeout.String()).
		Config("kioskId", cfg.KioskID).
		InitDuration(time.Since(initStart)).
		Log()

	sess, err := scanner.New(scanner.Options{
		Device:      device,
		Submitter:   client,
		Notifier:    notifier,
		Destination: destination,
		Timeout:     cfg.Timeout,
		Navigator: scanner.NavigatorFunc(func(route string) {
			fmt.Printf("➡️  %s\n", route)
		}),
		OnOutcome: func(r scanner.Report) {
			recordOutcome(ctx, jrnl, mirror, cfg.KioskID, r)
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create scan session")
		return 1
	}

	// A 401 during submission clears the stored session; stop scanning then.
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go func() {
		for st := range updates {
			if !st.LoggedIn() {
				show(notifier, notify.Dialog{Kind: notify.KindWarning, Title: "Sesión expirada", Text: "Volvé a iniciar sesión."})
				sess.Stop()
				return
			}
		}
	}()

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("📷 Check-in QR")
	fmt.Println("============================================")
	fmt.Printf("Usuario: %s\n", displayName(st))
	fmt.Printf("Cámara: %s\n", deviceLabel)
	if cfg.Timeout > 0 {
		fmt.Printf("Tiempo máximo sin lectura: %s\n", cli.FormatElapsed(cfg.Timeout))
	}
	fmt.Println("Apuntá la cámara al código QR (Ctrl+C para cancelar)")
	fmt.Println("--------------------------------------------")

	if err := sess.Start(ctx); err != nil {
		if errors.Is(err, scanner.ErrStopped) {
			fmt.Println("⏹️  Escaneo cancelado")
			return 0
		}
		log.Error().Err(err).Msg("Camera unavailable")
		return 1
	}

	report := sess.Wait()
	fmt.Printf("%s %s (%s)\n", cli.OutcomeIcon(string(report.Outcome)), report.Outcome, cli.FormatElapsed(report.Elapsed))
	return exitCode(report)
}

// exitCode is zero only for a completed check-in.
func exitCode(r scanner.Report) int {
	if r.Outcome == scanner.OutcomeCheckedIn {
		return 0
	}
	return 1
}

// newDevice builds the capture device from configuration.
func newDevice(cfg *config.Config) (camera.Device, string) {
	if cfg.FramesDir != "" {
		dir := cli.ValidateAndResolveDirectory(cfg.FramesDir)
		return &camera.DirDevice{Dir: dir}, "frames:" + dir
	}
	dev := &camera.FFmpegDevice{
		Format:    cfg.InputFormat,
		Input:     cfg.Device,
		RearInput: cfg.RearDevice,
	}
	label := cfg.Device
	if label == "" {
		label = camera.DefaultInput()
	}
	if cfg.RearDevice != "" {
		label = cfg.RearDevice + " (rear), " + label
	}
	return dev, label
}

// recordOutcome journals r, mirrors it when a table is configured, and
// emits the outcome metrics.
func recordOutcome(ctx context.Context, jrnl *journal.Journal, mirror *journal.Mirror, kioskID string, r scanner.Report) {
	entry, err := jrnl.Append(journal.Entry{
		At:        r.At,
		SessionID: r.SessionID,
		KioskID:   kioskID,
		ClassID:   r.ClassID,
		Outcome:   string(r.Outcome),
		Detail:    r.Detail,
		AcquireMs: r.Acquire.Milliseconds(),
		SubmitMs:  r.Submit.Milliseconds(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to journal outcome")
	}

	if mirror != nil && err == nil {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		if err := mirror.Put(mctx, entry); err != nil {
			log.Warn().Err(err).Msg("Failed to mirror journal entry")
		}
		cancel()
	}

	metrics.RecordCheckIn(metrics.CheckIn{
		Result:    string(r.Outcome),
		SessionID: r.SessionID,
		ClassID:   r.ClassID,
		Acquire:   r.Acquire,
		Submit:    r.Submit,
		At:        r.At,
	})
}
