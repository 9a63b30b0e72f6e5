package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fpang/qr-checkin/internal/cli"
	"github.com/fpang/qr-checkin/internal/config"
	"github.com/fpang/qr-checkin/internal/journal"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// exportLinkExpiry is the lifetime of the pre-signed export link.
const exportLinkExpiry = 24 * time.Hour

// History flags
var (
	limitFlag  int
	remoteFlag bool
	uploadFlag bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent check-in attempts on this kiosk",
	Long: `Show recent check-in attempts recorded by scan, newest first.

With --remote the attempts of this kiosk are read from the DynamoDB table
configured in CHECKIN_JOURNAL_TABLE instead of the local journal.`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

var historyExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export the journal as zstd-compressed JSON Lines",
	Long: `Write every journal entry to FILE as zstd-compressed JSON Lines.

With --upload the archive is also uploaded to the bucket configured in
CHECKIN_EXPORT_BUCKET and a download link valid for 24 hours is printed.`,
	Args: cobra.ExactArgs(1),
	Run:  runHistoryExport,
}

func init() {
	historyCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum entries to show (0 = all)")
	historyCmd.Flags().BoolVar(&remoteFlag, "remote", false, "Read from the DynamoDB mirror")
	historyExportCmd.Flags().BoolVar(&uploadFlag, "upload", false, "Upload the archive to S3")
	historyCmd.AddCommand(historyExportCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	var entries []journal.Entry
	var err error
	if remoteFlag {
		if cfg.JournalTable == "" {
			log.Fatal().Msg("No journal table configured. Set CHECKIN_JOURNAL_TABLE")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		awsCfg, aerr := config.LoadAWS(ctx)
		if aerr != nil {
			log.Fatal().Err(aerr).Msg("Failed to load AWS config")
		}
		mirror := journal.NewMirror(dynamodb.NewFromConfig(awsCfg), cfg.JournalTable)
		entries, err = mirror.Recent(ctx, cfg.KioskID, limitFlag)
	} else {
		jrnl, jerr := journal.Open(cfg.JournalFile)
		if jerr != nil {
			log.Fatal().Err(jerr).Msg("Failed to open journal")
		}
		entries, err = jrnl.List(limitFlag)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read history")
	}

	if len(entries) == 0 {
		fmt.Println("Sin registros.")
		return
	}
	for _, e := range entries {
		class := "-"
		if e.ClassID > 0 {
			class = fmt.Sprintf("%d", e.ClassID)
		}
		fmt.Printf("%s %s  %-13s clase %-6s %s",
			cli.OutcomeIcon(e.Outcome), e.At.Local().Format("2006-01-02 15:04:05"), e.Outcome, class,
			cli.FormatElapsed(time.Duration(e.SubmitMs)*time.Millisecond))
		if e.Detail != "" {
			fmt.Printf("  %s", e.Detail)
		}
		fmt.Println()
	}
}

func runHistoryExport(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	jrnl, err := journal.Open(cfg.JournalFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open journal")
	}

	path := args[0]
	f, err := os.Create(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to create export file")
	}
	n, err := jrnl.Export(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to export journal")
	}
	fmt.Printf("✅ %d registros exportados a %s\n", n, path)

	if !uploadFlag {
		return
	}
	if cfg.ExportBucket == "" {
		log.Fatal().Msg("No export bucket configured. Set CHECKIN_EXPORT_BUCKET")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	awsCfg, err := config.LoadAWS(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	client := s3.NewFromConfig(awsCfg)

	body, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to reopen export file")
	}
	defer body.Close()

	key := journal.ExportKey(cfg.KioskID, time.Now())
	if err := journal.UploadExport(ctx, client, cfg.ExportBucket, key, body); err != nil {
		log.Fatal().Err(err).Msg("Failed to upload export")
	}
	url, err := journal.PresignExport(ctx, s3.NewPresignClient(client), cfg.ExportBucket, key, exportLinkExpiry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create download link")
	}
	fmt.Printf("☁️  s3://%s/%s\n", cfg.ExportBucket, key)
	fmt.Printf("🔗 %s\n", url)
}
