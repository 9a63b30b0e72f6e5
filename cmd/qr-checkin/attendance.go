package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/qr-checkin/internal/backend"
	"github.com/fpang/qr-checkin/internal/cli"
	"github.com/fpang/qr-checkin/internal/logging"
	"github.com/fpang/qr-checkin/internal/qrpayload"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Report flags
var (
	monthFlag int
	yearFlag  int
)

var parseCmd = &cobra.Command{
	Use:   "parse TEXT",
	Short: "Parse QR code text without submitting it",
	Long: `Parse the text of an attendance QR code and print the class and token it
carries, or the message a student would see for an invalid code.`,
	Args: cobra.ExactArgs(1),
	Run:  runParse,
}

var attendanceCmd = &cobra.Command{
	Use:   "attendance CLASS_ID [USER_ID=present|absent ...]",
	Short: "List or set the attendance of a class",
	Long: `Without marks, list the attendance of a class session.
With marks, register them, e.g.:
  qr-checkin attendance 42 17=present 18=absent`,
	Args: cobra.MinimumNArgs(1),
	Run:  runAttendance,
}

var reportCmd = &cobra.Command{
	Use:   "report COURSE_ID",
	Short: "Print the monthly attendance report of a course",
	Args:  cobra.ExactArgs(1),
	Run:   runReport,
}

func init() {
	now := time.Now()
	reportCmd.Flags().IntVar(&monthFlag, "month", int(now.Month()), "Month (1-12)")
	reportCmd.Flags().IntVar(&yearFlag, "year", now.Year(), "Year")
}

func runParse(cmd *cobra.Command, args []string) {
	logging.Init()

	p, err := qrpayload.Parse(args[0])
	if err != nil {
		var invalid *qrpayload.InvalidError
		if errors.As(err, &invalid) {
			fmt.Printf("⚠️  %s\n", invalid.UserMessage())
		} else {
			fmt.Printf("⚠️  %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("✅ Formato: %s\n", p.Format)
	fmt.Printf("   Clase: %d\n", p.ClassID)
	fmt.Printf("   Token: %s\n", p.Token)
}

func runAttendance(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	store, client := openSession(cfg)
	notifier := newNotifier(cfg)
	requireLogin(notifier, store)

	classID := parseID(args[0], "class")
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if len(args) > 1 {
		marks, err := parseMarks(args[1:])
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid mark")
		}
		if err := client.RegisterAttendance(ctx, classID, marks); err != nil {
			cli.HandleAPIError(notifier, err)
		}
		fmt.Printf("✅ %d marcas registradas en la clase %d\n", len(marks), classID)
		return
	}

	marks, err := client.SessionAttendance(ctx, classID)
	if err != nil {
		cli.HandleAPIError(notifier, err)
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].UserID < marks[j].UserID })

	present := 0
	fmt.Printf("📋 Clase %d\n", classID)
	for _, m := range marks {
		icon := "❌"
		if m.Present {
			icon = "✅"
			present++
		}
		fmt.Printf("   %s %d\n", icon, m.UserID)
	}
	fmt.Printf("Presentes: %d/%d\n", present, len(marks))
}

func runReport(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	store, client := openSession(cfg)
	notifier := newNotifier(cfg)
	requireLogin(notifier, store)

	if monthFlag < 1 || monthFlag > 12 {
		log.Fatal().Int("month", monthFlag).Msg("Month must be between 1 and 12")
	}
	courseID := parseID(args[0], "course")
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	rows, err := client.MonthlyReport(ctx, courseID, monthFlag, yearFlag)
	if err != nil {
		cli.HandleAPIError(notifier, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		log.Fatal().Err(err).Msg("Failed to print report")
	}
}

func parseID(s, what string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		log.Fatal().Str(what, s).Msg("ID must be a positive integer")
	}
	return id
}

// parseMarks parses USER_ID=present|absent arguments.
func parseMarks(args []string) ([]backend.Mark, error) {
	marks := make([]backend.Mark, 0, len(args))
	for _, arg := range args {
		user, state, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%q: expected USER_ID=present|absent", arg)
		}
		id, err := strconv.ParseInt(user, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q: invalid user ID", arg)
		}
		var present bool
		switch strings.ToLower(state) {
		case "present", "presente", "true", "1":
			present = true
		case "absent", "ausente", "false", "0":
		default:
			return nil, fmt.Errorf("%q: state must be present or absent", arg)
		}
		marks = append(marks, backend.Mark{UserID: id, Present: present})
	}
	return marks, nil
}
