package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fpang/qr-checkin/internal/backend"
	"github.com/fpang/qr-checkin/internal/notify"
	"github.com/fpang/qr-checkin/internal/validation"
	"github.com/rs/zerolog/log"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", dirPath).Msg("Frames directory not found")
		}
		log.Fatal().Err(err).Str("path", dirPath).Msg("Failed to access frames directory")
	}
	if !info.IsDir() {
		log.Fatal().Str("path", dirPath).Msg("Frames path is not a directory")
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}
	return dirPath
}

// DescribeError turns a command error into the dialog shown to the user.
func DescribeError(err error) notify.Dialog {
	var apiErr *backend.APIError
	var fieldErr *validation.Error
	switch {
	case errors.As(err, &apiErr):
		return notify.Dialog{Kind: notify.KindError, Title: apiErr.Title, Text: apiErr.UserMessage()}
	case errors.As(err, &fieldErr):
		return notify.Dialog{Kind: notify.KindWarning, Title: "Datos inválidos", Text: fieldErr.Error()}
	case errors.Is(err, notify.ErrCanceled), errors.Is(err, ErrEmptyInput):
		return notify.Dialog{Kind: notify.KindInfo, Title: "Cancelado", Text: "No se ingresaron datos."}
	default:
		return notify.Dialog{Kind: notify.KindError, Title: "Error", Text: err.Error()}
	}
}

// HandleAPIError shows err to the user and exits.
func HandleAPIError(n notify.Notifier, err error) {
	d := DescribeError(err)
	if nerr := n.Notify(d); nerr != nil {
		log.Warn().Err(nerr).Msg("Failed to show error dialog")
	}
	if backend.IsSessionExpired(err) {
		log.Fatal().Err(err).Msg("Session expired. Run 'qr-checkin login' again")
	}
	log.Fatal().Err(err).Str("title", d.Title).Msg("Request failed")
	os.Exit(1)
}
