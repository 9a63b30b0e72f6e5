package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fpang/qr-checkin/internal/notify"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

var (
	// One reader for all prompts.
	stdin            = bufio.NewReader(os.Stdin)
	readPasswordFunc = term.ReadPassword // mockable
	isTerminalFunc   = term.IsTerminal
)

// ErrEmptyInput is returned when a required prompt is left blank.
var ErrEmptyInput = errors.New("empty input")

// PromptLine asks for one line of input. Returns def if the user enters nothing.
func PromptLine(label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}

	input, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		log.Warn().Err(err).Str("prompt", label).Msg("Failed to read input")
		return def
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// PromptPassword reads a password. With dialogs enabled it uses a desktop
// entry dialog; otherwise it reads from the terminal without echo.
func PromptPassword(dialogs bool) (string, error) {
	if dialogs {
		pwd, err := notify.PromptSecret("Iniciar sesión", "Contraseña")
		if err != nil {
			return "", err
		}
		if pwd == "" {
			return "", ErrEmptyInput
		}
		return pwd, nil
	}

	fd := int(os.Stdin.Fd())
	if !isTerminalFunc(fd) {
		line := PromptLine("Contraseña", "")
		if line == "" {
			return "", ErrEmptyInput
		}
		return line, nil
	}

	fmt.Print("Contraseña: ")
	pwd, err := readPasswordFunc(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(pwd) == 0 {
		return "", ErrEmptyInput
	}
	return string(pwd), nil
}
