// Package notify presents user-facing dialogs, either as native desktop
// dialogs or as console output for headless kiosks.
package notify

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// Kind selects the dialog icon and severity.
type Kind int

const (
	KindInfo Kind = iota
	KindSuccess
	KindWarning
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	default:
		return "info"
	}
}

// Dialog is a short title plus descriptive text.
type Dialog struct {
	Kind  Kind
	Title string
	Text  string
}

// Notifier shows a dialog and returns once the user has seen it.
type Notifier interface {
	Notify(d Dialog) error
}

// Desktop shows modal dialogs with zenity.
type Desktop struct{}

// Notify blocks until the dialog is dismissed. Dismissing with the window
// close button is not an error.
func (Desktop) Notify(d Dialog) error {
	log.Debug().Str("kind", d.Kind.String()).Str("title", d.Title).Msg("Showing dialog")

	var err error
	switch d.Kind {
	case KindError:
		err = zenity.Error(d.Text, zenity.Title(d.Title), zenity.ErrorIcon)
	case KindWarning:
		err = zenity.Warning(d.Text, zenity.Title(d.Title), zenity.WarningIcon)
	default:
		err = zenity.Info(d.Text, zenity.Title(d.Title), zenity.InfoIcon)
	}
	if errors.Is(err, zenity.ErrCanceled) {
		return nil
	}
	return err
}

// Console writes dialogs as text lines.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

var consoleIcons = map[Kind]string{
	KindInfo:    "ℹ️ ",
	KindSuccess: "✅",
	KindWarning: "⚠️ ",
	KindError:   "❌",
}

func (c *Console) Notify(d Dialog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s %s: %s\n", consoleIcons[d.Kind], d.Title, d.Text)
	return err
}

// Recorder keeps every dialog it is given. Used where dialogs must be
// asserted or replayed later.
type Recorder struct {
	mu      sync.Mutex
	dialogs []Dialog
}

func (r *Recorder) Notify(d Dialog) error {
	r.mu.Lock()
	r.dialogs = append(r.dialogs, d)
	r.mu.Unlock()
	return nil
}

// Dialogs returns a copy of the recorded dialogs.
func (r *Recorder) Dialogs() []Dialog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Dialog(nil), r.dialogs...)
}

// PromptSecret asks for a hidden value in a desktop entry dialog.
func PromptSecret(title, text string) (string, error) {
	value, err := zenity.Entry(text, zenity.Title(title), zenity.HideText())
	if errors.Is(err, zenity.ErrCanceled) {
		return "", ErrCanceled
	}
	return value, err
}

// ErrCanceled reports a prompt closed without an answer.
var ErrCanceled = errors.New("prompt canceled")
