// Package qrpayload extracts a class-session identifier and a one-time token
// from the text encoded in an attendance QR code.
//
// The payload format changed over time and printed codes from older
// revisions are still in circulation, so parsing is an ordered chain of
// independent strategies. The first strategy that recognises the text wins:
//  1. URL with classId and token query parameters
//  2. CLASS:<digits>:TOKEN:<alphanumeric>, optionally namespaced (ATTENDANCE:)
//  3. loose "class ... token ..." text with whitespace removed
package qrpayload

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// MaxPreviewRunes caps the raw-text preview included in invalid-QR messages.
const MaxPreviewRunes = 140

// Format identifies which strategy recognised a payload.
type Format string

const (
	FormatURL    Format = "url"
	FormatPrefix Format = "prefix"
	FormatLoose  Format = "loose"
)

// Payload is a decoded attendance QR code.
type Payload struct {
	ClassID int64
	Token   string
	Format  Format
}

// Strategy recognises one payload format. Match returns ok=false when the
// text is not in its format; it never returns a partially valid payload.
type Strategy interface {
	Name() Format
	Match(text string) (Payload, bool)
}

// Claimer is implemented by strategies that own a text even when its fields
// fail validation. ParseWith stops at a claiming strategy.
type Claimer interface {
	Claims(text string) bool
}

// DefaultChain is the ordered strategy chain used by Parse.
var DefaultChain = []Strategy{URLStrategy{}, PrefixStrategy{}, LooseStrategy{}}

// InvalidError is returned when no strategy recognises the scanned text.
type InvalidError struct {
	Preview string
}

func (e *InvalidError) Error() string {
	if e.Preview == "" {
		return "unrecognised attendance QR"
	}
	return fmt.Sprintf("unrecognised attendance QR: %q", e.Preview)
}

// UserMessage is the text shown to the student for an unreadable code.
func (e *InvalidError) UserMessage() string {
	if e.Preview == "" {
		return "No se reconoció el QR de asistencia."
	}
	return "No se reconoció el QR de asistencia. Contenido: " + e.Preview
}

// Parse runs DefaultChain against text.
func Parse(text string) (Payload, error) {
	return ParseWith(DefaultChain, text)
}

// ParseWith runs the given strategies in order and returns the first match.
func ParseWith(chain []Strategy, text string) (Payload, error) {
	cleaned := strings.TrimSpace(text)
	for _, s := range chain {
		p, ok := s.Match(cleaned)
		if !ok {
			if c, claims := s.(Claimer); claims && c.Claims(cleaned) {
				break
			}
			continue
		}
		log.Debug().Str("format", string(s.Name())).Int64("classId", p.ClassID).Msg("QR payload recognised")
		p.Format = s.Name()
		return p, nil
	}
	return Payload{}, &InvalidError{Preview: Preview(cleaned)}
}

// Preview returns text truncated to MaxPreviewRunes, elided with an ellipsis.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= MaxPreviewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxPreviewRunes]) + "…"
}

var tokenRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// build validates raw fields and returns a payload.
func build(rawClass, token string) (Payload, bool) {
	id, err := strconv.ParseInt(rawClass, 10, 64)
	if err != nil || id < 0 {
		return Payload{}, false
	}
	if !tokenRe.MatchString(token) {
		return Payload{}, false
	}
	return Payload{ClassID: id, Token: token}, true
}
