package camera

import (
	"errors"
	"strings"
)

// Kind classifies a camera acquisition or device failure.
type Kind int

const (
	// KindOther is any failure that fits no other class.
	KindOther Kind = iota
	// KindNotAllowed means permission to the device was denied.
	KindNotAllowed
	// KindNotFound means no matching capture device exists.
	KindNotFound
	// KindNotReadable means the device exists but is busy or failed mid-stream.
	KindNotReadable
	// KindNotSupported means no capture backend is available on this host.
	KindNotSupported
	// KindOverconstrained means the requested constraints cannot be satisfied.
	KindOverconstrained
)

// Name returns the conventional error name for k, e.g. "NotAllowedError".
func (k Kind) Name() string {
	switch k {
	case KindNotAllowed:
		return "NotAllowedError"
	case KindNotFound:
		return "NotFoundError"
	case KindNotReadable:
		return "NotReadableError"
	case KindNotSupported:
		return "NotSupportedError"
	case KindOverconstrained:
		return "OverconstrainedError"
	default:
		return "UnknownError"
	}
}

func (k Kind) String() string { return strings.TrimSuffix(k.Name(), "Error") }

// message is the base user-facing text for each kind.
func (k Kind) message() string {
	switch k {
	case KindNotAllowed:
		return "Debes permitir el acceso a la cámara."
	case KindNotFound:
		return "No se encontró una cámara disponible."
	case KindNotReadable:
		return "La cámara está siendo usada por otra app."
	case KindNotSupported:
		return "El equipo no soporta acceso a cámara."
	case KindOverconstrained:
		return "No se pudo seleccionar la cámara trasera."
	default:
		return "Activa los permisos de cámara e intenta nuevamente."
	}
}

// Error is a classified camera failure.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "camera: " + e.Kind.Name()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the dialog text for this failure, suffixed with the
// error name and detail for diagnosis.
func (e *Error) UserMessage() string {
	details := e.Kind.Name()
	if e.Detail != "" {
		details += " - " + e.Detail
	}
	return e.Kind.message() + " (" + details + ")"
}

// KindOf returns the Kind of err, or KindOther if err is not a camera error.
func KindOf(err error) Kind {
	var camErr *Error
	if errors.As(err, &camErr) {
		return camErr.Kind
	}
	return KindOther
}

// NewError builds an Error. Multi-line detail (ffmpeg stderr) is reduced to
// its last non-empty line.
func NewError(kind Kind, detail string, err error) *Error {
	detail = strings.TrimSpace(detail)
	if i := strings.LastIndexByte(detail, '\n'); i >= 0 {
		detail = strings.TrimSpace(detail[i+1:])
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}
