package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrSessionExpired marks a 401 on an authenticated call.
var ErrSessionExpired = errors.New("session expired")

// APIError is a failed API call, classified for display.
type APIError struct {
	// Status is the HTTP status, or 0 when the server was unreachable.
	Status  int
	Title   string
	Message string
	// Detail is the server-provided message, if any.
	Detail string
	Err    error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (status %d)", e.Title, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// UserMessage returns the dialog text.
func (e *APIError) UserMessage() string {
	return e.Message
}

// classify maps a status to a dialog title and text.
func classify(status int, body []byte, err error) *APIError {
	e := &APIError{Status: status, Detail: serverMessage(body), Err: err}
	switch {
	case status == 0:
		e.Title, e.Message = "Sin conexión", "No se pudo conectar con el servidor."
	case status == http.StatusUnauthorized:
		e.Title, e.Message = "Sesión expirada", "Volvé a iniciar sesión."
	case status == http.StatusNotFound:
		e.Title, e.Message = "Recurso no encontrado", "El recurso solicitado no existe."
	case status >= 500:
		e.Title, e.Message = "Error interno", "Ocurrió un error en el servidor."
	default:
		e.Title, e.Message = "Error", "Error desconocido"
		if e.Detail != "" {
			e.Message = e.Detail
		}
	}
	return e
}

// loginError maps login failures to their own messages.
func loginError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	out := *apiErr
	switch apiErr.Status {
	case 0:
		return err
	case http.StatusUnauthorized:
		out.Title, out.Message = "Credenciales incorrectas", "Revisá el email y la contraseña."
	case http.StatusForbidden:
		out.Title, out.Message = "No tenés permisos", "Tu cuenta no tiene acceso."
	default:
		out.Title, out.Message = "Error de servidor", "No se pudo iniciar sesión."
	}
	return &out
}

// serverMessage extracts "message" or "error" from a JSON error body, or
// returns a short plain-text body.
func serverMessage(body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		return payload.Error
	}
	if body[0] == '<' {
		return ""
	}
	return truncate(string(body), 200)
}
