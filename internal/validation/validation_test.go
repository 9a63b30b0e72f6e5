package validation

import (
	"errors"
	"strings"
	"testing"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type endpoint struct {
	URL string `mapstructure:"api_url" validate:"required,httpurl"`
}

func TestStructValid(t *testing.T) {
	if err := Struct(credentials{Email: "ana@example.com", Password: "x"}); err != nil {
		t.Errorf("Struct() error: %v", err)
	}
}

func TestStructFieldMessages(t *testing.T) {
	err := Struct(credentials{Email: "not-an-email"})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if got := verr.Fields["password"]; got != "este campo es obligatorio" {
		t.Errorf("password message = %q", got)
	}
	if got := verr.Fields["email"]; got == "" || !strings.Contains(got, "email") {
		t.Errorf("email message = %q", got)
	}
	if !strings.HasPrefix(verr.Error(), "datos inválidos: email: ") {
		t.Errorf("Error() = %q, want fields sorted", verr.Error())
	}
}

func TestStructHTTPURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://api.example.com", true},
		{"http://localhost:8080/api", true},
		{"ftp://example.com", false},
		{"example.com", false},
	}
	for _, tt := range tests {
		err := Struct(endpoint{URL: tt.url})
		if (err == nil) != tt.valid {
			t.Errorf("Struct(%q) error = %v, want valid=%v", tt.url, err, tt.valid)
			continue
		}
		if err != nil {
			verr := err.(*Error)
			if got := verr.Fields["api_url"]; got != "api_url debe ser una URL http o https" {
				t.Errorf("api_url message = %q", got)
			}
		}
	}
}
