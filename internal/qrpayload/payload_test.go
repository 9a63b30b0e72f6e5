package qrpayload

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantClass  int64
		wantToken  string
		wantFormat Format
	}{
		{"namespaced prefix", "ATTENDANCE:CLASS:42:TOKEN:abc123", 42, "abc123", FormatPrefix},
		{"bare prefix", "CLASS:42:TOKEN:abc123", 42, "abc123", FormatPrefix},
		{"lowercase prefix", "attendance:class:42:token:abc123", 42, "abc123", FormatPrefix},
		{"url", "https://app/x?classId=7&token=ZT9", 7, "ZT9", FormatURL},
		{"url with extra params", "https://app.example.com/attendance/scan?foo=1&token=Q1w2&classId=100", 100, "Q1w2", FormatURL},
		{"loose spaced", "Class 42 Token abc123", 42, "abc123", FormatLoose},
		{"loose punctuation", "class=42; token=abc123!", 42, "abc123", FormatLoose},
		{"loose token first", "token abc class 5", 5, "abc", FormatLoose},
		{"loose token first compact", "TOKEN:Zx9/CLASS:12", 12, "Zx9", FormatLoose},
		{"surrounding whitespace", "  CLASS:9:TOKEN:x1 \n", 9, "x1", FormatPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.text, err)
			}
			if p.ClassID != tt.wantClass || p.Token != tt.wantToken {
				t.Errorf("Parse(%q) = {%d, %q}, want {%d, %q}", tt.text, p.ClassID, p.Token, tt.wantClass, tt.wantToken)
			}
			if p.Format != tt.wantFormat {
				t.Errorf("Parse(%q) format = %s, want %s", tt.text, p.Format, tt.wantFormat)
			}
		})
	}
}

func TestParseEquivalentContentAcrossFormats(t *testing.T) {
	texts := []string{
		"https://app/attendance?classId=15&token=Tok3n",
		"ATTENDANCE:CLASS:15:TOKEN:Tok3n",
		"class: 15 / token: Tok3n",
	}
	var first Payload
	for i, text := range texts {
		p, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", text, err)
		}
		if i == 0 {
			first = p
			continue
		}
		if p.ClassID != first.ClassID || p.Token != first.Token {
			t.Errorf("Parse(%q) = {%d, %q}, want {%d, %q}", text, p.ClassID, p.Token, first.ClassID, first.Token)
		}
	}
}

func TestParseRejects(t *testing.T) {
	tests := []string{
		"hello world",
		"",
		"CLASS:42",
		"TOKEN:abc",
		"class only here 42",
		"token abc but nothing else",
		"https://app/x?classId=7",
		"https://app/x?classId=seven&token=abc",
		"class token",
		"https://app/x?classId=-1&token=a",
		"https://app/x?classId=7&token=a-b",
	}
	for _, text := range tests {
		if p, err := Parse(text); err == nil {
			t.Errorf("Parse(%q) = %+v, want error", text, p)
		}
	}
}

func TestParseInvalidErrorPreview(t *testing.T) {
	_, err := Parse("hello world")
	var invalid *InvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidError, got %T", err)
	}
	if invalid.Preview != "hello world" {
		t.Errorf("Preview = %q, want %q", invalid.Preview, "hello world")
	}
	if !strings.Contains(invalid.UserMessage(), "hello world") {
		t.Errorf("UserMessage() = %q, want preview included", invalid.UserMessage())
	}
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("ñ", 200)
	got := Preview(long)
	if utf8.RuneCountInString(got) != MaxPreviewRunes+1 {
		t.Errorf("Preview rune count = %d, want %d", utf8.RuneCountInString(got), MaxPreviewRunes+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("Preview = %q, want ellipsis suffix", got)
	}

	short := "CLASS:1"
	if Preview(short) != short {
		t.Errorf("Preview(%q) = %q, want unchanged", short, Preview(short))
	}
}

func TestStrategiesInIsolation(t *testing.T) {
	tests := []struct {
		strategy Strategy
		text     string
		want     bool
	}{
		{URLStrategy{}, "https://app/x?classId=7&token=ZT9", true},
		{URLStrategy{}, "CLASS:7:TOKEN:ZT9", false},
		{URLStrategy{}, "/relative?classId=7&token=ZT9", false},
		{PrefixStrategy{}, "CLASS:7:TOKEN:ZT9", true},
		{PrefixStrategy{}, "https://app/x?classId=7&token=ZT9", false},
		{LooseStrategy{}, "https://app/x?classId=7&token=ZT9", true},
		{LooseStrategy{}, "no markers", false},
	}
	for _, tt := range tests {
		_, ok := tt.strategy.Match(tt.text)
		if ok != tt.want {
			t.Errorf("%s.Match(%q) = %v, want %v", tt.strategy.Name(), tt.text, ok, tt.want)
		}
	}
}

func TestParseWithCustomChain(t *testing.T) {
	// Without the loose fallback a reformatted code is rejected.
	_, err := ParseWith([]Strategy{URLStrategy{}, PrefixStrategy{}}, "class 3 token abc")
	if err == nil {
		t.Fatal("expected error without loose strategy")
	}
}
