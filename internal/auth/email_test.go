package auth

import (
	"strings"
	"testing"
)

func TestNormalizeEmail_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"通常のアドレス", "alice@example.com", "alice@example.com"},
		{"前後の空白を除去", "  alice@example.com\t", "alice@example.com"},
		{"大文字を小文字化", "Alice@Example.COM", "alice@example.com"},
		{"プラス記法", "alice+ops@example.com", "alice+ops@example.com"},
		{"サブドメイン", "bob@mail.corp.example.co.jp", "bob@mail.corp.example.co.jp"},
		{"国際化ドメイン", "carol@例え.jp", "carol@xn--r8jz45g.jp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEmail(tt.input)
			if err != nil {
				t.Fatalf("NormalizeEmail(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeEmail_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"空文字列", ""},
		{"空白のみ", "   "},
		{"@なし", "alice.example.com"},
		{"ローカル部なし", "@example.com"},
		{"ドメインなし", "alice@"},
		{"ドットなしドメイン", "alice@localhost"},
		{"二重@", "alice@@example.com"},
		{"表示名付き", "Alice <alice@example.com>"},
		{"空白を含む", "ali ce@example.com"},
		{"不正なドメイン", "alice@exa mple.com"},
		{"長すぎる", strings.Repeat("a", 250) + "@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := NormalizeEmail(tt.input); err == nil {
				t.Errorf("NormalizeEmail(%q) = %q, want error", tt.input, got)
			}
		})
	}
}
