package security_test

import (
	"strings"
	"testing"

	"github.com/arangkita/arang-chat/internal/security"
)

func TestContentGuard_AllowsNormalMessages(t *testing.T) {
	guard := security.NewContentGuard(0)

	messages := []string{
		"Halo, stok arang masih tersedia?",
		"Pesanan #1042, total Rp250.000",
		"Terima kasih 🙏",
	}
	for _, msg := range messages {
		if err := guard.Validate(msg); err != nil {
			t.Errorf("expected %q to pass, got %v", msg, err)
		}
	}
}

func TestContentGuard_BlocksMarkup(t *testing.T) {
	guard := security.NewContentGuard(0)

	messages := []string{
		"<script>alert(1)</script>",
		"klik javascript:void(0)",
		"data:text/html,<h1>x</h1>",
	}
	for _, msg := range messages {
		if err := guard.Validate(msg); err == nil {
			t.Errorf("expected %q to be blocked", msg)
		}
	}
}

func TestContentGuard_EnforcesLength(t *testing.T) {
	guard := security.NewContentGuard(10)

	if err := guard.Validate("1234567890"); err != nil {
		t.Errorf("message at the limit should pass, got %v", err)
	}
	if err := guard.Validate("12345678901"); err == nil {
		t.Error("message over the limit should be rejected")
	}
}

func TestContentGuard_RejectsInvalidUTF8(t *testing.T) {
	guard := security.NewContentGuard(0)

	if err := guard.Validate(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid UTF-8 should be rejected")
	}
}

func TestSanitize(t *testing.T) {
	got := security.Sanitize("  Halo\r\ndunia  ")
	want := "Halo\ndunia"
	if got != want {
		t.Errorf("sanitize mismatch: got %q, want %q", got, want)
	}

	long := security.Sanitize(strings.Repeat(" ", 5) + "x")
	if long != "x" {
		t.Errorf("expected trimmed %q, got %q", "x", long)
	}
}
