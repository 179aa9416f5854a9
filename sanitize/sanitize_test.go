package sanitize

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"hello", "hello"},
		{"a < b && c > d", "a < b && c > d"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert("x")</script>ok`, "ok"},
		{`<a href="javascript:x">link</a>`, "link"},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUsername(t *testing.T) {
	if got := Username("  <i>alice</i> "); got != "alice" {
		t.Fatalf("Username = %q", got)
	}
	if got := Username("<br>"); got != "" {
		t.Fatalf("Username of pure markup = %q", got)
	}
	long := strings.Repeat("가", 30)
	if got := Username(long); len([]rune(got)) != MaxUsernameLen {
		t.Fatalf("Username kept %d runes", len([]rune(got)))
	}
}
