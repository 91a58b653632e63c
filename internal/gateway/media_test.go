package gateway

import "testing"

func TestSniffImageMime(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0x00}, "image/png"},
		{"gif87a", []byte("GIF87a trailing"), "image/gif"},
		{"gif89a", []byte("GIF89a trailing"), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"riff not webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "application/octet-stream"},
		{"text", []byte("hello world, long enough to sniff"), "application/octet-stream"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"empty", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffImageMime(tt.data); got != tt.want {
				t.Errorf("sniffImageMime = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeRoles(t *testing.T) {
	in := []Message{
		{Role: "system", Content: "s"},
		{Role: "USER", Content: "u"},
		{Role: "narrator", Content: "dropped"},
		{Role: "assistant", Content: "a"},
	}
	out := normalizeRoles(in)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}
	if out[1].Role != RoleUser {
		t.Errorf("role not lowercased: %q", out[1].Role)
	}
	for _, m := range out {
		if m.Content == "dropped" {
			t.Error("unknown role was not dropped")
		}
	}
}
