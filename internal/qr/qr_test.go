package qr

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDataURL(t *testing.T) {
	url, err := DataURL("2@abc123,def456,ghi789")
	if err != nil {
		t.Fatalf("DataURL() error = %v", err)
	}

	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("url prefix = %q, want %q", url[:min(len(url), 30)], prefix)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	// PNG magic bytes.
	if len(raw) < 8 || string(raw[1:4]) != "PNG" {
		t.Error("payload is not a PNG image")
	}
}

func TestDataURLEmptyCode(t *testing.T) {
	if _, err := DataURL(""); err == nil {
		t.Error("DataURL(\"\") = nil error, want error")
	}
}
