package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseFrameRate(t *testing.T) {
	cases := map[string]float64{
		"30/1":       30,
		"30000/1001": 30000.0 / 1001.0,
		"0/0":        0,
		"garbage":    0,
	}
	for in, want := range cases {
		if got := ParseFrameRate(in); got != want {
			t.Errorf("ParseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(time.Second); got != "00:00:01.000" {
		t.Errorf("unexpected timestamp %q", got)
	}
	if got := FormatDuration(time.Hour + 2*time.Minute + 1500*time.Millisecond); got != "01:02:01.500" {
		t.Errorf("unexpected timestamp %q", got)
	}
}

func TestParseSeconds(t *testing.T) {
	d, err := ParseSeconds(" 8.000000 ")
	if err != nil {
		t.Fatal(err)
	}
	if d != 8*time.Second {
		t.Errorf("expected 8s, got %v", d)
	}
	if _, err := ParseSeconds("N/A"); err == nil {
		t.Error("expected error for N/A")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "nested", "b.txt")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("unexpected contents %q", data)
	}
}

func TestContentType(t *testing.T) {
	if ContentType("clip.MP4") != "video/mp4" {
		t.Error("mp4 should map to video/mp4")
	}
	if ContentType("frame.jpg") != "image/jpeg" {
		t.Error("jpg should map to image/jpeg")
	}
	if ContentType("noext") != "application/octet-stream" {
		t.Error("unknown extension should fall back to octet-stream")
	}
}
