package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestShorten(t *testing.T) {
	long := "Installing mods (12/40) some-extremely-long-mod-name-forge-1.20.1-4.5.6.jar"
	short := shorten(long, 20)
	if n := len([]rune(short)); n != 20 {
		t.Fatalf("shorten() length = %d, want 20: %q", n, short)
	}
	if !strings.Contains(short, "...") {
		t.Fatalf("expected ellipsis in %q", short)
	}

	if got := shorten("jei.jar", 20); got != "jei.jar" {
		t.Fatalf("should not truncate shorter string, got %q", got)
	}
	if got := shorten("a\nb", 20); got != "a b" {
		t.Fatalf("newlines should be flattened, got %q", got)
	}
}

func TestLines(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLines(buf)
	l.Progress(0, "Starting installation...")
	l.Progress(30, "Installing mods...")
	l.Items(1, 2, "jei.jar")
	l.Progress(100, "Installation completed successfully!")

	want := "[  0%] Starting installation...\n" +
		"[ 30%] Installing mods...\n" +
		"       (1/2) jei.jar\n" +
		"[100%] Installation completed successfully!\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestBarFinishes(t *testing.T) {
	buf := &bytes.Buffer{}
	bar := NewBar(buf)
	bar.Progress(0, "Starting installation...")
	bar.Progress(30, "Installing mods...")
	bar.Items(1, 3, "jei.jar")
	bar.Progress(100, "Installation completed successfully!")

	out := buf.String()
	if !strings.Contains(out, "100%") {
		t.Fatalf("expected a full bar in %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("expected trailing newline after finish, got %q", out)
	}

	// Further updates are ignored.
	n := buf.Len()
	bar.Progress(50, "late")
	bar.Close()
	if buf.Len() != n {
		t.Fatalf("bar wrote after finishing: %q", buf.String()[n:])
	}
}

func TestBarWrapWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	bar := NewBar(buf)
	bar.Progress(10, "Checking system requirements...")

	w := bar.WrapWriter(buf)
	if _, err := w.Write([]byte("log line\n")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "log line\n") {
		t.Fatalf("log line missing from %q", buf.String())
	}

	bar.Close()
	n := buf.Len()
	w.Write([]byte("after\n"))
	if got := buf.String()[n:]; got != "after\n" {
		t.Fatalf("closed bar should pass writes through, got %q", got)
	}
}
