// Package ui renders installation progress on a terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/schollz/progressbar/v3"
)

const (
	barWidth   = 30
	maxDescLen = 50
)

// Bar draws a single-line progress bar from 0 to 100.
type Bar struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	step    string
	percent int
	done    bool
}

// NewBar creates a bar writing to w.
func NewBar(w io.Writer) *Bar {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(barWidth),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "#",
			SaucerPadding: "-",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Bar{bar: bar}
}

// Progress moves the bar to percent and shows message.
func (b *Bar) Progress(percent int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.step = message
	b.percent = percent
	b.bar.Describe(shorten(message, maxDescLen))
	if percent >= 100 {
		b.bar.Finish()
		b.done = true
		return
	}
	b.bar.Set(percent)
}

// Items is a download progress callback. It keeps the step percentage and
// names the item that just finished.
func (b *Bar) Items(completed, total int, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	desc := fmt.Sprintf("%s (%d/%d) %s", strings.TrimSuffix(b.step, "..."), completed, total, name)
	b.bar.Describe(shorten(desc, maxDescLen))
	b.bar.Set(b.percent)
}

// Close ends the bar without filling it, for failed runs.
func (b *Bar) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	b.bar.Exit()
}

// WrapWriter returns a writer that clears the bar before each write and
// redraws it after, so log lines do not tear it.
func (b *Bar) WrapWriter(w io.Writer) io.Writer {
	return &barAwareWriter{bar: b, w: w}
}

type barAwareWriter struct {
	bar *Bar
	w   io.Writer
}

func (bw *barAwareWriter) Write(p []byte) (int, error) {
	bw.bar.mu.Lock()
	defer bw.bar.mu.Unlock()
	if bw.bar.done {
		return bw.w.Write(p)
	}
	bw.bar.bar.Clear()
	n, err := bw.w.Write(p)
	bw.bar.bar.RenderBlank()
	return n, err
}

// Lines prints each progress change on its own line, for console mode and
// non-terminal output.
type Lines struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLines creates a line printer writing to w.
func NewLines(w io.Writer) *Lines {
	return &Lines{w: w}
}

// Progress prints "[ 30%] message".
func (l *Lines) Progress(percent int, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[%3d%%] %s\n", percent, message)
}

// Items prints download completions.
func (l *Lines) Items(completed, total int, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "       (%d/%d) %s\n", completed, total, name)
}

// Close is a no-op; every line is already complete.
func (l *Lines) Close() {}

// Discard ignores progress.
type Discard struct{}

func (Discard) Progress(int, string)   {}
func (Discard) Items(int, int, string) {}
func (Discard) Close()                 {}

func shorten(s string, maxLen int) string {
	s = strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	keep := maxLen - 3
	head := keep / 2
	tail := keep - head
	return string(runes[:head]) + "..." + string(runes[len(runes)-tail:])
}
