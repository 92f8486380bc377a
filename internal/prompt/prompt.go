// Package prompt handles the interactive console screens.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ErrNoFolder is returned when the user cancels folder selection.
var ErrNoFolder = errors.New("no folder selected")

// SoundPlayer plays a named cue.
type SoundPlayer interface {
	Play(name string)
}

// Config holds configuration for prompting
type Config struct {
	NonInteractive bool
	In             io.Reader
	Out            io.Writer
	Sound          SoundPlayer
	// Window returns the console window handle used as the dialog owner.
	Window func() uintptr
}

// Prompter reads answers from a single input stream.
type Prompter struct {
	cfg Config
	in  *bufio.Reader
	out io.Writer

	start sync.Once
	lines chan line
}

type line struct {
	s   string
	err error
}

// New creates a Prompter. Nil In/Out default to stdin/stdout.
func New(cfg Config) *Prompter {
	in, out := cfg.In, cfg.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Prompter{cfg: cfg, in: bufio.NewReader(in), out: out}
}

func (p *Prompter) play(name string) {
	if p.cfg.Sound != nil {
		p.cfg.Sound.Play(name)
	}
}

// reader is the only goroutine that reads the input. It stops after the
// first error, and later reads see io.EOF.
func (p *Prompter) reader() {
	defer close(p.lines)
	for {
		s, err := p.in.ReadString('\n')
		if err == io.EOF && s != "" {
			// An unterminated last line is still an answer.
			p.lines <- line{s, nil}
			return
		}
		p.lines <- line{s, err}
		if err != nil {
			return
		}
	}
}

// readLine reads one line, giving up when ctx is cancelled. A line typed
// after a cancelled read is returned by the next read.
func (p *Prompter) readLine(ctx context.Context) (string, error) {
	p.start.Do(func() {
		p.lines = make(chan line, 1)
		go p.reader()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(l.s), l.err
	}
}

// WaitForKey waits for user to press Enter
func (p *Prompter) WaitForKey(msg string) {
	if p.cfg.NonInteractive {
		return
	}
	fmt.Fprint(p.out, msg)
	_, _ = p.readLine(context.Background())
}

// Confirm asks a yes/no question. Non-interactive prompters always agree.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if p.cfg.NonInteractive {
		return true, nil
	}

	fmt.Fprintf(p.out, "%s (y/n): ", question)
	response, err := p.readLine(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	response = strings.ToLower(response)
	confirmed := response == "y" || response == "yes"

	if confirmed || response == "n" || response == "no" {
		p.play("select")
	}
	return confirmed, nil
}

// Welcome prints the welcome screen.
func (p *Prompter) Welcome(version string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(p.out, "\n%s\n           WELCOME TO NOOBCRAFT INSTALLER\n%s\n", rule, rule)
	if version != "" {
		fmt.Fprintf(p.out, "Installer version %s\n", version)
	}
	fmt.Fprintln(p.out, "\nThis installer will set up the complete Noobcraft")
	fmt.Fprintln(p.out, "modpack with optimized configurations and launcher.")
	fmt.Fprintln(p.out, "\nFeatures:")
	fmt.Fprintln(p.out, "  * Automatic mod installation and management")
	fmt.Fprintln(p.out, "  * Optimized game configurations")
	fmt.Fprintln(p.out, "  * Direct Minecraft launcher integration")
	fmt.Fprintln(p.out)
}

// Completed prints the completion screen.
func (p *Prompter) Completed() {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(p.out, "\n%s\n           INSTALLATION COMPLETED!\n%s\n", rule, rule)
	fmt.Fprintln(p.out, "\nNoobcraft has been successfully installed!")
	fmt.Fprintln(p.out, "\nNext steps:")
	fmt.Fprintln(p.out, "  * Open the Minecraft launcher and pick the Noobcraft profile")
	fmt.Fprintln(p.out, "  * Join our community for support and updates")
	fmt.Fprintln(p.out, "\nHappy crafting!")
}

// SelectFolder asks for the Minecraft directory. It shows the native folder
// dialog where one exists and otherwise reads a typed path, where an empty
// answer keeps defaultPath.
func (p *Prompter) SelectFolder(ctx context.Context, defaultPath string) (string, error) {
	if p.cfg.NonInteractive {
		return defaultPath, nil
	}

	ok, err := p.Confirm(ctx, fmt.Sprintf("Install into %s?", defaultPath))
	if err != nil {
		return "", err
	}
	if ok {
		return defaultPath, nil
	}

	var owner uintptr
	if p.cfg.Window != nil {
		owner = p.cfg.Window()
	}
	path, err := browseForFolder(owner, "Select your Minecraft folder")
	switch {
	case err == nil:
		p.play("select")
		return path, nil
	case errors.Is(err, ErrNoFolder):
		return "", err
	}

	fmt.Fprintf(p.out, "Minecraft folder [%s]: ", defaultPath)
	typed, err := p.readLine(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read folder: %w", err)
	}
	if typed == "" {
		return defaultPath, nil
	}
	return typed, nil
}
