package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrJavaNotFound is returned when no java executable can be run.
	ErrJavaNotFound = errors.New("java not found")
	// ErrLauncherNotFound is returned when the Minecraft launcher is not installed.
	ErrLauncherNotFound = errors.New("minecraft launcher not found")
)

// LauncherImage is the process name of the Minecraft launcher on Windows.
const LauncherImage = "MinecraftLauncher.exe"

// Runner runs a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exec is the Runner backed by os/exec.
func Exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

var javaVersionRe = regexp.MustCompile(`version "([^"]+)"`)

// JavaVersion runs `java -version` and returns the major version.
// java may be empty, in which case it is looked up on PATH.
func JavaVersion(ctx context.Context, run Runner, java string) (int, error) {
	if java == "" {
		java = "java"
	}
	if run == nil {
		run = Exec
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := run(ctx, java, "-version")
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return 0, fmt.Errorf("%w: %v", ErrJavaNotFound, err)
		}
		if len(out) == 0 {
			return 0, fmt.Errorf("failed to run %s -version: %w", java, err)
		}
	}
	return ParseJavaMajor(string(out))
}

// ParseJavaMajor extracts the major version from `java -version` output.
// Legacy "1.x" versions report x.
func ParseJavaMajor(output string) (int, error) {
	m := javaVersionRe.FindStringSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("no version in java output: %q", strings.TrimSpace(firstLine(output)))
	}
	version := m[1]
	parts := strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return 0, fmt.Errorf("invalid java version %q", version)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid java version %q: %w", version, err)
	}
	if major == 1 && len(parts) > 1 {
		if major, err = strconv.Atoi(parts[1]); err != nil {
			return 0, fmt.Errorf("invalid java version %q: %w", version, err)
		}
	}
	return major, nil
}

// IsRunning reports whether a process with the given image name is running.
func IsRunning(ctx context.Context, run Runner, image string) bool {
	if run == nil {
		run = Exec
	}
	if runtime.GOOS == "windows" {
		out, err := run(ctx, "tasklist", "/FI", "IMAGENAME eq "+image, "/FO", "CSV", "/NH")
		if err != nil {
			return false
		}
		return bytes.Contains(bytes.ToLower(out), []byte(strings.ToLower(image)))
	}

	name := strings.TrimSuffix(image, ".exe")
	out, err := run(ctx, "pgrep", "-if", name)
	return err == nil && len(bytes.TrimSpace(out)) > 0
}

// WaitForTermination polls until the process is gone.
// Returns false if the timeout or ctx expires first.
func WaitForTermination(ctx context.Context, run Runner, image string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !IsRunning(ctx, run, image) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// LauncherCandidates lists the install locations of the Minecraft launcher.
// getenv resolves the Windows folder variables.
func LauncherCandidates(goos string, getenv func(string) string) []string {
	switch goos {
	case "windows":
		var out []string
		for _, v := range []string{"ProgramFiles", "ProgramFiles(x86)"} {
			if dir := getenv(v); dir != "" {
				out = append(out, filepath.Join(dir, "Minecraft Launcher", LauncherImage))
			}
		}
		if dir := getenv("LOCALAPPDATA"); dir != "" {
			out = append(out, filepath.Join(dir, "Microsoft", "WindowsApps", "Microsoft.MinecraftLauncher_8wekyb3d8bbwe", "Minecraft.exe"))
		}
		return out
	case "darwin":
		return []string{"/Applications/Minecraft.app/Contents/MacOS/launcher"}
	default:
		return []string{"minecraft-launcher"}
	}
}

// FindLauncher returns the first launcher candidate that exists. Bare names
// are looked up on PATH.
func FindLauncher(goos string, getenv func(string) string) (string, error) {
	for _, c := range LauncherCandidates(goos, getenv) {
		if !filepath.IsAbs(c) {
			if p, err := exec.LookPath(c); err == nil {
				return p, nil
			}
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", ErrLauncherNotFound
}

// Start runs name in the background and does not wait for it.
func Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return cmd.Process.Release()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
