// Package syscheck verifies that the machine can take an installation.
package syscheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/distantorigin/noobcraft-installer/internal/logging"
	"github.com/distantorigin/noobcraft-installer/internal/process"
)

var (
	// ErrUnmet wraps every failed check.
	ErrUnmet = errors.New("requirement not met")

	// ErrUnsupported is returned where free space cannot be queried.
	ErrUnsupported = errors.New("not supported on this platform")
)

const (
	// DefaultMinFreeBytes is the free space required at the install location.
	DefaultMinFreeBytes = 2 << 30
	// DefaultMinJavaMajor is the lowest Java release the modpack runs on.
	DefaultMinJavaMajor = 17

	internetTimeout = 10 * time.Second
)

// Check is a single requirement.
type Check struct {
	Name string
	// Optional checks only log a warning when they fail.
	Optional bool
	Run      func(ctx context.Context) error
}

// Checker runs a list of checks.
type Checker struct {
	Checks []Check
	Logger *slog.Logger
}

// Check runs every check, even after a failure, and returns the required
// failures joined together.
func (c *Checker) Check(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var errs []error
	for _, check := range c.Checks {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("Checking requirement", "check", check.Name)
		err := check.Run(ctx)
		switch {
		case err == nil:
			logging.Success(ctx, logger, "Requirement met", "check", check.Name)
		case check.Optional:
			logger.Warn("Requirement not met", "check", check.Name, "error", err)
		default:
			logger.Error("Requirement not met", "check", check.Name, "error", err)
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrUnmet, check.Name, err))
		}
	}
	return errors.Join(errs...)
}

// OperatingSystem passes on the platforms the launcher ships for.
func OperatingSystem(goos string) Check {
	return Check{
		Name: "Operating System",
		Run: func(context.Context) error {
			switch goos {
			case "windows", "darwin", "linux":
				return nil
			}
			return fmt.Errorf("unsupported operating system %q", goos)
		},
	}
}

// DiskSpace requires min free bytes on the volume holding dir. dir does not
// need to exist yet; its nearest existing parent is measured.
func DiskSpace(dir string, min uint64) Check {
	return diskSpace(dir, min, FreeBytes)
}

func diskSpace(dir string, min uint64, free func(string) (uint64, error)) Check {
	return Check{
		Name: "Disk Space",
		Run: func(context.Context) error {
			got, err := free(existingParent(dir))
			if errors.Is(err, ErrUnsupported) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to query free space: %w", err)
			}
			if got < min {
				return fmt.Errorf("%s free, %s required", FormatBytes(got), FormatBytes(min))
			}
			return nil
		},
	}
}

// Java requires a java executable of at least the given major version.
func Java(run process.Runner, min int, optional bool) Check {
	return Check{
		Name:     "Java Runtime",
		Optional: optional,
		Run: func(ctx context.Context) error {
			major, err := process.JavaVersion(ctx, run, "")
			if err != nil {
				return err
			}
			if major < min {
				return fmt.Errorf("java %d found, %d or newer required", major, min)
			}
			return nil
		},
	}
}

// Internet requires a successful response from url.
func Internet(client *http.Client, url string) Check {
	if client == nil {
		client = &http.Client{Timeout: internetTimeout}
	}
	return Check{
		Name: "Internet Connection",
		Run: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, internetTimeout)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to reach %s: %w", url, err)
			}
			resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("%s returned %s", url, resp.Status)
			}
			return nil
		},
	}
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func existingParent(dir string) string {
	dir = filepath.Clean(dir)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// Defaults is the standard check list.
func Defaults(minecraftDir string, minFree uint64) []Check {
	return []Check{
		OperatingSystem(runtime.GOOS),
		DiskSpace(minecraftDir, minFree),
	}
}
