package changelog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/distantorigin/noobcraft-installer/internal/filesync"
	"github.com/distantorigin/noobcraft-installer/internal/install"
	"github.com/distantorigin/noobcraft-installer/internal/logging"
)

// BuildConfig holds configuration for building a summary
type BuildConfig struct {
	Source       string
	MinecraftDir string
	// Log is the run's log history. Warnings and errors are listed.
	Log []logging.Entry
	Now func() time.Time
}

// Build creates the completion summary shown after a run
func Build(report *install.Report, cfg BuildConfig) string {
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	var b strings.Builder
	mods, configs := report.Mods, report.Configs
	updated := len(mods.Installed) + len(configs.Installed)
	deleted := len(mods.Deleted) + len(configs.Deleted)
	failed := len(mods.Failed) + len(configs.Failed)

	b.WriteString("Noobcraft Installation Summary\n\n")
	if report.OK() {
		b.WriteString("Status: SUCCESS\n")
	} else {
		fmt.Fprintf(&b, "Status: FAILED during %s\n", report.FailedStep)
		if report.Err != nil {
			fmt.Fprintf(&b, "Reason: %v\n", report.Err)
		}
	}
	if report.ModpackVersion != "" {
		fmt.Fprintf(&b, "Modpack version: %s\n", report.ModpackVersion)
	}
	if cfg.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", cfg.Source)
	}
	if cfg.MinecraftDir != "" {
		fmt.Fprintf(&b, "Minecraft directory: %s\n", cfg.MinecraftDir)
	}
	fmt.Fprintf(&b, "Completed: %s (took %s)\n", now().Format("2006-01-02 15:04:05"), report.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Total changes: %d files (%d updated, %d deleted, %d unchanged, %d failed)\n",
		updated+deleted, updated, deleted, len(mods.Skipped)+len(configs.Skipped), failed)
	if report.Downloads != nil {
		var bytes int64
		for _, r := range report.Downloads.Results {
			bytes += r.Bytes
		}
		fmt.Fprintf(&b, "Downloads: %d of %d succeeded (%d bytes)\n", report.Downloads.Succeeded, len(report.Downloads.Results), bytes)
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\nDetailed file changes:\n")
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\n\n")

	section(&b, "Mods", mods)
	section(&b, "Configs", configs)

	var notes []logging.Entry
	for _, e := range cfg.Log {
		if e.Level >= slog.LevelWarn {
			notes = append(notes, e)
		}
	}
	if len(notes) > 0 {
		b.WriteString(strings.Repeat("=", 60))
		fmt.Fprintf(&b, "\nWarnings and errors (%d):\n", len(notes))
		b.WriteString(strings.Repeat("=", 60))
		b.WriteString("\n")
		for _, e := range notes {
			b.WriteString(e.String())
			b.WriteString("\n")
		}
	}

	return b.String()
}

func section(b *strings.Builder, title string, res filesync.Result) {
	if len(res.Installed)+len(res.Deleted)+len(res.Failed) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	if len(res.Installed) > 0 {
		fmt.Fprintf(b, "Updated/Added (%d files):\n", len(res.Installed))
		for _, name := range res.Installed {
			fmt.Fprintf(b, "  + %s\n", name)
		}
	}
	if len(res.Deleted) > 0 {
		fmt.Fprintf(b, "Deleted (%d files):\n", len(res.Deleted))
		for _, p := range res.Deleted {
			fmt.Fprintf(b, "  - %s\n", filepath.Base(p))
		}
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(b, "Failed (%d files):\n", len(res.Failed))
		for _, f := range res.Failed {
			fmt.Fprintf(b, "  ! %v\n", f)
		}
	}
	b.WriteString("\n")
}
