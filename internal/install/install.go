// Package install sequences a modpack installation.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/distantorigin/noobcraft-installer/internal/download"
	"github.com/distantorigin/noobcraft-installer/internal/filesync"
	"github.com/distantorigin/noobcraft-installer/internal/logging"
)

var (
	// ErrCancelled is returned when the user declines or the run is abandoned.
	ErrCancelled = errors.New("installation cancelled")

	// ErrRequirements wraps a failed requirements check.
	ErrRequirements = errors.New("system requirements not met")

	// ErrIncomplete is returned when a step finished with per-item failures.
	ErrIncomplete = errors.New("step completed with failures")
)

// State is a position in the installation sequence.
type State int

const (
	Init State = iota
	CheckRequirements
	SyncMods
	SyncConfigs
	PatchLauncher
	Verify
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case CheckRequirements:
		return "CheckRequirements"
	case SyncMods:
		return "SyncMods"
	case SyncConfigs:
		return "SyncConfigs"
	case PatchLauncher:
		return "PatchLauncher"
	case Verify:
		return "Verify"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ProgressSink receives coarse progress.
type ProgressSink interface {
	Progress(percent int, message string)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(percent int, message string)

func (f ProgressFunc) Progress(percent int, message string) { f(percent, message) }

// EventKind says what happened to a step.
type EventKind int

const (
	StepStarted EventKind = iota
	StepSucceeded
	StepFailed
)

// Event reports a step transition.
type Event struct {
	State State
	Kind  EventKind
	Err   error
}

// EventSink receives step transitions.
type EventSink interface {
	Event(Event)
}

// EventFunc adapts a function to EventSink.
type EventFunc func(Event)

func (f EventFunc) Event(e Event) { f(e) }

// Confirmer asks the user before anything is written.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Requirements checks the machine.
type Requirements interface {
	Check(ctx context.Context) error
}

// ModProvider installs and verifies the mods directory.
type ModProvider interface {
	SyncMods(ctx context.Context, report *Report) error
	VerifyMods(ctx context.Context) error
}

// ConfigProvider installs and verifies the config directory.
type ConfigProvider interface {
	SyncConfigs(ctx context.Context, report *Report) error
	VerifyConfigs(ctx context.Context) error
}

// LauncherPatcher adds the modpack profile to the launcher.
type LauncherPatcher interface {
	PatchLauncher(ctx context.Context) error
	VerifyLauncher(ctx context.Context) error
}

// Planner previews a sync step without writing.
type Planner interface {
	Plan(ctx context.Context) (*filesync.Plan, error)
}

// PlanFunc adapts a function to Planner.
type PlanFunc func(ctx context.Context) (*filesync.Plan, error)

func (f PlanFunc) Plan(ctx context.Context) (*filesync.Plan, error) { return f(ctx) }

// Report summarises a run.
type Report struct {
	State          State
	FailedStep     State
	Err            error
	Mods           filesync.Result
	Configs        filesync.Result
	Downloads      *download.Batch
	ModpackVersion string
	Elapsed        time.Duration
}

// OK reports whether the run reached Done.
func (r *Report) OK() bool {
	return r.State == Done
}

// Installer runs the steps in order. Nil providers skip their step.
type Installer struct {
	Requirements Requirements
	Confirmer    Confirmer
	Mods         ModProvider
	Configs      ConfigProvider
	Launcher     LauncherPatcher

	Progress ProgressSink
	Events   EventSink
	Logger   *slog.Logger

	// Question is asked through Confirmer after requirements pass.
	Question string
}

type step struct {
	state   State
	percent int
	message string
	run     func(ctx context.Context, report *Report) error
}

// Run executes the sequence. Any failing step moves the run to Failed and
// the remaining steps are skipped. Finished steps are not undone.
func (in *Installer) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{State: Init}

	in.progress(0, "Starting installation...")
	in.logger().Info("Starting installation")

	for _, s := range in.steps() {
		if err := ctx.Err(); err != nil {
			return in.fail(report, s.state, fmt.Errorf("%w: %w", ErrCancelled, err), start)
		}

		report.State = s.state
		in.progress(s.percent, s.message)
		in.event(Event{State: s.state, Kind: StepStarted})
		in.logger().Info(s.message, "step", s.state.String())

		err := s.run(ctx, report)
		if err == nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		if err != nil {
			return in.fail(report, s.state, err, start)
		}
		in.event(Event{State: s.state, Kind: StepSucceeded})
	}

	report.State = Done
	report.Elapsed = time.Since(start)
	in.progress(100, "Installation completed successfully!")
	logging.Success(ctx, in.logger(), "Installation completed", "elapsed", report.Elapsed.Round(time.Millisecond))
	in.event(Event{State: Done, Kind: StepSucceeded})
	return report, nil
}

func (in *Installer) steps() []step {
	return []step{
		{CheckRequirements, 10, "Checking system requirements...", in.checkRequirements},
		{SyncMods, 30, "Installing mods...", in.syncMods},
		{SyncConfigs, 60, "Setting up configurations...", in.syncConfigs},
		{PatchLauncher, 80, "Setting up launcher integration...", in.patchLauncher},
		{Verify, 90, "Verifying installation...", in.verify},
	}
}

func (in *Installer) fail(report *Report, at State, err error, start time.Time) (*Report, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
	}
	report.State = Failed
	report.FailedStep = at
	report.Err = err
	report.Elapsed = time.Since(start)

	in.logger().Error("Installation failed", "step", at.String(), "error", err)
	in.event(Event{State: at, Kind: StepFailed, Err: err})
	return report, fmt.Errorf("%s: %w", at, err)
}

func (in *Installer) checkRequirements(ctx context.Context, _ *Report) error {
	if in.Requirements != nil {
		if err := in.Requirements.Check(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: %w", ErrRequirements, err)
		}
	}
	in.progress(20, "Preparing installation...")
	return in.confirm(ctx)
}

func (in *Installer) confirm(ctx context.Context) error {
	if in.Confirmer == nil {
		return nil
	}
	question := in.Question
	if question == "" {
		question = "Do you want to continue with the installation?"
	}
	ok, err := in.Confirmer.Confirm(ctx, question)
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w by user", ErrCancelled)
	}
	return nil
}

func (in *Installer) syncMods(ctx context.Context, report *Report) error {
	if in.Mods == nil {
		return nil
	}
	return in.Mods.SyncMods(ctx, report)
}

func (in *Installer) syncConfigs(ctx context.Context, report *Report) error {
	if in.Configs == nil {
		return nil
	}
	return in.Configs.SyncConfigs(ctx, report)
}

func (in *Installer) patchLauncher(ctx context.Context, _ *Report) error {
	if in.Launcher == nil {
		return nil
	}
	return in.Launcher.PatchLauncher(ctx)
}

func (in *Installer) verify(ctx context.Context, _ *Report) error {
	var errs []error
	if in.Mods != nil {
		if err := in.Mods.VerifyMods(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mods: %w", err))
		}
	}
	if in.Configs != nil {
		if err := in.Configs.VerifyConfigs(ctx); err != nil {
			errs = append(errs, fmt.Errorf("configs: %w", err))
		}
	}
	if in.Launcher != nil {
		if err := in.Launcher.VerifyLauncher(ctx); err != nil {
			errs = append(errs, fmt.Errorf("launcher: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Verify runs only the verification step.
func (in *Installer) Verify(ctx context.Context) error {
	return in.verify(ctx, nil)
}

func (in *Installer) progress(percent int, message string) {
	if in.Progress != nil {
		in.Progress.Progress(percent, message)
	}
}

func (in *Installer) event(e Event) {
	if in.Events != nil {
		in.Events.Event(e)
	}
}

func (in *Installer) logger() *slog.Logger {
	if in.Logger == nil {
		return logging.Discard()
	}
	return in.Logger
}
