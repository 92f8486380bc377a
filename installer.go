package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/distantorigin/noobcraft-installer/internal/assets"
	"github.com/distantorigin/noobcraft-installer/internal/audio"
	"github.com/distantorigin/noobcraft-installer/internal/changelog"
	"github.com/distantorigin/noobcraft-installer/internal/config"
	"github.com/distantorigin/noobcraft-installer/internal/console"
	"github.com/distantorigin/noobcraft-installer/internal/download"
	"github.com/distantorigin/noobcraft-installer/internal/filesync"
	"github.com/distantorigin/noobcraft-installer/internal/install"
	"github.com/distantorigin/noobcraft-installer/internal/launcher"
	"github.com/distantorigin/noobcraft-installer/internal/logging"
	"github.com/distantorigin/noobcraft-installer/internal/paths"
	"github.com/distantorigin/noobcraft-installer/internal/process"
	"github.com/distantorigin/noobcraft-installer/internal/prompt"
	"github.com/distantorigin/noobcraft-installer/internal/syscheck"
	"github.com/distantorigin/noobcraft-installer/internal/ui"
	"github.com/distantorigin/noobcraft-installer/internal/version"
)

const (
	modeConsole     = "console"
	modeInteractive = "interactive"

	launcherWait = 15 * time.Second
)

type options struct {
	configFile      string
	minecraftDir    string
	assets          string
	source          string
	mode            string
	console         bool
	dev             bool
	quiet           bool
	includeOptional bool
	workers         int
	logLevel        string
	logFormat       string
}

func main() {
	// Report panics without a stack trace full of local paths.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\nOops, something broke: %v\n", r)
			fmt.Fprintln(os.Stderr, "Let the developers know what happened.")
			os.Exit(1)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "noobcraft-installer",
		Short: "Install and update the Noobcraft modpack",
		Long: `noobcraft-installer brings a Minecraft installation in line with the
Noobcraft modpack: it checks the machine, installs the listed mods and
configuration files, removes mods that are no longer part of the pack, and
adds a Noobcraft profile to the Minecraft launcher.

Running it again updates an existing installation.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, o)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&o.configFile, "config", "", "config file (YAML)")
	f.StringVar(&o.minecraftDir, "minecraft-dir", "", "Minecraft directory (default is the platform location)")
	f.StringVar(&o.assets, "assets", "", "asset store: directory or blob URL (file://, s3://, gs://)")
	f.StringVar(&o.source, "source", "", "where mods come from (local, remote)")
	f.IntVar(&o.workers, "workers", 0, "parallel downloads (default 3)")
	f.BoolVar(&o.includeOptional, "include-optional", false, "also install optional mods from the server")
	f.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&o.logFormat, "log-format", "", "log format (text, json)")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "hide progress output and sounds")

	root.Flags().StringVar(&o.mode, "mode", modeInteractive, "user interface (console, interactive)")
	root.Flags().BoolVarP(&o.console, "console", "c", false, "same as --mode console")
	root.Flags().BoolVarP(&o.dev, "dev", "d", false, "developer mode: skip the welcome screen and confirmation")

	root.AddCommand(newCheckCmd(o), newVerifyCmd(o), newVersionCmd())
	return root
}

func (o *options) resolveMode() (string, error) {
	if o.console {
		return modeConsole, nil
	}
	switch strings.ToLower(o.mode) {
	case modeConsole:
		return modeConsole, nil
	case modeInteractive, "gui":
		return modeInteractive, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %s or %s)", o.mode, modeConsole, modeInteractive)
	}
}

// loadConfig layers the config file, NOOBCRAFT_* variables and flags over
// the defaults.
func loadConfig(o *options) (config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	cfg = cfg.Merge(config.Config{
		MinecraftDir: o.minecraftDir,
		Source:       o.source,
		Assets:       config.AssetsConfig{URL: o.assets},
		Server:       config.ServerConfig{IncludeOptional: o.includeOptional},
		Download:     config.DownloadConfig{Workers: o.workers},
		Log:          config.LogConfig{Level: o.logLevel, Format: o.logFormat},
	})

	if cfg.MinecraftDir == "" {
		dir, err := paths.DefaultMinecraftDir(runtime.GOOS)
		if err != nil {
			return config.Config{}, err
		}
		cfg.MinecraftDir = dir
	}
	return cfg, cfg.Validate()
}

// view shows installer progress.
type view interface {
	install.ProgressSink
	Items(completed, total int, name string)
	Close()
}

func newView(mode string, quiet bool, w io.Writer) view {
	switch {
	case quiet:
		return ui.Discard{}
	case mode == modeInteractive:
		return ui.NewBar(w)
	default:
		return ui.NewLines(w)
	}
}

func logWriter(v view, w io.Writer) io.Writer {
	if bar, ok := v.(*ui.Bar); ok {
		return bar.WrapWriter(w)
	}
	return w
}

type planStep struct {
	name    string
	dir     string
	planner install.Planner
}

// pipeline is the installer wired for one configuration.
type pipeline struct {
	installer *install.Installer
	plans     []planStep
	closers   []io.Closer
}

func (p *pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func buildPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger, onItem download.ProgressFunc) (*pipeline, error) {
	root := cfg.MinecraftDir
	modsDir, configDir := paths.ModsDir(root), paths.ConfigDir(root)
	syncer := filesync.New(logger)
	httpClient := &http.Client{Timeout: cfg.Server.Timeout}
	p := &pipeline{}

	checks := syscheck.Defaults(root, cfg.Requirements.MinFreeBytes)
	if cfg.Requirements.CheckJava {
		checks = append(checks, syscheck.Java(process.Exec, cfg.Requirements.MinJavaMajor, true))
	}

	// The asset store is required for local installs. Remote installs use
	// it for configs when it is present.
	var list *install.AssetList
	if cfg.Source == config.SourceLocal || assetsAvailable(cfg.Assets.URL) {
		store, err := assets.Open(ctx, cfg.Assets.URL, assets.Layout{
			Manifest:      cfg.Assets.Manifest,
			ModsPrefix:    cfg.Assets.ModsPrefix,
			ConfigsPrefix: cfg.Assets.ConfigsPrefix,
			GamePrefix:    cfg.Assets.GamePrefix,
		})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, store)
		list = &install.AssetList{Store: store}
	}

	var mods interface {
		install.ModProvider
		install.Planner
	}
	switch cfg.Source {
	case config.SourceRemote:
		client := download.NewClient(cfg.DownloadConfig(), httpClient, logger)
		client.OnBytes = func(name string, complete, total int64) {
			if total > 0 && complete == total {
				logger.Debug("Transfer finished", "mod", name, "bytes", complete)
			}
		}
		if cfg.Requirements.CheckInternet {
			checks = append(checks, syscheck.Internet(httpClient, client.ManifestURLs()[0]))
		}
		mods = &install.RemoteMods{
			Client:          client,
			Syncer:          syncer,
			Dir:             modsDir,
			IncludeOptional: cfg.Server.IncludeOptional,
			OnItem:          onItem,
			Logger:          logger,
		}
	default:
		mods = &install.LocalMods{Assets: list, Syncer: syncer, Dir: modsDir}
	}
	p.plans = append(p.plans, planStep{"Mods", modsDir, mods})

	in := &install.Installer{
		Requirements: &syscheck.Checker{Checks: checks, Logger: logger},
		Mods:         mods,
		Launcher:     newLauncher(cfg, logger),
		Logger:       logger,
		Question:     "Do you want to continue?",
	}
	if list != nil {
		configs := &install.AssetConfigs{Assets: list, Syncer: syncer, Dir: configDir, Root: root, Prune: cfg.Sync.PruneConfigs}
		in.Configs = configs
		p.plans = append(p.plans,
			planStep{"Configs", configDir, configs},
			planStep{"Game files", root, install.PlanFunc(configs.GamePlan)},
		)
	} else {
		logger.Info("No asset store, skipping configuration files", "assets", cfg.Assets.URL)
	}
	p.installer = in
	return p, nil
}

func newLauncher(cfg config.Config, logger *slog.Logger) *install.Launcher {
	profile := launcher.NewProfile(cfg.Launcher.ProfileName, cfg.Launcher.VersionID, cfg.MinecraftDir)
	if cfg.Launcher.JavaArgs != "" {
		profile.JavaArgs = cfg.Launcher.JavaArgs
	}
	if cfg.Launcher.Icon != "" {
		profile.Icon = cfg.Launcher.Icon
	}
	return &install.Launcher{
		Path:    paths.LauncherProfiles(cfg.MinecraftDir),
		ID:      cfg.Launcher.ProfileID,
		Profile: profile,
		Running: func(ctx context.Context) bool {
			if !process.IsRunning(ctx, process.Exec, process.LauncherImage) {
				return false
			}
			logger.Info("Waiting for the Minecraft launcher to close...")
			return !process.WaitForTermination(ctx, process.Exec, process.LauncherImage, launcherWait)
		},
		Logger: logger,
	}
}

func assetsAvailable(location string) bool {
	if location == "" {
		return false
	}
	if strings.Contains(location, "://") {
		return true
	}
	_, err := os.Stat(location)
	return err == nil
}

func runInstall(cmd *cobra.Command, o *options) error {
	mode, err := o.resolveMode()
	if err != nil {
		return err
	}
	interactive := mode == modeInteractive
	if interactive && console.Attach() {
		_ = console.SetTitle("Noobcraft Installer")
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	cfg, err := loadConfig(o)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	player := audio.New(o.quiet || !interactive, nil)
	prompter := prompt.New(prompt.Config{
		NonInteractive: o.dev,
		In:             cmd.InOrStdin(),
		Out:            out,
		Sound:          player,
		Window:         console.Window,
	})

	if !o.dev && !o.quiet {
		prompter.Welcome(version.Installer().String())
	}
	if interactive && o.minecraftDir == "" {
		dir, err := prompter.SelectFolder(ctx, cfg.MinecraftDir)
		if err != nil {
			return fmt.Errorf("failed to choose the Minecraft folder: %w", err)
		}
		cfg.MinecraftDir = dir
	}

	v := newView(mode, o.quiet, out)
	logger, history := logging.New(cfg.Log.Level, cfg.Log.Format, logWriter(v, cmd.ErrOrStderr()))
	player.Logger = logger
	logger.Debug("Configuration loaded", "minecraft_dir", cfg.MinecraftDir, "source", cfg.Source, "workers", cfg.Download.Workers)

	if install.IsInstalled(cfg.MinecraftDir, cfg.Launcher.ProfileID) {
		logger.Info("Existing installation found, it will be updated", "minecraft_dir", cfg.MinecraftDir)
	}

	p, err := buildPipeline(ctx, cfg, logger, v.Items)
	if err != nil {
		v.Close()
		return err
	}
	defer p.Close()

	in := p.installer
	in.Progress = v
	in.Events = player
	in.Confirmer = prompter

	report, runErr := in.Run(ctx)
	v.Close()

	if !o.quiet && report != nil {
		fmt.Fprintln(out)
		fmt.Fprint(out, changelog.Build(report, changelog.BuildConfig{
			Source:       cfg.Source,
			MinecraftDir: cfg.MinecraftDir,
			Log:          history.Entries(),
		}))
		if runErr == nil {
			prompter.Completed()
			if history.Worst() >= slog.LevelWarn {
				fmt.Fprintln(out, "\nSome steps reported warnings, see the summary above.")
			}
		}
	}
	if runErr == nil && interactive && !o.dev {
		offerLaunch(ctx, prompter, logger, cfg.MinecraftDir, launchMinecraft)
	}
	if interactive && console.IsAttached() {
		prompter.WaitForKey("\nPress Enter to exit...")
	}
	return runErr
}

// offerLaunch asks whether to start Minecraft and reports whether it was
// started.
func offerLaunch(ctx context.Context, c install.Confirmer, logger *slog.Logger, dir string, launch func(dir string) error) bool {
	ok, err := c.Confirm(ctx, "\nLaunch Minecraft now?")
	if err != nil || !ok {
		return false
	}
	if err := launch(dir); err != nil {
		logger.Error("Failed to launch Minecraft", "error", err)
		return false
	}
	logging.Success(ctx, logger, "Minecraft launcher started")
	return true
}

func launchMinecraft(dir string) error {
	path, err := process.FindLauncher(runtime.GOOS, os.Getenv)
	if err != nil {
		return err
	}
	return process.Start(path, "--workDir", dir)
}

func newCheckCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Show what an install would change without writing files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupSignalHandler()
			defer cancel()

			cfg, err := loadConfig(o)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, _ := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

			p, err := buildPipeline(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			for _, step := range p.plans {
				plan, err := step.planner.Plan(ctx)
				if err != nil {
					return fmt.Errorf("failed to plan %s: %w", strings.ToLower(step.name), err)
				}
				fmt.Fprintf(out, "%s (%s):\n", step.name, step.dir)
				if plan.Empty() {
					fmt.Fprintf(out, "  up to date (%d files)\n", len(plan.Current))
					continue
				}
				fmt.Fprint(out, filesync.Describe(plan))
			}
			return nil
		},
	}
}

func newVerifyCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that an existing installation matches the modpack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupSignalHandler()
			defer cancel()

			cfg, err := loadConfig(o)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, _ := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

			p, err := buildPipeline(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.installer.Verify(ctx); err != nil {
				return fmt.Errorf("installation does not match: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installation at %s is up to date\n", cfg.MinecraftDir)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "noobcraft-installer %s\n", version.Installer())
			fmt.Fprintf(cmd.OutOrStdout(), "  user agent: %s\n", version.UserAgent())
		},
	}
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
