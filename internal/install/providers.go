package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/distantorigin/noobcraft-installer/internal/assets"
	"github.com/distantorigin/noobcraft-installer/internal/download"
	"github.com/distantorigin/noobcraft-installer/internal/filesync"
	"github.com/distantorigin/noobcraft-installer/internal/launcher"
	"github.com/distantorigin/noobcraft-installer/internal/manifest"
	"github.com/distantorigin/noobcraft-installer/internal/paths"
)

// AssetList loads the mod list from an asset store once per run.
type AssetList struct {
	Store *assets.Store

	once sync.Once
	list *manifest.ModList
	err  error
}

// ModList returns the parsed mod list.
func (a *AssetList) ModList(ctx context.Context) (*manifest.ModList, error) {
	a.once.Do(func() {
		a.list, a.err = a.Store.ReadModList(ctx)
	})
	return a.list, a.err
}

// LocalMods syncs the mods directory from an asset store.
type LocalMods struct {
	Assets *AssetList
	Syncer *filesync.Syncer
	Dir    string
}

func (m *LocalMods) target() filesync.Target {
	return filesync.Target{Dir: m.Dir, Prune: true}
}

func (m *LocalMods) SyncMods(ctx context.Context, report *Report) error {
	list, err := m.Assets.ModList(ctx)
	if err != nil {
		return err
	}
	res, err := m.Syncer.Reconcile(ctx, m.target(), list.Mods, m.Assets.Store.Mods())
	report.Mods = res
	if err != nil {
		return fmt.Errorf("failed to sync mods: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("%w: %d mods: %w", ErrIncomplete, len(res.Failed), res.Err())
	}
	return nil
}

// Plan lists the changes SyncMods would make.
func (m *LocalMods) Plan(ctx context.Context) (*filesync.Plan, error) {
	list, err := m.Assets.ModList(ctx)
	if err != nil {
		return nil, err
	}
	return m.Syncer.Plan(ctx, m.target(), list.Mods, m.Assets.Store.Mods())
}

func (m *LocalMods) VerifyMods(ctx context.Context) error {
	list, err := m.Assets.ModList(ctx)
	if err != nil {
		return err
	}
	ok, err := m.Syncer.Matches(ctx, m.target(), list.Mods, m.Assets.Store.Mods())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("mods directory does not match the mod list")
	}
	return nil
}

// AssetConfigs syncs the config directory and the game files in the
// Minecraft root from an asset store.
type AssetConfigs struct {
	Assets *AssetList
	Syncer *filesync.Syncer
	Dir    string
	// Root is the Minecraft root that receives game files such as
	// options.txt. Game files are skipped when it is empty.
	Root string
	// Prune deletes config files the mod list does not name. Game files are
	// never pruned.
	Prune bool
}

func (c *AssetConfigs) plan(ctx context.Context) (filesync.Target, []string, filesync.Source, error) {
	list, err := c.Assets.ModList(ctx)
	if err != nil {
		return filesync.Target{}, nil, nil, err
	}
	targets := list.ConfigTargets()
	desired := make([]string, 0, len(targets))
	for rel := range targets {
		desired = append(desired, rel)
	}
	sort.Strings(desired)
	target := filesync.Target{Dir: c.Dir, Recursive: true, Prune: c.Prune}
	return target, desired, c.Assets.Store.Configs(targets), nil
}

func (c *AssetConfigs) gamePlan(ctx context.Context) (filesync.Target, []string, error) {
	list, err := c.Assets.ModList(ctx)
	if err != nil {
		return filesync.Target{}, nil, err
	}
	if c.Root == "" {
		return filesync.Target{}, nil, nil
	}
	return filesync.Target{Dir: c.Root}, list.Game, nil
}

func (c *AssetConfigs) SyncConfigs(ctx context.Context, report *Report) error {
	target, desired, src, err := c.plan(ctx)
	if err != nil {
		return err
	}
	res, err := c.Syncer.Reconcile(ctx, target, desired, src)
	report.Configs = res
	if err != nil {
		return fmt.Errorf("failed to sync configs: %w", err)
	}

	game, names, err := c.gamePlan(ctx)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		gameRes, err := c.Syncer.Reconcile(ctx, game, names, c.Assets.Store.Game())
		report.Configs.Merge(gameRes)
		if err != nil {
			return fmt.Errorf("failed to sync game files: %w", err)
		}
	}

	if !report.Configs.OK() {
		return fmt.Errorf("%w: %d configs: %w", ErrIncomplete, len(report.Configs.Failed), report.Configs.Err())
	}
	return nil
}

// Plan lists the changes SyncConfigs would make to the config directory.
func (c *AssetConfigs) Plan(ctx context.Context) (*filesync.Plan, error) {
	target, desired, src, err := c.plan(ctx)
	if err != nil {
		return nil, err
	}
	return c.Syncer.Plan(ctx, target, desired, src)
}

// GamePlan lists the changes SyncConfigs would make to the game files.
func (c *AssetConfigs) GamePlan(ctx context.Context) (*filesync.Plan, error) {
	game, names, err := c.gamePlan(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return &filesync.Plan{}, nil
	}
	return c.Syncer.Plan(ctx, game, names, c.Assets.Store.Game())
}

func (c *AssetConfigs) VerifyConfigs(ctx context.Context) error {
	target, desired, src, err := c.plan(ctx)
	if err != nil {
		return err
	}
	ok, err := c.Syncer.Matches(ctx, target, desired, src)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("config directory does not match the mod list")
	}

	game, names, err := c.gamePlan(ctx)
	if err != nil || len(names) == 0 {
		return err
	}
	ok, err = c.Syncer.Matches(ctx, game, names, c.Assets.Store.Game())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("game files do not match the mod list")
	}
	return nil
}

// RemoteMods syncs the mods directory from the download server.
type RemoteMods struct {
	Client          *download.Client
	Syncer          *filesync.Syncer
	Dir             string
	IncludeOptional bool
	// OnItem receives download progress.
	OnItem download.ProgressFunc
	Logger *slog.Logger

	remote *manifest.Remote
}

func (m *RemoteMods) fetch(ctx context.Context) (*manifest.Remote, error) {
	if m.remote != nil {
		return m.remote, nil
	}
	remote, err := m.Client.FetchManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mod list: %w", err)
	}
	m.remote = remote
	return remote, nil
}

func (m *RemoteMods) SyncMods(ctx context.Context, report *Report) error {
	remote, err := m.fetch(ctx)
	if err != nil {
		return err
	}
	report.ModpackVersion = remote.Version
	for _, dep := range remote.MissingDependencies(m.IncludeOptional) {
		m.Logger.Warn("Dependency not provided by the mod list", "dependency", dep)
	}

	descs := remote.Descriptors(m.IncludeOptional)
	keep := remote.ModList(m.IncludeOptional).Mods

	res, err := m.Syncer.Prune(ctx, filesync.Target{Dir: m.Dir, Prune: true}, keep)
	if err != nil {
		report.Mods = res
		return fmt.Errorf("failed to clean mods directory: %w", err)
	}

	var todo []manifest.Descriptor
	for _, d := range descs {
		dest, err := download.Destination(m.Dir, d)
		if err != nil {
			res.Failed = append(res.Failed, filesync.Failure{Path: d.FileName, Op: filesync.OpSource, Err: err})
			continue
		}
		current, miscased := state(dest, d)
		if miscased != "" {
			if err := os.Remove(miscased); err != nil {
				m.Logger.Warn("Failed to remove mis-cased mod", "file", miscased, "error", err)
			}
		}
		if current {
			res.Skipped = append(res.Skipped, d.FileName)
			continue
		}
		todo = append(todo, d)
	}

	if len(todo) > 0 {
		m.Logger.Info("Downloading mods", "count", len(todo), "workers", m.Client.Workers())
		batch := m.Client.FetchAll(ctx, todo, m.Dir, m.OnItem)
		report.Downloads = &batch
		for _, r := range batch.Results {
			if r.OK() {
				res.Installed = append(res.Installed, filepath.Base(r.Path))
				continue
			}
			res.Failed = append(res.Failed, filesync.Failure{Path: r.Name, Op: filesync.OpSource, Err: r.Err})
		}
	}

	report.Mods = res
	if err := ctx.Err(); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%w: %d mods: %w", ErrIncomplete, len(res.Failed), res.Err())
	}
	return nil
}

// state reports whether dest already holds d. miscased is set when the file
// on disk differs from the listed name only in case; it is never current.
func state(dest string, d manifest.Descriptor) (current bool, miscased string) {
	actual, _ := paths.FindActual(dest)
	info, err := os.Stat(actual)
	if err != nil {
		return false, ""
	}
	if filepath.Base(actual) != filepath.Base(dest) {
		return false, actual
	}
	return matches(dest, info.Size(), d), ""
}

// Plan lists the deletions and downloads SyncMods would make.
func (m *RemoteMods) Plan(ctx context.Context) (*filesync.Plan, error) {
	remote, err := m.fetch(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := m.Syncer.PrunePlan(filesync.Target{Dir: m.Dir, Prune: true}, remote.ModList(m.IncludeOptional).Mods)
	if err != nil {
		return nil, err
	}
	for _, d := range remote.Descriptors(m.IncludeOptional) {
		dest, err := download.Destination(m.Dir, d)
		if err != nil {
			plan.Failed = append(plan.Failed, filesync.Failure{Path: d.FileName, Op: filesync.OpSource, Err: err})
			continue
		}
		current, miscased := state(dest, d)
		switch {
		case current:
			plan.Current = append(plan.Current, d.FileName)
		case miscased != "" || fileExists(dest):
			plan.Install = append(plan.Install, filesync.Install{Name: d.FileName, Path: dest, Reason: filesync.Changed})
		default:
			plan.Install = append(plan.Install, filesync.Install{Name: d.FileName, Path: dest, Reason: filesync.Missing})
		}
	}
	return plan, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (m *RemoteMods) VerifyMods(ctx context.Context) error {
	remote, err := m.fetch(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range remote.Descriptors(m.IncludeOptional) {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest, err := download.Destination(m.Dir, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := os.Stat(dest)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: missing", d.FileName))
			continue
		}
		if !matches(dest, info.Size(), d) {
			errs = append(errs, fmt.Errorf("%s: content does not match", d.FileName))
		}
	}
	return errors.Join(errs...)
}

// matches checks the checksum when one is listed, otherwise the size.
func matches(path string, size int64, d manifest.Descriptor) bool {
	if d.Checksum != "" {
		ok, err := download.VerifyFile(path, d.Checksum)
		return err == nil && ok
	}
	if want := d.Size(); want > 0 {
		return size == want
	}
	return size > 0
}

// Launcher writes the modpack profile into launcher_profiles.json.
type Launcher struct {
	Path    string
	ID      string
	Profile launcher.Profile
	// Running reports whether the launcher is open. It may rewrite the
	// profiles file on exit.
	Running func(ctx context.Context) bool
	Logger  *slog.Logger
}

func (l *Launcher) PatchLauncher(ctx context.Context) error {
	if l.Running != nil && l.Running(ctx) {
		l.Logger.Warn("The Minecraft launcher is running; restart it to see the new profile")
	}
	p := &launcher.Patcher{ID: l.ID, Profile: l.Profile}
	if err := p.Patch(l.Path); err != nil {
		return fmt.Errorf("failed to update launcher profiles: %w", err)
	}
	l.Logger.Info("Launcher profile updated", "profile", l.ID, "file", l.Path)
	return nil
}

func (l *Launcher) VerifyLauncher(ctx context.Context) error {
	return launcher.Verify(l.Path, l.ID)
}

// IsInstalled reports whether root already holds an installation: a
// non-empty mods directory and the modpack profile.
func IsInstalled(root, profileID string) bool {
	entries, err := os.ReadDir(paths.ModsDir(root))
	if err != nil || len(entries) == 0 {
		return false
	}
	return launcher.Verify(paths.LauncherProfiles(root), profileID) == nil
}
