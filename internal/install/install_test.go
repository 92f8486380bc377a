package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distantorigin/noobcraft-installer/internal/assets"
	"github.com/distantorigin/noobcraft-installer/internal/download"
	"github.com/distantorigin/noobcraft-installer/internal/filesync"
	"github.com/distantorigin/noobcraft-installer/internal/launcher"
	"github.com/distantorigin/noobcraft-installer/internal/logging"
	"github.com/distantorigin/noobcraft-installer/internal/manifest"
	"github.com/distantorigin/noobcraft-installer/internal/paths"
	testhelpers "github.com/distantorigin/noobcraft-installer/testing"
)

// recorder collects progress and events.
type recorder struct {
	percents []int
	messages []string
	events   []Event
}

func (r *recorder) Progress(percent int, message string) {
	r.percents = append(r.percents, percent)
	r.messages = append(r.messages, message)
}

func (r *recorder) Event(e Event) { r.events = append(r.events, e) }

type fakeStep struct {
	calls     []string
	syncErr   error
	verifyErr error
	onSync    func()
}

func (f *fakeStep) SyncMods(ctx context.Context, report *Report) error {
	f.calls = append(f.calls, "sync")
	if f.onSync != nil {
		f.onSync()
	}
	report.ModpackVersion = "2.1.0"
	return f.syncErr
}

func (f *fakeStep) VerifyMods(ctx context.Context) error {
	f.calls = append(f.calls, "verify")
	return f.verifyErr
}

func (f *fakeStep) SyncConfigs(ctx context.Context, report *Report) error {
	f.calls = append(f.calls, "sync")
	if f.onSync != nil {
		f.onSync()
	}
	return f.syncErr
}

func (f *fakeStep) VerifyConfigs(ctx context.Context) error {
	f.calls = append(f.calls, "verify")
	return f.verifyErr
}

func (f *fakeStep) PatchLauncher(ctx context.Context) error {
	f.calls = append(f.calls, "sync")
	return f.syncErr
}

func (f *fakeStep) VerifyLauncher(ctx context.Context) error {
	f.calls = append(f.calls, "verify")
	return f.verifyErr
}

type requirementsFunc func(ctx context.Context) error

func (f requirementsFunc) Check(ctx context.Context) error { return f(ctx) }

type confirmer struct {
	answer bool
	err    error
	asked  string
}

func (c *confirmer) Confirm(ctx context.Context, question string) (bool, error) {
	c.asked = question
	return c.answer, c.err
}

func newInstaller(rec *recorder, mods, configs, launch *fakeStep) *Installer {
	in := &Installer{
		Requirements: requirementsFunc(func(context.Context) error { return nil }),
		Progress:     rec,
		Events:       rec,
		Logger:       logging.Discard(),
	}
	// Typed nils would not read as absent providers.
	if mods != nil {
		in.Mods = mods
	}
	if configs != nil {
		in.Configs = configs
	}
	if launch != nil {
		in.Launcher = launch
	}
	return in
}

func TestRunProgressSequence(t *testing.T) {
	rec := &recorder{}
	mods, configs, launch := &fakeStep{}, &fakeStep{}, &fakeStep{}
	in := newInstaller(rec, mods, configs, launch)

	report, err := in.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Equal(t, Done, report.State)
	assert.Equal(t, "2.1.0", report.ModpackVersion)
	assert.Equal(t, []int{0, 10, 20, 30, 60, 80, 90, 100}, rec.percents)
	assert.Equal(t, []string{"sync", "verify"}, mods.calls)
	assert.Equal(t, []string{"sync", "verify"}, configs.calls)
	assert.Equal(t, []string{"sync", "verify"}, launch.calls)

	var started []State
	for _, e := range rec.events {
		if e.Kind == StepStarted {
			started = append(started, e.State)
		}
	}
	assert.Equal(t, []State{CheckRequirements, SyncMods, SyncConfigs, PatchLauncher, Verify}, started)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, Event{State: Done, Kind: StepSucceeded}, last)
}

func TestRunStepFailureSkipsRemainingSteps(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("disk on fire")
	mods, configs, launch := &fakeStep{}, &fakeStep{syncErr: boom}, &fakeStep{}
	in := newInstaller(rec, mods, configs, launch)

	report, err := in.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, Failed, report.State)
	assert.Equal(t, SyncConfigs, report.FailedStep)
	assert.ErrorIs(t, report.Err, boom)
	assert.Equal(t, []int{0, 10, 20, 30, 60}, rec.percents)
	assert.Equal(t, []string{"sync"}, mods.calls, "completed steps are not undone or verified")
	assert.Empty(t, launch.calls)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, SyncConfigs, last.State)
	assert.Equal(t, StepFailed, last.Kind)
}

func TestRunRequirementsFailure(t *testing.T) {
	rec := &recorder{}
	mods := &fakeStep{}
	in := newInstaller(rec, mods, nil, nil)
	in.Requirements = requirementsFunc(func(context.Context) error { return errors.New("no disk") })

	report, err := in.Run(context.Background())
	assert.ErrorIs(t, err, ErrRequirements)
	assert.Equal(t, Failed, report.State)
	assert.Equal(t, CheckRequirements, report.FailedStep)
	assert.Equal(t, []int{0, 10}, rec.percents)
	assert.Empty(t, mods.calls)
}

func TestRunConfirmation(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		rec := &recorder{}
		mods := &fakeStep{}
		in := newInstaller(rec, mods, nil, nil)
		c := &confirmer{answer: false}
		in.Confirmer = c
		in.Question = "Install Noobcraft?"

		report, err := in.Run(context.Background())
		assert.ErrorIs(t, err, ErrCancelled)
		assert.Equal(t, Failed, report.State)
		assert.Equal(t, "Install Noobcraft?", c.asked)
		assert.Equal(t, []int{0, 10, 20}, rec.percents)
		assert.Empty(t, mods.calls)
	})

	t.Run("accepted", func(t *testing.T) {
		in := newInstaller(&recorder{}, &fakeStep{}, nil, nil)
		c := &confirmer{answer: true}
		in.Confirmer = c

		_, err := in.Run(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, c.asked)
	})

	t.Run("input error", func(t *testing.T) {
		in := newInstaller(&recorder{}, &fakeStep{}, nil, nil)
		in.Confirmer = &confirmer{err: errors.New("stdin closed")}

		_, err := in.Run(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCancelled)
	})
}

func TestRunCancelledInsideStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	mods := &fakeStep{onSync: cancel}
	configs := &fakeStep{}
	in := newInstaller(rec, mods, configs, nil)

	report, err := in.Run(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, report.State)
	assert.Equal(t, SyncMods, report.FailedStep)
	assert.Empty(t, configs.calls)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	report, err := newInstaller(rec, &fakeStep{}, nil, nil).Run(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, CheckRequirements, report.FailedStep)
	assert.Equal(t, []int{0}, rec.percents)
}

func TestRunVerifyFailure(t *testing.T) {
	rec := &recorder{}
	mods := &fakeStep{verifyErr: errors.New("a.jar missing")}
	launch := &fakeStep{verifyErr: launcher.ErrProfileMissing}
	in := newInstaller(rec, mods, &fakeStep{}, launch)

	report, err := in.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, Verify, report.FailedStep)
	assert.ErrorIs(t, err, launcher.ErrProfileMissing)
	assert.Contains(t, err.Error(), "a.jar missing")
	assert.Equal(t, []int{0, 10, 20, 30, 60, 80, 90}, rec.percents)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "SyncConfigs", SyncConfigs.String())
	assert.Equal(t, "Failed", Failed.String())
	assert.Equal(t, "State(42)", State(42).String())
}

// assetFixture builds an asset store with two mods and two configs.
func assetFixture(t *testing.T) *AssetList {
	t.Helper()
	list := testhelpers.ModListJSON(t,
		[]string{"a.jar", "b.jar"},
		[]string{"config/jei-client.toml", "config/sub/opts.txt"},
	)
	bucket := testhelpers.AssetBucket(t, map[string][]byte{
		"mods.json":              list,
		"mods/a.jar":             []byte("alpha"),
		"mods/b.jar":             []byte("bravo"),
		"config/jei-client.toml": []byte("[jei]"),
		"config/sub/opts.txt":    []byte("opts"),
	})
	store := assets.NewStore(bucket, assets.DefaultLayout())
	t.Cleanup(func() { store.Close() })
	return &AssetList{Store: store}
}

func TestLocalProviders(t *testing.T) {
	root := t.TempDir()
	modsDir, configDir := paths.ModsDir(root), paths.ConfigDir(root)
	testhelpers.WriteFile(t, filepath.Join(modsDir, "a.jar"), "stale")
	testhelpers.WriteFile(t, filepath.Join(modsDir, "c.jar"), "extra")
	testhelpers.WriteFile(t, filepath.Join(configDir, "user.cfg"), "mine")

	list := assetFixture(t)
	syncer := filesync.New(logging.Discard())
	mods := &LocalMods{Assets: list, Syncer: syncer, Dir: modsDir}
	configs := &AssetConfigs{Assets: list, Syncer: syncer, Dir: configDir}

	in := &Installer{Mods: mods, Configs: configs, Logger: logging.Discard()}
	report, err := in.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jar", "b.jar"}, testhelpers.ListFiles(t, modsDir))
	testhelpers.AssertFileContent(t, filepath.Join(modsDir, "a.jar"), "alpha")
	assert.ElementsMatch(t, []string{"a.jar", "b.jar"}, report.Mods.Installed)
	assert.Len(t, report.Mods.Deleted, 1)

	assert.Equal(t, []string{"jei-client.toml", "sub/opts.txt", "user.cfg"}, testhelpers.ListFiles(t, configDir))
	testhelpers.AssertFileContent(t, filepath.Join(configDir, "sub", "opts.txt"), "opts")

	// A second run changes nothing.
	report, err = in.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Mods.Installed)
	assert.Empty(t, report.Mods.Deleted)
	assert.Empty(t, report.Configs.Installed)
}

func TestLocalModsMissingPayload(t *testing.T) {
	bucket := testhelpers.AssetBucket(t, map[string][]byte{
		"mods.json":  testhelpers.ModListJSON(t, []string{"a.jar", "gone.jar"}, nil),
		"mods/a.jar": []byte("alpha"),
	})
	list := &AssetList{Store: assets.NewStore(bucket, assets.DefaultLayout())}
	dir := t.TempDir()
	mods := &LocalMods{Assets: list, Syncer: filesync.New(logging.Discard()), Dir: dir}

	report := &Report{}
	err := mods.SyncMods(context.Background(), report)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, err, filesync.ErrResourceNotFound)
	assert.Equal(t, []string{"a.jar"}, report.Mods.Installed, "other items still install")
	testhelpers.AssertFileExists(t, filepath.Join(dir, "a.jar"))
}

func TestLocalModsMalformedList(t *testing.T) {
	bucket := testhelpers.AssetBucket(t, map[string][]byte{
		"mods.json":  []byte(`{"mods": [`),
		"mods/a.jar": []byte("alpha"),
	})
	list := &AssetList{Store: assets.NewStore(bucket, assets.DefaultLayout())}
	dir := t.TempDir()
	testhelpers.WriteFile(t, filepath.Join(dir, "keep.jar"), "x")

	in := &Installer{
		Mods:   &LocalMods{Assets: list, Syncer: filesync.New(logging.Discard()), Dir: dir},
		Logger: logging.Discard(),
	}
	_, err := in.Run(context.Background())
	assert.ErrorIs(t, err, manifest.ErrMalformed)
	assert.Equal(t, []string{"keep.jar"}, testhelpers.ListFiles(t, dir), "nothing is touched")
}

func TestRemoteMods(t *testing.T) {
	mirror := testhelpers.NewMockMirror(t)
	fresh := testhelpers.Payload("fresh.jar", 4096)
	current := testhelpers.Payload("current.jar", 2048)
	mirror.SetFile("/cdn/fresh.jar", fresh)
	mirror.SetFile("/cdn/current.jar", current)

	remote := manifest.Remote{
		Version:          "3.0.0",
		MinecraftVersion: "1.20.1",
		RequiredMods: []manifest.Descriptor{
			testhelpers.Descriptor("fresh.jar", fresh, mirror.URL("/cdn/fresh.jar")),
			testhelpers.Descriptor("current.jar", current, mirror.URL("/cdn/current.jar")),
		},
	}
	mirror.SetFile("/api/mods", testhelpers.RemoteJSON(t, remote))

	dir := t.TempDir()
	testhelpers.WriteFile(t, filepath.Join(dir, "current.jar"), string(current))
	testhelpers.WriteFile(t, filepath.Join(dir, "old.jar"), "old")

	client := download.NewClient(download.Config{
		BaseURL:         mirror.URL("/api/"),
		ModListEndpoint: "mods",
		CDNURLs:         []string{mirror.URL("/cdn/")},
	}, nil, logging.Discard())

	var progressed []int
	mods := &RemoteMods{
		Client: client,
		Syncer: filesync.New(logging.Discard()),
		Dir:    dir,
		OnItem: func(completed, total int, name string) { progressed = append(progressed, completed) },
		Logger: logging.Discard(),
	}

	report := &Report{}
	require.NoError(t, mods.SyncMods(context.Background(), report))

	assert.Equal(t, "3.0.0", report.ModpackVersion)
	assert.Equal(t, []string{"current.jar", "fresh.jar"}, testhelpers.ListFiles(t, dir))
	assert.Equal(t, []string{"fresh.jar"}, report.Mods.Installed)
	assert.Equal(t, []string{"current.jar"}, report.Mods.Skipped)
	assert.Len(t, report.Mods.Deleted, 1)
	require.NotNil(t, report.Downloads)
	assert.True(t, report.Downloads.OK())
	assert.Equal(t, []int{1}, progressed)
	assert.Equal(t, 0, mirror.GetRequestCount("/cdn/current.jar"), "verified files are not downloaded")

	require.NoError(t, mods.VerifyMods(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh.jar"), []byte("tampered"), 0644))
	assert.Error(t, mods.VerifyMods(context.Background()))
}

func TestProvidersPlan(t *testing.T) {
	root := t.TempDir()
	modsDir, configDir := paths.ModsDir(root), paths.ConfigDir(root)
	testhelpers.WriteFile(t, filepath.Join(modsDir, "a.jar"), "alpha")
	testhelpers.WriteFile(t, filepath.Join(modsDir, "c.jar"), "extra")

	list := assetFixture(t)
	syncer := filesync.New(logging.Discard())
	planners := []Planner{
		&LocalMods{Assets: list, Syncer: syncer, Dir: modsDir},
		&AssetConfigs{Assets: list, Syncer: syncer, Dir: configDir},
	}

	mods, err := planners[0].Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(modsDir, "c.jar")}, mods.Delete)
	require.Len(t, mods.Install, 1)
	assert.Equal(t, "b.jar", mods.Install[0].Name)
	assert.Equal(t, []string{"a.jar"}, mods.Current)

	configs, err := planners[1].Plan(context.Background())
	require.NoError(t, err)
	assert.Len(t, configs.Install, 2)
	assert.Empty(t, configs.Delete)

	assert.Equal(t, []string{"a.jar", "c.jar"}, testhelpers.ListFiles(t, modsDir), "planning does not write")
}

func TestAssetConfigsGameFiles(t *testing.T) {
	root := t.TempDir()
	configDir := paths.ConfigDir(root)
	bucket := testhelpers.AssetBucket(t, map[string][]byte{
		"mods.json":              []byte(`{"mods": [], "configs": ["config/jei-client.toml"], "game": ["options.txt", "servers.dat"]}`),
		"config/jei-client.toml": []byte("[jei]"),
		"options.txt":            []byte("lang:en_us\n"),
		"servers.dat":            []byte("nbt"),
	})
	store := assets.NewStore(bucket, assets.DefaultLayout())
	t.Cleanup(func() { store.Close() })
	list := &AssetList{Store: store}

	testhelpers.WriteFile(t, filepath.Join(root, "options.txt"), "lang:de_de\n")
	testhelpers.WriteFile(t, filepath.Join(root, "usercache.json"), "[]")

	configs := &AssetConfigs{
		Assets: list,
		Syncer: filesync.New(logging.Discard()),
		Dir:    configDir,
		Root:   root,
		Prune:  true,
	}

	game, err := configs.GamePlan(context.Background())
	require.NoError(t, err)
	require.Len(t, game.Install, 2)
	assert.Equal(t, "options.txt", game.Install[0].Name)
	assert.Equal(t, filesync.Changed, game.Install[0].Reason)
	assert.Equal(t, filesync.Missing, game.Install[1].Reason)
	assert.Empty(t, game.Delete, "the Minecraft root is never pruned")
	assert.Error(t, configs.VerifyConfigs(context.Background()))

	report := &Report{}
	require.NoError(t, configs.SyncConfigs(context.Background(), report))
	assert.ElementsMatch(t, []string{"jei-client.toml", "options.txt", "servers.dat"}, report.Configs.Installed)
	testhelpers.AssertFileContent(t, filepath.Join(root, "options.txt"), "lang:en_us\n")
	testhelpers.AssertFileContent(t, filepath.Join(root, "servers.dat"), "nbt")
	testhelpers.AssertFileContent(t, filepath.Join(root, "usercache.json"), "[]")
	require.NoError(t, configs.VerifyConfigs(context.Background()))

	game, err = configs.GamePlan(context.Background())
	require.NoError(t, err)
	assert.True(t, game.Empty())
	assert.Equal(t, []string{"options.txt", "servers.dat"}, game.Current)

	require.NoError(t, os.WriteFile(filepath.Join(root, "options.txt"), []byte("fov:110"), 0644))
	assert.Error(t, configs.VerifyConfigs(context.Background()))
}

func TestRemoteModsPlan(t *testing.T) {
	mirror := testhelpers.NewMockMirror(t)
	fresh := testhelpers.Payload("fresh.jar", 1024)
	current := testhelpers.Payload("current.jar", 512)
	stale := testhelpers.Payload("stale.jar", 256)
	remote := manifest.Remote{
		Version: "3.0.0",
		RequiredMods: []manifest.Descriptor{
			testhelpers.Descriptor("fresh.jar", fresh, mirror.URL("/cdn/fresh.jar")),
			testhelpers.Descriptor("current.jar", current, mirror.URL("/cdn/current.jar")),
			testhelpers.Descriptor("stale.jar", stale, mirror.URL("/cdn/stale.jar")),
		},
	}
	mirror.SetFile("/api/mods", testhelpers.RemoteJSON(t, remote))

	dir := t.TempDir()
	testhelpers.WriteFile(t, filepath.Join(dir, "current.jar"), string(current))
	testhelpers.WriteFile(t, filepath.Join(dir, "stale.jar"), "old bytes")
	testhelpers.WriteFile(t, filepath.Join(dir, "extra.jar"), "x")

	mods := &RemoteMods{
		Client: download.NewClient(download.Config{BaseURL: mirror.URL("/api/"), ModListEndpoint: "mods"}, nil, logging.Discard()),
		Syncer: filesync.New(logging.Discard()),
		Dir:    dir,
		Logger: logging.Discard(),
	}
	plan, err := mods.Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "extra.jar")}, plan.Delete)
	assert.Equal(t, []string{"current.jar"}, plan.Current)
	reasons := map[string]filesync.Reason{}
	for _, in := range plan.Install {
		reasons[in.Name] = in.Reason
	}
	assert.Equal(t, map[string]filesync.Reason{"fresh.jar": filesync.Missing, "stale.jar": filesync.Changed}, reasons)
	assert.Equal(t, 0, mirror.GetRequestCount("/cdn/fresh.jar"))
	assert.Equal(t, []string{"current.jar", "extra.jar", "stale.jar"}, testhelpers.ListFiles(t, dir))
}

func TestRemoteModsDownloadFailure(t *testing.T) {
	mirror := testhelpers.NewMockMirror(t)
	good := testhelpers.Payload("good.jar", 1024)
	mirror.SetFile("/cdn/good.jar", good)
	mirror.SetError("/cdn/bad.jar", 500)

	remote := manifest.Remote{
		Version: "1.0.0",
		RequiredMods: []manifest.Descriptor{
			testhelpers.Descriptor("good.jar", good, mirror.URL("/cdn/good.jar")),
			testhelpers.Descriptor("bad.jar", []byte("never"), mirror.URL("/cdn/bad.jar")),
		},
	}
	mirror.SetFile("/api/mods", testhelpers.RemoteJSON(t, remote))

	dir := t.TempDir()
	mods := &RemoteMods{
		Client: download.NewClient(download.Config{BaseURL: mirror.URL("/api/"), ModListEndpoint: "mods"}, nil, logging.Discard()),
		Syncer: filesync.New(logging.Discard()),
		Dir:    dir,
		Logger: logging.Discard(),
	}

	report := &Report{}
	err := mods.SyncMods(context.Background(), report)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, []string{"good.jar"}, report.Mods.Installed)
	require.Len(t, report.Mods.Failed, 1)
	assert.Equal(t, "bad.jar", report.Mods.Failed[0].Path)
	assert.Equal(t, []string{"good.jar"}, testhelpers.ListFiles(t, dir))
}

func TestRemoteModsManifestUnavailable(t *testing.T) {
	mirror := testhelpers.NewMockMirror(t)
	mirror.SetError("/api/mods", 503)

	mods := &RemoteMods{
		Client: download.NewClient(download.Config{BaseURL: mirror.URL("/api/"), ModListEndpoint: "mods"}, nil, logging.Discard()),
		Syncer: filesync.New(logging.Discard()),
		Dir:    t.TempDir(),
		Logger: logging.Discard(),
	}
	err := mods.SyncMods(context.Background(), &Report{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncomplete)
}

func TestLauncherProvider(t *testing.T) {
	root := t.TempDir()
	running := false
	l := &Launcher{
		Path:    paths.LauncherProfiles(root),
		ID:      "noobcraft",
		Profile: launcher.NewProfile("Noobcraft", "1.20.1", root),
		Running: func(context.Context) bool { running = true; return true },
		Logger:  logging.Discard(),
	}

	assert.Error(t, l.VerifyLauncher(context.Background()))
	require.NoError(t, l.PatchLauncher(context.Background()))
	assert.True(t, running)
	assert.NoError(t, l.VerifyLauncher(context.Background()))
}

func TestIsInstalled(t *testing.T) {
	root := t.TempDir()
	assert.False(t, IsInstalled(root, "noobcraft"))

	testhelpers.WriteFile(t, filepath.Join(paths.ModsDir(root), "a.jar"), "a")
	assert.False(t, IsInstalled(root, "noobcraft"))

	require.NoError(t, launcher.Patch(paths.LauncherProfiles(root), "noobcraft", launcher.NewProfile("Noobcraft", "1.20.1", root)))
	assert.True(t, IsInstalled(root, "noobcraft"))
}
