package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/distantorigin/noobcraft-installer/internal/assets"
	"github.com/distantorigin/noobcraft-installer/internal/download"
	"github.com/distantorigin/noobcraft-installer/internal/filesync"
	"github.com/distantorigin/noobcraft-installer/internal/install"
	"github.com/distantorigin/noobcraft-installer/internal/launcher"
	"github.com/distantorigin/noobcraft-installer/internal/logging"
	"github.com/distantorigin/noobcraft-installer/internal/manifest"
	"github.com/distantorigin/noobcraft-installer/internal/paths"
	"github.com/distantorigin/noobcraft-installer/internal/syscheck"
	testhelpers "github.com/distantorigin/noobcraft-installer/testing"
)

// TestEnvironment is a Minecraft directory plus the sources an installer
// reads from.
type TestEnvironment struct {
	T         *testing.T
	Root      string // Minecraft directory
	AssetsDir string // local asset store
	Mirror    *testhelpers.MockMirror
	Syncer    *filesync.Syncer
}

// SetupTestEnvironment creates an empty Minecraft directory, an empty asset
// directory and a mirror.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	base := t.TempDir()
	env := &TestEnvironment{
		T:         t,
		Root:      filepath.Join(base, "minecraft"),
		AssetsDir: filepath.Join(base, "assets"),
		Mirror:    testhelpers.NewMockMirror(t),
		Syncer:    filesync.New(logging.Discard()),
	}
	if err := os.MkdirAll(env.AssetsDir, 0755); err != nil {
		t.Fatalf("failed to create asset dir: %v", err)
	}
	return env
}

// WriteAsset stores a file in the asset directory.
func (e *TestEnvironment) WriteAsset(key, content string) {
	e.T.Helper()
	testhelpers.WriteFile(e.T, filepath.Join(e.AssetsDir, filepath.FromSlash(key)), content)
}

// WriteModList stores mods.json in the asset directory.
func (e *TestEnvironment) WriteModList(mods, configs []string) {
	e.T.Helper()
	e.WriteAsset("mods.json", string(testhelpers.ModListJSON(e.T, mods, configs)))
}

// WriteGameList stores mods.json with game files for the Minecraft root.
func (e *TestEnvironment) WriteGameList(mods, game []string) {
	e.T.Helper()
	data, err := json.Marshal(manifest.ModList{Mods: mods, Game: game})
	if err != nil {
		e.T.Fatalf("failed to marshal mod list: %v", err)
	}
	e.WriteAsset("mods.json", string(data))
}

// CreateFile writes a file under the Minecraft directory.
func (e *TestEnvironment) CreateFile(rel, content string) {
	e.T.Helper()
	testhelpers.WriteFile(e.T, filepath.Join(e.Root, filepath.FromSlash(rel)), content)
}

// Path resolves rel under the Minecraft directory.
func (e *TestEnvironment) Path(rel string) string {
	return filepath.Join(e.Root, filepath.FromSlash(rel))
}

// ServeRemote publishes a server mod list at /api/mods.
func (e *TestEnvironment) ServeRemote(remote manifest.Remote) {
	e.T.Helper()
	e.Mirror.SetFile("/api/mods", testhelpers.RemoteJSON(e.T, remote))
}

// Publish serves content on the mirror CDN and returns its descriptor.
func (e *TestEnvironment) Publish(name string, content []byte) manifest.Descriptor {
	e.Mirror.SetFile("/cdn/"+name, content)
	return testhelpers.Descriptor(name, content, e.Mirror.URL("/cdn/"+name))
}

// openAssets opens the asset directory the way the installer does.
func (e *TestEnvironment) openAssets() *install.AssetList {
	e.T.Helper()
	store, err := assets.Open(context.Background(), e.AssetsDir, assets.DefaultLayout())
	if err != nil {
		e.T.Fatalf("failed to open assets: %v", err)
	}
	e.T.Cleanup(func() { store.Close() })
	return &install.AssetList{Store: store}
}

func (e *TestEnvironment) launcherStep() *install.Launcher {
	return &install.Launcher{
		Path:    paths.LauncherProfiles(e.Root),
		ID:      "noobcraft",
		Profile: launcher.NewProfile("Noobcraft", "1.20.1", e.Root),
		Logger:  logging.Discard(),
	}
}

func (e *TestEnvironment) requirements() install.Requirements {
	return &syscheck.Checker{Checks: syscheck.Defaults(e.Root, 1), Logger: logging.Discard()}
}

// LocalInstaller wires an installer that reads mods and configs from the
// asset directory.
func (e *TestEnvironment) LocalInstaller() *install.Installer {
	list := e.openAssets()
	return &install.Installer{
		Requirements: e.requirements(),
		Mods:         &install.LocalMods{Assets: list, Syncer: e.Syncer, Dir: paths.ModsDir(e.Root)},
		Configs:      &install.AssetConfigs{Assets: list, Syncer: e.Syncer, Dir: paths.ConfigDir(e.Root), Root: e.Root},
		Launcher:     e.launcherStep(),
		Logger:       logging.Discard(),
	}
}

// RemoteInstaller wires an installer that downloads mods from the mirror.
// fallbacks are server bases tried after the primary /api/.
func (e *TestEnvironment) RemoteInstaller(primary string, fallbacks ...string) *install.Installer {
	if primary == "" {
		primary = e.Mirror.URL("/api/")
	}
	client := download.NewClient(download.Config{
		BaseURL:         primary,
		ModListEndpoint: "mods",
		CDNURLs:         []string{e.Mirror.URL("/cdn/")},
		FallbackURLs:    fallbacks,
		UserAgent:       "NoobcraftInstaller/test",
	}, nil, logging.Discard())
	return &install.Installer{
		Requirements: e.requirements(),
		Mods: &install.RemoteMods{
			Client: client,
			Syncer: e.Syncer,
			Dir:    paths.ModsDir(e.Root),
			Logger: logging.Discard(),
		},
		Launcher: e.launcherStep(),
		Logger:   logging.Discard(),
	}
}

// Mods lists the mods directory.
func (e *TestEnvironment) Mods() []string {
	e.T.Helper()
	return testhelpers.ListFiles(e.T, paths.ModsDir(e.Root))
}
