package assets

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/distantorigin/noobcraft-installer/internal/filesync"
	"github.com/distantorigin/noobcraft-installer/internal/manifest"
)

func memStore(t *testing.T, files map[string]string) *Store {
	t.Helper()
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	for key, content := range files {
		require.NoError(t, bucket.WriteAll(ctx, key, []byte(content), nil))
	}
	s := NewStore(bucket, DefaultLayout())
	t.Cleanup(func() { s.Close() })
	return s
}

func readAll(t *testing.T, src filesync.Source, name string) string {
	t.Helper()
	rc, err := src.Open(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestReadModList(t *testing.T) {
	s := memStore(t, map[string]string{
		"mods.json": "// pack\n{\"mods\": [\"jei.jar\"], \"configs\": [\"config/jei.ini\"]}",
	})

	list, err := s.ReadModList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"jei.jar"}, list.Mods)
	assert.Equal(t, []string{"config/jei.ini"}, list.Configs)
}

func TestReadModList_Missing(t *testing.T) {
	s := memStore(t, nil)
	_, err := s.ReadModList(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestReadModList_Malformed(t *testing.T) {
	s := memStore(t, map[string]string{"mods.json": "{"})
	_, err := s.ReadModList(context.Background())
	assert.ErrorIs(t, err, manifest.ErrMalformed)
}

func TestSources(t *testing.T) {
	s := memStore(t, map[string]string{
		"mods/jei.jar":          "jar-bytes",
		"config/jei/client.ini": "ini",
		"options.txt":           "lang:en_us",
	})

	assert.Equal(t, "jar-bytes", readAll(t, s.Mods(), "jei.jar"))

	configs := s.Configs(map[string]string{"jei/client.ini": "config/jei/client.ini"})
	assert.Equal(t, "ini", readAll(t, configs, "jei/client.ini"))

	assert.Equal(t, "lang:en_us", readAll(t, s.Game(), "options.txt"))

	_, err := s.Mods().Open(context.Background(), "missing.jar")
	assert.ErrorIs(t, err, filesync.ErrResourceNotFound)
	_, err = s.Game().Open(context.Background(), "servers.dat")
	assert.ErrorIs(t, err, filesync.ErrResourceNotFound)
}

func TestGamePrefix(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	require.NoError(t, bucket.WriteAll(context.Background(), "root/servers.dat", []byte("nbt"), nil))
	layout := DefaultLayout()
	layout.GamePrefix = "root/"
	s := NewStore(bucket, layout)
	t.Cleanup(func() { s.Close() })

	assert.Equal(t, "nbt", readAll(t, s.Game(), "servers.dat"))
}

func TestOpen_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mods"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mods", "a.jar"), []byte("A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mods.json"), []byte(`{"mods":["a.jar"]}`), 0644))

	s, err := Open(context.Background(), dir, DefaultLayout())
	require.NoError(t, err)
	defer s.Close()

	list, err := s.ReadModList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jar"}, list.Mods)
	assert.Equal(t, "A", readAll(t, s.Mods(), "a.jar"))
}

func TestOpen_URL(t *testing.T) {
	s, err := Open(context.Background(), "mem://", DefaultLayout())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ReadModList(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_BadLocation(t *testing.T) {
	_, err := Open(context.Background(), "nosuchscheme://x", DefaultLayout())
	assert.Error(t, err)
}
