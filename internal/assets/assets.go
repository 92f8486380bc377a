// Package assets reads the mod list and file payloads shipped with the
// installer. The store is any gocloud blob bucket: a local directory next to
// the executable, or a file://, mem://, s3:// or gs:// URL.
package assets

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"github.com/distantorigin/noobcraft-installer/internal/filesync"
	"github.com/distantorigin/noobcraft-installer/internal/manifest"
)

// ErrNotFound is returned for keys the store does not hold.
var ErrNotFound = filesync.ErrResourceNotFound

// Layout names the keys inside the bucket.
type Layout struct {
	Manifest      string
	ModsPrefix    string
	ConfigsPrefix string
	GamePrefix    string
}

// DefaultLayout is mods.json at the root with jars under mods/. Config entries
// and game files are keyed as listed, from the root of the store.
func DefaultLayout() Layout {
	return Layout{
		Manifest:   "mods.json",
		ModsPrefix: "mods/",
	}
}

// Store is a read-only view of the installer assets.
type Store struct {
	bucket *blob.Bucket
	layout Layout
}

// Open opens the bucket at location. Locations without a URL scheme are
// treated as directories.
func Open(ctx context.Context, location string, layout Layout) (*Store, error) {
	var (
		bucket *blob.Bucket
		err    error
	)
	if strings.Contains(location, "://") {
		bucket, err = blob.OpenBucket(ctx, location)
	} else {
		var dir string
		dir, err = filepath.Abs(location)
		if err == nil {
			bucket, err = fileblob.OpenBucket(dir, nil)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open asset store %s: %w", location, err)
	}
	return NewStore(bucket, layout), nil
}

// NewStore wraps an open bucket. The store takes ownership of it.
func NewStore(bucket *blob.Bucket, layout Layout) *Store {
	return &Store{bucket: bucket, layout: layout}
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

// ReadModList loads and validates the mod list.
func (s *Store) ReadModList(ctx context.Context) (*manifest.ModList, error) {
	data, err := s.bucket.ReadAll(ctx, s.layout.Manifest)
	if err != nil {
		return nil, s.wrap(s.layout.Manifest, err)
	}
	return manifest.ParseModList(data)
}

// Open returns a reader for key.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, s.wrap(key, err)
	}
	return r, nil
}

// Mods is the source for the mods directory.
func (s *Store) Mods() filesync.Source {
	return prefixSource{store: s, prefix: s.layout.ModsPrefix}
}

// Configs is the source for the config directory. names maps the path
// relative to the config directory to the entry as listed in the mod list.
func (s *Store) Configs(names map[string]string) filesync.Source {
	return configSource{store: s, prefix: s.layout.ConfigsPrefix, names: names}
}

// Game is the source for files in the Minecraft root.
func (s *Store) Game() filesync.Source {
	return prefixSource{store: s, prefix: s.layout.GamePrefix}
}

func (s *Store) wrap(key string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("failed to read asset %s: %w", key, err)
}

type prefixSource struct {
	store  *Store
	prefix string
}

func (p prefixSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return p.store.Open(ctx, p.prefix+name)
}

type configSource struct {
	store  *Store
	prefix string
	names  map[string]string
}

func (c configSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	entry, ok := c.names[name]
	if !ok {
		entry = name
	}
	return c.store.Open(ctx, c.prefix+entry)
}
