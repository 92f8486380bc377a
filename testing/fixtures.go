package testing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/distantorigin/noobcraft-installer/internal/manifest"
)

// Payload returns deterministic content for a mod file.
func Payload(name string, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = name[i%len(name)] ^ byte(i)
	}
	return data
}

// Checksum is the lowercase hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Descriptor builds a verified descriptor for content served at urls.
func Descriptor(fileName string, content []byte, urls ...string) manifest.Descriptor {
	return manifest.Descriptor{
		Name:         fileName,
		FileName:     fileName,
		DownloadURLs: urls,
		Checksum:     Checksum(content),
		FileSize:     int64(len(content)),
	}
}

// ModListJSON renders a local mod list.
func ModListJSON(t *testing.T, mods, configs []string) []byte {
	t.Helper()
	data, err := json.Marshal(manifest.ModList{Mods: mods, Configs: configs})
	if err != nil {
		t.Fatalf("failed to marshal mod list: %v", err)
	}
	return append([]byte("// generated for tests\n"), data...)
}

// RemoteJSON renders a server mod list.
func RemoteJSON(t *testing.T, r manifest.Remote) []byte {
	t.Helper()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("failed to marshal remote mod list: %v", err)
	}
	return data
}

// AssetBucket returns an in-memory bucket holding files, keyed by path.
func AssetBucket(t *testing.T, files map[string][]byte) *blob.Bucket {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	for key, data := range files {
		if err := bucket.WriteAll(context.Background(), key, data, nil); err != nil {
			t.Fatalf("failed to write %s: %v", key, err)
		}
	}
	return bucket
}
