package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/distantorigin/noobcraft-installer/internal/paths"
)

// Descriptor describes one downloadable mod.
type Descriptor struct {
	Name         string   `json:"name"`
	FileName     string   `json:"fileName"`
	DownloadURL  string   `json:"downloadUrl,omitempty"`
	DownloadURLs []string `json:"downloadUrls,omitempty"`
	Checksum     string   `json:"checksum,omitempty"`
	FileSize     int64    `json:"fileSize,omitempty"`
	ExpectedSize int64    `json:"expectedSize,omitempty"`
	Version      string   `json:"version,omitempty"`
	Description  string   `json:"description,omitempty"`
	IsRequired   *bool    `json:"isRequired,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// URLs returns every source URL in manifest order without duplicates.
func (d Descriptor) URLs() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, u := range d.DownloadURLs {
		add(u)
	}
	add(d.DownloadURL)
	return out
}

// Size returns the expected payload size, or zero when unknown.
func (d Descriptor) Size() int64 {
	if d.FileSize > 0 {
		return d.FileSize
	}
	return d.ExpectedSize
}

// Label is the name used in logs and progress.
func (d Descriptor) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.FileName
}

// Required reports whether the mod is required. Unset means required.
func (d Descriptor) Required() bool {
	return d.IsRequired == nil || *d.IsRequired
}

// Remote is the mod list served by the download server.
type Remote struct {
	Version          string            `json:"version"`
	MinecraftVersion string            `json:"minecraftVersion"`
	RequiredMods     []Descriptor      `json:"requiredMods"`
	OptionalMods     []Descriptor      `json:"optionalMods"`
	Checksums        map[string]string `json:"checksums"`
}

// ParseRemote decodes and validates a server mod list.
func ParseRemote(data []byte) (*Remote, error) {
	var r Remote
	if err := json.Unmarshal(stripComments(data), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	seen := make(map[string]struct{})
	for _, d := range append(append([]Descriptor{}, r.RequiredMods...), r.OptionalMods...) {
		if !paths.IsBareFilename(d.FileName) {
			return nil, fmt.Errorf("%w: mod %q has invalid fileName %q", ErrMalformed, d.Name, d.FileName)
		}
		key := paths.Key(d.FileName)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: fileName %q listed more than once", ErrMalformed, d.FileName)
		}
		seen[key] = struct{}{}
	}
	return &r, nil
}

// Descriptors returns the mods to install. Checksums missing from a
// descriptor are filled from the checksums map, keyed by fileName or name.
func (r *Remote) Descriptors(includeOptional bool) []Descriptor {
	sums := make(map[string]string, len(r.Checksums))
	for k, v := range r.Checksums {
		sums[strings.ToLower(k)] = v
	}

	var out []Descriptor
	add := func(list []Descriptor) {
		for _, d := range list {
			if d.Checksum == "" {
				if sum, ok := sums[strings.ToLower(d.FileName)]; ok {
					d.Checksum = sum
				} else if sum, ok := sums[strings.ToLower(d.Name)]; ok {
					d.Checksum = sum
				}
			}
			out = append(out, d)
		}
	}
	add(r.RequiredMods)
	if includeOptional {
		add(r.OptionalMods)
	}
	return out
}

// ModList returns the desired file set for the mods directory.
func (r *Remote) ModList(includeOptional bool) *ModList {
	list := &ModList{}
	for _, d := range r.Descriptors(includeOptional) {
		list.Mods = append(list.Mods, d.FileName)
	}
	return list
}

// MissingDependencies lists dependencies that no selected mod provides.
// A dependency matches a mod by name or fileName, ignoring case.
func (r *Remote) MissingDependencies(includeOptional bool) []string {
	descs := r.Descriptors(includeOptional)
	have := make(map[string]struct{}, len(descs)*2)
	for _, d := range descs {
		have[strings.ToLower(d.Name)] = struct{}{}
		have[strings.ToLower(d.FileName)] = struct{}{}
	}

	missing := make(map[string]struct{})
	for _, d := range descs {
		for _, dep := range d.Dependencies {
			if _, ok := have[strings.ToLower(dep)]; !ok {
				missing[dep] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(missing))
	for dep := range missing {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}
