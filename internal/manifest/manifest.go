package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/distantorigin/noobcraft-installer/internal/paths"
)

// ErrMalformed is returned when a mod list cannot be parsed or fails validation.
var ErrMalformed = errors.New("malformed mod list")

// ModList is the set of files an install must end up with.
type ModList struct {
	Mods    []string `json:"mods"`
	Configs []string `json:"configs"`
	// Game files live in the Minecraft root, e.g. options.txt and servers.dat.
	Game []string `json:"game"`
}

// reserved names in the Minecraft root that the installer manages itself.
var reserved = map[string]struct{}{
	"launcher_profiles.json": {},
}

// ParseModList decodes a local mod list. Lines starting with // are comments.
func ParseModList(data []byte) (*ModList, error) {
	var list ModList
	if err := json.Unmarshal(stripComments(data), &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	return &list, nil
}

// Validate checks that mods and game files are bare filenames, configs stay
// inside the config directory, and nothing is listed twice (ignoring case).
func (l *ModList) Validate() error {
	if err := validateFilenames("mod", l.Mods); err != nil {
		return err
	}
	if err := validateFilenames("game file", l.Game); err != nil {
		return err
	}
	for _, name := range l.Game {
		if _, ok := reserved[paths.Key(name)]; ok {
			return fmt.Errorf("%w: game file %q is managed by the installer", ErrMalformed, name)
		}
	}

	seen := make(map[string]struct{}, len(l.Configs))
	for _, p := range l.Configs {
		if p != strings.TrimSpace(p) {
			return fmt.Errorf("%w: config %q has surrounding whitespace", ErrMalformed, p)
		}
		rel, err := paths.ConfigRelative(p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key := paths.Key(rel)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: config %q listed more than once", ErrMalformed, p)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func validateFilenames(kind string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name != strings.TrimSpace(name) {
			return fmt.Errorf("%w: %s %q has surrounding whitespace", ErrMalformed, kind, name)
		}
		if !paths.IsBareFilename(name) {
			return fmt.Errorf("%w: %s %q is not a plain filename", ErrMalformed, kind, name)
		}
		key := paths.Key(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s %q listed more than once", ErrMalformed, kind, name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ConfigTargets maps each config entry to its path relative to the config
// directory. Entries must already be validated.
func (l *ModList) ConfigTargets() map[string]string {
	out := make(map[string]string, len(l.Configs))
	for _, p := range l.Configs {
		rel, err := paths.ConfigRelative(p)
		if err != nil {
			continue
		}
		out[rel] = p
	}
	return out
}

func stripComments(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "//") {
			kept = append(kept, line)
		}
	}
	return []byte(strings.Join(kept, "\n"))
}
