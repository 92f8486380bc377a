package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Set at build time with -ldflags "-X .../internal/version.tag=v1.0.0".
var (
	tag    = "v1.0.0"
	commit = ""
)

// Version is a modpack or installer version.
type Version struct {
	Major  int    `json:"major"`
	Minor  int    `json:"minor"`
	Patch  int    `json:"patch"`
	Commit string `json:"commit,omitempty"`
}

// String returns the version in semantic format
func (v Version) String() string {
	ver := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Commit != "" {
		ver += "+" + v.Commit
	}
	return ver
}

// ParseTag extracts version components from a tag (e.g., "v1.2.3").
// A missing patch component ("1.20") reads as zero.
func ParseTag(tag string) (major, minor, patch int, err error) {
	tagVersion := strings.TrimPrefix(strings.TrimSpace(tag), "v")
	if i := strings.IndexAny(tagVersion, "+-"); i >= 0 {
		tagVersion = tagVersion[:i]
	}
	parts := strings.Split(tagVersion, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, fmt.Errorf("invalid tag format: %s (expected vX.Y.Z)", tag)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid major version in tag %s: %w", tag, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid minor version in tag %s: %w", tag, err)
	}
	if len(parts) == 3 {
		patch, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid patch version in tag %s: %w", tag, err)
		}
	}

	return major, minor, patch, nil
}

// Parse is ParseTag returning a Version.
func Parse(s string) (Version, error) {
	major, minor, patch, err := ParseTag(s)
	if err != nil {
		return Version{}, err
	}
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// Installer returns the version of this binary.
func Installer() Version {
	v, err := Parse(tag)
	if err != nil {
		return Version{Commit: commit}
	}
	v.Commit = commit
	return v
}

// UserAgent is sent with every request to the mod server.
func UserAgent() string {
	v := Installer()
	return fmt.Sprintf("NoobcraftInstaller/%d.%d", v.Major, v.Minor)
}
