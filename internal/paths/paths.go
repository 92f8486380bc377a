package paths

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Filenames are compared case-insensitively everywhere in the installer.
// Minecraft runs on case-insensitive filesystems on Windows and macOS, so a
// mod list entry "JEI.jar" and a file "jei.jar" on disk are the same file.

// Normalize converts a path to use forward slashes (for manifest/cross-platform storage)
func Normalize(p string) string {
	return strings.ReplaceAll(filepath.Clean(p), string(filepath.Separator), "/")
}

// Denormalize converts a path from forward slashes to platform-specific separators
func Denormalize(p string) string {
	return strings.ReplaceAll(p, "/", string(filepath.Separator))
}

// CleanLower returns a cleaned, lowercase path for case-insensitive comparison
func CleanLower(p string) string {
	return strings.ToLower(filepath.Clean(p))
}

// Key returns the comparison key for a relative manifest path.
func Key(p string) string {
	return strings.ToLower(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// FindActual finds the actual case of a file on case-insensitive filesystems
func FindActual(targetPath string) (string, error) {
	if _, err := os.Stat(targetPath); err == nil {
		return targetPath, nil
	}

	dir := filepath.Dir(targetPath)
	filename := filepath.Base(targetPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return targetPath, nil
	}

	for _, entry := range entries {
		if strings.EqualFold(entry.Name(), filename) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return targetPath, nil
}

// ValidatePath ensures a path doesn't escape the base directory (path traversal protection)
func ValidatePath(basePath, targetPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}

	if absTarget != absBase && !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s", targetPath)
	}

	return absTarget, nil
}

// ConfigRelative turns a config entry from the mod list into a path relative
// to the config directory. A leading "config/" is stripped.
func ConfigRelative(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return "", fmt.Errorf("empty config path")
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("config path must be relative: %s", p)
	}

	cleaned := path.Clean(p)
	if len(cleaned) > len("config/") && strings.EqualFold(cleaned[:len("config/")], "config/") {
		cleaned = cleaned[len("config/"):]
	}

	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("config path escapes the config directory: %s", p)
	}
	return cleaned, nil
}

// IsBareFilename reports whether name has no directory component.
func IsBareFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// MinecraftDir returns the default Minecraft root for an operating system.
func MinecraftDir(goos, home, appData string) string {
	switch goos {
	case "windows":
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, ".minecraft")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "minecraft")
	default:
		return filepath.Join(home, ".minecraft")
	}
}

// DefaultMinecraftDir resolves MinecraftDir for the running system.
func DefaultMinecraftDir(goos string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return MinecraftDir(goos, home, os.Getenv("APPDATA")), nil
}

// ModsDir returns the mods folder under a Minecraft root.
func ModsDir(root string) string {
	return filepath.Join(root, "mods")
}

// ConfigDir returns the config folder under a Minecraft root.
func ConfigDir(root string) string {
	return filepath.Join(root, "config")
}

// LauncherProfiles returns the launcher profile document under a Minecraft root.
func LauncherProfiles(root string) string {
	return filepath.Join(root, "launcher_profiles.json")
}
