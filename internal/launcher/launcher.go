package launcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrProfileMissing is returned by Verify when the profile is absent.
var ErrProfileMissing = errors.New("launcher profile not found")

// DefaultJavaArgs are the JVM flags written to the profile.
const DefaultJavaArgs = "-Xmx4G -Xms2G -XX:+UseG1GC -XX:+ParallelRefProcEnabled -XX:MaxGCPauseMillis=200 " +
	"-XX:+UnlockExperimentalVMOptions -XX:+DisableExplicitGC -XX:+AlwaysPreTouch -XX:G1NewSizePercent=30 " +
	"-XX:G1MaxNewSizePercent=40 -XX:G1HeapRegionSize=8M -XX:G1ReservePercent=20 -XX:G1HeapWastePercent=5 " +
	"-XX:G1MixedGCCountTarget=4 -XX:InitiatingHeapOccupancyPercent=15 -XX:G1MixedGCLiveThresholdPercent=90 " +
	"-XX:G1RSetUpdatingPauseTimePercent=5 -XX:SurvivorRatio=32 -XX:+PerfDisableSharedMem -XX:MaxTenuringThreshold=1"

const timeLayout = "2006-01-02T15:04:05.000Z"

// Profile is one entry of launcher_profiles.json.
type Profile struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Created       string `json:"created,omitempty"`
	LastUsed      string `json:"lastUsed,omitempty"`
	LastVersionID string `json:"lastVersionId"`
	GameDir       string `json:"gameDir,omitempty"`
	JavaArgs      string `json:"javaArgs,omitempty"`
	Icon          string `json:"icon,omitempty"`
}

// Patcher writes the modpack profile.
type Patcher struct {
	ID      string
	Profile Profile
	// Now is used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewProfile returns the modpack profile for a Minecraft directory.
func NewProfile(name, versionID, gameDir string) Profile {
	return Profile{
		Name:          name,
		Type:          "custom",
		LastVersionID: versionID,
		GameDir:       gameDir,
		JavaArgs:      DefaultJavaArgs,
	}
}

// Patch writes profile under id into the document at path.
func Patch(path, id string, profile Profile) error {
	p := &Patcher{ID: id, Profile: profile}
	return p.Patch(path)
}

// Patch inserts or replaces the profile in the launcher document at path and
// selects it. Other profiles and unknown fields are kept. A missing document
// is created; an unreadable one is left alone and reported.
func (p *Patcher) Patch(path string) error {
	if p.ID == "" {
		return errors.New("launcher profile id is empty")
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	stamp := now().UTC().Format(timeLayout)

	doc, err := read(path)
	if err != nil {
		return err
	}

	profiles := make(map[string]json.RawMessage)
	if raw, ok := doc["profiles"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &profiles); err != nil {
			return fmt.Errorf("failed to parse profiles in %s: %w", path, err)
		}
	}

	entry := make(map[string]json.RawMessage)
	if raw, ok := profiles[p.ID]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("failed to parse profile %q: %w", p.ID, err)
		}
	}

	profile := p.Profile
	profile.LastUsed = stamp
	if profile.Created == "" {
		profile.Created = stamp
		if raw, ok := entry["created"]; ok {
			var created string
			if json.Unmarshal(raw, &created) == nil && created != "" {
				profile.Created = created
			}
		}
	}

	// Known fields overwrite, fields the launcher added survive.
	fields, err := toRaw(profile)
	if err != nil {
		return err
	}
	for k, v := range fields {
		entry[k] = v
	}

	if profiles[p.ID], err = json.Marshal(entry); err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if doc["profiles"], err = json.Marshal(profiles); err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	doc["selectedProfile"], _ = json.Marshal(p.ID)
	if _, ok := doc["version"]; !ok {
		doc["version"] = json.RawMessage("3")
	}

	return write(path, doc)
}

// Verify checks that the profile exists in the document at path.
func Verify(path, id string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read launcher profiles: %w", err)
	}
	var doc struct {
		Profiles map[string]json.RawMessage `json:"profiles"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse launcher profiles: %w", err)
	}
	if _, ok := doc.Profiles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileMissing, id)
	}
	return nil
}

// Load returns the profile with id from the document at path.
func Load(path, id string) (*Profile, error) {
	if err := Verify(path, id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Profiles map[string]Profile `json:"profiles"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse launcher profiles: %w", err)
	}
	profile := doc.Profiles[id]
	return &profile, nil
}

func read(path string) (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read launcher profiles: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s, not modifying it: %w", path, err)
	}
	return doc, nil
}

func write(path string, doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode launcher profiles: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".launcher_profiles-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write launcher profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write launcher profiles: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace launcher profiles: %w", err)
	}
	return nil
}

func toRaw(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	out := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
