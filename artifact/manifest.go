package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const ManifestName = "latest.json"

type Manifest struct {
	Artifact string   `json:"artifact"`
	Meta     Metadata `json:"meta"`
}

// Publish atomically points the manifest at an already saved artifact.
func Publish(dir, artifactPath string, meta Metadata) error {
	m := Manifest{Artifact: filepath.Base(artifactPath), Meta: meta}
	if _, err := os.Stat(filepath.Join(dir, m.Artifact)); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-manifest-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, ManifestName))
}

func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Artifact == "" || filepath.Base(m.Artifact) != m.Artifact {
		return nil, fmt.Errorf("manifest names invalid artifact %q", m.Artifact)
	}
	return &m, nil
}

type Entry struct {
	Name      string
	Path      string
	CreatedAt time.Time
	Size      int64
}

// List returns the artifacts in dir, newest first. A missing directory is
// an empty list.
func List(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model dir: %w", err)
	}

	var entries []Entry
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, Prefix) || !strings.HasSuffix(name, Ext) {
			continue
		}
		ts, err := time.Parse(TimestampLayout, strings.TrimSuffix(strings.TrimPrefix(name, Prefix), Ext))
		if err != nil {
			continue
		}
		var size int64
		if info, err := de.Info(); err == nil {
			size = info.Size()
		}
		entries = append(entries, Entry{Name: name, Path: filepath.Join(dir, name), CreatedAt: ts, Size: size})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name > entries[j].Name })
	return entries, nil
}

// Latest resolves the current artifact: the manifest when it names an
// existing file, otherwise the newest artifact by name.
func Latest(dir string) (string, error) {
	m, err := ReadManifest(dir)
	if err == nil {
		path := filepath.Join(dir, m.Artifact)
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}

	entries, err := List(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoArtifact, dir)
	}
	return entries[0].Path, nil
}

// Prune keeps the newest keep artifacts and removes the rest. The artifact
// named by the manifest is always kept. keep <= 0 disables pruning.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	entries, err := List(dir)
	if err != nil {
		return nil, err
	}
	var current string
	if m, err := ReadManifest(dir); err == nil {
		current = m.Artifact
	}

	var removed []string
	for i, e := range entries {
		if i < keep || e.Name == current {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", e.Name, err)
		}
		removed = append(removed, e.Name)
	}
	return removed, nil
}
