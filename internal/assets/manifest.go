package assets

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"git.home.luguber.info/inful/mllt/internal/logfields"
)

// ManifestName is the file below the output root listing the assets a sync placed there.
const ManifestName = ".mllt-assets.json"

const manifestVersion = 1

// Manifest records the files a sync copied into the output tree. Pruning never touches
// files missing from it.
type Manifest struct {
	Version int                  `json:"version"`
	Files   map[string]Signature `json:"files"`
}

func newManifest() *Manifest {
	return &Manifest{Version: manifestVersion, Files: map[string]Signature{}}
}

// LoadManifest reads the manifest below outputRoot. A missing or unreadable manifest is
// empty, which disables pruning for this run.
func LoadManifest(outputRoot string) *Manifest {
	path := filepath.Join(outputRoot, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Asset manifest unreadable; pruning disabled for this run", logfields.Path(path), logfields.Error(err))
		}
		return newManifest()
	}

	m := newManifest()
	if err := json.Unmarshal(data, m); err != nil || m.Version != manifestVersion {
		slog.Warn("Asset manifest invalid; pruning disabled for this run", logfields.Path(path), logfields.Error(err))
		return newManifest()
	}
	if m.Files == nil {
		m.Files = map[string]Signature{}
	}
	for rel := range m.Files {
		if !validManifestPath(rel) {
			slog.Warn("Ignoring asset manifest entry outside the output root", logfields.Path(path), logfields.Asset(rel))
			delete(m.Files, rel)
		}
	}
	return m
}

// validManifestPath accepts clean, relative, slash-separated paths that stay below the
// output root and do not name the manifest itself.
func validManifestPath(rel string) bool {
	if rel == "" || rel == ManifestName || strings.Contains(rel, "\\") {
		return false
	}
	if path.Clean(rel) != rel || path.IsAbs(rel) {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(rel))
}

// Save writes the manifest below outputRoot through a temp file and rename.
func (m *Manifest) Save(outputRoot string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(outputRoot, ManifestName), bytes.NewReader(data))
}
