// Package assets mirrors the static asset tree into the output directory. Only files
// whose freshness signature changed are copied, and with pruning enabled only files a
// previous sync recorded are ever deleted.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/logfields"
)

// Entry is one regular file below the asset root.
type Entry struct {
	// Rel is the slash-separated path relative to the asset root.
	Rel     string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

// Signature decides whether two files are the same for synchronization purposes.
type Signature struct {
	Size    int64  `json:"size"`
	ModTime int64  `json:"mtime_ns"`
	SHA256  string `json:"sha256,omitempty"`
}

// Equal compares the fields both signatures carry. The hash only takes part when both
// sides have one, which is the case in checksum mode.
func (s Signature) Equal(o Signature) bool {
	if s.Size != o.Size {
		return false
	}
	if s.SHA256 != "" && o.SHA256 != "" {
		return s.SHA256 == o.SHA256
	}
	return s.ModTime == o.ModTime
}

// Scan lists the regular files below root sorted by relative path. Symlinks to regular
// files are followed. A missing root yields no entries.
func Scan(root string) ([]Entry, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		slog.Debug("Asset directory not found; nothing to sync", logfields.Path(root))
		return nil, nil
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if info, err = os.Stat(p); err != nil {
				slog.Warn("Skipping dangling asset symlink", logfields.Path(p), logfields.Error(err))
				return nil
			}
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Rel:     filepath.ToSlash(rel),
			Size:    info.Size(),
			Mode:    info.Mode().Perm(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to scan asset directory").
			Fatal().
			WithContext("path", root).
			Build()
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Rel < entries[j].Rel })
	return entries, nil
}

// signatureOf computes the signature of the file at path in the given mode.
func signatureOf(path string, info fs.FileInfo, mode config.AssetCompare) (Signature, error) {
	sig := Signature{Size: info.Size(), ModTime: info.ModTime().UnixNano()}
	if mode != config.AssetCompareChecksum {
		return sig, nil
	}
	sum, err := hashFile(path)
	if err != nil {
		return Signature{}, err
	}
	sig.SHA256 = sum
	return sig, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
