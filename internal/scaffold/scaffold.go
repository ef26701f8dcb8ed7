// Package scaffold creates a sample site: configuration, theme partials, a content page
// and an empty asset directory.
package scaffold

import (
	"embed"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/logfields"
)

//go:embed sample
var sample embed.FS

const sampleRoot = "sample"

// Report lists what Instantiate wrote, relative to the site directory.
type Report struct {
	Created     []string
	Overwritten []string
}

// Instantiate writes the sample site into dir. A non-empty dir, or an existing file the
// sample would overwrite, is an error unless force is set.
func Instantiate(dir string, force bool) (*Report, error) {
	report := &Report{}
	if err := ensureDir(dir, force); err != nil {
		return nil, err
	}

	encoded, err := config.Default().Encode()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to encode sample configuration").Build()
	}
	if err := writeFile(report, dir, config.DefaultFile, encoded, force); err != nil {
		return nil, err
	}

	for _, sub := range []string{"theme", "content"} {
		if err := ensureDir(filepath.Join(dir, sub), force); err != nil {
			return nil, err
		}
	}
	err = fs.WalkDir(sample, sampleRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := sample.ReadFile(p)
		if err != nil {
			return err
		}
		rel := path.Clean(p[len(sampleRoot)+1:])
		return writeFile(report, dir, rel, data, force)
	})
	if err != nil {
		return nil, err
	}

	if err := ensureDir(filepath.Join(dir, "assets"), force); err != nil {
		return nil, err
	}
	return report, nil
}

// ensureDir creates dir, accepting an existing empty directory, or a non-empty one
// when force is set.
func ensureDir(dir string, force bool) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to create directory").
				WithContext("path", dir).
				Build()
		}
		return nil
	case err != nil:
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to inspect directory").
			WithContext("path", dir).
			Build()
	case !info.IsDir():
		return errors.ValidationError("path exists and is not a directory").
			WithContext("path", dir).
			Build()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to read directory").
			WithContext("path", dir).
			Build()
	}
	if len(entries) > 0 && !force {
		return errors.ValidationError("directory is not empty; use --force to overwrite existing files").
			WithContext("path", dir).
			Build()
	}
	return nil
}

func writeFile(report *Report, dir, rel string, data []byte, force bool) error {
	target := filepath.Join(dir, filepath.FromSlash(rel))
	_, err := os.Stat(target)
	exists := err == nil
	if exists {
		if !force {
			return errors.ValidationError("file already exists; use --force to overwrite").
				WithContext("path", target).
				Build()
		}
		slog.Warn("Overwriting existing file", logfields.Path(target))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create directory").
			WithContext("path", filepath.Dir(target)).
			Build()
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write file").
			WithContext("path", target).
			Build()
	}

	if exists {
		report.Overwritten = append(report.Overwritten, rel)
	} else {
		report.Created = append(report.Created, rel)
	}
	return nil
}
