package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mllt/internal/config"
)

// Site is a site tree under a temporary directory: a config file plus content, theme and
// asset directories laid out the way config.Resolve defaults expect them.
type Site struct {
	t    *testing.T
	Root string
}

// NewSite creates an empty site with a minimal mllt.toml.
func NewSite(t *testing.T) *Site {
	t.Helper()
	s := &Site{t: t, Root: t.TempDir()}
	return s.Config("[site]\n")
}

// Config replaces mllt.toml.
func (s *Site) Config(toml string) *Site {
	return s.Write(config.DefaultFile, toml)
}

// Page writes content/<identity>.hbs.
func (s *Site) Page(identity, body string) *Site {
	return s.Write("content/"+identity+".hbs", body)
}

// Partial writes theme/<name>.hbs.
func (s *Site) Partial(name, body string) *Site {
	return s.Write("theme/"+name+".hbs", body)
}

// Asset writes assets/<rel>.
func (s *Site) Asset(rel, data string) *Site {
	return s.Write("assets/"+rel, data)
}

// Write creates the file at the slash-separated path rel, parents included.
func (s *Site) Write(rel, content string) *Site {
	s.t.Helper()
	path := s.Path(rel)
	require.NoError(s.t, os.MkdirAll(filepath.Dir(path), testDirPermissions))
	require.NoError(s.t, os.WriteFile(path, []byte(content), testFilePermissions))
	return s
}

// Remove deletes rel and everything below it.
func (s *Site) Remove(rel string) *Site {
	s.t.Helper()
	require.NoError(s.t, os.RemoveAll(s.Path(rel)))
	return s
}

// Path returns the absolute path of rel.
func (s *Site) Path(rel string) string {
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

// ConfigPath is the path of mllt.toml.
func (s *Site) ConfigPath() string {
	return s.Path(config.DefaultFile)
}

// Settings loads mllt.toml and resolves it with cli.
func (s *Site) Settings(cli config.Overrides) *config.Settings {
	s.t.Helper()
	doc, err := config.Load(s.ConfigPath())
	require.NoError(s.t, err)
	settings, err := config.Resolve(doc, cli)
	require.NoError(s.t, err)
	return settings
}

// Output returns assertions over the output directory of the resolved settings.
func (s *Site) Output(settings *config.Settings) *FileAssertions {
	return NewFileAssertions(s.t, settings.OutputDir())
}
