package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/util/sets"
)

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
}

func TestIdentity_PureFunctionOfRelativePath(t *testing.T) {
	require.Equal(t, "index", Identity("index.hbs"))
	require.Equal(t, "blog/2024/hello", Identity(filepath.Join("blog", "2024", "hello.hbs")))
	require.Equal(t, "notes/v1.2", Identity("notes/v1.2.hbs"))
	require.Equal(t, "caf\u00e9", Identity("cafe\u0301.hbs"))
}

func TestBuild_DiscoversTemplatesOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.hbs", "home")
	writeFile(t, root, "blog/post.hbs", "post")
	writeFile(t, root, "blog/Upper.HBS", "upper")
	writeFile(t, root, "blog/notes.txt", "ignored")
	writeFile(t, root, ".drafts/wip.hbs", "hidden")
	writeFile(t, root, ".hidden.hbs", "hidden")

	c, err := Build(root)
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	var ids []string
	for _, p := range c.Pages() {
		ids = append(ids, p.Identity)
	}
	require.Equal(t, []string{"blog/Upper", "blog/post", "index"}, ids)

	p, ok := c.Lookup("blog/post")
	require.True(t, ok)
	require.Equal(t, "post", p.Body)
	require.Equal(t, filepath.Join(root, "blog", "post.hbs"), p.SourcePath)
	require.Equal(t, filepath.Join("out", "blog", "post.html"), p.OutputPath("out"))
}

func TestBuild_DeterministicOrder(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"z.hbs", "a/b.hbs", "a.hbs", "m/n/o.hbs"} {
		writeFile(t, root, rel, rel)
	}

	first, err := Build(root)
	require.NoError(t, err)
	second, err := Build(root)
	require.NoError(t, err)
	require.Equal(t, first.Pages(), second.Pages())
	require.Equal(t, "a", first.Pages()[0].Identity)
}

func TestBuild_IdentityCollisionIsCatalogError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.hbs", "one")
	writeFile(t, root, "index.HBS", "two")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	if len(entries) < 2 {
		t.Skip("case-insensitive filesystem")
	}

	_, err = Build(root)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryCatalog))
	ce, _ := errors.AsClassified(err)
	require.True(t, ce.IsFatal())
	id, _ := ce.Context().GetString("identity")
	require.Equal(t, "index", id)
}

func TestBuild_NormalizationCollisionIsCatalogError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "caf\u00e9.hbs", "precomposed")
	writeFile(t, root, "cafe\u0301.hbs", "decomposed")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	if len(entries) < 2 {
		t.Skip("filesystem normalizes file names")
	}

	_, err = Build(root)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryCatalog))
}

func TestBuild_MissingRootIsCatalogError(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryCatalog))
}

func TestOutputSet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.hbs", "")
	writeFile(t, root, "docs/a.hbs", "")

	c, err := Build(root)
	require.NoError(t, err)
	require.Equal(t, []string{"docs/a.html", "index.html"}, sets.Sorted(c.OutputSet()))
}
