// Package catalog discovers the pages of a site: every template file under the content
// root becomes one page whose identity is derived from its location.
package catalog

import (
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/logfields"
	"git.home.luguber.info/inful/mllt/internal/util/sets"
)

// TemplateExt is the extension of content and theme templates.
const TemplateExt = ".hbs"

// Page is one unit of renderable content.
type Page struct {
	// Identity is the slash-separated path of the source relative to the content root,
	// without extension, in Unicode NFC.
	Identity   string
	SourcePath string
	Body       string
}

// OutputPath is where the page renders to below the output root.
func (p Page) OutputPath(outputRoot string) string {
	return filepath.Join(outputRoot, filepath.FromSlash(p.Identity)+".html")
}

// OutputRel is the output path relative to the output root, slash-separated.
func (p Page) OutputRel() string {
	return p.Identity + ".html"
}

// Catalog is the ordered set of pages of one build.
type Catalog struct {
	root  string
	pages []Page
	index map[string]int
}

// IsTemplate reports whether name carries the template extension (case-insensitive).
func IsTemplate(name string) bool {
	return strings.EqualFold(filepath.Ext(name), TemplateExt)
}

// Identity derives a page identity from a path relative to the content root. It is a pure
// function of rel: separators become '/', the extension is stripped and the result is
// normalized to NFC so identities agree across filesystems that decompose names.
func Identity(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	return norm.NFC.String(rel)
}

// Build walks contentRoot once and returns its pages sorted by identity. Hidden files and
// directories are skipped. A missing root or an identity shared by two files is a fatal
// CatalogError.
func Build(contentRoot string) (*Catalog, error) {
	info, err := os.Stat(contentRoot)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCatalog, "content directory is not readable").
			Fatal().
			WithContext("path", contentRoot).
			Build()
	}
	if !info.IsDir() {
		return nil, errors.CatalogError("content path is not a directory").
			WithContext("path", contentRoot).
			Build()
	}

	c := &Catalog{root: contentRoot, index: map[string]int{}}
	walkErr := filepath.WalkDir(contentRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WrapError(err, errors.CategoryCatalog, "failed to walk content directory").
				Fatal().
				WithContext("path", p).
				Build()
		}
		if p != contentRoot && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsTemplate(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(contentRoot, p)
		if err != nil {
			return errors.WrapError(err, errors.CategoryInternal, "failed to relativize content path").
				Fatal().
				WithContext("path", p).
				Build()
		}
		return c.add(rel, p)
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(c.pages, func(i, j int) bool { return c.pages[i].Identity < c.pages[j].Identity })
	for i, pg := range c.pages {
		c.index[pg.Identity] = i
	}

	slog.Debug("Content catalog built", logfields.Path(contentRoot), logfields.Count(len(c.pages)))
	return c, nil
}

func (c *Catalog) add(rel, sourcePath string) error {
	id := Identity(rel)
	if existing, ok := c.index[id]; ok {
		return errors.CatalogError("two content files map to the same page identity").
			WithContext("identity", id).
			WithContext("first", c.pages[existing].SourcePath).
			WithContext("second", sourcePath).
			Build()
	}

	body, err := os.ReadFile(sourcePath)
	if err != nil {
		return errors.WrapError(err, errors.CategoryTemplateLoad, "failed to read content template").
			Fatal().
			WithContext("path", sourcePath).
			Build()
	}

	c.index[id] = len(c.pages)
	c.pages = append(c.pages, Page{Identity: id, SourcePath: sourcePath, Body: string(body)})
	return nil
}

// Root returns the content root the catalog was built from.
func (c *Catalog) Root() string { return c.root }

// Pages returns the pages sorted by identity.
func (c *Catalog) Pages() []Page {
	return append([]Page(nil), c.pages...)
}

// Len returns the number of pages.
func (c *Catalog) Len() int { return len(c.pages) }

// Lookup returns the page with the given identity.
func (c *Catalog) Lookup(identity string) (Page, bool) {
	i, ok := c.index[identity]
	if !ok {
		return Page{}, false
	}
	return c.pages[i], true
}

// OutputSet returns the slash-separated output paths of all pages.
func (c *Catalog) OutputSet() sets.Set[string] {
	set := make(sets.Set[string], len(c.pages))
	for _, p := range c.pages {
		set.Add(p.OutputRel())
	}
	return set
}
