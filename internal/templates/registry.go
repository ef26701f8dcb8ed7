// Package templates owns the Handlebars templates of one build: theme partials, one
// template per page, the helpers available to them and strict-mode enforcement.
package templates

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/aymerick/raymond/ast"
	"github.com/aymerick/raymond/parser"

	"git.home.luguber.info/inful/mllt/internal/catalog"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/logfields"
)

// compiled is a parsed template: the engine form used for evaluation and the syntax tree
// the strict checker walks.
type compiled struct {
	name    string
	source  string
	tpl     *raymond.Template
	program *ast.Program
}

// Registry holds every template of a build. It is populated sequentially (LoadTheme,
// AddPage) and is read-only once rendering starts. Each render evaluates a clone of the
// stored template, so concurrent Render calls are safe.
type Registry struct {
	strict   bool
	partials map[string]*compiled
	pages    map[string]*compiled
	helpers  map[string]HelperFunc
}

// NewRegistry creates an empty registry with the built-in helpers registered.
func NewRegistry(strict bool) *Registry {
	r := &Registry{
		strict:   strict,
		partials: map[string]*compiled{},
		pages:    map[string]*compiled{},
		helpers:  map[string]HelperFunc{},
	}
	r.RegisterHelper(ThemeHelperName, themeHelper)
	return r
}

// Strict reports whether unresolved variables fail a render.
func (r *Registry) Strict() bool { return r.strict }

// RegisterHelper adds a helper available to every page and partial. Registering a name
// twice replaces the earlier helper.
func (r *Registry) RegisterHelper(name string, h HelperFunc) {
	r.helpers[name] = h
}

// LoadTheme registers every template file below root as a partial. The walk is recursive;
// a partial is named by its slash-separated path relative to root without the extension,
// so theme/main.hbs is "main" and theme/layouts/post.hbs is "layouts/post". A missing
// root leaves the registry without partials.
func (r *Registry) LoadTheme(root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		slog.Info("Theme directory not found; no partials registered", logfields.Path(root))
		return nil
	}

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WrapError(err, errors.CategoryTemplateLoad, "failed to walk theme directory").
				Fatal().
				WithContext("path", p).
				Build()
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !catalog.IsTemplate(d.Name()) {
			slog.Debug("Skipping non-template file in theme", logfields.Path(p))
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return errors.WrapError(err, errors.CategoryInternal, "failed to relativize theme path").Fatal().Build()
		}
		source, err := os.ReadFile(p)
		if err != nil {
			return errors.WrapError(err, errors.CategoryTemplateLoad, "failed to read theme partial").
				Fatal().
				WithContext("path", p).
				Build()
		}
		return r.AddPartial(catalog.Identity(rel), string(source), p)
	})
	if walkErr != nil {
		return walkErr
	}

	slog.Debug("Theme loaded", logfields.Path(root), logfields.Count(len(r.partials)))
	return nil
}

// AddPartial parses and registers one partial. origin names the source in errors.
func (r *Registry) AddPartial(name, source, origin string) error {
	c, err := compile(name, source)
	if err != nil {
		return errors.WrapError(err, errors.CategoryTemplateLoad, "failed to parse theme partial").
			Fatal().
			WithContext("partial", name).
			WithContext("path", origin).
			Build()
	}
	r.partials[name] = c
	return nil
}

// AddPage parses a page body and registers it under the page identity.
func (r *Registry) AddPage(page catalog.Page) error {
	c, err := compile(page.Identity, page.Body)
	if err != nil {
		return errors.WrapError(err, errors.CategoryTemplateLoad, "failed to parse content template").
			Fatal().
			WithContext("page", page.Identity).
			WithContext("path", page.SourcePath).
			Build()
	}
	r.pages[page.Identity] = c
	return nil
}

func compile(name, source string) (*compiled, error) {
	tpl, err := raymond.Parse(source)
	if err != nil {
		return nil, err
	}
	program, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	return &compiled{name: name, source: source, tpl: tpl, program: program}, nil
}

// Partials returns the registered partial names, sorted.
func (r *Registry) Partials() []string {
	names := make([]string, 0, len(r.partials))
	for name := range r.partials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPartial reports whether a partial named name is registered.
func (r *Registry) HasPartial(name string) bool {
	_, ok := r.partials[name]
	return ok
}

// Render evaluates the page template registered under identity against bindings.
// In strict mode the template is checked first and the first unresolved variable is
// returned as a RenderError naming the page and the variable path.
func (r *Registry) Render(identity string, bindings map[string]any) (string, error) {
	page, ok := r.pages[identity]
	if !ok {
		return "", errors.RenderError("no template registered for page").
			WithContext("page", identity).
			Build()
	}

	if r.strict {
		if err := newChecker(r, identity, bindings).check(page); err != nil {
			return "", err
		}
	}

	call := &Call{registry: r, identity: identity, bindings: bindings}
	out, err := call.exec(page, bindings)
	if err != nil {
		return "", err
	}
	return out, nil
}
