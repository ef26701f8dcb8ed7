// Package render evaluates every page of a catalog and writes the results below the
// output root.
package render

import (
	_ "embed"

	"git.home.luguber.info/inful/mllt/internal/catalog"
	"git.home.luguber.info/inful/mllt/internal/config"
)

// Binding names exposed to every page.
const (
	KeySite      = "site"
	KeyPage      = "page"
	KeyParams    = "params"
	KeyNormalize = "_bundled_normalize"
)

//go:embed normalize.min.css
var normalizeCSS string

// NormalizeCSS is the stylesheet bound to _bundled_normalize.
func NormalizeCSS() string { return normalizeCSS }

// Context is the set of automatic variables of one page render.
type Context struct {
	Site      map[string]any
	Page      string
	Params    map[string]any
	Normalize string
}

// NewContext builds the render context of page. Params are copied from settings, so
// templates cannot observe each other's modifications.
func NewContext(settings *config.Settings, page catalog.Page) Context {
	params, _ := settings.Params().Native().(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	return Context{
		Site:      settings.SiteMap(),
		Page:      page.Identity,
		Params:    params,
		Normalize: normalizeCSS,
	}
}

// Bindings returns the context as template data.
func (c Context) Bindings() map[string]any {
	return map[string]any{
		KeySite:      c.Site,
		KeyPage:      c.Page,
		KeyParams:    c.Params,
		KeyNormalize: c.Normalize,
	}
}
