package templates

import (
	"github.com/aymerick/raymond"

	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
)

const (
	// ThemeHelperName is the block helper that wraps page content in a theme partial.
	ThemeHelperName = "theme"
	// ContentKey carries the rendered inner block into a transcluded partial.
	ContentKey = "content"

	maxNesting = 32
)

// builtinHelpers are provided by the engine itself.
var builtinHelpers = map[string]bool{
	"if": true, "unless": true, "with": true, "each": true,
	"log": true, "lookup": true, "equal": true,
}

// HelperFunc builds the engine helper for one render. The returned value must be a
// function the engine accepts as a helper; it may use the Call to reach the page
// bindings and the registry.
type HelperFunc func(c *Call) any

// Call is the state of a single page render shared by the helpers it invokes. A Call is
// used by one goroutine only.
type Call struct {
	registry *Registry
	identity string
	bindings map[string]any
	depth    int
	err      error
}

// Identity of the page being rendered.
func (c *Call) Identity() string { return c.identity }

// Bindings are the page's root bindings. Callers must not modify them.
func (c *Call) Bindings() map[string]any { return c.bindings }

// Fail aborts the render with err. Only the first failure is kept.
func (c *Call) Fail(err error) {
	if c.err == nil {
		c.err = err
	}
	panic(err)
}

// Transclude renders the named partial with the page bindings plus content.
func (c *Call) Transclude(name, content string) (string, error) {
	partial, ok := c.registry.partials[name]
	if !ok {
		return "", errors.RenderError("unknown theme partial").
			WithContext("page", c.identity).
			WithContext("partial", name).
			Build()
	}
	if c.depth >= maxNesting {
		return "", errors.RenderError("theme partials nested too deeply").
			WithContext("page", c.identity).
			WithContext("partial", name).
			Build()
	}

	c.depth++
	defer func() { c.depth-- }()
	return c.exec(partial, withContent(c.bindings, content))
}

// exec evaluates a clone of t carrying every partial and the helpers bound to c.
func (c *Call) exec(t *compiled, ctx map[string]any) (string, error) {
	tpl := t.tpl.Clone()
	for name, p := range c.registry.partials {
		tpl.RegisterPartialTemplate(name, p.tpl)
	}
	for name, h := range c.registry.helpers {
		tpl.RegisterHelper(name, h(c))
	}

	out, err := tpl.Exec(ctx)
	if c.err != nil {
		return "", c.err
	}
	if err != nil {
		if _, ok := errors.AsClassified(err); ok {
			return "", err
		}
		return "", errors.WrapError(err, errors.CategoryRender, "template evaluation failed").
			WithContext("page", c.identity).
			WithContext("template", t.name).
			Build()
	}
	return out, nil
}

// withContent copies bindings and adds the content key.
func withContent(bindings map[string]any, content string) map[string]any {
	out := make(map[string]any, len(bindings)+1)
	for k, v := range bindings {
		out[k] = v
	}
	out[ContentKey] = content
	return out
}

// themeHelper implements {{#theme "name"}}...{{/theme}}: the block is rendered in the
// current context and handed to the partial as content.
func themeHelper(c *Call) any {
	return func(name any, options *raymond.Options) raymond.SafeString {
		inner := options.Fn()
		out, err := c.Transclude(raymond.Str(name), inner)
		if err != nil {
			c.Fail(err)
		}
		return raymond.SafeString(out)
	}
}
