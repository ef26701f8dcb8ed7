package templates

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/aymerick/raymond/ast"

	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
)

// checker walks a parsed template with the actual bindings and reports the first
// variable that does not resolve. It follows the branches evaluation would take:
// with/each push their argument, if/unless select one branch, partials and theme
// partials are entered with the context they receive when rendered.
type checker struct {
	reg      *Registry
	identity string
	template string
	page     map[string]any
	root     any
	stack    []any
	depth    int
}

func newChecker(r *Registry, identity string, bindings map[string]any) *checker {
	return &checker{
		reg:      r,
		identity: identity,
		template: identity,
		page:     bindings,
		root:     bindings,
		stack:    []any{bindings},
	}
}

func (c *checker) check(page *compiled) error {
	return c.program(page.program)
}

func (c *checker) program(p *ast.Program) error {
	if p == nil {
		return nil
	}
	for _, n := range p.Body {
		if err := c.node(n); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) node(n ast.Node) error {
	switch n := n.(type) {
	case *ast.MustacheStatement:
		return c.expression(n.Expression)
	case *ast.BlockStatement:
		return c.block(n)
	case *ast.PartialStatement:
		return c.partial(n)
	}
	return nil
}

func (c *checker) expression(e *ast.Expression) error {
	if e == nil {
		return nil
	}
	if name := helperName(e); name != "" && c.isHelper(name) {
		return c.arguments(e)
	}
	if len(e.Params) > 0 || e.Hash != nil {
		// Unknown helper; evaluation reports it.
		return nil
	}
	_, err := c.eval(e.Path)
	return err
}

func (c *checker) arguments(e *ast.Expression) error {
	for _, p := range e.Params {
		if _, err := c.eval(p); err != nil {
			return err
		}
	}
	if e.Hash != nil {
		for _, pair := range e.Hash.Pairs {
			if _, err := c.eval(pair.Val); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *checker) block(b *ast.BlockStatement) error {
	e := b.Expression
	name := helperName(e)

	switch {
	case name == ThemeHelperName:
		return c.theme(b)

	case name == "if" || name == "unless":
		if len(e.Params) == 0 {
			return nil
		}
		taken := truthy(c.lenient(e.Params[0])) != (name == "unless")
		if taken {
			return c.program(b.Program)
		}
		return c.program(b.Inverse)

	case name == "with":
		if len(e.Params) == 0 {
			return nil
		}
		v, err := c.eval(e.Params[0])
		if err != nil {
			return err
		}
		if truthy(v) {
			return c.within(v, b.Program)
		}
		return c.program(b.Inverse)

	case name == "each":
		if len(e.Params) == 0 {
			return nil
		}
		v, err := c.eval(e.Params[0])
		if err != nil {
			return err
		}
		return c.iterate(v, b)

	case name == "equal":
		if len(e.Params) != 2 {
			return nil
		}
		a, err := c.eval(e.Params[0])
		if err != nil {
			return err
		}
		z, err := c.eval(e.Params[1])
		if err != nil {
			return err
		}
		if raymond.Str(a) == raymond.Str(z) {
			return c.program(b.Program)
		}
		return c.program(b.Inverse)

	case name != "" && c.isHelper(name):
		if err := c.arguments(e); err != nil {
			return err
		}
		if err := c.program(b.Program); err != nil {
			return err
		}
		return c.program(b.Inverse)
	}

	if len(e.Params) > 0 || e.Hash != nil {
		return nil
	}
	v, err := c.eval(e.Path)
	if err != nil {
		return err
	}
	if isList(v) {
		return c.iterate(v, b)
	}
	if !truthy(v) {
		return c.program(b.Inverse)
	}
	if isMap(v) {
		return c.within(v, b.Program)
	}
	return c.program(b.Program)
}

func (c *checker) iterate(v any, b *ast.BlockStatement) error {
	list, _ := items(v)
	if len(list) == 0 {
		return c.program(b.Inverse)
	}
	for _, item := range list {
		if err := c.within(item, b.Program); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) within(v any, p *ast.Program) error {
	c.stack = append(c.stack, v)
	err := c.program(p)
	c.stack = c.stack[:len(c.stack)-1]
	return err
}

// theme checks the block in the current context and the partial with the bindings it is
// rendered with.
func (c *checker) theme(b *ast.BlockStatement) error {
	e := b.Expression
	if len(e.Params) != 1 {
		return nil
	}
	v, err := c.eval(e.Params[0])
	if err != nil {
		return err
	}
	name := raymond.Str(v)
	partial, ok := c.reg.partials[name]
	if !ok {
		return errors.RenderError("unknown theme partial").
			WithContext("page", c.identity).
			WithContext("partial", name).
			Build()
	}
	if err := c.program(b.Program); err != nil {
		return err
	}
	if c.depth >= maxNesting {
		return nil
	}

	ctx := withContent(c.page, "")
	sub := &checker{
		reg:      c.reg,
		identity: c.identity,
		template: name,
		page:     c.page,
		root:     ctx,
		stack:    []any{ctx},
		depth:    c.depth + 1,
	}
	return sub.program(partial.program)
}

func (c *checker) partial(p *ast.PartialStatement) error {
	var name string
	switch n := p.Name.(type) {
	case *ast.PathExpression:
		name = n.Original
	case *ast.StringLiteral:
		name = n.Value
	default:
		return nil
	}
	partial, ok := c.reg.partials[name]
	if !ok {
		return errors.RenderError("unknown partial").
			WithContext("page", c.identity).
			WithContext("partial", name).
			Build()
	}
	if c.depth >= maxNesting {
		return nil
	}

	ctx := c.stack[len(c.stack)-1]
	if len(p.Params) > 0 {
		v, err := c.eval(p.Params[0])
		if err != nil {
			return err
		}
		ctx = v
	}
	if p.Hash != nil {
		merged := map[string]any{}
		if m, ok := ctx.(map[string]any); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
		for _, pair := range p.Hash.Pairs {
			v, err := c.eval(pair.Val)
			if err != nil {
				return err
			}
			merged[pair.Key] = v
		}
		ctx = merged
	}

	stack := make([]any, len(c.stack), len(c.stack)+1)
	copy(stack, c.stack)
	sub := &checker{
		reg:      c.reg,
		identity: c.identity,
		template: name,
		page:     c.page,
		root:     c.root,
		stack:    append(stack, ctx),
		depth:    c.depth + 1,
	}
	return sub.program(partial.program)
}

// eval returns the value of an argument node, failing on unresolved paths.
func (c *checker) eval(n ast.Node) (any, error) {
	switch n := n.(type) {
	case *ast.PathExpression:
		v, ok := c.resolve(n)
		if !ok {
			return nil, c.unresolved(n)
		}
		return v, nil
	case *ast.SubExpression:
		return nil, c.expression(n.Expression)
	case *ast.StringLiteral:
		return n.Value, nil
	case *ast.BooleanLiteral:
		return n.Value, nil
	case *ast.NumberLiteral:
		return n.Value, nil
	}
	return nil, nil
}

// lenient is eval without failures, used for conditions.
func (c *checker) lenient(n ast.Node) any {
	if p, ok := n.(*ast.PathExpression); ok {
		v, _ := c.resolve(p)
		return v
	}
	v, _ := c.eval(n)
	return v
}

func (c *checker) resolve(p *ast.PathExpression) (any, bool) {
	if p.Data {
		if len(p.Parts) > 0 && p.Parts[0] == "root" {
			return lookup(c.root, p.Parts[1:])
		}
		// @index, @key, @first and @last come from the iterating helper.
		return nil, true
	}
	// Like the engine, an unscoped path whose first part is missing from the selected
	// frame is retried in each enclosing frame; the first frame holding it decides.
	for i := len(c.stack) - 1 - p.Depth; i >= 0; i-- {
		frame := c.stack[i]
		if len(p.Parts) == 0 {
			return frame, true
		}
		if _, ok := lookup(frame, p.Parts[:1]); ok {
			return lookup(frame, p.Parts)
		}
		if p.Scoped {
			break
		}
	}
	return nil, false
}

func (c *checker) unresolved(p *ast.PathExpression) error {
	return errors.RenderError("unresolved variable").
		WithContext("page", c.identity).
		WithContext("variable", pathName(p)).
		WithContext("template", c.template).
		Build()
}

// pathName is the canonical dotted form of a path, segment literals unwrapped.
func pathName(p *ast.PathExpression) string {
	name := strings.Repeat("../", p.Depth) + strings.Join(p.Parts, ".")
	if p.Data {
		return "@" + name
	}
	return name
}

func (c *checker) isHelper(name string) bool {
	if builtinHelpers[name] {
		return true
	}
	_, ok := c.reg.helpers[name]
	return ok
}

// helperName is the name an expression would call, or "" if it cannot be a helper call.
func helperName(e *ast.Expression) string {
	p, ok := e.Path.(*ast.PathExpression)
	if !ok || p.Data || p.Depth > 0 || p.Scoped || len(p.Parts) != 1 {
		return ""
	}
	return p.Parts[0]
}

func lookup(v any, parts []string) (any, bool) {
	for _, part := range parts {
		if v == nil {
			return nil, false
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map:
			if rv.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			e := rv.MapIndex(reflect.ValueOf(part).Convert(rv.Type().Key()))
			if !e.IsValid() {
				return nil, false
			}
			v = e.Interface()
		case reflect.Slice, reflect.Array:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= rv.Len() {
				return nil, false
			}
			v = rv.Index(i).Interface()
		default:
			return nil, false
		}
	}
	return v, true
}

// items lists the elements of a slice, array or map (by sorted key).
func items(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = rv.MapIndex(k).Interface()
		}
		return out, true
	}
	return nil, false
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func isMap(v any) bool {
	return v != nil && reflect.ValueOf(v).Kind() == reflect.Map
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
