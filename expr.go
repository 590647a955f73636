package sttpl

import (
	"errors"
	"fmt"
)

// ErrTemplateNotFound is returned when a template call names an unknown template.
var ErrTemplateNotFound = errors.New("template not found")

type expr interface {
	eval(ctx *renderCtx) (any, error)
}

type attrExpr struct{ name string }

func (e attrExpr) eval(ctx *renderCtx) (any, error) {
	v, _ := ctx.lookup(e.name)
	return v, nil
}

// propExpr is obj.name, or obj.(expr) when the property name is computed.
type propExpr struct {
	obj     expr
	name    string
	dynamic expr
}

func (e propExpr) eval(ctx *renderCtx) (any, error) {
	v, err := e.obj.eval(ctx)
	if err != nil || v == nil {
		return nil, err
	}
	name := e.name
	if e.dynamic != nil {
		nv, err := e.dynamic.eval(ctx)
		if err != nil {
			return nil, err
		}
		if name, err = stringOf(ctx, nv); err != nil {
			return nil, err
		}
	}
	pv, _ := property(v, name)
	return pv, nil
}

type stringExpr struct{ s string }

func (e stringExpr) eval(*renderCtx) (any, error) { return e.s, nil }

// listExpr is [a, b, ...]; iterable elements are flattened one level.
type listExpr struct{ elems []expr }

func (e listExpr) eval(ctx *renderCtx) (any, error) {
	list := make([]any, 0, len(e.elems))
	for _, el := range e.elems {
		v, err := el.eval(ctx)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if isIterable(v) {
			if err := iterate(v, func(x any) error {
				list = append(list, x)
				return nil
			}); err != nil {
				return nil, err
			}
			continue
		}
		list = append(list, v)
	}
	return list, nil
}

// subtemplateExpr is an inline {args | body} value.
type subtemplateExpr struct{ tmpl *Template }

func (e subtemplateExpr) eval(*renderCtx) (any, error) {
	return e.tmpl.Instance(), nil
}

// callExpr is name(args): an instance of a group template with its formal
// parameters bound positionally.
type callExpr struct {
	name string
	args []expr
	line int
	col  int
}

func (e callExpr) eval(ctx *renderCtx) (any, error) {
	t, err := resolveTemplate(ctx, e.name)
	if err != nil {
		return nil, fmt.Errorf("%d:%d: %w", e.line, e.col, err)
	}
	if len(e.args) > len(t.params) {
		return nil, fmt.Errorf("%d:%d: template %s takes %d arguments, got %d", e.line, e.col, e.name, len(t.params), len(e.args))
	}
	in := t.Instance()
	for i, a := range e.args {
		v, err := a.eval(ctx)
		if err != nil {
			return nil, err
		}
		in.Set(t.params[i], v)
	}
	return in, nil
}

func resolveTemplate(ctx *renderCtx, name string) (*Template, error) {
	g := ctx.group()
	if g == nil {
		return nil, fmt.Errorf("%w: %s (no group)", ErrTemplateNotFound, name)
	}
	t, ok := g.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t, nil
}

// templateRef is the right-hand side of an application: an inline
// subtemplate or a named template with extra arguments.
type templateRef struct {
	sub  *Template
	name string
	args []expr
	line int
	col  int
}

func (r templateRef) instantiate(ctx *renderCtx, elem any, i int) (*Instance, error) {
	t := r.sub
	if t == nil {
		var err error
		if t, err = resolveTemplate(ctx, r.name); err != nil {
			return nil, fmt.Errorf("%d:%d: %w", r.line, r.col, err)
		}
	}
	in := t.Instance()
	if len(t.params) == 0 {
		in.Set("it", elem)
	} else {
		in.Set(t.params[0], elem)
	}
	for j, a := range r.args {
		if j+1 >= len(t.params) {
			return nil, fmt.Errorf("%d:%d: too many arguments for template %s", r.line, r.col, t.name)
		}
		v, err := a.eval(ctx)
		if err != nil {
			return nil, err
		}
		in.Set(t.params[j+1], v)
	}
	in.Set("i", i+1)
	in.Set("i0", i)
	return in, nil
}

// mapExpr is obj:t1(),t2(): the templates are applied round-robin to the
// non-nil elements of obj.
type mapExpr struct {
	obj       expr
	templates []templateRef
}

func (e mapExpr) eval(ctx *renderCtx) (any, error) {
	v, err := e.obj.eval(ctx)
	if err != nil || v == nil {
		return nil, err
	}
	results := make([]any, 0, 8)
	i := 0
	err = iterate(v, func(elem any) error {
		if elem == nil {
			return nil
		}
		in, err := e.templates[i%len(e.templates)].instantiate(ctx, elem, i)
		if err != nil {
			return err
		}
		results = append(results, in)
		i++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

type notExpr struct{ x expr }

func (e notExpr) eval(ctx *renderCtx) (any, error) {
	v, err := e.x.eval(ctx)
	return !truthy(v), err
}

type andExpr struct{ left, right expr }

func (e andExpr) eval(ctx *renderCtx) (any, error) {
	l, err := e.left.eval(ctx)
	if err != nil || !truthy(l) {
		return false, err
	}
	r, err := e.right.eval(ctx)
	return truthy(r), err
}

type orExpr struct{ left, right expr }

func (e orExpr) eval(ctx *renderCtx) (any, error) {
	l, err := e.left.eval(ctx)
	if err != nil {
		return false, err
	}
	if truthy(l) {
		return true, nil
	}
	r, err := e.right.eval(ctx)
	return truthy(r), err
}

// ----------------------------- Expression options ---------------------------

// exprOptions are the options after ';' in an expression tag.
type exprOptions struct {
	separator expr
	wrap      expr
	wrapSet   bool
	anchor    expr
	anchorSet bool
	null      expr
}

// renderOptions are exprOptions evaluated for one write.
type renderOptions struct {
	separator    string
	hasSeparator bool
	wrap         string
	anchor       bool
	null         any
	hasNull      bool
}

func (o *exprOptions) eval(ctx *renderCtx) (renderOptions, error) {
	var ro renderOptions
	if o.separator != nil {
		v, err := o.separator.eval(ctx)
		if err != nil {
			return ro, err
		}
		if ro.separator, err = stringOf(ctx, v); err != nil {
			return ro, err
		}
		ro.hasSeparator = true
	}
	if o.wrapSet {
		ro.wrap = "\n"
		if o.wrap != nil {
			v, err := o.wrap.eval(ctx)
			if err != nil {
				return ro, err
			}
			if ro.wrap, err = stringOf(ctx, v); err != nil {
				return ro, err
			}
		}
	}
	if o.anchorSet {
		ro.anchor = true
		if o.anchor != nil {
			v, err := o.anchor.eval(ctx)
			if err != nil {
				return ro, err
			}
			ro.anchor = truthy(v)
		}
	}
	if o.null != nil {
		v, err := o.null.eval(ctx)
		if err != nil {
			return ro, err
		}
		ro.null, ro.hasNull = v, true
	}
	return ro, nil
}
