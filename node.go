package sttpl

import (
	"errors"
	"fmt"
	"strings"
)

// ----------------------------- AST & runtime --------------------------------

// ErrMaxDepth is returned when nested instances recurse too deeply.
var ErrMaxDepth = errors.New("maximum template nesting depth exceeded")

const maxRenderDepth = 512

type node interface {
	render(ctx *renderCtx, out Writer) (int, error)
}

// renderCtx is one frame of the dynamic scope: the instance being rendered
// and the frame of the instance that embedded it.
type renderCtx struct {
	inst   *Instance
	parent *renderCtx
	depth  int
}

func (ctx *renderCtx) lookup(name string) (any, bool) {
	for c := ctx; c != nil; c = c.parent {
		if v, ok := c.inst.lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}

func (ctx *renderCtx) group() *Group {
	for c := ctx; c != nil; c = c.parent {
		if g := c.inst.tmpl.group; g != nil {
			return g
		}
	}
	return nil
}

type textNode struct{ text string }

func (n textNode) render(_ *renderCtx, out Writer) (int, error) {
	return out.Write(n.text), nil
}

type newlineNode struct{}

func (newlineNode) render(_ *renderCtx, out Writer) (int, error) {
	return out.Write("\n"), nil
}

type exprNode struct {
	expr expr
	opts *exprOptions
}

func (n exprNode) render(ctx *renderCtx, out Writer) (int, error) {
	v, err := n.expr.eval(ctx)
	if err != nil {
		return 0, err
	}
	var ro renderOptions
	if n.opts != nil {
		if ro, err = n.opts.eval(ctx); err != nil {
			return 0, err
		}
	}
	return writeObject(ctx, out, v, &ro)
}

// indentNode applies the leading whitespace of its line to everything the
// body writes after a line break.
type indentNode struct {
	indent string
	body   node
}

func (n indentNode) render(ctx *renderCtx, out Writer) (int, error) {
	out.PushIndentation(n.indent)
	written, err := n.body.render(ctx, out)
	out.PopIndentation()
	return written, err
}

// soloNode is an expression alone on its line: the line break is written
// only when the expression wrote something.
type soloNode struct{ body node }

func (n soloNode) render(ctx *renderCtx, out Writer) (int, error) {
	written, err := n.body.render(ctx, out)
	if err != nil || written == 0 {
		return written, err
	}
	return written + out.Write("\n"), nil
}

type ifBranch struct {
	cond expr
	body node
}

type ifNode struct {
	branches []ifBranch
	els      node
}

func (n ifNode) render(ctx *renderCtx, out Writer) (int, error) {
	for _, b := range n.branches {
		v, err := b.cond.eval(ctx)
		if err != nil {
			return 0, err
		}
		if truthy(v) {
			return b.body.render(ctx, out)
		}
	}
	if n.els != nil {
		return n.els.render(ctx, out)
	}
	return 0, nil
}

type seqNode []node

func (s seqNode) render(ctx *renderCtx, out Writer) (int, error) {
	total := 0
	for _, n := range s {
		written, err := n.render(ctx, out)
		total += written
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func sequence(nodes []node) node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return seqNode(nodes)
}

// ----------------------------- Writing values -------------------------------

// writeObject writes v with its expression options. The anchor, when set,
// covers the whole value; separators go between non-nil elements and the
// wrap check runs before every element.
func writeObject(ctx *renderCtx, out Writer, v any, o *renderOptions) (int, error) {
	if v == nil {
		if !o.hasNull {
			return 0, nil
		}
		v = o.null
	}
	if o.anchor {
		out.PushAnchor(out.Column())
		defer out.PopAnchor()
	}
	if isIterable(v) {
		return writeIterator(ctx, out, v, o)
	}
	return writeValue(ctx, out, v, o)
}

func writeIterator(ctx *renderCtx, out Writer, v any, o *renderOptions) (int, error) {
	n := 0
	seen := false
	err := iterate(v, func(elem any) error {
		if elem == nil {
			if !o.hasNull {
				return nil
			}
			elem = o.null
		}
		if seen && o.hasSeparator {
			n += out.WriteSeparator(o.separator)
		}
		seen = true
		var written int
		var err error
		if isIterable(elem) {
			written, err = writeIterator(ctx, out, elem, o)
		} else {
			written, err = writeValue(ctx, out, elem, o)
		}
		n += written
		return err
	})
	return n, err
}

func writeValue(ctx *renderCtx, out Writer, v any, o *renderOptions) (int, error) {
	n := 0
	if in, ok := v.(*Instance); ok {
		if o.wrap != "" {
			n += out.WriteWrap(o.wrap)
		}
		written, err := renderNested(ctx, out, in)
		return n + written, err
	}
	sb := stringBuilderPool.Get().(*strings.Builder)
	defer stringBuilderPool.Put(sb)
	s := toString(v, sb)
	if o.wrap != "" {
		n += out.WriteWrap(o.wrap)
	}
	return n + out.Write(s), nil
}

func renderNested(ctx *renderCtx, out Writer, in *Instance) (int, error) {
	if in == nil {
		return 0, nil
	}
	if ctx.depth >= maxRenderDepth {
		return 0, fmt.Errorf("rendering %s: %w", in.tmpl.name, ErrMaxDepth)
	}
	child := getRenderCtx(in, ctx)
	defer putRenderCtx(child)
	return in.tmpl.root.render(child, out)
}

// stringOf renders v on its own, without wrapping, for option values.
func stringOf(ctx *renderCtx, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	}
	var sb strings.Builder
	out := NewAutoIndentWriter(&sb)
	if _, err := writeObject(ctx, out, v, &renderOptions{}); err != nil {
		return "", err
	}
	return sb.String(), nil
}
