package sttpl

import (
	"fmt"
	"io"
	"strings"
)

// ----------------------------- Public API -----------------------------------

// Template is a compiled template. It is immutable and may be rendered
// concurrently.
type Template struct {
	name   string
	src    string
	root   node
	params []string
	group  *Group
	opts   compileOptions
}

type compileOptions struct {
	name       string
	startDelim rune
	stopDelim  rune
	lineWidth  int
	newline    string
	params     []string
	group      *Group
}

func defaultCompileOptions() compileOptions {
	return compileOptions{
		startDelim: '<',
		stopDelim:  '>',
		lineWidth:  NoWrap,
		newline:    "\n",
	}
}

// Option configures compilation and the defaults used by Render.
type Option func(*compileOptions)

// WithDelims sets the expression delimiters.
func WithDelims(start, stop rune) Option {
	return func(co *compileOptions) {
		co.startDelim = start
		co.stopDelim = stop
	}
}

// WithLineWidth sets the wrap width used by Render and RenderString.
func WithLineWidth(width int) Option {
	return func(co *compileOptions) { co.lineWidth = width }
}

// WithNewline sets the newline written for every line break.
func WithNewline(nl string) Option {
	return func(co *compileOptions) { co.newline = nl }
}

// WithParams declares the formal parameters bound positionally by template calls.
func WithParams(names ...string) Option {
	return func(co *compileOptions) { co.params = append([]string(nil), names...) }
}

// WithGroup resolves template calls such as <header()> through g.
func WithGroup(g *Group) Option {
	return func(co *compileOptions) { co.group = g }
}

// WithName names the template in error messages.
func WithName(name string) Option {
	return func(co *compileOptions) { co.name = name }
}

// Compile parses src into a Template.
func Compile(src string, opts ...Option) (*Template, error) {
	co := defaultCompileOptions()
	for _, o := range opts {
		o(&co)
	}
	return compile(src, co)
}

func compile(src string, co compileOptions) (*Template, error) {
	name := co.name
	if name == "" {
		name = "anonymous"
	}
	stream := NewNamedStringStream(name, src)
	lex := NewLexer(stream, WithDelimiters(co.startDelim, co.stopDelim))
	tokens, err := lex.All()
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	t := &Template{
		name:   name,
		src:    src,
		params: co.params,
		group:  co.group,
		opts:   co,
	}
	p := newParser(tokens, t)
	root, err := p.parseTemplate()
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	t.root = root
	return t, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(src string, opts ...Option) *Template {
	t, err := Compile(src, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Name() string { return t.name }

// Source returns the text the template was compiled from.
func (t *Template) Source() string { return t.src }

// Params returns the formal parameter names.
func (t *Template) Params() []string { return append([]string(nil), t.params...) }

func (t *Template) Group() *Group { return t.group }

func (t *Template) LineWidth() int { return t.opts.lineWidth }

func (t *Template) Delims() (rune, rune) { return t.opts.startDelim, t.opts.stopDelim }

// Tokens rescans the template source.
func (t *Template) Tokens() ([]Token, error) {
	return Tokenize(t.src, WithDelimiters(t.opts.startDelim, t.opts.stopDelim))
}

// Instance returns a fresh instance with no attributes set.
func (t *Template) Instance() *Instance {
	return &Instance{tmpl: t}
}

// Render executes the template with data as the root attribute source.
// Data may be a map, a struct or a pointer to one.
func (t *Template) Render(w io.Writer, data any) error {
	return t.RenderWidth(w, data, t.opts.lineWidth)
}

// RenderWidth is Render with an explicit line width.
func (t *Template) RenderWidth(w io.Writer, data any, lineWidth int) error {
	out := getWriter(w, t.opts.newline, lineWidth)
	defer putWriter(out)
	in := &Instance{tmpl: t, data: data}
	return in.Write(out)
}

// RenderString renders into a pooled buffer and returns a string.
func (t *Template) RenderString(data any) (string, error) {
	sb := stringBuilderPool.Get().(*strings.Builder)
	sb.Reset()
	defer stringBuilderPool.Put(sb)
	if err := t.Render(sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RenderToDiscard renders to io.Discard, for benchmarks.
func (t *Template) RenderToDiscard(data any) error {
	return t.Render(io.Discard, data)
}

// ----------------------------- Instances ------------------------------------

// attrList is the value of an attribute that was added more than once.
type attrList []any

// Instance is a template plus its attribute values. Instances may be used
// as attribute values of other instances; they render into the enclosing
// writer and see the attributes of the instances enclosing them.
type Instance struct {
	tmpl  *Template
	attrs map[string]any
	data  any
}

func (in *Instance) Template() *Template { return in.tmpl }

// Add sets name, turning the attribute into a list when it is already set.
func (in *Instance) Add(name string, value any) *Instance {
	if in.attrs == nil {
		in.attrs = make(map[string]any, 4)
	}
	old, ok := in.attrs[name]
	if !ok {
		in.attrs[name] = value
		return in
	}
	if list, isList := old.(attrList); isList {
		in.attrs[name] = append(list, value)
		return in
	}
	in.attrs[name] = attrList{old, value}
	return in
}

// Set replaces the value of name.
func (in *Instance) Set(name string, value any) *Instance {
	if in.attrs == nil {
		in.attrs = make(map[string]any, 4)
	}
	in.attrs[name] = value
	return in
}

// Remove unsets name.
func (in *Instance) Remove(name string) *Instance {
	delete(in.attrs, name)
	return in
}

// Attr returns the value of name set on this instance or its data.
func (in *Instance) Attr(name string) any {
	v, _ := in.lookup(name)
	return v
}

func (in *Instance) lookup(name string) (any, bool) {
	if v, ok := in.attrs[name]; ok {
		return v, true
	}
	if in.data != nil {
		return property(in.data, name)
	}
	return nil, false
}

// Write renders the instance into out.
func (in *Instance) Write(out Writer) error {
	ctx := getRenderCtx(in, nil)
	defer putRenderCtx(ctx)
	if _, err := in.tmpl.root.render(ctx, out); err != nil {
		return err
	}
	return out.Err()
}

// Render renders to a string wrapping at lineWidth (NoWrap disables it).
func (in *Instance) Render(lineWidth int) (string, error) {
	sb := stringBuilderPool.Get().(*strings.Builder)
	sb.Reset()
	defer stringBuilderPool.Put(sb)
	out := getWriter(sb, in.tmpl.opts.newline, lineWidth)
	defer putWriter(out)
	if err := in.Write(out); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (in *Instance) String() string {
	s, err := in.Render(in.tmpl.opts.lineWidth)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", in.tmpl.name, err)
	}
	return s
}
