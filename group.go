package sttpl

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ----------------------------- Template groups -------------------------------

// Group is a named set of templates. Template calls such as <row(x)> and
// applications such as <items:row()> resolve their names through the group of
// the template being rendered. A Group is safe for concurrent use.
type Group struct {
	mu        sync.RWMutex
	templates map[string]*Template
	opts      []Option
}

// NewGroup returns an empty group. opts apply to every template it compiles.
func NewGroup(opts ...Option) *Group {
	return &Group{
		templates: make(map[string]*Template),
		opts:      opts,
	}
}

// Define compiles src as the template name with the given formal parameters,
// replacing any previous definition.
func (g *Group) Define(name string, params []string, src string) (*Template, error) {
	opts := make([]Option, 0, len(g.opts)+3)
	opts = append(opts, g.opts...)
	opts = append(opts, WithName(name), WithParams(params...), WithGroup(g))
	t, err := Compile(src, opts...)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.templates[name] = t
	g.mu.Unlock()
	return t, nil
}

// MustDefine is Define that panics on error.
func (g *Group) MustDefine(name string, params []string, src string) *Template {
	t, err := g.Define(name, params, src)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the template registered as name.
func (g *Group) Lookup(name string) (*Template, bool) {
	g.mu.RLock()
	t, ok := g.templates[name]
	g.mu.RUnlock()
	return t, ok
}

// Instance returns a fresh instance of the template name.
func (g *Group) Instance(name string) (*Instance, error) {
	t, ok := g.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t.Instance(), nil
}

// Names returns the registered template names in sorted order.
func (g *Group) Names() []string {
	g.mu.RLock()
	names := make([]string, 0, len(g.templates))
	for name := range g.templates {
		names = append(names, name)
	}
	g.mu.RUnlock()
	sort.Strings(names)
	return names
}

// paramsDecl matches a leading "<!params: a, b!>" comment.
var paramsDecl = regexp.MustCompile(`^\s*\S!\s*params:\s*([A-Za-z/][A-Za-z0-9/]*(?:\s*,\s*[A-Za-z/][A-Za-z0-9/]*)*)\s*!\S`)

// fileParams reads formal parameters declared in a leading comment.
func fileParams(src string) []string {
	m := paramsDecl.FindStringSubmatch(src)
	if m == nil {
		return nil
	}
	parts := strings.Split(m[1], ",")
	params := make([]string, 0, len(parts))
	for _, p := range parts {
		params = append(params, strings.TrimSpace(p))
	}
	return params
}

// templateName maps a file name to a template name: the extension and a
// leading underscore (partials) are dropped.
func templateName(file string) string {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	return strings.TrimPrefix(name, "_")
}

// DefineFile reads path and defines it under its file name.
func (g *Group) DefineFile(path string) (*Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template %q: %w", path, err)
	}
	src := string(content)
	t, err := g.Define(templateName(path), fileParams(src), src)
	if err != nil {
		return nil, fmt.Errorf("compiling template %q: %w", path, err)
	}
	return t, nil
}

// LoadDir defines every file in dir whose name ends in ext (".st" when
// empty). Formal parameters may be declared in a leading comment of the
// form <!params: a, b!>.
func (g *Group) LoadDir(dir, ext string) error {
	if ext == "" {
		ext = ".st"
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		if _, err := g.DefineFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
