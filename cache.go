package sttpl

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ----------------------------- Bounded LRU -----------------------------------

// lru is a string-keyed map holding at most max entries. The least recently
// used entry is evicted first. A max of zero means unbounded.
type lru[V any] struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[string]*list.Element
}

type lruEntry[V any] struct {
	key string
	val V
}

func newLRU[V any](limit int) *lru[V] {
	return &lru[V]{
		max:   limit,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *lru[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*lruEntry[V]).val, true
	}
	var zero V
	return zero, false
}

func (c *lru[V]) put(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry[V]).val = val
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, val: val})
	for c.max > 0 && c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry[V]).key)
	}
}

func (c *lru[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *lru[V]) clear() {
	c.mu.Lock()
	c.order.Init()
	clear(c.items)
	c.mu.Unlock()
}

// optionsKey identifies the compile options that change what Compile
// produces. Groups are compared by identity.
func optionsKey(co compileOptions) string {
	return fmt.Sprintf("%s\x00%q%q|%d|%q|%s|%p", co.name, co.startDelim, co.stopDelim,
		co.lineWidth, co.newline, strings.Join(co.params, ","), co.group)
}

// ----------------------------- Compile cache ---------------------------------

// CompileCache memoizes Compile by source and options.
type CompileCache struct {
	entries *lru[*Template]
}

var globalCompileCache = NewCompileCache(500)

// NewCompileCache returns a cache holding at most maxSize templates.
func NewCompileCache(maxSize int) *CompileCache {
	return &CompileCache{entries: newLRU[*Template](maxSize)}
}

// CompileCached compiles src through a process-wide cache.
func CompileCached(src string, opts ...Option) (*Template, error) {
	return globalCompileCache.Compile(src, opts...)
}

// Compile returns the cached template for src and opts, compiling it on a
// miss. Failed compiles are not cached.
func (cc *CompileCache) Compile(src string, opts ...Option) (*Template, error) {
	co := defaultCompileOptions()
	for _, o := range opts {
		o(&co)
	}
	key := optionsKey(co) + "\x00" + src
	if t, ok := cc.entries.get(key); ok {
		return t, nil
	}
	t, err := compile(src, co)
	if err != nil {
		return nil, err
	}
	cc.entries.put(key, t)
	return t, nil
}

// Len returns the number of cached templates.
func (cc *CompileCache) Len() int { return cc.entries.len() }

// ----------------------------- File cache ------------------------------------

// FileCache compiles template files and keeps them until the file, one of
// its partials or its directory is modified.
type FileCache struct {
	entries *lru[*fileEntry]
}

// fileEntry is a compiled file and the modification times it was built from.
type fileEntry struct {
	tmpl *Template
	deps map[string]time.Time
}

// stale reports whether any dependency changed or disappeared.
func (e *fileEntry) stale() bool {
	for path, mt := range e.deps {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Equal(mt) {
			return true
		}
	}
	return false
}

var globalFileCache = NewFileCache(1000)

// NewFileCache returns a cache holding at most maxSize compiled files.
func NewFileCache(maxSize int) *FileCache {
	return &FileCache{entries: newLRU[*fileEntry](maxSize)}
}

// CompileFile compiles a template file through a process-wide cache.
func CompileFile(filename string, opts ...Option) (*Template, error) {
	return globalFileCache.CompileFile(filename, opts...)
}

// CompileFile compiles filename into a group together with the partials next
// to it. A partial is a file with the same extension whose name starts with
// an underscore; _row.st is callable as <row()>. The group is the one given
// with WithGroup, or a new one. The result is cached per file and options
// until one of the files it was built from changes.
func (fc *FileCache) CompileFile(filename string, opts ...Option) (*Template, error) {
	co := defaultCompileOptions()
	for _, o := range opts {
		o(&co)
	}
	key := filepath.Clean(filename) + "\x00" + optionsKey(co)
	if e, ok := fc.entries.get(key); ok && !e.stale() {
		return e.tmpl, nil
	}

	e, err := compileFile(filename, co, opts)
	if err != nil {
		return nil, err
	}
	fc.entries.put(key, e)
	return e.tmpl, nil
}

// Len returns the number of cached files.
func (fc *FileCache) Len() int { return fc.entries.len() }

// ClearCache drops every cached file.
func (fc *FileCache) ClearCache() { fc.entries.clear() }

func compileFile(filename string, co compileOptions, opts []Option) (*fileEntry, error) {
	e := &fileEntry{deps: make(map[string]time.Time)}
	stamp := func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		e.deps[path] = info.ModTime()
		return nil
	}
	if err := stamp(filename); err != nil {
		return nil, fmt.Errorf("template file %q: %w", filename, err)
	}

	g := co.group
	if g == nil {
		g = NewGroup(opts...)
	}
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)
	ext := filepath.Ext(base)

	// New partials show up as a directory change.
	_ = stamp(dir)
	if entries, err := os.ReadDir(dir); err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || name == base || !strings.HasPrefix(name, "_") || filepath.Ext(name) != ext {
				continue
			}
			if templateName(name) == templateName(base) {
				continue
			}
			path := filepath.Join(dir, name)
			_ = stamp(path)
			// A broken partial only fails the templates that call it.
			_, _ = g.DefineFile(path)
		}
	}

	t, err := g.DefineFile(filename)
	if err != nil {
		return nil, err
	}
	e.tmpl = t
	return e, nil
}
