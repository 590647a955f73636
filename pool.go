package sttpl

import (
	"io"
	"strings"
	"sync"
)

// ----------------------------- Buffer, writer and context pools -------------

var stringBuilderPool = sync.Pool{
	New: func() any { return &strings.Builder{} },
}

var writerPool = sync.Pool{
	New: func() any { return NewAutoIndentWriter(io.Discard) },
}

var renderCtxPool = sync.Pool{
	New: func() any { return &renderCtx{} },
}

func getWriter(w io.Writer, newline string, lineWidth int) *AutoIndentWriter {
	out := writerPool.Get().(*AutoIndentWriter)
	out.reset(w, newline, lineWidth)
	return out
}

func putWriter(out *AutoIndentWriter) {
	out.out = io.Discard
	writerPool.Put(out)
}

func getRenderCtx(in *Instance, parent *renderCtx) *renderCtx {
	ctx := renderCtxPool.Get().(*renderCtx)
	ctx.inst = in
	ctx.parent = parent
	ctx.depth = 0
	if parent != nil {
		ctx.depth = parent.depth + 1
	}
	return ctx
}

func putRenderCtx(ctx *renderCtx) {
	ctx.inst = nil
	ctx.parent = nil
	renderCtxPool.Put(ctx)
}

// ----------------------------- Template pools for hot paths -----------------

// InstancePool hands out instances of one template for repeated renders.
type InstancePool struct {
	tmpl *Template
	pool sync.Pool
}

func NewInstancePool(t *Template) *InstancePool {
	ip := &InstancePool{tmpl: t}
	ip.pool.New = func() any { return t.Instance() }
	return ip
}

// Get returns an instance with no attributes set.
func (ip *InstancePool) Get() *Instance {
	return ip.pool.Get().(*Instance)
}

// Put clears in and returns it to the pool.
func (ip *InstancePool) Put(in *Instance) {
	if in == nil || in.tmpl != ip.tmpl {
		return
	}
	clear(in.attrs)
	in.data = nil
	ip.pool.Put(in)
}

// WarmupPools pre-allocates writers and builders.
func WarmupPools() {
	for i := 0; i < 10; i++ {
		sb := stringBuilderPool.Get().(*strings.Builder)
		sb.Grow(512)
		stringBuilderPool.Put(sb)

		writerPool.Put(writerPool.Get())
		renderCtxPool.Put(renderCtxPool.Get())
	}
}
