package sttpl

import (
	"io"
	"strings"
	"unicode/utf8"
)

// ----------------------------- Writers --------------------------------------

// NoWrap disables line wrapping.
const NoWrap = 0

// Writer is the output surface the evaluator renders into. It is the only
// place where line width and indentation are decided.
type Writer interface {
	// Write emits s and returns the number of characters physically written.
	Write(s string) int
	// WriteWrap breaks the line with wrap if the line width is exhausted.
	WriteWrap(wrap string) int
	WriteSeparator(s string) int
	Column() int
	Index() int
	PushIndentation(indent string)
	PopIndentation() string
	PushAnchor(column int)
	PopAnchor() int
	SetLineWidth(width int)
	LineWidth() int
	Err() error
}

// WriterOption configures an AutoIndentWriter.
type WriterOption func(*AutoIndentWriter)

// WithWriterNewline sets the newline emitted for every '\n' (default "\n").
func WithWriterNewline(nl string) WriterOption {
	return func(w *AutoIndentWriter) { w.newline = nl }
}

// WithWriterLineWidth sets the wrap width; 0 or less disables wrapping.
func WithWriterLineWidth(width int) WriterOption {
	return func(w *AutoIndentWriter) { w.SetLineWidth(width) }
}

// AutoIndentWriter indents every line with the concatenated indentation
// stack and pads continuation lines out to the innermost anchor.
type AutoIndentWriter struct {
	out     io.Writer
	newline string

	indents []string
	anchors []int

	column      int
	index       int
	atLineStart bool
	lineWidth   int

	err error
}

// NewAutoIndentWriter returns a writer emitting to out.
func NewAutoIndentWriter(out io.Writer, opts ...WriterOption) *AutoIndentWriter {
	w := &AutoIndentWriter{
		out:         out,
		newline:     "\n",
		atLineStart: true,
		indents:     make([]string, 0, 8),
		anchors:     make([]int, 0, 4),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *AutoIndentWriter) reset(out io.Writer, newline string, lineWidth int) {
	w.out = out
	w.newline = newline
	w.indents = w.indents[:0]
	w.anchors = w.anchors[:0]
	w.column = 0
	w.index = 0
	w.atLineStart = true
	w.err = nil
	w.SetLineWidth(lineWidth)
}

func (w *AutoIndentWriter) SetLineWidth(width int) {
	if width < 0 {
		width = NoWrap
	}
	w.lineWidth = width
}

func (w *AutoIndentWriter) LineWidth() int { return w.lineWidth }
func (w *AutoIndentWriter) Column() int { return w.column }
func (w *AutoIndentWriter) Index() int { return w.index } // bytes emitted
func (w *AutoIndentWriter) Err() error { return w.err }

func (w *AutoIndentWriter) PushIndentation(indent string) {
	w.indents = append(w.indents, indent)
}

func (w *AutoIndentWriter) PopIndentation() string {
	if len(w.indents) == 0 {
		return ""
	}
	top := w.indents[len(w.indents)-1]
	w.indents = w.indents[:len(w.indents)-1]
	return top
}

func (w *AutoIndentWriter) PushAnchor(column int) {
	w.anchors = append(w.anchors, column)
}

func (w *AutoIndentWriter) PopAnchor() int {
	if len(w.anchors) == 0 {
		return 0
	}
	top := w.anchors[len(w.anchors)-1]
	w.anchors = w.anchors[:len(w.anchors)-1]
	return top
}

// Write emits s. A '\n' is written as the configured newline; the
// indentation for the new line is emitted lazily, before its first character,
// so blank lines carry no trailing whitespace. '\r' is dropped.
func (w *AutoIndentWriter) Write(s string) int {
	n := 0
	for _, c := range s {
		switch c {
		case '\r':
			continue
		case '\n':
			w.emit(w.newline)
			n += len(w.newline)
			w.column = 0
			w.atLineStart = true
			continue
		}
		if w.atLineStart {
			n += w.indent()
			w.atLineStart = false
		}
		w.emitRune(c)
		n++
		w.column++
	}
	return n
}

func (w *AutoIndentWriter) WriteSeparator(s string) int { return w.Write(s) }

// WriteWrap writes wrap only once the current line has reached the line
// width. Each '\n' in wrap is followed by the indentation and anchor padding
// right away.
func (w *AutoIndentWriter) WriteWrap(wrap string) int {
	if w.lineWidth == NoWrap || wrap == "" || w.atLineStart || w.column < w.lineWidth {
		return 0
	}
	n := 0
	for _, c := range wrap {
		if c == '\n' {
			w.emit(w.newline)
			n += len(w.newline)
			w.column = 0
			n += w.indent()
			continue
		}
		w.emitRune(c)
		n++
		w.column++
	}
	return n
}

// indent writes the indentation stack, then spaces up to the innermost
// anchor when it lies beyond the indentation.
func (w *AutoIndentWriter) indent() int {
	n := 0
	for _, ind := range w.indents {
		w.emit(ind)
		n += len([]rune(ind))
	}
	if len(w.anchors) > 0 {
		if anchor := w.anchors[len(w.anchors)-1]; anchor > n {
			pad := anchor - n
			w.emit(strings.Repeat(" ", pad))
			n += pad
		}
	}
	w.column += n
	return n
}

func (w *AutoIndentWriter) emit(s string) {
	if s == "" {
		return
	}
	w.index += len(s)
	if w.err != nil {
		return
	}
	if _, err := io.WriteString(w.out, s); err != nil {
		w.err = err
	}
}

func (w *AutoIndentWriter) emitRune(c rune) {
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], c)
	w.emit(string(buf[:n]))
}

// NoIndentWriter ignores indentation and anchors; it still wraps.
// Pushes are dropped so the embedded stacks stay empty.
type NoIndentWriter struct {
	AutoIndentWriter
}

// NewNoIndentWriter returns a writer that never indents.
func NewNoIndentWriter(out io.Writer, opts ...WriterOption) *NoIndentWriter {
	return &NoIndentWriter{AutoIndentWriter: *NewAutoIndentWriter(out, opts...)}
}

func (w *NoIndentWriter) PushIndentation(string) {}
func (w *NoIndentWriter) PopIndentation() string { return "" }
func (w *NoIndentWriter) PushAnchor(int) {}
func (w *NoIndentWriter) PopAnchor() int { return 0 }
