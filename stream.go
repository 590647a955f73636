package sttpl

// EOF is returned by CharStream.LA past the end of input.
const EOF rune = -1

// CharStream is the character source consumed by the Lexer. Markers returned
// by Mark are restored with Rewind or dropped with Release; both also discard
// every marker taken after the given one.
type CharStream interface {
	LA(i int) rune
	Consume()
	Index() int
	Line() int
	Column() int
	Mark() int
	Rewind(marker int)
	Release(marker int)
	Substring(start, stop int) string
}

type streamPos struct {
	index  int
	line   int
	column int
}

// StringStream is an in-memory CharStream over the runes of a string.
type StringStream struct {
	data    []rune
	pos     streamPos
	markers []streamPos
	name    string
}

// NewStringStream returns a stream positioned at line 1, column 0.
func NewStringStream(src string) *StringStream {
	return &StringStream{
		data: []rune(src),
		pos:  streamPos{line: 1},
	}
}

// NewNamedStringStream is NewStringStream with a source name for error messages.
func NewNamedStringStream(name, src string) *StringStream {
	s := NewStringStream(src)
	s.name = name
	return s
}

func (s *StringStream) SourceName() string { return s.name }

// LA returns the i-th rune ahead (LA(1) is the current rune).
func (s *StringStream) LA(i int) rune {
	if i <= 0 {
		return EOF
	}
	idx := s.pos.index + i - 1
	if idx >= len(s.data) {
		return EOF
	}
	return s.data[idx]
}

func (s *StringStream) Consume() {
	if s.pos.index >= len(s.data) {
		return
	}
	if s.data[s.pos.index] == '\n' {
		s.pos.line++
		s.pos.column = 0
	} else {
		s.pos.column++
	}
	s.pos.index++
}

func (s *StringStream) Index() int { return s.pos.index }
func (s *StringStream) Line() int { return s.pos.line }
func (s *StringStream) Column() int { return s.pos.column }
func (s *StringStream) Len() int { return len(s.data) }

func (s *StringStream) Mark() int {
	s.markers = append(s.markers, s.pos)
	return len(s.markers)
}

func (s *StringStream) Rewind(marker int) {
	if marker <= 0 || marker > len(s.markers) {
		return
	}
	s.pos = s.markers[marker-1]
	s.markers = s.markers[:marker-1]
}

func (s *StringStream) Release(marker int) {
	if marker <= 0 || marker > len(s.markers) {
		return
	}
	s.markers = s.markers[:marker-1]
}

// Substring returns the runes in [start, stop], clamped to the input.
func (s *StringStream) Substring(start, stop int) string {
	if start < 0 {
		start = 0
	}
	if stop >= len(s.data) {
		stop = len(s.data) - 1
	}
	if start > stop {
		return ""
	}
	return string(s.data[start : stop+1])
}
