package sttpl

import (
	"strconv"
	"strings"
)

// ----------------------------- Lexer ----------------------------------------

type scanMode int

const (
	scanOutside scanMode = iota // literal template text
	scanInside                  // between the delimiters of an expression
)

// Lexer is a pull-based tokenizer over a CharStream. It alternates between
// literal text and expressions, and decides on every '{' inside an
// expression whether a formal argument list follows.
type Lexer struct {
	input      CharStream
	c          rune
	startDelim rune
	stopDelim  rune

	mode             scanMode
	subtemplateDepth int

	startIndex  int
	startLine   int
	startColumn int

	queue []Token
}

// LexerOption configures a Lexer.
type LexerOption func(*Lexer)

// WithDelimiters sets the expression delimiters (default '<' and '>').
func WithDelimiters(start, stop rune) LexerOption {
	return func(l *Lexer) {
		l.startDelim = start
		l.stopDelim = stop
	}
}

// NewLexer returns a lexer reading from input.
func NewLexer(input CharStream, opts ...LexerOption) *Lexer {
	l := &Lexer{
		input:      input,
		startDelim: '<',
		stopDelim:  '>',
	}
	for _, o := range opts {
		o(l)
	}
	l.c = input.LA(1)
	return l
}

// Tokenize scans src and returns every token before EOF.
func Tokenize(src string, opts ...LexerOption) ([]Token, error) {
	return NewLexer(NewStringStream(src), opts...).All()
}

// All drains the lexer and returns every token before EOF.
func (l *Lexer) All() ([]Token, error) {
	tokens := make([]Token, 0, 32)
	for {
		t, err := l.Next()
		if err != nil {
			return nil, err
		}
		if t.Kind == TokenEOF {
			return tokens, nil
		}
		tokens = append(tokens, t)
	}
}

// Next returns the next token. Queued subtemplate arguments are delivered
// before anything new is scanned.
func (l *Lexer) Next() (Token, error) {
	if len(l.queue) > 0 {
		t := l.queue[0]
		l.queue = l.queue[1:]
		return t, nil
	}
	for {
		l.markStart()
		if l.c == EOF {
			if l.mode == scanInside {
				return Token{}, l.errorf(ErrUnterminatedExpr, 0)
			}
			return l.newToken(TokenEOF), nil
		}
		if l.mode == scanInside {
			return l.inside()
		}
		t, skip, err := l.outside()
		if err != nil {
			return Token{}, err
		}
		if !skip {
			return t, nil
		}
	}
}

func (l *Lexer) outside() (Token, bool, error) {
	if l.input.Column() == 0 && (l.c == ' ' || l.c == '\t') {
		for l.c == ' ' || l.c == '\t' {
			l.consume()
		}
		return l.newToken(TokenIndent), false, nil
	}
	if l.c == l.startDelim {
		l.consume()
		if l.c == '!' {
			return Token{}, true, l.comment()
		}
		if l.c == '\\' {
			return l.escape()
		}
		l.mode = scanInside
		return l.newToken(TokenLDelim), false, nil
	}
	switch {
	case l.c == '\r':
		l.consume()
		if l.c == '\n' {
			l.consume()
		}
		return l.newToken(TokenNewline), false, nil
	case l.c == '\n':
		l.consume()
		return l.newToken(TokenNewline), false, nil
	case l.c == '}' && l.subtemplateDepth > 0:
		l.subtemplateDepth--
		l.mode = scanInside
		l.consume()
		return l.newToken(TokenRCurly), false, nil
	}
	return l.text(), false, nil
}

func (l *Lexer) inside() (Token, error) {
	for isWS(l.c) {
		l.consume()
	}
	l.markStart()
	if l.c == EOF {
		return Token{}, l.errorf(ErrUnterminatedExpr, 0)
	}
	if l.c == l.stopDelim {
		l.consume()
		l.mode = scanOutside
		return l.newToken(TokenRDelim), nil
	}
	switch l.c {
	case '.':
		l.consume()
		if l.c == '.' && l.input.LA(2) == '.' {
			l.consume()
			l.consume()
			return l.newToken(TokenEllipsis), nil
		}
		return l.newToken(TokenDot), nil
	case ',':
		return l.single(TokenComma), nil
	case ':':
		return l.single(TokenColon), nil
	case ';':
		return l.single(TokenSemi), nil
	case '(':
		return l.single(TokenLParen), nil
	case ')':
		return l.single(TokenRParen), nil
	case '[':
		return l.single(TokenLBrack), nil
	case ']':
		return l.single(TokenRBrack), nil
	case '=':
		return l.single(TokenEquals), nil
	case '!':
		return l.single(TokenBang), nil
	case '@':
		l.consume()
		if l.c == 'e' && l.input.LA(2) == 'n' && l.input.LA(3) == 'd' {
			l.consume()
			l.consume()
			l.consume()
			return l.newToken(TokenRegionEnd), nil
		}
		return l.newToken(TokenAt), nil
	case '&':
		l.consume()
		if err := l.match('&'); err != nil {
			return Token{}, err
		}
		return l.newToken(TokenAnd), nil
	case '|':
		l.consume()
		if err := l.match('|'); err != nil {
			return Token{}, err
		}
		return l.newToken(TokenOr), nil
	case '"':
		return l.str()
	case '{':
		return l.subtemplate(), nil
	}
	if isIDStart(l.c) {
		t := l.id()
		if kind, ok := keywords[t.Text()]; ok {
			t.Kind = kind
		}
		return t, nil
	}
	return Token{}, l.errorf(ErrInvalidChar, 0)
}

// subtemplate scans '{' and looks ahead for "ID (',' ID)* '|'". On a match
// the argument tokens are queued behind the curly; otherwise the stream is
// rewound to just after the '{'. Either way the body is literal text.
func (l *Lexer) subtemplate() Token {
	l.subtemplateDepth++
	m := l.input.Mark()
	curlyIndex, curlyLine, curlyColumn := l.startIndex, l.startLine, l.startColumn
	l.consume()
	curly := l.newToken(TokenLCurly)

	if args, ok := l.formalArgs(); ok {
		if isWS(l.c) {
			l.consume()
		}
		l.queue = append(l.queue, args...)
		l.input.Release(m)
	} else {
		l.input.Rewind(m)
		l.c = l.input.LA(1)
		l.consume()
	}
	l.mode = scanOutside
	l.startIndex, l.startLine, l.startColumn = curlyIndex, curlyLine, curlyColumn
	return curly
}

func (l *Lexer) formalArgs() ([]Token, bool) {
	args := make([]Token, 0, 4)
	l.skipWS()
	if !isIDStart(l.c) {
		return nil, false
	}
	args = append(args, l.id())
	l.skipWS()
	for l.c == ',' {
		args = append(args, l.single(TokenComma))
		l.skipWS()
		if !isIDStart(l.c) {
			return nil, false
		}
		args = append(args, l.id())
		l.skipWS()
	}
	if l.c != '|' {
		return nil, false
	}
	args = append(args, l.single(TokenPipe))
	return args, true
}

// escape handles <\\>, <\n>, <\t>, <\ > and <\uXXXX>; the start delimiter
// is already consumed and l.c is the backslash.
func (l *Lexer) escape() (Token, bool, error) {
	l.consume()
	var text string
	switch l.c {
	case '\\':
		return Token{}, true, l.lineBreak()
	case 'n':
		text = "\n"
		l.consume()
	case 't':
		text = "\t"
		l.consume()
	case ' ':
		text = " "
		l.consume()
	case 'u':
		r, err := l.unicode()
		if err != nil {
			return Token{}, false, err
		}
		text = string(r)
	default:
		return Token{}, false, l.errorf(ErrInvalidEscape, 0)
	}
	if err := l.match(l.stopDelim); err != nil {
		return Token{}, false, err
	}
	return l.newTextToken(TokenText, text), false, nil
}

func (l *Lexer) unicode() (rune, error) {
	l.consume() // u
	var digits [4]rune
	for i := range digits {
		if !isHexDigit(l.c) {
			return 0, l.errorf(ErrBadUnicodeEscape, 0)
		}
		digits[i] = l.c
		l.consume()
	}
	v, err := strconv.ParseUint(string(digits[:]), 16, 32)
	if err != nil {
		return 0, l.errorf(ErrBadUnicodeEscape, 0)
	}
	return rune(v), nil
}

// lineBreak eats "\\>" plus the rest of the line and the next indentation.
func (l *Lexer) lineBreak() error {
	if err := l.match('\\'); err != nil {
		return err
	}
	if err := l.match(l.stopDelim); err != nil {
		return err
	}
	for l.c == ' ' || l.c == '\t' {
		l.consume()
	}
	if l.c == '\r' {
		l.consume()
	}
	if err := l.match('\n'); err != nil {
		return err
	}
	for l.c == ' ' || l.c == '\t' {
		l.consume()
	}
	return nil
}

func (l *Lexer) comment() error {
	l.consume() // !
	for !(l.c == '!' && l.input.LA(2) == l.stopDelim) {
		if l.c == EOF {
			return l.errorf(ErrUnterminatedComment, 0)
		}
		l.consume()
	}
	l.consume()
	l.consume()
	return nil
}

func (l *Lexer) text() Token {
	var buf strings.Builder
	modified := false
	for l.c != EOF && l.c != l.startDelim {
		if l.c == '\r' || l.c == '\n' {
			break
		}
		if l.c == '}' && l.subtemplateDepth > 0 {
			break
		}
		if l.c == '\\' {
			next := l.input.LA(2)
			l.consume()
			modified = true
			if next == l.startDelim || next == '}' {
				buf.WriteRune(l.c)
				l.consume()
			}
			continue
		}
		buf.WriteRune(l.c)
		l.consume()
	}
	if modified {
		return l.newTextToken(TokenText, buf.String())
	}
	return l.newToken(TokenText)
}

func (l *Lexer) str() (Token, error) {
	var buf strings.Builder
	sawEscape := false
	buf.WriteRune(l.c)
	l.consume()
	for l.c != '"' {
		switch l.c {
		case EOF:
			return Token{}, l.errorf(ErrUnterminatedString, '"')
		case '\\':
			sawEscape = true
			l.consume()
			switch l.c {
			case EOF:
				return Token{}, l.errorf(ErrUnterminatedString, '"')
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			default:
				buf.WriteRune(l.c)
			}
			l.consume()
			continue
		}
		buf.WriteRune(l.c)
		l.consume()
	}
	buf.WriteRune(l.c)
	l.consume()
	if sawEscape {
		return l.newTextToken(TokenString, buf.String()), nil
	}
	return l.newToken(TokenString), nil
}

func (l *Lexer) id() Token {
	l.markStart()
	l.consume()
	for isIDLetter(l.c) {
		l.consume()
	}
	return l.newToken(TokenID)
}

func (l *Lexer) single(kind TokenKind) Token {
	l.markStart()
	l.consume()
	return l.newToken(kind)
}

func (l *Lexer) skipWS() {
	for isWS(l.c) {
		l.consume()
	}
}

func (l *Lexer) match(x rune) error {
	if l.c != x {
		return l.errorf(ErrMismatchedChar, x)
	}
	l.consume()
	return nil
}

func (l *Lexer) consume() {
	l.input.Consume()
	l.c = l.input.LA(1)
}

func (l *Lexer) markStart() {
	l.startIndex = l.input.Index()
	l.startLine = l.input.Line()
	l.startColumn = l.input.Column()
}

func (l *Lexer) newToken(kind TokenKind) Token {
	return Token{
		Kind:    kind,
		Start:   l.startIndex,
		Stop:    l.input.Index() - 1,
		Line:    l.startLine,
		Column:  l.startColumn,
		Channel: DefaultChannel,
		src:     l.input,
	}
}

func (l *Lexer) newTextToken(kind TokenKind, text string) Token {
	t := l.newToken(kind)
	t.text = text
	t.synthesized = true
	return t
}

func (l *Lexer) errorf(err error, expected rune) error {
	return &ScanError{
		Err:      err,
		Char:     l.c,
		Expected: expected,
		Index:    l.input.Index(),
		Line:     l.input.Line(),
		Column:   l.input.Column(),
	}
}

func isIDStart(c rune) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '/'
}

func isIDLetter(c rune) bool {
	return isIDStart(c) || c >= '0' && c <= '9'
}

func isWS(c rune) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isHexDigit(c rune) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
