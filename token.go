package sttpl

import (
	"fmt"
	"strings"
)

// TokenKind enumerates the lexical tokens handed to the parser.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenLDelim
	TokenRDelim
	TokenText
	TokenNewline
	TokenIndent
	TokenID
	TokenString
	TokenIf
	TokenElseIf
	TokenElse
	TokenEndIf
	TokenSuper
	TokenDot
	TokenEllipsis
	TokenComma
	TokenColon
	TokenSemi
	TokenLParen
	TokenRParen
	TokenLBrack
	TokenRBrack
	TokenEquals
	TokenBang
	TokenAnd
	TokenOr
	TokenPipe
	TokenLCurly
	TokenRCurly
	TokenAt
	TokenRegionEnd
)

var tokenNames = [...]string{
	TokenEOF:       "EOF",
	TokenLDelim:    "LDELIM",
	TokenRDelim:    "RDELIM",
	TokenText:      "TEXT",
	TokenNewline:   "NEWLINE",
	TokenIndent:    "INDENT",
	TokenID:        "ID",
	TokenString:    "STRING",
	TokenIf:        "IF",
	TokenElseIf:    "ELSEIF",
	TokenElse:      "ELSE",
	TokenEndIf:     "ENDIF",
	TokenSuper:     "SUPER",
	TokenDot:       "DOT",
	TokenEllipsis:  "ELLIPSIS",
	TokenComma:     "COMMA",
	TokenColon:     "COLON",
	TokenSemi:      "SEMI",
	TokenLParen:    "LPAREN",
	TokenRParen:    "RPAREN",
	TokenLBrack:    "LBRACK",
	TokenRBrack:    "RBRACK",
	TokenEquals:    "EQUALS",
	TokenBang:      "BANG",
	TokenAnd:       "AND",
	TokenOr:        "OR",
	TokenPipe:      "PIPE",
	TokenLCurly:    "LCURLY",
	TokenRCurly:    "RCURLY",
	TokenAt:        "AT",
	TokenRegionEnd: "REGION_END",
}

func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// keywords maps identifier text to its keyword kind.
var keywords = map[string]TokenKind{
	"if":     TokenIf,
	"elseif": TokenElseIf,
	"else":   TokenElse,
	"endif":  TokenEndIf,
	"super":  TokenSuper,
}

// DefaultChannel is the only channel the lexer emits on.
const DefaultChannel = 0

// Token is an immutable lexical token. Most tokens are a span [Start, Stop]
// of the source stream; escape-produced tokens carry their own text.
type Token struct {
	Kind    TokenKind
	Start   int
	Stop    int
	Line    int
	Column  int
	Channel int

	text        string
	synthesized bool
	src         CharStream
}

// Text returns the logical text of the token.
func (t Token) Text() string {
	if t.synthesized {
		return t.text
	}
	if t.src == nil || t.Stop < t.Start {
		return ""
	}
	return t.src.Substring(t.Start, t.Stop)
}

// Synthesized reports whether the token text differs from its source span.
func (t Token) Synthesized() bool { return t.synthesized }

func (t Token) String() string {
	channel := ""
	if t.Channel > 0 {
		channel = fmt.Sprintf(",channel=%d", t.Channel)
	}
	txt := t.Text()
	if t.Kind == TokenEOF {
		txt = "<EOF>"
	}
	txt = strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`).Replace(txt)
	return fmt.Sprintf("[@%d:%d='%s',<%s>%s,%d:%d]", t.Start, t.Stop, txt, t.Kind, channel, t.Line, t.Column)
}
