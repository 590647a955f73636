package sttpl

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrUnterminatedExpr    = errors.New("unterminated expression")
	ErrInvalidChar         = errors.New("invalid character")
	ErrMismatchedChar      = errors.New("mismatched character")
	ErrBadUnicodeEscape    = errors.New("bad unicode escape")
	ErrInvalidEscape       = errors.New("invalid escape")
	ErrUnterminatedString  = errors.New("unterminated string")
	ErrUnterminatedComment = errors.New("unterminated comment")

	ErrSyntax = errors.New("syntax error")
)

// ScanError aborts tokenization. Char is the offending rune (EOF at end of
// input) and Expected is set for strict matches.
type ScanError struct {
	Err      error
	Char     rune
	Expected rune
	Index    int
	Line     int
	Column   int
}

func (e *ScanError) Error() string {
	msg := fmt.Sprintf("%d:%d: %v", e.Line, e.Column, e.Err)
	if e.Expected != 0 {
		msg += fmt.Sprintf(": expecting %s", quoteChar(e.Expected))
	}
	if e.Char == EOF {
		return msg + ": found <EOF>"
	}
	return msg + ": found " + quoteChar(e.Char)
}

func (e *ScanError) Unwrap() error { return e.Err }

func quoteChar(c rune) string {
	if c == EOF {
		return "<EOF>"
	}
	return strconv.QuoteRune(c)
}

// ParseError is reported by the template parser for malformed token streams.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

func (e *ParseError) Unwrap() error { return ErrSyntax }
