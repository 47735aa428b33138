package dsl

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokDocComment
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokColon
	tokEquals
	tokQuestion
	tokAt
	tokAtAt
	tokDot
)

var tokenNames = map[tokenKind]string{
	tokEOF:        "end of input",
	tokIdent:      "identifier",
	tokString:     "string",
	tokNumber:     "number",
	tokDocComment: "documentation comment",
	tokLBrace:     "'{'",
	tokRBrace:     "'}'",
	tokLParen:     "'('",
	tokRParen:     "')'",
	tokLBracket:   "'['",
	tokRBracket:   "']'",
	tokComma:      "','",
	tokColon:      "':'",
	tokEquals:     "'='",
	tokQuestion:   "'?'",
	tokAt:         "'@'",
	tokAtAt:       "'@@'",
	tokDot:        "'.'",
}

func (k tokenKind) String() string {
	return tokenNames[k]
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

func (t token) describe() string {
	switch t.kind {
	case tokIdent, tokNumber:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	}
	return t.kind.String()
}

// lexer turns source text into tokens. Plain // comments are skipped,
// /// documentation comments are returned as tokens.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) errorf(line, col int, format string, args ...interface{}) error {
	return &ParseError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		c := l.peekByte(0)
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peekByte(1) == '/':
			line, col := l.line, l.col
			start := l.pos
			for l.pos < len(l.src) && l.peekByte(0) != '\n' {
				l.advance()
			}
			text := l.src[start:l.pos]
			if strings.HasPrefix(text, "///") {
				doc := strings.TrimPrefix(text, "///")
				doc = strings.TrimPrefix(doc, " ")
				return token{kind: tokDocComment, text: strings.TrimRight(doc, " \t\r"), line: line, col: col}, nil
			}
		default:
			return l.scan()
		}
	}
	return token{kind: tokEOF, line: l.line, col: l.col}, nil
}

func (l *lexer) scan() (token, error) {
	line, col := l.line, l.col
	c := l.peekByte(0)
	single := map[byte]tokenKind{
		'{': tokLBrace, '}': tokRBrace, '(': tokLParen, ')': tokRParen,
		'[': tokLBracket, ']': tokRBracket, ',': tokComma, ':': tokColon,
		'=': tokEquals, '?': tokQuestion, '.': tokDot,
	}

	switch {
	case c == '@':
		l.advance()
		if l.peekByte(0) == '@' {
			l.advance()
			return token{kind: tokAtAt, text: "@@", line: line, col: col}, nil
		}
		return token{kind: tokAt, text: "@", line: line, col: col}, nil
	case c == '"':
		return l.scanString(line, col)
	case isDigit(c) || (c == '-' && isDigit(l.peekByte(1))):
		start := l.pos
		l.advance()
		for l.pos < len(l.src) && (isDigit(l.peekByte(0)) || (l.peekByte(0) == '.' && isDigit(l.peekByte(1)))) {
			l.advance()
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], line: line, col: col}, nil
	case isIdentStart(c):
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.peekByte(0)) {
			l.advance()
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], line: line, col: col}, nil
	}

	if kind, ok := single[c]; ok {
		l.advance()
		return token{kind: kind, text: string(c), line: line, col: col}, nil
	}
	return token{}, l.errorf(line, col, "unexpected character %q", c)
}

func (l *lexer) scanString(line, col int) (token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.src) || l.peekByte(0) == '\n' {
			return token{}, l.errorf(line, col, "unterminated string")
		}
		c := l.advance()
		switch c {
		case '"':
			return token{kind: tokString, text: b.String(), line: line, col: col}, nil
		case '\\':
			if l.pos >= len(l.src) {
				return token{}, l.errorf(line, col, "unterminated string")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\':
				b.WriteByte(esc)
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
		}
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

// IsIdentifier reports whether s can be written as a bare name.
func IsIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
