// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ccx

import (
	"strconv"
	"strings"
	"unicode/utf8"

	tok "github.com/gorse-io/ccx/internal/token"
)

// Lex turns source bytes into a linked token stream. Per spec.md section 1
// the tokenizer is named as an external collaborator; this is a minimal,
// deliberately small surrogate that exists only so the preprocessor and
// parser in this package have a real token stream to drive in tests and in
// the cmd/ccx driver. It performs backslash-newline joining but not
// trigraph handling, per spec.md section 6.
func Lex(filename, src string) *tok.Token {
	l := &lexer{file: filename, src: joinBackslashNewlines(src), line: 1, col: 1, atBOL: true}
	return l.run()
}

type lexer struct {
	file  string
	src   string
	pos   int
	line  int
	col   int
	atBOL bool
}

func joinBackslashNewlines(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '\n' {
			i++
			continue
		}
		if s[i] == '\\' && i+2 < len(s) && s[i+1] == '\r' && s[i+2] == '\n' {
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (l *lexer) run() *tok.Token {
	head := &tok.Token{}
	cur := head
	hadSpace := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.advance(1)
			l.atBOL = true
			hadSpace = true
			continue
		case c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f':
			l.advance(1)
			hadSpace = true
			continue
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
			hadSpace = true
			continue
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '*':
			l.advance(2)
			for l.pos < len(l.src) && !(l.src[l.pos] == '*' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/') {
				if l.src[l.pos] == '\n' {
					l.atBOL = true
				}
				l.advance(1)
			}
			l.advance(2)
			hadSpace = true
			continue
		}

		start := l.pos
		pos := tok.Position{File: l.file, Offset: l.pos, Line: l.line, Column: l.col}
		var t *tok.Token
		switch {
		case isIdentStart(rune(c)):
			t = l.lexIdent()
		case c >= '0' && c <= '9', c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
			t = l.lexNumber()
		case c == '"':
			t = l.lexString('"')
		case c == '\'':
			t = l.lexChar()
		case c == '#':
			t = l.lexPunct()
		default:
			t = l.lexPunct()
		}
		t.Pos = pos
		t.Pos.Offset = start
		t.HasSpace = hadSpace
		t.AtBOL = l.atBOL
		hadSpace = false
		l.atBOL = false
		cur.Next = t
		cur = t
	}
	eof := &tok.Token{Kind: tok.EOF, Pos: tok.Position{File: l.file, Line: l.line, Column: l.col}}
	cur.Next = eof
	return head.Next
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= utf8.RuneSelf
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9') || r == '$'
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (l *lexer) lexIdent() *tok.Token {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentCont(r) {
			break
		}
		l.advance(size)
	}
	lex := l.src[start:l.pos]
	kind := tok.Ident
	if isKeyword(lex) {
		kind = tok.Keyword
	}
	return &tok.Token{Kind: kind, Lexeme: lex}
}

func (l *lexer) lexNumber() *tok.Token {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == 'e' || c == 'E' || c == 'p' || c == 'P' {
			if l.pos+1 < len(l.src) && (l.src[l.pos+1] == '+' || l.src[l.pos+1] == '-') {
				l.advance(2)
				continue
			}
		}
		if isIdentCont(rune(c)) || c == '.' {
			l.advance(1)
			continue
		}
		break
	}
	lex := l.src[start:l.pos]
	t := &tok.Token{Kind: tok.PPNumber, Lexeme: lex}
	decorateNumber(t, lex)
	return t
}

func decorateNumber(t *tok.Token, lex string) {
	lower := strings.ToLower(lex)
	if strings.ContainsAny(lower, ".") || ((strings.Contains(lower, "e") && !strings.HasPrefix(lower, "0x")) || strings.Contains(lower, "p")) {
		f, err := strconv.ParseFloat(strings.TrimRight(lower, "flFL"), 64)
		if err == nil {
			t.Kind = tok.Num
			t.IsFloat = true
			t.FVal = f
			return
		}
	}
	digits := lex
	for len(digits) > 0 {
		c := digits[len(digits)-1]
		if c == 'u' || c == 'U' || c == 'l' || c == 'L' {
			digits = digits[:len(digits)-1]
			continue
		}
		break
	}
	base := 10
	numPart := digits
	switch {
	case strings.HasPrefix(lower, "0x"):
		base = 16
		numPart = digits[2:]
	case strings.HasPrefix(lower, "0b"):
		base = 2
		numPart = digits[2:]
	case len(digits) > 1 && digits[0] == '0':
		base = 8
	}
	if numPart == "" {
		return
	}
	v, err := strconv.ParseUint(numPart, base, 64)
	if err != nil {
		return
	}
	t.Kind = tok.Num
	t.Val = int64(v)
	suffix := strings.ToLower(lex[len(digits):])
	switch {
	case strings.Contains(suffix, "ull") || strings.Contains(suffix, "llu"):
		t.IntSfx = tok.UnsignedLongLong
	case strings.Contains(suffix, "ll"):
		t.IntSfx = tok.LongLong
	case strings.Contains(suffix, "ul") || strings.Contains(suffix, "lu"):
		t.IntSfx = tok.UnsignedLong
	case strings.Contains(suffix, "l"):
		t.IntSfx = tok.Long
	case strings.Contains(suffix, "u"):
		t.IntSfx = tok.Unsigned
	}
}

func (l *lexer) lexString(quote byte) *tok.Token {
	start := l.pos
	l.advance(1)
	var raw []byte
	for l.pos < len(l.src) && l.src[l.pos] != quote {
		if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
			raw = append(raw, l.src[l.pos], l.src[l.pos+1])
			l.advance(2)
			continue
		}
		raw = append(raw, l.src[l.pos])
		l.advance(1)
	}
	if l.pos < len(l.src) {
		l.advance(1)
	}
	t := &tok.Token{Kind: tok.Str, Lexeme: l.src[start:l.pos]}
	t.StrVal = decodeEscapes(raw)
	t.StrWidth = 1
	return t
}

func (l *lexer) lexChar() *tok.Token {
	start := l.pos
	l.advance(1)
	var raw []byte
	for l.pos < len(l.src) && l.src[l.pos] != '\'' {
		if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
			raw = append(raw, l.src[l.pos], l.src[l.pos+1])
			l.advance(2)
			continue
		}
		raw = append(raw, l.src[l.pos])
		l.advance(1)
	}
	if l.pos < len(l.src) {
		l.advance(1)
	}
	decoded := decodeEscapes(raw)
	var v int64
	if len(decoded) > 0 {
		v = int64(int8(decoded[0]))
	}
	return &tok.Token{Kind: tok.Num, Lexeme: l.src[start:l.pos], Val: v}
}

func decodeEscapes(raw []byte) []byte {
	var out []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '0':
				out = append(out, 0)
			case '\\', '"', '\'':
				out = append(out, raw[i])
			case 'x':
				j := i + 1
				for j < len(raw) && strings.IndexByte("0123456789abcdefABCDEF", raw[j]) >= 0 {
					j++
				}
				v, _ := strconv.ParseUint(string(raw[i+1:j]), 16, 64)
				out = append(out, byte(v))
				i = j - 1
			default:
				out = append(out, raw[i])
			}
			continue
		}
		out = append(out, raw[i])
	}
	return out
}

var multiCharPuncts = []string{
	"...", "<<=", ">>=",
	"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"*=", "/=", "%=", "+=", "-=", "&=", "^=", "|=", "##",
}

func (l *lexer) lexPunct() *tok.Token {
	rest := l.src[l.pos:]
	for _, p := range multiCharPuncts {
		if strings.HasPrefix(rest, p) {
			l.advance(len(p))
			return &tok.Token{Kind: tok.Punct, Lexeme: p}
		}
	}
	c := l.src[l.pos]
	l.advance(1)
	return &tok.Token{Kind: tok.Punct, Lexeme: string(c)}
}

var keywordSet = map[string]bool{}

func init() {
	for _, k := range []string{
		"void", "char", "short", "int", "long", "float", "double", "signed", "unsigned",
		"_Bool", "struct", "union", "enum", "typedef", "extern", "static", "auto", "register",
		"const", "volatile", "restrict", "inline", "_Noreturn", "_Thread_local",
		"if", "else", "for", "while", "do", "switch", "case", "default", "break", "continue",
		"return", "goto", "sizeof", "typeof", "_Alignof", "_Alignas", "_Static_assert",
		"asm", "__asm__", "__attribute__", "__attribute",
	} {
		keywordSet[k] = true
	}
}

func isKeyword(s string) bool { return keywordSet[s] }
