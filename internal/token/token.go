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

// Package token defines the token data model that the tokenizer (an
// external collaborator not implemented by this module) hands to the
// preprocessor, and that the preprocessor hands to the parser.
package token

// Kind tags the lexical category of a Token.
type Kind int

const (
	Ident Kind = iota
	Keyword
	PPNumber
	Num
	Str
	Punct
	EOF
	FileMark
	PasteMark
	Attr
)

func (k Kind) String() string {
	switch k {
	case Ident:
		return "ident"
	case Keyword:
		return "keyword"
	case PPNumber:
		return "pp-number"
	case Num:
		return "number"
	case Str:
		return "string"
	case Punct:
		return "punct"
	case EOF:
		return "eof"
	case FileMark:
		return "file-mark"
	case PasteMark:
		return "paste-mark"
	case Attr:
		return "attribute"
	default:
		return "?"
	}
}

// Position locates a token in the original (or macro-expanded) source.
type Position struct {
	File   string
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return p.File + ":" + itoa(p.Line) + ":" + itoa(p.Column)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IntType is a coarse tag for the decorated numeric type of a Num token;
// the full c type lives in ccx.Type once add_type has run, this is only
// what the lexer/preprocessor can determine before the type model exists.
type IntType int

const (
	NoSuffix IntType = iota
	Unsigned
	Long
	UnsignedLong
	LongLong
	UnsignedLongLong
)

// Token is one lexeme in the linked token stream. Decorated fields (Val,
// FVal, StrVal, flags) are populated progressively by the lexer and
// preprocessor as described in spec.md section 3; Origin and AttrNext are
// left nil by this module.
type Token struct {
	Kind   Kind
	Pos    Position
	Lexeme string

	// Decorated by the lexer for Num tokens.
	Val     int64
	FVal    float64
	IsFloat bool
	IntSfx  IntType

	// Decorated for Str tokens: the decoded payload and element width
	// (1 = char, 2 = char16_t, 4 = char32_t/wchar_t).
	StrVal   []byte
	StrWidth int

	// Flags set by the preprocessor.
	AtBOL      bool // first token on a logical line
	HasSpace   bool // preceded by whitespace
	DontExpand bool // never re-expand this token as a macro (locked)

	// Origin is a slot for the macro-invocation token this token was
	// produced from; the preprocessor does not fill it in.
	Origin *Token

	// AttrNext is a slot for a parallel list of __attribute__ tokens; no
	// pass of this module attaches any.
	AttrNext *Token

	// Next links tokens into the stream. The list is never mutated once
	// handed to the parser; traversal is by pointer advancement only.
	Next *Token
}

// Is reports whether t is a Punct/Keyword token with the given lexeme.
func (t *Token) Is(lexeme string) bool {
	if t == nil {
		return false
	}
	return (t.Kind == Punct || t.Kind == Keyword) && t.Lexeme == lexeme
}

// IsIdent reports whether t is an identifier (or re-tagged keyword) with
// the given name.
func (t *Token) IsIdent(name string) bool {
	if t == nil {
		return false
	}
	return (t.Kind == Ident || t.Kind == Keyword) && t.Lexeme == name
}

// IsEOF reports whether t is the end-of-stream sentinel.
func (t *Token) IsEOF() bool {
	return t == nil || t.Kind == EOF
}

// Clone makes a shallow copy of t with Next severed, used when the
// preprocessor needs to splice a token into more than one place (macro
// body replay, attribute attachment).
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	c.Next = nil
	return &c
}

// List rebuilds a slice view of a token chain, for callers (tests, the
// argument-splitting scanner) that want random access instead of Next
// pointer chasing.
func List(head *Token) []*Token {
	var out []*Token
	for t := head; t != nil && t.Kind != EOF; t = t.Next {
		out = append(out, t)
	}
	return out
}

// FromSlice relinks a slice of tokens into a Next-chain terminated by eof.
func FromSlice(ts []*Token, eof *Token) *Token {
	if len(ts) == 0 {
		return eof
	}
	for i := 0; i < len(ts)-1; i++ {
		ts[i].Next = ts[i+1]
	}
	ts[len(ts)-1].Next = eof
	return ts[0]
}
