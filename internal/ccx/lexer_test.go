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
	"testing"

	tok "github.com/gorse-io/ccx/internal/token"
)

func lexKinds(t *testing.T, src string) []tok.Kind {
	t.Helper()
	var kinds []tok.Kind
	for tk := Lex("test.c", src); tk != nil && tk.Kind != tok.EOF; tk = tk.Next {
		kinds = append(kinds, tk.Kind)
	}
	return kinds
}

func TestLexIdentifiersAndKeywords(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []tok.Kind
	}{
		{"plain identifier", "foo", []tok.Kind{tok.Ident}},
		{"keyword", "return", []tok.Kind{tok.Keyword}},
		{"keyword then identifier", "int returnValue", []tok.Kind{tok.Keyword, tok.Ident}},
		{"underscore and digits", "_foo_1 bar2", []tok.Kind{tok.Ident, tok.Ident}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lexKinds(t, tt.src)
			if len(got) != len(tt.want) {
				t.Fatalf("lexKinds(%q) = %v, want %v", tt.src, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d: kind = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLexNumberSuffixes(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		isFlo  bool
		suffix tok.IntType
	}{
		{"plain int", "42", false, tok.NoSuffix},
		{"unsigned suffix", "42u", false, tok.Unsigned},
		{"unsigned long long suffix", "42ULL", false, tok.UnsignedLongLong},
		{"hex literal", "0x2A", false, tok.NoSuffix},
		{"octal literal", "052", false, tok.NoSuffix},
		{"float literal", "3.14", true, tok.NoSuffix},
		{"float suffix", "3.14f", true, tok.NoSuffix},
		{"exponent", "1e10", true, tok.NoSuffix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := Lex("test.c", tt.src)
			if toks == nil || toks.Kind != tok.Num {
				t.Fatalf("Lex(%q) first token kind = %v, want Num", tt.src, toks)
			}
			if toks.IsFloat != tt.isFlo {
				t.Errorf("Lex(%q).IsFloat = %v, want %v", tt.src, toks.IsFloat, tt.isFlo)
			}
			if !tt.isFlo && toks.IntSfx != tt.suffix {
				t.Errorf("Lex(%q).IntSfx = %v, want %v", tt.src, toks.IntSfx, tt.suffix)
			}
		})
	}
}

func TestLexStringAndCharEscapes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"simple string", `"hello"`, "hello"},
		{"newline escape", `"a\nb"`, "a\nb"},
		{"tab escape", `"a\tb"`, "a\tb"},
		{"escaped quote", `"a\"b"`, `a"b`},
		{"hex escape", `"\x41"`, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := Lex("test.c", tt.src)
			if toks == nil || toks.Kind != tok.Str {
				t.Fatalf("Lex(%q) first token kind = %v, want Str", tt.src, toks)
			}
			if string(toks.StrVal) != tt.want {
				t.Errorf("Lex(%q).StrVal = %q, want %q", tt.src, toks.StrVal, tt.want)
			}
		})
	}
}

func TestLexCharLiteral(t *testing.T) {
	toks := Lex("test.c", `'A'`)
	if toks == nil || toks.Kind != tok.Num {
		t.Fatalf("Lex('A') first token kind = %v, want Num", toks)
	}
	if toks.Val != 'A' {
		t.Errorf("Lex('A').Val = %d, want %d", toks.Val, int('A'))
	}
}

func TestLexLineSplicing(t *testing.T) {
	src := "int x = 1 +\\\n2;"
	toks := Lex("test.c", src)
	var lexemes []string
	for tk := toks; tk != nil && tk.Kind != tok.EOF; tk = tk.Next {
		lexemes = append(lexemes, tk.Lexeme)
	}
	want := []string{"int", "x", "=", "1", "+", "2", ";"}
	if len(lexemes) != len(want) {
		t.Fatalf("lexemes = %v, want %v", lexemes, want)
	}
	for i := range want {
		if lexemes[i] != want[i] {
			t.Errorf("lexeme %d = %q, want %q", i, lexemes[i], want[i])
		}
	}
}
