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
	"strings"
	"testing"

	tok "github.com/gorse-io/ccx/internal/token"
)

// mapFiles is a FileProvider backed by an in-memory map, used wherever a
// test needs #include to resolve without touching the filesystem.
type mapFiles map[string]string

func (m mapFiles) Resolve(name string, quoted bool, fromFile string) (path, contents string, ok bool) {
	c, ok := m[name]
	return name, c, ok
}

func expandToString(t *testing.T, src string, files FileProvider) string {
	t.Helper()
	head := Lex("test.c", src)
	pp := NewPreprocessor(files)
	out, err := pp.Preprocess("test.c", head)
	if err != nil {
		t.Fatalf("Preprocess(%q) error: %v", src, err)
	}
	var sb strings.Builder
	for tk := out; tk != nil && tk.Kind != tok.EOF; tk = tk.Next {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tk.Lexeme)
	}
	return sb.String()
}

func TestObjectLikeMacroExpansion(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"simple define", "#define N 42\nN", "42"},
		{"chained define", "#define A B\n#define B 7\nA", "7"},
		{"undef stops expansion", "#define N 1\n#undef N\nN", "N"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandToString(t, tt.src, mapFiles{})
			if got != tt.want {
				t.Errorf("expand(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestFunctionLikeMacroExpansion(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"single arg", "#define SQ(x) ((x)*(x))\nSQ(5)", "( ( 5 ) * ( 5 ) )"},
		{"two args", "#define ADD(a,b) ((a)+(b))\nADD(1,2)", "( ( 1 ) + ( 2 ) )"},
		{"stringize", "#define STR(x) #x\nSTR(hello)", `"hello"`},
		{"token paste", "#define CAT(a,b) a##b\nCAT(foo,bar)", "foobar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandToString(t, tt.src, mapFiles{})
			if got != tt.want {
				t.Errorf("expand(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestVariadicMacroExpansion(t *testing.T) {
	src := "#define LOG(fmt, ...) printf(fmt, __VA_ARGS__)\nLOG(\"x\", 1, 2)"
	want := `printf ( "x" , 1 , 2 )`
	got := expandToString(t, src, mapFiles{})
	if got != want {
		t.Errorf("expand(%q) = %q, want %q", src, got, want)
	}
}

func TestConditionalDirectives(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"if true", "#if 1\nA\n#endif", "A"},
		{"if false", "#if 0\nA\n#endif", ""},
		{"if-else taken", "#if 0\nA\n#else\nB\n#endif", "B"},
		{"elif taken", "#if 0\nA\n#elif 1\nB\n#else\nC\n#endif", "B"},
		{"ifdef defined", "#define X\n#ifdef X\nA\n#endif", "A"},
		{"ifndef undefined", "#ifndef X\nA\n#endif", "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandToString(t, tt.src, mapFiles{})
			if got != tt.want {
				t.Errorf("expand(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestIncludeResolution(t *testing.T) {
	files := mapFiles{"foo.h": "#define GREETING 1\n"}
	src := "#include \"foo.h\"\nGREETING"
	got := expandToString(t, src, files)
	if got != "1" {
		t.Errorf("expand with include = %q, want %q", got, "1")
	}
}

func TestPragmaOnceIncludeGuard(t *testing.T) {
	files := mapFiles{"foo.h": "#pragma once\nVAL\n"}
	src := "#include \"foo.h\"\n#include \"foo.h\"\n"
	got := expandToString(t, src, files)
	if strings.Count(got, "VAL") != 1 {
		t.Errorf("expand with #pragma once double-include = %q, want exactly one VAL", got)
	}
}

func TestBuiltinLineMacro(t *testing.T) {
	src := "__LINE__\n__LINE__"
	got := expandToString(t, src, mapFiles{})
	if got != "1 2" {
		t.Errorf("expand(%q) = %q, want %q", src, got, "1 2")
	}
}
