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

func parseProgram(t *testing.T, src string) []*Obj {
	t.Helper()
	head := Lex("test.c", src)
	pp := NewPreprocessor(mapFiles{})
	expanded, err := pp.Preprocess("test.c", head)
	if err != nil {
		t.Fatalf("Preprocess(%q) error: %v", src, err)
	}
	var objs []*Obj
	ok, perr := tryFold(func() {
		objs = Parse(tok.List(expanded))
	})
	if !ok {
		t.Fatalf("Parse(%q) error: %v", src, perr)
	}
	return objs
}

func findFunc(objs []*Obj, name string) *Obj {
	for _, o := range objs {
		if o.IsFunction && o.Name != nil && o.Name.Lexeme == name {
			return o
		}
	}
	return nil
}

func TestParseFunctionDefinitionShape(t *testing.T) {
	objs := parseProgram(t, "int add(int a, int b) { return a + b; }")
	fn := findFunc(objs, "add")
	if fn == nil {
		t.Fatal("Parse: function add not found")
	}
	if fn.Body == nil {
		t.Error("function add has no body")
	}
	if fn.Ty == nil || fn.Ty.Kind != TyFunc {
		t.Fatalf("add.Ty = %v, want TyFunc", fn.Ty)
	}
	if len(fn.Ty.Params) != 2 {
		t.Errorf("add has %d params, want 2", len(fn.Ty.Params))
	}
}

func TestParseGlobalVariableTentativeDefinition(t *testing.T) {
	objs := parseProgram(t, "int counter;")
	var g *Obj
	for _, o := range objs {
		if !o.IsFunction && o.Name != nil && o.Name.Lexeme == "counter" {
			g = o
		}
	}
	if g == nil {
		t.Fatal("Parse: global counter not found")
	}
	if !g.IsTentative {
		t.Error("file-scope declaration with no initializer should be tentative")
	}
}

func TestParseStructDeclarationAndMemberAccess(t *testing.T) {
	objs := parseProgram(t, "struct Point{int x;int y;}; int main(){struct Point p; p.x=1; return p.x;}")
	fn := findFunc(objs, "main")
	if fn == nil || fn.Body == nil {
		t.Fatal("Parse: main not found or has no body")
	}
}

func TestParseMultipleFunctions(t *testing.T) {
	objs := parseProgram(t, "int a(){return 1;} int b(){return 2;} int main(){return a()+b();}")
	for _, name := range []string{"a", "b", "main"} {
		if findFunc(objs, name) == nil {
			t.Errorf("Parse: function %s not found", name)
		}
	}
}

func TestParseRejectsUnterminatedStatement(t *testing.T) {
	head := Lex("test.c", "int main(){int x = 1 }")
	pp := NewPreprocessor(mapFiles{})
	expanded, err := pp.Preprocess("test.c", head)
	if err != nil {
		t.Fatalf("Preprocess error: %v", err)
	}
	ok, _ := tryFold(func() {
		Parse(tok.List(expanded))
	})
	if ok {
		t.Error("Parse(missing semicolon) = no error, want an error")
	}
}
