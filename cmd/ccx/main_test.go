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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/ccx/internal/ccx"
)

func TestRenderTokens(t *testing.T) {
	toks, err := ccx.PreprocessFile("test.c", "int x = 1 + 2;", mapFilesForTest{}, nil)
	if err != nil {
		t.Fatalf("PreprocessFile error: %v", err)
	}
	got := renderTokens(toks)
	want := "int x = 1 + 2;\n"
	if got != want {
		t.Errorf("renderTokens = %q, want %q", got, want)
	}
}

func TestHostFeaturesAlwaysSetsBaselineSSE(t *testing.T) {
	f := hostFeatures()
	if !f["__SSE__"] || !f["__SSE2__"] {
		t.Errorf("hostFeatures() = %v, want __SSE__/__SSE2__ true (System V x86-64 baseline)", f)
	}
}

func TestSearchPathProviderOrder(t *testing.T) {
	dir := t.TempDir()
	sysDir := filepath.Join(dir, "sys")
	quoteDir := filepath.Join(dir, "quote")
	if err := os.MkdirAll(sysDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(quoteDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sysDir, "h.h"), []byte("sys"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(quoteDir, "h.h"), []byte("quote"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &searchPathProvider{quoteDirs: []string{quoteDir}, sysDirs: []string{sysDir}}
	_, contents, ok := p.Resolve("h.h", true, filepath.Join(dir, "main.c"))
	if !ok {
		t.Fatal("Resolve(quoted) = not found, want found")
	}
	if contents != "quote" {
		t.Errorf("Resolve(quoted) = %q, want the -iquote hit before -I", contents)
	}

	_, contents, ok = p.Resolve("h.h", false, filepath.Join(dir, "main.c"))
	if !ok {
		t.Fatal("Resolve(angle) = not found, want found")
	}
	if contents != "sys" {
		t.Errorf("Resolve(angle) = %q, want the -I hit (angle includes skip -iquote)", contents)
	}
}

// mapFilesForTest satisfies ccx.FileProvider with no files, enough for
// tests that never hit an #include.
type mapFilesForTest struct{}

func (mapFilesForTest) Resolve(name string, quoted bool, fromFile string) (path, contents string, ok bool) {
	return "", "", false
}
