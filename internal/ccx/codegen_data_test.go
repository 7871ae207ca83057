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
)

func TestEmitDataZeroInitGoesToBSS(t *testing.T) {
	asm := compileOK(t, "int counter; int main(){return 0;}")
	if !strings.Contains(asm, ".bss") {
		t.Errorf("no-initializer global should emit to .bss:\n%s", asm)
	}
}

func TestEmitDataInitializerGoesToData(t *testing.T) {
	asm := compileOK(t, "int counter = 5; int main(){return counter;}")
	if !strings.Contains(asm, ".data") {
		t.Errorf("initialized global should emit to .data:\n%s", asm)
	}
}

func TestEmitDataTentativeUsesCommonOnlyWithFlag(t *testing.T) {
	asm, err := CompileFile("test.c", "int counter; int main(){return 0;}", mapFiles{}, nil, CodegenConfig{Common: true})
	if err != nil {
		t.Fatalf("CompileFile error: %v", err)
	}
	if !strings.Contains(asm, ".comm counter") {
		t.Errorf("tentative global with -fcommon should emit .comm:\n%s", asm)
	}

	asm = compileOK(t, "int counter; int main(){return 0;}")
	if strings.Contains(asm, ".comm counter") {
		t.Errorf("tentative global without -fcommon should not emit .comm:\n%s", asm)
	}
}

func TestEmitDataStaticGlobalHasNoGlobl(t *testing.T) {
	asm := compileOK(t, "static int hidden = 1; int main(){return hidden;}")
	if strings.Contains(asm, ".globl hidden") {
		t.Errorf("static global should not be .globl:\n%s", asm)
	}
}
