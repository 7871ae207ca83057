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

// emitData lays out every global variable per spec.md 4.5's "Data
// section emission": a zero-init definition goes to .bss, a definition
// with an initializer to .data (or .tdata for TLS), and a tentative
// definition to .comm only when -fcommon is set (otherwise .bss, the
// common gcc default since -fno-common became the default toolchain
// behavior).
func (cg *Codegen) emitData(prog []*Obj) {
	for _, v := range prog {
		if v.IsFunction || !v.IsDefinition {
			continue
		}
		name := v.Name.Lexeme

		if v.IsTentative && cg.cfg.Common {
			cg.printf("  .comm %s,%d,%d\n", name, v.Ty.Size, v.Ty.Align)
			continue
		}

		section := ".data"
		if v.IsTLS {
			section = ".tdata"
		}
		allZero := len(v.InitData) == 0 || v.IsTentative
		if allZero && len(v.Relocs) == 0 {
			if v.IsTLS {
				section = ".tbss"
			} else {
				section = ".bss"
			}
		}

		cg.printf("  %s\n", section)
		cg.printf("  .align %d\n", v.Ty.Align)
		if !v.IsStatic {
			cg.printf("  .globl %s\n", name)
		}
		cg.printf("%s:\n", name)

		if allZero && len(v.Relocs) == 0 {
			cg.printf("  .zero %d\n", maxInt(v.Ty.Size, 1))
			continue
		}
		cg.emitGvarBytes(v)
	}
}

// emitGvarBytes writes a definition's byte image, splicing in a .quad
// relocation wherever writeGvarData recorded one (spec.md section 3's
// Relocation, GLOSSARY).
func (cg *Codegen) emitGvarBytes(v *Obj) {
	relocAt := map[int]Reloc{}
	for _, r := range v.Relocs {
		relocAt[r.Offset] = r
	}
	buf := v.InitData
	i := 0
	for i < len(buf) {
		if r, ok := relocAt[i]; ok {
			if r.Addend != 0 {
				cg.printf("  .quad %q+%d\n", r.Label, r.Addend)
			} else {
				cg.printf("  .quad %q\n", r.Label)
			}
			i += 8
			continue
		}
		cg.printf("  .byte %d\n", buf[i])
		i++
	}
}
