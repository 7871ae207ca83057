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
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/asmfmt"
)

// CodegenConfig carries the driver flags that change emitted assembly
// shape (spec.md section 6, section 1's -fpic/-fcommon/-ffunction-sections).
type CodegenConfig struct {
	PIC              bool
	Common           bool
	FunctionSections bool
}

// Codegen is the single-pass AST-to-GAS emitter of spec.md 4.5. One
// Codegen walks the whole translation unit; per-function state (the temp
// stack, the current return/VLA labels) is reset at the start of each
// function, while the label counter runs across the whole translation
// unit so generated labels stay unique, matching spec.md 5's "single compilation per
// process invocation" ambient model.
type Codegen struct {
	cfg CodegenConfig
	out *bytes.Buffer

	fn *Obj

	// Temp-stack manager (spec.md 4.5, GLOSSARY "Temp-stack manager"):
	// depth counts 8-byte slots in use below the locals area; peak is the
	// high-water mark that sizes the prologue's frame. dontReuseStack is
	// latched for the rest of the function once a setjmp-family name is
	// referenced, so every push gets its own never-recycled slot.
	tmpBase        int
	depth          int
	peak           int
	dontReuseStack bool

	labelSeq int

	curRetLbl string

	placeholders map[string]string // backpatch tokens for the prologue's "sub $N,%rsp"
}

var setjmpFamily = map[string]bool{
	"setjmp": true, "_setjmp": true, "sigsetjmp": true,
	"savectx": true, "vfork": true, "getcontext": true,
}

// Generate runs the code generator over a parsed translation unit and
// returns formatted GAS assembly text (spec.md section 6). Diagnostics
// raised via throw()/diagErr anywhere in the generator are caught here
// and returned as a plain error, matching the parser/preprocessor's
// fatal-diagnostic contract (spec.md 4.6).
func Generate(prog []*Obj, cfg CodegenConfig) (asm string, err error) {
	cg := &Codegen{cfg: cfg, out: &bytes.Buffer{}, placeholders: map[string]string{}}
	ok, perr := tryFold(func() { cg.generate(prog) })
	if !ok {
		return "", perr
	}
	text := cg.out.String()
	for token, value := range cg.placeholders {
		text = strings.ReplaceAll(text, token, value)
	}
	cg.out = bytes.NewBufferString(text)
	formatted, ferr := asmfmt.Format(bytes.NewReader(cg.out.Bytes()))
	if ferr != nil {
		// asmfmt is a formatter, not a validator; fall back to the raw
		// text rather than losing a successful compile over a cosmetic
		// formatting failure.
		return cg.out.String(), nil
	}
	return string(formatted), nil
}

func (cg *Codegen) generate(prog []*Obj) {
	cg.assignGlobalRefs(prog)
	for _, v := range prog {
		cg.assignLvarOffsets(v)
	}
	cg.emitData(prog)
	cg.emitText(prog)
}

// assignCallRetBufs reserves a frame slot for every struct/union-typed
// call expression (spec.md 4.5): register-returned aggregates are copied
// into it after the call so the rest of the expression tree can treat
// "the address of a function call's result" uniformly, and >16-byte
// aggregates have it passed as the hidden pointer in the first place.
func (cg *Codegen) assignCallRetBufs(n *Node, bottom int) int {
	if n == nil {
		return bottom
	}
	bottom = cg.assignCallRetBufs(n.Lhs, bottom)
	bottom = cg.assignCallRetBufs(n.Rhs, bottom)
	bottom = cg.assignCallRetBufs(n.Cond, bottom)
	bottom = cg.assignCallRetBufs(n.Then, bottom)
	bottom = cg.assignCallRetBufs(n.Els, bottom)
	bottom = cg.assignCallRetBufs(n.Init, bottom)
	bottom = cg.assignCallRetBufs(n.Inc, bottom)
	bottom = cg.assignCallRetBufs(n.Body, bottom)
	bottom = cg.assignCallRetBufs(n.ExprBody, bottom)
	for _, a := range n.Args {
		bottom = cg.assignCallRetBufs(a, bottom)
	}
	if n.Kind == NdFunCall && n.Ty != nil && (n.Ty.Kind == TyStruct || n.Ty.Kind == TyUnion) {
		sz := maxInt(n.Ty.Size, 8)
		bottom = alignTo(bottom+sz, maxInt(n.Ty.Align, 8))
		n.RetBuf = &Obj{Ty: n.Ty, IsLocal: true, Offset: -bottom}
	}
	return cg.assignCallRetBufs(n.Next, bottom)
}

func (cg *Codegen) printf(format string, args ...any) {
	fmt.Fprintf(cg.out, format, args...)
}

func (cg *Codegen) nextCount() int {
	cg.labelSeq++
	return cg.labelSeq
}

// assignGlobalRefs records in each function's Refs the names its body
// calls directly; emitFunction later checks that set for setjmp-family
// names to latch dont_reuse_stack per spec.md 4.5's trigger list.
func (cg *Codegen) assignGlobalRefs(prog []*Obj) {
	for _, v := range prog {
		if v.IsFunction {
			v.Refs = map[string]bool{}
			collectCallRefs(v.Body, v.Refs)
		}
	}
}

func collectCallRefs(n *Node, refs map[string]bool) {
	if n == nil {
		return
	}
	if n.Kind == NdFunCall {
		refs[n.FuncName] = true
	}
	collectCallRefs(n.Lhs, refs)
	collectCallRefs(n.Rhs, refs)
	collectCallRefs(n.Cond, refs)
	collectCallRefs(n.Then, refs)
	collectCallRefs(n.Els, refs)
	collectCallRefs(n.Init, refs)
	collectCallRefs(n.Inc, refs)
	collectCallRefs(n.Body, refs)
	collectCallRefs(n.ExprBody, refs)
	for _, a := range n.Args {
		collectCallRefs(a, refs)
	}
	collectCallRefs(n.Next, refs)
}

// assignLvarOffsets implements spec.md 4.5's stack-slot sharing: scopes
// are walked depth-first, each returning the deepest offset it used;
// sibling scopes restart from the parent's bottom so that two non-
// overlapping blocks' locals can share the same frame slots.
func (cg *Codegen) assignLvarOffsets(fn *Obj) {
	if fn.IsFunction {
		top := 0
		if fn.Ty.IsVariadic {
			top = 176 // 48-byte GP + 128-byte XMM register-save area
		}
		bottom := top
		if fn.Ty.FuncScope != nil {
			bottom = cg.assignScopeOffsets(fn.Ty.FuncScope, top)
		}
		// Hidden temp locals created after parsing a function's body (the
		// compound-assignment desugaring pointer, VLA size vars) may not
		// all be attached to a scope that is still reachable from
		// FuncScope.Children if they were declared in now-left nested
		// scopes; the flat Locals list is authoritative for anything the
		// scope walk missed.
		for _, l := range fn.Locals {
			if l.Offset != 0 || l.IsStatic || !l.IsLocal {
				continue
			}
			sz := maxInt(l.Ty.Size, 0)
			align := l.Ty.Align
			bottom = alignTo(bottom+sz, align)
			l.Offset = -bottom
		}
		bottom = alignTo(bottom+8, 8)
		fn.VLARspOffset = -bottom
		if classesAreMemory(paramClasses(fn.Ty.ReturnTy)) && (fn.Ty.ReturnTy.Kind == TyStruct || fn.Ty.ReturnTy.Kind == TyUnion) {
			bottom = alignTo(bottom+8, 8)
			fn.RetBufOffset = -bottom
			fn.HasRetBuf = true
		}
		bottom = cg.assignCallRetBufs(fn.Body, bottom)
		fn.StackSize = alignTo(bottom, 16)
		return
	}
	if fn.IsTentative && !cg.cfg.Common {
		// A plain tentative definition without -fcommon still lands in
		// .bss once merged with any later definition; handled in emitData.
	}
}

func (cg *Codegen) assignScopeOffsets(sc *Scope, bottom int) int {
	for _, v := range sc.Locals {
		if v.IsStatic || !v.IsLocal {
			continue
		}
		sz := maxInt(v.Ty.Size, 0)
		align := v.Ty.Align
		if v.Ty.IsArray() && sz >= 16 && align < 16 {
			align = 16
		}
		bottom = alignTo(bottom+sz, align)
		v.Offset = -bottom
	}
	maxBottom := bottom
	for _, child := range sc.Children {
		b := cg.assignScopeOffsets(child, bottom)
		if b > maxBottom {
			maxBottom = b
		}
	}
	return maxBottom
}

// ----------------------------------------------------------------------
// Temp-stack manager (spec.md 4.5).

func (cg *Codegen) pushSlotOffset() int {
	cg.depth++
	if cg.depth*8 > cg.peak {
		cg.peak = cg.depth * 8
	}
	return -(cg.tmpBase + cg.depth*8)
}

func (cg *Codegen) popSlotOffset() int {
	off := -(cg.tmpBase + cg.depth*8)
	if !cg.dontReuseStack {
		cg.depth--
	}
	return off
}

// push spills %rax to a fresh temp-stack slot instead of a real `push`,
// so a later longjmp through this frame cannot clobber it (spec.md 4.5).
func (cg *Codegen) push() {
	off := cg.pushSlotOffset()
	cg.printf("  mov %%rax, %d(%%rbp)\n", off)
}

func (cg *Codegen) pop(reg string) {
	off := cg.popSlotOffset()
	cg.printf("  mov %d(%%rbp), %s\n", off, reg)
}

func (cg *Codegen) pushXMM() {
	off := cg.pushSlotOffset()
	cg.printf("  movsd %%xmm0, %d(%%rbp)\n", off)
}

func (cg *Codegen) popXMM(n int) {
	off := cg.popSlotOffset()
	cg.printf("  movsd %d(%%rbp), %%xmm%d\n", off, n)
}

// ----------------------------------------------------------------------
// Labels.

func localLabel(kind string, n int) string {
	return fmt.Sprintf(".L.%s.%d", kind, n)
}

func escapeAsmString(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch c {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&sb, `\%03o`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	return sb.String()
}
