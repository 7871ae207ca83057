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

import "fmt"

func (cg *Codegen) emitText(prog []*Obj) {
	for _, fn := range prog {
		if fn.IsFunction && fn.IsDefinition {
			cg.emitFunction(fn)
		}
	}
}

// emitFunction implements spec.md 4.5's function prologue/epilogue: push
// %rbp, reserve a frame whose size is backpatched after the body is
// emitted, spill incoming arguments to their classified stack slots (so
// every later reference is a uniform memory load, exactly like locals),
// and run a variadic prologue when the function takes "...".
func (cg *Codegen) emitFunction(fn *Obj) {
	cg.fn = fn
	cg.depth = 0
	cg.peak = 0
	cg.dontReuseStack = hasSetjmpRef(fn.Refs)
	cg.tmpBase = fn.StackSize
	cg.curRetLbl = localLabel("return", cg.nextCount())

	name := fn.Name.Lexeme
	if cg.cfg.FunctionSections {
		cg.printf("  .section .text.%s,\"ax\",@progbits\n", name)
	} else {
		cg.printf("  .text\n")
	}
	if !fn.IsStatic {
		cg.printf("  .globl %s\n", name)
	}
	cg.printf("  .type %s, @function\n", name)
	cg.printf("%s:\n", name)
	cg.printf("  push %%rbp\n")
	cg.printf("  mov %%rsp, %%rbp\n")

	placeholder := fmt.Sprintf("@@STACKSIZE.%d@@", cg.nextCount())
	cg.printf("  sub $%s, %%rsp\n", placeholder)
	cg.printf("  mov %%rsp, %d(%%rbp)\n", fn.VLARspOffset)

	gpIdx, fpIdx := 0, 0
	if fn.HasRetBuf {
		cg.printf("  mov %%rdi, %d(%%rbp)\n", fn.RetBufOffset)
		gpIdx++
	}
	stackOff := 16 // 8-byte return address + 8-byte saved %rbp
	for p := fn.ParamNext; p != nil; p = p.ParamNext {
		cg.storeParam(p, &gpIdx, &fpIdx, &stackOff)
	}
	if fn.Ty.IsVariadic {
		cg.emitVariadicPrologue(gpIdx, fpIdx)
	}
	fn.namedArgStackBytes = stackOff

	cg.genStmt(fn.Body)

	cg.printf("%s:\n", cg.curRetLbl)
	cg.printf("  mov %%rbp, %%rsp\n")
	cg.printf("  pop %%rbp\n")
	cg.printf("  ret\n")

	frame := alignTo(fn.StackSize+cg.peak, 16)
	cg.placeholders[placeholder] = fmt.Sprintf("%d", frame)
}

func hasSetjmpRef(refs map[string]bool) bool {
	for name := range refs {
		if setjmpFamily[name] {
			return true
		}
	}
	return false
}

// storeParam spills one incoming argument to its local slot per the
// classification computed for its type (spec.md 4.5's argument
// classification, applied symmetrically at the callee since every param
// reference afterward is a plain memory load).
func (cg *Codegen) storeParam(p *Obj, gpIdx, fpIdx, stackOff *int) {
	classes := paramClasses(p.Ty)
	if (p.Ty.Kind == TyStruct || p.Ty.Kind == TyUnion) && classesAreMemory(classes) {
		// Passed on the caller's stack; the incoming slot above
		// %rbp+16 already holds the argument, so there is nothing to
		// spill. PassByStack redirects every later reference to that
		// positive offset instead of a -offset local copy.
		p.PassByStack = true
		p.Offset = *stackOff
		*stackOff += alignTo(p.Ty.Size, 8)
		return
	}
	switch p.Ty.Kind {
	case TyStruct, TyUnion:
		cg.storeAggregateParam(p, classes, gpIdx, fpIdx)
	case TyFloat, TyDouble:
		if *fpIdx < maxFPArgs {
			cg.printf("  movsd %%xmm%d, %d(%%rbp)\n", *fpIdx, p.Offset)
			*fpIdx++
		} else {
			p.PassByStack = true
			p.Offset = *stackOff
			*stackOff += 8
		}
	case TyLongDouble:
		p.PassByStack = true
		p.Offset = *stackOff
		*stackOff += 16
	default:
		if *gpIdx < maxGPArgs {
			cg.storeGP(*gpIdx, p.Offset, p.Ty.Size)
			*gpIdx++
		} else {
			p.PassByStack = true
			p.Offset = *stackOff
			*stackOff += 8
		}
	}
}

func (cg *Codegen) storeGP(reg, offset, size int) {
	switch size {
	case 1:
		cg.printf("  mov %s, %d(%%rbp)\n", argGP8[reg], offset)
	case 2:
		cg.printf("  mov %s, %d(%%rbp)\n", argGP16[reg], offset)
	case 4:
		cg.printf("  mov %s, %d(%%rbp)\n", argGP32[reg], offset)
	default:
		cg.printf("  mov %s, %d(%%rbp)\n", argGP64[reg], offset)
	}
}

// storeAggregateParam spills a <=16-byte struct/union argument's one or
// two eightbytes from the registers the classifier assigned them to.
func (cg *Codegen) storeAggregateParam(p *Obj, classes []abiClass, gpIdx, fpIdx *int) {
	for i, c := range classes {
		off := p.Offset + i*8
		switch c {
		case clsSSE:
			if *fpIdx < maxFPArgs {
				cg.printf("  movsd %%xmm%d, %d(%%rbp)\n", *fpIdx, off)
				*fpIdx++
			}
		default:
			if *gpIdx < maxGPArgs {
				cg.printf("  mov %s, %d(%%rbp)\n", argGP64[*gpIdx], off)
				*gpIdx++
			}
		}
	}
}

// emitVariadicPrologue saves all six GP argument registers, and the
// eight XMM argument registers when %al is non-zero, to the
// fixed-layout register-save area and records gp_offset/fp_offset so
// __builtin_va_start can initialize the caller-visible va_list in one
// struct copy (spec.md 4.5's "Variadic prologue", section 6's 176-byte
// layout at -176(%rbp)..-1(%rbp)).
func (cg *Codegen) emitVariadicPrologue(gpUsed, fpUsed int) {
	fn := cg.fn
	fn.gpOffsetUsed = gpUsed
	fn.fpOffsetUsed = fpUsed
	base := -176
	// Register number (not "remaining count") indexes the fixed slots so
	// that va_arg's eventual reads land on the correct register's value
	// regardless of how many were already consumed by named parameters.
	for i := 0; i < maxGPArgs; i++ {
		cg.printf("  mov %s, %d(%%rbp)\n", argGP64[i], base+i*8)
	}
	skip := localLabel("skip_fp", cg.nextCount())
	cg.printf("  cmp $0, %%al\n")
	cg.printf("  je %s\n", skip)
	for i := 0; i < maxFPArgs; i++ {
		cg.printf("  movaps %%xmm%d, %d(%%rbp)\n", i, base+48+i*16)
	}
	cg.printf("%s:\n", skip)
	fn.regSaveAreaOffset = base
}
