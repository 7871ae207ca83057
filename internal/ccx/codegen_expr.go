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
	"fmt"
	"math"
)

// genAddr computes n's address into %rax. Every lvalue shape the parser
// produces (NdVar, NdDeref, NdMember, NdComma/NdChain, a compound-literal
// or statement-expression yielding a struct) is handled here; everything
// else is a parser bug, not a user error, so it throws like the rest of
// the generator's internal invariants.
func (cg *Codegen) genAddr(n *Node) {
	switch n.Kind {
	case NdVar:
		cg.genVarAddr(n.Var)
	case NdDeref:
		cg.genExpr(n.Lhs)
	case NdMember:
		cg.genAddr(n.Lhs)
		cg.printf("  add $%d, %%rax\n", n.Mem.Offset)
	case NdComma:
		cg.genExpr(n.Lhs)
		cg.genAddr(n.Rhs)
	case NdChain:
		cg.genExpr(n.Lhs)
		cg.genAddr(n.Rhs)
	case NdFunCall, NdStmtExpr:
		if n.Ty.Kind == TyStruct || n.Ty.Kind == TyUnion {
			cg.genExpr(n)
			return
		}
		throw(diagErr(n.Tok, "not an lvalue"))
	default:
		throw(diagErr(n.Tok, "not an lvalue"))
	}
}

func (cg *Codegen) genVarAddr(obj *Obj) {
	if obj.IsLocal {
		cg.printf("  lea %d(%%rbp), %%rax\n", obj.Offset)
		return
	}
	if cg.cfg.PIC && !obj.IsDefinition {
		cg.printf("  mov %s@GOTPCREL(%%rip), %%rax\n", obj.Name.Lexeme)
		return
	}
	cg.printf("  lea %s(%%rip), %%rax\n", obj.Name.Lexeme)
}

// load reads the value addressed by %rax into the accumulator, sized and
// widened per ty (spec.md 4.2's type sizes, 4.5's register conventions).
func (cg *Codegen) load(ty *Type) {
	switch ty.Kind {
	case TyArray, TyVLA, TyStruct, TyUnion, TyFunc:
		// Arrays/functions decay to their address, already in %rax;
		// aggregates are loaded piecewise by the caller (struct assign,
		// argument classification), not as a scalar.
		return
	case TyFloat:
		cg.printf("  movss (%%rax), %%xmm0\n")
		return
	case TyDouble, TyLongDouble:
		cg.printf("  movsd (%%rax), %%xmm0\n")
		return
	}
	insn := "movs"
	if ty.IsUnsigned {
		insn = "movz"
	}
	switch ty.Size {
	case 1:
		cg.printf("  %sbl (%%rax), %%eax\n", insn)
		if !ty.IsUnsigned {
			cg.printf("  movslq %%eax, %%rax\n")
		}
	case 2:
		cg.printf("  %swl (%%rax), %%eax\n", insn)
		if !ty.IsUnsigned {
			cg.printf("  movslq %%eax, %%rax\n")
		}
	case 4:
		if ty.IsUnsigned {
			cg.printf("  mov (%%rax), %%eax\n")
		} else {
			cg.printf("  movslq (%%rax), %%rax\n")
		}
	default:
		cg.printf("  mov (%%rax), %%rax\n")
	}
}

// store writes the accumulator through the address popped from the temp
// stack into *addr, implementing bitfield read-modify-write and whole-
// struct copy inline (spec.md 4.5's "Bitfield store"/"Struct assignment").
func (cg *Codegen) store(n *Node) {
	ty := n.Ty
	if n.Kind == NdMember && n.Mem.IsBitfield {
		cg.storeBitfield(n.Mem)
		return
	}
	switch ty.Kind {
	case TyStruct, TyUnion:
		cg.pop("%rcx") // destination address
		cg.storeStructInline("%rax", "%rcx", ty.Size)
		return
	case TyFloat:
		cg.pop("%rcx")
		cg.printf("  movss %%xmm0, (%%rcx)\n")
		return
	case TyDouble, TyLongDouble:
		cg.pop("%rcx")
		cg.printf("  movsd %%xmm0, (%%rcx)\n")
		return
	}
	cg.pop("%rcx")
	switch ty.Size {
	case 1:
		cg.printf("  mov %%al, (%%rcx)\n")
	case 2:
		cg.printf("  mov %%ax, (%%rcx)\n")
	case 4:
		cg.printf("  mov %%eax, (%%rcx)\n")
	default:
		cg.printf("  mov %%rax, (%%rcx)\n")
	}
}

// storeBitfield implements the read-modify-write sequence of spec.md
// 4.5: read the storage unit, mask out the field's window, OR in the new
// value shifted into place, write back, and leave the pre-placement
// value (not the packed word) in %rax as the expression's result.
func (cg *Codegen) storeBitfield(m *Member) {
	cg.printf("  mov %%rax, %%rdx\n") // stash the unmasked new value
	cg.pop("%rcx")                    // destination address
	cg.printf("  mov (%%rcx), %%rax\n")
	mask := (int64(1) << uint(m.BitWidth)) - 1
	cg.printf("  mov $%d, %%rsi\n", mask)
	cg.printf("  and %%rsi, %%rdx\n")
	cg.printf("  shl $%d, %%rdx\n", m.BitOffset)
	cg.printf("  shl $%d, %%rsi\n", m.BitOffset)
	cg.printf("  not %%rsi\n")
	cg.printf("  and %%rsi, %%rax\n")
	cg.printf("  or %%rdx, %%rax\n")
	cg.printf("  mov %%rax, (%%rcx)\n")
	cg.printf("  mov %%rdx, %%rax\n") // pre-shift masked value remains the expression's value
	cg.printf("  shr $%d, %%rax\n", m.BitOffset)
}

func (cg *Codegen) loadBitfield(m *Member) {
	width := 64 - m.BitWidth
	cg.printf("  shl $%d, %%rax\n", width-m.BitOffset)
	if m.Ty.IsUnsigned {
		cg.printf("  shr $%d, %%rax\n", width)
	} else {
		cg.printf("  sar $%d, %%rax\n", width)
	}
}

// storeStructInline copies size bytes from the address in srcReg to the
// address in dstReg in descending widths (movups for 16-byte chunks,
// then scalar moves through %r11), spec.md 4.5's "Struct assignment".
func (cg *Codegen) storeStructInline(srcReg, dstReg string, size int) {
	mem := func(reg string, off int) string {
		if off == 0 {
			return fmt.Sprintf("(%s)", reg)
		}
		return fmt.Sprintf("%d(%s)", off, reg)
	}
	off := 0
	for size-off >= 16 {
		cg.printf("  movups %s, %%xmm8\n", mem(srcReg, off))
		cg.printf("  movups %%xmm8, %s\n", mem(dstReg, off))
		off += 16
	}
	widths := []struct {
		n        int
		reg64    string
		loadOp   string
	}{
		{8, "%r11", "mov"},
		{4, "%r11d", "mov"},
		{2, "%r11w", "mov"},
		{1, "%r11b", "mov"},
	}
	for _, w := range widths {
		for size-off >= w.n {
			cg.printf("  %s %s, %s\n", w.loadOp, mem(srcReg, off), w.reg64)
			cg.printf("  %s %s, %s\n", w.loadOp, w.reg64, mem(dstReg, off))
			off += w.n
		}
	}
}

func (cg *Codegen) cmpZero(ty *Type) {
	if ty.IsFlonum() {
		cg.printf("  xorps %%xmm1, %%xmm1\n")
		if ty.Kind == TyFloat {
			cg.printf("  ucomiss %%xmm1, %%xmm0\n")
		} else {
			cg.printf("  ucomisd %%xmm1, %%xmm0\n")
		}
		return
	}
	cg.printf("  cmp $0, %%rax\n")
}

// genExpr is the single-pass expression lowering of spec.md 4.5:
// %rax/%xmm0 always holds the just-evaluated value on return.
func (cg *Codegen) genExpr(n *Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case NdNum:
		cg.genNum(n)
		return
	case NdVar, NdMember:
		cg.genAddr(n)
		if n.Kind == NdMember && n.Mem.IsBitfield {
			cg.load(n.Mem.Ty)
			cg.loadBitfield(n.Mem)
			return
		}
		cg.load(n.Ty)
		return
	case NdDeref:
		cg.genExpr(n.Lhs)
		cg.load(n.Ty)
		return
	case NdAddr:
		cg.genAddr(n.Lhs)
		return
	case NdAssign:
		cg.genAddr(n.Lhs)
		cg.push()
		cg.genExpr(n.Rhs)
		cg.store(n.Lhs)
		return
	case NdCast:
		cg.genCast(n)
		return
	case NdCond:
		cg.genCond(n)
		return
	case NdNot:
		cg.genExpr(n.Lhs)
		cg.cmpZero(n.Lhs.Ty)
		cg.printf("  sete %%al\n")
		cg.printf("  movzbl %%al, %%eax\n")
		return
	case NdBitNot:
		cg.genExpr(n.Lhs)
		cg.printf("  not %%rax\n")
		return
	case NdNeg:
		cg.genExpr(n.Lhs)
		if n.Ty.IsFlonum() {
			cg.printf("  xorps %%xmm1, %%xmm1\n")
			if n.Ty.Kind == TyFloat {
				cg.printf("  subss %%xmm0, %%xmm1\n")
			} else {
				cg.printf("  subsd %%xmm0, %%xmm1\n")
			}
			cg.printf("  movaps %%xmm1, %%xmm0\n")
			return
		}
		cg.printf("  neg %%rax\n")
		return
	case NdPos:
		cg.genExpr(n.Lhs)
		return
	case NdLogAnd:
		cg.genLogAnd(n)
		return
	case NdLogOr:
		cg.genLogOr(n)
		return
	case NdComma:
		cg.genExpr(n.Lhs)
		cg.genExpr(n.Rhs)
		return
	case NdChain:
		cg.genExpr(n.Lhs)
		cg.genExpr(n.Rhs)
		return
	case NdMemZero:
		cg.genMemZero(n)
		return
	case NdStmtExpr:
		cg.genStmt(n.ExprBody)
		return
	case NdFunCall:
		cg.genFuncall(n)
		return
	case NdAlloca:
		cg.genAlloca(n)
		return
	case NdLabelVal:
		cg.printf("  lea %s(%%rip), %%rax\n", n.Label)
		return
	case NdVaStart:
		cg.genVaStart(n)
		return
	case NdVaCopy:
		cg.genVaCopy(n)
		return
	case NdVaArg:
		cg.genVaArg(n)
		return
	}

	switch n.Kind {
	case NdEq, NdNe, NdLt, NdLe, NdGt, NdGe:
		cg.genCompare(n)
	default:
		cg.genArith(n)
	}
}

func (cg *Codegen) genNum(n *Node) {
	if n.Ty != nil && n.Ty.IsFlonum() {
		bits := f64bits(n.FVal)
		cg.printf("  mov $%d, %%rax\n", bits)
		cg.printf("  movq %%rax, %%xmm0\n")
		if n.Ty.Kind == TyFloat {
			cg.printf("  cvtsd2ss %%xmm0, %%xmm0\n")
		}
		return
	}
	cg.printf("  mov $%d, %%rax\n", n.Val)
}

func (cg *Codegen) genCast(n *Node) {
	cg.genExpr(n.Lhs)
	from, to := n.Lhs.Ty, n.Ty
	if to.Kind == TyVoid {
		return
	}
	if to.Kind == TyBool {
		cg.cmpZero(from)
		cg.printf("  setne %%al\n")
		cg.printf("  movzbl %%al, %%eax\n")
		return
	}
	switch {
	case from.IsFlonum() && to.IsFlonum():
		if from.Kind == TyFloat && to.Kind != TyFloat {
			cg.printf("  cvtss2sd %%xmm0, %%xmm0\n")
		} else if from.Kind != TyFloat && to.Kind == TyFloat {
			cg.printf("  cvtsd2ss %%xmm0, %%xmm0\n")
		}
	case from.IsFlonum() && to.IsInteger():
		if from.Kind == TyFloat {
			cg.printf("  cvttss2siq %%xmm0, %%rax\n")
		} else {
			cg.printf("  cvttsd2siq %%xmm0, %%rax\n")
		}
		cg.truncInt(to)
	case from.IsInteger() && to.IsFlonum():
		if from.IsUnsigned && from.Size == 8 {
			cg.printf("  mov %%rax, %%rax\n")
		}
		cg.printf("  cvtsi2sdq %%rax, %%xmm0\n")
		if to.Kind == TyFloat {
			cg.printf("  cvtsd2ss %%xmm0, %%xmm0\n")
		}
	default:
		cg.truncInt(to)
	}
}

func (cg *Codegen) truncInt(to *Type) {
	switch to.Size {
	case 1:
		if to.IsUnsigned {
			cg.printf("  movzbl %%al, %%eax\n")
		} else {
			cg.printf("  movsbl %%al, %%eax\n")
		}
	case 2:
		if to.IsUnsigned {
			cg.printf("  movzwl %%ax, %%eax\n")
		} else {
			cg.printf("  movswl %%ax, %%eax\n")
		}
	case 4:
		if to.IsUnsigned {
			cg.printf("  mov %%eax, %%eax\n")
		} else {
			cg.printf("  movslq %%eax, %%eax\n")
		}
	}
}

func (cg *Codegen) genCond(n *Node) {
	c := cg.nextCount()
	elseLbl := localLabel("else", c)
	endLbl := localLabel("end", c)
	cg.genExpr(n.Cond)
	cg.cmpZero(n.Cond.Ty)
	cg.printf("  je %s\n", elseLbl)
	cg.genExpr(n.Then)
	cg.printf("  jmp %s\n", endLbl)
	cg.printf("%s:\n", elseLbl)
	cg.genExpr(n.Els)
	cg.printf("%s:\n", endLbl)
}

func (cg *Codegen) genLogAnd(n *Node) {
	c := cg.nextCount()
	falseLbl := localLabel("false", c)
	endLbl := localLabel("end", c)
	cg.genExpr(n.Lhs)
	cg.cmpZero(n.Lhs.Ty)
	cg.printf("  je %s\n", falseLbl)
	cg.genExpr(n.Rhs)
	cg.cmpZero(n.Rhs.Ty)
	cg.printf("  je %s\n", falseLbl)
	cg.printf("  mov $1, %%rax\n")
	cg.printf("  jmp %s\n", endLbl)
	cg.printf("%s:\n", falseLbl)
	cg.printf("  mov $0, %%rax\n")
	cg.printf("%s:\n", endLbl)
}

func (cg *Codegen) genLogOr(n *Node) {
	c := cg.nextCount()
	trueLbl := localLabel("true", c)
	endLbl := localLabel("end", c)
	cg.genExpr(n.Lhs)
	cg.cmpZero(n.Lhs.Ty)
	cg.printf("  jne %s\n", trueLbl)
	cg.genExpr(n.Rhs)
	cg.cmpZero(n.Rhs.Ty)
	cg.printf("  jne %s\n", trueLbl)
	cg.printf("  mov $0, %%rax\n")
	cg.printf("  jmp %s\n", endLbl)
	cg.printf("%s:\n", trueLbl)
	cg.printf("  mov $1, %%rax\n")
	cg.printf("%s:\n", endLbl)
}

func (cg *Codegen) genMemZero(n *Node) {
	cg.genAddr(n.Lhs)
	cg.printf("  mov %%rax, %%rdi\n")
	cg.printf("  xor %%al, %%al\n")
	cg.printf("  mov $%d, %%rcx\n", n.Lhs.Ty.Size)
	cg.printf("  rep stosb\n")
}

func (cg *Codegen) genAlloca(n *Node) {
	cg.genExpr(n.Lhs)
	cg.printf("  add $15, %%rax\n")
	cg.printf("  and $-16, %%rax\n")
	cg.printf("  sub %%rax, %%rsp\n")
	cg.printf("  mov %%rsp, %%rax\n")
	cg.printf("  mov %%rsp, %d(%%rbp)\n", cg.fn.VLARspOffset)
}

func f64bits(v float64) int64 {
	return int64(math.Float64bits(v))
}
