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

// genStmt lowers one statement node (spec.md 4.3/4.5). Forward/backward
// labels use monotonically increasing ids from nextCount so nested
// constructs never collide.
func (cg *Codegen) genStmt(n *Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case NdBlock:
		for s := n.BlockBody; s != nil; s = s.Next {
			cg.genStmt(s)
		}
	case NdIf:
		c := cg.nextCount()
		elseLbl := localLabel("else", c)
		endLbl := localLabel("end", c)
		cg.genExpr(n.Cond)
		cg.cmpZero(n.Cond.Ty)
		cg.printf("  je %s\n", elseLbl)
		cg.genStmt(n.Then)
		cg.printf("  jmp %s\n", endLbl)
		cg.printf("%s:\n", elseLbl)
		cg.genStmt(n.Els)
		cg.printf("%s:\n", endLbl)
	case NdFor:
		beginLbl := localLabel("begin", cg.nextCount())
		cg.genStmt(n.Init)
		cg.printf("%s:\n", beginLbl)
		if n.Cond != nil {
			cg.genExpr(n.Cond)
			cg.cmpZero(n.Cond.Ty)
			cg.printf("  je %s\n", n.BreakLbl)
		}
		cg.genStmt(n.Then)
		cg.printf("%s:\n", n.ContinueLbl)
		if n.Inc != nil {
			cg.genStmt(n.Inc)
		}
		cg.printf("  jmp %s\n", beginLbl)
		cg.printf("%s:\n", n.BreakLbl)
	case NdDo:
		beginLbl := localLabel("begin", cg.nextCount())
		cg.printf("%s:\n", beginLbl)
		cg.genStmt(n.Then)
		cg.printf("%s:\n", n.ContinueLbl)
		cg.genExpr(n.Cond)
		cg.cmpZero(n.Cond.Ty)
		cg.printf("  jne %s\n", beginLbl)
		cg.printf("%s:\n", n.BreakLbl)
	case NdSwitch:
		cg.genSwitch(n)
	case NdCase:
		cg.printf("%s:\n", n.Label)
		cg.genStmt(n.Lhs)
	case NdReturn:
		cg.genReturn(n)
	case NdGoto:
		cg.restoreVLARsp()
		cg.printf("  jmp %s\n", n.UniqueLbl)
	case NdGotoExpr:
		cg.genExpr(n.Lhs)
		cg.restoreVLARsp()
		cg.printf("  jmp *%%rax\n")
	case NdLabel:
		cg.printf("%s:\n", n.UniqueLbl)
		cg.genStmt(n.Lhs)
	case NdExprStmt:
		cg.genExpr(n.Lhs)
	case NdAsm:
		cg.printf("  %s\n", n.AsmStr)
	case NdNull:
		// no-op
	}
}

// genSwitch lowers a switch as a linear run of range comparisons (spec.md
// 4.5's "Statement lowering"): a single-value case tests "cmp value; je
// label" and a GNU "case A ... B" range tests "sub begin; cmp (end-begin);
// jbe label", falling through to default or the break label if none match.
func (cg *Codegen) genSwitch(n *Node) {
	cg.genExpr(n.Cond)
	for cr := n.Cases; cr != nil; cr = cr.Next {
		if cr.Begin == cr.End {
			cg.printf("  cmp $%d, %%rax\n", cr.Begin)
			cg.printf("  je %s\n", cr.Label)
			continue
		}
		cg.printf("  mov %%rax, %%rcx\n")
		cg.printf("  sub $%d, %%rcx\n", cr.Begin)
		cg.printf("  cmp $%d, %%rcx\n", cr.End-cr.Begin)
		cg.printf("  jbe %s\n", cr.Label)
	}
	if n.DefaultLbl != "" {
		cg.printf("  jmp %s\n", n.DefaultLbl)
	} else {
		cg.printf("  jmp %s\n", n.BreakLbl)
	}
	cg.genStmt(n.Then)
	cg.printf("%s:\n", n.BreakLbl)
}

// genReturn loads the return value into the ABI-mandated registers (or
// finishes the hidden-pointer copy for a >16-byte aggregate) and jumps to
// the function's single epilogue, matching the one-exit-point shape the
// temp-stack manager's peak-based frame size assumes.
func (cg *Codegen) genReturn(n *Node) {
	if n.Lhs != nil {
		retTy := cg.fn.Ty.ReturnTy
		switch {
		case retTy.Kind == TyStruct || retTy.Kind == TyUnion:
			cg.genExpr(n.Lhs) // leaves the aggregate's address in %rax
			if cg.fn.HasRetBuf {
				cg.printf("  mov %%rax, %%rcx\n")
				cg.printf("  mov %d(%%rbp), %%rdx\n", cg.fn.RetBufOffset)
				cg.storeStructInline("%rcx", "%rdx", retTy.Size)
				cg.printf("  mov %d(%%rbp), %%rax\n", cg.fn.RetBufOffset)
			} else {
				classes := paramClasses(retTy)
				gpRegs := [...]string{"%rax", "%rdx"}
				fpRegs := [...]string{"%xmm0", "%xmm1"}
				gp, fp := 0, 0
				cg.printf("  mov %%rax, %%r11\n")
				for i, c := range classes {
					off := i * 8
					switch c {
					case clsSSE:
						cg.printf("  movsd %d(%%r11), %s\n", off, fpRegs[fp])
						fp++
					default:
						cg.printf("  mov %d(%%r11), %s\n", off, gpRegs[gp])
						gp++
					}
				}
			}
		default:
			cg.genExpr(n.Lhs) // leaves the scalar in %rax or %xmm0
		}
	}
	cg.printf("  jmp %s\n", cg.curRetLbl)
}

// restoreVLARsp reloads %rsp from the function's VLA save slot before a
// goto, break, or continue jumps (spec.md 4.5/9). The prologue stores the
// entry %rsp in that slot and every alloca() overwrites it with the new
// %rsp, so the reload returns to the most recent alloca's %rsp and does
// not release stack space that alloca() handed out.
func (cg *Codegen) restoreVLARsp() {
	cg.printf("  mov %d(%%rbp), %%rsp\n", cg.fn.VLARspOffset)
}
