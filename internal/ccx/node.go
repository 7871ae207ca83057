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

import tok "github.com/gorse-io/ccx/internal/token"

// NodeKind tags the variant shape of a Node (spec.md section 3).
type NodeKind int

const (
	// Expressions
	NdNum NodeKind = iota
	NdVar
	NdMember
	NdDeref
	NdAddr
	NdCast
	NdAssign
	NdAdd
	NdSub
	NdMul
	NdDiv
	NdMod
	NdBitAnd
	NdBitOr
	NdBitXor
	NdBitNot
	NdShl
	NdShr // logical right shift
	NdSar // arithmetic right shift
	NdEq
	NdNe
	NdLt
	NdLe
	NdGt
	NdGe
	NdLogAnd
	NdLogOr
	NdNot
	NdNeg
	NdPos
	NdCond
	NdChain // comma-like, keeps rhs's type (initializer lowering)
	NdComma
	NdFunCall
	NdStmtExpr
	NdMemZero
	NdAlloca
	NdLabelVal
	NdVaStart
	NdVaCopy
	NdVaArg

	// Statements
	NdBlock
	NdIf
	NdFor
	NdDo
	NdSwitch
	NdCase
	NdReturn
	NdGoto
	NdGotoExpr
	NdLabel
	NdExprStmt
	NdAsm
	NdNull
)

// CaseRange supports GNU case ranges ("case A ... B", spec.md 4.3).
type CaseRange struct {
	Begin, End int64
	Label      string
	Next       *CaseRange
}

// Node is the expression/statement AST (spec.md section 3). Per-kind
// payload lives in dedicated fields; lhs/rhs/cond/then/els/init/inc/body
// are shared so generic traversal (add_type, goto resolution) can walk
// uniformly, per the design notes in spec.md section 9.
type Node struct {
	Kind NodeKind
	Ty   *Type
	Tok  *tok.Token

	Lhs, Rhs   *Node
	Cond       *Node
	Then, Els  *Node
	Init, Inc  *Node
	Body       *Node
	Next       *Node // statement chaining inside a Block

	// NdNum
	Val  int64
	FVal float64

	// NdVar
	Var *Obj

	// NdMember
	Mem *Member

	// NdFunCall
	FuncName string
	FuncTy   *Type
	Args     []*Node
	RetBuf   *Obj // hidden buffer for >16-byte struct returns

	// NdAssign bitfield store preserves the pre-placement value for the
	// expression's result (spec.md 4.5); codegen reads Mem off Lhs when set.

	// NdBlock
	BlockBody *Node

	// NdSwitch / NdCase
	Cases      *CaseRange
	CaseBegin  int64
	CaseEnd    int64
	DefaultLbl string

	// NdGoto / NdLabel / NdLabelVal
	Label      string
	UniqueLbl  string
	GotoVLADepth int

	// NdFor/NdDo/NdSwitch break/continue targets, assigned by the parser.
	BreakLbl    string
	ContinueLbl string

	// StmtExpr
	ExprBody *Node

	// VaArg
	VaList *Node

	// Asm
	AsmStr string
}

// NewBinary builds a binary-operator node, used pervasively by the parser
// and the constant folder.
func NewBinary(kind NodeKind, lhs, rhs *Node, t *tok.Token) *Node {
	return &Node{Kind: kind, Lhs: lhs, Rhs: rhs, Tok: t}
}

func NewUnary(kind NodeKind, operand *Node, t *tok.Token) *Node {
	return &Node{Kind: kind, Lhs: operand, Tok: t}
}

func NewNum(val int64, t *tok.Token) *Node {
	return &Node{Kind: NdNum, Val: val, Tok: t}
}

func NewVar(obj *Obj, t *tok.Token) *Node {
	return &Node{Kind: NdVar, Var: obj, Tok: t}
}
