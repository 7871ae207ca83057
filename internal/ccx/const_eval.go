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

import "math"

// Label captures a pointer-to-global relocation produced while folding a
// global initializer (spec.md 4.4: "Address-of globals + integer offsets
// are tracked as (label, addend)").
type Label struct {
	Name   string
	Addend int64
}

// Eval folds n to an integer constant with no labels permitted (spec.md
// 4.4's first entry point). It panics with an *Error on a non-constant
// expression; callers that want a recoverable probe should use
// IsConstExpr instead.
func Eval(n *Node) int64 {
	v, lbl := Eval2(n)
	if lbl != nil {
		throw(diagErr(n.Tok, "not a compile-time constant"))
	}
	return v
}

// Eval2 is spec.md 4.4's eval2: it returns the folded integer value and,
// when the expression's value is address-of-global plus an integer
// offset, the label it relocates against.
func Eval2(n *Node) (int64, *Label) {
	if n.Ty != nil && n.Ty.IsFlonum() {
		return int64(EvalDouble(n)), nil
	}

	switch n.Kind {
	case NdNum:
		return wrapInt(n.Val, n.Ty), nil
	case NdAdd:
		v1, l1 := Eval2(n.Lhs)
		v2, l2 := Eval2(n.Rhs)
		if l1 != nil && l2 != nil {
			throw(diagErr(n.Tok, "invalid initializer"))
		}
		lbl := l1
		if lbl == nil {
			lbl = l2
		}
		return wrapInt(v1+v2, n.Ty), lbl
	case NdSub:
		v1, l1 := Eval2(n.Lhs)
		v2, l2 := Eval2(n.Rhs)
		if l2 != nil && l1 == nil {
			throw(diagErr(n.Tok, "invalid initializer"))
		}
		if l1 != nil && l2 != nil {
			if l1.Name != l2.Name {
				throw(diagErr(n.Tok, "not a compile-time constant"))
			}
			return wrapInt(l1.Addend-l2.Addend, n.Ty), nil
		}
		return wrapInt(v1-v2, n.Ty), l1
	case NdAddr:
		return evalAddrLabel(n.Lhs)
	case NdVar:
		throw(diagErr(n.Tok, "not a compile-time constant"))
	case NdCast:
		v, lbl := Eval2(n.Lhs)
		if n.Ty.IsInteger() {
			return castInt(v, n.Ty), lbl
		}
		return v, lbl
	case NdLabelVal:
		return 0, &Label{Name: n.Label}
	case NdMul, NdDiv, NdMod, NdBitAnd, NdBitOr, NdBitXor, NdShl, NdShr, NdSar:
		a, _ := Eval2(n.Lhs)
		b, _ := Eval2(n.Rhs)
		return binOpInt(n.Kind, a, b, n.Ty), nil
	case NdEq, NdNe, NdLt, NdLe, NdGt, NdGe:
		a, _ := Eval2(n.Lhs)
		b, _ := Eval2(n.Rhs)
		return boolToInt(compareInt(n.Kind, a, b, n.Lhs.Ty)), nil
	case NdLogAnd:
		a, _ := Eval2(n.Lhs)
		if a == 0 {
			return 0, nil
		}
		b, _ := Eval2(n.Rhs)
		return boolToInt(b != 0), nil
	case NdLogOr:
		a, _ := Eval2(n.Lhs)
		if a != 0 {
			return 1, nil
		}
		b, _ := Eval2(n.Rhs)
		return boolToInt(b != 0), nil
	case NdNot:
		a, _ := Eval2(n.Lhs)
		return boolToInt(a == 0), nil
	case NdBitNot:
		a, _ := Eval2(n.Lhs)
		return wrapInt(^a, n.Ty), nil
	case NdNeg:
		a, _ := Eval2(n.Lhs)
		return wrapInt(-a, n.Ty), nil
	case NdPos:
		return Eval2(n.Lhs)
	case NdCond:
		c, _ := Eval2(n.Cond)
		if c != 0 {
			return Eval2(n.Then)
		}
		return Eval2(n.Els)
	case NdComma, NdChain:
		Eval2(n.Lhs)
		return Eval2(n.Rhs)
	default:
		throw(diagErr(n.Tok, "not a compile-time constant"))
		return 0, nil
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func compareInt(op NodeKind, a, b int64, ty *Type) bool {
	unsigned := ty != nil && ty.IsUnsigned
	switch op {
	case NdEq:
		return a == b
	case NdNe:
		return a != b
	case NdLt:
		if unsigned {
			return uint64(a) < uint64(b)
		}
		return a < b
	case NdLe:
		if unsigned {
			return uint64(a) <= uint64(b)
		}
		return a <= b
	case NdGt:
		if unsigned {
			return uint64(a) > uint64(b)
		}
		return a > b
	case NdGe:
		if unsigned {
			return uint64(a) >= uint64(b)
		}
		return a >= b
	default:
		return false
	}
}

func wrapInt(v int64, ty *Type) int64 {
	if ty == nil {
		return v
	}
	return castInt(v, ty)
}

// castInt implements spec.md 4.4: narrow by masking then sign-extend when
// the target is signed.
func castInt(v int64, ty *Type) int64 {
	var mask uint64
	switch ty.Size {
	case 1:
		mask = 0xff
	case 2:
		mask = 0xffff
	case 4:
		mask = 0xffffffff
	default:
		return v
	}
	u := uint64(v) & mask
	if ty.IsUnsigned {
		return int64(u)
	}
	// sign extend from the narrowed width
	shift := uint(64 - ty.Size*8)
	return int64(u<<shift) >> shift
}

func evalAddrLabel(n *Node) (int64, *Label) {
	switch n.Kind {
	case NdVar:
		if n.Var.IsLocal {
			throw(diagErr(n.Tok, "not a compile-time constant"))
		}
		return 0, &Label{Name: n.Var.Name.Lexeme}
	case NdDeref:
		return Eval2(n.Lhs)
	case NdMember:
		v, lbl := evalAddrLabel(n.Lhs)
		return v + int64(n.Mem.Offset), lbl
	default:
		throw(diagErr(n.Tok, "invalid initializer"))
		return 0, nil
	}
}

// binOpInt implements the wrap/overflow rules of spec.md 4.4: signed
// 32-bit ops computed in 32 bits then sign-extended; unsigned ops in the
// declared width; division by zero and INT_MIN/-1 are recognized.
func binOpInt(op NodeKind, a, b int64, ty *Type) int64 {
	is32 := ty != nil && ty.Size <= 4 && !ty.IsUnsigned
	isU32 := ty != nil && ty.Size <= 4 && ty.IsUnsigned
	switch op {
	case NdMul:
		return wrapInt(a*b, ty)
	case NdDiv:
		if b == 0 {
			throw(diagErr(nil, "division by zero"))
		}
		if is32 && a == math.MinInt32 && b == -1 {
			return math.MinInt32
		}
		if isU32 {
			return int64(uint32(a) / uint32(b))
		}
		return wrapInt(a/b, ty)
	case NdMod:
		if b == 0 {
			throw(diagErr(nil, "division by zero"))
		}
		if is32 && a == math.MinInt32 && b == -1 {
			return 0
		}
		if isU32 {
			return int64(uint32(a) % uint32(b))
		}
		return wrapInt(a%b, ty)
	case NdBitAnd:
		return wrapInt(a&b, ty)
	case NdBitOr:
		return wrapInt(a|b, ty)
	case NdBitXor:
		return wrapInt(a^b, ty)
	case NdShl:
		return wrapInt(a<<uint(b&63), ty)
	case NdShr:
		if isU32 {
			return int64(uint32(a) >> uint(b&31))
		}
		return wrapInt(int64(uint64(a)>>uint(b&63)), ty)
	case NdSar:
		return wrapInt(a>>uint(b&63), ty)
	default:
		return 0
	}
}

// EvalDouble implements spec.md 4.4's separate floating entry point, at
// long double (float64 host) precision.
func EvalDouble(n *Node) float64 {
	AddType(n)
	switch n.Kind {
	case NdNum:
		if n.Ty != nil && n.Ty.IsFlonum() {
			return n.FVal
		}
		return float64(n.Val)
	case NdCast:
		if n.Lhs.Ty.IsFlonum() {
			v := EvalDouble(n.Lhs)
			if n.Ty.Kind == TyFloat {
				return float64(float32(v))
			}
			return v
		}
		iv, _ := Eval2(n.Lhs)
		if n.Lhs.Ty != nil && n.Lhs.Ty.IsUnsigned && n.Lhs.Ty.Size == 8 {
			return float64(uint64(iv))
		}
		return float64(iv)
	case NdAdd:
		return EvalDouble(n.Lhs) + EvalDouble(n.Rhs)
	case NdSub:
		return EvalDouble(n.Lhs) - EvalDouble(n.Rhs)
	case NdMul:
		return EvalDouble(n.Lhs) * EvalDouble(n.Rhs)
	case NdDiv:
		return EvalDouble(n.Lhs) / EvalDouble(n.Rhs)
	case NdNeg:
		return -EvalDouble(n.Lhs)
	case NdCond:
		if EvalDouble(n.Cond) != 0 {
			return EvalDouble(n.Then)
		}
		return EvalDouble(n.Els)
	case NdComma:
		EvalDouble(n.Lhs)
		return EvalDouble(n.Rhs)
	default:
		if n.Ty != nil && !n.Ty.IsFlonum() {
			v, _ := Eval2(n)
			return float64(v)
		}
		throw(diagErr(n.Tok, "not a compile-time constant"))
		return 0
	}
}

// IsConstExpr probes whether n folds to a constant without aborting,
// implementing spec.md 4.4/4.6's recover flag for __builtin_constant_p
// and array-dimension probing.
func IsConstExpr(n *Node) bool {
	ok, _ := tryFold(func() { Eval(n) })
	return ok
}
