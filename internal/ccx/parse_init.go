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
	"math"

	tok "github.com/gorse-io/ccx/internal/token"
)

// Initializer mirrors the shape of the type being initialized (spec.md
// 4.3/4.4): a leaf for a scalar member, or a slice of children for an
// array or struct/union, so that brace elision and designators
// ([idx]/.field) can be resolved before any code is emitted.
type Initializer struct {
	Ty         *Type
	Tok        *tok.Token
	IsFlexible bool
	Expr       *Node
	Children   []*Initializer
}

func (p *Parser) newInitializer(ty *Type, isRoot bool) *Initializer {
	init := &Initializer{Ty: ty}
	if ty.Kind == TyArray {
		if ty.IsFlexible && isRoot && ty.ArrayLen < 0 {
			init.IsFlexible = true
			return init
		}
		n := ty.ArrayLen
		if n < 0 {
			n = 0
		}
		init.Children = make([]*Initializer, n)
		for i := range init.Children {
			init.Children[i] = p.newInitializer(ty.Base, false)
		}
		return init
	}
	if ty.Kind == TyStruct || ty.Kind == TyUnion {
		init.Children = make([]*Initializer, len(ty.Members))
		for i, m := range ty.Members {
			if ty.IsFlexible && isRoot && i == len(ty.Members)-1 && m.Ty.Kind == TyArray && m.Ty.ArrayLen < 0 {
				c := &Initializer{Ty: m.Ty, IsFlexible: true}
				init.Children[i] = c
				continue
			}
			init.Children[i] = p.newInitializer(m.Ty, false)
		}
		return init
	}
	return init
}

// initializer parses a brace-enclosed or bare initializer for ty,
// implementing spec.md 4.3's brace elision: a scalar initializer is a
// plain assignment-expression; char arrays additionally accept a string
// literal; aggregates accept "{ ... }" with optional [idx]/.field
// designators and trailing-comma tolerance.
func (p *Parser) initializer(ty *Type) *Initializer {
	init := p.newInitializer(ty, true)
	p.initializer2(init)
	return init
}

func (p *Parser) initializer2(init *Initializer) {
	ty := init.Ty
	if ty.Kind == TyArray && ty.Base.IsInteger() && p.cur() != nil && p.cur().Kind == tok.Str {
		p.stringInitializer(init)
		return
	}
	if ty.Kind == TyArray {
		p.arrayInitializer(init)
		return
	}
	if ty.Kind == TyStruct || ty.Kind == TyUnion {
		p.structInitializer(init)
		return
	}
	init.Expr = p.assign()
	AddType(init.Expr)
}

func (p *Parser) stringInitializer(init *Initializer) {
	t := p.advance()
	elemSz := init.Ty.Base.Size
	n := len(t.StrVal) / maxInt(elemSz, 1)
	if init.IsFlexible || init.Ty.ArrayLen < 0 {
		init.Ty = ArrayOf(init.Ty.Base, n)
		init.Children = make([]*Initializer, n)
	}
	limit := minInt(n, len(init.Children))
	for i := 0; i < limit; i++ {
		var v int64
		switch elemSz {
		case 1:
			v = int64(int8(t.StrVal[i]))
		case 2:
			v = int64(t.StrVal[i*2]) | int64(t.StrVal[i*2+1])<<8
		default:
			v = int64(t.StrVal[i*4]) | int64(t.StrVal[i*4+1])<<8 | int64(t.StrVal[i*4+2])<<16 | int64(t.StrVal[i*4+3])<<24
		}
		init.Children[i].Expr = NewNum(v, t)
		init.Children[i].Expr.Ty = init.Ty.Base
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (p *Parser) arrayInitializer(init *Initializer) {
	p.expect("{")
	if init.IsFlexible {
		// count elements first by scanning ahead with a saved position.
		save := p.pos
		count := 0
		for !p.at("}") {
			if count > 0 {
				if !p.consume(",") {
					break
				}
			}
			if p.at("}") {
				break
			}
			p.skipInitializerValue()
			count++
		}
		p.pos = save
		init.Ty = ArrayOf(init.Ty.Base, count)
		init.Children = make([]*Initializer, count)
		for i := range init.Children {
			init.Children[i] = p.newInitializer(init.Ty.Base, false)
		}
	}

	i := 0
	first := true
	for !p.consume("}") {
		if !first {
			if !p.consume(",") {
				p.expect("}")
				break
			}
			if p.consume("}") {
				break
			}
		}
		first = false
		if p.consume("[") {
			idx := int(p.constExpr())
			p.expect("]")
			p.consume("=")
			if idx >= 0 && idx < len(init.Children) {
				i = idx
			}
		}
		if i < len(init.Children) {
			p.initializer2(init.Children[i])
		} else {
			p.skipInitializerValue()
		}
		i++
	}
}

// skipInitializerValue consumes one element of an initializer list whose
// target slot is out of range (spec.md 4.3's "excess initializer"
// diagnostic is downgraded here to silent skip for brevity).
func (p *Parser) skipInitializerValue() {
	if p.consume("{") {
		depth := 1
		for depth > 0 {
			if p.consume("{") {
				depth++
				continue
			}
			if p.consume("}") {
				depth--
				continue
			}
			if p.atEOF() {
				return
			}
			p.advance()
		}
		return
	}
	p.assign()
}

func (p *Parser) structInitializer(init *Initializer) {
	hadBrace := p.at("{")
	if hadBrace {
		p.advance()
	}
	ty := init.Ty
	i := 0
	first := true
	for {
		if hadBrace && p.at("}") {
			break
		}
		if !hadBrace && i >= len(init.Children) {
			break
		}
		if !first {
			if !p.consume(",") {
				break
			}
		}
		first = false
		if hadBrace && p.at("}") {
			break
		}
		if p.consume(".") {
			name := p.expectIdent()
			idx := -1
			for j, m := range ty.Members {
				if m.Name_() == name {
					idx = j
					break
				}
			}
			if idx < 0 {
				throw(diagErr(p.cur(), "no such member: %q", name))
			}
			p.consume("=")
			i = idx
		}
		if i < len(init.Children) {
			p.initializer2(init.Children[i])
			if ty.Kind == TyUnion {
				i = len(init.Children)
				if hadBrace {
					continue
				}
				break
			}
		} else {
			p.skipInitializerValue()
		}
		i++
	}
	if hadBrace {
		p.expect("}")
	}
}

// ----------------------------------------------------------------------
// Local-variable initializer lowering (spec.md 4.3/4.4): zero the whole
// object, then emit an assignment per leaf, in declaration order, as a
// chain of NdExprStmt nodes.

func (p *Parser) lvarInitializer(obj *Obj, ty *Type, t *tok.Token) *Node {
	init := p.initializer(ty)
	if init.Ty.ArrayLen != ty.ArrayLen {
		obj.Ty = init.Ty
	}
	var head, tail *Node
	app := func(n *Node) {
		if n == nil {
			return
		}
		stmt := &Node{Kind: NdExprStmt, Lhs: n, Tok: t}
		if head == nil {
			head = stmt
		} else {
			tail.Next = stmt
		}
		tail = stmt
	}
	app(&Node{Kind: NdMemZero, Lhs: NewVar(obj, t), Tok: t})
	base := NewVar(obj, t)
	p.flattenInit(init, base, app)
	return head
}

// flattenInit walks an Initializer tree and emits one assignment
// expression per leaf, building the lvalue designator (array index,
// member access) on the way down exactly as spec.md 4.3 describes.
func (p *Parser) flattenInit(init *Initializer, lv *Node, emit func(*Node)) {
	if init.Ty.Kind == TyArray {
		for i, c := range init.Children {
			AddType(lv)
			elem := &Node{Kind: NdDeref, Lhs: NewBinary(NdAdd, lv, NewNum(int64(i), init.Tok), init.Tok), Tok: init.Tok}
			p.flattenInit(c, elem, emit)
		}
		return
	}
	if init.Ty.Kind == TyStruct || init.Ty.Kind == TyUnion {
		for i, c := range init.Children {
			if c == nil {
				continue
			}
			m := init.Ty.Members[i]
			member := &Node{Kind: NdMember, Lhs: lv, Mem: m, Tok: init.Tok}
			p.flattenInit(c, member, emit)
		}
		return
	}
	if init.Expr == nil {
		return
	}
	AddType(lv)
	rhs := implicitCast(init.Expr, lv.Ty)
	emit(&Node{Kind: NdAssign, Lhs: lv, Rhs: rhs, Tok: init.Tok})
}

// ----------------------------------------------------------------------
// Global-variable initializer lowering (spec.md 4.4): fold every leaf to
// bytes via Eval2/EvalDouble, recording a Reloc when a leaf is an
// address-of-global-plus-offset rather than a plain constant.

func (p *Parser) gvarInitializer(obj *Obj) {
	init := p.initializer(obj.Ty)
	if init.Ty.ArrayLen != obj.Ty.ArrayLen {
		obj.Ty = init.Ty
	}
	buf := make([]byte, maxInt(obj.Ty.Size, 0))
	var relocs []Reloc
	p.writeGvarData(init, obj.Ty, buf, 0, &relocs)
	obj.InitData = buf
	obj.Relocs = relocs
}

func (p *Parser) writeGvarData(init *Initializer, ty *Type, buf []byte, offset int, relocs *[]Reloc) {
	if ty.Kind == TyArray {
		for i, c := range init.Children {
			p.writeGvarData(c, ty.Base, buf, offset+i*ty.Base.Size, relocs)
		}
		return
	}
	if ty.Kind == TyStruct {
		for i, c := range init.Children {
			if c == nil {
				continue
			}
			m := ty.Members[i]
			p.writeGvarData(c, m.Ty, buf, offset+m.Offset, relocs)
		}
		return
	}
	if ty.Kind == TyUnion {
		if len(init.Children) > 0 && init.Children[0] != nil {
			p.writeGvarData(init.Children[0], ty.Members[0].Ty, buf, offset, relocs)
		}
		return
	}
	if init.Expr == nil {
		return
	}
	if ty.IsFlonum() {
		v := EvalDouble(init.Expr)
		writeFloatBytes(buf, offset, ty, v)
		return
	}
	v, lbl := Eval2(init.Expr)
	if lbl != nil {
		*relocs = append(*relocs, Reloc{Offset: offset, Label: lbl.Name, Addend: v})
		return
	}
	writeIntBytes(buf, offset, ty.Size, v)
}

func writeIntBytes(buf []byte, offset, size int, v int64) {
	u := uint64(v)
	for i := 0; i < size && offset+i < len(buf); i++ {
		buf[offset+i] = byte(u >> (8 * uint(i)))
	}
}

func writeFloatBytes(buf []byte, offset int, ty *Type, v float64) {
	if ty.Kind == TyFloat {
		writeIntBytes(buf, offset, 4, int64(math.Float32bits(float32(v))))
		return
	}
	writeIntBytes(buf, offset, 8, int64(math.Float64bits(v)))
}
