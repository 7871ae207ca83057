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

// Expression parsing follows the precedence ladder of spec.md 4.3:
// expr -> assign -> conditional -> logor -> logand -> bitor -> bitxor ->
// bitand -> equality -> relational -> shift -> add -> mul -> cast ->
// unary -> postfix -> primary.

func (p *Parser) constExpr() int64 {
	n := p.conditional()
	AddType(n)
	return Eval(n)
}

func (p *Parser) expr() *Node {
	n := p.assign()
	for p.consume(",") {
		t := p.toks[p.pos-1]
		n = &Node{Kind: NdComma, Lhs: n, Rhs: p.assign(), Tok: t}
	}
	return n
}

var compoundAssignOps = map[string]NodeKind{
	"+=": NdAdd, "-=": NdSub, "*=": NdMul, "/=": NdDiv, "%=": NdMod,
	"&=": NdBitAnd, "|=": NdBitOr, "^=": NdBitXor, "<<=": NdShl, ">>=": NdSar,
}

func (p *Parser) assign() *Node {
	n := p.conditional()
	if p.consume("=") {
		t := p.toks[p.pos-1]
		return &Node{Kind: NdAssign, Lhs: n, Rhs: p.assign(), Tok: t}
	}
	t := p.cur()
	if t != nil {
		if op, ok := compoundAssignOps[t.Lexeme]; ok && t.Kind == tok.Punct {
			p.advance()
			return p.toCompoundAssign(n, op, p.assign(), t)
		}
	}
	return n
}

// toCompoundAssign desugars "a op= b" into a side-effect-safe form that
// evaluates a's address once (spec.md 4.3's to_assign): &a is stashed in
// a hidden pointer local, then *ptr = *ptr op b.
func (p *Parser) toCompoundAssign(lhs *Node, op NodeKind, rhs *Node, t *tok.Token) *Node {
	AddType(lhs)
	if lhs.Kind == NdMember && lhs.Mem != nil && lhs.Mem.IsBitfield {
		// bitfield compound assignment re-reads the member directly; codegen
		// already does read-modify-write for a plain NdAssign into a
		// bitfield member, so a single evaluation of lhs is safe here only
		// when lhs has no side effects (typical: ident.field, ident->field).
		return &Node{Kind: NdAssign, Lhs: lhs, Rhs: NewBinary(op, lhs, rhs, t), Tok: t}
	}
	ptrVar := p.newLvar(PointerTo(lhs.Ty))
	ptrNode := NewVar(ptrVar, t)
	addrAssign := &Node{Kind: NdAssign, Lhs: ptrNode, Rhs: &Node{Kind: NdAddr, Lhs: lhs, Tok: t}, Tok: t}
	deref := &Node{Kind: NdDeref, Lhs: ptrNode, Tok: t}
	valueAssign := &Node{Kind: NdAssign, Lhs: deref, Rhs: NewBinary(op, deref, rhs, t), Tok: t}
	return &Node{Kind: NdChain, Lhs: addrAssign, Rhs: valueAssign, Tok: t}
}

// newLvar allocates a hidden local in the function currently being
// parsed, used by compound-assignment desugaring and by VLA size
// materialization (spec.md 4.3, 4.5).
func (p *Parser) newLvar(ty *Type) *Obj {
	obj := &Obj{Ty: ty, IsLocal: true}
	if p.curFn != nil {
		p.curFn.Locals = append(p.curFn.Locals, obj)
	}
	if p.scope != nil {
		s := p.scope.NonTemporary()
		s.Locals = append(s.Locals, obj)
	}
	return obj
}

func (p *Parser) conditional() *Node {
	cond := p.logOr()
	if p.consume("?") {
		t := p.toks[p.pos-1]
		if p.consume(":") {
			// GNU extension: "a ?: b" means "a ? a : b" with a evaluated once.
			els := p.conditional()
			if p.curFn == nil {
				// file scope: a constant expression, so a has no side effects
				return &Node{Kind: NdCond, Cond: cond, Then: cond, Els: els, Tok: t}
			}
			AddType(cond)
			tmp := p.newLvar(PtrDecay(cond.Ty))
			setTmp := &Node{Kind: NdAssign, Lhs: NewVar(tmp, t), Rhs: cond, Tok: t}
			return &Node{Kind: NdCond, Cond: setTmp, Then: NewVar(tmp, t), Els: els, Tok: t}
		}
		then := p.expr()
		p.expect(":")
		els := p.conditional()
		return &Node{Kind: NdCond, Cond: cond, Then: then, Els: els, Tok: t}
	}
	return cond
}

func (p *Parser) binaryChain(next func() *Node, kinds map[string]NodeKind) *Node {
	n := next()
	for {
		t := p.cur()
		if t == nil {
			return n
		}
		kind, ok := kinds[t.Lexeme]
		if !ok || t.Kind != tok.Punct {
			return n
		}
		p.advance()
		n = NewBinary(kind, n, next(), t)
	}
}

func (p *Parser) logOr() *Node {
	return p.binaryChain(p.logAnd, map[string]NodeKind{"||": NdLogOr})
}
func (p *Parser) logAnd() *Node {
	return p.binaryChain(p.bitOr, map[string]NodeKind{"&&": NdLogAnd})
}
func (p *Parser) bitOr() *Node {
	return p.binaryChain(p.bitXor, map[string]NodeKind{"|": NdBitOr})
}
func (p *Parser) bitXor() *Node {
	return p.binaryChain(p.bitAnd, map[string]NodeKind{"^": NdBitXor})
}
func (p *Parser) bitAnd() *Node {
	return p.binaryChain(p.equality, map[string]NodeKind{"&": NdBitAnd})
}
func (p *Parser) equality() *Node {
	return p.binaryChain(p.relational, map[string]NodeKind{"==": NdEq, "!=": NdNe})
}
func (p *Parser) relational() *Node {
	return p.binaryChain(p.shift, map[string]NodeKind{"<": NdLt, "<=": NdLe, ">": NdGt, ">=": NdGe})
}
func (p *Parser) shift() *Node {
	return p.binaryChain(p.additive, map[string]NodeKind{"<<": NdShl, ">>": NdSar})
}
func (p *Parser) additive() *Node {
	return p.binaryChain(p.multiplicative, map[string]NodeKind{"+": NdAdd, "-": NdSub})
}
func (p *Parser) multiplicative() *Node {
	return p.binaryChain(p.cast, map[string]NodeKind{"*": NdMul, "/": NdDiv, "%": NdMod})
}

// cast handles both C-style casts and the compound-literal form
// "(type){ initializer-list }" (spec.md 4.3/4.4).
func (p *Parser) cast() *Node {
	if p.at("(") && p.isTypenameAt(1) {
		t := p.cur()
		p.advance()
		base, _ := p.declspec(nil)
		ty, _ := p.abstractDeclarator(base)
		p.expect(")")
		if p.at("{") {
			return p.compoundLiteral(ty, t)
		}
		n := &Node{Kind: NdCast, Lhs: p.cast(), Ty: ty, Tok: t}
		return n
	}
	return p.unary()
}

func (p *Parser) isTypenameAt(offset int) bool {
	save := p.pos
	p.pos += offset
	ok := p.isTypename()
	p.pos = save
	return ok
}

// compoundLiteral lowers "(T){...}" into an anonymous local (inside a
// function) or global (at file scope) initialized the same way a named
// declaration with an initializer would be (spec.md 4.3/4.4).
func (p *Parser) compoundLiteral(ty *Type, t *tok.Token) *Node {
	if p.curFn != nil {
		p.enterScope()
		p.scope.NonTemporary()
		p.scope.IsTemporary = true
		obj := p.newLvar(ty)
		n := p.lvarInitializer(obj, ty, t)
		p.leaveScope()
		return n
	}
	name := &tok.Token{Kind: tok.Ident, Lexeme: p.newAnonName(), Pos: t.Pos}
	obj := p.newGlobal(name, ty)
	obj.IsStatic = true
	obj.IsDefinition = true
	p.gvarInitializer(obj)
	return NewVar(obj, t)
}

func (p *Parser) unary() *Node {
	t := p.cur()
	switch {
	case p.consume("+"):
		return p.cast()
	case p.consume("-"):
		return &Node{Kind: NdNeg, Lhs: p.cast(), Tok: t}
	case p.consume("*"):
		return &Node{Kind: NdDeref, Lhs: p.cast(), Tok: t}
	case p.consume("&"):
		return &Node{Kind: NdAddr, Lhs: p.cast(), Tok: t}
	case p.consume("!"):
		return &Node{Kind: NdNot, Lhs: p.cast(), Tok: t}
	case p.consume("~"):
		return &Node{Kind: NdBitNot, Lhs: p.cast(), Tok: t}
	case p.consume("++"):
		return p.toCompoundAssign(p.unary(), NdAdd, NewNum(1, t), t)
	case p.consume("--"):
		return p.toCompoundAssign(p.unary(), NdSub, NewNum(1, t), t)
	case p.atIdent("sizeof"):
		return p.sizeofExpr()
	case p.atIdent("_Alignof"):
		return p.alignofExpr()
	case p.atIdent("__builtin_types_compatible_p"):
		return p.builtinTypesCompatibleP()
	case p.atIdent("__builtin_constant_p"):
		return p.builtinConstantP()
	case p.atIdent("__builtin_va_start"), p.atIdent("va_start"):
		return p.vaStartExpr()
	case p.atIdent("__builtin_va_end"), p.atIdent("va_end"):
		return p.vaEndExpr()
	case p.atIdent("__builtin_va_copy"), p.atIdent("va_copy"):
		return p.vaCopyExpr()
	case p.atIdent("__builtin_va_arg"), p.atIdent("va_arg"):
		return p.vaArgExpr()
	case p.at("&&"):
		// GNU labels-as-values: &&label
		p.advance()
		lbl := p.expectIdent()
		return &Node{Kind: NdLabelVal, Label: lbl, Tok: t}
	default:
		return p.postfix()
	}
}

func (p *Parser) sizeofExpr() *Node {
	t := p.advance()
	if p.at("(") && p.isTypenameAt(1) {
		p.advance()
		base, _ := p.declspec(nil)
		ty, _ := p.abstractDeclarator(base)
		p.expect(")")
		return NewNum(int64(ty.Size), t)
	}
	operand := p.unary()
	AddType(operand)
	return NewNum(int64(operand.Ty.Size), t)
}

func (p *Parser) alignofExpr() *Node {
	t := p.advance()
	p.expect("(")
	base, _ := p.declspec(nil)
	ty, _ := p.abstractDeclarator(base)
	p.expect(")")
	return NewNum(int64(ty.Align), t)
}

func (p *Parser) builtinTypesCompatibleP() *Node {
	t := p.advance()
	p.expect("(")
	base1, _ := p.declspec(nil)
	ty1, _ := p.abstractDeclarator(base1)
	p.expect(",")
	base2, _ := p.declspec(nil)
	ty2, _ := p.abstractDeclarator(base2)
	p.expect(")")
	v := int64(0)
	if IsCompatible(ty1, ty2) {
		v = 1
	}
	return NewNum(v, t)
}

func (p *Parser) builtinConstantP() *Node {
	t := p.advance()
	p.expect("(")
	n := p.assign()
	p.expect(")")
	AddType(n)
	v := int64(0)
	if IsConstExpr(n) {
		v = 1
	}
	return NewNum(v, t)
}

// vaStartExpr parses "__builtin_va_start(ap, last)" (spec.md 4.5,
// section 6): the named-parameter operand only disambiguates where the
// register-save area's fixed-argument counts start, which the code
// generator already knows from the enclosing function, so it is parsed
// and discarded.
func (p *Parser) vaStartExpr() *Node {
	t := p.advance()
	p.expect("(")
	ap := p.assign()
	p.expect(",")
	p.assign()
	p.expect(")")
	AddType(ap)
	return &Node{Kind: NdVaStart, Lhs: ap, VaList: ap, Tok: t}
}

func (p *Parser) vaEndExpr() *Node {
	t := p.advance()
	p.expect("(")
	p.assign()
	p.expect(")")
	return &Node{Kind: NdNull, Tok: t}
}

func (p *Parser) vaCopyExpr() *Node {
	t := p.advance()
	p.expect("(")
	dst := p.assign()
	p.expect(",")
	src := p.assign()
	p.expect(")")
	AddType(dst)
	AddType(src)
	return &Node{Kind: NdVaCopy, Lhs: dst, Rhs: src, Tok: t}
}

// vaArgExpr parses "__builtin_va_arg(ap, type)"; the requested type is
// stashed on Ty the same way an explicit cast's target type is, per
// add_type.go's "Ty already set by the parser" note for NdVaArg.
func (p *Parser) vaArgExpr() *Node {
	t := p.advance()
	p.expect("(")
	ap := p.assign()
	p.expect(",")
	base, _ := p.declspec(nil)
	ty, _ := p.abstractDeclarator(base)
	p.expect(")")
	AddType(ap)
	return &Node{Kind: NdVaArg, Lhs: ap, VaList: ap, Ty: ty, Tok: t}
}

func (p *Parser) postfix() *Node {
	n := p.primary()
	for {
		t := p.cur()
		switch {
		case p.consume("["):
			idx := p.expr()
			p.expect("]")
			n = &Node{Kind: NdDeref, Lhs: NewBinary(NdAdd, n, idx, t), Tok: t}
		case p.consume("."):
			n = p.structRef(n)
		case p.consume("->"):
			n = p.structRef(&Node{Kind: NdDeref, Lhs: n, Tok: t})
		case p.consume("++"):
			n = p.postIncDec(n, NdAdd, t)
		case p.consume("--"):
			n = p.postIncDec(n, NdSub, t)
		default:
			return n
		}
	}
}

// postIncDec desugars "a++"/"a--" into (compound-assign by 1) - 1,
// matching spec.md 4.3's value-before-mutation semantics without
// re-evaluating a's address twice.
func (p *Parser) postIncDec(n *Node, op NodeKind, t *tok.Token) *Node {
	AddType(n)
	inv := NdSub
	if op == NdSub {
		inv = NdAdd
	}
	assigned := p.toCompoundAssign(n, op, NewNum(1, t), t)
	return NewBinary(inv, assigned, NewNum(1, t), t)
}

func (p *Parser) structRef(n *Node) *Node {
	AddType(n)
	if n.Ty.Kind != TyStruct && n.Ty.Kind != TyUnion {
		throw(diagErr(n.Tok, "not a struct nor a union"))
	}
	t := p.cur()
	name := p.expectIdent()
	for _, m := range n.Ty.Members {
		if m.Name_() == name {
			return &Node{Kind: NdMember, Lhs: n, Mem: m, Tok: t}
		}
	}
	throw(diagErr(t, "no such member: %q", name))
	return nil
}

func (p *Parser) primary() *Node {
	t := p.cur()
	if t == nil {
		throw(diagErr(nil, "unexpected end of expression"))
	}

	if p.consume("(") {
		if p.at("{") {
			// GNU statement expression.
			p.advance()
			p.enterScope()
			body := p.compoundStmtBody()
			p.leaveScope()
			p.expect(")")
			return &Node{Kind: NdStmtExpr, ExprBody: body, Tok: t}
		}
		n := p.expr()
		p.expect(")")
		return n
	}

	if t.Kind == tok.Num {
		p.advance()
		n := NewNum(t.Val, t)
		if t.IsFloat {
			n.Ty = TypeDouble
			n.FVal = t.FVal
		} else {
			n.Ty = numLitType(t)
		}
		return n
	}

	if t.Kind == tok.Str {
		p.advance()
		return p.stringLiteral(t)
	}

	if t.IsIdent("_Generic") {
		return p.genericSelection()
	}

	if t.Kind == tok.Ident {
		vs := p.scope.FindVar(t.Lexeme)
		if vs != nil && vs.IsEnum {
			p.advance()
			n := NewNum(vs.EnumVal, t)
			n.Ty = vs.EnumTy
			return n
		}
		if p.peekN(1) != nil && p.peekN(1).Is("(") {
			return p.funcall(t)
		}
		if vs == nil || vs.Var == nil {
			throw(diagErr(t, "undeclared identifier %q", t.Lexeme))
		}
		p.advance()
		return NewVar(vs.Var, t)
	}

	throw(diagErr(t, "expected an expression"))
	return nil
}

func numLitType(t *tok.Token) *Type {
	switch t.IntSfx {
	case tok.Unsigned:
		if t.Val > 0xffffffff {
			return TypeULong
		}
		return TypeUInt
	case tok.UnsignedLong, tok.UnsignedLongLong:
		return TypeULong
	case tok.Long, tok.LongLong:
		return TypeLong
	default:
		if t.Val > 0x7fffffff {
			return TypeLong
		}
		return TypeInt
	}
}

func (p *Parser) funcall(nameTok *tok.Token) *Node {
	p.advance()
	p.expect("(")
	var args []*Node
	first := true
	for !p.consume(")") {
		if !first {
			p.expect(",")
		}
		first = false
		a := p.assign()
		AddType(a)
		args = append(args, a)
	}
	n := &Node{Kind: NdFunCall, FuncName: nameTok.Lexeme, Args: args, Tok: nameTok}
	if vs := p.scope.FindVar(nameTok.Lexeme); vs != nil && vs.Var != nil {
		n.FuncTy = vs.Var.Ty
	}
	return n
}

func (p *Parser) genericSelection() *Node {
	t := p.advance()
	p.expect("(")
	ctrl := p.assign()
	AddType(ctrl)
	p.expect(",")
	var result *Node
	var defaultResult *Node
	first := true
	for !p.consume(")") {
		if !first {
			p.expect(",")
		}
		first = false
		if p.atIdent("default") {
			p.advance()
			p.expect(":")
			defaultResult = p.assign()
			continue
		}
		base, _ := p.declspec(nil)
		ty, _ := p.abstractDeclarator(base)
		p.expect(":")
		v := p.assign()
		if result == nil && IsCompatible(ty, ctrl.Ty) {
			result = v
		}
	}
	if result != nil {
		return result
	}
	if defaultResult != nil {
		return defaultResult
	}
	throw(diagErr(t, "_Generic selector not found"))
	return nil
}

func (p *Parser) stringLiteral(t *tok.Token) *Node {
	elemTy := TypeChar
	if t.StrWidth == 4 {
		elemTy = TypeInt
	} else if t.StrWidth == 2 {
		elemTy = TypeShort
	}
	arrTy := ArrayOf(elemTy, len(t.StrVal)/maxInt(elemTy.Size, 1))
	name := &tok.Token{Kind: tok.Ident, Lexeme: p.newAnonName(), Pos: t.Pos}
	obj := p.newGlobal(name, arrTy)
	obj.IsStatic = true
	obj.IsDefinition = true
	obj.InitData = t.StrVal
	return NewVar(obj, t)
}
