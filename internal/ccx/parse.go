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

	tok "github.com/gorse-io/ccx/internal/token"
)

// Parser holds the state of a single translation unit's declaration and
// statement parse (spec.md 4.3): the token cursor, the scope stack, and
// the bookkeeping needed for goto/label resolution and VLA frame
// tracking once the function body is complete.
type Parser struct {
	toks []*tok.Token
	pos  int

	globals     []*Obj
	globalScope *Scope
	scope       *Scope

	// current function being parsed.
	curFn    *Obj
	vlaDepth int // number of VLA-sized locals declared in the current scope chain

	gotos  []*Node // unresolved NdGoto nodes awaiting label resolution
	labels []*Node // NdLabel nodes seen so far in the current function

	// curBreak/curContinue/curSwitch track the innermost loop/switch so
	// bare break/continue statements resolve to the right label pair
	// (spec.md 4.3).
	curBreak    string
	curContinue string
	curSwitch   *Node

	anonCounter int
}

// Parse runs spec.md 4.3's declaration/statement parser over a fully
// preprocessed token stream and returns the translation unit's top-level
// objects (functions and globals), in declaration order.
func Parse(toks []*tok.Token) []*Obj {
	p := &Parser{toks: toks, globalScope: NewScope(nil)}
	p.scope = p.globalScope
	p.seedBuiltinTypedefs()
	p.program()
	return p.globals
}

// seedBuiltinTypedefs predeclares __builtin_va_list/va_list as the System
// V x86-64 register-save bookkeeping struct (spec.md 4.5's gp_offset/
// fp_offset/overflow_arg_area/reg_save_area), wrapped in a one-element
// array so it decays to a pointer at a call boundary exactly like glibc's
// va_list does.
func (p *Parser) seedBuiltinTypedefs() {
	mk := func(name string) *tok.Token { return &tok.Token{Kind: tok.Ident, Lexeme: name} }
	members := []*Member{
		{Name: mk("gp_offset"), Ty: TypeUInt},
		{Name: mk("fp_offset"), Ty: TypeUInt},
		{Name: mk("overflow_arg_area"), Ty: PointerTo(TypeVoid)},
		{Name: mk("reg_save_area"), Ty: PointerTo(TypeVoid)},
	}
	size, align := StructLayout(members, false)
	st := &Type{Kind: TyStruct, Size: size, Align: align, Members: members, Tag: mk("__va_list_tag")}
	vaList := ArrayOf(st, 1)
	p.globalScope.DeclareTypedef("__builtin_va_list", vaList)
	p.globalScope.DeclareTypedef("va_list", CopyType(vaList))
}

func (p *Parser) cur() *tok.Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return nil
}

func (p *Parser) peekN(n int) *tok.Token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return nil
}

func (p *Parser) atEOF() bool {
	t := p.cur()
	return t == nil || t.Kind == tok.EOF
}

func (p *Parser) at(lexeme string) bool { return p.cur() != nil && p.cur().Is(lexeme) }

func (p *Parser) atIdent(name string) bool { return p.cur() != nil && p.cur().IsIdent(name) }

func (p *Parser) advance() *tok.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) expect(lexeme string) *tok.Token {
	if !p.at(lexeme) {
		throw(diagErr(p.cur(), "expected %q", lexeme))
	}
	return p.advance()
}

func (p *Parser) consume(lexeme string) bool {
	if p.at(lexeme) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expectIdent() string {
	t := p.cur()
	if t == nil || t.Kind != tok.Ident {
		throw(diagErr(t, "expected an identifier"))
	}
	p.advance()
	return t.Lexeme
}

func (p *Parser) enterScope() *Scope {
	p.scope = NewScope(p.scope)
	return p.scope
}

func (p *Parser) leaveScope() {
	p.scope = p.scope.Parent
}

func (p *Parser) newAnonName() string {
	p.anonCounter++
	return fmt.Sprintf(".L.anon.%d", p.anonCounter)
}

// ----------------------------------------------------------------------
// program := (function-definition | global-variable)*

func (p *Parser) program() {
	for !p.atEOF() {
		base, attrs := p.declspec(nil)

		// typedef
		if attrs != nil && attrs.isTypedef {
			p.parseTypedef(base)
			continue
		}

		// lone `struct Foo;` / `enum Bar;` with no declarator.
		if p.consume(";") {
			continue
		}

		first := true
		isFuncDef := false
		for !isFuncDef {
			if !first {
				if !p.consume(",") {
					break
				}
			}
			first = false
			ty, name := p.declarator(base)
			if ty.Kind == TyFunc {
				if p.at("{") {
					p.functionDef(ty, name, attrs)
					isFuncDef = true
					continue
				}
				obj := p.newGlobal(name, ty)
				obj.IsFunction = true
				obj.IsDefinition = false
			} else {
				p.globalVariable(ty, name, attrs)
			}
		}
		if !isFuncDef {
			p.expect(";")
		}
	}
}

// declAttrs captures the storage-class and attribute decoration that
// rides along with a declaration-specifier parse (spec.md 4.3's
// "declaration specifiers" node, generalized beyond chibicc's VarAttr).
type declAttrs struct {
	isTypedef bool
	isStatic  bool
	isExtern  bool
	isInline  bool
	isTLS     bool
	alignment int
	isPacked  bool
}

// ----------------------------------------------------------------------
// Declaration specifiers. is_typename/declspec from spec.md 4.3: counts
// occurrences of each basic-type keyword to resolve combinations like
// "unsigned long long int" per the C11 grammar, and threads through
// struct/union/enum/typedef names.

var typeKeywords = map[string]bool{
	"void": true, "_Bool": true, "char": true, "short": true, "int": true,
	"long": true, "float": true, "double": true, "signed": true, "unsigned": true,
	"struct": true, "union": true, "enum": true, "typeof": true,
	"const": true, "volatile": true, "restrict": true, "_Atomic": true,
	"static": true, "extern": true, "typedef": true, "inline": true,
	"_Thread_local": true, "_Noreturn": true, "_Alignas": true,
}

// isTypename reports whether the current token begins a declaration
// (a type keyword or a name bound to a typedef in scope).
func (p *Parser) isTypename() bool {
	t := p.cur()
	if t == nil {
		return false
	}
	if t.Kind == tok.Keyword && typeKeywords[t.Lexeme] {
		return true
	}
	if t.Kind == tok.Ident {
		if vs := p.scope.FindVar(t.Lexeme); vs != nil && vs.Typedef != nil {
			return true
		}
	}
	return false
}

const (
	cntVoid = 1 << (iota * 2)
	cntBool
	cntChar
	cntShort
	cntInt
	cntLong
	cntFloat
	cntDouble
	cntSigned
	cntUnsigned
	cntOther
)

// declspec implements spec.md 4.3's basic-type resolution table, folding
// storage-class keywords into attrs; a nil attrs pointer gets a fresh set,
// storage-class keywords are accepted either way, and the attrs used are
// returned.
func (p *Parser) declspec(attrs *declAttrs) (*Type, *declAttrs) {
	if attrs == nil {
		attrs = &declAttrs{}
	}
	counter := 0
	var ty *Type = TypeInt
	sawExplicitType := false

	for p.isTypename() {
		t := p.cur()

		if t.Kind == tok.Keyword {
			switch t.Lexeme {
			case "typedef":
				p.advance()
				attrs.isTypedef = true
				continue
			case "static":
				p.advance()
				attrs.isStatic = true
				continue
			case "extern":
				p.advance()
				attrs.isExtern = true
				continue
			case "inline":
				p.advance()
				attrs.isInline = true
				continue
			case "_Thread_local":
				p.advance()
				attrs.isTLS = true
				continue
			case "_Noreturn":
				p.advance()
				continue
			case "const", "volatile", "restrict", "_Atomic":
				p.advance()
				continue
			case "_Alignas":
				p.advance()
				p.expect("(")
				if p.isTypename() {
					aty, _ := p.declspec(nil)
					attrs.alignment = aty.Align
				} else {
					attrs.alignment = int(p.constExpr())
				}
				p.expect(")")
				continue
			case "struct":
				ty = p.structUnionDecl(false)
				counter += cntOther
				sawExplicitType = true
				continue
			case "union":
				ty = p.structUnionDecl(true)
				counter += cntOther
				sawExplicitType = true
				continue
			case "enum":
				ty = p.enumDecl()
				counter += cntOther
				sawExplicitType = true
				continue
			case "typeof":
				p.advance()
				p.expect("(")
				ty = p.typeofOperand()
				p.expect(")")
				counter += cntOther
				sawExplicitType = true
				continue
			}
		}

		if t.Kind == tok.Ident {
			vs := p.scope.FindVar(t.Lexeme)
			ty = vs.Typedef
			p.advance()
			counter += cntOther
			sawExplicitType = true
			continue
		}

		switch t.Lexeme {
		case "void":
			counter += cntVoid
		case "_Bool":
			counter += cntBool
		case "char":
			counter += cntChar
		case "short":
			counter += cntShort
		case "int":
			counter += cntInt
		case "long":
			counter += cntLong
		case "float":
			counter += cntFloat
		case "double":
			counter += cntDouble
		case "signed":
			counter += cntSigned
		case "unsigned":
			counter += cntUnsigned
		}
		p.advance()

		switch counter {
		case cntVoid:
			ty = TypeVoid
		case cntBool:
			ty = TypeBool
		case cntChar, cntSigned + cntChar:
			ty = TypeChar
		case cntUnsigned + cntChar:
			ty = TypeUChar
		case cntShort, cntShort + cntInt, cntSigned + cntShort, cntSigned + cntShort + cntInt:
			ty = TypeShort
		case cntUnsigned + cntShort, cntUnsigned + cntShort + cntInt:
			ty = TypeUShort
		case cntInt, cntSigned, cntSigned + cntInt, 0:
			ty = TypeInt
		case cntUnsigned, cntUnsigned + cntInt:
			ty = TypeUInt
		case cntLong, cntLong + cntInt, cntLong * 2, cntLong*2 + cntInt,
			cntSigned + cntLong, cntSigned + cntLong + cntInt:
			ty = TypeLong
		case cntUnsigned + cntLong, cntUnsigned + cntLong + cntInt,
			cntUnsigned + cntLong*2, cntUnsigned + cntLong*2 + cntInt:
			ty = TypeULong
		case cntFloat:
			ty = TypeFloat
		case cntDouble:
			ty = TypeDouble
		case cntLong + cntDouble:
			ty = TypeLongDouble
		default:
			if !sawExplicitType {
				throw(diagErr(t, "invalid type"))
			}
		}
	}
	if attrs.alignment != 0 {
		ty = CopyType(ty)
		ty.Align = attrs.alignment
	}
	return ty, attrs
}

func (p *Parser) typeofOperand() *Type {
	// typeof(expr) and typeof(type-name) share an opening paren already
	// consumed by the caller; disambiguate the same way a cast does.
	if p.isTypename() {
		ty, _ := p.declspec(nil)
		ty, _ = p.abstractDeclarator(ty)
		return ty
	}
	n := p.expr()
	AddType(n)
	return n.Ty
}

func (p *Parser) parseTypedef(base *Type) {
	first := true
	for !p.consume(";") {
		if !first {
			p.expect(",")
		}
		first = false
		ty, name := p.declarator(base)
		p.scope.DeclareTypedef(name.Lexeme, CopyType(ty))
	}
}

// ----------------------------------------------------------------------
// Declarators: pointer* direct-declarator, spec.md 4.3's recursive
// "type that wraps another type" construction (pointer/array/function).

func (p *Parser) pointers(base *Type) *Type {
	for p.consume("*") {
		base = PointerTo(base)
		for p.at("const") || p.at("volatile") || p.at("restrict") || p.at("_Atomic") {
			p.advance()
		}
	}
	return base
}

func (p *Parser) declarator(base *Type) (*Type, *tok.Token) {
	ty := p.pointers(base)
	if p.consume("(") {
		// Either a parenthesized declarator or a function taking no
		// declarator name yet: scan ahead for the matching name by
		// recursively parsing with a placeholder, then splicing the
		// outer type suffix in afterward (spec.md 4.3's two-pass
		// declarator trick).
		start := p.pos
		p.dummyDeclarator()
		p.expect(")")
		suffix := p.typeSuffix(ty)
		end := p.pos
		p.pos = start
		inner, name := p.declarator(suffix)
		p.pos = end
		return inner, name
	}
	var name *tok.Token
	if p.cur() != nil && p.cur().Kind == tok.Ident {
		name = p.advance()
	}
	ty = p.typeSuffix(ty)
	return ty, name
}

func (p *Parser) dummyDeclarator() {
	p.pointers(nil)
	if p.consume("(") {
		p.dummyDeclarator()
		p.expect(")")
		return
	}
	if p.cur() != nil && p.cur().Kind == tok.Ident {
		p.advance()
	}
}

func (p *Parser) abstractDeclarator(base *Type) (*Type, *tok.Token) {
	ty := p.pointers(base)
	if p.consume("(") {
		start := p.pos
		p.dummyDeclarator()
		p.expect(")")
		suffix := p.typeSuffix(ty)
		end := p.pos
		p.pos = start
		inner, _ := p.abstractDeclarator(suffix)
		p.pos = end
		return inner, nil
	}
	ty = p.typeSuffix(ty)
	return ty, nil
}

// typeSuffix implements spec.md 4.3's array/function suffix loop,
// including multidimensional arrays and VLA dimensions computed from a
// non-constant expression.
func (p *Parser) typeSuffix(ty *Type) *Type {
	if p.consume("(") {
		return p.funcParams(ty)
	}
	if p.consume("[") {
		for p.at("static") || p.at("const") {
			p.advance()
		}
		if p.consume("]") {
			inner := p.typeSuffix(ty)
			return ArrayOf(inner, -1)
		}
		if p.isConstExprAhead() {
			n := p.constExpr()
			p.expect("]")
			inner := p.typeSuffix(ty)
			return ArrayOf(inner, int(n))
		}
		lenExp := p.assign()
		p.expect("]")
		inner := p.typeSuffix(ty)
		return VLAOf(inner, lenExp)
	}
	return ty
}

// isConstExprAhead probes whether the array-dimension expression at the
// cursor folds to a constant, without committing to a position, via
// IsConstExpr's recover-mode evaluation.
func (p *Parser) isConstExprAhead() bool {
	save := p.pos
	ok, _ := tryFold(func() {
		n := p.assign()
		AddType(n)
		if !IsConstExpr(n) {
			throw(diagErr(n.Tok, "not constant"))
		}
	})
	p.pos = save
	return ok
}

func (p *Parser) funcParams(ret *Type) *Type {
	if p.atIdent("void") && p.peekN(1) != nil && p.peekN(1).Is(")") {
		p.advance()
		p.advance()
		return FuncType(ret, nil, false, false)
	}
	var params []*Type
	var names []*tok.Token
	variadic := false
	oldStyle := false
	first := true
	if p.at(")") {
		oldStyle = true
	}
	for !p.consume(")") {
		if !first {
			p.expect(",")
		}
		first = false
		if p.consume("...") {
			variadic = true
			p.expect(")")
			break
		}
		base, _ := p.declspec(nil)
		ty, name := p.declarator(base)
		ty = PtrDecay(ty)
		params = append(params, ty)
		names = append(names, name)
	}
	ft := FuncType(ret, params, variadic, oldStyle)
	ft.ParamNames = names
	return ft
}

// ----------------------------------------------------------------------
// struct/union/enum

func (p *Parser) structUnionDecl(isUnion bool) *Type {
	p.advance() // struct/union keyword

	var tag *tok.Token
	if p.cur() != nil && p.cur().Kind == tok.Ident && !p.peekIs("{") {
		tag = p.advance()
	}

	if tag != nil && !p.at("{") {
		ty := p.scope.FindTag(tag.Lexeme)
		if ty != nil {
			return ty
		}
		ty = &Type{Kind: kindFor(isUnion), Size: -1, Align: 1, Tag: tag}
		p.scope.DeclareTag(tag.Lexeme, ty)
		return ty
	}

	p.expect("{")
	var members []*Member
	for !p.consume("}") {
		base, attrs := p.declspec(nil)
		first := true
		for !p.consume(";") {
			if !first {
				p.expect(",")
			}
			first = false
			var ty *Type
			var name *tok.Token
			if p.at(":") {
				ty = base
			} else {
				ty, name = p.declarator(base)
			}
			m := &Member{Name: name, Ty: ty, Idx: len(members)}
			if p.consume(":") {
				m.IsBitfield = true
				m.BitWidth = int(p.constExpr())
			}
			_ = attrs
			members = append(members, m)
		}
	}

	packed := false
	flexible := len(members) > 0 && members[len(members)-1].Ty.Kind == TyArray && members[len(members)-1].Ty.ArrayLen < 0
	ty := &Type{Kind: kindFor(isUnion), Members: members, IsPacked: packed, IsFlexible: flexible, Tag: tag}
	if isUnion {
		ty.Size, ty.Align = UnionLayout(members)
		for _, m := range members {
			m.Offset = 0
		}
	} else {
		ty.Size, ty.Align = StructLayout(members, packed)
	}
	if tag != nil {
		p.scope.DeclareTag(tag.Lexeme, ty)
	}
	return ty
}

func kindFor(isUnion bool) TypeKind {
	if isUnion {
		return TyUnion
	}
	return TyStruct
}

func (p *Parser) peekIs(lexeme string) bool {
	t := p.peekN(1)
	return t != nil && t.Is(lexeme)
}

func (p *Parser) enumDecl() *Type {
	p.advance() // enum
	var tag *tok.Token
	if p.cur() != nil && p.cur().Kind == tok.Ident && !p.peekIs("{") {
		tag = p.advance()
	}
	underlying := TypeInt
	if p.consume(":") {
		underlying, _ = p.declspec(nil)
	}

	if tag != nil && !p.at("{") {
		ty := p.scope.FindTag(tag.Lexeme)
		if ty == nil {
			throw(diagErr(tag, "unknown enum type"))
		}
		return ty
	}

	p.expect("{")
	ty := &Type{Kind: TyEnum, Size: underlying.Size, Align: underlying.Align, EnumUnderlying: underlying, Tag: tag}
	var val int64
	var seen []int64
	anyNeg := false
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
		name := p.expectIdent()
		if p.consume("=") {
			val = p.constExpr()
		}
		p.scope.DeclareEnumConst(name, ty, val)
		if val < 0 {
			anyNeg = true
		}
		seen = append(seen, val)
		val++
	}
	resolved := EnumUnderlyingType(seen, anyNeg)
	ty.Size, ty.Align = resolved.Size, resolved.Align
	ty.EnumUnderlying = resolved
	if tag != nil {
		p.scope.DeclareTag(tag.Lexeme, ty)
	}
	return ty
}

// ----------------------------------------------------------------------
// Top-level objects

func (p *Parser) newGlobal(name *tok.Token, ty *Type) *Obj {
	obj := &Obj{Name: name, Ty: ty}
	p.globals = append(p.globals, obj)
	p.globalScope.DeclareVar(name.Lexeme, obj)
	return obj
}

func (p *Parser) globalVariable(ty *Type, name *tok.Token, attrs *declAttrs) {
	obj := p.newGlobal(name, ty)
	obj.IsStatic = attrs.isStatic
	obj.IsTLS = attrs.isTLS
	if attrs.isExtern && !p.at("=") {
		obj.IsDefinition = false
	} else {
		obj.IsDefinition = true
		if !p.consume("=") {
			// No initializer at file scope is a tentative definition
			// (spec.md section 3): it becomes a definition, but codegen
			// still needs IsTentative to choose .comm vs .bss.
			obj.IsTentative = true
		} else {
			p.gvarInitializer(obj)
		}
	}
}

func (p *Parser) functionDef(ty *Type, name *tok.Token, attrs *declAttrs) {
	obj := p.newGlobal(name, ty)
	obj.IsFunction = true
	obj.IsDefinition = true
	obj.IsStatic = attrs.isStatic
	obj.IsInline = attrs.isInline

	p.curFn = obj
	p.gotos = nil
	p.labels = nil

	fnScope := p.enterScope()
	ty.FuncScope = fnScope

	var params []*Obj
	var paramHead, paramTail *Obj
	for i, pty := range ty.Params {
		var ptok *tok.Token
		if i < len(ty.ParamNames) {
			ptok = ty.ParamNames[i]
		}
		po := &Obj{Name: ptok, Ty: pty, IsLocal: true}
		if ptok != nil {
			p.scope.DeclareVar(ptok.Lexeme, po)
		}
		fnScope.Locals = append(fnScope.Locals, po)
		if paramHead == nil {
			paramHead = po
		} else {
			paramTail.ParamNext = po
		}
		paramTail = po
		params = append(params, po)
	}
	obj.ParamNext = paramHead
	obj.Locals = append(obj.Locals, params...)

	obj.Body = p.compoundStmt()
	p.resolveGotoLabels()
	p.leaveScope()
	p.curFn = nil
}

// resolveGotoLabels implements spec.md 4.3's two-pass label resolution:
// every NdGoto recorded during the body walk is matched by name against
// the labels collected in the same pass, after the whole function body
// has been parsed so forward gotos work.
func (p *Parser) resolveGotoLabels() {
	for _, g := range p.gotos {
		var matched *Node
		for _, l := range p.labels {
			if l.Label == g.Label {
				matched = l
				break
			}
		}
		if matched == nil {
			throw(diagErr(g.Tok, "use of undeclared label %q", g.Label))
		}
		g.UniqueLbl = matched.UniqueLbl
	}
}
