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

// Statement parsing (spec.md 4.3): if/for/while/do/switch/case (including
// GNU case ranges), labeled statements (including computed goto targets),
// compound statements with block-scoped declarations interleaved with
// statements, and the two loop/switch break-continue label stacks.

func (p *Parser) compoundStmt() *Node {
	t := p.expect("{")
	p.enterScope()
	body := p.compoundStmtBody()
	p.leaveScope()
	return &Node{Kind: NdBlock, BlockBody: body, Tok: t}
}

// compoundStmtBody parses the statement list up to and including the
// closing brace; the opening brace has already been consumed by the
// caller, both for a "{ ... }" block and for a "({ ... })" statement
// expression.
func (p *Parser) compoundStmtBody() *Node {
	var head, tail *Node
	append_ := func(n *Node) {
		if n == nil {
			return
		}
		if head == nil {
			head = n
		} else {
			tail.Next = n
		}
		tail = n
		for tail.Next != nil {
			tail = tail.Next
		}
	}
	for !p.at("}") {
		if p.isTypename() && !p.atIdent("typeof") {
			base, attrs := p.declspec(nil)
			if attrs.isTypedef {
				p.parseTypedef(base)
				continue
			}
			append_(p.declaration(base, attrs))
			continue
		}
		append_(p.stmt())
	}
	p.expect("}")
	return head
}

// declaration parses a block-scope declaration list (spec.md 4.3), wiring
// each declared local's initializer and returning the chain of
// NdExprStmt nodes the initializer lowering produces.
func (p *Parser) declaration(base *Type, attrs *declAttrs) *Node {
	var head, tail *Node
	append_ := func(n *Node) {
		if n == nil {
			return
		}
		if head == nil {
			head = n
		} else {
			tail.Next = n
		}
		tail = n
	}
	first := true
	for !p.consume(";") {
		if !first {
			p.expect(",")
		}
		first = false
		ty, name := p.declarator(base)
		if ty.Kind == TyVoid {
			throw(diagErr(name, "variable declared void"))
		}
		if name == nil {
			throw(diagErr(p.cur(), "expected a declarator name"))
		}
		obj := p.newLvar(ty)
		obj.IsStatic = attrs.isStatic
		p.scope.DeclareVar(name.Lexeme, obj)
		if ty.Kind == TyVLA {
			p.materializeVLA(ty, name)
		}
		if attrs.isStatic {
			// static locals live in the data section like globals; give
			// them a synthesized unique name and route initialization
			// through the global initializer path instead of runtime code.
			sg := p.newGlobal(&tok.Token{Kind: tok.Ident, Lexeme: p.staticLocalName(name.Lexeme), Pos: name.Pos}, ty)
			sg.IsStatic = true
			sg.IsDefinition = true
			obj.Offset = 0
			obj.InitData = sg.InitData
			if p.consume("=") {
				p.gvarInitializer(sg)
			}
			obj.IsLocal = false
			obj.Name = sg.Name
			continue
		}
		if p.consume("=") {
			append_(p.lvarInitializer(obj, ty, name))
		}
	}
	return head
}

var staticLocalCounter int

func (p *Parser) staticLocalName(base string) string {
	staticLocalCounter++
	return fmt.Sprintf("%s.%d", base, staticLocalCounter)
}

// materializeVLA implements spec.md 4.3/4.5's VLA local: a hidden size
// variable holds the byte length, computed at the point of declaration,
// and GotoVLADepth is incremented so later goto/label analysis can
// reject jumps across a VLA's scope.
func (p *Parser) materializeVLA(ty *Type, name *tok.Token) {
	sizeVar := p.newLvar(TypeLong)
	ty.VLASizeVar = sizeVar
	p.vlaDepth++
}

func (p *Parser) stmt() *Node {
	t := p.cur()
	switch {
	case p.at("{"):
		return p.compoundStmt()
	case p.atIdent("if"):
		return p.ifStmt()
	case p.atIdent("for"):
		return p.forStmt()
	case p.atIdent("while"):
		return p.whileStmt()
	case p.atIdent("do"):
		return p.doStmt()
	case p.atIdent("switch"):
		return p.switchStmt()
	case p.atIdent("case"):
		return p.caseStmt()
	case p.atIdent("default"):
		return p.defaultStmt()
	case p.atIdent("break"):
		p.advance()
		p.expect(";")
		if p.curBreak == "" {
			throw(diagErr(t, "break statement not within a loop or switch"))
		}
		return &Node{Kind: NdGoto, UniqueLbl: p.curBreak, Tok: t}
	case p.atIdent("continue"):
		p.advance()
		p.expect(";")
		if p.curContinue == "" {
			throw(diagErr(t, "continue statement not within a loop"))
		}
		return &Node{Kind: NdGoto, UniqueLbl: p.curContinue, Tok: t}
	case p.atIdent("goto"):
		return p.gotoStmt()
	case p.atIdent("return"):
		return p.returnStmt()
	case p.atIdent("asm") || p.atIdent("__asm__"):
		return p.asmStmt()
	case t != nil && t.Kind == tok.Ident && p.peekN(1) != nil && p.peekN(1).Is(":"):
		return p.labelStmt()
	case p.consume(";"):
		return &Node{Kind: NdNull, Tok: t}
	default:
		n := p.expr()
		AddType(n)
		p.expect(";")
		return &Node{Kind: NdExprStmt, Lhs: n, Tok: t}
	}
}

func (p *Parser) ifStmt() *Node {
	t := p.advance()
	p.expect("(")
	cond := p.expr()
	AddType(cond)
	p.expect(")")
	then := p.stmt()
	var els *Node
	if p.atIdent("else") {
		p.advance()
		els = p.stmt()
	}
	return &Node{Kind: NdIf, Cond: cond, Then: then, Els: els, Tok: t}
}

var loopCounter int

func (p *Parser) newLoopLabels() (brk, cont string) {
	loopCounter++
	return fmt.Sprintf(".L.break.%d", loopCounter), fmt.Sprintf(".L.continue.%d", loopCounter)
}

func (p *Parser) forStmt() *Node {
	t := p.advance()
	p.enterScope()
	defer p.leaveScope()
	p.expect("(")

	n := &Node{Kind: NdFor, Tok: t}
	n.BreakLbl, n.ContinueLbl = p.newLoopLabels()

	if p.isTypename() {
		base, attrs := p.declspec(nil)
		n.Init = p.declaration(base, attrs)
	} else if !p.at(";") {
		init := p.expr()
		AddType(init)
		n.Init = &Node{Kind: NdExprStmt, Lhs: init, Tok: t}
		p.expect(";")
	} else {
		p.expect(";")
	}

	if !p.at(";") {
		n.Cond = p.expr()
		AddType(n.Cond)
	}
	p.expect(";")

	if !p.at(")") {
		inc := p.expr()
		AddType(inc)
		n.Inc = &Node{Kind: NdExprStmt, Lhs: inc, Tok: t}
	}
	p.expect(")")

	n.Then = p.withLoopLabels(n.BreakLbl, n.ContinueLbl, p.stmt)
	return n
}

func (p *Parser) whileStmt() *Node {
	t := p.advance()
	p.expect("(")
	cond := p.expr()
	AddType(cond)
	p.expect(")")
	n := &Node{Kind: NdFor, Cond: cond, Tok: t}
	n.BreakLbl, n.ContinueLbl = p.newLoopLabels()
	n.Then = p.withLoopLabels(n.BreakLbl, n.ContinueLbl, p.stmt)
	return n
}

func (p *Parser) doStmt() *Node {
	t := p.advance()
	n := &Node{Kind: NdDo, Tok: t}
	n.BreakLbl, n.ContinueLbl = p.newLoopLabels()
	n.Then = p.withLoopLabels(n.BreakLbl, n.ContinueLbl, p.stmt)
	if !p.atIdent("while") {
		throw(diagErr(p.cur(), "expected 'while'"))
	}
	p.advance()
	p.expect("(")
	n.Cond = p.expr()
	AddType(n.Cond)
	p.expect(")")
	p.expect(";")
	return n
}

// withLoopLabels pushes the break/continue targets that bare "break" and
// "continue" statements resolve against while parsing body, implementing
// spec.md 4.3's nesting rule (innermost loop or switch wins for break,
// innermost loop for continue).
func (p *Parser) withLoopLabels(brk, cont string, body func() *Node) *Node {
	savedBrk, savedCont := p.curBreak, p.curContinue
	p.curBreak, p.curContinue = brk, cont
	n := body()
	p.curBreak, p.curContinue = savedBrk, savedCont
	return n
}

func (p *Parser) switchStmt() *Node {
	t := p.advance()
	p.expect("(")
	cond := p.expr()
	AddType(cond)
	p.expect(")")
	n := &Node{Kind: NdSwitch, Cond: cond, Tok: t}
	loopCounter++
	n.BreakLbl = fmt.Sprintf(".L.break.%d", loopCounter)

	savedBrk := p.curBreak
	savedSwitch := p.curSwitch
	p.curBreak = n.BreakLbl
	p.curSwitch = n
	n.Then = p.stmt()
	p.curSwitch = savedSwitch
	p.curBreak = savedBrk
	return n
}

func (p *Parser) caseStmt() *Node {
	t := p.advance()
	begin := p.constExpr()
	end := begin
	if p.consume("...") {
		// GNU case range "case A ... B".
		end = p.constExpr()
	}
	p.expect(":")
	loopCounter++
	lbl := fmt.Sprintf(".L.case.%d", loopCounter)
	if p.curSwitch == nil {
		throw(diagErr(t, "case label not within a switch statement"))
	}
	p.curSwitch.Cases = &CaseRange{Begin: begin, End: end, Label: lbl, Next: p.curSwitch.Cases}
	n := &Node{Kind: NdCase, CaseBegin: begin, CaseEnd: end, Label: lbl, Tok: t}
	n.Lhs = p.stmt()
	return n
}

func (p *Parser) defaultStmt() *Node {
	t := p.advance()
	p.expect(":")
	loopCounter++
	lbl := fmt.Sprintf(".L.default.%d", loopCounter)
	if p.curSwitch == nil {
		throw(diagErr(t, "default label not within a switch statement"))
	}
	p.curSwitch.DefaultLbl = lbl
	n := &Node{Kind: NdCase, Label: lbl, Tok: t}
	n.Lhs = p.stmt()
	return n
}

func (p *Parser) gotoStmt() *Node {
	t := p.advance()
	if p.consume("*") {
		// Computed goto: "goto *expr".
		target := p.expr()
		AddType(target)
		p.expect(";")
		return &Node{Kind: NdGotoExpr, Lhs: target, Tok: t}
	}
	name := p.expectIdent()
	p.expect(";")
	n := &Node{Kind: NdGoto, Label: name, Tok: t, GotoVLADepth: p.vlaDepth}
	p.gotos = append(p.gotos, n)
	return n
}

func (p *Parser) labelStmt() *Node {
	t := p.advance()
	p.expect(":")
	loopCounter++
	n := &Node{Kind: NdLabel, Label: t.Lexeme, UniqueLbl: fmt.Sprintf(".L.label.%s.%d", t.Lexeme, loopCounter), Tok: t}
	p.labels = append(p.labels, n)
	n.Lhs = p.stmt()
	return n
}

func (p *Parser) returnStmt() *Node {
	t := p.advance()
	if p.consume(";") {
		return &Node{Kind: NdReturn, Tok: t}
	}
	v := p.expr()
	AddType(v)
	if p.curFn != nil {
		v = implicitCast(v, p.curFn.Ty.ReturnTy)
	}
	p.expect(";")
	return &Node{Kind: NdReturn, Lhs: v, Tok: t}
}

// asmStmt parses a minimal "asm(\"...\");" passthrough (spec.md 4.3's
// Non-goal list excludes full extended-asm operand binding; the literal
// text is preserved for the code generator to emit verbatim).
func (p *Parser) asmStmt() *Node {
	t := p.advance()
	for p.atIdent("volatile") || p.atIdent("goto") {
		p.advance()
	}
	p.expect("(")
	str := p.cur()
	if str == nil || str.Kind != tok.Str {
		throw(diagErr(str, "expected a string literal in asm statement"))
	}
	p.advance()
	depth := 1
	for depth > 0 {
		if p.consume("(") {
			depth++
			continue
		}
		if p.consume(")") {
			depth--
			continue
		}
		if p.atEOF() {
			throw(diagErr(t, "unterminated asm statement"))
		}
		p.advance()
	}
	p.expect(";")
	return &Node{Kind: NdAsm, AsmStr: string(str.StrVal), Tok: t}
}
