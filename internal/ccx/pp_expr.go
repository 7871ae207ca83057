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

// parseConstExprLine parses the synthesized expression on a #if/#elif
// line (spec.md 4.1) into a Node tree the constant evaluator can fold.
// This grammar is deliberately smaller than the full expression parser in
// parse.go: by the time it runs, defined(...) has already become 0/1 and
// every remaining identifier has already become 0 (see evalConstExprLine),
// so no type information, casts, or sizeof are needed.
type ppExprParser struct {
	toks []*tok.Token
	pos  int
}

func parseConstExprLine(toks []*tok.Token) *Node {
	p := &ppExprParser{toks: toks}
	if len(p.toks) == 0 {
		return NewNum(0, nil)
	}
	n := p.conditional()
	return n
}

func (p *ppExprParser) cur() *tok.Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return nil
}

func (p *ppExprParser) at(lexeme string) bool {
	t := p.cur()
	return t != nil && t.Is(lexeme)
}

func (p *ppExprParser) advance() *tok.Token {
	t := p.cur()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *ppExprParser) conditional() *Node {
	cond := p.logOr()
	if p.at("?") {
		q := p.advance()
		then := p.conditional()
		if !p.at(":") {
			throw(diagErr(q, "expected ':'"))
		}
		p.advance()
		els := p.conditional()
		return &Node{Kind: NdCond, Cond: cond, Then: then, Els: els, Tok: q, Ty: TypeLong}
	}
	return cond
}

func (p *ppExprParser) binaryLevel(next func() *Node, ops ...string) *Node {
	n := next()
	for {
		matched := ""
		for _, op := range ops {
			if p.at(op) {
				matched = op
				break
			}
		}
		if matched == "" {
			return n
		}
		t := p.advance()
		rhs := next()
		n = &Node{Kind: ppOpKind(matched), Lhs: n, Rhs: rhs, Tok: t, Ty: TypeLong}
	}
}

func ppOpKind(op string) NodeKind {
	switch op {
	case "*":
		return NdMul
	case "/":
		return NdDiv
	case "%":
		return NdMod
	case "+":
		return NdAdd
	case "-":
		return NdSub
	case "<<":
		return NdShl
	case ">>":
		return NdSar
	case "<":
		return NdLt
	case "<=":
		return NdLe
	case ">":
		return NdGt
	case ">=":
		return NdGe
	case "==":
		return NdEq
	case "!=":
		return NdNe
	case "&":
		return NdBitAnd
	case "^":
		return NdBitXor
	case "|":
		return NdBitOr
	case "&&":
		return NdLogAnd
	case "||":
		return NdLogOr
	default:
		return NdNum
	}
}

func (p *ppExprParser) logOr() *Node  { return p.binaryLevel(p.logAnd, "||") }
func (p *ppExprParser) logAnd() *Node { return p.binaryLevel(p.bitOr, "&&") }
func (p *ppExprParser) bitOr() *Node  { return p.binaryLevel(p.bitXor, "|") }
func (p *ppExprParser) bitXor() *Node { return p.binaryLevel(p.bitAnd, "^") }
func (p *ppExprParser) bitAnd() *Node { return p.binaryLevel(p.equality, "&") }
func (p *ppExprParser) equality() *Node {
	return p.binaryLevel(p.relational, "==", "!=")
}
func (p *ppExprParser) relational() *Node {
	return p.binaryLevel(p.shift, "<", "<=", ">", ">=")
}
func (p *ppExprParser) shift() *Node {
	return p.binaryLevel(p.additive, "<<", ">>")
}
func (p *ppExprParser) additive() *Node {
	return p.binaryLevel(p.multiplicative, "+", "-")
}
func (p *ppExprParser) multiplicative() *Node {
	return p.binaryLevel(p.unary, "*", "/", "%")
}

func (p *ppExprParser) unary() *Node {
	t := p.cur()
	switch {
	case p.at("-"):
		p.advance()
		return &Node{Kind: NdNeg, Lhs: p.unary(), Tok: t, Ty: TypeLong}
	case p.at("+"):
		p.advance()
		return p.unary()
	case p.at("!"):
		p.advance()
		return &Node{Kind: NdNot, Lhs: p.unary(), Tok: t, Ty: TypeLong}
	case p.at("~"):
		p.advance()
		return &Node{Kind: NdBitNot, Lhs: p.unary(), Tok: t, Ty: TypeLong}
	default:
		return p.primary()
	}
}

func (p *ppExprParser) primary() *Node {
	t := p.cur()
	if t == nil {
		throw(diagErr(nil, "unexpected end of #if expression"))
	}
	if t.Is("(") {
		p.advance()
		n := p.conditional()
		if !p.at(")") {
			throw(diagErr(t, "expected ')'"))
		}
		p.advance()
		return n
	}
	if t.Kind == tok.Num {
		p.advance()
		ty := TypeLong
		switch t.IntSfx {
		case tok.Unsigned, tok.UnsignedLong, tok.UnsignedLongLong:
			ty = TypeULong
		}
		return &Node{Kind: NdNum, Val: t.Val, Tok: t, Ty: ty}
	}
	throw(diagErr(t, "invalid token in #if expression: %q", t.Lexeme))
	return nil
}
