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
	"strings"

	tok "github.com/gorse-io/ccx/internal/token"
)

// Preprocess implements spec.md 4.1 end to end: it consumes a raw token
// list (from the lexer/tokenizer, an external collaborator) and returns a
// fully macro-expanded, directive-free token list ready for the parser.
//
// Internally this works over []*tok.Token slices rather than splicing the
// Next-linked list in place; macro expansion constantly inserts,
// reorders and deletes spans (argument substitution, paste, directive
// removal) in ways that are far easier to get right as slice surgery than
// as manual linked-list pointer patching, and the external contract (a
// Next-chain in, a Next-chain out) is unaffected by that choice.
func (pp *Preprocessor) Preprocess(filename string, head *tok.Token) (*tok.Token, error) {
	pp.curFile = filename
	if pp.baseFile == "" {
		pp.baseFile = filename
	}
	out, err := pp.preprocessTokens(tok.List(head))
	if err != nil {
		return nil, err
	}
	out = joinAdjacentStrings(out)
	eof := &tok.Token{Kind: tok.EOF}
	return tok.FromSlice(out, eof), nil
}

// preprocessTokens is the line-oriented driver: directive lines are
// consumed and executed; everything else is handed to expandAll.
func (pp *Preprocessor) preprocessTokens(in []*tok.Token) (out []*tok.Token, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(panicError); ok {
				err = pe.err
				return
			}
			panic(r)
		}
	}()

	i := 0
	var line []*tok.Token
	for i < len(in) {
		// collect one logical line (directives are always exactly one
		// logical line; ordinary text is processed in bulk below instead)
		if in[i].AtBOL && in[i].Is("#") {
			line = line[:0]
			line = append(line, in[i])
			j := i + 1
			for j < len(in) && !in[j].AtBOL {
				line = append(line, in[j])
				j++
			}
			pp.directive(line)
			if len(pp.pendingInclude) > 0 {
				out = append(out, pp.pendingInclude...)
				pp.pendingInclude = nil
			}
			i = j
			continue
		}
		start := i
		for i < len(in) && !(in[i].AtBOL && in[i].Is("#")) {
			i++
		}
		if pp.condActive() {
			expanded := pp.expandAll(in[start:i])
			out = append(out, expanded...)
		}
	}
	return out, nil
}

func (pp *Preprocessor) condActive() bool {
	for _, f := range pp.condStack {
		if !f.active {
			return false
		}
	}
	return true
}

// expandAll fully macro-expands a flat token span, implementing the
// recursive-expansion discipline of spec.md 4.1 (locked-macro stack with
// stop-token unlocking) and the substitution rules (#, ##, __VA_OPT__).
func (pp *Preprocessor) expandAll(in []*tok.Token) []*tok.Token {
	var out []*tok.Token
	i := 0
	for i < len(in) {
		t := in[i]
		pp.unlockAt(t)

		if (t.Kind == tok.Ident || t.Kind == tok.Keyword) && !t.DontExpand {
			if m, ok := pp.Macros[t.Lexeme]; ok && !m.Deleted && !pp.isLocked(t.Lexeme) {
				if m.Builtin != nil {
					repl := m.Builtin(pp, t)
					out = append(out, repl)
					i++
					continue
				}
				if m.Kind == ObjLike {
					body := cloneTokens(m.Body)
					stop := tokAt(in, i+1)
					pp.lock(m.Name, stop)
					markDontExpand(body, m.Name)
					expandedBody := pp.expandAll(body)
					if len(expandedBody) == 0 {
						// empty expansion: transfer flags to the stop token
						if stop != nil {
							stop.AtBOL = stop.AtBOL || t.AtBOL
							stop.HasSpace = stop.HasSpace || t.HasSpace
						}
					} else {
						expandedBody[0].AtBOL = t.AtBOL
						expandedBody[0].HasSpace = t.HasSpace
					}
					out = append(out, expandedBody...)
					i++
					pp.unlockAt(stop)
					continue
				}
				// function-like: only a macro invocation if followed by '('
				if j := skipSpaceIdx(in, i+1); j < len(in) && in[j].Is("(") {
					args, variadicEmpty, end := scanArgs(in, j, len(m.Params), m)
					for _, arg := range args {
						for _, at := range arg {
							if (at.Kind == tok.Ident || at.Kind == tok.Keyword) && pp.isLocked(at.Lexeme) {
								at.DontExpand = true
							}
						}
					}
					stop := tokAt(in, end+1)
					substituted := pp.substituteFuncLike(m, args, variadicEmpty, t)
					pp.lock(m.Name, stop)
					markDontExpand(substituted, m.Name)
					expandedBody := pp.expandAll(substituted)
					if len(expandedBody) == 0 {
						if stop != nil {
							stop.AtBOL = stop.AtBOL || t.AtBOL
							stop.HasSpace = stop.HasSpace || t.HasSpace
						}
					} else {
						expandedBody[0].AtBOL = t.AtBOL
						expandedBody[0].HasSpace = t.HasSpace
					}
					out = append(out, expandedBody...)
					i = end + 1
					pp.unlockAt(stop)
					continue
				}
			}
		}
		out = append(out, t)
		i++
	}
	return out
}

func tokAt(in []*tok.Token, i int) *tok.Token {
	if i >= 0 && i < len(in) {
		return in[i]
	}
	return nil
}

func skipSpaceIdx(in []*tok.Token, i int) int { return i } // tokens carry HasSpace, no separate whitespace tokens

func markDontExpand(body []*tok.Token, name string) {
	for _, t := range body {
		if (t.Kind == tok.Ident || t.Kind == tok.Keyword) && t.Lexeme == name {
			t.DontExpand = true
		}
	}
}

func cloneTokens(head *tok.Token) []*tok.Token {
	var out []*tok.Token
	for t := head; t != nil && t.Kind != tok.EOF; t = t.Next {
		out = append(out, t.Clone())
	}
	return out
}

// scanArgs splits a function-like invocation's argument list on
// top-level commas with parenthesis-level tracking (spec.md 4.1). start
// indexes the '(' token, and a trailing variadic argument collects
// everything after the last formal comma. Its caller, expandAll, then
// marks identifiers of currently-locked macros in the argument text
// dont_expand.
func scanArgs(in []*tok.Token, start int, nParams int, m *Macro) (args [][]*tok.Token, variadicEmpty bool, end int) {
	depth := 0
	i := start
	var cur []*tok.Token
	for ; i < len(in); i++ {
		t := in[i]
		switch {
		case t.Is("("):
			depth++
			if depth == 1 {
				continue
			}
		case t.Is(")"):
			depth--
			if depth == 0 {
				args = append(args, cur)
				return args, len(cur) == 0 && m.VariadicArg != "" && len(args) > nParams, i
			}
		case t.Is(",") && depth == 1 && (m.VariadicArg == "" || len(args) < nParams):
			args = append(args, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	return args, false, len(in) - 1
}

// substituteFuncLike implements spec.md 4.1's substitution rules: `#
// param` stringizes, `##` pastes and retokenizes, `, ##__VA_ARGS__` with
// an empty variadic argument drops the comma, and __VA_OPT__(x) expands
// to x only when the variadic argument is non-empty.
func (pp *Preprocessor) substituteFuncLike(m *Macro, args [][]*tok.Token, variadicEmpty bool, invocation *tok.Token) []*tok.Token {
	argFor := func(name string) ([]*tok.Token, bool) {
		for i, p := range m.Params {
			if p == name {
				if i < len(args) {
					return args[i], true
				}
				return nil, true
			}
		}
		if m.VariadicArg != "" && (name == m.VariadicArg || name == "__VA_ARGS__") {
			if len(args) > len(m.Params) {
				var va []*tok.Token
				for k := len(m.Params); k < len(args); k++ {
					if k > len(m.Params) {
						va = append(va, &tok.Token{Kind: tok.Punct, Lexeme: ","})
					}
					va = append(va, args[k]...)
				}
				return va, true
			}
			return nil, true
		}
		return nil, false
	}

	body := tok.List(m.Body)
	var out []*tok.Token
	for i := 0; i < len(body); i++ {
		t := body[i]

		// __VA_OPT__(...)
		if t.IsIdent("__VA_OPT__") && i+1 < len(body) && body[i+1].Is("(") {
			j := i + 2
			depth := 1
			var inner []*tok.Token
			for j < len(body) && depth > 0 {
				if body[j].Is("(") {
					depth++
				} else if body[j].Is(")") {
					depth--
					if depth == 0 {
						break
					}
				}
				inner = append(inner, body[j])
				j++
			}
			if !variadicEmpty {
				sub := pp.substituteFuncLike(&Macro{Body: tok.FromSlice(append([]*tok.Token{}, inner...), &tok.Token{Kind: tok.EOF}), Params: m.Params, VariadicArg: m.VariadicArg}, args, variadicEmpty, invocation)
				out = append(out, sub...)
			}
			i = j
			continue
		}

		// # param -> stringize
		if t.Is("#") && i+1 < len(body) && (body[i+1].Kind == tok.Ident) {
			if argToks, isParam := argFor(body[i+1].Lexeme); isParam {
				out = append(out, stringize(argToks, t))
				i++
				continue
			}
		}

		// , ## __VA_ARGS__ elision
		if t.Is(",") && i+2 < len(body) && body[i+1].Is("##") &&
			(body[i+2].Lexeme == m.VariadicArg || body[i+2].Lexeme == "__VA_ARGS__") {
			if variadicEmpty {
				i += 2
				continue
			}
			out = append(out, t)
			i++
			continue
		}

		// param ## or ## param
		if i+1 < len(body) && body[i+1].Is("##") {
			leftToks, isLeftParam := argFor(t.Lexeme)
			var left []*tok.Token
			if isLeftParam {
				left = leftToks
			} else {
				left = []*tok.Token{t}
			}
			i++ // consume current, loop will consume ##
			out = append(out, pasteChain(left, body, &i, argFor)...)
			continue
		}

		if argToks, isParam := argFor(t.Lexeme); isParam {
			out = append(out, pp.expandAll(cloneTokenSlice(argToks))...)
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

func cloneTokenSlice(ts []*tok.Token) []*tok.Token {
	out := make([]*tok.Token, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

// pasteChain consumes a run of "## tok" pairs starting with i pointing at
// the first "##", pasting left-to-right, per spec.md 4.1.
func pasteChain(left []*tok.Token, body []*tok.Token, i *int, argFor func(string) ([]*tok.Token, bool)) []*tok.Token {
	cur := left
	if len(cur) == 0 {
		cur = []*tok.Token{{Kind: tok.PasteMark}}
	}
	for *i < len(body) && body[*i].Is("##") {
		*i++ // consume "##"
		if *i >= len(body) {
			break
		}
		rightTok := body[*i]
		var right []*tok.Token
		if rt, isParam := argFor(rightTok.Lexeme); isParam {
			right = rt
		} else {
			right = []*tok.Token{rightTok}
		}
		if len(right) == 0 {
			right = []*tok.Token{{Kind: tok.PasteMark}}
		}
		pasted := pasteOne(lastOf(cur), right[0])
		cur = append(append([]*tok.Token{}, cur[:len(cur)-1]...), pasted)
		cur = append(cur, right[1:]...)
		*i++
		if *i < len(body) && body[*i].Is("##") {
			continue
		}
		break
	}
	*i--
	return cur
}

func lastOf(ts []*tok.Token) *tok.Token { return ts[len(ts)-1] }

// pasteOne concatenates two tokens' lexemes and retokenizes the result,
// per spec.md 4.1 ("## concatenates the previous emitted token with the
// next, retokenizing; it is an error at either end" — a paste mark on
// either side yields the other side unchanged instead of erroring, since
// that is the documented escape hatch for empty-argument substitution).
func pasteOne(a, b *tok.Token) *tok.Token {
	if a.Kind == tok.PasteMark {
		return b
	}
	if b.Kind == tok.PasteMark {
		return a
	}
	combined := tokenText(a) + tokenText(b)
	result := Lex("<paste>", combined)
	if result == nil || result.Kind == tok.EOF {
		throw(diagErr(a, "invalid token paste: %q", combined))
	}
	r := result.Clone()
	r.HasSpace = a.HasSpace
	r.AtBOL = a.AtBOL
	return r
}

func tokenText(t *tok.Token) string {
	switch t.Kind {
	case tok.Str:
		return t.Lexeme
	default:
		return t.Lexeme
	}
}

// stringize implements `# param`: a double-quoted concatenation of the
// argument's tokens with single spaces between tokens that had
// whitespace between them, escaping \ and " inside string/number tokens
// (spec.md 4.1, P2).
func stringize(args []*tok.Token, like *tok.Token) *tok.Token {
	var b strings.Builder
	for i, t := range args {
		if t.Kind == tok.PasteMark {
			continue
		}
		if i > 0 && (t.HasSpace || t.AtBOL) {
			b.WriteByte(' ')
		}
		lex := t.Lexeme
		if t.Kind == tok.Str || t.Kind == tok.Num || t.Kind == tok.PPNumber {
			lex = escapeForStringize(lex)
		}
		b.WriteString(lex)
	}
	return &tok.Token{Kind: tok.Str, Lexeme: `"` + b.String() + `"`, Pos: like.Pos, StrVal: []byte(b.String())}
}

func escapeForStringize(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// joinAdjacentStrings implements spec.md 4.1's post-pass string
// concatenation: payloads are appended byte for byte and the result takes
// the widest element width seen; a narrower payload joined to a wider one
// is not re-encoded to the wider width.
func joinAdjacentStrings(in []*tok.Token) []*tok.Token {
	var out []*tok.Token
	for i := 0; i < len(in); i++ {
		if in[i].Kind != tok.Str {
			out = append(out, in[i])
			continue
		}
		merged := in[i].Clone()
		width := merged.StrWidth
		if width == 0 {
			width = 1
		}
		j := i + 1
		for j < len(in) && in[j].Kind == tok.Str {
			if in[j].StrWidth > width {
				width = in[j].StrWidth
			}
			merged.StrVal = append(merged.StrVal, in[j].StrVal...)
			j++
		}
		merged.StrWidth = width
		out = append(out, merged)
		i = j - 1
	}
	return out
}
