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
	"os"

	tok "github.com/gorse-io/ccx/internal/token"
)

// directive dispatches one '#'-led logical line, per spec.md 4.1's
// directive list. line[0] is the '#' token.
func (pp *Preprocessor) directive(line []*tok.Token) {
	rest := line[1:]
	if len(rest) == 0 {
		return // empty '#', a no-op
	}
	name := rest[0]
	args := rest[1:]

	// Conditional-inclusion directives are processed even when the
	// current branch is inactive, so nesting stays balanced; everything
	// else is skipped while inactive.
	switch {
	case name.IsIdent("if"):
		pp.pushIf(pp.evalConstExprLine(args))
		return
	case name.IsIdent("ifdef"):
		pp.pushIf(len(args) > 0 && pp.isDefined(args[0].Lexeme))
		return
	case name.IsIdent("ifndef"):
		pp.pushIf(len(args) > 0 && !pp.isDefined(args[0].Lexeme))
		return
	case name.IsIdent("elif"):
		pp.elif(pp.evalConstExprLine(args))
		return
	case name.IsIdent("else"):
		pp.elseBranch()
		return
	case name.IsIdent("endif"):
		pp.endif()
		return
	}

	if !pp.condActive() {
		return
	}

	switch {
	case name.IsIdent("define"):
		pp.define(args)
	case name.IsIdent("undef"):
		if len(args) > 0 {
			if m, ok := pp.Macros[args[0].Lexeme]; ok {
				m.Deleted = true
			}
		}
	case name.IsIdent("include"):
		pp.include(args, false)
	case name.IsIdent("include_next"):
		pp.include(args, true)
	case name.IsIdent("line"):
		pp.lineDirective(args)
	case name.IsIdent("pragma"):
		pp.pragma(args)
	case name.IsIdent("error"):
		throw(diagErr(name, "#error %s", joinLexemes(args)))
	case name.IsIdent("warning"):
		fmt.Fprintf(os.Stderr, "%s: warning: #warning %s\n", name.Pos, joinLexemes(args))
	default:
		throw(diagErr(name, "invalid preprocessing directive #%s", name.Lexeme))
	}
}

func joinLexemes(ts []*tok.Token) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += " "
		}
		s += t.Lexeme
	}
	return s
}

func (pp *Preprocessor) isDefined(name string) bool {
	m, ok := pp.Macros[name]
	return ok && !m.Deleted
}

func (pp *Preprocessor) pushIf(taken bool) {
	active := pp.condActive() && taken
	pp.condStack = append(pp.condStack, condFrame{taken: taken, active: active, parentActive: pp.condActive()})
}

func (pp *Preprocessor) elif(taken bool) {
	if len(pp.condStack) == 0 {
		throw(diagErr(nil, "stray #elif"))
	}
	top := &pp.condStack[len(pp.condStack)-1]
	if top.sawElse {
		throw(diagErr(nil, "#elif after #else"))
	}
	if top.taken {
		top.active = false
		return
	}
	top.active = top.parentActive && taken
	top.taken = top.taken || taken
}

func (pp *Preprocessor) elseBranch() {
	if len(pp.condStack) == 0 {
		throw(diagErr(nil, "stray #else"))
	}
	top := &pp.condStack[len(pp.condStack)-1]
	if top.sawElse {
		throw(diagErr(nil, "#else after #else"))
	}
	top.sawElse = true
	top.active = top.parentActive && !top.taken
	top.taken = true
}

func (pp *Preprocessor) endif() {
	if len(pp.condStack) == 0 {
		throw(diagErr(nil, "stray #endif"))
	}
	pp.condStack = pp.condStack[:len(pp.condStack)-1]
}

// evalConstExprLine implements spec.md 4.1: "#if/#elif call the constant
// evaluator on a synthesized expression where defined(X) becomes 0/1 and
// remaining identifiers become 0."
func (pp *Preprocessor) evalConstExprLine(line []*tok.Token) bool {
	if !pp.condActive() {
		return false // still must balance push/pop, value is irrelevant
	}
	resolved := pp.resolveDefined(line)
	expanded := pp.expandAll(resolved)
	zeroed := pp.zeroUndefinedIdents(expanded)
	n := parseConstExprLine(zeroed)
	return Eval(n) != 0
}

// resolveDefined replaces `defined(X)`/`defined X` with 0/1 before macro
// expansion runs (defined must see the pre-expansion identifier).
func (pp *Preprocessor) resolveDefined(in []*tok.Token) []*tok.Token {
	var out []*tok.Token
	for i := 0; i < len(in); i++ {
		if in[i].IsIdent("defined") {
			j := i + 1
			paren := false
			if j < len(in) && in[j].Is("(") {
				paren = true
				j++
			}
			if j < len(in) && in[j].Kind == tok.Ident {
				name := in[j].Lexeme
				j++
				if paren {
					if j < len(in) && in[j].Is(")") {
						j++
					}
				}
				val := int64(0)
				if pp.isDefined(name) {
					val = 1
				}
				out = append(out, numTok(val, in[i]))
				i = j - 1
				continue
			}
		}
		out = append(out, in[i])
	}
	return out
}

func (pp *Preprocessor) zeroUndefinedIdents(in []*tok.Token) []*tok.Token {
	var out []*tok.Token
	for _, t := range in {
		if t.Kind == tok.Ident {
			out = append(out, numTok(0, t))
			continue
		}
		out = append(out, t)
	}
	return out
}

// define parses `#define NAME ...` / `#define NAME(params) ...`, per
// spec.md 4.1.
func (pp *Preprocessor) define(args []*tok.Token) {
	if len(args) == 0 {
		throw(diagErr(nil, "macro name missing"))
	}
	name := args[0]
	rest := args[1:]

	if len(rest) > 0 && rest[0].Is("(") && !rest[0].HasSpace {
		pp.defineFuncLike(name, rest)
		return
	}
	body := append([]*tok.Token{}, rest...)
	if len(body) > 0 {
		body[0].AtBOL = false
		body[0].HasSpace = false
	}
	pp.installMacro(&Macro{Name: name.Lexeme, Kind: ObjLike, Body: tok.FromSlice(cloneForStorage(body), &tok.Token{Kind: tok.EOF})})
}

func (pp *Preprocessor) defineFuncLike(name *tok.Token, rest []*tok.Token) {
	i := 1 // skip '('
	var params []string
	variadic := ""
	for i < len(rest) && !rest[i].Is(")") {
		if rest[i].Is("...") {
			variadic = "__VA_ARGS__"
			i++
			continue
		}
		if rest[i].Kind == tok.Ident {
			pname := rest[i].Lexeme
			if i+1 < len(rest) && rest[i+1].Is("...") {
				variadic = pname
				i += 2
				continue
			}
			params = append(params, pname)
		}
		i++
	}
	if i < len(rest) {
		i++ // skip ')'
	}
	body := append([]*tok.Token{}, rest[i:]...)
	if len(body) > 0 {
		body[0].AtBOL = false
		body[0].HasSpace = false
	}
	pp.installMacro(&Macro{
		Name:        name.Lexeme,
		Kind:        FuncLike,
		Params:      params,
		VariadicArg: variadic,
		Body:        tok.FromSlice(cloneForStorage(body), &tok.Token{Kind: tok.EOF}),
	})
}

func cloneForStorage(ts []*tok.Token) []*tok.Token {
	out := make([]*tok.Token, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

func (pp *Preprocessor) installMacro(m *Macro) {
	if existing, ok := pp.Macros[m.Name]; ok && existing.Builtin == nil {
		if !macroBodiesIdentical(existing, m) {
			fmt.Fprintf(os.Stderr, "warning: %q redefined\n", m.Name)
		}
	}
	pp.Macros[m.Name] = m
}

// macroBodiesIdentical implements SPEC_FULL.md's redefinition-tolerance
// rule: a token-for-token identical redefinition is silently accepted.
func macroBodiesIdentical(a, b *Macro) bool {
	if a.Kind != b.Kind || len(a.Params) != len(b.Params) || a.VariadicArg != b.VariadicArg {
		return false
	}
	at, bt := tok.List(a.Body), tok.List(b.Body)
	if len(at) != len(bt) {
		return false
	}
	for i := range at {
		if at[i].Lexeme != bt[i].Lexeme {
			return false
		}
	}
	return true
}

func (pp *Preprocessor) lineDirective(args []*tok.Token) {
	// #line N ["file"] — accepted and ignored: nothing is recorded, and
	// the token positions already produced by the lexer are not
	// retroactively rewritten.
	_ = args
}

func (pp *Preprocessor) pragma(args []*tok.Token) {
	if len(args) > 0 && args[0].IsIdent("once") {
		pp.visitedOnce[pp.curFile] = true
		return
	}
	// other pragmas: accepted and ignored, under -E as well; they do not
	// appear in the preprocessed output.
}

// include implements spec.md 4.1/section 6: resolve against -iquote,
// current file dir, -I, -idirafter, and detect include guards / #pragma
// once so a repeated inclusion of an already-guarded header is skipped.
func (pp *Preprocessor) include(args []*tok.Token, next bool) {
	if len(args) == 0 {
		throw(diagErr(nil, "expected a filename"))
	}
	name, quoted := headerName(args)
	if pp.files == nil {
		throw(diagErr(args[0], "no include resolver configured"))
	}
	path, contents, ok := pp.files.Resolve(name, quoted, pp.curFile)
	if !ok {
		throw(diagErr(args[0], "%s: no such file or directory", name))
	}
	if pp.visitedOnce[path] {
		return
	}
	if guard, tracked := pp.guardedFiles[path]; tracked && pp.isDefined(guard) {
		return
	}
	_ = next

	savedFile := pp.curFile
	pp.curFile = path
	toks := tok.List(Lex(path, contents))
	guard := detectIncludeGuard(toks)
	sub, err := pp.preprocessTokens(toks)
	pp.curFile = savedFile
	if err != nil {
		throw(err)
	}
	if guard != "" {
		pp.guardedFiles[path] = guard
	}
	pp.pendingInclude = append(pp.pendingInclude, sub...)
}

func headerName(args []*tok.Token) (name string, quoted bool) {
	t := args[0]
	if t.Kind == tok.Str {
		return string(t.StrVal), true
	}
	// <...>: reconstructed from the punctuator/ident run between < and >
	s := ""
	for _, a := range args {
		s += a.Lexeme
	}
	s = trimAngles(s)
	return s, false
}

func trimAngles(s string) string {
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

// detectIncludeGuard implements spec.md 4.1: a file whose first
// meaningful directive is #ifndef NAME and whose matching #endif ends the
// file is associated with NAME for future-inclusion skipping.
func detectIncludeGuard(toks []*tok.Token) string {
	i := 0
	if i >= len(toks) || !toks[i].Is("#") {
		return ""
	}
	if i+1 >= len(toks) || !toks[i+1].IsIdent("ifndef") {
		return ""
	}
	if i+2 >= len(toks) || toks[i+2].Kind != tok.Ident {
		return ""
	}
	name := toks[i+2].Lexeme
	// matching #endif must end the file
	depth := 1
	for j := i + 3; j < len(toks); j++ {
		if toks[j].Is("#") && j+1 < len(toks) {
			switch {
			case toks[j+1].IsIdent("if"), toks[j+1].IsIdent("ifdef"), toks[j+1].IsIdent("ifndef"):
				depth++
			case toks[j+1].IsIdent("endif"):
				depth--
				if depth == 0 {
					// no further line may follow this #endif
					for k := j + 2; k < len(toks); k++ {
						if toks[k].AtBOL {
							return ""
						}
					}
					return name
				}
			}
		}
	}
	return ""
}
