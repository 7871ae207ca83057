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
	"time"

	tok "github.com/gorse-io/ccx/internal/token"
)

// MacroKind distinguishes object-like from function-like macros.
type MacroKind int

const (
	ObjLike MacroKind = iota
	FuncLike
)

// BuiltinHandler computes the replacement for a built-in macro at the
// point of its invocation (spec.md 4.1: __FILE__, __LINE__, __COUNTER__, …).
type BuiltinHandler func(pp *Preprocessor, invocation *tok.Token) *tok.Token

// Macro is one entry of the macro table (spec.md 4.1).
type Macro struct {
	Name       string
	Kind       MacroKind
	Body       *tok.Token
	Params     []string
	VariadicArg string // "" if not variadic; the name bound to the trailing args
	IsVAOptCapable bool
	Builtin    BuiltinHandler
	Deleted    bool
}

// FileProvider resolves #include targets; it is the include-path
// resolver named as an external collaborator in spec.md section 1.
type FileProvider interface {
	// Resolve returns the file contents and canonical path for a header
	// name. quoted distinguishes "..." (which also searches the -iquote
	// dirs and the including file's directory) from <...> includes, per
	// spec.md section 6's search order.
	Resolve(name string, quoted bool, fromFile string) (path, contents string, ok bool)
}

// Preprocessor runs the macro-expansion engine of spec.md 4.1.
type Preprocessor struct {
	Macros map[string]*Macro

	// lockedMacros is the stack of macros currently being expanded,
	// together with the stop_tok each unlocks at (spec.md 4.1, GLOSSARY
	// "Locked macro"/"Stop token").
	lockedMacros []lockedMacro

	condStack []condFrame
	guardedFiles map[string]string // path -> macro name guarding it
	visitedOnce  map[string]bool   // pragma-once paths

	files    FileProvider
	counter  int
	curFile  string
	baseFile string

	// pendingInclude accumulates a #include's fully-preprocessed
	// contents so preprocessTokens can splice them into the output
	// stream at the directive's position.
	pendingInclude []*tok.Token

	// PreprocessOnly is not read by the expansion engine: directives,
	// pragmas included, are handled the same way whether or not it is set.
	PreprocessOnly bool
}

type lockedMacro struct {
	name    string
	stopTok *tok.Token
}

type condFrame struct {
	taken    bool // some branch of this #if/#elif/#else chain already matched
	active   bool // the branch currently being processed is live
	parentActive bool
	sawElse  bool
}

// NewPreprocessor seeds the built-in and predefined object macros of
// spec.md 4.1.
func NewPreprocessor(files FileProvider) *Preprocessor {
	pp := &Preprocessor{
		Macros:       map[string]*Macro{},
		guardedFiles: map[string]string{},
		visitedOnce:  map[string]bool{},
		files:        files,
	}
	pp.seedBuiltins()
	return pp
}

func (pp *Preprocessor) seedBuiltins() {
	reg := func(name string, h BuiltinHandler) {
		pp.Macros[name] = &Macro{Name: name, Kind: ObjLike, Builtin: h}
	}
	reg("__FILE__", func(pp *Preprocessor, inv *tok.Token) *tok.Token {
		return strTok(fmt.Sprintf("%q", inv.Pos.File), inv)
	})
	reg("__LINE__", func(pp *Preprocessor, inv *tok.Token) *tok.Token {
		return numTok(int64(inv.Pos.Line), inv)
	})
	reg("__COUNTER__", func(pp *Preprocessor, inv *tok.Token) *tok.Token {
		v := pp.counter
		pp.counter++
		return numTok(int64(v), inv)
	})
	reg("__BASE_FILE__", func(pp *Preprocessor, inv *tok.Token) *tok.Token {
		return strTok(fmt.Sprintf("%q", pp.baseFile), inv)
	})
	reg("__TIMESTAMP__", func(pp *Preprocessor, inv *tok.Token) *tok.Token {
		return strTok(fmt.Sprintf("%q", time.Now().Format("Mon Jan  2 15:04:05 2006")), inv)
	})
	reg("__STDC__", func(pp *Preprocessor, inv *tok.Token) *tok.Token { return numTok(1, inv) })
	reg("__STDC_VERSION__", func(pp *Preprocessor, inv *tok.Token) *tok.Token { return numTok(201112, inv) })
	reg("__x86_64__", func(pp *Preprocessor, inv *tok.Token) *tok.Token { return numTok(1, inv) })
	reg("__SIZEOF_POINTER__", func(pp *Preprocessor, inv *tok.Token) *tok.Token { return numTok(8, inv) })
	reg("__SIZEOF_LONG__", func(pp *Preprocessor, inv *tok.Token) *tok.Token { return numTok(8, inv) })
	reg("__SIZEOF_INT__", func(pp *Preprocessor, inv *tok.Token) *tok.Token { return numTok(4, inv) })

	// plain predefined object macros needing no per-invocation state.
	for name, val := range map[string]string{
		"__LP64__": "1",
	} {
		pp.Define(name, val)
	}
}

// Define installs an object-like macro whose body is the (already
// tokenized, single-line) text body, used both by PredefinedMacros and
// by the builtin table above.
func (pp *Preprocessor) Define(name, body string) {
	pp.Macros[name] = &Macro{Name: name, Kind: ObjLike, Body: Lex("<builtin>", body)}
}

func strTok(quoted string, like *tok.Token) *tok.Token {
	return &tok.Token{Kind: tok.Str, Lexeme: quoted, Pos: like.Pos}
}

func numTok(v int64, like *tok.Token) *tok.Token {
	return &tok.Token{Kind: tok.Num, Lexeme: fmt.Sprintf("%d", v), Val: v, Pos: like.Pos}
}

// isLocked reports whether name is currently being expanded.
func (pp *Preprocessor) isLocked(name string) bool {
	for _, l := range pp.lockedMacros {
		if l.name == name {
			return true
		}
	}
	return false
}

func (pp *Preprocessor) lock(name string, stop *tok.Token) {
	pp.lockedMacros = append(pp.lockedMacros, lockedMacro{name: name, stopTok: stop})
}

// unlockAt pops every locked macro whose stop_tok equals t, implementing
// spec.md 4.1's recursive-expansion discipline: "after consuming a token,
// all macros whose stop_tok equals that token are unlocked."
func (pp *Preprocessor) unlockAt(t *tok.Token) {
	for len(pp.lockedMacros) > 0 && pp.lockedMacros[len(pp.lockedMacros)-1].stopTok == t {
		pp.lockedMacros = pp.lockedMacros[:len(pp.lockedMacros)-1]
	}
}

