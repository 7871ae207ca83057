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

// Error is a source-pointing diagnostic, the one error shape every
// subsystem in spec.md section 7 produces. The CLI driver (out of scope
// for this package, per spec.md section 1) is responsible for printing
// it and choosing an exit code.
type Error struct {
	Pos     tok.Position
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: error: %s", e.Pos, e.Message)
}

// diagErr builds an *Error anchored at t's position. Every fatal
// diagnostic in the parser, preprocessor and code generator goes through
// this constructor so the shape is uniform (spec.md section 4.6, 7): all
// are fatal in the current invocation, there is no retry/partial-failure
// path except the constant evaluator's recover mode (const_eval.go).
func diagErr(t *tok.Token, format string, args ...any) error {
	pos := tok.Position{}
	if t != nil {
		pos = t.Pos
	}
	return &Error{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// panicError is the sentinel used by recover-mode speculative evaluation
// (is_const_expr, __builtin_constant_p) to distinguish "not foldable"
// unwinds from genuine programming bugs in this compiler.
type panicError struct{ err error }

func throw(err error) { panic(panicError{err}) }

// tryFold runs fn and converts a throw() unwind into (false, err) with the
// thrown error; any
// other panic re-propagates, matching spec.md 4.4's "recover flag enables
// trial evaluation that returns failure rather than aborting."
func tryFold(fn func()) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, isPE := r.(panicError); isPE {
				ok = false
				err = pe.err
				return
			}
			panic(r)
		}
	}()
	fn()
	return true, nil
}
