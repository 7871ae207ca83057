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

// PredefinedMacros seeds a preprocessor with the ISA-feature object
// macros a hosted compiler normally gets from its target triple (spec.md
// 4.1's predefined-macro list, section 6's host ISA detection). The CLI
// driver computes the feature set and this just does the textual
// #define equivalent.
func PredefinedMacros(pp *Preprocessor, features map[string]bool) {
	for name, has := range features {
		if has {
			pp.Define(name, "1")
		}
	}
}

// CompileFile runs the whole pipeline named in spec.md section 6: lex,
// preprocess, parse, generate. Each stage's fatal diagnostic surfaces
// uniformly as an *Error.
func CompileFile(filename, src string, files FileProvider, features map[string]bool, cfg CodegenConfig) (asm string, err error) {
	ok, perr := tryFold(func() {
		head := Lex(filename, src)
		pp := NewPreprocessor(files)
		PredefinedMacros(pp, features)
		expanded, eerr := pp.Preprocess(filename, head)
		if eerr != nil {
			throw(eerr)
		}
		prog := Parse(tok.List(expanded))
		out, gerr := Generate(prog, cfg)
		if gerr != nil {
			throw(gerr)
		}
		asm = out
	})
	if !ok {
		return "", perr
	}
	return asm, nil
}

// PreprocessFile runs only the lex+preprocess stages (the -E driver
// flag, spec.md section 6), returning the expanded token chain for the
// caller to render as text.
func PreprocessFile(filename, src string, files FileProvider, features map[string]bool) (out *tok.Token, err error) {
	ok, perr := tryFold(func() {
		head := Lex(filename, src)
		pp := NewPreprocessor(files)
		PredefinedMacros(pp, features)
		expanded, eerr := pp.Preprocess(filename, head)
		if eerr != nil {
			throw(eerr)
		}
		out = expanded
	})
	if !ok {
		return nil, perr
	}
	return out, nil
}
