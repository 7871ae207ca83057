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

// abiClass is one eightbyte's register class under the System V
// classification algorithm (spec.md 4.5, GLOSSARY "ABI classification").
type abiClass int

const (
	clsNone abiClass = iota
	clsInteger
	clsSSE
	clsMemory
)

var argGP64 = [...]string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}
var argGP32 = [...]string{"%edi", "%esi", "%edx", "%ecx", "%r8d", "%r9d"}
var argGP16 = [...]string{"%di", "%si", "%dx", "%cx", "%r8w", "%r9w"}
var argGP8 = [...]string{"%dil", "%sil", "%dl", "%cl", "%r8b", "%r9b"}

const maxGPArgs = 6
const maxFPArgs = 8

// flatField is one scalar leaf inside an aggregate, at its absolute
// offset from the aggregate's start, used to classify each eightbyte.
type flatField struct {
	offset int
	ty     *Type
}

func flattenFields(ty *Type, base int, out *[]flatField) {
	switch ty.Kind {
	case TyStruct:
		for _, m := range ty.Members {
			flattenFields(m.Ty, base+m.Offset, out)
		}
	case TyUnion:
		for _, m := range ty.Members {
			flattenFields(m.Ty, base, out)
		}
	case TyArray:
		if ty.ArrayLen <= 0 {
			return
		}
		for i := 0; i < ty.ArrayLen; i++ {
			flattenFields(ty.Base, base+i*ty.Base.Size, out)
		}
	default:
		*out = append(*out, flatField{offset: base, ty: ty})
	}
}

// classifyAggregate implements spec.md 4.5's eightbyte rule: a struct or
// union no larger than 16 bytes splits into one or two eightbyte chunks,
// each INTEGER unless every scalar it contains is float/double, in which
// case it is SSE. Anything larger is passed/returned through memory.
func classifyAggregate(ty *Type) []abiClass {
	if ty.Size <= 0 || ty.Size > 16 {
		return []abiClass{clsMemory}
	}
	var fields []flatField
	flattenFields(ty, 0, &fields)
	n := 1
	if ty.Size > 8 {
		n = 2
	}
	classes := make([]abiClass, n)
	for i := range classes {
		classes[i] = clsNone
	}
	for _, f := range fields {
		idx := f.offset / 8
		if idx >= n {
			idx = n - 1
		}
		if f.ty.IsFlonum() {
			if classes[idx] == clsNone {
				classes[idx] = clsSSE
			}
		} else {
			classes[idx] = clsInteger
		}
	}
	for i := range classes {
		if classes[i] == clsNone {
			// Padding-only eightbyte (e.g. the tail byte of a 9-byte
			// struct); treat as INTEGER, matching the psABI's fallback.
			classes[i] = clsInteger
		}
	}
	return classes
}

// classifyScalar returns the single-eightbyte class for a non-aggregate
// parameter/return type. long double is never register-classified: it is
// always passed on the stack as two eightbytes (spec.md 4.5/6).
func classifyScalar(ty *Type) abiClass {
	switch {
	case ty.Kind == TyLongDouble:
		return clsMemory
	case ty.IsFlonum():
		return clsSSE
	default:
		return clsInteger
	}
}

// paramClasses classifies one parameter's full eightbyte sequence.
func paramClasses(ty *Type) []abiClass {
	switch ty.Kind {
	case TyStruct, TyUnion:
		return classifyAggregate(ty)
	default:
		return []abiClass{classifyScalar(ty)}
	}
}

// regsNeeded counts how many integer/SSE registers a classification
// would consume if it is not spilled to the stack.
func regsNeeded(classes []abiClass) (gp, fp int) {
	for _, c := range classes {
		switch c {
		case clsInteger:
			gp++
		case clsSSE:
			fp++
		}
	}
	return
}

func classesAreMemory(classes []abiClass) bool {
	return len(classes) == 1 && classes[0] == clsMemory
}
