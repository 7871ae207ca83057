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

// Obj is a variable or function (spec.md section 3).
type Obj struct {
	Name *tok.Token
	Ty   *Type

	IsLocal       bool
	IsStatic      bool
	IsTLS         bool
	IsDefinition  bool
	IsTentative   bool
	IsInline      bool
	IsLive        bool
	IsReferenced  bool
	IsFunction    bool
	PassByStack   bool

	// Locals: frame-relative offset, finalized before codegen (invariant
	// list, section 3).
	Offset int

	// Globals: serialized initializer bytes plus relocations into other
	// globals (spec.md section 3, Relocation).
	InitData  []byte
	Relocs    []Reloc

	// Functions only.
	Body         *Node
	Locals       []*Obj
	StaticLocals []*Obj
	FuncScope    *Scope
	ParamNext    *Obj
	Refs         map[string]bool // names of functions called directly from Body
	StackSize    int             // finalized prologue frame size

	// Codegen-only bookkeeping (spec.md 4.5): the slot holding %rsp, stored
	// at function entry and overwritten by each alloca(), that
	// goto/break/continue reload %rsp from, and the slot holding the hidden >16-byte return
	// pointer handed in %rdi, when the return type needs one.
	VLARspOffset int
	RetBufOffset int
	HasRetBuf    bool

	// Variadic bookkeeping (spec.md 4.5's variadic prologue), set once at
	// emitVariadicPrologue and read back by __builtin_va_start lowering.
	gpOffsetUsed      int
	fpOffsetUsed      int
	regSaveAreaOffset int
	namedArgStackBytes int

	Next *Obj
}

// Reloc is a (offset, label, addend) triple recorded for a global
// initializer referencing another global (spec.md section 3, GLOSSARY).
type Reloc struct {
	Offset int
	Label  string
	Addend int64
}

// VarScope binds a name to either an Obj (variable/function), a typedef
// Type, or an enum constant value within one Scope.
type VarScope struct {
	Name       string
	Var        *Obj
	Typedef    *Type
	EnumTy     *Type
	IsEnum     bool
	EnumVal    int64
}

// Scope is one lexical nesting level. Tag and variable namespaces are
// independent maps, as required by spec.md section 3.
type Scope struct {
	Vars   map[string]*VarScope
	Tags   map[string]*Type

	Parent   *Scope
	Children []*Scope

	Locals []*Obj

	// IsTemporary marks scopes created around compound literals in
	// expression context; variable lookup for "where does this local
	// attach" walks through temporary scopes to the innermost
	// non-temporary one (spec.md 4.3).
IsTemporary bool
}

func NewScope(parent *Scope) *Scope {
	s := &Scope{Vars: map[string]*VarScope{}, Tags: map[string]*Type{}, Parent: parent}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// FindVar looks up name in this scope and its ancestors.
func (s *Scope) FindVar(name string) *VarScope {
	for sc := s; sc != nil; sc = sc.Parent {
		if v, ok := sc.Vars[name]; ok {
			return v
		}
	}
	return nil
}

// FindTag looks up a struct/union/enum tag in this scope and its ancestors.
func (s *Scope) FindTag(name string) *Type {
	for sc := s; sc != nil; sc = sc.Parent {
		if t, ok := sc.Tags[name]; ok {
			return t
		}
	}
	return nil
}

// NonTemporary returns the innermost ancestor (including s) that is not a
// temporary scope, the scope a local actually attaches to (spec.md 4.3).
func (s *Scope) NonTemporary() *Scope {
	for sc := s; sc != nil; sc = sc.Parent {
		if !sc.IsTemporary {
			return sc
		}
	}
	return s
}

// DeclareVar binds name to obj in this scope.
func (s *Scope) DeclareVar(name string, obj *Obj) *VarScope {
	vs := &VarScope{Name: name, Var: obj}
	s.Vars[name] = vs
	return vs
}

// DeclareTypedef binds name to a type alias in this scope.
func (s *Scope) DeclareTypedef(name string, ty *Type) *VarScope {
	vs := &VarScope{Name: name, Typedef: ty}
	s.Vars[name] = vs
	return vs
}

// DeclareEnumConst binds name to a constant enumerator value.
func (s *Scope) DeclareEnumConst(name string, ty *Type, val int64) *VarScope {
	vs := &VarScope{Name: name, EnumTy: ty, IsEnum: true, EnumVal: val}
	s.Vars[name] = vs
	return vs
}

// DeclareTag binds a struct/union/enum tag in this scope.
func (s *Scope) DeclareTag(name string, ty *Type) {
	s.Tags[name] = ty
}
